// Package mesh implements the FluidLoom octree mesh core: the Hilbert codec,
// the per-cell SoA mesh controller, the GPU-resident hash index, the field
// registry, configuration and error kinds. The engine that ties adaptation,
// halo exchange, load balancing and the execution DAG together into
// simulation steps lives in the separate mesh/engine package.
package mesh

// MaxRefinementLevel is the highest supported AMR level; coordinates use
// CoordinateBits bits per axis and the Hilbert index packs 3 bits per level.
const (
	MaxRefinementLevel = 8
	CoordinateBits     = 21
)

// HilbertIndex is a 64-bit Hilbert space-filling-curve key. Bit 63 is always
// zero in canonical form (level*3 <= 63 for any supported level).
type HilbertIndex = uint64

// Reserved sentinels (spec §3).
const (
	HilbertEmpty   HilbertIndex = 0xFFFFFFFFFFFFFFFF
	HilbertInvalid HilbertIndex = 0xFFFFFFFFFFFFFFFE
)

// hilbertTable[state][quadrant] packs (nextState<<3 | curveIndex).
// Carried over from the original FluidLoom HilbertCodec.cpp generated table
// (12 states, 8 geometric quadrants per state).
var hilbertTable = [12][8]uint8{
	{8, 17, 27, 18, 47, 38, 28, 37},
	{16, 71, 1, 62, 51, 52, 2, 61},
	{0, 75, 95, 76, 9, 10, 86, 85},
	{4, 77, 55, 78, 3, 66, 80, 65},
	{50, 49, 45, 46, 67, 88, 68, 7},
	{6, 57, 39, 72, 5, 58, 84, 83},
	{12, 11, 29, 90, 79, 32, 30, 89},
	{74, 91, 73, 40, 69, 92, 70, 15},
	{14, 13, 81, 82, 63, 36, 24, 35},
	{20, 31, 19, 56, 53, 54, 42, 41},
	{26, 93, 43, 44, 25, 94, 64, 23},
	{22, 87, 21, 60, 33, 48, 34, 59},
}

// invHilbertTable[state][curveIndex] packs (nextState<<3 | geometricQuadrant).
var invHilbertTable = [12][8]uint8{
	{8, 17, 19, 26, 30, 39, 37, 44},
	{16, 2, 6, 52, 53, 63, 59, 65},
	{0, 12, 13, 73, 75, 87, 86, 90},
	{86, 71, 69, 4, 0, 73, 75, 50},
	{93, 49, 48, 68, 70, 42, 43, 7},
	{75, 57, 61, 87, 86, 4, 0, 34},
	{37, 95, 91, 9, 8, 26, 30, 76},
	{43, 74, 72, 89, 93, 68, 70, 15},
	{30, 82, 83, 39, 37, 9, 8, 60},
	{59, 47, 46, 18, 16, 52, 53, 25},
	{70, 28, 24, 42, 43, 89, 93, 23},
	{53, 36, 38, 63, 59, 18, 16, 81},
}

// HilbertEncode maps 3D integer coordinates at the given refinement level to
// a canonical Hilbert index. Coordinates are masked to CoordinateBits (a
// documented lossy path per spec §4.1); level > MaxRefinementLevel panics.
func HilbertEncode(x, y, z int32, level uint8) HilbertIndex {
	if level > MaxRefinementLevel {
		panic("mesh: hilbert encode level exceeds MaxRefinementLevel")
	}
	const mask = uint32(1)<<CoordinateBits - 1
	ux := uint32(x) & mask
	uy := uint32(y) & mask
	uz := uint32(z) & mask

	var h HilbertIndex
	state := uint8(0)
	for i := int(level) - 1; i >= 0; i-- {
		bitX := (ux >> uint(i)) & 1
		bitY := (uy >> uint(i)) & 1
		bitZ := (uz >> uint(i)) & 1
		quadrant := uint8(bitZ<<2 | bitY<<1 | bitX)

		val := hilbertTable[state][quadrant]
		curveIdx := val & 0x7
		state = val >> 3

		h = h<<3 | HilbertIndex(curveIdx)
	}
	return canonicalize(h, level)
}

// canonicalize zeroes bits above 3*level, matching the C++ shift-left/
// shift-right idiom from the original codec.
func canonicalize(h HilbertIndex, level uint8) HilbertIndex {
	shift := 64 - uint(level)*3
	if shift >= 64 {
		return 0
	}
	return h << shift >> shift
}

// HilbertDecode is the inverse of HilbertEncode: it recovers (x,y,z) from a
// canonical Hilbert index at the given level.
func HilbertDecode(h HilbertIndex, level uint8) (x, y, z int32) {
	if level == 0 {
		return 0, 0, 0
	}
	tempH := h << (64 - uint(level)*3)

	var ux, uy, uz uint32
	state := uint8(0)
	for i := uint8(0); i < level; i++ {
		curveIdx := uint8(tempH>>61) & 0b111

		val := invHilbertTable[state][curveIdx]
		quadrant := val & 0x7
		state = val >> 3

		ux = ux<<1 | uint32(quadrant&1)
		uy = uy<<1 | uint32((quadrant>>1)&1)
		uz = uz<<1 | uint32((quadrant>>2)&1)

		tempH <<= 3
	}
	return int32(ux), int32(uy), int32(uz)
}

// HilbertParent returns the index of the parent cell at level-1 of a cell
// whose index is h at the given level.
func HilbertParent(h HilbertIndex, level uint8) HilbertIndex {
	if level == 0 {
		panic("mesh: cannot get parent of level 0 cell")
	}
	return h >> 3
}

// HilbertChild returns the index of child quadrant q (0-7) at level+1 of a
// cell whose index is h at the given level.
func HilbertChild(h HilbertIndex, level uint8, q uint8) HilbertIndex {
	if level >= MaxRefinementLevel {
		panic("mesh: cannot get child at max level")
	}
	if q > 7 {
		panic("mesh: quadrant must be 0-7")
	}
	return h<<3 | HilbertIndex(q)
}

// HilbertValid reports whether h is a canonical Hilbert index at level:
// bit 63 must be zero and no bits beyond 3*level may be set.
func HilbertValid(h HilbertIndex, level uint8) bool {
	if h == HilbertEmpty {
		return false
	}
	if h&(1<<63) != 0 {
		return false
	}
	shift := uint(level) * 3
	if shift < 64 && (h>>shift) != 0 {
		return false
	}
	return true
}
