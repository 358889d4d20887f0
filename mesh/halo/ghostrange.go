package halo

import "github.com/fedres/fluidloom-sub000/mesh"

// GhostRange is the immutable descriptor for a contiguous run of boundary
// cells to exchange with one neighbor (spec §4.5, §9's GhostRange design
// note).
type GhostRange struct {
	HilbertStart, HilbertEnd mesh.HilbertIndex
	TargetGPU                int

	LocalLevel, RemoteLevel  uint8
	InterpolationType        InterpolationType

	// CachedLocalIndices holds the owning mesh's SoA slot for every cell in
	// this range, in ascending Hilbert order.
	CachedLocalIndices []uint32

	// CachedNeighborIndices holds, for every entry of CachedLocalIndices,
	// the SoA slots of its 8 same-parent siblings (mesh.Coord.Parent/
	// .Child), flattened 8-per-cell; a sibling absent from the mesh falls
	// back to the cell's own slot. Only populated when InterpolationType !=
	// NONE (spec §4.5: "need 8 coarse corners"/"average the 8 fine
	// children").
	CachedNeighborIndices []uint32
	// CachedOctant holds, for every entry of CachedLocalIndices, its
	// octant-in-parent bits (qx | qy<<1 | qz<<2) — the TrilinearLUT index
	// for that cell.
	CachedOctant []uint8

	PackOffset    int
	PackSizeBytes int
}

// NumCells returns the number of local cells covered by this range.
func (g GhostRange) NumCells() int { return len(g.CachedLocalIndices) }

// NeighborInfo reports, for one local cell slot, whether its face-neighbor
// is owned by a remote partition and, if so, which GPU and at what level.
// Implementations are supplied by the caller (typically the partition
// package, which owns the Hilbert-range-to-rank mapping); the halo package
// itself only performs the contiguous-run scan spec §4.5 describes.
type NeighborInfo func(localSlot int) (targetGPU int, remoteLevel uint8, isBoundary bool)

// BuildGhostRanges scans m (assumed Hilbert-sorted per I3) and groups
// maximal contiguous runs of boundary cells sharing the same (targetGPU,
// remoteLevel) into one GhostRange each (spec §4.5 "scan the sorted
// Hilbert keys to find contiguous runs"). idx resolves sibling lookups for
// cross-level ranges' interpolation stencil (see CachedNeighborIndices); a
// nil idx degrades every lookup to the cell's own slot.
func BuildGhostRanges(m *mesh.Mesh, idx *mesh.HashIndex, neighborOf NeighborInfo) []GhostRange {
	var ranges []GhostRange

	var cur *GhostRange
	flush := func() {
		if cur != nil && len(cur.CachedLocalIndices) > 0 {
			if cur.InterpolationType != InterpNone {
				cur.CachedNeighborIndices, cur.CachedOctant = gatherSiblingStencil(m, idx, cur.CachedLocalIndices)
			}
			ranges = append(ranges, *cur)
		}
		cur = nil
	}

	for i := 0; i < m.NumCells; i++ {
		if m.State[i] == mesh.StateUnallocated {
			flush()
			continue
		}
		targetGPU, remoteLevel, isBoundary := neighborOf(i)
		if !isBoundary {
			flush()
			continue
		}
		localLevel := m.Level[i]
		if cur != nil && (cur.TargetGPU != targetGPU || cur.RemoteLevel != remoteLevel || cur.LocalLevel != localLevel) {
			flush()
		}
		if cur == nil {
			cur = &GhostRange{
				HilbertStart:       m.Coord(i).Hilbert(),
				TargetGPU:          targetGPU,
				LocalLevel:         localLevel,
				RemoteLevel:        remoteLevel,
				InterpolationType:  interpolationFor(localLevel, remoteLevel),
			}
		}
		cur.CachedLocalIndices = append(cur.CachedLocalIndices, uint32(i))
		cur.HilbertEnd = m.Coord(i).Hilbert() + 1
	}
	flush()

	return ranges
}

func interpolationFor(localLevel, remoteLevel uint8) InterpolationType {
	switch {
	case localLevel == remoteLevel:
		return InterpNone
	case localLevel > remoteLevel:
		return InterpTrilinear
	default:
		return InterpVolumeWeighted
	}
}

// gatherSiblingStencil builds the 8-cell sibling neighborhood (and octant
// index) for every entry of locals, via mesh.Coord.Parent/.Child and idx.
// Level-0 cells have no parent; their stencil degenerates to 8 copies of
// the cell's own slot.
func gatherSiblingStencil(m *mesh.Mesh, idx *mesh.HashIndex, locals []uint32) ([]uint32, []uint8) {
	neighbors := make([]uint32, 0, 8*len(locals))
	octants := make([]uint8, len(locals))
	for i, slot := range locals {
		c := m.Coord(int(slot))
		if c.Level == 0 {
			for q := 0; q < 8; q++ {
				neighbors = append(neighbors, slot)
			}
			continue
		}
		octants[i] = uint8(c.X&1) | uint8(c.Y&1)<<1 | uint8(c.Z&1)<<2
		parent := c.Parent()
		for q := uint8(0); q < 8; q++ {
			s := idx.Lookup(parent.Child(q).Hilbert())
			if s == mesh.InvalidValue {
				s = slot
			}
			neighbors = append(neighbors, s)
		}
	}
	return neighbors, octants
}
