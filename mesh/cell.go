package mesh

// CellState enumerates the possible states of a cell (spec §3).
type CellState uint8

const (
	StateFluid CellState = iota
	StateSolid
	StateGeometryStatic
	StateGeometryMoving
	StateUnallocated
	StateGhost
)

// InvalidSlot is the sentinel for "no slot" array-index references (Design
// Notes §9: arrays-of-structs-by-index rather than raw pointers).
const InvalidSlot uint32 = 0xFFFFFFFF

// Coord identifies a cell by its integer coordinates and refinement level.
type Coord struct {
	X, Y, Z int32
	Level   uint8
}

// Hilbert returns the canonical Hilbert index of this coordinate.
func (c Coord) Hilbert() HilbertIndex {
	return HilbertEncode(c.X, c.Y, c.Z, c.Level)
}

// Parent returns the coordinate of the parent cell (spec §3 derived relations).
func (c Coord) Parent() Coord {
	return Coord{X: c.X >> 1, Y: c.Y >> 1, Z: c.Z >> 1, Level: c.Level - 1}
}

// Child returns the coordinate of child quadrant q (0-7).
func (c Coord) Child(q uint8) Coord {
	qx := int32(q & 1)
	qy := int32((q >> 1) & 1)
	qz := int32((q >> 2) & 1)
	return Coord{X: c.X<<1 | qx, Y: c.Y<<1 | qy, Z: c.Z<<1 | qz, Level: c.Level + 1}
}

// IsFirstSibling reports whether c is the "first" (lowest-index) of its
// eight-cell sibling group: all LSBs of x,y,z are zero.
func (c Coord) IsFirstSibling() bool {
	return c.X&1 == 0 && c.Y&1 == 0 && c.Z&1 == 0
}

// FaceNeighbor returns the coordinate of the same-level face neighbor along
// axis (0=x,1=y,2=z) in direction dir (+1 or -1).
func (c Coord) FaceNeighbor(axis int, dir int32) Coord {
	n := c
	switch axis {
	case 0:
		n.X += dir
	case 1:
		n.Y += dir
	case 2:
		n.Z += dir
	default:
		panic("mesh: face neighbor axis must be 0, 1, or 2")
	}
	return n
}

// IsGeometryLocked reports whether the cell's topology is immutable per
// invariant I5, given whether the engine is configured to allow modifying
// GEOMETRY_MOVING cells.
func (s CellState) IsGeometryLocked(allowModifyingGeometryMoving bool) bool {
	switch s {
	case StateSolid, StateGeometryStatic:
		return true
	case StateGeometryMoving:
		return !allowModifyingGeometryMoving
	default:
		return false
	}
}

// Mesh owns the structure-of-arrays cell state (spec §4.2). All cross-slot
// references (ghost ranges, DAG nodes, migration plans) hold indices into
// these arrays, never pointers.
type Mesh struct {
	CoordX, CoordY, CoordZ []int32
	Level                  []uint8
	State                  []CellState
	MaterialID             []uint32 // 24-bit value stored in the low bits
	RefineFlag             []int8   // -1 merge, 0 keep, >0 split

	NumCells int
	Capacity int

	Fields *FieldSet
}

// NewMesh allocates a mesh with the given initial capacity.
func NewMesh(initialCapacity uint32) *Mesh {
	m := &Mesh{Fields: NewFieldSet()}
	m.grow(int(initialCapacity))
	return m
}

// grow reallocates every SoA array to at least newCapacity, copying the live
// prefix. Growth beyond the requested size is the caller's responsibility
// (spec §4.2 uses a 1.5x default factor at call sites).
func (m *Mesh) grow(newCapacity int) {
	if newCapacity <= m.Capacity {
		return
	}
	m.CoordX = growInt32(m.CoordX, newCapacity)
	m.CoordY = growInt32(m.CoordY, newCapacity)
	m.CoordZ = growInt32(m.CoordZ, newCapacity)
	m.Level = growUint8(m.Level, newCapacity)
	m.State = growState(m.State, newCapacity)
	m.MaterialID = growUint32(m.MaterialID, newCapacity)
	m.RefineFlag = growInt8(m.RefineFlag, newCapacity)
	m.Fields.grow(newCapacity)
	m.Capacity = newCapacity
}

// Grow reallocates the mesh to at least newCapacity using the configured
// growth factor, matching spec §4.2's public grow(new_capacity) operation.
func (m *Mesh) Grow(newCapacity uint32, growthFactor float64) {
	target := int(newCapacity)
	if growthFactor > 1.0 {
		grown := int(float64(m.Capacity) * growthFactor)
		if grown > target {
			target = grown
		}
	}
	m.grow(target)
}

func growInt32(s []int32, n int) []int32 {
	out := make([]int32, n)
	copy(out, s)
	return out
}

func growUint8(s []uint8, n int) []uint8 {
	out := make([]uint8, n)
	copy(out, s)
	return out
}

func growUint32(s []uint32, n int) []uint32 {
	out := make([]uint32, n)
	copy(out, s)
	return out
}

func growInt8(s []int8, n int) []int8 {
	out := make([]int8, n)
	copy(out, s)
	return out
}

func growState(s []CellState, n int) []CellState {
	out := make([]CellState, n)
	copy(out, s)
	return out
}

// Coord returns the coordinate descriptor for slot i.
func (m *Mesh) Coord(i int) Coord {
	return Coord{X: m.CoordX[i], Y: m.CoordY[i], Z: m.CoordZ[i], Level: m.Level[i]}
}

// AppendCell grows the mesh if needed and appends one new cell, returning
// its slot. Used by the cell migrator (spec §4.7 step 4) to insert received
// cells before the subsequent Hilbert sort restores I3.
func (m *Mesh) AppendCell(c Coord, state CellState, materialID uint32) int {
	if m.NumCells >= m.Capacity {
		m.Grow(uint32(m.NumCells+1), 1.5)
	}
	slot := m.NumCells
	m.CoordX[slot], m.CoordY[slot], m.CoordZ[slot] = c.X, c.Y, c.Z
	m.Level[slot] = c.Level
	m.State[slot] = state
	m.MaterialID[slot] = materialID
	m.RefineFlag[slot] = 0
	m.NumCells++
	return slot
}

// SwapIn atomically replaces the mesh's arrays with new ones produced by
// adaptation/rebalance (spec §4.2's swap_in operation).
func (m *Mesh) SwapIn(coordX, coordY, coordZ []int32, level []uint8, state []CellState, materialID []uint32, refineFlag []int8, numCells, capacity int) {
	m.CoordX, m.CoordY, m.CoordZ = coordX, coordY, coordZ
	m.Level = level
	m.State = state
	m.MaterialID = materialID
	m.RefineFlag = refineFlag
	m.NumCells = numCells
	m.Capacity = capacity
}

// Permute reorders every SoA array (and every field) according to perm,
// where perm[oldSlot] = newSlot, or InvalidSlot if the old slot is dropped.
func (m *Mesh) Permute(perm []uint32) {
	n := m.NumCells
	newCoordX := make([]int32, m.Capacity)
	newCoordY := make([]int32, m.Capacity)
	newCoordZ := make([]int32, m.Capacity)
	newLevel := make([]uint8, m.Capacity)
	newState := make([]CellState, m.Capacity)
	newMaterial := make([]uint32, m.Capacity)
	newFlag := make([]int8, m.Capacity)

	for old := 0; old < n; old++ {
		dst := perm[old]
		if dst == InvalidSlot {
			continue
		}
		newCoordX[dst] = m.CoordX[old]
		newCoordY[dst] = m.CoordY[old]
		newCoordZ[dst] = m.CoordZ[old]
		newLevel[dst] = m.Level[old]
		newState[dst] = m.State[old]
		newMaterial[dst] = m.MaterialID[old]
		newFlag[dst] = m.RefineFlag[old]
	}

	m.CoordX, m.CoordY, m.CoordZ = newCoordX, newCoordY, newCoordZ
	m.Level, m.State, m.MaterialID, m.RefineFlag = newLevel, newState, newMaterial, newFlag
	m.Fields.permute(perm, n, m.Capacity)
}
