package adapt

import "github.com/fedres/fluidloom-sub000/mesh"

// SplitResult holds the child cells produced by Stage B, staged separately
// from the live mesh until Stage D scatters them into the compacted buffer
// (spec §4.4 Stage B: "prefix sum ... temporary buffer").
type SplitResult struct {
	ParentSlots        []uint32
	ParentToChildStart map[uint32]int

	ChildX, ChildY, ChildZ []int32
	ChildLevel             []uint8
	ChildMaterialID        []uint32
	ChildState             []mesh.CellState

	// FieldChildren[name] is component-major, length Components*NumChildren,
	// matching Field.Data's own layout convention.
	FieldChildren map[string][]float64

	NumChildren int
}

// Split generates 8 children for every cell with refine_flag > 0, below max
// level, and not geometry-locked (spec §4.4 Stage B). Field values are
// interpolated per the field's own SplitRule.
func Split(m *mesh.Mesh, cfg mesh.Config) (SplitResult, error) {
	res := SplitResult{ParentToChildStart: make(map[uint32]int)}

	for i := 0; i < m.NumCells; i++ {
		if m.RefineFlag[i] <= 0 {
			continue
		}
		if int(m.Level[i]) >= cfg.MaxRefinementLevel {
			continue
		}
		if m.State[i].IsGeometryLocked(cfg.AllowModifyingGeomMove) {
			continue
		}

		res.ParentToChildStart[uint32(i)] = res.NumChildren
		res.ParentSlots = append(res.ParentSlots, uint32(i))

		parent := m.Coord(i)
		for q := uint8(0); q < 8; q++ {
			child := parent.Child(q)
			res.ChildX = append(res.ChildX, child.X)
			res.ChildY = append(res.ChildY, child.Y)
			res.ChildZ = append(res.ChildZ, child.Z)
			res.ChildLevel = append(res.ChildLevel, child.Level)
			res.ChildMaterialID = append(res.ChildMaterialID, m.MaterialID[i])
			res.ChildState = append(res.ChildState, m.State[i])
		}
		res.NumChildren += 8
	}

	res.FieldChildren = make(map[string][]float64, len(m.Fields.Names()))
	for _, name := range m.Fields.Names() {
		f := m.Fields.Get(name)
		data := make([]float64, f.Components*res.NumChildren)
		for pIdx, parentSlot := range res.ParentSlots {
			base := pIdx * 8
			for c := 0; c < f.Components; c++ {
				v := f.At(c, int(parentSlot), m.Capacity)
				if f.SplitRule == mesh.SplitNormalizedCopy {
					v /= 8
				}
				for q := 0; q < 8; q++ {
					data[c*res.NumChildren+base+q] = v
				}
			}
		}
		res.FieldChildren[name] = data
	}

	return res, nil
}
