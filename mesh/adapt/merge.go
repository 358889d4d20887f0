package adapt

import "github.com/fedres/fluidloom-sub000/mesh"

// MergeResult holds the parent cells produced by Stage C, plus which old
// slots they absorb (spec §4.4 Stage C: "merged_child_indices" and
// "group_to_parent").
type MergeResult struct {
	ParentX, ParentY, ParentZ []int32
	ParentLevel               []uint8
	ParentMaterialID          []uint32
	ParentState               []mesh.CellState

	// SiblingSlots[g] holds the 8 old slots absorbed by accepted group g, in
	// child-quadrant (q=0..7) order.
	SiblingSlots [][8]uint32
	MergedSlots  map[uint32]bool

	FieldParents map[string][]float64

	NumParents int
}

// Merge accepts sibling groups whose all 8 members are present, flagged for
// merge, same material, and non-locked (spec §4.4 Stage C). Group identity
// is the parent triple (x>>1,y>>1,z>>1); field values on the parent use the
// field's own MergeRule.
func Merge(m *mesh.Mesh, cfg mesh.Config) (MergeResult, error) {
	res := MergeResult{MergedSlots: make(map[uint32]bool)}

	coordToSlot := make(map[mesh.Coord]int, m.NumCells)
	for i := 0; i < m.NumCells; i++ {
		if m.State[i] == mesh.StateUnallocated {
			continue
		}
		coordToSlot[m.Coord(i)] = i
	}

	visited := make(map[mesh.Coord]bool)

	for i := 0; i < m.NumCells; i++ {
		if m.State[i] == mesh.StateUnallocated || m.RefineFlag[i] != -1 {
			continue
		}
		c := m.Coord(i)
		if c.Level == 0 {
			continue // level 0 has no parent to merge into
		}
		parent := c.Parent()
		if visited[parent] {
			continue
		}
		visited[parent] = true

		var siblings [8]uint32
		ok := true
		for q := uint8(0); q < 8 && ok; q++ {
			childCoord := parent.Child(q)
			slot, found := coordToSlot[childCoord]
			if !found {
				ok = false
				break
			}
			if m.RefineFlag[slot] != -1 {
				ok = false
				break
			}
			if m.State[slot].IsGeometryLocked(cfg.AllowModifyingGeomMove) {
				ok = false
				break
			}
			siblings[q] = uint32(slot)
		}
		if !ok {
			continue
		}

		mat := m.MaterialID[siblings[0]]
		for _, s := range siblings[1:] {
			if m.MaterialID[s] != mat {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		res.ParentX = append(res.ParentX, parent.X)
		res.ParentY = append(res.ParentY, parent.Y)
		res.ParentZ = append(res.ParentZ, parent.Z)
		res.ParentLevel = append(res.ParentLevel, parent.Level)
		res.ParentMaterialID = append(res.ParentMaterialID, mat)
		res.ParentState = append(res.ParentState, m.State[siblings[0]])
		res.SiblingSlots = append(res.SiblingSlots, siblings)
		for _, s := range siblings {
			res.MergedSlots[s] = true
		}
		res.NumParents++
	}

	res.FieldParents = make(map[string][]float64, len(m.Fields.Names()))
	for _, name := range m.Fields.Names() {
		f := m.Fields.Get(name)
		data := make([]float64, f.Components*res.NumParents)
		for g, siblings := range res.SiblingSlots {
			for c := 0; c < f.Components; c++ {
				var sum float64
				for _, s := range siblings {
					sum += f.At(c, int(s), m.Capacity)
				}
				// MergeArithmeticMean and MergeVolumeWeighted coincide at
				// uniform sibling volume (see fields.go's MergeVolumeWeighted
				// doc); both average equally here.
				data[c*res.NumParents+g] = sum / 8
			}
		}
		res.FieldParents[name] = data
	}

	return res, nil
}
