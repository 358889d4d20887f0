package adapt

import "github.com/fedres/fluidloom-sub000/mesh"

// CompactReport summarizes Stage D's rebuild.
type CompactReport struct {
	NumKept     int
	NumChildren int
	NumParents  int
	NumCells    int
	HashIndex   *mesh.HashIndex
}

// Compact scatters kept cells, newly split children, and newly merged
// parents into a fresh, Hilbert-ordered SoA buffer, then rebuilds the hash
// index (spec §4.4 Stage D). It is the only stage that changes m's cell set and
// layout; Balance only rewrites m.RefineFlag.
func Compact(m *mesh.Mesh, cfg mesh.Config, sp SplitResult, mg MergeResult) (CompactReport, error) {
	splitSlots := make(map[uint32]bool, len(sp.ParentSlots))
	for _, s := range sp.ParentSlots {
		splitSlots[s] = true
	}

	keptSlots := make([]int, 0, m.NumCells)
	for i := 0; i < m.NumCells; i++ {
		if m.State[i] == mesh.StateUnallocated {
			continue
		}
		if splitSlots[uint32(i)] || mg.MergedSlots[uint32(i)] {
			continue
		}
		keptSlots = append(keptSlots, i)
	}

	numKept := len(keptSlots)
	total := numKept + sp.NumChildren + mg.NumParents

	report := CompactReport{NumKept: numKept, NumChildren: sp.NumChildren, NumParents: mg.NumParents, NumCells: total}

	// Resize if needed: growth factor 1.5x, minimum size+1024 (spec §4.4
	// Stage D step 4). Mesh.Grow already takes the max of newCapacity and
	// capacity*growthFactor, so passing total+1024 covers both floors.
	if total > m.Capacity {
		m.Grow(uint32(total+1024), cfg.BufferGrowthFactor)
	}
	newCapacity := m.Capacity

	stagedX := make([]int32, newCapacity)
	stagedY := make([]int32, newCapacity)
	stagedZ := make([]int32, newCapacity)
	stagedLevel := make([]uint8, newCapacity)
	stagedState := make([]mesh.CellState, newCapacity)
	for i := total; i < newCapacity; i++ {
		stagedState[i] = mesh.StateUnallocated
	}
	stagedMaterial := make([]uint32, newCapacity)
	stagedFlag := make([]int8, newCapacity)

	stagedFields := make(map[string][]float64, len(m.Fields.Names()))
	for _, name := range m.Fields.Names() {
		f := m.Fields.Get(name)
		stagedFields[name] = make([]float64, f.Components*newCapacity)
	}

	write := 0
	writeField := func(name string, components, srcIdx int, src []float64, srcCapacity int) {
		dst := stagedFields[name]
		for c := 0; c < components; c++ {
			dst[c*newCapacity+write] = src[c*srcCapacity+srcIdx]
		}
	}

	// (a) scatter kept.
	for _, old := range keptSlots {
		stagedX[write] = m.CoordX[old]
		stagedY[write] = m.CoordY[old]
		stagedZ[write] = m.CoordZ[old]
		stagedLevel[write] = m.Level[old]
		stagedState[write] = m.State[old]
		stagedMaterial[write] = m.MaterialID[old]
		stagedFlag[write] = 0
		for _, name := range m.Fields.Names() {
			f := m.Fields.Get(name)
			writeField(name, f.Components, old, f.Data, m.Capacity)
		}
		write++
	}

	// (b) append children, in sibling order.
	for idx := 0; idx < sp.NumChildren; idx++ {
		stagedX[write] = sp.ChildX[idx]
		stagedY[write] = sp.ChildY[idx]
		stagedZ[write] = sp.ChildZ[idx]
		stagedLevel[write] = sp.ChildLevel[idx]
		stagedState[write] = sp.ChildState[idx]
		stagedMaterial[write] = sp.ChildMaterialID[idx]
		stagedFlag[write] = 0
		for _, name := range m.Fields.Names() {
			f := m.Fields.Get(name)
			writeField(name, f.Components, idx, sp.FieldChildren[name], sp.NumChildren)
		}
		write++
	}

	// (c) append new parents.
	for idx := 0; idx < mg.NumParents; idx++ {
		stagedX[write] = mg.ParentX[idx]
		stagedY[write] = mg.ParentY[idx]
		stagedZ[write] = mg.ParentZ[idx]
		stagedLevel[write] = mg.ParentLevel[idx]
		stagedState[write] = mg.ParentState[idx]
		stagedMaterial[write] = mg.ParentMaterialID[idx]
		stagedFlag[write] = 0
		for _, name := range m.Fields.Names() {
			f := m.Fields.Get(name)
			writeField(name, f.Components, idx, mg.FieldParents[name], mg.NumParents)
		}
		write++
	}

	m.SwapIn(stagedX, stagedY, stagedZ, stagedLevel, stagedState, stagedMaterial, stagedFlag, total, newCapacity)
	for _, name := range m.Fields.Names() {
		m.Fields.SetData(name, stagedFields[name])
	}
	m.Fields.SetCapacity(newCapacity)

	// Sort by Hilbert index (radix) and permute to restore I3, then rebuild
	// the hash index over the new mesh (spec §4.4 Stage D steps 5-6).
	idx, perm, err := mesh.RebuildFromMesh(m)
	if err != nil {
		return report, err
	}
	m.Permute(perm)
	m.NumCells = total

	report.HashIndex = idx
	return report, nil
}
