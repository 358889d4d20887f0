package dag

// HazardType identifies which of the three data hazards, or the AMR
// level-barrier constraint, produced an edge (spec §4.8).
type HazardType int

const (
	HazardRAW HazardType = iota
	HazardWAW
	HazardWAR
	HazardLevelBarrier
)

// Hazard is one detected ordering constraint between two nodes by index
// into the node slice the analyzer was given.
type Hazard struct {
	FromIdx, ToIdx int
	Field          string
	Type           HazardType
}

// AnalyzeHazards finds every RAW/WAW/WAR/level-barrier pair over a flat,
// already-ordered node list (spec §4.8, grounded on
// original_source/src/runtime/dependency/HazardAnalyzer.cpp's four detect*
// passes — collapsed from four O(n^2) loops over shared_ptr vectors into one
// combined O(n^2) pairwise loop over a plain slice).
func AnalyzeHazards(nodes []*Node) []Hazard {
	var hazards []Hazard
	for i := 0; i < len(nodes); i++ {
		a := nodes[i]
		for j := i + 1; j < len(nodes); j++ {
			b := nodes[j]

			for _, f := range a.WriteFields {
				if b.readsField(f) {
					hazards = append(hazards, Hazard{FromIdx: i, ToIdx: j, Field: f, Type: HazardRAW})
				}
			}
			for _, f := range a.WriteFields {
				if b.writesField(f) {
					hazards = append(hazards, Hazard{FromIdx: i, ToIdx: j, Field: f, Type: HazardWAW})
				}
			}
			for _, f := range a.ReadFields {
				if b.writesField(f) {
					hazards = append(hazards, Hazard{FromIdx: i, ToIdx: j, Field: f, Type: HazardWAR})
				}
			}
			if a.Level != NoLevel && b.Level != NoLevel && a.Level != b.Level {
				hazards = append(hazards, Hazard{FromIdx: i, ToIdx: j, Type: HazardLevelBarrier})
			}
		}
	}
	return hazards
}

// InsertHaloNodes inserts a KindHalo node immediately before every kernel
// node declaring HaloDepth > 0, reading the same fields the kernel reads
// (spec §4.8 "Halo insertion", grounded on
// original_source/src/runtime/scheduler/HaloInserter.cpp). IDs are assigned
// to the inserted nodes by the caller's subsequent Build call, not here.
func InsertHaloNodes(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes)*2)
	for _, n := range nodes {
		if n.Kind == KindKernel && n.HaloDepth > 0 {
			halo := &Node{
				Name:       "halo_" + n.Name,
				Kind:       KindHalo,
				ReadFields: append([]string(nil), n.ReadFields...),
				Level:      n.Level,
			}
			out = append(out, halo)
		}
		out = append(out, n)
	}
	return out
}
