package dag

import "github.com/fedres/fluidloom-sub000/mesh"

// Graph is the immutable, topologically-ordered dependency graph (spec
// §4.8 "Graph construction... immutable after construction"). Predecessor/
// successor edges are plain int indices into Nodes, never pointers — this
// keeps the graph trivially Send/Sync-friendly (spec §9 "Cyclic
// references").
type Graph struct {
	Nodes            []*Node
	TopologicalOrder []int
	Hazards          []Hazard
}

type edge struct{ from, to int }

// Build assigns IDs, wires halo→kernel edges, runs hazard analysis, computes
// in-degree, and Kahn-sorts the result (spec §4.8 "Graph construction").
// nodes should already have had InsertHaloNodes applied. Build rejects
// cyclic input with a ProtocolError, since a cycle can only arise from a
// caller-supplied read/write set that is self-contradictory.
func Build(nodes []*Node) (*Graph, error) {
	for i, n := range nodes {
		n.ID = int64(i)
		n.Predecessors = nil
		n.Successors = nil
	}

	var edges []edge
	for i := 0; i+1 < len(nodes); i++ {
		if nodes[i].Kind == KindHalo && nodes[i+1].Kind == KindKernel {
			edges = append(edges, edge{i, i + 1})
		}
	}

	hazards := AnalyzeHazards(nodes)
	for _, h := range hazards {
		edges = append(edges, edge{h.FromIdx, h.ToIdx})
	}

	edges = dedupeEdges(edges)
	for _, e := range edges {
		nodes[e.from].Successors = append(nodes[e.from].Successors, e.to)
		nodes[e.to].Predecessors = append(nodes[e.to].Predecessors, e.from)
	}

	order, err := kahnSort(nodes)
	if err != nil {
		return nil, err
	}

	return &Graph{Nodes: nodes, TopologicalOrder: order, Hazards: hazards}, nil
}

func dedupeEdges(edges []edge) []edge {
	seen := make(map[edge]bool, len(edges))
	out := make([]edge, 0, len(edges))
	for _, e := range edges {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// kahnSort runs Kahn's algorithm over nodes' successor lists, returning an
// error if the result omits any node (a cycle).
func kahnSort(nodes []*Node) ([]int, error) {
	inDegree := make([]int, len(nodes))
	for _, n := range nodes {
		for _, s := range n.Successors {
			inDegree[s]++
		}
	}

	var ready []int
	for i, d := range inDegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(nodes))
	for len(ready) > 0 {
		idx := ready[0]
		ready = ready[1:]
		order = append(order, idx)
		for _, s := range nodes[idx].Successors {
			inDegree[s]--
			if inDegree[s] == 0 {
				ready = append(ready, s)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, mesh.NewProtocolError("dag.build", "dependency graph contains a cycle")
	}
	return order, nil
}
