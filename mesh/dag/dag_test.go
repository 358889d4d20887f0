package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldVersionTrackerIncrementAndLastWriter(t *testing.T) {
	tr := NewFieldVersionTracker()
	tr.RegisterField("rho")
	require.Equal(t, uint64(0), tr.Version("rho"))
	require.Equal(t, int64(-1), tr.LastWriter("rho"))

	v := tr.IncrementVersion("rho", 7)
	require.Equal(t, uint64(1), v)
	require.Equal(t, int64(7), tr.LastWriter("rho"))

	require.Equal(t, uint64(0), tr.Epoch())
	require.Equal(t, uint64(1), tr.IncrementEpoch())
}

func TestAnalyzeHazardsDetectsRAWWAWWAR(t *testing.T) {
	a := &Node{Name: "A", Kind: KindKernel, WriteFields: []string{"rho"}, Level: NoLevel}
	b := &Node{Name: "B", Kind: KindKernel, ReadFields: []string{"rho"}, WriteFields: []string{"rho"}, Level: NoLevel}
	c := &Node{Name: "C", Kind: KindKernel, WriteFields: []string{"rho"}, Level: NoLevel}

	hazards := AnalyzeHazards([]*Node{a, b, c})

	has := func(from, to int, typ HazardType) bool {
		for _, h := range hazards {
			if h.FromIdx == from && h.ToIdx == to && h.Type == typ {
				return true
			}
		}
		return false
	}
	require.True(t, has(0, 1, HazardRAW), "A writes rho, B reads rho")
	require.True(t, has(0, 1, HazardWAW), "A and B both write rho")
	require.True(t, has(1, 2, HazardWAR), "B reads rho, C writes rho (A<B<C already ordered)")
}

func TestAnalyzeHazardsLevelBarrier(t *testing.T) {
	a := &Node{Name: "A", Kind: KindKernel, Level: 1}
	b := &Node{Name: "B", Kind: KindKernel, Level: 2}
	hazards := AnalyzeHazards([]*Node{a, b})
	require.Len(t, hazards, 1)
	require.Equal(t, HazardLevelBarrier, hazards[0].Type)
}

func TestInsertHaloNodesPrecedesHighHaloDepthKernels(t *testing.T) {
	plain := &Node{Name: "advect", Kind: KindKernel, HaloDepth: 0}
	needsHalo := &Node{Name: "diffuse", Kind: KindKernel, HaloDepth: 1, ReadFields: []string{"rho"}}

	out := InsertHaloNodes([]*Node{plain, needsHalo})

	require.Len(t, out, 3)
	require.Equal(t, KindKernel, out[0].Kind)
	require.Equal(t, KindHalo, out[1].Kind)
	require.Equal(t, KindKernel, out[2].Kind)
	require.Equal(t, []string{"rho"}, out[1].ReadFields)
}

// P9: the built graph contains no cycles and the topological order respects
// every hazard edge.
func TestBuildTopologicalOrderRespectsHazardEdges_P9(t *testing.T) {
	write := &Node{Name: "write_rho", Kind: KindKernel, WriteFields: []string{"rho"}, Level: NoLevel}
	read := &Node{Name: "read_rho", Kind: KindKernel, ReadFields: []string{"rho"}, Level: NoLevel, HaloDepth: 1}
	nodes := InsertHaloNodes([]*Node{write, read})

	g, err := Build(nodes)
	require.NoError(t, err)
	require.Len(t, g.TopologicalOrder, 3)

	pos := make(map[int64]int, len(g.Nodes))
	for rank, idx := range g.TopologicalOrder {
		pos[g.Nodes[idx].ID] = rank
	}
	for _, n := range g.Nodes {
		for _, p := range n.Predecessors {
			require.Less(t, pos[g.Nodes[p].ID], pos[n.ID], "predecessor must precede %s in topological order", n.Name)
		}
	}
}

func TestBuildRejectsCycles(t *testing.T) {
	a := &Node{Name: "A", Kind: KindKernel}
	b := &Node{Name: "B", Kind: KindKernel}
	a.ID, b.ID = 0, 1
	a.Successors = []int{1}
	b.Successors = []int{0}
	// Build reassigns IDs and recomputes edges from hazards/halo adjacency
	// only, so to exercise cycle rejection directly we go through kahnSort
	// with a hand-built cyclic adjacency.
	nodes := []*Node{a, b}
	_, err := kahnSort(nodes)
	require.Error(t, err)
}

func TestRunLaunchesInTopologicalOrderAndRecordsTimings(t *testing.T) {
	write := &Node{Name: "write_rho", Kind: KindKernel, WriteFields: []string{"rho"}}
	read := &Node{Name: "read_rho", Kind: KindKernel, ReadFields: []string{"rho"}}
	g, err := Build([]*Node{write, read})
	require.NoError(t, err)

	var launchOrder []string
	launch := func(ctx context.Context, n *Node, waitFor []Event) (Event, error) {
		for _, ev := range waitFor {
			<-ev.Done()
		}
		launchOrder = append(launchOrder, n.Name)
		return NewImmediateEvent(nil), nil
	}

	report, err := Run(context.Background(), g, launch)
	require.NoError(t, err)
	require.False(t, report.Cancelled)
	require.Equal(t, []string{"write_rho", "read_rho"}, launchOrder)
	require.Len(t, report.Timings, 2)
}

func TestRunAbortsRemainingLaunchesOnFailure(t *testing.T) {
	a := &Node{Name: "A", Kind: KindKernel}
	b := &Node{Name: "B", Kind: KindKernel}
	g, err := Build([]*Node{a, b})
	require.NoError(t, err)

	launched := 0
	launch := func(ctx context.Context, n *Node, waitFor []Event) (Event, error) {
		launched++
		if n.Name == "A" {
			return nil, context.DeadlineExceeded
		}
		return NewImmediateEvent(nil), nil
	}

	_, err = Run(context.Background(), g, launch)
	require.Error(t, err)
	require.Equal(t, 1, launched, "B must not launch after A fails")
}
