package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedres/fluidloom-sub000/mesh"
	"github.com/fedres/fluidloom-sub000/mesh/dag"
	"github.com/fedres/fluidloom-sub000/mesh/telemetry"
	"github.com/fedres/fluidloom-sub000/mesh/transport"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	m := mesh.NewMesh(16)
	cfg := mesh.DefaultConfig()
	sink := telemetry.NewMemorySink()
	e := New(0, 1, cfg, m, nil, sink)
	e.RegisterField("rho", 1, 0, mesh.MergeArithmeticMean, mesh.SplitCopyFromParent)
	return e
}

func TestStepRunsKernelNodeAndRecordsTiming(t *testing.T) {
	e := newTestEngine(t)

	launched := false
	kernelLaunch := func(ctx context.Context, n *dag.Node, waitFor []dag.Event) (dag.Event, error) {
		launched = true
		return dag.NewImmediateEvent(nil), nil
	}

	node := &dag.Node{Name: "advect", Kind: dag.KindKernel, WriteFields: []string{"rho"}}
	report, err := e.Step(context.Background(), []*dag.Node{node}, kernelLaunch)

	require.NoError(t, err)
	require.True(t, launched)
	require.False(t, report.Cancelled)
	require.Len(t, report.Timings, 1)
	require.Equal(t, int64(1), e.StepsSinceRebalance)
}

func TestStepInsertsHaloNodeBeforeKernelWithHaloDepth(t *testing.T) {
	e := newTestEngine(t)

	var order []string
	kernelLaunch := func(ctx context.Context, n *dag.Node, waitFor []dag.Event) (dag.Event, error) {
		order = append(order, n.Name)
		return dag.NewImmediateEvent(nil), nil
	}

	node := &dag.Node{Name: "diffuse", Kind: dag.KindKernel, ReadFields: []string{"rho"}, HaloDepth: 1}
	report, err := e.Step(context.Background(), []*dag.Node{node}, kernelLaunch)

	require.NoError(t, err)
	require.Equal(t, []string{"diffuse"}, order)
	require.Len(t, report.Timings, 2, "halo node plus kernel node both get timed")
}

func TestStepAbortsOnKernelLaunchFailure(t *testing.T) {
	e := newTestEngine(t)

	kernelLaunch := func(ctx context.Context, n *dag.Node, waitFor []dag.Event) (dag.Event, error) {
		return nil, mesh.NewProtocolError("test", "boom")
	}

	node := &dag.Node{Name: "advect", Kind: dag.KindKernel}
	_, err := e.Step(context.Background(), []*dag.Node{node}, kernelLaunch)
	require.Error(t, err)
}

func TestAdaptRefreshesHashIndex(t *testing.T) {
	e := newTestEngine(t)
	c := mesh.Coord{X: 0, Y: 0, Z: 0, Level: 0}
	e.Mesh.AppendCell(c, mesh.StateFluid, 0)

	_, err := e.Adapt()
	require.NoError(t, err)
	require.NotNil(t, e.HashIndex)
}

// Rank 0 owns two cells inserted out of Hilbert order, so Adapt's Stage D
// compaction (which always re-sorts by Hilbert index) physically relocates
// them in the SoA. Adapt must rebuild ghost ranges over the new slots, not
// just the hash index, or the next exchange packs/unpacks the wrong cell
// (spec §4.4 Stage D step 6).
func TestAdaptRebuildsHaloRangesOverMovedCells(t *testing.T) {
	fab := transport.NewFabric()
	tr0 := transport.NewMockTransport(fab, 0)
	tr1 := transport.NewMockTransport(fab, 1)
	cfg := mesh.DefaultConfig()

	e0 := New(0, 2, cfg, mesh.NewMesh(16), tr0, telemetry.NewMemorySink())
	e1 := New(1, 2, cfg, mesh.NewMesh(16), tr1, telemetry.NewMemorySink())
	f0 := e0.RegisterField("rho", 1, 1, mesh.MergeArithmeticMean, mesh.SplitCopyFromParent)
	f1 := e1.RegisterField("rho", 1, 1, mesh.MergeArithmeticMean, mesh.SplitCopyFromParent)

	// Inserted in reverse Hilbert order: coordB (X=1) lands at slot 0,
	// coordA (X=0) at slot 1 — the opposite of where Compact's Hilbert sort
	// will put them.
	coordB := mesh.Coord{X: 1, Y: 0, Z: 0, Level: 1}
	coordA := mesh.Coord{X: 0, Y: 0, Z: 0, Level: 1}
	slotB := e0.Mesh.AppendCell(coordB, mesh.StateFluid, 0)
	slotA := e0.Mesh.AppendCell(coordA, mesh.StateFluid, 0)
	e1.Mesh.AppendCell(coordA, mesh.StateFluid, 0)

	f0.Set(0, slotB, 20.0, e0.Mesh.Capacity)
	f0.Set(0, slotA, 10.0, e0.Mesh.Capacity)
	f1.Set(0, 0, 0.0, e1.Mesh.Capacity)

	// coordA (X=0) is rank0's boundary cell facing rank1; coordB (X=1) is
	// interior.
	e0.AttachHalo(func(slot int) (int, uint8, bool) {
		c := e0.Mesh.Coord(slot)
		if c.X == 0 {
			return 1, c.Level, true
		}
		return 0, 0, false
	}, 4)
	e1.AttachHalo(func(slot int) (int, uint8, bool) { return 0, uint8(1), true }, 4)
	require.Len(t, e0.Halo.Ranges, 1)
	require.Equal(t, []uint32{uint32(slotA)}, e0.Halo.Ranges[0].CachedLocalIndices)

	_, err := e0.Adapt()
	require.NoError(t, err)
	require.Len(t, e0.Halo.Ranges, 1, "rebuildHalo must run after Adapt and still find the boundary cell")

	newSlotA := int(e0.Halo.Ranges[0].CachedLocalIndices[0])
	require.NotEqual(t, slotA, newSlotA, "Compact's Hilbert sort should have relocated coordA")
	require.Equal(t, 10.0, f0.At(0, newSlotA, e0.Mesh.Capacity), "coordA's value must follow it to its new slot")

	ctx := context.Background()
	errs := make(chan error, 2)
	go func() { errs <- e0.Halo.Exchange(ctx, 0, f0, e0.Mesh.Capacity) }()
	go func() { errs <- e1.Halo.Exchange(ctx, 0, f1, e1.Mesh.Capacity) }()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	require.Equal(t, 0.0, f0.At(0, newSlotA, e0.Mesh.Capacity), "exchange must write into coordA's post-adapt slot")
	for i := 0; i < e0.Mesh.NumCells; i++ {
		if i == newSlotA {
			continue
		}
		require.Equal(t, 20.0, f0.At(0, i, e0.Mesh.Capacity), "the untouched interior cell must not be overwritten")
	}
	require.Equal(t, 10.0, f1.At(0, 0, e1.Mesh.Capacity), "rank1 must receive coordA's pre-exchange value")
}

func TestLocalExtentCoversAppendedCells(t *testing.T) {
	e := newTestEngine(t)
	e.Mesh.AppendCell(mesh.Coord{X: 0, Y: 0, Z: 0, Level: 1}, mesh.StateFluid, 0)
	e.Mesh.AppendCell(mesh.Coord{X: 1, Y: 0, Z: 0, Level: 1}, mesh.StateFluid, 0)

	min, max, count := e.LocalExtent()
	require.Equal(t, int64(2), count)
	require.LessOrEqual(t, min, max)
}
