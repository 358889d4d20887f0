// Package engine wires the mesh core's packages into the single host
// orchestration thread spec §5 describes: one Engine per process/GPU,
// coordinating with its peers only through transport.Transport. It owns no
// adaptation or partition logic of its own — adapt.Run and the partition
// package do the work; the Engine's job is sequencing, not algorithms.
package engine

import (
	"context"

	"github.com/fedres/fluidloom-sub000/mesh"
	"github.com/fedres/fluidloom-sub000/mesh/adapt"
	"github.com/fedres/fluidloom-sub000/mesh/dag"
	"github.com/fedres/fluidloom-sub000/mesh/halo"
	"github.com/fedres/fluidloom-sub000/mesh/partition"
	"github.com/fedres/fluidloom-sub000/mesh/telemetry"
	"github.com/fedres/fluidloom-sub000/mesh/transport"
)

// Engine owns one rank's mesh, hash index, halo manager, and migrator, and
// drives them through the execution DAG scheduler.
type Engine struct {
	Rank     int
	NumRanks int

	Config mesh.Config
	Mesh   *mesh.Mesh

	HashIndex *mesh.HashIndex
	Versions  *dag.FieldVersionTracker

	Transport transport.Transport
	Halo      *halo.ExchangeManager
	Migrator  *partition.Migrator

	Telemetry telemetry.Sink

	StepsSinceRebalance int64

	haloNeighborOf       halo.NeighborInfo
	haloMaxCellsPerRange int
}

// New constructs an Engine over an already-allocated mesh. Callers populate
// fields and call AttachHalo to build the ghost-range/layout before the
// first Step.
func New(rank, numRanks int, cfg mesh.Config, m *mesh.Mesh, tr transport.Transport, sink telemetry.Sink) *Engine {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Engine{
		Rank:      rank,
		NumRanks:  numRanks,
		Config:    cfg,
		Mesh:      m,
		Versions:  dag.NewFieldVersionTracker(),
		Transport: tr,
		Migrator:  &partition.Migrator{Rank: rank, Transport: tr},
		Telemetry: sink,
	}
}

// AttachHalo builds the ghost-range table and exchange manager from the
// mesh's current topology (spec §4.5), remembering neighborOf and
// maxCellsPerRange so Adapt and Rebalance can rebuild it automatically
// once topology changes (spec §4.4 step 6 / §4.7 step 6: "rebuild hash
// index and ghost ranges" as one atomic post-topology-change step).
func (e *Engine) AttachHalo(neighborOf halo.NeighborInfo, maxCellsPerRange int) {
	e.haloNeighborOf = neighborOf
	e.haloMaxCellsPerRange = maxCellsPerRange
	e.rebuildHalo()
}

// rebuildHalo reconstructs ghost ranges and the exchange manager from the
// engine's current mesh and hash index. A no-op until AttachHalo has run
// once.
func (e *Engine) rebuildHalo() {
	if e.haloNeighborOf == nil {
		return
	}
	ranges := halo.BuildGhostRanges(e.Mesh, e.HashIndex, e.haloNeighborOf)
	fields := make([]*mesh.Field, 0, len(e.Mesh.Fields.Names()))
	for _, name := range e.Mesh.Fields.Names() {
		fields = append(fields, e.Mesh.Fields.Get(name))
	}
	layout := halo.NewPackBufferLayout(fields)
	e.Halo = halo.NewExchangeManager(layout, e.haloMaxCellsPerRange, e.Transport, ranges)
}

// RegisterField adds a field to the mesh and starts tracking its version.
func (e *Engine) RegisterField(name string, components, haloDepth int, merge mesh.MergeRule, split mesh.SplitRule) *mesh.Field {
	f := e.Mesh.Fields.Register(name, components, haloDepth, merge, split)
	e.Versions.RegisterField(name)
	return f
}

// fieldIndex returns the registration-order index of name within the
// mesh's field set, matching the index the pack-buffer layout expects.
func (e *Engine) fieldIndex(name string) int {
	for i, n := range e.Mesh.Fields.Names() {
		if n == name {
			return i
		}
	}
	return -1
}

// StepReport summarizes one DAG-scheduled step (spec §4.8 "Scheduling").
type StepReport struct {
	dag.RunReport
}

// Step builds the execution DAG for one set of caller-supplied kernel
// nodes, inserts halo nodes where HaloDepth > 0, and runs the topological
// schedule (spec §4.8). kernelLaunch dispatches KindKernel/KindFused nodes
// only — the engine has no DSL/kernel knowledge of its own (spec §6); every
// other node kind is dispatched internally.
func (e *Engine) Step(ctx context.Context, kernelNodes []*dag.Node, kernelLaunch dag.Launch) (StepReport, error) {
	nodes := dag.InsertHaloNodes(kernelNodes)
	g, err := dag.Build(nodes)
	if err != nil {
		return StepReport{}, err
	}

	report, err := dag.Run(ctx, g, e.dispatch(kernelLaunch))
	e.StepsSinceRebalance++
	return StepReport{RunReport: report}, err
}

// dispatch wraps kernelLaunch with the engine's own handling of halo,
// barrier, and adapt node kinds, and times every node through Telemetry
// (spec §4.8 "record per-node timing"). Rebalance is deliberately not
// dispatched from within a DAG node: computing new split points requires
// gathering global counts across ranks, a coordination step outside
// Transport's minimal send/recv/p2p surface (spec §4.6), so Rebalance is
// invoked directly by the caller between steps instead (see Rebalance).
func (e *Engine) dispatch(kernelLaunch dag.Launch) dag.Launch {
	return func(ctx context.Context, n *dag.Node, waitFor []dag.Event) (dag.Event, error) {
		for _, ev := range waitFor {
			<-ev.Done()
		}

		span := telemetry.StartSpan(e.Telemetry, n.Name, n.Kind.String(), e.Rank)
		defer span.End()

		switch n.Kind {
		case dag.KindKernel, dag.KindFused:
			return kernelLaunch(ctx, n, nil)
		case dag.KindHalo:
			return dag.NewImmediateEvent(e.runHaloNode(ctx, n)), nil
		case dag.KindBarrier:
			return dag.NewImmediateEvent(nil), nil
		case dag.KindAdapt:
			_, err := e.Adapt()
			return dag.NewImmediateEvent(err), nil
		default:
			return dag.NewImmediateEvent(mesh.NewProtocolError("engine.dispatch", "unknown node kind")), nil
		}
	}
}

func (e *Engine) runHaloNode(ctx context.Context, n *dag.Node) error {
	if e.Halo == nil {
		return nil
	}
	for _, name := range n.ReadFields {
		idx := e.fieldIndex(name)
		if idx < 0 {
			continue
		}
		f := e.Mesh.Fields.Get(name)
		if err := e.Halo.Exchange(ctx, idx, f, e.Mesh.Capacity); err != nil {
			return err
		}
	}
	return nil
}

// Adapt runs one adaptation cycle and refreshes the engine's hash index and
// ghost ranges from the result (spec §4.4 Stage D step 6: "rebuild hash
// index and ghost ranges over the new mesh").
func (e *Engine) Adapt() (adapt.CycleReport, error) {
	report, err := adapt.Run(e.Mesh, e.Config)
	if err != nil {
		return report, err
	}
	if report.Compact.HashIndex != nil {
		e.HashIndex = report.Compact.HashIndex
	}
	e.Versions.IncrementEpoch()
	e.rebuildHalo()
	return report, nil
}

// LocalExtent returns this rank's Hilbert-key span and active cell count,
// the input the partition package's split-point and migration-plan
// computations need (spec §4.7).
func (e *Engine) LocalExtent() (min, max mesh.HilbertIndex, count int64) {
	min, max = mesh.EmptyKey, mesh.EmptyKey
	for i := 0; i < e.Mesh.NumCells; i++ {
		if e.Mesh.State[i] == mesh.StateUnallocated {
			continue
		}
		key := e.Mesh.Coord(i).Hilbert()
		if min == mesh.EmptyKey || key < min {
			min = key
		}
		if max == mesh.EmptyKey || key > max {
			max = key
		}
		count++
	}
	return min, max, count
}

// Rebalance executes one migration cycle against caller-supplied old/new
// split points (spec §4.7): gathering global counts and computing split
// points is a cross-rank coordination concern outside Transport's minimal
// send/recv/p2p surface (spec §4.6), so callers compute newSplits via
// partition.ComputeSplitPoints over extents collected by whatever
// coordination layer the deployment provides, then hand the result here.
// Step 6 ("rebuild hash index and ghost ranges; reset rebalance counter")
// runs unconditionally on success.
func (e *Engine) Rebalance(ctx context.Context, newSplits, currentSplits []mesh.HilbertIndex) (partition.MigrationPlan, error) {
	min, max, count := e.LocalExtent()
	plan := partition.CreateMigrationPlan(e.Rank, e.NumRanks, newSplits, currentSplits, min, max, count)
	if plan.IsTooSlow(e.Config.LoadBalancer) {
		return plan, mesh.NewConvergenceWarning("engine.rebalance", "migration plan exceeds max_migration_time_ms")
	}
	if err := e.Migrator.Migrate(ctx, e.Mesh, plan); err != nil {
		return plan, err
	}

	idx, perm, err := mesh.RebuildFromMesh(e.Mesh)
	if err != nil {
		return plan, err
	}
	e.Mesh.Permute(perm)
	e.Mesh.NumCells = int(idx.Size())
	e.HashIndex = idx
	e.StepsSinceRebalance = 0
	e.rebuildHalo()
	return plan, nil
}
