package dag

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fedres/fluidloom-sub000/mesh"
)

// Event is a single node's completion signal (spec §4.8 "collect completion
// events of its predecessors"). It plays the role the original's cl_event
// plays for a single backend; here it is backend-agnostic so kernel, halo,
// and adapt/rebalance nodes can all produce one the same way.
type Event interface {
	Done() <-chan struct{}
	Err() error
}

type event struct {
	done chan struct{}
	err  error
}

func newEvent() *event { return &event{done: make(chan struct{})} }

func (e *event) Done() <-chan struct{} { return e.done }
func (e *event) Err() error            { return e.err }
func (e *event) complete(err error) {
	e.err = err
	close(e.done)
}

// NewImmediateEvent returns an already-completed Event carrying err. Useful
// for Launch implementations (and tests) that run synchronously.
func NewImmediateEvent(err error) Event {
	e := newEvent()
	e.complete(err)
	return e
}

// NewManualEvent returns an Event plus the function that completes it,
// for Launch implementations that hand off to a goroutine.
func NewManualEvent() (Event, func(error)) {
	e := newEvent()
	return e, e.complete
}

// Launch runs one node given the union of its predecessors' completion
// events as a wait set, and returns this node's own completion event. The
// engine supplies one Launch implementation per node Kind (kernel dispatch,
// halo exchange, adapt cycle, rebalance cycle, barrier no-op).
type Launch func(ctx context.Context, n *Node, waitFor []Event) (Event, error)

// NodeTiming records one node's wall-clock execution time, populated after
// its event completes (spec §4.8 "Record per-node timing").
type NodeTiming struct {
	NodeID  int64
	Elapsed time.Duration
}

// RunReport summarizes one scheduler pass (spec §4.8 "Scheduling").
type RunReport struct {
	Timings   []NodeTiming
	Cancelled bool
}

// Run walks g's topological order launching each node with the union of its
// predecessors' events as its wait set (spec §4.8, grounded on
// original_source/src/runtime/scheduler/TopologicalScheduler.cpp's
// per-node-event-map execute loop, generalized from "last event" to the
// full union the spec calls for). A launch failure marks the step failed
// and aborts remaining launches (spec §4.8 "Failure semantics"); ctx
// cancellation skips nodes not yet launched but lets any already in flight
// run to completion before Run returns (spec §5 "Cancellation").
func Run(ctx context.Context, g *Graph, launch Launch) (RunReport, error) {
	events := make(map[int64]Event, len(g.Nodes))
	launchedAt := make(map[int64]time.Time, len(g.Nodes))
	report := RunReport{}

	for _, idx := range g.TopologicalOrder {
		n := g.Nodes[idx]

		select {
		case <-ctx.Done():
			report.Cancelled = true
			break
		default:
		}
		if report.Cancelled {
			break
		}

		waitFor := make([]Event, 0, len(n.Predecessors))
		for _, p := range n.Predecessors {
			if ev, ok := events[g.Nodes[p].ID]; ok {
				waitFor = append(waitFor, ev)
			}
		}

		launchedAt[n.ID] = time.Now()
		ev, err := launch(ctx, n, waitFor)
		if err != nil {
			logrus.WithFields(logrus.Fields{"node": n.Name, "kind": n.Kind.String()}).
				WithError(err).Error("dag: node launch failed, aborting remaining nodes")
			return report, mesh.NewProtocolError("dag.run", "node launch failed: "+n.Name)
		}
		events[n.ID] = ev
	}

	for _, n := range g.Nodes {
		ev, ok := events[n.ID]
		if !ok {
			continue
		}
		<-ev.Done()
		report.Timings = append(report.Timings, NodeTiming{NodeID: n.ID, Elapsed: time.Since(launchedAt[n.ID])})
		if err := ev.Err(); err != nil {
			return report, mesh.NewProtocolError("dag.run", "node completed with error")
		}
	}

	return report, nil
}
