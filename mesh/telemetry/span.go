package telemetry

import "time"

// Span times one named operation and emits a single complete (X) event on
// End, rather than a separate B/E pair — the common case for the engine's
// per-node and per-exchange timings (spec §4.8 "record per-node timing").
type Span struct {
	sink     Sink
	name     string
	category string
	tid      int
	start    time.Time
}

// StartSpan begins timing name/category on sink, tagged with a caller-chosen
// logical lane id (tid) — the engine passes its rank; there is no OS thread to report since work is goroutine-scheduled.
func StartSpan(sink Sink, name, category string, tid int) *Span {
	return &Span{sink: sink, name: name, category: category, tid: tid, start: time.Now()}
}

// End emits the completed span as a single PhaseComplete event.
func (s *Span) End() {
	now := time.Now()
	s.sink.Emit(Event{
		Name:     s.name,
		Category: s.category,
		Phase:    PhaseComplete,
		TsUs:     s.start.UnixMicro(),
		DurUs:    now.Sub(s.start).Microseconds(),
		TID:      s.tid,
	})
}

// EmitInstant records a single zero-duration PhaseComplete event at the
// current time,
// for point-in-time events (e.g. a rebalance trigger) that have no span to
// close.
func EmitInstant(sink Sink, name, category string, tid int) {
	now := time.Now().UnixMicro()
	sink.Emit(Event{Name: name, Category: category, Phase: PhaseComplete, TsUs: now, DurUs: 0, TID: tid})
}
