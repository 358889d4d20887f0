package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"
)

// LogrusSink renders each event as a structured logrus entry, the
// production-path default (grounded on the teacher's own logrus-everywhere
// convention — see mesh/hashindex.go, mesh/adapt/*.go — rather than a
// bespoke telemetry backend).
type LogrusSink struct {
	logger *logrus.Logger
	pid    int
}

// NewLogrusSink wraps logger (logrus.StandardLogger() if nil) for telemetry
// emission at Debug level, since these events are a diagnostic stream, not
// operator-facing output.
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusSink{logger: logger, pid: os.Getpid()}
}

func (s *LogrusSink) Emit(e Event) {
	if e.PID == 0 {
		e.PID = s.pid
	}
	s.logger.WithFields(logrus.Fields{
		"category": e.Category,
		"phase":    string(e.Phase),
		"ts_us":    e.TsUs,
		"dur_us":   e.DurUs,
		"pid":      e.PID,
		"tid":      e.TID,
	}).Debug(e.Name)
}
