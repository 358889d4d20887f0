package adapt

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/fedres/fluidloom-sub000/mesh"
)

// CycleReport summarizes one full adaptation cycle (spec §4.4).
type CycleReport struct {
	Balance  BalanceReport
	Compact  CompactReport
	Warnings []error
}

// Run executes one adaptation cycle: Balance (optional), Split, Merge,
// Compact & rebuild, with conservation validation bracketing the whole
// cycle (spec §4.4's "pre- and post-stage totals" check).
//
// Failure semantics follow spec §4.4 exactly: balance non-convergence is
// reported as a warning but does not abort the cycle; compaction errors are
// fatal and returned as-is; a fatal conservation error is also returned,
// leaving the mesh in its already-compacted (post-Stage-D) state, since the
// spec documents no safe rollback path after compaction.
func Run(m *mesh.Mesh, cfg mesh.Config) (CycleReport, error) {
	var report CycleReport

	before := conservativeTotals(m)

	balanceReport, err := Balance(m, cfg)
	report.Balance = balanceReport
	if err != nil {
		if merr, ok := err.(*mesh.MeshError); ok && !merr.Fatal() {
			report.Warnings = append(report.Warnings, err)
		} else {
			return report, err
		}
	}

	splitRes, err := Split(m, cfg)
	if err != nil {
		return report, err
	}
	mergeRes, err := Merge(m, cfg)
	if err != nil {
		return report, err
	}

	compactReport, err := Compact(m, cfg, splitRes, mergeRes)
	report.Compact = compactReport
	if err != nil {
		return report, err
	}

	after := conservativeTotals(m)
	if cerr := checkConservation(cfg, before, after); cerr != nil {
		if cerr.Fatal() {
			return report, cerr
		}
		report.Warnings = append(report.Warnings, cerr)
	}

	logrus.Debugf("adapt: cycle complete kept=%d children=%d parents=%d total=%d",
		compactReport.NumKept, compactReport.NumChildren, compactReport.NumParents, compactReport.NumCells)

	return report, nil
}

// conservativeTotals sums every registered field's every component over
// active cells, used to validate P5/spec §4.4's conservation check.
func conservativeTotals(m *mesh.Mesh) map[string]float64 {
	totals := make(map[string]float64, len(m.Fields.Names()))
	for _, name := range m.Fields.Names() {
		f := m.Fields.Get(name)
		var sum float64
		for i := 0; i < m.NumCells; i++ {
			if m.State[i] == mesh.StateUnallocated {
				continue
			}
			for c := 0; c < f.Components; c++ {
				sum += f.At(c, i, m.Capacity)
			}
		}
		totals[name] = sum
	}
	return totals
}

// checkConservation compares pre/post totals against cfg.ConservationTolerance
// (spec §4.4 / P5). When validate_conservation is false the same drift is
// reported as a non-fatal warning instead of being suppressed outright,
// matching §7's "fatal if validate_conservation, else downgraded to
// warning" policy.
func checkConservation(cfg mesh.Config, before, after map[string]float64) *mesh.MeshError {
	for name, b := range before {
		a := after[name]
		if b == 0 {
			continue
		}
		drift := math.Abs(a-b) / math.Abs(b)
		if drift <= cfg.ConservationTolerance {
			continue
		}
		msg := fmt.Sprintf("field %q drifted by %.6g (tolerance %.6g): before=%.6g after=%.6g",
			name, drift, cfg.ConservationTolerance, b, a)
		if cfg.ValidateConservation {
			return mesh.NewConservationError("adapt.conserve", msg)
		}
		// KindConservation is hardcoded fatal in MeshError.Fatal(), so the
		// non-fatal downgrade reuses KindConvergence (NewConvergenceWarning) rather than
		// adding a second, always-non-fatal conservation kind.
		return mesh.NewConvergenceWarning("adapt.conserve", msg)
	}
	return nil
}
