// Package adapt implements the four-stage adaptation pipeline (spec §4.4):
// balance, split, merge, and compact-and-rebuild.
package adapt

import (
	"github.com/sirupsen/logrus"

	"github.com/fedres/fluidloom-sub000/mesh"
)

// BalanceReport summarizes Stage A's iterative 2:1-balance enforcement.
type BalanceReport struct {
	Iterations             int
	Converged              bool
	ViolationsPerIteration []int
}

// shadowLevel computes L̂ = level + (refine_flag > 0 ? 1 : 0) for slot i.
func shadowLevel(m *mesh.Mesh, i int) int {
	l := int(m.Level[i])
	if m.RefineFlag[i] > 0 {
		l++
	}
	return l
}

// Balance propagates refinement intent across face-neighbor pairs until the
// 2:1 invariant I4 would hold, or max_balance_iterations is reached (spec
// §4.4 Stage A). It mutates m.RefineFlag in place and never touches topology
// directly — Stage B/C act on the flags it leaves behind.
func Balance(m *mesh.Mesh, cfg mesh.Config) (BalanceReport, error) {
	report := BalanceReport{}
	if !cfg.Enforce2To1Balance {
		report.Converged = true
		return report, nil
	}

	for iter := 0; iter < cfg.MaxBalanceIterations; iter++ {
		violations := 0
		for i := 0; i < m.NumCells; i++ {
			if m.State[i] == mesh.StateUnallocated {
				continue
			}
			ci := m.Coord(i)
			for j := i + 1; j < m.NumCells; j++ {
				if m.State[j] == mesh.StateUnallocated {
					continue
				}
				cj := m.Coord(j)
				if !mesh.FaceAdjacent(ci, cj) {
					continue
				}

				locked := m.State[i].IsGeometryLocked(cfg.AllowModifyingGeomMove) ||
					m.State[j].IsGeometryLocked(cfg.AllowModifyingGeomMove)
				if locked {
					continue
				}

				li, lj := shadowLevel(m, i), shadowLevel(m, j)
				diff := li - lj
				if diff < 0 {
					diff = -diff
				}
				if diff <= 1 {
					continue
				}

				// Mark the coarser side for split, unless it is already at
				// the configured max level.
				coarser, coarserLevel := i, li
				if lj < li {
					coarser, coarserLevel = j, lj
				}
				if coarserLevel >= cfg.MaxRefinementLevel {
					// Cannot split further; this pair cannot be resolved
					// this cycle and will surface as non-convergence.
					continue
				}
				if m.RefineFlag[coarser] <= 0 {
					m.RefineFlag[coarser] = 1
					violations++
				}
			}
		}
		report.Iterations = iter + 1
		report.ViolationsPerIteration = append(report.ViolationsPerIteration, violations)
		if violations == 0 {
			report.Converged = true
			break
		}
	}

	if !report.Converged {
		logrus.Warnf("adapt.balance: did not converge after %d iterations", report.Iterations)
		return report, mesh.NewConvergenceWarning("adapt.balance",
			"2:1 balance did not converge within max_balance_iterations")
	}
	return report, nil
}
