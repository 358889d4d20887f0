package partition

import (
	"sort"

	"github.com/fedres/fluidloom-sub000/mesh"
)

// Transfer describes one contiguous Hilbert-range migration between two
// ranks (spec §4.6, MigrationPlan::Transfer).
type Transfer struct {
	SrcRank, DstRank int
	HilbertStart     mesh.HilbertIndex
	HilbertEnd       mesh.HilbertIndex
	NumCells         int64
}

func (t Transfer) valid() bool {
	return t.SrcRank >= 0 && t.DstRank >= 0 && t.SrcRank != t.DstRank &&
		t.HilbertEnd > t.HilbertStart && t.NumCells > 0
}

// MigrationPlan is a validated, optimized set of transfers plus the
// guardrail estimate used to fail fast on an overlong migration.
type MigrationPlan struct {
	Transfers          []Transfer
	TotalCellsToMigrate int64
	EstimatedTimeMs     float64
}

// ownerOf returns the rank owning key under the given ordered split points,
// following LoadBalancer::getOwnerGPU: the first rank whose upper split
// exceeds key, or the last rank if key is at or past every split.
func ownerOf(key mesh.HilbertIndex, splits []mesh.HilbertIndex, numRanks int) int {
	for i, s := range splits {
		if key < s {
			return i
		}
	}
	return numRanks - 1
}

// CreateMigrationPlan builds the local rank's contribution to a migration
// plan (spec §4.6): if this rank's entire current range now belongs to a
// different rank under newSplits, the whole range transfers; otherwise any
// new split point that falls strictly inside [localMin,localMax) peels off
// the portion above it (estimated by linear density) to the next rank.
// Every rank runs this independently and the per-rank Transfers are unioned
// by the caller.
func CreateMigrationPlan(myRank, numRanks int, newSplits, currentSplits []mesh.HilbertIndex, localMin, localMax mesh.HilbertIndex, localCellCount int64) MigrationPlan {
	var plan MigrationPlan

	oldOwner := ownerOf(localMin, currentSplits, numRanks)
	newOwner := ownerOf(localMin, newSplits, numRanks)

	if oldOwner != newOwner {
		plan.Transfers = append(plan.Transfers, Transfer{
			SrcRank: myRank, DstRank: newOwner,
			HilbertStart: localMin, HilbertEnd: localMax,
			NumCells: localCellCount,
		})
	} else {
		span := int64(localMax - localMin)
		for i, split := range newSplits {
			if split > localMin && split < localMax {
				frac := float64(split-localMin) / float64(span)
				cellsAbove := int64((1.0 - frac) * float64(localCellCount))
				if cellsAbove <= 0 {
					continue
				}
				plan.Transfers = append(plan.Transfers, Transfer{
					SrcRank: myRank, DstRank: i + 1,
					HilbertStart: split, HilbertEnd: localMax,
					NumCells: cellsAbove,
				})
			}
		}
	}

	optimize(&plan)
	plan.EstimatedTimeMs = float64(plan.TotalCellsToMigrate) * 1e-3
	return plan
}

// IsTooSlow reports whether the plan's estimated cost exceeds the
// configured guardrail (spec §4.6 "Performance guardrails").
func (p MigrationPlan) IsTooSlow(cfg mesh.LoadBalancerConfig) bool {
	return cfg.MaxMigrationTimeMs > 0 && p.EstimatedTimeMs > cfg.MaxMigrationTimeMs
}

// optimize drops invalid/zero-cell transfers, sorts by (src,dst), and merges
// adjacent contiguous-range transfers sharing a src/dst pair (mirrors
// MigrationPlan::optimize).
func optimize(p *MigrationPlan) {
	var valid []Transfer
	for _, t := range p.Transfers {
		if t.valid() {
			valid = append(valid, t)
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].SrcRank != valid[j].SrcRank {
			return valid[i].SrcRank < valid[j].SrcRank
		}
		return valid[i].DstRank < valid[j].DstRank
	})

	var merged []Transfer
	for _, t := range valid {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.SrcRank == t.SrcRank && last.DstRank == t.DstRank && last.HilbertEnd == t.HilbertStart {
				last.HilbertEnd = t.HilbertEnd
				last.NumCells += t.NumCells
				continue
			}
		}
		merged = append(merged, t)
	}

	var total int64
	for _, t := range merged {
		total += t.NumCells
	}
	p.Transfers = merged
	p.TotalCellsToMigrate = total
}
