// Package partition implements the Hilbert SFC load balancer (spec §4.6):
// imbalance detection, split-point recomputation, migration-plan
// construction and optimization, and the cell migrator that executes a plan
// over a transport.Transport.
package partition

import "github.com/fedres/fluidloom-sub000/mesh"

// CalculateImbalance computes (max-min)/avg over per-rank cell counts, or 0
// for an empty or all-zero-average input.
func CalculateImbalance(counts []int64) float64 {
	if len(counts) == 0 {
		return 0
	}
	var total, min, max int64
	min = counts[0]
	for i, c := range counts {
		total += c
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
		_ = i
	}
	avg := float64(total) / float64(len(counts))
	if avg == 0 {
		return 0
	}
	return float64(max-min) / avg
}

// ShouldRebalance reports whether a rebalance should trigger, mirroring
// LoadBalanceConfig::shouldRebalance: disabled balancer, too few steps since
// the last rebalance, or imbalance under tolerance all suppress it.
func ShouldRebalance(cfg mesh.LoadBalancerConfig, counts []int64, stepsSinceLast int64) bool {
	if !cfg.Enabled {
		return false
	}
	if stepsSinceLast < cfg.MinIntervalTimesteps {
		return false
	}
	return CalculateImbalance(counts) > cfg.ImbalanceTolerance
}
