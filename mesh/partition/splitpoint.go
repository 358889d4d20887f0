package partition

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/fedres/fluidloom-sub000/mesh"
)

// RankExtent describes one rank's current Hilbert-key footprint: how many
// cells it holds and the [Min,Max) key range those cells span. SortedKeys is
// only consulted by the exact-count split mode.
type RankExtent struct {
	Rank       int
	Min, Max   mesh.HilbertIndex
	Count      int64
	SortedKeys []mesh.HilbertIndex
}

// ComputeSplitPoints picks N-1 new Hilbert split points for N ranks so that
// each rank ends up with approximately total_cells/N cells (spec §4.6
// "Split point calculation"). UseExactCount selects between two estimators:
//
//   - linear interpolation (O(N) in rank count): within the rank whose
//     cumulative count first reaches the k'th target, interpolate the key
//     linearly across that rank's own key range. Cheap, assumes uniform key
//     density per rank.
//   - exact sampling (O(S log S) over S collected samples): merge
//     numSamplePoints evenly-spaced keys from every rank's sorted key list
//     and pick the sample nearest the k'th target's proportional position.
//     More accurate under non-uniform density, at the cost of requiring
//     every rank's locally sorted keys.
func ComputeSplitPoints(ranks []RankExtent, useExactCount bool, numSamplePoints int) []mesh.HilbertIndex {
	n := len(ranks)
	if n <= 1 {
		return nil
	}
	if useExactCount {
		return exactSplitPoints(ranks, numSamplePoints)
	}
	return linearSplitPoints(ranks)
}

func linearSplitPoints(ranks []RankExtent) []mesh.HilbertIndex {
	n := len(ranks)
	counts := make([]float64, n)
	for i, r := range ranks {
		counts[i] = float64(r.Count)
	}
	prefix := make([]float64, n)
	floats.CumSum(prefix, counts)
	total := prefix[n-1]
	if total == 0 {
		return make([]mesh.HilbertIndex, n-1)
	}
	target := total / float64(n)

	splits := make([]mesh.HilbertIndex, n-1)
	for k := 1; k < n; k++ {
		cum := target * float64(k)
		ri := sort.Search(n, func(i int) bool { return prefix[i] >= cum })
		if ri >= n {
			ri = n - 1
		}
		before := 0.0
		if ri > 0 {
			before = prefix[ri-1]
		}
		r := ranks[ri]
		frac := 0.0
		if r.Count > 0 {
			frac = (cum - before) / float64(r.Count)
		}
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		span := int64(r.Max - r.Min)
		splits[k-1] = r.Min + mesh.HilbertIndex(frac*float64(span))
	}
	return splits
}

func exactSplitPoints(ranks []RankExtent, numSamplePoints int) []mesh.HilbertIndex {
	if numSamplePoints < 1 {
		numSamplePoints = 1
	}
	var samples []mesh.HilbertIndex
	var total int64
	for _, r := range ranks {
		total += r.Count
		keys := r.SortedKeys
		if len(keys) == 0 {
			continue
		}
		step := len(keys) / numSamplePoints
		if step < 1 {
			step = 1
		}
		for i := 0; i < len(keys); i += step {
			samples = append(samples, keys[i])
		}
		if samples[len(samples)-1] != keys[len(keys)-1] {
			samples = append(samples, keys[len(keys)-1])
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	n := len(ranks)
	splits := make([]mesh.HilbertIndex, n-1)
	if len(samples) == 0 || total == 0 {
		return splits
	}
	target := float64(total) / float64(n)
	for k := 1; k < n; k++ {
		frac := (target * float64(k)) / float64(total)
		pos := int(frac * float64(len(samples)-1))
		if pos < 0 {
			pos = 0
		}
		if pos >= len(samples) {
			pos = len(samples) - 1
		}
		splits[k-1] = samples[pos]
	}
	return splits
}
