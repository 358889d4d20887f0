package mesh

// RadixSortKV sorts keys ascending using an 8-bit-digit, 8-pass LSB radix
// sort, permuting values in lockstep (spec §4.3: "LSB radix sort, 8-bit
// digits, 8 passes, double-buffered keys+values. Histogram→prefix-sum→
// scatter per pass."). Both slices are sorted in place.
//
// The device implementation this mirrors runs histogram/prefix-sum/scatter
// as three separate kernel launches per pass over double-buffered scratch;
// here the three steps are expressed as plain host-side loops operating on
// the same double-buffer scheme so the algorithm's shape — not just its
// result — matches the original.
func RadixSortKV(keys []HilbertIndex, values []uint32) {
	n := len(keys)
	if n <= 1 {
		return
	}

	const radixBits = 8
	const numBuckets = 1 << radixBits
	const numPasses = 64 / radixBits

	srcKeys, dstKeys := keys, make([]HilbertIndex, n)
	srcValues, dstValues := values, make([]uint32, n)

	var histogram [numBuckets]int
	var offsets [numBuckets]int

	for pass := 0; pass < numPasses; pass++ {
		shift := uint(pass * radixBits)

		// Histogram.
		for i := range histogram {
			histogram[i] = 0
		}
		for _, k := range srcKeys {
			digit := (k >> shift) & (numBuckets - 1)
			histogram[digit]++
		}

		// Prefix sum (exclusive) over the histogram.
		sum := 0
		for d := 0; d < numBuckets; d++ {
			offsets[d] = sum
			sum += histogram[d]
		}

		// Scatter into the destination buffer, stable by construction since
		// we iterate source order and bump each bucket's running offset.
		for i := 0; i < n; i++ {
			k := srcKeys[i]
			digit := (k >> shift) & (numBuckets - 1)
			dst := offsets[digit]
			offsets[digit]++
			dstKeys[dst] = k
			dstValues[dst] = srcValues[i]
		}

		srcKeys, dstKeys = dstKeys, srcKeys
		srcValues, dstValues = dstValues, srcValues
	}

	// numPasses is even (8 for 64-bit keys with 8-bit digits), so srcKeys is
	// back to aliasing the original `keys`/`values` backing arrays here; if
	// that ever changes (odd pass count), copy back explicitly.
	if &srcKeys[0] != &keys[0] {
		copy(keys, srcKeys)
		copy(values, srcValues)
	}
}
