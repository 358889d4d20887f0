package mesh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHilbertEncodeDecodeRoundTrip(t *testing.T) {
	// P1: for all x,y,z in [0, 2^L), decode(encode(x,y,z,L),L) == (x,y,z)
	// and isValid holds. Exhaustive for small levels, sampled for larger.
	for level := uint8(0); level <= 4; level++ {
		n := int32(1) << level
		for x := int32(0); x < n; x++ {
			for y := int32(0); y < n; y++ {
				for z := int32(0); z < n; z++ {
					h := HilbertEncode(x, y, z, level)
					require.True(t, HilbertValid(h, level), "level=%d x=%d y=%d z=%d", level, x, y, z)
					gx, gy, gz := HilbertDecode(h, level)
					require.Equal(t, [3]int32{x, y, z}, [3]int32{gx, gy, gz})
				}
			}
		}
	}
}

func TestHilbertEncodeDecodeRoundTripSampledHighLevels(t *testing.T) {
	samples := [][4]int32{
		{0, 0, 0, 8},
		{255, 0, 0, 8},
		{0, 255, 0, 8},
		{0, 0, 255, 8},
		{255, 255, 255, 8},
		{123, 45, 200, 8},
		{1, 1, 1, 6},
	}
	for _, s := range samples {
		x, y, z, level := s[0], s[1], s[2], uint8(s[3])
		h := HilbertEncode(x, y, z, level)
		require.True(t, HilbertValid(h, level))
		gx, gy, gz := HilbertDecode(h, level)
		require.Equal(t, x, gx)
		require.Equal(t, y, gy)
		require.Equal(t, z, gz)
	}
}

func TestHilbertEncodeBijectivity(t *testing.T) {
	// encode(decode(H,L),L) == H for every canonical H at a given level.
	level := uint8(3)
	n := HilbertIndex(1) << (3 * level)
	for h := HilbertIndex(0); h < n; h++ {
		x, y, z := HilbertDecode(h, level)
		require.Equal(t, h, HilbertEncode(x, y, z, level))
	}
}

func TestHilbertCanonicalForm(t *testing.T) {
	h := HilbertEncode(5, 5, 5, 3)
	require.Equal(t, HilbertIndex(0), h>>(3*3), "bits above 3*level must be zero")
	require.Equal(t, uint64(0), uint64(h)&(1<<63))
}

func TestHilbertParentChild(t *testing.T) {
	h := HilbertEncode(10, 20, 30, 5)
	for q := uint8(0); q < 8; q++ {
		child := HilbertChild(h, 5, q)
		require.Equal(t, h<<3|HilbertIndex(q), child)
		require.Equal(t, h, HilbertParent(child, 6))
	}
}

func TestHilbertChildQuadrantOutOfRangePanics(t *testing.T) {
	require.Panics(t, func() { HilbertChild(0, 0, 8) })
}

func TestHilbertChildAtMaxLevelPanics(t *testing.T) {
	require.Panics(t, func() { HilbertChild(0, MaxRefinementLevel, 0) })
}

func TestHilbertParentAtLevelZeroPanics(t *testing.T) {
	require.Panics(t, func() { HilbertParent(0, 0) })
}

func TestHilbertValidRejectsSentinelsAndOverflow(t *testing.T) {
	require.False(t, HilbertValid(HilbertEmpty, 5))
	require.False(t, HilbertValid(1<<63, 5))
	require.False(t, HilbertValid(HilbertIndex(1)<<20, 3)) // bits above 3*3=9
}

func TestHilbertEncodeMasksOutOfRangeCoordinates(t *testing.T) {
	// Out-of-range inputs are masked to CoordinateBits (documented lossy path).
	over := int32(1) << (CoordinateBits + 2)
	h1 := HilbertEncode(over|3, 0, 0, 2)
	h2 := HilbertEncode(3, 0, 0, 2)
	require.Equal(t, h2, h1)
}
