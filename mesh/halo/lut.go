// Package halo implements ghost-range construction, the pack/unpack
// exchange protocol, and cross-level interpolation (spec §4.5).
package halo

import "gonum.org/v1/gonum/mat"

// InterpolationType tags how a GhostRange's cells must be reconstructed
// when local and remote refinement levels differ (spec §4.5).
type InterpolationType int

const (
	InterpNone InterpolationType = iota
	// InterpTrilinear: local_level > remote_level, receiver has fine cells,
	// source is coarse; 8 coarse corners interpolate to each fine ghost.
	InterpTrilinear
	// InterpVolumeWeighted: local_level < remote_level, receiver is coarse;
	// average the 8 fine children.
	InterpVolumeWeighted
)

// LUTEntry holds the 8 interpolation weights for one local/remote level
// pairing, stored as a gonum vector so callers can reuse gonum's linear
// algebra for downstream weighted sums.
type LUTEntry struct {
	Weights *mat.VecDense
}

// Sum returns the total weight, which must be 1 ± 1e-6 (spec P8).
func (e LUTEntry) Sum() float64 {
	return mat.Sum(e.Weights)
}

// axisFraction returns the fractional distance of child octant bit q along
// its axis toward the "far" (q=1) neighbor corner: 0.75 if q=1, 0.25 if q=0.
// This is the standard cell-centered trilinear prolongation weight for a
// child cell inside its parent's octant.
func axisFraction(q uint8) float64 {
	if q == 1 {
		return 0.75
	}
	return 0.25
}

// TrilinearLUT returns the 8 coarse-corner weights for the fine child at
// octant (qx,qy,qz), ordered so weight index `cz*4+cy*2+cx` matches the
// same corner-bit convention as mesh.Coord.Child.
func TrilinearLUT(qx, qy, qz uint8) LUTEntry {
	fx, fy, fz := axisFraction(qx), axisFraction(qy), axisFraction(qz)
	w := make([]float64, 8)
	for corner := 0; corner < 8; corner++ {
		cx := corner & 1
		cy := (corner >> 1) & 1
		cz := (corner >> 2) & 1
		wx := fx
		if cx == 0 {
			wx = 1 - fx
		}
		wy := fy
		if cy == 0 {
			wy = 1 - fy
		}
		wz := fz
		if cz == 0 {
			wz = 1 - fz
		}
		w[corner] = wx * wy * wz
	}
	return LUTEntry{Weights: mat.NewVecDense(8, w)}
}

// VolumeWeightedLUT returns the uniform 1/8 weights used to average the 8
// fine children into one coarse ghost value (equal volumes at uniform
// refinement within the group).
func VolumeWeightedLUT() LUTEntry {
	w := make([]float64, 8)
	for i := range w {
		w[i] = 1.0 / 8.0
	}
	return LUTEntry{Weights: mat.NewVecDense(8, w)}
}
