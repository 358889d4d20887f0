package halo

import (
	"encoding/binary"
	"math"

	"github.com/fedres/fluidloom-sub000/mesh"
)

// FieldLayout describes one field's placement within a pack buffer cell
// (spec §3's pack-buffer layout, mirroring original_source's
// PackBufferLayout::FieldLayout).
type FieldLayout struct {
	Name              string
	Components        int
	BytesPerComponent int
	OffsetInCell      int
}

// PackBufferLayout is the SoA (field-major, component-major) byte layout
// shared by the pack and comm buffers: [Field0_Comp0_AllCells,
// Field0_Comp1_AllCells, ..., Field1_Comp0_AllCells, ...].
type PackBufferLayout struct {
	Fields        []FieldLayout
	CellSizeBytes int
}

// NewPackBufferLayout builds a layout for the given fields in order.
func NewPackBufferLayout(fields []*mesh.Field) PackBufferLayout {
	var l PackBufferLayout
	for _, f := range fields {
		fl := FieldLayout{
			Name:              f.Name,
			Components:        f.Components,
			BytesPerComponent: mesh.BytesPerComponent,
			OffsetInCell:      l.CellSizeBytes,
		}
		l.Fields = append(l.Fields, fl)
		l.CellSizeBytes += f.Components * mesh.BytesPerComponent
	}
	return l
}

// Offset computes the byte offset for (fieldIdx, component, cellIdx) given
// a buffer sized for maxCells (spec §3 pack-buffer formula).
func (l PackBufferLayout) Offset(fieldIdx, component, cellIdx, maxCells int) int {
	f := l.Fields[fieldIdx]
	globalFieldStart := f.OffsetInCell * maxCells
	componentOffset := component * f.BytesPerComponent * maxCells
	cellOffset := cellIdx * f.BytesPerComponent
	return globalFieldStart + componentOffset + cellOffset
}

// SizeBytes returns the total buffer size needed for maxCells cells.
func (l PackBufferLayout) SizeBytes(maxCells int) int {
	return l.CellSizeBytes * maxCells
}

// PackRange gathers range r's cells from field f into buf at the positions
// Offset computes (spec §4.5 step 1 "applies interpolation if required").
// For r.InterpolationType != NONE, each value is reconstructed from the
// cell's own cached sibling stencil (GhostRange.CachedNeighborIndices,
// all locally resident) before being written, so the wire format stays one
// scalar per cell regardless of interpolation kind; the far side's Unpack
// never re-interpolates already-corrected data.
func PackRange(buf []byte, layout PackBufferLayout, fieldIdx int, f *mesh.Field, maxCells int, r GhostRange, meshCapacity int) {
	for cellIdx, slot := range r.CachedLocalIndices {
		for c := 0; c < f.Components; c++ {
			v := f.At(c, int(slot), meshCapacity)
			if r.InterpolationType != InterpNone && len(r.CachedNeighborIndices) == 8*len(r.CachedLocalIndices) {
				v = interpolatedValue(r, cellIdx, c, f, meshCapacity)
			}
			off := layout.Offset(fieldIdx, c, cellIdx, maxCells)
			binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
		}
	}
}

// interpolatedValue reconstructs cellIdx's packed value for component c
// from its 8-cell sibling stencil, per r.InterpolationType.
func interpolatedValue(r GhostRange, cellIdx, c int, f *mesh.Field, meshCapacity int) float64 {
	var corners [8]float64
	neighbors := r.CachedNeighborIndices[cellIdx*8 : cellIdx*8+8]
	for i, slot := range neighbors {
		corners[i] = f.At(c, int(slot), meshCapacity)
	}
	switch r.InterpolationType {
	case InterpTrilinear:
		q := r.CachedOctant[cellIdx]
		return ApplyTrilinear(TrilinearLUT(q&1, (q>>1)&1, (q>>2)&1), corners)
	case InterpVolumeWeighted:
		return ApplyVolumeWeighted(VolumeWeightedLUT(), corners)
	default:
		return corners[0]
	}
}

// UnpackRange scatters buf back into field f at range r's local slots.
func UnpackRange(buf []byte, layout PackBufferLayout, fieldIdx int, f *mesh.Field, maxCells int, r GhostRange, meshCapacity int) {
	for cellIdx, slot := range r.CachedLocalIndices {
		for c := 0; c < f.Components; c++ {
			off := layout.Offset(fieldIdx, c, cellIdx, maxCells)
			bits := binary.LittleEndian.Uint64(buf[off : off+8])
			f.Set(c, int(slot), math.Float64frombits(bits), meshCapacity)
		}
	}
}

// ApplyTrilinear reconstructs one fine ghost value from its 8 coarse corner
// values using lut's weights (spec §4.5 TRILINEAR case).
func ApplyTrilinear(lut LUTEntry, coarseCorners [8]float64) float64 {
	var sum float64
	for i := 0; i < 8; i++ {
		sum += lut.Weights.AtVec(i) * coarseCorners[i]
	}
	return sum
}

// ApplyVolumeWeighted averages 8 fine children into one coarse ghost value
// using lut's weights (spec §4.5 VOLUME_WEIGHTED_AVERAGE case).
func ApplyVolumeWeighted(lut LUTEntry, fineChildren [8]float64) float64 {
	var sum float64
	for i := 0; i < 8; i++ {
		sum += lut.Weights.AtVec(i) * fineChildren[i]
	}
	return sum
}
