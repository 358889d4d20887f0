package mesh

// FineExtent returns c's axis-aligned bounding box expressed in common
// units at MaxRefinementLevel resolution, so cells at different refinement
// levels can be compared for geometric adjacency. A level-L cell of
// coordinate x covers fine-unit range [x*2^(Lmax-L), (x+1)*2^(Lmax-L)).
func (c Coord) FineExtent() (loX, hiX, loY, hiY, loZ, hiZ int64) {
	shift := uint(MaxRefinementLevel - c.Level)
	width := int64(1) << shift
	loX = int64(c.X) << shift
	loY = int64(c.Y) << shift
	loZ = int64(c.Z) << shift
	return loX, loX + width, loY, loY + width, loZ, loZ + width
}

// FaceAdjacent reports whether a and b share a full face: their extents
// touch (without overlapping) on exactly one axis and overlap on the other
// two. This is level-agnostic, so it correctly identifies neighbors across
// an AMR refinement boundary (spec §4.4's "face-neighbor" relation between
// cells that may differ in level).
func FaceAdjacent(a, b Coord) bool {
	aLoX, aHiX, aLoY, aHiY, aLoZ, aHiZ := a.FineExtent()
	bLoX, bHiX, bLoY, bHiY, bLoZ, bHiZ := b.FineExtent()

	touchX := aHiX == bLoX || bHiX == aLoX
	touchY := aHiY == bLoY || bHiY == aLoY
	touchZ := aHiZ == bLoZ || bHiZ == aLoZ
	overlapX := aLoX < bHiX && bLoX < aHiX
	overlapY := aLoY < bHiY && bLoY < aHiY
	overlapZ := aLoZ < bHiZ && bLoZ < aHiZ

	if touchX && overlapY && overlapZ {
		return true
	}
	if touchY && overlapX && overlapZ {
		return true
	}
	if touchZ && overlapX && overlapY {
		return true
	}
	return false
}
