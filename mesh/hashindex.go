package mesh

import (
	"math/bits"

	"github.com/sirupsen/logrus"
)

// Hash index constants (spec §3, §4.3). EmptyKey must match HilbertEmpty
// from the Hilbert codec; InvalidValue marks a miss/unallocated slot.
const (
	EmptyKey          HilbertIndex = HilbertEmpty
	InvalidValue      uint32       = 0xFFFFFFFF
	maxLoadFactor     float64      = 0.6
	minCapacityPow2   uint32       = 20 // 2^20
	maxCapacityPow2   uint32       = 30 // 2^30
	maxProbeLimit     int          = 32
	fibonacciConstant uint64       = 0x9E3779B97F4A7C15
)

// HashIndex is the GPU-resident open-addressed hash table mapping a cell's
// Hilbert index to its current mesh array slot (spec §4.3). It is rebuilt
// atomically from a sorted, compacted cell list: readers observe either the
// pre- or post-rebuild table, never a mixed one, because Rebuild returns a
// brand-new *HashIndex rather than mutating in place.
type HashIndex struct {
	keys     []HilbertIndex
	values   []uint32
	capacity uint64
	size     uint64

	MaxProbeLength     int
	AverageProbeLength float64
}

// capacityFor computes the next power of two capacity satisfying the
// load-factor bound, clamped to [2^20, 2^30] (spec §4.3).
func capacityFor(numCells int) uint64 {
	if numCells == 0 {
		return uint64(1) << minCapacityPow2
	}
	minCapacity := float64(numCells) / maxLoadFactor
	log2Cap := uint32(bits.Len64(uint64(minCapacity)))
	if uint64(1)<<log2Cap < uint64(minCapacity) {
		log2Cap++
	}
	if log2Cap < minCapacityPow2 {
		log2Cap = minCapacityPow2
	}
	if log2Cap > maxCapacityPow2 {
		log2Cap = maxCapacityPow2
	}
	return uint64(1) << log2Cap
}

func hashKey(key HilbertIndex) uint64 {
	return uint64(key) * fibonacciConstant
}

// BuildHashIndex rebuilds a hash index from (key,value) pairs that MUST
// already be sorted by key ascending (spec §4.3 rebuild protocol steps 1-3;
// the caller performs the filter+radix-sort, see RadixSortKV and
// Mesh-level callers that filter UNALLOCATED cells before calling this).
// It returns a ProtocolError if any key's probe length would exceed
// maxProbeLimit, refusing the swap-in per spec's build-time-error contract.
func BuildHashIndex(sortedKeys []HilbertIndex, sortedValues []uint32) (*HashIndex, error) {
	if len(sortedKeys) != len(sortedValues) {
		return nil, NewProtocolError("hashindex", "mismatched key/value slice lengths")
	}
	capacity := capacityFor(len(sortedKeys))
	h := &HashIndex{
		keys:     make([]HilbertIndex, capacity),
		values:   make([]uint32, capacity),
		capacity: capacity,
	}
	for i := range h.keys {
		h.keys[i] = EmptyKey
		h.values[i] = InvalidValue
	}

	totalProbes := 0
	for idx, key := range sortedKeys {
		if key == EmptyKey {
			continue
		}
		slot := hashKey(key) & (capacity - 1)
		probes := 1
		for h.keys[slot] != EmptyKey {
			slot = (slot + 1) % capacity
			probes++
			if probes > maxProbeLimit {
				return nil, NewProtocolError("hashindex", "probe length exceeded MAX_PROBE_LIMIT during build")
			}
		}
		h.keys[slot] = key
		h.values[slot] = sortedValues[idx]
		h.size++
		totalProbes += probes
		if probes > h.MaxProbeLength {
			h.MaxProbeLength = probes
		}
	}
	if h.size > 0 {
		h.AverageProbeLength = float64(totalProbes) / float64(h.size)
	}

	logrus.Debugf("hashindex: rebuilt capacity=%d size=%d maxProbe=%d avgProbe=%.2f",
		h.capacity, h.size, h.MaxProbeLength, h.AverageProbeLength)

	return h, nil
}

// Lookup returns the array slot for key, or InvalidValue if key is not
// present (spec P6). It is read-only and safe to call concurrently with
// other lookups against the same table.
func (h *HashIndex) Lookup(key HilbertIndex) uint32 {
	if h == nil || h.capacity == 0 {
		return InvalidValue
	}
	slot := hashKey(key) & (h.capacity - 1)
	for i := 0; i < maxProbeLimit; i++ {
		k := h.keys[slot]
		if k == EmptyKey {
			return InvalidValue
		}
		if k == key {
			return h.values[slot]
		}
		slot = (slot + 1) % h.capacity
	}
	return InvalidValue
}

// Size returns the number of live entries.
func (h *HashIndex) Size() uint64 { return h.size }

// Capacity returns the table's slot count (a power of two).
func (h *HashIndex) Capacity() uint64 { return h.capacity }

// LoadFactor returns size/capacity.
func (h *HashIndex) LoadFactor() float64 {
	if h.capacity == 0 {
		return 0
	}
	return float64(h.size) / float64(h.capacity)
}

// RebuildFromMesh filters active cells (state != UNALLOCATED) from m,
// computes their Hilbert keys, sorts by key via radix sort, and builds a
// fresh HashIndex plus the permutation vector needed to restore invariant
// I3 after a topology change (spec §4.3 steps 1-4).
func RebuildFromMesh(m *Mesh) (*HashIndex, []uint32, error) {
	keys := make([]HilbertIndex, 0, m.NumCells)
	origSlots := make([]uint32, 0, m.NumCells)
	for i := 0; i < m.NumCells; i++ {
		if m.State[i] == StateUnallocated {
			continue
		}
		key := m.Coord(i).Hilbert()
		if key == EmptyKey {
			continue
		}
		keys = append(keys, key)
		origSlots = append(origSlots, uint32(i))
	}

	RadixSortKV(keys, origSlots)

	// origSlots now holds, for each position in the sorted (post-compaction)
	// array, the old slot that cell came from. The permutation moves every
	// live cell from its old slot to its new (sorted) position; the hash
	// index's value for a key is simply that new position, since after the
	// caller applies perm the mesh array is stored in Hilbert order (I3).
	values := make([]uint32, len(keys))
	perm := make([]uint32, m.NumCells)
	for i := range perm {
		perm[i] = InvalidSlot
	}
	for newSlot, origSlot := range origSlots {
		values[newSlot] = uint32(newSlot)
		perm[origSlot] = uint32(newSlot)
	}

	idx, err := BuildHashIndex(keys, values)
	if err != nil {
		return nil, nil, err
	}
	return idx, perm, nil
}
