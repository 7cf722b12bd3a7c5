package mmr

import (
	"math/bits"
)

// Position math for the Merkle Mountain Range. Node indexes are zero based
// and count leaves and interior nodes together in insertion order, so for
// the five-leaf range below the indexes are
//
//	2        6
//	       /   \
//	1     2     5
//	     / \   / \
//	0   0   1 3   4   7
//
// with 8 nodes ("elements") total and peaks at 6 and 7.

// IndexHeight returns the height of the node at the given index: 0 for
// leaves, increasing towards the peaks.
func IndexHeight(i uint64) uint64 {
	pos := i + 1
	// Walk left past the peaks until pos is all ones; such positions sit on
	// the left-most spine, whose height is their bit length less one.
	for !allOnes(pos) {
		pos -= topPeak(pos)
	}
	return uint64(bits.Len64(pos)) - 1
}

// SiblingOffset returns the distance between two sibling nodes at height h.
func SiblingOffset(h uint64) uint64 {
	return (2 << h) - 1
}

// PeakIndexes returns the node indexes of the peaks for an MMR with the
// given element count, tallest peak first. Returns nil when size is zero or
// does not describe a complete MMR (siblings present without their parent).
func PeakIndexes(size uint64) []uint64 {
	if size == 0 {
		return nil
	}
	if IndexHeight(size) > IndexHeight(size-1) {
		// size splits a parent from its children, not a valid boundary
		return nil
	}
	var peaks []uint64
	var sum uint64
	for size != 0 {
		peakSize := topPeak(size)
		sum += peakSize
		peaks = append(peaks, sum-1)
		size -= peakSize
	}
	return peaks
}

// PeaksBitmap returns a mask with one bit set per peak, the bit position
// being the peak height. The value equals the leaf count, a consequence of
// the binary-counter structure of the range.
func PeaksBitmap(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	pos := size
	peakSize := uint64(1)<<bits.Len64(size) - 1
	var m uint64
	for peakSize > 0 {
		m <<= 1
		if pos >= peakSize {
			pos -= peakSize
			m |= 1
		}
		peakSize >>= 1
	}
	return m
}

// LeafCountToNodeCount returns the element count of an MMR holding n leaves.
func LeafCountToNodeCount(n uint64) uint64 {
	return 2*n - uint64(bits.OnesCount64(n))
}

// LeafIndexToNodeIndex maps a leaf ordinal to its node index.
func LeafIndexToNodeIndex(leafIndex uint64) uint64 {
	return 2*leafIndex - uint64(bits.OnesCount64(leafIndex))
}

// PeakSlot returns the position, in the tallest-first peak list of an MMR
// with the given leaf count, of the peak reached by an inclusion proof of
// length d.
func PeakSlot(leafCount uint64, d int) int {
	mask := uint64(1)<<(d+1) - 1
	n := bits.OnesCount64(leafCount & mask)
	return bits.OnesCount64(leafCount) - n
}

// topPeak returns the size of the largest perfect subtree contained in an
// MMR of the given size: the ^2 floor of the accumulated bits.
func topPeak(size uint64) uint64 {
	return uint64(1)<<(bits.Len64(size+1)-1) - 1
}

func allOnes(pos uint64) bool {
	return pos != 0 && pos&(pos+1) == 0
}
