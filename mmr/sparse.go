package mmr

import (
	"context"
	"math/bits"
)

// SparseRoots returns the accumulator peaks in the fixed-arity positional
// encoding consumed by the proving circuit: one slot per achievable peak
// height, occupied slots holding the peak hash and the rest the NullRoot
// sentinel, with a trailing sentinel slot. Unlike the compact peak list the
// layout is a pure function of the element count, so a circuit with a
// bounded-size array can consume it at any chain height.
//
// Derived state only: recomputed from the committed peaks on every call.
func (m *MMR) SparseRoots(ctx context.Context) ([]string, error) {
	elements, err := m.ElementsCount(ctx)
	if err != nil {
		return nil, err
	}
	if elements == 0 {
		return []string{NullRoot}, nil
	}
	peaks, err := m.peaksAt(ctx, elements)
	if err != nil {
		return nil, err
	}
	return SparseRootsFromPeaks(elements, peaks), nil
}

// SparseRootsFromPeaks computes the sparse encoding from an element count
// and the matching peak list (tallest first).
//
// Descending from the maximum height, each step claims the element count of
// a perfect binary tree of that height ((1<<h)-1); a height whose tree fits
// in the remainder consumes the next peak, any other emits the sentinel.
// Every claimed slot is prepended, so the tallest peak lands at the high end
// of the result.
func SparseRootsFromPeaks(elements uint64, peaks []string) []string {
	if elements == 0 {
		return []string{NullRoot}
	}

	remaining := elements
	maxHeight := uint64(bits.Len64(elements)) // floor(log2(n)) + 1
	peakIdx := 0
	var result []string

	for remaining != 0 || maxHeight != 0 {
		perHeight := uint64(1)<<maxHeight - 1
		if perHeight == 0 {
			// only reachable for element counts that are not a valid MMR size
			break
		}
		if remaining >= perHeight && peakIdx < len(peaks) {
			result = append([]string{peaks[peakIdx]}, result...)
			peakIdx++
			remaining -= perHeight
		} else {
			result = append([]string{NullRoot}, result...)
		}
		if maxHeight != 0 {
			maxHeight--
		}
	}

	if result[len(result)-1] != NullRoot {
		result = append(result, NullRoot)
	}
	return result
}
