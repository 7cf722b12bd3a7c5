package mmr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ErrProofInvalid is returned when an inclusion proof does not reconstruct
// the expected peak, or is structurally malformed.
var ErrProofInvalid = errors.New("mmr: invalid inclusion proof")

// InclusionProof proves that a leaf is committed by an accumulator state.
// PeaksHashes carries the full peak list (tallest first) for the state the
// proof was generated against, SiblingsHashes the Merkle path from the leaf
// to the peak containing it.
type InclusionProof struct {
	LeafIndex      uint64   `json:"leaf_index"`
	LeafCount      uint64   `json:"leaf_count"`
	PeaksHashes    []string `json:"peaks_hashes"`
	SiblingsHashes []string `json:"siblings_hashes"`
}

// MMR is an append-only accumulator over leaf commitments. Appends are
// strictly sequential and must not run concurrently with each other or with
// reads on the same accumulator identifier; committed state may be read
// concurrently.
type MMR struct {
	store  Store
	hasher Hasher
	id     string
}

// New creates an accumulator bound to the given store and hasher. The id
// scopes all keys so multiple accumulators can share a store.
func New(store Store, hasher Hasher, id string) *MMR {
	if id == "" {
		id = "mmr"
	}
	return &MMR{store: store, hasher: hasher, id: id}
}

// Hasher returns the hasher the accumulator was constructed with.
func (m *MMR) Hasher() Hasher {
	return m.hasher
}

func (m *MMR) counter(ctx context.Context, key string) (uint64, error) {
	v, err := m.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

// ElementsCount returns the number of stored nodes, leaves and interior.
func (m *MMR) ElementsCount(ctx context.Context) (uint64, error) {
	return m.counter(ctx, elementsCountKey(m.id))
}

// LeafCount returns the number of appended leaves.
func (m *MMR) LeafCount(ctx context.Context) (uint64, error) {
	return m.counter(ctx, leavesCountKey(m.id))
}

func (m *MMR) node(ctx context.Context, index uint64) (string, error) {
	return m.store.Get(ctx, hashKey(m.id, index))
}

// Append adds one leaf commitment, merging equal-height peaks like a binary
// counter carry. The new nodes and both counters commit in a single batch,
// so the accumulator never observes a partial append.
func (m *MMR) Append(ctx context.Context, leaf string) error {
	elements, err := m.ElementsCount(ctx)
	if err != nil {
		return err
	}
	leaves, err := m.LeafCount(ctx)
	if err != nil {
		return err
	}

	entries := map[string]string{}
	i := elements
	entries[hashKey(m.id, i)] = leaf

	// Read-through for freshly written nodes which are not in the store yet.
	get := func(index uint64) (string, error) {
		if v, ok := entries[hashKey(m.id, index)]; ok {
			return v, nil
		}
		return m.node(ctx, index)
	}

	current := leaf
	var height uint64
	for IndexHeight(i+1) > height {
		iLeft := i - SiblingOffset(height)
		left, err := get(iLeft)
		if err != nil {
			return fmt.Errorf("append: missing left child %d: %w", iLeft, err)
		}
		parent, err := m.hasher.Hash(left, current)
		if err != nil {
			return fmt.Errorf("append: hash parent of %d: %w", i, err)
		}
		i++
		entries[hashKey(m.id, i)] = parent
		current = parent
		height++
	}

	entries[elementsCountKey(m.id)] = strconv.FormatUint(i+1, 10)
	entries[leavesCountKey(m.id)] = strconv.FormatUint(leaves+1, 10)
	return m.store.PutBatch(ctx, entries)
}

// Peaks returns the current peak hashes, tallest first.
func (m *MMR) Peaks(ctx context.Context) ([]string, error) {
	elements, err := m.ElementsCount(ctx)
	if err != nil {
		return nil, err
	}
	return m.peaksAt(ctx, elements)
}

func (m *MMR) peaksAt(ctx context.Context, elements uint64) ([]string, error) {
	indexes := PeakIndexes(elements)
	peaks := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		h, err := m.node(ctx, idx)
		if err != nil {
			return nil, fmt.Errorf("peak node %d: %w", idx, err)
		}
		peaks = append(peaks, h)
	}
	return peaks, nil
}

// Proof generates an inclusion proof for the leaf at leafIndex against the
// historical accumulator state holding leafCount leaves. Past states remain
// provable because the range is append-only.
func (m *MMR) Proof(ctx context.Context, leafIndex, leafCount uint64) (*InclusionProof, error) {
	if leafIndex >= leafCount {
		return nil, fmt.Errorf("%w: leaf index %d not in accumulator of %d leaves", ErrProofInvalid, leafIndex, leafCount)
	}
	current, err := m.LeafCount(ctx)
	if err != nil {
		return nil, err
	}
	if leafCount > current {
		return nil, fmt.Errorf("%w: accumulator holds %d leaves, proof requested against %d", ErrProofInvalid, current, leafCount)
	}

	size := LeafCountToNodeCount(leafCount)
	peaks, err := m.peaksAt(ctx, size)
	if err != nil {
		return nil, err
	}

	var siblings []string
	i := LeafIndexToNodeIndex(leafIndex)
	var height uint64
	for {
		var iSibling uint64
		if IndexHeight(i+1) > height {
			iSibling = i - SiblingOffset(height)
			i++
		} else {
			iSibling = i + SiblingOffset(height)
			i += 2 << height
		}
		if iSibling >= size {
			break
		}
		h, err := m.node(ctx, iSibling)
		if err != nil {
			return nil, fmt.Errorf("sibling node %d: %w", iSibling, err)
		}
		siblings = append(siblings, h)
		height++
	}

	return &InclusionProof{
		LeafIndex:      leafIndex,
		LeafCount:      leafCount,
		PeaksHashes:    peaks,
		SiblingsHashes: siblings,
	}, nil
}

// RootHash folds the current peaks into the accumulator's single root.
func (m *MMR) RootHash(ctx context.Context) (string, error) {
	elements, err := m.ElementsCount(ctx)
	if err != nil {
		return "", err
	}
	peaks, err := m.peaksAt(ctx, elements)
	if err != nil {
		return "", err
	}
	return BagPeaks(m.hasher, elements, peaks)
}

// BagPeaks folds peaks (tallest first) right to left and binds the element
// count: root = H(count, H(p0, H(p1, ... H(pn-1, pn)))). The count enters as
// 8-byte big-endian hex so the circuit input width is fixed.
func BagPeaks(hasher Hasher, elements uint64, peaks []string) (string, error) {
	if len(peaks) == 0 {
		return "", fmt.Errorf("%w: no peaks to bag", ErrProofInvalid)
	}
	bagged := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		h, err := hasher.Hash(peaks[i], bagged)
		if err != nil {
			return "", err
		}
		bagged = h
	}
	return hasher.Hash(fmt.Sprintf("0x%016x", elements), bagged)
}

// VerifyProof checks that leafHash is committed by the accumulator state the
// proof describes, with no store access: the sibling path must reconstruct
// the peak recorded in the proof's own peak list. Returns the bagged root of
// that state on success.
func VerifyProof(hasher Hasher, leafHash string, proof *InclusionProof) (string, error) {
	if proof.LeafIndex >= proof.LeafCount {
		return "", fmt.Errorf("%w: leaf index %d out of range for %d leaves", ErrProofInvalid, proof.LeafIndex, proof.LeafCount)
	}
	size := LeafCountToNodeCount(proof.LeafCount)
	if want := len(PeakIndexes(size)); len(proof.PeaksHashes) != want {
		return "", fmt.Errorf("%w: %d peaks for %d leaves, want %d", ErrProofInvalid, len(proof.PeaksHashes), proof.LeafCount, want)
	}

	current := leafHash
	i := LeafIndexToNodeIndex(proof.LeafIndex)
	var height uint64
	for _, sibling := range proof.SiblingsHashes {
		var combined string
		var err error
		if IndexHeight(i+1) > height {
			// current node is the right child
			combined, err = hasher.Hash(sibling, current)
			i++
		} else {
			combined, err = hasher.Hash(current, sibling)
			i += 2 << height
		}
		if err != nil {
			return "", err
		}
		if i >= size {
			return "", fmt.Errorf("%w: sibling path walks past accumulator of %d elements", ErrProofInvalid, size)
		}
		current = combined
		height++
	}

	slot := PeakSlot(proof.LeafCount, len(proof.SiblingsHashes))
	if slot < 0 || slot >= len(proof.PeaksHashes) {
		return "", fmt.Errorf("%w: sibling path of length %d matches no peak", ErrProofInvalid, len(proof.SiblingsHashes))
	}
	if proof.PeaksHashes[slot] != current {
		return "", fmt.Errorf("%w: reconstructed peak %s, accumulator has %s", ErrProofInvalid, current, proof.PeaksHashes[slot])
	}

	return BagPeaks(hasher, size, proof.PeaksHashes)
}
