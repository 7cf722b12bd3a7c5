package btc

import (
	"errors"
	"fmt"
	"io"
)

// maxBlockTxs bounds the transaction count a partial Merkle tree may claim.
// A block cannot hold more than ~16k minimal transactions, 1<<24 is a safe
// ceiling against absurd allocations.
const maxBlockTxs = 1 << 24

// PartialMerkleTree is the BIP-37 encoding of a Merkle branch proving that
// selected transactions are committed by a block's Merkle root.
type PartialMerkleTree struct {
	Total  uint32
	Hashes []Hash
	Flags  []byte
}

// MerkleBlock is a block header plus a partial Merkle tree, the payload
// returned by the gettxoutproof RPC.
type MerkleBlock struct {
	Header BlockHeader
	Tree   PartialMerkleTree
}

// Decode parses a merkleblock from its wire encoding.
func (mb *MerkleBlock) Decode(r io.Reader) error {
	if err := mb.Header.Decode(r); err != nil {
		return err
	}
	return mb.Tree.Decode(r)
}

// Decode parses the partial Merkle tree wire encoding.
func (pmt *PartialMerkleTree) Decode(r io.Reader) error {
	total, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("read tx count: %w", err)
	}
	if total == 0 || total > maxBlockTxs {
		return fmt.Errorf("invalid tx count %d", total)
	}
	pmt.Total = total

	nhashes, err := readVarInt(r)
	if err != nil {
		return fmt.Errorf("read hash count: %w", err)
	}
	if nhashes > uint64(total) {
		return fmt.Errorf("hash count %d exceeds tx count %d", nhashes, total)
	}
	pmt.Hashes = make([]Hash, nhashes)
	for i := range pmt.Hashes {
		if _, err := io.ReadFull(r, pmt.Hashes[i][:]); err != nil {
			return fmt.Errorf("read proof hash: %w", err)
		}
	}

	nflags, err := readVarInt(r)
	if err != nil {
		return fmt.Errorf("read flag count: %w", err)
	}
	if nflags > uint64(total)+nhashes {
		return fmt.Errorf("flag byte count %d out of range", nflags)
	}
	pmt.Flags = make([]byte, nflags)
	if _, err := io.ReadFull(r, pmt.Flags); err != nil {
		return fmt.Errorf("read flag bytes: %w", err)
	}
	return nil
}

// Encode writes the partial Merkle tree wire encoding.
func (pmt *PartialMerkleTree) Encode(w io.Writer) error {
	if err := writeUint32(w, pmt.Total); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(pmt.Hashes))); err != nil {
		return err
	}
	for i := range pmt.Hashes {
		if _, err := w.Write(pmt.Hashes[i][:]); err != nil {
			return err
		}
	}
	if err := writeVarInt(w, uint64(len(pmt.Flags))); err != nil {
		return err
	}
	_, err := w.Write(pmt.Flags)
	return err
}

type treeWalker struct {
	pmt      *PartialMerkleTree
	bitsUsed int
	hashUsed int
	matches  []Hash
	indices  []uint32
	bad      bool
}

func (tw *treeWalker) bit(i int) bool {
	return tw.pmt.Flags[i>>3]&(1<<(i&7)) != 0
}

func (tw *treeWalker) width(height int) uint32 {
	return (tw.pmt.Total + (1 << height) - 1) >> height
}

func (tw *treeWalker) walk(height int, pos uint32) Hash {
	if tw.bitsUsed >= len(tw.pmt.Flags)*8 {
		tw.bad = true
		return Hash{}
	}
	parentOfMatch := tw.bit(tw.bitsUsed)
	tw.bitsUsed++

	if height == 0 || !parentOfMatch {
		if tw.hashUsed >= len(tw.pmt.Hashes) {
			tw.bad = true
			return Hash{}
		}
		h := tw.pmt.Hashes[tw.hashUsed]
		tw.hashUsed++
		if height == 0 && parentOfMatch {
			tw.matches = append(tw.matches, h)
			tw.indices = append(tw.indices, pos)
		}
		return h
	}

	left := tw.walk(height-1, pos*2)
	var right Hash
	if pos*2+1 < tw.width(height-1) {
		right = tw.walk(height-1, pos*2+1)
		if left == right {
			// Duplicate subtree, the CVE-2012-2459 malleability.
			tw.bad = true
		}
	} else {
		right = left
	}
	return hashMerkleBranches(left, right)
}

func hashMerkleBranches(left, right Hash) Hash {
	var buf [HashSize * 2]byte
	copy(buf[:HashSize], left[:])
	copy(buf[HashSize:], right[:])
	return DoubleSHA256(buf[:])
}

// ExtractMatches traverses the partial tree, returning the computed Merkle
// root together with the matched txids and their positions in the block. The
// traversal must consume every hash and every flag bit up to byte padding.
func (pmt *PartialMerkleTree) ExtractMatches() (root Hash, matches []Hash, indices []uint32, err error) {
	if pmt.Total == 0 || pmt.Total > maxBlockTxs {
		return Hash{}, nil, nil, fmt.Errorf("invalid tx count %d", pmt.Total)
	}
	if len(pmt.Hashes) == 0 {
		return Hash{}, nil, nil, errors.New("partial merkle tree has no hashes")
	}

	height := 0
	for pmt.Total > 1<<height {
		height++
	}

	tw := &treeWalker{pmt: pmt}
	root = tw.walk(height, 0)
	if tw.bad {
		return Hash{}, nil, nil, errors.New("malformed partial merkle tree")
	}
	if tw.hashUsed != len(pmt.Hashes) {
		return Hash{}, nil, nil, fmt.Errorf("unconsumed proof hashes: used %d of %d", tw.hashUsed, len(pmt.Hashes))
	}
	if (tw.bitsUsed+7)/8 != len(pmt.Flags) {
		return Hash{}, nil, nil, fmt.Errorf("unconsumed flag bits: used %d of %d", tw.bitsUsed, len(pmt.Flags)*8)
	}
	return root, tw.matches, tw.indices, nil
}
