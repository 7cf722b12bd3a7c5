package btc

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	txidA = Hash(bytes.Repeat([]byte{0xaa}, HashSize))
	txidB = Hash(bytes.Repeat([]byte{0xbb}, HashSize))
	txidC = Hash(bytes.Repeat([]byte{0xcc}, HashSize))
)

const (
	// Single-tx block, the coinbase matched: root is the txid itself.
	pmt1Hex = "0100000001aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa0101"
	// Two-tx block, first tx matched.
	pmt2Hex = "0200000002aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb0103"
	// Three-tx block, third tx matched: the left subtree is pruned to a
	// single internal hash and the odd leaf is paired with itself.
	pmt3Hex = "0300000002499d0d3b39373fb9b7b0f399b7411f7af213d91c32624280e995ae0f8eb776fb" +
		"cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc010d"

	root2Internal = "499d0d3b39373fb9b7b0f399b7411f7af213d91c32624280e995ae0f8eb776fb"
	root3Internal = "d6f226837f442e34974d01825cbac711f4c358d1f564747d3d7203a2d4e94619"
)

func decodePMT(t *testing.T, hexStr string) *PartialMerkleTree {
	t.Helper()
	raw, err := hex.DecodeString(hexStr)
	require.NoError(t, err)
	var pmt PartialMerkleTree
	require.NoError(t, pmt.Decode(bytes.NewReader(raw)))
	return &pmt
}

func TestPartialMerkleTreeDecode(t *testing.T) {
	pmt := decodePMT(t, pmt2Hex)
	assert.Equal(t, uint32(2), pmt.Total)
	require.Len(t, pmt.Hashes, 2)
	assert.Equal(t, txidA, pmt.Hashes[0])
	assert.Equal(t, txidB, pmt.Hashes[1])
	assert.Equal(t, []byte{0x03}, pmt.Flags)
}

func TestPartialMerkleTreeEncodeRoundTrip(t *testing.T) {
	for _, hexStr := range []string{pmt1Hex, pmt2Hex, pmt3Hex} {
		pmt := decodePMT(t, hexStr)
		var buf bytes.Buffer
		require.NoError(t, pmt.Encode(&buf))
		assert.Equal(t, hexStr, hex.EncodeToString(buf.Bytes()))
	}
}

func TestExtractMatchesSingleTx(t *testing.T) {
	root, matches, indices, err := decodePMT(t, pmt1Hex).ExtractMatches()
	require.NoError(t, err)
	assert.Equal(t, txidA, root)
	assert.Equal(t, []Hash{txidA}, matches)
	assert.Equal(t, []uint32{0}, indices)
}

func TestExtractMatchesTwoTx(t *testing.T) {
	root, matches, indices, err := decodePMT(t, pmt2Hex).ExtractMatches()
	require.NoError(t, err)
	assert.Equal(t, root2Internal, hex.EncodeToString(root[:]))
	assert.Equal(t, []Hash{txidA}, matches)
	assert.Equal(t, []uint32{0}, indices)
}

func TestExtractMatchesOddLeafDuplicated(t *testing.T) {
	root, matches, indices, err := decodePMT(t, pmt3Hex).ExtractMatches()
	require.NoError(t, err)
	assert.Equal(t, root3Internal, hex.EncodeToString(root[:]))
	assert.Equal(t, []Hash{txidC}, matches)
	assert.Equal(t, []uint32{2}, indices)
}

func TestExtractMatchesRejectsDuplicateSiblings(t *testing.T) {
	// Identical left and right subtree hashes, the CVE-2012-2459 shape.
	pmt := &PartialMerkleTree{
		Total:  2,
		Hashes: []Hash{txidA, txidA},
		Flags:  []byte{0x03},
	}
	_, _, _, err := pmt.ExtractMatches()
	assert.Error(t, err)
}

func TestExtractMatchesRejectsUnconsumedHashes(t *testing.T) {
	pmt := &PartialMerkleTree{
		Total:  1,
		Hashes: []Hash{txidA, txidB},
		Flags:  []byte{0x01},
	}
	_, _, _, err := pmt.ExtractMatches()
	assert.Error(t, err)
}

func TestExtractMatchesRejectsOverrunFlags(t *testing.T) {
	pmt := &PartialMerkleTree{
		Total:  2,
		Hashes: []Hash{txidA},
		Flags:  []byte{0x01},
	}
	// Internal node wants two more bits and another hash.
	_, _, _, err := pmt.ExtractMatches()
	assert.Error(t, err)
}

func TestExtractMatchesRejectsExtraFlagBytes(t *testing.T) {
	pmt := &PartialMerkleTree{
		Total:  1,
		Hashes: []Hash{txidA},
		Flags:  []byte{0x01, 0x00},
	}
	_, _, _, err := pmt.ExtractMatches()
	assert.Error(t, err)
}

func TestMerkleBlockDecode(t *testing.T) {
	raw, err := hex.DecodeString(genesisHeaderHex + pmt1Hex)
	require.NoError(t, err)

	var mb MerkleBlock
	require.NoError(t, mb.Decode(bytes.NewReader(raw)))
	assert.Equal(t, genesisHash, mb.Header.BlockHash().String())
	assert.Equal(t, uint32(1), mb.Tree.Total)
}
