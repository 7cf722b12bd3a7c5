package btc

import (
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/gianalarcon/raito/mmr"
)

// HeaderSize is the serialized length of a block header.
const HeaderSize = wire.MaxBlockHeaderPayload

// BlockHeader is the 80-byte Bitcoin block header, with the timestamp kept
// as the raw uint32 word the circuit hashes.
type BlockHeader struct {
	Version    int32  `json:"version"`
	PrevBlock  Hash   `json:"prev_blockhash"`
	MerkleRoot Hash   `json:"merkle_root"`
	Time       uint32 `json:"time"`
	Bits       uint32 `json:"bits"`
	Nonce      uint32 `json:"nonce"`
}

func (h *BlockHeader) wireHeader() *wire.BlockHeader {
	return &wire.BlockHeader{
		Version:    h.Version,
		PrevBlock:  chainhash.Hash(h.PrevBlock),
		MerkleRoot: chainhash.Hash(h.MerkleRoot),
		Timestamp:  time.Unix(int64(h.Time), 0),
		Bits:       h.Bits,
		Nonce:      h.Nonce,
	}
}

// Decode parses a header from its wire encoding.
func (h *BlockHeader) Decode(r io.Reader) error {
	var wh wire.BlockHeader
	if err := wh.Deserialize(r); err != nil {
		return fmt.Errorf("read block header: %w", err)
	}
	h.Version = wh.Version
	h.PrevBlock = Hash(wh.PrevBlock)
	h.MerkleRoot = Hash(wh.MerkleRoot)
	h.Time = uint32(wh.Timestamp.Unix())
	h.Bits = wh.Bits
	h.Nonce = wh.Nonce
	return nil
}

// Encode writes the wire encoding of the header.
func (h *BlockHeader) Encode(w io.Writer) error {
	return h.wireHeader().Serialize(w)
}

// BlockHash is the double-SHA256 of the serialized header.
func (h *BlockHeader) BlockHash() Hash {
	return Hash(h.wireHeader().BlockHash())
}

// Digest computes the accumulator leaf digest of the header. Each field is
// hashed as a fixed-width big-endian word, hashes in their internal byte
// order.
func (h *BlockHeader) Digest(hasher mmr.Hasher) (string, error) {
	return hasher.Hash(
		fmt.Sprintf("0x%08x", uint32(h.Version)),
		h.PrevBlock.InternalHex(),
		h.MerkleRoot.InternalHex(),
		fmt.Sprintf("0x%08x", h.Time),
		fmt.Sprintf("0x%08x", h.Bits),
		fmt.Sprintf("0x%08x", h.Nonce),
	)
}
