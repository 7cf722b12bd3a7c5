// Package btc bridges the Bitcoin wire format to the proof system: block
// headers, transactions, txids and partial Merkle trees. Serialization and
// hashing are delegated to btcd; consensus validation (PoW, scripts) is
// deliberately absent.
package btc

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HashSize is the byte length of all Bitcoin hashes.
const HashSize = chainhash.HashSize

// Hash is a Bitcoin double-SHA256 hash. Bytes are kept in internal
// (little-endian) order; String and the JSON/text encodings use the reversed
// display order, following the bitcoind RPC convention.
type Hash chainhash.Hash

// DoubleSHA256 computes sha256(sha256(b)).
func DoubleSHA256(b []byte) Hash {
	return Hash(chainhash.DoubleHashH(b))
}

// NewHashFromString parses a display-order (reversed) hex string. Unlike
// chainhash.NewHashFromStr it rejects short inputs instead of zero-padding.
func NewHashFromString(s string) (Hash, error) {
	if len(s) != HashSize*2 {
		return Hash{}, fmt.Errorf("invalid hash length %d, want %d", len(s), HashSize*2)
	}
	ch, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return Hash(*ch), nil
}

// String returns the display-order hex encoding.
func (h Hash) String() string {
	return (*chainhash.Hash)(&h).String()
}

// InternalHex returns the 0x-prefixed hex of the internal byte order, the
// form fed to the circuit hasher.
func (h Hash) InternalHex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := NewHashFromString(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
