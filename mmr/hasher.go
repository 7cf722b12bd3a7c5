package mmr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2s"
)

// NullRoot is the all-zero sentinel used for unoccupied sparse root slots.
const NullRoot = "0x0000000000000000000000000000000000000000000000000000000000000000"

// Hasher hashes an ordered list of hex-encoded elements into a single
// 32-byte digest, returned as a 0x-prefixed hex string. Implementations must
// be deterministic and safe for concurrent use.
type Hasher interface {
	Hash(elements ...string) (string, error)
}

// StarkBlake is the production hasher: blake2s-256 over the concatenated
// byte payloads of the input elements, fed to the compression function as
// big-endian u32 words the way the Cairo builtin consumes them. Unlike
// Bitcoin's double-SHA256 it is cheap to arithmetize, which is why it is
// used for leaf commitments and internal MMR nodes consumed by the proving
// circuit.
type StarkBlake struct{}

// NewStarkBlake returns the default circuit-friendly hasher.
func NewStarkBlake() *StarkBlake {
	return &StarkBlake{}
}

func (h *StarkBlake) Hash(elements ...string) (string, error) {
	d, err := blake2s.New256(nil)
	if err != nil {
		return "", err
	}
	var payload []byte
	for i, e := range elements {
		b, err := decodeHexElement(e)
		if err != nil {
			return "", fmt.Errorf("element %d: %w", i, err)
		}
		payload = append(payload, b...)
	}
	d.Write(swapWords(payload))
	return "0x" + hex.EncodeToString(swapWords(d.Sum(nil))), nil
}

// swapWords reverses the bytes within each 4-byte word, converting between
// the big-endian byte stream and the little-endian u32 words blake2s
// operates on. A trailing partial word is treated as a big-endian integer.
func swapWords(b []byte) []byte {
	out := make([]byte, 0, (len(b)+3)/4*4)
	for i := 0; i < len(b); i += 4 {
		word := b[i:min(i+4, len(b))]
		if len(word) < 4 {
			padded := make([]byte, 4)
			copy(padded[4-len(word):], word)
			word = padded
		}
		out = append(out, word[3], word[2], word[1], word[0])
	}
	return out
}

// decodeHexElement decodes a 0x-prefixed hex payload. Odd-length payloads are
// left-padded with a zero nibble so "0x1" and "0x01" denote the same byte.
func decodeHexElement(s string) ([]byte, error) {
	payload := strings.TrimPrefix(s, "0x")
	if payload == "" {
		return nil, fmt.Errorf("empty hex element")
	}
	if len(payload)%2 != 0 {
		payload = "0" + payload
	}
	b, err := hex.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid hex element %q: %w", s, err)
	}
	return b, nil
}
