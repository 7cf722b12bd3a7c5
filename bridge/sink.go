package bridge

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RootEncoding selects the on-disk number layout of a sparse-roots file.
type RootEncoding int

const (
	// RootEncodingSplit writes each root as {"hi": N, "lo": N}, the two
	// 128-bit halves of the digest as big-integer JSON numbers.
	RootEncodingSplit RootEncoding = iota
	// RootEncodingBigInt writes each root as a single big-integer number.
	RootEncodingBigInt
)

// DefaultShardSize is the per-directory block grouping of the roots tree.
const DefaultShardSize = 10_000

// RootsSink writes per-block sparse-roots files for the prover, sharded into
// fixed-size directories.
type RootsSink struct {
	Dir       string
	ShardSize uint64
	Encoding  RootEncoding
}

// Path returns the file a block's roots are written to.
func (s *RootsSink) Path(height uint32) string {
	shardSize := s.ShardSize
	if shardSize == 0 {
		shardSize = DefaultShardSize
	}
	shard := (uint64(height)/shardSize + 1) * shardSize
	return filepath.Join(s.Dir, strconv.FormatUint(shard, 10), fmt.Sprintf("block_%d.json", height))
}

// rootsFile is the on-disk document the prover consumes.
type rootsFile struct {
	Roots []json.RawMessage `json:"roots"`
}

// Write encodes the sparse roots of the accumulator state after the block at
// height was appended.
func (s *RootsSink) Write(height uint32, roots []string) error {
	encoded := make([]json.RawMessage, len(roots))
	for i, root := range roots {
		raw, err := encodeRoot(root, s.Encoding)
		if err != nil {
			return fmt.Errorf("encode root %d of block %d: %w", i, height, err)
		}
		encoded[i] = raw
	}
	payload, err := json.Marshal(rootsFile{Roots: encoded})
	if err != nil {
		return err
	}

	path := s.Path(height)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func encodeRoot(root string, enc RootEncoding) (json.RawMessage, error) {
	digits := strings.TrimPrefix(root, "0x")
	if len(digits) != 64 {
		return nil, fmt.Errorf("root %q is not a 256-bit digest", root)
	}
	switch enc {
	case RootEncodingSplit:
		hi, err := parseHexNumber(digits[:32])
		if err != nil {
			return nil, err
		}
		lo, err := parseHexNumber(digits[32:])
		if err != nil {
			return nil, err
		}
		return json.RawMessage(fmt.Sprintf(`{"hi":%s,"lo":%s}`, hi, lo)), nil
	case RootEncodingBigInt:
		v, err := parseHexNumber(digits)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(v), nil
	default:
		return nil, fmt.Errorf("unknown root encoding %d", enc)
	}
}

func parseHexNumber(digits string) (string, error) {
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return "", fmt.Errorf("invalid hex digits %q", digits)
	}
	return v.String(), nil
}
