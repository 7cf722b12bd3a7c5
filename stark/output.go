// Package stark models the public output of the recursive chain proof and the
// boundary to the external cryptographic verifier.
package stark

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Felt is a field element of the proof system.
type Felt = fr.Element

// ErrOutputMalformed reports a public output that does not carry a single
// well-formed task frame.
var ErrOutputMalformed = errors.New("malformed verifier output")

// DefaultTaskOutputSize is the felt count of a task frame, the size word
// included.
const DefaultTaskOutputSize = 8

// FeltFromString parses a decimal or 0x-prefixed hex field element.
func FeltFromString(s string) (Felt, error) {
	var f Felt
	if _, err := f.SetString(s); err != nil {
		return Felt{}, fmt.Errorf("invalid field element %q: %w", s, err)
	}
	return f, nil
}

// FeltHex renders a single felt as a 256-bit hex digest.
func FeltHex(f Felt) string {
	return fmt.Sprintf("0x%064x", f.BigInt(new(big.Int)))
}

// DigestHex reassembles a 256-bit digest that crossed the felt boundary as a
// (hi, lo) pair of 128-bit halves.
func DigestHex(hi, lo Felt) string {
	v := new(big.Int).Lsh(hi.BigInt(new(big.Int)), 128)
	v.Or(v, lo.BigInt(new(big.Int)))
	return fmt.Sprintf("0x%064x", v)
}

// VerificationOutput is the public claim of a recursive proof: the verified
// program identity followed by that program's raw output felts.
type VerificationOutput struct {
	ProgramHash Felt
	Output      []Felt
}

// BootloaderOutput is the decoded task frame of the chain-proving program:
// the attested chain state and accumulator root plus the program identities
// binding the recursion.
type BootloaderOutput struct {
	ProgramHash          string
	ChainStateDigest     string
	MmrRoot              string
	PrevChainProgramHash string
	PrevBootloaderHash   string
}

// DecodeBootloaderOutput interprets raw output felts as a single-task
// bootloader output. taskOutputSize is the expected frame length in felts,
// counting the leading size word itself.
func DecodeBootloaderOutput(output []Felt, taskOutputSize int) (*BootloaderOutput, error) {
	if taskOutputSize < DefaultTaskOutputSize {
		return nil, fmt.Errorf("%w: task output size %d below minimum %d", ErrOutputMalformed, taskOutputSize, DefaultTaskOutputSize)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrOutputMalformed)
	}
	nTasks, ok := feltUint64(output[0])
	if !ok || nTasks != 1 {
		return nil, fmt.Errorf("%w: expected exactly 1 task, got %s", ErrOutputMalformed, output[0].String())
	}
	frame := output[1:]
	if len(frame) != taskOutputSize {
		return nil, fmt.Errorf("%w: task frame has %d felts, want %d", ErrOutputMalformed, len(frame), taskOutputSize)
	}
	size, ok := feltUint64(frame[0])
	if !ok || size != uint64(taskOutputSize) {
		return nil, fmt.Errorf("%w: task declares output size %s, want %d", ErrOutputMalformed, frame[0].String(), taskOutputSize)
	}

	return &BootloaderOutput{
		ProgramHash:          FeltHex(frame[1]),
		ChainStateDigest:     DigestHex(frame[2], frame[3]),
		MmrRoot:              DigestHex(frame[4], frame[5]),
		PrevChainProgramHash: FeltHex(frame[6]),
		PrevBootloaderHash:   FeltHex(frame[7]),
	}, nil
}

func feltUint64(f Felt) (uint64, bool) {
	v := f.BigInt(new(big.Int))
	if !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}
