// Package spv implements the layered SPV proof artifact and its verification
// pipeline: a transaction Merkle proof, the block's accumulator inclusion
// proof, the recursive chain-state proof, and the confirmation-work check.
package spv

import (
	"fmt"

	"github.com/gianalarcon/raito/btc"
	"github.com/gianalarcon/raito/mmr"
	"github.com/gianalarcon/raito/stark"
)

// timestampWindow is the number of trailing block timestamps the chain state
// carries for median-time-past validation.
const timestampWindow = 11

// ChainState is the consensus state attested by the recursive chain proof.
type ChainState struct {
	BlockHeight    uint32                  `json:"block_height"`
	TotalWork      string                  `json:"total_work"`
	BestBlockHash  btc.Hash                `json:"best_block_hash"`
	CurrentTarget  string                  `json:"current_target"`
	EpochStartTime uint32                  `json:"epoch_start_time"`
	PrevTimestamps [timestampWindow]uint32 `json:"prev_timestamps"`
}

// Digest binds every chain-state field through the circuit hasher: numbers as
// fixed-width big-endian words, hashes in internal byte order.
func (cs *ChainState) Digest(hasher mmr.Hasher) (string, error) {
	totalWork, err := decimalToUint256Hex(cs.TotalWork)
	if err != nil {
		return "", fmt.Errorf("total work: %w", err)
	}
	target, err := decimalToUint256Hex(cs.CurrentTarget)
	if err != nil {
		return "", fmt.Errorf("current target: %w", err)
	}

	elements := make([]string, 0, 5+timestampWindow)
	elements = append(elements,
		fmt.Sprintf("0x%016x", cs.BlockHeight),
		totalWork,
		cs.BestBlockHash.InternalHex(),
		target,
		fmt.Sprintf("0x%016x", cs.EpochStartTime),
	)
	for _, ts := range cs.PrevTimestamps {
		elements = append(elements, fmt.Sprintf("0x%016x", ts))
	}
	return hasher.Hash(elements...)
}

// BlockInclusionProof proves a block header digest against the header
// accumulator.
type BlockInclusionProof = mmr.InclusionProof

// ChainStateProof couples a claimed chain state with the recursive proof
// attesting it.
type ChainStateProof struct {
	ChainState ChainState  `json:"chainstate"`
	Proof      stark.Proof `json:"proof"`
}

// CompressedSpvProof is the self-contained artifact handed from producer to
// verifier. TxOutProof is the raw merkleblock returned by bitcoind. The block
// height is not carried separately: it is the inclusion proof's leaf index,
// which the accumulator check pins.
type CompressedSpvProof struct {
	Transaction         []byte              `json:"transaction"`
	TxOutProof          []byte              `json:"txout_proof"`
	BlockHeader         btc.BlockHeader     `json:"block_header"`
	BlockInclusionProof BlockInclusionProof `json:"block_inclusion_proof"`
	ChainStateProof     ChainStateProof     `json:"chainstate_proof"`
}

// BlockHeight is the height of the proven block, derived from the inclusion
// proof's leaf index.
func (p *CompressedSpvProof) BlockHeight() uint32 {
	return uint32(p.BlockInclusionProof.LeafIndex)
}

// VerifierConfig pins the trust anchors of verification: the minimum
// confirmation work and the program identities the recursive proof must carry.
type VerifierConfig struct {
	MinWork         string
	BootloaderHash  string
	TaskProgramHash string
	TaskOutputSize  int
}

// DefaultVerifierConfig returns the mainnet anchors: six blocks of
// max-difficulty-era work and the canonical program hashes.
func DefaultVerifierConfig() *VerifierConfig {
	return &VerifierConfig{
		MinWork:         "1813388729421943762059264",
		BootloaderHash:  "0x0001837d8b77b6368e0129ce3f65b5d63863cfab93c47865ee5cbe62922ab8f3",
		TaskProgramHash: "0x00f0876bb47895e8c4a6e7043829d7886e3b135e3ef30544fb688ef4e25663ca",
		TaskOutputSize:  stark.DefaultTaskOutputSize,
	}
}
