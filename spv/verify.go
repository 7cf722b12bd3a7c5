package spv

import (
	"bytes"
	"fmt"

	"github.com/gianalarcon/raito/btc"
	"github.com/gianalarcon/raito/internal/logger"
	"github.com/gianalarcon/raito/mmr"
	"github.com/gianalarcon/raito/stark"
)

// VerifyOptions tunes the pipeline. Dev relaxes the structural pre-check and
// the root cross-check for proofs built against a stale or synthetic chain
// state; the cryptographic steps are never relaxed.
type VerifyOptions struct {
	Dev bool
}

// VerifyTransaction checks that tx is committed by header's Merkle root via
// the raw merkleblock proofBytes.
func VerifyTransaction(tx *btc.Transaction, header *btc.BlockHeader, proofBytes []byte) error {
	var mb btc.MerkleBlock
	if err := mb.Decode(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if got, want := mb.Header.BlockHash(), header.BlockHash(); got != want {
		return fmt.Errorf("%w: proof header %s, block header %s", ErrProofMismatch, got, want)
	}
	root, matches, _, err := mb.Tree.ExtractMatches()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if root != header.MerkleRoot {
		return fmt.Errorf("%w: computed merkle root %s, header commits %s", ErrProofMismatch, root, header.MerkleRoot)
	}
	if len(matches) != 1 {
		return fmt.Errorf("%w: proof matches %d transactions, want exactly 1", ErrProofMismatch, len(matches))
	}
	if txid := tx.TxID(); matches[0] != txid {
		return fmt.Errorf("%w: proven txid %s, transaction has %s", ErrProofMismatch, matches[0], txid)
	}
	return nil
}

// VerifyBlockHeader proves the header against the accumulator and returns the
// implied root hash.
func VerifyBlockHeader(hasher mmr.Hasher, header *btc.BlockHeader, proof *BlockInclusionProof) (string, error) {
	leaf, err := header.Digest(hasher)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	root, err := mmr.VerifyProof(hasher, leaf, proof)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProofMismatch, err)
	}
	return root, nil
}

// VerifyChainState checks the recursive proof's claim against the expected
// program identities and chain state, the cryptographic verification last.
// It returns the accumulator root the proof attests.
func VerifyChainState(hasher mmr.Hasher, csp *ChainStateProof, verifier stark.Verifier, cfg *VerifierConfig) (string, error) {
	out, err := csp.Proof.VerificationOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	boot, err := stark.DecodeBootloaderOutput(out.Output, cfg.TaskOutputSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	digest, err := csp.ChainState.Digest(hasher)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if digest != boot.ChainStateDigest {
		return "", fmt.Errorf("%w: chain state digest %s, proof attests %s", ErrProofMismatch, digest, boot.ChainStateDigest)
	}

	// Identity chaining: each layer must attest the expected program and the
	// one it verified beneath itself, or a substitute program could vouch for
	// an arbitrary chain state.
	if boot.ProgramHash != cfg.TaskProgramHash {
		return "", fmt.Errorf("%w: task program hash %s, expected %s", ErrProofMismatch, boot.ProgramHash, cfg.TaskProgramHash)
	}
	if boot.PrevChainProgramHash != cfg.TaskProgramHash {
		return "", fmt.Errorf("%w: task verified program %s, expected %s", ErrProofMismatch, boot.PrevChainProgramHash, cfg.TaskProgramHash)
	}
	if got := stark.FeltHex(out.ProgramHash); got != cfg.BootloaderHash {
		return "", fmt.Errorf("%w: bootloader hash %s, expected %s", ErrProofMismatch, got, cfg.BootloaderHash)
	}
	if boot.PrevBootloaderHash != cfg.BootloaderHash {
		return "", fmt.Errorf("%w: task verified bootloader %s, expected %s", ErrProofMismatch, boot.PrevBootloaderHash, cfg.BootloaderHash)
	}

	if err := verifier.Verify(&csp.Proof, stark.TraceCanonical); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProofMismatch, err)
	}
	return boot.MmrRoot, nil
}

// Verify runs the full pipeline over a proof artifact, strictly sequential
// with no retry. It is side effect free and safe for concurrent use on
// distinct proofs.
func Verify(proof *CompressedSpvProof, verifier stark.Verifier, cfg *VerifierConfig, opts VerifyOptions) error {
	log := logger.With("spv")
	hasher := mmr.NewStarkBlake()
	cs := &proof.ChainStateProof.ChainState

	if !opts.Dev {
		if got, want := proof.BlockInclusionProof.LeafCount, uint64(cs.BlockHeight)+1; got != want {
			return fmt.Errorf("structural check: %w: proof leaf count %d, chain state implies %d",
				ErrInvariantViolation, got, want)
		}
	}

	blockHeight := proof.BlockHeight()

	var tx btc.Transaction
	if err := tx.Decode(bytes.NewReader(proof.Transaction)); err != nil {
		return fmt.Errorf("decode transaction: %w: %v", ErrDecode, err)
	}
	if err := VerifyTransaction(&tx, &proof.BlockHeader, proof.TxOutProof); err != nil {
		return fmt.Errorf("verify transaction: %w", err)
	}
	log.Debug().Stringer("txid", tx.TxID()).Msg("transaction inclusion verified")

	inclusionRoot, err := VerifyBlockHeader(hasher, &proof.BlockHeader, &proof.BlockInclusionProof)
	if err != nil {
		return fmt.Errorf("verify block header: %w", err)
	}
	log.Debug().Uint64("leaf_index", proof.BlockInclusionProof.LeafIndex).Msg("block inclusion verified")

	attestedRoot, err := VerifyChainState(hasher, &proof.ChainStateProof, verifier, cfg)
	if err != nil {
		return fmt.Errorf("verify chain state: %w", err)
	}

	if !opts.Dev && inclusionRoot != attestedRoot {
		return fmt.Errorf("root cross-check: %w: inclusion proof root %s, chain proof attests %s",
			ErrProofMismatch, inclusionRoot, attestedRoot)
	}

	if err := VerifySubchainWork(blockHeight, cs, cfg); err != nil {
		return fmt.Errorf("verify subchain work: %w", err)
	}
	log.Debug().Uint32("height", blockHeight).Uint32("tip", cs.BlockHeight).Msg("proof verified")
	return nil
}
