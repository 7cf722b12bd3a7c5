package spv

import (
	"fmt"

	"github.com/holiman/uint256"
)

func decimalToUint256(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid 256-bit decimal %q: %w", s, err)
	}
	return v, nil
}

func decimalToUint256Hex(s string) (string, error) {
	v, err := decimalToUint256(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%064x", v.ToBig()), nil
}

// workForTarget is the expected hash count to find a block at the given
// target: 2^256 / (target+1), computed as (^target)/(target+1) + 1 to stay
// within 256 bits.
func workForTarget(target *uint256.Int) *uint256.Int {
	denom := new(uint256.Int).AddUint64(target, 1)
	if denom.IsZero() {
		// target was 2^256-1, one hash is always enough
		return uint256.NewInt(1)
	}
	w := new(uint256.Int).Not(target)
	w.Div(w, denom)
	return w.AddUint64(w, 1)
}

// VerifySubchainWork checks that the confirmations on top of the proven block
// carry at least the configured minimum work at the attested target.
func VerifySubchainWork(blockHeight uint32, cs *ChainState, cfg *VerifierConfig) error {
	if cs.BlockHeight < blockHeight {
		return fmt.Errorf("%w: chain tip %d below proven block %d", ErrInvariantViolation, cs.BlockHeight, blockHeight)
	}
	target, err := decimalToUint256(cs.CurrentTarget)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	minWork, err := decimalToUint256(cfg.MinWork)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	confirmations := uint64(cs.BlockHeight-blockHeight) + 1
	perBlock := workForTarget(target)
	total, overflow := new(uint256.Int).MulOverflow(perBlock, uint256.NewInt(confirmations))
	if overflow {
		// more work than fits in 256 bits is always sufficient
		return nil
	}
	if total.Lt(minWork) {
		return fmt.Errorf("%w: accumulated %s below minimum %s", ErrInsufficientWork, total.Dec(), minWork.Dec())
	}
	return nil
}
