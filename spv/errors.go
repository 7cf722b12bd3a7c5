package spv

import "errors"

// Verification failure kinds. The pipeline wraps these with the failing step
// name; callers classify with errors.Is.
var (
	// ErrEncoding reports a proof artifact that could not be serialized.
	ErrEncoding = errors.New("proof encoding failed")
	// ErrDecode reports a proof artifact or embedded payload that could not
	// be parsed.
	ErrDecode = errors.New("proof decoding failed")
	// ErrProofMismatch reports a cryptographic binding that did not hold.
	ErrProofMismatch = errors.New("proof mismatch")
	// ErrInvariantViolation reports structurally inconsistent proof data.
	ErrInvariantViolation = errors.New("proof invariant violation")
	// ErrInsufficientWork reports a subchain whose accumulated work is below
	// the confirmation threshold.
	ErrInsufficientWork = errors.New("insufficient proof of work")
)
