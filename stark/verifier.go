package stark

import (
	"bytes"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/gianalarcon/raito/internal/logger"
)

// TraceVariant selects the verifying key for a proof's trace layout.
type TraceVariant int

const (
	// TraceCanonical is the standard chain-proving trace.
	TraceCanonical TraceVariant = iota
)

func (v TraceVariant) String() string {
	switch v {
	case TraceCanonical:
		return "canonical"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Proof is a portable recursive proof: the serialized proof itself plus its
// ordered public inputs, program hash first.
type Proof struct {
	Proof        []byte   `json:"proof"`
	PublicInputs []string `json:"public_inputs"`
}

// VerificationOutput parses the public inputs into the proof's claim.
func (p *Proof) VerificationOutput() (*VerificationOutput, error) {
	if len(p.PublicInputs) == 0 {
		return nil, fmt.Errorf("%w: no public inputs", ErrOutputMalformed)
	}
	felts := make([]Felt, len(p.PublicInputs))
	for i, s := range p.PublicInputs {
		f, err := FeltFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: public input %d: %v", ErrOutputMalformed, i, err)
		}
		felts[i] = f
	}
	return &VerificationOutput{ProgramHash: felts[0], Output: felts[1:]}, nil
}

// Verifier checks the cryptographic validity of a recursive proof against its
// public inputs.
type Verifier interface {
	Verify(proof *Proof, variant TraceVariant) error
}

// publicClaim is the public-input shape of the recursion verifier circuit.
// Only its witness layout matters here.
type publicClaim struct {
	ProgramHash frontend.Variable   `gnark:",public"`
	Output      []frontend.Variable `gnark:",public"`
}

func (c *publicClaim) Define(frontend.API) error { return nil }

// GnarkVerifier verifies groth16 proofs over BN254, one verifying key per
// trace variant.
type GnarkVerifier struct {
	keys map[TraceVariant]groth16.VerifyingKey
}

func NewGnarkVerifier() *GnarkVerifier {
	return &GnarkVerifier{keys: make(map[TraceVariant]groth16.VerifyingKey)}
}

// RegisterKey reads a serialized verifying key for a trace variant.
func (g *GnarkVerifier) RegisterKey(variant TraceVariant, r io.Reader) error {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(r); err != nil {
		return fmt.Errorf("read verifying key for %s: %w", variant, err)
	}
	g.keys[variant] = vk
	return nil
}

func (g *GnarkVerifier) Verify(p *Proof, variant TraceVariant) error {
	vk, ok := g.keys[variant]
	if !ok {
		return fmt.Errorf("no verifying key registered for trace %s", variant)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(p.Proof)); err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}

	out, err := p.VerificationOutput()
	if err != nil {
		return err
	}
	claim := &publicClaim{
		ProgramHash: out.ProgramHash,
		Output:      make([]frontend.Variable, len(out.Output)),
	}
	for i := range out.Output {
		claim.Output[i] = out.Output[i]
	}

	witness, err := frontend.NewWitness(claim, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("build public witness: %w", err)
	}

	log := logger.Logger().With().Str("trace", variant.String()).Logger()
	if err := groth16.Verify(proof, vk, witness); err != nil {
		log.Debug().Err(err).Msg("proof rejected")
		return err
	}
	log.Debug().Int("public_inputs", len(p.PublicInputs)).Msg("proof verified")
	return nil
}
