package spv

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gianalarcon/raito/btc"
	"github.com/gianalarcon/raito/mmr"
	"github.com/gianalarcon/raito/stark"
)

const (
	genesisHeaderHex = "0100000000000000000000000000000000000000000000000000000000000000" +
		"000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa" +
		"4b1e5e4a29ab5f49ffff001d1dac2b7c"

	genesisCoinbaseHex = "01000000010000000000000000000000000000000000000000000000000000000000000000" +
		"ffffffff4d04ffff001d0104455468652054696d65732030332f4a616e2f32303039204368" +
		"616e63656c6c6f72206f6e206272696e6b206f66207365636f6e64206261696c6f75742066" +
		"6f722062616e6b73ffffffff0100f2052a01000000434104678afdb0fe5548271967f1a671" +
		"30b7105cd6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c38" +
		"4df7ba0b8d578a4c702b6bf11d5fac00000000"

	// merkleblock of the genesis coinbase, as gettxoutproof would return it
	genesisTxOutProofHex = genesisHeaderHex +
		"01000000013ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a0101"

	maxTargetDecimal = "26959535291011309493156476344723991336010898738574164086137773096960"
	// 2^256 / (maxTarget + 1)
	maxTargetWork = "4295032833"

	testBootloaderHash  = "0x000000000000000000000000000000000000000000000000000000000000b007"
	testTaskProgramHash = "0x000000000000000000000000000000000000000000000000000000000000f00d"
)

type stubVerifier struct {
	err   error
	calls int
}

func (s *stubVerifier) Verify(*stark.Proof, stark.TraceVariant) error {
	s.calls++
	return s.err
}

func mustBytes(t *testing.T, hexStr string) []byte {
	t.Helper()
	b, err := hex.DecodeString(hexStr)
	require.NoError(t, err)
	return b
}

func genesisChainState() ChainState {
	best, _ := btc.NewHashFromString("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	cs := ChainState{
		BlockHeight:    0,
		TotalWork:      maxTargetWork,
		BestBlockHash:  best,
		CurrentTarget:  maxTargetDecimal,
		EpochStartTime: 1231006505,
	}
	for i := range cs.PrevTimestamps {
		cs.PrevTimestamps[i] = 1231006505
	}
	return cs
}

// splitDigest turns a 0x-prefixed 64-hex digest into its (hi, lo) public
// input strings.
func splitDigest(t *testing.T, digest string) (string, string) {
	t.Helper()
	require.Len(t, digest, 2+64)
	return "0x" + digest[2:34], "0x" + digest[34:]
}

// buildArtifact assembles an internally consistent proof over a single-block
// chain: the genesis coinbase, proven against a one-leaf accumulator.
func buildArtifact(t *testing.T) (*CompressedSpvProof, *VerifierConfig) {
	t.Helper()
	ctx := context.Background()
	hasher := mmr.NewStarkBlake()

	var header btc.BlockHeader
	require.NoError(t, header.Decode(bytes.NewReader(mustBytes(t, genesisHeaderHex))))

	acc := mmr.New(mmr.NewMemStore(), hasher, "headers")
	digest, err := header.Digest(hasher)
	require.NoError(t, err)
	err = acc.Append(ctx, digest)
	require.NoError(t, err)

	inclusion, err := acc.Proof(ctx, 0, 1)
	require.NoError(t, err)
	root, err := acc.RootHash(ctx)
	require.NoError(t, err)

	cs := genesisChainState()
	csDigest, err := cs.Digest(hasher)
	require.NoError(t, err)

	csHi, csLo := splitDigest(t, csDigest)
	mmrHi, mmrLo := splitDigest(t, root)
	proof := stark.Proof{
		PublicInputs: []string{
			testBootloaderHash,
			"1", "8",
			testTaskProgramHash,
			csHi, csLo,
			mmrHi, mmrLo,
			testTaskProgramHash,
			testBootloaderHash,
		},
	}

	cfg := &VerifierConfig{
		MinWork:         maxTargetWork,
		BootloaderHash:  testBootloaderHash,
		TaskProgramHash: testTaskProgramHash,
		TaskOutputSize:  stark.DefaultTaskOutputSize,
	}
	artifact := &CompressedSpvProof{
		Transaction:         mustBytes(t, genesisCoinbaseHex),
		TxOutProof:          mustBytes(t, genesisTxOutProofHex),
		BlockHeader:         header,
		BlockInclusionProof: *inclusion,
		ChainStateProof:     ChainStateProof{ChainState: cs, Proof: proof},
	}
	return artifact, cfg
}

// buildTipArtifact proves the newest block of a seven-block chain. The six
// earlier leaves are synthetic digests; the genesis header sits at the tip.
func buildTipArtifact(t *testing.T) (*CompressedSpvProof, *VerifierConfig) {
	t.Helper()
	ctx := context.Background()
	hasher := mmr.NewStarkBlake()

	var header btc.BlockHeader
	require.NoError(t, header.Decode(bytes.NewReader(mustBytes(t, genesisHeaderHex))))
	digest, err := header.Digest(hasher)
	require.NoError(t, err)

	acc := mmr.New(mmr.NewMemStore(), hasher, "headers")
	for i := range 6 {
		leaf, err := hasher.Hash(fmt.Sprintf("0x%064x", i+1))
		require.NoError(t, err)
		require.NoError(t, acc.Append(ctx, leaf))
	}
	require.NoError(t, acc.Append(ctx, digest))

	inclusion, err := acc.Proof(ctx, 6, 7)
	require.NoError(t, err)
	root, err := acc.RootHash(ctx)
	require.NoError(t, err)

	cs := genesisChainState()
	cs.BlockHeight = 6
	csDigest, err := cs.Digest(hasher)
	require.NoError(t, err)

	csHi, csLo := splitDigest(t, csDigest)
	mmrHi, mmrLo := splitDigest(t, root)
	proof := stark.Proof{
		PublicInputs: []string{
			testBootloaderHash,
			"1", "8",
			testTaskProgramHash,
			csHi, csLo,
			mmrHi, mmrLo,
			testTaskProgramHash,
			testBootloaderHash,
		},
	}

	cfg := &VerifierConfig{
		MinWork:         maxTargetWork,
		BootloaderHash:  testBootloaderHash,
		TaskProgramHash: testTaskProgramHash,
		TaskOutputSize:  stark.DefaultTaskOutputSize,
	}
	artifact := &CompressedSpvProof{
		Transaction:         mustBytes(t, genesisCoinbaseHex),
		TxOutProof:          mustBytes(t, genesisTxOutProofHex),
		BlockHeader:         header,
		BlockInclusionProof: *inclusion,
		ChainStateProof:     ChainStateProof{ChainState: cs, Proof: proof},
	}
	return artifact, cfg
}

func TestChainStateDigest(t *testing.T) {
	best, err := btc.NewHashFromString("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	require.NoError(t, err)
	cs := ChainState{
		BlockHeight:    100,
		TotalWork:      "12345678901234567890",
		BestBlockHash:  best,
		CurrentTarget:  maxTargetDecimal,
		EpochStartTime: 1231006505,
	}
	for i := range cs.PrevTimestamps {
		cs.PrevTimestamps[i] = 1231006505 + uint32(i)
	}

	digest, err := cs.Digest(mmr.NewStarkBlake())
	require.NoError(t, err)
	assert.Equal(t, "0xe5ce5e8e244d941c3bafd1dae0458366badd0962a39b62bfdeea2b5cb9509394", digest)
}

func TestVerifyTransaction(t *testing.T) {
	var header btc.BlockHeader
	require.NoError(t, header.Decode(bytes.NewReader(mustBytes(t, genesisHeaderHex))))
	var tx btc.Transaction
	require.NoError(t, tx.Decode(bytes.NewReader(mustBytes(t, genesisCoinbaseHex))))
	proofBytes := mustBytes(t, genesisTxOutProofHex)

	require.NoError(t, VerifyTransaction(&tx, &header, proofBytes))

	t.Run("foreign header", func(t *testing.T) {
		other := header
		other.Nonce++
		err := VerifyTransaction(&tx, &other, proofBytes)
		assert.ErrorIs(t, err, ErrProofMismatch)
	})

	t.Run("foreign transaction", func(t *testing.T) {
		other := tx
		other.LockTime = 99
		err := VerifyTransaction(&other, &header, proofBytes)
		assert.ErrorIs(t, err, ErrProofMismatch)
		assert.Contains(t, err.Error(), other.TxID().String())
	})

	t.Run("multiple matches", func(t *testing.T) {
		txidA := btc.Hash(bytes.Repeat([]byte{0xaa}, btc.HashSize))
		txidB := btc.Hash(bytes.Repeat([]byte{0xbb}, btc.HashSize))
		root := btc.DoubleSHA256(append(append([]byte{}, txidA[:]...), txidB[:]...))

		hdr := btc.BlockHeader{Version: 1, MerkleRoot: root}
		var buf bytes.Buffer
		require.NoError(t, hdr.Encode(&buf))
		pmt := btc.PartialMerkleTree{Total: 2, Hashes: []btc.Hash{txidA, txidB}, Flags: []byte{0x07}}
		require.NoError(t, pmt.Encode(&buf))

		err := VerifyTransaction(&tx, &hdr, buf.Bytes())
		assert.ErrorIs(t, err, ErrProofMismatch)
		assert.Contains(t, err.Error(), "exactly 1")
	})

	t.Run("garbage proof", func(t *testing.T) {
		err := VerifyTransaction(&tx, &header, []byte{0x00, 0x01})
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestVerifyPipeline(t *testing.T) {
	artifact, cfg := buildArtifact(t)
	verifier := &stubVerifier{}

	require.NoError(t, Verify(artifact, verifier, cfg, VerifyOptions{}))
	assert.Equal(t, 1, verifier.calls)
}

func TestVerifyPipelinePreCheck(t *testing.T) {
	artifact, cfg := buildArtifact(t)
	artifact.ChainStateProof.ChainState.BlockHeight = 7

	verifier := &stubVerifier{}
	err := Verify(artifact, verifier, cfg, VerifyOptions{})
	assert.ErrorIs(t, err, ErrInvariantViolation)
	// structural failure short-circuits before any cryptography
	assert.Zero(t, verifier.calls)
}

// A proof for the chain tip carries exactly one confirmation: the height fed
// to the work check is the inclusion proof's leaf index, which the
// accumulator pins, not a free-standing artifact field.
func TestVerifyPipelineTipConfirmations(t *testing.T) {
	artifact, cfg := buildTipArtifact(t)
	require.Equal(t, uint32(6), artifact.BlockHeight())

	cfg.MinWork = "25770196998" // six confirmations at the maximum target
	err := Verify(artifact, &stubVerifier{}, cfg, VerifyOptions{})
	assert.ErrorIs(t, err, ErrInsufficientWork)

	cfg.MinWork = maxTargetWork // one confirmation suffices
	assert.NoError(t, Verify(artifact, &stubVerifier{}, cfg, VerifyOptions{}))
}

func TestVerifyPipelineRootCrossCheck(t *testing.T) {
	artifact, cfg := buildArtifact(t)
	// attest a different accumulator root while keeping the state digest intact
	artifact.ChainStateProof.Proof.PublicInputs[6] = "0xdead"
	artifact.ChainStateProof.Proof.PublicInputs[7] = "0xbeef"

	err := Verify(artifact, &stubVerifier{}, cfg, VerifyOptions{})
	assert.ErrorIs(t, err, ErrProofMismatch)
	assert.Contains(t, err.Error(), "root cross-check")

	// dev mode trades the cross-check away
	assert.NoError(t, Verify(artifact, &stubVerifier{}, cfg, VerifyOptions{Dev: true}))
}

func TestVerifyPipelineCryptoFailure(t *testing.T) {
	artifact, cfg := buildArtifact(t)
	verifier := &stubVerifier{err: assert.AnError}

	err := Verify(artifact, verifier, cfg, VerifyOptions{})
	assert.ErrorIs(t, err, ErrProofMismatch)
	assert.Contains(t, err.Error(), "verify chain state")
}

func TestVerifyChainStateStepOrder(t *testing.T) {
	artifact, cfg := buildArtifact(t)
	hasher := mmr.NewStarkBlake()

	t.Run("bootloader identity before crypto", func(t *testing.T) {
		bad := *cfg
		bad.BootloaderHash = testTaskProgramHash
		verifier := &stubVerifier{err: assert.AnError}
		_, err := VerifyChainState(hasher, &artifact.ChainStateProof, verifier, &bad)
		assert.ErrorIs(t, err, ErrProofMismatch)
		assert.Zero(t, verifier.calls)
	})

	t.Run("state digest before crypto", func(t *testing.T) {
		csp := artifact.ChainStateProof
		csp.ChainState.EpochStartTime++
		verifier := &stubVerifier{err: assert.AnError}
		_, err := VerifyChainState(hasher, &csp, verifier, cfg)
		assert.ErrorIs(t, err, ErrProofMismatch)
		assert.Zero(t, verifier.calls)
	})

	t.Run("substituted predecessor program", func(t *testing.T) {
		csp := artifact.ChainStateProof
		inputs := append([]string{}, csp.Proof.PublicInputs...)
		inputs[8] = "0xbad" // prev program hash
		csp.Proof.PublicInputs = inputs
		verifier := &stubVerifier{err: assert.AnError}
		_, err := VerifyChainState(hasher, &csp, verifier, cfg)
		assert.ErrorIs(t, err, ErrProofMismatch)
		assert.Zero(t, verifier.calls)
	})

	t.Run("substituted predecessor bootloader", func(t *testing.T) {
		csp := artifact.ChainStateProof
		inputs := append([]string{}, csp.Proof.PublicInputs...)
		inputs[9] = "0xbad" // prev bootloader hash
		csp.Proof.PublicInputs = inputs
		verifier := &stubVerifier{err: assert.AnError}
		_, err := VerifyChainState(hasher, &csp, verifier, cfg)
		assert.ErrorIs(t, err, ErrProofMismatch)
		assert.Zero(t, verifier.calls)
	})

	t.Run("crypto last", func(t *testing.T) {
		verifier := &stubVerifier{}
		root, err := VerifyChainState(hasher, &artifact.ChainStateProof, verifier, cfg)
		require.NoError(t, err)
		assert.Equal(t, 1, verifier.calls)
		assert.NotEmpty(t, root)
	})
}

func TestVerifySubchainWork(t *testing.T) {
	cs := genesisChainState()
	cs.BlockHeight = 5 // six confirmations of the genesis block

	t.Run("exact minimum passes", func(t *testing.T) {
		cfg := &VerifierConfig{MinWork: "25770196998"} // 6 * 4295032833
		assert.NoError(t, VerifySubchainWork(0, &cs, cfg))
	})

	t.Run("one short fails", func(t *testing.T) {
		cfg := &VerifierConfig{MinWork: "25770196999"}
		err := VerifySubchainWork(0, &cs, cfg)
		assert.ErrorIs(t, err, ErrInsufficientWork)
	})

	t.Run("tip below proven block", func(t *testing.T) {
		cfg := &VerifierConfig{MinWork: "1"}
		err := VerifySubchainWork(10, &cs, cfg)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("default mainnet threshold", func(t *testing.T) {
		err := VerifySubchainWork(0, &cs, DefaultVerifierConfig())
		assert.ErrorIs(t, err, ErrInsufficientWork)
	})
}

func TestCodecRoundTrip(t *testing.T) {
	artifact, _ := buildArtifact(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, artifact))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, artifact, decoded)
}

func TestCodecFiles(t *testing.T) {
	artifact, cfg := buildArtifact(t)
	path := t.TempDir() + "/proof.bin"

	require.NoError(t, WriteFile(path, artifact))
	decoded, err := ReadFile(path)
	require.NoError(t, err)

	// a round-tripped artifact still verifies
	require.NoError(t, Verify(decoded, &stubVerifier{}, cfg, VerifyOptions{}))
}

func TestCodecRejectsCorruptStream(t *testing.T) {
	artifact, _ := buildArtifact(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, artifact))

	raw := buf.Bytes()
	raw[len(raw)/2] ^= 0xff
	_, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Decode(bytes.NewReader([]byte("not bzip2")))
	assert.ErrorIs(t, err, ErrDecode)
}
