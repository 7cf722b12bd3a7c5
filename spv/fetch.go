package spv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gianalarcon/raito/btc"
	"github.com/gianalarcon/raito/internal/logger"
)

// BitcoinSource is the slice of the bitcoind RPC surface proof assembly
// needs.
type BitcoinSource interface {
	TxOutProof(ctx context.Context, txid string) ([]byte, error)
	RawTransaction(ctx context.Context, txid string, blockHash btc.Hash) ([]byte, error)
	BlockHeight(ctx context.Context, blockHash btc.Hash) (uint32, error)
}

// ProofService is a client for the bridge proof service.
type ProofService struct {
	BaseURL string
	Client  *http.Client
}

func (s *ProofService) httpClient() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *ProofService) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrDecode, path, err)
	}
	return nil
}

// RecentChainStateProof fetches the latest published chain-state proof.
func (s *ProofService) RecentChainStateProof(ctx context.Context) (*ChainStateProof, error) {
	var csp ChainStateProof
	if err := s.getJSON(ctx, "/chainstate-proof/recent_proof", &csp); err != nil {
		return nil, err
	}
	return &csp, nil
}

// Head returns the accumulator leaf count of the bridge service.
func (s *ProofService) Head(ctx context.Context) (uint64, error) {
	var leafCount uint64
	if err := s.getJSON(ctx, "/head", &leafCount); err != nil {
		return 0, err
	}
	return leafCount, nil
}

// BlockInclusionProof fetches the inclusion proof for a block height against
// an accumulator state of blockCount leaves.
func (s *ProofService) BlockInclusionProof(ctx context.Context, height uint32, blockCount uint64) (*BlockInclusionProof, error) {
	var proof BlockInclusionProof
	path := fmt.Sprintf("/block-inclusion-proof/%d?block_count=%d", height, blockCount)
	if err := s.getJSON(ctx, path, &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

// FetchCompressedProof assembles a proof artifact for txid from bitcoind and
// the bridge service. Nothing is validated here; the artifact is handed to
// Verify as-is.
func FetchCompressedProof(ctx context.Context, txid string, bitcoin BitcoinSource, svc *ProofService) (*CompressedSpvProof, error) {
	log := logger.With("fetch")

	txOutProof, err := bitcoin.TxOutProof(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("fetch txout proof: %w", err)
	}
	var mb btc.MerkleBlock
	if err := mb.Decode(bytes.NewReader(txOutProof)); err != nil {
		return nil, fmt.Errorf("%w: txout proof: %v", ErrDecode, err)
	}
	blockHash := mb.Header.BlockHash()

	height, err := bitcoin.BlockHeight(ctx, blockHash)
	if err != nil {
		return nil, fmt.Errorf("fetch block height: %w", err)
	}
	rawTx, err := bitcoin.RawTransaction(ctx, txid, blockHash)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}

	csp, err := svc.RecentChainStateProof(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain state proof: %w", err)
	}
	head, err := svc.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}
	if uint64(height) >= head {
		return nil, fmt.Errorf("block %d not yet indexed, head at %d leaves", height, head)
	}

	inclusion, err := svc.BlockInclusionProof(ctx, height, uint64(csp.ChainState.BlockHeight)+1)
	if err != nil {
		return nil, fmt.Errorf("fetch block inclusion proof: %w", err)
	}

	log.Info().
		Str("txid", txid).
		Uint32("height", height).
		Uint32("tip", csp.ChainState.BlockHeight).
		Msg("proof assembled")

	return &CompressedSpvProof{
		Transaction:         rawTx,
		TxOutProof:          txOutProof,
		BlockHeader:         mb.Header,
		BlockInclusionProof: *inclusion,
		ChainStateProof:     *csp,
	}, nil
}
