// Package bridge runs the producer side of the proof system: it follows
// bitcoind, appends header digests to the accumulator, publishes sparse roots
// for the prover, and serves inclusion proofs over HTTP.
package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/gianalarcon/raito/btc"
	"github.com/gianalarcon/raito/internal/logger"
)

// IO failure kinds. Transient failures are retried with bounded backoff;
// permanent ones surface immediately.
var (
	ErrTransientIO = errors.New("transient rpc failure")
	ErrPermanentIO = errors.New("permanent rpc failure")
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 5
)

// Client is a bitcoind JSON-RPC client.
type Client struct {
	rpc *rpc.Client
	log zerolog.Logger
}

// Dial connects to a bitcoind endpoint. user/pass, when set, are sent as
// basic auth on every request.
func Dial(ctx context.Context, url, user, pass string) (*Client, error) {
	opts := []rpc.ClientOption{
		rpc.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
	}
	if user != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		opts = append(opts, rpc.WithHeader("Authorization", "Basic "+cred))
	}
	c, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{rpc: c, log: logger.With("bitcoind")}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// call runs a single RPC with bounded exponential backoff. Only transport
// failures are retried; an answer from the node, even an error one, is final.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	attempt := 0
	op := func() error {
		err := c.rpc.CallContext(ctx, result, method, args...)
		if err == nil {
			return nil
		}
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return backoff.Permanent(fmt.Errorf("%w: %s: %v", ErrPermanentIO, method, err))
		}
		attempt++
		c.log.Warn().Str("method", method).Int("attempt", attempt).Err(err).Msg("rpc retry")
		return fmt.Errorf("%w: %s: %v", ErrTransientIO, method, err)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.Retry(op, bo)
}

// BlockCount returns the height of the node's best block.
func (c *Client) BlockCount(ctx context.Context) (uint32, error) {
	var count uint32
	if err := c.call(ctx, &count, "getblockcount"); err != nil {
		return 0, err
	}
	return count, nil
}

// BlockHash returns the hash of the block at height.
func (c *Client) BlockHash(ctx context.Context, height uint32) (btc.Hash, error) {
	var s string
	if err := c.call(ctx, &s, "getblockhash", height); err != nil {
		return btc.Hash{}, err
	}
	h, err := btc.NewHashFromString(s)
	if err != nil {
		return btc.Hash{}, fmt.Errorf("%w: getblockhash: %v", ErrPermanentIO, err)
	}
	return h, nil
}

// Header fetches and decodes the block header for hash.
func (c *Client) Header(ctx context.Context, hash btc.Hash) (*btc.BlockHeader, error) {
	var s string
	if err := c.call(ctx, &s, "getblockheader", hash.String(), false); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: getblockheader: %v", ErrPermanentIO, err)
	}
	var header btc.BlockHeader
	if err := header.Decode(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: getblockheader: %v", ErrPermanentIO, err)
	}
	return &header, nil
}

// HeaderByHeight fetches the header at height.
func (c *Client) HeaderByHeight(ctx context.Context, height uint32) (*btc.BlockHeader, error) {
	hash, err := c.BlockHash(ctx, height)
	if err != nil {
		return nil, err
	}
	return c.Header(ctx, hash)
}

// waitPollInterval is how often WaitHeader re-checks the node's tip for a
// height that does not exist yet.
const waitPollInterval = 10 * time.Second

// WaitHeader blocks until the block at height exists, then returns its
// header. Cancelling ctx interrupts the wait.
func (c *Client) WaitHeader(ctx context.Context, height uint32) (*btc.BlockHeader, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		count, err := c.BlockCount(ctx)
		if err != nil {
			return nil, err
		}
		if count >= height {
			return c.HeaderByHeight(ctx, height)
		}
		c.log.Debug().Uint32("height", height).Uint32("tip", count).Msg("waiting for block")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// headerInfo is the verbose getblockheader answer, trimmed to what the
// bridge needs.
type headerInfo struct {
	Height        uint32 `json:"height"`
	Confirmations int64  `json:"confirmations"`
}

// BlockHeight returns the height of the block with the given hash.
func (c *Client) BlockHeight(ctx context.Context, hash btc.Hash) (uint32, error) {
	var info headerInfo
	if err := c.call(ctx, &info, "getblockheader", hash.String(), true); err != nil {
		return 0, err
	}
	return info.Height, nil
}

// TxOutProof fetches the merkleblock proving txid's inclusion in its block.
func (c *Client) TxOutProof(ctx context.Context, txid string) ([]byte, error) {
	var s string
	if err := c.call(ctx, &s, "gettxoutproof", []string{txid}); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: gettxoutproof: %v", ErrPermanentIO, err)
	}
	return raw, nil
}

// RawTransaction fetches the serialized transaction, looked up within a
// specific block so pruned and unindexed nodes can answer.
func (c *Client) RawTransaction(ctx context.Context, txid string, blockHash btc.Hash) ([]byte, error) {
	var s string
	if err := c.call(ctx, &s, "getrawtransaction", txid, false, blockHash.String()); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: getrawtransaction: %v", ErrPermanentIO, err)
	}
	return raw, nil
}
