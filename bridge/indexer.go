package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/gianalarcon/raito/btc"
	"github.com/gianalarcon/raito/internal/logger"
	"github.com/gianalarcon/raito/mmr"
)

// HeaderSource yields block headers by height, blocking until they exist.
type HeaderSource interface {
	WaitHeader(ctx context.Context, height uint32) (*btc.BlockHeader, error)
}

// Indexer is the single writer of the accumulator: it appends header digests
// in strict height order and publishes the resulting sparse roots.
type Indexer struct {
	source HeaderSource
	acc    *mmr.MMR
	sink   *RootsSink
}

func NewIndexer(source HeaderSource, acc *mmr.MMR, sink *RootsSink) *Indexer {
	return &Indexer{source: source, acc: acc, sink: sink}
}

// Run follows the chain until ctx is cancelled. It resumes from the
// accumulator's persisted leaf count. Any append or sink failure is fatal:
// skipping a height would corrupt the accumulator's height mapping.
func (ix *Indexer) Run(ctx context.Context) error {
	log := logger.With("indexer")

	for {
		leafCount, err := ix.acc.LeafCount(ctx)
		if err != nil {
			return fmt.Errorf("read leaf count: %w", err)
		}
		height := uint32(leafCount)

		header, err := ix.source.WaitHeader(ctx, height)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info().Uint32("height", height).Msg("indexer stopped")
				return nil
			}
			return fmt.Errorf("wait for block %d: %w", height, err)
		}

		digest, err := header.Digest(ix.acc.Hasher())
		if err != nil {
			return fmt.Errorf("digest block %d: %w", height, err)
		}
		if err := ix.acc.Append(context.WithoutCancel(ctx), digest); err != nil {
			return fmt.Errorf("append block %d: %w", height, err)
		}

		roots, err := ix.acc.SparseRoots(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("sparse roots after block %d: %w", height, err)
		}
		if err := ix.sink.Write(height, roots); err != nil {
			return fmt.Errorf("publish roots of block %d: %w", height, err)
		}

		log.Info().
			Uint32("height", height).
			Stringer("hash", header.BlockHash()).
			Str("digest", digest).
			Msg("block indexed")
	}
}
