package mmr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreMissingKey(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get(context.Background(), "blocks:hashes:0")
	assert.ErrorIs(t, err, ErrNotFound)
}

// The durable store must behave identically to the in-memory one for the
// same append sequence.
func TestBadgerStoreMatchesMemStore(t *testing.T) {
	ctx := context.Background()

	bs, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer bs.Close()

	durable := New(bs, NewStarkBlake(), "blocks")
	ephemeral := New(NewMemStore(), NewStarkBlake(), "blocks")

	for range 7 {
		require.NoError(t, durable.Append(ctx, testLeaf))
		require.NoError(t, ephemeral.Append(ctx, testLeaf))
	}

	dRoots, err := durable.SparseRoots(ctx)
	require.NoError(t, err)
	eRoots, err := ephemeral.SparseRoots(ctx)
	require.NoError(t, err)
	assert.Equal(t, eRoots, dRoots)

	dRoot, err := durable.RootHash(ctx)
	require.NoError(t, err)
	eRoot, err := ephemeral.RootHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, eRoot, dRoot)

	dProof, err := durable.Proof(ctx, 2, 7)
	require.NoError(t, err)
	eProof, err := ephemeral.Proof(ctx, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, eProof, dProof)
}

func TestBadgerStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	bs, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	m := New(bs, NewStarkBlake(), "blocks")
	for range 3 {
		require.NoError(t, m.Append(ctx, testLeaf))
	}
	require.NoError(t, bs.Close())

	bs, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer bs.Close()

	m = New(bs, NewStarkBlake(), "blocks")
	leaves, err := m.LeafCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), leaves)

	roots, err := m.SparseRoots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{testLeaf, testPeak2, NullRoot}, roots)
}
