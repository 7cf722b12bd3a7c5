package bridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "0xc713e33d89122b85e2f646cc518c2e6ef88b06d3b016104faa95f84f878dab66"

func TestSinkPathSharding(t *testing.T) {
	sink := &RootsSink{Dir: "/data/roots", ShardSize: 10_000}

	assert.Equal(t, "/data/roots/10000/block_0.json", sink.Path(0))
	assert.Equal(t, "/data/roots/10000/block_9999.json", sink.Path(9999))
	assert.Equal(t, "/data/roots/20000/block_10000.json", sink.Path(10000))
	assert.Equal(t, "/data/roots/90000/block_80123.json", sink.Path(80123))
}

func TestSinkPathDefaultShardSize(t *testing.T) {
	sink := &RootsSink{Dir: "r"}
	assert.Equal(t, filepath.Join("r", "10000", "block_42.json"), sink.Path(42))
}

func TestSinkWriteSplitEncoding(t *testing.T) {
	sink := &RootsSink{Dir: t.TempDir(), ShardSize: 100}
	roots := []string{
		testRoot,
		"0x0000000000000000000000000000000000000000000000000000000000000000",
	}
	require.NoError(t, sink.Write(7, roots))

	payload, err := os.ReadFile(sink.Path(7))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"roots":[{"hi":264619633783829775273917913537018867310,"lo":330370410684091425064344431313789234022},{"hi":0,"lo":0}]}`,
		string(payload))
}

func TestSinkWriteBigIntEncoding(t *testing.T) {
	sink := &RootsSink{Dir: t.TempDir(), ShardSize: 100, Encoding: RootEncodingBigInt}
	require.NoError(t, sink.Write(0, []string{testRoot}))

	payload, err := os.ReadFile(sink.Path(0))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"roots":[90045395317713527410578172125877967103602201472610483560058628785879475137382]}`,
		string(payload))
}

func TestSinkWriteRejectsMalformedRoot(t *testing.T) {
	sink := &RootsSink{Dir: t.TempDir()}
	assert.Error(t, sink.Write(0, []string{"0x1234"}))
	assert.Error(t, sink.Write(0, []string{"0x" + string(make([]byte, 64))}))
}
