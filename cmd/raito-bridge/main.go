// raito-bridge follows bitcoind, maintains the block header accumulator, and
// serves inclusion proofs to SPV clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/gianalarcon/raito/bridge"
	"github.com/gianalarcon/raito/internal/logger"
	"github.com/gianalarcon/raito/mmr"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	flags := flag.NewFlagSet("raito-bridge", flag.ExitOnError)
	rpcURL := flags.String("bitcoin-rpc", envOr("BITCOIN_RPC", "http://127.0.0.1:8332"), "bitcoind JSON-RPC endpoint")
	userPwd := flags.String("userpwd", envOr("BITCOIN_USERPWD", ""), "bitcoind credentials as user:password")
	dbDir := flags.String("db", "bridge-db", "accumulator database directory")
	rootsDir := flags.String("roots", "roots", "sparse-roots output directory")
	listenAddr := flags.String("listen", ":8080", "proof service listen address")
	shardSize := flags.Uint64("shard-size", bridge.DefaultShardSize, "blocks per roots shard directory")
	encoding := flags.String("root-encoding", "split", "roots number layout: split or bigint")
	recentProof := flags.String("recent-proof", "", "path of the prover-published chain-state proof")
	logLevel := flags.String("log-level", "info", "minimum log level")
	flags.Parse(os.Args[1:])

	logger.SetLevel(*logLevel)
	log := logger.With("bridge")

	var rootEncoding bridge.RootEncoding
	switch *encoding {
	case "split":
		rootEncoding = bridge.RootEncodingSplit
	case "bigint":
		rootEncoding = bridge.RootEncodingBigInt
	default:
		fmt.Fprintf(os.Stderr, "unknown root encoding %q\n", *encoding)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	user, pass, _ := strings.Cut(*userPwd, ":")
	client, err := bridge.Dial(ctx, *rpcURL, user, pass)
	if err != nil {
		log.Fatal().Err(err).Msg("bitcoind unreachable")
	}
	defer client.Close()

	store, err := mmr.OpenBadgerStore(*dbDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *dbDir).Msg("open accumulator store")
	}
	defer store.Close()

	acc := mmr.New(store, mmr.NewStarkBlake(), "headers")
	sink := &bridge.RootsSink{Dir: *rootsDir, ShardSize: *shardSize, Encoding: rootEncoding}

	server := bridge.NewServer(acc)
	server.RecentProofPath = *recentProof

	errCh := make(chan error, 2)
	go func() { errCh <- bridge.NewIndexer(client, acc, sink).Run(ctx) }()
	go func() { errCh <- server.Run(ctx, *listenAddr) }()

	if err := <-errCh; err != nil {
		log.Fatal().Err(err).Msg("bridge failed")
	}
	stop()
	<-errCh
}
