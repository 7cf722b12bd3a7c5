// raito-spv fetches and verifies SPV proof artifacts.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/gianalarcon/raito/bridge"
	"github.com/gianalarcon/raito/btc"
	"github.com/gianalarcon/raito/internal/logger"
	"github.com/gianalarcon/raito/spv"
	"github.com/gianalarcon/raito/stark"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  raito-spv fetch  --txid <txid> [--bitcoin-rpc url] [--userpwd user:pass] [--bridge url] [--out file]
  raito-spv verify --proof <file> --vk <file> [--min-work n] [--dev]
`)
	os.Exit(2)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "fetch":
		runFetch(ctx, os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	default:
		usage()
	}
}

func runFetch(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("fetch", flag.ExitOnError)
	txid := flags.String("txid", "", "transaction to prove")
	rpcURL := flags.String("bitcoin-rpc", envOr("BITCOIN_RPC", "http://127.0.0.1:8332"), "bitcoind JSON-RPC endpoint")
	userPwd := flags.String("userpwd", envOr("BITCOIN_USERPWD", ""), "bitcoind credentials as user:password")
	bridgeURL := flags.String("bridge", envOr("RAITO_BRIDGE_RPC", "http://127.0.0.1:8080"), "bridge proof service")
	out := flags.String("out", "proof.bin", "artifact output path")
	logLevel := flags.String("log-level", "info", "minimum log level")
	flags.Parse(args)
	logger.SetLevel(*logLevel)
	log := logger.With("fetch")

	if *txid == "" {
		log.Fatal().Msg("--txid is required")
	}

	user, pass, _ := strings.Cut(*userPwd, ":")
	client, err := bridge.Dial(ctx, *rpcURL, user, pass)
	if err != nil {
		log.Fatal().Err(err).Msg("bitcoind unreachable")
	}
	defer client.Close()

	proof, err := spv.FetchCompressedProof(ctx, *txid, client, &spv.ProofService{BaseURL: *bridgeURL})
	if err != nil {
		log.Fatal().Err(err).Msg("proof assembly failed")
	}
	if err := spv.WriteFile(*out, proof); err != nil {
		log.Fatal().Err(err).Msg("write artifact")
	}
	log.Info().Str("path", *out).Msg("artifact written")
}

func runVerify(args []string) {
	flags := flag.NewFlagSet("verify", flag.ExitOnError)
	proofPath := flags.String("proof", "proof.bin", "artifact to verify")
	vkPath := flags.String("vk", envOr("RAITO_VERIFYING_KEY", ""), "groth16 verifying key file")
	minWork := flags.String("min-work", "", "override the minimum confirmation work")
	dev := flags.Bool("dev", false, "relax structural checks for development proofs")
	logLevel := flags.String("log-level", "info", "minimum log level")
	flags.Parse(args)
	logger.SetLevel(*logLevel)
	log := logger.With("verify")

	if *vkPath == "" {
		log.Fatal().Msg("--vk is required")
	}

	proof, err := spv.ReadFile(*proofPath)
	if err != nil {
		log.Fatal().Err(err).Msg("read artifact")
	}

	vkFile, err := os.Open(*vkPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open verifying key")
	}
	verifier := stark.NewGnarkVerifier()
	if err := verifier.RegisterKey(stark.TraceCanonical, vkFile); err != nil {
		vkFile.Close()
		log.Fatal().Err(err).Msg("load verifying key")
	}
	vkFile.Close()

	cfg := spv.DefaultVerifierConfig()
	if *minWork != "" {
		cfg.MinWork = *minWork
	}

	if err := spv.Verify(proof, verifier, cfg, spv.VerifyOptions{Dev: *dev}); err != nil {
		log.Fatal().Err(err).Msg("proof rejected")
	}

	var tx btc.Transaction
	if err := tx.Decode(bytes.NewReader(proof.Transaction)); err == nil {
		fmt.Print(spv.FormatTransaction(&tx, proof.BlockHeight(), proof.ChainStateProof.ChainState.BlockHeight))
	}
	fmt.Println("proof verified")
}
