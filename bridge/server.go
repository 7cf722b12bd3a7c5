package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gianalarcon/raito/internal/logger"
	"github.com/gianalarcon/raito/mmr"
)

// Server serves inclusion proofs and the published chain-state proof over
// HTTP. Reads run against the same accumulator the indexer appends to; the
// store serializes them.
type Server struct {
	acc *mmr.MMR
	// RecentProofPath, when set, is the prover-written chain-state proof
	// artifact served verbatim.
	RecentProofPath string
}

func NewServer(acc *mmr.MMR) *Server {
	return &Server{acc: acc}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /head", s.handleHead)
	mux.HandleFunc("GET /block-inclusion-proof/{height}", s.handleInclusionProof)
	mux.HandleFunc("GET /chainstate-proof/recent_proof", s.handleRecentProof)
	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	log := logger.With("server")
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving proofs")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	leafCount, err := s.acc.LeafCount(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, leafCount)
}

func (s *Server) handleInclusionProof(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(r.PathValue("height"), 10, 32)
	if err != nil {
		http.Error(w, "invalid height", http.StatusBadRequest)
		return
	}

	leafCount, err := s.acc.LeafCount(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	blockCount := leafCount
	if q := r.URL.Query().Get("block_count"); q != "" {
		if blockCount, err = strconv.ParseUint(q, 10, 64); err != nil {
			http.Error(w, "invalid block_count", http.StatusBadRequest)
			return
		}
	}
	if height >= blockCount || blockCount > leafCount {
		http.Error(w, "height not indexed", http.StatusNotFound)
		return
	}

	proof, err := s.acc.Proof(r.Context(), height, blockCount)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, proof)
}

func (s *Server) handleRecentProof(w http.ResponseWriter, r *http.Request) {
	if s.RecentProofPath == "" {
		http.Error(w, "no chain-state proof published", http.StatusNotFound)
		return
	}
	payload, err := os.ReadFile(s.RecentProofPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "no chain-state proof published", http.StatusNotFound)
			return
		}
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.With("server")
	log.Error().Str("path", r.URL.Path).Err(err).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
