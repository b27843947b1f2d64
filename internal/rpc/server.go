// Package rpc serves the daemon's JSON-RPC 2.0 API, the WebSocket event
// stream, Prometheus metrics, and a health probe.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adawatch/adasync/internal/cache"
	"github.com/adawatch/adasync/internal/metrics"
	"github.com/adawatch/adasync/internal/storage"
	"github.com/adawatch/adasync/pkg/logging"
)

// JSON-RPC 2.0 error codes.
const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeNotFound       = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type handlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, *rpcError)

// Config holds API server settings. MaxRetries seeds the retry budget of
// jobs enqueued through the API; the TTLs bound the read-handler cache
// entries.
type Config struct {
	Addr       string
	MaxRetries int
	WalletTTL  time.Duration
	TxTTL      time.Duration
}

// Server is the daemon's API surface.
type Server struct {
	cfg      Config
	store    *storage.Storage
	cache    cache.Store // may be nil
	hub      *WSHub
	metrics  *metrics.Metrics
	handlers map[string]handlerFunc
	http     *http.Server
	log      *logging.Logger
}

// New creates the API server. kv may be nil to disable read caching.
func New(cfg Config, store *storage.Storage, kv cache.Store, hub *WSHub, m *metrics.Metrics, log *logging.Logger) *Server {
	if cfg.WalletTTL <= 0 {
		cfg.WalletTTL = 5 * time.Minute
	}
	if cfg.TxTTL <= 0 {
		cfg.TxTTL = 5 * time.Minute
	}
	s := &Server{
		cfg:     cfg,
		store:   store,
		cache:   kv,
		hub:     hub,
		metrics: m,
		log:     log.Component("rpc"),
	}
	s.handlers = map[string]handlerFunc{
		"sync_enqueue":     s.handleSyncEnqueue,
		"job_get":          s.handleJobGet,
		"job_listByWallet": s.handleJobListByWallet,
		"job_cancel":       s.handleJobCancel,
		"queue_stats":      s.handleQueueStats,
		"wallet_get":       s.handleWalletGet,
		"tx_list":          s.handleTxList,
	}
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.serveRPC)
	mux.Handle("/ws", s.hub)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/health", s.serveHealth)

	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc server listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.serveRPC)
	mux.Handle("/ws", s.hub)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/health", s.serveHealth)
	return mux
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParse, Message: "parse error"},
		})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeResponse(w, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeInvalidRequest, Message: "invalid request"},
		})
		return
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		s.writeResponse(w, rpcResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method},
		})
		return
	}

	result, rpcErr := handler(r.Context(), req.Params)
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	s.writeResponse(w, resp)
}

func (s *Server) writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("failed to write rpc response", "error", err)
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"wsClients":  s.hub.ClientCount(),
		"serverTime": time.Now().Unix(),
	})
}

// cacheGet reads a cached response body. Misses and cache errors look the
// same to callers.
func (s *Server) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Debug("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return data, ok
}

// cachePut stores a response body. Best-effort; failures are logged and
// dropped.
func (s *Server) cachePut(ctx context.Context, key string, v any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		s.log.Debug("cache set failed", "key", key, "error", err)
	}
}

func decodeParams(params json.RawMessage, v interface{}) *rpcError {
	if len(params) == 0 {
		return &rpcError{Code: codeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func internalError(err error) *rpcError {
	if errors.Is(err, storage.ErrNotFound) {
		return &rpcError{Code: codeNotFound, Message: "not found"}
	}
	return &rpcError{Code: codeInternal, Message: err.Error()}
}
