// Package rpc exposes the proof service over HTTP. The endpoints are thin:
// parse the request, ask the proof cache, map the error taxonomy onto
// status codes.
package rpc

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/proofchain/proofapi/cell"
	"github.com/proofchain/proofapi/libs/log"
	"github.com/proofchain/proofapi/libs/service"
	"github.com/proofchain/proofapi/proof"
	"github.com/proofchain/proofapi/types"
)

// ProofStore is what the handlers need; the rpc layer doesn't care whether
// results come from the cache or a fresh build.
type ProofStore interface {
	GetOrBuild(ctx context.Context, d types.TransactionDescriptor) ([]byte, error)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	ListenAddr string
	Version    string

	// RateLimit is the sustained per-IP request rate; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// Whitelist lists IPs exempt from rate limiting.
	Whitelist []string

	// Metrics exposes the Prometheus handler at /metrics.
	Metrics bool
}

// Server serves the proof chain API. Lifecycle via the embedded
// BaseService.
type Server struct {
	service.BaseService
	logger  log.Logger
	cfg     ServerConfig
	store   ProofStore
	limiter *ipLimiter

	listener net.Listener
	srv      *http.Server
}

func NewServer(logger log.Logger, store ProofStore, cfg ServerConfig) *Server {
	s := &Server{logger: logger, cfg: cfg, store: store}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		s.limiter = newIPLimiter(cfg.RateLimit, burst, cfg.Whitelist)
	}
	s.BaseService = *service.NewBaseService(logger, "RPCServer", s)
	return s
}

func (s *Server) OnStart(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// builds may block the response for a while
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server terminated", "err", err)
		}
	}()

	s.logger.Info("serving proof api", "addr", ln.Addr().String())
	return nil
}

func (s *Server) OnStop() {
	if s.srv != nil {
		_ = s.srv.Close()
	}
}

// Addr returns the bound listen address; empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler assembles the route table with the middleware stack: panic
// recovery and logging outermost, then CORS, then rate limiting.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleInfo)
	mux.HandleFunc("/v1/proof_chain/", s.handleProofChain)
	if s.cfg.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = cors.AllowAll().Handler(h)
	return s.recoverAndLog(h)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "notFound"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "proofapi",
		"version": s.cfg.Version,
	})
}

// handleProofChain serves both variants:
//
//	GET /v1/proof_chain/{address}/{lt}
//	GET /v1/proof_chain/{address}/{lt}/{tx_hash}
func (s *Server) handleProofChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "internal", Message: "method not allowed"})
		return
	}

	desc, err := parseProofChainPath(strings.TrimPrefix(r.URL.Path, "/v1/proof_chain/"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "badRequest", Message: err.Error()})
		return
	}

	chain, err := s.store.GetOrBuild(r.Context(), desc)
	if err != nil {
		kind := proof.FailureKind(err)
		status := http.StatusInternalServerError
		if kind == "notFound" {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"proofChain": base64.StdEncoding.EncodeToString(chain),
	})
}

func parseProofChainPath(path string) (types.TransactionDescriptor, error) {
	var desc types.TransactionDescriptor

	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) != 2 && len(parts) != 3 {
		return desc, fmt.Errorf("expected /v1/proof_chain/{address}/{lt}[/{tx_hash}]")
	}

	addr, err := types.ParseAddress(parts[0])
	if err != nil {
		return desc, err
	}
	desc.Address = addr

	if desc.LogicalTime, err = strconv.ParseUint(parts[1], 10, 64); err != nil {
		return desc, fmt.Errorf("invalid lt: %q", parts[1])
	}

	if len(parts) == 3 {
		raw, err := hex.DecodeString(parts[2])
		if err != nil {
			return desc, fmt.Errorf("invalid tx hash: %q", parts[2])
		}
		hash, err := cell.HashFromBytes(raw)
		if err != nil {
			return desc, fmt.Errorf("invalid tx hash: %q", parts[2])
		}
		desc.TxHash = &hash
	}
	return desc, nil
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !s.limiter.allow(ip) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "limitExceed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverAndLog wraps the handler stack with panic recovery and access
// logging; every request gets an id.
func (s *Server) recoverAndLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		w.Header().Set("X-Request-Id", reqID)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		begin := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in request handler",
					"err", rec,
					"stack", string(debug.Stack()),
					"request_id", reqID)
				if !sw.wrote {
					writeJSON(sw, http.StatusInternalServerError, errorResponse{Error: "internal"})
				}
			}
			s.logger.Debug("served request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"took", time.Since(begin).String(),
				"remote", r.RemoteAddr,
				"request_id", reqID)
		}()

		next.ServeHTTP(sw, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.wrote = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
