// Package rpc exposes the settlement service over a JSON-RPC 2.0 endpoint,
// together with a websocket event stream, health and metrics handlers.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripact/core/events"
	"tripact/observability"
	"tripact/registry"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ServerConfig carries the surface-level knobs for the RPC server.
type ServerConfig struct {
	Auth              AuthConfig
	RequestsPerMinute float64
	Burst             int
	Logger            *slog.Logger
}

// Server serves the JSON-RPC settlement API.
type Server struct {
	registry *registry.Registry
	journal  *events.Journal
	auth     *Authenticator
	limiter  *RateLimiter
	logger   *slog.Logger
	metrics  *observability.SettlementMetrics
}

// NewServer wires the RPC surface onto the instance registry and event
// journal.
func NewServer(reg *registry.Registry, journal *events.Journal, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: reg,
		journal:  journal,
		auth:     NewAuthenticator(cfg.Auth),
		limiter:  NewRateLimiter(cfg.RequestsPerMinute, cfg.Burst),
		logger:   logger,
		metrics:  observability.Settlement(),
	}
}

// Router assembles the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.limiter.Middleware())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Post("/", s.handle)
	return r
}

// Start blocks serving the API on the given address.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "escrow_create":
		s.authenticated(w, r, req, s.handleEscrowCreate)
	case "escrow_join":
		s.authenticated(w, r, req, s.handleEscrowJoin)
	case "escrow_accept":
		s.authenticated(w, r, req, s.handleEscrowAccept)
	case "escrow_cancel":
		s.authenticated(w, r, req, s.handleEscrowCancel)
	case "escrow_resolveDispute":
		s.authenticated(w, r, req, s.handleEscrowResolveDispute)
	case "escrow_confirmReturn":
		s.authenticated(w, r, req, s.handleEscrowConfirmReturn)
	case "escrow_withdraw":
		s.authenticated(w, r, req, s.handleEscrowWithdraw)
	case "escrow_emergencyWithdraw":
		s.authenticated(w, r, req, s.handleEscrowEmergencyWithdraw)
	case "escrow_get":
		s.handleEscrowGet(w, r, req)
	case "escrow_operator":
		s.handleEscrowOperator(w, r, req)
	case "escrow_events":
		s.handleEscrowEvents(w, r, req)
	case "token_mint":
		s.authenticated(w, r, req, s.handleTokenMint)
	case "token_approve":
		s.authenticated(w, r, req, s.handleTokenApprove)
	case "token_balanceOf":
		s.handleTokenBalanceOf(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

type rpcHandler func(w http.ResponseWriter, identity *Identity, req *RPCRequest)

func (s *Server) authenticated(w http.ResponseWriter, r *http.Request, req *RPCRequest, next rpcHandler) {
	identity, authErr := s.auth.Verify(r)
	if authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, identity, req)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}
