package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loanchain/core/events"
	"loanchain/crypto"
	nativecommon "loanchain/native/common"
	"loanchain/native/syndication"
	"loanchain/native/token"
	"loanchain/observability"
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
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeInvalidState   = -32002
	codeRejected       = -32003
	codeNotFound       = -32004
)

// Server exposes the loan ledger over JSON-RPC. Admin-gated methods require
// the bearer token from LOANCHAIN_RPC_TOKEN.
type Server struct {
	engine    *syndication.Engine
	tokens    *token.Fungible
	uniques   *token.Unique
	recorder  *events.Recorder
	admin     [20]byte
	authToken string
	log       *slog.Logger
}

// NewServer wires the RPC surface to the engine and custody adapters.
func NewServer(engine *syndication.Engine, tokens *token.Fungible, uniques *token.Unique, recorder *events.Recorder, admin [20]byte, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:    engine,
		tokens:    tokens,
		uniques:   uniques,
		recorder:  recorder,
		admin:     admin,
		authToken: strings.TrimSpace(os.Getenv("LOANCHAIN_RPC_TOKEN")),
		log:       log,
	}
}

// Handler returns the HTTP handler serving the RPC endpoint and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start serves the RPC endpoint until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

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

// writeEngineError maps the engine's error taxonomy onto RPC error codes.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	code := codeServerError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, syndication.ErrInvalidArgument):
		code, status = codeInvalidParams, http.StatusBadRequest
	case errors.Is(err, syndication.ErrNotFound):
		code, status = codeNotFound, http.StatusNotFound
	case errors.Is(err, syndication.ErrUnauthorized):
		code, status = codeUnauthorized, http.StatusForbidden
	case errors.Is(err, syndication.ErrInvalidState),
		errors.Is(err, syndication.ErrNotMatured),
		errors.Is(err, syndication.ErrMaturityPassed),
		errors.Is(err, nativecommon.ErrModulePaused):
		code, status = codeInvalidState, http.StatusConflict
	case errors.Is(err, syndication.ErrBelowThreshold),
		errors.Is(err, syndication.ErrExceedsCommitment),
		errors.Is(err, syndication.ErrExceedsPrincipal),
		errors.Is(err, syndication.ErrCustodyFailure):
		code, status = codeRejected, http.StatusUnprocessableEntity
	case errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrAssetExists),
		errors.Is(err, token.ErrCollectionExists),
		errors.Is(err, token.ErrTokenExists):
		code, status = codeInvalidParams, http.StatusBadRequest
	case errors.Is(err, token.ErrAssetNotFound),
		errors.Is(err, token.ErrCollectionNotFound),
		errors.Is(err, token.ErrTokenNotFound):
		code, status = codeNotFound, http.StatusNotFound
	case errors.Is(err, token.ErrNotIssuer),
		errors.Is(err, token.ErrNotCustodian):
		code, status = codeUnauthorized, http.StatusForbidden
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		code, status = codeRejected, http.StatusUnprocessableEntity
	}
	writeError(w, status, id, code, err.Error(), nil)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "admin methods disabled: no auth token configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

// handle is the main request handler that routes to method handlers.
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

	start := time.Now()
	var handleErr error
	switch req.Method {
	case "loan_propose":
		handleErr = s.handleLoanPropose(w, req)
	case "loan_join":
		handleErr = s.handleLoanJoin(w, req)
	case "loan_closeSyndication":
		handleErr = s.handleLoanCloseSyndication(w, req)
	case "loan_contribute":
		handleErr = s.handleLoanContribute(w, req)
	case "loan_lockCollateralFungible":
		handleErr = s.handleLoanLockCollateralFungible(w, req)
	case "loan_lockCollateralUnique":
		handleErr = s.handleLoanLockCollateralUnique(w, req)
	case "loan_drawdown":
		handleErr = s.handleLoanDrawdown(w, req)
	case "loan_repay":
		handleErr = s.handleLoanRepay(w, req)
	case "loan_distribute":
		handleErr = s.handleLoanDistribute(w, req)
	case "loan_close":
		handleErr = s.handleLoanClose(w, req)
	case "loan_markDefault":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		handleErr = s.handleLoanMarkDefault(w, req)
	case "loan_seize":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		handleErr = s.handleLoanSeize(w, req)
	case "loan_cancel":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		handleErr = s.handleLoanCancel(w, req)
	case "loan_get":
		handleErr = s.handleLoanGet(w, req)
	case "loan_participants":
		handleErr = s.handleLoanParticipants(w, req)
	case "loan_collateral":
		handleErr = s.handleLoanCollateral(w, req)
	case "loan_shareOf":
		handleErr = s.handleLoanShareOf(w, req)
	case "loan_exposure":
		handleErr = s.handleLoanExposure(w, req)
	case "loan_approximateRWA":
		handleErr = s.handleLoanApproximateRWA(w, req)
	case "loan_events":
		handleErr = s.handleLoanEvents(w, req)
	case "token_register":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		handleErr = s.handleTokenRegister(w, req)
	case "token_registerUnique":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		handleErr = s.handleTokenRegisterUnique(w, req)
	case "token_mint":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		handleErr = s.handleTokenMint(w, req)
	case "token_mintUnique":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		handleErr = s.handleTokenMintUnique(w, req)
	case "token_transfer":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		handleErr = s.handleTokenTransfer(w, req)
	case "token_approve":
		handleErr = s.handleTokenApprove(w, req)
	case "token_balanceOf":
		handleErr = s.handleTokenBalanceOf(w, req)
	case "token_allowance":
		handleErr = s.handleTokenAllowance(w, req)
	case "token_ownerOf":
		handleErr = s.handleTokenOwnerOf(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	observability.ModuleMetrics().Observe("rpc", req.Method, start, handleErr)
	if handleErr != nil {
		s.log.Warn("rpc request rejected", "method", req.Method, "err", handleErr)
	}
}

// --- parameter helpers ---

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(field, value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("invalid %s: %w", field, err)
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("missing %s", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, value)
	}
	return amount, nil
}
