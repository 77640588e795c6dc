package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"tokenmart/native/market"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
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

// Server exposes the market engine over JSON-RPC 2.0. Mutating methods
// require the configured bearer token; queries are public.
type Server struct {
	engine    *market.Engine
	authToken string

	mu            sync.RWMutex
	paymentTokens map[string]market.Payment
}

// NewServer constructs a server around the given engine. An empty authToken
// disables all mutating methods.
func NewServer(engine *market.Engine, authToken string) *Server {
	return &Server{
		engine:        engine,
		authToken:     strings.TrimSpace(authToken),
		paymentTokens: make(map[string]market.Payment),
	}
}

// RegisterPaymentToken makes a payment token selectable by symbol through
// market_setPaymentToken.
func (s *Server) RegisterPaymentToken(symbol string, token market.Payment) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || token == nil {
		return
	}
	s.mu.Lock()
	s.paymentTokens[symbol] = token
	s.mu.Unlock()
}

func (s *Server) paymentToken(symbol string) (market.Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.paymentTokens[strings.ToUpper(strings.TrimSpace(symbol))]
	return token, ok
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "jsonrpc must be 2.0")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch req.Method {
	case "market_getListing":
		s.handleGetListing(w, r, &req)
	case "market_list":
		s.handleList(w, r, &req)
	case "market_purchase":
		s.handlePurchase(w, r, &req)
	case "market_delist":
		s.handleDelist(w, r, &req)
	case "market_setPaymentToken":
		s.handleSetPaymentToken(w, r, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "mutating methods disabled: no auth token configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
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
