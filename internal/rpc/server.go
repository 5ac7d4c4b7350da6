// Package rpc provides a JSON-RPC 2.0 server exposing the coordinator's
// query and admin surface, adapted from the teacher daemon's RPC server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hostbridge/coordinator/internal/coordinator"
	"github.com/hostbridge/coordinator/pkg/logging"
)

// Server is a JSON-RPC 2.0 server fronting a Coordinator.
type Server struct {
	coord *coordinator.Coordinator
	log   *logging.Logger
	wsHub *WSHub

	server   *http.Server
	listener net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewServer creates a new JSON-RPC server fronting coord.
func NewServer(coord *coordinator.Coordinator) *Server {
	s := &Server{
		coord:    coord,
		log:      logging.GetDefault().Component("rpc"),
		handlers: make(map[string]Handler),
	}
	s.registerHandlers()
	return s
}

// registerHandlers registers every JSON-RPC method named in §6.3.
func (s *Server) registerHandlers() {
	// Queries
	s.handlers["get_swap_order"] = s.getSwapOrder
	s.handlers["is_hashlock_used"] = s.isHashlockUsed
	s.handlers["get_bridge_config_query"] = s.getBridgeConfigQuery
	s.handlers["get_cross_chain_message"] = s.getCrossChainMessage
	s.handlers["get_chain_fusion_status"] = s.getChainFusionStatus
	s.handlers["get_canister_status"] = s.getCanisterStatus
	s.handlers["get_swap_statistics"] = s.getSwapStatistics
	s.handlers["get_order"] = s.getOrder
	s.handlers["get_all_orders"] = s.getAllOrders
	s.handlers["get_orders_by_maker"] = s.getOrdersByMaker
	s.handlers["greet"] = s.greet

	// Bridge HTLC mutators
	s.handlers["create_htlc"] = s.createHTLC
	s.handlers["complete_htlc"] = s.completeHTLC
	s.handlers["refund_htlc"] = s.refundHTLC

	// Fusion order mutators
	s.handlers["create_order"] = s.createOrder
	s.handlers["fill_order"] = s.fillOrder
	s.handlers["cancel_order"] = s.cancelOrder

	// Cross-chain dispatcher
	s.handlers["verify_cross_chain_message"] = s.verifyCrossChainMessage
	s.handlers["process_cross_chain_message"] = s.processCrossChainMessage
	s.handlers["submit_ethereum_transaction"] = s.submitEthereumTransaction

	// Admin updates (controller-gated)
	s.handlers["set_bridge_fee_percentage"] = s.setBridgeFeePercentage
	s.handlers["set_swap_limits"] = s.setSwapLimits
	s.handlers["set_authorized_resolver"] = s.setAuthorizedResolver
	s.handlers["set_chain_fusion_enabled"] = s.setChainFusionEnabled
	s.handlers["set_ethereum_contract_address"] = s.setEthereumContractAddress
	s.handlers["set_icp_ledger_canister_id"] = s.setICPLedgerCanisterID
}

// Start starts the RPC server listening on addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.wsHub = NewWSHub()
	go s.wsHub.Run()
	s.coord.Swap.OnEvent(s.wsHub.broadcastSwapEvent)
	s.coord.Fusion.OnEvent(s.wsHub.broadcastFusionEvent)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("OPTIONS /{$}", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/", s.handleWS)

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// WSHub returns the WebSocket event hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	ctx := withCaller(r.Context(), r.Header.Get("X-Principal"))
	result, err := handler(ctx, req.Params)
	if err != nil {
		s.writeError(w, req.ID, InternalError, err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
}

func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{JSONRPC: "2.0", Result: result, ID: id}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message, Data: data}, ID: id}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// callerFrom extracts the caller principal attached by the
// transport layer. The coordinator's out-of-scope caller-identity
// boundary (see spec Non-goals) means any transport-level auth scheme
// may populate this; the daemon's default is the X-Principal header read
// in handleRPC, threaded through via context.
type callerKey struct{}

func withCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerFrom(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}
