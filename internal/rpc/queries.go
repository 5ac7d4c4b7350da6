package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/ledger"
)

type orderIDParams struct {
	OrderID string `json:"order_id"`
}

func (s *Server) getSwapOrder(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p orderIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	order, ok := s.coord.GetSwapOrder(p.OrderID)
	if !ok {
		return nil, fmt.Errorf("order not found: %s", p.OrderID)
	}
	return order, nil
}

type hashlockParams struct {
	Hashlock string `json:"hashlock"`
}

func (s *Server) isHashlockUsed(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p hashlockParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	raw, err := hex.DecodeString(p.Hashlock)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("hashlock must be 32 bytes hex-encoded")
	}
	var h [32]byte
	copy(h[:], raw)
	return s.coord.IsHashlockUsed(h), nil
}

func (s *Server) getBridgeConfigQuery(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.coord.GetBridgeConfigQuery(), nil
}

func (s *Server) getCrossChainMessage(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p orderIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	msg, ok := s.coord.GetCrossChainMessage(p.OrderID)
	if !ok {
		return nil, fmt.Errorf("no cross-chain message recorded for order: %s", p.OrderID)
	}
	return msg, nil
}

func (s *Server) getChainFusionStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.coord.GetChainFusionStatus(), nil
}

func (s *Server) getCanisterStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.coord.GetCanisterStatus(ctx, s.ledgerForStatus())
}

// ledgerForStatus exposes the ledger the coordinator was constructed
// with, for the one query that needs a live balance read.
func (s *Server) ledgerForStatus() ledger.Ledger {
	return s.coord.Swap.Ledger()
}

func (s *Server) getSwapStatistics(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.coord.GetSwapStatistics(), nil
}

type numericOrderIDParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) getOrder(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p numericOrderIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	order, ok := s.coord.GetOrder(p.ID)
	if !ok {
		return nil, fmt.Errorf("order not found: %d", p.ID)
	}
	return order, nil
}

func (s *Server) getAllOrders(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.coord.GetAllOrders(), nil
}

type makerParams struct {
	Maker string `json:"maker"`
}

func (s *Server) getOrdersByMaker(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p makerParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return s.coord.GetOrdersByMaker(identity.Principal(p.Maker)), nil
}

type greetParams struct {
	Name string `json:"name"`
}

func (s *Server) greet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p greetParams
	_ = json.Unmarshal(params, &p) // name is optional; malformed/absent params just greet a stranger
	return s.coord.Greet(p.Name), nil
}
