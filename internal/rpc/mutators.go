package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hostbridge/coordinator/internal/bridge"
	"github.com/hostbridge/coordinator/internal/fusion"
	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/swapengine"
)

// --- Bridge HTLC engine (§4.1) ---

type createHTLCParams struct {
	EthereumSender string `json:"ethereum_sender"`
	Recipient      string `json:"recipient"`
	Amount         uint64 `json:"amount"`
	Hashlock       string `json:"hashlock"` // 32 bytes, hex-encoded
	Timelock       uint64 `json:"timelock"`
	CrossChainID   string `json:"cross_chain_id,omitempty"`
}

func decodeHashlock(s string) ([32]byte, error) {
	var h [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return h, fmt.Errorf("hashlock must be 32 bytes hex-encoded")
	}
	copy(h[:], raw)
	return h, nil
}

func (s *Server) createHTLC(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p createHTLCParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	hashlock, err := decodeHashlock(p.Hashlock)
	if err != nil {
		return nil, err
	}
	return s.coord.Swap.CreateHTLC(ctx, swapengine.CreateRequest{
		EthereumSender: p.EthereumSender,
		Recipient:      identity.Principal(p.Recipient),
		Amount:         p.Amount,
		Hashlock:       hashlock,
		Timelock:       p.Timelock,
		CrossChainID:   p.CrossChainID,
	})
}

type completeHTLCParams struct {
	OrderID  string `json:"order_id"`
	Preimage string `json:"preimage"` // hex-encoded secret
}

func (s *Server) completeHTLC(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p completeHTLCParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	preimage, err := hex.DecodeString(p.Preimage)
	if err != nil {
		return nil, fmt.Errorf("preimage must be hex-encoded")
	}
	return s.coord.Swap.CompleteHTLC(ctx, p.OrderID, preimage, callerFrom(ctx))
}

func (s *Server) refundHTLC(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p orderIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return s.coord.Swap.RefundHTLC(ctx, p.OrderID)
}

// --- Fusion order engine (§4.2) ---

func (s *Server) createOrder(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var order fusion.OrderConfig
	if err := json.Unmarshal(params, &order); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return s.coord.Fusion.CreateOrder(ctx, identity.Principal(callerFrom(ctx)), order)
}

type fillOrderParams struct {
	ID          uint64 `json:"id"`
	TakerAmount string `json:"taker_amount"` // decimal string, u128 range
	Secret      string `json:"secret,omitempty"` // hex-encoded, optional
}

func (s *Server) fillOrder(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p fillOrderParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	takerAmount, ok := new(big.Int).SetString(p.TakerAmount, 10)
	if !ok {
		return nil, fmt.Errorf("taker_amount must be a decimal string")
	}
	var secret []byte
	if p.Secret != "" {
		decoded, err := hex.DecodeString(p.Secret)
		if err != nil {
			return nil, fmt.Errorf("secret must be hex-encoded")
		}
		secret = decoded
	}
	return s.coord.Fusion.FillOrder(ctx, p.ID, identity.Principal(callerFrom(ctx)), takerAmount, secret)
}

type cancelOrderParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) cancelOrder(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p cancelOrderParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return s.coord.Fusion.CancelOrder(ctx, identity.Principal(callerFrom(ctx)), p.ID)
}

// --- Cross-chain dispatcher (§4.4) ---

type crossChainMessageParams struct {
	OrderID     string `json:"order_id"`
	MessageType string `json:"message_type"`
	SourceChain string `json:"source_chain"`
	TargetChain string `json:"target_chain"`
	Timestamp   uint64 `json:"timestamp"`
	Payload     string `json:"payload,omitempty"` // hex-encoded
}

func (p crossChainMessageParams) toMessage() (bridge.Message, error) {
	var payload []byte
	if p.Payload != "" {
		decoded, err := hex.DecodeString(p.Payload)
		if err != nil {
			return bridge.Message{}, fmt.Errorf("payload must be hex-encoded")
		}
		payload = decoded
	}
	return bridge.Message{
		OrderID:     p.OrderID,
		MessageType: bridge.MessageType(p.MessageType),
		SourceChain: bridge.Chain(p.SourceChain),
		TargetChain: bridge.Chain(p.TargetChain),
		Timestamp:   p.Timestamp,
		Payload:     payload,
	}, nil
}

func (s *Server) verifyCrossChainMessage(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p crossChainMessageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	msg, err := p.toMessage()
	if err != nil {
		return nil, err
	}
	return s.coord.Bridge.VerifyMessage(msg), nil
}

func (s *Server) processCrossChainMessage(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p crossChainMessageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	msg, err := p.toMessage()
	if err != nil {
		return nil, err
	}
	if err := s.coord.Bridge.ProcessMessage(ctx, msg); err != nil {
		return nil, err
	}
	if s.coord.Store != nil {
		if err := s.coord.Store.SaveCrossChainMessage(msg, msg.Timestamp); err != nil {
			s.log.Warn("failed to persist cross-chain message", "order_id", msg.OrderID, "error", err)
		}
	}
	return true, nil
}

type submitEthereumTransactionParams struct {
	Payload string `json:"payload"` // hex-encoded
	To      string `json:"to"`
	Value   string `json:"value,omitempty"` // decimal string, default 0
}

func (s *Server) submitEthereumTransaction(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p submitEthereumTransactionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	payload, err := hex.DecodeString(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload must be hex-encoded")
	}
	value := new(big.Int)
	if p.Value != "" {
		if _, ok := value.SetString(p.Value, 10); !ok {
			return nil, fmt.Errorf("value must be a decimal string")
		}
	}
	return s.coord.Bridge.SubmitEthereumTransaction(ctx, payload, common.HexToAddress(p.To), value)
}
