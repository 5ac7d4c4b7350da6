package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

type setBridgeFeeParams struct {
	BPS uint16 `json:"bps"`
}

func (s *Server) setBridgeFeePercentage(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p setBridgeFeeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.coord.SetBridgeFeePercentage(callerFrom(ctx), p.BPS); err != nil {
		return nil, err
	}
	return true, nil
}

type setSwapLimitsParams struct {
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`
}

func (s *Server) setSwapLimits(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p setSwapLimitsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.coord.SetSwapLimits(callerFrom(ctx), p.Min, p.Max); err != nil {
		return nil, err
	}
	return true, nil
}

type setAuthorizedResolverParams struct {
	Principal  string `json:"principal"`
	Authorized bool   `json:"authorized"`
}

func (s *Server) setAuthorizedResolver(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p setAuthorizedResolverParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.coord.SetAuthorizedResolver(callerFrom(ctx), p.Principal, p.Authorized); err != nil {
		return nil, err
	}
	return true, nil
}

type setChainFusionEnabledParams struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setChainFusionEnabled(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p setChainFusionEnabledParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.coord.SetChainFusionEnabled(callerFrom(ctx), p.Enabled); err != nil {
		return nil, err
	}
	return true, nil
}

type setEthereumContractAddressParams struct {
	Address string `json:"address"`
}

func (s *Server) setEthereumContractAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p setEthereumContractAddressParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.coord.SetEthereumContractAddress(callerFrom(ctx), p.Address); err != nil {
		return nil, err
	}
	return true, nil
}

type setICPLedgerCanisterIDParams struct {
	CanisterID string `json:"canister_id"`
}

func (s *Server) setICPLedgerCanisterID(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p setICPLedgerCanisterIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := s.coord.SetICPLedgerCanisterID(callerFrom(ctx), p.CanisterID); err != nil {
		return nil, err
	}
	return true, nil
}
