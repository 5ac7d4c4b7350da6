// Package coordinator owns the daemon's engine state: the Bridge HTLC
// engine, the Fusion order engine, the cross-chain dispatcher, storage,
// and the p2p announcer. A single Coordinator instance is constructed at
// startup and handed to the RPC server; handlers borrow it for the call,
// mirroring the teacher's swap.Coordinator composition pattern.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/hostbridge/coordinator/internal/bridge"
	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/internal/fusion"
	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/ledger"
	"github.com/hostbridge/coordinator/internal/p2p"
	"github.com/hostbridge/coordinator/internal/storage"
	"github.com/hostbridge/coordinator/internal/swapengine"
	"github.com/hostbridge/coordinator/pkg/helpers"
	"github.com/hostbridge/coordinator/pkg/logging"
)

// ErrUnauthorized is returned by every admin method when caller does not
// match the configured controller principal.
var ErrUnauthorized = errors.New("caller is not the controller")

// ledgerDecimals is the host-chain ledger's smallest-unit exponent (e8s),
// used only to render CoordinatorBalance for display.
const ledgerDecimals = 8

// CanisterStatus reports the running daemon's health, the Go expression
// of get_canister_status.
type CanisterStatus struct {
	Version                   string `json:"version"`
	CoordinatorBalance        uint64 `json:"coordinator_balance"`
	CoordinatorBalanceDisplay string `json:"coordinator_balance_display"`
	PeerCount                 int    `json:"peer_count"`
}

// ChainFusionStatus reports the bridge's outbound-emission configuration,
// the Go expression of get_chain_fusion_status.
type ChainFusionStatus struct {
	Enabled         bool   `json:"enabled"`
	ContractAddress string `json:"contract_address"`
}

// Coordinator composes the two engines, the dispatcher, persistence and
// the p2p announcer, and is the only place the controller identity is
// checked.
type Coordinator struct {
	cfg *config.Daemon

	Swap   *swapengine.Engine
	Fusion *fusion.Engine
	Bridge *bridge.Dispatcher
	Store  *storage.Storage
	P2P    *p2p.Announcer

	version string
	clock   func() uint64
	log     *logging.Logger
}

// New wires the engines together, registers their event listeners onto
// storage and the p2p announcer, and restores resolver state persisted
// from a previous run.
func New(cfg *config.Daemon, led ledger.Ledger, disp *bridge.Dispatcher, store *storage.Storage, announcer *p2p.Announcer, clock func() uint64, version string) (*Coordinator, error) {
	swapEngine := swapengine.New(cfg.Bridge, led, disp, clock)
	fusionEngine := fusion.New(led, clock)

	c := &Coordinator{
		cfg:     cfg,
		Swap:    swapEngine,
		Fusion:  fusionEngine,
		Bridge:  disp,
		Store:   store,
		P2P:     announcer,
		version: version,
		clock:   clock,
		log:     logging.GetDefault().Component("coordinator"),
	}

	swapEngine.OnEvent(c.onSwapEvent)
	fusionEngine.OnEvent(c.onFusionEvent)

	if err := c.restoreResolvers(); err != nil {
		return nil, fmt.Errorf("restore resolvers: %w", err)
	}

	return c, nil
}

func (c *Coordinator) restoreResolvers() error {
	if c.Store == nil {
		return nil
	}
	resolvers, err := c.Store.ListResolvers()
	if err != nil {
		return err
	}
	for principal, authorized := range resolvers {
		c.Swap.SetAuthorizedResolver(principal, authorized)
	}
	return nil
}

func (c *Coordinator) onSwapEvent(ev swapengine.Event) {
	if c.Store != nil {
		if err := c.Store.SaveSwapOrder(ev.Order); err != nil {
			c.log.Warn("failed to persist swap order", "order_id", ev.Order.OrderID, "error", err)
		}
	}
	if c.P2P != nil {
		var evType p2p.EventType
		switch ev.Type {
		case swapengine.EventCreated:
			evType = p2p.EventSwapCreated
		case swapengine.EventCompleted:
			evType = p2p.EventSwapCompleted
		case swapengine.EventRefunded:
			evType = p2p.EventSwapRefunded
		}
		env := p2p.Envelope{Type: evType, OrderID: ev.Order.OrderID, At: c.clock()}
		if err := c.P2P.Publish(context.Background(), env); err != nil {
			c.log.Warn("failed to announce swap event", "order_id", ev.Order.OrderID, "error", err)
		}
	}
}

func (c *Coordinator) onFusionEvent(ev fusion.Event) {
	if c.Store != nil {
		var err error
		if ev.Order.SrcAmount.Sign() == 0 || ev.Type == fusion.EventCanceled {
			err = c.Store.DeleteFusionOrder(ev.Order.ID)
		} else {
			err = c.Store.SaveFusionOrder(ev.Order)
		}
		if err != nil {
			c.log.Warn("failed to persist fusion order", "id", ev.Order.ID, "error", err)
		}
	}
	if c.P2P != nil {
		var evType p2p.EventType
		switch ev.Type {
		case fusion.EventCreated:
			evType = p2p.EventOrderCreated
		case fusion.EventFilled:
			evType = p2p.EventOrderFilled
		case fusion.EventCanceled:
			evType = p2p.EventOrderCancelled
		}
		env := p2p.Envelope{Type: evType, OrderID: fmt.Sprintf("%d", ev.Order.ID), At: c.clock()}
		if err := c.P2P.Publish(context.Background(), env); err != nil {
			c.log.Warn("failed to announce fusion event", "id", ev.Order.ID, "error", err)
		}
	}
}

// isController reports whether caller is the configured controller
// principal. An empty ControllerPrincipal locks out every caller, the
// deliberately conservative default for an unconfigured daemon.
func (c *Coordinator) isController(caller string) bool {
	return c.cfg.ControllerPrincipal != "" && caller == c.cfg.ControllerPrincipal
}

func (c *Coordinator) requireController(caller string) error {
	if !c.isController(caller) {
		return ErrUnauthorized
	}
	return nil
}

// --- Queries (§6.3) ---

// GetSwapOrder implements get_swap_order.
func (c *Coordinator) GetSwapOrder(orderID string) (*swapengine.SwapOrder, bool) {
	return c.Swap.GetSwapOrder(orderID)
}

// IsHashlockUsed implements is_hashlock_used.
func (c *Coordinator) IsHashlockUsed(hashlock [32]byte) bool {
	return c.Swap.IsHashlockUsed(hashlock)
}

// GetBridgeConfigQuery implements get_bridge_config_query.
func (c *Coordinator) GetBridgeConfigQuery() config.BridgeConfig {
	return c.Swap.Config()
}

// GetCrossChainMessage implements get_cross_chain_message.
func (c *Coordinator) GetCrossChainMessage(orderID string) (bridge.Message, bool) {
	if c.Bridge == nil {
		return bridge.Message{}, false
	}
	return c.Bridge.MessageFor(orderID)
}

// GetChainFusionStatus implements get_chain_fusion_status.
func (c *Coordinator) GetChainFusionStatus() ChainFusionStatus {
	cfg := c.Swap.Config()
	if c.Bridge != nil {
		cfg = c.Bridge.Config()
	}
	return ChainFusionStatus{Enabled: cfg.ChainFusionEnabled, ContractAddress: cfg.EthereumContractAddress}
}

// GetCanisterStatus implements get_canister_status.
func (c *Coordinator) GetCanisterStatus(ctx context.Context, led ledger.Ledger) (CanisterStatus, error) {
	balance, err := led.Balance(ctx, ledger.CoordinatorAccount())
	if err != nil {
		return CanisterStatus{}, err
	}
	peers := 0
	if c.P2P != nil {
		peers = c.P2P.PeerCount()
	}
	return CanisterStatus{
		Version:                   c.version,
		CoordinatorBalance:        balance,
		CoordinatorBalanceDisplay: helpers.FormatAmount(balance, ledgerDecimals),
		PeerCount:                 peers,
	}, nil
}

// GetSwapStatistics implements get_swap_statistics.
func (c *Coordinator) GetSwapStatistics() swapengine.Stats {
	return c.Swap.Statistics()
}

// GetOrder implements get_order.
func (c *Coordinator) GetOrder(orderID uint64) (*fusion.OrderConfig, bool) {
	return c.Fusion.GetOrder(orderID)
}

// GetAllOrders implements get_all_orders.
func (c *Coordinator) GetAllOrders() []fusion.OrderConfig {
	return c.Fusion.AllOrders()
}

// GetOrdersByMaker implements get_orders_by_maker.
func (c *Coordinator) GetOrdersByMaker(maker identity.Principal) []fusion.OrderConfig {
	return c.Fusion.OrdersByMaker(maker)
}

// Greet implements greet, an unauthenticated query that changes no state;
// purely a liveness echo.
func (c *Coordinator) Greet(name string) string {
	if name == "" {
		name = "stranger"
	}
	return fmt.Sprintf("Hello, %s! hostbridge coordinator is running.", name)
}

// --- Admin updates (§6.3, controller-gated) ---

// SetBridgeFeePercentage implements set_bridge_fee_percentage.
func (c *Coordinator) SetBridgeFeePercentage(caller string, bps uint16) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	return c.Swap.SetFeePercentageBPS(bps)
}

// SetSwapLimits implements set_swap_limits.
func (c *Coordinator) SetSwapLimits(caller string, min, max uint64) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	return c.Swap.SetSwapLimits(min, max)
}

// SetAuthorizedResolver implements set_authorized_resolver.
func (c *Coordinator) SetAuthorizedResolver(caller, principal string, authorized bool) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	c.Swap.SetAuthorizedResolver(principal, authorized)
	if c.Store != nil {
		if err := c.Store.SaveResolver(principal, authorized); err != nil {
			c.log.Warn("failed to persist resolver change", "principal", principal, "error", err)
		}
	}
	return nil
}

// SetChainFusionEnabled implements set_chain_fusion_enabled.
func (c *Coordinator) SetChainFusionEnabled(caller string, enabled bool) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	c.Swap.SetChainFusionEnabled(enabled)
	if c.Bridge != nil {
		c.Bridge.SetChainFusionEnabled(enabled)
	}
	return nil
}

// SetEthereumContractAddress implements set_ethereum_contract_address.
func (c *Coordinator) SetEthereumContractAddress(caller, addr string) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	if c.Bridge != nil {
		c.Bridge.SetEthereumContractAddress(addr)
	}
	return nil
}

// SetICPLedgerCanisterID implements set_icp_ledger_canister_id.
func (c *Coordinator) SetICPLedgerCanisterID(caller, canisterID string) error {
	if err := c.requireController(caller); err != nil {
		return err
	}
	c.Swap.SetLedgerCanisterID(canisterID)
	return nil
}
