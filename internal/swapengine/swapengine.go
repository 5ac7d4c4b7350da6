// Package swapengine implements the Bridge HTLC engine: SwapOrder records
// keyed by order_id, and the create/complete/refund lifecycle that
// enforces hashlock and timelock invariants. Grounded directly in
// create_icp_swap / complete_icp_swap / refund_icp_swap from the host
// chain's bridge canister.
package swapengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/internal/guard"
	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/ledger"
	"github.com/hostbridge/coordinator/pkg/helpers"
	"github.com/hostbridge/coordinator/pkg/logging"
)

// SwapOrder is the HTLC escrow record, keyed by OrderID. Completed and
// Refunded are mutually exclusive and never flip back to false once set.
type SwapOrder struct {
	OrderID             string
	EthereumSender      string
	Recipient           identity.Principal // host-side depositor; see DESIGN.md refund-recipient note
	Amount              uint64             // net amount, after fee
	OriginalAmount      uint64
	Hashlock            [32]byte
	Timelock            uint64
	Completed           bool
	Refunded            bool
	CreatedAt           uint64
	CrossChainID        string
	TransferBlockHeight uint64
}

// BridgeEmitter fires outbound cross-chain notifications. Calls are
// fire-and-forget from the engine's perspective: a failure is logged but
// never reverts the on-host state change, per spec §7.
type BridgeEmitter interface {
	EmitCreate(ctx context.Context, order SwapOrder) error
	EmitComplete(ctx context.Context, order SwapOrder, preimage []byte) error
	EmitRefund(ctx context.Context, order SwapOrder) error
}

// EventType names a domain event published after a committed transition.
type EventType string

const (
	EventCreated   EventType = "swap_created"
	EventCompleted EventType = "swap_completed"
	EventRefunded  EventType = "swap_refunded"
)

// Event is published to every listener registered with OnEvent after
// every committed mutation.
type Event struct {
	Type  EventType
	Order SwapOrder
}

// Stats tracks cumulative counters for get_swap_statistics.
type Stats struct {
	Total     uint64
	Completed uint64
	Refunded  uint64
}

// CreateRequest is the input to CreateHTLC.
type CreateRequest struct {
	EthereumSender string
	Recipient      identity.Principal
	Amount         uint64 // original amount, pre-fee
	Hashlock       [32]byte
	Timelock       uint64
	CrossChainID   string
}

// Engine owns all SwapOrder state and its concurrency guards. A single
// Engine instance is installed on the coordinator at startup, per design
// note §9: one owned struct, handlers borrow it mutably for the call.
type Engine struct {
	mu     sync.RWMutex
	orders map[string]*SwapOrder
	stats  Stats

	hashlocks  *guard.HashlockSet
	resolvers  *guard.ResolverTable
	reentrancy guard.Reentrancy

	cfgMu  sync.RWMutex
	cfg    config.BridgeConfig
	ledger ledger.Ledger
	bridge BridgeEmitter
	clock  func() uint64
	log    *logging.Logger

	listeners []func(Event)
}

// New constructs an Engine. clock supplies the current host-chain time in
// seconds; bridge may be nil (chain-fusion emission is then a no-op
// regardless of cfg.ChainFusionEnabled).
func New(cfg config.BridgeConfig, led ledger.Ledger, bridge BridgeEmitter, clock func() uint64) *Engine {
	return &Engine{
		orders:    make(map[string]*SwapOrder),
		hashlocks: guard.NewHashlockSet(),
		resolvers: guard.NewResolverTable(),
		cfg:       cfg,
		ledger:    led,
		bridge:    bridge,
		clock:     clock,
		log:       logging.GetDefault().Component("swapengine"),
	}
}

// OnEvent adds a listener invoked after every committed mutation.
// Listeners are called in registration order; registering a new one never
// drops the ones already subscribed.
func (e *Engine) OnEvent(fn func(Event)) { e.listeners = append(e.listeners, fn) }

// SetAuthorizedResolver toggles a resolver's authorization to call
// CompleteHTLC, the Go expression of set_authorized_resolver.
func (e *Engine) SetAuthorizedResolver(principal string, authorized bool) {
	e.resolvers.Set(principal, authorized)
}

// IsAuthorizedResolver reports whether principal may call CompleteHTLC.
func (e *Engine) IsAuthorizedResolver(principal string) bool {
	return e.resolvers.IsAuthorized(principal)
}

// Ledger returns the native ledger the engine transfers through, for
// callers that need a live balance read (get_canister_status).
func (e *Engine) Ledger() ledger.Ledger {
	return e.ledger
}

// Config returns a snapshot of the engine's current bridge policy, the Go
// expression of get_bridge_config_query.
func (e *Engine) Config() config.BridgeConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// SetFeePercentageBPS updates the HTLC create fee, the Go expression of
// set_bridge_fee_percentage. bps must not exceed 100 (1%), per §6.3.
func (e *Engine) SetFeePercentageBPS(bps uint16) error {
	if bps > 100 {
		return fmt.Errorf("%w: bridge fee %d bps exceeds 100", ErrInvalidAmount, bps)
	}
	e.cfgMu.Lock()
	e.cfg.BridgeFeePercentageBPS = bps
	e.cfgMu.Unlock()
	return nil
}

// SetSwapLimits updates the accepted original_amount bounds, the Go
// expression of set_swap_limits. min must be strictly less than max.
func (e *Engine) SetSwapLimits(min, max uint64) error {
	if !(min < max) {
		return fmt.Errorf("%w: min %d must be less than max %d", ErrInvalidAmount, min, max)
	}
	e.cfgMu.Lock()
	e.cfg.MinSwapAmount = min
	e.cfg.MaxSwapAmount = max
	e.cfgMu.Unlock()
	return nil
}

// SetChainFusionEnabled toggles outbound EVM emission, the Go expression
// of set_chain_fusion_enabled.
func (e *Engine) SetChainFusionEnabled(enabled bool) {
	e.cfgMu.Lock()
	e.cfg.ChainFusionEnabled = enabled
	e.cfgMu.Unlock()
}

// SetLedgerCanisterID records the native ledger identifier surfaced by
// get_bridge_config_query, the Go expression of set_icp_ledger_canister_id.
// The engine transfers through the ledger.Ledger it was constructed with
// regardless of this value; it is bookkeeping for the query surface only.
func (e *Engine) SetLedgerCanisterID(id string) {
	e.cfgMu.Lock()
	e.cfg.LedgerCanisterID = id
	e.cfgMu.Unlock()
}

// CreateHTLC validates and inserts a new SwapOrder, per spec §4.1.
func (e *Engine) CreateHTLC(ctx context.Context, req CreateRequest) (*SwapOrder, error) {
	release, err := e.reentrancy.Enter()
	if err != nil {
		return nil, ErrReentrancyDetected
	}
	defer release()

	now := e.clock()
	cfg := e.Config()

	if req.Amount < cfg.MinSwapAmount || req.Amount > cfg.MaxSwapAmount {
		return nil, fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidAmount, req.Amount, cfg.MinSwapAmount, cfg.MaxSwapAmount)
	}

	if !(req.Timelock > now+cfg.TimelockMinDelta && req.Timelock <= now+cfg.TimelockMaxDelta) {
		return nil, fmt.Errorf("%w: timelock %d not in (%d, %d]", ErrInvalidTimeRange, req.Timelock, now+cfg.TimelockMinDelta, now+cfg.TimelockMaxDelta)
	}

	if e.hashlocks.Contains(req.Hashlock) {
		return nil, ErrHashlockAlreadyUsed
	}

	balance, err := e.ledger.Balance(ctx, ledger.CoordinatorAccount())
	if err != nil {
		return nil, &TransferFailedError{Reason: "balance query failed", Err: err}
	}
	if balance < req.Amount {
		return nil, ErrInsufficientCanisterBalance
	}

	fee := (req.Amount * uint64(cfg.BridgeFeePercentageBPS)) / 10000
	net := req.Amount - fee

	orderID := deriveOrderID(req.EthereumSender, string(req.Recipient), req.Amount, req.Hashlock, req.Timelock, now)

	order := &SwapOrder{
		OrderID:        orderID,
		EthereumSender: req.EthereumSender,
		Recipient:      req.Recipient,
		Amount:         net,
		OriginalAmount: req.Amount,
		Hashlock:       req.Hashlock,
		Timelock:       req.Timelock,
		CreatedAt:      now,
		CrossChainID:   req.CrossChainID,
	}

	e.mu.Lock()
	e.orders[orderID] = order
	e.stats.Total++
	e.mu.Unlock()

	e.hashlocks.Add(req.Hashlock)

	e.log.Info("htlc created", "order_id", orderID, "recipient", req.Recipient, "amount", net, "fee", fee, "timelock", req.Timelock)

	e.emitBridge(ctx, func(ctx context.Context) error {
		if e.bridge == nil {
			return nil
		}
		return e.bridge.EmitCreate(ctx, *order)
	})

	e.publish(EventCreated, *order)

	return order, nil
}

// CompleteHTLC reveals preimage and releases escrow to the recipient, per
// spec §4.1. caller must be an authorized resolver.
func (e *Engine) CompleteHTLC(ctx context.Context, orderID string, preimage []byte, caller string) (*SwapOrder, error) {
	release, err := e.reentrancy.Enter()
	if err != nil {
		return nil, ErrReentrancyDetected
	}
	defer release()

	if !e.resolvers.IsAuthorized(caller) {
		return nil, ErrUnauthorized
	}

	e.mu.RLock()
	order, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.Completed || order.Refunded {
		return nil, ErrInvalidOrderState
	}

	now := e.clock()
	if now >= order.Timelock {
		return nil, ErrTimelockExpired
	}

	if !verifyPreimage(preimage, order.Hashlock) {
		return nil, ErrInvalidPreimage
	}

	cfg := e.Config()
	height, err := e.ledger.Transfer(ctx, ledger.Account{Owner: string(order.Recipient)}, order.Amount, cfg.TransferMemo)
	if err != nil {
		return nil, &TransferFailedError{Reason: "native ledger transfer to recipient failed", Err: err}
	}

	e.mu.Lock()
	order.Completed = true
	order.TransferBlockHeight = height
	e.stats.Completed++
	snapshot := *order
	e.mu.Unlock()

	e.log.Info("htlc completed", "order_id", orderID, "recipient", order.Recipient, "block_height", height)

	e.emitBridge(ctx, func(ctx context.Context) error {
		if e.bridge == nil || !cfg.ChainFusionEnabled {
			return nil
		}
		return e.bridge.EmitComplete(ctx, snapshot, preimage)
	})

	e.publish(EventCompleted, snapshot)

	return &snapshot, nil
}

// RefundHTLC returns escrow to the depositor after timeout, per spec
// §4.1. Any caller may invoke it once the timelock has elapsed.
func (e *Engine) RefundHTLC(ctx context.Context, orderID string) (*SwapOrder, error) {
	release, err := e.reentrancy.Enter()
	if err != nil {
		return nil, ErrReentrancyDetected
	}
	defer release()

	e.mu.RLock()
	order, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.Completed || order.Refunded {
		return nil, ErrInvalidOrderState
	}

	now := e.clock()
	if now < order.Timelock {
		return nil, fmt.Errorf("%w: refund attempted before timelock %d (now %d)", ErrInvalidTimeRange, order.Timelock, now)
	}

	height, err := e.ledger.Transfer(ctx, ledger.Account{Owner: string(order.Recipient)}, order.Amount, e.Config().TransferMemo+" refund")
	if err != nil {
		return nil, &TransferFailedError{Reason: "native ledger refund transfer failed", Err: err}
	}

	e.mu.Lock()
	order.Refunded = true
	order.TransferBlockHeight = height
	e.stats.Refunded++
	snapshot := *order
	e.mu.Unlock()

	e.log.Info("htlc refunded", "order_id", orderID, "recipient", order.Recipient, "block_height", height)

	e.emitBridge(ctx, func(ctx context.Context) error {
		if e.bridge == nil {
			return nil
		}
		return e.bridge.EmitRefund(ctx, snapshot)
	})

	e.publish(EventRefunded, snapshot)

	return &snapshot, nil
}

// GetSwapOrder returns a snapshot of the order, the Go expression of
// get_swap_order.
func (e *Engine) GetSwapOrder(orderID string) (*SwapOrder, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	order, ok := e.orders[orderID]
	if !ok {
		return nil, false
	}
	snapshot := *order
	return &snapshot, true
}

// IsHashlockUsed reports whether hashlock has ever been accepted.
func (e *Engine) IsHashlockUsed(hashlock [32]byte) bool {
	return e.hashlocks.Contains(hashlock)
}

// Statistics returns the cumulative (total, completed, refunded) counts.
func (e *Engine) Statistics() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

func (e *Engine) emitBridge(ctx context.Context, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		e.log.Warn("chain fusion emission failed", "error", err)
	}
}

func (e *Engine) publish(t EventType, order SwapOrder) {
	ev := Event{Type: t, Order: order}
	for _, fn := range e.listeners {
		fn(ev)
	}
}

// deriveOrderID computes a deterministic order_id as lowercase hex
// SHA-256 over the create inputs. Not security-critical (the hashlock set
// is the real anti-replay guard) but must be deterministic, per §4.1 and
// §9's recommendation over the original non-cryptographic hash.
func deriveOrderID(ethereumSender, recipient string, amount uint64, hashlock [32]byte, timelock, now uint64) string {
	h := sha256.New()
	h.Write([]byte(ethereumSender))
	h.Write([]byte(recipient))
	h.Write(uint64Bytes(amount))
	h.Write(hashlock[:])
	h.Write(uint64Bytes(timelock))
	h.Write(uint64Bytes(now))
	return hex.EncodeToString(h.Sum(nil))
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
	return b
}

// HashPreimage computes SHA-256(preimage), exported for callers deriving
// a hashlock from a secret before calling CreateHTLC.
func HashPreimage(preimage []byte) [32]byte {
	return sha256.Sum256(preimage)
}

func verifyPreimage(preimage []byte, hashlock [32]byte) bool {
	got := HashPreimage(preimage)
	return helpers.ConstantTimeCompare(got[:], hashlock[:])
}
