// Package fusion implements the Fusion limit-order engine: OrderConfig
// records keyed by numeric id, maker escrow, Dutch-auction fill pricing,
// partial fills, and cancel-with-premium. Grounded directly in
// create_order / fill_order / cancel_order from the host chain's fusion
// swap canister.
package fusion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/hostbridge/coordinator/internal/guard"
	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/ledger"
	"github.com/hostbridge/coordinator/pkg/logging"
)

// FeeConfig is the per-order fee schedule.
type FeeConfig struct {
	ProtocolFeeBPS   uint16
	IntegratorFeeBPS uint16
	SurplusBPS       uint16
	MaxCancelPremium *big.Int
}

// AuctionData describes the Dutch-auction price curve. Prices are u128 in
// the host chain's canister (§3.1); StartPrice/EndPrice are *big.Int here
// to carry that same range instead of truncating to 64 bits.
type AuctionData struct {
	StartTime  uint64
	EndTime    uint64
	StartPrice *big.Int
	EndPrice   *big.Int
}

// HashLock is the optional secret-reveal gate on a fill, mirroring the
// Rust source's HashLock record.
type HashLock struct {
	SecretHash [32]byte
	Revealed   bool
	RevealTime uint64
}

// TimeLock is the optional finality gate on a fill.
type TimeLock struct {
	FinalityLockDuration      uint64
	ExclusiveWithdrawDuration uint64
	CancellationTimeout       uint64
	CreatedAt                 uint64
}

// StatusKind enumerates OrderConfig.Status.Kind.
type StatusKind string

const (
	StatusAnnounced StatusKind = "announced"
	StatusActive    StatusKind = "active"
	StatusCompleted StatusKind = "completed"
	StatusCancelled StatusKind = "cancelled"
	StatusFailed    StatusKind = "failed"
)

// OrderStatus carries an optional reason for StatusFailed, matching the
// Rust source's Failed(String) variant.
type OrderStatus struct {
	Kind   StatusKind
	Reason string
}

// OrderConfig is the Fusion order record. Amount fields are *big.Int,
// matching spec §3.1's u128 Amount type; the settlement ledger interface
// is u64-bounded (internal/ledger), so CreateOrder/FillOrder/CancelOrder
// bounds-check at the point they hand an amount to the ledger rather than
// truncating the order's own accounting.
type OrderConfig struct {
	ID                      uint64
	SrcMint                 identity.Principal
	DstMint                 identity.Principal
	Maker                   identity.Principal
	SrcAmount               *big.Int // decreases as partial fills succeed
	MinDstAmount            *big.Int
	EstimatedDstAmount      *big.Int
	ExpirationTime          uint64
	Fee                     FeeConfig
	Auction                 AuctionData
	CancellationAuctionSecs uint32
	Hashlock                *HashLock
	Timelock                *TimeLock
	Status                  OrderStatus
	CreatedAt               uint64
}

// EventType names a domain event published after a committed transition.
type EventType string

const (
	EventCreated  EventType = "order_created"
	EventFilled   EventType = "order_filled"
	EventCanceled EventType = "order_cancelled"
)

// Event is published to every listener registered with OnEvent after
// every committed mutation.
type Event struct {
	Type  EventType
	Order OrderConfig
}

// Engine owns all OrderConfig state and its concurrency guard. A single
// Engine instance is installed on the coordinator at startup.
type Engine struct {
	mu     sync.RWMutex
	orders map[uint64]*OrderConfig

	reentrancy guard.Reentrancy

	ledger ledger.Ledger
	clock  func() uint64
	log    *logging.Logger

	listeners []func(Event)
}

// New constructs a Fusion Engine. clock supplies the current host-chain
// time in seconds.
func New(led ledger.Ledger, clock func() uint64) *Engine {
	return &Engine{
		orders: make(map[uint64]*OrderConfig),
		ledger: led,
		clock:  clock,
		log:    logging.GetDefault().Component("fusion"),
	}
}

// OnEvent adds a listener invoked after every committed mutation.
// Listeners are called in registration order; registering a new one never
// drops the ones already subscribed.
func (e *Engine) OnEvent(fn func(Event)) { e.listeners = append(e.listeners, fn) }

// bigToLedgerAmount converts a non-negative *big.Int order amount to the
// u64 the Ledger interface settles in, rejecting amounts the host coin's
// native ledger can never represent instead of silently truncating them.
func bigToLedgerAmount(n *big.Int) (uint64, error) {
	if n == nil || n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%w: amount %s does not fit the settlement ledger", ErrInvalidAmount, bigString(n))
	}
	return n.Uint64(), nil
}

func bigString(n *big.Int) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}

func isPositive(n *big.Int) bool {
	return n != nil && n.Sign() > 0
}

// CreateOrder validates order and pulls SrcAmount of SrcMint from the
// maker into program escrow, per spec §4.2. caller must equal order.Maker.
func (e *Engine) CreateOrder(ctx context.Context, caller identity.Principal, order OrderConfig) (*OrderConfig, error) {
	release, err := e.reentrancy.Enter()
	if err != nil {
		return nil, ErrReentrancyDetected
	}
	defer release()

	if caller != order.Maker {
		return nil, ErrUnauthorized
	}
	if !isPositive(order.SrcAmount) {
		return nil, fmt.Errorf("%w: src_amount must be > 0", ErrInvalidAmount)
	}
	if !isPositive(order.MinDstAmount) {
		return nil, fmt.Errorf("%w: min_dst_amount must be > 0", ErrInvalidAmount)
	}
	if order.SrcMint == order.DstMint {
		return nil, fmt.Errorf("%w: src_mint must differ from dst_mint", ErrInvalidAmount)
	}
	if order.Auction.StartTime >= order.Auction.EndTime {
		return nil, fmt.Errorf("%w: auction start_time must precede end_time", ErrInvalidTimeRange)
	}

	e.mu.RLock()
	_, exists := e.orders[order.ID]
	e.mu.RUnlock()
	if exists {
		return nil, ErrOrderAlreadyExists
	}

	escrowAmount, err := bigToLedgerAmount(order.SrcAmount)
	if err != nil {
		return nil, err
	}
	if _, err := e.ledger.TransferFrom(ctx, ledger.Account{Owner: string(order.Maker)}, ledger.CoordinatorAccount(), escrowAmount, "fusion order escrow"); err != nil {
		return nil, &TransferFailedError{Reason: "escrow pull from maker failed", Err: err}
	}

	order.Status = OrderStatus{Kind: StatusActive}
	order.CreatedAt = e.clock()
	stored := order

	e.mu.Lock()
	e.orders[stored.ID] = &stored
	e.mu.Unlock()

	e.log.Info("fusion order created", "order_id", stored.ID, "maker", stored.Maker, "src_amount", stored.SrcAmount)
	e.publish(EventCreated, stored)

	return &stored, nil
}

// FillOrder fills takerAmount of an order's SrcAmount at the current
// Dutch-auction price, per spec §4.2.
func (e *Engine) FillOrder(ctx context.Context, orderID uint64, taker identity.Principal, takerAmount *big.Int, secret []byte) (*OrderConfig, error) {
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

	now := e.clock()
	if now >= order.ExpirationTime {
		return nil, ErrOrderExpired
	}
	if !isPositive(takerAmount) || takerAmount.Cmp(order.SrcAmount) > 0 {
		return nil, fmt.Errorf("%w: taker_amount %s invalid against src_amount %s", ErrInvalidAmount, bigString(takerAmount), bigString(order.SrcAmount))
	}

	if len(secret) > 0 {
		if order.Hashlock == nil {
			return nil, ErrInvalidSecret
		}
		if sha256.Sum256(secret) != order.Hashlock.SecretHash {
			return nil, ErrInvalidSecret
		}
		order.Hashlock.Revealed = true
		order.Hashlock.RevealTime = now
	}

	if order.Timelock != nil {
		if now < order.CreatedAt+order.Timelock.FinalityLockDuration {
			return nil, ErrTimelockViolation
		}
	}

	dstAmount := computeDstAmount(order.Auction, order.EstimatedDstAmount, order.SrcAmount, takerAmount, now)
	if dstAmount.Cmp(order.MinDstAmount) < 0 {
		return nil, fmt.Errorf("%w: dst_amount %s below min_dst_amount %s", ErrInvalidAmount, dstAmount, order.MinDstAmount)
	}

	dstSettle, err := bigToLedgerAmount(dstAmount)
	if err != nil {
		return nil, err
	}
	takerSettle, err := bigToLedgerAmount(takerAmount)
	if err != nil {
		return nil, err
	}

	// Leg (a): taker pays maker in dst_mint.
	if _, err := e.ledger.TransferFrom(ctx, ledger.Account{Owner: string(taker)}, ledger.Account{Owner: string(order.Maker)}, dstSettle, "fusion fill payment"); err != nil {
		return nil, &TransferFailedError{Reason: "taker payment to maker failed", Err: err}
	}

	// Leg (b): escrow releases src_mint to taker. If this fails after (a)
	// has committed, the order is left inconsistent; flag Failed and
	// report TransferFailed rather than attempt automatic compensation
	// (see DESIGN.md's cross-ledger atomicity note).
	if _, err := e.ledger.Transfer(ctx, ledger.Account{Owner: string(taker)}, takerSettle, "fusion fill settlement"); err != nil {
		e.mu.Lock()
		order.Status = OrderStatus{Kind: StatusFailed, Reason: "escrow release to taker failed after taker payment committed"}
		e.mu.Unlock()
		return nil, &TransferFailedError{Reason: "escrow release to taker failed", Err: err}
	}

	e.mu.Lock()
	order.SrcAmount = new(big.Int).Sub(order.SrcAmount, takerAmount)
	var snapshot OrderConfig
	if order.SrcAmount.Sign() == 0 {
		order.Status = OrderStatus{Kind: StatusCompleted}
		snapshot = *order
		delete(e.orders, orderID)
	} else {
		order.Status = OrderStatus{Kind: StatusActive}
		snapshot = *order
	}
	e.mu.Unlock()

	e.log.Info("fusion order filled", "order_id", orderID, "taker", taker, "taker_amount", takerAmount, "dst_amount", dstAmount, "remaining", snapshot.SrcAmount)
	e.publish(EventFilled, snapshot)

	return &snapshot, nil
}

// CancelOrder cancels an order, refunding escrow to the maker. The maker
// may cancel at any time; any caller may cancel after expiration. The
// premium-deducted branch below mirrors the source's documented formula;
// it is unreachable, because a non-maker caller before expiration is
// rejected with ErrUnauthorized first, and the engine has no other
// cancellation entry point.
func (e *Engine) CancelOrder(ctx context.Context, caller identity.Principal, orderID uint64) (*OrderConfig, error) {
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

	now := e.clock()
	isExpired := now >= order.ExpirationTime
	isMaker := caller == order.Maker

	if !isMaker && !isExpired {
		return nil, ErrUnauthorized
	}

	refund := order.SrcAmount
	if !isMaker && !isExpired {
		premium := order.Fee.MaxCancelPremium
		if premium == nil {
			premium = new(big.Int)
		}
		tenth := new(big.Int).Div(order.SrcAmount, big.NewInt(10))
		if tenth.Cmp(premium) < 0 {
			premium = tenth
		}
		refund = new(big.Int).Sub(order.SrcAmount, premium)
	}

	refundSettle, err := bigToLedgerAmount(refund)
	if err != nil {
		return nil, err
	}
	if _, err := e.ledger.Transfer(ctx, ledger.Account{Owner: string(order.Maker)}, refundSettle, "fusion order cancel refund"); err != nil {
		return nil, &TransferFailedError{Reason: "cancel refund to maker failed", Err: err}
	}

	snapshot := *order
	snapshot.Status = OrderStatus{Kind: StatusCancelled}

	e.mu.Lock()
	delete(e.orders, orderID)
	e.mu.Unlock()

	e.log.Info("fusion order cancelled", "order_id", orderID, "maker", order.Maker, "refund", refund)
	e.publish(EventCanceled, snapshot)

	return &snapshot, nil
}

// GetOrder returns a snapshot of an order by id.
func (e *Engine) GetOrder(orderID uint64) (*OrderConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	order, ok := e.orders[orderID]
	if !ok {
		return nil, false
	}
	snapshot := *order
	return &snapshot, true
}

// AllOrders returns a snapshot of every order currently in the book.
func (e *Engine) AllOrders() []OrderConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]OrderConfig, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}

// OrdersByMaker returns every order whose Maker equals maker.
func (e *Engine) OrdersByMaker(maker identity.Principal) []OrderConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []OrderConfig
	for _, o := range e.orders {
		if o.Maker == maker {
			out = append(out, *o)
		}
	}
	return out
}

func (e *Engine) publish(t EventType, order OrderConfig) {
	ev := Event{Type: t, Order: order}
	for _, fn := range e.listeners {
		fn(ev)
	}
}

// AuctionPrice computes the Dutch-auction price at time t, clamped to the
// auction window, per spec §4.2. Evaluated in big.Int throughout to
// preserve u128 range; the numerator is computed before dividing by the
// window width, per design note §9 (the floating-point variant is not to
// be reproduced).
func AuctionPrice(a AuctionData, t uint64) *big.Int {
	if t <= a.StartTime {
		return new(big.Int).Set(a.StartPrice)
	}
	if t >= a.EndTime {
		return new(big.Int).Set(a.EndPrice)
	}

	endMinusT := new(big.Int).SetUint64(a.EndTime - t)
	tMinusStart := new(big.Int).SetUint64(t - a.StartTime)
	window := new(big.Int).SetUint64(a.EndTime - a.StartTime)

	numerator := new(big.Int).Add(
		new(big.Int).Mul(a.StartPrice, endMinusT),
		new(big.Int).Mul(a.EndPrice, tMinusStart),
	)
	return new(big.Int).Div(numerator, window)
}

// computeDstAmount applies the in-window pricing formula, or the
// estimated-ratio fallback outside the auction window, per spec §4.2.
func computeDstAmount(a AuctionData, estimatedDst, srcAmount, takerAmount *big.Int, now uint64) *big.Int {
	if now < a.StartTime || now > a.EndTime {
		num := new(big.Int).Mul(takerAmount, estimatedDst)
		return new(big.Int).Div(num, srcAmount)
	}

	price := AuctionPrice(a, now)
	num := new(big.Int).Mul(takerAmount, price)
	return new(big.Int).Div(num, a.StartPrice)
}
