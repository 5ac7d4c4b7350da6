// Package ledger models the ICRC-style fungible-token ledgers the
// coordinator calls into: icrc1_transfer, icrc2_transfer_from, and
// account_balance, per spec §6.1. The ledgers themselves are external
// collaborators (out of scope per §1); this package defines the narrow
// interface the engines call through and an in-memory fake used by tests
// and by a standalone daemon with no external ledger wired in.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientFunds is returned by the fake ledger when a transfer
// would overdraw an account, the in-process analogue of a
// TransferError/TransferFromError from a real ICRC ledger.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInsufficientAllowance is returned by the fake ledger when a
// transfer-from exceeds the spender's granted allowance.
var ErrInsufficientAllowance = errors.New("insufficient allowance")

// Account identifies a ledger account: an owner principal plus an
// optional subaccount, matching the ICRC Account record.
type Account struct {
	Owner      string
	Subaccount []byte
}

// Ledger is the interface the coordinator uses to move value on a single
// token. Amount is uint64 for the native HTLC ledger (host coin smallest
// units) and also serves Fusion orders whose on-ledger amounts fit in
// 64 bits; Fusion's own internal accounting uses *big.Int for auction
// arithmetic but settles through this same interface.
type Ledger interface {
	// Transfer moves amount from the coordinator's own account to to,
	// returning the resulting block height.
	Transfer(ctx context.Context, to Account, amount uint64, memo string) (blockHeight uint64, err error)

	// TransferFrom moves amount from from to to, debiting from's
	// allowance previously granted to the coordinator via icrc2_approve
	// (out of band; the coordinator never calls approve itself).
	TransferFrom(ctx context.Context, from, to Account, amount uint64, memo string) (blockHeight uint64, err error)

	// Balance returns the current balance of account.
	Balance(ctx context.Context, account Account) (uint64, error)
}

// Fake is an in-memory Ledger used by engine tests and by deployments with
// no external ledger canister wired in. It tracks balances and allowances
// granted to a single spender (the coordinator itself).
type Fake struct {
	mu         sync.Mutex
	balances   map[string]uint64
	allowances map[string]uint64 // keyed by owner; spender is implicitly the coordinator
	nextBlock  uint64
	fee        uint64
}

// NewFake returns an empty fake ledger charging the given fixed transfer
// fee on every Transfer/TransferFrom, matching the real ledger's
// fixed-fee semantics (§6.1).
func NewFake(fee uint64) *Fake {
	return &Fake{
		balances:   make(map[string]uint64),
		allowances: make(map[string]uint64),
		fee:        fee,
	}
}

// Credit sets up test fixtures by crediting account without going through
// a transfer.
func (f *Fake) Credit(owner string, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[owner] += amount
}

// Approve grants the coordinator an allowance out of owner's account, the
// fake equivalent of icrc2_approve.
func (f *Fake) Approve(owner string, amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[owner] = amount
}

func (f *Fake) Transfer(_ context.Context, to Account, amount uint64, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := amount + f.fee
	if f.balances["__coordinator__"] < total {
		return 0, fmt.Errorf("%w: coordinator escrow has %d, need %d", ErrInsufficientFunds, f.balances["__coordinator__"], total)
	}
	f.balances["__coordinator__"] -= total
	f.balances[to.Owner] += amount
	f.nextBlock++
	return f.nextBlock, nil
}

func (f *Fake) TransferFrom(_ context.Context, from, to Account, amount uint64, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := amount + f.fee
	if f.allowances[from.Owner] < total {
		return 0, fmt.Errorf("%w: %s granted %d, need %d", ErrInsufficientAllowance, from.Owner, f.allowances[from.Owner], total)
	}
	if f.balances[from.Owner] < total {
		return 0, fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, from.Owner, f.balances[from.Owner], total)
	}
	f.allowances[from.Owner] -= total
	f.balances[from.Owner] -= total
	f.balances[to.Owner] += amount
	f.nextBlock++
	return f.nextBlock, nil
}

func (f *Fake) Balance(_ context.Context, account Account) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[account.Owner], nil
}

// CoordinatorAccount is the escrow account the coordinator deposits into
// and transfers out of; a sentinel owner name the fake ledger treats
// specially so tests can assert on it directly.
func CoordinatorAccount() Account {
	return Account{Owner: "__coordinator__"}
}
