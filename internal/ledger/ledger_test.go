package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestFakeTransferChargesFee(t *testing.T) {
	f := NewFake(10_000)
	f.Credit("__coordinator__", 1_000_000)

	height, err := f.Transfer(context.Background(), Account{Owner: "alice"}, 500_000, "memo")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if height != 1 {
		t.Errorf("block height = %d, want 1", height)
	}

	bal, _ := f.Balance(context.Background(), Account{Owner: "alice"})
	if bal != 500_000 {
		t.Errorf("alice balance = %d, want 500000", bal)
	}

	coordBal, _ := f.Balance(context.Background(), CoordinatorAccount())
	if coordBal != 1_000_000-500_000-10_000 {
		t.Errorf("coordinator balance = %d, want %d", coordBal, 1_000_000-500_000-10_000)
	}
}

func TestFakeTransferInsufficientFunds(t *testing.T) {
	f := NewFake(10_000)
	f.Credit("__coordinator__", 1_000)

	_, err := f.Transfer(context.Background(), Account{Owner: "alice"}, 500_000, "memo")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestFakeTransferFromRequiresAllowance(t *testing.T) {
	f := NewFake(10_000)
	f.Credit("maker", 1_000_000)

	_, err := f.TransferFrom(context.Background(), Account{Owner: "maker"}, CoordinatorAccount(), 500_000, "memo")
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	f.Approve("maker", 510_000)
	height, err := f.TransferFrom(context.Background(), Account{Owner: "maker"}, CoordinatorAccount(), 500_000, "memo")
	if err != nil {
		t.Fatalf("TransferFrom after approve: %v", err)
	}
	if height != 1 {
		t.Errorf("block height = %d, want 1", height)
	}
}
