package swapengine

import (
	"context"
	"errors"
	"testing"

	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/ledger"
)

func newTestEngine(t *testing.T, now uint64) (*Engine, *ledger.Fake, *uint64) {
	t.Helper()
	cfg := config.DefaultBridgeConfig()
	cfg.MinSwapAmount = 1
	cfg.MaxSwapAmount = 10_000_000_000_000_000
	fake := ledger.NewFake(cfg.TransferFee)
	fake.Credit("__coordinator__", cfg.MaxSwapAmount)

	clock := now
	e := New(cfg, fake, nil, func() uint64 { return clock })
	e.SetAuthorizedResolver("resolver-1", true)
	return e, fake, &clock
}

// S1 — HTLC happy path.
func TestCreateAndCompleteHappyPath(t *testing.T) {
	e, _, clock := newTestEngine(t, 1_000_000)
	hashlock := HashPreimage([]byte("hello"))

	order, err := e.CreateHTLC(context.Background(), CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         2_000_000_000_000_000,
		Hashlock:       hashlock,
		Timelock:       *clock + 7200,
	})
	if err != nil {
		t.Fatalf("CreateHTLC: %v", err)
	}

	wantNet := uint64(1_998_000_000_000_000)
	if order.Amount != wantNet {
		t.Errorf("net amount = %d, want %d", order.Amount, wantNet)
	}

	completed, err := e.CompleteHTLC(context.Background(), order.OrderID, []byte("hello"), "resolver-1")
	if err != nil {
		t.Fatalf("CompleteHTLC: %v", err)
	}
	if !completed.Completed {
		t.Error("expected Completed == true")
	}
}

// S2 — HTLC refund, then re-refund fails.
func TestRefundThenDoubleRefundFails(t *testing.T) {
	e, _, clock := newTestEngine(t, 1_000_000)
	hashlock := HashPreimage([]byte("secret"))

	order, err := e.CreateHTLC(context.Background(), CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("bob"),
		Amount:         2_000_000_000_000_000,
		Hashlock:       hashlock,
		Timelock:       *clock + 7200,
	})
	if err != nil {
		t.Fatalf("CreateHTLC: %v", err)
	}

	*clock += 7201

	refunded, err := e.RefundHTLC(context.Background(), order.OrderID)
	if err != nil {
		t.Fatalf("RefundHTLC: %v", err)
	}
	if !refunded.Refunded {
		t.Error("expected Refunded == true")
	}

	if _, err := e.RefundHTLC(context.Background(), order.OrderID); !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("second refund: got %v, want ErrInvalidOrderState", err)
	}
}

// S3 — wrong preimage.
func TestCompleteWrongPreimage(t *testing.T) {
	e, _, clock := newTestEngine(t, 1_000_000)
	hashlock := HashPreimage([]byte("hello"))

	order, err := e.CreateHTLC(context.Background(), CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         2_000_000_000_000_000,
		Hashlock:       hashlock,
		Timelock:       *clock + 7200,
	})
	if err != nil {
		t.Fatalf("CreateHTLC: %v", err)
	}

	if _, err := e.CompleteHTLC(context.Background(), order.OrderID, []byte("hell"), "resolver-1"); !errors.Is(err, ErrInvalidPreimage) {
		t.Fatalf("got %v, want ErrInvalidPreimage", err)
	}

	got, _ := e.GetSwapOrder(order.OrderID)
	if got.Completed {
		t.Error("expected Completed to remain false after wrong preimage")
	}
}

func TestTimelockBoundary(t *testing.T) {
	e, _, clock := newTestEngine(t, 1_000_000)
	hashlock := HashPreimage([]byte("boundary"))

	order, err := e.CreateHTLC(context.Background(), CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         2_000_000_000_000_000,
		Hashlock:       hashlock,
		Timelock:       *clock + 7200,
	})
	if err != nil {
		t.Fatalf("CreateHTLC: %v", err)
	}

	// now == timelock - 1: complete succeeds, refund fails.
	*clock = order.Timelock - 1
	if _, err := e.RefundHTLC(context.Background(), order.OrderID); err == nil {
		t.Fatal("expected refund to fail before timelock")
	}
	if _, err := e.CompleteHTLC(context.Background(), order.OrderID, []byte("boundary"), "resolver-1"); err != nil {
		t.Fatalf("expected complete to succeed at timelock-1, got %v", err)
	}
}

func TestTimelockExpiredAtExactBoundary(t *testing.T) {
	e, _, clock := newTestEngine(t, 1_000_000)
	hashlock := HashPreimage([]byte("exact"))

	order, err := e.CreateHTLC(context.Background(), CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         2_000_000_000_000_000,
		Hashlock:       hashlock,
		Timelock:       *clock + 7200,
	})
	if err != nil {
		t.Fatalf("CreateHTLC: %v", err)
	}

	*clock = order.Timelock // now == timelock
	if _, err := e.CompleteHTLC(context.Background(), order.OrderID, []byte("exact"), "resolver-1"); !errors.Is(err, ErrTimelockExpired) {
		t.Fatalf("complete at now==timelock: got %v, want ErrTimelockExpired", err)
	}
	if _, err := e.RefundHTLC(context.Background(), order.OrderID); err != nil {
		t.Fatalf("refund at now==timelock should succeed, got %v", err)
	}
}

func TestCreateRejectsDuplicateHashlock(t *testing.T) {
	e, _, clock := newTestEngine(t, 1_000_000)
	hashlock := HashPreimage([]byte("dup"))

	req := CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         2_000_000_000_000_000,
		Hashlock:       hashlock,
		Timelock:       *clock + 7200,
	}
	if _, err := e.CreateHTLC(context.Background(), req); err != nil {
		t.Fatalf("first CreateHTLC: %v", err)
	}
	req.Timelock = *clock + 7300
	if _, err := e.CreateHTLC(context.Background(), req); !errors.Is(err, ErrHashlockAlreadyUsed) {
		t.Fatalf("got %v, want ErrHashlockAlreadyUsed", err)
	}
}

func TestCreateRejectsTimelockBelowMinDelta(t *testing.T) {
	e, _, clock := newTestEngine(t, 1_000_000)

	_, err := e.CreateHTLC(context.Background(), CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         2_000_000_000_000_000,
		Hashlock:       HashPreimage([]byte("too-soon")),
		Timelock:       *clock + 100, // below min delta
	})
	if !errors.Is(err, ErrInvalidTimeRange) {
		t.Fatalf("got %v, want ErrInvalidTimeRange", err)
	}
}

func TestCompleteUnauthorizedResolverRejected(t *testing.T) {
	e, _, clock := newTestEngine(t, 1_000_000)
	hashlock := HashPreimage([]byte("auth"))

	order, err := e.CreateHTLC(context.Background(), CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         2_000_000_000_000_000,
		Hashlock:       hashlock,
		Timelock:       *clock + 7200,
	})
	if err != nil {
		t.Fatalf("CreateHTLC: %v", err)
	}

	if _, err := e.CompleteHTLC(context.Background(), order.OrderID, []byte("auth"), "someone-else"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}
