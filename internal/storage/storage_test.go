package storage

import (
	"math/big"
	"testing"

	"github.com/hostbridge/coordinator/internal/bridge"
	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/internal/fusion"
	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/swapengine"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(config.StorageConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSwapOrderRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	order := swapengine.SwapOrder{
		OrderID:        "order-1",
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         1_998_000_000_000_000,
		OriginalAmount: 2_000_000_000_000_000,
		Hashlock:       swapengine.HashPreimage([]byte("hello")),
		Timelock:       1_007_200,
		CreatedAt:      1_000_000,
	}
	if err := s.SaveSwapOrder(order); err != nil {
		t.Fatalf("SaveSwapOrder: %v", err)
	}

	got, err := s.GetSwapOrder("order-1")
	if err != nil {
		t.Fatalf("GetSwapOrder: %v", err)
	}
	if got.Amount != order.Amount || got.Recipient != order.Recipient || got.Hashlock != order.Hashlock {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, order)
	}

	order.Completed = true
	if err := s.SaveSwapOrder(order); err != nil {
		t.Fatalf("SaveSwapOrder (update): %v", err)
	}
	got, err = s.GetSwapOrder("order-1")
	if err != nil {
		t.Fatalf("GetSwapOrder (after update): %v", err)
	}
	if !got.Completed {
		t.Error("expected Completed=true after update")
	}

	if _, err := s.GetSwapOrder("missing"); err != ErrOrderNotFound {
		t.Fatalf("got %v, want ErrOrderNotFound", err)
	}

	all, err := s.ListSwapOrders()
	if err != nil {
		t.Fatalf("ListSwapOrders: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListSwapOrders returned %d, want 1", len(all))
	}
}

func TestFusionOrderRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	order := fusion.OrderConfig{
		ID:                 1,
		SrcMint:            identity.Principal("token-a"),
		DstMint:            identity.Principal("token-b"),
		Maker:              identity.Principal("maker-1"),
		SrcAmount:          big.NewInt(1000),
		MinDstAmount:       big.NewInt(1),
		EstimatedDstAmount: big.NewInt(2000),
		ExpirationTime:     2_000_000,
		Auction: fusion.AuctionData{
			StartTime:  1_000_000,
			EndTime:    1_000_100,
			StartPrice: big.NewInt(100),
			EndPrice:   big.NewInt(50),
		},
		Fee:       fusion.FeeConfig{ProtocolFeeBPS: 5, IntegratorFeeBPS: 3},
		Status:    fusion.OrderStatus{Kind: fusion.StatusActive},
		CreatedAt: 1_000_000,
	}
	if err := s.SaveFusionOrder(order); err != nil {
		t.Fatalf("SaveFusionOrder: %v", err)
	}

	all, err := s.ListFusionOrders()
	if err != nil {
		t.Fatalf("ListFusionOrders: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListFusionOrders returned %d, want 1", len(all))
	}
	got := all[0]
	if got.SrcAmount.Cmp(big.NewInt(1000)) != 0 || got.Maker != order.Maker || got.Status.Kind != fusion.StatusActive {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Fee.ProtocolFeeBPS != 5 {
		t.Errorf("fee round trip: got %d, want 5", got.Fee.ProtocolFeeBPS)
	}
	if got.Hashlock != nil || got.Timelock != nil {
		t.Error("expected nil hashlock/timelock when order has none")
	}

	if err := s.DeleteFusionOrder(1); err != nil {
		t.Fatalf("DeleteFusionOrder: %v", err)
	}
	all, _ = s.ListFusionOrders()
	if len(all) != 0 {
		t.Errorf("expected order removed after delete, got %d remaining", len(all))
	}
}

func TestFusionOrderWithHashlockAndTimelock(t *testing.T) {
	s := newTestStorage(t)

	hl := &fusion.HashLock{SecretHash: swapengine.HashPreimage([]byte("secret")), Revealed: true, RevealTime: 42}
	tl := &fusion.TimeLock{FinalityLockDuration: 10, ExclusiveWithdrawDuration: 20, CancellationTimeout: 30, CreatedAt: 1_000_000}

	order := fusion.OrderConfig{
		ID:       2,
		SrcMint:  identity.Principal("token-a"),
		DstMint:  identity.Principal("token-b"),
		Maker:    identity.Principal("maker-1"),
		Hashlock: hl,
		Timelock: tl,
		Status:   fusion.OrderStatus{Kind: fusion.StatusActive},
	}
	if err := s.SaveFusionOrder(order); err != nil {
		t.Fatalf("SaveFusionOrder: %v", err)
	}

	all, err := s.ListFusionOrders()
	if err != nil {
		t.Fatalf("ListFusionOrders: %v", err)
	}
	got := all[0]
	if got.Hashlock == nil || got.Hashlock.SecretHash != hl.SecretHash || !got.Hashlock.Revealed {
		t.Errorf("hashlock round trip mismatch: got %+v", got.Hashlock)
	}
	if got.Timelock == nil || got.Timelock.FinalityLockDuration != 10 {
		t.Errorf("timelock round trip mismatch: got %+v", got.Timelock)
	}
}

func TestCrossChainMessageRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	m := bridge.Message{
		OrderID:     "order-5",
		MessageType: bridge.MessageComplete,
		SourceChain: bridge.ChainEthereum,
		TargetChain: bridge.ChainICP,
		Timestamp:   1_000_000,
		Payload:     []byte{0x01, 0x02},
	}
	if err := s.SaveCrossChainMessage(m, 1_000_001); err != nil {
		t.Fatalf("SaveCrossChainMessage: %v", err)
	}

	got, err := s.GetCrossChainMessage("order-5")
	if err != nil {
		t.Fatalf("GetCrossChainMessage: %v", err)
	}
	if got.MessageType != m.MessageType || got.SourceChain != m.SourceChain {
		t.Errorf("round trip mismatch: got %+v", got)
	}
}

func TestResolverRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SaveResolver("resolver-1", true); err != nil {
		t.Fatalf("SaveResolver: %v", err)
	}
	if err := s.SaveResolver("resolver-2", true); err != nil {
		t.Fatalf("SaveResolver: %v", err)
	}
	if err := s.SaveResolver("resolver-1", false); err != nil {
		t.Fatalf("SaveResolver (revoke): %v", err)
	}

	all, err := s.ListResolvers()
	if err != nil {
		t.Fatalf("ListResolvers: %v", err)
	}
	if all["resolver-1"] {
		t.Error("expected resolver-1 revoked")
	}
	if !all["resolver-2"] {
		t.Error("expected resolver-2 authorized")
	}
}
