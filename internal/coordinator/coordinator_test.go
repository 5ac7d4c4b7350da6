package coordinator

import (
	"context"
	"math/big"
	"testing"

	"github.com/hostbridge/coordinator/internal/bridge"
	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/internal/fusion"
	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/ledger"
	"github.com/hostbridge/coordinator/internal/storage"
	"github.com/hostbridge/coordinator/internal/swapengine"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *ledger.Fake, *storage.Storage) {
	t.Helper()

	cfg := config.DefaultDaemonConfig()
	cfg.ControllerPrincipal = "controller-1"
	cfg.Bridge.MinSwapAmount = 100
	cfg.Bridge.MaxSwapAmount = 1_000_000

	led := ledger.NewFake(0)
	led.Credit("__coordinator__", 10_000_000)

	store, err := storage.New(config.StorageConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	disp := bridge.New(cfg.Bridge, nil, func() uint64 { return 1_000_000 })

	c, err := New(cfg, led, disp, store, nil, func() uint64 { return 1_000_000 }, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, led, store
}

func TestGreet(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	if got := c.Greet(""); got != "Hello, stranger! hostbridge coordinator is running." {
		t.Errorf("Greet(\"\") = %q", got)
	}
	if got := c.Greet("alice"); got != "Hello, alice! hostbridge coordinator is running." {
		t.Errorf("Greet(\"alice\") = %q", got)
	}
}

func TestAdminOpsRequireController(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	if err := c.SetBridgeFeePercentage("not-the-controller", 5); err != ErrUnauthorized {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if err := c.SetBridgeFeePercentage("controller-1", 5); err != nil {
		t.Fatalf("SetBridgeFeePercentage as controller: %v", err)
	}
	if got := c.GetBridgeConfigQuery().BridgeFeePercentageBPS; got != 5 {
		t.Errorf("BridgeFeePercentageBPS = %d, want 5", got)
	}
}

func TestSetSwapLimitsValidation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	if err := c.SetSwapLimits("controller-1", 100, 50); err == nil {
		t.Fatal("expected error for min >= max")
	}
	if err := c.SetSwapLimits("controller-1", 50, 100); err != nil {
		t.Fatalf("SetSwapLimits: %v", err)
	}
	cfg := c.GetBridgeConfigQuery()
	if cfg.MinSwapAmount != 50 || cfg.MaxSwapAmount != 100 {
		t.Errorf("swap limits = [%d, %d], want [50, 100]", cfg.MinSwapAmount, cfg.MaxSwapAmount)
	}
}

func TestSetChainFusionEnabledPropagatesToDispatcher(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	if err := c.SetChainFusionEnabled("controller-1", true); err != nil {
		t.Fatalf("SetChainFusionEnabled: %v", err)
	}
	if !c.GetChainFusionStatus().Enabled {
		t.Error("expected chain fusion status enabled after update")
	}
	if !c.Bridge.Config().ChainFusionEnabled {
		t.Error("expected dispatcher cfg also updated")
	}
}

func TestSwapOrderEventPersistsAndQueries(t *testing.T) {
	c, _, store := newTestCoordinator(t)
	ctx := context.Background()

	hashlock := swapengine.HashPreimage([]byte("secret"))
	order, err := c.Swap.CreateHTLC(ctx, swapengine.CreateRequest{
		EthereumSender: "0xabc",
		Recipient:      identity.Principal("alice"),
		Amount:         1000,
		Hashlock:       hashlock,
		Timelock:       1_000_000 + 7200,
	})
	if err != nil {
		t.Fatalf("CreateHTLC: %v", err)
	}

	got, ok := c.GetSwapOrder(order.OrderID)
	if !ok {
		t.Fatal("GetSwapOrder: not found")
	}
	if got.Amount != order.Amount {
		t.Errorf("Amount = %d, want %d", got.Amount, order.Amount)
	}

	if !c.IsHashlockUsed(hashlock) {
		t.Error("expected hashlock marked used")
	}

	persisted, err := store.GetSwapOrder(order.OrderID)
	if err != nil {
		t.Fatalf("expected order persisted to storage: %v", err)
	}
	if persisted.OrderID != order.OrderID {
		t.Errorf("persisted order_id = %q, want %q", persisted.OrderID, order.OrderID)
	}

	stats := c.GetSwapStatistics()
	if stats.Total != 1 {
		t.Errorf("stats.Total = %d, want 1", stats.Total)
	}
}

func TestFusionOrderEventPersistsAndDeletesOnFill(t *testing.T) {
	c, led, store := newTestCoordinator(t)
	ctx := context.Background()

	led.Credit("maker-1", 1_000_000)
	led.Approve("maker-1", 1_000_000)
	led.Credit("taker-1", 1_000_000)
	led.Approve("taker-1", 1_000_000)

	order := fusion.OrderConfig{
		ID:                 1,
		SrcMint:            identity.Principal("token-a"),
		DstMint:            identity.Principal("token-b"),
		Maker:              identity.Principal("maker-1"),
		SrcAmount:          big.NewInt(1000),
		MinDstAmount:       big.NewInt(1),
		EstimatedDstAmount: big.NewInt(1000),
		ExpirationTime:     2_000_000,
		Auction:            fusion.AuctionData{StartTime: 1_000_000, EndTime: 1_000_100, StartPrice: big.NewInt(100), EndPrice: big.NewInt(100)},
		Status:             fusion.OrderStatus{Kind: fusion.StatusActive},
		CreatedAt:          1_000_000,
	}
	created, err := c.Fusion.CreateOrder(ctx, identity.Principal("maker-1"), order)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	all, err := store.ListFusionOrders()
	if err != nil || len(all) != 1 {
		t.Fatalf("expected 1 persisted fusion order, got %d (err=%v)", len(all), err)
	}

	if _, err := c.Fusion.FillOrder(ctx, created.ID, identity.Principal("taker-1"), big.NewInt(1000), nil); err != nil {
		t.Fatalf("FillOrder: %v", err)
	}

	all, err = store.ListFusionOrders()
	if err != nil {
		t.Fatalf("ListFusionOrders: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected fusion order removed from storage after full fill, got %d", len(all))
	}

	if _, ok := c.GetOrder(created.ID); ok {
		t.Error("expected order removed from engine after full fill")
	}
}
