package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hostbridge/coordinator/internal/bridge"
	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/internal/coordinator"
	"github.com/hostbridge/coordinator/internal/ledger"
	"github.com/hostbridge/coordinator/internal/storage"
)

func newTestServer(t *testing.T) (*Server, string) {
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
	coord, err := coordinator.New(cfg, led, disp, store, nil, func() uint64 { return 1_000_000 }, "test")
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}

	srv := NewServer(coord)
	addr := "127.0.0.1:0"
	if err := srv.Start(addr); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return srv, "http://" + srv.listener.Addr().String()
}

func call(t *testing.T, baseURL, method string, params interface{}, caller string) Response {
	t.Helper()

	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	req := Request{JSONRPC: "2.0", Method: method, Params: raw, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if caller != "" {
		httpReq.Header.Set("X-Principal", caller)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestGreetRPC(t *testing.T) {
	_, baseURL := newTestServer(t)

	resp := call(t, baseURL, "greet", map[string]string{"name": "bob"}, "")
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result != "Hello, bob! hostbridge coordinator is running." {
		t.Errorf("result = %v", resp.Result)
	}
}

func TestMethodNotFound(t *testing.T) {
	_, baseURL := newTestServer(t)

	resp := call(t, baseURL, "no_such_method", map[string]string{}, "")
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Fatalf("expected MethodNotFound, got %+v", resp.Error)
	}
}

func TestCreateAndGetHTLC(t *testing.T) {
	_, baseURL := newTestServer(t)

	hashlock := [32]byte{1, 2, 3}
	params := map[string]interface{}{
		"ethereum_sender": "0xabc",
		"recipient":       "alice",
		"amount":          1000,
		"hashlock":        hex.EncodeToString(hashlock[:]),
		"timelock":        1_000_000 + 7200,
	}
	created := call(t, baseURL, "create_htlc", params, "")
	if created.Error != nil {
		t.Fatalf("create_htlc error: %+v", created.Error)
	}

	orderMap, ok := created.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape: %#v", created.Result)
	}
	orderID := orderMap["OrderID"].(string)

	got := call(t, baseURL, "get_swap_order", map[string]string{"order_id": orderID}, "")
	if got.Error != nil {
		t.Fatalf("get_swap_order error: %+v", got.Error)
	}

	used := call(t, baseURL, "is_hashlock_used", map[string]string{"hashlock": hex.EncodeToString(hashlock[:])}, "")
	if used.Error != nil || used.Result != true {
		t.Fatalf("is_hashlock_used = %+v, err %+v", used.Result, used.Error)
	}
}

func TestAdminRequiresController(t *testing.T) {
	_, baseURL := newTestServer(t)

	resp := call(t, baseURL, "set_bridge_fee_percentage", map[string]int{"bps": 5}, "not-controller")
	if resp.Error == nil {
		t.Fatal("expected unauthorized error for non-controller caller")
	}

	resp = call(t, baseURL, "set_bridge_fee_percentage", map[string]int{"bps": 5}, "controller-1")
	if resp.Error != nil {
		t.Fatalf("set_bridge_fee_percentage as controller: %+v", resp.Error)
	}

	cfg := call(t, baseURL, "get_bridge_config_query", map[string]string{}, "")
	if cfg.Error != nil {
		t.Fatalf("get_bridge_config_query: %+v", cfg.Error)
	}
}

func TestVerifyCrossChainMessageRejectsStale(t *testing.T) {
	_, baseURL := newTestServer(t)

	params := map[string]interface{}{
		"order_id":     "order-1",
		"message_type": "create",
		"source_chain": "ethereum",
		"target_chain": "icp",
		"timestamp":    1, // far in the past relative to the fixed clock (1_000_000)
	}
	resp := call(t, baseURL, "verify_cross_chain_message", params, "")
	if resp.Error != nil {
		t.Fatalf("verify_cross_chain_message error: %+v", resp.Error)
	}
	if resp.Result != false {
		t.Errorf("expected stale message to fail verification, got %v", resp.Result)
	}
}

func TestGetAllOrdersEmpty(t *testing.T) {
	_, baseURL := newTestServer(t)

	resp := call(t, baseURL, "get_all_orders", map[string]string{}, "")
	if resp.Error != nil {
		t.Fatalf("get_all_orders error: %+v", resp.Error)
	}
	if orders, ok := resp.Result.([]interface{}); !ok || len(orders) != 0 {
		t.Errorf("expected empty order list for no orders, got %v", resp.Result)
	}
}
