package p2p

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateHostKeyPersists(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "p2p_identity.key")

	k1, err := loadOrCreateHostKey(keyPath)
	if err != nil {
		t.Fatalf("loadOrCreateHostKey: %v", err)
	}
	k2, err := loadOrCreateHostKey(keyPath)
	if err != nil {
		t.Fatalf("loadOrCreateHostKey (reload): %v", err)
	}

	b1, _ := k1.Raw()
	b2, _ := k2.Raw()
	if string(b1) != string(b2) {
		t.Error("expected reloaded key to match persisted key")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{Type: EventSwapCompleted, OrderID: "order-1", At: 12345}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Envelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != env {
		t.Errorf("round trip = %+v, want %+v", got, env)
	}
}
