package identity

import (
	"crypto/sha256"
	"path/filepath"
	"testing"
)

func TestGenerateAndSignVerify(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	digest := sha256.Sum256([]byte("cross-chain message"))
	sig, err := kp.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := VerifySignature(kp.Priv.PubKey().SerializeCompressed(), digest[:], sig)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}

	tampered := sha256.Sum256([]byte("different message"))
	ok, err = VerifySignature(kp.Priv.PubKey().SerializeCompressed(), tampered[:], sig)
	if err != nil {
		t.Fatalf("VerifySignature (tampered): %v", err)
	}
	if ok {
		t.Fatal("expected signature over tampered digest to fail")
	}
}

func TestLoadOrCreatePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "operator.key")

	kp1, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}

	kp2, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate (reload): %v", err)
	}

	if kp1.Principal() != kp2.Principal() {
		t.Errorf("principal changed across reload: %s vs %s", kp1.Principal(), kp2.Principal())
	}
}

func TestPrincipalIsZero(t *testing.T) {
	var p Principal
	if !p.IsZero() {
		t.Error("expected empty Principal to be zero")
	}
	if Principal("caller-1").IsZero() {
		t.Error("expected non-empty Principal to not be zero")
	}
}
