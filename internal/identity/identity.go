// Package identity provides the coordinator's notion of caller identity
// (Principal) and secp256k1 operator keypairs with sign/verify helpers.
// Admin RPC calls are not authenticated with these keys, and cross-chain
// messages carry no signature to verify.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Principal is an opaque caller identity assigned by the host runtime.
// The coordinator never interprets its structure, only compares for
// equality and uses it as a map key.
type Principal string

// String returns the principal's textual form.
func (p Principal) String() string { return string(p) }

// IsZero reports whether p is the empty principal.
func (p Principal) IsZero() bool { return p == "" }

// Keypair is an operator identity: a secp256k1 keypair from which the
// daemon derives its operator Principal, mirroring the resolver/controller
// operator keys the teacher derives for its swap counterparties.
type Keypair struct {
	Priv *btcec.PrivateKey
}

// Generate creates a new random operator keypair.
func Generate() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate operator key: %w", err)
	}
	return &Keypair{Priv: priv}, nil
}

// LoadOrCreate loads a hex-encoded private key from keyPath, generating
// and persisting a new one if the file does not exist.
func LoadOrCreate(keyPath string) (*Keypair, error) {
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		return parseKeyHex(string(data))
	}

	kp, err := Generate()
	if err != nil {
		return nil, err
	}

	encoded := hex.EncodeToString(kp.Priv.Serialize())
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	return kp, nil
}

func parseKeyHex(s string) (*Keypair, error) {
	raw, err := hex.DecodeString(trimNewline(s))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &Keypair{Priv: priv}, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// Principal derives this keypair's Principal from its public key, hex
// encoded and prefixed so it reads distinctly from host-chain principals
// supplied by callers.
func (k *Keypair) Principal() Principal {
	return Principal("op-" + hex.EncodeToString(k.Priv.PubKey().SerializeCompressed()))
}

// Sign produces a deterministic ECDSA signature over digest (expected to
// be a 32-byte hash).
func (k *Keypair) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("sign: digest must be 32 bytes, got %d", len(digest))
	}
	sig := ecdsa.Sign(k.Priv, digest)
	return sig.Serialize(), nil
}

// VerifySignature checks sig against digest under the given compressed
// public key bytes.
func VerifySignature(pubKeyBytes, digest, sig []byte) (bool, error) {
	pub, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("parse public key: %w", err)
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, fmt.Errorf("parse signature: %w", err)
	}
	return parsed.Verify(digest, pub), nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
