// Package wallet provides the Ed25519 keypairs behind star ownership.
//
// A wallet address is the base58-encoded Ed25519 public key; signatures are
// detached, base64-encoded signatures over the raw challenge message bytes.
// Verify is the default signature-verification primitive wired into the
// ownership service.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

// Keypair holds one wallet's signing keys.
type Keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// New generates a fresh Ed25519 keypair.
func New() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{pub: pub, priv: priv}, nil
}

// Address returns the wallet address: the base58-encoded public key.
func (k *Keypair) Address() string {
	return base58.Encode(k.pub)
}

// Sign returns the base64-encoded signature over message.
func (k *Keypair) Sign(message string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(k.priv, []byte(message)))
}

// Verify checks signature over message against the wallet address.
// It returns false for a well-formed signature that does not verify, and an
// error for malformed inputs (bad address or signature encoding).
func Verify(message, address, signature string) (bool, error) {
	pub, err := base58.Decode(address)
	if err != nil {
		return false, fmt.Errorf("decode address: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("address is not a %d-byte public key", ed25519.PublicKeySize)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig), nil
}

// Save writes the keypair to path as "<address>\n<hex seed>\n", mode 0600.
func (k *Keypair) Save(path string) error {
	data := fmt.Sprintf("%s\n%s\n", k.Address(), hex.EncodeToString(k.priv.Seed()))
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Load reads a keypair previously written by Save.
func Load(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		return nil, fmt.Errorf("key file %s: expected address and seed lines", path)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, fmt.Errorf("decode key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	kp := &Keypair{pub: priv.Public().(ed25519.PublicKey), priv: priv}
	if got := kp.Address(); got != strings.TrimSpace(lines[0]) {
		return nil, fmt.Errorf("key file %s: address does not match seed", path)
	}
	return kp, nil
}
