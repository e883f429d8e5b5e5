package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Block is a single sealed record in the star ledger.
type Block struct {
	Height      int             `json:"height"`
	TimestampMs int64           `json:"timestamp_ms"`
	PrevHash    string          `json:"prev_hash"`
	Payload     json.RawMessage `json:"payload"`
	Hash        string          `json:"hash"`
}

// StarPayload is the decoded form of a block payload. Owner is empty for the
// genesis block; Star carries the owner-submitted record verbatim.
type StarPayload struct {
	Owner string          `json:"owner,omitempty"`
	Star  json.RawMessage `json:"star,omitempty"`
	Data  string          `json:"data,omitempty"`
}

// ComputeHash returns the hex SHA-256 over every sealed field except Hash
// itself. It is deterministic: re-running it on an untampered block always
// reproduces the stored Hash.
func (b *Block) ComputeHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%s", b.Height, b.TimestampMs, b.PrevHash, b.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

// DecodePayload unmarshals the block payload into its structured form.
func (b *Block) DecodePayload() (*StarPayload, error) {
	var p StarPayload
	if err := json.Unmarshal(b.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload of block %d: %w", b.Height, err)
	}
	return &p, nil
}

// SelfValidate reports whether the stored hash still matches the block's
// recomputed content hash.
func (b *Block) SelfValidate() bool {
	return b.Hash == b.ComputeHash()
}
