package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryChain is an in-memory, thread-safe Chain implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryChain struct {
	mu     sync.RWMutex
	blocks []*Block
	logger *zap.Logger
}

// NewMemory creates a MemoryChain and bootstraps the genesis block through
// the normal sealing path. A bootstrap failure is logged, not propagated:
// the chain is left empty and usable, and the next Append will claim
// height 0 itself.
func NewMemory(logger *zap.Logger) *MemoryChain {
	c := &MemoryChain{logger: logger}
	if _, err := c.Append(context.Background(), StarPayload{Data: GenesisMarker}); err != nil {
		logger.Warn("genesis bootstrap failed, starting with empty chain", zap.Error(err))
	}
	return c
}

// Append implements Chain.
func (c *MemoryChain) Append(_ context.Context, payload any) (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("seal block payload: %w", err)
	}

	b := &Block{
		Height:      len(c.blocks),
		TimestampMs: time.Now().UnixMilli(),
		PrevHash:    NoParentHash,
		Payload:     payloadJSON,
	}
	if len(c.blocks) > 0 {
		b.PrevHash = c.blocks[len(c.blocks)-1].Hash
	}
	b.Hash = b.ComputeHash()
	c.blocks = append(c.blocks, b)
	return b, nil
}

// Height implements Chain.
func (c *MemoryChain) Height(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks) - 1, nil
}

// ByHeight implements Chain.
func (c *MemoryChain) ByHeight(_ context.Context, height int) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height < 0 || height >= len(c.blocks) {
		return nil, fmt.Errorf("height %d: %w", height, ErrBlockNotFound)
	}
	return c.blocks[height], nil
}

// ByHash implements Chain.
func (c *MemoryChain) ByHash(_ context.Context, hash string) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		if b != nil && b.Hash == hash {
			return b, nil
		}
	}
	return nil, fmt.Errorf("hash %q: %w", hash, ErrBlockNotFound)
}

// StarsByOwner implements Chain. Blocks whose payload cannot be decoded are
// skipped here; Validate is the place that reports them.
func (c *MemoryChain) StarsByOwner(_ context.Context, address string) ([]StarPayload, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stars := make([]StarPayload, 0)
	for _, b := range c.blocks {
		if b == nil {
			continue
		}
		p, err := b.DecodePayload()
		if err != nil {
			continue
		}
		if p.Owner != "" && p.Owner == address {
			stars = append(stars, *p)
		}
	}
	return stars, nil
}

// Validate implements Chain. The scan holds the read lock for its full
// duration so it always sees a settled chain.
func (c *MemoryChain) Validate(_ context.Context) ([]Violation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	violations := make([]Violation, 0)
	for i, b := range c.blocks {
		if b == nil {
			continue
		}
		if !b.SelfValidate() {
			violations = append(violations, Violation{Kind: ViolationTamperedEntry, Height: i})
		}
		if i == 0 {
			continue
		}
		prev := c.blocks[i-1]
		if prev == nil {
			if b.PrevHash != NoParentHash {
				violations = append(violations, Violation{Kind: ViolationMissingPredecessor, Height: i})
			}
			continue
		}
		if b.PrevHash != prev.ComputeHash() {
			violations = append(violations, Violation{Kind: ViolationBrokenLinkage, Height: i})
		}
	}
	return violations, nil
}
