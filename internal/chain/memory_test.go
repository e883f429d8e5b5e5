package chain

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

// Corrupting the backing slice directly is not reachable through Append;
// these tests model a damaged store to exercise the defensive scan branches.

func TestValidate_missingPredecessor(t *testing.T) {
	c := NewMemory(zap.NewNop())
	ctx := context.Background()
	if _, err := c.Append(ctx, StarPayload{Owner: "addr1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Append(ctx, StarPayload{Owner: "addr2"}); err != nil {
		t.Fatal(err)
	}

	c.blocks[1] = nil

	violations, err := c.Validate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", violations)
	}
	if violations[0].Kind != ViolationMissingPredecessor || violations[0].Height != 2 {
		t.Errorf("expected missing_predecessor at height 2, got %+v", violations[0])
	}
}

func TestValidate_nilSlotWithSentinelSuccessor(t *testing.T) {
	c := NewMemory(zap.NewNop())
	ctx := context.Background()
	if _, err := c.Append(ctx, StarPayload{Owner: "addr1"}); err != nil {
		t.Fatal(err)
	}

	// A successor that claims no parent does not implicate a missing slot.
	c.blocks[0] = nil
	c.blocks[1].PrevHash = NoParentHash
	c.blocks[1].Hash = c.blocks[1].ComputeHash()

	violations, err := c.Validate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 0 {
		t.Errorf("expected no violations, got %v", violations)
	}
}
