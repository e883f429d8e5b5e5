// Package chain implements the StarChain append-only hash-linked ledger.
//
// Every block records the SHA-256 of its predecessor, so any tampering with
// a sealed block is detectable by a full-chain scan. The first block is a
// genesis block carrying a well-known payload marker; it flows through the
// same sealing path as every other block.
//
// Two implementations of the Chain interface are provided:
//   - MemoryChain: in-process, for testing and single-process deployments.
//   - PostgresChain: durable, for production use.
package chain

import (
	"context"
	"errors"
)

// NoParentHash is the prev_hash sentinel carried by the genesis block.
const NoParentHash = ""

// GenesisMarker is the fixed payload data of the genesis block.
const GenesisMarker = "Genesis Block"

// ErrBlockNotFound is returned by lookups for an unknown hash or height.
var ErrBlockNotFound = errors.New("block not found")

// Chain is the interface for the append-only star ledger.
// Both MemoryChain and PostgresChain implement this interface.
type Chain interface {
	// Append seals a new block over payload, chained to the current tip,
	// and commits it. Either a fully sealed block is committed or the
	// chain is left exactly as it was.
	Append(ctx context.Context, payload any) (*Block, error)

	// Height returns the zero-based height of the tip, or -1 when empty.
	Height(ctx context.Context) (int, error)

	// ByHeight returns the block at the given height, or ErrBlockNotFound.
	ByHeight(ctx context.Context, height int) (*Block, error)

	// ByHash returns the block with the given hash, or ErrBlockNotFound.
	ByHash(ctx context.Context, hash string) (*Block, error)

	// StarsByOwner returns the decoded payloads of every block owned by
	// address. The result is always non-nil; zero matches yield an empty
	// slice.
	StarsByOwner(ctx context.Context, address string) ([]StarPayload, error)

	// Validate walks the whole chain in ascending height order and
	// returns every integrity violation found. It never stops at the
	// first finding; an error is returned only when the scan itself
	// cannot proceed.
	Validate(ctx context.Context) ([]Violation, error)
}

// ViolationKind classifies a single integrity finding.
type ViolationKind string

const (
	// ViolationTamperedEntry: a block's stored hash no longer matches its
	// recomputed content hash.
	ViolationTamperedEntry ViolationKind = "tampered_entry"

	// ViolationBrokenLinkage: a block's prev_hash does not match the
	// recomputed hash of its predecessor.
	ViolationBrokenLinkage ViolationKind = "broken_linkage"

	// ViolationMissingPredecessor: a block claims a parent but the
	// predecessor slot is structurally absent. Not reachable through
	// Append; it guards against direct store corruption.
	ViolationMissingPredecessor ViolationKind = "missing_predecessor"
)

// Violation is one integrity finding reported by Validate.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Height int           `json:"height"`
}
