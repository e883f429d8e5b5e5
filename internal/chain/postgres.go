package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all processes writing to the same chain.
const advisoryLockKey = int64(7_245_119_003)

// PostgresChain persists the star ledger to a PostgreSQL database.
// It implements the Chain interface.
type PostgresChain struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresChain backed by the given connection pool.
// Call Bootstrap before first use to ensure the schema and genesis block.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *PostgresChain {
	return &PostgresChain{pool: pool, logger: logger}
}

// Bootstrap ensures the star_chain table exists and, when the chain is
// empty, seals the genesis block. A genesis failure is logged and swallowed
// so the process stays usable; the schema error is returned because nothing
// works without the table.
//
// The payload column is text, not jsonb: the block hash is computed over the
// exact payload bytes at seal time, and jsonb rewrites key order and
// whitespace on storage, which would make every stored block fail
// self-validation on read-back.
func (c *PostgresChain) Bootstrap(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS star_chain (
			height       integer PRIMARY KEY,
			timestamp_ms bigint  NOT NULL,
			payload      text    NOT NULL,
			prev_hash    text    NOT NULL,
			hash         text    NOT NULL UNIQUE
		)`); err != nil {
		return fmt.Errorf("create star_chain table: %w", err)
	}

	h, err := c.Height(ctx)
	if err != nil {
		return fmt.Errorf("read chain height: %w", err)
	}
	if h >= 0 {
		return nil
	}

	if _, err := c.Append(ctx, StarPayload{Data: GenesisMarker}); err != nil {
		c.logger.Warn("genesis bootstrap failed, starting with empty chain", zap.Error(err))
	}
	return nil
}

// Append implements Chain.
// It acquires a PostgreSQL advisory lock, reads the chain tail, seals the
// new block, and inserts it — all within a single transaction, so either a
// fully sealed block is committed or the chain is untouched.
func (c *PostgresChain) Append(ctx context.Context, payload any) (*Block, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("seal block payload: %w", err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory lock.
	// The lock is released when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	b := &Block{
		TimestampMs: time.Now().UnixMilli(),
		PrevHash:    NoParentHash,
		Payload:     payloadJSON,
	}

	var tipHeight int
	var tipHash string
	err = tx.QueryRow(ctx,
		"SELECT height, hash FROM star_chain ORDER BY height DESC LIMIT 1",
	).Scan(&tipHeight, &tipHash)
	switch {
	case err == nil:
		b.Height = tipHeight + 1
		b.PrevHash = tipHash
	case errors.Is(err, pgx.ErrNoRows):
		// Empty chain: this block becomes genesis-height.
	default:
		return nil, fmt.Errorf("read chain tail: %w", err)
	}
	b.Hash = b.ComputeHash()

	if _, err := tx.Exec(ctx,
		`INSERT INTO star_chain (height, timestamp_ms, payload, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.Height, b.TimestampMs, string(b.Payload), b.PrevHash, b.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert block: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit block tx: %w", err)
	}

	c.logger.Debug("block appended",
		zap.Int("height", b.Height),
		zap.String("hash", b.Hash),
	)
	return b, nil
}

// Height implements Chain. MAX(height) rather than a row count, so a store
// with deleted rows still reports its true tip.
func (c *PostgresChain) Height(ctx context.Context) (int, error) {
	var h int
	if err := c.pool.QueryRow(ctx, "SELECT COALESCE(MAX(height), -1) FROM star_chain").Scan(&h); err != nil {
		return 0, fmt.Errorf("read tip height: %w", err)
	}
	return h, nil
}

// ByHeight implements Chain.
func (c *PostgresChain) ByHeight(ctx context.Context, height int) (*Block, error) {
	return c.queryOne(ctx,
		`SELECT height, timestamp_ms, payload, prev_hash, hash
		 FROM star_chain WHERE height = $1`, height)
}

// ByHash implements Chain.
func (c *PostgresChain) ByHash(ctx context.Context, hash string) (*Block, error) {
	return c.queryOne(ctx,
		`SELECT height, timestamp_ms, payload, prev_hash, hash
		 FROM star_chain WHERE hash = $1`, hash)
}

func (c *PostgresChain) queryOne(ctx context.Context, sql string, arg any) (*Block, error) {
	b := &Block{}
	var payload string
	err := c.pool.QueryRow(ctx, sql, arg).Scan(
		&b.Height, &b.TimestampMs, &payload, &b.PrevHash, &b.Hash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	b.Payload = json.RawMessage(payload)
	return b, nil
}

// StarsByOwner implements Chain. The owner filter runs in SQL, casting the
// stored payload text to jsonb for the lookup only; the column itself stays
// text so sealed bytes are never rewritten.
func (c *PostgresChain) StarsByOwner(ctx context.Context, address string) ([]StarPayload, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT payload FROM star_chain
		 WHERE payload::jsonb->>'owner' = $1 ORDER BY height ASC`, address)
	if err != nil {
		return nil, fmt.Errorf("query stars by owner: %w", err)
	}
	defer rows.Close()

	stars := make([]StarPayload, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan star payload: %w", err)
		}
		var p StarPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		stars = append(stars, p)
	}
	return stars, rows.Err()
}

// Validate implements Chain. It streams all rows ordered by height and
// accumulates every violation rather than stopping at the first. A height
// gap left by direct row deletion surfaces as a missing predecessor.
// O(n) in chain length; may be slow for very large chains.
func (c *PostgresChain) Validate(ctx context.Context) ([]Violation, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT height, timestamp_ms, payload, prev_hash, hash
		 FROM star_chain ORDER BY height ASC`)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	violations := make([]Violation, 0)
	var prev *Block
	for rows.Next() {
		curr := &Block{}
		var payload string
		if err := rows.Scan(
			&curr.Height, &curr.TimestampMs, &payload, &curr.PrevHash, &curr.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan block row: %w", err)
		}
		curr.Payload = json.RawMessage(payload)

		if !curr.SelfValidate() {
			violations = append(violations, Violation{Kind: ViolationTamperedEntry, Height: curr.Height})
		}

		expectedPrevHeight := curr.Height - 1
		switch {
		case curr.Height == 0:
			// Genesis: nothing to link.
		case prev == nil || prev.Height != expectedPrevHeight:
			if curr.PrevHash != NoParentHash {
				violations = append(violations, Violation{Kind: ViolationMissingPredecessor, Height: curr.Height})
			}
		case curr.PrevHash != prev.ComputeHash():
			violations = append(violations, Violation{Kind: ViolationBrokenLinkage, Height: curr.Height})
		}
		prev = curr
	}
	return violations, rows.Err()
}
