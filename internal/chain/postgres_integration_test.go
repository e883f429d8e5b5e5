//go:build integration

package chain_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/starchain-protocol/starchain/internal/chain"
	"go.uber.org/zap"
)

func setupPostgres(t *testing.T) *chain.PostgresChain {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(context.Background(), "DROP TABLE IF EXISTS star_chain"); err != nil {
		t.Fatalf("reset table: %v", err)
	}

	c := chain.NewPostgres(pool, zap.NewNop())
	if err := c.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return c
}

func TestPostgres_appendAndQuery(t *testing.T) {
	c := setupPostgres(t)
	ctx := context.Background()

	h, err := c.Height(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h != 0 {
		t.Fatalf("expected genesis-only chain, got height %d", h)
	}

	// Inner keys deliberately not in jsonb's storage order: the payload must
	// come back byte-for-byte as sealed, or the hash no longer verifies.
	b, err := c.Append(ctx, chain.StarPayload{Owner: "addr1", Star: json.RawMessage(`{"story":"pg","ra":"16h 29m 1.0s","dec":"68 52 56.9"}`)})
	if err != nil {
		t.Fatal(err)
	}
	if b.Height != 1 {
		t.Errorf("appended height: got %d, want 1", b.Height)
	}

	got, err := c.ByHash(ctx, b.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.PrevHash != b.PrevHash || got.TimestampMs != b.TimestampMs {
		t.Errorf("round-tripped block differs: %+v vs %+v", got, b)
	}
	if string(got.Payload) != string(b.Payload) {
		t.Errorf("payload did not round-trip verbatim: stored %s, read %s", b.Payload, got.Payload)
	}
	if !got.SelfValidate() {
		t.Error("read-back block no longer self-validates")
	}

	stars, err := c.StarsByOwner(ctx, "addr1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stars) != 1 {
		t.Fatalf("expected 1 star, got %d", len(stars))
	}

	violations, err := c.Validate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 0 {
		t.Errorf("expected clean chain, got %v", violations)
	}
}

func TestPostgres_detectsRowTampering(t *testing.T) {
	c := setupPostgres(t)
	ctx := context.Background()

	if _, err := c.Append(ctx, chain.StarPayload{Owner: "addr1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Append(ctx, chain.StarPayload{Owner: "addr2"}); err != nil {
		t.Fatal(err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx,
		`UPDATE star_chain SET payload = '{"owner":"attacker"}' WHERE height = 1`); err != nil {
		t.Fatal(err)
	}

	violations, err := c.Validate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []chain.Violation{
		{Kind: chain.ViolationTamperedEntry, Height: 1},
		{Kind: chain.ViolationBrokenLinkage, Height: 2},
	}
	if len(violations) != len(want) {
		t.Fatalf("violations: got %v, want %v", violations, want)
	}
	for i := range want {
		if violations[i] != want[i] {
			t.Errorf("violation %d: got %+v, want %+v", i, violations[i], want[i])
		}
	}
}

func TestPostgres_detectsDeletedRow(t *testing.T) {
	c := setupPostgres(t)
	ctx := context.Background()

	if _, err := c.Append(ctx, chain.StarPayload{Owner: "addr1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Append(ctx, chain.StarPayload{Owner: "addr2"}); err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "DELETE FROM star_chain WHERE height = 1"); err != nil {
		t.Fatal(err)
	}

	violations, err := c.Validate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(violations) != 1 || violations[0].Kind != chain.ViolationMissingPredecessor || violations[0].Height != 2 {
		t.Errorf("expected missing_predecessor at height 2, got %v", violations)
	}

	// The tip height is the surviving MAX, not a row count.
	h, err := c.Height(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h != 2 {
		t.Errorf("height after row deletion: got %d, want 2", h)
	}
}
