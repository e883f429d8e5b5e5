package ownership_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/starchain-protocol/starchain/internal/chain"
	"github.com/starchain-protocol/starchain/internal/ownership"
	"github.com/starchain-protocol/starchain/pkg/wallet"
	"go.uber.org/zap"
)

var ctx = context.Background()

func setup(t *testing.T) (*ownership.Service, *chain.MemoryChain, *wallet.Keypair) {
	t.Helper()
	kp, err := wallet.New()
	if err != nil {
		t.Fatal(err)
	}
	c := chain.NewMemory(zap.NewNop())
	return ownership.NewService(c, nil, zap.NewNop()), c, kp
}

func TestRequestChallenge_emptyAddress(t *testing.T) {
	svc, _, _ := setup(t)
	if _, err := svc.RequestChallenge(""); !errors.Is(err, ownership.ErrMissingAddress) {
		t.Errorf("expected ErrMissingAddress, got %v", err)
	}
}

func TestRequestChallenge_messageFormat(t *testing.T) {
	svc, _, kp := setup(t)

	msg, err := svc.RequestChallenge(kp.Address())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msg, kp.Address()) {
		t.Errorf("message %q does not contain the address", msg)
	}

	parts := strings.Split(msg, ":")
	if len(parts) != 3 {
		t.Fatalf("message %q: expected 3 colon-separated fields", msg)
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		t.Fatalf("message timestamp %q is not an integer: %v", parts[1], err)
	}
	if delta := time.Now().Unix() - ts; delta < 0 || delta > 5 {
		t.Errorf("message timestamp %d is not current (delta %d)", ts, delta)
	}
}

func TestSubmitProof_malformedMessage(t *testing.T) {
	svc, _, kp := setup(t)

	for _, msg := range []string{"", "no-colons-here", kp.Address() + ":notanumber:starRegistry", kp.Address() + ":123:wrongTag"} {
		_, err := svc.SubmitProof(ctx, kp.Address(), msg, kp.Sign(msg), nil)
		if !errors.Is(err, ownership.ErrMalformedMessage) {
			t.Errorf("message %q: expected ErrMalformedMessage, got %v", msg, err)
		}
	}
}

func TestSubmitProof_expired(t *testing.T) {
	svc, c, kp := setup(t)

	// 301 seconds old: expired even though the signature is genuine.
	msg := fmt.Sprintf("%s:%d:starRegistry", kp.Address(), time.Now().Unix()-301)
	_, err := svc.SubmitProof(ctx, kp.Address(), msg, kp.Sign(msg), nil)
	if !errors.Is(err, ownership.ErrProofExpired) {
		t.Errorf("expected ErrProofExpired, got %v", err)
	}

	h, _ := c.Height(ctx)
	if h != 0 {
		t.Errorf("rejected proof changed chain height to %d", h)
	}
}

func TestSubmitProof_justInsideWindow(t *testing.T) {
	svc, _, kp := setup(t)

	msg := fmt.Sprintf("%s:%d:starRegistry", kp.Address(), time.Now().Unix()-290)
	if _, err := svc.SubmitProof(ctx, kp.Address(), msg, kp.Sign(msg), json.RawMessage(`{}`)); err != nil {
		t.Errorf("proof inside the window rejected: %v", err)
	}
}

func TestSubmitProof_invalidSignature(t *testing.T) {
	svc, c, kp := setup(t)

	msg, err := svc.RequestChallenge(kp.Address())
	if err != nil {
		t.Fatal(err)
	}

	// Signature over a different message does not verify.
	_, err = svc.SubmitProof(ctx, kp.Address(), msg, kp.Sign("something else"), nil)
	if !errors.Is(err, ownership.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}

	h, _ := c.Height(ctx)
	if h != 0 {
		t.Errorf("rejected proof changed chain height to %d", h)
	}
}

func TestSubmitProof_verifierErrorPropagates(t *testing.T) {
	errBroken := errors.New("verifier exploded")
	c := chain.NewMemory(zap.NewNop())
	svc := ownership.NewService(c, func(_, _, _ string) (bool, error) {
		return false, errBroken
	}, zap.NewNop())

	msg, err := svc.RequestChallenge("addr1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitProof(ctx, "addr1", msg, "sig", nil); !errors.Is(err, errBroken) {
		t.Errorf("expected the verifier error unchanged, got %v", err)
	}
}

func TestSubmitProof_success(t *testing.T) {
	svc, c, kp := setup(t)
	star := json.RawMessage(`{"dec":"68 52 56.9","ra":"16h 29m 1.0s","story":"Testing the story"}`)

	msg, err := svc.RequestChallenge(kp.Address())
	if err != nil {
		t.Fatal(err)
	}

	before, _ := c.Height(ctx)
	b, err := svc.SubmitProof(ctx, kp.Address(), msg, kp.Sign(msg), star)
	if err != nil {
		t.Fatal(err)
	}

	after, _ := c.Height(ctx)
	if after != before+1 {
		t.Errorf("height: got %d, want %d", after, before+1)
	}

	p, err := b.DecodePayload()
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner != kp.Address() {
		t.Errorf("block owner: got %q, want %q", p.Owner, kp.Address())
	}

	stars, err := c.StarsByOwner(ctx, kp.Address())
	if err != nil {
		t.Fatal(err)
	}
	if len(stars) != 1 || string(stars[0].Star) != string(star) {
		t.Errorf("StarsByOwner after claim: got %v", stars)
	}
}
