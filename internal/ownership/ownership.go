// Package ownership implements the challenge/response protocol that
// authorizes star registrations.
//
// A wallet first requests a challenge message binding its address to the
// current time. It signs the message and submits the signature together
// with the star it is claiming. A proof is accepted only within a fixed
// window of the challenge's issue time, and only if the signature verifies
// against the claimed address.
package ownership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starchain-protocol/starchain/internal/chain"
	"github.com/starchain-protocol/starchain/pkg/wallet"
	"go.uber.org/zap"
)

// challengeTag marks a challenge message as belonging to this protocol.
const challengeTag = "starRegistry"

// ProofWindow is how long a challenge stays valid after issuance.
const ProofWindow = 300 * time.Second

// Sentinel errors for the ownership service.
var (
	ErrMissingAddress   = errors.New("wallet address must not be empty")
	ErrMalformedMessage = errors.New("challenge message is malformed")
	ErrProofExpired     = errors.New("ownership proof has expired; request a new challenge")
	ErrInvalidSignature = errors.New("signature does not verify against the claimed address")
)

// VerifyFn checks a signature over message against a wallet address.
// In production this is wallet.Verify; in tests it can be stubbed.
type VerifyFn func(message, address, signature string) (bool, error)

// Service issues ownership challenges and turns verified proofs into
// chain appends.
type Service struct {
	chain  chain.Chain
	verify VerifyFn
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates an ownership Service writing to ch.
// Pass nil for verify to use wallet.Verify.
func NewService(ch chain.Chain, verify VerifyFn, logger *zap.Logger) *Service {
	if verify == nil {
		verify = wallet.Verify
	}
	return &Service{chain: ch, verify: verify, now: time.Now, logger: logger}
}

// RequestChallenge issues a challenge message for the given wallet address.
// The message embeds the address and the issue time in whole seconds, so
// SubmitProof can recover both from the message alone; no challenge state
// is kept server-side.
func (s *Service) RequestChallenge(address string) (string, error) {
	if address == "" {
		return "", ErrMissingAddress
	}
	return fmt.Sprintf("%s:%d:%s", address, s.now().Unix(), challengeTag), nil
}

// SubmitProof verifies a signed challenge and, on success, appends a block
// tagging address as the owner of star. Expiry is checked before the
// signature so a stale proof never reaches the verification primitive.
// A rejected proof leaves the chain untouched.
func (s *Service) SubmitProof(ctx context.Context, address, message, signature string, star json.RawMessage) (*chain.Block, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}

	issued, err := issueTime(message)
	if err != nil {
		return nil, err
	}

	if s.now().Unix()-issued > int64(ProofWindow.Seconds()) {
		s.logger.Info("ownership proof rejected: expired",
			zap.String("address", address),
			zap.Int64("issued_at", issued),
		)
		return nil, ErrProofExpired
	}

	ok, err := s.verify(message, address, signature)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info("ownership proof rejected: bad signature",
			zap.String("address", address),
		)
		return nil, ErrInvalidSignature
	}

	b, err := s.chain.Append(ctx, chain.StarPayload{Owner: address, Star: star})
	if err != nil {
		return nil, fmt.Errorf("append star block: %w", err)
	}

	s.logger.Info("star registered",
		zap.String("address", address),
		zap.Int("height", b.Height),
		zap.String("hash", b.Hash),
	)
	return b, nil
}

// issueTime recovers the whole-second issue timestamp embedded in a
// challenge message of the form "<address>:<unixSeconds>:starRegistry".
func issueTime(message string) (int64, error) {
	parts := strings.Split(message, ":")
	if len(parts) != 3 || parts[2] != challengeTag {
		return 0, ErrMalformedMessage
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad timestamp", ErrMalformedMessage)
	}
	return ts, nil
}
