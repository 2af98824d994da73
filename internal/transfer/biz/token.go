package biz

import (
	"context"
	"regexp"

	apperrors "github.com/kingshare/transfer-backend/internal/pkg/errors"
	"github.com/lithammer/shortuuid/v4"
)

// MaxTokenAttempts bounds token allocation per transfer.
const MaxTokenAttempts = 5

// Share tokens are URL-safe and between 8 and 64 characters.
const (
	MinTokenLength = 8
	MaxTokenLength = 64
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// TokenGenerator returns a fresh random token. The default encodes a v4
// UUID (122 random bits) in 22 base57 characters.
type TokenGenerator func() string

// ValidToken reports whether s is an acceptable share token.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// TokenIssuer allocates unique share tokens.
type TokenIssuer struct {
	repo        TransferRepo
	generate    TokenGenerator
	maxAttempts int
}

// NewTokenIssuer creates an issuer. A nil generator uses shortuuid.
func NewTokenIssuer(repo TransferRepo, generate TokenGenerator) *TokenIssuer {
	if generate == nil {
		generate = shortuuid.New
	}
	return &TokenIssuer{repo: repo, generate: generate, maxAttempts: MaxTokenAttempts}
}

func (i *TokenIssuer) MaxAttempts() int {
	return i.maxAttempts
}

// Issue returns a token not used by any transfer.
func (i *TokenIssuer) Issue(ctx context.Context) (string, error) {
	token, _, err := i.allocate(ctx, "", i.maxAttempts)
	return token, err
}

// Accept checks a client-proposed token. A malformed proposal is rejected;
// a taken one falls back to generated tokens under the same budget.
func (i *TokenIssuer) Accept(ctx context.Context, proposed string) (string, error) {
	token, _, err := i.allocate(ctx, proposed, i.maxAttempts)
	return token, err
}

// allocate tries proposed first (if set), then generated tokens, for at
// most budget candidates. It returns how many candidates were consumed.
func (i *TokenIssuer) allocate(ctx context.Context, proposed string, budget int) (string, int, error) {
	const op = "token.Issue"

	if proposed != "" && !ValidToken(proposed) {
		return "", 0, apperrors.New(op, apperrors.KindInvalidArgument,
			"shareLink must be 8-64 characters of A-Z a-z 0-9 _ -")
	}

	for attempt := 1; attempt <= budget; attempt++ {
		candidate := proposed
		if attempt > 1 || candidate == "" {
			candidate = i.generate()
		}

		exists, err := i.repo.TokenExists(ctx, candidate)
		if err != nil {
			return "", attempt, apperrors.Storage(op, err)
		}
		if !exists {
			return candidate, attempt, nil
		}
		tokenCollisions.Inc()
	}

	return "", budget, apperrors.New(op, apperrors.KindTokenSpaceExhausted)
}
