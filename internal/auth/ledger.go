package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"campusconnect.org/internal/ids"
)

const defaultRefreshTTL = 30 * 24 * time.Hour

// Ledger is the stateful half of the token lifecycle: it issues, rotates and
// revokes long-lived opaque refresh tokens. Every cross-request ordering
// guarantee lives in the store, so any number of stateless handlers can share
// one ledger.
type Ledger struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) LedgerOption {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLedgerClock overrides the time source (for tests).
func WithLedgerClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a Ledger on top of the given store.
func NewLedger(store Store, opts ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("auth: ledger store is required")
	}
	l := &Ledger{store: store, ttl: defaultRefreshTTL, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Rotation is the outcome of a successful rotate: the raw replacement token
// plus both sides of the chain link.
type Rotation struct {
	Token    string
	Record   *RefreshTokenRecord
	Consumed *RefreshTokenRecord
}

// Issue mints a fresh refresh token for the identity and persists its record.
// The raw value is returned exactly once; the store only ever sees the digest.
func (l *Ledger) Issue(ctx context.Context, userID string) (string, *RefreshTokenRecord, error) {
	raw, rec, err := l.newToken(userID)
	if err != nil {
		return "", nil, err
	}
	if err := l.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("persist refresh token: %w", err)
	}
	return raw, rec, nil
}

// Rotate consumes raw and replaces it with a fresh token for the same
// identity. The consume is a single conditional store transition, so out of N
// concurrent rotations of the same token exactly one wins; the rest observe
// the winner's revocation and fail. A rotation attempt against an
// already-rotated token returns ErrTokenReplayed (which is
// ErrRefreshTokenInvalid to external callers) so intrusion detection can log
// the replay.
func (l *Ledger) Rotate(ctx context.Context, raw string) (Rotation, error) {
	hash, err := hashToken(raw)
	if err != nil {
		return Rotation{}, ErrRefreshTokenInvalid
	}
	tokens := l.store.RefreshTokens(ctx)

	old, err := tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Rotation{}, ErrRefreshTokenInvalid
		}
		return Rotation{}, err
	}

	replacementRaw, replacement, err := l.newToken(old.UserID)
	if err != nil {
		return Rotation{}, err
	}
	consumed, err := tokens.Consume(ctx, hash, l.now().UTC(), replacement)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			rec, missErr := l.classifyConsumeMiss(ctx, hash)
			return Rotation{Consumed: rec}, missErr
		}
		return Rotation{}, err
	}
	return Rotation{Token: replacementRaw, Record: replacement, Consumed: consumed}, nil
}

// classifyConsumeMiss runs after a lost rotation race or a stale token. It
// re-reads the record to tell replay apart from plain expiry; both collapse
// to ErrRefreshTokenInvalid at the boundary. The replayed record is returned
// so the caller can audit the chain it belongs to.
func (l *Ledger) classifyConsumeMiss(ctx context.Context, hash string) (*RefreshTokenRecord, error) {
	rec, err := l.store.RefreshTokens(ctx).FindByHash(ctx, hash)
	if err != nil {
		return nil, ErrRefreshTokenInvalid
	}
	if rec.Revoked && rec.ReplacedBy != nil {
		return rec, ErrTokenReplayed
	}
	return nil, ErrRefreshTokenInvalid
}

// Revoke terminally revokes raw with no replacement (logout). Idempotent:
// revoking an unknown or already-revoked token is a no-op.
func (l *Ledger) Revoke(ctx context.Context, raw string) error {
	hash, err := hashToken(raw)
	if err != nil {
		return nil
	}
	return l.store.RefreshTokens(ctx).Revoke(ctx, hash)
}

// RevokeChain revokes the record matching raw and every descendant reachable
// through ReplacedBy links. Used by operators after a replay detection to
// kill the whole chain rooted at a stolen token.
func (l *Ledger) RevokeChain(ctx context.Context, raw string) (int, error) {
	hash, err := hashToken(raw)
	if err != nil {
		return 0, ErrRefreshTokenInvalid
	}
	n, err := l.store.RefreshTokens(ctx).RevokeChain(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrRefreshTokenInvalid
		}
		return 0, err
	}
	return n, nil
}

func (l *Ledger) newToken(userID string) (string, *RefreshTokenRecord, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := hashToken(raw)
	if err != nil {
		return "", nil, err
	}
	now := l.now().UTC()
	rec := &RefreshTokenRecord{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	}
	return raw, rec, nil
}

func hashToken(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty token")
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}
