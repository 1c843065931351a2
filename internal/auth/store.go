package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// The handle is constructed once at startup and passed to every component;
// there is no package-level instance.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Devices(ctx context.Context) DeviceStore
	Audit(ctx context.Context) AuditStore
}

// UserStore reads identities. The auth core never mutates them.
type UserStore interface {
	Find(ctx context.Context, id string) (*Identity, error)
	// FindByEmail resolves an identity that has not been soft-deleted,
	// with its role set loaded. Returns ErrNotFound otherwise.
	FindByEmail(ctx context.Context, email string) (*Identity, error)
}

// RefreshTokenStore manages the rotation ledger. Records are keyed by the
// SHA-256 digest of the raw token value and are never deleted.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec *RefreshTokenRecord) error
	FindByHash(ctx context.Context, hash string) (*RefreshTokenRecord, error)

	// Consume atomically revokes the record matching hash, provided it is
	// still unrevoked and unexpired at now, links it to replacement and
	// persists the replacement, all within one transaction. Exactly one of
	// N concurrent calls with the same hash can succeed; the rest get
	// ErrNotFound. Returns the consumed record.
	Consume(ctx context.Context, hash string, now time.Time, replacement *RefreshTokenRecord) (*RefreshTokenRecord, error)

	// Revoke is idempotent and silent about unknown hashes.
	Revoke(ctx context.Context, hash string) error

	// RevokeChain revokes the record matching hash and every descendant
	// reachable through ReplacedBy links. Returns the number of records
	// newly revoked.
	RevokeChain(ctx context.Context, hash string) (int, error)
}

// DeviceStore manages device records. Registration is admin-driven; the auth
// core itself only reads and stamps last-seen.
type DeviceStore interface {
	Create(ctx context.Context, d *Device) error
	Find(ctx context.Context, id string) (*Device, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, limit, offset int) ([]*AuditEntry, error)
}
