package auth

import "time"

// Identity is a human account as stored by the campus platform. The auth core
// only ever reads identities; admin CRUD mutates them elsewhere.
type Identity struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Active       bool
	DeletedAt    *time.Time
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdentitySummary is the public shape returned after a successful login.
type IdentitySummary struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Summary strips the identity down to what a client may see.
func (i *Identity) Summary() IdentitySummary {
	return IdentitySummary{
		ID:    i.ID,
		Email: i.Email,
		Name:  i.FullName,
		Roles: NormalizeRoles(i.Roles),
	}
}

// RefreshTokenRecord is a persisted refresh token. Only the SHA-256 digest of
// the token value is stored. Records are never deleted: a revoked record with
// ReplacedBy set is the forensic evidence of a rotation, and presenting its
// token again is unambiguously a replay.
type RefreshTokenRecord struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Revoked    bool
	ReplacedBy *string
}

// Device is an embedded hardware endpoint (attendance kiosks, Raspberry Pi
// scanners) registered by an admin. Authenticated by API key, never by JWT,
// so deactivating a device is effective on the very next call.
type Device struct {
	ID         string
	Code       string
	Name       string
	Location   string
	APIKeyHash string
	AllowedIP  string
	Active     bool
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

// DeviceIdentity is attached to the request context after device auth.
type DeviceIdentity struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// AuditEntry is one append-only record of a security-relevant action.
// ActorID is nil for unauthenticated failures.
type AuditEntry struct {
	ID         string
	OccurredAt time.Time
	ActorID    *string
	ActorRoles []string
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]string
	IPAddress  string
	UserAgent  string
}

// CallerInfo carries transport-level facts about the request for auditing.
type CallerInfo struct {
	IP        string
	UserAgent string
}

// Audit action kinds emitted by the auth core.
const (
	ActionLogin            = "LOGIN"
	ActionLoginFailed      = "LOGIN_FAILED"
	ActionRefresh          = "REFRESH_TOKEN"
	ActionRefreshFailed    = "REFRESH_TOKEN_FAILED"
	ActionRefreshReplayed  = "REFRESH_TOKEN_REPLAYED"
	ActionLogout           = "LOGOUT"
	ActionDeviceAuthFailed = "DEVICE_AUTH_FAILED"
	ActionDeviceRegistered = "DEVICE_REGISTERED"
	ActionDeviceHealth     = "DEVICE_HEALTH"
	ActionChainRevoked     = "TOKEN_CHAIN_REVOKED"
)
