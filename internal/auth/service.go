package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusconnect.org/internal/ids"
	"campusconnect.org/internal/obs"
)

const defaultAccessTTL = 15 * time.Minute

// Auditor records security-relevant actions. Implementations must never fail
// the triggering request: logging problems go to a side channel.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Service wires credential validation, token issuance, the rotation ledger
// and device authentication into the boundary operations consumed by the
// HTTP layer.
type Service struct {
	store   Store
	tokens  *TokenIssuer
	ledger  *Ledger
	devices *DeviceAuthenticator
	auditor Auditor
	now     func() time.Time
}

// ServiceConfig carries the configuration surface of the auth core.
type ServiceConfig struct {
	SigningSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithAuditor attaches an audit recorder.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.auditor = a
		}
	}
}

// WithClock overrides the time source for the service and both token
// components (for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
			s.tokens.now = fn
			s.ledger.now = fn
		}
	}
}

// NewService constructs the auth service. The store handle is injected; there
// is no shared package-level client.
func NewService(store Store, cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	var tokenOpts []TokenIssuerOption
	if cfg.Issuer != "" {
		tokenOpts = append(tokenOpts, WithTokenIssuerName(cfg.Issuer))
	}
	tokens, err := NewTokenIssuer(cfg.SigningSecret, accessTTL, tokenOpts...)
	if err != nil {
		return nil, err
	}
	var ledgerOpts []LedgerOption
	if cfg.RefreshTTL > 0 {
		ledgerOpts = append(ledgerOpts, WithRefreshTTL(cfg.RefreshTTL))
	}
	ledger, err := NewLedger(store, ledgerOpts...)
	if err != nil {
		return nil, err
	}
	devices, err := NewDeviceAuthenticator(store)
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:   store,
		tokens:  tokens,
		ledger:  ledger,
		devices: devices,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken     string          `json:"accessToken"`
	AccessExpiresAt time.Time       `json:"accessExpiresAt"`
	RefreshToken    string          `json:"refreshToken"`
	Identity        IdentitySummary `json:"user"`
}

// Login verifies email+password and issues a fresh token pair. Absent,
// inactive, soft-deleted and wrong-password identities all fail with the same
// ErrInvalidCredentials so nothing leaks about account existence.
func (s *Service) Login(ctx context.Context, email, password string, caller CallerInfo) (Session, error) {
	identity, err := s.validateCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			obs.IncAuth("login", "denied")
			s.audit(ctx, AuditEntry{
				Action:     ActionLoginFailed,
				EntityType: "USER",
				Metadata:   map[string]string{"email": strings.TrimSpace(strings.ToLower(email))},
			}, caller)
		}
		return Session{}, err
	}

	session, err := s.startSession(ctx, identity)
	if err != nil {
		return Session{}, err
	}
	obs.IncAuth("login", "ok")
	s.audit(ctx, AuditEntry{
		ActorID:    &identity.ID,
		ActorRoles: identity.Roles,
		Action:     ActionLogin,
		EntityType: "USER",
		EntityID:   identity.ID,
		Metadata:   map[string]string{"email": identity.Email},
	}, caller)
	return session, nil
}

// Refresh rotates the presented refresh token and mints a new access token
// for the owning identity. Clients must treat any failure as
// "re-authenticate", never "retry with the same token": a loser of a
// rotation race cannot tell whether its own request won.
func (s *Service) Refresh(ctx context.Context, refreshToken string, caller CallerInfo) (Session, error) {
	rotation, err := s.ledger.Rotate(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenReplayed) {
			// A revoked token presented again is unambiguously a replay:
			// legitimate clients always hold the newest chain tip.
			obs.IncAuth("refresh", "replayed")
			entry := AuditEntry{Action: ActionRefreshReplayed, EntityType: "REFRESH_TOKEN"}
			if rotation.Consumed != nil {
				entry.ActorID = &rotation.Consumed.UserID
				entry.EntityID = rotation.Consumed.ID
			}
			s.audit(ctx, entry, caller)
			return Session{}, ErrRefreshTokenInvalid
		}
		if errors.Is(err, ErrRefreshTokenInvalid) {
			obs.IncAuth("refresh", "denied")
			s.audit(ctx, AuditEntry{
				Action:     ActionRefreshFailed,
				EntityType: "REFRESH_TOKEN",
			}, caller)
			return Session{}, ErrRefreshTokenInvalid
		}
		return Session{}, err
	}

	identity, err := s.store.Users(ctx).Find(ctx, rotation.Record.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrRefreshTokenInvalid
		}
		return Session{}, err
	}
	if !identity.Active || identity.DeletedAt != nil {
		return Session{}, ErrRefreshTokenInvalid
	}

	accessToken, expiresAt, err := s.tokens.Issue(identity.ID, identity.FullName, identity.Roles)
	if err != nil {
		return Session{}, err
	}
	obs.IncAuth("refresh", "ok")
	s.audit(ctx, AuditEntry{
		ActorID:    &identity.ID,
		ActorRoles: identity.Roles,
		Action:     ActionRefresh,
		EntityType: "USER",
		EntityID:   identity.ID,
	}, caller)
	return Session{
		AccessToken:     accessToken,
		AccessExpiresAt: expiresAt,
		RefreshToken:    rotation.Token,
		Identity:        identity.Summary(),
	}, nil
}

// Logout terminally revokes the refresh token. Idempotent: revoking an
// unknown or already-revoked token succeeds silently.
func (s *Service) Logout(ctx context.Context, refreshToken string, caller CallerInfo) error {
	if err := s.ledger.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	entry := AuditEntry{Action: ActionLogout, EntityType: "USER"}
	if claims, ok := ClaimsFromContext(ctx); ok {
		entry.ActorID = &claims.Subject
		entry.ActorRoles = claims.Roles
		entry.EntityID = claims.Subject
	}
	s.audit(ctx, entry, caller)
	return nil
}

// VerifyAccessToken checks signature and expiry; consumed by every protected
// endpoint.
func (s *Service) VerifyAccessToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// AuthenticateDevice resolves and verifies an embedded device. Failures are
// audited with the precise cause; the HTTP surface returns one generic 401.
func (s *Service) AuthenticateDevice(ctx context.Context, deviceID, apiKey, sourceIP string) (DeviceIdentity, error) {
	identity, err := s.devices.Authenticate(ctx, deviceID, apiKey, sourceIP)
	if err != nil {
		switch {
		case errors.Is(err, ErrDeviceUnauthorized),
			errors.Is(err, ErrDeviceIPForbidden),
			errors.Is(err, ErrDeviceMisconfigured):
			obs.IncAuth("device", "denied")
			s.audit(ctx, AuditEntry{
				Action:     ActionDeviceAuthFailed,
				EntityType: "DEVICE",
				EntityID:   strings.TrimSpace(deviceID),
				Metadata:   map[string]string{"reason": err.Error()},
			}, CallerInfo{IP: sourceIP})
		}
		return DeviceIdentity{}, err
	}
	obs.IncAuth("device", "ok")
	return identity, nil
}

// RegisteredDevice is returned from RegisterDevice. Key holds the plaintext
// API key and is shown exactly once.
type RegisteredDevice struct {
	Device Device
	Key    string
}

// RegisterDevice creates a device record with a freshly generated API key.
func (s *Service) RegisterDevice(ctx context.Context, code, name, location, allowedIP string, caller CallerInfo) (RegisteredDevice, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return RegisteredDevice{}, fmt.Errorf("%w: device code and name are required", ErrInvalidInput)
	}
	key, hash, err := GenerateAPIKey()
	if err != nil {
		return RegisteredDevice{}, err
	}
	device := Device{
		ID:         ids.New(),
		Code:       code,
		Name:       name,
		Location:   strings.TrimSpace(location),
		APIKeyHash: hash,
		AllowedIP:  NormalizeIP(allowedIP),
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Devices(ctx).Create(ctx, &device); err != nil {
		return RegisteredDevice{}, err
	}
	entry := AuditEntry{
		Action:     ActionDeviceRegistered,
		EntityType: "DEVICE",
		EntityID:   device.ID,
		Metadata:   map[string]string{"code": device.Code},
	}
	if claims, ok := ClaimsFromContext(ctx); ok {
		entry.ActorID = &claims.Subject
		entry.ActorRoles = claims.Roles
	}
	s.audit(ctx, entry, caller)
	return RegisteredDevice{Device: device, Key: key}, nil
}

// ReportDeviceHealth stamps the device's last-seen time and audits the
// heartbeat.
func (s *Service) ReportDeviceHealth(ctx context.Context, device DeviceIdentity, status string, caller CallerInfo) error {
	if err := s.store.Devices(ctx).UpdateLastSeen(ctx, device.ID, s.now().UTC()); err != nil {
		return err
	}
	s.audit(ctx, AuditEntry{
		Action:     ActionDeviceHealth,
		EntityType: "DEVICE",
		EntityID:   device.ID,
		Metadata:   map[string]string{"code": device.Code, "status": strings.TrimSpace(status)},
	}, caller)
	return nil
}

// RevokeChain revokes the presented refresh token and its entire downstream
// rotation chain. Operator-facing: the precaution after a replay detection.
func (s *Service) RevokeChain(ctx context.Context, refreshToken string, caller CallerInfo) (int, error) {
	n, err := s.ledger.RevokeChain(ctx, refreshToken)
	if err != nil {
		return 0, err
	}
	entry := AuditEntry{
		Action:     ActionChainRevoked,
		EntityType: "REFRESH_TOKEN",
		Metadata:   map[string]string{"revoked": fmt.Sprintf("%d", n)},
	}
	if claims, ok := ClaimsFromContext(ctx); ok {
		entry.ActorID = &claims.Subject
		entry.ActorRoles = claims.Roles
	}
	s.audit(ctx, entry, caller)
	return n, nil
}

// validateCredentials looks up an active, non-deleted identity by email and
// compares the password against the stored bcrypt hash.
func (s *Service) validateCredentials(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	identity, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !identity.Active || identity.DeletedAt != nil {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return identity, nil
}

func (s *Service) startSession(ctx context.Context, identity *Identity) (Session, error) {
	accessToken, expiresAt, err := s.tokens.Issue(identity.ID, identity.FullName, identity.Roles)
	if err != nil {
		return Session{}, err
	}
	refreshToken, _, err := s.ledger.Issue(ctx, identity.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:     accessToken,
		AccessExpiresAt: expiresAt,
		RefreshToken:    refreshToken,
		Identity:        identity.Summary(),
	}, nil
}

func (s *Service) audit(ctx context.Context, entry AuditEntry, caller CallerInfo) {
	if s.auditor == nil {
		return
	}
	entry.OccurredAt = s.now().UTC()
	entry.IPAddress = NormalizeIP(caller.IP)
	entry.UserAgent = caller.UserAgent
	s.auditor.Record(ctx, entry)
}
