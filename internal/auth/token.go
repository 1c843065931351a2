package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenIssuer = "campusconnect"

// Claims are the self-contained access-token contents: subject id, display
// name and role set. They are never persisted and exist only inside a signed
// token for its TTL.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies short-lived HS256 access tokens. Both
// operations are stateless: no store lookup, trading instant revocation for
// a leakage window bounded by the TTL.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenIssuerOption configures a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithTokenIssuerName overrides the iss claim.
func WithTokenIssuerName(name string) TokenIssuerOption {
	return func(i *TokenIssuer) {
		if name = strings.TrimSpace(name); name != "" {
			i.issuer = name
		}
	}
}

// WithTokenClock overrides the time source (for tests).
func WithTokenClock(fn func() time.Time) TokenIssuerOption {
	return func(i *TokenIssuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer for the given signing secret and
// access TTL.
func NewTokenIssuer(secret string, ttl time.Duration, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: access token ttl must be positive")
	}
	issuer := &TokenIssuer{
		secret: []byte(secret),
		issuer: defaultTokenIssuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Issue signs an access token carrying the subject id, display name and
// normalized role set.
func (i *TokenIssuer) Issue(subject, name string, roles []string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Name:  name,
		Roles: NormalizeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and validity window. Expired tokens surface as
// ErrTokenExpired, everything else as ErrTokenInvalid; HTTP callers collapse
// both to a generic 401 and only logs keep the distinction.
func (i *TokenIssuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	claims.Roles = NormalizeRoles(claims.Roles)
	return claims, nil
}
