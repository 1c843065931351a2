package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrTokenExpired = errors.New("auth: access token expired")
	ErrTokenInvalid = errors.New("auth: access token invalid")

	ErrRefreshTokenInvalid = errors.New("auth: refresh token invalid")

	ErrDeviceUnauthorized  = errors.New("auth: device unauthorized")
	ErrDeviceIPForbidden   = errors.New("auth: device ip not allowed")
	ErrDeviceMisconfigured = errors.New("auth: device has no api key configured")

	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
)

// ErrTokenReplayed marks a rotation attempt against a token that was already
// consumed by a legitimate rotation. It wraps ErrRefreshTokenInvalid so callers
// keep seeing the single collapsed error class; the distinction exists for
// audit logs and intrusion detection only.
var ErrTokenReplayed = fmt.Errorf("%w: already rotated", ErrRefreshTokenInvalid)
