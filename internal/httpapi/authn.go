package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"campusconnect.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	deviceIDHeader  = "X-Device-Id"
	deviceKeyHeader = "X-Device-Key"
)

// protect verifies the bearer token and checks the caller's roles against
// required before invoking next. Expired and malformed tokens both answer
// one generic 401; only server logs keep the distinction.
func (a *API) protect(next http.HandlerFunc, required ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := a.svc.VerifyAccessToken(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if err := auth.Authorize(claims, required...); err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				writeError(w, r, http.StatusForbidden, "insufficient role")
				return
			}
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

// deviceAuth authenticates an embedded device by the id/key header pair. All
// failure causes collapse to one 401; the precise reason goes to the audit
// trail instead.
func (a *API) deviceAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(r.Header.Get(deviceIDHeader))
		apiKey := r.Header.Get(deviceKeyHeader)
		if deviceID == "" || apiKey == "" {
			writeError(w, r, http.StatusUnauthorized, "device authentication required")
			return
		}

		identity, err := a.svc.AuthenticateDevice(r.Context(), deviceID, apiKey, clientIP(r))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrDeviceUnauthorized),
				errors.Is(err, auth.ErrDeviceIPForbidden),
				errors.Is(err, auth.ErrDeviceMisconfigured):
				writeError(w, r, http.StatusUnauthorized, "device authentication failed")
			default:
				writeError(w, r, http.StatusInternalServerError, "internal error")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithDevice(r.Context(), identity)))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
