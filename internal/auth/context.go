package auth

import (
	"context"
	"strings"
)

type claimsContextKey struct{}
type deviceContextKey struct{}

// ContextWithClaims attaches verified access-token claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts verified claims from the context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(claimsContextKey{}).(*Claims)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// UserIDFromContext returns the authenticated subject id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", false
	}
	return claims.Subject, true
}

// RolesFromContext returns the roles carried by the verified claims.
func RolesFromContext(ctx context.Context) []string {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil
	}
	out := make([]string, len(claims.Roles))
	copy(out, claims.Roles)
	return out
}

// HasRole checks whether the context holds the specified role.
func HasRole(ctx context.Context, role string) bool {
	return RolesIntersect(RolesFromContext(ctx), []string{role})
}

// ContextWithDevice attaches an authenticated device identity to the context.
func ContextWithDevice(ctx context.Context, device DeviceIdentity) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, device)
}

// DeviceFromContext extracts the authenticated device, if any.
func DeviceFromContext(ctx context.Context) (DeviceIdentity, bool) {
	if ctx == nil {
		return DeviceIdentity{}, false
	}
	v, ok := ctx.Value(deviceContextKey{}).(DeviceIdentity)
	if !ok || v.ID == "" {
		return DeviceIdentity{}, false
	}
	return v, true
}
