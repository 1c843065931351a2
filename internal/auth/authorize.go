package auth

// Authorize allows a request iff the claims' role set intersects the required
// set. Missing claims fail ErrUnauthenticated, a distinct error from
// ErrForbidden so callers can tell "log in" apart from "you lack permission".
// An empty required set only demands a verified identity.
func Authorize(claims *Claims, required ...string) error {
	if claims == nil || claims.Subject == "" {
		return ErrUnauthenticated
	}
	if len(required) == 0 {
		return nil
	}
	if !RolesIntersect(claims.Roles, required) {
		return ErrForbidden
	}
	return nil
}
