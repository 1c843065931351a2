package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"campusconnect.org/internal/auth"
	"campusconnect.org/internal/obs"
	"campusconnect.org/internal/stream"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP surface of the auth service. Every route is registered in
// New with its method and role guard in one place, so the full permission
// matrix is readable top to bottom.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	store      auth.Store
	hub        *stream.Hub
	readyProbe ReadyProbe
	version    string
}

// Per-IP budget for credential-guessing endpoints, deliberately tighter than
// the global limiter.
const (
	loginBurst     = 5
	loginPerSecond = 1
)

func New(svc *auth.Service, store auth.Store, hub *stream.Hub, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		store:      store,
		hub:        hub,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.HandleFunc("/v1/info", a.info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// Session lifecycle. Login and refresh carry their own credential, so
	// they stay outside the bearer guard but behind a tight rate limit.
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), loginBurst, loginPerSecond))
	a.mux.Handle("/v1/auth/refresh", RateLimit(http.HandlerFunc(a.handleRefresh), loginBurst, loginPerSecond))
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.Handle("/v1/auth/me", a.protect(a.handleMe))

	// Devices: registration is an admin operation, the health heartbeat is
	// authenticated by the device's own API key.
	a.mux.Handle("/v1/devices", a.protect(a.handleRegisterDevice, auth.RoleSuperAdmin, auth.RoleITAdmin))
	a.mux.Handle("/v1/devices/health", DeviceRateLimit(a.deviceAuth(a.handleDeviceHealth), 10, 2))

	// Operator surface.
	a.mux.Handle("/v1/admin/tokens/revoke-chain", a.protect(a.handleRevokeChain, auth.RoleSuperAdmin, auth.RoleITAdmin))
	a.mux.Handle("/v1/audit/entries", a.protect(a.handleAuditEntries, auth.RoleSuperAdmin, auth.RolePrincipal, auth.RoleITAdmin))
	a.mux.Handle("/v1/audit/stream", a.protect(a.handleAuditStream, auth.RoleSuperAdmin, auth.RolePrincipal, auth.RoleITAdmin))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wraps the mux with the shared middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "campusconnect-auth",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "campusconnect-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
