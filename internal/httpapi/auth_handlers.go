package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"campusconnect.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := a.svc.Login(r.Context(), req.Email, req.Password, callerInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	session, err := a.svc.Refresh(r.Context(), req.RefreshToken, callerInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenInvalid) {
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleLogout accepts an optional bearer token: a client whose access token
// already expired can still invalidate its refresh token.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	ctx := r.Context()
	if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		if claims, err := a.svc.VerifyAccessToken(token); err == nil {
			ctx = auth.ContextWithClaims(ctx, claims)
		}
	}

	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	if err := a.svc.Logout(ctx, req.RefreshToken, callerInfo(r)); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":    claims.Subject,
		"name":  claims.Name,
		"roles": claims.Roles,
	})
}

func callerInfo(r *http.Request) auth.CallerInfo {
	return auth.CallerInfo{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
