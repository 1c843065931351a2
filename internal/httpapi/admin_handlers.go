package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"campusconnect.org/internal/auth"
)

type revokeChainRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type auditEntryView struct {
	ID         string            `json:"id"`
	OccurredAt time.Time         `json:"occurredAt"`
	ActorID    *string           `json:"actorId,omitempty"`
	ActorRoles []string          `json:"actorRoles,omitempty"`
	Action     string            `json:"action"`
	EntityType string            `json:"entityType,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
}

type auditEntriesResponse struct {
	Items []auditEntryView `json:"items"`
}

func (a *API) handleRevokeChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req revokeChainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	n, err := a.svc.RevokeChain(r.Context(), req.RefreshToken, callerInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenInvalid) {
			writeError(w, r, http.StatusNotFound, "unknown refresh token")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
}

func (a *API) handleAuditEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	limit, err := parseQueryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseQueryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := a.store.Audit(r.Context()).List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		items = append(items, auditEntryView{
			ID:         e.ID,
			OccurredAt: e.OccurredAt,
			ActorID:    e.ActorID,
			ActorRoles: e.ActorRoles,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Metadata:   e.Metadata,
			IPAddress:  e.IPAddress,
			UserAgent:  e.UserAgent,
		})
	}
	writeJSON(w, http.StatusOK, auditEntriesResponse{Items: items})
}

func parseQueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return val, nil
}
