package audit

import (
	"context"
	"strings"
	"time"

	"campusconnect.org/internal/auth"
	"campusconnect.org/internal/ids"
	"campusconnect.org/internal/obs"
	"campusconnect.org/internal/stream"
)

const appendTimeout = 5 * time.Second

// securityFeedActions are mirrored onto the live operator feed.
var securityFeedActions = map[string]struct{}{
	auth.ActionLoginFailed:      {},
	auth.ActionRefreshReplayed:  {},
	auth.ActionDeviceAuthFailed: {},
	auth.ActionChainRevoked:     {},
}

// Recorder appends audit entries to the store. Append failures never abort
// the triggering request: authentication must not fail because auditing did.
// They are reported to the structured log instead.
type Recorder struct {
	store auth.Store
	hub   *stream.Hub
}

var _ auth.Auditor = (*Recorder)(nil)

// NewRecorder constructs a Recorder. hub may be nil to disable the live feed.
func NewRecorder(store auth.Store, hub *stream.Hub) *Recorder {
	return &Recorder{store: store, hub: hub}
}

// Record appends one entry. The write is detached from the request's
// cancellation so a client disconnect cannot drop the trail, but it is still
// bounded by its own timeout.
func (r *Recorder) Record(ctx context.Context, entry auth.AuditEntry) {
	if strings.TrimSpace(entry.Action) == "" {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
	defer cancel()

	if err := r.store.Audit(appendCtx).Append(appendCtx, &entry); err != nil {
		obs.Emit("error", "audit_append_failed", map[string]any{
			"action": entry.Action,
			"error":  err.Error(),
		})
	}

	if r.hub == nil {
		return
	}
	if _, ok := securityFeedActions[entry.Action]; !ok {
		return
	}
	evt := stream.SecurityEvent{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		IPAddress:  entry.IPAddress,
		Metadata:   entry.Metadata,
		Timestamp:  entry.OccurredAt,
	}
	if entry.ActorID != nil {
		evt.ActorID = *entry.ActorID
	}
	r.hub.Publish(evt)
}
