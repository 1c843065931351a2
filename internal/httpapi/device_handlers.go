package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"campusconnect.org/internal/auth"
)

type registerDeviceRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	AllowedIP string `json:"allowedIp"`
}

type registerDeviceResponse struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	AllowedIP string `json:"allowedIp,omitempty"`
	// APIKey is the plaintext credential, returned exactly once at
	// registration. Only its hash survives server-side.
	APIKey string `json:"apiKey"`
}

type deviceHealthRequest struct {
	Status string `json:"status"`
}

func (a *API) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	registered, err := a.svc.RegisterDevice(r.Context(),
		req.Code, req.Name, req.Location, req.AllowedIP, callerInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, registerDeviceResponse{
		ID:        registered.Device.ID,
		Code:      registered.Device.Code,
		Name:      registered.Device.Name,
		Location:  registered.Device.Location,
		AllowedIP: registered.Device.AllowedIP,
		APIKey:    registered.Key,
	})
}

func (a *API) handleDeviceHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	device, ok := auth.DeviceFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "device authentication required")
		return
	}

	var req deviceHealthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = "ok"
	}

	if err := a.svc.ReportDeviceHealth(r.Context(), device, status, callerInfo(r)); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "recorded",
		"device": device.Code,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
