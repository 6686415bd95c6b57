package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dukerupert/questlog/internal/apperr"
	"github.com/dukerupert/questlog/internal/auth"
	"github.com/dukerupert/questlog/internal/store"
)

const maxDeviceNameLen = 100

type PushHandler struct {
	pushStore *store.PushStore
	publicKey string
	logger    *slog.Logger
}

// NewPushHandler serves subscription management. An empty publicKey means
// push is not configured and the VAPID key endpoint answers 404.
func NewPushHandler(ps *store.PushStore, publicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, publicKey: publicKey, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeError(w, h.logger, "vapid key", apperr.NotFound("push notifications are not configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}

// Subscribe handles POST /api/push/subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, h.logger, "subscribe", apperr.Validation("endpoint, p256dh, and auth are required"))
		return
	}
	if u, err := url.Parse(req.Endpoint); err != nil || u.Scheme != "https" || u.Host == "" {
		writeError(w, h.logger, "subscribe", apperr.Validation("endpoint must be an https URL"))
		return
	}
	req.DeviceName = strings.TrimSpace(req.DeviceName)
	if len([]rune(req.DeviceName)) > maxDeviceNameLen {
		writeError(w, h.logger, "subscribe", apperr.Validation("device_name must be at most %d characters", maxDeviceNameLen))
		return
	}

	sub, err := h.pushStore.Upsert(r.Context(), auth.UserID(r.Context()), req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		writeError(w, h.logger, "subscribe", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// List handles GET /api/push/subscriptions
func (h *PushHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list subscriptions", err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, h.logger, "unsubscribe", apperr.Validation("invalid id"))
		return
	}

	removed, err := h.pushStore.Delete(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "unsubscribe", err)
		return
	}
	if !removed {
		writeError(w, h.logger, "unsubscribe", apperr.NotFound("subscription not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
