package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"lenslive/internal/dispatch"
	"lenslive/internal/models"
	"lenslive/internal/reconcile"
	"lenslive/internal/session"
	"lenslive/internal/settings"
	"lenslive/internal/stream"
)

const settingsUpdateNotifyDuration = 3 * time.Second

// Config wires the handler's collaborators.
type Config struct {
	Registry   *session.Registry
	Controller *stream.Controller
	Settings   settings.Store
	Reconciler *reconcile.Reconciler
	Dispatcher *dispatch.Dispatcher
	Transport  stream.Transport
	// SettingsPinger reports durable settings-store health; leave nil for
	// the in-memory store.
	SettingsPinger Pinger
	DefaultURL     string
	Logger         *slog.Logger
}

// Handler serves the coordinator's HTTP API.
type Handler struct {
	registry       *session.Registry
	controller     *stream.Controller
	settings       settings.Store
	reconciler     *reconcile.Reconciler
	dispatcher     *dispatch.Dispatcher
	transport      stream.Transport
	settingsPinger Pinger
	defaultURL     string
	logger         *slog.Logger
}

// NewHandler constructs a Handler from the provided configuration.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		registry:       cfg.Registry,
		controller:     cfg.Controller,
		settings:       cfg.Settings,
		reconciler:     cfg.Reconciler,
		dispatcher:     cfg.Dispatcher,
		transport:      cfg.Transport,
		settingsPinger: cfg.SettingsPinger,
		defaultURL:     strings.TrimSpace(cfg.DefaultURL),
		logger:         cfg.Logger,
	}
	if h.defaultURL == "" {
		h.defaultURL = stream.DefaultRTMPURL
	}
	if h.transport == nil {
		h.transport = stream.NoopTransport{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// userID resolves the target user from the query string or the X-User-Id
// header, query winning on conflict.
func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("userId")); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, settings.ErrInvalidURL):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	return false
}

// StreamInfo serves GET /api/stream. When the user has no live session the
// handler answers with the persisted destination (or the process default) and
// a stopped phase, so the companion UI can render settings before the device
// connects.
func (h *Handler) StreamInfo(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id := userID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}

	if sess, ok := h.registry.Get(id); ok {
		writeJSON(w, http.StatusOK, sess.Info())
		return
	}

	url := h.defaultURL
	if h.settings != nil {
		if stored, ok, err := h.settings.Get(r.Context(), id); err != nil {
			h.logger.Error("settings lookup failed", "user_id", id, "error", err)
		} else if ok {
			url = stored
		}
	}
	writeJSON(w, http.StatusOK, models.StreamInfo{
		UserID:       id,
		RTMPURL:      url,
		DirectStatus: models.DirectStatus{Phase: models.PhaseStopped},
	})
}

type setURLRequest struct {
	UserID string `json:"userId"`
	URL    string `json:"url"`
}

// SetStreamURL serves PUT /api/stream/url. The destination is persisted
// last-write-wins; when the user has a live session the new URL takes effect
// immediately and the device is notified.
func (h *Handler) SetStreamURL(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req setURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := strings.TrimSpace(req.UserID)
	if id == "" {
		id = userID(r)
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}
	if h.settings == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("settings store is not configured"))
		return
	}

	warn, err := settings.ValidateURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if warn {
		h.logger.Warn("stream destination has a non-rtmp scheme", "user_id", id, "url", req.URL)
	}
	if err := h.settings.Set(r.Context(), id, req.URL); err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	trimmed := strings.TrimSpace(req.URL)
	if sess, ok := h.registry.Get(id); ok {
		sess.SetRTMPURL(trimmed)
		if handle := sess.Handle(); handle != nil {
			handle.Notify("Stream destination updated", settingsUpdateNotifyDuration)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": id, "url": trimmed})
}

type startDirectRequest struct {
	UserID string `json:"userId,omitempty"`
	URL    string `json:"url,omitempty"`
}

// StartDirect serves POST /api/stream/start.
func (h *Handler) StartDirect(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req startDirectRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	id := strings.TrimSpace(req.UserID)
	if id == "" {
		id = userID(r)
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}

	if err := h.controller.StartDirect(r.Context(), id, req.URL); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"userId": id})
}

type userIDRequest struct {
	UserID string `json:"userId,omitempty"`
}

// requestUserID resolves the target user for operations that take an optional
// JSON body: body first, then query string, then the X-User-Id header, the
// same order StartDirect uses. A malformed body is reported, not skipped.
func requestUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req userIDRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return "", false
		}
	}
	id := strings.TrimSpace(req.UserID)
	if id == "" {
		id = userID(r)
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return "", false
	}
	return id, true
}

// StopDirect serves POST /api/stream/stop.
func (h *Handler) StopDirect(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := requestUserID(w, r)
	if !ok {
		return
	}

	if err := h.controller.StopDirect(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"userId": id})
}

// StartManaged serves POST /api/stream/managed/start and returns the
// provisioned playback URLs synchronously.
func (h *Handler) StartManaged(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := requestUserID(w, r)
	if !ok {
		return
	}

	result, err := h.controller.StartManaged(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// StopManaged serves POST /api/stream/managed/stop.
func (h *Handler) StopManaged(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := requestUserID(w, r)
	if !ok {
		return
	}

	if err := h.controller.StopManaged(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"userId": id})
}

// Sessions serves GET /api/sessions with a snapshot of every connected user.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	live := h.registry.List()
	infos := make([]models.StreamInfo, 0, len(live))
	for _, sess := range live {
		infos = append(infos, sess.Info())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(infos),
		"sessions": infos,
	})
}
