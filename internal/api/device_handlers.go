package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"lenslive/internal/dispatch"
	"lenslive/internal/session"
)

const notifyRequestTimeout = 5 * time.Second

type deviceConnectRequest struct {
	UserID    string `json:"userId"`
	NotifyURL string `json:"notifyUrl"`
}

type deviceDisconnectRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type deviceTranscriptRequest struct {
	UserID  string `json:"userId"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// webhookHandle delivers device notifications to the session gateway's
// callback URL. Delivery is fire-and-forget: the gateway owns retries.
type webhookHandle struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func newWebhookHandle(url string, logger *slog.Logger) *webhookHandle {
	return &webhookHandle{
		url:    url,
		client: &http.Client{Timeout: notifyRequestTimeout},
		logger: logger,
	}
}

func (h *webhookHandle) Notify(text string, duration time.Duration) {
	payload, err := json.Marshal(map[string]interface{}{
		"text":       text,
		"durationMs": duration.Milliseconds(),
	})
	if err != nil {
		return
	}
	resp, err := h.client.Post(h.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		h.logger.Warn("notification delivery failed", "url", h.url, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		h.logger.Warn("notification rejected", "url", h.url, "status", resp.StatusCode)
	}
}

// noopHandle is used for sessions whose gateway did not register a callback.
type noopHandle struct{}

func (noopHandle) Notify(string, time.Duration) {}

func (h *Handler) requireDispatcher(w http.ResponseWriter) bool {
	if h.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("device triggers are not configured"))
		return false
	}
	return true
}

// DeviceConnect registers a device session and triggers the auto-start flow.
func (h *Handler) DeviceConnect(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !h.requireDispatcher(w) {
		return
	}
	var req deviceConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}
	var handle session.Handle
	if notifyURL := strings.TrimSpace(req.NotifyURL); notifyURL != "" {
		handle = newWebhookHandle(notifyURL, h.logger)
	} else {
		handle = noopHandle{}
	}
	if err := h.dispatcher.HandleConnect(r.Context(), req.UserID, handle); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": req.UserID, "status": "connected"})
}

// DeviceDisconnect tears down the device session. Unknown users are a no-op.
func (h *Handler) DeviceDisconnect(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !h.requireDispatcher(w) {
		return
	}
	var req deviceDisconnectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}
	h.dispatcher.HandleDisconnect(req.UserID, req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"userId": req.UserID, "status": "disconnected"})
}

// DeviceTranscript feeds a transcript segment through the voice command
// matcher and reports which command, if any, was dispatched.
func (h *Handler) DeviceTranscript(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !h.requireDispatcher(w) {
		return
	}
	var req deviceTranscriptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}
	command := h.dispatcher.HandleTranscript(r.Context(), req.UserID, req.Text, req.IsFinal)
	payload := map[string]string{"userId": req.UserID, "command": string(command)}
	if command == dispatch.CommandNone {
		payload["command"] = "none"
	}
	writeJSON(w, http.StatusOK, payload)
}
