package api

import (
	"fmt"
	"net/http"
	"strings"

	"lenslive/internal/models"
	"lenslive/internal/reconcile"
)

type directStatusHook struct {
	UserID      string `json:"userId"`
	Phase       string `json:"phase"`
	ErrorDetail string `json:"errorDetail,omitempty"`
}

type managedStatusHook struct {
	UserID   string               `json:"userId"`
	Phase    string               `json:"phase"`
	StreamID string               `json:"streamId,omitempty"`
	URLs     *models.PlaybackURLs `json:"urls,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// DirectStatusHook serves POST /api/hooks/stream-status. The transport calls
// it to report direct-relay phase changes when it is not wired to the status
// queue. Events for unknown users are accepted and dropped by the reconciler;
// the webhook caller cannot act on that outcome.
func (h *Handler) DirectStatusHook(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var hook directStatusHook
	if err := decodeJSON(r, &hook); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(hook.UserID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}
	if strings.TrimSpace(hook.Phase) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("phase is required"))
		return
	}

	h.reconciler.Apply(reconcile.Event{
		Kind:        reconcile.EventKindDirect,
		UserID:      strings.TrimSpace(hook.UserID),
		Phase:       hook.Phase,
		ErrorDetail: hook.ErrorDetail,
	})
	writeJSON(w, http.StatusAccepted, nil)
}

// ManagedStatusHook serves POST /api/hooks/managed-status.
func (h *Handler) ManagedStatusHook(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var hook managedStatusHook
	if err := decodeJSON(r, &hook); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(hook.UserID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("userId is required"))
		return
	}
	if strings.TrimSpace(hook.Phase) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("phase is required"))
		return
	}

	h.reconciler.Apply(reconcile.Event{
		Kind:     reconcile.EventKindManaged,
		UserID:   strings.TrimSpace(hook.UserID),
		Phase:    hook.Phase,
		StreamID: hook.StreamID,
		URLs:     hook.URLs,
		Message:  hook.Message,
	})
	writeJSON(w, http.StatusAccepted, nil)
}
