package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"lenslive/internal/models"
)

// HTTPTransport talks to the streaming backend over its REST API. The backend
// owns all media negotiation and encoding; this client only issues lifecycle
// requests and reads their synchronous results.
type HTTPTransport struct {
	config Config
	logger *slog.Logger
}

// SetLogger installs a logger for request failures. A nil logger is replaced
// with slog.Default at call sites.
func (t *HTTPTransport) SetLogger(logger *slog.Logger) {
	t.logger = logger
}

type directStartRequest struct {
	UserID string             `json:"userId"`
	URL    string             `json:"rtmpUrl"`
	Video  models.VideoConfig `json:"video"`
	Audio  models.AudioConfig `json:"audio"`
}

type managedStartResponse struct {
	StreamID  string `json:"streamId"`
	HLSURL    string `json:"hlsUrl"`
	DASHURL   string `json:"dashUrl"`
	WebRTCURL string `json:"webrtcUrl"`
}

type managedActiveResponse struct {
	Active bool `json:"active"`
}

// StartDirect issues a relay start request for the user.
func (t *HTTPTransport) StartDirect(ctx context.Context, params StartDirectParams) error {
	if params.UserID == "" || params.URL == "" {
		return fmt.Errorf("userID and rtmpUrl are required")
	}
	payload := directStartRequest{
		UserID: params.UserID,
		URL:    params.URL,
		Video:  params.Video,
		Audio:  params.Audio,
	}
	return t.post(ctx, t.endpoint("/v1/streams/direct/start"), payload, nil)
}

// StopDirect issues a relay stop request for the user. The transport decides
// whether there was anything to stop.
func (t *HTTPTransport) StopDirect(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	return t.post(ctx, t.endpoint("/v1/streams/direct/stop"), map[string]string{"userId": userID}, nil)
}

// StartManaged provisions a managed stream and returns its playback URLs.
func (t *HTTPTransport) StartManaged(ctx context.Context, userID string) (ManagedStream, error) {
	if userID == "" {
		return ManagedStream{}, fmt.Errorf("userID is required")
	}
	var response managedStartResponse
	if err := t.post(ctx, t.endpoint("/v1/streams/managed/start"), map[string]string{"userId": userID}, &response); err != nil {
		return ManagedStream{}, err
	}
	result := ManagedStream{StreamID: response.StreamID}
	result.URLs.HLS = response.HLSURL
	result.URLs.DASH = response.DASHURL
	result.URLs.WebRTC = response.WebRTCURL
	return result, nil
}

// StopManaged tears down the user's managed stream.
func (t *HTTPTransport) StopManaged(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	return t.post(ctx, t.endpoint("/v1/streams/managed/stop"), map[string]string{"userId": userID}, nil)
}

// IsManagedActive asks the transport whether a managed stream is running.
func (t *HTTPTransport) IsManagedActive(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}
	url := fmt.Sprintf("%s/v1/streams/managed/%s", strings.TrimRight(t.config.BaseURL, "/"), userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	t.authorize(req)
	resp, err := t.client().Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	var response managedActiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return false, err
	}
	return response.Active, nil
}

// HealthChecks queries the transport's health endpoint.
func (t *HTTPTransport) HealthChecks(ctx context.Context) []HealthStatus {
	status := HealthStatus{Component: "transport"}
	if t.config.BaseURL == "" {
		status.Status = "unknown"
		status.Detail = "base URL not configured"
		return []HealthStatus{status}
	}
	url := strings.TrimRight(t.config.BaseURL, "/") + t.config.HealthEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Status = "error"
		status.Detail = err.Error()
		return []HealthStatus{status}
	}
	t.authorize(req)
	resp, err := t.client().Do(req)
	if err != nil {
		status.Status = "error"
		status.Detail = err.Error()
		return []HealthStatus{status}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status.Status = "ok"
	} else {
		status.Status = "error"
		status.Detail = resp.Status
	}
	return []HealthStatus{status}
}

func (t *HTTPTransport) endpoint(path string) string {
	return strings.TrimRight(t.config.BaseURL, "/") + path
}

func (t *HTTPTransport) client() *http.Client {
	if t.config.HTTPClient != nil {
		return t.config.HTTPClient
	}
	return http.DefaultClient
}

func (t *HTTPTransport) authorize(req *http.Request) {
	if t.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.Token)
	}
}

func (t *HTTPTransport) post(ctx context.Context, url string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)
	resp, err := t.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		detail := strings.TrimSpace(string(data))
		if logger := t.logger; logger != nil {
			logger.Warn("transport request rejected", "url", url, "status", resp.Status, "detail", detail)
		}
		return fmt.Errorf("%s: %s", resp.Status, detail)
	}
	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
