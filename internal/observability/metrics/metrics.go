package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

type statusLabel struct {
	kind  string
	phase string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests, stream
// lifecycle operations, transport status events, voice commands, and device
// notifications. A RWMutex coordinates concurrent writers while the active
// session gauge stays atomic.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	streamOps       map[string]uint64
	streamOpFails   map[string]uint64
	statusEvents    map[statusLabel]uint64
	droppedEvents   map[string]uint64
	voiceCommands   map[string]uint64
	notifications   uint64
	activeSessions  atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		streamOps:       make(map[string]uint64),
		streamOpFails:   make(map[string]uint64),
		statusEvents:    make(map[statusLabel]uint64),
		droppedEvents:   make(map[string]uint64),
		voiceCommands:   make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared across packages that do not
// require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveStreamOp records an attempted stream operation keyed by name
// (e.g. "direct_start", "managed_stop").
func (r *Recorder) ObserveStreamOp(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.streamOps[op]++
	r.mu.Unlock()
}

// ObserveStreamOpFailure records a failed stream operation. Callers record
// the attempt separately.
func (r *Recorder) ObserveStreamOpFailure(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.streamOpFails[op]++
	r.mu.Unlock()
}

// ObserveStatusEvent records a transport status event by stream kind
// ("direct" or "managed") and reported phase.
func (r *Recorder) ObserveStatusEvent(kind, phase string) {
	label := statusLabel{kind: normalizeName(kind), phase: normalizeName(phase)}
	r.mu.Lock()
	r.statusEvents[label]++
	r.mu.Unlock()
}

// ObserveDroppedEvent records a status event that arrived for a user with no
// live session and was discarded.
func (r *Recorder) ObserveDroppedEvent(kind string) {
	k := normalizeName(kind)
	r.mu.Lock()
	r.droppedEvents[k]++
	r.mu.Unlock()
}

// ObserveVoiceCommand records a matched transcript keyword ("start"/"stop").
func (r *Recorder) ObserveVoiceCommand(command string) {
	cmd := normalizeName(command)
	r.mu.Lock()
	r.voiceCommands[cmd]++
	r.mu.Unlock()
}

// ObserveNotification counts a notification delivered to a device session.
func (r *Recorder) ObserveNotification() {
	r.mu.Lock()
	r.notifications++
	r.mu.Unlock()
}

// SessionConnected increments the active session gauge.
func (r *Recorder) SessionConnected() {
	r.activeSessions.Add(1)
}

// SessionDisconnected decrements the active session gauge, guarding against
// negative counts when updates race.
func (r *Recorder) SessionDisconnected() {
	for {
		current := r.activeSessions.Load()
		if current <= 0 {
			return
		}
		if r.activeSessions.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ActiveSessions exposes the current gauge of connected device sessions.
func (r *Recorder) ActiveSessions() int64 {
	return r.activeSessions.Load()
}

// StreamOpCounts returns copies of attempt and failure counters for testing
// and reporting purposes.
func (r *Recorder) StreamOpCounts() (attempts map[string]uint64, failures map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempts = make(map[string]uint64, len(r.streamOps))
	for k, v := range r.streamOps {
		attempts[k] = v
	}
	failures = make(map[string]uint64, len(r.streamOpFails))
	for k, v := range r.streamOpFails {
		failures[k] = v
	}
	return attempts, failures
}

// Reset clears all counters and gauges. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.streamOps = make(map[string]uint64)
	r.streamOpFails = make(map[string]uint64)
	r.statusEvents = make(map[statusLabel]uint64)
	r.droppedEvents = make(map[string]uint64)
	r.voiceCommands = make(map[string]uint64)
	r.notifications = 0
	r.activeSessions.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets for stable scrapes.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	streamOps := r.sortedStreamOps()
	statusLabels := r.sortedStatusLabels()
	droppedKinds := sortedKeys(r.droppedEvents)
	voiceCommands := sortedKeys(r.voiceCommands)

	fmt.Fprintln(w, "# HELP lenslive_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE lenslive_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "lenslive_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP lenslive_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE lenslive_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "lenslive_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP lenslive_stream_ops_total Stream operations attempted by name")
	fmt.Fprintln(w, "# TYPE lenslive_stream_ops_total counter")
	for _, op := range streamOps {
		fmt.Fprintf(w, "lenslive_stream_ops_total{operation=\"%s\"} %d\n", op, r.streamOps[op])
	}

	fmt.Fprintln(w, "# HELP lenslive_stream_op_failures_total Stream operation failures by name")
	fmt.Fprintln(w, "# TYPE lenslive_stream_op_failures_total counter")
	for _, op := range streamOps {
		fmt.Fprintf(w, "lenslive_stream_op_failures_total{operation=\"%s\"} %d\n", op, r.streamOpFails[op])
	}

	fmt.Fprintln(w, "# HELP lenslive_status_events_total Transport status events by stream kind and phase")
	fmt.Fprintln(w, "# TYPE lenslive_status_events_total counter")
	for _, label := range statusLabels {
		fmt.Fprintf(w, "lenslive_status_events_total{kind=\"%s\",phase=\"%s\"} %d\n", label.kind, label.phase, r.statusEvents[label])
	}

	fmt.Fprintln(w, "# HELP lenslive_dropped_events_total Status events dropped because no session was live")
	fmt.Fprintln(w, "# TYPE lenslive_dropped_events_total counter")
	for _, kind := range droppedKinds {
		fmt.Fprintf(w, "lenslive_dropped_events_total{kind=\"%s\"} %d\n", kind, r.droppedEvents[kind])
	}

	fmt.Fprintln(w, "# HELP lenslive_voice_commands_total Matched transcript keywords by command")
	fmt.Fprintln(w, "# TYPE lenslive_voice_commands_total counter")
	for _, cmd := range voiceCommands {
		fmt.Fprintf(w, "lenslive_voice_commands_total{command=\"%s\"} %d\n", cmd, r.voiceCommands[cmd])
	}

	fmt.Fprintln(w, "# HELP lenslive_notifications_total Notifications delivered to device sessions")
	fmt.Fprintln(w, "# TYPE lenslive_notifications_total counter")
	fmt.Fprintf(w, "lenslive_notifications_total %d\n", r.notifications)

	fmt.Fprintln(w, "# HELP lenslive_active_sessions Current number of connected device sessions")
	fmt.Fprintln(w, "# TYPE lenslive_active_sessions gauge")
	fmt.Fprintf(w, "lenslive_active_sessions %d\n", r.activeSessions.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedStreamOps() []string {
	seen := make(map[string]struct{}, len(r.streamOps)+len(r.streamOpFails))
	for op := range r.streamOps {
		seen[op] = struct{}{}
	}
	for op := range r.streamOpFails {
		seen[op] = struct{}{}
	}
	ops := make([]string, 0, len(seen))
	for op := range seen {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func (r *Recorder) sortedStatusLabels() []statusLabel {
	labels := make([]statusLabel, 0, len(r.statusEvents))
	for label := range r.statusEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].kind != labels[j].kind {
			return labels[i].kind < labels[j].kind
		}
		return labels[i].phase < labels[j].phase
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// SessionConnected increments the gauge on the default recorder.
func SessionConnected() {
	defaultRecorder.SessionConnected()
}

// SessionDisconnected decrements the gauge on the default recorder.
func SessionDisconnected() {
	defaultRecorder.SessionDisconnected()
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
