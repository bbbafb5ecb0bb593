package models

import (
	"strings"
	"time"
)

// StreamPhase enumerates the lifecycle states a stream moves through. The
// zero-value convention is PhaseStopped so a freshly created session reports a
// quiescent stream without extra initialization.
type StreamPhase string

const (
	PhaseStopped      StreamPhase = "stopped"
	PhaseInitializing StreamPhase = "initializing"
	PhaseActive       StreamPhase = "active"
	PhaseError        StreamPhase = "error"
)

// ParsePhase normalizes a raw phase string delivered by the transport. Unknown
// values fall back to PhaseError so desynchronized transports surface as a
// visible failure instead of silently mapping to a healthy state.
func ParsePhase(raw string) StreamPhase {
	switch StreamPhase(strings.ToLower(strings.TrimSpace(raw))) {
	case PhaseStopped:
		return PhaseStopped
	case PhaseInitializing:
		return PhaseInitializing
	case PhaseActive:
		return PhaseActive
	case PhaseError:
		return PhaseError
	default:
		return PhaseError
	}
}

// DirectStatus captures the observed lifecycle of a direct RTMP relay stream.
type DirectStatus struct {
	Phase       StreamPhase `json:"phase"`
	ErrorDetail string      `json:"errorDetail,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// PlaybackURLs lists the ready-made playback endpoints provisioned for a
// managed stream.
type PlaybackURLs struct {
	HLS    string `json:"hlsUrl"`
	DASH   string `json:"dashUrl"`
	WebRTC string `json:"webrtcUrl"`
}

// ManagedStatus captures the observed lifecycle of a managed stream. A nil
// *ManagedStatus on a session means no managed stream is in progress.
type ManagedStatus struct {
	Phase     StreamPhase  `json:"phase"`
	StreamID  string       `json:"streamId,omitempty"`
	URLs      PlaybackURLs `json:"urls"`
	Message   string       `json:"message,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// StreamInfo is the boundary-facing snapshot of a user's stream state returned
// by the companion API.
type StreamInfo struct {
	UserID        string         `json:"userId,omitempty"`
	RTMPURL       string         `json:"rtmpUrl"`
	DirectStatus  DirectStatus   `json:"streamStatus"`
	ManagedStatus *ManagedStatus `json:"managedStreamStatus,omitempty"`
}

// VideoConfig carries the encode parameters handed to the transport when
// starting a direct relay.
type VideoConfig struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	FPS      int `json:"fps"`
	BitrateK int `json:"bitrateKbps"`
	Keyframe int `json:"keyframeIntervalSec,omitempty"`
}

// AudioConfig carries the audio encode parameters for a direct relay.
type AudioConfig struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
	BitrateK   int `json:"bitrateKbps"`
}
