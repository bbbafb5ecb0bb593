package settings

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when attempting to persist an empty destination.
var ErrInvalidURL = errors.New("rtmp url is required")

// Store defines the persistence contract for per-user stream destinations.
// Entries survive device disconnects and are overwritten last-write-wins.
type Store interface {
	Set(ctx context.Context, userID, rtmpURL string) error
	Get(ctx context.Context, userID string) (string, bool, error)
	Delete(ctx context.Context, userID string) error
}

// ValidateURL checks a candidate destination. An empty value is rejected with
// ErrInvalidURL. A non-rtmp scheme is legal but suspicious, so the second
// return value reports whether the caller should emit a warning; storage
// proceeds either way.
func ValidateURL(raw string) (warn bool, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false, ErrInvalidURL
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return true, nil
	}
	switch strings.ToLower(parsed.Scheme) {
	case "rtmp", "rtmps":
		return false, nil
	default:
		return true, nil
	}
}
