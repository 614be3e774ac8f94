package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrTrackNotFound indicates the requested track does not exist
	ErrTrackNotFound = errors.New("track not found")

	// ErrNoStream indicates the catalog could not resolve a stream URL
	ErrNoStream = errors.New("no stream available for track")

	// ErrCacheMiss indicates the track has no completed cache entry
	ErrCacheMiss = errors.New("track not cached")

	// ErrDownloadFailed indicates a download exhausted its retry budget
	ErrDownloadFailed = errors.New("download failed")

	// ErrUnsupportedFormat indicates the cached file cannot be decoded
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrEngineBusy indicates a transport command arrived in a state
	// that cannot service it (e.g. seek while idle)
	ErrEngineBusy = errors.New("playback engine cannot service command in current state")
)

// PlayerError wraps a failure with the operation and track it belongs to.
type PlayerError struct {
	Op      string // Operation that failed ("decode", "output", "fetch", ...)
	TrackID string
	Err     error
}

func (e *PlayerError) Error() string {
	if e.TrackID != "" {
		return fmt.Sprintf("%s failed for track %s: %v", e.Op, e.TrackID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NewPlayerError creates a new PlayerError
func NewPlayerError(op, trackID string, err error) *PlayerError {
	return &PlayerError{Op: op, TrackID: trackID, Err: err}
}
