package mediakeys

import (
	"log/slog"

	"github.com/calder/warble/internal/playback"
	"github.com/calder/warble/internal/player"
)

// Bridge connects the player to a desktop media-key service: snapshots flow
// out so the OS can show what is playing, key presses come back as commands.
type Bridge interface {
	Publish(snap player.Snapshot)
	Commands() <-chan player.Command
	Close() error
}

// LogBridge is the portable fallback used when no platform integration is
// available. It records now-playing transitions and never emits commands.
type LogBridge struct {
	logger   *slog.Logger
	commands chan player.Command

	lastTrack string
	lastState playback.State
}

// NewLogBridge creates a bridge that only logs state transitions.
func NewLogBridge(logger *slog.Logger) *LogBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBridge{
		logger:   logger,
		commands: make(chan player.Command),
	}
}

// Publish records the snapshot when the track or state changed.
func (b *LogBridge) Publish(snap player.Snapshot) {
	if snap.Track.ID == b.lastTrack && snap.State == b.lastState {
		return
	}
	b.lastTrack = snap.Track.ID
	b.lastState = snap.State
	b.logger.Debug("now playing changed",
		"trackID", snap.Track.ID,
		"title", snap.Track.Title,
		"state", snap.State.String())
}

// Commands returns the command channel; the log bridge never sends on it.
func (b *LogBridge) Commands() <-chan player.Command {
	return b.commands
}

// Close releases the bridge.
func (b *LogBridge) Close() error {
	close(b.commands)
	return nil
}
