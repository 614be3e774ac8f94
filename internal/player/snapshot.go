package player

import (
	"time"

	"github.com/calder/warble/internal/domain"
	"github.com/calder/warble/internal/playback"
)

// EntryStatus tells the UI how to annotate a queue entry.
type EntryStatus int

const (
	EntryNotCached EntryStatus = iota
	EntryDownloading
	EntryCached
	EntryFailed
)

// QueueEntry pairs a track with its acquisition status.
type QueueEntry struct {
	Track  domain.Track
	Status EntryStatus
}

// Snapshot is an immutable view of the whole player state, published to
// subscribers after every change.
type Snapshot struct {
	Playlist string
	State    playback.State
	Track    domain.Track
	HasTrack bool
	Position time.Duration
	Volume   float64
	Repeat   domain.RepeatMode
	Shuffle  bool
	Index    int
	Entries  []QueueEntry
}
