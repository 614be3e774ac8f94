package domain

import (
	"fmt"
	"time"
)

// Track represents a single playable audio item from the catalog.
type Track struct {
	ID       string        // Catalog-stable unique identifier
	Title    string        // Display title
	Artist   string        // Display artist
	Duration time.Duration // Total runtime (zero if the catalog omits it)

	// StreamURL is the resolved media URL. Empty until a StreamResolver
	// has resolved the track; never persisted, URLs expire.
	StreamURL string
}

// FormattedDuration returns the duration in a human-readable format
func (t Track) FormattedDuration() string {
	mins := int(t.Duration.Minutes())
	secs := int(t.Duration.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// DisplayTitle returns "Artist - Title", falling back to the id when the
// catalog entry carries no metadata.
func (t Track) DisplayTitle() string {
	switch {
	case t.Title != "" && t.Artist != "":
		return t.Artist + " - " + t.Title
	case t.Title != "":
		return t.Title
	default:
		return t.ID
	}
}

// RepeatMode controls how the queue behaves at its boundaries.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

// String returns a human-readable representation of the repeat mode
func (r RepeatMode) String() string {
	switch r {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "off"
	}
}
