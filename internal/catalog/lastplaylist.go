package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calder/warble/internal/domain"
)

const lastPlaylistFile = "last-playlist.json"

// savedPlaylist is the on-disk shape of the last played playlist.
type savedPlaylist struct {
	Name   string       `json:"name"`
	Tracks []savedTrack `json:"tracks"`
}

type savedTrack struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	DurationSeconds int    `json:"duration_seconds"`
}

// SaveLast persists the playlist so the next session can start without the
// catalog being reachable. Stream URLs are deliberately not saved; they
// expire and must be re-resolved.
func SaveLast(dir, name string, tracks []domain.Track) error {
	saved := savedPlaylist{Name: name, Tracks: make([]savedTrack, len(tracks))}
	for i, t := range tracks {
		saved.Tracks[i] = savedTrack{
			ID:              t.ID,
			Title:           t.Title,
			Artist:          t.Artist,
			DurationSeconds: int(t.Duration / time.Second),
		}
	}

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode last playlist: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("catalog: save last playlist: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, lastPlaylistFile), data, 0644); err != nil {
		return fmt.Errorf("catalog: save last playlist: %w", err)
	}
	return nil
}

// LoadLast restores the previously saved playlist. A missing or corrupt file
// is not an error; the caller just starts with an empty queue.
func LoadLast(dir string) (string, []domain.Track, bool) {
	data, err := os.ReadFile(filepath.Join(dir, lastPlaylistFile))
	if err != nil {
		return "", nil, false
	}
	var saved savedPlaylist
	if err := json.Unmarshal(data, &saved); err != nil {
		return "", nil, false
	}

	tracks := make([]domain.Track, 0, len(saved.Tracks))
	for _, st := range saved.Tracks {
		if st.ID == "" {
			continue
		}
		tracks = append(tracks, domain.Track{
			ID:       st.ID,
			Title:    st.Title,
			Artist:   st.Artist,
			Duration: time.Duration(st.DurationSeconds) * time.Second,
		})
	}
	return saved.Name, tracks, len(tracks) > 0
}
