package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calder/warble/internal/domain"
	"github.com/calder/warble/internal/log"
)

func TestPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlist" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"name": "Morning Mix",
			"tracks": [
				{"id": "t1", "title": "One", "artist": "A", "duration_seconds": 61},
				{"id": "", "title": "dropped"},
				{"id": "t2", "title": "Two", "artist": "B", "duration_seconds": 120}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", log.NullLogger())
	name, tracks, err := c.Playlist(context.Background())
	if err != nil {
		t.Fatalf("Playlist failed: %v", err)
	}
	if name != "Morning Mix" {
		t.Errorf("expected playlist name Morning Mix, got %q", name)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks (entry without id dropped), got %d", len(tracks))
	}
	if tracks[0].Duration != 61*time.Second {
		t.Errorf("expected 61s duration, got %v", tracks[0].Duration)
	}
}

func TestResolveStreamURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracks/t1/stream":
			w.Write([]byte(`{"url": "http://cdn.example/t1.mp3"}`))
		case "/tracks/empty/stream":
			w.Write([]byte(`{"url": ""}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", log.NullLogger())

	url, err := c.ResolveStreamURL(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ResolveStreamURL failed: %v", err)
	}
	if url != "http://cdn.example/t1.mp3" {
		t.Errorf("unexpected URL: %q", url)
	}

	if _, err := c.ResolveStreamURL(context.Background(), "missing"); !errors.Is(err, domain.ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound for 404, got %v", err)
	}
	if _, err := c.ResolveStreamURL(context.Background(), "empty"); !errors.Is(err, domain.ErrNoStream) {
		t.Errorf("expected ErrNoStream for empty url, got %v", err)
	}
}

func TestResolveSendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"url": "http://cdn.example/t1.mp3"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", log.NullLogger())
	if _, err := c.ResolveStreamURL(context.Background(), "t1"); err != nil {
		t.Fatalf("ResolveStreamURL failed: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer token header, got %q", gotAuth)
	}
}

func TestLastPlaylistRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tracks := []domain.Track{
		{ID: "t1", Title: "One", Artist: "A", Duration: 61 * time.Second, StreamURL: "http://expired"},
		{ID: "t2", Title: "Two", Artist: "B", Duration: 2 * time.Minute},
	}
	if err := SaveLast(dir, "Evening", tracks); err != nil {
		t.Fatalf("SaveLast failed: %v", err)
	}

	name, loaded, ok := LoadLast(dir)
	if !ok {
		t.Fatal("LoadLast reported no playlist")
	}
	if name != "Evening" {
		t.Errorf("expected name Evening, got %q", name)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(loaded))
	}
	if loaded[0].StreamURL != "" {
		t.Error("stream URLs must not survive persistence")
	}
	if loaded[0].Duration != 61*time.Second {
		t.Errorf("duration not preserved: %v", loaded[0].Duration)
	}
}

func TestLoadLastMissingFile(t *testing.T) {
	if _, _, ok := LoadLast(t.TempDir()); ok {
		t.Error("expected no playlist from empty dir")
	}
}
