package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/calder/warble/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Warble/1.0"
)

// Client implements domain.StreamResolver against a warble catalog backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new catalog client
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// trackDTO is the wire shape of one catalog track.
type trackDTO struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (d trackDTO) toDomain() domain.Track {
	return domain.Track{
		ID:       d.ID,
		Title:    d.Title,
		Artist:   d.Artist,
		Duration: time.Duration(d.DurationSeconds) * time.Second,
	}
}

// Playlist fetches the catalog's default playlist feed.
func (c *Client) Playlist(ctx context.Context) (string, []domain.Track, error) {
	var feed struct {
		Name   string     `json:"name"`
		Tracks []trackDTO `json:"tracks"`
	}
	if err := c.getJSON(ctx, "/playlist", &feed); err != nil {
		return "", nil, fmt.Errorf("catalog: fetch playlist: %w", err)
	}

	tracks := make([]domain.Track, 0, len(feed.Tracks))
	for _, dto := range feed.Tracks {
		if dto.ID == "" {
			continue
		}
		tracks = append(tracks, dto.toDomain())
	}
	c.logger.Info("fetched playlist", "name", feed.Name, "tracks", len(tracks))
	return feed.Name, tracks, nil
}

// ResolveStreamURL resolves a track id into a fetchable media URL.
func (c *Client) ResolveStreamURL(ctx context.Context, trackID string) (string, error) {
	var stream struct {
		URL string `json:"url"`
	}
	err := c.getJSON(ctx, "/tracks/"+trackID+"/stream", &stream)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", trackID, err)
	}
	if stream.URL == "" {
		return "", fmt.Errorf("resolve %s: %w", trackID, domain.ErrNoStream)
	}
	return stream.URL, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.ErrTrackNotFound
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}
