package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calder/warble/internal/cache"
	"github.com/calder/warble/internal/config"
	"github.com/calder/warble/internal/domain"
	"github.com/dhowden/tag"
)

// Status is the lifecycle state of a download job.
type Status int

const (
	StatusPending Status = iota
	StatusInFlight
	StatusDone
	StatusFailed
	StatusCanceled
)

// Job tracks one track fetch through the worker pool. At most one active
// (Pending or InFlight) job exists per track id.
type Job struct {
	ID       string
	TrackID  string
	Status   Status
	Attempts int

	cancel   context.CancelFunc
	canceled bool
}

// EventType classifies manager events.
type EventType int

const (
	EventCompleted EventType = iota
	EventFailed
	EventCanceled
)

// Event announces a terminal job outcome. Completion carries the cached
// payload path and any metadata probed from the file's tags.
type Event struct {
	Type    EventType
	TrackID string
	Path    string
	Title   string
	Artist  string
	Err     error
}

// Manager is a bounded pool of download workers feeding the cache.
type Manager struct {
	resolver   domain.StreamResolver
	store      *cache.Store
	cfg        config.DownloadsConfig
	logger     *slog.Logger
	httpClient *http.Client

	mu   sync.Mutex
	jobs map[string]*Job // active jobs keyed by track id

	pending chan *Job
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
}

// NewManager creates the manager and starts its worker pool.
func NewManager(resolver domain.StreamResolver, store *cache.Store, cfg config.DownloadsConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		resolver:   resolver,
		store:      store,
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		jobs:       make(map[string]*Job),
		pending:    make(chan *Job, 256),
		events:     make(chan Event, 64),
		ctx:        ctx,
		cancel:     cancel,
	}

	m.g = &errgroup.Group{}
	for i := 0; i < cfg.Concurrency; i++ {
		m.g.Go(m.worker)
	}
	return m
}

// Events returns the channel terminal job outcomes are announced on.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Request enqueues a fetch for trackID. It is idempotent: a cached track or
// one with an active job is a no-op.
func (m *Manager) Request(trackID string) {
	if m.store.Contains(trackID) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, active := m.jobs[trackID]; active {
		return
	}
	job := &Job{ID: uuid.NewString(), TrackID: trackID, Status: StatusPending}
	m.jobs[trackID] = job

	select {
	case m.pending <- job:
		m.logger.Debug("queued download", "trackID", trackID, "jobID", job.ID)
	default:
		// Queue saturated; drop the request rather than block the caller.
		delete(m.jobs, trackID)
		m.logger.Warn("download queue full, dropping request", "trackID", trackID)
	}
}

// Cancel aborts the active job for trackID, if any. The job's write handle
// is discarded and a Canceled event is emitted.
func (m *Manager) Cancel(trackID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[trackID]
	if !ok {
		return
	}
	job.canceled = true
	if job.cancel != nil {
		job.cancel()
	}
}

// Close stops the workers and waits for them to drain.
func (m *Manager) Close() error {
	m.cancel()
	err := m.g.Wait()
	close(m.events)
	return err
}

func (m *Manager) worker() error {
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case job := <-m.pending:
			m.run(job)
		}
	}
}

func (m *Manager) run(job *Job) {
	jobCtx, jobCancel := context.WithCancel(m.ctx)
	defer jobCancel()

	m.mu.Lock()
	if job.canceled {
		delete(m.jobs, job.TrackID)
		m.mu.Unlock()
		job.Status = StatusCanceled
		m.emit(Event{Type: EventCanceled, TrackID: job.TrackID})
		return
	}
	job.Status = StatusInFlight
	job.cancel = jobCancel
	m.mu.Unlock()

	var lastErr error
	for job.Attempts = 1; job.Attempts <= m.cfg.MaxAttempts; job.Attempts++ {
		path, err := m.fetchOnce(jobCtx, job.TrackID)
		if err == nil {
			m.finish(job, StatusDone)
			title, artist := probeTags(path)
			m.logger.Info("download complete", "trackID", job.TrackID, "attempts", job.Attempts)
			m.emit(Event{Type: EventCompleted, TrackID: job.TrackID, Path: path, Title: title, Artist: artist})
			return
		}
		if jobCtx.Err() != nil {
			m.finish(job, StatusCanceled)
			m.logger.Info("download canceled", "trackID", job.TrackID)
			m.emit(Event{Type: EventCanceled, TrackID: job.TrackID})
			return
		}
		lastErr = err
		m.logger.Warn("download attempt failed", "trackID", job.TrackID, "attempt", job.Attempts, "error", err)
		if job.Attempts < m.cfg.MaxAttempts {
			m.waitForRetry(jobCtx, job.Attempts)
		}
	}

	m.finish(job, StatusFailed)
	err := domain.NewPlayerError("fetch", job.TrackID, fmt.Errorf("%w after %d attempts: %v", domain.ErrDownloadFailed, m.cfg.MaxAttempts, lastErr))
	m.logger.Error("download failed permanently", "trackID", job.TrackID, "error", lastErr)
	m.emit(Event{Type: EventFailed, TrackID: job.TrackID, Err: err})
}

func (m *Manager) finish(job *Job, status Status) {
	m.mu.Lock()
	job.Status = status
	delete(m.jobs, job.TrackID)
	m.mu.Unlock()
}

// fetchOnce resolves the stream URL and streams it into a cache write
// handle. Any failure leaves no trace under the track's final name.
func (m *Manager) fetchOnce(ctx context.Context, trackID string) (string, error) {
	streamURL, err := m.resolver.ResolveStreamURL(ctx, trackID)
	if err != nil {
		return "", fmt.Errorf("resolve: %w", err)
	}

	w, err := m.store.BeginWrite(trackID, extFromURL(streamURL))
	if err != nil {
		return "", err
	}
	defer w.Discard()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	if err := w.Commit(); err != nil {
		return "", err
	}

	path, ok := m.store.Lookup(trackID)
	if !ok {
		return "", fmt.Errorf("fetch: committed entry missing for %s", trackID)
	}
	return path, nil
}

// waitForRetry sleeps the bounded exponential cooldown, aborting on cancel.
func (m *Manager) waitForRetry(ctx context.Context, attempt int) {
	cooldown := time.Duration(float64(m.cfg.RetryCooldown) * math.Pow(m.cfg.RetryExponent, float64(attempt-1)))
	select {
	case <-ctx.Done():
	case <-time.After(cooldown):
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

// probeTags reads display metadata out of a finished download. Failures are
// fine; the catalog metadata stands.
func probeTags(path string) (title, artist string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()
	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}
	return meta.Title(), meta.Artist()
}

func extFromURL(streamURL string) string {
	u, err := url.Parse(streamURL)
	if err != nil {
		return ".mp3"
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return ".mp3"
}
