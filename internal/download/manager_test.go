package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calder/warble/internal/cache"
	"github.com/calder/warble/internal/config"
	"github.com/calder/warble/internal/domain"
	"github.com/calder/warble/internal/log"
)

// fakeResolver maps track ids to URLs, optionally failing.
type fakeResolver struct {
	urls map[string]string
	err  error
}

func (r *fakeResolver) ResolveStreamURL(_ context.Context, trackID string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	u, ok := r.urls[trackID]
	if !ok {
		return "", domain.ErrTrackNotFound
	}
	return u, nil
}

func testConfig() config.DownloadsConfig {
	return config.DownloadsConfig{
		Concurrency:   2,
		MaxAttempts:   3,
		RetryCooldown: time.Millisecond,
		RetryExponent: 2.0,
	}
}

func openStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(t.TempDir(), log.NullLogger())
	if err != nil {
		t.Fatalf("cache.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for download event")
		return Event{}
	}
}

func TestDownloadCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-payload"))
	}))
	defer srv.Close()

	store := openStore(t)
	m := NewManager(&fakeResolver{urls: map[string]string{"t1": srv.URL + "/t1.mp3"}}, store, testConfig(), log.NullLogger())
	defer m.Close()

	m.Request("t1")

	ev := waitEvent(t, m.Events())
	if ev.Type != EventCompleted {
		t.Fatalf("expected completion, got %+v", ev)
	}
	if ev.TrackID != "t1" || ev.Path == "" {
		t.Errorf("bad completion event: %+v", ev)
	}
	if !store.Contains("t1") {
		t.Error("completed download not visible in cache")
	}
}

func TestNoDuplicateConcurrentDownloads(t *testing.T) {
	var fetches int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		<-release
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	store := openStore(t)
	m := NewManager(&fakeResolver{urls: map[string]string{"t1": srv.URL + "/t1.mp3"}}, store, testConfig(), log.NullLogger())
	defer m.Close()

	for i := 0; i < 10; i++ {
		m.Request("t1")
	}
	// Give the pool time to start whatever it is going to start.
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected exactly 1 in-flight fetch for t1, got %d", n)
	}
	close(release)

	ev := waitEvent(t, m.Events())
	if ev.Type != EventCompleted {
		t.Fatalf("expected completion, got %+v", ev)
	}
}

func TestCachedTrackNeverRefetched(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	store := openStore(t)
	m := NewManager(&fakeResolver{urls: map[string]string{"t1": srv.URL + "/t1.mp3"}}, store, testConfig(), log.NullLogger())
	defer m.Close()

	m.Request("t1")
	waitEvent(t, m.Events())

	// Track is now cached; further requests must not hit the network.
	m.Request("t1")
	m.Request("t1")
	time.Sleep(100 * time.Millisecond)

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("cached track was refetched: %d fetches", n)
	}
}

func TestRetriesThenFails(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := openStore(t)
	m := NewManager(&fakeResolver{urls: map[string]string{"t1": srv.URL + "/t1.mp3"}}, store, testConfig(), log.NullLogger())
	defer m.Close()

	m.Request("t1")

	ev := waitEvent(t, m.Events())
	if ev.Type != EventFailed {
		t.Fatalf("expected failure event, got %+v", ev)
	}
	if !errors.Is(ev.Err, domain.ErrDownloadFailed) {
		t.Errorf("expected ErrDownloadFailed, got %v", ev.Err)
	}
	if n := atomic.LoadInt32(&fetches); n != 3 {
		t.Errorf("expected exactly max_attempts=3 fetches, got %d", n)
	}
	if store.Contains("t1") {
		t.Error("failed download must not be cached")
	}

	// No automatic retry after permanent failure.
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&fetches); n != 3 {
		t.Errorf("job retried after permanent failure: %d fetches", n)
	}
}

func TestResolveErrorCountsAsAttempt(t *testing.T) {
	store := openStore(t)
	m := NewManager(&fakeResolver{err: domain.ErrNoStream}, store, testConfig(), log.NullLogger())
	defer m.Close()

	m.Request("t1")

	ev := waitEvent(t, m.Events())
	if ev.Type != EventFailed {
		t.Fatalf("expected failure event, got %+v", ev)
	}
}

func TestCancelInFlight(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		w.Write([]byte("partial"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
	}))
	defer srv.Close()
	defer close(block)

	store := openStore(t)
	m := NewManager(&fakeResolver{urls: map[string]string{"t1": srv.URL + "/t1.mp3"}}, store, testConfig(), log.NullLogger())
	defer m.Close()

	m.Request("t1")
	<-started
	m.Cancel("t1")

	ev := waitEvent(t, m.Events())
	if ev.Type != EventCanceled {
		t.Fatalf("expected cancel event, got %+v", ev)
	}
	if store.Contains("t1") {
		t.Error("canceled download must not leave a cache entry")
	}
}

func TestCancelPendingJob(t *testing.T) {
	store := openStore(t)
	cfg := testConfig()
	cfg.Concurrency = 1

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	m := NewManager(&fakeResolver{urls: map[string]string{
		"busy": srv.URL + "/busy.mp3",
		"t2":   srv.URL + "/t2.mp3",
	}}, store, cfg, log.NullLogger())
	defer m.Close()

	m.Request("busy") // occupies the only worker
	time.Sleep(50 * time.Millisecond)
	m.Request("t2") // stays pending
	m.Cancel("t2")
	close(release)

	var sawT2Canceled bool
	for i := 0; i < 2; i++ {
		ev := waitEvent(t, m.Events())
		if ev.TrackID == "t2" {
			if ev.Type != EventCanceled {
				t.Fatalf("expected t2 canceled, got %+v", ev)
			}
			sawT2Canceled = true
		}
	}
	if !sawT2Canceled {
		t.Error("never saw cancel event for pending job")
	}
}
