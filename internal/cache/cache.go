package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// entryMeta is the bbolt index row for one cached track.
type entryMeta struct {
	File       string `json:"file"` // Payload file name, relative to the cache dir
	Size       int64  `json:"size"`
	Completed  bool   `json:"completed"`
	AccessedAt int64  `json:"accessed_at"` // Unix nanos of last lookup
}

// Store is a disk-backed key->file store for fetched audio with a bbolt
// metadata index. Payload files only become visible under their final name
// after an atomic rename; a row without a completed flag or without its
// payload file is a cache miss, never an error.
type Store struct {
	dir    string
	db     *bolt.DB
	logger *slog.Logger

	mu   sync.Mutex
	pins map[string]int // Tracks currently open for playback; never evicted
}

// Open opens (or creates) the cache at dir and validates the index against
// the files actually on disk.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, "index.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open index: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}

	s := &Store{dir: dir, db: db, logger: logger, pins: make(map[string]int)}
	if err := s.sweep(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sweep drops index rows whose payload is missing or incomplete and removes
// temp files left over from interrupted writes.
func (s *Store) sweep() error {
	var stale []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var meta entryMeta
			if json.Unmarshal(v, &meta) != nil || !meta.Completed {
				stale = append(stale, string(k))
				return nil
			}
			if _, err := os.Stat(filepath.Join(s.dir, meta.File)); err != nil {
				stale = append(stale, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("cache: sweep: %w", err)
	}
	for _, id := range stale {
		s.logger.Warn("dropping stale cache entry", "trackID", id)
		if err := s.remove(id); err != nil {
			return err
		}
	}

	tmps, _ := filepath.Glob(filepath.Join(s.dir, "*.tmp"))
	for _, tmp := range tmps {
		os.Remove(tmp)
	}
	return nil
}

// Close closes the index database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the payload path for a completed entry and touches its
// last-access time. A miss returns ok=false.
func (s *Store) Lookup(trackID string) (string, bool) {
	var meta entryMeta
	if !s.getMeta(trackID, &meta) || !meta.Completed {
		return "", false
	}
	path := filepath.Join(s.dir, meta.File)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}

	meta.AccessedAt = time.Now().UnixNano()
	if err := s.putMeta(trackID, meta); err != nil {
		s.logger.Error("failed to touch cache entry", "trackID", trackID, "error", err)
	}
	return path, true
}

// Contains reports whether a completed entry exists without touching it.
func (s *Store) Contains(trackID string) bool {
	var meta entryMeta
	if !s.getMeta(trackID, &meta) || !meta.Completed {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dir, meta.File))
	return err == nil
}

// BeginWrite starts a write for trackID. Bytes go to a temporary file; the
// entry only becomes visible after Commit renames it into place. ext is the
// payload file extension including the dot (".mp3").
func (s *Store) BeginWrite(trackID, ext string) (*WriteHandle, error) {
	final := trackID + ext
	tmp, err := os.CreateTemp(s.dir, trackID+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("cache: begin write for %s: %w", trackID, err)
	}
	return &WriteHandle{store: s, trackID: trackID, file: tmp, finalName: final}, nil
}

// WriteHandle is a scoped cache write. Exactly one of Commit or Discard must
// be called; Discard after Commit is a no-op so it is safe to defer.
type WriteHandle struct {
	store     *Store
	trackID   string
	file      *os.File
	finalName string
	written   int64
	done      bool
}

func (w *WriteHandle) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("cache: write %s: %w", w.trackID, err)
	}
	return n, nil
}

// Commit publishes the entry: fsync, atomic rename, index row.
func (w *WriteHandle) Commit() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.file.Sync(); err != nil {
		w.cleanup()
		return fmt.Errorf("cache: sync %s: %w", w.trackID, err)
	}
	if err := w.file.Close(); err != nil {
		w.cleanup()
		return fmt.Errorf("cache: close %s: %w", w.trackID, err)
	}
	finalPath := filepath.Join(w.store.dir, w.finalName)
	if err := os.Rename(w.file.Name(), finalPath); err != nil {
		w.cleanup()
		return fmt.Errorf("cache: publish %s: %w", w.trackID, err)
	}

	meta := entryMeta{
		File:       w.finalName,
		Size:       w.written,
		Completed:  true,
		AccessedAt: time.Now().UnixNano(),
	}
	if err := w.store.putMeta(w.trackID, meta); err != nil {
		os.Remove(finalPath)
		return err
	}
	return nil
}

// Discard abandons the write and removes the temporary file.
func (w *WriteHandle) Discard() {
	if w.done {
		return
	}
	w.done = true
	w.cleanup()
}

func (w *WriteHandle) cleanup() {
	w.file.Close()
	os.Remove(w.file.Name())
}

// Pin marks a track as open for playback, excluding it from eviction.
func (s *Store) Pin(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[trackID]++
}

// Unpin releases a playback pin.
func (s *Store) Unpin(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pins[trackID] <= 1 {
		delete(s.pins, trackID)
	} else {
		s.pins[trackID]--
	}
}

func (s *Store) pinned(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[trackID] > 0
}

// TotalBytes returns the summed size of all completed entries.
func (s *Store) TotalBytes() (int64, error) {
	var total int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var meta entryMeta
			if json.Unmarshal(v, &meta) == nil && meta.Completed {
				total += meta.Size
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("cache: total: %w", err)
	}
	return total, nil
}

// EvictIfOverBudget removes entries in oldest-last-access order until the
// cache fits maxBytes. Pinned entries are never removed.
func (s *Store) EvictIfOverBudget(maxBytes int64) error {
	total, err := s.TotalBytes()
	if err != nil {
		return err
	}
	if total <= maxBytes {
		return nil
	}

	type candidate struct {
		id   string
		meta entryMeta
	}
	var candidates []candidate
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var meta entryMeta
			if json.Unmarshal(v, &meta) == nil && meta.Completed {
				candidates = append(candidates, candidate{id: string(k), meta: meta})
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("cache: evict scan: %w", err)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].meta.AccessedAt < candidates[j].meta.AccessedAt
	})

	for _, c := range candidates {
		if total <= maxBytes {
			break
		}
		if s.pinned(c.id) {
			continue
		}
		if err := s.remove(c.id); err != nil {
			return err
		}
		total -= c.meta.Size
		s.logger.Info("evicted cache entry", "trackID", c.id, "size", c.meta.Size)
	}
	return nil
}

// remove deletes the index row and payload file for trackID.
func (s *Store) remove(trackID string) error {
	var meta entryMeta
	hasMeta := s.getMeta(trackID, &meta)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(trackID))
	})
	if err != nil {
		return fmt.Errorf("cache: remove %s: %w", trackID, err)
	}
	if hasMeta && meta.File != "" {
		if err := os.Remove(filepath.Join(s.dir, meta.File)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cache: remove payload %s: %w", trackID, err)
		}
	}
	return nil
}

func (s *Store) getMeta(trackID string, dest *entryMeta) bool {
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(trackID)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *Store) putMeta(trackID string, meta entryMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("cache: encode meta %s: %w", trackID, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(trackID), data)
	})
	if err != nil {
		return fmt.Errorf("cache: index %s: %w", trackID, err)
	}
	return nil
}
