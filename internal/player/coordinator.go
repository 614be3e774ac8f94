package player

import (
	"log/slog"
	"sync"
	"time"

	"github.com/calder/warble/internal/domain"
	"github.com/calder/warble/internal/download"
	"github.com/calder/warble/internal/playback"
	"github.com/calder/warble/internal/queue"
)

// Fraction of a track after which the next one is prefetched.
const lookAheadThreshold = 0.85

// engine is the slice of the playback engine the coordinator drives.
type engine interface {
	Load(track domain.Track, path string)
	Pause()
	Resume()
	Stop()
	Seek(pos time.Duration)
	SetVolume(level float64)
	Reset()
	Events() <-chan playback.Event
}

// downloader is the slice of the download manager the coordinator drives.
type downloader interface {
	Request(trackID string)
	Cancel(trackID string)
	Events() <-chan download.Event
}

// trackStore is what the coordinator needs from the cache.
type trackStore interface {
	Lookup(trackID string) (string, bool)
	Contains(trackID string) bool
	Pin(trackID string)
	Unpin(trackID string)
	EvictIfOverBudget(maxBytes int64) error
}

// Coordinator is the single owner of the queue and the only place playback,
// download, and user events meet. All state below the channels is touched
// exclusively by the run loop, so none of it needs locking.
type Coordinator struct {
	store     trackStore
	downloads downloader
	engine    engine
	budget    int64
	logger    *slog.Logger

	commands chan Command

	subMu sync.Mutex
	subs  []chan Snapshot

	queue    *queue.Queue
	playlist string
	state    playback.State
	position time.Duration
	volume   float64

	// awaiting is the track id whose download must complete before playback
	// can start; "" when the current track is already on disk.
	awaiting    string
	downloading map[string]bool
	statuses    map[string]EntryStatus
	pinnedID    string
	failStreak  int
	prefetched  bool
}

// New creates a coordinator. budget is the cache size ceiling enforced after
// each completed download; volume is the starting volume level.
func New(store trackStore, downloads downloader, eng engine, budget int64, volume float64, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:       store,
		downloads:   downloads,
		engine:      eng,
		budget:      budget,
		logger:      logger,
		commands:    make(chan Command, 32),
		queue:       queue.New(),
		volume:      clampVolume(volume),
		downloading: make(map[string]bool),
		statuses:    make(map[string]EntryStatus),
	}
}

// Start runs the coordinator loop until done is closed.
func (c *Coordinator) Start(done <-chan struct{}) {
	go c.run(done)
}

// Subscribe registers a snapshot channel. Publishes never block: when a
// subscriber lags, the oldest pending snapshot is replaced by the newest.
func (c *Coordinator) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	c.subMu.Lock()
	c.subs = append(c.subs, ch)
	c.subMu.Unlock()
	return ch
}

// Dispatch posts a command to the coordinator loop.
func (c *Coordinator) Dispatch(cmd Command) {
	c.commands <- cmd
}

// SetPlaylist replaces the queue contents.
func (c *Coordinator) SetPlaylist(name string, tracks []domain.Track) {
	c.Dispatch(Command{Type: CmdSetPlaylist, Playlist: name, Tracks: tracks})
}

// Play starts playback of the track at the given queue index.
func (c *Coordinator) Play(index int) { c.Dispatch(Command{Type: CmdPlayIndex, Index: index}) }

// TogglePause pauses playing audio or resumes paused audio
func (c *Coordinator) TogglePause() { c.Dispatch(Command{Type: CmdTogglePause}) }

// Next skips to the following track
func (c *Coordinator) Next() { c.Dispatch(Command{Type: CmdNext}) }

// Previous returns to the preceding track
func (c *Coordinator) Previous() { c.Dispatch(Command{Type: CmdPrevious}) }

// Stop halts playback and releases the audio device
func (c *Coordinator) Stop() { c.Dispatch(Command{Type: CmdStop}) }

// SeekBy moves the playback position by a signed offset
func (c *Coordinator) SeekBy(delta time.Duration) { c.Dispatch(Command{Type: CmdSeekBy, Seek: delta}) }

// SetRepeat sets the queue repeat mode
func (c *Coordinator) SetRepeat(mode domain.RepeatMode) {
	c.Dispatch(Command{Type: CmdSetRepeat, Repeat: mode})
}

// ToggleShuffle flips shuffle mode
func (c *Coordinator) ToggleShuffle() { c.Dispatch(Command{Type: CmdToggleShuffle}) }

// SetVolume sets the volume level, clamped to 0.0-1.0
func (c *Coordinator) SetVolume(level float64) {
	c.Dispatch(Command{Type: CmdSetVolume, Volume: level})
}

// AdjustVolume moves the volume level by a signed delta
func (c *Coordinator) AdjustVolume(delta float64) {
	c.Dispatch(Command{Type: CmdVolumeBy, Volume: delta})
}

func (c *Coordinator) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case cmd := <-c.commands:
			c.handleCommand(cmd)
		case ev := <-c.downloads.Events():
			c.handleDownload(ev)
		case ev := <-c.engine.Events():
			c.handleEngine(ev)
		}
	}
}

func (c *Coordinator) handleCommand(cmd Command) {
	switch cmd.Type {
	case CmdSetPlaylist:
		c.cancelAwaiting()
		c.playlist = cmd.Playlist
		c.queue.SetTracks(cmd.Tracks)
		c.statuses = make(map[string]EntryStatus, len(cmd.Tracks))
		for _, t := range cmd.Tracks {
			if c.store.Contains(t.ID) {
				c.statuses[t.ID] = EntryCached
			}
		}
		c.publish()

	case CmdPlayIndex:
		if _, err := c.queue.JumpTo(cmd.Index); err != nil {
			c.logger.Warn("play request out of bounds", "index", cmd.Index)
			return
		}
		c.playCurrent()

	case CmdTogglePause:
		switch c.state {
		case playback.StatePlaying:
			c.engine.Pause()
		case playback.StatePaused:
			c.engine.Resume()
		default:
			if _, ok := c.queue.Current(); ok && c.awaiting == "" {
				c.playCurrent()
			}
		}

	case CmdNext:
		c.skip(queue.Next)

	case CmdPrevious:
		c.skip(queue.Previous)

	case CmdStop:
		c.stopPlayback()

	case CmdSeekBy:
		c.engine.Seek(c.position + cmd.Seek)

	case CmdSetRepeat:
		c.queue.SetRepeat(cmd.Repeat)
		c.prefetched = false
		c.publish()

	case CmdToggleShuffle:
		c.queue.SetShuffle(!c.queue.Shuffle())
		c.prefetched = false
		c.publish()

	case CmdSetVolume:
		c.applyVolume(cmd.Volume)

	case CmdVolumeBy:
		c.applyVolume(c.volume + cmd.Volume)
	}
}

func (c *Coordinator) handleDownload(ev download.Event) {
	delete(c.downloading, ev.TrackID)

	switch ev.Type {
	case download.EventCompleted:
		c.statuses[ev.TrackID] = EntryCached
		if ev.Title != "" || ev.Artist != "" {
			c.queue.SetMetadata(ev.TrackID, ev.Title, ev.Artist)
		}
		c.enforceBudget()
		if c.awaiting == ev.TrackID {
			c.awaiting = ""
			cur, ok := c.queue.Current()
			if ok && cur.ID == ev.TrackID {
				c.loadCached(cur)
			}
		}

	case download.EventFailed:
		c.statuses[ev.TrackID] = EntryFailed
		c.logger.Warn("download failed", "trackID", ev.TrackID, "error", ev.Err)
		if c.awaiting == ev.TrackID {
			c.awaiting = ""
			c.advanceAfterFailure()
		}

	case download.EventCanceled:
		if c.statuses[ev.TrackID] == EntryDownloading {
			delete(c.statuses, ev.TrackID)
		}
		if c.awaiting == ev.TrackID {
			c.awaiting = ""
		}
	}
	c.publish()
}

func (c *Coordinator) handleEngine(ev playback.Event) {
	switch ev.Type {
	case playback.EventStateChanged:
		c.state = ev.State
		if ev.State == playback.StatePlaying {
			c.failStreak = 0
		}

	case playback.EventProgress:
		c.position = ev.Position
		c.maybePrefetch()

	case playback.EventTrackFinished:
		c.position = 0
		if _, ok := c.queue.Advance(queue.Next); ok {
			c.playCurrent()
			return
		}
		c.setPinned("")

	case playback.EventFailed:
		c.statuses[ev.TrackID] = EntryFailed
		c.logger.Warn("playback failed, skipping", "trackID", ev.TrackID, "error", ev.Err)
		c.engine.Reset()
		c.advanceAfterFailure()
		return
	}
	c.publish()
}

// playCurrent starts or requests the track at the queue's current position.
// A pending fetch for a different track is canceled first so navigating fast
// never stacks up stale downloads.
func (c *Coordinator) playCurrent() {
	cur, ok := c.queue.Current()
	if !ok {
		return
	}
	c.prefetched = false
	c.position = 0
	if c.awaiting != "" && c.awaiting != cur.ID {
		c.downloads.Cancel(c.awaiting)
		c.awaiting = ""
	}
	if c.state == playback.StateError {
		c.engine.Reset()
	}

	if _, cached := c.store.Lookup(cur.ID); cached {
		c.awaiting = ""
		c.loadCached(cur)
	} else if c.awaiting != cur.ID {
		c.awaiting = cur.ID
		c.requestDownload(cur.ID)
	}
	c.publish()
}

func (c *Coordinator) loadCached(t domain.Track) {
	path, ok := c.store.Lookup(t.ID)
	if !ok {
		// Evicted between completion and load; fetch it again.
		delete(c.statuses, t.ID)
		c.awaiting = t.ID
		c.requestDownload(t.ID)
		return
	}
	c.statuses[t.ID] = EntryCached
	c.setPinned(t.ID)
	c.engine.Load(t, path)
}

func (c *Coordinator) requestDownload(id string) {
	c.downloading[id] = true
	c.statuses[id] = EntryDownloading
	c.downloads.Request(id)
}

func (c *Coordinator) skip(dir queue.Direction) {
	if _, ok := c.queue.Advance(dir); !ok {
		c.stopPlayback()
		return
	}
	c.playCurrent()
}

// advanceAfterFailure skips past a track that could not be fetched or played.
// The streak counter keeps a fully broken queue from spinning forever under
// Repeat=All.
func (c *Coordinator) advanceAfterFailure() {
	c.failStreak++
	if c.failStreak >= c.queue.Len() {
		c.logger.Warn("every queued track failed, stopping")
		c.stopPlayback()
		return
	}
	c.skip(queue.Next)
}

func (c *Coordinator) stopPlayback() {
	c.cancelAwaiting()
	c.engine.Stop()
	c.setPinned("")
	c.position = 0
	c.failStreak = 0
	c.publish()
}

func (c *Coordinator) cancelAwaiting() {
	if c.awaiting == "" {
		return
	}
	c.downloads.Cancel(c.awaiting)
	c.awaiting = ""
}

// maybePrefetch requests the upcoming track once playback is most of the way
// through the current one, at most once per track.
func (c *Coordinator) maybePrefetch() {
	if c.prefetched {
		return
	}
	cur, ok := c.queue.Current()
	if !ok || cur.Duration <= 0 {
		return
	}
	if c.position < time.Duration(float64(cur.Duration)*lookAheadThreshold) {
		return
	}
	c.prefetched = true

	next, ok := c.queue.PeekNext()
	if !ok || next.ID == cur.ID {
		return
	}
	if c.downloading[next.ID] || c.statuses[next.ID] == EntryFailed {
		return
	}
	if c.store.Contains(next.ID) {
		c.statuses[next.ID] = EntryCached
		return
	}
	c.logger.Debug("prefetching next track", "trackID", next.ID)
	c.requestDownload(next.ID)
}

// enforceBudget evicts least-recently-used cache entries after a download
// lands, then refreshes any statuses the eviction invalidated.
func (c *Coordinator) enforceBudget() {
	if c.budget <= 0 {
		return
	}
	if err := c.store.EvictIfOverBudget(c.budget); err != nil {
		c.logger.Warn("cache eviction failed", "error", err)
		return
	}
	for id, st := range c.statuses {
		if st == EntryCached && !c.store.Contains(id) {
			delete(c.statuses, id)
		}
	}
}

func (c *Coordinator) applyVolume(level float64) {
	c.volume = clampVolume(level)
	c.engine.SetVolume(c.volume)
	c.publish()
}

func clampVolume(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

func (c *Coordinator) setPinned(id string) {
	if c.pinnedID == id {
		return
	}
	if c.pinnedID != "" {
		c.store.Unpin(c.pinnedID)
	}
	if id != "" {
		c.store.Pin(id)
	}
	c.pinnedID = id
}

func (c *Coordinator) snapshot() Snapshot {
	tracks := c.queue.Tracks()
	entries := make([]QueueEntry, len(tracks))
	for i, t := range tracks {
		entries[i] = QueueEntry{Track: t, Status: c.statuses[t.ID]}
	}

	state := c.state
	if c.awaiting != "" {
		state = playback.StateLoading
	}
	cur, hasCur := c.queue.Current()
	return Snapshot{
		Playlist: c.playlist,
		State:    state,
		Track:    cur,
		HasTrack: hasCur,
		Position: c.position,
		Volume:   c.volume,
		Repeat:   c.queue.Repeat(),
		Shuffle:  c.queue.Shuffle(),
		Index:    c.queue.Index(),
		Entries:  entries,
	}
}

func (c *Coordinator) publish() {
	snap := c.snapshot()
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Replace the oldest pending snapshot so a slow subscriber
			// always sees the newest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
