package playback

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"

	"github.com/calder/warble/internal/config"
	"github.com/calder/warble/internal/domain"
)

// State is the playback engine's state machine.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateError
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// EventType classifies engine events.
type EventType int

const (
	EventStateChanged EventType = iota
	EventProgress
	EventTrackFinished
	EventFailed
)

// Event is an engine notification delivered to the coordinator.
type Event struct {
	Type     EventType
	TrackID  string
	State    State
	Position time.Duration
	Err      error
}

type commandType int

const (
	cmdLoad commandType = iota
	cmdPause
	cmdResume
	cmdStop
	cmdSeek
	cmdSetVolume
	cmdReset
)

type command struct {
	typ    commandType
	track  domain.Track
	path   string
	seek   time.Duration
	volume float64
}

// Engine decodes cached audio and drives the output device from its own
// goroutine; it never blocks on network or disk beyond the prebuffer fill.
type Engine struct {
	output Output
	cfg    config.PlaybackConfig
	logger *slog.Logger

	commands chan command
	events   chan Event
	finished chan int // load generation of the stream that ended

	mu    sync.RWMutex
	state State
	track domain.Track

	// Decode/output resources, owned by the run loop.
	streamer    *bufferedStreamer
	ctrl        *beep.Ctrl
	volume      *effects.Volume
	format      beep.Format
	volumeLevel float64
	seeking     bool
	generation  int
}

// NewEngine creates a playback engine driving the given output device.
func NewEngine(output Output, cfg config.PlaybackConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prebuffer <= 0 {
		cfg.Prebuffer = 200 * time.Millisecond
	}
	return &Engine{
		output:      output,
		cfg:         cfg,
		logger:      logger,
		commands:    make(chan command, 16),
		events:      make(chan Event, 32),
		finished:    make(chan int, 4),
		state:       StateIdle,
		volumeLevel: cfg.Volume,
	}
}

// Events returns the engine's event channel.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// CurrentTrack returns the track the engine last loaded.
func (e *Engine) CurrentTrack() domain.Track {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.track
}

// Start runs the engine loop until done is closed.
func (e *Engine) Start(done <-chan struct{}) {
	go e.run(done)
}

// Load begins playback of a cached file; the engine passes through Loading
// while the prebuffer fills.
func (e *Engine) Load(track domain.Track, path string) {
	e.commands <- command{typ: cmdLoad, track: track, path: path}
}

// Pause pauses playback without losing position
func (e *Engine) Pause() { e.commands <- command{typ: cmdPause} }

// Resume continues paused playback
func (e *Engine) Resume() { e.commands <- command{typ: cmdResume} }

// Stop releases the decoder and device and returns to Idle
func (e *Engine) Stop() { e.commands <- command{typ: cmdStop} }

// Seek repositions the decode cursor, clamped to the track bounds
func (e *Engine) Seek(pos time.Duration) { e.commands <- command{typ: cmdSeek, seek: pos} }

// SetVolume sets the output volume, clamped to 0.0-1.0
func (e *Engine) SetVolume(level float64) { e.commands <- command{typ: cmdSetVolume, volume: level} }

// Reset leaves the Error state. It is the only way out of it.
func (e *Engine) Reset() { e.commands <- command{typ: cmdReset} }

func (e *Engine) run(done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			e.release()
			return

		case cmd := <-e.commands:
			e.handle(cmd)

		case gen := <-e.finished:
			e.handleFinished(gen)

		case <-ticker.C:
			e.publishProgress()
		}
	}
}

func (e *Engine) handle(cmd command) {
	switch cmd.typ {
	case cmdLoad:
		if e.State() == StateError {
			e.logger.Warn("load ignored while in error state", "trackID", cmd.track.ID)
			return
		}
		e.load(cmd.track, cmd.path)

	case cmdPause:
		if e.State() != StatePlaying || e.ctrl == nil {
			return
		}
		e.output.Lock()
		e.ctrl.Paused = true
		e.output.Unlock()
		e.setState(StatePaused)

	case cmdResume:
		if e.State() != StatePaused || e.ctrl == nil {
			return
		}
		e.output.Lock()
		e.ctrl.Paused = false
		e.output.Unlock()
		e.setState(StatePlaying)

	case cmdStop:
		if e.State() == StateIdle || e.State() == StateError {
			return
		}
		e.release()
		e.setState(StateIdle)

	case cmdSeek:
		e.seek(cmd.seek)

	case cmdSetVolume:
		level := cmd.volume
		if level < 0 {
			level = 0
		} else if level > 1 {
			level = 1
		}
		e.mu.Lock()
		e.volumeLevel = level
		e.mu.Unlock()
		if e.volume != nil {
			e.output.Lock()
			e.volume.Volume = level*2 - 1
			e.volume.Silent = level == 0
			e.output.Unlock()
		}

	case cmdReset:
		if e.State() != StateError {
			return
		}
		e.setState(StateIdle)
	}
}

// load releases the previous stream and starts a new one. Any failure puts
// the engine in Error for this track only; the device stays usable for the
// next load after a Reset.
func (e *Engine) load(track domain.Track, path string) {
	e.release()

	e.mu.Lock()
	e.track = track
	e.mu.Unlock()
	e.setState(StateLoading)

	f, err := os.Open(path)
	if err != nil {
		e.fail("open", track.ID, err)
		return
	}
	src, format, err := decode(f, path)
	if err != nil {
		f.Close()
		e.fail("decode", track.ID, err)
		return
	}

	buffered := &bufferedStreamer{src: src}
	if err := buffered.fill(format.SampleRate.N(e.cfg.Prebuffer)); err != nil {
		src.Close()
		e.fail("prebuffer", track.ID, err)
		return
	}

	if err := e.output.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		src.Close()
		e.fail("output", track.ID, err)
		return
	}

	e.streamer = buffered
	e.format = format
	e.ctrl = &beep.Ctrl{Streamer: buffered}
	e.volume = &effects.Volume{
		Streamer: e.ctrl,
		Base:     2,
		Volume:   e.volumeLevel*2 - 1,
		Silent:   e.volumeLevel == 0,
	}

	e.generation++
	gen := e.generation
	e.output.Play(beep.Seq(e.volume, beep.Callback(func() {
		select {
		case e.finished <- gen:
		default:
		}
	})))

	e.logger.Info("playback started", "trackID", track.ID, "prebuffer", e.cfg.Prebuffer)
	e.setState(StatePlaying)
	e.emit(Event{Type: EventProgress, TrackID: track.ID, Position: 0})
}

func (e *Engine) seek(pos time.Duration) {
	e.mu.RLock()
	state := e.state
	track := e.track
	e.mu.RUnlock()
	if (state != StatePlaying && state != StatePaused) || e.streamer == nil {
		return
	}

	if pos < 0 {
		pos = 0
	}
	if track.Duration > 0 && pos > track.Duration {
		pos = track.Duration
	}

	e.mu.Lock()
	e.seeking = true
	e.mu.Unlock()

	e.output.Lock()
	n := e.format.SampleRate.N(pos)
	if total := e.streamer.Len(); total > 0 && n > total {
		n = total
	}
	err := e.streamer.Seek(n)
	e.output.Unlock()

	e.mu.Lock()
	e.seeking = false
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("seek failed", "trackID", track.ID, "error", err)
		return
	}
	e.emit(Event{Type: EventProgress, TrackID: track.ID, Position: pos})
}

func (e *Engine) handleFinished(gen int) {
	if gen != e.generation {
		return // A stale callback from a stream already replaced.
	}
	e.mu.RLock()
	seeking := e.seeking
	track := e.track
	e.mu.RUnlock()
	if seeking {
		return
	}

	e.release()
	e.setState(StateIdle)
	e.logger.Info("track finished", "trackID", track.ID)
	e.emit(Event{Type: EventTrackFinished, TrackID: track.ID})
}

func (e *Engine) publishProgress() {
	e.mu.RLock()
	state := e.state
	track := e.track
	e.mu.RUnlock()
	if state != StatePlaying || e.streamer == nil {
		return
	}

	e.output.Lock()
	n := e.streamer.Position()
	e.output.Unlock()
	e.emit(Event{Type: EventProgress, TrackID: track.ID, Position: e.format.SampleRate.D(n)})
}

// fail releases resources and enters the Error state for the current track.
func (e *Engine) fail(op, trackID string, err error) {
	e.release()
	werr := domain.NewPlayerError(op, trackID, err)
	e.logger.Error("playback failed", "op", op, "trackID", trackID, "error", err)

	e.mu.Lock()
	e.state = StateError
	e.mu.Unlock()
	e.emit(Event{Type: EventFailed, TrackID: trackID, Err: werr})
	e.emit(Event{Type: EventStateChanged, TrackID: trackID, State: StateError})
}

// release clears the device and closes decoder resources. Safe on every
// exit path, including error paths.
func (e *Engine) release() {
	e.output.Clear()
	if e.streamer != nil {
		e.streamer.Close()
		e.streamer = nil
	}
	e.ctrl = nil
	e.volume = nil
	e.generation++ // Invalidate any in-flight finish callback.
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	track := e.track
	e.mu.Unlock()
	e.emit(Event{Type: EventStateChanged, TrackID: track.ID, State: s})
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		// Progress updates may be dropped under backpressure; the next tick
		// carries fresher data anyway.
		if ev.Type != EventProgress {
			e.events <- ev
		}
	}
}

// VolumeLevel returns the current volume setting.
func (e *Engine) VolumeLevel() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.volumeLevel
}
