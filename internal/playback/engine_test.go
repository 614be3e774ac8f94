package playback

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"

	"github.com/calder/warble/internal/config"
	"github.com/calder/warble/internal/domain"
	"github.com/calder/warble/internal/log"
)

// fakeOutput stands in for the speaker so tests run headless. With drain
// enabled it pulls samples like a real device would.
type fakeOutput struct {
	mu      sync.Mutex
	stream  beep.Streamer
	initErr error
	drain   bool
}

func (o *fakeOutput) Init(beep.SampleRate, int) error { return o.initErr }

func (o *fakeOutput) Play(s beep.Streamer) {
	o.mu.Lock()
	o.stream = s
	o.mu.Unlock()
	if !o.drain {
		return
	}
	go func() {
		buf := make([][2]float64, 512)
		for {
			o.mu.Lock()
			cur := o.stream
			if cur == nil {
				o.mu.Unlock()
				return
			}
			_, ok := cur.Stream(buf)
			o.mu.Unlock()
			if !ok {
				return
			}
		}
	}()
}

func (o *fakeOutput) Clear() {
	o.mu.Lock()
	o.stream = nil
	o.mu.Unlock()
}

func (o *fakeOutput) Lock()   { o.mu.Lock() }
func (o *fakeOutput) Unlock() { o.mu.Unlock() }

func (o *fakeOutput) playing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream != nil
}

// writeWAV generates a PCM WAV file with the given duration at 8kHz mono.
func writeWAV(t *testing.T, dir string, d time.Duration) string {
	t.Helper()
	const sampleRate = 8000
	numSamples := int(float64(sampleRate) * d.Seconds())

	path := filepath.Join(dir, "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav: %v", err)
	}
	defer f.Close()

	dataSize := numSamples * 2 // 16-bit mono
	f.Write([]byte("RIFF"))
	binary.Write(f, binary.LittleEndian, uint32(36+dataSize))
	f.Write([]byte("WAVEfmt "))
	binary.Write(f, binary.LittleEndian, uint32(16))
	binary.Write(f, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(f, binary.LittleEndian, uint16(1)) // mono
	binary.Write(f, binary.LittleEndian, uint32(sampleRate))
	binary.Write(f, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(f, binary.LittleEndian, uint16(2))
	binary.Write(f, binary.LittleEndian, uint16(16))
	f.Write([]byte("data"))
	binary.Write(f, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < numSamples; i++ {
		binary.Write(f, binary.LittleEndian, int16(i%256))
	}
	return path
}

func newTestEngine(t *testing.T, out Output) *Engine {
	t.Helper()
	e := NewEngine(out, config.PlaybackConfig{
		Prebuffer: 50 * time.Millisecond,
		Volume:    0.5,
	}, log.NullLogger())
	done := make(chan struct{})
	e.Start(done)
	t.Cleanup(func() { close(done) })
	return e
}

func waitForState(t *testing.T, events <-chan Event, want State) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventStateChanged && ev.State == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func waitForType(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event type %v", want)
			return Event{}
		}
	}
}

func TestLoadPassesThroughLoadingToPlaying(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(t, out)
	path := writeWAV(t, t.TempDir(), time.Second)

	e.Load(domain.Track{ID: "t1", Duration: time.Second}, path)

	// Loading must be observable before Playing.
	waitForState(t, e.Events(), StateLoading)
	waitForState(t, e.Events(), StatePlaying)

	// The first progress event after a fresh load reports position 0.
	ev := waitForType(t, e.Events(), EventProgress)
	if ev.Position != 0 {
		t.Errorf("expected position 0 after load, got %v", ev.Position)
	}
	if !out.playing() {
		t.Error("output device received no stream")
	}
}

func TestPauseResumeKeepsTrack(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(t, out)
	path := writeWAV(t, t.TempDir(), time.Second)

	e.Load(domain.Track{ID: "t1", Duration: time.Second}, path)
	waitForState(t, e.Events(), StatePlaying)

	e.Pause()
	waitForState(t, e.Events(), StatePaused)
	if e.CurrentTrack().ID != "t1" {
		t.Error("pause lost the current track")
	}

	e.Resume()
	waitForState(t, e.Events(), StatePlaying)
}

func TestStopReleasesDevice(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(t, out)
	path := writeWAV(t, t.TempDir(), time.Second)

	e.Load(domain.Track{ID: "t1", Duration: time.Second}, path)
	waitForState(t, e.Events(), StatePlaying)

	e.Stop()
	waitForState(t, e.Events(), StateIdle)
	if out.playing() {
		t.Error("stop must clear the output device")
	}
}

func TestOpenFailureEntersErrorOnlyResetLeaves(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(t, out)

	e.Load(domain.Track{ID: "t1"}, filepath.Join(t.TempDir(), "missing.mp3"))

	ev := waitForType(t, e.Events(), EventFailed)
	var perr *domain.PlayerError
	if !errors.As(ev.Err, &perr) {
		t.Errorf("expected PlayerError, got %T", ev.Err)
	}
	waitForState(t, e.Events(), StateError)

	// Load is refused while in Error.
	path := writeWAV(t, t.TempDir(), time.Second)
	e.Load(domain.Track{ID: "t2"}, path)
	time.Sleep(100 * time.Millisecond)
	if got := e.State(); got != StateError {
		t.Fatalf("load escaped Error state: %v", got)
	}

	e.Reset()
	waitForState(t, e.Events(), StateIdle)
}

func TestUnsupportedFormatFails(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(t, out)

	dir := t.TempDir()
	path := filepath.Join(dir, "track.ogg")
	os.WriteFile(path, []byte("not-audio"), 0644)

	e.Load(domain.Track{ID: "t1"}, path)
	ev := waitForType(t, e.Events(), EventFailed)
	if !errors.Is(ev.Err, domain.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", ev.Err)
	}
}

func TestDeviceOpenFailureIsTrackError(t *testing.T) {
	out := &fakeOutput{initErr: errors.New("device busy")}
	e := newTestEngine(t, out)
	path := writeWAV(t, t.TempDir(), time.Second)

	e.Load(domain.Track{ID: "t1", Duration: time.Second}, path)
	waitForType(t, e.Events(), EventFailed)
	waitForState(t, e.Events(), StateError)

	// The engine itself survives: reset and load on a working device.
	out.initErr = nil
	e.Reset()
	waitForState(t, e.Events(), StateIdle)
	e.Load(domain.Track{ID: "t2", Duration: time.Second}, path)
	waitForState(t, e.Events(), StatePlaying)
}

func TestTrackFinishedEmittedAtEndOfStream(t *testing.T) {
	out := &fakeOutput{drain: true}
	e := newTestEngine(t, out)
	path := writeWAV(t, t.TempDir(), 200*time.Millisecond)

	e.Load(domain.Track{ID: "t1", Duration: 200 * time.Millisecond}, path)
	waitForState(t, e.Events(), StatePlaying)

	ev := waitForType(t, e.Events(), EventTrackFinished)
	if ev.TrackID != "t1" {
		t.Errorf("finished event for wrong track: %q", ev.TrackID)
	}
	waitForState(t, e.Events(), StateIdle)
}

func TestSeekClampsToDuration(t *testing.T) {
	out := &fakeOutput{}
	e := newTestEngine(t, out)
	path := writeWAV(t, t.TempDir(), time.Second)

	e.Load(domain.Track{ID: "t1", Duration: time.Second}, path)
	waitForState(t, e.Events(), StatePlaying)
	// Drain the position-0 progress event.
	waitForType(t, e.Events(), EventProgress)

	// Nothing is pulling samples, so position only moves via seeks.
	e.Seek(10 * time.Second)
	waitForProgress(t, e.Events(), func(pos time.Duration) bool {
		return pos == time.Second
	})

	e.Seek(-5 * time.Second)
	waitForProgress(t, e.Events(), func(pos time.Duration) bool {
		return pos == 0
	})
}

func waitForProgress(t *testing.T, events <-chan Event, ok func(time.Duration) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventProgress && ok(ev.Position) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for expected progress position")
		}
	}
}
