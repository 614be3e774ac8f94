package playback

import (
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Output is the audio device the engine drives. It mirrors the speaker
// package's surface so a fake can stand in during tests.
type Output interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

// speakerOutput drives the real audio device.
type speakerOutput struct{}

// NewSpeakerOutput returns the speaker-backed audio device.
func NewSpeakerOutput() Output { return speakerOutput{} }

func (speakerOutput) Init(sr beep.SampleRate, bufferSize int) error {
	return speaker.Init(sr, bufferSize)
}

func (speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerOutput) Clear()               { speaker.Clear() }
func (speakerOutput) Lock()                { speaker.Lock() }
func (speakerOutput) Unlock()              { speaker.Unlock() }
