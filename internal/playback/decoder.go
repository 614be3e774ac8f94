package playback

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"github.com/calder/warble/internal/domain"
)

// SupportedFormats returns the decodable file extensions
func SupportedFormats() []string {
	return []string{".mp3", ".wav", ".flac"}
}

// decode picks a decoder from the file extension.
func decode(r io.ReadSeekCloser, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(r)
	case ".wav":
		return wav.Decode(r)
	case ".flac":
		return flac.Decode(r)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// bufferedStreamer serves pre-decoded samples first, then continues pulling
// from the source. Filling it up front is what keeps the output device from
// stalling right after playback starts.
type bufferedStreamer struct {
	src beep.StreamSeekCloser
	buf [][2]float64
	off int
}

// fill decodes up to n samples into memory. Reaching end-of-stream early is
// fine (short tracks); decode errors are not.
func (b *bufferedStreamer) fill(n int) error {
	b.buf = make([][2]float64, 0, n)
	chunk := make([][2]float64, 512)
	for len(b.buf) < n {
		want := n - len(b.buf)
		if want > len(chunk) {
			want = len(chunk)
		}
		m, ok := b.src.Stream(chunk[:want])
		b.buf = append(b.buf, chunk[:m]...)
		if !ok {
			return b.src.Err()
		}
	}
	return nil
}

func (b *bufferedStreamer) Stream(samples [][2]float64) (int, bool) {
	n := 0
	if b.off < len(b.buf) {
		n = copy(samples, b.buf[b.off:])
		b.off += n
		if n == len(samples) {
			return n, true
		}
	}
	m, ok := b.src.Stream(samples[n:])
	return n + m, ok || n > 0
}

func (b *bufferedStreamer) Err() error { return b.src.Err() }

func (b *bufferedStreamer) Len() int { return b.src.Len() }

func (b *bufferedStreamer) Position() int {
	if b.off < len(b.buf) {
		return b.off
	}
	return b.src.Position()
}

func (b *bufferedStreamer) Seek(p int) error {
	// A seek invalidates the prebuffer; stream directly from the source
	// afterwards.
	b.buf = nil
	b.off = 0
	return b.src.Seek(p)
}

func (b *bufferedStreamer) Close() error { return b.src.Close() }
