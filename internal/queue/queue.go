package queue

import (
	"errors"
	"math/rand"
	"time"

	"github.com/calder/warble/internal/domain"
)

// Direction selects which neighbour Advance moves to.
type Direction int

const (
	Next Direction = iota
	Previous
)

// ErrIndexOutOfBounds is returned by index-addressed mutations.
var ErrIndexOutOfBounds = errors.New("queue index out of bounds")

// Queue is the ordered play list plus navigation state. It is deliberately
// unsynchronized: the coordinator loop is its single owner and all mutations
// happen there.
type Queue struct {
	tracks []domain.Track
	index  int
	repeat domain.RepeatMode

	// Shuffle state. bag holds the ids not yet visited in the current
	// shuffle cycle, pre-shuffled; history records visited ids so Previous
	// can walk back through the actual play order.
	shuffle bool
	bag     []string
	history []string

	rng *rand.Rand
}

// New creates an empty queue
func New() *Queue {
	return &Queue{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetTracks replaces the whole queue and resets navigation state.
func (q *Queue) SetTracks(tracks []domain.Track) {
	q.tracks = make([]domain.Track, len(tracks))
	copy(q.tracks, tracks)
	q.index = 0
	q.bag = nil
	q.history = nil
	if q.shuffle {
		q.refillBag(true)
	}
}

// Len returns the number of tracks in the queue
func (q *Queue) Len() int { return len(q.tracks) }

// Index returns the current position
func (q *Queue) Index() int { return q.index }

// Tracks returns a copy of the queue contents.
func (q *Queue) Tracks() []domain.Track {
	out := make([]domain.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Current returns the track at the current position.
func (q *Queue) Current() (domain.Track, bool) {
	if len(q.tracks) == 0 || q.index < 0 || q.index >= len(q.tracks) {
		return domain.Track{}, false
	}
	return q.tracks[q.index], true
}

// Advance moves the current position honoring repeat and shuffle modes and
// returns the new current track. ok=false means the queue has nothing more
// to play in that direction (Repeat=Off at the boundary, or empty queue).
func (q *Queue) Advance(dir Direction) (domain.Track, bool) {
	if len(q.tracks) == 0 {
		return domain.Track{}, false
	}
	if q.repeat == domain.RepeatOne {
		return q.tracks[q.index], true
	}
	if q.shuffle {
		return q.advanceShuffled(dir)
	}

	switch dir {
	case Next:
		if q.index < len(q.tracks)-1 {
			q.index++
		} else if q.repeat == domain.RepeatAll {
			q.index = 0
		} else {
			return domain.Track{}, false
		}
	case Previous:
		if q.index > 0 {
			q.index--
		} else if q.repeat == domain.RepeatAll {
			q.index = len(q.tracks) - 1
		}
		// Repeat=Off at the start stays on the first track.
	}
	return q.tracks[q.index], true
}

func (q *Queue) advanceShuffled(dir Direction) (domain.Track, bool) {
	if dir == Previous {
		for len(q.history) > 0 {
			id := q.history[len(q.history)-1]
			q.history = q.history[:len(q.history)-1]
			if i := q.indexOf(id); i >= 0 {
				// The skipped-over current track goes back into the bag so
				// the cycle still visits it exactly once.
				if cur, ok := q.Current(); ok && cur.ID != id {
					q.bag = append([]string{cur.ID}, q.bag...)
				}
				q.index = i
				return q.tracks[i], true
			}
		}
		return q.tracks[q.index], true
	}

	if len(q.bag) == 0 {
		if q.repeat != domain.RepeatAll {
			return domain.Track{}, false
		}
		q.refillBag(false)
		if len(q.bag) == 0 {
			return domain.Track{}, false
		}
	}

	if cur, ok := q.Current(); ok {
		q.history = append(q.history, cur.ID)
	}
	id := q.bag[0]
	q.bag = q.bag[1:]
	if i := q.indexOf(id); i >= 0 {
		q.index = i
		return q.tracks[i], true
	}
	// id vanished via Remove; try the rest of the bag.
	return q.advanceShuffled(Next)
}

// refillBag starts a new shuffle cycle. excludeCurrent marks the current
// track as already visited, which is the case when shuffle is switched on
// mid-playback.
func (q *Queue) refillBag(excludeCurrent bool) {
	cur, hasCur := q.Current()
	q.bag = q.bag[:0]
	for _, t := range q.tracks {
		if excludeCurrent && hasCur && t.ID == cur.ID {
			continue
		}
		q.bag = append(q.bag, t.ID)
	}
	q.rng.Shuffle(len(q.bag), func(i, j int) {
		q.bag[i], q.bag[j] = q.bag[j], q.bag[i]
	})
	// A fresh cycle must not open by replaying the track just finished.
	if !excludeCurrent && hasCur && len(q.bag) > 1 && q.bag[0] == cur.ID {
		q.bag[0], q.bag[len(q.bag)-1] = q.bag[len(q.bag)-1], q.bag[0]
	}
}

// PeekNext returns the track a forward Advance would land on without moving
// the position. Used for look-ahead prefetching; Repeat=One peeks nothing
// because the current track replays.
func (q *Queue) PeekNext() (domain.Track, bool) {
	if len(q.tracks) == 0 || q.repeat == domain.RepeatOne {
		return domain.Track{}, false
	}
	if q.shuffle {
		for _, id := range q.bag {
			if i := q.indexOf(id); i >= 0 {
				return q.tracks[i], true
			}
		}
		return domain.Track{}, false
	}
	if q.index < len(q.tracks)-1 {
		return q.tracks[q.index+1], true
	}
	if q.repeat == domain.RepeatAll {
		return q.tracks[0], true
	}
	return domain.Track{}, false
}

// JumpTo makes the track at index the current one.
func (q *Queue) JumpTo(index int) (domain.Track, error) {
	if index < 0 || index >= len(q.tracks) {
		return domain.Track{}, ErrIndexOutOfBounds
	}
	if q.shuffle {
		if cur, ok := q.Current(); ok && q.index != index {
			q.history = append(q.history, cur.ID)
		}
		q.removeFromBag(q.tracks[index].ID)
	}
	q.index = index
	return q.tracks[index], nil
}

// Insert adds a track at index, shifting later entries. The current position
// keeps referring to the same logical track.
func (q *Queue) Insert(index int, t domain.Track) error {
	if index < 0 || index > len(q.tracks) {
		return ErrIndexOutOfBounds
	}
	q.tracks = append(q.tracks, domain.Track{})
	copy(q.tracks[index+1:], q.tracks[index:])
	q.tracks[index] = t
	if index <= q.index && len(q.tracks) > 1 {
		q.index++
	}
	if q.shuffle {
		// New track joins the current cycle at a random position.
		pos := q.rng.Intn(len(q.bag) + 1)
		q.bag = append(q.bag, "")
		copy(q.bag[pos+1:], q.bag[pos:])
		q.bag[pos] = t.ID
	}
	return nil
}

// Remove deletes the track at index. When the removed track is not the
// current one, the current position keeps referring to the same logical
// track; removing the current track makes its successor current.
func (q *Queue) Remove(index int) error {
	if index < 0 || index >= len(q.tracks) {
		return ErrIndexOutOfBounds
	}
	id := q.tracks[index].ID
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	if index < q.index {
		q.index--
	} else if q.index >= len(q.tracks) && len(q.tracks) > 0 {
		q.index = len(q.tracks) - 1
	}
	q.removeFromBag(id)
	for i := len(q.history) - 1; i >= 0; i-- {
		if q.history[i] == id {
			q.history = append(q.history[:i], q.history[i+1:]...)
		}
	}
	return nil
}

// SetMetadata backfills display metadata for a track, e.g. from tags probed
// out of the downloaded file.
func (q *Queue) SetMetadata(trackID, title, artist string) {
	for i := range q.tracks {
		if q.tracks[i].ID == trackID {
			if title != "" {
				q.tracks[i].Title = title
			}
			if artist != "" {
				q.tracks[i].Artist = artist
			}
			return
		}
	}
}

// SetRepeat sets the repeat mode
func (q *Queue) SetRepeat(mode domain.RepeatMode) { q.repeat = mode }

// Repeat returns the current repeat mode
func (q *Queue) Repeat() domain.RepeatMode { return q.repeat }

// SetShuffle toggles shuffle mode. Enabling it starts a fresh cycle with the
// current track counted as visited.
func (q *Queue) SetShuffle(on bool) {
	if q.shuffle == on {
		return
	}
	q.shuffle = on
	q.history = nil
	if on {
		q.refillBag(true)
	} else {
		q.bag = nil
	}
}

// Shuffle reports whether shuffle mode is on
func (q *Queue) Shuffle() bool { return q.shuffle }

func (q *Queue) indexOf(id string) int {
	for i, t := range q.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) removeFromBag(id string) {
	for i, b := range q.bag {
		if b == id {
			q.bag = append(q.bag[:i], q.bag[i+1:]...)
			return
		}
	}
}
