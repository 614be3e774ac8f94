package player

import (
	"time"

	"github.com/calder/warble/internal/domain"
)

// CommandType enumerates the operations the coordinator accepts.
type CommandType int

const (
	CmdSetPlaylist CommandType = iota
	CmdPlayIndex
	CmdTogglePause
	CmdNext
	CmdPrevious
	CmdStop
	CmdSeekBy
	CmdSetRepeat
	CmdToggleShuffle
	CmdSetVolume
	CmdVolumeBy
)

// Command is a request posted to the coordinator loop. Only the fields the
// type calls for are read.
type Command struct {
	Type     CommandType
	Index    int
	Seek     time.Duration
	Repeat   domain.RepeatMode
	Volume   float64
	Playlist string
	Tracks   []domain.Track
}
