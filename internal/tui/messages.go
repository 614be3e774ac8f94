package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/calder/warble/internal/player"
)

// snapshotMsg carries a fresh player snapshot into the Bubble Tea loop.
type snapshotMsg player.Snapshot

// listenForSnapshots waits for the next snapshot. The command re-arms itself
// from Update after each message.
func listenForSnapshots(snaps <-chan player.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-snaps
		if !ok {
			return tea.Quit()
		}
		return snapshotMsg(snap)
	}
}
