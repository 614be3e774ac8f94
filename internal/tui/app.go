package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/calder/warble/internal/domain"
	"github.com/calder/warble/internal/playback"
	"github.com/calder/warble/internal/player"
	"github.com/calder/warble/internal/tui/styles"
)

// Vertical chrome: header line, blank, footer block.
const (
	headerHeight = 2
	footerHeight = 4
)

// Model is the main Bubble Tea model for the application
type Model struct {
	coord *player.Coordinator
	snaps <-chan player.Snapshot
	keys  KeyMap

	snap    player.Snapshot
	visible []int // queue indexes currently shown, filter applied
	cursor  int   // position within visible
	offset  int   // scroll offset into visible

	filtering   bool
	filterInput textinput.Model
	gauge       progress.Model

	seekStep time.Duration
	width    int
	height   int
	ready    bool
}

// NewModel creates the player UI bound to a coordinator.
func NewModel(coord *player.Coordinator, snaps <-chan player.Snapshot, seekStep time.Duration) Model {
	ti := textinput.New()
	ti.Placeholder = "filter tracks"
	ti.Prompt = "/"
	ti.CharLimit = 64

	if seekStep <= 0 {
		seekStep = 5 * time.Second
	}

	return Model{
		coord:       coord,
		snaps:       snaps,
		keys:        Keys,
		filterInput: ti,
		gauge:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		seekStep:    seekStep,
	}
}

// Init starts listening for player snapshots.
func (m Model) Init() tea.Cmd {
	return listenForSnapshots(m.snaps)
}

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.gauge.Width = max(10, msg.Width-20)
		m.ready = true
		return m, nil

	case snapshotMsg:
		m.snap = player.Snapshot(msg)
		m.refreshVisible()
		return m, listenForSnapshots(m.snaps)

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFiltering(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateFiltering(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.filtering = false
		m.filterInput.SetValue("")
		m.filterInput.Blur()
		m.refreshVisible()
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		// Keep the filter, leave input mode.
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.refreshVisible()
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, m.keys.Home):
		m.cursor = 0
		m.clampScroll()

	case key.Matches(msg, m.keys.End):
		m.cursor = max(0, len(m.visible)-1)
		m.clampScroll()

	case key.Matches(msg, m.keys.Enter):
		if m.cursor < len(m.visible) {
			m.coord.Play(m.visible[m.cursor])
		}

	case key.Matches(msg, m.keys.PlayPause):
		m.coord.TogglePause()

	case key.Matches(msg, m.keys.Next):
		m.coord.Next()

	case key.Matches(msg, m.keys.Previous):
		m.coord.Previous()

	case key.Matches(msg, m.keys.Stop):
		m.coord.Stop()

	case key.Matches(msg, m.keys.SeekBack):
		m.coord.SeekBy(-m.seekStep)

	case key.Matches(msg, m.keys.SeekForward):
		m.coord.SeekBy(m.seekStep)

	case key.Matches(msg, m.keys.VolumeUp):
		m.coord.AdjustVolume(0.05)

	case key.Matches(msg, m.keys.VolumeDown):
		m.coord.AdjustVolume(-0.05)

	case key.Matches(msg, m.keys.Repeat):
		m.coord.SetRepeat(nextRepeatMode(m.snap.Repeat))

	case key.Matches(msg, m.keys.Shuffle):
		m.coord.ToggleShuffle()

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filterInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Escape):
		m.filterInput.SetValue("")
		m.refreshVisible()
	}
	return m, nil
}

func nextRepeatMode(mode domain.RepeatMode) domain.RepeatMode {
	switch mode {
	case domain.RepeatOff:
		return domain.RepeatAll
	case domain.RepeatAll:
		return domain.RepeatOne
	default:
		return domain.RepeatOff
	}
}

func (m *Model) refreshVisible() {
	m.visible = matchEntries(m.snap.Entries, m.filterInput.Value())
	if m.cursor >= len(m.visible) {
		m.cursor = max(0, len(m.visible)-1)
	}
	m.clampScroll()
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(0, len(m.visible)-1)
	}
	m.clampScroll()
}

func (m *Model) clampScroll() {
	rows := m.listHeight()
	if rows <= 0 {
		return
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m Model) listHeight() int {
	return m.height - headerHeight - footerHeight
}

// View renders the whole screen.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")
	b.WriteString(m.viewList())
	b.WriteString("\n")
	b.WriteString(m.viewFooter())
	return b.String()
}

func (m Model) viewHeader() string {
	name := m.snap.Playlist
	if name == "" {
		name = "queue"
	}
	title := styles.TitleStyle.Render("warble") + styles.DimStyle.Render("  ·  ") +
		styles.SubtitleStyle.Render(name)

	var badges []string
	if m.snap.Shuffle {
		badges = append(badges, "shuffle")
	}
	if m.snap.Repeat != domain.RepeatOff {
		badges = append(badges, "repeat "+m.snap.Repeat.String())
	}
	if m.filtering || m.filterInput.Value() != "" {
		badges = append(badges, m.filterInput.View())
	}
	if len(badges) == 0 {
		return title
	}
	return title + styles.DimStyle.Render("  ·  ") + styles.AccentStyle.Render(strings.Join(badges, "  "))
}

func (m Model) viewList() string {
	rows := m.listHeight()
	if rows <= 0 {
		return ""
	}
	if len(m.visible) == 0 {
		return styles.DimStyle.Render("  no tracks")
	}

	var b strings.Builder
	end := min(m.offset+rows, len(m.visible))
	for row := m.offset; row < end; row++ {
		qi := m.visible[row]
		entry := m.snap.Entries[qi]
		b.WriteString(m.renderEntry(qi, entry, row == m.cursor))
		if row < end-1 {
			b.WriteString("\n")
		}
	}
	// Pad so the footer stays anchored.
	for i := end - m.offset; i < rows; i++ {
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderEntry(queueIndex int, entry player.QueueEntry, selected bool) string {
	glyph := " "
	switch {
	case queueIndex == m.snap.Index && m.snap.State == playback.StatePaused:
		glyph = styles.PausedDot
	case queueIndex == m.snap.Index && m.snap.HasTrack && m.snap.State != playback.StateIdle:
		glyph = styles.PlayingDot
	case entry.Status == player.EntryDownloading:
		glyph = styles.DownloadingDot
	case entry.Status == player.EntryCached:
		glyph = styles.CachedDot
	case entry.Status == player.EntryFailed:
		glyph = styles.FailedDot
	}

	line := fmt.Sprintf(" %s %s", glyph, entry.Track.DisplayTitle())
	if entry.Track.Duration > 0 {
		line += styles.DimStyle.Render("  " + entry.Track.FormattedDuration())
	}
	if selected {
		return styles.SelectedStyle.Width(max(0, m.width)).Render(line)
	}
	return line
}

func (m Model) viewFooter() string {
	var now string
	switch {
	case m.snap.State == playback.StateLoading:
		now = styles.AccentStyle.Render("⌛ " + m.snap.Track.DisplayTitle())
	case m.snap.State == playback.StateError:
		now = styles.ErrorStyle.Render("playback error, press enter to retry")
	case m.snap.HasTrack && m.snap.State != playback.StateIdle:
		icon := styles.PlayingChar
		if m.snap.State == playback.StatePaused {
			icon = styles.PausedChar
		}
		now = styles.AccentStyle.Render(icon) + " " + styles.TitleStyle.Render(m.snap.Track.DisplayTitle())
	default:
		now = styles.DimStyle.Render("nothing playing")
	}

	bar := m.gauge.ViewAs(m.progressRatio())
	pos := fmt.Sprintf("%s / %s  vol %d%%",
		formatDuration(m.snap.Position),
		formatDuration(m.snap.Track.Duration),
		int(m.snap.Volume*100))

	help := styles.HelpStyle.Render("enter play · space pause · n/p skip · h/l seek · r repeat · s shuffle · / filter · q quit")
	return lipgloss.JoinVertical(lipgloss.Left,
		now,
		bar+"  "+styles.SubtitleStyle.Render(pos),
		help,
	)
}

func (m Model) progressRatio() float64 {
	if m.snap.Track.Duration <= 0 {
		return 0
	}
	r := float64(m.snap.Position) / float64(m.snap.Track.Duration)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
