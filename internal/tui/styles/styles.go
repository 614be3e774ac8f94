package styles

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Amber     = lipgloss.Color("#F59E0B")
	SlateDark = lipgloss.Color("#1F2937")
	DimGray   = lipgloss.Color("#6B7280")
	LightGray = lipgloss.Color("#9CA3AF")
	White     = lipgloss.Color("#F9FAFB")
	Green     = lipgloss.Color("#10B981")
	Red       = lipgloss.Color("#EF4444")
	Blue      = lipgloss.Color("#3B82F6")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(Amber)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(SlateDark).
			Bold(true)
)

// Footer chrome
var (
	FooterStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	HelpStyle = lipgloss.NewStyle().
			Foreground(DimGray)
)

// Raw track status characters (unstyled)
const (
	DownloadingChar = "↓"
	CachedChar      = "✓"
	FailedChar      = "✗"
	PlayingChar     = "▶"
	PausedChar      = "⏸"
)

// Track status indicator styles
var (
	DownloadingStyle = lipgloss.NewStyle().Foreground(Blue)
	CachedStyle      = lipgloss.NewStyle().Foreground(Green)
	FailedStyle      = lipgloss.NewStyle().Foreground(Red)
	PlayingStyle     = lipgloss.NewStyle().Foreground(Amber)
)

// Pre-rendered status indicators
var (
	DownloadingDot = DownloadingStyle.Render(DownloadingChar)
	CachedDot      = CachedStyle.Render(CachedChar)
	FailedDot      = FailedStyle.Render(FailedChar)
	PlayingDot     = PlayingStyle.Render(PlayingChar)
	PausedDot      = PlayingStyle.Render(PausedChar)
)
