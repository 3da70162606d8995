package theme

import "github.com/charmbracelet/lipgloss"

// Palette, as (dark terminal, light terminal) pairs.
var (
	Accent  = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	Unread  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	Muted   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	Alert   = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	Replied = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	Drafted = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	Fresh   = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	Surface = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// TitleStyle renders the folder name above the message list.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Unread).
	Background(Accent).
	Padding(0, 1)

// StatusBarStyle holds the arrival counter and key hints.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(Unread).
	Background(Surface).
	Padding(0, 1)

var ErrorStyle = lipgloss.NewStyle().
	Foreground(Alert).
	Bold(true)

// PanelStyle frames the full help screen.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Surface)

var RowStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// FocusedRowStyle marks the row under the cursor with a left bar.
var FocusedRowStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(Accent).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(Accent)

// SeenStyle dims rows for messages that carry \Seen.
var SeenStyle = lipgloss.NewStyle().
	Foreground(Muted)

var TimestampStyle = lipgloss.NewStyle().
	Foreground(Muted)

var HintStyle = lipgloss.NewStyle().
	Foreground(Muted).
	Italic(true)

// EmptyStyle centers the placeholder shown before the first arrival.
func EmptyStyle(width, height int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(Muted)
}

// FlagStyle colors the one-letter badge for a flag name as returned by
// model.Flags.Names.
func FlagStyle(flag string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch flag {
	case "flagged":
		return base.Foreground(Alert)
	case "answered":
		return base.Foreground(Replied)
	case "draft":
		return base.Foreground(Drafted)
	case "recent":
		return base.Foreground(Fresh)
	default:
		return base.Foreground(Muted)
	}
}
