package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/render"
	"github.com/nhle/mailreader/internal/theme"
)

// MessageItem wraps a model.Message so it can be used in a bubbles/list.
type MessageItem struct {
	Message model.Message
	Arrived time.Time
}

// FilterValue returns the string used for fuzzy filtering.
func (i MessageItem) FilterValue() string { return i.Message.Subject }

// Title returns the message subject for the list.
func (i MessageItem) Title() string { return render.Subject(i.Message) }

// Description returns a short summary line for the list.
func (i MessageItem) Description() string {
	parts := []string{
		render.Addresses(i.Message.From),
		relativeTime(i.Arrived),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering message lines.
type ItemDelegate struct {
	// now is replaced in tests.
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MessageItem)
	if !ok {
		return
	}
	fmt.Fprint(w, d.line(mi, index == m.Index()))
}

func (d ItemDelegate) line(mi MessageItem, isSelected bool) string {
	msg := mi.Message

	prefix := "●"
	if msg.Flags.Has(model.FlagSeen) {
		prefix = "○"
	}

	var badges []string
	for _, name := range msg.Flags.Names() {
		if name == "seen" {
			continue
		}
		badges = append(badges, theme.FlagStyle(name).Render(strings.ToUpper(name[:1])))
	}

	from := "(unknown sender)"
	if len(msg.From) > 0 {
		from = msg.From[0].String()
		if msg.From[0].DisplayName != nil && *msg.From[0].DisplayName != "" {
			from = *msg.From[0].DisplayName
		}
	}

	arrived := mi.Arrived
	if msg.ReceivedAt != nil {
		arrived = *msg.ReceivedAt
	}
	timeStr := theme.TimestampStyle.Render(relativeTimeAt(arrived, d.clock()))

	line := fmt.Sprintf("%s %s  %s", prefix, from, render.Subject(msg))
	if len(badges) > 0 {
		line += " " + strings.Join(badges, "")
	}
	line += "  " + timeStr

	if msg.Flags.Has(model.FlagSeen) {
		line = theme.SeenStyle.Render(line)
	}

	if isSelected {
		return theme.FocusedRowStyle.Render(line)
	}
	return theme.RowStyle.Render(line)
}

func (d ItemDelegate) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	return relativeTimeAt(t, time.Now())
}

func relativeTimeAt(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
