package inbox

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailreader/internal/keys"
	"github.com/nhle/mailreader/internal/render"
	appsync "github.com/nhle/mailreader/internal/sync"
	"github.com/nhle/mailreader/internal/theme"
)

// Model is the live inbox view fed by a listener.
type Model struct {
	list     list.Model
	viewport viewport.Model
	help     help.Model
	keys     *keys.KeyMap
	feed     *appsync.Feed

	folder   string
	preview  bool
	showHelp bool
	status   string
	lastErr  error
	done     bool
	received int

	width  int
	height int
}

// New creates a new inbox model reading from feed.
func New(feed *appsync.Feed, k *keys.KeyMap, folder string, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = folder
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.TitleStyle

	return Model{
		list:     l,
		viewport: viewport.New(width, height-2),
		help:     help.New(),
		keys:     k,
		feed:     feed,
		folder:   folder,
		status:   "waiting for new mail",
		width:    width,
		height:   height,
	}
}

// Init starts listening on the feed.
func (m Model) Init() tea.Cmd {
	return m.feed.Wait()
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case appsync.NewMessageMsg:
		m.received++
		m.status = fmt.Sprintf("%d new", m.received)
		item := MessageItem{Message: msg.Message, Arrived: time.Now()}
		cmd := m.list.InsertItem(0, item)
		return m, tea.Batch(cmd, m.feed.Wait())

	case appsync.ListenerErrorMsg:
		m.lastErr = msg.Err
		if msg.Auth {
			m.status = "authentication failed, run configure"
		}
		return m, m.feed.Wait()

	case appsync.ListenerDoneMsg:
		m.done = true
		m.lastErr = msg.Err
		m.status = "listener stopped"
		return m, nil

	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	if m.preview {
		m.viewport, cmd = m.viewport.Update(msg)
	} else {
		m.list, cmd = m.list.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Close):
		m.preview = false
		return m, nil

	case !m.preview && key.Matches(msg, m.keys.Newest):
		m.list.Select(0)
		return m, nil

	case !m.preview && key.Matches(msg, m.keys.Open):
		item, ok := m.list.SelectedItem().(MessageItem)
		if !ok {
			return m, nil
		}
		m.viewport.SetContent(render.Message(item.Message))
		m.viewport.GotoTop()
		m.preview = true
		return m, nil

	case !m.preview && key.Matches(msg, m.keys.Clear):
		m.list.SetItems([]list.Item{})
		m.received = 0
		m.status = "cleared"
		return m, nil
	}

	var cmd tea.Cmd
	if m.preview {
		m.viewport, cmd = m.viewport.Update(msg)
	} else {
		m.list, cmd = m.list.Update(msg)
	}
	return m, cmd
}

// View renders the inbox.
func (m Model) View() string {
	var body string
	switch {
	case m.showHelp:
		m.help.ShowAll = true
		body = theme.PanelStyle.Width(m.width - 4).Render(m.help.View(m.keys))
	case m.preview:
		body = m.viewport.View()
	case len(m.list.Items()) == 0:
		body = theme.EmptyStyle(m.width, m.height-2).Render("No new messages yet.\nNew mail in " + m.folder + " appears here.")
	default:
		body = m.list.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusBar())
}

func (m Model) statusBar() string {
	text := m.status
	if m.lastErr != nil {
		text += "  " + theme.ErrorStyle.Render(m.lastErr.Error())
	}
	if !m.showHelp {
		m.help.ShowAll = false
		text += "  " + theme.HintStyle.Render(m.help.View(m.keys))
	}
	return theme.StatusBarStyle.Width(m.width).Render(text)
}

// Received returns how many messages arrived while the view was open.
func (m Model) Received() int { return m.received }

// Done reports whether the listener has stopped.
func (m Model) Done() bool { return m.done }

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.help.Width = width
}
