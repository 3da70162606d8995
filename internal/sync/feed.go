package sync

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/source"
)

// NewMessageMsg is a tea.Msg carrying one message delivered by a Listener.
type NewMessageMsg struct {
	Message model.Message
}

// ListenerErrorMsg is a tea.Msg for an error reported by a Listener.
type ListenerErrorMsg struct {
	Err  error
	Auth bool
}

// ListenerDoneMsg is sent once the listener has stopped.
type ListenerDoneMsg struct {
	Err error
}

// Feed bridges a Listener running on its own goroutine into the Bubble
// Tea runtime.
type Feed struct {
	ch chan tea.Msg
}

// NewFeed creates a feed buffering up to size pending messages.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 64
	}
	return &Feed{ch: make(chan tea.Msg, size)}
}

// Handler forwards messages into the feed. It blocks when the buffer is
// full so that no delivered message is lost.
func (f *Feed) Handler() Handler {
	return func(ctx context.Context, msg model.Message) error {
		select {
		case f.ch <- NewMessageMsg{Message: msg}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnError forwards errors without blocking; errors are dropped when the
// buffer is full.
func (f *Feed) OnError(err error) {
	select {
	case f.ch <- ListenerErrorMsg{Err: err, Auth: source.IsAuthError(err)}:
	default:
	}
}

// Done reports the listener's exit and closes the feed. It must be called
// once. When nobody is reading any more the final message is dropped.
func (f *Feed) Done(err error) {
	select {
	case f.ch <- ListenerDoneMsg{Err: err}:
	default:
	}
	close(f.ch)
}

// Wait returns a tea.Cmd that waits for the next feed message. Call it
// again after each message to keep listening.
func (f *Feed) Wait() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-f.ch
		if !ok {
			return nil
		}
		return msg
	}
}
