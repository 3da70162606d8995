package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/source"
	"github.com/nhle/mailreader/internal/source/email"
)

// State is the push loop's current phase.
type State int32

const (
	StateIdle State = iota
	StateNotified
	StatePolling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNotified:
		return "notified"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	defaultPollInterval = 60 * time.Second
	defaultBackoff      = 5 * time.Second
)

// Handler receives every new message. Returning an error reports it
// through the error sink; the loop keeps running either way.
type Handler func(ctx context.Context, msg model.Message) error

// Checkpoints persists the highest delivered UID per folder generation.
type Checkpoints interface {
	GetCheckpoint(ctx context.Context, folder string, uidValidity uint32) (uint32, error)
	SaveCheckpoint(ctx context.Context, folder string, uidValidity, lastUID uint32) error
}

// Sessions records listen runs. It is optional.
type Sessions interface {
	StartSession(ctx context.Context, folder string) (string, error)
	EndSession(ctx context.Context, id string, delivered int) error
}

// Listener holds one folder open and forwards new messages to Handler
// until ctx is cancelled or the folder goes away.
type Listener struct {
	Opener  email.Opener
	Folder  string
	Options model.FetchOptions
	Handler Handler

	// OnError receives handler failures and transient loop errors. Nil
	// logs them instead.
	OnError func(error)

	PollInterval time.Duration
	Backoff      time.Duration

	// IdleKeepalive bounds one IDLE command on IMAP folders.
	IdleKeepalive time.Duration

	// HeartbeatInterval > 0 runs a Heartbeat on the open folder.
	HeartbeatInterval time.Duration

	// Checkpoints may be nil; dedupe then lasts only for this run.
	Checkpoints Checkpoints
	Sessions    Sessions

	Log zerolog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	state     atomic.Int32
	delivered atomic.Int64

	mu          gosync.Mutex
	uidValidity uint32
	lastUID     uint32
}

// State returns the current loop phase.
func (l *Listener) State() State { return State(l.state.Load()) }

// Delivered returns how many messages reached Handler.
func (l *Listener) Delivered() int { return int(l.delivered.Load()) }

func (l *Listener) setState(s State) {
	if old := State(l.state.Swap(int32(s))); old != s {
		l.Log.Debug().Str("from", old.String()).Str("to", s.String()).Msg("listener state")
	}
}

// Run executes the push loop. It returns nil on a clean stop (folder
// closed) and ctx.Err() on cancellation.
func (l *Listener) Run(ctx context.Context) (err error) {
	if l.Opener == nil || l.Handler == nil {
		return errors.New("listener needs an opener and a handler")
	}
	l.setState(StateIdle)

	folder, err := l.Opener.Open(ctx, l.Folder, true)
	if err != nil {
		l.setState(StateClosed)
		return fmt.Errorf("opening %s: %w", l.Folder, err)
	}
	if l.IdleKeepalive > 0 {
		email.SetIdleKeepalive(folder, l.IdleKeepalive)
	}

	l.loadCheckpoint(ctx, folder)

	remove := folder.AddListener(email.ProfileFor(l.Options.IncludeBody), func(h email.MessageHandle) {
		l.deliver(ctx, h)
	})

	sessionID := l.startSession(ctx)

	loopCtx, stopHeartbeat := context.WithCancel(ctx)
	var wg gosync.WaitGroup
	if l.HeartbeatInterval > 0 {
		hb := &Heartbeat{
			Folder:   folder,
			Interval: l.HeartbeatInterval,
			OnError:  l.report,
			Log:      l.Log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			hb.Run(loopCtx)
		}()
	}

	defer func() {
		stopHeartbeat()
		wg.Wait()
		remove()
		if closeErr := folder.Close(false); closeErr != nil {
			l.Log.Debug().Err(closeErr).Msg("closing folder")
		}
		l.endSession(sessionID)
		l.setState(StateClosed)
	}()

	l.Log.Info().Str("folder", folder.Name()).Msg("listening")
	return l.loop(ctx, folder)
}

func (l *Listener) loop(ctx context.Context, folder email.Folder) error {
	for folder.IsOpen() && folder.Connected() {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.setState(StateIdle)
		err := folder.WaitForPush(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err == nil:
		case errors.Is(err, source.ErrFolderClosed):
			l.Log.Debug().Msg("folder closed, stopping")
			return nil
		case errors.Is(err, source.ErrIdleUnsupported):
			l.setState(StatePolling)
			l.Log.Warn().Dur("interval", l.pollInterval()).Msg("IDLE unsupported, polling")
			if err := l.doSleep(ctx, l.pollInterval()); err != nil {
				return err
			}
			if err := folder.Poll(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, source.ErrFolderClosed) {
					return nil
				}
				l.report(fmt.Errorf("polling %s: %w", folder.Name(), err))
			}
		default:
			l.report(err)
			if err := l.doSleep(ctx, l.backoff()); err != nil {
				return err
			}
		}
	}
	return nil
}

// deliver projects one pushed handle and hands it to Handler. It runs on
// the loop goroutine from inside WaitForPush or Poll.
func (l *Listener) deliver(ctx context.Context, h email.MessageHandle) {
	prev := l.State()
	l.setState(StateNotified)
	defer l.setState(prev)

	msg := email.Project(h, l.Options)
	if msg.UID != nil && !l.claim(*msg.UID) {
		l.Log.Debug().Uint32("uid", *msg.UID).Msg("already delivered, skipping")
		return
	}

	if err := l.callHandler(ctx, msg); err != nil {
		l.report(err)
	}
	l.delivered.Add(1)

	if msg.UID != nil {
		l.saveCheckpoint(ctx, *msg.UID)
	}
}

func (l *Listener) callHandler(ctx context.Context, msg model.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if err := l.Handler(ctx, msg); err != nil {
		return fmt.Errorf("handler: %w", err)
	}
	return nil
}

// claim reports whether uid is newer than anything delivered so far and
// records it.
func (l *Listener) claim(uid uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if uid <= l.lastUID {
		return false
	}
	l.lastUID = uid
	return true
}

func (l *Listener) loadCheckpoint(ctx context.Context, folder email.Folder) {
	l.mu.Lock()
	l.uidValidity = email.UIDValidity(folder)
	l.lastUID = 0
	validity := l.uidValidity
	l.mu.Unlock()

	if l.Checkpoints == nil || validity == 0 {
		return
	}
	last, err := l.Checkpoints.GetCheckpoint(ctx, l.Folder, validity)
	if err != nil {
		l.report(fmt.Errorf("loading checkpoint: %w", err))
		return
	}

	l.mu.Lock()
	l.lastUID = last
	l.mu.Unlock()
	l.Log.Debug().Uint32("uid_validity", validity).Uint32("last_uid", last).Msg("checkpoint loaded")
}

func (l *Listener) saveCheckpoint(ctx context.Context, uid uint32) {
	l.mu.Lock()
	validity := l.uidValidity
	l.mu.Unlock()

	if l.Checkpoints == nil || validity == 0 {
		return
	}
	if err := l.Checkpoints.SaveCheckpoint(ctx, l.Folder, validity, uid); err != nil {
		l.report(fmt.Errorf("saving checkpoint: %w", err))
	}
}

func (l *Listener) startSession(ctx context.Context) string {
	if l.Sessions == nil {
		return ""
	}
	id, err := l.Sessions.StartSession(ctx, l.Folder)
	if err != nil {
		l.report(fmt.Errorf("starting listen session: %w", err))
		return ""
	}
	return id
}

func (l *Listener) endSession(id string) {
	if l.Sessions == nil || id == "" {
		return
	}
	// The run context is usually cancelled by now.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Sessions.EndSession(ctx, id, l.Delivered()); err != nil {
		l.Log.Error().Err(err).Msg("ending listen session")
	}
}

func (l *Listener) report(err error) {
	if l.OnError != nil {
		l.OnError(err)
		return
	}
	l.Log.Error().Err(err).Msg("listener")
}

func (l *Listener) doSleep(ctx context.Context, d time.Duration) error {
	if l.sleep != nil {
		return l.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func (l *Listener) pollInterval() time.Duration {
	if l.PollInterval > 0 {
		return l.PollInterval
	}
	return defaultPollInterval
}

func (l *Listener) backoff() time.Duration {
	if l.Backoff > 0 {
		return l.Backoff
	}
	return defaultBackoff
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
