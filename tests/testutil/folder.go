package testutil

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailreader/internal/source"
	"github.com/nhle/mailreader/internal/source/email"
)

// PushStep scripts one FakeFolder.WaitForPush call.
type PushStep struct {
	// Deliver is handed to the registered listeners before returning.
	Deliver []email.MessageHandle
	Err     error

	// Block waits for ctx cancellation instead of returning.
	Block bool
}

// FakeFolder is a scriptable email.Folder. When Steps runs out,
// WaitForPush reports source.ErrFolderClosed.
type FakeFolder struct {
	FolderName       string
	Handles          []email.MessageHandle
	SearchResult     []email.MessageHandle
	UIDValidityValue uint32

	Steps []PushStep

	// PollDeliver is handed out one batch per Poll call.
	PollDeliver [][]email.MessageHandle
	PollErr     error

	PrefetchErr  error
	KeepaliveErr error
	CloseErr     error

	mu        gosync.Mutex
	listeners map[int]func(email.MessageHandle)
	nextID    int

	closed       bool
	disconnected bool

	WaitCalls      int
	PollCalls      int
	KeepaliveCalls int
	CloseCalls     int
	RemoveCalls    int
	PrefetchCalls  int
	Profiles       []email.Profile
	LastCriteria   *imap.SearchCriteria
	Events         []string
}

var _ email.Folder = (*FakeFolder)(nil)

// NewFakeFolder returns an open, connected folder.
func NewFakeFolder(name string, handles ...email.MessageHandle) *FakeFolder {
	return &FakeFolder{FolderName: name, Handles: handles, UIDValidityValue: 1}
}

func (f *FakeFolder) record(event string) {
	f.Events = append(f.Events, event)
}

func (f *FakeFolder) Name() string { return f.FolderName }

// UIDValidity is picked up by email.UIDValidity.
func (f *FakeFolder) UIDValidity() uint32 { return f.UIDValidityValue }

func (f *FakeFolder) List(ctx context.Context) ([]email.MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	return append([]email.MessageHandle(nil), f.Handles...), nil
}

func (f *FakeFolder) Search(ctx context.Context, criteria *imap.SearchCriteria) ([]email.MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("search")
	f.LastCriteria = criteria
	return append([]email.MessageHandle(nil), f.SearchResult...), nil
}

func (f *FakeFolder) ByUID(ctx context.Context, uid uint32) (email.MessageHandle, error) {
	handles, err := f.ByUIDRange(ctx, uid, uid)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, fmt.Errorf("uid %d: %w", uid, source.ErrNotFound)
	}
	return handles[0], nil
}

func (f *FakeFolder) ByUIDRange(ctx context.Context, start, end uint32) ([]email.MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("uid")

	var out []email.MessageHandle
	for _, h := range f.Handles {
		uid, err := h.UID()
		if err != nil {
			continue
		}
		if uid >= start && (end == 0 || uid <= end) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *FakeFolder) Prefetch(ctx context.Context, handles []email.MessageHandle, profile email.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("prefetch")
	f.PrefetchCalls++
	f.Profiles = append(f.Profiles, profile)
	return f.PrefetchErr
}

func (f *FakeFolder) AddListener(_ email.Profile, fn func(email.MessageHandle)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]func(email.MessageHandle))
	}
	f.nextID++
	id := f.nextID
	f.listeners[id] = fn

	var once gosync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.record("remove")
			f.RemoveCalls++
			delete(f.listeners, id)
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (f *FakeFolder) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *FakeFolder) deliver(handles []email.MessageHandle) {
	f.mu.Lock()
	fns := make([]func(email.MessageHandle), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		for _, h := range handles {
			fn(h)
		}
	}
}

func (f *FakeFolder) WaitForPush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.record("wait")
	f.WaitCalls++
	if len(f.Steps) == 0 {
		f.mu.Unlock()
		return source.ErrFolderClosed
	}
	step := f.Steps[0]
	f.Steps = f.Steps[1:]
	f.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.deliver(step.Deliver)
	return step.Err
}

func (f *FakeFolder) Poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.record("poll")
	f.PollCalls++
	var batch []email.MessageHandle
	if len(f.PollDeliver) > 0 {
		batch = f.PollDeliver[0]
		f.PollDeliver = f.PollDeliver[1:]
	}
	err := f.PollErr
	f.mu.Unlock()

	f.deliver(batch)
	return err
}

func (f *FakeFolder) Keepalive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("keepalive")
	f.KeepaliveCalls++
	return f.KeepaliveErr
}

func (f *FakeFolder) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *FakeFolder) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disconnected
}

// Disconnect simulates a dropped connection.
func (f *FakeFolder) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *FakeFolder) Close(bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close")
	f.CloseCalls++
	f.closed = true
	return f.CloseErr
}

// Counts returns a snapshot of the call counters.
func (f *FakeFolder) Counts() (wait, poll, keepalive, closes, removes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.WaitCalls, f.PollCalls, f.KeepaliveCalls, f.CloseCalls, f.RemoveCalls
}

// FakeOpener hands out Folder on every Open.
type FakeOpener struct {
	Folder email.Folder
	Err    error

	mu       gosync.Mutex
	Opened   int
	ReadOnly []bool
}

func (o *FakeOpener) Open(ctx context.Context, _ string, readOnly bool) (email.Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Opened++
	o.ReadOnly = append(o.ReadOnly, readOnly)
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Folder, nil
}
