package email

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/mailreader/internal/source"
)

// DefaultIdleKeepalive bounds a single IDLE command. RFC 2177 asks
// clients to re-issue IDLE at least every 29 minutes.
const DefaultIdleKeepalive = 25 * time.Minute

var errUIDUnsupported = errors.New("folder does not support UIDs")

type listener struct {
	id      int
	profile Profile
	fn      func(MessageHandle)
}

// imapFolder serializes every command through mu. Unilateral EXISTS and
// EXPUNGE updates arrive on the client's reader goroutine and only touch
// the counters guarded by countMu.
//
// While IDLE runs the connection cannot carry other commands, yet mu is
// released so that other goroutines can observe idling. They must not queue
// a command then: they signal wake and let WaitForPush end IDLE itself.
type imapFolder struct {
	session  *Session
	client   *imapclient.Client
	name     string
	readOnly bool
	log      zerolog.Logger

	uidValidity uint32
	keepalive   time.Duration

	mu        gosync.Mutex
	listeners []listener
	nextID    int
	idling    bool
	idleDone  chan struct{}

	countMu gosync.Mutex
	exists  uint32
	known   uint32

	open    atomic.Bool
	newMail chan struct{}
	wake    chan struct{}
}

func newIMAPFolder(s *Session, name string, readOnly bool, data *imap.SelectData) *imapFolder {
	f := &imapFolder{
		session:     s,
		client:      s.client,
		name:        name,
		readOnly:    readOnly,
		log:         s.log.With().Str("folder", name).Logger(),
		uidValidity: data.UIDValidity,
		keepalive:   DefaultIdleKeepalive,
		exists:      data.NumMessages,
		known:       data.NumMessages,
		newMail:     make(chan struct{}, 1),
		wake:        make(chan struct{}, 1),
	}
	f.open.Store(true)
	return f
}

// SetIdleKeepalive overrides DefaultIdleKeepalive for folders opened on
// this session. d <= 0 is ignored.
func SetIdleKeepalive(folder Folder, d time.Duration) {
	if f, ok := folder.(*imapFolder); ok && d > 0 {
		f.keepalive = d
	}
}

// UIDValidity returns the folder's UIDVALIDITY, or 0 when the server does
// not support UIDs.
func UIDValidity(folder Folder) uint32 {
	if f, ok := folder.(interface{ UIDValidity() uint32 }); ok {
		return f.UIDValidity()
	}
	return 0
}

func (f *imapFolder) Name() string        { return f.name }
func (f *imapFolder) UIDValidity() uint32 { return f.uidValidity }
func (f *imapFolder) IsOpen() bool        { return f.open.Load() }
func (f *imapFolder) Connected() bool     { return f.session.Connected() }

func (f *imapFolder) supportsUID() bool { return f.uidValidity != 0 }

func (f *imapFolder) supportsIdle() bool {
	caps := f.client.Caps()
	return caps.Has(imap.CapIdle) || caps.Has(imap.CapIMAP4rev2)
}

func (f *imapFolder) setExists(n uint32) {
	f.countMu.Lock()
	grew := n > f.exists
	f.exists = n
	f.countMu.Unlock()

	if grew {
		select {
		case f.newMail <- struct{}{}:
		default:
		}
	}
}

func (f *imapFolder) expunged(seq uint32) {
	f.countMu.Lock()
	defer f.countMu.Unlock()
	if f.exists > 0 {
		f.exists--
	}
	if seq <= f.known && f.known > 0 {
		f.known--
	}
}

func (f *imapFolder) count() uint32 {
	f.countMu.Lock()
	defer f.countMu.Unlock()
	return f.exists
}

func (f *imapFolder) checkUsable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !f.IsOpen() || !f.Connected() {
		return source.ErrFolderClosed
	}
	return nil
}

func (f *imapFolder) List(ctx context.Context) ([]MessageHandle, error) {
	if err := f.checkUsable(ctx); err != nil {
		return nil, err
	}
	n := f.count()
	handles := make([]MessageHandle, 0, n)
	for seq := uint32(1); seq <= n; seq++ {
		handles = append(handles, f.handle(seq, 0))
	}
	return handles, nil
}

func (f *imapFolder) Search(
	ctx context.Context, criteria *imap.SearchCriteria,
) ([]MessageHandle, error) {
	if err := f.checkUsable(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.supportsUID() {
		data, err := f.client.Search(criteria, nil).Wait()
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", f.name, err)
		}
		seqs := data.AllSeqNums()
		handles := make([]MessageHandle, 0, len(seqs))
		for _, seq := range seqs {
			handles = append(handles, f.handle(seq, 0))
		}
		return handles, nil
	}

	data, err := f.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", f.name, err)
	}
	uids := data.AllUIDs()
	handles := make([]MessageHandle, 0, len(uids))
	for _, uid := range uids {
		handles = append(handles, f.handle(0, uid))
	}
	return handles, nil
}

func (f *imapFolder) ByUID(ctx context.Context, uid uint32) (MessageHandle, error) {
	handles, err := f.uidSearch(ctx, imap.UIDSetNum(imap.UID(uid)))
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, fmt.Errorf("uid %d in %s: %w", uid, f.name, source.ErrNotFound)
	}
	return handles[0], nil
}

// ByUIDRange returns handles only for UIDs that exist. end 0 means the
// highest UID in the folder.
func (f *imapFolder) ByUIDRange(
	ctx context.Context, start, end uint32,
) ([]MessageHandle, error) {
	var set imap.UIDSet
	set.AddRange(imap.UID(start), imap.UID(end))
	return f.uidSearch(ctx, set)
}

func (f *imapFolder) uidSearch(ctx context.Context, set imap.UIDSet) ([]MessageHandle, error) {
	if err := f.checkUsable(ctx); err != nil {
		return nil, err
	}
	if !f.supportsUID() {
		return nil, fmt.Errorf("searching %s by uid: %w", f.name, errUIDUnsupported)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.client.UIDSearch(&imap.SearchCriteria{
		UID: []imap.UIDSet{set},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s by uid: %w", f.name, err)
	}

	uids := data.AllUIDs()
	handles := make([]MessageHandle, 0, len(uids))
	for _, uid := range uids {
		handles = append(handles, f.handle(0, uid))
	}
	return handles, nil
}

func (f *imapFolder) handle(seq uint32, uid imap.UID) *imapHandle {
	return &imapHandle{seq: seq, uid: uid, uidSupported: f.supportsUID()}
}

func (f *imapFolder) Prefetch(
	ctx context.Context, handles []MessageHandle, profile Profile,
) error {
	if err := f.checkUsable(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefetchLocked(handles, profile)
}

func (f *imapFolder) prefetchLocked(handles []MessageHandle, profile Profile) error {
	if len(handles) == 0 {
		return nil
	}

	byUID := f.supportsUID()
	items := make([]*imapHandle, 0, len(handles))
	for _, mh := range handles {
		h, ok := mh.(*imapHandle)
		if !ok {
			return fmt.Errorf("prefetch: foreign handle %T", mh)
		}
		if h.uid == 0 {
			byUID = false
		}
		items = append(items, h)
	}

	var numSet imap.NumSet
	if byUID {
		uids := make([]imap.UID, 0, len(items))
		for _, h := range items {
			uids = append(uids, h.uid)
		}
		numSet = imap.UIDSetNum(uids...)
	} else {
		seqs := make([]uint32, 0, len(items))
		for _, h := range items {
			if h.seq == 0 {
				return fmt.Errorf("prefetch: handle has neither sequence number nor uid")
			}
			seqs = append(seqs, h.seq)
		}
		numSet = imap.SeqSetNum(seqs...)
	}

	options, section := fetchOptions(profile, f.supportsUID())
	bufs, err := f.client.Fetch(numSet, options).Collect()
	if err != nil {
		return f.transportErr("fetching", err)
	}

	index := make(map[uint32]*imapclient.FetchMessageBuffer, len(bufs))
	for _, buf := range bufs {
		if byUID {
			index[uint32(buf.UID)] = buf
		} else {
			index[buf.SeqNum] = buf
		}
	}

	for _, h := range items {
		key := h.seq
		if byUID {
			key = uint32(h.uid)
		}
		buf, ok := index[key]
		if !ok {
			continue
		}
		h.fill(buf, section)
	}
	return nil
}

func fetchOptions(profile Profile, withUID bool) (*imap.FetchOptions, *imap.FetchItemBodySection) {
	options := &imap.FetchOptions{
		Envelope:     profile.Envelope,
		Flags:        profile.Flags,
		UID:          profile.UID && withUID,
		InternalDate: profile.InternalDate,
	}

	var section *imap.FetchItemBodySection
	switch {
	case profile.Content:
		section = &imap.FetchItemBodySection{Peek: true}
	case profile.Header:
		section = &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}
	}
	if section != nil {
		options.BodySection = []*imap.FetchItemBodySection{section}
	}
	return options, section
}

func (f *imapFolder) AddListener(profile Profile, fn func(MessageHandle)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.listeners = append(f.listeners, listener{id: id, profile: profile, fn: fn})

	var once gosync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			for i, l := range f.listeners {
				if l.id == id {
					f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// WaitForPush runs one IDLE cycle. It returns after new mail was collected
// and delivered, on a wake from Keepalive, Poll or Close, when the IDLE
// keepalive elapses, on cancellation, or when the connection drops.
func (f *imapFolder) WaitForPush(ctx context.Context) error {
	if err := f.checkUsable(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	if !f.supportsIdle() {
		f.mu.Unlock()
		return source.ErrIdleUnsupported
	}

	idle, err := f.client.Idle()
	if err != nil {
		f.mu.Unlock()
		return f.idleErr(err)
	}
	f.idling = true
	f.idleDone = make(chan struct{})
	f.mu.Unlock()

	timer := time.NewTimer(f.keepalive)
	defer timer.Stop()

	var woke, cancelled bool
	select {
	case <-ctx.Done():
		cancelled = true
	case <-f.newMail:
	case <-f.wake:
		woke = true
	case <-timer.C:
	case <-f.client.Closed():
	}

	f.mu.Lock()
	err = idle.Close()
	if err == nil {
		err = idle.Wait()
	}
	f.idling = false
	close(f.idleDone)
	// A wake that arrived after another event still asks for a round trip.
	select {
	case <-f.wake:
		woke = true
	default:
	}

	if err != nil {
		f.mu.Unlock()
		return f.idleErr(err)
	}
	if cancelled {
		f.mu.Unlock()
		return ctx.Err()
	}

	if woke {
		if err := f.client.Noop().Wait(); err != nil {
			f.mu.Unlock()
			return f.transportErr("keepalive", err)
		}
	}

	batch, err := f.collectNewLocked()
	f.mu.Unlock()
	batch.deliver()
	return err
}

// Poll issues NOOP and delivers whatever arrived since the last check.
// Called while IDLE runs on another goroutine it only wakes WaitForPush,
// which collects on its way out.
func (f *imapFolder) Poll(ctx context.Context) error {
	if err := f.checkUsable(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	if f.idling {
		f.mu.Unlock()
		f.signalWake()
		return nil
	}
	if err := f.client.Noop().Wait(); err != nil {
		f.mu.Unlock()
		return f.transportErr("polling", err)
	}
	batch, err := f.collectNewLocked()
	f.mu.Unlock()
	batch.deliver()
	return err
}

// Keepalive forces a round trip and never delivers. New mail it observes
// stays pending for the next WaitForPush or Poll. During IDLE it wakes
// WaitForPush, which sends the NOOP once IDLE is done.
func (f *imapFolder) Keepalive(ctx context.Context) error {
	if err := f.checkUsable(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	if f.idling {
		f.mu.Unlock()
		f.signalWake()
		return nil
	}
	defer f.mu.Unlock()
	if err := f.client.Noop().Wait(); err != nil {
		return f.transportErr("keepalive", err)
	}
	return nil
}

func (f *imapFolder) signalWake() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// waitIdleLocked ends a running IDLE and returns with mu held and no IDLE
// in progress.
func (f *imapFolder) waitIdleLocked() {
	for f.idling {
		done := f.idleDone
		f.mu.Unlock()
		f.signalWake()
		<-done
		f.mu.Lock()
	}
}

// pushBatch pairs freshly arrived handles with a snapshot of the listeners
// so callbacks run without mu held.
type pushBatch struct {
	handles   []MessageHandle
	listeners []listener
}

func (b pushBatch) deliver() {
	for _, l := range b.listeners {
		for _, h := range b.handles {
			l.fn(h)
		}
	}
}

func (f *imapFolder) collectNewLocked() (pushBatch, error) {
	f.countMu.Lock()
	from, to := f.known, f.exists
	if to > from {
		f.known = to
	}
	f.countMu.Unlock()

	if to <= from || len(f.listeners) == 0 {
		return pushBatch{}, nil
	}

	handles := make([]MessageHandle, 0, to-from)
	for seq := from + 1; seq <= to; seq++ {
		// Pushed handles are fetched by sequence number; UID comes back
		// with the prefetch.
		handles = append(handles, &imapHandle{seq: seq, uidSupported: f.supportsUID()})
	}

	var profile Profile
	for _, l := range f.listeners {
		profile = profile.union(l.profile)
	}
	if err := f.prefetchLocked(handles, profile); err != nil {
		return pushBatch{}, err
	}

	f.log.Debug().Int("count", len(handles)).Msg("new messages")
	listeners := append([]listener(nil), f.listeners...)
	return pushBatch{handles: handles, listeners: listeners}, nil
}

func (p Profile) union(o Profile) Profile {
	return Profile{
		Envelope:     p.Envelope || o.Envelope,
		Flags:        p.Flags || o.Flags,
		UID:          p.UID || o.UID,
		InternalDate: p.InternalDate || o.InternalDate,
		Content:      p.Content || o.Content,
		Header:       p.Header || o.Header,
	}
}

func (f *imapFolder) idleErr(err error) error {
	if !f.Connected() {
		return fmt.Errorf("%w: %v", source.ErrFolderClosed, err)
	}
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return fmt.Errorf("%w: %v", source.ErrIdleUnsupported, err)
	}
	return fmt.Errorf("idle on %s: %w", f.name, err)
}

func (f *imapFolder) transportErr(op string, err error) error {
	if !f.Connected() {
		return fmt.Errorf("%s %s: %w: %v", op, f.name, source.ErrFolderClosed, err)
	}
	return fmt.Errorf("%s %s: %w", op, f.name, err)
}

// Close unselects the folder. Read-only folders use CLOSE, which never
// expunges an EXAMINEd mailbox. Calling Close again is a no-op.
func (f *imapFolder) Close(expunge bool) error {
	if !f.open.CompareAndSwap(true, false) {
		return nil
	}
	defer f.session.release(f)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitIdleLocked()
	f.listeners = nil

	if !f.Connected() {
		return nil
	}

	var cmd *imapclient.Command
	caps := f.client.Caps()
	switch {
	case expunge || f.readOnly:
		cmd = f.client.UnselectAndExpunge()
	case caps.Has(imap.CapUnselect) || caps.Has(imap.CapIMAP4rev2):
		cmd = f.client.Unselect()
	default:
		f.log.Warn().Msg("server lacks UNSELECT; folder stays selected until logout")
		return nil
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("closing %s: %w", f.name, err)
	}
	f.log.Debug().Msg("folder closed")
	return nil
}
