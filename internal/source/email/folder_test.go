package email

import (
	"bytes"
	"context"
	"errors"
	"net"
	"regexp"
	gosync "sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/source"
)

const waitTimeout = 3 * time.Second

// lockedBuffer collects the server's protocol trace from every connection.
type lockedBuffer struct {
	mu  gosync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type memServer struct {
	user  *imapmemserver.User
	port  int
	trace *lockedBuffer
}

func newMemServer(t *testing.T) *memServer {
	t.Helper()

	mem := imapmemserver.New()
	user := imapmemserver.NewUser("ann", "secret")
	require.NoError(t, user.Create("INBOX", nil))
	mem.AddUser(user)

	trace := &lockedBuffer{}
	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
		InsecureAuth: true,
		DebugWriter:  trace,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return &memServer{user: user, port: ln.Addr().(*net.TCPAddr).Port, trace: trace}
}

func (m *memServer) connect(t *testing.T) *Session {
	t.Helper()
	c := NewIMAPClient(model.AccountConfig{
		Host:     "127.0.0.1",
		Port:     m.port,
		Username: "ann",
		Security: model.SecurityInsecure,
	}, "secret", zerolog.Nop())

	s, err := c.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (m *memServer) append(t *testing.T, subject string) {
	t.Helper()
	raw := []byte("From: ann@example.org\r\nSubject: " + subject + "\r\n" +
		"Content-Type: text/plain\r\n\r\nhello\r\n")
	_, err := m.user.Append("INBOX", bytes.NewReader(raw), &imap.AppendOptions{})
	require.NoError(t, err)
}

var closeCommand = regexp.MustCompile(`(?m)^\S+ CLOSE\r?$`)

func (m *memServer) closeCommands() int {
	return len(closeCommand.FindAllString(m.trace.String(), -1))
}

func openInbox(t *testing.T, s *Session) *imapFolder {
	t.Helper()
	f, err := s.Open(context.Background(), "INBOX", true)
	require.NoError(t, err)
	return f.(*imapFolder)
}

func (f *imapFolder) isIdling() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idling
}

// collector records pushed handles.
type collector struct {
	mu      gosync.Mutex
	handles []MessageHandle
}

func (c *collector) add(h MessageHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = append(c.handles, h)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func startWait(ctx context.Context, f *imapFolder) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.WaitForPush(ctx) }()
	return done
}

func await(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("WaitForPush did not return")
		return nil
	}
}

func TestFolderIdleWakesOnNewMail(t *testing.T) {
	srv := newMemServer(t)
	f := openInbox(t, srv.connect(t))

	var got collector
	f.AddListener(ProfileFor(false), got.add)

	done := startWait(context.Background(), f)
	require.Eventually(t, f.isIdling, waitTimeout, 5*time.Millisecond)

	srv.append(t, "first")
	require.NoError(t, await(t, done))

	require.Equal(t, 1, got.len())
	h := got.handles[0]
	uid, err := h.UID()
	require.NoError(t, err)
	assert.EqualValues(t, 1, uid)
	require.NotNil(t, h.Envelope())
	assert.Equal(t, "first", h.Envelope().Subject)
	assert.False(t, f.isIdling())
}

func TestFolderKeepaliveWakesIdle(t *testing.T) {
	srv := newMemServer(t)
	f := openInbox(t, srv.connect(t))

	done := startWait(context.Background(), f)
	require.Eventually(t, f.isIdling, waitTimeout, 5*time.Millisecond)

	require.NoError(t, f.Keepalive(context.Background()))
	require.NoError(t, await(t, done))
	assert.Contains(t, srv.trace.String(), "NOOP")
}

func TestFolderPollDuringIdleDoesNotBlock(t *testing.T) {
	srv := newMemServer(t)
	f := openInbox(t, srv.connect(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := startWait(ctx, f)
	require.Eventually(t, f.isIdling, waitTimeout, 5*time.Millisecond)

	polled := make(chan error, 1)
	go func() { polled <- f.Poll(context.Background()) }()
	select {
	case err := <-polled:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Poll blocked behind IDLE")
	}

	cancel()
	err := await(t, done)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestFolderHeartbeatRacingIdleHandshake(t *testing.T) {
	srv := newMemServer(t)
	f := openInbox(t, srv.connect(t))

	ctx, cancel := context.WithCancel(context.Background())
	loop := make(chan struct{})
	go func() {
		defer close(loop)
		for ctx.Err() == nil {
			if err := f.WaitForPush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("WaitForPush: %v", err)
				return
			}
		}
	}()

	keepalives := make(chan struct{})
	go func() {
		defer close(keepalives)
		deadline := time.Now().Add(200 * time.Millisecond)
		for time.Now().Before(deadline) {
			if err := f.Keepalive(context.Background()); err != nil {
				t.Errorf("Keepalive: %v", err)
				return
			}
		}
	}()

	select {
	case <-keepalives:
	case <-time.After(waitTimeout):
		cancel()
		t.Fatal("Keepalive blocked behind IDLE")
	}

	cancel()
	select {
	case <-loop:
	case <-time.After(waitTimeout):
		t.Fatal("IDLE loop did not stop")
	}
}

func TestFolderCancelDuringIdle(t *testing.T) {
	srv := newMemServer(t)
	f := openInbox(t, srv.connect(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := startWait(ctx, f)
	require.Eventually(t, f.isIdling, waitTimeout, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, await(t, done), context.Canceled)
	assert.False(t, f.isIdling())
}

func TestFolderKeepaliveNeverDelivers(t *testing.T) {
	srv := newMemServer(t)
	f := openInbox(t, srv.connect(t))

	var got collector
	f.AddListener(ProfileFor(false), got.add)

	srv.append(t, "pending")
	require.NoError(t, f.Keepalive(context.Background()))
	assert.Zero(t, got.len())
	assert.EqualValues(t, 1, f.count(), "EXISTS seen by the NOOP")

	require.NoError(t, f.Poll(context.Background()))
	assert.Equal(t, 1, got.len())

	require.NoError(t, f.Poll(context.Background()))
	assert.Equal(t, 1, got.len(), "nothing new")
}

func TestFolderCloseSendsCloseOnce(t *testing.T) {
	srv := newMemServer(t)
	s := srv.connect(t)
	f := openInbox(t, s)

	require.NoError(t, f.Close(false))
	require.NoError(t, f.Close(false))
	assert.False(t, f.IsOpen())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, srv.closeCommands())
	assert.ErrorIs(t, f.Keepalive(context.Background()), source.ErrFolderClosed)
}

func TestFolderCloseDuringIdle(t *testing.T) {
	srv := newMemServer(t)
	f := openInbox(t, srv.connect(t))

	done := startWait(context.Background(), f)
	require.Eventually(t, f.isIdling, waitTimeout, 5*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- f.Close(false) }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Close blocked behind IDLE")
	}

	require.NoError(t, await(t, done))
	assert.Equal(t, 1, srv.closeCommands())
}
