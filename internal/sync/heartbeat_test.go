package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailreader/internal/source"
	"github.com/nhle/mailreader/tests/testutil"
)

func runHeartbeat(t *testing.T, hb *Heartbeat) (cancel context.CancelFunc, done <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		hb.Run(ctx)
	}()
	t.Cleanup(cancel)
	return cancel, ch
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop")
	}
}

func TestHeartbeatSendsKeepalives(t *testing.T) {
	folder := testutil.NewFakeFolder("INBOX")
	cancel, done := runHeartbeat(t, &Heartbeat{Folder: folder, Interval: 5 * time.Millisecond, Log: zerolog.Nop()})

	assert.Eventually(t, func() bool {
		_, _, keepalive, _, _ := folder.Counts()
		return keepalive >= 3
	}, time.Second, time.Millisecond)

	cancel()
	waitDone(t, done)
}

func TestHeartbeatStopsWhenDisconnected(t *testing.T) {
	folder := testutil.NewFakeFolder("INBOX")
	folder.Disconnect()
	_, done := runHeartbeat(t, &Heartbeat{Folder: folder, Interval: time.Millisecond, Log: zerolog.Nop()})

	waitDone(t, done)
	_, _, keepalive, _, _ := folder.Counts()
	assert.Zero(t, keepalive)
}

func TestHeartbeatStopsOnClosedFolder(t *testing.T) {
	folder := testutil.NewFakeFolder("INBOX")
	folder.KeepaliveErr = source.ErrFolderClosed
	_, done := runHeartbeat(t, &Heartbeat{Folder: folder, Interval: time.Millisecond, Log: zerolog.Nop()})

	waitDone(t, done)
	_, _, keepalive, _, _ := folder.Counts()
	assert.Equal(t, 1, keepalive)
}

func TestHeartbeatReportsErrors(t *testing.T) {
	folder := testutil.NewFakeFolder("INBOX")
	folder.KeepaliveErr = errors.New("NOOP timed out")

	var (
		mu   gosync.Mutex
		errs []error
	)
	cancel, done := runHeartbeat(t, &Heartbeat{
		Folder:   folder,
		Interval: time.Millisecond,
		OnError: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		},
		Log: zerolog.Nop(),
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) >= 2
	}, time.Second, time.Millisecond)
	cancel()
	waitDone(t, done)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, errs)
	assert.EqualError(t, errs[0], "NOOP timed out")
}

func TestListenerRunsHeartbeat(t *testing.T) {
	folder := testutil.NewFakeFolder("INBOX")
	folder.Steps = []testutil.PushStep{{Block: true}}
	rec := &recorder{}
	l, _ := newTestListener(folder, rec)
	l.HeartbeatInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, _, keepalive, _, _ := folder.Counts()
		return keepalive >= 2
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
