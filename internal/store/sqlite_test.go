package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailreader/internal/store"
	"github.com/nhle/mailreader/tests/testutil"
)

var _ store.Store = (*store.SQLiteStore)(nil)

func TestMigrationsApplied(t *testing.T) {
	s := testutil.NewTestStore(t)

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestReopenDoesNotReapplyMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveCheckpoint(context.Background(), "INBOX", 9, 40))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	last, err := s.GetCheckpoint(context.Background(), "INBOX", 9)
	require.NoError(t, err)
	assert.EqualValues(t, 40, last)
}

func TestCheckpointMissingIsZero(t *testing.T) {
	s := testutil.NewTestStore(t)

	last, err := s.GetCheckpoint(context.Background(), "INBOX", 1)
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestCheckpointOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.SaveCheckpoint(ctx, "INBOX", 1, 10))
	require.NoError(t, s.SaveCheckpoint(ctx, "INBOX", 1, 7))
	require.NoError(t, s.SaveCheckpoint(ctx, "INBOX", 1, 12))
	require.NoError(t, s.SaveCheckpoint(ctx, "INBOX", 1, 11))

	last, err := s.GetCheckpoint(ctx, "INBOX", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 12, last)
}

func TestCheckpointsAreScopedByUIDValidity(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.SaveCheckpoint(ctx, "INBOX", 1, 500))
	require.NoError(t, s.SaveCheckpoint(ctx, "INBOX", 2, 3))
	require.NoError(t, s.SaveCheckpoint(ctx, "Archive", 1, 42))

	for _, tt := range []struct {
		folder   string
		validity uint32
		want     uint32
	}{
		{"INBOX", 1, 500},
		{"INBOX", 2, 3},
		{"Archive", 1, 42},
		{"Archive", 2, 0},
	} {
		last, err := s.GetCheckpoint(ctx, tt.folder, tt.validity)
		require.NoError(t, err)
		assert.Equal(t, tt.want, last, "%s/%d", tt.folder, tt.validity)
	}
}

func TestCheckpointFullUIDRange(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	require.NoError(t, s.SaveCheckpoint(ctx, "INBOX", 4294967295, 4294967290))
	last, err := s.GetCheckpoint(ctx, "INBOX", 4294967295)
	require.NoError(t, err)
	assert.EqualValues(t, uint32(4294967290), last)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	first, err := s.StartSession(ctx, "INBOX")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.StartSession(ctx, "Lists")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, s.EndSession(ctx, first, 4))

	sessions, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, second, sessions[0].ID)
	assert.Equal(t, "Lists", sessions[0].Folder)
	assert.Nil(t, sessions[0].EndedAt)

	assert.Equal(t, first, sessions[1].ID)
	assert.Equal(t, 4, sessions[1].Delivered)
	require.NotNil(t, sessions[1].EndedAt)
	assert.False(t, sessions[1].EndedAt.Before(sessions[1].StartedAt))

	limited, err := s.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second, limited[0].ID)
}

func TestEndUnknownSession(t *testing.T) {
	s := testutil.NewTestStore(t)
	assert.Error(t, s.EndSession(context.Background(), "missing", 0))
}
