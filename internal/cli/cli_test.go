package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/source"
	"github.com/nhle/mailreader/internal/source/email"
	"github.com/nhle/mailreader/internal/store"
	"github.com/nhle/mailreader/tests/testutil"
)

// fakeReader records the last call and serves canned messages.
type fakeReader struct {
	messages []model.Message
	folders  []source.FolderInfo
	err      error

	folder   string
	opts     model.FetchOptions
	limit    int
	criteria model.SearchCriteria
	start    uint32
	end      uint32
}

func (r *fakeReader) Fetch(_ context.Context, folder string, opts model.FetchOptions, limit int) ([]model.Message, error) {
	r.folder, r.opts, r.limit = folder, opts, limit
	return r.messages, r.err
}

func (r *fakeReader) Search(_ context.Context, folder string, c model.SearchCriteria, opts model.FetchOptions, limit int) ([]model.Message, error) {
	r.folder, r.criteria, r.opts, r.limit = folder, c, opts, limit
	return r.messages, r.err
}

func (r *fakeReader) GetByUID(_ context.Context, folder string, uid uint32, opts model.FetchOptions) (*model.Message, error) {
	r.folder, r.start, r.opts = folder, uid, opts
	if r.err != nil {
		return nil, r.err
	}
	for i := range r.messages {
		if m := r.messages[i]; m.UID != nil && *m.UID == uid {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("uid %d: %w", uid, source.ErrNotFound)
}

func (r *fakeReader) GetByUIDRange(_ context.Context, folder string, start, end uint32, opts model.FetchOptions) ([]model.Message, error) {
	r.folder, r.start, r.end, r.opts = folder, start, end, opts
	return r.messages, r.err
}

func (r *fakeReader) Folders(context.Context) ([]source.FolderInfo, error) {
	return r.folders, r.err
}

func (r *fakeReader) FetchRaw(_ context.Context, folder string, opts model.FetchOptions, limit int) ([]email.MessageHandle, error) {
	r.folder, r.opts, r.limit = folder, opts, limit
	return []email.MessageHandle{testutil.NewFakeHandle(1, 9, "Subject: raw\n\nbytes\n")}, r.err
}

func uidPtr(n uint32) *uint32 { return &n }

func testConfig(t *testing.T) *model.AppConfig {
	t.Helper()
	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Account.Host = "imap.example.org"
	cfg.Listen.CheckpointDB = filepath.Join(t.TempDir(), "checkpoints.db")
	cfg.Log.Level = "error"
	return cfg
}

func run(t *testing.T, r *fakeReader, cfg *model.AppConfig, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	env := &Env{
		Config: cfg,
		Out:    &out,
		NewReader: func(model.AppConfig, string, zerolog.Logger) Reader {
			return r
		},
	}
	cmd := NewRootCmd(env)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFetchWritesJSONLines(t *testing.T) {
	r := &fakeReader{messages: []model.Message{
		{UID: uidPtr(1), SeqNum: 1, Subject: "one"},
		{UID: uidPtr(2), SeqNum: 2, Subject: "two"},
	}}
	cfg := testConfig(t)

	out, err := run(t, r, cfg, "fetch", "--limit", "2", "--no-attachments")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var first model.Message
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "one", first.Subject)

	assert.Equal(t, "INBOX", r.folder)
	assert.Equal(t, 2, r.limit)
	assert.False(t, r.opts.IncludeAttachments)
	assert.True(t, r.opts.IncludeBody)
}

func TestFetchDefaultsFromConfig(t *testing.T) {
	r := &fakeReader{}
	cfg := testConfig(t)
	cfg.Fetch.Limit = 7
	cfg.Fetch.Folder = "Archive"

	_, err := run(t, r, cfg, "fetch")
	require.NoError(t, err)
	assert.Equal(t, 7, r.limit)
	assert.Equal(t, "Archive", r.folder)
}

func TestFetchRaw(t *testing.T) {
	r := &fakeReader{}
	out, err := run(t, r, testConfig(t), "fetch", "--raw", "--folder", "Sent")
	require.NoError(t, err)

	var rec rawRecord
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &rec))
	assert.EqualValues(t, 1, rec.SeqNum)
	require.NotNil(t, rec.UID)
	assert.EqualValues(t, 9, *rec.UID)
	assert.Equal(t, "Subject: raw\r\n\r\nbytes\r\n", rec.Raw)
	assert.True(t, r.opts.Raw)
	assert.Equal(t, "Sent", r.folder)
}

func TestSearchFlags(t *testing.T) {
	r := &fakeReader{}
	_, err := run(t, r, testConfig(t), "search", "--subject", "invoice", "--unseen", "--since", "2024-03-01")
	require.NoError(t, err)

	assert.Equal(t, "invoice", r.criteria.SubjectContains)
	assert.True(t, r.criteria.Unseen)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), r.criteria.ReceivedSince)
}

func TestSearchRejectsBadDate(t *testing.T) {
	_, err := run(t, &fakeReader{}, testConfig(t), "search", "--sent-before", "03/01/2024")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestShow(t *testing.T) {
	r := &fakeReader{messages: []model.Message{{UID: uidPtr(4211), Subject: "Quarterly report"}}}

	out, err := run(t, r, testConfig(t), "show", "4211")
	require.NoError(t, err)
	assert.Contains(t, out, "Subject:  Quarterly report")

	_, err = run(t, r, testConfig(t), "show", "4212")
	assert.ErrorIs(t, err, source.ErrNotFound)

	_, err = run(t, r, testConfig(t), "show", "abc")
	assert.ErrorContains(t, err, "invalid uid")
}

func TestUIDs(t *testing.T) {
	r := &fakeReader{}

	_, err := run(t, r, testConfig(t), "uids", "40", "*")
	require.NoError(t, err)
	assert.EqualValues(t, 40, r.start)
	assert.Zero(t, r.end)

	_, err = run(t, r, testConfig(t), "uids", "40", "45")
	require.NoError(t, err)
	assert.EqualValues(t, 45, r.end)

	_, err = run(t, r, testConfig(t), "uids", "0")
	assert.Error(t, err)
}

func TestFolders(t *testing.T) {
	r := &fakeReader{folders: []source.FolderInfo{
		{Name: "INBOX", Messages: 120, Unseen: 3},
		{Name: "Archive", Messages: 4000},
	}}
	out, err := run(t, r, testConfig(t), "folders")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"FOLDER", "MESSAGES", "UNSEEN"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"INBOX", "120", "3"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"Archive", "4000", "0"}, strings.Fields(lines[2]))
}

func TestSessions(t *testing.T) {
	cfg := testConfig(t)
	st, err := store.NewSQLiteStore(cfg.Listen.CheckpointDB)
	require.NoError(t, err)
	id, err := st.StartSession(context.Background(), "INBOX")
	require.NoError(t, err)
	require.NoError(t, st.EndSession(context.Background(), id, 3))
	require.NoError(t, st.Close())

	out, err := run(t, &fakeReader{}, cfg, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "INBOX")
}

func TestReaderErrorsPropagate(t *testing.T) {
	r := &fakeReader{err: &source.AuthError{Username: "ann", Message: "bad credentials"}}
	_, err := run(t, r, testConfig(t), "fetch")
	assert.True(t, source.IsAuthError(err))
}

func TestPasswordRequiresHost(t *testing.T) {
	env := &Env{Config: &model.AppConfig{}}
	_, err := env.password()
	assert.ErrorContains(t, err, "no account configured")
}

func TestNewListenerFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Listen.PollIntervalSec = 30
	cfg.Listen.HeartbeatIntervalSec = 120

	l := newListener(cfg, &testutil.FakeOpener{}, "Lists", zerolog.Nop())
	assert.Equal(t, "Lists", l.Folder)
	assert.Equal(t, 30*time.Second, l.PollInterval)
	assert.Equal(t, 5*time.Second, l.Backoff)
	assert.Equal(t, 25*time.Minute, l.IdleKeepalive)
	assert.Equal(t, 2*time.Minute, l.HeartbeatInterval)
	assert.Equal(t, cfg.Fetch.FetchOptions, l.Options)
}
