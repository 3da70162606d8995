package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: ":memory:" databases are per connection and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) GetCheckpoint(
	ctx context.Context,
	folder string,
	uidValidity uint32,
) (uint32, error) {
	var last int64
	err := s.db.GetContext(ctx, &last,
		"SELECT last_uid FROM checkpoints WHERE folder = ? AND uid_validity = ?",
		folder, int64(uidValidity),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting checkpoint for %s: %w", folder, err)
	}
	return uint32(last), nil
}

func (s *SQLiteStore) SaveCheckpoint(
	ctx context.Context,
	folder string,
	uidValidity, lastUID uint32,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (folder, uid_validity, last_uid, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (folder, uid_validity) DO UPDATE SET
			last_uid   = excluded.last_uid,
			updated_at = excluded.updated_at
		WHERE excluded.last_uid > checkpoints.last_uid`,
		folder, int64(uidValidity), int64(lastUID), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint for %s: %w", folder, err)
	}
	return nil
}

// StartSession records the start of a listen run and returns its id.
func (s *SQLiteStore) StartSession(ctx context.Context, folder string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO listen_sessions (id, folder, started_at) VALUES (?, ?, ?)",
		id, folder, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("starting session: %w", err)
	}
	return id, nil
}

// EndSession stamps the end time and delivered count of session id.
func (s *SQLiteStore) EndSession(ctx context.Context, id string, delivered int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE listen_sessions SET ended_at = ?, delivered = ? WHERE id = ?",
		time.Now().UTC(), delivered, id,
	)
	if err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ending session %s: no such session", id)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]ListenSession, error) {
	query := "SELECT id, folder, started_at, ended_at, delivered FROM listen_sessions ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []ListenSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// scanSession scans a listen session row from a sqlx.Rows result set.
func scanSession(rows *sqlx.Rows) (ListenSession, error) {
	var (
		sess    ListenSession
		endedAt sql.NullTime
	)

	err := rows.Scan(&sess.ID, &sess.Folder, &sess.StartedAt, &endedAt, &sess.Delivered)
	if err != nil {
		return ListenSession{}, fmt.Errorf("scanning session row: %w", err)
	}

	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	return sess, nil
}
