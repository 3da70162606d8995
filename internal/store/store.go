package store

import (
	"context"
	"time"
)

// ListenSession is one recorded run of the push listener.
type ListenSession struct {
	ID        string
	Folder    string
	StartedAt time.Time
	EndedAt   *time.Time
	Delivered int
}

// Store defines the persistence interface for listener checkpoints and
// listen session history.
type Store interface {
	// GetCheckpoint returns the highest delivered UID for the folder
	// generation, or 0 when none was recorded.
	GetCheckpoint(ctx context.Context, folder string, uidValidity uint32) (uint32, error)

	// SaveCheckpoint records lastUID. A value below the stored one is
	// ignored.
	SaveCheckpoint(ctx context.Context, folder string, uidValidity, lastUID uint32) error

	StartSession(ctx context.Context, folder string) (string, error)
	EndSession(ctx context.Context, id string, delivered int) error

	// ListSessions returns the most recent sessions first. limit <= 0
	// returns all of them.
	ListSessions(ctx context.Context, limit int) ([]ListenSession, error)

	Close() error
}
