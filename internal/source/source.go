package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/mailreader/internal/model"
)

// AuthError indicates that authentication has failed or expired.
// It is returned by source clients when the server rejects the login.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

var (
	// ErrIdleUnsupported is returned by a push wait on servers that do not
	// advertise IDLE. Callers fall back to polling.
	ErrIdleUnsupported = errors.New("IDLE not supported by server")

	// ErrFolderClosed is returned once the folder or its connection has
	// gone away. It ends a push loop without being an error.
	ErrFolderClosed = errors.New("folder closed")

	// ErrNotFound is returned when a UID lookup matches no message.
	ErrNotFound = errors.New("message not found")
)

// FolderInfo summarizes one mailbox.
type FolderInfo struct {
	Name     string
	Messages int
	Unseen   int
}

// Reader defines the read-only operations exposed to callers. Every
// method opens the folder it needs and closes it before returning.
type Reader interface {
	// Fetch lists the folder and returns the last limit messages
	// (all when limit is 0) in server order.
	Fetch(
		ctx context.Context,
		folder string,
		opts model.FetchOptions,
		limit int,
	) ([]model.Message, error)

	// Search returns the messages matching criteria, in result order.
	Search(
		ctx context.Context,
		folder string,
		criteria model.SearchCriteria,
		opts model.FetchOptions,
		limit int,
	) ([]model.Message, error)

	// GetByUID returns a single message or ErrNotFound.
	GetByUID(
		ctx context.Context,
		folder string,
		uid uint32,
		opts model.FetchOptions,
	) (*model.Message, error)

	// GetByUIDRange returns the messages with UIDs in [start, end] in UID
	// order. UIDs with no message are omitted. An end of 0 means "*".
	GetByUIDRange(
		ctx context.Context,
		folder string,
		start, end uint32,
		opts model.FetchOptions,
	) ([]model.Message, error)

	// Folders lists every mailbox with its counts.
	Folders(ctx context.Context) ([]FolderInfo, error)
}
