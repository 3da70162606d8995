package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/source"
)

// Connector opens authenticated sessions. *IMAPClient is the production
// implementation.
type Connector interface {
	Connect(ctx context.Context) (*Session, error)
}

// Adapter implements source.Reader over IMAP. Each call connects, opens
// its folder read-only and tears both down before returning.
type Adapter struct {
	open func(ctx context.Context) (sessionLike, error)
	log  zerolog.Logger
}

// sessionLike is the slice of *Session the adapter needs.
type sessionLike interface {
	Opener
	Folders(ctx context.Context) ([]source.FolderInfo, error)
	Close() error
}

var _ source.Reader = (*Adapter)(nil)

// NewAdapter creates a reader that connects through c.
func NewAdapter(c Connector, log zerolog.Logger) *Adapter {
	return &Adapter{
		open: func(ctx context.Context) (sessionLike, error) {
			return c.Connect(ctx)
		},
		log: log,
	}
}

func (a *Adapter) withFolder(
	ctx context.Context,
	name string,
	fn func(folder Folder) error,
) (err error) {
	session, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			a.log.Debug().Err(closeErr).Msg("closing session")
		}
	}()

	folder, err := session.Open(ctx, name, true)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := folder.Close(false); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(folder)
}

// Fetch returns the last limit messages of folder in server order.
func (a *Adapter) Fetch(
	ctx context.Context,
	folder string,
	opts model.FetchOptions,
	limit int,
) ([]model.Message, error) {
	var messages []model.Message
	err := a.withFolder(ctx, folder, func(f Folder) error {
		handles, err := f.List(ctx)
		if err != nil {
			return fmt.Errorf("listing %s: %w", folder, err)
		}
		messages, err = FetchBatch(ctx, f, handles, opts, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("folder", folder).Int("count", len(messages)).Msg("fetched")
	return messages, nil
}

// Search returns the messages matching criteria, keeping the last limit.
func (a *Adapter) Search(
	ctx context.Context,
	folder string,
	criteria model.SearchCriteria,
	opts model.FetchOptions,
	limit int,
) ([]model.Message, error) {
	var messages []model.Message
	err := a.withFolder(ctx, folder, func(f Folder) error {
		handles, err := f.Search(ctx, BuildSearchCriteria(criteria))
		if err != nil {
			return err
		}
		if criteria.MessageID == "" {
			messages, err = FetchBatch(ctx, f, handles, opts, limit)
			return err
		}

		// The limit applies after the exact Message-ID filter.
		all, err := FetchBatch(ctx, f, handles, opts, 0)
		if err != nil {
			return err
		}
		messages = FilterMessageID(all, criteria.MessageID)
		if limit > 0 && len(messages) > limit {
			messages = messages[len(messages)-limit:]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetByUID returns the message with uid, or an error wrapping
// source.ErrNotFound.
func (a *Adapter) GetByUID(
	ctx context.Context,
	folder string,
	uid uint32,
	opts model.FetchOptions,
) (*model.Message, error) {
	var msg *model.Message
	err := a.withFolder(ctx, folder, func(f Folder) error {
		h, err := f.ByUID(ctx, uid)
		if err != nil {
			return err
		}
		messages, err := FetchBatch(ctx, f, []MessageHandle{h}, opts, 0)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return fmt.Errorf("uid %d in %s: %w", uid, folder, source.ErrNotFound)
		}
		msg = &messages[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetByUIDRange returns the messages with UIDs in [start, end].
func (a *Adapter) GetByUIDRange(
	ctx context.Context,
	folder string,
	start, end uint32,
	opts model.FetchOptions,
) ([]model.Message, error) {
	if start == 0 {
		return nil, errors.New("uid range must start at 1 or above")
	}
	if end != 0 && end < start {
		return nil, fmt.Errorf("uid range %d:%d is reversed", start, end)
	}

	var messages []model.Message
	err := a.withFolder(ctx, folder, func(f Folder) error {
		handles, err := f.ByUIDRange(ctx, start, end)
		if err != nil {
			return err
		}
		messages, err = FetchBatch(ctx, f, handles, opts, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Folders lists the mailboxes on the account.
func (a *Adapter) Folders(ctx context.Context) ([]source.FolderInfo, error) {
	session, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()
	return session.Folders(ctx)
}

// FetchRaw is Fetch without projection: it returns the prefetched handles
// of the last limit messages. Their bytes stay valid after the connection
// is closed.
func (a *Adapter) FetchRaw(
	ctx context.Context,
	folder string,
	opts model.FetchOptions,
	limit int,
) ([]MessageHandle, error) {
	var handles []MessageHandle
	err := a.withFolder(ctx, folder, func(f Folder) error {
		all, err := f.List(ctx)
		if err != nil {
			return fmt.Errorf("listing %s: %w", folder, err)
		}
		handles, err = FetchRaw(ctx, f, all, opts, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return handles, nil
}
