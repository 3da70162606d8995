package email

import (
	"context"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailreader/internal/mimetree"
)

// MessageHandle is a server message whose attributes have been (or will
// be) prefetched. Accessors never perform I/O.
type MessageHandle interface {
	SeqNum() uint32

	// UID fails when the folder does not support UIDs or the UID was not
	// part of the prefetch.
	UID() (uint32, error)

	// Envelope is nil when it was not prefetched.
	Envelope() *imap.Envelope

	Flags() []imap.Flag

	// InternalDate is the zero time when unknown.
	InternalDate() time.Time

	// Header returns the raw header block, or nil when neither the header
	// nor the full content was prefetched.
	Header() []byte

	// Raw returns the full message bytes when content was prefetched,
	// otherwise the header block.
	Raw() []byte

	// Root returns the MIME part tree. It fails when the content was not
	// prefetched or could not be parsed.
	Root() (mimetree.Part, error)
}

// Profile selects the attributes a Prefetch loads in one round trip.
type Profile struct {
	Envelope     bool
	Flags        bool
	UID          bool
	InternalDate bool

	// Content loads the full RFC 5322 bytes; Header loads only the header
	// block. Content implies Header.
	Content bool
	Header  bool
}

// ProfileFor returns the prefetch profile needed to project with opts.
func ProfileFor(includeBody bool) Profile {
	return Profile{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		Content:      includeBody,
		Header:       true,
	}
}

// Folder is a mailbox opened on a live connection.
type Folder interface {
	Name() string

	// List returns a handle per message in sequence order.
	List(ctx context.Context) ([]MessageHandle, error)

	// Search returns handles for the messages matching criteria.
	Search(ctx context.Context, criteria *imap.SearchCriteria) ([]MessageHandle, error)

	// ByUID returns source.ErrNotFound when no message has uid.
	ByUID(ctx context.Context, uid uint32) (MessageHandle, error)

	// ByUIDRange may return nil entries for UIDs with no message.
	ByUIDRange(ctx context.Context, start, end uint32) ([]MessageHandle, error)

	// Prefetch loads profile for every handle in a single request.
	Prefetch(ctx context.Context, handles []MessageHandle, profile Profile) error

	// AddListener registers fn for messages that arrive while the folder
	// is open. Pushed handles are prefetched with profile before fn runs.
	// The returned func unregisters fn.
	AddListener(profile Profile, fn func(MessageHandle)) (remove func())

	// WaitForPush blocks until the server reports a change, the keepalive
	// elapses or Keepalive interrupts it. It returns
	// source.ErrIdleUnsupported or source.ErrFolderClosed for those
	// conditions.
	WaitForPush(ctx context.Context) error

	// Poll forces a message count check and dispatches new messages.
	// Listeners only ever run inside WaitForPush and Poll.
	Poll(ctx context.Context) error

	// Keepalive forces a no-op round trip, interrupting WaitForPush if
	// it is blocked. It never dispatches messages and never blocks
	// behind a running IDLE.
	Keepalive(ctx context.Context) error

	IsOpen() bool
	Connected() bool

	Close(expunge bool) error
}

// Opener opens folders on a connection.
type Opener interface {
	Open(ctx context.Context, name string, readOnly bool) (Folder, error)
}
