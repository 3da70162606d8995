package email

import (
	"bytes"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailreader/internal/mimetree"
)

var errNotPrefetched = errors.New("message content was not prefetched")

type imapHandle struct {
	seq          uint32
	uid          imap.UID
	uidSupported bool

	envelope     *imap.Envelope
	flags        []imap.Flag
	internalDate time.Time
	header       []byte
	content      []byte

	rootOnce gosync.Once
	root     mimetree.Part
	rootErr  error
}

func (h *imapHandle) fill(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) {
	if buf.SeqNum != 0 {
		h.seq = buf.SeqNum
	}
	if buf.UID != 0 {
		h.uid = buf.UID
	}
	if buf.Envelope != nil {
		h.envelope = buf.Envelope
	}
	if buf.Flags != nil {
		h.flags = buf.Flags
	}
	if !buf.InternalDate.IsZero() {
		h.internalDate = buf.InternalDate
	}
	if section == nil {
		return
	}

	data := buf.FindBodySection(section)
	if data == nil {
		return
	}
	if section.Specifier == imap.PartSpecifierHeader {
		h.header = data
		return
	}
	h.content = data
	h.header = headerBlock(data)
	h.rootOnce = gosync.Once{}
	h.root, h.rootErr = nil, nil
}

func (h *imapHandle) SeqNum() uint32 { return h.seq }

func (h *imapHandle) UID() (uint32, error) {
	if !h.uidSupported {
		return 0, errUIDUnsupported
	}
	if h.uid == 0 {
		return 0, fmt.Errorf("uid of message %d: %w", h.seq, errNotPrefetched)
	}
	return uint32(h.uid), nil
}

func (h *imapHandle) Envelope() *imap.Envelope { return h.envelope }
func (h *imapHandle) Flags() []imap.Flag       { return h.flags }
func (h *imapHandle) InternalDate() time.Time  { return h.internalDate }
func (h *imapHandle) Header() []byte           { return h.header }

func (h *imapHandle) Raw() []byte {
	if h.content != nil {
		return h.content
	}
	return h.header
}

func (h *imapHandle) Root() (mimetree.Part, error) {
	if h.content == nil {
		return nil, errNotPrefetched
	}
	h.rootOnce.Do(func() {
		h.root, h.rootErr = mimetree.Parse(h.content)
	})
	return h.root, h.rootErr
}

// headerBlock returns raw up to and including the blank line that ends
// the header section.
func headerBlock(raw []byte) []byte {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[:i+4]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[:i+2]
	}
	return raw
}
