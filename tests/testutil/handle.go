package testutil

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailreader/internal/mimetree"
)

// ErrNoUID is what FakeHandle.UID returns when UIDValue is 0.
var ErrNoUID = errors.New("fake: no uid")

// FakeHandle is an email.MessageHandle backed by raw RFC 5322 bytes.
type FakeHandle struct {
	Seq      uint32
	UIDValue uint32
	UIDErr   error

	Env      *imap.Envelope
	FlagList []imap.Flag
	Date     time.Time
	RawBytes []byte

	// RootPart and RootErr override parsing RawBytes.
	RootPart mimetree.Part
	RootErr  error
}

// NewFakeHandle builds a handle from a message written with "\n" line
// endings; they are converted to CRLF.
func NewFakeHandle(seq, uid uint32, raw string) *FakeHandle {
	return &FakeHandle{
		Seq:      seq,
		UIDValue: uid,
		RawBytes: []byte(CRLF(raw)),
	}
}

// CRLF normalizes line endings to "\r\n".
func CRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func (h *FakeHandle) SeqNum() uint32 { return h.Seq }

func (h *FakeHandle) UID() (uint32, error) {
	if h.UIDErr != nil {
		return 0, h.UIDErr
	}
	if h.UIDValue == 0 {
		return 0, ErrNoUID
	}
	return h.UIDValue, nil
}

func (h *FakeHandle) Envelope() *imap.Envelope { return h.Env }
func (h *FakeHandle) Flags() []imap.Flag       { return h.FlagList }
func (h *FakeHandle) InternalDate() time.Time  { return h.Date }
func (h *FakeHandle) Raw() []byte              { return h.RawBytes }

func (h *FakeHandle) Header() []byte {
	if i := bytes.Index(h.RawBytes, []byte("\r\n\r\n")); i >= 0 {
		return h.RawBytes[:i+4]
	}
	return h.RawBytes
}

func (h *FakeHandle) Root() (mimetree.Part, error) {
	if h.RootErr != nil {
		return nil, h.RootErr
	}
	if h.RootPart != nil {
		return h.RootPart, nil
	}
	return mimetree.Parse(h.RawBytes)
}
