package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Address is a single decoded mailbox from an address header.
type Address struct {
	// DisplayName is nil when the entry carried no phrase.
	DisplayName *string `json:"display_name"`

	// Address is the bare addr-spec (mailbox@host).
	Address string `json:"address"`
}

// String renders the address the way it would appear in a header.
func (a Address) String() string {
	if a.DisplayName == nil || *a.DisplayName == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", *a.DisplayName, a.Address)
}

// Attachment is a non-body part of a message.
type Attachment struct {
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type"`

	// Size is the decoded byte length, or -1 when unknown.
	Size int64 `json:"size"`

	// Data is nil when Error is set.
	Data []byte `json:"data,omitempty"`

	// Error describes why the part's bytes could not be read.
	Error string `json:"error,omitempty"`
}

// Body is the flattened content of a message's MIME tree.
type Body struct {
	Text *string `json:"text"`
	HTML *string `json:"html"`

	// Attachments is nil when attachments were excluded by FetchOptions and
	// an empty slice when the message simply has none.
	Attachments []Attachment `json:"attachments"`
}

// Message is a read-only projection of a server-side message. Mutating it
// has no effect on the mailbox.
type Message struct {
	// UID is nil when the folder does not support UIDs.
	UID *uint32 `json:"uid"`

	MessageID string `json:"message_id,omitempty"`
	SeqNum    uint32 `json:"seq_num"`

	// Address lists are nil when the field is absent and empty when present
	// with no recipients.
	From    []Address `json:"from"`
	To      []Address `json:"to"`
	Cc      []Address `json:"cc"`
	Bcc     []Address `json:"bcc"`
	ReplyTo []Address `json:"reply_to"`

	Subject     string     `json:"subject,omitempty"`
	SentAt      *time.Time `json:"sent_at"`
	ReceivedAt  *time.Time `json:"received_at"`
	ContentType string     `json:"content_type"`
	Flags       Flags      `json:"flags"`

	Body    *Body    `json:"body,omitempty"`
	Headers *Headers `json:"headers,omitempty"`
}

// Flag is one of the six system flags a message can carry.
type Flag uint8

const (
	FlagSeen Flag = 1 << iota
	FlagAnswered
	FlagFlagged
	FlagDeleted
	FlagDraft
	FlagRecent
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagSeen, "seen"},
	{FlagAnswered, "answered"},
	{FlagFlagged, "flagged"},
	{FlagDeleted, "deleted"},
	{FlagDraft, "draft"},
	{FlagRecent, "recent"},
}

// Flags is a set of Flag values.
type Flags uint8

// Has reports whether f is in the set.
func (fs Flags) Has(f Flag) bool {
	return fs&Flags(f) != 0
}

// With returns the set with f added.
func (fs Flags) With(f Flag) Flags {
	return fs | Flags(f)
}

// Names lists the flags in the set in a stable order.
func (fs Flags) Names() []string {
	names := make([]string, 0, len(flagNames))
	for _, fn := range flagNames {
		if fs.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (fs Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Names())
}

func (fs *Flags) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("decoding flags: %w", err)
	}
	var out Flags
	for _, name := range names {
		found := false
		for _, fn := range flagNames {
			if fn.name == name {
				out = out.With(fn.flag)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown flag %q", name)
		}
	}
	*fs = out
	return nil
}

// Headers is an ordered multimap of decoded header fields. Names keep the
// order of their first appearance; values keep encounter order.
type Headers struct {
	names  []string
	values map[string][]string
}

// NewHeaders returns an empty header set.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string][]string)}
}

// Add appends value under name.
func (h *Headers) Add(name, value string) {
	if h.values == nil {
		h.values = make(map[string][]string)
	}
	if _, ok := h.values[name]; !ok {
		h.names = append(h.names, name)
	}
	h.values[name] = append(h.values[name], value)
}

// Names returns header names in first-appearance order.
func (h *Headers) Names() []string {
	return append([]string(nil), h.names...)
}

// Values returns every value recorded for name.
func (h *Headers) Values(name string) []string {
	return append([]string(nil), h.values[name]...)
}

// Get returns the first value recorded for name.
func (h *Headers) Get(name string) string {
	if vs := h.values[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Len is the number of distinct header names.
func (h *Headers) Len() int {
	return len(h.names)
}

// MarshalJSON writes a JSON object in first-appearance order. A name with a
// single value maps to a string, otherwise to an array.
func (h *Headers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range h.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if vs := h.values[name]; len(vs) == 1 {
			val, err = json.Marshal(vs[0])
		} else {
			val, err = json.Marshal(vs)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object produced by MarshalJSON, keeping key order.
func (h *Headers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding headers: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decoding headers: expected object")
	}

	*h = Headers{values: make(map[string][]string)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding headers: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decoding headers: expected header name, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding header %q: %w", name, err)
		}

		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			h.Add(name, single)
			continue
		}
		var multi []string
		if err := json.Unmarshal(raw, &multi); err != nil {
			return fmt.Errorf("decoding header %q: %w", name, err)
		}
		for _, v := range multi {
			h.Add(name, v)
		}
	}
	_, err = dec.Token()
	return err
}
