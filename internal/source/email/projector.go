package email

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/nhle/mailreader/internal/codec"
	"github.com/nhle/mailreader/internal/mimetree"
	"github.com/nhle/mailreader/internal/model"
)

const flagRecent = imap.Flag(`\Recent`)

var flagMap = map[imap.Flag]model.Flag{
	imap.FlagSeen:     model.FlagSeen,
	imap.FlagAnswered: model.FlagAnswered,
	imap.FlagFlagged:  model.FlagFlagged,
	imap.FlagDeleted:  model.FlagDeleted,
	imap.FlagDraft:    model.FlagDraft,
	flagRecent:        model.FlagRecent,
}

// Project builds a Message from a prefetched handle. Envelope fields,
// flags and UID are always filled; body and headers follow opts.
func Project(h MessageHandle, opts model.FetchOptions) model.Message {
	msg := model.Message{
		SeqNum: h.SeqNum(),
		Flags:  mapFlags(h.Flags()),
	}

	if uid, err := h.UID(); err == nil && uid != 0 {
		msg.UID = &uid
	}

	if d := h.InternalDate(); !d.IsZero() {
		msg.ReceivedAt = &d
	}

	fields := codec.ParseHeaderFields(h.Header())
	msg.ContentType = firstField(fields, "Content-Type")

	if env := h.Envelope(); env != nil {
		projectEnvelope(&msg, env)
	} else {
		projectHeaderFields(&msg, h.Header())
	}

	if opts.IncludeBody {
		var body model.Body
		if root, err := h.Root(); err == nil {
			body = mimetree.Walk(root, opts)
		} else {
			body = mimetree.Walk(nil, opts)
		}
		if !opts.IncludeAttachments {
			body.Attachments = nil
		}
		msg.Body = &body
	}

	if opts.IncludeHeaders {
		msg.Headers = projectHeaders(fields)
	}

	return msg
}

func projectEnvelope(msg *model.Message, env *imap.Envelope) {
	msg.MessageID = env.MessageID
	msg.Subject = codec.DecodeHeaderText(env.Subject)
	if !env.Date.IsZero() {
		d := env.Date
		msg.SentAt = &d
	}
	msg.From = codec.ToAddressList(env.From)
	msg.To = codec.ToAddressList(env.To)
	msg.Cc = codec.ToAddressList(env.Cc)
	msg.Bcc = codec.ToAddressList(env.Bcc)
	msg.ReplyTo = codec.ToAddressList(env.ReplyTo)
}

// projectHeaderFields fills envelope fields from the raw header block when
// the server sent no envelope.
func projectHeaderFields(msg *model.Message, raw []byte) {
	if len(raw) == 0 {
		return
	}
	// textproto.ReadHeader wants the terminating blank line.
	switch {
	case bytes.HasSuffix(raw, []byte("\n\n")), bytes.HasSuffix(raw, []byte("\r\n\r\n")):
	case bytes.HasSuffix(raw, []byte("\n")):
		raw = append(append([]byte(nil), raw...), "\r\n"...)
	default:
		raw = append(append([]byte(nil), raw...), "\r\n\r\n"...)
	}
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return
	}
	h := mail.Header{Header: message.Header{Header: th}}

	if id, err := h.MessageID(); err == nil {
		msg.MessageID = id
	}
	msg.Subject = codec.DecodeHeaderText(h.Get("Subject"))
	if d, err := h.Date(); err == nil && !d.IsZero() {
		msg.SentAt = &d
	}
	msg.From = addressHeader(h, "From")
	msg.To = addressHeader(h, "To")
	msg.Cc = addressHeader(h, "Cc")
	msg.Bcc = addressHeader(h, "Bcc")
	msg.ReplyTo = addressHeader(h, "Reply-To")
}

// addressHeader keeps the absent (nil) versus empty distinction.
func addressHeader(h mail.Header, key string) []model.Address {
	if !h.Has(key) {
		return nil
	}
	list, err := h.AddressList(key)
	if err != nil {
		return []model.Address{}
	}
	out := codec.FromMailAddressList(list)
	if out == nil {
		return []model.Address{}
	}
	return out
}

func projectHeaders(fields []codec.Field) *model.Headers {
	headers := model.NewHeaders()
	for _, f := range fields {
		headers.Add(f.Name, codec.DecodeHeaderText(f.Value))
	}
	return headers
}

func firstField(fields []codec.Field, name string) string {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func mapFlags(flags []imap.Flag) model.Flags {
	var out model.Flags
	for _, f := range flags {
		for imapFlag, modelFlag := range flagMap {
			if strings.EqualFold(string(f), string(imapFlag)) {
				out = out.With(modelFlag)
			}
		}
	}
	return out
}
