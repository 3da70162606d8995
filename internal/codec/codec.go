// Package codec decodes encoded header text and normalizes address lists.
// Nothing in this package returns an error to the caller: undecodable
// input degrades to its raw form.
package codec

import (
	"bufio"
	"bytes"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailreader/internal/model"
)

// WordDecoder resolves RFC 2047 words in any charset go-message knows.
var WordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeaderText decodes RFC 2047 encoded-words in raw. On any decode
// failure raw is returned unchanged.
func DecodeHeaderText(raw string) string {
	if !strings.Contains(raw, "=?") {
		return raw
	}
	decoded, err := WordDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ToAddress maps one envelope address. It returns nil for a nil entry and
// for RFC 2822 group markers, which carry no mailbox.
func ToAddress(addr *imap.Address) *model.Address {
	if addr == nil || addr.IsGroupStart() || addr.IsGroupEnd() {
		return nil
	}
	out := &model.Address{Address: addr.Addr()}
	if name := strings.TrimSpace(DecodeHeaderText(addr.Name)); name != "" {
		out.DisplayName = &name
	}
	return out
}

// ToAddressList maps an envelope address list. A nil list (field absent)
// maps to nil; an empty list (field present, no recipients) maps to an
// empty, non-nil slice.
func ToAddressList(addrs []imap.Address) []model.Address {
	if addrs == nil {
		return nil
	}
	out := make([]model.Address, 0, len(addrs))
	for i := range addrs {
		if a := ToAddress(&addrs[i]); a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// FromMailAddress maps a go-message address.
func FromMailAddress(addr *mail.Address) *model.Address {
	if addr == nil {
		return nil
	}
	out := &model.Address{Address: addr.Address}
	if name := strings.TrimSpace(DecodeHeaderText(addr.Name)); name != "" {
		out.DisplayName = &name
	}
	return out
}

// FromMailAddressList maps a go-message address list with the same nil
// versus empty distinction as ToAddressList.
func FromMailAddressList(addrs []*mail.Address) []model.Address {
	if addrs == nil {
		return nil
	}
	out := make([]model.Address, 0, len(addrs))
	for _, addr := range addrs {
		if a := FromMailAddress(addr); a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// BaseContentType strips parameters from a Content-Type value and
// lower-cases it. An empty or blank value yields "".
func BaseContentType(raw string) string {
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// Field is a single unfolded header field as it appeared on the wire.
type Field struct {
	Name  string
	Value string
}

// ParseHeaderFields splits a header block into fields in wire order.
// Folded lines are joined, the parse stops at the first empty line, and
// lines without a colon are skipped.
func ParseHeaderFields(raw []byte) []Field {
	var fields []Field
	r := bufio.NewReader(bytes.NewReader(raw))
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")

		if trimmed == "" && (err == nil || line != "") {
			break
		}
		if trimmed != "" {
			if (trimmed[0] == ' ' || trimmed[0] == '\t') && len(fields) > 0 {
				last := &fields[len(fields)-1]
				last.Value += " " + strings.TrimSpace(trimmed)
			} else if i := strings.IndexByte(trimmed, ':'); i > 0 {
				fields = append(fields, Field{
					Name:  strings.TrimSpace(trimmed[:i]),
					Value: strings.TrimSpace(trimmed[i+1:]),
				})
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
	}
	return fields
}
