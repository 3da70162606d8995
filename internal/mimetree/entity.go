package mimetree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
	// Registers charset decoders (windows-1252, iso-8859-*, koi8-r, ...).
	_ "github.com/emersion/go-message/charset"
)

// Parse reads a full RFC 5322 message and returns its part tree. Unknown
// charsets and transfer encodings are not fatal: the affected leaf keeps
// its undecoded bytes.
func Parse(raw []byte) (Part, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !isRecoverable(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	return FromEntity(e), nil
}

// FromEntity converts a go-message entity into a Part, reading every leaf
// body into memory. Multipart readers are streaming, so each child has to
// be consumed before the next one is requested.
func FromEntity(e *message.Entity) Part {
	meta := entityMeta(e.Header)

	if meta.Disposition == "attachment" && isMultipart(e.Header) {
		return &Container{Meta: meta, Raw: serialize(e)}
	}

	if mr := e.MultipartReader(); mr != nil {
		c := &Container{Meta: meta}
		for {
			child, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil && (child == nil || !isRecoverable(err)) {
				c.Err = fmt.Errorf("reading multipart child %d: %w", len(c.Children), err)
				break
			}
			c.Children = append(c.Children, FromEntity(child))
		}
		return c
	}

	data, err := io.ReadAll(e.Body)
	if err != nil {
		return &Leaf{Meta: meta, Content: StaticContent{Err: fmt.Errorf("reading part body: %w", err)}}
	}
	return &Leaf{Meta: meta, Content: StaticContent{Data: data}}
}

func isMultipart(h message.Header) bool {
	t, _, err := h.ContentType()
	return err == nil && strings.HasPrefix(t, "multipart/")
}

// serialize writes e back out without its transfer encoding, since Body is
// already decoded.
func serialize(e *message.Entity) Content {
	h := e.Header.Header.Copy()
	h.Del("Content-Transfer-Encoding")

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h); err != nil {
		return StaticContent{Err: fmt.Errorf("writing part header: %w", err)}
	}
	if _, err := io.Copy(&buf, e.Body); err != nil {
		return StaticContent{Err: fmt.Errorf("reading part body: %w", err)}
	}
	return StaticContent{Data: buf.Bytes()}
}

func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func entityMeta(h message.Header) Meta {
	meta := Meta{Size: -1}

	// A missing or unparsable Content-Type leaves ContentType empty, which
	// Classify routes to the binary fallback.
	rawType := strings.TrimSpace(h.Get("Content-Type"))
	_, typeParams, err := h.ContentType()
	if rawType != "" && err == nil {
		meta.ContentType = rawType
	}

	disp, dispParams, err := h.ContentDisposition()
	if err == nil {
		meta.Disposition = strings.ToLower(disp)
		meta.Filename = dispParams["filename"]
	}
	if meta.Filename == "" && typeParams != nil {
		meta.Filename = typeParams["name"]
	}
	return meta
}
