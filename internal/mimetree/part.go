// Package mimetree models a message's MIME structure as a closed set of
// part variants and folds it into a single model.Body.
package mimetree

import (
	"errors"
	"unicode/utf8"
)

// Meta is the per-part metadata the walker classifies on.
type Meta struct {
	// ContentType is the raw Content-Type value, parameters included.
	// Empty when the header is missing or unparsable.
	ContentType string

	// Disposition is the lower-cased disposition value ("attachment",
	// "inline") or empty.
	Disposition string

	// Filename is the raw, possibly RFC 2047 encoded, filename taken from
	// the disposition or the Content-Type name parameter.
	Filename string

	// Size is the decoded size when known in advance, otherwise -1.
	Size int64
}

// Part is either a *Leaf or a *Container.
type Part interface {
	PartMeta() Meta
	part()
}

// Content reads a leaf's payload. Both methods may fail independently.
type Content interface {
	Bytes() ([]byte, error)
	Text() (string, error)
}

// Leaf is a part with content and no children.
type Leaf struct {
	Meta
	Content Content
}

// Container is a multipart part. Err is set when its children could not be
// materialized; Children then holds whatever was read before the failure
// and is ignored by the walker.
//
// Raw is set instead of Children for a multipart carried as an attachment.
// It holds the serialized part, header included.
type Container struct {
	Meta
	Children []Part
	Err      error
	Raw      Content
}

func (l *Leaf) PartMeta() Meta      { return l.Meta }
func (c *Container) PartMeta() Meta { return c.Meta }

func (*Leaf) part()      {}
func (*Container) part() {}

// ErrNoContent is returned by a leaf whose content is nil.
var ErrNoContent = errors.New("mimetree: part has no content")

// StaticContent is Content backed by an in-memory read result.
type StaticContent struct {
	Data []byte
	Err  error
}

// Bytes returns the stored data or the stored read error.
func (c StaticContent) Bytes() ([]byte, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Data, nil
}

// Text returns the stored data as a string. Invalid UTF-8 bytes become
// U+FFFD; charset decoding already happened upstream.
func (c StaticContent) Text() (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	if !utf8.Valid(c.Data) {
		return string([]rune(string(c.Data))), nil
	}
	return string(c.Data), nil
}
