package mimetree

import (
	"strings"

	"github.com/nhle/mailreader/internal/codec"
)

// Class is the outcome of classifying one part.
type Class int

const (
	ClassAttachment Class = iota
	ClassContainer
	ClassText
	ClassHTML
	ClassOtherText
	ClassBinary
)

func (c Class) String() string {
	switch c {
	case ClassAttachment:
		return "attachment"
	case ClassContainer:
		return "container"
	case ClassText:
		return "text"
	case ClassHTML:
		return "html"
	case ClassOtherText:
		return "other-text"
	default:
		return "binary"
	}
}

// Classify picks the single class for p. The checks run in precedence
// order:
//
//  1. disposition "attachment", or "inline" with a filename on a non-text
//     type, is an attachment
//  2. multipart/* is a container
//  3. text/plain and text/html fill the body slots
//  4. any other text/* is kept as a text attachment
//  5. everything else, including a missing content type, is binary
func Classify(p Part) Class {
	meta := p.PartMeta()
	base := codec.BaseContentType(meta.ContentType)

	switch {
	case meta.Disposition == "attachment":
		return ClassAttachment
	case meta.Disposition == "inline" && meta.Filename != "" && !strings.HasPrefix(base, "text/"):
		return ClassAttachment
	case strings.HasPrefix(base, "multipart/"):
		return ClassContainer
	case base == "text/plain":
		return ClassText
	case base == "text/html":
		return ClassHTML
	case strings.HasPrefix(base, "text/"):
		return ClassOtherText
	default:
		return ClassBinary
	}
}
