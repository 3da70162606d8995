package mimetree

import (
	"github.com/nhle/mailreader/internal/codec"
	"github.com/nhle/mailreader/internal/model"
)

// accumulator is threaded through the walk by value. The first text/plain
// and text/html seen in pre-order win their slots.
type accumulator struct {
	text        *string
	html        *string
	attachments []model.Attachment
}

// Walk folds the tree rooted at root into a Body using a depth-first,
// pre-order traversal. With opts.IncludeAttachments false no attachment
// bytes are read and Body.Attachments is nil.
func Walk(root Part, opts model.FetchOptions) model.Body {
	acc := accumulator{}
	if opts.IncludeAttachments {
		acc.attachments = []model.Attachment{}
	}
	if root != nil {
		acc = visit(root, acc, opts.IncludeAttachments)
	}
	return model.Body{
		Text:        acc.text,
		HTML:        acc.html,
		Attachments: acc.attachments,
	}
}

func visit(p Part, acc accumulator, withAttachments bool) accumulator {
	switch Classify(p) {
	case ClassContainer:
		c, ok := p.(*Container)
		if !ok || c.Err != nil {
			return acc
		}
		for _, child := range c.Children {
			acc = visit(child, acc, withAttachments)
		}

	case ClassText:
		if acc.text == nil {
			acc.text = readText(p)
		}

	case ClassHTML:
		if acc.html == nil {
			acc.html = readText(p)
		}

	case ClassAttachment:
		if withAttachments {
			acc.attachments = append(acc.attachments, materializeAttachment(p))
		}

	case ClassOtherText:
		if withAttachments {
			if att, ok := materializeOtherText(p); ok {
				acc.attachments = append(acc.attachments, att)
			}
		}

	case ClassBinary:
		if withAttachments {
			if att, ok := materializeBinary(p); ok {
				acc.attachments = append(acc.attachments, att)
			}
		}
	}
	return acc
}

// content returns the leaf content of p, the serialized form of an
// attached container, or nil.
func content(p Part) Content {
	switch v := p.(type) {
	case *Leaf:
		return v.Content
	case *Container:
		return v.Raw
	}
	return nil
}

// readText returns nil on any failure so that a broken part neither sets a
// body slot nor aborts the walk.
func readText(p Part) *string {
	c := content(p)
	if c == nil {
		return nil
	}
	s, err := c.Text()
	if err != nil {
		return nil
	}
	return &s
}

func newAttachment(meta Meta) model.Attachment {
	contentType := codec.BaseContentType(meta.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return model.Attachment{
		Filename:    codec.DecodeHeaderText(meta.Filename),
		ContentType: contentType,
		Size:        -1,
	}
}

// materializeAttachment never drops the part: a failed read yields a
// placeholder carrying the error.
func materializeAttachment(p Part) model.Attachment {
	att := newAttachment(p.PartMeta())

	c := content(p)
	if c == nil {
		att.Error = ErrNoContent.Error()
		return att
	}
	data, err := c.Bytes()
	if err != nil {
		att.Error = err.Error()
		return att
	}
	att.Data = data
	att.Size = int64(len(data))
	return att
}

func materializeOtherText(p Part) (model.Attachment, bool) {
	c := content(p)
	if c == nil {
		return model.Attachment{}, false
	}
	att := newAttachment(p.PartMeta())
	if s, err := c.Text(); err == nil {
		att.Data = []byte(s)
	} else if data, err := c.Bytes(); err == nil {
		att.Data = data
	} else {
		return model.Attachment{}, false
	}
	att.Size = int64(len(att.Data))
	return att, true
}

// materializeBinary drops the part when its bytes cannot be read.
func materializeBinary(p Part) (model.Attachment, bool) {
	c := content(p)
	if c == nil {
		return model.Attachment{}, false
	}
	data, err := c.Bytes()
	if err != nil {
		return model.Attachment{}, false
	}
	att := newAttachment(p.PartMeta())
	att.Data = data
	att.Size = int64(len(data))
	return att, true
}
