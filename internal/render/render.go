// Package render turns message records into human-readable text for the
// terminal.
package render

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/nhle/mailreader/internal/model"
)

// BodyText returns the plain text body. When only HTML is present it is
// converted to Markdown; a failed conversion falls back to the raw HTML.
func BodyText(body *model.Body) string {
	if body == nil {
		return ""
	}
	if body.Text != nil {
		return *body.Text
	}
	if body.HTML == nil {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(*body.HTML)
	if err != nil {
		return *body.HTML
	}
	return md
}

// Addresses joins a list for display; nil and empty both render as "".
func Addresses(list []model.Address) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// Subject returns the subject or a placeholder.
func Subject(msg model.Message) string {
	if strings.TrimSpace(msg.Subject) == "" {
		return "(no subject)"
	}
	return msg.Subject
}

// Message renders msg as a header block followed by its body and an
// attachment summary.
func Message(msg model.Message) string {
	var b strings.Builder

	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-9s %s\n", name+":", value)
		}
	}

	if msg.UID != nil {
		field("UID", fmt.Sprint(*msg.UID))
	}
	field("From", Addresses(msg.From))
	field("To", Addresses(msg.To))
	field("Cc", Addresses(msg.Cc))
	field("Subject", Subject(msg))
	if msg.SentAt != nil {
		field("Date", msg.SentAt.Format("Mon, 02 Jan 2006 15:04 -0700"))
	}
	field("Flags", strings.Join(msg.Flags.Names(), " "))

	if msg.Body != nil {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(BodyText(msg.Body), "\n"))
		b.WriteString("\n")

		if len(msg.Body.Attachments) > 0 {
			b.WriteString("\nAttachments:\n")
			for _, a := range msg.Body.Attachments {
				b.WriteString("  " + Attachment(a) + "\n")
			}
		}
	}

	return b.String()
}

// Attachment summarizes one attachment on a single line.
func Attachment(a model.Attachment) string {
	name := a.Filename
	if name == "" {
		name = "(unnamed)"
	}
	line := fmt.Sprintf("%s  %s  %s", name, a.ContentType, Size(a.Size))
	if a.Error != "" {
		line += "  [error: " + a.Error + "]"
	}
	return line
}

// Size formats a byte count; negative sizes are unknown.
func Size(n int64) string {
	switch {
	case n < 0:
		return "?"
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KiB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1024*1024))
	}
}
