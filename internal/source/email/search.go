package email

import (
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/mailreader/internal/model"
)

// BuildSearchCriteria compiles c into an IMAP SEARCH query. Predicates are
// ANDed; empty criteria compile to a query matching every message.
// HEADER Message-ID matches substrings, so callers narrow the result with
// FilterMessageID.
func BuildSearchCriteria(c model.SearchCriteria) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}

	addHeader := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   key,
			Value: value,
		})
	}

	addHeader("Subject", c.SubjectContains)
	addHeader("From", c.FromContains)
	addHeader("To", c.ToContains)
	addHeader("Cc", c.CcContains)
	addHeader("Message-ID", c.MessageID)

	if strings.TrimSpace(c.BodyContains) != "" {
		criteria.Body = append(criteria.Body, c.BodyContains)
	}

	if c.Unseen {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}
	if c.Seen {
		criteria.Flag = append(criteria.Flag, imap.FlagSeen)
	}
	if c.Answered {
		criteria.Flag = append(criteria.Flag, imap.FlagAnswered)
	}
	if c.Flagged {
		criteria.Flag = append(criteria.Flag, imap.FlagFlagged)
	}

	criteria.SentSince = c.SentSince
	criteria.SentBefore = c.SentBefore
	criteria.Since = c.ReceivedSince
	criteria.Before = c.ReceivedBefore

	return criteria
}

// FilterMessageID keeps the messages whose Message-ID equals id. Angle
// brackets and surrounding space are ignored on both sides.
func FilterMessageID(messages []model.Message, id string) []model.Message {
	want := normalizeMessageID(id)
	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if normalizeMessageID(m.MessageID) == want {
			out = append(out, m)
		}
	}
	return out
}

func normalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	return strings.TrimSuffix(id, ">")
}
