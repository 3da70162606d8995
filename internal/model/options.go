package model

import "time"

// FetchOptions controls how much of each message is projected.
type FetchOptions struct {
	IncludeHeaders     bool `mapstructure:"include_headers" yaml:"include_headers"`
	IncludeBody        bool `mapstructure:"include_body" yaml:"include_body"`
	IncludeAttachments bool `mapstructure:"include_attachments" yaml:"include_attachments"`

	// Raw asks batch operations to return prefetched handles instead of
	// projected records.
	Raw bool `mapstructure:"-" yaml:"-"`
}

// DefaultFetchOptions returns options with headers, body and attachments on.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		IncludeHeaders:     true,
		IncludeBody:        true,
		IncludeAttachments: true,
	}
}

// SearchCriteria is a conjunction of optional predicates. The zero value
// matches every message.
type SearchCriteria struct {
	SubjectContains string
	FromContains    string
	ToContains      string
	CcContains      string
	BodyContains    string
	MessageID       string

	Unseen   bool
	Seen     bool
	Answered bool
	Flagged  bool

	SentSince      time.Time
	SentBefore     time.Time
	ReceivedSince  time.Time
	ReceivedBefore time.Time
}

// IsEmpty reports whether no predicate is set.
func (c SearchCriteria) IsEmpty() bool {
	return c == SearchCriteria{}
}
