package email

import (
	"context"
	"fmt"

	"github.com/nhle/mailreader/internal/model"
)

// LastN keeps the last limit handles (the most recent ones) in their
// original order. A limit of 0 or less keeps everything.
func LastN(handles []MessageHandle, limit int) []MessageHandle {
	if limit > 0 && len(handles) > limit {
		return handles[len(handles)-limit:]
	}
	return handles
}

// compact drops nil entries left by UID lookups that matched nothing.
func compact(handles []MessageHandle) []MessageHandle {
	out := handles[:0:0]
	for _, h := range handles {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

// FetchRaw applies limit, prefetches the handles in one request and
// returns them unprojected.
func FetchRaw(
	ctx context.Context,
	folder Folder,
	handles []MessageHandle,
	opts model.FetchOptions,
	limit int,
) ([]MessageHandle, error) {
	handles = LastN(compact(handles), limit)
	if len(handles) == 0 {
		return []MessageHandle{}, nil
	}

	if err := folder.Prefetch(ctx, handles, ProfileFor(opts.IncludeBody)); err != nil {
		return nil, fmt.Errorf("prefetching %d messages in %s: %w", len(handles), folder.Name(), err)
	}
	return handles, nil
}

// FetchBatch prefetches and projects handles, keeping input order.
// A transport failure fails the whole batch.
func FetchBatch(
	ctx context.Context,
	folder Folder,
	handles []MessageHandle,
	opts model.FetchOptions,
	limit int,
) ([]model.Message, error) {
	handles, err := FetchRaw(ctx, folder, handles, opts, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(handles))
	for _, h := range handles {
		messages = append(messages, Project(h, opts))
	}
	return messages, nil
}
