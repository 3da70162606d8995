package sync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailreader/internal/source"
	"github.com/nhle/mailreader/internal/source/email"
)

const defaultHeartbeatInterval = 5 * time.Minute

// Heartbeat periodically forces a round trip on Folder so that NAT and
// proxies do not drop a connection parked in IDLE.
type Heartbeat struct {
	Folder   email.Folder
	Interval time.Duration
	OnError  func(error)
	Log      zerolog.Logger
}

// Run ticks until ctx is cancelled or the connection is gone.
func (h *Heartbeat) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !h.Folder.Connected() || !h.Folder.IsOpen() {
			h.Log.Debug().Msg("connection gone, heartbeat stopping")
			return
		}

		err := h.Folder.Keepalive(ctx)
		switch {
		case err == nil:
			h.Log.Trace().Msg("heartbeat")
		case ctx.Err() != nil:
			return
		case errors.Is(err, source.ErrFolderClosed):
			return
		case h.OnError != nil:
			h.OnError(err)
		default:
			h.Log.Warn().Err(err).Msg("heartbeat failed")
		}
	}
}
