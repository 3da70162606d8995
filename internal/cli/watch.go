package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailreader/internal/keys"
	"github.com/nhle/mailreader/internal/logging"
	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/source/email"
	"github.com/nhle/mailreader/internal/store"
	appsync "github.com/nhle/mailreader/internal/sync"
	"github.com/nhle/mailreader/internal/ui/inbox"
)

const defaultHeartbeat = 5 * time.Minute

func newWatchCmd(env *Env) *cobra.Command {
	var (
		folder    string
		tui       bool
		heartbeat bool
		noStore   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream new messages as they arrive (IDLE, falling back to polling)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := env.Config
			if folder == "" {
				folder = cfg.Listen.Folder
			}

			log := env.Log
			if tui {
				// The alt screen owns stderr while the view is up.
				var closeLog func()
				var err error
				log, closeLog, err = fileLogger(cfg)
				if err != nil {
					return err
				}
				defer closeLog()
			}

			password, err := env.password()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := email.NewIMAPClient(cfg.Account, password, log).Connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = session.Close() }()

			l := newListener(cfg, session, folder, log)
			if heartbeat && l.HeartbeatInterval <= 0 {
				l.HeartbeatInterval = defaultHeartbeat
			}

			if !noStore && cfg.Listen.CheckpointDB != "" {
				st, err := openStore(cfg.Listen.CheckpointDB)
				if err != nil {
					return err
				}
				defer st.Close()
				l.Checkpoints = st
				l.Sessions = st
			}

			if tui {
				return runTUI(ctx, stop, l, folder)
			}

			enc := json.NewEncoder(env.Out)
			l.Handler = func(_ context.Context, msg model.Message) error {
				return enc.Encode(msg)
			}
			if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "folder to watch (default from config)")
	cmd.Flags().BoolVar(&tui, "tui", false, "show arriving messages in a terminal UI")
	cmd.Flags().BoolVar(&heartbeat, "heartbeat", false, "send periodic NOOPs to keep the connection alive")
	cmd.Flags().BoolVar(&noStore, "no-checkpoints", false, "do not persist delivered UIDs")
	return cmd
}

func newListener(cfg *model.AppConfig, opener email.Opener, folder string, log zerolog.Logger) *appsync.Listener {
	lc := cfg.Listen
	return &appsync.Listener{
		Opener:            opener,
		Folder:            folder,
		Options:           cfg.Fetch.FetchOptions,
		PollInterval:      time.Duration(lc.PollIntervalSec) * time.Second,
		Backoff:           time.Duration(lc.BackoffSec) * time.Second,
		IdleKeepalive:     time.Duration(lc.IdleKeepaliveSec) * time.Second,
		HeartbeatInterval: time.Duration(lc.HeartbeatIntervalSec) * time.Second,
		Log:               log.With().Str("component", "listener").Str("folder", folder).Logger(),
	}
}

func runTUI(ctx context.Context, stop context.CancelFunc, l *appsync.Listener, folder string) error {
	feed := appsync.NewFeed(0)
	l.Handler = feed.Handler()
	l.OnError = feed.OnError

	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Done(l.Run(ctx))
	}()

	p := tea.NewProgram(
		inbox.New(feed, keys.DefaultKeyMap(), folder, 80, 24),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	stop()
	<-done

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running inbox view: %w", err)
	}
	return nil
}

func openStore(path string) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return store.NewSQLiteStore(path)
}

func fileLogger(cfg *model.AppConfig) (zerolog.Logger, func(), error) {
	path := filepath.Join(model.DefaultConfigDir(), "watch.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("opening %s: %w", path, err)
	}
	log, err := logging.NewWithWriter(f, cfg.Log.Level, "json")
	if err != nil {
		f.Close()
		return zerolog.Nop(), nil, err
	}
	return log, func() { _ = f.Close() }, nil
}
