// Package cli wires the mailreader commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailreader/internal/credential"
	"github.com/nhle/mailreader/internal/logging"
	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/source"
	"github.com/nhle/mailreader/internal/source/email"
)

// Reader is the read surface the commands use.
type Reader interface {
	source.Reader
	FetchRaw(ctx context.Context, folder string, opts model.FetchOptions, limit int) ([]email.MessageHandle, error)
}

// Env carries process-wide state shared by all commands.
type Env struct {
	ConfigPath string
	Password   string
	LogLevel   string

	Config *model.AppConfig
	Log    zerolog.Logger
	Out    io.Writer

	// NewReader is replaced in tests.
	NewReader func(cfg model.AppConfig, password string, log zerolog.Logger) Reader
}

func defaultReader(cfg model.AppConfig, password string, log zerolog.Logger) Reader {
	return email.NewAdapter(email.NewIMAPClient(cfg.Account, password, log), log)
}

func (e *Env) password() (string, error) {
	if e.Config.Account.Host == "" {
		return "", fmt.Errorf("no account configured: run %q or set MAILREADER_ACCOUNT_HOST", "mailreader configure")
	}
	return credential.Resolve(e.Password, e.Config.Account.PasswordKey)
}

func (e *Env) reader() (Reader, error) {
	if e.NewReader != nil {
		return e.NewReader(*e.Config, e.Password, e.Log), nil
	}
	password, err := e.password()
	if err != nil {
		return nil, err
	}
	return defaultReader(*e.Config, password, e.Log), nil
}

// NewRootCmd builds the command tree.
func NewRootCmd(env *Env) *cobra.Command {
	if env.Out == nil {
		env.Out = os.Stdout
	}

	root := &cobra.Command{
		Use:   "mailreader",
		Short: "Read-only IMAP client",
		Long: `mailreader reads messages from an IMAP mailbox and prints them as
structured records. It never modifies the mailbox.

Examples:
  mailreader configure             # set up the account
  mailreader fetch --limit 10      # last 10 messages as JSON Lines
  mailreader search --unseen       # unread messages
  mailreader show 4211             # one message, human readable
  mailreader watch --tui           # live view of new mail`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.load()
		},
	}

	root.PersistentFlags().StringVar(&env.ConfigPath, "config", model.DefaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&env.Password, "password", "", "account password or token (overrides keyring)")
	root.PersistentFlags().StringVar(&env.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newFetchCmd(env),
		newSearchCmd(env),
		newShowCmd(env),
		newUIDsCmd(env),
		newFoldersCmd(env),
		newWatchCmd(env),
		newConfigureCmd(env),
		newSessionsCmd(env),
	)
	return root
}

func (e *Env) load() error {
	if e.Config == nil {
		cfg, err := model.LoadConfig(e.ConfigPath)
		if err != nil {
			return err
		}
		e.Config = cfg
	}

	level := e.Config.Log.Level
	if e.LogLevel != "" {
		level = e.LogLevel
	}
	log, err := logging.New(level, e.Config.Log.Format)
	if err != nil {
		return err
	}
	e.Log = log
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	env := &Env{}
	if err := NewRootCmd(env).ExecuteContext(ctx); err != nil {
		if source.IsAuthError(err) {
			fmt.Fprintln(os.Stderr, "hint: check the password or run `mailreader configure`")
		}
		return 1
	}
	return 0
}
