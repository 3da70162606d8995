package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Connection security modes.
const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityInsecure = "insecure"
)

// Authentication mechanisms.
const (
	AuthLogin       = "login"
	AuthPlain       = "plain"
	AuthOAuthBearer = "oauthbearer"
)

// AccountConfig holds the IMAP server and login settings.
type AccountConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Security is one of "tls", "starttls" or "insecure".
	Security string `mapstructure:"security" yaml:"security"`

	// Auth is one of "login", "plain" or "oauthbearer".
	Auth string `mapstructure:"auth" yaml:"auth"`

	// PasswordKey names the keyring entry holding the password or token.
	PasswordKey string `mapstructure:"password_key" yaml:"password_key"`
}

// Addr returns host:port.
func (a AccountConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// FetchConfig holds defaults for one-shot fetch commands.
type FetchConfig struct {
	FetchOptions `mapstructure:",squash" yaml:",inline"`

	Folder string `mapstructure:"folder" yaml:"folder"`
	Limit  int    `mapstructure:"limit" yaml:"limit"`
}

// ListenConfig holds push loop tuning.
type ListenConfig struct {
	Folder string `mapstructure:"folder" yaml:"folder"`

	// PollIntervalSec is the sleep between manual checks on servers
	// without IDLE.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// BackoffSec is the sleep after a transient error.
	BackoffSec int `mapstructure:"backoff_sec" yaml:"backoff_sec"`

	// HeartbeatIntervalSec enables the NOOP heartbeat when positive.
	HeartbeatIntervalSec int `mapstructure:"heartbeat_interval_sec" yaml:"heartbeat_interval_sec"`

	// IdleKeepaliveSec bounds a single IDLE command (RFC 2177 suggests
	// re-issuing at least every 29 minutes).
	IdleKeepaliveSec int `mapstructure:"idle_keepalive_sec" yaml:"idle_keepalive_sec"`

	// CheckpointDB is the sqlite path used to persist delivered UIDs.
	// Empty disables persistence.
	CheckpointDB string `mapstructure:"checkpoint_db" yaml:"checkpoint_db"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Account AccountConfig `mapstructure:"account" yaml:"account"`
	Fetch   FetchConfig   `mapstructure:"fetch" yaml:"fetch"`
	Listen  ListenConfig  `mapstructure:"listen" yaml:"listen"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DefaultConfigDir returns ~/.config/mailreader.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailreader")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailreader/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Account: AccountConfig{
			Port:        993,
			Security:    SecurityTLS,
			Auth:        AuthLogin,
			PasswordKey: "imap-password",
		},
		Fetch: FetchConfig{
			FetchOptions: DefaultFetchOptions(),
			Folder:       "INBOX",
			Limit:        50,
		},
		Listen: ListenConfig{
			Folder:           "INBOX",
			PollIntervalSec:  60,
			BackoffSec:       5,
			IdleKeepaliveSec: 25 * 60,
			CheckpointDB:     filepath.Join(DefaultConfigDir(), "checkpoints.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// setDefaults mirrors defaultAppConfig into v so missing keys and
// environment overrides resolve consistently.
func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("account.port", d.Account.Port)
	v.SetDefault("account.security", d.Account.Security)
	v.SetDefault("account.auth", d.Account.Auth)
	v.SetDefault("account.password_key", d.Account.PasswordKey)
	v.SetDefault("fetch.include_headers", d.Fetch.IncludeHeaders)
	v.SetDefault("fetch.include_body", d.Fetch.IncludeBody)
	v.SetDefault("fetch.include_attachments", d.Fetch.IncludeAttachments)
	v.SetDefault("fetch.folder", d.Fetch.Folder)
	v.SetDefault("fetch.limit", d.Fetch.Limit)
	v.SetDefault("listen.folder", d.Listen.Folder)
	v.SetDefault("listen.poll_interval_sec", d.Listen.PollIntervalSec)
	v.SetDefault("listen.backoff_sec", d.Listen.BackoffSec)
	v.SetDefault("listen.heartbeat_interval_sec", d.Listen.HeartbeatIntervalSec)
	v.SetDefault("listen.idle_keepalive_sec", d.Listen.IdleKeepaliveSec)
	v.SetDefault("listen.checkpoint_db", d.Listen.CheckpointDB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration with
// environment overrides (MAILREADER_ACCOUNT_HOST, ...) applied.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("mailreader")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// AutomaticEnv only covers keys viper already knows about.
	v.SetDefault("account.host", "")
	v.SetDefault("account.username", "")

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if _, ok := err.(*os.PathError); !ok && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks enumerated settings.
func (c *AppConfig) Validate() error {
	switch c.Account.Security {
	case SecurityTLS, SecurityStartTLS, SecurityInsecure:
	default:
		return fmt.Errorf("unknown account.security %q", c.Account.Security)
	}
	switch c.Account.Auth {
	case AuthLogin, AuthPlain, AuthOAuthBearer:
	default:
		return fmt.Errorf("unknown account.auth %q", c.Account.Auth)
	}
	if c.Fetch.Limit < 0 {
		return fmt.Errorf("fetch.limit must not be negative")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("account", cfg.Account)
	v.Set("fetch", map[string]any{
		"include_headers":     cfg.Fetch.IncludeHeaders,
		"include_body":        cfg.Fetch.IncludeBody,
		"include_attachments": cfg.Fetch.IncludeAttachments,
		"folder":              cfg.Fetch.Folder,
		"limit":               cfg.Fetch.Limit,
	})
	v.Set("listen", cfg.Listen)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
