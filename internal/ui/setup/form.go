// Package setup holds the interactive account configuration form.
package setup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/mailreader/internal/model"
)

// Result is what the form collected. Password is empty when the user left
// the stored secret unchanged.
type Result struct {
	Config   model.AppConfig
	Password string
}

// fields are the form's bound values; huh writes through pointers.
type fields struct {
	host     string
	port     string
	username string
	password string
	security string
	auth     string
	folder   string
	limit    string

	includeAttachments bool
	heartbeat          bool
}

func newFields(cfg model.AppConfig) *fields {
	return &fields{
		host:               cfg.Account.Host,
		port:               strconv.Itoa(cfg.Account.Port),
		username:           cfg.Account.Username,
		security:           cfg.Account.Security,
		auth:               cfg.Account.Auth,
		folder:             cfg.Listen.Folder,
		limit:              strconv.Itoa(cfg.Fetch.Limit),
		includeAttachments: cfg.Fetch.IncludeAttachments,
		heartbeat:          cfg.Listen.HeartbeatIntervalSec > 0,
	}
}

// NewForm builds the configure form pre-filled from current. Run it with
// form.Run() and then call collect.
func NewForm(current model.AppConfig) (*huh.Form, func() (Result, error)) {
	f := newFields(current)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&f.host).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&f.port).
				Validate(validatePort),
			huh.NewSelect[string]().
				Title("Security").
				Options(
					huh.NewOption("Implicit TLS (993)", model.SecurityTLS),
					huh.NewOption("STARTTLS (143)", model.SecurityStartTLS),
					huh.NewOption("None (testing only)", model.SecurityInsecure),
				).
				Value(&f.security),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("Email account username").
				Placeholder("user@example.com").
				Value(&f.username).
				Validate(validateRequired("Username")),
			huh.NewSelect[string]().
				Title("Authentication").
				Options(
					huh.NewOption("LOGIN", model.AuthLogin),
					huh.NewOption("SASL PLAIN", model.AuthPlain),
					huh.NewOption("OAuth bearer token", model.AuthOAuthBearer),
				).
				Value(&f.auth),
			huh.NewInput().
				Title("Password").
				Description("Password, app password or token. Leave empty to keep the stored one.").
				EchoMode(huh.EchoModePassword).
				Value(&f.password),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Folder").
				Description("Folder to fetch from and watch").
				Placeholder("INBOX").
				Value(&f.folder).
				Validate(validateRequired("Folder")),
			huh.NewInput().
				Title("Fetch limit").
				Description("Most recent messages returned by fetch (0 = all)").
				Value(&f.limit).
				Validate(validateNumber("Fetch limit")),
			huh.NewConfirm().
				Title("Include attachments").
				Affirmative("Yes").
				Negative("No").
				Value(&f.includeAttachments),
			huh.NewConfirm().
				Title("Heartbeat").
				Description("Send periodic NOOPs while watching").
				Affirmative("Yes").
				Negative("No").
				Value(&f.heartbeat),
		),
	)

	return form, func() (Result, error) { return f.apply(current) }
}

func (f *fields) apply(current model.AppConfig) (Result, error) {
	cfg := current

	port, err := strconv.Atoi(strings.TrimSpace(f.port))
	if err != nil {
		return Result{}, fmt.Errorf("port: %w", err)
	}
	limit, err := strconv.Atoi(strings.TrimSpace(f.limit))
	if err != nil {
		return Result{}, fmt.Errorf("fetch limit: %w", err)
	}

	cfg.Account.Host = strings.TrimSpace(f.host)
	cfg.Account.Port = port
	cfg.Account.Username = strings.TrimSpace(f.username)
	cfg.Account.Security = f.security
	cfg.Account.Auth = f.auth
	if cfg.Account.PasswordKey == "" {
		cfg.Account.PasswordKey = "imap-" + cfg.Account.Username
	}

	folder := strings.TrimSpace(f.folder)
	cfg.Fetch.Folder = folder
	cfg.Listen.Folder = folder
	cfg.Fetch.Limit = limit
	cfg.Fetch.IncludeAttachments = f.includeAttachments

	switch {
	case f.heartbeat && cfg.Listen.HeartbeatIntervalSec <= 0:
		cfg.Listen.HeartbeatIntervalSec = 300
	case !f.heartbeat:
		cfg.Listen.HeartbeatIntervalSec = 0
	}

	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	return Result{Config: cfg, Password: f.password}, nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateNumber(fieldName string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		for _, c := range s {
			if c < '0' || c > '9' {
				return fmt.Errorf("%s must be a number", fieldName)
			}
		}
		return nil
	}
}

func validatePort(s string) error {
	if err := validateNumber("port")(s); err != nil {
		return err
	}
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}
