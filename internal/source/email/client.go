package email

import (
	"context"
	"crypto/tls"
	"fmt"
	gosync "sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"

	"github.com/nhle/mailreader/internal/codec"
	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/source"
)

// IMAPClient wraps go-imap v2 for connecting to and querying IMAP servers.
type IMAPClient struct {
	account  model.AccountConfig
	password string
	log      zerolog.Logger

	// TLSConfig overrides the default TLS settings (tests, self-signed
	// servers).
	TLSConfig *tls.Config
}

// NewIMAPClient creates a new IMAP client configuration. password holds
// the OAuth token when account.Auth is oauthbearer.
func NewIMAPClient(
	account model.AccountConfig, password string, log zerolog.Logger,
) *IMAPClient {
	return &IMAPClient{
		account:  account,
		password: password,
		log:      log.With().Str("component", "imap").Str("host", account.Host).Logger(),
	}
}

// Session is one authenticated connection. At most one folder is open on
// a session at a time.
type Session struct {
	client *imapclient.Client
	log    zerolog.Logger

	mu      gosync.Mutex
	current *imapFolder
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the session. The caller is responsible for calling Close.
func (c *IMAPClient) Connect(_ context.Context) (*Session, error) {
	addr := c.account.Addr()
	s := &Session{log: c.log}

	options := &imapclient.Options{
		TLSConfig:   c.TLSConfig,
		WordDecoder: codec.WordDecoder,
		DebugWriter: &DebugWriter{log: c.log},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Expunge: s.onExpunge,
			Mailbox: s.onMailbox,
		},
	}

	var client *imapclient.Client
	var err error

	switch c.account.Security {
	case model.SecurityStartTLS:
		client, err = imapclient.DialStartTLS(addr, options)
	case model.SecurityInsecure:
		client, err = imapclient.DialInsecure(addr, options)
	default:
		client, err = imapclient.DialTLS(addr, options)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	s.client = client

	if err := c.authenticate(client); err != nil {
		_ = client.Close()
		return nil, &source.AuthError{
			Username: c.account.Username,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.account.Username, err,
			),
		}
	}

	c.log.Debug().Str("user", c.account.Username).Msg("authenticated")
	return s, nil
}

func (c *IMAPClient) authenticate(client *imapclient.Client) error {
	username := c.account.Username
	switch c.account.Auth {
	case model.AuthPlain:
		return client.Authenticate(sasl.NewPlainClient("", username, c.password))
	case model.AuthOAuthBearer:
		return client.Authenticate(sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: username,
			Token:    c.password,
			Host:     c.account.Host,
			Port:     c.account.Port,
		}))
	default:
		return client.Login(username, c.password).Wait()
	}
}

// Connected reports whether the underlying connection is still usable.
func (s *Session) Connected() bool {
	select {
	case <-s.client.Closed():
		return false
	default:
	}
	return s.client.State() != imap.ConnStateLogout
}

// Open selects name and returns it as a Folder.
func (s *Session) Open(
	ctx context.Context, name string, readOnly bool,
) (Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil, fmt.Errorf("opening %s: folder %s is still open", name, s.current.name)
	}

	data, err := s.client.Select(name, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", name, err)
	}

	f := newIMAPFolder(s, name, readOnly, data)
	s.current = f
	s.log.Debug().
		Str("folder", name).
		Uint32("messages", data.NumMessages).
		Uint32("uid_validity", data.UIDValidity).
		Msg("folder opened")
	return f, nil
}

// Folders lists every selectable mailbox with message and unseen counts.
func (s *Session) Folders(ctx context.Context) ([]source.FolderInfo, error) {
	list, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	infos := make([]source.FolderInfo, 0, len(list))
	for _, mbox := range list {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hasAttr(mbox.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}

		status, err := s.client.Status(mbox.Mailbox, &imap.StatusOptions{
			NumMessages: true,
			NumUnseen:   true,
		}).Wait()
		if err != nil {
			return nil, fmt.Errorf("status of %s: %w", mbox.Mailbox, err)
		}

		info := source.FolderInfo{Name: mbox.Mailbox}
		if status.NumMessages != nil {
			info.Messages = int(*status.NumMessages)
		}
		if status.NumUnseen != nil {
			info.Unseen = int(*status.NumUnseen)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Close logs out and closes the connection.
func (s *Session) Close() error {
	if !s.Connected() {
		return s.client.Close()
	}
	if f := s.folder(); f != nil {
		_ = f.Close(false)
	}
	if err := s.client.Logout().Wait(); err != nil {
		_ = s.client.Close()
		return fmt.Errorf("logging out: %w", err)
	}
	// The server drops the connection after BYE, so Close may report an
	// already-closed socket.
	_ = s.client.Close()
	return nil
}

func (s *Session) release(f *imapFolder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == f {
		s.current = nil
	}
}

func (s *Session) folder() *imapFolder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// onMailbox and onExpunge run on the client's reader goroutine and must
// not issue commands.
func (s *Session) onMailbox(data *imapclient.UnilateralDataMailbox) {
	if data.NumMessages == nil {
		return
	}
	if f := s.folder(); f != nil {
		f.setExists(*data.NumMessages)
	}
}

func (s *Session) onExpunge(seqNum uint32) {
	if f := s.folder(); f != nil {
		f.expunged(seqNum)
	}
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}
