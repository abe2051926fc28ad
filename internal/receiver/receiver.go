// Package receiver opens read-only sessions against remote mailboxes.
package receiver

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tracyhatemice/maildirsync/internal/config"
)

var (
	ErrConnect = errors.New("connect failed")
	ErrAuth    = errors.New("authentication failed")
	ErrSelect  = errors.New("select failed")
	ErrFetch   = errors.New("fetch failed")
	// ErrNotFound is returned by Fetch for an identifier with no message,
	// such as an expunged UID or one below the mailbox's first message.
	ErrNotFound = errors.New("no such message")
)

// Session is an authenticated, read-only view of one account's inbox.
// Identifiers grow monotonically; Highest selects the inbox and must be
// called before Fetch.
type Session interface {
	// Highest returns the largest identifier currently in the inbox, or 0
	// when it is empty.
	Highest() (uint32, error)

	// Existing returns the identifiers in from..to that hold a message, in
	// ascending order.
	Existing(from, to uint32) ([]uint32, error)

	// Fetch returns the raw RFC 5322 bytes of message id.
	Fetch(id uint32) ([]byte, error)

	// Close logs out and releases the connection.
	Close() error
}

// Opener connects and authenticates a Session for an account.
type Opener interface {
	Open(acct config.Account) (Session, error)
}

// Keyring wraps an Opener and fills an account's missing password from the
// OS keyring before opening it. A missing password fails that account only.
type Keyring struct {
	next Opener
}

// WithKeyring returns an Opener that resolves passwords before calling next.
func WithKeyring(next Opener) *Keyring {
	return &Keyring{next: next}
}

// Open implements Opener.
func (k *Keyring) Open(acct config.Account) (Session, error) {
	if err := acct.ResolvePassword(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	return k.next.Open(acct)
}

// Dialer opens IMAP or POP3 sessions depending on the account protocol.
type Dialer struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewDialer creates a Dialer. timeout bounds connection establishment.
func NewDialer(timeout time.Duration, logger *slog.Logger) *Dialer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dialer{timeout: timeout, logger: logger}
}

// Open implements Opener.
func (d *Dialer) Open(acct config.Account) (Session, error) {
	switch acct.GetProtocol() {
	case "imap":
		client, err := d.dialIMAP(acct)
		if err != nil {
			return nil, err
		}
		return newIMAPSession(client, acct, d.logger)
	case "pop3":
		conn, err := d.dialPOP3(acct)
		if err != nil {
			return nil, err
		}
		return newPOP3Session(conn, acct, d.logger)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", acct.Protocol)
	}
}
