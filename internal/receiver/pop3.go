package receiver

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/knadh/go-pop3"

	"github.com/tracyhatemice/maildirsync/internal/config"
)

type pop3Conn interface {
	Auth(user, password string) error
	Stat() (int, int, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Quit() error
}

func (d *Dialer) dialPOP3(acct config.Account) (pop3Conn, error) {
	client := pop3.New(pop3.Opt{
		Host:        acct.Host,
		Port:        acct.Port(),
		DialTimeout: d.timeout,
		TLSEnabled:  acct.TLS(),
	})
	conn, err := client.NewConn()
	if err != nil {
		return nil, fmt.Errorf("pop3 connect %s:%d: %w: %w", acct.Host, acct.Port(), ErrConnect, err)
	}
	return conn, nil
}

// POP3Session reads the maildrop by message number. This tool never deletes
// mail, but numbers shift down whenever another client or a server retention
// policy does, and the sync engine cannot tell which messages moved.
type POP3Session struct {
	conn    pop3Conn
	account string
	count   int
	stat    bool
	logger  *slog.Logger
}

func newPOP3Session(conn pop3Conn, acct config.Account, logger *slog.Logger) (*POP3Session, error) {
	if err := conn.Auth(acct.Login(), acct.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("pop3 auth %s: %w: %w", acct.Login(), ErrAuth, err)
	}
	return &POP3Session{conn: conn, account: acct.Key(), logger: logger}, nil
}

// Highest returns the number of messages in the maildrop.
func (s *POP3Session) Highest() (uint32, error) {
	count, _, err := s.conn.Stat()
	if err != nil {
		return 0, fmt.Errorf("pop3 stat: %w: %w", ErrSelect, err)
	}
	s.count, s.stat = count, true
	return uint32(count), nil
}

// Existing returns every message number in from..to up to the maildrop size;
// POP3 numbering has no gaps.
func (s *POP3Session) Existing(from, to uint32) ([]uint32, error) {
	if !s.stat {
		if _, err := s.Highest(); err != nil {
			return nil, err
		}
	}
	if from == 0 {
		from = 1
	}
	to = min(to, uint32(s.count))
	if to < from {
		return nil, nil
	}
	ids := make([]uint32, 0, to-from+1)
	for id := uint64(from); id <= uint64(to); id++ {
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

// Fetch retrieves message number id.
func (s *POP3Session) Fetch(id uint32) ([]byte, error) {
	if !s.stat {
		if _, err := s.Highest(); err != nil {
			return nil, err
		}
	}
	if id == 0 || int(id) > s.count {
		return nil, fmt.Errorf("pop3 retr %d: %w", id, ErrNotFound)
	}
	buf, err := s.conn.RetrRaw(int(id))
	if err != nil {
		return nil, fmt.Errorf("pop3 retr %d: %w: %w", id, ErrFetch, err)
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// Close ends the POP3 session.
func (s *POP3Session) Close() error {
	if err := s.conn.Quit(); err != nil {
		s.logger.Debug("pop3 quit failed", "account", s.account, "error", err)
		return err
	}
	return nil
}
