package receiver

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/tracyhatemice/maildirsync/internal/config"
)

const inbox = "INBOX"

type imapClient interface {
	Login(username, password string) commandWaiter
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Logout() commandWaiter
	Close() error
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }

func (d *Dialer) dialIMAP(acct config.Account) (imapClient, error) {
	addr := net.JoinHostPort(acct.Host, strconv.Itoa(acct.Port()))
	opts := &imapclient.Options{
		Dialer: &net.Dialer{Timeout: d.timeout},
	}

	var client *imapclient.Client
	var err error
	if acct.TLS() {
		opts.TLSConfig = &tls.Config{ServerName: acct.Host}
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w: %w", addr, ErrConnect, err)
	}
	return &imapClientWrapper{Client: client}, nil
}

// IMAPSession reads INBOX by UID over IMAP.
type IMAPSession struct {
	client   imapClient
	account  string
	selected bool
	logger   *slog.Logger
}

func newIMAPSession(client imapClient, acct config.Account, logger *slog.Logger) (*IMAPSession, error) {
	if err := client.Login(acct.Login(), acct.Password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login %s: %w: %w", acct.Login(), ErrAuth, err)
	}
	return &IMAPSession{
		client:  client,
		account: acct.Key(),
		logger:  logger,
	}, nil
}

// Highest selects INBOX read-only and returns UIDNEXT-1. Servers that omit
// UIDNEXT are asked for the UID of the last message instead.
func (s *IMAPSession) Highest() (uint32, error) {
	data, err := s.client.Select(inbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("imap select %s: %w: %w", inbox, ErrSelect, err)
	}
	s.selected = true

	if data.UIDNext > 0 {
		return uint32(data.UIDNext) - 1, nil
	}
	if data.NumMessages == 0 {
		return 0, nil
	}

	s.logger.Debug("server sent no UIDNEXT, fetching last UID", "account", s.account)
	bufs, err := s.client.Fetch(imap.SeqSetNum(data.NumMessages), &imap.FetchOptions{UID: true}).Collect()
	if err != nil {
		return 0, fmt.Errorf("imap fetch last uid: %w: %w", ErrSelect, err)
	}
	var highest imap.UID
	for _, buf := range bufs {
		if buf.UID > highest {
			highest = buf.UID
		}
	}
	if highest == 0 {
		return 0, fmt.Errorf("imap fetch last uid: %w: no uid in response", ErrSelect)
	}
	return uint32(highest), nil
}

// Existing lists the UIDs in from..to with a single UID FETCH.
func (s *IMAPSession) Existing(from, to uint32) ([]uint32, error) {
	if !s.selected {
		return nil, fmt.Errorf("imap list uids: %w: mailbox not selected", ErrFetch)
	}
	if from == 0 {
		from = 1
	}
	if to < from {
		return nil, nil
	}
	var set imap.UIDSet
	set.AddRange(imap.UID(from), imap.UID(to))
	bufs, err := s.client.Fetch(set, &imap.FetchOptions{UID: true}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap list uids %d:%d: %w: %w", from, to, ErrFetch, err)
	}
	uids := make([]uint32, 0, len(bufs))
	for _, buf := range bufs {
		// A range past the last UID still returns the last message.
		if uid := uint32(buf.UID); uid >= from && uid <= to {
			uids = append(uids, uid)
		}
	}
	slices.Sort(uids)
	return slices.Compact(uids), nil
}

// Fetch returns the full message with the given UID without setting \Seen.
func (s *IMAPSession) Fetch(id uint32) ([]byte, error) {
	if !s.selected {
		return nil, fmt.Errorf("imap fetch %d: %w: mailbox not selected", id, ErrFetch)
	}
	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}
	bufs, err := s.client.Fetch(imap.UIDSetNum(imap.UID(id)), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %d: %w: %w", id, ErrFetch, err)
	}
	for _, buf := range bufs {
		if uint32(buf.UID) != id {
			continue
		}
		if body := buf.FindBodySection(section); body != nil {
			return body, nil
		}
	}
	return nil, fmt.Errorf("imap fetch %d: %w", id, ErrNotFound)
}

// Close logs out and closes the connection.
func (s *IMAPSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("imap logout failed", "account", s.account, "error", err)
	}
	return s.client.Close()
}
