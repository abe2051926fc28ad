package retention

import (
	"fmt"
	"log/slog"

	"github.com/tracyhatemice/maildirsync/internal/maildir"
)

// Store is the part of the Maildir the Manager needs.
type Store interface {
	List(account string, area maildir.Area) ([]maildir.Entry, error)
	Remove(e maildir.Entry) error
}

// Manager bounds the number of seen messages kept per account.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// New creates a Manager over store.
func New(store Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Truncate keeps the keep highest-UID seen messages of account and deletes the
// rest, oldest first. A file that cannot be deleted is logged and skipped.
func (m *Manager) Truncate(account string, keep int) (int, error) {
	entries, err := m.store.List(account, maildir.AreaCur)
	if err != nil {
		return 0, fmt.Errorf("truncate %s: %w", account, err)
	}
	if keep < 0 {
		keep = 0
	}
	m.logger.Debug("before truncate", "account", account, "count", len(entries), "keep", keep)
	if len(entries) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, e := range entries[:len(entries)-keep] {
		if err := m.store.Remove(e); err != nil {
			m.logger.Warn("delete failed", "account", account, "file", e.File, "error", err)
			continue
		}
		m.logger.Debug("deleted", "account", account, "file", e.File)
		deleted++
	}
	m.logger.Debug("after truncate", "account", account, "count", len(entries)-deleted)
	return deleted, nil
}
