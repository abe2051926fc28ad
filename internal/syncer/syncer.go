// Package syncer mirrors remote inboxes into the local Maildir.
//
// For each account it compares the highest remote identifier against the
// last one recorded locally, fetches the difference in ascending order,
// delivers every message, and only then records the new high-water mark. A
// crash between delivery and recording makes the next run see already
// delivered identifiers, which are skipped.
package syncer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tracyhatemice/maildirsync/internal/config"
	"github.com/tracyhatemice/maildirsync/internal/filter"
	"github.com/tracyhatemice/maildirsync/internal/maildir"
	"github.com/tracyhatemice/maildirsync/internal/notifier"
	"github.com/tracyhatemice/maildirsync/internal/progress"
	"github.com/tracyhatemice/maildirsync/internal/receiver"
	"github.com/tracyhatemice/maildirsync/internal/retention"
)

// Staged files older than this are leftovers from interrupted runs.
const staleTmpAge = 36 * time.Hour

// Locker is the single-instance guard held for the duration of a run.
type Locker interface {
	Acquire() error
	Release() error
}

// Result summarizes one account's pass.
type Result struct {
	Account  string
	Initial  bool
	Previous uint32 // last synced identifier before the pass
	Highest  uint32 // highest remote identifier seen
	Unseen   int    // delivered to new/
	Seen     int    // delivered to cur/
	Skipped  int    // vanished before fetch or already delivered
	Deleted  int    // removed by retention
	Notified bool
	Err      error
}

// Delivered returns the number of messages written in the pass.
func (r Result) Delivered() int { return r.Unseen + r.Seen }

// Engine runs synchronization passes.
type Engine struct {
	store     *maildir.Store
	progress  *progress.Store
	retention *retention.Manager
	opener    receiver.Opener
	notifier  notifier.Notifier
	logger    *slog.Logger
}

// New creates an Engine.
func New(
	store *maildir.Store,
	prog *progress.Store,
	ret *retention.Manager,
	opener receiver.Opener,
	ntf notifier.Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:     store,
		progress:  prog,
		retention: ret,
		opener:    opener,
		notifier:  ntf,
		logger:    logger,
	}
}

// RunExclusive holds guard while running all accounts. It fails without
// touching any account when the guard cannot be acquired.
func (e *Engine) RunExclusive(guard Locker, accounts []config.Account) ([]Result, error) {
	if err := guard.Acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err := guard.Release(); err != nil {
			e.logger.Error("release lock failed", "error", err)
		}
	}()
	return e.Run(accounts), nil
}

// Run syncs each account in order. A failing account is logged and does not
// stop the others.
func (e *Engine) Run(accounts []config.Account) []Result {
	if n, err := e.store.PurgeTmp(staleTmpAge); err != nil {
		e.logger.Warn("purge tmp failed", "error", err)
	} else if n > 0 {
		e.logger.Info("purged stale staged files", "count", n)
	}

	results := make([]Result, 0, len(accounts))
	for _, acct := range accounts {
		res, err := e.syncIsolated(acct)
		if err != nil {
			e.logger.Error("sync failed", "account", acct.Key(), "error", err)
			res.Err = err
		}
		results = append(results, res)
	}
	return results
}

func (e *Engine) syncIsolated(acct config.Account) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Account: acct.Key()}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.SyncAccount(acct)
}

// SyncAccount runs one pass for acct: an initial backfill when no progress
// is recorded, an incremental fetch otherwise.
func (e *Engine) SyncAccount(acct config.Account) (Result, error) {
	key := acct.Key()
	res := Result{Account: key}

	last, ok, err := e.progress.Load(key)
	if err != nil {
		return res, fmt.Errorf("load progress: %w", err)
	}

	sess, err := e.opener.Open(acct)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			e.logger.Debug("close session failed", "account", key, "error", err)
		}
	}()

	highest, err := sess.Highest()
	if err != nil {
		return res, err
	}
	res.Highest = highest
	e.logger.Debug("remote highest uid", "account", key, "uid", highest)

	if !ok {
		res.Initial = true
		return res, e.initialSync(sess, acct, &res)
	}
	res.Previous = last
	return res, e.incrementalSync(sess, acct, &res)
}

func (e *Engine) initialSync(sess receiver.Session, acct config.Account, res *Result) error {
	key := acct.Key()
	start := int64(res.Highest) - int64(acct.GetKeep())
	if start < 1 {
		start = 1
	}
	e.logger.Info("initial sync", "account", key, "from", start, "to", res.Highest)

	ids, err := sess.Existing(uint32(start), res.Highest)
	if err != nil {
		return err
	}
	have, err := e.store.Delivered(key)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := e.deliver(sess, acct, id, true, have, res); err != nil {
			return err
		}
	}

	if err := e.progress.Save(key, res.Highest); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	e.logger.Debug("saved last uid", "account", key, "uid", res.Highest)
	return nil
}

func (e *Engine) incrementalSync(sess receiver.Session, acct config.Account, res *Result) error {
	key := acct.Key()
	last := res.Previous

	if res.Highest <= last {
		if res.Highest < last {
			e.logger.Error("remote highest id below saved id, keeping saved id",
				"account", key, "protocol", acct.GetProtocol(), "last_uid", res.Highest, "last_saved_uid", last)
		}
		e.logger.Info("no messages to retrieve", "account", key, "last_uid", res.Highest, "last_saved_uid", last)
		e.truncate(acct, res)
		return nil
	}

	ids, err := sess.Existing(last+1, res.Highest)
	if err != nil {
		return err
	}
	have, err := e.store.Delivered(key)
	if err != nil {
		return err
	}
	var newest *receiver.Header
	for _, id := range ids {
		hdr, err := e.deliver(sess, acct, id, false, have, res)
		if err != nil {
			return err
		}
		if hdr != nil {
			newest = hdr
		}
	}

	if newest != nil {
		e.notifier.Notify(int(res.Highest-last), newest.From, newest.Subject)
		res.Notified = true
	}

	if err := e.progress.Save(key, res.Highest); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	e.logger.Debug("saved last uid", "account", key, "uid", res.Highest)
	e.truncate(acct, res)
	return nil
}

// deliver fetches and commits one message. It returns the message header
// when the message went to new/, nil otherwise.
func (e *Engine) deliver(
	sess receiver.Session,
	acct config.Account,
	uid uint32,
	initial bool,
	have map[uint32]maildir.Area,
	res *Result,
) (*receiver.Header, error) {
	key := acct.Key()
	if area, ok := have[uid]; ok {
		e.logger.Debug("already delivered", "account", key, "uid", uid, "area", area)
		res.Skipped++
		return nil, nil
	}

	raw, err := sess.Fetch(uid)
	if errors.Is(err, receiver.ErrNotFound) {
		e.logger.Debug("message vanished before fetch", "account", key, "uid", uid)
		res.Skipped++
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	staged, err := e.store.Stage(raw)
	if err != nil {
		return nil, fmt.Errorf("stage uid %d: %w: %w", uid, maildir.ErrDeliveryFailed, err)
	}

	area := maildir.AreaNew
	var hdr receiver.Header
	if initial {
		area = maildir.AreaCur
	} else {
		hdr = receiver.ParseHeader(raw)
		if filter.Matches(hdr.Subject, acct.Filters) {
			area = maildir.AreaCur
		}
	}

	name := maildir.Name{Account: key, UID: uid, Seen: area == maildir.AreaCur}
	if err := e.store.Commit(staged, name, area); err != nil {
		if errors.Is(err, maildir.ErrExists) {
			e.logger.Debug("already delivered", "account", key, "file", name.String())
			res.Skipped++
			return nil, nil
		}
		return nil, err
	}
	have[uid] = area

	switch {
	case initial:
		e.logger.Debug("initial sync, marked as read", "account", key, "file", name.String())
		res.Seen++
		return nil, nil
	case area == maildir.AreaCur:
		e.logger.Debug("marked as read because of filter", "account", key, "file", name.String())
		res.Seen++
		return nil, nil
	default:
		e.logger.Debug("synced", "account", key, "file", name.String())
		res.Unseen++
		return &hdr, nil
	}
}

func (e *Engine) truncate(acct config.Account, res *Result) {
	n, err := e.retention.Truncate(acct.Key(), acct.GetKeep())
	if err != nil {
		e.logger.Warn("retention failed", "account", acct.Key(), "error", err)
		return
	}
	res.Deleted = n
}
