package syncer

import (
	"github.com/tracyhatemice/maildirsync/internal/config"
	"github.com/tracyhatemice/maildirsync/internal/maildir"
)

// Status describes the local state of one account.
type Status struct {
	Account    string
	LastSynced uint32
	Synced     bool // false when the account was never synced
	Unseen     int
	Seen       int
	LowestUID  uint32
	HighestUID uint32
}

// Status reports what is stored locally for acct without contacting the
// server.
func (e *Engine) Status(acct config.Account) (Status, error) {
	key := acct.Key()
	st := Status{Account: key}

	last, ok, err := e.progress.Load(key)
	if err != nil {
		return st, err
	}
	st.LastSynced, st.Synced = last, ok

	first := true
	for _, area := range []maildir.Area{maildir.AreaNew, maildir.AreaCur} {
		entries, err := e.store.List(key, area)
		if err != nil {
			return st, err
		}
		if area == maildir.AreaNew {
			st.Unseen = len(entries)
		} else {
			st.Seen = len(entries)
		}
		if len(entries) == 0 {
			continue
		}
		lo, hi := entries[0].Name.UID, entries[len(entries)-1].Name.UID
		if first || lo < st.LowestUID {
			st.LowestUID = lo
		}
		if first || hi > st.HighestUID {
			st.HighestUID = hi
		}
		first = false
	}
	return st, nil
}
