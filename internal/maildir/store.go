// Package maildir delivers messages into a Maildir (tmp/, new/, cur/).
//
// Every message is written to tmp/ first and then linked into new/ or cur/
// under its final name, so a reader of new/ and cur/ never sees a partial
// file.
package maildir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	gomaildir "github.com/emersion/go-maildir"
	"github.com/google/uuid"
)

var (
	// ErrExists means the destination name is already taken.
	ErrExists = errors.New("message already delivered")
	// ErrDeliveryFailed means a staged message could not be moved into place.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Area is a delivery destination inside the Maildir.
type Area string

const (
	AreaNew Area = "new" // unseen
	AreaCur Area = "cur" // seen
)

// Staged is a message written to tmp/ and not yet delivered.
type Staged struct {
	path string
}

// Path returns the staged file location.
func (s Staged) Path() string { return s.path }

// Entry is a delivered message found by List.
type Entry struct {
	Name Name
	File string
	Area Area
}

// Store is a Maildir rooted at a directory.
type Store struct {
	root string
	pid  int
	now  func() time.Time
}

// Open prepares the Maildir layout under root.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(root), 0o700); err != nil {
		return nil, fmt.Errorf("create maildir parent: %w", err)
	}
	if err := gomaildir.Dir(root).Init(); err != nil {
		return nil, fmt.Errorf("init maildir %s: %w", root, err)
	}
	return &Store{root: root, pid: os.Getpid(), now: time.Now}, nil
}

// Root returns the Maildir directory.
func (s *Store) Root() string { return s.root }

func (s *Store) dir(sub string) string { return filepath.Join(s.root, sub) }

// Stage writes raw to a uniquely named file in tmp/.
func (s *Store) Stage(raw []byte) (Staged, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	name := fmt.Sprintf("%d.%d.%s", s.now().UnixNano(), s.pid, suffix)
	path := filepath.Join(s.dir("tmp"), name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Staged{}, fmt.Errorf("create staged file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(path)
		return Staged{}, fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return Staged{}, fmt.Errorf("sync staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Staged{}, fmt.Errorf("close staged file: %w", err)
	}
	return Staged{path: path}, nil
}

// Commit moves a staged message into area under name. The staged file is
// consumed whether or not delivery succeeds. An existing target is never
// overwritten; that case wraps ErrExists, every other failure wraps
// ErrDeliveryFailed.
func (s *Store) Commit(st Staged, name Name, area Area) error {
	defer s.Discard(st)

	target := filepath.Join(s.dir(string(area)), name.String())
	if err := os.Link(st.path, target); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("deliver %s: %w", name, ErrExists)
		}
		return fmt.Errorf("deliver %s: %w: %w", name, ErrDeliveryFailed, err)
	}
	return nil
}

// Discard removes a staged file.
func (s *Store) Discard(st Staged) {
	if st.path != "" {
		os.Remove(st.path)
	}
}

// List returns the account's messages in area, sorted by UID ascending.
func (s *Store) List(account string, area Area) ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir(string(area)))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", area, err)
	}
	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		name, ok := ParseName(de.Name())
		if !ok || name.Account != account {
			continue
		}
		entries = append(entries, Entry{Name: name, File: de.Name(), Area: area})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		switch {
		case a.Name.UID < b.Name.UID:
			return -1
		case a.Name.UID > b.Name.UID:
			return 1
		default:
			return strings.Compare(a.File, b.File)
		}
	})
	return entries, nil
}

// Delivered returns the UIDs of the account's messages present in either
// area.
func (s *Store) Delivered(account string) (map[uint32]Area, error) {
	out := make(map[uint32]Area)
	for _, area := range []Area{AreaNew, AreaCur} {
		entries, err := s.List(account, area)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			out[e.Name.UID] = area
		}
	}
	return out, nil
}

// Remove deletes a delivered message.
func (s *Store) Remove(e Entry) error {
	return os.Remove(filepath.Join(s.dir(string(e.Area)), e.File))
}

// PurgeTmp deletes staged files older than age, left over by interrupted
// runs. It returns the number of files removed.
func (s *Store) PurgeTmp(age time.Duration) (int, error) {
	dirents, err := os.ReadDir(s.dir("tmp"))
	if err != nil {
		return 0, fmt.Errorf("list tmp: %w", err)
	}
	cutoff := s.now().Add(-age)
	removed := 0
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(s.dir("tmp"), de.Name())) == nil {
			removed++
		}
	}
	return removed, nil
}
