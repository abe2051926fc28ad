package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store keeps the last synced identifier of each account, one file per
// account, so sync can resume where the previous run stopped.
type Store struct {
	dir string
}

// NewStore returns a Store writing state files into dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the state file used for account.
func (s *Store) Path(account string) string {
	return filepath.Join(s.dir, ".last-uid-"+sanitize(account))
}

// Load returns the last synced identifier. ok is false when the account was
// never synced or its state file does not hold a valid number.
func (s *Store) Load(account string) (uid uint32, ok bool, err error) {
	data, err := os.ReadFile(s.Path(account))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read state file: %w", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, false, nil
	}
	return uint32(n), true, nil
}

// Save records uid as the last synced identifier, replacing the state file
// atomically.
func (s *Store) Save(account string, uid uint32) error {
	f, err := os.CreateTemp(s.dir, ".last-uid-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.WriteString(strconv.FormatUint(uint64(uid), 10)); err != nil {
		f.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp, s.Path(account)); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	if name == "" {
		return "default"
	}
	out := make([]byte, 0, len(name))
	for _, b := range []byte(name) {
		if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '-' || b == '_' || b == '.' || b == '@' || b == '+' {
			out = append(out, b)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
