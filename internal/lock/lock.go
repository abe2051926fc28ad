// Package lock keeps two sync processes from running at the same time.
//
// The marker is a PID file. A marker left behind by a process that no longer
// exists is treated as stale and replaced.
package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by Acquire when a live process holds the marker.
var ErrAlreadyRunning = errors.New("another instance is already running")

// ProcessTable answers whether a process id denotes a live process.
type ProcessTable interface {
	Alive(pid int) bool
}

// SignalProbe probes liveness by sending signal 0.
type SignalProbe struct{}

// Alive implements ProcessTable.
func (SignalProbe) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true
	case errors.Is(err, unix.EPERM):
		return true
	default:
		return false
	}
}

// Guard owns the marker file at path. Acquirers serialize the stale check and
// the marker creation through an flock on path+".lock".
type Guard struct {
	path   string
	procs  ProcessTable
	pid    int
	logger *slog.Logger

	mu   sync.Mutex
	held bool
}

// New creates a Guard for the marker at path, owned by the current process.
func New(path string, procs ProcessTable, logger *slog.Logger) *Guard {
	if procs == nil {
		procs = SignalProbe{}
	}
	return &Guard{
		path:   path,
		procs:  procs,
		pid:    os.Getpid(),
		logger: logger,
	}
}

// Acquire claims the marker or fails with ErrAlreadyRunning.
func (g *Guard) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	unlock, err := g.serialize()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := os.ReadFile(g.path)
	switch {
	case err == nil:
		if err := g.clearStale(strings.TrimSpace(string(data))); err != nil {
			return err
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("read lock file: %w", err)
	}

	f, err := os.OpenFile(g.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("create lock file: %w", err)
	}
	if _, err := f.WriteString(strconv.Itoa(g.pid)); err != nil {
		f.Close()
		os.Remove(g.path)
		return fmt.Errorf("write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(g.path)
		return fmt.Errorf("close lock file: %w", err)
	}
	g.held = true
	g.logger.Debug("lock acquired", "file", g.path, "pid", g.pid)
	return nil
}

// serialize takes an exclusive flock on the side file and returns its release.
func (g *Guard) serialize() (func(), error) {
	f, err := os.OpenFile(g.path+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock side file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock lock side file: %w", err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

func (g *Guard) clearStale(content string) error {
	pid, err := strconv.Atoi(content)
	if err == nil && pid != g.pid && g.procs.Alive(pid) {
		g.logger.Info("another instance running", "pid", pid)
		return ErrAlreadyRunning
	}
	g.logger.Info("removing stale lock file", "file", g.path, "content", content)
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale lock file: %w", err)
	}
	return nil
}

// Held reports whether this Guard currently owns the marker.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// Release removes the marker if this Guard acquired it. Releasing a Guard
// that does not hold the marker leaves another holder's marker in place.
func (g *Guard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return nil
	}
	g.held = false
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	g.logger.Debug("lock released", "file", g.path)
	return nil
}
