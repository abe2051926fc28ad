package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tracyhatemice/maildirsync/internal/config"
	"github.com/tracyhatemice/maildirsync/internal/lock"
	"github.com/tracyhatemice/maildirsync/internal/maildir"
	"github.com/tracyhatemice/maildirsync/internal/notifier"
	"github.com/tracyhatemice/maildirsync/internal/progress"
	"github.com/tracyhatemice/maildirsync/internal/receiver"
	"github.com/tracyhatemice/maildirsync/internal/retention"
	"github.com/tracyhatemice/maildirsync/internal/syncer"
)

const dialTimeout = 30 * time.Second

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"Path to config file" short:"c" type:"path"`
	LogLevel string `help:"Override log level (debug, info, warn, error)" name:"log-level"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Sync   SyncCmd   `cmd:"" default:"1" help:"Run one synchronization pass"`
	Watch  WatchCmd  `cmd:"" help:"Run synchronization passes on the configured schedule"`
	Status StatusCmd `cmd:"" help:"Show local state per account"`
}

// app holds the components wired from the configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *syncer.Engine
	guard  *lock.Guard
	closer io.Closer
}

func main() {
	var c CLI
	parser := kong.Must(&c,
		kong.Name("maildirsync"),
		kong.Description("Mirror IMAP and POP3 inboxes into a local Maildir"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	a, err := newApp(&c.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer a.closer.Close()

	if err := ctx.Run(a); err != nil {
		a.logger.Error("command failed", "error", err)
		a.closer.Close()
		os.Exit(1)
	}
}

func newApp(g *Globals) (*app, error) {
	path := g.Config
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}

	logger, closer, err := setupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	store, err := maildir.Open(cfg.MailDir)
	if err != nil {
		closer.Close()
		return nil, err
	}
	prog, err := progress.NewStore(cfg.MailDir)
	if err != nil {
		closer.Close()
		return nil, err
	}

	engine := syncer.New(
		store,
		prog,
		retention.New(store, logger),
		receiver.WithKeyring(receiver.NewDialer(dialTimeout, logger)),
		notifier.New(cfg.Notify, cfg.NotifyCommand, logger),
		logger,
	)
	return &app{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		guard:  lock.New(cfg.LockFile, nil, logger),
		closer: closer,
	}, nil
}

// setupLogger logs to stderr and to a rotated file.
func setupLogger(level, file string) (*slog.Logger, io.Closer, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    1, // megabytes
		MaxBackups: 1,
	}
	w := io.MultiWriter(os.Stderr, rotated)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), rotated, nil
}

// runPass runs one guarded pass. Another live instance is not an error.
func (a *app) runPass() ([]syncer.Result, error) {
	results, err := a.engine.RunExclusive(a.guard, a.cfg.Accounts)
	if errors.Is(err, lock.ErrAlreadyRunning) {
		a.logger.Info("another instance is running, skipping", "lock_file", a.cfg.LockFile)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		a.logger.Info("account synced",
			"account", r.Account,
			"initial", r.Initial,
			"uid", r.Highest,
			"unseen", r.Unseen,
			"seen", r.Seen,
			"skipped", r.Skipped,
			"deleted", r.Deleted,
		)
	}
	return results, nil
}
