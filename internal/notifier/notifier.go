// Package notifier tells the user about newly synced mail. Delivery is
// best effort: failures are logged and otherwise ignored.
package notifier

import (
	"fmt"
	"html"
	"log/slog"
	"os/exec"

	"github.com/TheCreeper/go-notify"
)

const appName = "maildirsync"

// Notifier reports a batch of new messages.
type Notifier interface {
	Notify(count int, from, subject string)
}

// Title is the headline shown for count new messages.
func Title(count int) string {
	return fmt.Sprintf("Synced %d new emails", count)
}

// Desktop shows a freedesktop notification over D-Bus.
type Desktop struct {
	Icon   string
	logger *slog.Logger
}

// NewDesktop creates a Desktop notifier.
func NewDesktop(logger *slog.Logger) *Desktop {
	return &Desktop{Icon: "mail-unread", logger: logger}
}

// Notify implements Notifier.
func (d *Desktop) Notify(count int, from, subject string) {
	ntf := notify.NewNotification(Title(count), fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(from), html.EscapeString(subject)))
	ntf.AppName = appName
	ntf.AppIcon = d.Icon
	ntf.Timeout = notify.ExpiresDefault
	if _, err := ntf.Show(); err != nil {
		d.logger.Debug("desktop notification failed", "error", err)
	}
}

// Command runs an external notifier such as terminal-notifier.
type Command struct {
	path   string
	run    func(name string, args ...string) error
	logger *slog.Logger
}

// NewCommand creates a Command notifier running path.
func NewCommand(path string, logger *slog.Logger) *Command {
	return &Command{
		path:   path,
		run:    func(name string, args ...string) error { return exec.Command(name, args...).Run() },
		logger: logger,
	}
}

// Args returns the arguments passed to the notifier command.
func (c *Command) Args(count int, from, subject string) []string {
	return []string{
		"-sound", "default",
		"-title", Title(count),
		"-subtitle", from,
		"-message", subject,
	}
}

// Notify implements Notifier.
func (c *Command) Notify(count int, from, subject string) {
	if err := c.run(c.path, c.Args(count, from, subject)...); err != nil {
		c.logger.Debug("notify command failed", "command", c.path, "error", err)
	}
}

// Log only records the notification in the log.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Notify implements Notifier.
func (l *Log) Notify(count int, from, subject string) {
	l.logger.Info(Title(count), "from", from, "subject", subject)
}

// New returns the notifier selected by kind: "desktop", "command" or "none".
func New(kind, command string, logger *slog.Logger) Notifier {
	switch kind {
	case "desktop":
		return NewDesktop(logger)
	case "command":
		return NewCommand(command, logger)
	default:
		return NewLog(logger)
	}
}
