package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
	"go.yaml.in/yaml/v4"
)

// KeyringService is the keyring service name passwords are looked up under.
const KeyringService = "maildirsync"

// Config is the top-level application configuration.
type Config struct {
	LogLevel      string    `yaml:"log_level"`
	LogFile       string    `yaml:"log_file"`
	MailDir       string    `yaml:"maildir"`
	LockFile      string    `yaml:"lock_file"`
	Schedule      string    `yaml:"schedule"`
	Notify        string    `yaml:"notify"` // "desktop", "command" or "none"
	NotifyCommand string    `yaml:"notify_command"`
	Accounts      []Account `yaml:"accounts"`
}

// Account describes one mirrored mailbox.
//
// POP3 accounts are tracked by message number. If another client or a server
// retention policy deletes mail, numbers shift down and the mailbox must be
// re-synced from scratch by removing its .last-uid file.
type Account struct {
	Email    string `yaml:"email"`
	Protocol string `yaml:"protocol"` // "imap" or "pop3"
	Host     string `yaml:"imap_host"`
	IMAPPort int    `yaml:"imap_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   *bool  `yaml:"use_tls"`
	Keep     int    `yaml:"keep"`
	Filters  string `yaml:"filters"`
}

// Key returns the account key used in file names.
func (a *Account) Key() string {
	return a.Email
}

// GetProtocol returns the remote protocol, defaulting to "imap".
func (a *Account) GetProtocol() string {
	if a.Protocol == "" {
		return "imap"
	}
	return strings.ToLower(a.Protocol)
}

// TLS reports whether the connection is made over TLS, defaulting to true.
func (a *Account) TLS() bool {
	if a.UseTLS == nil {
		return true
	}
	return *a.UseTLS
}

// Port returns the configured port or the protocol's well-known one.
func (a *Account) Port() int {
	if a.IMAPPort > 0 {
		return a.IMAPPort
	}
	switch {
	case a.GetProtocol() == "pop3" && a.TLS():
		return 995
	case a.GetProtocol() == "pop3":
		return 110
	case a.TLS():
		return 993
	default:
		return 143
	}
}

// Login returns the user name sent to the server, defaulting to the email.
func (a *Account) Login() string {
	if a.Username == "" {
		return a.Email
	}
	return a.Username
}

// GetKeep returns the retention count, never negative.
func (a *Account) GetKeep() int {
	if a.Keep < 0 {
		return 0
	}
	return a.Keep
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		MailDir:  "~/mail",
		LockFile: filepath.Join(os.TempDir(), "maildirsync.pid"),
		Schedule: "@every 5m",
		Notify:   "desktop",
	}
}

// DefaultPath returns the configuration file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, "maildirsync", "config.yaml"), nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, fmt.Errorf("expand paths: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ResolvePassword fills an empty password from the OS keyring.
func (a *Account) ResolvePassword() error {
	if a.Password != "" {
		return nil
	}
	secret, err := keyring.Get(KeyringService, a.Email)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("account %s: no password in config or keyring", a.Email)
		}
		return fmt.Errorf("account %s: keyring lookup: %w", a.Email, err)
	}
	a.Password = secret
	return nil
}

func (c *Config) expand() error {
	var err error
	if c.MailDir, err = expandHome(c.MailDir); err != nil {
		return err
	}
	if c.LockFile, err = expandHome(c.LockFile); err != nil {
		return err
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.MailDir, "sync.log")
	}
	c.LogFile, err = expandHome(c.LogFile)
	return err
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func (c *Config) validate() error {
	if c.MailDir == "" {
		return fmt.Errorf("maildir is required")
	}
	if c.LockFile == "" {
		return fmt.Errorf("lock_file is required")
	}
	switch c.Notify {
	case "desktop", "none":
	case "command":
		if c.NotifyCommand == "" {
			return fmt.Errorf("notify_command is required when notify is command")
		}
	default:
		return fmt.Errorf("notify must be desktop, command or none")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	seen := make(map[string]struct{}, len(c.Accounts))
	for i, a := range c.Accounts {
		label := a.Email
		if label == "" {
			return fmt.Errorf("account #%d: email is required", i)
		}
		if strings.ContainsAny(a.Email, "/:") {
			return fmt.Errorf("account %s: email must not contain '/' or ':'", label)
		}
		if _, dup := seen[a.Email]; dup {
			return fmt.Errorf("account %s: duplicate email", label)
		}
		seen[a.Email] = struct{}{}
		if p := a.GetProtocol(); p != "imap" && p != "pop3" {
			return fmt.Errorf("account %s: protocol must be imap or pop3", label)
		}
		if a.Host == "" {
			return fmt.Errorf("account %s: imap_host is required", label)
		}
		if a.Keep < 0 {
			return fmt.Errorf("account %s: keep must not be negative", label)
		}
	}
	return nil
}
