package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
maildir: /var/mail/me
accounts:
  - email: me@example.com
    imap_host: imap.example.com
    password: secret
    keep: 5
    filters: "invoice | newsletter"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "/var/mail/me", cfg.MailDir)
	require.Equal(t, "/var/mail/me/sync.log", cfg.LogFile)
	require.Equal(t, filepath.Join(os.TempDir(), "maildirsync.pid"), cfg.LockFile)
	require.Equal(t, "@every 5m", cfg.Schedule)
	require.Equal(t, "desktop", cfg.Notify)
	require.Len(t, cfg.Accounts, 1)

	a := cfg.Accounts[0]
	require.Equal(t, "me@example.com", a.Key())
	require.Equal(t, "imap", a.GetProtocol())
	require.True(t, a.TLS())
	require.Equal(t, 993, a.Port())
	require.Equal(t, "me@example.com", a.Login())
	require.Equal(t, 5, a.GetKeep())
	require.Equal(t, "invoice | newsletter", a.Filters)
}

func TestLoadExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfig(t, `
maildir: ~/mail
lock_file: ~/run/sync.pid
accounts:
  - email: me@example.com
    imap_host: imap.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "mail"), cfg.MailDir)
	require.Equal(t, filepath.Join(home, "run", "sync.pid"), cfg.LockFile)
	require.Equal(t, filepath.Join(home, "mail", "sync.log"), cfg.LogFile)
}

func TestAccountPorts(t *testing.T) {
	off := false
	tests := []struct {
		name    string
		account Account
		want    int
	}{
		{"imap tls", Account{}, 993},
		{"imap plain", Account{UseTLS: &off}, 143},
		{"pop3 tls", Account{Protocol: "pop3"}, 995},
		{"pop3 plain", Account{Protocol: "POP3", UseTLS: &off}, 110},
		{"explicit", Account{IMAPPort: 1143}, 1143},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.Port(); got != tt.want {
				t.Errorf("Port() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no accounts", "maildir: /tmp/m\n"},
		{"missing email", "accounts:\n  - imap_host: h\n"},
		{"bad email", "accounts:\n  - email: a/b\n    imap_host: h\n"},
		{"missing host", "accounts:\n  - email: a@b\n"},
		{"bad protocol", "accounts:\n  - email: a@b\n    imap_host: h\n    protocol: jmap\n"},
		{"negative keep", "accounts:\n  - email: a@b\n    imap_host: h\n    keep: -1\n"},
		{"duplicate", "accounts:\n  - email: a@b\n    imap_host: h\n  - email: a@b\n    imap_host: h\n"},
		{"bad notify", "notify: email\naccounts:\n  - email: a@b\n    imap_host: h\n"},
		{"command without path", "notify: command\naccounts:\n  - email: a@b\n    imap_host: h\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestResolvePasswordFromKeyring(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(KeyringService, "me@example.com", "from-keyring"))

	a := Account{Email: "me@example.com"}
	require.NoError(t, a.ResolvePassword())
	require.Equal(t, "from-keyring", a.Password)

	inline := Account{Email: "other@example.com", Password: "inline"}
	require.NoError(t, inline.ResolvePassword())
	require.Equal(t, "inline", inline.Password)
}

func TestResolvePasswordMissing(t *testing.T) {
	keyring.MockInit()
	a := Account{Email: "nobody@example.com"}
	require.ErrorContains(t, a.ResolvePassword(), "no password in config or keyring")
}
