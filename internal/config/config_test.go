// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-agentclient.
//
// go-agentclient is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"GNUPGHOME", "AGENTCTL_SOCKET", "AGENTCTL_AUTOSTART", "AGENTCTL_LOG_LEVEL",
		"LC_CTYPE", "LC_MESSAGES", "GPG_TTY", "TERM", "DISPLAY",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/agentctl.yaml", []byte(content), 0o600))
	return fsys
}

func TestLoad_Success(t *testing.T) {
	clearEnv(t)
	fsys := writeConfig(t, `
homedir: /home/alice/.gnupg
socket: /run/user/1000/gnupg/S.gpg-agent
autostart: false
launcher:
  program: /usr/bin/gpgconf
  args: ["--launch", "gpg-agent"]
connect_timeout: 3s
session:
  lc_ctype: en_US.UTF-8
  ttyname: /dev/pts/3
  display: ":0"
logging:
  level: debug
  format: json
debug_ipc: true
metrics:
  enabled: true
  textfile: /var/lib/node_exporter/agentctl.prom
certstore:
  path: /var/lib/agentctl/certs
locale: de
`)

	cfg, err := Load(fsys, "/etc/agentctl.yaml")
	require.NoError(t, err)

	assert.Equal(t, "/home/alice/.gnupg", cfg.Homedir)
	assert.Equal(t, "/run/user/1000/gnupg/S.gpg-agent", cfg.SocketPath())
	assert.False(t, cfg.Autostart)
	assert.Equal(t, "/usr/bin/gpgconf", cfg.Launcher.Program)
	assert.Equal(t, []string{"--launch", "gpg-agent"}, cfg.Launcher.Args)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "en_US.UTF-8", cfg.Session.LCCtype)
	assert.Equal(t, "/dev/pts/3", cfg.Session.TTYName)
	assert.Equal(t, ":0", cfg.Session.Display)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.DebugIPC)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/var/lib/agentctl/certs", cfg.CertStorePath())
	assert.Equal(t, "de", cfg.Locale)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	assert.True(t, cfg.Autostart)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "en", cfg.Locale)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	fsys := writeConfig(t, "debug_ipc: true\n")

	cfg, err := Load(fsys, "/etc/agentctl.yaml")
	require.NoError(t, err)
	assert.True(t, cfg.DebugIPC)
	assert.True(t, cfg.Autostart)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	_, err := Load(afero.NewMemMapFs(), "/nonexistent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadOptional_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadOptional(afero.NewMemMapFs(), "/nonexistent.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default().Logging, cfg.Logging)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	fsys := writeConfig(t, "logging: [unterminated\n")
	_, err := Load(fsys, "/etc/agentctl.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)
	fsys := writeConfig(t, "logging:\n  level: verbose\n")
	_, err := Load(fsys, "/etc/agentctl.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GNUPGHOME", "/tmp/gnupg")
	t.Setenv("AGENTCTL_SOCKET", "/tmp/agent.sock")
	t.Setenv("AGENTCTL_AUTOSTART", "false")
	t.Setenv("AGENTCTL_LOG_LEVEL", "error")
	t.Setenv("LC_CTYPE", "de_DE.UTF-8")
	t.Setenv("LC_MESSAGES", "de_DE.UTF-8")
	t.Setenv("GPG_TTY", "/dev/pts/7")
	t.Setenv("TERM", "xterm")
	t.Setenv("DISPLAY", ":1")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, "/tmp/gnupg", cfg.Homedir)
	assert.Equal(t, "/tmp/agent.sock", cfg.Socket)
	assert.False(t, cfg.Autostart)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "de_DE.UTF-8", cfg.Session.LCCtype)
	assert.Equal(t, "de_DE.UTF-8", cfg.Session.LCMessages)
	assert.Equal(t, "/dev/pts/7", cfg.Session.TTYName)
	assert.Equal(t, "xterm", cfg.Session.TTYType)
	assert.Equal(t, ":1", cfg.Session.Display)
}

func TestApplyEnvOverrides_FileValuesWin(t *testing.T) {
	clearEnv(t)
	t.Setenv("GNUPGHOME", "/tmp/gnupg")
	t.Setenv("DISPLAY", ":1")

	cfg := Default()
	cfg.Homedir = "/etc/gnupg"
	cfg.Session.Display = ":9"
	applyEnvOverrides(cfg)

	assert.Equal(t, "/etc/gnupg", cfg.Homedir)
	assert.Equal(t, ":9", cfg.Session.Display)
}

func TestApplyEnvOverrides_InvalidAutostart(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTCTL_AUTOSTART", "sometimes")

	cfg := Default()
	applyEnvOverrides(cfg)
	assert.True(t, cfg.Autostart)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{
			name:    "negative timeout",
			modify:  func(c *Config) { c.ConnectTimeout = -time.Second },
			wantErr: "connect_timeout",
		},
		{
			name:    "args without program",
			modify:  func(c *Config) { c.Launcher.Args = []string{"--launch"} },
			wantErr: "launcher program",
		},
		{
			name:    "bad level",
			modify:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "invalid log level",
		},
		{
			name:   "level is case insensitive",
			modify: func(c *Config) { c.Logging.Level = "DEBUG" },
		},
		{
			name:    "bad format",
			modify:  func(c *Config) { c.Logging.Format = "console" },
			wantErr: "invalid log format",
		},
		{
			name:    "line break in option",
			modify:  func(c *Config) { c.Session.Display = ":0\nRESET" },
			wantErr: "session display",
		},
		{
			name:    "metrics without textfile",
			modify:  func(c *Config) { c.Metrics.Enabled = true },
			wantErr: "metrics textfile",
		},
		{
			name:    "bad locale",
			modify:  func(c *Config) { c.Locale = "not a locale" },
			wantErr: "invalid locale",
		},
		{
			name:   "empty locale",
			modify: func(c *Config) { c.Locale = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSocketPath(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Homedir = "/srv/gnupg"
	assert.Equal(t, filepath.Join("/srv/gnupg", "S.gpg-agent"), cfg.SocketPath())

	cfg.Socket = "/tmp/explicit"
	assert.Equal(t, "/tmp/explicit", cfg.SocketPath())
}

func TestCertStorePath(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Homedir = "/srv/gnupg"
	assert.Equal(t, filepath.Join("/srv/gnupg", CertStoreDir), cfg.CertStorePath())

	t.Setenv("GNUPGHOME", "/env/gnupg")
	cfg.Homedir = ""
	assert.Equal(t, filepath.Join("/env/gnupg", CertStoreDir), cfg.CertStorePath())
}

func TestSessionOptionsAndLauncher(t *testing.T) {
	cfg := Default()
	cfg.Homedir = "/srv/gnupg"
	cfg.Session = SessionConfig{LCCtype: "C", TTYName: "/dev/tty1"}
	cfg.Launcher = LauncherConfig{Program: "/opt/gpgconf"}

	opts := cfg.SessionOptions()
	assert.Equal(t, "C", opts.LCCtype)
	assert.Equal(t, "/dev/tty1", opts.TTYName)

	l := cfg.AgentLauncher()
	assert.Equal(t, "/opt/gpgconf", l.Program)
	assert.Equal(t, "/srv/gnupg", l.Homedir)
}
