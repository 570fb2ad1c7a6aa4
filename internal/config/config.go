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

// Package config loads the agentctl configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-agentclient/pkg/agent"
)

// CertStoreDir is the directory below the home directory that holds the
// certificate store when no path is configured.
const CertStoreDir = "agentctl-certs"

// Config represents the complete client configuration
type Config struct {
	// Homedir is the GnuPG home directory. Empty means $GNUPGHOME or
	// ~/.gnupg.
	Homedir string `yaml:"homedir"`

	// Socket overrides socket discovery
	Socket string `yaml:"socket"`

	Autostart      bool           `yaml:"autostart"`
	Launcher       LauncherConfig `yaml:"launcher"`
	ConnectTimeout time.Duration  `yaml:"connect_timeout"`

	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	DebugIPC  bool            `yaml:"debug_ipc"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CertStore CertStoreConfig `yaml:"certstore"`

	// Locale selects the language of user facing messages
	Locale string `yaml:"locale"`
}

// LauncherConfig names the program used to start the agent
type LauncherConfig struct {
	Program string   `yaml:"program"`
	Args    []string `yaml:"args"`
}

// SessionConfig holds the OPTION values sent after connecting
type SessionConfig struct {
	LCCtype    string `yaml:"lc_ctype"`
	LCMessages string `yaml:"lc_messages"`
	TTYName    string `yaml:"ttyname"`
	TTYType    string `yaml:"ttytype"`
	Display    string `yaml:"display"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the metrics textfile export
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// CertStoreConfig locates the certificate store
type CertStoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built in configuration.
func Default() *Config {
	return &Config{
		Autostart:      true,
		ConnectTimeout: agent.DefaultConnectTimeout,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Locale: "en",
	}
}

// Load reads configuration from a YAML file on fsys and applies
// environment variable overrides. An empty path skips the file. A nil
// fsys means the OS filesystem.
func Load(fsys afero.Fs, path string) (*Config, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	cfg := Default()
	if path != "" {
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOptional is like Load but falls back to the defaults when the file
// does not exist.
func LoadOptional(fsys afero.Fs, path string) (*Config, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if path != "" {
		if _, err := fsys.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return Load(fsys, path)
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if home := os.Getenv("GNUPGHOME"); home != "" && cfg.Homedir == "" {
		cfg.Homedir = home
	}
	if socket := os.Getenv("AGENTCTL_SOCKET"); socket != "" {
		cfg.Socket = socket
	}
	if autostart := os.Getenv("AGENTCTL_AUTOSTART"); autostart != "" {
		v, err := strconv.ParseBool(autostart)
		if err != nil {
			log.Printf("Warning: invalid AGENTCTL_AUTOSTART value %q, using %t: %v",
				autostart, cfg.Autostart, err)
		} else {
			cfg.Autostart = v
		}
	}
	if level := os.Getenv("AGENTCTL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	// Session environment, only when the file left it unset
	setIfEmpty(&cfg.Session.LCCtype, "LC_CTYPE")
	setIfEmpty(&cfg.Session.LCMessages, "LC_MESSAGES")
	setIfEmpty(&cfg.Session.TTYName, "GPG_TTY")
	setIfEmpty(&cfg.Session.TTYType, "TERM")
	setIfEmpty(&cfg.Session.Display, "DISPLAY")
}

func setIfEmpty(field *string, env string) {
	if *field != "" {
		return
	}
	if v := os.Getenv(env); v != "" {
		*field = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("invalid connect_timeout: %s", c.ConnectTimeout)
	}

	if len(c.Launcher.Args) > 0 && c.Launcher.Program == "" {
		return fmt.Errorf("launcher args require a launcher program")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	// OPTION values travel on a single protocol line
	for name, value := range map[string]string{
		"lc_ctype":    c.Session.LCCtype,
		"lc_messages": c.Session.LCMessages,
		"ttyname":     c.Session.TTYName,
		"ttytype":     c.Session.TTYType,
		"display":     c.Session.Display,
	} {
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("invalid session %s: contains a line break", name)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics textfile is required when metrics are enabled")
	}

	if c.Locale != "" {
		if _, err := language.Parse(c.Locale); err != nil {
			return fmt.Errorf("invalid locale %q: %w", c.Locale, err)
		}
	}

	return nil
}

// SocketPath returns the configured socket or the discovered default.
func (c *Config) SocketPath() string {
	if c.Socket != "" {
		return c.Socket
	}
	return agent.DefaultSocketPath(c.Homedir)
}

// CertStorePath returns the configured certificate store directory, or
// CertStoreDir below the home directory.
func (c *Config) CertStorePath() string {
	if c.CertStore.Path != "" {
		return c.CertStore.Path
	}
	return filepath.Join(c.resolvedHomedir(), CertStoreDir)
}

// SessionOptions converts the session section for the agent client.
func (c *Config) SessionOptions() agent.SessionOptions {
	return agent.SessionOptions{
		LCCtype:    c.Session.LCCtype,
		LCMessages: c.Session.LCMessages,
		TTYName:    c.Session.TTYName,
		TTYType:    c.Session.TTYType,
		Display:    c.Session.Display,
	}
}

// AgentLauncher returns the agent launcher described by the configuration.
func (c *Config) AgentLauncher() *agent.CommandLauncher {
	return &agent.CommandLauncher{
		Program: c.Launcher.Program,
		Args:    c.Launcher.Args,
		Homedir: c.Homedir,
	}
}

func (c *Config) resolvedHomedir() string {
	if c.Homedir != "" {
		return c.Homedir
	}
	if home := os.Getenv("GNUPGHOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gnupg"
	}
	return filepath.Join(home, ".gnupg")
}
