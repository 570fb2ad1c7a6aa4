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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-agentclient/internal/config"
	"github.com/jeremyhahn/go-agentclient/internal/i18n"
	"github.com/jeremyhahn/go-agentclient/pkg/agent"
	"github.com/jeremyhahn/go-agentclient/pkg/certstore"
	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
	"github.com/jeremyhahn/go-agentclient/pkg/password"
	"github.com/jeremyhahn/go-agentclient/pkg/storage/file"
)

// ConfigFileName is looked up in the GnuPG home directory when --config
// is not given.
const ConfigFileName = "agentctl.yaml"

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool

	// Hex forces hex output of binary results
	Hex bool

	// PassphraseFile answers passphrase inquiries in batch mode
	PassphraseFile string

	// MetricsFile receives the metrics textfile on exit
	MetricsFile string

	// Settings is the loaded configuration file with flag and
	// environment overrides applied
	Settings *config.Config

	fs     afero.Fs
	dialer agent.Dialer
	stdin  io.Reader
	stderr io.Writer
	log    logger.Logger
	tr     *i18n.Localizer

	client     *agent.Client
	store      *certstore.Store
	passphrase *password.Static
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		fs:           afero.NewOsFs(),
		stdin:        os.Stdin,
		stderr:       os.Stderr,
		log:          logger.NoOp{},
		tr:           i18n.Default(),
	}
}

// load reads the configuration file and applies flag and environment
// overrides bound in v.
func (c *Config) load(v *viper.Viper, stderr io.Writer) error {
	c.stderr = stderr

	var (
		settings *config.Config
		err      error
	)
	if c.ConfigFile != "" {
		settings, err = config.Load(c.fs, c.ConfigFile)
	} else {
		settings, err = config.LoadOptional(c.fs, defaultConfigPath(v.GetString(keyHomedir)))
	}
	if err != nil {
		return err
	}

	if v.IsSet(keySocket) {
		settings.Socket = v.GetString(keySocket)
	}
	if v.IsSet(keyHomedir) {
		settings.Homedir = v.GetString(keyHomedir)
	}
	if v.IsSet(keyNoAutostart) && v.GetBool(keyNoAutostart) {
		settings.Autostart = false
	}
	if v.IsSet(keyDebugIPC) {
		settings.DebugIPC = v.GetBool(keyDebugIPC)
	}
	if v.IsSet(keyLogLevel) {
		settings.Logging.Level = v.GetString(keyLogLevel)
	}
	if v.IsSet(keyLogFormat) {
		settings.Logging.Format = v.GetString(keyLogFormat)
	}
	if v.IsSet(keyLang) {
		settings.Locale = v.GetString(keyLang)
	}
	if v.IsSet(keyCertStore) {
		settings.CertStore.Path = v.GetString(keyCertStore)
	}
	if v.IsSet(keyMetricsFile) {
		settings.Metrics.Enabled = true
		settings.Metrics.Textfile = v.GetString(keyMetricsFile)
	}
	if c.Verbose && v.GetString(keyLogLevel) == "" {
		settings.Logging.Level = "info"
	}
	if settings.DebugIPC {
		settings.Logging.Level = "debug"
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.Settings = settings

	if settings.Metrics.Enabled {
		c.MetricsFile = settings.Metrics.Textfile
	} else {
		metrics.Disable()
	}

	c.log = logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  logger.ParseLevel(settings.Logging.Level),
		Format: settings.Logging.Format,
		Output: stderr,
	})
	c.tr = i18n.New(settings.Locale, settings.Session.LCMessages)
	return nil
}

func defaultConfigPath(homedir string) string {
	if homedir == "" {
		homedir = os.Getenv("GNUPGHOME")
	}
	if homedir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		homedir = filepath.Join(home, ".gnupg")
	}
	return filepath.Join(homedir, ConfigFileName)
}

// Client returns the agent client, creating it on first use. withCerts
// attaches the certificate store for LEARN.
func (c *Config) Client(withCerts bool) (*agent.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	if c.Settings == nil {
		return nil, errors.New("configuration not loaded")
	}
	s := c.Settings

	acfg := &agent.Config{
		SocketPath:     s.SocketPath(),
		Dialer:         c.dialer,
		Autostart:      s.Autostart,
		Launcher:       s.AgentLauncher(),
		ConnectTimeout: s.ConnectTimeout,
		Options:        s.SessionOptions(),
		DebugIPC:       s.DebugIPC,
		Logger:         c.log,
		Translator:     c.tr,
		UI:             &terminalUI{cfg: c},
		Progress:       agent.ProgressFunc(c.progress),
	}
	if withCerts {
		store, err := c.CertStore()
		if err != nil {
			return nil, err
		}
		acfg.CertStore = store
	}
	if c.PassphraseFile != "" {
		// #nosec G304 - passphrase file path from CLI flag
		data, err := afero.ReadFile(c.fs, c.PassphraseFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase file: %w", err)
		}
		c.passphrase = password.NewStatic(trimNewline(data))
		password.Zero(data)
		acfg.Passphrase = c.passphrase
	}

	client, err := agent.NewClient(acfg)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// CertStore opens the file backed certificate store.
func (c *Config) CertStore() (*certstore.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	if c.Settings == nil {
		return nil, errors.New("configuration not loaded")
	}
	backend, err := file.New(c.fs, c.Settings.CertStorePath())
	if err != nil {
		return nil, fmt.Errorf("failed to create cert storage: %w", err)
	}
	store, err := certstore.New(&certstore.Config{
		Backend:    backend,
		Logger:     c.log,
		Translator: c.tr,
	})
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

// Close releases the agent connection and the certificate store.
func (c *Config) Close() error {
	var result *multierror.Error
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		c.client = nil
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		c.store = nil
	}
	if c.passphrase != nil {
		c.passphrase.Clear()
		c.passphrase = nil
	}
	return result.ErrorOrNil()
}

func (c *Config) progress(_ context.Context, info string) error {
	c.printVerbose("progress: %s", info)
	return nil
}

// printVerbose prints a message if verbose mode is enabled
func (c *Config) printVerbose(format string, args ...interface{}) {
	if c.Verbose {
		fmt.Fprintf(c.stderr, "[VERBOSE] "+format+"\n", args...)
	}
}

// terminalUI reports pinentry activity on stderr.
type terminalUI struct {
	cfg *Config
}

func (u *terminalUI) PinentryLaunched(_ context.Context, info string) error {
	u.cfg.printVerbose("pinentry launched: %s", info)
	return nil
}
