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

// Package cli implements the agentctl command line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
)

// Viper keys, identical to the flag names. Each can also be set through
// the environment as AGENTCTL_<KEY> with dashes replaced by underscores.
const (
	keySocket      = "socket"
	keyHomedir     = "homedir"
	keyNoAutostart = "no-autostart"
	keyDebugIPC    = "debug-ipc"
	keyLogLevel    = "log-level"
	keyLogFormat   = "log-format"
	keyLang        = "lang"
	keyMetricsFile = "metrics-file"
	keyCertStore   = "certstore"
)

// Execute runs the root command
func Execute() error {
	cfg := NewConfig()
	defer cfg.Close()
	cmd := NewRootCommand(cfg)
	if err := cmd.Execute(); err != nil {
		printer := NewPrinter(cfg.OutputFormat, os.Stderr)
		_ = printer.PrintError(err) // Error printing to stderr is best-effort
		return err
	}
	return nil
}

// NewRootCommand builds the agentctl command tree around cfg.
func NewRootCommand(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("AGENTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "agentctl",
		Short: "agentctl - gpg-agent client",
		Long: `agentctl talks to a running gpg-agent over its Assuan socket.

Private keys, passphrases and smartcard PINs stay inside the agent;
agentctl only sends requests and prints the results. Binary results
are printed as hex when standard output is a terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.load(v, cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.MetricsFile == "" {
				return nil
			}
			if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "",
		"config file (default is $GNUPGHOME/agentctl.yaml)")
	flags.StringVarP(&cfg.OutputFormat, "output", "o", "text",
		"output format (text, json, table)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false,
		"verbose output")
	flags.BoolVar(&cfg.Hex, "hex", false,
		"always print binary results as hex")
	flags.StringVar(&cfg.PassphraseFile, "passphrase-file", "",
		"answer passphrase inquiries with the contents of this file")
	flags.String(keySocket, "", "agent socket path")
	flags.String(keyHomedir, "", "GnuPG home directory")
	flags.Bool(keyNoAutostart, false, "do not launch the agent when it is not running")
	flags.Bool(keyDebugIPC, false, "log every protocol line")
	flags.String(keyLogLevel, "", "log level (debug, info, warn, error)")
	flags.String(keyLogFormat, "", "log format (text, json)")
	flags.String(keyLang, "", "language of user facing messages")
	flags.String(keyMetricsFile, "", "write Prometheus metrics to this file on exit")
	flags.String(keyCertStore, "", "certificate store directory")

	for _, key := range []string{
		keySocket, keyHomedir, keyNoAutostart, keyDebugIPC, keyLogLevel,
		keyLogFormat, keyLang, keyMetricsFile, keyCertStore,
	} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}

	root.AddCommand(
		newVersionCmd(cfg),
		newSignCmd(cfg),
		newCardSignCmd(cfg),
		newDecryptCmd(cfg),
		newGenKeyCmd(cfg),
		newReadKeyCmd(cfg),
		newHaveKeyCmd(cfg),
		newKeyInfoCmd(cfg),
		newPasswdCmd(cfg),
		newImportKeyCmd(cfg),
		newExportKeyCmd(cfg),
		newSerialNoCmd(cfg),
		newKeyPairInfoCmd(cfg),
		newLearnCmd(cfg),
		newIsTrustedCmd(cfg),
		newMarkTrustedCmd(cfg),
		newConfirmCmd(cfg),
		newGetPassphraseCmd(cfg),
		newNopCmd(cfg),
		newImportCertCmd(cfg),
		newListCertsCmd(cfg),
		newDeleteCertCmd(cfg),
	)
	return root
}
