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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-agentclient/pkg/agent"
)

func newImportCertCmd(cfg *Config) *cobra.Command {
	var ephemeral bool
	cmd := &cobra.Command{
		Use:   "import-cert <cert-file>...",
		Short: "Add certificates to the certificate store",
		Long: `Add X.509 certificates from PEM bundles or DER files to the certificate
store. Ephemeral certificates are kept apart and only found by
fingerprint.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cfg.CertStore()
			if err != nil {
				return err
			}
			printer := cfg.printer(cmd.OutOrStdout())
			for _, path := range args {
				certs, err := cfg.readCertificates(path)
				if err != nil {
					return err
				}
				for _, cert := range certs {
					fpr := agent.Fingerprint(cert)
					cfg.printVerbose("Importing certificate %s: %s", fpr, cert.Subject)
					existed, err := store.Import(cmd.Context(), cert, ephemeral)
					if err != nil {
						return fmt.Errorf("failed to import certificate %s: %w", fpr, err)
					}
					msg := "Imported certificate " + fpr
					if existed {
						msg = "Certificate already present " + fpr
					}
					if err := printer.PrintSuccess(msg); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "store as ephemeral certificates")
	return cmd
}

func newListCertsCmd(cfg *Config) *cobra.Command {
	var ephemeral bool
	cmd := &cobra.Command{
		Use:   "list-certs",
		Short: "List the certificate store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cfg.CertStore()
			if err != nil {
				return err
			}
			entries, err := store.Entries(cmd.Context(), ephemeral)
			if err != nil {
				return fmt.Errorf("failed to list certificates: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintCertList(entries)
		},
	}
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "include ephemeral certificates")
	return cmd
}

func newDeleteCertCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-cert <name>...",
		Short: "Delete certificates from the certificate store",
		Long: `Delete certificates by fingerprint, short key ID, mail address
(<user@example.org> for an exact match, @example.org for a part),
subject DN (/CN=...) or subject substring. Each name must select a single
certificate; duplicates of that certificate are deleted with it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cfg.CertStore()
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args...); err != nil {
				return err
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSuccess(
				fmt.Sprintf("Deleted %d certificate name(s)", len(args)))
		},
	}
}
