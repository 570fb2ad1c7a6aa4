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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-agentclient/pkg/agent"
)

func newIsTrustedCmd(cfg *Config) *cobra.Command {
	var fingerprint string
	cmd := &cobra.Command{
		Use:   "istrusted [cert-file]",
		Short: "Check whether a root certificate is trusted",
		Long: `Ask the agent whether a root certificate is listed as trusted. The
certificate is given as a file or by its SHA-1 fingerprint.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (fingerprint != "") {
				return errors.New("give either a certificate file or --fingerprint")
			}
			fpr := fingerprint
			if len(args) == 1 {
				cert, err := cfg.readCertificate(args[0])
				if err != nil {
					return err
				}
				fpr = agent.Fingerprint(cert)
			}

			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			flags, err := client.IsTrusted(cmd.Context(), nil, fpr)
			if err != nil && !errors.Is(err, agent.ErrNotTrusted) {
				return fmt.Errorf("failed to check trust: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintTrust(fpr, flags)
		},
	}
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "SHA-1 fingerprint of the certificate")
	return cmd
}

func newMarkTrustedCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "marktrusted <cert-file>",
		Short: "Mark a root certificate as trusted",
		Long: `Ask the agent to add a root certificate to its list of trusted keys.
The agent asks the user for confirmation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := cfg.readCertificate(args[0])
			if err != nil {
				return err
			}
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			if err := client.MarkTrusted(cmd.Context(), cert); err != nil {
				return fmt.Errorf("failed to mark certificate trusted: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSuccess(
				fmt.Sprintf("Certificate %s marked trusted", agent.Fingerprint(cert)))
		},
	}
}
