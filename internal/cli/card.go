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
)

func newSerialNoCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serialno",
		Short: "Print the serial number of the inserted smartcard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			serial, err := client.SerialNo(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read card serial number: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintValue("serialno", serial)
		},
	}
}

func newKeyPairInfoCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "keypairinfo",
		Short: "List the key pairs stored on the smartcard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			infos, err := client.KeyPairInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list card keys: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintKeyPairInfo(infos)
		},
	}
}

func newLearnCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "learn",
		Short: "Learn the smartcard and import its certificates",
		Long: `Ask the agent to learn the inserted smartcard. Certificates stored on
the card are checked and added to the certificate store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(true)
			if err != nil {
				return err
			}
			result, err := client.Learn(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to learn card: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintLearnResult(result)
		},
	}
}
