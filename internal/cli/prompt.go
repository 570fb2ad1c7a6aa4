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
	"strings"

	"github.com/spf13/cobra"
)

func newConfirmCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <text>...",
		Short: "Ask the user to confirm a message through pinentry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			if err := client.GetConfirmation(cmd.Context(), strings.Join(args, " ")); err != nil {
				return fmt.Errorf("not confirmed: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSuccess("Confirmed")
		},
	}
}

func newGetPassphraseCmd(cfg *Config) *cobra.Command {
	var repeat bool
	cmd := &cobra.Command{
		Use:   "get-passphrase <text>...",
		Short: "Ask the user for a passphrase through pinentry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			pass, err := client.AskPassphrase(cmd.Context(), strings.Join(args, " "), repeat)
			if err != nil {
				return fmt.Errorf("failed to get passphrase: %w", err)
			}
			defer pass.Clear()

			value, err := pass.String()
			if err != nil {
				return err
			}
			return cfg.printer(cmd.OutOrStdout()).PrintValue("passphrase", value)
		},
	}
	cmd.Flags().BoolVar(&repeat, "repeat", false, "ask twice and show the quality bar")
	return cmd
}

func newNopCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "nop",
		Short: "Check that the agent is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			if err := client.Nop(cmd.Context()); err != nil {
				return err
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSuccess("OK")
		},
	}
}
