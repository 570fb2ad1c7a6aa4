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
	"runtime"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via -ldflags)
var (
	Version   = "dev"     // Set via -ldflags "-X github.com/jeremyhahn/go-agentclient/internal/cli.Version=x.y.z"
	GitCommit = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-agentclient/internal/cli.GitCommit=abc123"
	BuildDate = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-agentclient/internal/cli.BuildDate=2025-01-15"
)

func newVersionCmd(cfg *Config) *cobra.Command {
	var queryAgent bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version information for agentctl and, with --agent, the running gpg-agent`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var agentVersion string
			if queryAgent {
				client, err := cfg.Client(false)
				if err != nil {
					return err
				}
				if agentVersion, err = client.Version(cmd.Context()); err != nil {
					return fmt.Errorf("failed to query agent version: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if cfg.OutputFormat == string(OutputFormatJSON) {
				info := map[string]interface{}{
					"version":    Version,
					"commit":     GitCommit,
					"build_date": BuildDate,
					"go_version": runtime.Version(),
					"os":         runtime.GOOS,
					"arch":       runtime.GOARCH,
				}
				if queryAgent {
					info["agent_version"] = agentVersion
				}
				return NewPrinter(cfg.OutputFormat, out).printJSON(info)
			}

			fmt.Fprintf(out, "agentctl version %s\n", Version)
			fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "Build date: %s\n", BuildDate)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			if queryAgent {
				fmt.Fprintf(out, "gpg-agent: %s\n", agentVersion)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&queryAgent, "agent", false, "also print the version of the running agent")
	return cmd
}
