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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-agentclient/internal/keyconv"
	"github.com/jeremyhahn/go-agentclient/pkg/password"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

// genkeyParams builds the key parameter S-expression for a named
// algorithm such as rsa3072, nistp256 or ed25519.
func genkeyParams(algo string) ([]byte, error) {
	b := sexp.NewBuilder().Open().String("genkey")
	switch a := strings.ToLower(algo); {
	case strings.HasPrefix(a, "rsa"):
		bits, err := strconv.Atoi(strings.TrimPrefix(a, "rsa"))
		if err != nil || bits < 1024 || bits > 16384 {
			return nil, fmt.Errorf("invalid RSA key size in %q", algo)
		}
		b.Open().String("rsa").
			Open().String("nbits").String(strconv.Itoa(bits)).Close().
			Close()
	case a == "nistp256", a == "nistp384", a == "nistp521":
		b.Open().String("ecc").
			Open().String("curve").String("NIST P-" + strings.TrimPrefix(a, "nistp")).Close().
			Close()
	case a == "ed25519":
		b.Open().String("ecc").
			Open().String("curve").String("Ed25519").Close().
			Open().String("flags").String("eddsa").Close().
			Close()
	default:
		return nil, fmt.Errorf("unknown key algorithm: %s", algo)
	}
	return b.Close().Bytes()
}

func newGenKeyCmd(cfg *Config) *cobra.Command {
	var (
		algo       string
		paramsFile string
	)
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate a new key inside the agent",
		Long: `Generate a key pair inside the agent and print its public key. The
parameters are derived from --algo or read as a canonical genkey
S-expression from --params-file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				params []byte
				err    error
			)
			if paramsFile != "" {
				params, err = cfg.readInput(paramsFile)
			} else {
				params, err = genkeyParams(algo)
			}
			if err != nil {
				return err
			}
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			cfg.printVerbose("Generating key")

			pub, err := client.GenKey(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSExp("public_key", pub)
		},
	}
	cmd.Flags().StringVar(&algo, "algo", "rsa3072", "key algorithm (rsaNNNN, nistp256, nistp384, nistp521, ed25519)")
	cmd.Flags().StringVar(&paramsFile, "params-file", "", "file holding a canonical genkey S-expression")
	return cmd
}

func newReadKeyCmd(cfg *Config) *cobra.Command {
	var fromCard bool
	cmd := &cobra.Command{
		Use:   "readkey <keygrip|card-keyref>",
		Short: "Print a public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			pub, err := client.ReadKey(cmd.Context(), args[0], fromCard)
			if err != nil {
				return fmt.Errorf("failed to read key: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSExp("public_key", pub)
		},
	}
	cmd.Flags().BoolVar(&fromCard, "card", false, "read the key from the smartcard")
	return cmd
}

func newHaveKeyCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "havekey <keygrip>",
		Short: "Check whether the agent holds a secret key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			ok, err := client.HaveKey(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to query key: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintBool("available", ok)
		},
	}
}

func newKeyInfoCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "keyinfo <keygrip>",
		Short: "Print the serial number of the card holding a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			serial, err := client.KeyInfo(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to query key info: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintValue("serialno", serial)
		},
	}
}

func newPasswdCmd(cfg *Config) *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "passwd <keygrip>",
		Short: "Change the passphrase of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			if err := client.Passwd(cmd.Context(), args[0], desc); err != nil {
				return fmt.Errorf("failed to change passphrase: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSuccess("Passphrase changed")
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "text shown in the passphrase prompt")
	return cmd
}

func newImportKeyCmd(cfg *Config) *cobra.Command {
	var askPassword bool
	cmd := &cobra.Command{
		Use:   "import-key <key-file>",
		Short: "Import a private key into the agent",
		Long: `Import a PEM or DER encoded private key (PKCS#8, PKCS#1 or SEC 1).
Encrypted PKCS#8 files prompt for their password. The key is wrapped with
a transport key obtained from the agent before it is sent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := cfg.readInput(args[0])
			if err != nil {
				return err
			}
			defer password.Zero(data)

			var pwd *password.ClearPassword
			if askPassword {
				if pwd, err = cfg.readPassphrase(false); err != nil {
					return err
				}
				defer pwd.Clear()
			}
			key, err := keyconv.Convert(data, secretOrNil(pwd))
			if errors.Is(err, keyconv.ErrPasswordRequired) && pwd == nil {
				if pwd, err = cfg.readPassphrase(false); err != nil {
					return err
				}
				defer pwd.Clear()
				key, err = keyconv.Convert(data, pwd)
			}
			if err != nil {
				return err
			}
			defer password.Zero(key)

			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			kek, err := client.KeywrapKey(cmd.Context(), false)
			if err != nil {
				return fmt.Errorf("failed to get key wrapping key: %w", err)
			}
			defer password.Zero(kek)

			wrapped, err := keyconv.WrapForImport(kek, key)
			if err != nil {
				return err
			}
			if err := client.ImportKey(cmd.Context(), wrapped); err != nil {
				return fmt.Errorf("failed to import key: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSuccess("Key imported")
		},
	}
	cmd.Flags().BoolVar(&askPassword, "ask-password", false, "prompt for the key file password up front")
	return cmd
}

// secretOrNil avoids passing a typed nil through the interface.
func secretOrNil(p *password.ClearPassword) password.Secret {
	if p == nil {
		return nil
	}
	return p
}

func newExportKeyCmd(cfg *Config) *cobra.Command {
	var (
		desc    string
		wrapped bool
	)
	cmd := &cobra.Command{
		Use:   "export-key <keygrip>",
		Short: "Export a secret key from the agent",
		Long: `Export the secret key identified by its keygrip. The agent protects
the result with its export key wrapping key, which is unwrapped unless
--wrapped is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			printer := cfg.printer(cmd.OutOrStdout())

			var kek []byte
			if !wrapped {
				if kek, err = client.KeywrapKey(cmd.Context(), true); err != nil {
					return fmt.Errorf("failed to get key wrapping key: %w", err)
				}
				defer password.Zero(kek)
			}

			blob, err := client.ExportKey(cmd.Context(), args[0], desc)
			if err != nil {
				return fmt.Errorf("failed to export key: %w", err)
			}
			defer password.Zero(blob)
			if wrapped {
				return printer.PrintBinary("wrapped_key", blob)
			}

			key, err := keyconv.UnwrapExport(kek, blob)
			if err != nil {
				return fmt.Errorf("failed to unwrap exported key: %w", err)
			}
			return printer.PrintSExp("private_key", key)
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "text shown in the passphrase prompt")
	cmd.Flags().BoolVar(&wrapped, "wrapped", false, "print the wrapped blob as returned by the agent")
	return cmd
}
