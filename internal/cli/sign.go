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
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-agentclient/pkg/agent"
)

// digestFlags selects the digest to sign: either given as hex or
// computed over an input file.
type digestFlags struct {
	algo   string
	digest string
	input  string
}

func (f *digestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.algo, "digest-algo", "sha256",
		"digest algorithm (md5, sha1, rmd160, sha224, sha256, sha384, sha512)")
	cmd.Flags().StringVar(&f.digest, "digest", "",
		"hex encoded digest to sign")
	cmd.Flags().StringVarP(&f.input, "input", "i", "",
		"file to hash and sign (default standard input)")
}

func (f *digestFlags) resolve(cfg *Config) ([]byte, agent.DigestAlgorithm, error) {
	algo, err := agent.ParseDigestAlgorithm(f.algo)
	if err != nil {
		return nil, 0, err
	}
	if f.digest != "" {
		digest, err := hex.DecodeString(f.digest)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid digest: %w", err)
		}
		return digest, algo, nil
	}

	data, err := cfg.readInput(f.input)
	if err != nil {
		return nil, 0, err
	}
	h := algo.New()
	if h == nil {
		return nil, 0, fmt.Errorf("%w: %s", agent.ErrUnsupportedDigestAlgorithm, algo)
	}
	h.Write(data)
	return h.Sum(nil), algo, nil
}

func newSignCmd(cfg *Config) *cobra.Command {
	var (
		digest digestFlags
		desc   string
	)
	cmd := &cobra.Command{
		Use:   "sign <keygrip>",
		Short: "Sign a digest with a key held by the agent",
		Long: `Sign a digest with the secret key identified by its keygrip. The
digest is either given with --digest or computed over the input. The
signature is printed as an S-expression.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, algo, err := digest.resolve(cfg)
			if err != nil {
				return err
			}
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			cfg.printVerbose("Signing %s digest with key: %s", algo, args[0])

			sig, err := client.Sign(cmd.Context(), args[0], desc, hash, algo)
			if err != nil {
				return fmt.Errorf("failed to sign: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSExp("signature", sig)
		},
	}
	digest.register(cmd)
	cmd.Flags().StringVar(&desc, "desc", "", "text shown in the passphrase prompt")
	return cmd
}

func newCardSignCmd(cfg *Config) *cobra.Command {
	var digest digestFlags
	cmd := &cobra.Command{
		Use:   "card-sign <keyid>",
		Short: "Sign a digest directly on a smartcard",
		Long: `Sign a digest with a smartcard key, for example OPENPGP.1. The raw
signature returned by the card is framed as an RSA signature value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, algo, err := digest.resolve(cfg)
			if err != nil {
				return err
			}
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			cfg.printVerbose("Signing %s digest on card key: %s", algo, args[0])

			sig, err := client.CardSign(cmd.Context(), args[0], hash, algo)
			if err != nil {
				return fmt.Errorf("failed to sign on card: %w", err)
			}
			return cfg.printer(cmd.OutOrStdout()).PrintSExp("signature", sig)
		},
	}
	digest.register(cmd)
	return cmd
}

func newDecryptCmd(cfg *Config) *cobra.Command {
	var (
		input string
		desc  string
	)
	cmd := &cobra.Command{
		Use:   "decrypt <keygrip>",
		Short: "Decrypt a ciphertext S-expression",
		Long: `Decrypt a canonical enc-val S-expression with the secret key identified
by its keygrip and print the plaintext.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ciphertext, err := cfg.readInput(input)
			if err != nil {
				return err
			}
			client, err := cfg.Client(false)
			if err != nil {
				return err
			}
			cfg.printVerbose("Decrypting with key: %s", args[0])

			plaintext, err := client.Decrypt(cmd.Context(), args[0], desc, ciphertext)
			if err != nil {
				return fmt.Errorf("failed to decrypt: %w", err)
			}
			defer clear(plaintext)
			return cfg.printer(cmd.OutOrStdout()).PrintBinary("plaintext", plaintext)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "ciphertext file (default standard input)")
	cmd.Flags().StringVar(&desc, "desc", "", "text shown in the passphrase prompt")
	return cmd
}
