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
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeremyhahn/go-agentclient/pkg/agent"
	"github.com/jeremyhahn/go-agentclient/pkg/certstore"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
	hex    bool
}

// NewPrinter creates a new Printer. Binary results are hex encoded when
// writer is a terminal.
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
		hex:    isTerminal(writer),
	}
}

// ForceHex makes text output hex encode binary results.
func (p *Printer) ForceHex(force bool) *Printer {
	if force {
		p.hex = true
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// PrintValue prints a single named string result
func (p *Printer) PrintValue(name, value string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			name: value,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, value)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintBool prints a single named boolean result
func (p *Printer) PrintBool(name string, value bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			name: value,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "%t\n", value)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintBinary prints raw bytes such as a plaintext. Text output is hex
// encoded on a terminal and written unchanged otherwise; JSON output is
// always hex.
func (p *Printer) PrintBinary(name string, data []byte) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			name: hex.EncodeToString(data),
		})
	case OutputFormatTable, OutputFormatText:
		if p.hex {
			fmt.Fprintln(p.writer, hex.EncodeToString(data))
			return nil
		}
		_, err := p.writer.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSExp prints a canonical S-expression such as a key or signature.
// On a terminal the readable advanced form is shown instead of hex.
func (p *Printer) PrintSExp(name string, data []byte) error {
	switch p.format {
	case OutputFormatJSON:
		out := map[string]interface{}{
			name: hex.EncodeToString(data),
		}
		if node, err := sexp.Parse(data); err == nil {
			out["sexp"] = node.String()
		}
		return p.printJSON(out)
	case OutputFormatTable, OutputFormatText:
		if !p.hex {
			_, err := p.writer.Write(data)
			return err
		}
		if node, err := sexp.Parse(data); err == nil {
			fmt.Fprintln(p.writer, node.String())
			return nil
		}
		fmt.Fprintln(p.writer, hex.EncodeToString(data))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintKeyPairInfo prints the key pairs of a smartcard
func (p *Printer) PrintKeyPairInfo(infos []agent.KeyPairInfo) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]interface{}, len(infos))
		for i, info := range infos {
			list[i] = map[string]interface{}{
				"keygrip": info.Keygrip,
				"keyid":   info.KeyID,
			}
		}
		return p.printJSON(map[string]interface{}{
			"keypairs": list,
		})
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-40s %-20s\n", "KEYGRIP", "KEY ID")
		fmt.Fprintln(p.writer, strings.Repeat("-", 61))
		for _, info := range infos {
			fmt.Fprintf(p.writer, "%-40s %-20s\n", info.Keygrip, info.KeyID)
		}
		return nil
	case OutputFormatText:
		for _, info := range infos {
			fmt.Fprintln(p.writer, info.String())
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintTrust prints the trust flags of a root certificate
func (p *Printer) PrintTrust(fingerprint string, flags agent.RootCAFlags) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"fingerprint": fingerprint,
			"trusted":     flags.Valid,
			"relax":       flags.Relax,
			"chain_model": flags.ChainModel,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Fingerprint: %s\n", fingerprint)
		fmt.Fprintf(p.writer, "Trusted:     %t\n", flags.Valid)
		fmt.Fprintf(p.writer, "Relax:       %t\n", flags.Relax)
		fmt.Fprintf(p.writer, "Chain model: %t\n", flags.ChainModel)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintLearnResult prints the outcome of learning a smartcard
func (p *Printer) PrintLearnResult(result *agent.LearnResult) error {
	var errs []string
	if result.Errors != nil {
		for _, err := range result.Errors.Errors {
			errs = append(errs, err.Error())
		}
	}
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"imported": result.Imported,
			"existing": result.Existing,
			"skipped":  result.Skipped,
			"errors":   errs,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Imported: %d\n", result.Imported)
		fmt.Fprintf(p.writer, "Existing: %d\n", result.Existing)
		fmt.Fprintf(p.writer, "Skipped:  %d\n", result.Skipped)
		for _, e := range errs {
			fmt.Fprintf(p.writer, "  - %s\n", e)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintCertificate prints a certificate in PEM format
func (p *Printer) PrintCertificate(cert *x509.Certificate) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(certInfo(cert))
	case OutputFormatTable, OutputFormatText:
		pemBlock := &pem.Block{
			Type:  "CERTIFICATE",
			Bytes: cert.Raw,
		}
		fmt.Fprint(p.writer, string(pem.EncodeToMemory(pemBlock)))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintCertList prints the entries of the certificate store
func (p *Printer) PrintCertList(entries []certstore.Entry) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]interface{}, len(entries))
		for i, e := range entries {
			info := certInfo(e.Certificate)
			info["fingerprint"] = e.Fingerprint
			info["ephemeral"] = e.Ephemeral
			list[i] = info
		}
		return p.printJSON(map[string]interface{}{
			"certificates": list,
		})
	case OutputFormatTable:
		if len(entries) == 0 {
			fmt.Fprintln(p.writer, "No certificates found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-40s %-9s %s\n", "FINGERPRINT", "EPHEMERAL", "SUBJECT")
		fmt.Fprintln(p.writer, strings.Repeat("-", 72))
		for _, e := range entries {
			fmt.Fprintf(p.writer, "%-40s %-9t %s\n", e.Fingerprint, e.Ephemeral, e.Certificate.Subject)
		}
		return nil
	case OutputFormatText:
		if len(entries) == 0 {
			fmt.Fprintln(p.writer, "No certificates found")
			return nil
		}
		fmt.Fprintln(p.writer, "Certificates:")
		for _, e := range entries {
			suffix := ""
			if e.Ephemeral {
				suffix = " [ephemeral]"
			}
			fmt.Fprintf(p.writer, "  - %s %s%s\n", e.Fingerprint, e.Certificate.Subject, suffix)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func certInfo(cert *x509.Certificate) map[string]interface{} {
	return map[string]interface{}{
		"subject":       cert.Subject.String(),
		"issuer":        cert.Issuer.String(),
		"serial_number": cert.SerialNumber.String(),
		"not_before":    cert.NotBefore.String(),
		"not_after":     cert.NotAfter.String(),
		"emails":        cert.EmailAddresses,
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
