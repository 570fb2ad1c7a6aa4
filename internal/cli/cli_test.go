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
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-agentclient/internal/agenttest"
	"github.com/jeremyhahn/go-agentclient/internal/keyconv"
	"github.com/jeremyhahn/go-agentclient/pkg/agent"
	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/crypto/wrapping"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

const testKeygrip = "0123456789ABCDEF0123456789ABCDEF01234567"

var testSignature = []byte("(7:sig-val(3:rsa(1:s4:\x01\x02\x03\x04)))")

// newTestConfig returns a CLI configuration talking to a fake agent and
// reading files from an in-memory filesystem.
func newTestConfig(t *testing.T, stdin string) (*Config, *agenttest.Server, afero.Fs) {
	t.Helper()
	for _, env := range []string{
		"GNUPGHOME", "AGENTCTL_SOCKET", "AGENTCTL_AUTOSTART", "AGENTCTL_LOG_LEVEL",
		"AGENTCTL_HOMEDIR", "AGENTCTL_NO_AUTOSTART", "AGENTCTL_DEBUG_IPC",
		"AGENTCTL_LOG_FORMAT", "AGENTCTL_LANG", "AGENTCTL_METRICS_FILE",
		"AGENTCTL_CERTSTORE", "LC_CTYPE", "LC_MESSAGES", "GPG_TTY", "TERM", "DISPLAY",
	} {
		t.Setenv(env, "")
	}
	t.Setenv("GNUPGHOME", "/gnupg")

	srv := agenttest.New(t)
	fs := afero.NewMemMapFs()
	cfg := NewConfig()
	cfg.fs = fs
	cfg.dialer = srv.Dial
	cfg.stdin = strings.NewReader(stdin)
	cfg.stderr = &bytes.Buffer{}
	t.Cleanup(func() { _ = cfg.Close() })
	return cfg, srv, fs
}

func runCommand(cfg *Config, args ...string) (string, error) {
	cmd := NewRootCommand(cfg)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testCertificate(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func writeCertificate(t *testing.T, fs afero.Fs, path string, certs ...*x509.Certificate) {
	t.Helper()
	var buf bytes.Buffer
	for _, cert := range certs {
		require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
	}
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o600))
}

func TestRootCommand_Help(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	out, err := runCommand(cfg, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "agentctl talks to a running gpg-agent")
	assert.Contains(t, out, "import-key")
	assert.Contains(t, out, "list-certs")
	assert.Zero(t, srv.Dials())
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	cfg, _, _ := newTestConfig(t, "")
	_, err := runCommand(cfg, "--log-level", "loud", "nop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRootCommand_ConfigFile(t *testing.T) {
	cfg, _, fs := newTestConfig(t, "")
	require.NoError(t, afero.WriteFile(fs, "/etc/agentctl.yaml",
		[]byte("socket: /run/agent.sock\nlogging:\n  level: error\n"), 0o600))

	_, err := runCommand(cfg, "--config", "/etc/agentctl.yaml", "--no-autostart", "nop")
	require.NoError(t, err)
	assert.Equal(t, "/run/agent.sock", cfg.Settings.Socket)
	assert.Equal(t, "error", cfg.Settings.Logging.Level)
	assert.False(t, cfg.Settings.Autostart)
}

func TestRootCommand_FlagOverridesConfigFile(t *testing.T) {
	cfg, _, fs := newTestConfig(t, "")
	require.NoError(t, afero.WriteFile(fs, "/gnupg/agentctl.yaml",
		[]byte("socket: /run/file.sock\n"), 0o600))

	_, err := runCommand(cfg, "--socket", "/run/flag.sock", "nop")
	require.NoError(t, err)
	assert.Equal(t, "/run/flag.sock", cfg.Settings.Socket)
}

func TestNopCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	out, err := runCommand(cfg, "nop")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
	assert.Contains(t, srv.Commands(), "NOP")
}

func TestSignCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "hello")
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		x.Data(testSignature)
	})

	out, err := runCommand(cfg, "sign", testKeygrip)
	require.NoError(t, err)
	assert.Equal(t, string(testSignature), out)

	cmds := srv.Commands()
	assert.Contains(t, cmds, "SIGKEY "+testKeygrip)
	assert.Contains(t, cmds, "SETHASH 8 "+
		"2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824")
}

func TestSignCommand_HexDigest(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		x.Data(testSignature)
	})

	out, err := runCommand(cfg, "--hex", "sign", "--digest-algo", "sha1",
		"--digest", strings.Repeat("ab", 20), testKeygrip)
	require.NoError(t, err)
	assert.Equal(t, "(sig-val (rsa (s #01020304#)))\n", out)
	assert.Contains(t, srv.Commands(), "SETHASH 2 "+strings.Repeat("AB", 20))
}

func TestSignCommand_InvalidDigest(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	_, err := runCommand(cfg, "sign", "--digest", "zz", testKeygrip)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid digest")
	assert.Zero(t, srv.Dials())
}

func TestCardSignCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	srv.Handle("SCD PKSIGN", func(x *agenttest.Exchange) {
		x.Data([]byte{0x01, 0x02})
	})

	out, err := runCommand(cfg, "-o", "json", "card-sign",
		"--digest", strings.Repeat("00", 32), "OPENPGP.3")
	require.NoError(t, err)
	assert.Contains(t, out, `"signature"`)
	assert.Contains(t, out, `(sig-val (rsa (s #0102#)))`)
	assert.Contains(t, srv.Commands(), "SCD PKSIGN --hash=sha256 OPENPGP.3")
}

func TestDecryptCommand(t *testing.T) {
	ciphertext := "(7:enc-val(3:rsa(1:a1:\x05)))"
	cfg, srv, _ := newTestConfig(t, ciphertext)
	srv.Handle("PKDECRYPT", func(x *agenttest.Exchange) {
		got, err := x.Inquire("CIPHERTEXT")
		if err != nil || string(got) != ciphertext {
			x.Err(assuan.CodeInvalidValue, "bad ciphertext")
			return
		}
		x.Data([]byte("(5:value6:secret)"))
	})

	out, err := runCommand(cfg, "decrypt", testKeygrip)
	require.NoError(t, err)
	assert.Equal(t, "secret", out)
	assert.Contains(t, srv.Commands(), "SETKEY "+testKeygrip)
}

func TestGenKeyCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	pub := []byte("(10:public-key(3:ecc(5:curve10:NIST P-256)(1:q1:\x04)))")
	var params []byte
	srv.Handle("GENKEY", func(x *agenttest.Exchange) {
		got, err := x.Inquire("KEYPARAM")
		if err != nil {
			return
		}
		params = got
		x.Data(pub)
	})

	out, err := runCommand(cfg, "genkey", "--algo", "nistp256")
	require.NoError(t, err)
	assert.Equal(t, string(pub), out)
	assert.Equal(t, "(6:genkey(3:ecc(5:curve10:NIST P-256)))", string(params))
}

func TestGenkeyParams(t *testing.T) {
	tests := []struct {
		algo    string
		want    string
		wantErr bool
	}{
		{algo: "rsa2048", want: "(6:genkey(3:rsa(5:nbits4:2048)))"},
		{algo: "RSA4096", want: "(6:genkey(3:rsa(5:nbits4:4096)))"},
		{algo: "nistp384", want: "(6:genkey(3:ecc(5:curve10:NIST P-384)))"},
		{algo: "ed25519", want: "(6:genkey(3:ecc(5:curve7:Ed25519)(5:flags5:eddsa)))"},
		{algo: "rsa512", wantErr: true},
		{algo: "rsa", wantErr: true},
		{algo: "dsa", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.algo, func(t *testing.T) {
			got, err := genkeyParams(tt.algo)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			_, err = sexp.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestHaveKeyCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	srv.Handle("HAVEKEY", func(x *agenttest.Exchange) {
		x.Err(assuan.CodeNoSecretKey, "No secret key")
	})

	out, err := runCommand(cfg, "-o", "json", "havekey", testKeygrip)
	require.NoError(t, err)
	assert.JSONEq(t, `{"available": false}`, out)
}

func TestPasswdCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	out, err := runCommand(cfg, "passwd", "--desc", "Change it", testKeygrip)
	require.NoError(t, err)
	assert.Equal(t, "Passphrase changed\n", out)
	assert.Contains(t, srv.Commands(), "SETKEYDESC Change+it")
	assert.Contains(t, srv.Commands(), "PASSWD "+testKeygrip)
}

func TestImportKeyCommand(t *testing.T) {
	cfg, srv, fs := newTestConfig(t, "")
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/keys/p256.pem",
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	kek := bytes.Repeat([]byte{0x42}, 16)
	srv.Handle("KEYWRAP_KEY", func(x *agenttest.Exchange) {
		x.Data(kek)
	})
	srv.Handle("IMPORT_KEY", func(x *agenttest.Exchange) {
		if _, err := x.Inquire("KEYDATA"); err != nil {
			x.Err(assuan.CodeCanceled, "Canceled")
		}
	})

	out, err := runCommand(cfg, "import-key", "/keys/p256.pem")
	require.NoError(t, err)
	assert.Equal(t, "Key imported\n", out)
	assert.Contains(t, srv.Commands(), "KEYWRAP_KEY --import")

	inquiries := srv.Inquiries()
	require.Len(t, inquiries, 1)
	plain, err := wrapping.Unwrap(kek, inquiries[0].Data)
	require.NoError(t, err)
	n, err := sexp.Validate(plain)
	require.NoError(t, err)
	node, err := sexp.Parse(plain[:n])
	require.NoError(t, err)
	assert.Equal(t, "private-key", node.Token())
	assert.NotNil(t, node.Find("ecc"))
}

func TestImportKeyCommand_InvalidFile(t *testing.T) {
	cfg, srv, fs := newTestConfig(t, "")
	require.NoError(t, afero.WriteFile(fs, "/keys/junk", []byte("junk"), 0o600))

	_, err := runCommand(cfg, "import-key", "/keys/junk")
	assert.ErrorIs(t, err, keyconv.ErrInvalidData)
	assert.Zero(t, srv.Dials())
}

func TestExportKeyCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	key := []byte("(11:private-key(3:ecc(5:curve10:NIST P-256)(1:q1:\x04)(1:d1:\x07)))")
	kek := bytes.Repeat([]byte{0x24}, 16)
	blob, err := wrapping.Wrap(kek, wrapping.Pad(key))
	require.NoError(t, err)

	srv.Handle("KEYWRAP_KEY", func(x *agenttest.Exchange) {
		x.Data(kek)
	})
	srv.Handle("EXPORT_KEY", func(x *agenttest.Exchange) {
		x.Data(blob)
	})

	out, err := runCommand(cfg, "export-key", testKeygrip)
	require.NoError(t, err)
	assert.Equal(t, string(key), out)
	assert.Contains(t, srv.Commands(), "KEYWRAP_KEY --export")
	assert.Contains(t, srv.Commands(), "EXPORT_KEY "+testKeygrip)
}

func TestExportKeyCommand_Wrapped(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	blob := bytes.Repeat([]byte{0x99}, 24)
	srv.Handle("EXPORT_KEY", func(x *agenttest.Exchange) {
		x.Data(blob)
	})

	out, err := runCommand(cfg, "-o", "json", "export-key", "--wrapped", testKeygrip)
	require.NoError(t, err)
	assert.JSONEq(t, `{"wrapped_key": "`+strings.Repeat("99", 24)+`"}`, out)
	assert.NotContains(t, srv.Commands(), "KEYWRAP_KEY --export")
}

func TestSerialNoCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	srv.Handle("SCD SERIALNO", func(x *agenttest.Exchange) {
		x.Status("SERIALNO D2760001240102000005000012340000")
	})

	out, err := runCommand(cfg, "serialno")
	require.NoError(t, err)
	assert.Equal(t, "D2760001240102000005000012340000\n", out)
}

func TestIsTrustedCommand(t *testing.T) {
	cfg, srv, fs := newTestConfig(t, "")
	cert := testCertificate(t, "Root")
	writeCertificate(t, fs, "/certs/root.pem", cert)
	srv.Handle("ISTRUSTED", func(x *agenttest.Exchange) {
		x.Status("TRUSTLISTFLAG relax")
	})

	out, err := runCommand(cfg, "-o", "json", "istrusted", "/certs/root.pem")
	require.NoError(t, err)
	assert.JSONEq(t, `{"fingerprint": "`+agent.Fingerprint(cert)+`",
		"trusted": true, "relax": true, "chain_model": false}`, out)
	assert.Contains(t, srv.Commands(), "ISTRUSTED "+agent.Fingerprint(cert))
}

func TestIsTrustedCommand_NotTrusted(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	srv.Handle("ISTRUSTED", func(x *agenttest.Exchange) {
		x.Err(assuan.CodeNotTrusted, "Not trusted")
	})
	fpr := strings.Repeat("AB", 20)

	out, err := runCommand(cfg, "istrusted", "--fingerprint", fpr)
	require.NoError(t, err)
	assert.Contains(t, out, "Trusted:     false")
}

func TestIsTrustedCommand_Arguments(t *testing.T) {
	cfg, srv, fs := newTestConfig(t, "")
	writeCertificate(t, fs, "/certs/root.pem", testCertificate(t, "Root"))

	_, err := runCommand(cfg, "istrusted")
	assert.Error(t, err)

	cfg2, _, _ := newTestConfig(t, "")
	cfg2.fs = fs
	_, err = runCommand(cfg2, "istrusted", "--fingerprint", strings.Repeat("AB", 20), "/certs/root.pem")
	assert.Error(t, err)
	assert.Zero(t, srv.Dials())
}

func TestMarkTrustedCommand(t *testing.T) {
	cfg, srv, fs := newTestConfig(t, "")
	cert := testCertificate(t, "Root")
	writeCertificate(t, fs, "/certs/root.pem", cert)

	_, err := runCommand(cfg, "marktrusted", "/certs/root.pem")
	require.NoError(t, err)

	var found bool
	for _, c := range srv.Commands() {
		if strings.HasPrefix(c, "MARKTRUSTED "+agent.Fingerprint(cert)+" S CN=Root") {
			found = true
		}
	}
	assert.True(t, found, "MARKTRUSTED not sent: %v", srv.Commands())
}

func TestConfirmCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	out, err := runCommand(cfg, "confirm", "Proceed", "now?")
	require.NoError(t, err)
	assert.Equal(t, "Confirmed\n", out)
	assert.Contains(t, srv.Commands(), "GET_CONFIRMATION Proceed+now?")
}

func TestConfirmCommand_Declined(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	srv.Handle("GET_CONFIRMATION", func(x *agenttest.Exchange) {
		x.Err(assuan.CodeNotConfirmed, "Not confirmed")
	})
	_, err := runCommand(cfg, "confirm", "Proceed?")
	assert.ErrorIs(t, err, agent.ErrCancelled)
}

func TestGetPassphraseCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	srv.Handle("GET_PASSPHRASE", func(x *agenttest.Exchange) {
		x.Data([]byte("correct horse"))
	})

	out, err := runCommand(cfg, "get-passphrase", "--repeat", "New", "key")
	require.NoError(t, err)
	assert.Equal(t, "correct horse\n", out)
	assert.Contains(t, srv.Commands(),
		"GET_PASSPHRASE --data --repeat=1 --check --qualitybar -- X X X New+key")
}

func TestVersionCommand(t *testing.T) {
	cfg, srv, _ := newTestConfig(t, "")
	out, err := runCommand(cfg, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentctl version "+Version)
	assert.Zero(t, srv.Dials())

	srv.Handle("GETINFO version", func(x *agenttest.Exchange) {
		x.Data([]byte("2.4.7"))
	})
	out, err = runCommand(cfg, "-o", "json", "version", "--agent")
	require.NoError(t, err)
	assert.Contains(t, out, `"agent_version": "2.4.7"`)
}

func TestCertCommands(t *testing.T) {
	cfg, srv, fs := newTestConfig(t, "")
	alice := testCertificate(t, "Alice")
	bob := testCertificate(t, "Bob")
	writeCertificate(t, fs, "/certs/bundle.pem", alice, bob)
	require.NoError(t, afero.WriteFile(fs, "/certs/carol.der", testCertificate(t, "Carol").Raw, 0o600))

	out, err := runCommand(cfg, "import-cert", "/certs/bundle.pem")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported certificate "+agent.Fingerprint(alice))
	assert.Contains(t, out, "Imported certificate "+agent.Fingerprint(bob))

	out, err = runCommand(cfg, "import-cert", "/certs/bundle.pem")
	require.NoError(t, err)
	assert.Contains(t, out, "Certificate already present "+agent.Fingerprint(alice))

	_, err = runCommand(cfg, "import-cert", "--ephemeral", "/certs/carol.der")
	require.NoError(t, err)

	out, err = runCommand(cfg, "list-certs")
	require.NoError(t, err)
	assert.Contains(t, out, "CN=Alice")
	assert.Contains(t, out, "CN=Bob")
	assert.NotContains(t, out, "CN=Carol")

	out, err = runCommand(cfg, "list-certs", "--ephemeral")
	require.NoError(t, err)
	assert.Contains(t, out, "CN=Carol")
	assert.Contains(t, out, "[ephemeral]")

	_, err = runCommand(cfg, "delete-cert", agent.Fingerprint(bob))
	require.NoError(t, err)

	out, err = runCommand(cfg, "list-certs")
	require.NoError(t, err)
	assert.Contains(t, out, "CN=Alice")
	assert.NotContains(t, out, "CN=Bob")

	assert.Zero(t, srv.Dials())
}

func TestDeleteCertCommand_NotFound(t *testing.T) {
	cfg, _, _ := newTestConfig(t, "")
	_, err := runCommand(cfg, "delete-cert", strings.Repeat("AB", 20))
	assert.Error(t, err)
}
