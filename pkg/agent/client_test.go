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

package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-agentclient/internal/agenttest"
	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
	"github.com/jeremyhahn/go-agentclient/pkg/password"
	"github.com/jeremyhahn/go-agentclient/pkg/sexp"
)

const testKeygrip = "0123456789ABCDEF0123456789ABCDEF01234567"

var testSignature = []byte("(7:sig-val(3:rsa(1:s4:\x01\x02\x03\x04)))")

func newTestClient(t *testing.T, srv *agenttest.Server, configure ...func(cfg *Config)) *Client {
	t.Helper()
	cfg := &Config{
		Dialer: srv.Dial,
		State:  NewProcessState(),
	}
	for _, fn := range configure {
		fn(cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// newLogBuffer returns a text logger writing into the returned buffer.
func newLogBuffer() (logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  logger.LevelDebug,
		Output: &buf,
	}), &buf
}

func TestNewClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		client, err := NewClient(nil)
		require.NoError(t, err)
		assert.False(t, client.AgentSeen())
		assert.NoError(t, client.Close())
	})
	t.Run("negative timeout", func(t *testing.T) {
		_, err := NewClient(&Config{ConnectTimeout: -1})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestSign(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		x.Data(testSignature)
	})
	client := newTestClient(t, srv)

	digest := bytes.Repeat([]byte{0xab}, 20)
	sig, err := client.Sign(context.Background(), testKeygrip, "", digest, DigestSHA1)
	require.NoError(t, err)
	assert.Equal(t, testSignature, sig)

	assert.Equal(t, []string{
		"RESET",
		"SIGKEY " + testKeygrip,
		"SETHASH 2 " + strings.Repeat("AB", 20),
		"PKSIGN",
	}, srv.Commands())

	n, err := sexp.Validate(sig)
	require.NoError(t, err)
	assert.Equal(t, len(sig), n)
	assert.True(t, client.AgentSeen())
}

func TestSign_WithDescription(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		x.Data(testSignature)
	})
	client := newTestClient(t, srv)

	_, err := client.Sign(context.Background(), testKeygrip, "Sign for \"alice\"\nnow 100%", []byte{1, 2, 3}, DigestSHA256)
	require.NoError(t, err)

	cmds := srv.Commands()
	require.Len(t, cmds, 5)
	assert.Equal(t, "SETKEYDESC Sign+for+%22alice%22%0Anow+100%25", cmds[2])
}

func TestSign_TrailingDataTrimmed(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		x.Data(append(append([]byte(nil), testSignature...), 0, 0))
	})
	client := newTestClient(t, srv)

	sig, err := client.Sign(context.Background(), testKeygrip, "", []byte{1}, DigestSHA1)
	require.NoError(t, err)
	assert.Equal(t, testSignature, sig)
}

func TestSign_Validation(t *testing.T) {
	srv := agenttest.New(t)
	client := newTestClient(t, srv)
	ctx := context.Background()

	tests := []struct {
		name    string
		keygrip string
		desc    string
		digest  []byte
		algo    DigestAlgorithm
		want    error
	}{
		{name: "short keygrip", keygrip: "ABCD", digest: []byte{1}, algo: DigestSHA1, want: ErrInvalidValue},
		{name: "non hex keygrip", keygrip: strings.Repeat("Z", 40), digest: []byte{1}, algo: DigestSHA1, want: ErrInvalidValue},
		{name: "unknown algorithm", keygrip: testKeygrip, digest: []byte{1}, algo: 99, want: ErrUnsupportedDigestAlgorithm},
		{name: "empty digest", keygrip: testKeygrip, algo: DigestSHA1, want: ErrInvalidValue},
		{name: "digest too long", keygrip: testKeygrip, digest: make([]byte, 480), algo: DigestSHA1, want: ErrInvalidValue},
		{name: "description too long", keygrip: testKeygrip, desc: strings.Repeat("%", 400), digest: []byte{1}, algo: DigestSHA1, want: ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Sign(ctx, tt.keygrip, tt.desc, tt.digest, tt.algo)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, srv.Commands())
	assert.Zero(t, srv.Dials())
}

func TestSign_InvalidResult(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		x.Data([]byte("(7:sig-val"))
	})
	client := newTestClient(t, srv)

	_, err := client.Sign(context.Background(), testKeygrip, "", []byte{1}, DigestSHA1)
	assert.ErrorIs(t, err, ErrInvalidSExpression)
}

func TestSign_PassphraseInquiry(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		if _, err := x.Inquire("PASSPHRASE"); err != nil {
			x.Err(assuan.CodeCanceled, "Canceled")
			return
		}
		x.Data(testSignature)
	})
	client := newTestClient(t, srv, func(cfg *Config) {
		cfg.Passphrase = password.NewStatic([]byte("s3cret"))
	})

	_, err := client.Sign(context.Background(), testKeygrip, "", []byte{1}, DigestSHA1)
	require.NoError(t, err)

	inquiries := srv.Inquiries()
	require.Len(t, inquiries, 1)
	assert.Equal(t, []byte("s3cret"), inquiries[0].Data)
}

func TestSign_UnknownInquiryIgnored(t *testing.T) {
	log, logs := newLogBuffer()
	srv := agenttest.New(t)
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		if _, err := x.Inquire("SOMETHING_NEW 1 2"); err != nil {
			x.Err(assuan.CodeCanceled, "Canceled")
			return
		}
		x.Data(testSignature)
	})
	client := newTestClient(t, srv, func(cfg *Config) {
		cfg.Logger = log
	})

	_, err := client.Sign(context.Background(), testKeygrip, "", []byte{1}, DigestSHA1)
	require.NoError(t, err)

	inquiries := srv.Inquiries()
	require.Len(t, inquiries, 1)
	assert.False(t, inquiries[0].Canceled)
	assert.Empty(t, inquiries[0].Data)
	assert.Contains(t, logs.String(), "ignoring gpg-agent inquiry")
}

type recordingUI struct {
	infos []string
	err   error
}

func (u *recordingUI) PinentryLaunched(_ context.Context, info string) error {
	u.infos = append(u.infos, info)
	return u.err
}

func TestSign_PinentryLaunched(t *testing.T) {
	ui := &recordingUI{err: errors.New("relay down")}
	log, logs := newLogBuffer()
	srv := agenttest.New(t)
	srv.Handle("PKSIGN", func(x *agenttest.Exchange) {
		if _, err := x.Inquire("PINENTRY_LAUNCHED 4242 curses 1.2.1 /dev/pts/3"); err != nil {
			x.Err(assuan.CodeCanceled, "Canceled")
			return
		}
		x.Data(testSignature)
	})
	client := newTestClient(t, srv, func(cfg *Config) {
		cfg.UI = ui
		cfg.Logger = log
	})

	_, err := client.Sign(context.Background(), testKeygrip, "", []byte{1}, DigestSHA1)
	require.NoError(t, err)

	assert.Equal(t, []string{"4242 curses 1.2.1 /dev/pts/3"}, ui.infos)
	assert.Contains(t, logs.String(), "failed to proxy PINENTRY_LAUNCHED inquiry")
	assert.Equal(t, "OPTION allow-pinentry-notify", srv.Commands()[0])
}

func TestSign_AgentError(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("SIGKEY", func(x *agenttest.Exchange) {
		x.Err(assuan.CodeNoSecretKey, "No secret key")
	})
	client := newTestClient(t, srv)

	_, err := client.Sign(context.Background(), testKeygrip, "", []byte{1}, DigestSHA1)
	assert.ErrorIs(t, err, ErrNoSecretKey)

	var se *assuan.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, assuan.CodeNoSecretKey, se.Code)
	assert.Equal(t, []string{"RESET", "SIGKEY " + testKeygrip}, srv.Commands())
}

func TestCardSign(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5a}, 256)
	srv := agenttest.New(t)
	srv.Handle("SCD PKSIGN", func(x *agenttest.Exchange) {
		x.Data(raw)
	})
	client := newTestClient(t, srv)

	digest := bytes.Repeat([]byte{0x01}, 32)
	sig, err := client.CardSign(context.Background(), "OPENPGP.3", digest, DigestSHA256)
	require.NoError(t, err)

	want, err := sexp.WrapRawSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, want, sig)
	assert.Equal(t, []string{
		"SCD SETDATA " + strings.Repeat("01", 32),
		"SCD PKSIGN --hash=sha256 OPENPGP.3",
	}, srv.Commands())
}

func TestCardSign_UnsupportedAlgorithm(t *testing.T) {
	before := testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues(metrics.OpCardSign, "unsupported_digest"))

	srv := agenttest.New(t)
	client := newTestClient(t, srv)

	for _, algo := range []DigestAlgorithm{DigestSHA384, DigestSHA512, DigestSHA224} {
		_, err := client.CardSign(context.Background(), "OPENPGP.3", make([]byte, 48), algo)
		assert.ErrorIs(t, err, ErrUnsupportedDigestAlgorithm)
	}
	for _, cmd := range srv.Commands() {
		assert.NotContains(t, cmd, "SETDATA")
	}
	assert.Zero(t, srv.Dials())

	after := testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues(metrics.OpCardSign, "unsupported_digest"))
	assert.Equal(t, 3.0, after-before)
}

func TestCardSign_InvalidKeyRef(t *testing.T) {
	srv := agenttest.New(t)
	client := newTestClient(t, srv)

	for _, ref := range []string{"", "OPENPGP.3 X", "OPENPGP.3\n"} {
		_, err := client.CardSign(context.Background(), ref, []byte{1}, DigestSHA1)
		assert.ErrorIs(t, err, ErrInvalidValue)
	}
	assert.Zero(t, srv.Dials())
}

func TestDecrypt(t *testing.T) {
	plaintext := []byte("session key\x00with (parens) and %")
	ciphertext := []byte("(7:enc-val(3:rsa(1:a3:\x01\x02\x03)))")

	forms := map[string][]byte{
		"current": []byte(fmt.Sprintf("(5:value%d:%s)\x00", len(plaintext), plaintext)),
		"legacy":  []byte(fmt.Sprintf("%d:%s", len(plaintext), plaintext)),
	}
	for name, reply := range forms {
		t.Run(name, func(t *testing.T) {
			srv := agenttest.New(t)
			srv.Handle("PKDECRYPT", func(x *agenttest.Exchange) {
				got, err := x.Inquire("CIPHERTEXT")
				if err != nil || !bytes.Equal(got, ciphertext) {
					x.Err(assuan.CodeInvalidValue, "bad ciphertext")
					return
				}
				x.Data(reply)
			})
			client := newTestClient(t, srv)

			out, err := client.Decrypt(context.Background(), testKeygrip, "Unlock", ciphertext)
			require.NoError(t, err)
			assert.Equal(t, plaintext, out)
			assert.Equal(t, []string{
				"RESET",
				"SETKEY " + testKeygrip,
				"SETKEYDESC Unlock",
				"PKDECRYPT",
			}, srv.Commands())
		})
	}
}

func TestDecrypt_InvalidCiphertext(t *testing.T) {
	srv := agenttest.New(t)
	client := newTestClient(t, srv)

	_, err := client.Decrypt(context.Background(), testKeygrip, "", []byte("(7:enc-val"))
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Zero(t, srv.Dials())
}

func TestDecrypt_MalformedResult(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("PKDECRYPT", func(x *agenttest.Exchange) {
		if _, err := x.Inquire("CIPHERTEXT"); err != nil {
			return
		}
		x.Data([]byte("(5:value9:abc)"))
	})
	client := newTestClient(t, srv)

	_, err := client.Decrypt(context.Background(), testKeygrip, "", []byte("(1:a)"))
	assert.ErrorIs(t, err, ErrInvalidSExpression)
}

func TestOperationMetrics(t *testing.T) {
	srv := agenttest.New(t)
	client := newTestClient(t, srv)

	before := testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(metrics.OpNop, metrics.StatusSuccess))
	require.NoError(t, client.Nop(context.Background()))
	after := testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues(metrics.OpNop, metrics.StatusSuccess))
	assert.Equal(t, 1.0, after-before)
}
