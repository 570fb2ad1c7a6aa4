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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-agentclient/internal/agenttest"
	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
)

var testPublicKey = []byte("(10:public-key(3:rsa(1:n3:\x00\xc3\x01)(1:e3:\x01\x00\x01)))")

func TestGenKey(t *testing.T) {
	params := []byte("(6:genkey(3:rsa(5:nbits4:2048)))")
	var progress []string

	srv := agenttest.New(t)
	srv.Handle("GENKEY", func(x *agenttest.Exchange) {
		got, err := x.Inquire("KEYPARAM")
		if err != nil || string(got) != string(params) {
			x.Err(assuan.CodeInvalidValue, "bad parameters")
			return
		}
		x.Status("PROGRESS primegen + 1 0")
		x.Data(testPublicKey)
	})
	client := newTestClient(t, srv, func(cfg *Config) {
		cfg.Progress = ProgressFunc(func(_ context.Context, info string) error {
			progress = append(progress, info)
			return nil
		})
	})

	pub, err := client.GenKey(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, testPublicKey, pub)
	assert.Equal(t, []string{"RESET", "GENKEY"}, srv.Commands())
	assert.Equal(t, []string{"primegen + 1 0"}, progress)
}

func TestGenKey_ProgressCancel(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("GENKEY", func(x *agenttest.Exchange) {
		if _, err := x.Inquire("KEYPARAM"); err != nil {
			return
		}
		x.Status("PROGRESS primegen + 1 0")
		x.Data(testPublicKey)
	})
	client := newTestClient(t, srv, func(cfg *Config) {
		cfg.Progress = ProgressFunc(func(context.Context, string) error {
			return assert.AnError
		})
	})

	_, err := client.GenKey(context.Background(), []byte("(6:genkey)"))
	assert.ErrorIs(t, err, ErrCancelled)

	// The aborted connection is replaced on the next operation.
	require.NoError(t, client.Nop(context.Background()))
	assert.Equal(t, 2, srv.Dials())
}

func TestGenKey_InvalidParams(t *testing.T) {
	srv := agenttest.New(t)
	client := newTestClient(t, srv)

	_, err := client.GenKey(context.Background(), []byte("genkey"))
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Zero(t, srv.Dials())
}

func TestReadKey(t *testing.T) {
	srv := agenttest.New(t)
	srv.Handle("READKEY", func(x *agenttest.Exchange) {
		x.Data(testPublicKey)
	})
	srv.Handle("SCD READKEY", func(x *agenttest.Exchange) {
		x.Data(testPublicKey)
	})
	client := newTestClient(t, srv)
	ctx := context.Background()

	pub, err := client.ReadKey(ctx, testKeygrip, false)
	require.NoError(t, err)
	assert.Equal(t, testPublicKey, pub)

	pub, err = client.ReadKey(ctx, "OPENPGP.1", true)
	require.NoError(t, err)
	assert.Equal(t, testPublicKey, pub)

	assert.Equal(t, []string{
		"RESET", "READKEY " + testKeygrip,
		"RESET", "SCD READKEY OPENPGP.1",
	}, srv.Commands())

	_, err = client.ReadKey(ctx, "OPENPGP.1", false)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestHaveKey(t *testing.T) {
	missing := strings.Repeat("F", 40)
	srv := agenttest.New(t)
	srv.Handle("HAVEKEY "+missing, func(x *agenttest.Exchange) {
		x.Err(assuan.CodeNoSecretKey, "No secret key")
	})
	client := newTestClient(t, srv)
	ctx := context.Background()

	ok, err := client.HaveKey(ctx, testKeygrip)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.HaveKey(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.HaveKey(ctx, "xyz")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestKeyInfo(t *testing.T) {
	tests := []struct {
		name    string
		status  []string
		want    string
		wantErr error
	}{
		{name: "card key", status: []string{"KEYINFO " + testKeygrip + " T D2760001240102000005000012340000 OPENPGP.1 - - -"}, want: "D2760001240102000005000012340000"},
		{name: "serial at end of line", status: []string{"KEYINFO " + testKeygrip + " T D276000124"}, want: "D276000124"},
		{name: "disk key", status: []string{"KEYINFO " + testKeygrip + " D - - - P - - -"}, want: ""},
		{name: "first line wins", status: []string{
			"KEYINFO " + testKeygrip + " T AAAA",
			"KEYINFO " + testKeygrip + " T BBBB",
		}, want: "AAAA"},
		{name: "disk line before card line", status: []string{
			"KEYINFO " + testKeygrip + " D - - - P - - -",
			"KEYINFO " + testKeygrip + " T D2760001 OPENPGP.1 - - -",
		}, want: "D2760001"},
		{name: "no status", want: ""},
		{name: "injected colon", status: []string{"KEYINFO " + testKeygrip + " T AB:CD"}, wantErr: ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := agenttest.New(t)
			srv.Handle("KEYINFO", func(x *agenttest.Exchange) {
				for _, s := range tt.status {
					x.Status(s)
				}
			})
			client := newTestClient(t, srv)

			serial, err := client.KeyInfo(context.Background(), testKeygrip)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, serial)
		})
	}
}

func TestPasswd(t *testing.T) {
	srv := agenttest.New(t)
	client := newTestClient(t, srv)

	require.NoError(t, client.Passwd(context.Background(), testKeygrip, "Change it"))
	assert.Equal(t, []string{"SETKEYDESC Change+it", "PASSWD " + testKeygrip}, srv.Commands())
}

func TestImportKey(t *testing.T) {
	key := []byte("wrapped\nkey%material\x00")
	srv := agenttest.New(t)
	srv.Handle("IMPORT_KEY", func(x *agenttest.Exchange) {
		if _, err := x.Inquire("KEYDATA"); err != nil {
			x.Err(assuan.CodeCanceled, "Canceled")
		}
	})
	client := newTestClient(t, srv)

	require.NoError(t, client.ImportKey(context.Background(), key))
	inquiries := srv.Inquiries()
	require.Len(t, inquiries, 1)
	assert.Equal(t, key, inquiries[0].Data)

	assert.ErrorIs(t, client.ImportKey(context.Background(), nil), ErrInvalidValue)
}

func TestExportKey(t *testing.T) {
	blob := []byte("\x01\x02exported\n\x03")
	srv := agenttest.New(t)
	srv.Handle("EXPORT_KEY", func(x *agenttest.Exchange) {
		x.Data(blob)
	})
	client := newTestClient(t, srv)

	out, err := client.ExportKey(context.Background(), testKeygrip, "")
	require.NoError(t, err)
	assert.Equal(t, blob, out)
	assert.Equal(t, []string{"EXPORT_KEY " + testKeygrip}, srv.Commands())
}

func TestExportKey_Empty(t *testing.T) {
	srv := agenttest.New(t)
	client := newTestClient(t, srv)

	out, err := client.ExportKey(context.Background(), testKeygrip, "")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestKeywrapKey(t *testing.T) {
	kek := bytes.Repeat([]byte{0x5a}, 16)
	srv := agenttest.New(t)
	srv.Handle("KEYWRAP_KEY", func(x *agenttest.Exchange) {
		x.Data(kek)
	})
	client := newTestClient(t, srv)

	got, err := client.KeywrapKey(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, kek, got)

	_, err = client.KeywrapKey(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEYWRAP_KEY --import", "KEYWRAP_KEY --export"}, srv.Commands())
}

func TestKeywrapKey_NoData(t *testing.T) {
	srv := agenttest.New(t)
	client := newTestClient(t, srv)

	_, err := client.KeywrapKey(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoData)
}
