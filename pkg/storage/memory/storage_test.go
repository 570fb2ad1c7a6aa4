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

package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-agentclient/pkg/storage"
)

var _ storage.Backend = (*Storage)(nil)

func TestPutGet(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value []byte
	}{
		{name: "certificate", key: "certs/ABCD.der", value: []byte{0x30, 0x82, 0x01}},
		{name: "empty value", key: "empty", value: []byte{}},
		{name: "binary", key: "ephemeral/00FF.der", value: []byte{0x00, 0xff}},
	}
	s := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.Put(tt.key, tt.value, nil))
			got, err := s.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
	assert.ErrorIs(t, s.Put("", []byte{1}, nil), storage.ErrInvalidKey)
}

func TestCopies(t *testing.T) {
	s := New()
	value := []byte("der")
	require.NoError(t, s.Put("k", value, nil))
	value[0] = 'X'

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("der"), got)

	got[0] = 'Y'
	again, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("der"), again)
}

func TestDeleteExistsList(t *testing.T) {
	s := New()
	require.NoError(t, s.Put("certs/B.der", []byte{1}, nil))
	require.NoError(t, s.Put("certs/A.der", []byte{1}, nil))
	require.NoError(t, s.Put("ephemeral/C.der", []byte{1}, nil))

	keys, err := s.List("certs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"certs/A.der", "certs/B.der"}, keys)

	ok, err := s.Exists("certs/A.der")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete("certs/A.der"))
	assert.ErrorIs(t, s.Delete("certs/A.der"), storage.ErrNotFound)

	_, err = s.Get("certs/A.der")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := s.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClose(t *testing.T) {
	s := New()
	require.NoError(t, s.Put("k", []byte{1}, nil))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Get("k")
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, s.Put("k", nil, nil), storage.ErrClosed)
	assert.ErrorIs(t, s.Delete("k"), storage.ErrClosed)
	_, err = s.List("")
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = s.Exists("k")
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("certs/%02d.der", i)
			assert.NoError(t, s.Put(key, []byte{byte(i)}, nil))
			_, err := s.Get(key)
			assert.NoError(t, err)
			_, err = s.List("certs/")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	keys, err := s.List("certs/")
	require.NoError(t, err)
	assert.Len(t, keys, 16)
}
