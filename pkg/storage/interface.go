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

// Package storage defines the key-value persistence used by the
// certificate store. Backends keep opaque values under slash separated
// keys; the memory and file subpackages provide implementations.
package storage

import (
	"io/fs"
)

// Backend is a flat key-value store. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte, opts *Options) error

	// Delete removes key. It returns ErrNotFound when key does not exist.
	Delete(key string) error

	// List returns the keys starting with prefix in sorted order.
	List(prefix string) ([]string, error)

	// Exists reports whether key is present.
	Exists(key string) (bool, error)

	// Close releases the backend. Later calls fail with ErrClosed.
	Close() error
}

// Options tune a single Put.
type Options struct {
	// Permissions overrides the file mode used by file backends
	Permissions fs.FileMode

	// Metadata is passed through to backends that can record it
	Metadata map[string]string
}

// DefaultOptions returns owner-only permissions and empty metadata.
func DefaultOptions() *Options {
	return &Options{
		Permissions: 0600,
		Metadata:    make(map[string]string),
	}
}
