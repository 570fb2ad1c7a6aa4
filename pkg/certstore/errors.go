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

package certstore

import "errors"

var (
	// ErrCertNotFound is returned when no certificate matches a name.
	ErrCertNotFound = errors.New("certstore: certificate not found")

	// ErrCertInvalid is returned for nil certificates or certificates
	// without DER data.
	ErrCertInvalid = errors.New("certstore: invalid certificate")

	// ErrInvalidSignature is returned by BasicCheck when a known issuer did
	// not sign the certificate.
	ErrInvalidSignature = errors.New("certstore: invalid certificate signature")

	// ErrAmbiguousName is returned by Delete when a name matches different
	// certificates.
	ErrAmbiguousName = errors.New("certstore: ambiguous name")

	// ErrNothingToDelete is returned by Delete when called without names.
	ErrNothingToDelete = errors.New("certstore: nothing to delete")

	// ErrStorageRequired is returned by New without a backend.
	ErrStorageRequired = errors.New("certstore: certificate storage is required")

	// ErrLocked is returned when the store lock could not be acquired
	// before the context ended.
	ErrLocked = errors.New("certstore: store is locked")
)
