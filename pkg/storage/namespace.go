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

package storage

import (
	"strings"
)

const (
	certPrefix      = "certs/"
	ephemeralPrefix = "ephemeral/"
	certSuffix      = ".der"
)

// CertPath returns the key of a permanent certificate.
func CertPath(fingerprint string) string {
	return certPrefix + fingerprint + certSuffix
}

// EphemeralCertPath returns the key of an ephemeral certificate. Ephemeral
// certificates were seen during an operation but never imported; they are
// only found by exact fingerprint lookups.
func EphemeralCertPath(fingerprint string) string {
	return ephemeralPrefix + fingerprint + certSuffix
}

// ListCerts returns the fingerprints of all permanent certificates.
func ListCerts(backend Backend) ([]string, error) {
	return list(backend, certPrefix)
}

// ListEphemeralCerts returns the fingerprints of all ephemeral certificates.
func ListEphemeralCerts(backend Backend) ([]string, error) {
	return list(backend, ephemeralPrefix)
}

func list(backend Backend, prefix string) ([]string, error) {
	keys, err := backend.List(prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id, ok := strings.CutSuffix(strings.TrimPrefix(k, prefix), certSuffix)
		if ok && id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
