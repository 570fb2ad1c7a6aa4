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

//go:build !unix && !windows

package secmem

import "errors"

var errLockUnsupported = errors.New("secmem: memory locking not supported on this platform")

func lock(p []byte) error {
	return errLockUnsupported
}

func unlock(p []byte) error {
	return nil
}
