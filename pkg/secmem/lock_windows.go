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

//go:build windows

package secmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func lock(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return windows.VirtualLock(uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)))
}

func unlock(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	return windows.VirtualUnlock(uintptr(unsafe.Pointer(&p[0])), uintptr(len(p)))
}
