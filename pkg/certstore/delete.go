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

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/go-agentclient/internal/i18n"
	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
)

type searchMode int

const (
	// 40 hex digits, optionally prefixed by 0x or separated by colons
	modeFingerprint searchMode = iota
	// 8 or 16 hex digits matching the end of the fingerprint
	modeShortID
	// <user@example.org>
	modeMail
	// @example.org
	modeMailSubstring
	// /CN=Alice,O=Example
	modeSubject
	// any other text, matched case-insensitively against subject and mail
	modeSubstring
)

type query struct {
	mode  searchMode
	value string
}

// classify derives the search mode from the form of name.
func classify(name string) query {
	name = strings.TrimSpace(name)
	if fpr, ok := normalizeFingerprint(name); ok {
		return query{mode: modeFingerprint, value: fpr}
	}
	hexPart := strings.TrimPrefix(strings.TrimPrefix(name, "0x"), "0X")
	if (len(hexPart) == 8 || len(hexPart) == 16) && isHex(hexPart) {
		return query{mode: modeShortID, value: strings.ToUpper(hexPart)}
	}
	switch {
	case strings.HasPrefix(name, "<") && strings.HasSuffix(name, ">") && len(name) > 2:
		return query{mode: modeMail, value: strings.ToLower(name[1 : len(name)-1])}
	case strings.HasPrefix(name, "@") && len(name) > 1:
		return query{mode: modeMailSubstring, value: strings.ToLower(name[1:])}
	case strings.HasPrefix(name, "/") && len(name) > 1:
		return query{mode: modeSubject, value: name[1:]}
	}
	return query{mode: modeSubstring, value: strings.ToLower(name)}
}

// normalizeFingerprint accepts 40 hex digits, optionally prefixed with 0x
// or written as colon separated pairs, and returns them in upper case.
func normalizeFingerprint(s string) (string, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.ReplaceAll(s, ":", "")
	if len(s) != 40 || !isHex(s) {
		return "", false
	}
	return strings.ToUpper(s), true
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil && s != ""
}

// includesEphemeral reports whether the query addresses one certificate
// exactly, in which case ephemeral certificates are searched too.
func (q query) includesEphemeral() bool {
	return q.mode == modeFingerprint
}

func (q query) match(e entry) bool {
	switch q.mode {
	case modeFingerprint:
		return e.fingerprint == q.value
	case modeShortID:
		return strings.HasSuffix(e.fingerprint, q.value)
	case modeMail:
		for _, addr := range e.cert.EmailAddresses {
			if strings.EqualFold(addr, q.value) {
				return true
			}
		}
		return false
	case modeMailSubstring:
		for _, addr := range e.cert.EmailAddresses {
			if strings.Contains(strings.ToLower(addr), q.value) {
				return true
			}
		}
		return false
	case modeSubject:
		return e.cert.Subject.String() == q.value
	default:
		if strings.Contains(strings.ToLower(e.cert.Subject.String()), q.value) {
			return true
		}
		for _, addr := range e.cert.EmailAddresses {
			if strings.Contains(strings.ToLower(addr), q.value) {
				return true
			}
		}
		return false
	}
}

// Search returns the stored certificates matching name. Names of the form
// of a fingerprint also match ephemeral certificates.
func (s *Store) Search(_ context.Context, name string) ([]Entry, error) {
	q := classify(name)
	entries, err := s.search(q)
	if err != nil {
		return nil, err
	}
	return exportEntries(entries), nil
}

func (s *Store) search(q query) ([]entry, error) {
	entries, err := s.entries(q.includesEphemeral())
	if err != nil {
		return nil, err
	}
	var matches []entry
	for _, e := range entries {
		if q.match(e) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// Delete removes the certificates named by names. Each name must identify
// exactly one certificate; copies of that certificate stored more than
// once are removed together. Processing stops at the first name that
// fails.
func (s *Store) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		s.log.Error(s.tr.Translate(i18n.MsgNothingToDelete, nil))
		return ErrNothingToDelete
	}

	start := time.Now()
	for _, name := range names {
		if err := s.deleteOne(ctx, name); err != nil {
			s.log.Error(s.tr.Translate(i18n.MsgCertDeleteFailed, map[string]any{"Name": name, "Error": err.Error()}))
			metrics.RecordError(metrics.OpDeleteCert, "delete_failed")
			metrics.RecordOperation(metrics.OpDeleteCert, metrics.StatusError, time.Since(start).Seconds())
			return err
		}
	}
	metrics.RecordOperation(metrics.OpDeleteCert, metrics.StatusSuccess, time.Since(start).Seconds())
	return nil
}

func (s *Store) deleteOne(ctx context.Context, name string) error {
	q := classify(name)

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	// The search runs under the lock so that nothing is added between
	// the ambiguity check and the deletion.
	matches, err := s.search(q)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		err := fmt.Errorf("%w: %s", ErrCertNotFound, name)
		s.log.Error(s.tr.Translate(i18n.MsgCertNotFound, map[string]any{"Name": name, "Error": err.Error()}))
		return err
	}
	for _, m := range matches[1:] {
		if m.fingerprint != matches[0].fingerprint {
			return fmt.Errorf("%w: %q matches %s and %s", ErrAmbiguousName, name, matches[0].fingerprint, m.fingerprint)
		}
	}

	for i, m := range matches {
		if err := s.backend.Delete(m.key); err != nil {
			return err
		}
		msg := i18n.MsgCertDeleted
		if i > 0 {
			msg = i18n.MsgCertDupDeleted
		}
		s.log.Info(s.tr.Translate(msg, map[string]any{"Name": name}),
			logger.String("fingerprint", m.fingerprint))
	}
	return nil
}
