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

// Package certstore keeps X.509 certificates received from the agent, for
// example while learning a smartcard. Certificates are stored DER encoded
// in a storage.Backend under their SHA-1 fingerprint.
//
// Store implements agent.CertStore:
//
//	store, err := certstore.New(&certstore.Config{Backend: memory.New()})
//	client, err := agent.NewClient(&agent.Config{CertStore: store})
//	result, err := client.Learn(ctx)
package certstore

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-agentclient/internal/i18n"
	"github.com/jeremyhahn/go-agentclient/pkg/agent"
	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/metrics"
	"github.com/jeremyhahn/go-agentclient/pkg/storage"
)

var _ agent.CertStore = (*Store)(nil)

// Config configures a Store.
type Config struct {
	// Backend holds the certificates. Required.
	Backend storage.Backend

	Logger     logger.Logger
	Translator agent.Translator
}

// Store is a certificate store. It is safe for concurrent use; mutating
// operations are serialized by a store wide lock.
type Store struct {
	backend storage.Backend
	log     logger.Logger
	tr      agent.Translator

	// lock has capacity one; holding its token grants write access
	lock chan struct{}
}

// New returns a store over cfg.Backend.
func New(cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Backend == nil {
		return nil, ErrStorageRequired
	}
	s := &Store{
		backend: cfg.Backend,
		log:     cfg.Logger,
		tr:      cfg.Translator,
		lock:    make(chan struct{}, 1),
	}
	if s.log == nil {
		s.log = logger.NoOp{}
	}
	if s.tr == nil {
		s.tr = i18n.Default()
	}
	return s, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Store adds cert as a permanent certificate and reports whether it was
// already present. An ephemeral copy of the certificate is promoted.
func (s *Store) Store(ctx context.Context, cert *x509.Certificate) (bool, error) {
	return s.Import(ctx, cert, false)
}

// Import adds cert. Ephemeral certificates are kept apart from permanent
// ones and are only found by fingerprint.
func (s *Store) Import(ctx context.Context, cert *x509.Certificate, ephemeral bool) (bool, error) {
	if cert == nil || len(cert.Raw) == 0 {
		return false, ErrCertInvalid
	}
	if err := s.acquire(ctx); err != nil {
		return false, err
	}
	defer s.release()

	fpr := agent.Fingerprint(cert)
	exists, err := s.backend.Exists(storage.CertPath(fpr))
	if err != nil || exists {
		return exists, err
	}
	ephemeralKey := storage.EphemeralCertPath(fpr)
	if ephemeral {
		exists, err := s.backend.Exists(ephemeralKey)
		if err != nil || exists {
			return exists, err
		}
		return false, s.backend.Put(ephemeralKey, cert.Raw, nil)
	}

	if err := s.backend.Put(storage.CertPath(fpr), cert.Raw, nil); err != nil {
		return false, err
	}
	if err := s.backend.Delete(ephemeralKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	return false, nil
}

// Get returns the certificate with the given fingerprint, looking at
// permanent certificates first.
func (s *Store) Get(_ context.Context, fingerprint string) (*x509.Certificate, error) {
	fpr, ok := normalizeFingerprint(fingerprint)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCertNotFound, fingerprint)
	}
	for _, key := range []string{storage.CertPath(fpr), storage.EphemeralCertPath(fpr)} {
		der, err := s.backend.Get(key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return x509.ParseCertificate(der)
	}
	return nil, fmt.Errorf("%w: %s", ErrCertNotFound, fpr)
}

// List returns the permanent certificates ordered by fingerprint, followed
// by the ephemeral ones when includeEphemeral is set.
func (s *Store) List(ctx context.Context, includeEphemeral bool) ([]*x509.Certificate, error) {
	entries, err := s.Entries(ctx, includeEphemeral)
	if err != nil {
		return nil, err
	}
	certs := make([]*x509.Certificate, len(entries))
	for i, e := range entries {
		certs[i] = e.Certificate
	}
	return certs, nil
}

// Entries is like List but also reports fingerprints and storage class.
func (s *Store) Entries(_ context.Context, includeEphemeral bool) ([]Entry, error) {
	entries, err := s.entries(includeEphemeral)
	if err != nil {
		return nil, err
	}
	return exportEntries(entries), nil
}

// BasicCheck verifies the signature of cert. Self-signed certificates are
// checked against themselves; other certificates against a stored issuer.
// When no issuer is stored the error matches agent.ErrMissingIssuer.
func (s *Store) BasicCheck(_ context.Context, cert *x509.Certificate) error {
	if cert == nil || len(cert.Raw) == 0 {
		return ErrCertInvalid
	}
	if bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		if err := checkSignedBy(cert, cert); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
		return nil
	}

	entries, err := s.entries(false)
	if err != nil {
		return err
	}
	var lastErr error
	for _, e := range entries {
		if !bytes.Equal(e.cert.RawSubject, cert.RawIssuer) {
			continue
		}
		if lastErr = checkSignedBy(cert, e.cert); lastErr == nil {
			return nil
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, lastErr)
	}
	return fmt.Errorf("%w: %s", agent.ErrMissingIssuer, cert.Issuer)
}

// checkSignedBy checks the signature only. Issuer constraints and
// validity periods are left to path validation.
func checkSignedBy(cert, issuer *x509.Certificate) error {
	return issuer.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature)
}

// Entry is a search result.
type Entry struct {
	Fingerprint string
	Certificate *x509.Certificate
	Ephemeral   bool
}

func exportEntries(entries []entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Fingerprint: e.fingerprint, Certificate: e.cert, Ephemeral: e.ephemeral}
	}
	return out
}

type entry struct {
	key         string
	fingerprint string
	cert        *x509.Certificate
	ephemeral   bool
}

// entries loads and parses stored certificates. Unparsable files are
// logged and skipped.
func (s *Store) entries(includeEphemeral bool) ([]entry, error) {
	type source struct {
		list      func(storage.Backend) ([]string, error)
		path      func(string) string
		ephemeral bool
	}
	sources := []source{{storage.ListCerts, storage.CertPath, false}}
	if includeEphemeral {
		sources = append(sources, source{storage.ListEphemeralCerts, storage.EphemeralCertPath, true})
	}

	var out []entry
	for _, src := range sources {
		fprs, err := src.list(s.backend)
		if err != nil {
			return nil, err
		}
		for _, fpr := range fprs {
			key := src.path(fpr)
			der, err := s.backend.Get(key)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				s.log.Warn(s.tr.Translate(i18n.MsgCertParseFailed, map[string]any{"Error": err.Error()}),
					logger.String("key", key))
				metrics.RecordCertificate(metrics.ResultSkipped)
				continue
			}
			out = append(out, entry{key: key, fingerprint: fpr, cert: cert, ephemeral: src.ephemeral})
		}
	}
	return out, nil
}

// acquire takes the store lock or fails once ctx is done.
func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		err := fmt.Errorf("%w: %w", ErrLocked, ctx.Err())
		s.log.Error(s.tr.Translate(i18n.MsgLockFailed, map[string]any{"Error": err.Error()}))
		return err
	}
}

func (s *Store) release() {
	<-s.lock
}
