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

// Package i18n provides localized user facing messages. Translations are
// YAML files embedded from the locales directory and loaded into a go-i18n
// bundle; unknown message IDs are returned verbatim.
package i18n

import (
	"embed"
	"io/fs"
	"path"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Message IDs.
const (
	MsgNoAgent            = "no_agent"
	MsgProxyFailed        = "proxy_failed"
	MsgIgnoringInquiry    = "ignoring_inquiry"
	MsgOptionRejected     = "option_rejected"
	MsgCertImported       = "cert_imported"
	MsgCertExisting       = "cert_existing"
	MsgCertParseFailed    = "cert_parse_failed"
	MsgCertInvalid        = "cert_invalid"
	MsgCertNotFound       = "cert_not_found"
	MsgCertDeleted        = "cert_deleted"
	MsgCertDupDeleted     = "cert_duplicate_deleted"
	MsgCertDeleteFailed   = "cert_delete_failed"
	MsgLockFailed         = "lock_failed"
	MsgNothingToDelete    = "nothing_to_delete"
	MsgAgentLaunched      = "agent_launched"
	MsgEnterPassphrase    = "enter_passphrase"
	MsgConfirmPassphrase  = "confirm_passphrase"
	MsgPassphraseMismatch = "passphrase_mismatch"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle

	defaultOnce sync.Once
	defaultLoc  *Localizer
)

func loadBundle() *i18n.Bundle {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

		files, _ := fs.ReadDir(localeFS, "locales")
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name := path.Join("locales", f.Name())
			data, err := localeFS.ReadFile(name)
			if err != nil {
				continue
			}
			_, _ = bundle.ParseMessageFileBytes(data, name)
		}
	})
	return bundle
}

// Localizer translates message IDs into one language.
type Localizer struct {
	loc *i18n.Localizer
}

// New returns a localizer for the given languages, most preferred first.
// Entries may be BCP 47 tags or POSIX locale names such as "de_DE.UTF-8".
// English is used when nothing matches.
func New(langs ...string) *Localizer {
	tags := make([]string, 0, len(langs))
	for _, l := range langs {
		if t := normalize(l); t != "" {
			tags = append(tags, t)
		}
	}
	return &Localizer{loc: i18n.NewLocalizer(loadBundle(), tags...)}
}

// Default returns the English localizer.
func Default() *Localizer {
	defaultOnce.Do(func() {
		defaultLoc = New("en")
	})
	return defaultLoc
}

// Translate renders the message with the given template data. When the
// message is unknown the ID itself is returned.
func (l *Localizer) Translate(id string, data map[string]any) string {
	if l == nil {
		l = Default()
	}
	msg, err := l.loc.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil || msg == "" {
		return id
	}
	return msg
}

// T translates a message without template data.
func (l *Localizer) T(id string) string {
	return l.Translate(id, nil)
}

// normalize converts a POSIX locale name to a BCP 47 tag.
func normalize(l string) string {
	if l == "" || l == "C" || l == "POSIX" {
		return ""
	}
	for i := 0; i < len(l); i++ {
		if l[i] == '.' || l[i] == '@' {
			l = l[:i]
			break
		}
	}
	tag, err := language.Parse(l)
	if err != nil {
		return ""
	}
	return tag.String()
}
