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
	"context"

	"github.com/jeremyhahn/go-agentclient/internal/i18n"
	"github.com/jeremyhahn/go-agentclient/pkg/assuan"
	"github.com/jeremyhahn/go-agentclient/pkg/logger"
	"github.com/jeremyhahn/go-agentclient/pkg/password"
)

// inquirer returns an inquiry handler that answers keyword with send and
// leaves everything else to the default handling.
func (c *Client) inquirer(keyword string, send func(w *assuan.InquiryWriter) error) assuan.InquireFunc {
	return func(ctx context.Context, line string, w *assuan.InquiryWriter) error {
		if keyword != "" {
			if _, ok := leadingKeyword(line, keyword); ok {
				return send(w)
			}
		}
		return c.defaultInquiry(ctx, line, w)
	}
}

// confidential returns a send function that writes data over the
// confidential channel.
func confidential(data []byte) func(w *assuan.InquiryWriter) error {
	return func(w *assuan.InquiryWriter) error {
		_, err := w.WriteConfidential(data)
		return err
	}
}

// defaultInquiry relays pinentry notifications and answers passphrase
// inquiries from the static passphrase source. Other inquiries are logged
// and answered with empty data, so agents adding new inquiry types do not
// break existing operations.
func (c *Client) defaultInquiry(ctx context.Context, line string, w *assuan.InquiryWriter) error {
	if info, ok := leadingKeyword(line, "PINENTRY_LAUNCHED"); ok {
		if c.ui != nil {
			if err := c.ui.PinentryLaunched(ctx, info); err != nil {
				c.log.Error(c.tr.Translate(i18n.MsgProxyFailed, map[string]any{"Inquiry": "PINENTRY_LAUNCHED"}),
					logger.Error(err))
			}
		}
		return nil
	}

	if isPassphraseInquiry(line) && c.passphrase != nil {
		if pass, ok := c.passphrase.Passphrase(); ok {
			defer password.Zero(pass)
			_, err := w.WriteConfidential(pass)
			return err
		}
	}

	c.log.Error(c.tr.Translate(i18n.MsgIgnoringInquiry, map[string]any{"Line": line}))
	return nil
}

func isPassphraseInquiry(line string) bool {
	if _, ok := leadingKeyword(line, "PASSPHRASE"); ok {
		return true
	}
	_, ok := leadingKeyword(line, "NEW_PASSPHRASE")
	return ok
}

// progressStatus forwards PROGRESS lines to the progress sink. A sink
// error cancels the transaction.
func (c *Client) progressStatus(ctx context.Context, line string) error {
	info, ok := parseProgress(line)
	if !ok {
		return nil
	}
	return c.reportProgress(ctx, info)
}

func (c *Client) reportProgress(ctx context.Context, info string) error {
	if c.progress == nil {
		return nil
	}
	if err := c.progress.Progress(ctx, info); err != nil {
		return ErrCancelled
	}
	return nil
}
