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

// Package metrics provides Prometheus instrumentation for agent operations.
// It exposes per-operation counters and latency histograms, protocol level
// counters for transactions, inquiries and status lines, and connection
// gauges so that long running consumers can monitor their agent traffic.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all agent client metrics
	Namespace = "agentclient"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelCommand   = "command"
	LabelKeyword   = "keyword"
	LabelHandled   = "handled"
	LabelResult    = "result"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpSign            = "sign"
	OpCardSign        = "card_sign"
	OpDecrypt         = "decrypt"
	OpGenKey          = "genkey"
	OpReadKey         = "readkey"
	OpSerialNo        = "serialno"
	OpKeyPairInfo     = "keypairinfo"
	OpIsTrusted       = "istrusted"
	OpMarkTrusted     = "marktrusted"
	OpHaveKey         = "havekey"
	OpLearn           = "learn"
	OpPasswd          = "passwd"
	OpGetConfirmation = "get_confirmation"
	OpKeyInfo         = "keyinfo"
	OpAskPassphrase   = "ask_passphrase"
	OpImportKey       = "import_key"
	OpExportKey       = "export_key"
	OpKeywrapKey      = "keywrap_key"
	OpNop             = "nop"
	OpVersion         = "version"
	OpDeleteCert      = "delete_cert"

	// Certificate store results
	ResultImported = "imported"
	ResultExisting = "existing"
	ResultSkipped  = "skipped"
)

var (
	// OperationsTotal tracks facade operations by name and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of agent operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of facade operations in seconds.
	// Operations that wait on pinentry can take a long time, hence the wide
	// upper buckets.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of agent operations in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal tracks failed operations by error type (e.g. "cancelled",
	// "invalid_value", "agent_unavailable").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// TransactionsTotal tracks protocol transactions by leading command word.
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "assuan",
			Name:      "transactions_total",
			Help:      "Total number of protocol transactions by command and status",
		},
		[]string{LabelCommand, LabelStatus},
	)

	// InquiriesTotal tracks agent inquiries by keyword and whether a handler
	// answered them with data.
	InquiriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "assuan",
			Name:      "inquiries_total",
			Help:      "Total number of agent inquiries by keyword",
		},
		[]string{LabelKeyword, LabelHandled},
	)

	// StatusLinesTotal tracks status lines received by keyword.
	StatusLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "assuan",
			Name:      "status_lines_total",
			Help:      "Total number of status lines received by keyword",
		},
		[]string{LabelKeyword},
	)

	// ConnectsTotal tracks connection attempts to the agent by status.
	ConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connects_total",
			Help:      "Total number of agent connection attempts by status",
		},
		[]string{LabelStatus},
	)

	// AutostartsTotal counts agent launches performed by the client.
	AutostartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "autostarts_total",
			Help:      "Total number of agent launches performed by the client",
		},
	)

	// ActiveSessions is the number of open agent sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Number of open agent sessions",
		},
	)

	// CertificatesTotal tracks certificates handled by the learn operation
	// and the certificate store.
	CertificatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "certificates_total",
			Help:      "Total number of certificates handled by result",
		},
		[]string{LabelResult},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records a facade operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	sig, err := client.Sign(ctx, req)
//	status := metrics.StatusSuccess
//	if err != nil {
//	    status = metrics.StatusError
//	}
//	metrics.RecordOperation(metrics.OpSign, status, time.Since(start).Seconds())
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records a failed operation by error type.
func RecordError(operation, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordTransaction records one protocol transaction.
func RecordTransaction(command, status string) {
	if !enabled.Load() {
		return
	}
	TransactionsTotal.WithLabelValues(command, status).Inc()
}

// RecordInquiry records an inquiry received from the agent.
func RecordInquiry(keyword string, handled bool) {
	if !enabled.Load() {
		return
	}
	h := "false"
	if handled {
		h = "true"
	}
	InquiriesTotal.WithLabelValues(keyword, h).Inc()
}

// RecordStatusLine records a status line received from the agent.
func RecordStatusLine(keyword string) {
	if !enabled.Load() {
		return
	}
	StatusLinesTotal.WithLabelValues(keyword).Inc()
}

// RecordConnect records a connection attempt.
func RecordConnect(status string) {
	if !enabled.Load() {
		return
	}
	ConnectsTotal.WithLabelValues(status).Inc()
}

// RecordAutostart records an agent launch.
func RecordAutostart() {
	if !enabled.Load() {
		return
	}
	AutostartsTotal.Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() {
	if !enabled.Load() {
		return
	}
	ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func SessionClosed() {
	if !enabled.Load() {
		return
	}
	ActiveSessions.Dec()
}

// RecordCertificate records a certificate outcome (Result* constants).
func RecordCertificate(result string) {
	if !enabled.Load() {
		return
	}
	CertificatesTotal.WithLabelValues(result).Inc()
}

// WriteTextfile writes all registered metrics to path in the Prometheus
// text exposition format, for pickup by the node exporter textfile
// collector. Short lived command line processes use this instead of
// serving an HTTP endpoint.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
