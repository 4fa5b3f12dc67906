// Package metrics collects Prometheus metrics for wallet sessions,
// signatures, transactions and chain reads on a private registry.
package metrics

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

const namespace = "tether"

// Metrics holds the application collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connects      *prometheus.CounterVec
	sessionActive *prometheus.GaugeVec
	signatures    *prometheus.CounterVec
	transactions  *prometheus.CounterVec
	readLatency   *prometheus.HistogramVec
	readErrors    *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Wallet connection attempts by provider kind, mode and outcome.",
		}, []string{"kind", "mode", "result"}),
		sessionActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 for the provider kind of the active session.",
		}, []string{"kind"}),
		signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_total",
			Help:      "Signature requests by type and outcome.",
		}, []string{"type", "result"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions by type, phase and outcome.",
		}, []string{"type", "phase", "result"}),
		readLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "read_duration_seconds",
			Help:      "Latency of guarded chain reads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Failed chain read attempts.",
		}, []string{"op"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_cache_lookups_total",
			Help:      "Stale balance cache lookups by outcome.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.connects, m.sessionActive, m.signatures, m.transactions,
		m.readLatency, m.readErrors, m.cacheLookups,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Outcome turns an error into a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	}
	return strings.ToLower(tethererr.Code(err))
}

// RecordConnect records one connection attempt.
func (m *Metrics) RecordConnect(kind, mode string, err error) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(kind, mode, Outcome(err)).Inc()
}

// SetActiveSession marks kind as the active session kind. An empty kind
// clears every kind.
func (m *Metrics) SetActiveSession(kind string) {
	if m == nil {
		return
	}
	m.sessionActive.Reset()
	if kind != "" {
		m.sessionActive.WithLabelValues(kind).Set(1)
	}
}

// RecordSignature records a signing or verification request.
func (m *Metrics) RecordSignature(sigType string, err error) {
	if m == nil {
		return
	}
	m.signatures.WithLabelValues(sigType, Outcome(err)).Inc()
}

// RecordTransaction records a transaction phase outcome.
func (m *Metrics) RecordTransaction(txType, phase string, err error) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(txType, phase, Outcome(err)).Inc()
}

// RecordRead records one guarded read attempt. Its signature matches
// chain.ReadObserver.
func (m *Metrics) RecordRead(_, op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.readLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.readErrors.WithLabelValues(op).Inc()
	}
}

// RecordCacheHit records a balance cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a balance cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// WriteText writes every collected family in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
