package metrics

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

func TestOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), "canceled"},
		{"deadline", context.DeadlineExceeded, "deadline"},
		{"tether error", tethererr.ErrUserRejected, "user_rejected"},
		{"wrapped tether error", tethererr.WithCause(tethererr.ErrNetworkUnavailable, context.Canceled), "canceled"},
		{"plain", fmt.Errorf("boom"), "general_error"}, //nolint:err113 // Test value
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestMetrics_RecordConnect(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordConnect("relay", "interactive", nil)
	m.RecordConnect("relay", "interactive", tethererr.ErrConnectionRejected)
	m.RecordConnect("relay", "interactive", tethererr.ErrConnectionRejected)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues("relay", "interactive", "ok")), 0.001)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.connects.WithLabelValues("relay", "interactive", "connection_rejected")), 0.001)
}

func TestMetrics_SetActiveSession(t *testing.T) {
	t.Parallel()
	m := New()

	m.SetActiveSession("injected")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.sessionActive.WithLabelValues("injected")), 0.001)

	m.SetActiveSession("session")
	assert.Equal(t, 1, testutil.CollectAndCount(m.sessionActive))

	m.SetActiveSession("")
	assert.Equal(t, 0, testutil.CollectAndCount(m.sessionActive))
}

func TestMetrics_Reads(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordRead("http://wallet", "balance", 10*time.Millisecond, nil)
	m.RecordRead("http://wallet", "balance", 20*time.Millisecond, tethererr.ErrNetworkUnavailable)
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()

	assert.Equal(t, 1, testutil.CollectAndCount(m.readLatency))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.readErrors.WithLabelValues("balance")), 0.001)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")), 0.001)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordConnect("injected", "silent", nil)
		m.SetActiveSession("injected")
		m.RecordSignature("message", nil)
		m.RecordTransaction("native", "submit", nil)
		m.RecordRead("", "chain_id", time.Millisecond, nil)
		m.RecordCacheHit()
		m.RecordCacheMiss()
	})
}

func TestMetrics_WriteText(t *testing.T) {
	t.Parallel()
	m := New()
	m.RecordSignature("message", nil)
	m.RecordTransaction("native", "submit", tethererr.ErrInsufficientFunds)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, `tether_signatures_total{result="ok",type="message"} 1`)
	assert.Contains(t, out, `tether_transactions_total{phase="submit",result="insufficient_funds",type="native"} 1`)
	assert.Contains(t, out, "# TYPE tether_signatures_total counter")
}
