package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RedemptionStarted()
	m.RedemptionRejected("exhausted")
	m.RedemptionRejected("exhausted")
	m.RedemptionFinished("partially_completed")
	m.StepSubmitted("click", "valid")
	m.VendorCall("plex", "create_account", "ok", 20*time.Millisecond)
	m.SweepAction("disabled")
	m.SweepFinished(time.Second)

	assert.InDelta(t, 1, testutil.ToFloat64(m.redemptionsStarted), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.redemptionsRejected.WithLabelValues("exhausted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.redemptionOutcomes.WithLabelValues("partially_completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.vendorCalls.WithLabelValues("plex", "create_account", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sweepActions.WithLabelValues("disabled")), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RedemptionStarted()
		m.RedemptionRejected("expired")
		m.VendorCall("jellyfin", "delete_account", "timeout", time.Second)
		m.SweepFinished(time.Second)
	})
}
