// Package metrics exposes Prometheus instrumentation for redemptions, vendor
// calls and expiration sweeps.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "invitarr"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	redemptionsStarted  prometheus.Counter
	redemptionsRejected *prometheus.CounterVec
	redemptionOutcomes  *prometheus.CounterVec
	stepSubmissions     *prometheus.CounterVec
	vendorCalls         *prometheus.CounterVec
	vendorCallDuration  *prometheus.HistogramVec
	sweepActions        *prometheus.CounterVec
	sweepDuration       prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		redemptionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redemption",
			Name:      "started_total",
			Help:      "Redemptions that passed initial invitation validation.",
		}),
		redemptionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redemption",
			Name:      "rejected_total",
			Help:      "Redemption attempts rejected, by reason.",
		}, []string{"reason"}),
		redemptionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redemption",
			Name:      "outcomes_total",
			Help:      "Finished provisioning runs, by overall state.",
		}, []string{"state"}),
		stepSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redemption",
			Name:      "step_submissions_total",
			Help:      "Wizard step submissions, by interaction type and result.",
		}, []string{"interaction_type", "result"}),
		vendorCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vendor",
			Name:      "calls_total",
			Help:      "Vendor API operations, by vendor, operation and error kind (ok on success).",
		}, []string{"vendor", "op", "result"}),
		vendorCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vendor",
			Name:      "call_duration_seconds",
			Help:      "Vendor API operation latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"vendor", "op"}),
		sweepActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "actions_total",
			Help:      "Expired accounts handled by the sweeper, by action.",
		}, []string{"action"}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "run_duration_seconds",
			Help:      "Duration of one sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// RedemptionStarted counts a redemption that passed validation.
func (m *Metrics) RedemptionStarted() {
	if m == nil {
		return
	}
	m.redemptionsStarted.Inc()
}

// RedemptionRejected counts a rejected redemption attempt.
func (m *Metrics) RedemptionRejected(reason string) {
	if m == nil {
		return
	}
	m.redemptionsRejected.WithLabelValues(reason).Inc()
}

// RedemptionFinished counts a finished provisioning run.
func (m *Metrics) RedemptionFinished(state string) {
	if m == nil {
		return
	}
	m.redemptionOutcomes.WithLabelValues(state).Inc()
}

// StepSubmitted counts a step submission. result is valid, invalid, pending or duplicate.
func (m *Metrics) StepSubmitted(interactionType, result string) {
	if m == nil {
		return
	}
	m.stepSubmissions.WithLabelValues(interactionType, result).Inc()
}

// VendorCall records one vendor operation.
func (m *Metrics) VendorCall(vendor, op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.vendorCalls.WithLabelValues(vendor, op, result).Inc()
	m.vendorCallDuration.WithLabelValues(vendor, op).Observe(elapsed.Seconds())
}

// SweepAction counts an action taken on an expired account.
func (m *Metrics) SweepAction(action string) {
	if m == nil {
		return
	}
	m.sweepActions.WithLabelValues(action).Inc()
}

// SweepFinished records the duration of a sweep.
func (m *Metrics) SweepFinished(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(elapsed.Seconds())
}
