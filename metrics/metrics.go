// Package metrics exposes Prometheus collectors for remote calls and for
// the sub-calls the batch planner fans out.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sub-call kinds recorded by PlannedSubcall.
const (
	KindCSVImport    = "csv_import"
	KindAddRecord    = "add_record"
	KindEditRecord   = "edit_record"
	KindRangePurge   = "range_purge"
	KindGroupPurge   = "group_purge"
	KindDeleteRecord = "delete_record"
)

// Metrics holds the driver's collectors. A nil *Metrics records nothing.
type Metrics struct {
	// RemoteCalls counts remote calls by action and outcome.
	RemoteCalls *prometheus.CounterVec
	// RemoteCallDuration is the latency of remote calls.
	RemoteCallDuration *prometheus.HistogramVec
	// PlannedSubcalls counts the sub-calls chosen by the batch planner.
	PlannedSubcalls *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RemoteCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qbdriver_remote_calls_total",
				Help: "Total number of remote action calls",
			},
			[]string{"action", "status"},
		),
		RemoteCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qbdriver_remote_call_duration_seconds",
				Help:    "Remote action call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		PlannedSubcalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qbdriver_planned_subcalls_total",
				Help: "Total number of sub-calls issued by the batch planner",
			},
			[]string{"kind"},
		),
	}
}

// ObserveCall records one finished remote call.
func (m *Metrics) ObserveCall(action string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RemoteCalls.WithLabelValues(action, status).Inc()
	m.RemoteCallDuration.WithLabelValues(action).Observe(d.Seconds())
}

// PlannedSubcall records one sub-call of the given kind.
func (m *Metrics) PlannedSubcall(kind string) {
	if m == nil {
		return
	}
	m.PlannedSubcalls.WithLabelValues(kind).Inc()
}
