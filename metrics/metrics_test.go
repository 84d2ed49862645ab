package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCall(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCall("API_DoQuery", 10*time.Millisecond, nil)
	m.ObserveCall("API_DoQuery", 5*time.Millisecond, errors.New("boom"))
	m.ObserveCall("API_DoQuery", time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemoteCalls.WithLabelValues("API_DoQuery", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteCalls.WithLabelValues("API_DoQuery", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RemoteCallDuration))
}

func TestPlannedSubcall(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PlannedSubcall(KindCSVImport)
	m.PlannedSubcall(KindAddRecord)
	m.PlannedSubcall(KindAddRecord)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlannedSubcalls.WithLabelValues(KindCSVImport)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PlannedSubcalls.WithLabelValues(KindAddRecord)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCall("API_DoQuery", time.Second, nil)
		m.PlannedSubcall(KindRangePurge)
	})
}
