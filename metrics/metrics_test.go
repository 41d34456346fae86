package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	m := NewCollector(NewRegistry())

	m.RecordReservation("reserved")
	m.RecordReservation("reserved")
	m.RecordReservation("exhausted")
	m.RecordRelease("sweep", 3)
	m.RecordRelease("sweep", 0)
	m.RecordReconciliation("completed")
	m.RecordCache(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reservationsTotal.WithLabelValues("reserved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservationsTotal.WithLabelValues("exhausted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.releasesTotal.WithLabelValues("sweep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliationsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequestsTotal.WithLabelValues("hit")))
}

func TestNilCollector(t *testing.T) {
	var m *Collector

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
		m.RecordReservation("reserved")
		m.RecordRelease("sweep", 1)
		m.RecordReconciliation("failed")
		m.RecordWebhookEvent("checkout.session.completed", "processed")
		m.RecordCache(false)
		m.RecordSweep(time.Second)
		m.RecordSweptOrder("failed")
	})
}
