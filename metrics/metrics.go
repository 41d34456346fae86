package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "checkout"

// Collector holds the service's prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	reservationsTotal    *prometheus.CounterVec
	releasesTotal        *prometheus.CounterVec
	reconciliationsTotal *prometheus.CounterVec
	webhookEventsTotal   *prometheus.CounterVec
	cacheRequestsTotal   *prometheus.CounterVec

	sweepDuration prometheus.Histogram
	sweptOrders   *prometheus.CounterVec
}

// NewRegistry returns a registry carrying the go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewCollector(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		reservationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "code_reservations_total",
				Help:      "Coupon code reservation attempts by result",
			},
			[]string{"result"},
		),
		releasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "code_releases_total",
				Help:      "Coupon codes returned to the pool by reason",
			},
			[]string{"reason"},
		),
		reconciliationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Order reconciliations by outcome",
			},
			[]string{"outcome"},
		),
		webhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Gateway webhook events by type and result",
			},
			[]string{"type", "result"},
		),
		cacheRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coupon_cache_requests_total",
				Help:      "Coupon cache lookups by result",
			},
			[]string{"result"},
		),
		sweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of reservation sweeps",
				Buckets:   prometheus.DefBuckets,
			},
		),
		sweptOrders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "swept_orders_total",
				Help:      "Stale pending orders handled by the sweeper by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Collector) RecordReservation(result string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(result).Inc()
}

func (m *Collector) RecordRelease(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.releasesTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Collector) RecordReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.reconciliationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Collector) RecordWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

func (m *Collector) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequestsTotal.WithLabelValues(result).Inc()
}

func (m *Collector) RecordSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

func (m *Collector) RecordSweptOrder(outcome string) {
	if m == nil {
		return
	}
	m.sweptOrders.WithLabelValues(outcome).Inc()
}
