package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the notification service.
type Metrics struct {
	// Dispatch metrics
	NotificationsCreated *prometheus.CounterVec
	EmailsSent           *prometheus.CounterVec
	DispatchDuration     *prometheus.HistogramVec

	// Tracking metrics
	TrackingEvents   *prometheus.CounterVec
	TrackingFailures *prometheus.CounterVec

	// Analytics metrics
	AnalyticsCache    *prometheus.CounterVec
	AnalyticsDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests  *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec

	// Geo metrics
	GeoLookupLatency *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		NotificationsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_created_total",
				Help:      "Notification rows created",
			},
			[]string{"audience"},
		),
		EmailsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_sent_total",
				Help:      "Notification emails handed to the mail transport",
			},
			[]string{"status"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time to create and deliver one dispatch",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"audience"},
		),
		TrackingEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracking_events_total",
				Help:      "Engagement events recorded",
			},
			[]string{"type"},
		),
		TrackingFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracking_failures_total",
				Help:      "Best-effort tracking writes that failed and were swallowed",
			},
			[]string{"op"},
		),
		AnalyticsCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analytics_cache_total",
				Help:      "Analytics cache lookups",
			},
			[]string{"report", "result"},
		),
		AnalyticsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analytics_query_duration_seconds",
				Help:      "Analytics report build latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"report"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by rate limiting",
			},
			[]string{"limiter"},
		),
		GeoLookupLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "geo_lookup_latency_seconds",
				Help:      "GeoIP lookup latency",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01},
			},
			[]string{"cache_hit"},
		),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler returns the Prometheus HTTP handler for the registry m was built on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordNotificationsCreated(audience string, n int) {
	m.NotificationsCreated.WithLabelValues(audience).Add(float64(n))
}

func (m *Metrics) RecordEmail(ok bool) {
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.EmailsSent.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordDispatch(audience string, d time.Duration) {
	m.DispatchDuration.WithLabelValues(audience).Observe(d.Seconds())
}

func (m *Metrics) RecordTrackingEvent(eventType string) {
	m.TrackingEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordTrackingFailure(op string) {
	m.TrackingFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordCache(report string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.AnalyticsCache.WithLabelValues(report, result).Inc()
}

func (m *Metrics) RecordAnalytics(report string, d time.Duration) {
	m.AnalyticsDuration.WithLabelValues(report).Observe(d.Seconds())
}

func (m *Metrics) RecordRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) RecordRateLimitHit(limiter string) {
	m.RateLimitHits.WithLabelValues(limiter).Inc()
}

func (m *Metrics) RecordGeoLookup(cacheHit bool, latency time.Duration) {
	m.GeoLookupLatency.WithLabelValues(strconv.FormatBool(cacheHit)).Observe(latency.Seconds())
}
