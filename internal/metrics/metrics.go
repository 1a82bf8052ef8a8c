package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dashboard's Prometheus collectors
type Metrics struct {
	registry         *prometheus.Registry
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	readingsIngested *prometheus.CounterVec
	activeAlarms     *prometheus.GaugeVec
	alarmScans       *prometheus.CounterVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meter_dashboard_http_requests_total",
			Help: "Total count of HTTP requests processed by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meter_dashboard_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		readingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meter_dashboard_readings_ingested_total",
			Help: "Readings received from the ingest queue by result.",
		}, []string{"result"}),
		activeAlarms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meter_dashboard_active_alarms",
			Help: "Meters flagged by the last alarm scan, by alarm kind.",
		}, []string{"kind"}),
		alarmScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meter_dashboard_alarm_scans_total",
			Help: "Alarm scans run by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.readingsIngested,
		m.activeAlarms,
		m.alarmScans,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records count and latency for requests served by next under route
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// ObserveIngest counts the readings of one ingest message
func (m *Metrics) ObserveIngest(accepted, rejected int) {
	if m == nil {
		return
	}
	m.readingsIngested.WithLabelValues("accepted").Add(float64(accepted))
	m.readingsIngested.WithLabelValues("rejected").Add(float64(rejected))
}

// SetActiveAlarms records how many meters an alarm kind flagged
func (m *Metrics) SetActiveAlarms(kind string, count int) {
	if m == nil {
		return
	}
	m.activeAlarms.WithLabelValues(kind).Set(float64(count))
}

// AlarmScan counts one scanner pass
func (m *Metrics) AlarmScan(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.alarmScans.WithLabelValues(outcome).Inc()
}
