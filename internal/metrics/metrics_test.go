package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/septivank/meter-dashboard/internal/metrics"
	"github.com/stretchr/testify/require"
)

func TestWrapHandlerRecordsStatus(t *testing.T) {
	m := metrics.New()
	h := m.WrapHandler("/api/meters", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/meters", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	expected := `
# HELP meter_dashboard_http_requests_total Total count of HTTP requests processed by route, method and status.
# TYPE meter_dashboard_http_requests_total counter
meter_dashboard_http_requests_total{method="GET",route="/api/meters",status="418"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "meter_dashboard_http_requests_total"))
}

func TestObserveIngestAndAlarms(t *testing.T) {
	m := metrics.New()
	m.ObserveIngest(3, 1)
	m.ObserveIngest(2, 0)
	m.SetActiveAlarms("daily-no-data", 4)
	m.AlarmScan(true)

	expected := `
# HELP meter_dashboard_readings_ingested_total Readings received from the ingest queue by result.
# TYPE meter_dashboard_readings_ingested_total counter
meter_dashboard_readings_ingested_total{result="accepted"} 5
meter_dashboard_readings_ingested_total{result="rejected"} 1
# HELP meter_dashboard_active_alarms Meters flagged by the last alarm scan, by alarm kind.
# TYPE meter_dashboard_active_alarms gauge
meter_dashboard_active_alarms{kind="daily-no-data"} 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"meter_dashboard_readings_ingested_total", "meter_dashboard_active_alarms"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveIngest(1, 1)
	m.SetActiveAlarms("over-consumption", 1)
	m.AlarmScan(false)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := metrics.New()
	m.AlarmScan(false)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `meter_dashboard_alarm_scans_total{outcome="error"} 1`)
}
