package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, registry *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestRunRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	require.NoError(t, m.Start("ledger:integrity").Finish(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Start("ledger:integrity").Finish(boom), boom)

	body := scrape(t, registry)
	require.Contains(t, body, `odyssey_ledger_job_runs_total{job="ledger:integrity",status="success"} 1`)
	require.Contains(t, body, `odyssey_ledger_job_runs_total{job="ledger:integrity",status="failure"} 1`)
	require.Contains(t, body, `odyssey_ledger_job_duration_seconds_count{job="ledger:integrity"} 2`)
	require.Contains(t, body, `odyssey_ledger_job_last_success_timestamp_seconds{job="ledger:integrity"}`)
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewMetrics(registry)
	second := NewMetrics(registry)

	first.RecordViolations("layer_drift", map[int64]int{1: 1})
	second.RecordViolations("unbalanced_journal", map[int64]int{1: 1})

	body := scrape(t, registry)
	require.Contains(t, body, `odyssey_ledger_integrity_violations_total{company="1",kind="layer_drift"} 1`)
	require.Contains(t, body, `odyssey_ledger_integrity_violations_total{company="1",kind="unbalanced_journal"} 1`)
}

func TestRecordViolationsTracksOutstanding(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordViolations("unbalanced_journal", map[int64]int{3: 2, 4: 1})
	m.RecordViolations("layer_drift", map[int64]int{0: 1})
	body := scrape(t, registry)
	require.Contains(t, body, `odyssey_ledger_integrity_violations_total{company="3",kind="unbalanced_journal"} 2`)
	require.Contains(t, body, `odyssey_ledger_integrity_violations_total{company="0",kind="layer_drift"} 1`)
	require.Contains(t, body, `odyssey_ledger_integrity_outstanding{kind="unbalanced_journal"} 3`)

	m.RecordViolations("unbalanced_journal", nil)
	body = scrape(t, registry)
	require.Contains(t, body, `odyssey_ledger_integrity_outstanding{kind="unbalanced_journal"} 0`)
	require.Contains(t, body, `odyssey_ledger_integrity_violations_total{company="3",kind="unbalanced_journal"} 2`)

	var nilMetrics *Metrics
	nilMetrics.RecordViolations("layer_drift", map[int64]int{1: 1})
	require.NoError(t, nilMetrics.Start("x").Finish(nil))
}
