package jobmetrics

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by the ledger worker jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	violations  *prometheus.CounterVec
	outstanding *prometheus.GaugeVec
}

// NewMetrics registers the job collectors on registerer, or on the default
// registerer when nil. Registering twice reuses the collectors already present.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		runs: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_job_runs_total",
			Help: "Ledger job executions by job and outcome.",
		}, []string{"job", "status"})),
		duration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_ledger_job_duration_seconds",
			Help:    "Ledger job execution time.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"})),
		lastSuccess: register(registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_ledger_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"})),
		violations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_integrity_violations_total",
			Help: "Ledger integrity violations found, by kind and company.",
		}, []string{"kind", "company"})),
		outstanding: register(registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_ledger_integrity_outstanding",
			Help: "Violations found by the most recent integrity run, by kind.",
		}, []string{"kind"})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Run times one job execution.
type Run struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Start begins timing job.
func (m *Metrics) Start(job string) *Run {
	return &Run{metrics: m, job: job, start: time.Now()}
}

// Finish records the outcome and returns err unchanged.
func (r *Run) Finish(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	m := r.metrics
	m.duration.WithLabelValues(r.job).Observe(time.Since(r.start).Seconds())
	if err != nil {
		m.runs.WithLabelValues(r.job, "failure").Inc()
		return err
	}
	m.runs.WithLabelValues(r.job, "success").Inc()
	m.lastSuccess.WithLabelValues(r.job).SetToCurrentTime()
	return nil
}

// RecordViolations adds one integrity run's findings of kind, keyed by company,
// and sets the outstanding gauge to their total. An empty map clears the gauge.
func (m *Metrics) RecordViolations(kind string, byCompany map[int64]int) {
	if m == nil {
		return
	}
	companies := make([]int64, 0, len(byCompany))
	for company := range byCompany {
		companies = append(companies, company)
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i] < companies[j] })
	total := 0
	for _, company := range companies {
		n := byCompany[company]
		if n <= 0 {
			continue
		}
		total += n
		m.violations.WithLabelValues(kind, strconv.FormatInt(company, 10)).Add(float64(n))
	}
	m.outstanding.WithLabelValues(kind).Set(float64(total))
}
