// Package metrics collects per-run import metrics in a private Prometheus
// registry and pushes them to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/alanyoungcy/mpimport/internal/pipeline"
)

// DefaultJob is the Pushgateway job name.
const DefaultJob = "mpimport"

// Registry holds the importer's collectors.
type Registry struct {
	reg *prometheus.Registry

	Runs        *prometheus.CounterVec
	Records     *prometheus.CounterVec
	Skipped     *prometheus.CounterVec
	Rows        *prometheus.CounterVec
	RawEvents   *prometheus.CounterVec
	APIRetries  *prometheus.CounterVec
	Duration    *prometheus.GaugeVec
	LastSuccess *prometheus.GaugeVec
	Truncations *prometheus.CounterVec
}

// NewRegistry creates a Registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpimport_runs_total",
			Help: "Import runs by source and final state.",
		}, []string{"source", "state"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpimport_records_total",
			Help: "Raw marketplace records fetched.",
		}, []string{"source"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpimport_records_skipped_total",
			Help: "Records that failed normalization, by dataset.",
		}, []string{"source", "dataset"}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpimport_rows_written_total",
			Help: "Warehouse rows inserted or updated.",
		}, []string{"source", "table", "op"}),
		RawEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpimport_raw_events_total",
			Help: "raw_events appends by outcome.",
		}, []string{"source", "outcome"}),
		APIRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpimport_api_retries_total",
			Help: "Marketplace API calls retried.",
		}, []string{"source"}),
		Duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpimport_run_duration_seconds",
			Help: "Wall time of the last run.",
		}, []string{"source"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpimport_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.",
		}, []string{"source"}),
		Truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpimport_truncated_datasets_total",
			Help: "Datasets that stopped at the offset ceiling.",
		}, []string{"source", "dataset"}),
	}
	r.reg.MustRegister(r.Runs, r.Records, r.Skipped, r.Rows, r.RawEvents,
		r.APIRetries, r.Duration, r.LastSuccess, r.Truncations)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// RetryObserver returns a hook for retry.Policy.OnRetry counting retries of
// source's API calls.
func (r *Registry) RetryObserver(source string) func(attempt int, delay time.Duration, err error) {
	c := r.APIRetries.WithLabelValues(source)
	return func(int, time.Duration, error) { c.Inc() }
}

// Observe folds a finished run into the collectors.
func (r *Registry) Observe(s *pipeline.Summary) {
	src := string(s.Source)
	r.Runs.WithLabelValues(src, string(s.State)).Inc()
	r.Records.WithLabelValues(src).Add(float64(s.Records))
	for dataset, n := range s.SkipReasons {
		r.Skipped.WithLabelValues(src, dataset).Add(float64(n))
	}

	for table, res := range map[string]struct{ ins, upd int }{
		"fact_orders":       {s.Orders.Inserted, s.Orders.Updated},
		"fact_transactions": {s.Transactions.Inserted, s.Transactions.Updated},
		"dim_products":      {s.Products.Inserted, s.Products.Updated},
	} {
		if res.ins > 0 {
			r.Rows.WithLabelValues(src, table, "insert").Add(float64(res.ins))
		}
		if res.upd > 0 {
			r.Rows.WithLabelValues(src, table, "update").Add(float64(res.upd))
		}
	}

	r.RawEvents.WithLabelValues(src, "recorded").Add(float64(s.RawRecorded))
	r.RawEvents.WithLabelValues(src, "failed").Add(float64(s.RawFailed))
	for _, dataset := range s.Truncated {
		r.Truncations.WithLabelValues(src, dataset).Inc()
	}

	if !s.Finished.IsZero() {
		r.Duration.WithLabelValues(src).Set(s.Finished.Sub(s.Started).Seconds())
		if s.Err == nil {
			r.LastSuccess.WithLabelValues(src).Set(float64(s.Finished.Unix()))
		}
	}
}

// Push sends the registry to a Pushgateway, replacing the job's previous
// metrics. instance distinguishes clients sharing one gateway.
func (r *Registry) Push(ctx context.Context, url, job, instance string) error {
	if job == "" {
		job = DefaultJob
	}
	p := push.New(url, job).Gatherer(r.reg)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
