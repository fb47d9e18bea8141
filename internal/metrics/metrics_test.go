package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/pipeline"
)

func finishedSummary() *pipeline.Summary {
	start := time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC)
	return &pipeline.Summary{
		Source:       domain.SourceOzon,
		State:        pipeline.StateDone,
		Started:      start,
		Finished:     start.Add(90 * time.Second),
		Records:      120,
		Skipped:      3,
		SkipReasons:  map[string]int{"finance": 3},
		Orders:       domain.WriteResult{Inserted: 80, Updated: 20},
		Transactions: domain.WriteResult{Inserted: 15},
		RawRecorded:  4,
		RawFailed:    1,
		Truncated:    []string{"fbs_postings"},
	}
}

func TestRegistry_Observe(t *testing.T) {
	r := NewRegistry()
	r.Observe(finishedSummary())

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("ozon", "done")))
	assert.Equal(t, 120.0, testutil.ToFloat64(r.Records.WithLabelValues("ozon")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Skipped.WithLabelValues("ozon", "finance")))
	assert.Equal(t, 80.0, testutil.ToFloat64(r.Rows.WithLabelValues("ozon", "fact_orders", "insert")))
	assert.Equal(t, 20.0, testutil.ToFloat64(r.Rows.WithLabelValues("ozon", "fact_orders", "update")))
	assert.Equal(t, 15.0, testutil.ToFloat64(r.Rows.WithLabelValues("ozon", "fact_transactions", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RawEvents.WithLabelValues("ozon", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Truncations.WithLabelValues("ozon", "fbs_postings")))
	assert.Equal(t, 90.0, testutil.ToFloat64(r.Duration.WithLabelValues("ozon")))
	assert.Equal(t, float64(finishedSummary().Finished.Unix()), testutil.ToFloat64(r.LastSuccess.WithLabelValues("ozon")))
}

func TestRegistry_FailedRunKeepsLastSuccess(t *testing.T) {
	r := NewRegistry()
	s := finishedSummary()
	s.State = pipeline.StateFailed
	s.Err = errors.New("boom")
	r.Observe(s)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("ozon", "failed")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.LastSuccess))
}

func TestRegistry_RetryObserver(t *testing.T) {
	r := NewRegistry()
	hook := r.RetryObserver("wb")
	hook(1, time.Second, errors.New("429"))
	hook(2, 2*time.Second, errors.New("429"))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.APIRetries.WithLabelValues("wb")))
}

func TestRegistry_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRegistry()
	r.Observe(finishedSummary())
	require.NoError(t, r.Push(context.Background(), srv.URL, "", "acme"))

	assert.Equal(t, "/metrics/job/mpimport/instance/acme", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestRegistry_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewRegistry().Push(context.Background(), srv.URL, "mpimport", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: push")
}
