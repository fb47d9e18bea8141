package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/retry"
)

type recordingGate struct {
	acquired  int32
	penalties []time.Duration
}

func (g *recordingGate) Acquire(ctx context.Context) error {
	atomic.AddInt32(&g.acquired, 1)
	return ctx.Err()
}

func (g *recordingGate) Penalize(d time.Duration) { g.penalties = append(g.penalties, d) }

func noSleepPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, gate *recordingGate, attempts int) *Client {
	t.Helper()
	return New(Config{Source: domain.SourceOzon, BaseURL: srv.URL, Timeout: 5 * time.Second},
		func(r *http.Request) {
			r.Header.Set("Client-Id", "42")
			r.Header.Set("Api-Key", "secret")
		},
		gate, noSleepPolicy(attempts), nil)
}

func TestClient_CallSendsAuthAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/posting/fbs/list", r.URL.Path)
		assert.Equal(t, "42", r.Header.Get("Client-Id"))
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 100, body["limit"])

		_, _ = w.Write([]byte(`{"result":{"postings":[]}}`))
	}))
	defer srv.Close()

	gate := &recordingGate{}
	c := newTestClient(t, srv, gate, 3)

	body, err := c.Call(context.Background(), Request{Method: http.MethodPost, Path: "/v3/posting/fbs/list", Body: map[string]int{"limit": 100}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"postings":[]}}`, string(body))
	assert.EqualValues(t, 1, gate.acquired)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   domain.APIErrorKind
		calls  int32
	}{
		{status: http.StatusUnauthorized, kind: domain.KindAuth, calls: 1},
		{status: http.StatusForbidden, kind: domain.KindAuth, calls: 1},
		{status: http.StatusBadRequest, kind: domain.KindValidation, calls: 1},
		{status: http.StatusNotFound, kind: domain.KindValidation, calls: 1},
		{status: http.StatusInternalServerError, kind: domain.KindTransient, calls: 3},
		{status: http.StatusBadGateway, kind: domain.KindTransient, calls: 3},
		{status: http.StatusTooManyRequests, kind: domain.KindRateLimit, calls: 3},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			c := newTestClient(t, srv, &recordingGate{}, 3)
			_, err := c.Call(context.Background(), Request{Path: "/x"})
			require.Error(t, err)

			var apiErr *domain.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Contains(t, apiErr.Body, "nope")
			assert.Equal(t, tt.calls, atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_TransientThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	gate := &recordingGate{}
	c := newTestClient(t, srv, gate, 5)
	body, err := c.Call(context.Background(), Request{Path: "/api/v1/supplier/sales"})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.EqualValues(t, 3, gate.acquired, "every attempt must pass through the limiter")
}

func TestClient_RateLimitPenalizesGate(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("X-Ratelimit-Retry", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	gate := &recordingGate{}
	c := newTestClient(t, srv, gate, 3)
	_, err := c.Call(context.Background(), Request{Path: "/api/v5/supplier/reportDetailByPeriod"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, gate.penalties)
}

func TestClient_InsecureSkipVerifyIsPerSource(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	strict := New(Config{Source: domain.SourceOzon, BaseURL: srv.URL}, nil, &recordingGate{}, noSleepPolicy(1), nil)
	lax := New(Config{Source: domain.SourceWB, BaseURL: srv.URL, InsecureSkipVerify: true}, nil, &recordingGate{}, noSleepPolicy(1), nil)

	_, err := strict.Call(context.Background(), Request{Path: "/"})
	require.Error(t, err, "self-signed certificate must be rejected without the per-source opt-in")

	body, err := lax.Call(context.Background(), Request{Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestClient_FetchBadEnvelopeIsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &recordingGate{}, 3)
	_, err := c.Fetch(context.Background(), Request{Path: "/x"}, func(b []byte) (domain.RawPage, error) {
		var recs []json.RawMessage
		if err := json.Unmarshal(b, &recs); err != nil {
			return domain.RawPage{}, err
		}
		return domain.RawPage{Records: recs}, nil
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	h := http.Header{}
	h.Set("Retry-After", "30")
	assert.Equal(t, 30*time.Second, retryAfter(h, now))

	h = http.Header{}
	h.Set("Retry-After", now.Add(2*time.Minute).Format(http.TimeFormat))
	assert.Equal(t, 2*time.Minute, retryAfter(h, now))

	assert.Zero(t, retryAfter(http.Header{}, now))
}

func TestClient_InFlightRequestSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"done":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &recordingGate{}, 1)
	body, err := c.Call(ctx, Request{Path: "/x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"done":true}`, string(body))

	_, err = c.Call(ctx, Request{Path: "/x"})
	require.Error(t, err)
}
