package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/pipeline"
)

type recordingSender struct {
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return "rec" }

func summary() *pipeline.Summary {
	return &pipeline.Summary{Source: domain.SourceWB, Client: "acme", SkipReasons: map[string]int{}}
}

func TestEvent(t *testing.T) {
	s := summary()
	assert.Equal(t, EventImportDone, Event(s))
	s.Skipped = 2
	assert.Equal(t, EventImportSkipped, Event(s))
	s.Truncated = []string{"fbs_postings"}
	assert.Equal(t, EventImportTruncated, Event(s))
	s.Err = errors.New("boom")
	assert.Equal(t, EventImportFailed, Event(s))
}

func TestNotifier_DefaultEvents(t *testing.T) {
	rec := &recordingSender{}
	n := NewNotifier([]Sender{rec}, nil, nil)

	require.NoError(t, n.Report(context.Background(), summary()))
	assert.Empty(t, rec.titles, "clean runs are quiet by default")

	failed := summary()
	failed.Err = errors.New("wb /api/v1/supplier/sales: auth (HTTP 401)")
	require.NoError(t, n.Report(context.Background(), failed))
	assert.Equal(t, []string{"mpimport wb/acme: failed"}, rec.titles)
}

func TestNotifier_SenderFailure(t *testing.T) {
	bad := &recordingSender{err: errors.New("down")}
	good := &recordingSender{}
	n := NewNotifier([]Sender{bad, good}, []string{EventImportDone}, nil)

	err := n.Report(context.Background(), summary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.titles, 1)
}

func TestFormat(t *testing.T) {
	s := summary()
	s.Pages, s.Records = 3, 250
	s.Truncated = []string{"fbs_postings"}
	title, msg := format(EventImportTruncated, s)
	assert.Equal(t, "mpimport wb/acme: truncated", title)
	assert.Contains(t, msg, "pages 3, records 250")
	assert.Contains(t, msg, "stopped at the offset ceiling: fbs_postings")
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "TOKEN", "-100")
	require.NoError(t, s.Send(context.Background(), "title", "body"))
	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, "-100", got["chat_id"])
	assert.Equal(t, "*title*\nbody", got["text"])
}

func TestDiscordSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"retry_after":1}`))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
}
