package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// Recorder appends verbatim API pages to raw_events and, when a mirror is
// configured, copies them to blob storage. Both are best-effort: callers
// count failures but keep importing.
type Recorder struct {
	store  domain.RawEventStore
	mirror domain.BlobWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. mirror may be nil.
func NewRecorder(store domain.RawEventStore, mirror domain.BlobWriter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		mirror: mirror,
		logger: logger.With(slog.String("component", "raw_recorder")),
		now:    time.Now,
	}
}

// Record stores payload under eventType and returns the raw_events id.
func (r *Recorder) Record(ctx context.Context, eventType string, payload json.RawMessage, attr domain.Attribution) (int64, error) {
	now := r.now().UTC()
	id, err := r.store.Append(ctx, domain.RawEvent{
		EventType: eventType,
		Payload:   payload,
		SourceID:  attr.SourceID,
		ClientID:  attr.ClientID,
		CreatedAt: now,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "raw event not recorded",
			slog.String("source", string(attr.Source)),
			slog.String("event_type", eventType),
			slog.Int("bytes", len(payload)),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("pipeline: record raw event: %w", err)
	}

	if r.mirror != nil {
		key := MirrorKey(attr.Source, eventType, now, uuid.NewString())
		if err := r.mirror.Put(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
			r.logger.WarnContext(ctx, "raw event mirror failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return id, nil
}

// MirrorKey is the object path of a mirrored payload:
// raw/<source>/<event_type>/<yyyy-mm-dd>/<name>.json.
func MirrorKey(source domain.SourceCode, eventType string, at time.Time, name string) string {
	return path.Join("raw", string(source), eventType, at.UTC().Format(domain.DateLayout), name+".json")
}
