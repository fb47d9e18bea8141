package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// RawEventStore implements domain.RawEventStore. Rows are only ever
// appended.
type RawEventStore struct {
	pool *pgxpool.Pool
}

// NewRawEventStore creates a new RawEventStore backed by the given pool.
func NewRawEventStore(pool *pgxpool.Pool) *RawEventStore {
	return &RawEventStore{pool: pool}
}

// Append stores one verbatim page. The payload is kept as JSONB.
func (s *RawEventStore) Append(ctx context.Context, ev domain.RawEvent) (int64, error) {
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	const query = `
		INSERT INTO raw_events (event_type, payload, source_id, client_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, query, ev.EventType, payload, ev.SourceID, ev.ClientID, ev.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: append raw event %s: %w", ev.EventType, err)
	}
	return id, nil
}

// List returns the newest raw events of one type for a source, newest
// first. limit <= 0 returns everything.
func (s *RawEventStore) List(ctx context.Context, sourceID int64, eventType string, limit int) ([]domain.RawEvent, error) {
	query := `
		SELECT id, event_type, payload, source_id, client_id, created_at
		FROM raw_events
		WHERE source_id = $1 AND event_type = $2
		ORDER BY id DESC`
	args := []any{sourceID, eventType}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list raw events: %w", err)
	}
	defer rows.Close()

	var events []domain.RawEvent
	for rows.Next() {
		var ev domain.RawEvent
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.EventType, &payload, &ev.SourceID, &ev.ClientID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan raw event: %w", err)
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list raw events rows: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.RawEventStore = (*RawEventStore)(nil)
