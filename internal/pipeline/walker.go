package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// Walker yields the pages of one endpoint in order. Next returns ok=false
// once the stream is exhausted; a walker is single-use.
type Walker interface {
	Next(ctx context.Context) (page domain.RawPage, ok bool, err error)
	// Position is the token the next request would carry, for logs.
	Position() string
	Pages() int
	// Truncated reports that the walker stopped at a configured ceiling
	// while more data may have been available.
	Truncated() bool
}

// OffsetFetchFunc requests limit records starting at offset.
type OffsetFetchFunc func(ctx context.Context, offset, limit int) (domain.RawPage, error)

// OffsetWalker pages an offset/limit endpoint. It stops on the first page
// shorter than the page size or when the offset reaches the ceiling.
type OffsetWalker struct {
	fetch     OffsetFetchFunc
	pageSize  int
	ceiling   int
	offset    int
	pages     int
	done      bool
	truncated bool
}

// NewOffsetWalker creates an OffsetWalker. A ceiling <= 0 disables the cap.
func NewOffsetWalker(fetch OffsetFetchFunc, pageSize, ceiling int) *OffsetWalker {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &OffsetWalker{fetch: fetch, pageSize: pageSize, ceiling: ceiling}
}

// Next implements Walker.
func (w *OffsetWalker) Next(ctx context.Context) (domain.RawPage, bool, error) {
	if w.done {
		return domain.RawPage{}, false, nil
	}
	if w.ceiling > 0 && w.offset >= w.ceiling {
		w.done = true
		w.truncated = true
		return domain.RawPage{}, false, nil
	}

	page, err := w.fetch(ctx, w.offset, w.pageSize)
	if err != nil {
		return domain.RawPage{}, false, fmt.Errorf("offset %d: %w", w.offset, err)
	}
	w.pages++
	w.offset += w.pageSize

	if page.Len() < w.pageSize {
		w.done = true
	}
	if page.Len() == 0 {
		return domain.RawPage{}, false, nil
	}
	return page, true, nil
}

// Position implements Walker.
func (w *OffsetWalker) Position() string { return strconv.Itoa(w.offset) }

// Pages implements Walker.
func (w *OffsetWalker) Pages() int { return w.pages }

// Truncated implements Walker.
func (w *OffsetWalker) Truncated() bool { return w.truncated }

// CursorFetchFunc requests the page following cursor. The returned page
// carries the cursor for the request after it.
type CursorFetchFunc func(ctx context.Context, cursor string) (domain.RawPage, error)

// CursorWalker pages an endpoint whose responses echo a continuation token.
// It stops on an empty or short page. A full page that hands back the
// cursor it was requested with fails with domain.ErrCursorStalled instead
// of looping.
type CursorWalker struct {
	fetch    CursorFetchFunc
	pageSize int
	cursor   string
	pages    int
	done     bool
}

// NewCursorWalker creates a CursorWalker starting from start.
func NewCursorWalker(fetch CursorFetchFunc, start string, pageSize int) *CursorWalker {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &CursorWalker{fetch: fetch, pageSize: pageSize, cursor: start}
}

// Next implements Walker.
func (w *CursorWalker) Next(ctx context.Context) (domain.RawPage, bool, error) {
	if w.done {
		return domain.RawPage{}, false, nil
	}

	page, err := w.fetch(ctx, w.cursor)
	if err != nil {
		return domain.RawPage{}, false, fmt.Errorf("cursor %q: %w", w.cursor, err)
	}
	w.pages++

	switch {
	case page.Len() == 0:
		w.done = true
		return domain.RawPage{}, false, nil
	case page.Len() < w.pageSize:
		w.done = true
	case page.Cursor == "" || page.Cursor == w.cursor:
		w.done = true
		return domain.RawPage{}, false, fmt.Errorf("%w: cursor %q after %d records", domain.ErrCursorStalled, w.cursor, page.Len())
	}

	if page.Cursor != "" {
		w.cursor = page.Cursor
	}
	return page, true, nil
}

// Position implements Walker.
func (w *CursorWalker) Position() string { return w.cursor }

// Pages implements Walker.
func (w *CursorWalker) Pages() int { return w.pages }

// Truncated implements Walker. Cursor walkers have no ceiling.
func (w *CursorWalker) Truncated() bool { return false }
