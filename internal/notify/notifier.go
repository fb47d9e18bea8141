// Package notify sends a short run report to chat channels (Telegram,
// Discord) when an import fails or comes back incomplete. Operators choose
// which outcomes they want with an event list.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/mpimport/internal/pipeline"
)

// Run outcome events.
const (
	EventImportFailed    = "import_failed"
	EventImportTruncated = "import_truncated"
	EventImportSkipped   = "import_skipped_records"
	EventImportDone      = "import_done"
)

// DefaultEvents are the outcomes reported when none are configured.
var DefaultEvents = []string{EventImportFailed, EventImportTruncated}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches run reports to every Sender whose event is allowed.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list means DefaultEvents.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if len(events) == 0 {
		events = DefaultEvents
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Event classifies a finished run. A failure outranks truncation, which
// outranks skipped records.
func Event(s *pipeline.Summary) string {
	switch {
	case s.Err != nil:
		return EventImportFailed
	case len(s.Truncated) > 0:
		return EventImportTruncated
	case s.Skipped > 0:
		return EventImportSkipped
	default:
		return EventImportDone
	}
}

// Report sends the summary of one run if its event is allowed.
func (n *Notifier) Report(ctx context.Context, s *pipeline.Summary) error {
	event := Event(s)
	if len(n.senders) == 0 || !n.events[event] {
		return nil
	}
	title, message := format(event, s)
	return n.dispatch(ctx, title, message)
}

func format(event string, s *pipeline.Summary) (title, message string) {
	title = fmt.Sprintf("mpimport %s/%s: %s", s.Source, s.Client, strings.TrimPrefix(event, "import_"))

	var b strings.Builder
	fmt.Fprintf(&b, "window %s, scope %s\n", s.Window, s.Scope)
	fmt.Fprintf(&b, "pages %d, records %d, skipped %d, written %d\n",
		s.Pages, s.Records, s.Skipped, s.Written().Total())
	if len(s.Truncated) > 0 {
		fmt.Fprintf(&b, "stopped at the offset ceiling: %s\n", strings.Join(s.Truncated, ", "))
	}
	if s.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", s.Err)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// dispatch sends to every sender. One sender failing does not stop the
// others; the failures are returned together.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
