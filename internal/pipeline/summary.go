package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// State is a step of the per-source import state machine.
type State string

const (
	StateIdle        State = "idle"
	StateWindowing   State = "windowing"
	StateFetching    State = "fetching"
	StateWriting     State = "writing"
	StateSummarizing State = "summarizing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// maxSkipSamples bounds how many skip messages a summary keeps verbatim.
const maxSkipSamples = 10

// Summary is the operator-facing account of one source run. It is filled in
// even when the run fails, so partial imports stay auditable.
type Summary struct {
	Source   domain.SourceCode
	Client   string
	Window   domain.Window
	Scope    Scope
	State    State
	Started  time.Time
	Finished time.Time

	Pages      int
	Records    int
	Normalized int
	Skipped    int
	// SkipReasons counts skipped records per dataset.
	SkipReasons map[string]int
	SkipSamples []string

	Orders       domain.WriteResult
	Transactions domain.WriteResult
	Products     domain.WriteResult

	RawRecorded int
	RawFailed   int

	// Truncated names datasets that stopped at the offset ceiling.
	Truncated []string

	Err error
}

func newSummary(plan Plan, started time.Time) *Summary {
	return &Summary{
		Source:      plan.Source,
		Client:      plan.Client,
		Scope:       plan.Scope,
		State:       StateIdle,
		Started:     started,
		SkipReasons: map[string]int{},
	}
}

// FailedSummary describes a plan that failed before any page was fetched,
// such as one whose source has no credentials.
func FailedSummary(plan Plan, now time.Time, err error) *Summary {
	s := newSummary(plan, now)
	if w, werr := plan.Window(now); werr == nil {
		s.Window = w
	}
	s.State = StateFailed
	s.Finished = now
	s.Err = err
	return s
}

func (s *Summary) skip(dataset string, err error) {
	s.Skipped++
	s.SkipReasons[dataset]++
	if len(s.SkipSamples) < maxSkipSamples {
		s.SkipSamples = append(s.SkipSamples, dataset+": "+err.Error())
	}
}

// Written returns the rows inserted or updated across all tables.
func (s *Summary) Written() domain.WriteResult {
	var total domain.WriteResult
	total.Add(s.Orders)
	total.Add(s.Transactions)
	total.Add(s.Products)
	return total
}

// Print writes the human-readable summary block.
func (s *Summary) Print(w io.Writer) {
	var b strings.Builder
	fmt.Fprintf(&b, "import summary: source=%s client=%s window=%s scope=%s state=%s duration=%s\n",
		s.Source, s.Client, s.Window, s.Scope, s.State, s.Finished.Sub(s.Started).Round(time.Millisecond))
	fmt.Fprintf(&b, "  pages=%d records=%d normalized=%d skipped=%d\n", s.Pages, s.Records, s.Normalized, s.Skipped)
	fmt.Fprintf(&b, "  orders inserted=%d updated=%d\n", s.Orders.Inserted, s.Orders.Updated)
	fmt.Fprintf(&b, "  transactions inserted=%d updated=%d\n", s.Transactions.Inserted, s.Transactions.Updated)
	if s.Scope == ScopeProducts {
		fmt.Fprintf(&b, "  products inserted=%d updated=%d\n", s.Products.Inserted, s.Products.Updated)
	}
	fmt.Fprintf(&b, "  raw_events recorded=%d failed=%d\n", s.RawRecorded, s.RawFailed)

	datasets := make([]string, 0, len(s.SkipReasons))
	for name := range s.SkipReasons {
		datasets = append(datasets, name)
	}
	sort.Strings(datasets)
	for _, name := range datasets {
		fmt.Fprintf(&b, "  skipped %s=%d\n", name, s.SkipReasons[name])
	}
	for _, sample := range s.SkipSamples {
		fmt.Fprintf(&b, "    %s\n", sample)
	}
	for _, name := range s.Truncated {
		fmt.Fprintf(&b, "  warning: %s stopped at the offset ceiling; split the window to import the rest\n", name)
	}
	switch {
	case s.Err == nil:
	case domain.IsFatal(s.Err):
		fmt.Fprintf(&b, "  error: %v\n  fix credentials or configuration before re-running\n", s.Err)
	default:
		fmt.Fprintf(&b, "  error: %v\n  re-running the same window is safe\n", s.Err)
	}
	_, _ = io.WriteString(w, b.String())
}
