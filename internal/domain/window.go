package domain

import (
	"fmt"
	"time"
)

// DateLayout is the CLI and API date format.
const DateLayout = "2006-01-02"

// Window is a contiguous, inclusive range of calendar days, in UTC.
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow parses two YYYY-MM-DD dates into a Window.
func NewWindow(from, to string) (Window, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return Window{}, fmt.Errorf("%w: invalid date-from %q: %v", ErrValidation, from, err)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return Window{}, fmt.Errorf("%w: invalid date-to %q: %v", ErrValidation, to, err)
	}
	if t.Before(f) {
		return Window{}, fmt.Errorf("%w: date-to %s is before date-from %s", ErrValidation, to, from)
	}
	return Window{From: f, To: t}, nil
}

// LastNDays returns the window ending on the day of now and spanning n days.
func LastNDays(n int, now time.Time) (Window, error) {
	if n < 1 {
		return Window{}, fmt.Errorf("%w: last-n-days must be >= 1, got %d", ErrValidation, n)
	}
	u := now.UTC()
	end := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return Window{From: end.AddDate(0, 0, -(n - 1)), To: end}, nil
}

// End returns the exclusive upper bound: midnight after To.
func (w Window) End() time.Time { return w.To.AddDate(0, 0, 1) }

// Days returns the number of calendar days covered.
func (w Window) Days() int { return int(w.To.Sub(w.From).Hours()/24) + 1 }

func (w Window) String() string {
	return w.From.Format(DateLayout) + ".." + w.To.Format(DateLayout)
}
