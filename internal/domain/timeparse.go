package domain

import (
	"fmt"
	"strings"
	"time"
)

// Moscow is the zone both marketplaces use for timestamps without an offset.
var Moscow = time.FixedZone("MSK", 3*60*60)

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// ParseMarketTime parses the timestamp spellings seen in marketplace
// payloads. Values without a zone are read as Moscow time. The result is
// in UTC.
func ParseMarketTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrNormalization)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, Moscow); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrNormalization, s)
}
