package events

import (
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/validation"
	dps "github.com/markusmobius/go-dateparser"
)

var exactLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses the event date form value. Machine formats (RFC 3339, HTML
// datetime-local, ISO date) are tried first; anything else goes through the
// natural-language parser relative to now. Values without a zone are UTC.
func ParseDate(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, validation.New("date", "is required")
	}
	for _, layout := range exactLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed.UTC(), nil
		}
	}

	cfg := &dps.Configuration{
		CurrentTime:         now.UTC(),
		DefaultTimezone:     time.UTC,
		PreferredDateSource: dps.Future,
	}
	parsed, err := dps.Parse(cfg, value)
	if err != nil || parsed.Time.IsZero() {
		return time.Time{}, validation.New("date", "could not be parsed")
	}
	return parsed.Time.UTC(), nil
}
