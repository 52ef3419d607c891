package registrations

import (
	"net/url"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
)

const (
	calendarBaseURL    = "https://www.google.com/calendar/render"
	calendarDateLayout = "20060102T150405Z"
	// CalendarDuration is the fixed length given to calendar entries.
	CalendarDuration = 2 * time.Hour
)

// CalendarLink builds a Google Calendar "add event" link for the event.
func CalendarLink(event events.Event) string {
	start := event.Date.UTC()
	end := start.Add(CalendarDuration)

	query := url.Values{}
	query.Set("action", "TEMPLATE")
	query.Set("text", event.Name)
	query.Set("dates", start.Format(calendarDateLayout)+"/"+end.Format(calendarDateLayout))
	query.Set("details", event.Description)
	query.Set("location", event.Location)
	return calendarBaseURL + "?" + query.Encode()
}
