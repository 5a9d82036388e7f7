package request

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/models"
)

// TimeRange is a named part of the day used by court search. Hours are UTC
// and the end hour is exclusive.
type TimeRange struct {
	Name      string
	StartHour int
	EndHour   int
}

var timeRanges = map[string]TimeRange{
	"morning":   {Name: "morning", StartHour: 6, EndHour: 12},
	"afternoon": {Name: "afternoon", StartHour: 12, EndHour: 18},
	"evening":   {Name: "evening", StartHour: 18, EndHour: 22},
}

// Contains reports whether a slot starting at hour falls inside the range.
func (tr TimeRange) Contains(hour int) bool {
	return hour >= tr.StartHour && hour < tr.EndHour
}

// ParseTimeRange returns the named range. "" and "any" mean no restriction.
func ParseTimeRange(value string) (TimeRange, bool) {
	tr, ok := timeRanges[strings.ToLower(strings.TrimSpace(value))]
	return tr, ok
}

// CourtSearch holds the court listing filters from the query string.
type CourtSearch struct {
	Location string
	// Date restricts results to courts with a free slot that day.
	Date string
	// Time narrows Date to slots starting inside the range.
	Time *TimeRange
}

// Active reports whether any availability filter was given.
func (s CourtSearch) Active() bool {
	return s.Date != ""
}

// ParseCourtSearch reads location, date and time from the query. Unknown
// time values are ignored so old clients sending "any" keep working.
func ParseCourtSearch(r *http.Request) (CourtSearch, error) {
	query := r.URL.Query()
	search := CourtSearch{Location: strings.TrimSpace(query.Get("location"))}

	if raw := strings.TrimSpace(query.Get("date")); raw != "" {
		day, err := models.ParseDay(raw)
		if err != nil {
			return CourtSearch{}, err
		}
		search.Date = day
	}

	if raw := query.Get("time"); raw != "" {
		if tr, ok := ParseTimeRange(raw); ok {
			search.Time = &tr
		} else if !strings.EqualFold(strings.TrimSpace(raw), "any") {
			log.Ctx(r.Context()).
				Debug().
				Str("time", raw).
				Msg("Ignoring unknown time range")
		}
	}

	return search, nil
}
