package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func ParseNonNegativeInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, FieldError{Field: field, Reason: "must be 0 or greater"}
	}
	return value, nil
}

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be greater than 0"}
	}
	return value, nil
}

// PathID parses a positive integer path value registered on the route.
func PathID(r *http.Request, name string) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue(name), name)
}

// ParseTimestamp accepts RFC 3339 with or without fractional seconds and
// returns the instant in UTC.
func ParseTimestamp(raw string, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, FieldError{Field: field, Reason: "is required"}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, FieldError{Field: field, Reason: "must be an RFC 3339 timestamp"}
	}
	return parsed.UTC(), nil
}

// ParseClock parses an HH:MM wall-clock time on day (UTC).
func ParseClock(day string, raw string, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := time.Parse("2006-01-02 15:04", day+" "+raw)
	if err != nil {
		return time.Time{}, FieldError{Field: field, Reason: fmt.Sprintf("must be HH:MM, got %q", raw)}
	}
	return parsed.UTC(), nil
}
