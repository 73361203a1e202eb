package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamps are stored as RFC3339 UTC strings so lexical and chronological
// ordering coincide.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func timeFromNull(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringFromNull(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullableInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func intFromNull(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	i := int(value.Int64)
	return &i
}

// Weekday sets are stored as a comma-joined list of numeric weekdays.
func encodeWeekdays(weekdays []time.Weekday) string {
	parts := make([]string, 0, len(weekdays))
	for _, day := range weekdays {
		parts = append(parts, strconv.Itoa(int(day)))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(value string) ([]time.Weekday, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	weekdays := make([]time.Weekday, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("failed to parse weekday %q: %w", part, err)
		}
		weekdays = append(weekdays, time.Weekday(n))
	}
	return weekdays, nil
}
