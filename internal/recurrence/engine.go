package recurrence

import (
	"errors"
	"sort"
	"time"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the pattern frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyWeekly spaces occurrences seven days apart.
	FrequencyWeekly
	// FrequencyBiweekly spaces occurrences fourteen days apart.
	FrequencyBiweekly
	// FrequencyMonthly spaces occurrences thirty days apart.
	FrequencyMonthly
)

// ParseFrequency maps the wire representation onto a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch value {
	case "weekly":
		return FrequencyWeekly, nil
	case "biweekly":
		return FrequencyBiweekly, nil
	case "monthly":
		return FrequencyMonthly, nil
	default:
		return FrequencyUnspecified, ErrInvalidFrequency
	}
}

// String returns the wire representation of the frequency.
func (f Frequency) String() string {
	switch f {
	case FrequencyWeekly:
		return "weekly"
	case FrequencyBiweekly:
		return "biweekly"
	case FrequencyMonthly:
		return "monthly"
	default:
		return ""
	}
}

// StepDays returns the spacing between successive occurrences.
func (f Frequency) StepDays() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 14
	case FrequencyMonthly:
		return 30
	default:
		return 0
	}
}

// MaxOccurrences returns the per-weekday generation cap for the frequency.
func (f Frequency) MaxOccurrences() int {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	case FrequencyMonthly:
		return 12
	default:
		return 0
	}
}

// Definition describes a recurrence pattern as authored by a member. Hour and
// Minute are wall-clock values in the author's local time; the expansion
// converts them to UTC using the supplied offset.
type Definition struct {
	Weekdays  []time.Weekday
	Hour      int
	Minute    int
	Frequency Frequency
}

var (
	// ErrInvalidFrequency indicates the recurrence frequency is not supported.
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
	// ErrInvalidWeekday indicates a weekday outside Sunday..Saturday or a duplicate.
	ErrInvalidWeekday = errors.New("recurrence: invalid weekday")
	// ErrNoWeekdays indicates the definition selects no weekdays.
	ErrNoWeekdays = errors.New("recurrence: at least one weekday is required")
	// ErrInvalidTime indicates an hour or minute outside wall-clock range.
	ErrInvalidTime = errors.New("recurrence: invalid hour or minute")
	// ErrNoOccurrences indicates the expansion produced no dates.
	ErrNoOccurrences = errors.New("recurrence: expansion produced no occurrences")
)

// Validate rejects malformed definitions before any expansion work happens.
func (d Definition) Validate() error {
	if len(d.Weekdays) == 0 {
		return ErrNoWeekdays
	}
	seen := make(map[time.Weekday]struct{}, len(d.Weekdays))
	for _, day := range d.Weekdays {
		if day < time.Sunday || day > time.Saturday {
			return ErrInvalidWeekday
		}
		if _, ok := seen[day]; ok {
			return ErrInvalidWeekday
		}
		seen[day] = struct{}{}
	}
	if d.Hour < 0 || d.Hour > 23 || d.Minute < 0 || d.Minute > 59 {
		return ErrInvalidTime
	}
	if d.Frequency.StepDays() == 0 {
		return ErrInvalidFrequency
	}
	return nil
}

// Expansion holds the generated occurrence instants together with the
// pattern's time-of-day normalized to UTC. Later per-date derivations
// (slot claims) recombine UTCHour/UTCMinute with a calendar date.
type Expansion struct {
	Starts    []time.Time
	UTCHour   int
	UTCMinute int
}

// Expand generates concrete occurrence instants for the definition.
//
// Semantics:
//   - "Today" is evaluated in the author's local time, reconstructed from
//     offsetMinutes (minutes east of UTC).
//   - For each selected weekday, the first occurrence is the next matching
//     local date on/after today; if that instant has already passed today it
//     rolls forward one week.
//   - Successive occurrences are spaced StepDays apart, bounded by both the
//     frequency cap and a one-year horizon.
//   - Every returned instant is UTC, never before now, and sorted ascending.
func Expand(def Definition, offsetMinutes int, now time.Time) (Expansion, error) {
	if err := def.Validate(); err != nil {
		return Expansion{}, err
	}

	offset := time.Duration(offsetMinutes) * time.Minute
	// Wall-clock arithmetic happens on a UTC-labelled copy of local time so
	// weekday and date math ignore the host timezone entirely.
	localNow := now.UTC().Add(offset)
	horizon := localNow.AddDate(1, 0, 0)

	step := def.Frequency.StepDays()
	limit := def.Frequency.MaxOccurrences()

	starts := make([]time.Time, 0, limit*len(def.Weekdays))
	for _, day := range def.Weekdays {
		delta := (int(day) - int(localNow.Weekday()) + 7) % 7
		first := time.Date(localNow.Year(), localNow.Month(), localNow.Day()+delta,
			def.Hour, def.Minute, 0, 0, time.UTC)
		if !first.After(localNow) {
			first = first.AddDate(0, 0, 7)
		}

		current := first
		for i := 0; i < limit && !current.After(horizon); i++ {
			starts = append(starts, current.Add(-offset))
			current = current.AddDate(0, 0, step)
		}
	}

	if len(starts) == 0 {
		return Expansion{}, ErrNoOccurrences
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	utcMinutes := ((def.Hour*60+def.Minute-offsetMinutes)%1440 + 1440) % 1440
	return Expansion{
		Starts:    starts,
		UTCHour:   utcMinutes / 60,
		UTCMinute: utcMinutes % 60,
	}, nil
}

// CombineUTC derives the absolute UTC instant for a calendar date and a
// pattern's UTC time-of-day. Claims use it so the derived instant is
// identical whether or not an occurrence row was materialized beforehand.
func CombineUTC(date time.Time, hour, minute int) time.Time {
	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)
}
