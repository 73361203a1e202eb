package accounting

import "time"

// Quota kinds evaluated against rollup metrics.
const (
	QuotaKindMinutes          = "minutes"
	QuotaKindSessionsHosted   = "sessions_hosted"
	QuotaKindSessionsAttended = "sessions_attended"
	QuotaKindSessionsLogged   = "sessions_logged"
	QuotaKindAncillaryVisits  = "ancillary_visits"
)

// ValidQuotaKind reports whether kind names a supported quota metric.
func ValidQuotaKind(kind string) bool {
	switch kind {
	case QuotaKindMinutes, QuotaKindSessionsHosted, QuotaKindSessionsAttended,
		QuotaKindSessionsLogged, QuotaKindAncillaryVisits:
		return true
	default:
		return false
	}
}

// Interval is the closed clock-in/out view the aggregator works on.
type Interval struct {
	Start       time.Time
	End         time.Time
	IdleSeconds int
	Messages    int
}

// Totals are the per-member metrics of one accounting epoch.
type Totals struct {
	Minutes          int
	IdleMinutes      int
	Messages         int
	SessionsHosted   int
	SessionsAttended int
	SessionsLogged   int
	AncillaryVisits  int
	AncillaryPosts   int
	HostedByCategory   map[string]int
	AttendedByCategory map[string]int
	LoggedByCategory   map[string]int
}

// IsZero reports whether every metric is zero; such members produce no
// snapshot row.
func (t Totals) IsZero() bool {
	return t.Minutes == 0 && t.IdleMinutes == 0 && t.Messages == 0 &&
		t.SessionsHosted == 0 && t.SessionsAttended == 0 && t.SessionsLogged == 0 &&
		t.AncillaryVisits == 0 && t.AncillaryPosts == 0
}

// SumMinutes computes accounted minutes for the epoch: closed interval
// durations minus idle time, plus signed manual adjustments. Seconds are
// accumulated first so idle subtraction never loses sub-minute precision.
// The second and third results are total idle minutes and message count.
func SumMinutes(intervals []Interval, adjustmentMinutes []int) (minutes, idleMinutes, messages int) {
	var activeSeconds, idleSeconds int
	for _, interval := range intervals {
		span := int(interval.End.Sub(interval.Start).Seconds())
		if span < 0 {
			span = 0
		}
		idle := interval.IdleSeconds
		if idle > span {
			idle = span
		}
		activeSeconds += span - idle
		idleSeconds += idle
		messages += interval.Messages
	}

	minutes = activeSeconds / 60
	for _, delta := range adjustmentMinutes {
		minutes += delta
	}
	return minutes, idleSeconds / 60, messages
}

// QuotaValue selects the metric a quota of the given kind measures. For
// session-counting kinds, a non-nil category narrows the count to
// occurrences of that category.
func QuotaValue(kind string, category *string, totals Totals) int {
	switch kind {
	case QuotaKindMinutes:
		return totals.Minutes
	case QuotaKindSessionsHosted:
		if category != nil {
			return totals.HostedByCategory[*category]
		}
		return totals.SessionsHosted
	case QuotaKindSessionsAttended:
		if category != nil {
			return totals.AttendedByCategory[*category]
		}
		return totals.SessionsAttended
	case QuotaKindSessionsLogged:
		if category != nil {
			return totals.LoggedByCategory[*category]
		}
		return totals.SessionsLogged
	case QuotaKindAncillaryVisits:
		return totals.AncillaryVisits
	default:
		return 0
	}
}

// Progress returns min(current/threshold*100, 100). A non-positive threshold
// counts as already met.
func Progress(current, threshold int) float64 {
	if threshold <= 0 {
		return 100
	}
	pct := float64(current) / float64(threshold) * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
