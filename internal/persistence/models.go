package persistence

import "time"

// SessionType is a template from which sessions are held: its slot layout,
// whether ad-hoc instances are allowed, and which roles may host.
type SessionType struct {
	ID               string
	WorkspaceID      string
	Name             string
	Category         string
	AllowUnscheduled bool
	HostingRoleIDs   []string
	Slots            []SlotDefinition
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SlotDefinition describes one claimable position layout on a session type.
type SlotDefinition struct {
	RoleID string
	Label  string
	Count  int
}

// RecurrencePattern is the immutable rule set occurrences are expanded from.
// Hour and Minute are stored in UTC wall-clock terms fixed at creation time.
type RecurrencePattern struct {
	ID            string
	SessionTypeID string
	Weekdays      []time.Weekday
	Hour          int
	Minute        int
	Frequency     string
	CreatedAt     time.Time
}

// Occurrence is a single dated session instance. PatternID is nil for ad-hoc
// occurrences. The pair (SessionTypeID, StartsAt) is unique.
type Occurrence struct {
	ID              string
	SessionTypeID   string
	PatternID       *string
	StartsAt        time.Time
	DurationMinutes *int
	Name            *string
	Description     *string
	Category        string
	HostID          *string
	Started         bool
	Ended           bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SlotAssignment ties one member to one occurrence at a (role, slot-index)
// pair. At most one assignment exists per (occurrence, role, slot-index) and
// per (occurrence, member).
type SlotAssignment struct {
	ID           string
	OccurrenceID string
	MemberID     string
	RoleID       string
	SlotIndex    int
	CreatedAt    time.Time
}

// ActivityInterval is one clock-in/out span. EndedAt nil means the interval
// is still open; at most one open interval exists per (workspace, member).
type ActivityInterval struct {
	ID           string
	WorkspaceID  string
	MemberID     string
	StartedAt    time.Time
	EndedAt      *time.Time
	IdleSeconds  int
	MessageCount int
	UniverseID   *string
}

// ActivityAdjustment is a signed manual delta applied to a member's
// accounted minutes, attributed to the acting administrator.
type ActivityAdjustment struct {
	ID          string
	WorkspaceID string
	MemberID    string
	ActorID     string
	Minutes     int
	CreatedAt   time.Time
}

// AncillaryEvent is a raw counter row for non-session activity. Kind is
// either "visit" or "post".
type AncillaryEvent struct {
	ID          string
	WorkspaceID string
	MemberID    string
	Kind        string
	OccurredAt  time.Time
}

// Quota is a role-scoped numeric target evaluated against rollup metrics.
// SessionCategory, when set, narrows session-counting kinds to occurrences
// of that category.
type Quota struct {
	ID              string
	WorkspaceID     string
	Name            string
	Kind            string
	Threshold       int
	SessionCategory *string
	RoleIDs         []string
	CreatedAt       time.Time
}

// QuotaProgress is the evaluated state of one quota for one member.
type QuotaProgress struct {
	CurrentValue int
	Threshold    int
	Percentage   float64
}

// ActivitySnapshot is the immutable per-member rollup row for one accounting
// period. Written only by the rollup engine, never mutated.
type ActivitySnapshot struct {
	ID               string
	WorkspaceID      string
	MemberID         string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	Minutes          int
	IdleMinutes      int
	Messages         int
	SessionsHosted   int
	SessionsAttended int
	SessionsLogged   int
	AncillaryVisits  int
	AncillaryPosts   int
	QuotaProgress    map[string]QuotaProgress
	CreatedAt        time.Time
}

// ResetCheckpoint marks the end of an accounting epoch. The newest
// checkpoint's PeriodEnd is the start of the next epoch's activity window.
type ResetCheckpoint struct {
	ID          string
	WorkspaceID string
	ActorID     string
	PeriodStart time.Time
	PeriodEnd   time.Time
	CreatedAt   time.Time
}

// Member is directory metadata used for response enrichment only.
type Member struct {
	ID          string
	WorkspaceID string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
