package application

import (
	"time"

	"github.com/example/staff-scheduler/internal/persistence"
)

// Principal identifies the member invoking a service operation.
type Principal struct {
	MemberID string
}

// SlotDefinitionInput describes one claimable position on a session type.
type SlotDefinitionInput struct {
	RoleID string
	Label  string
	Count  int
}

// CreateSessionTypeParams creates a catalog entry.
type CreateSessionTypeParams struct {
	Principal        Principal
	WorkspaceID      string
	Name             string
	Category         string
	AllowUnscheduled bool
	HostingRoleIDs   []string
	Slots            []SlotDefinitionInput
}

// CreatePatternParams creates a recurrence pattern and its occurrence rows.
// Hour and Minute are the author's local wall clock; UTCOffsetMinutes is
// minutes east of UTC.
type CreatePatternParams struct {
	Principal        Principal
	WorkspaceID      string
	SessionTypeID    string
	Name             string
	Category         string
	Weekdays         []int
	Hour             int
	Minute           int
	Frequency        string
	UTCOffsetMinutes int
	DurationMinutes  *int
	Description      *string
}

// CreatePatternResult reports the persisted pattern and generated rows.
type CreatePatternResult struct {
	Pattern     persistence.RecurrencePattern
	Occurrences []persistence.Occurrence
}

// CreateUnscheduledParams creates a single ad-hoc occurrence. Date is the
// local calendar day in "2006-01-02" form.
type CreateUnscheduledParams struct {
	Principal        Principal
	WorkspaceID      string
	SessionTypeID    string
	Name             string
	Category         string
	Date             string
	Hour             int
	Minute           int
	UTCOffsetMinutes int
	DurationMinutes  *int
	Description      *string
}

// Edit scopes supported by UpdateOccurrences.
const (
	ScopeSingle = "single"
	ScopeFuture = "future"
	ScopeAll    = "all"
)

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// OccurrenceChanges lists the mutable fields of an edit. Nil fields are left
// untouched. Date is "2006-01-02" and only valid with the single scope;
// Time is applied in UTC wall-clock terms to each target's own date.
type OccurrenceChanges struct {
	Date            *string
	Time            *TimeOfDay
	DurationMinutes *int
	Name            *string
	Description     *string
}

func (c OccurrenceChanges) empty() bool {
	return c.Date == nil && c.Time == nil && c.DurationMinutes == nil &&
		c.Name == nil && c.Description == nil
}

// UpdateOccurrencesParams edits an occurrence, optionally fanning out over
// its pattern siblings.
type UpdateOccurrencesParams struct {
	Principal    Principal
	WorkspaceID  string
	OccurrenceID string
	Scope        string
	Changes      OccurrenceChanges
}

// UpdateOccurrencesResult reports the rows the edit touched.
type UpdateOccurrencesResult struct {
	Updated []persistence.Occurrence
}

// LifecycleParams flips an occurrence's started/ended flags.
type LifecycleParams struct {
	Principal    Principal
	WorkspaceID  string
	OccurrenceID string
	Started      *bool
	Ended        *bool
}

// ClaimSlotParams claims or releases one slot on a pattern-dated instance.
// Date is the occurrence's UTC calendar day in "2006-01-02" form; the instant
// is derived from it and the pattern's stored time-of-day.
type ClaimSlotParams struct {
	Principal   Principal
	WorkspaceID string
	PatternID   string
	Date        string
	RoleID      string
	SlotIndex   int
}

// ClaimSlotResult reports the occurrence state after the claim together with
// its assignments, enriched with directory display names where known.
type ClaimSlotResult struct {
	Occurrence  persistence.Occurrence
	Assignments []AssignmentView
}

// AssignmentView is one slot assignment with the member's display name.
type AssignmentView struct {
	MemberID    string
	DisplayName string
	RoleID      string
	SlotIndex   int
}

// RollupParams triggers an accounting rollup for a workspace.
type RollupParams struct {
	Principal   Principal
	WorkspaceID string
}

// RollupResult summarizes one committed rollup.
type RollupResult struct {
	Checkpoint       persistence.ResetCheckpoint
	SnapshotsWritten int
	MembersScanned   int
}

// QuotaProgressView is the live evaluation of one quota for one member.
type QuotaProgressView struct {
	QuotaID      string
	Name         string
	Kind         string
	CurrentValue int
	Threshold    int
	Percentage   float64
}

// CreateQuotaParams defines a quota target.
type CreateQuotaParams struct {
	Principal       Principal
	WorkspaceID     string
	Name            string
	Kind            string
	Threshold       int
	SessionCategory *string
	RoleIDs         []string
}

// ClockInParams opens an activity interval.
type ClockInParams struct {
	Principal   Principal
	WorkspaceID string
	UniverseID  *string
}

// ClockOutParams closes the member's open interval.
type ClockOutParams struct {
	Principal    Principal
	WorkspaceID  string
	IdleSeconds  int
	MessageCount int
}

// AdjustmentParams applies a signed manual minutes delta to a member.
type AdjustmentParams struct {
	Principal   Principal
	WorkspaceID string
	MemberID    string
	Minutes     int
}

// AncillaryEventParams records one visit or post counter row.
type AncillaryEventParams struct {
	Principal   Principal
	WorkspaceID string
	Kind        string
	OccurredAt  *time.Time
}

// UpsertMemberParams writes a directory row.
type UpsertMemberParams struct {
	Principal   Principal
	WorkspaceID string
	MemberID    string
	DisplayName string
}

const dateLayout = "2006-01-02"

func parseDate(value string) (time.Time, bool) {
	parsed, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
