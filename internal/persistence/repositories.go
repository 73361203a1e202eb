package persistence

import (
	"context"
	"time"
)

// SessionTypeRepository exposes catalog operations for session types.
type SessionTypeRepository interface {
	CreateSessionType(ctx context.Context, sessionType SessionType) error
	GetSessionType(ctx context.Context, id string) (SessionType, error)
	ListSessionTypes(ctx context.Context, workspaceID string) ([]SessionType, error)
}

// PatternRepository stores recurrence patterns together with their expanded
// occurrences.
type PatternRepository interface {
	// CreatePatternWithOccurrences writes the pattern row and all generated
	// occurrence rows in a single transaction.
	CreatePatternWithOccurrences(ctx context.Context, pattern RecurrencePattern, occurrences []Occurrence) error
	GetPattern(ctx context.Context, id string) (RecurrencePattern, error)
}

// OccurrenceRepository stores dated session instances.
type OccurrenceRepository interface {
	CreateOccurrence(ctx context.Context, occurrence Occurrence) error
	GetOccurrence(ctx context.Context, id string) (Occurrence, error)
	// GetOccurrenceByStart resolves the row keyed by the unique
	// (session type, instant) pair.
	GetOccurrenceByStart(ctx context.Context, sessionTypeID string, startsAt time.Time) (Occurrence, error)
	ListOccurrencesForPattern(ctx context.Context, patternID string) ([]Occurrence, error)
	// ListOccurrencesBetween returns workspace occurrences with
	// from <= StartsAt < to.
	ListOccurrencesBetween(ctx context.Context, workspaceID string, from, to time.Time) ([]Occurrence, error)
	UpdateOccurrence(ctx context.Context, occurrence Occurrence) error
	// UpdateOccurrences applies all updates in a single transaction.
	UpdateOccurrences(ctx context.Context, occurrences []Occurrence) error
}

// SlotRepository coordinates slot assignments and their occurrence rows.
type SlotRepository interface {
	// ClaimSlot upserts the assignment keyed by (occurrence, member),
	// materializing the occurrence row first when it does not exist yet.
	// Everything happens in one transaction; the (session type, instant)
	// uniqueness constraint serializes concurrent first-claims. Returns
	// ErrDuplicate when the (role, slot-index) pair is held by a different
	// member, and the persisted occurrence otherwise. setHost transfers host
	// attribution to the claiming member.
	ClaimSlot(ctx context.Context, occurrence Occurrence, assignment SlotAssignment, setHost bool) (Occurrence, error)
	// ReleaseSlot deletes the assignment at (occurrence, role, slot-index)
	// and clears host attribution when the released member holds it. The
	// occurrence row itself is kept.
	ReleaseSlot(ctx context.Context, occurrenceID, roleID string, slotIndex int) (Occurrence, error)
	ListAssignmentsForOccurrences(ctx context.Context, occurrenceIDs []string) ([]SlotAssignment, error)
}

// ActivityRepository stores the raw activity sources consumed by rollups.
type ActivityRepository interface {
	// OpenInterval starts a clock-in span; ErrDuplicate when the member
	// already has an open interval in the workspace.
	OpenInterval(ctx context.Context, interval ActivityInterval) error
	// CloseInterval ends the member's open interval; ErrNotFound when none
	// is open.
	CloseInterval(ctx context.Context, workspaceID, memberID string, endedAt time.Time, idleSeconds, messageCount int) (ActivityInterval, error)
	CreateAdjustment(ctx context.Context, adjustment ActivityAdjustment) error
	RecordAncillaryEvent(ctx context.Context, event AncillaryEvent) error
	// ListClosedIntervals returns intervals with from <= EndedAt < to.
	ListClosedIntervals(ctx context.Context, workspaceID string, from, to time.Time) ([]ActivityInterval, error)
	ListAdjustments(ctx context.Context, workspaceID string, from, to time.Time) ([]ActivityAdjustment, error)
	ListAncillaryEvents(ctx context.Context, workspaceID string, from, to time.Time) ([]AncillaryEvent, error)
}

// QuotaRepository stores quota definitions and their role bindings.
type QuotaRepository interface {
	CreateQuota(ctx context.Context, quota Quota) error
	ListQuotas(ctx context.Context, workspaceID string) ([]Quota, error)
}

// RollupCommit bundles every write belonging to one checkpoint so the
// implementation can apply them atomically.
type RollupCommit struct {
	WorkspaceID string
	Checkpoint  ResetCheckpoint
	Snapshots   []ActivitySnapshot
	// ElapsedBefore bounds the occurrence purge: occurrences (and their
	// slot assignments) starting before this instant are deleted.
	ElapsedBefore time.Time
	// EpochStart/EpochEnd bound the raw-activity purge.
	EpochStart time.Time
	EpochEnd   time.Time
}

// HistoryRepository stores the append-only audit trail of rollups.
type HistoryRepository interface {
	// LatestCheckpoint returns ErrNotFound when the workspace has never been
	// rolled up.
	LatestCheckpoint(ctx context.Context, workspaceID string) (ResetCheckpoint, error)
	// CommitRollup writes snapshots and the checkpoint and clears the live
	// accumulators in one transaction.
	CommitRollup(ctx context.Context, commit RollupCommit) error
	ListSnapshots(ctx context.Context, workspaceID, memberID string) ([]ActivitySnapshot, error)
}

// MemberRepository exposes directory lookups used for response enrichment.
type MemberRepository interface {
	UpsertMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, workspaceID, id string) (Member, error)
	ListMembers(ctx context.Context, workspaceID string) ([]Member, error)
}
