package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/staff-scheduler/internal/persistence"
)

func newTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	dir := t.TempDir()
	dsn := filepath.Join(dir, "scheduler.db")
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}

	t.Cleanup(func() {
		_ = pool.Close()
	})

	if err := Migrate(context.Background(), pool.DB()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return pool
}

func seedTestSessionType(t *testing.T, pool *ConnectionPool, id string) persistence.SessionType {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	sessionType := persistence.SessionType{
		ID:             id,
		WorkspaceID:    "ws-1",
		Name:           "Training Session",
		Category:       "training",
		HostingRoleIDs: []string{"trainer"},
		Slots: []persistence.SlotDefinition{
			{RoleID: "trainer", Label: "Trainer", Count: 2},
			{RoleID: "assistant", Label: "Co-Host", Count: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := NewSessionTypeRepository(pool).CreateSessionType(context.Background(), sessionType); err != nil {
		t.Fatalf("failed to seed session type: %v", err)
	}
	return sessionType
}

func TestSessionTypeRepository(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewSessionTypeRepository(pool)

	seeded := seedTestSessionType(t, pool, "st-1")

	fetched, err := repo.GetSessionType(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetSessionType failed: %v", err)
	}
	if fetched.Name != seeded.Name || !fetched.CreatedAt.Equal(seeded.CreatedAt) {
		t.Fatalf("unexpected session type: %#v", fetched)
	}
	if len(fetched.HostingRoleIDs) != 1 || fetched.HostingRoleIDs[0] != "trainer" {
		t.Fatalf("unexpected hosting roles: %#v", fetched.HostingRoleIDs)
	}
	if len(fetched.Slots) != 2 || fetched.Slots[0].Label != "Trainer" || fetched.Slots[1].Count != 1 {
		t.Fatalf("unexpected slots: %#v", fetched.Slots)
	}

	if _, err := repo.GetSessionType(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	listed, err := repo.ListSessionTypes(ctx, "ws-1")
	if err != nil {
		t.Fatalf("ListSessionTypes failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != seeded.ID {
		t.Fatalf("unexpected catalog: %#v", listed)
	}

	if err := repo.CreateSessionType(ctx, seeded); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on repeated id, got %v", err)
	}
}

func TestPatternAndOccurrenceRepositories(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	patterns := NewPatternRepository(pool)
	occurrences := NewOccurrenceRepository(pool)

	sessionType := seedTestSessionType(t, pool, "st-1")
	now := time.Now().UTC().Truncate(time.Second)

	pattern := persistence.RecurrencePattern{
		ID:            "pat-1",
		SessionTypeID: sessionType.ID,
		Weekdays:      []time.Weekday{time.Monday, time.Wednesday},
		Hour:          18,
		Minute:        30,
		Frequency:     "weekly",
		CreatedAt:     now,
	}

	patternID := pattern.ID
	duration := 60
	rows := []persistence.Occurrence{
		{
			ID: "occ-1", SessionTypeID: sessionType.ID, PatternID: &patternID,
			StartsAt: time.Date(2024, time.March, 4, 18, 30, 0, 0, time.UTC),
			DurationMinutes: &duration, Category: "training",
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "occ-2", SessionTypeID: sessionType.ID, PatternID: &patternID,
			StartsAt: time.Date(2024, time.March, 6, 18, 30, 0, 0, time.UTC),
			Category:  "training",
			CreatedAt: now, UpdatedAt: now,
		},
	}

	if err := patterns.CreatePatternWithOccurrences(ctx, pattern, rows); err != nil {
		t.Fatalf("CreatePatternWithOccurrences failed: %v", err)
	}

	fetched, err := patterns.GetPattern(ctx, pattern.ID)
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if len(fetched.Weekdays) != 2 || fetched.Weekdays[1] != time.Wednesday || fetched.Hour != 18 {
		t.Fatalf("unexpected pattern: %#v", fetched)
	}

	expanded, err := occurrences.ListOccurrencesForPattern(ctx, pattern.ID)
	if err != nil {
		t.Fatalf("ListOccurrencesForPattern failed: %v", err)
	}
	if len(expanded) != 2 || expanded[0].ID != "occ-1" {
		t.Fatalf("unexpected expansion: %#v", expanded)
	}
	if expanded[0].DurationMinutes == nil || *expanded[0].DurationMinutes != 60 {
		t.Fatalf("expected duration 60, got %#v", expanded[0].DurationMinutes)
	}
	if expanded[1].DurationMinutes != nil {
		t.Fatalf("expected nil duration, got %#v", expanded[1].DurationMinutes)
	}

	byStart, err := occurrences.GetOccurrenceByStart(ctx, sessionType.ID, rows[1].StartsAt)
	if err != nil {
		t.Fatalf("GetOccurrenceByStart failed: %v", err)
	}
	if byStart.ID != "occ-2" {
		t.Fatalf("expected occ-2, got %q", byStart.ID)
	}

	// A second pattern generating the same instant must roll back whole.
	dup := pattern
	dup.ID = "pat-2"
	dupID := dup.ID
	clash := rows[0]
	clash.ID = "occ-3"
	clash.PatternID = &dupID
	if err := patterns.CreatePatternWithOccurrences(ctx, dup, []persistence.Occurrence{clash}); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on clashing instant, got %v", err)
	}
	if _, err := patterns.GetPattern(ctx, dup.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected rolled back pattern, got %v", err)
	}

	// Batch update moves both instants forward one day.
	for i := range expanded {
		expanded[i].StartsAt = expanded[i].StartsAt.AddDate(0, 0, 1)
		expanded[i].UpdatedAt = now.Add(time.Minute)
	}
	if err := occurrences.UpdateOccurrences(ctx, expanded); err != nil {
		t.Fatalf("UpdateOccurrences failed: %v", err)
	}
	moved, err := occurrences.GetOccurrence(ctx, "occ-1")
	if err != nil {
		t.Fatalf("GetOccurrence failed: %v", err)
	}
	if moved.StartsAt.Day() != 5 {
		t.Fatalf("expected moved start, got %v", moved.StartsAt)
	}

	missing := moved
	missing.ID = "occ-missing"
	if err := occurrences.UpdateOccurrence(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on missing row, got %v", err)
	}

	window, err := occurrences.ListOccurrencesBetween(ctx, "ws-1",
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListOccurrencesBetween failed: %v", err)
	}
	if len(window) != 1 || window[0].ID != "occ-1" {
		t.Fatalf("unexpected window: %#v", window)
	}
}

func TestSlotRepositoryClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	slots := NewSlotRepository(pool)
	occurrences := NewOccurrenceRepository(pool)

	sessionType := seedTestSessionType(t, pool, "st-1")
	now := time.Now().UTC().Truncate(time.Second)
	startsAt := time.Date(2024, time.March, 13, 18, 0, 0, 0, time.UTC)

	candidate := persistence.Occurrence{
		ID:            "occ-lazy",
		SessionTypeID: sessionType.ID,
		StartsAt:      startsAt,
		Category:      "training",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	assignment := persistence.SlotAssignment{
		ID:        "asg-1",
		MemberID:  "alice",
		RoleID:    "trainer",
		SlotIndex: 0,
		CreatedAt: now,
	}

	claimed, err := slots.ClaimSlot(ctx, candidate, assignment, true)
	if err != nil {
		t.Fatalf("ClaimSlot failed: %v", err)
	}
	if claimed.ID != "occ-lazy" {
		t.Fatalf("expected lazily materialized row, got %q", claimed.ID)
	}
	if claimed.HostID == nil || *claimed.HostID != "alice" {
		t.Fatalf("expected alice as host, got %#v", claimed.HostID)
	}

	// Re-claiming the held position is a no-op success.
	again := assignment
	again.ID = "asg-2"
	if _, err := slots.ClaimSlot(ctx, candidate, again, true); err != nil {
		t.Fatalf("idempotent re-claim failed: %v", err)
	}

	// Another member on the same position conflicts.
	bob := assignment
	bob.ID = "asg-3"
	bob.MemberID = "bob"
	if _, err := slots.ClaimSlot(ctx, candidate, bob, true); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for held position, got %v", err)
	}

	// Moving alice to another index frees the first one for bob.
	moveAlice := assignment
	moveAlice.ID = "asg-4"
	moveAlice.SlotIndex = 1
	if _, err := slots.ClaimSlot(ctx, candidate, moveAlice, true); err != nil {
		t.Fatalf("moving claim failed: %v", err)
	}
	if _, err := slots.ClaimSlot(ctx, candidate, bob, false); err != nil {
		t.Fatalf("claim after move failed: %v", err)
	}

	listed, err := slots.ListAssignmentsForOccurrences(ctx, []string{"occ-lazy"})
	if err != nil {
		t.Fatalf("ListAssignmentsForOccurrences failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 assignments, got %#v", listed)
	}
	if listed[0].MemberID != "bob" || listed[1].MemberID != "alice" {
		t.Fatalf("unexpected assignment order: %#v", listed)
	}

	released, err := slots.ReleaseSlot(ctx, "occ-lazy", "trainer", 1)
	if err != nil {
		t.Fatalf("ReleaseSlot failed: %v", err)
	}
	if released.HostID != nil {
		t.Fatalf("expected host cleared, got %#v", released.HostID)
	}

	if _, err := slots.ReleaseSlot(ctx, "occ-lazy", "trainer", 1); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty position, got %v", err)
	}

	kept, err := occurrences.GetOccurrence(ctx, "occ-lazy")
	if err != nil {
		t.Fatalf("occurrence row should survive release: %v", err)
	}
	if !kept.StartsAt.Equal(startsAt) {
		t.Fatalf("unexpected start after release: %v", kept.StartsAt)
	}
}

func TestActivityRepository(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewActivityRepository(pool)

	start := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
	interval := persistence.ActivityInterval{
		ID:          "int-1",
		WorkspaceID: "ws-1",
		MemberID:    "alice",
		StartedAt:   start,
	}
	if err := repo.OpenInterval(ctx, interval); err != nil {
		t.Fatalf("OpenInterval failed: %v", err)
	}

	second := interval
	second.ID = "int-2"
	if err := repo.OpenInterval(ctx, second); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second open interval, got %v", err)
	}

	closed, err := repo.CloseInterval(ctx, "ws-1", "alice", start.Add(65*time.Minute), 600, 3)
	if err != nil {
		t.Fatalf("CloseInterval failed: %v", err)
	}
	if closed.ID != "int-1" || closed.EndedAt == nil || closed.IdleSeconds != 600 || closed.MessageCount != 3 {
		t.Fatalf("unexpected closed interval: %#v", closed)
	}

	if _, err := repo.CloseInterval(ctx, "ws-1", "alice", start.Add(2*time.Hour), 0, 0); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with nothing open, got %v", err)
	}

	adjustment := persistence.ActivityAdjustment{
		ID: "adj-1", WorkspaceID: "ws-1", MemberID: "alice", ActorID: "admin",
		Minutes: -15, CreatedAt: start.Add(2 * time.Hour),
	}
	if err := repo.CreateAdjustment(ctx, adjustment); err != nil {
		t.Fatalf("CreateAdjustment failed: %v", err)
	}

	event := persistence.AncillaryEvent{
		ID: "evt-1", WorkspaceID: "ws-1", MemberID: "bob", Kind: "visit",
		OccurredAt: start.Add(30 * time.Minute),
	}
	if err := repo.RecordAncillaryEvent(ctx, event); err != nil {
		t.Fatalf("RecordAncillaryEvent failed: %v", err)
	}
	badKind := event
	badKind.ID = "evt-2"
	badKind.Kind = "dance"
	if err := repo.RecordAncillaryEvent(ctx, badKind); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for unknown kind, got %v", err)
	}

	from := start
	to := start.Add(3 * time.Hour)
	intervals, err := repo.ListClosedIntervals(ctx, "ws-1", from, to)
	if err != nil {
		t.Fatalf("ListClosedIntervals failed: %v", err)
	}
	if len(intervals) != 1 || intervals[0].ID != "int-1" {
		t.Fatalf("unexpected intervals: %#v", intervals)
	}

	adjustments, err := repo.ListAdjustments(ctx, "ws-1", from, to)
	if err != nil {
		t.Fatalf("ListAdjustments failed: %v", err)
	}
	if len(adjustments) != 1 || adjustments[0].Minutes != -15 {
		t.Fatalf("unexpected adjustments: %#v", adjustments)
	}

	events, err := repo.ListAncillaryEvents(ctx, "ws-1", from, to)
	if err != nil {
		t.Fatalf("ListAncillaryEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].MemberID != "bob" {
		t.Fatalf("unexpected events: %#v", events)
	}

	// The upper bound is exclusive.
	none, err := repo.ListAdjustments(ctx, "ws-1", from, adjustment.CreatedAt)
	if err != nil {
		t.Fatalf("ListAdjustments failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty window, got %#v", none)
	}
}

func TestQuotaRepository(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewQuotaRepository(pool)

	now := time.Now().UTC().Truncate(time.Second)
	category := "training"
	quota := persistence.Quota{
		ID:              "q-1",
		WorkspaceID:     "ws-1",
		Name:            "Monthly Minutes",
		Kind:            "minutes",
		Threshold:       140,
		SessionCategory: &category,
		RoleIDs:         []string{"trainer", "assistant"},
		CreatedAt:       now,
	}
	if err := repo.CreateQuota(ctx, quota); err != nil {
		t.Fatalf("CreateQuota failed: %v", err)
	}

	quotas, err := repo.ListQuotas(ctx, "ws-1")
	if err != nil {
		t.Fatalf("ListQuotas failed: %v", err)
	}
	if len(quotas) != 1 {
		t.Fatalf("expected 1 quota, got %d", len(quotas))
	}
	if quotas[0].SessionCategory == nil || *quotas[0].SessionCategory != "training" {
		t.Fatalf("unexpected category: %#v", quotas[0].SessionCategory)
	}
	if len(quotas[0].RoleIDs) != 2 || quotas[0].RoleIDs[0] != "assistant" {
		t.Fatalf("unexpected roles: %#v", quotas[0].RoleIDs)
	}

	invalid := quota
	invalid.ID = "q-2"
	invalid.Threshold = 0
	if err := repo.CreateQuota(ctx, invalid); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for zero threshold, got %v", err)
	}
}

func TestHistoryRepositoryCommitRollup(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	history := NewHistoryRepository(pool)
	activity := NewActivityRepository(pool)
	occurrences := NewOccurrenceRepository(pool)

	sessionType := seedTestSessionType(t, pool, "st-1")

	if _, err := history.LatestCheckpoint(ctx, "ws-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first rollup, got %v", err)
	}

	epochStart := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	epochEnd := time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC)

	elapsed := persistence.Occurrence{
		ID: "occ-old", SessionTypeID: sessionType.ID,
		StartsAt:  epochStart.Add(24 * time.Hour),
		Category:  "training",
		CreatedAt: epochStart, UpdatedAt: epochStart,
	}
	upcoming := persistence.Occurrence{
		ID: "occ-new", SessionTypeID: sessionType.ID,
		StartsAt:  epochEnd.Add(24 * time.Hour),
		Category:  "training",
		CreatedAt: epochStart, UpdatedAt: epochStart,
	}
	if err := occurrences.CreateOccurrence(ctx, elapsed); err != nil {
		t.Fatalf("failed to seed elapsed occurrence: %v", err)
	}
	if err := occurrences.CreateOccurrence(ctx, upcoming); err != nil {
		t.Fatalf("failed to seed upcoming occurrence: %v", err)
	}

	if err := activity.CreateAdjustment(ctx, persistence.ActivityAdjustment{
		ID: "adj-1", WorkspaceID: "ws-1", MemberID: "alice", ActorID: "admin",
		Minutes: 15, CreatedAt: epochStart.Add(time.Hour),
	}); err != nil {
		t.Fatalf("failed to seed adjustment: %v", err)
	}

	commit := persistence.RollupCommit{
		WorkspaceID: "ws-1",
		Checkpoint: persistence.ResetCheckpoint{
			ID: "cp-1", WorkspaceID: "ws-1", ActorID: "admin",
			PeriodStart: epochStart, PeriodEnd: epochEnd, CreatedAt: epochEnd,
		},
		Snapshots: []persistence.ActivitySnapshot{{
			ID: "snap-1", WorkspaceID: "ws-1", MemberID: "alice",
			PeriodStart: epochStart, PeriodEnd: epochEnd,
			Minutes: 70, IdleMinutes: 10, Messages: 3,
			SessionsHosted: 1, SessionsLogged: 1,
			QuotaProgress: map[string]persistence.QuotaProgress{
				"q-1": {CurrentValue: 70, Threshold: 140, Percentage: 50},
			},
			CreatedAt: epochEnd,
		}},
		ElapsedBefore: epochEnd,
		EpochStart:    epochStart,
		EpochEnd:      epochEnd,
	}
	if err := history.CommitRollup(ctx, commit); err != nil {
		t.Fatalf("CommitRollup failed: %v", err)
	}

	checkpoint, err := history.LatestCheckpoint(ctx, "ws-1")
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if checkpoint.ID != "cp-1" || !checkpoint.PeriodEnd.Equal(epochEnd) {
		t.Fatalf("unexpected checkpoint: %#v", checkpoint)
	}

	snapshots, err := history.ListSnapshots(ctx, "ws-1", "alice")
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].Minutes != 70 {
		t.Fatalf("unexpected snapshots: %#v", snapshots)
	}
	progress, ok := snapshots[0].QuotaProgress["q-1"]
	if !ok || progress.Percentage != 50 {
		t.Fatalf("unexpected quota progress: %#v", snapshots[0].QuotaProgress)
	}

	if _, err := occurrences.GetOccurrence(ctx, "occ-old"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected elapsed occurrence purged, got %v", err)
	}
	if _, err := occurrences.GetOccurrence(ctx, "occ-new"); err != nil {
		t.Fatalf("upcoming occurrence should survive: %v", err)
	}

	adjustments, err := activity.ListAdjustments(ctx, "ws-1", epochStart, epochEnd)
	if err != nil {
		t.Fatalf("ListAdjustments failed: %v", err)
	}
	if len(adjustments) != 0 {
		t.Fatalf("expected epoch activity purged, got %#v", adjustments)
	}
}

func TestMemberRepository(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewMemberRepository(pool)

	now := time.Now().UTC().Truncate(time.Second)
	member := persistence.Member{
		ID: "alice", WorkspaceID: "ws-1", DisplayName: "Alice",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.UpsertMember(ctx, member); err != nil {
		t.Fatalf("UpsertMember failed: %v", err)
	}

	member.DisplayName = "Alice Updated"
	member.UpdatedAt = now.Add(time.Minute)
	if err := repo.UpsertMember(ctx, member); err != nil {
		t.Fatalf("second UpsertMember failed: %v", err)
	}

	fetched, err := repo.GetMember(ctx, "ws-1", "alice")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if fetched.DisplayName != "Alice Updated" {
		t.Fatalf("unexpected member: %#v", fetched)
	}

	if _, err := repo.GetMember(ctx, "ws-2", "alice"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across workspaces, got %v", err)
	}

	members, err := repo.ListMembers(ctx, "ws-1")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
}
