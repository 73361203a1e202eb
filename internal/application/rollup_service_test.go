package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/staff-scheduler/internal/persistence"
)

func newRollupService(deps *testDeps) *RollupService {
	return NewRollupService(deps.store, deps.store, deps.store, deps.store,
		deps.store, deps.store, deps.store, time.Minute, deps.env)
}

// seedEpoch loads one epoch of raw activity: alice hosts a morning session
// with bob assigned to a trainer slot, alice clocks 65 minutes with 10 idle
// and a +15 adjustment, bob records two visits and a post.
func seedEpoch(t *testing.T, deps *testDeps) persistence.Occurrence {
	t.Helper()
	ctx := context.Background()
	deps.addSessionType(t, "st-1", false)

	host := "alice"
	occurrence := persistence.Occurrence{
		ID:            "occ-1",
		SessionTypeID: "st-1",
		StartsAt:      time.Date(2024, time.March, 6, 9, 30, 0, 0, time.UTC),
		Category:      "training",
		HostID:        &host,
	}
	if err := deps.store.CreateOccurrence(ctx, occurrence); err != nil {
		t.Fatalf("seed occurrence: %v", err)
	}
	_, err := deps.store.ClaimSlot(ctx, occurrence, persistence.SlotAssignment{
		ID:           "as-1",
		OccurrenceID: "occ-1",
		MemberID:     "bob",
		RoleID:       "trainer",
		SlotIndex:    0,
	}, false)
	if err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	if err := deps.store.OpenInterval(ctx, persistence.ActivityInterval{
		ID:          "iv-1",
		WorkspaceID: testWorkspace,
		MemberID:    "alice",
		StartedAt:   time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seed interval: %v", err)
	}
	if _, err := deps.store.CloseInterval(ctx, testWorkspace, "alice",
		time.Date(2024, time.March, 6, 10, 5, 0, 0, time.UTC), 600, 3); err != nil {
		t.Fatalf("close interval: %v", err)
	}
	if err := deps.store.CreateAdjustment(ctx, persistence.ActivityAdjustment{
		ID:          "adj-1",
		WorkspaceID: testWorkspace,
		MemberID:    "alice",
		ActorID:     "admin",
		Minutes:     15,
		CreatedAt:   time.Date(2024, time.March, 6, 11, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seed adjustment: %v", err)
	}
	for i, kind := range []string{"visit", "visit", "post"} {
		if err := deps.store.RecordAncillaryEvent(ctx, persistence.AncillaryEvent{
			ID:          "ev-" + kind + string(rune('0'+i)),
			WorkspaceID: testWorkspace,
			MemberID:    "bob",
			Kind:        kind,
			OccurredAt:  time.Date(2024, time.March, 6, 8, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("seed event: %v", err)
		}
	}
	return occurrence
}

func TestRollup(t *testing.T) {
	t.Run("aggregates, snapshots and purges in one pass", func(t *testing.T) {
		deps := newTestDeps(t)
		occurrence := seedEpoch(t, deps)
		service := newRollupService(deps)
		ctx := context.Background()

		result, err := service.Rollup(ctx, RollupParams{
			Principal:   Principal{MemberID: "admin"},
			WorkspaceID: testWorkspace,
		})
		if err != nil {
			t.Fatalf("Rollup returned error: %v", err)
		}
		if result.SnapshotsWritten != 2 {
			t.Fatalf("snapshots written = %d, want 2", result.SnapshotsWritten)
		}
		if !result.Checkpoint.PeriodEnd.Equal(deps.clock.Now().UTC()) {
			t.Fatalf("checkpoint period end = %v, want %v", result.Checkpoint.PeriodEnd, deps.clock.Now())
		}

		aliceRows, err := deps.store.ListSnapshots(ctx, testWorkspace, "alice")
		if err != nil {
			t.Fatalf("list alice snapshots: %v", err)
		}
		if len(aliceRows) != 1 {
			t.Fatalf("alice snapshot count = %d, want 1", len(aliceRows))
		}
		alice := aliceRows[0]
		// 65 interval minutes minus 10 idle plus a +15 adjustment.
		if alice.Minutes != 70 {
			t.Fatalf("alice minutes = %d, want 70", alice.Minutes)
		}
		if alice.IdleMinutes != 10 || alice.Messages != 3 {
			t.Fatalf("alice idle/messages = %d/%d, want 10/3", alice.IdleMinutes, alice.Messages)
		}
		if alice.SessionsHosted != 1 || alice.SessionsAttended != 0 || alice.SessionsLogged != 1 {
			t.Fatalf("alice sessions = %d/%d/%d, want 1/0/1",
				alice.SessionsHosted, alice.SessionsAttended, alice.SessionsLogged)
		}

		bobRows, err := deps.store.ListSnapshots(ctx, testWorkspace, "bob")
		if err != nil {
			t.Fatalf("list bob snapshots: %v", err)
		}
		if len(bobRows) != 1 {
			t.Fatalf("bob snapshot count = %d, want 1", len(bobRows))
		}
		bob := bobRows[0]
		if bob.SessionsAttended != 1 || bob.SessionsHosted != 0 || bob.SessionsLogged != 1 {
			t.Fatalf("bob sessions = %d/%d/%d, want 0 hosted, 1 attended, 1 logged",
				bob.SessionsHosted, bob.SessionsAttended, bob.SessionsLogged)
		}
		if bob.AncillaryVisits != 2 || bob.AncillaryPosts != 1 {
			t.Fatalf("bob ancillary = %d/%d, want 2 visits, 1 post", bob.AncillaryVisits, bob.AncillaryPosts)
		}

		// Raw sources and elapsed occurrences are gone after the commit.
		intervals, err := deps.store.ListClosedIntervals(ctx, testWorkspace, time.Time{}, deps.clock.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("list intervals: %v", err)
		}
		if len(intervals) != 0 {
			t.Fatalf("intervals after rollup = %d, want 0", len(intervals))
		}
		if _, err := deps.store.GetOccurrence(ctx, occurrence.ID); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("elapsed occurrence still present: %v", err)
		}
	})

	t.Run("next epoch starts at the previous checkpoint", func(t *testing.T) {
		deps := newTestDeps(t)
		seedEpoch(t, deps)
		service := newRollupService(deps)
		ctx := context.Background()

		first, err := service.Rollup(ctx, RollupParams{
			Principal:   Principal{MemberID: "admin"},
			WorkspaceID: testWorkspace,
		})
		if err != nil {
			t.Fatalf("first rollup: %v", err)
		}

		deps.clock.Advance(time.Hour)
		second, err := service.Rollup(ctx, RollupParams{
			Principal:   Principal{MemberID: "admin"},
			WorkspaceID: testWorkspace,
		})
		if err != nil {
			t.Fatalf("second rollup: %v", err)
		}
		if !second.Checkpoint.PeriodStart.Equal(first.Checkpoint.PeriodEnd) {
			t.Fatalf("second epoch start = %v, want %v",
				second.Checkpoint.PeriodStart, first.Checkpoint.PeriodEnd)
		}
		if second.SnapshotsWritten != 0 {
			t.Fatalf("second rollup snapshots = %d, want 0 for an idle epoch", second.SnapshotsWritten)
		}
	})

	t.Run("requires the activity management capability", func(t *testing.T) {
		deps := newTestDeps(t)
		service := newRollupService(deps)

		_, err := service.Rollup(context.Background(), RollupParams{
			Principal:   Principal{MemberID: "alice"},
			WorkspaceID: testWorkspace,
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestQuotaProgress(t *testing.T) {
	t.Run("evaluates the live epoch and resets after rollup", func(t *testing.T) {
		deps := newTestDeps(t)
		seedEpoch(t, deps)
		service := newRollupService(deps)
		ctx := context.Background()

		if err := deps.store.CreateQuota(ctx, persistence.Quota{
			ID:          "q-1",
			WorkspaceID: testWorkspace,
			Name:        "Monthly minutes",
			Kind:        "minutes",
			Threshold:   140,
			RoleIDs:     []string{"trainer"},
		}); err != nil {
			t.Fatalf("seed quota: %v", err)
		}

		views, err := service.QuotaProgress(ctx, testWorkspace, "alice")
		if err != nil {
			t.Fatalf("QuotaProgress returned error: %v", err)
		}
		if len(views) != 1 {
			t.Fatalf("view count = %d, want 1", len(views))
		}
		if views[0].CurrentValue != 70 || views[0].Percentage != 50 {
			t.Fatalf("progress = %d (%v%%), want 70 (50%%)", views[0].CurrentValue, views[0].Percentage)
		}

		if _, err := service.Rollup(ctx, RollupParams{
			Principal:   Principal{MemberID: "admin"},
			WorkspaceID: testWorkspace,
		}); err != nil {
			t.Fatalf("rollup: %v", err)
		}

		views, err = service.QuotaProgress(ctx, testWorkspace, "alice")
		if err != nil {
			t.Fatalf("QuotaProgress after rollup: %v", err)
		}
		if len(views) != 1 || views[0].CurrentValue != 0 {
			t.Fatalf("progress after rollup = %+v, want current value 0", views)
		}
	})

	t.Run("caps the percentage at one hundred", func(t *testing.T) {
		deps := newTestDeps(t)
		seedEpoch(t, deps)
		service := newRollupService(deps)
		ctx := context.Background()

		if err := deps.store.CreateQuota(ctx, persistence.Quota{
			ID:          "q-1",
			WorkspaceID: testWorkspace,
			Name:        "Tiny target",
			Kind:        "minutes",
			Threshold:   30,
			RoleIDs:     []string{"trainer"},
		}); err != nil {
			t.Fatalf("seed quota: %v", err)
		}

		views, err := service.QuotaProgress(ctx, testWorkspace, "alice")
		if err != nil {
			t.Fatalf("QuotaProgress returned error: %v", err)
		}
		if len(views) != 1 || views[0].Percentage != 100 {
			t.Fatalf("progress = %+v, want capped at 100", views)
		}
	})

	t.Run("skips quotas outside the member's roles", func(t *testing.T) {
		deps := newTestDeps(t)
		seedEpoch(t, deps)
		service := newRollupService(deps)
		ctx := context.Background()

		if err := deps.store.CreateQuota(ctx, persistence.Quota{
			ID:          "q-1",
			WorkspaceID: testWorkspace,
			Name:        "Moderator minutes",
			Kind:        "minutes",
			Threshold:   100,
			RoleIDs:     []string{"moderator"},
		}); err != nil {
			t.Fatalf("seed quota: %v", err)
		}

		views, err := service.QuotaProgress(ctx, testWorkspace, "alice")
		if err != nil {
			t.Fatalf("QuotaProgress returned error: %v", err)
		}
		if len(views) != 0 {
			t.Fatalf("view count = %d, want 0", len(views))
		}
	})
}
