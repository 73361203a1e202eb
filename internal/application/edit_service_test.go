package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedPattern(t *testing.T, deps *testDeps) CreatePatternResult {
	t.Helper()
	deps.addSessionType(t, "st-1", false)
	schedule := NewScheduleService(deps.store, deps.store, deps.store, deps.env)
	result, err := schedule.CreatePattern(context.Background(), weeklyPatternParams("manager"))
	if err != nil {
		t.Fatalf("seed pattern: %v", err)
	}
	return result
}

func seedMultiWeekdayPattern(t *testing.T, deps *testDeps) CreatePatternResult {
	t.Helper()
	deps.addSessionType(t, "st-1", false)
	params := weeklyPatternParams("manager")
	params.Weekdays = []int{int(time.Wednesday), int(time.Friday)}
	schedule := NewScheduleService(deps.store, deps.store, deps.store, deps.env)
	result, err := schedule.CreatePattern(context.Background(), params)
	if err != nil {
		t.Fatalf("seed multi-weekday pattern: %v", err)
	}
	return result
}

func TestUpdateOccurrences(t *testing.T) {
	t.Run("single scope moves one occurrence", func(t *testing.T) {
		deps := newTestDeps(t)
		seeded := seedPattern(t, deps)
		service := NewEditService(deps.store, deps.store, deps.env)

		anchor := seeded.Occurrences[0]
		date := "2024-03-07"
		result, err := service.UpdateOccurrences(context.Background(), UpdateOccurrencesParams{
			Principal:    Principal{MemberID: "manager"},
			WorkspaceID:  testWorkspace,
			OccurrenceID: anchor.ID,
			Scope:        ScopeSingle,
			Changes: OccurrenceChanges{
				Date: &date,
				Time: &TimeOfDay{Hour: 19, Minute: 30},
			},
		})
		if err != nil {
			t.Fatalf("UpdateOccurrences returned error: %v", err)
		}
		if len(result.Updated) != 1 {
			t.Fatalf("updated count = %d, want 1", len(result.Updated))
		}
		want := time.Date(2024, time.March, 7, 19, 30, 0, 0, time.UTC)
		if !result.Updated[0].StartsAt.Equal(want) {
			t.Fatalf("StartsAt = %v, want %v", result.Updated[0].StartsAt, want)
		}

		// Siblings keep their instants.
		sibling, err := deps.store.GetOccurrence(context.Background(), seeded.Occurrences[1].ID)
		if err != nil {
			t.Fatalf("get sibling: %v", err)
		}
		if !sibling.StartsAt.Equal(seeded.Occurrences[1].StartsAt) {
			t.Fatalf("sibling moved to %v", sibling.StartsAt)
		}
	})

	t.Run("future scope reprojects time onto each date", func(t *testing.T) {
		deps := newTestDeps(t)
		seeded := seedPattern(t, deps)
		service := NewEditService(deps.store, deps.store, deps.env)

		anchor := seeded.Occurrences[2]
		result, err := service.UpdateOccurrences(context.Background(), UpdateOccurrencesParams{
			Principal:    Principal{MemberID: "manager"},
			WorkspaceID:  testWorkspace,
			OccurrenceID: anchor.ID,
			Scope:        ScopeFuture,
			Changes:      OccurrenceChanges{Time: &TimeOfDay{Hour: 20, Minute: 15}},
		})
		if err != nil {
			t.Fatalf("UpdateOccurrences returned error: %v", err)
		}
		if got := len(result.Updated); got != 50 {
			t.Fatalf("updated count = %d, want 50", got)
		}
		for _, updated := range result.Updated {
			if updated.StartsAt.Hour() != 20 || updated.StartsAt.Minute() != 15 {
				t.Fatalf("occurrence %s time = %v, want 20:15", updated.ID, updated.StartsAt)
			}
			if truncateToDay(updated.StartsAt).Before(truncateToDay(anchor.StartsAt)) {
				t.Fatalf("occurrence %s dated before the anchor", updated.ID)
			}
		}

		// Occurrences before the anchor keep the original time.
		earlier, err := deps.store.GetOccurrence(context.Background(), seeded.Occurrences[0].ID)
		if err != nil {
			t.Fatalf("get earlier occurrence: %v", err)
		}
		if earlier.StartsAt.Hour() != 18 {
			t.Fatalf("earlier occurrence time = %v, want 18:00", earlier.StartsAt)
		}
	})

	t.Run("all scope covers every occurrence of the pattern", func(t *testing.T) {
		deps := newTestDeps(t)
		seeded := seedMultiWeekdayPattern(t, deps)
		service := NewEditService(deps.store, deps.store, deps.env)
		if got := len(seeded.Occurrences); got != 104 {
			t.Fatalf("seeded occurrence count = %d, want 104", got)
		}

		name := "Renamed training"
		result, err := service.UpdateOccurrences(context.Background(), UpdateOccurrencesParams{
			Principal:    Principal{MemberID: "manager"},
			WorkspaceID:  testWorkspace,
			OccurrenceID: seeded.Occurrences[0].ID,
			Scope:        ScopeAll,
			Changes:      OccurrenceChanges{Name: &name},
		})
		if err != nil {
			t.Fatalf("UpdateOccurrences returned error: %v", err)
		}
		if got := len(result.Updated); got != 104 {
			t.Fatalf("updated count = %d, want 104", got)
		}

		weekdays := make(map[time.Weekday]int)
		for _, updated := range result.Updated {
			if updated.Name == nil || *updated.Name != name {
				t.Fatalf("occurrence %s not renamed", updated.ID)
			}
			weekdays[updated.StartsAt.UTC().Weekday()]++
		}
		if weekdays[time.Wednesday] != 52 || weekdays[time.Friday] != 52 {
			t.Fatalf("updated weekdays = %v, want 52 Wednesdays and 52 Fridays", weekdays)
		}
	})

	t.Run("future scope stays on the anchor weekday", func(t *testing.T) {
		deps := newTestDeps(t)
		seeded := seedMultiWeekdayPattern(t, deps)
		service := NewEditService(deps.store, deps.store, deps.env)

		// Sorted expansion interleaves Wed/Fri; index 4 is the third Wednesday.
		anchor := seeded.Occurrences[4]
		if anchor.StartsAt.UTC().Weekday() != time.Wednesday {
			t.Fatalf("anchor weekday = %v, want Wednesday", anchor.StartsAt.UTC().Weekday())
		}
		result, err := service.UpdateOccurrences(context.Background(), UpdateOccurrencesParams{
			Principal:    Principal{MemberID: "manager"},
			WorkspaceID:  testWorkspace,
			OccurrenceID: anchor.ID,
			Scope:        ScopeFuture,
			Changes:      OccurrenceChanges{Time: &TimeOfDay{Hour: 21}},
		})
		if err != nil {
			t.Fatalf("UpdateOccurrences returned error: %v", err)
		}
		if got := len(result.Updated); got != 50 {
			t.Fatalf("updated count = %d, want 50", got)
		}
		for _, updated := range result.Updated {
			if updated.StartsAt.UTC().Weekday() != time.Wednesday {
				t.Fatalf("occurrence %s weekday = %v, want Wednesday", updated.ID, updated.StartsAt.UTC().Weekday())
			}
		}

		// Fridays are untouched.
		friday, err := deps.store.GetOccurrence(context.Background(), seeded.Occurrences[1].ID)
		if err != nil {
			t.Fatalf("get friday occurrence: %v", err)
		}
		if friday.StartsAt.Hour() != 18 {
			t.Fatalf("friday occurrence time = %v, want 18:00", friday.StartsAt)
		}
	})

	t.Run("rejects date changes beyond the single scope", func(t *testing.T) {
		deps := newTestDeps(t)
		seeded := seedPattern(t, deps)
		service := NewEditService(deps.store, deps.store, deps.env)

		date := "2024-03-08"
		_, err := service.UpdateOccurrences(context.Background(), UpdateOccurrencesParams{
			Principal:    Principal{MemberID: "manager"},
			WorkspaceID:  testWorkspace,
			OccurrenceID: seeded.Occurrences[0].ID,
			Scope:        ScopeFuture,
			Changes:      OccurrenceChanges{Date: &date},
		})
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, ok := validation.FieldErrors["date"]; !ok {
			t.Fatalf("field errors = %v, want date entry", validation.FieldErrors)
		}
	})

	t.Run("pattern scopes reject ad-hoc occurrences", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.addSessionType(t, "st-1", true)
		schedule := NewScheduleService(deps.store, deps.store, deps.store, deps.env)
		occurrence, err := schedule.CreateUnscheduled(context.Background(), CreateUnscheduledParams{
			Principal:     Principal{MemberID: "manager"},
			WorkspaceID:   testWorkspace,
			SessionTypeID: "st-1",
			Name:          "One-off",
			Date:          "2024-04-01",
			Hour:          10,
		})
		if err != nil {
			t.Fatalf("seed ad-hoc occurrence: %v", err)
		}
		service := NewEditService(deps.store, deps.store, deps.env)

		_, err = service.UpdateOccurrences(context.Background(), UpdateOccurrencesParams{
			Principal:    Principal{MemberID: "manager"},
			WorkspaceID:  testWorkspace,
			OccurrenceID: occurrence.ID,
			Scope:        ScopeAll,
			Changes:      OccurrenceChanges{Time: &TimeOfDay{Hour: 11}},
		})
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("audits scope and affected count", func(t *testing.T) {
		deps := newTestDeps(t)
		seeded := seedPattern(t, deps)
		service := NewEditService(deps.store, deps.store, deps.env)

		_, err := service.UpdateOccurrences(context.Background(), UpdateOccurrencesParams{
			Principal:    Principal{MemberID: "manager"},
			WorkspaceID:  testWorkspace,
			OccurrenceID: seeded.Occurrences[0].ID,
			Scope:        ScopeAll,
			Changes:      OccurrenceChanges{Time: &TimeOfDay{Hour: 9}},
		})
		if err != nil {
			t.Fatalf("UpdateOccurrences returned error: %v", err)
		}

		entries := deps.sink.Entries()
		var found bool
		for _, entry := range entries {
			if entry.Action != "occurrence.update" {
				continue
			}
			found = true
			if entry.Metadata["scope"] != ScopeAll {
				t.Fatalf("audit scope = %v, want all", entry.Metadata["scope"])
			}
			if entry.Metadata["count"] != 52 {
				t.Fatalf("audit count = %v, want 52", entry.Metadata["count"])
			}
			if entry.Metadata["weekday"] != int(time.Wednesday) {
				t.Fatalf("audit weekday = %v, want %d", entry.Metadata["weekday"], int(time.Wednesday))
			}
		}
		if !found {
			t.Fatal("no occurrence.update audit entry recorded")
		}
	})
}

func TestSetLifecycle(t *testing.T) {
	deps := newTestDeps(t)
	seeded := seedPattern(t, deps)
	service := NewEditService(deps.store, deps.store, deps.env)

	started := true
	occurrence, err := service.SetLifecycle(context.Background(), LifecycleParams{
		Principal:    Principal{MemberID: "manager"},
		WorkspaceID:  testWorkspace,
		OccurrenceID: seeded.Occurrences[0].ID,
		Started:      &started,
	})
	if err != nil {
		t.Fatalf("SetLifecycle returned error: %v", err)
	}
	if !occurrence.Started || occurrence.Ended {
		t.Fatalf("flags = started:%v ended:%v, want started only", occurrence.Started, occurrence.Ended)
	}
}
