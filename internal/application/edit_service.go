package application

import (
	"context"
	"time"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/persistence"
	"github.com/example/staff-scheduler/internal/ratelimit"
)

// EditService applies scoped edits to occurrence rows.
type EditService struct {
	sessionTypes persistence.SessionTypeRepository
	occurrences  persistence.OccurrenceRepository
	env          Env
}

// NewEditService wires the edit scope resolver.
func NewEditService(
	sessionTypes persistence.SessionTypeRepository,
	occurrences persistence.OccurrenceRepository,
	env Env,
) *EditService {
	return &EditService{
		sessionTypes: sessionTypes,
		occurrences:  occurrences,
		env:          env,
	}
}

// UpdateOccurrences edits the named occurrence and, for the future scope,
// every later sibling of its pattern on the same weekday, or for the all
// scope, every sibling of the pattern. Time changes are reprojected onto
// each target's own date; date changes are only valid for the single scope.
// All rows are written in one transaction.
func (s *EditService) UpdateOccurrences(ctx context.Context, params UpdateOccurrencesParams) (UpdateOccurrencesResult, error) {
	logger := serviceLogger(ctx, s.env.Logger, "edit", "update_occurrences")

	if !s.env.allow(params.WorkspaceID, params.Principal.MemberID, ratelimit.OpEdit) {
		return UpdateOccurrencesResult{}, ErrRateLimited
	}
	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityManageSessions); err != nil {
		return UpdateOccurrencesResult{}, err
	}

	validation := &ValidationError{}
	switch params.Scope {
	case ScopeSingle, ScopeFuture, ScopeAll:
	default:
		validation.add("scope", "scope must be single, future or all")
	}
	if params.Changes.empty() {
		validation.add("changes", "at least one change is required")
	}
	if params.Changes.Date != nil && params.Scope != ScopeSingle {
		validation.add("date", "date can only change for a single occurrence")
	}
	var newDate time.Time
	if params.Changes.Date != nil {
		parsed, ok := parseDate(*params.Changes.Date)
		if !ok {
			validation.add("date", "date must be formatted as 2006-01-02")
		}
		newDate = parsed
	}
	if params.Changes.Time != nil {
		t := *params.Changes.Time
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			validation.add("time", "time must be a valid wall-clock value")
		}
	}
	if params.Changes.DurationMinutes != nil && *params.Changes.DurationMinutes <= 0 {
		validation.add("duration_minutes", "duration must be positive")
	}
	if validation.HasErrors() {
		return UpdateOccurrencesResult{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	anchor, err := s.occurrences.GetOccurrence(storeCtx, params.OccurrenceID)
	if err != nil {
		return UpdateOccurrencesResult{}, mapStorageError(err)
	}
	if err := s.checkWorkspace(storeCtx, anchor.SessionTypeID, params.WorkspaceID); err != nil {
		return UpdateOccurrencesResult{}, err
	}

	targets, err := s.resolveTargets(storeCtx, anchor, params.Scope)
	if err != nil {
		return UpdateOccurrencesResult{}, err
	}

	now := s.env.clock()
	updated := make([]persistence.Occurrence, 0, len(targets))
	for _, target := range targets {
		day := target.StartsAt.UTC()
		if params.Changes.Date != nil && target.ID == anchor.ID {
			day = newDate
		}
		hour, minute := target.StartsAt.UTC().Hour(), target.StartsAt.UTC().Minute()
		if params.Changes.Time != nil {
			hour, minute = params.Changes.Time.Hour, params.Changes.Time.Minute
		}
		target.StartsAt = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
		if params.Changes.DurationMinutes != nil {
			target.DurationMinutes = params.Changes.DurationMinutes
		}
		if params.Changes.Name != nil {
			name := *params.Changes.Name
			target.Name = &name
		}
		if params.Changes.Description != nil {
			description := *params.Changes.Description
			target.Description = &description
		}
		target.UpdatedAt = now
		updated = append(updated, target)
	}

	if err := s.occurrences.UpdateOccurrences(storeCtx, updated); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "occurrence update failed", "error", err, "error_kind", ErrorKind(mapped))
		return UpdateOccurrencesResult{}, mapped
	}

	patternID := ""
	if anchor.PatternID != nil {
		patternID = *anchor.PatternID
	}
	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "occurrence.update",
		Subject:     anchor.ID,
		Metadata: map[string]any{
			"scope":      params.Scope,
			"pattern_id": patternID,
			"weekday":    int(anchor.StartsAt.UTC().Weekday()),
			"count":      len(updated),
		},
	})
	logger.InfoContext(ctx, "occurrences updated", "scope", params.Scope, "count", len(updated))

	return UpdateOccurrencesResult{Updated: updated}, nil
}

// SetLifecycle flips the started/ended flags of one occurrence.
func (s *EditService) SetLifecycle(ctx context.Context, params LifecycleParams) (persistence.Occurrence, error) {
	logger := serviceLogger(ctx, s.env.Logger, "edit", "set_lifecycle")

	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityManageSessions); err != nil {
		return persistence.Occurrence{}, err
	}
	if params.Started == nil && params.Ended == nil {
		validation := &ValidationError{}
		validation.add("changes", "at least one flag is required")
		return persistence.Occurrence{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	occurrence, err := s.occurrences.GetOccurrence(storeCtx, params.OccurrenceID)
	if err != nil {
		return persistence.Occurrence{}, mapStorageError(err)
	}
	if err := s.checkWorkspace(storeCtx, occurrence.SessionTypeID, params.WorkspaceID); err != nil {
		return persistence.Occurrence{}, err
	}

	if params.Started != nil {
		occurrence.Started = *params.Started
	}
	if params.Ended != nil {
		occurrence.Ended = *params.Ended
	}
	occurrence.UpdatedAt = s.env.clock()

	if err := s.occurrences.UpdateOccurrence(storeCtx, occurrence); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "lifecycle update failed", "error", err, "error_kind", ErrorKind(mapped))
		return persistence.Occurrence{}, mapped
	}

	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "occurrence.lifecycle",
		Subject:     occurrence.ID,
		Metadata: map[string]any{
			"started": occurrence.Started,
			"ended":   occurrence.Ended,
		},
	})

	return occurrence, nil
}

func (s *EditService) checkWorkspace(ctx context.Context, sessionTypeID, workspaceID string) error {
	sessionType, err := s.sessionTypes.GetSessionType(ctx, sessionTypeID)
	if err != nil {
		return mapStorageError(err)
	}
	if sessionType.WorkspaceID != workspaceID {
		return ErrNotFound
	}
	return nil
}

// resolveTargets expands the scope into the concrete rows to rewrite. The
// future scope stays on the anchor's weekday and drops rows dated before the
// anchor; the all scope covers every occurrence of the pattern.
func (s *EditService) resolveTargets(ctx context.Context, anchor persistence.Occurrence, scope string) ([]persistence.Occurrence, error) {
	if scope == ScopeSingle {
		return []persistence.Occurrence{anchor}, nil
	}
	if anchor.PatternID == nil {
		validation := &ValidationError{}
		validation.add("scope", "future and all scopes require a pattern occurrence")
		return nil, validation
	}

	siblings, err := s.occurrences.ListOccurrencesForPattern(ctx, *anchor.PatternID)
	if err != nil {
		return nil, mapStorageError(err)
	}

	weekday := anchor.StartsAt.UTC().Weekday()
	anchorDay := truncateToDay(anchor.StartsAt)
	targets := make([]persistence.Occurrence, 0, len(siblings))
	for _, sibling := range siblings {
		if scope == ScopeFuture {
			if sibling.StartsAt.UTC().Weekday() != weekday {
				continue
			}
			if truncateToDay(sibling.StartsAt).Before(anchorDay) {
				continue
			}
		}
		targets = append(targets, sibling)
	}
	return targets, nil
}

func truncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
