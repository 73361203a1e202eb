package application

import (
	"context"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/persistence"
)

// ActivityService captures the raw activity rows rollups consume: clock
// intervals, manual adjustments and ancillary counters.
type ActivityService struct {
	activity persistence.ActivityRepository
	env      Env
}

// NewActivityService wires the activity capture surface.
func NewActivityService(activity persistence.ActivityRepository, env Env) *ActivityService {
	return &ActivityService{activity: activity, env: env}
}

// ClockIn opens an activity interval for the acting member. A member can hold
// at most one open interval per workspace.
func (s *ActivityService) ClockIn(ctx context.Context, params ClockInParams) (persistence.ActivityInterval, error) {
	logger := serviceLogger(ctx, s.env.Logger, "activity", "clock_in")

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	interval := persistence.ActivityInterval{
		ID:          s.env.id(),
		WorkspaceID: params.WorkspaceID,
		MemberID:    params.Principal.MemberID,
		StartedAt:   s.env.clock().UTC(),
		UniverseID:  params.UniverseID,
	}
	if err := s.activity.OpenInterval(storeCtx, interval); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "clock-in failed", "error", err, "error_kind", ErrorKind(mapped))
		return persistence.ActivityInterval{}, mapped
	}
	return interval, nil
}

// ClockOut closes the acting member's open interval, recording its idle time
// and message count.
func (s *ActivityService) ClockOut(ctx context.Context, params ClockOutParams) (persistence.ActivityInterval, error) {
	logger := serviceLogger(ctx, s.env.Logger, "activity", "clock_out")

	validation := &ValidationError{}
	if params.IdleSeconds < 0 {
		validation.add("idle_seconds", "idle seconds must not be negative")
	}
	if params.MessageCount < 0 {
		validation.add("message_count", "message count must not be negative")
	}
	if validation.HasErrors() {
		return persistence.ActivityInterval{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	interval, err := s.activity.CloseInterval(storeCtx, params.WorkspaceID, params.Principal.MemberID,
		s.env.clock().UTC(), params.IdleSeconds, params.MessageCount)
	if err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "clock-out failed", "error", err, "error_kind", ErrorKind(mapped))
		return persistence.ActivityInterval{}, mapped
	}
	return interval, nil
}

// AddAdjustment applies a signed manual minutes delta to a member's accounted
// time, attributed to the acting administrator.
func (s *ActivityService) AddAdjustment(ctx context.Context, params AdjustmentParams) (persistence.ActivityAdjustment, error) {
	logger := serviceLogger(ctx, s.env.Logger, "activity", "add_adjustment")

	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityManageActivity); err != nil {
		return persistence.ActivityAdjustment{}, err
	}

	validation := &ValidationError{}
	if params.MemberID == "" {
		validation.add("member_id", "member is required")
	}
	if params.Minutes == 0 {
		validation.add("minutes", "minutes must not be zero")
	}
	if validation.HasErrors() {
		return persistence.ActivityAdjustment{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	adjustment := persistence.ActivityAdjustment{
		ID:          s.env.id(),
		WorkspaceID: params.WorkspaceID,
		MemberID:    params.MemberID,
		ActorID:     params.Principal.MemberID,
		Minutes:     params.Minutes,
		CreatedAt:   s.env.clock().UTC(),
	}
	if err := s.activity.CreateAdjustment(storeCtx, adjustment); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "adjustment failed", "error", err, "error_kind", ErrorKind(mapped))
		return persistence.ActivityAdjustment{}, mapped
	}

	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "activity.adjust",
		Subject:     params.MemberID,
		Metadata:    map[string]any{"minutes": params.Minutes},
	})
	return adjustment, nil
}

// RecordAncillary records one visit or post counter row for the acting
// member.
func (s *ActivityService) RecordAncillary(ctx context.Context, params AncillaryEventParams) (persistence.AncillaryEvent, error) {
	logger := serviceLogger(ctx, s.env.Logger, "activity", "record_ancillary")

	if params.Kind != "visit" && params.Kind != "post" {
		validation := &ValidationError{}
		validation.add("kind", "kind must be visit or post")
		return persistence.AncillaryEvent{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	occurredAt := s.env.clock().UTC()
	if params.OccurredAt != nil {
		occurredAt = params.OccurredAt.UTC()
	}
	event := persistence.AncillaryEvent{
		ID:          s.env.id(),
		WorkspaceID: params.WorkspaceID,
		MemberID:    params.Principal.MemberID,
		Kind:        params.Kind,
		OccurredAt:  occurredAt,
	}
	if err := s.activity.RecordAncillaryEvent(storeCtx, event); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "ancillary event failed", "error", err, "error_kind", ErrorKind(mapped))
		return persistence.AncillaryEvent{}, mapped
	}
	return event, nil
}
