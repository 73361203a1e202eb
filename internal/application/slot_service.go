package application

import (
	"context"
	"time"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/accounting"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/persistence"
	"github.com/example/staff-scheduler/internal/ratelimit"
	"github.com/example/staff-scheduler/internal/recurrence"
)

// SlotService coordinates slot claims on pattern-dated session instances.
// Occurrence rows are materialized lazily on first claim, so claims keep
// working for dates whose rows were purged by a rollup.
type SlotService struct {
	sessionTypes persistence.SessionTypeRepository
	patterns     persistence.PatternRepository
	occurrences  persistence.OccurrenceRepository
	slots        persistence.SlotRepository
	members      persistence.MemberRepository
	env          Env
}

// NewSlotService wires the slot claim coordinator.
func NewSlotService(
	sessionTypes persistence.SessionTypeRepository,
	patterns persistence.PatternRepository,
	occurrences persistence.OccurrenceRepository,
	slots persistence.SlotRepository,
	members persistence.MemberRepository,
	env Env,
) *SlotService {
	return &SlotService{
		sessionTypes: sessionTypes,
		patterns:     patterns,
		occurrences:  occurrences,
		slots:        slots,
		members:      members,
		env:          env,
	}
}

// Claim assigns the acting member to the (role, slot-index) position of the
// pattern instance on the given date. Re-claiming an already held position is
// a no-op success; a position held by a different member is a conflict.
// Claiming a non-co-host position transfers host attribution.
func (s *SlotService) Claim(ctx context.Context, params ClaimSlotParams) (ClaimSlotResult, error) {
	logger := serviceLogger(ctx, s.env.Logger, "slot", "claim")

	if !s.env.allow(params.WorkspaceID, params.Principal.MemberID, ratelimit.OpClaim) {
		return ClaimSlotResult{}, ErrRateLimited
	}

	prepared, err := s.prepare(ctx, params)
	if err != nil {
		return ClaimSlotResult{}, err
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	now := s.env.clock()
	candidate := persistence.Occurrence{
		ID:            s.env.id(),
		SessionTypeID: prepared.sessionType.ID,
		PatternID:     &prepared.pattern.ID,
		StartsAt:      prepared.instant,
		Category:      prepared.sessionType.Category,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	assignment := persistence.SlotAssignment{
		ID:           s.env.id(),
		OccurrenceID: candidate.ID,
		MemberID:     params.Principal.MemberID,
		RoleID:       params.RoleID,
		SlotIndex:    params.SlotIndex,
		CreatedAt:    now,
	}
	setHost := !accounting.IsCoHostSlot(params.RoleID, prepared.label)

	occurrence, err := s.slots.ClaimSlot(storeCtx, candidate, assignment, setHost)
	if err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "slot claim failed", "error", err, "error_kind", ErrorKind(mapped))
		return ClaimSlotResult{}, mapped
	}

	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "slot.claim",
		Subject:     occurrence.ID,
		Metadata: map[string]any{
			"pattern_id": prepared.pattern.ID,
			"role_id":    params.RoleID,
			"slot_index": params.SlotIndex,
			"starts_at":  prepared.instant.Format(time.RFC3339),
		},
	})
	logger.InfoContext(ctx, "slot claimed", "occurrence_id", occurrence.ID, "role_id", params.RoleID)

	return s.enrich(storeCtx, params.WorkspaceID, occurrence)
}

// Release removes the acting member's claim on the (role, slot-index)
// position. Releasing a date that was never materialized is a not-found
// error. Host attribution is cleared when the releasing member held it.
func (s *SlotService) Release(ctx context.Context, params ClaimSlotParams) (ClaimSlotResult, error) {
	logger := serviceLogger(ctx, s.env.Logger, "slot", "release")

	if !s.env.allow(params.WorkspaceID, params.Principal.MemberID, ratelimit.OpClaim) {
		return ClaimSlotResult{}, ErrRateLimited
	}

	prepared, err := s.prepare(ctx, params)
	if err != nil {
		return ClaimSlotResult{}, err
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	existing, err := s.occurrences.GetOccurrenceByStart(storeCtx, prepared.sessionType.ID, prepared.instant)
	if err != nil {
		return ClaimSlotResult{}, mapStorageError(err)
	}

	occurrence, err := s.slots.ReleaseSlot(storeCtx, existing.ID, params.RoleID, params.SlotIndex)
	if err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "slot release failed", "error", err, "error_kind", ErrorKind(mapped))
		return ClaimSlotResult{}, mapped
	}

	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "slot.release",
		Subject:     occurrence.ID,
		Metadata: map[string]any{
			"pattern_id": prepared.pattern.ID,
			"role_id":    params.RoleID,
			"slot_index": params.SlotIndex,
		},
	})

	return s.enrich(storeCtx, params.WorkspaceID, occurrence)
}

type preparedClaim struct {
	pattern     persistence.RecurrencePattern
	sessionType persistence.SessionType
	instant     time.Time
	label       string
}

// prepare validates the request, loads the pattern and its session type,
// checks hosting authorization and derives the occurrence instant from the
// pattern's stored UTC time-of-day.
func (s *SlotService) prepare(ctx context.Context, params ClaimSlotParams) (preparedClaim, error) {
	validation := &ValidationError{}
	day, ok := parseDate(params.Date)
	if !ok {
		validation.add("date", "date must be formatted as 2006-01-02")
	}
	if params.RoleID == "" {
		validation.add("role_id", "role is required")
	}
	if params.SlotIndex < 0 {
		validation.add("slot_index", "slot index must not be negative")
	}
	if validation.HasErrors() {
		return preparedClaim{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	pattern, err := s.patterns.GetPattern(storeCtx, params.PatternID)
	if err != nil {
		return preparedClaim{}, mapStorageError(err)
	}
	sessionType, err := s.sessionTypes.GetSessionType(storeCtx, pattern.SessionTypeID)
	if err != nil {
		return preparedClaim{}, mapStorageError(err)
	}
	if sessionType.WorkspaceID != params.WorkspaceID {
		return preparedClaim{}, ErrNotFound
	}

	if err := s.authorize(storeCtx, params.WorkspaceID, params.Principal.MemberID, sessionType); err != nil {
		return preparedClaim{}, err
	}

	label := params.RoleID
	if len(sessionType.Slots) > 0 {
		var def *persistence.SlotDefinition
		for i := range sessionType.Slots {
			if sessionType.Slots[i].RoleID == params.RoleID {
				def = &sessionType.Slots[i]
				break
			}
		}
		if def == nil {
			validation.add("role_id", "role has no slot on this session type")
			return preparedClaim{}, validation
		}
		if params.SlotIndex >= def.Count {
			validation.add("slot_index", "slot index exceeds the configured count")
			return preparedClaim{}, validation
		}
		label = def.Label
	}

	return preparedClaim{
		pattern:     pattern,
		sessionType: sessionType,
		instant:     recurrence.CombineUTC(day, pattern.Hour, pattern.Minute),
		label:       label,
	}, nil
}

// authorize admits members holding one of the session type's hosting roles or
// the session management capability.
func (s *SlotService) authorize(ctx context.Context, workspaceID, memberID string, sessionType persistence.SessionType) error {
	if s.env.Checker == nil {
		return ErrUnauthorized
	}
	if len(sessionType.HostingRoleIDs) > 0 {
		ok, err := s.env.Checker.HoldsAnyRole(ctx, workspaceID, memberID, sessionType.HostingRoleIDs)
		if err != nil {
			return mapStorageError(err)
		}
		if ok {
			return nil
		}
	}
	return s.env.requireCapability(ctx, workspaceID, memberID, access.CapabilityManageSessions)
}

func (s *SlotService) enrich(ctx context.Context, workspaceID string, occurrence persistence.Occurrence) (ClaimSlotResult, error) {
	assignments, err := s.slots.ListAssignmentsForOccurrences(ctx, []string{occurrence.ID})
	if err != nil {
		return ClaimSlotResult{}, mapStorageError(err)
	}

	views := make([]AssignmentView, 0, len(assignments))
	for _, assignment := range assignments {
		view := AssignmentView{
			MemberID:  assignment.MemberID,
			RoleID:    assignment.RoleID,
			SlotIndex: assignment.SlotIndex,
		}
		if member, err := s.members.GetMember(ctx, workspaceID, assignment.MemberID); err == nil {
			view.DisplayName = member.DisplayName
		}
		views = append(views, view)
	}
	return ClaimSlotResult{Occurrence: occurrence, Assignments: views}, nil
}
