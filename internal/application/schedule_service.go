package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/persistence"
	"github.com/example/staff-scheduler/internal/ratelimit"
	"github.com/example/staff-scheduler/internal/recurrence"
)

// ScheduleService creates recurrence patterns and ad-hoc occurrences.
type ScheduleService struct {
	sessionTypes persistence.SessionTypeRepository
	patterns     persistence.PatternRepository
	occurrences  persistence.OccurrenceRepository
	env          Env
}

// NewScheduleService wires the occurrence generator.
func NewScheduleService(
	sessionTypes persistence.SessionTypeRepository,
	patterns persistence.PatternRepository,
	occurrences persistence.OccurrenceRepository,
	env Env,
) *ScheduleService {
	return &ScheduleService{
		sessionTypes: sessionTypes,
		patterns:     patterns,
		occurrences:  occurrences,
		env:          env,
	}
}

// CreatePattern validates the recurrence definition, expands it into dated
// occurrence rows and persists pattern plus rows in one transaction.
func (s *ScheduleService) CreatePattern(ctx context.Context, params CreatePatternParams) (CreatePatternResult, error) {
	logger := serviceLogger(ctx, s.env.Logger, "schedule", "create_pattern")

	if !s.env.allow(params.WorkspaceID, params.Principal.MemberID, ratelimit.OpCreate) {
		return CreatePatternResult{}, ErrRateLimited
	}
	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityManageSessions); err != nil {
		return CreatePatternResult{}, err
	}

	validation := &ValidationError{}
	if params.Name == "" {
		validation.add("name", "name is required")
	}
	if params.SessionTypeID == "" {
		validation.add("session_type_id", "session type is required")
	}
	if params.DurationMinutes != nil && *params.DurationMinutes <= 0 {
		validation.add("duration_minutes", "duration must be positive")
	}

	def, defErr := buildDefinition(params.Weekdays, params.Hour, params.Minute, params.Frequency)
	if defErr != nil {
		mergeDefinitionError(validation, defErr)
	}
	if validation.HasErrors() {
		return CreatePatternResult{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	sessionType, err := s.sessionTypes.GetSessionType(storeCtx, params.SessionTypeID)
	if err != nil {
		return CreatePatternResult{}, mapStorageError(err)
	}
	if sessionType.WorkspaceID != params.WorkspaceID {
		return CreatePatternResult{}, ErrNotFound
	}

	now := s.env.clock()
	expansion, err := recurrence.Expand(def, params.UTCOffsetMinutes, now)
	if err != nil {
		if errors.Is(err, recurrence.ErrNoOccurrences) {
			validation.add("weekdays", "pattern produces no future occurrences")
			return CreatePatternResult{}, validation
		}
		mergeDefinitionError(validation, err)
		return CreatePatternResult{}, validation
	}

	category := params.Category
	if category == "" {
		category = sessionType.Category
	}

	pattern := persistence.RecurrencePattern{
		ID:            s.env.id(),
		SessionTypeID: sessionType.ID,
		Weekdays:      def.Weekdays,
		Hour:          expansion.UTCHour,
		Minute:        expansion.UTCMinute,
		Frequency:     def.Frequency.String(),
		CreatedAt:     now,
	}

	name := params.Name
	rows := make([]persistence.Occurrence, 0, len(expansion.Starts))
	for _, start := range expansion.Starts {
		rows = append(rows, persistence.Occurrence{
			ID:              s.env.id(),
			SessionTypeID:   sessionType.ID,
			PatternID:       &pattern.ID,
			StartsAt:        start,
			DurationMinutes: params.DurationMinutes,
			Name:            &name,
			Description:     params.Description,
			Category:        category,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := s.patterns.CreatePatternWithOccurrences(storeCtx, pattern, rows); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "pattern creation failed", "error", err, "error_kind", ErrorKind(mapped))
		return CreatePatternResult{}, mapped
	}

	if s.env.Metrics != nil {
		s.env.Metrics.OccurrencesGenerated.Add(float64(len(rows)))
	}
	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "pattern.create",
		Subject:     pattern.ID,
		Metadata: map[string]any{
			"session_type_id": sessionType.ID,
			"frequency":       pattern.Frequency,
			"occurrences":     len(rows),
		},
	})
	logger.InfoContext(ctx, "pattern created", "pattern_id", pattern.ID, "occurrences", len(rows))

	return CreatePatternResult{Pattern: pattern, Occurrences: rows}, nil
}

// CreateUnscheduled creates one ad-hoc occurrence outside any pattern. The
// session type must allow unscheduled instances.
func (s *ScheduleService) CreateUnscheduled(ctx context.Context, params CreateUnscheduledParams) (persistence.Occurrence, error) {
	logger := serviceLogger(ctx, s.env.Logger, "schedule", "create_unscheduled")

	if !s.env.allow(params.WorkspaceID, params.Principal.MemberID, ratelimit.OpCreate) {
		return persistence.Occurrence{}, ErrRateLimited
	}
	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityManageSessions); err != nil {
		return persistence.Occurrence{}, err
	}

	validation := &ValidationError{}
	if params.Name == "" {
		validation.add("name", "name is required")
	}
	if params.Hour < 0 || params.Hour > 23 || params.Minute < 0 || params.Minute > 59 {
		validation.add("time", "time must be a valid wall-clock value")
	}
	day, ok := parseDate(params.Date)
	if !ok {
		validation.add("date", "date must be formatted as 2006-01-02")
	}
	if params.DurationMinutes != nil && *params.DurationMinutes <= 0 {
		validation.add("duration_minutes", "duration must be positive")
	}
	if validation.HasErrors() {
		return persistence.Occurrence{}, validation
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	sessionType, err := s.sessionTypes.GetSessionType(storeCtx, params.SessionTypeID)
	if err != nil {
		return persistence.Occurrence{}, mapStorageError(err)
	}
	if sessionType.WorkspaceID != params.WorkspaceID {
		return persistence.Occurrence{}, ErrNotFound
	}
	if !sessionType.AllowUnscheduled {
		validation.add("session_type_id", "session type does not allow unscheduled instances")
		return persistence.Occurrence{}, validation
	}

	local := time.Date(day.Year(), day.Month(), day.Day(), params.Hour, params.Minute, 0, 0, time.UTC)
	startsAt := local.Add(-time.Duration(params.UTCOffsetMinutes) * time.Minute)

	category := params.Category
	if category == "" {
		category = sessionType.Category
	}

	now := s.env.clock()
	name := params.Name
	occurrence := persistence.Occurrence{
		ID:              s.env.id(),
		SessionTypeID:   sessionType.ID,
		StartsAt:        startsAt,
		DurationMinutes: params.DurationMinutes,
		Name:            &name,
		Description:     params.Description,
		Category:        category,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.occurrences.CreateOccurrence(storeCtx, occurrence); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "unscheduled creation failed", "error", err, "error_kind", ErrorKind(mapped))
		return persistence.Occurrence{}, mapped
	}

	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "occurrence.create",
		Subject:     occurrence.ID,
		Metadata: map[string]any{
			"session_type_id": sessionType.ID,
			"starts_at":       startsAt.Format(time.RFC3339),
		},
	})
	logger.InfoContext(ctx, "unscheduled occurrence created", "occurrence_id", occurrence.ID)

	return occurrence, nil
}

func buildDefinition(weekdays []int, hour, minute int, frequency string) (recurrence.Definition, error) {
	parsed, err := recurrence.ParseFrequency(frequency)
	if err != nil {
		return recurrence.Definition{}, err
	}
	days := make([]time.Weekday, 0, len(weekdays))
	for _, day := range weekdays {
		days = append(days, time.Weekday(day))
	}
	def := recurrence.Definition{
		Weekdays:  days,
		Hour:      hour,
		Minute:    minute,
		Frequency: parsed,
	}
	if err := def.Validate(); err != nil {
		return recurrence.Definition{}, err
	}
	return def, nil
}

func mergeDefinitionError(validation *ValidationError, err error) {
	switch {
	case errors.Is(err, recurrence.ErrInvalidFrequency):
		validation.add("frequency", "frequency must be weekly, biweekly or monthly")
	case errors.Is(err, recurrence.ErrNoWeekdays):
		validation.add("weekdays", "at least one weekday is required")
	case errors.Is(err, recurrence.ErrInvalidWeekday):
		validation.add("weekdays", "weekdays must be unique values between 0 and 6")
	case errors.Is(err, recurrence.ErrInvalidTime):
		validation.add("time", "time must be a valid wall-clock value")
	default:
		validation.add("pattern", "invalid recurrence definition")
	}
}
