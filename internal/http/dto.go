package http

import (
	"fmt"
	"time"

	"github.com/example/staff-scheduler/internal/application"
	"github.com/example/staff-scheduler/internal/persistence"
)

type createPatternRequest struct {
	SessionTypeID    string  `json:"session_type_id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	Weekdays         []int   `json:"weekdays"`
	Hour             int     `json:"hour"`
	Minute           int     `json:"minute"`
	Frequency        string  `json:"frequency"`
	UTCOffsetMinutes int     `json:"utc_offset_minutes"`
	DurationMinutes  *int    `json:"duration_minutes"`
	Description      *string `json:"description"`
}

type createOccurrenceRequest struct {
	SessionTypeID    string  `json:"session_type_id"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	Date             string  `json:"date"`
	Hour             int     `json:"hour"`
	Minute           int     `json:"minute"`
	UTCOffsetMinutes int     `json:"utc_offset_minutes"`
	DurationMinutes  *int    `json:"duration_minutes"`
	Description      *string `json:"description"`
}

type occurrenceChangesRequest struct {
	Date            *string `json:"date"`
	Time            *string `json:"time"`
	DurationMinutes *int    `json:"duration_minutes"`
	Name            *string `json:"name"`
	Description     *string `json:"description"`
}

type updateOccurrenceRequest struct {
	Scope   string                   `json:"scope"`
	Changes occurrenceChangesRequest `json:"changes"`
}

type lifecycleRequest struct {
	Started *bool `json:"started"`
	Ended   *bool `json:"ended"`
}

type slotRequest struct {
	PatternID string `json:"pattern_id"`
	Date      string `json:"date"`
	RoleID    string `json:"role_id"`
	SlotIndex int    `json:"slot_index"`
}

type slotDefinitionRequest struct {
	RoleID string `json:"role_id"`
	Label  string `json:"label"`
	Count  int    `json:"count"`
}

type createSessionTypeRequest struct {
	Name             string                  `json:"name"`
	Category         string                  `json:"category"`
	AllowUnscheduled bool                    `json:"allow_unscheduled"`
	HostingRoleIDs   []string                `json:"hosting_role_ids"`
	Slots            []slotDefinitionRequest `json:"slots"`
}

type createQuotaRequest struct {
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	Threshold       int      `json:"threshold"`
	SessionCategory *string  `json:"session_category"`
	RoleIDs         []string `json:"role_ids"`
}

type clockInRequest struct {
	UniverseID *string `json:"universe_id"`
}

type clockOutRequest struct {
	IdleSeconds  int `json:"idle_seconds"`
	MessageCount int `json:"message_count"`
}

type adjustmentRequest struct {
	MemberID string `json:"member_id"`
	Minutes  int    `json:"minutes"`
}

type ancillaryEventRequest struct {
	Kind       string     `json:"kind"`
	OccurredAt *time.Time `json:"occurred_at"`
}

type upsertMemberRequest struct {
	DisplayName string `json:"display_name"`
}

type occurrenceResponse struct {
	ID              string    `json:"id"`
	SessionTypeID   string    `json:"session_type_id"`
	PatternID       *string   `json:"pattern_id,omitempty"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Name            *string   `json:"name,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Category        string    `json:"category"`
	HostID          *string   `json:"host_id,omitempty"`
	Started         bool      `json:"started"`
	Ended           bool      `json:"ended"`
}

type patternResponse struct {
	ID            string `json:"id"`
	SessionTypeID string `json:"session_type_id"`
	Weekdays      []int  `json:"weekdays"`
	Hour          int    `json:"hour"`
	Minute        int    `json:"minute"`
	Frequency     string `json:"frequency"`
}

type createPatternResponse struct {
	Pattern     patternResponse      `json:"pattern"`
	Occurrences []occurrenceResponse `json:"occurrences"`
}

type updateOccurrencesResponse struct {
	Updated []occurrenceResponse `json:"updated"`
}

type assignmentResponse struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name,omitempty"`
	RoleID      string `json:"role_id"`
	SlotIndex   int    `json:"slot_index"`
}

type slotResponse struct {
	Occurrence  occurrenceResponse   `json:"occurrence"`
	Assignments []assignmentResponse `json:"assignments"`
}

type rollupResponse struct {
	CheckpointID     string    `json:"checkpoint_id"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	SnapshotsWritten int       `json:"snapshots_written"`
	MembersScanned   int       `json:"members_scanned"`
}

type quotaProgressResponse struct {
	QuotaID      string  `json:"quota_id"`
	Name         string  `json:"name"`
	Kind         string  `json:"kind"`
	CurrentValue int     `json:"current_value"`
	Threshold    int     `json:"threshold"`
	Percentage   float64 `json:"percentage"`
}

func toOccurrenceResponse(occurrence persistence.Occurrence) occurrenceResponse {
	return occurrenceResponse{
		ID:              occurrence.ID,
		SessionTypeID:   occurrence.SessionTypeID,
		PatternID:       occurrence.PatternID,
		StartsAt:        occurrence.StartsAt,
		DurationMinutes: occurrence.DurationMinutes,
		Name:            occurrence.Name,
		Description:     occurrence.Description,
		Category:        occurrence.Category,
		HostID:          occurrence.HostID,
		Started:         occurrence.Started,
		Ended:           occurrence.Ended,
	}
}

func toOccurrenceResponses(occurrences []persistence.Occurrence) []occurrenceResponse {
	out := make([]occurrenceResponse, 0, len(occurrences))
	for _, occurrence := range occurrences {
		out = append(out, toOccurrenceResponse(occurrence))
	}
	return out
}

func toPatternResponse(pattern persistence.RecurrencePattern) patternResponse {
	weekdays := make([]int, 0, len(pattern.Weekdays))
	for _, day := range pattern.Weekdays {
		weekdays = append(weekdays, int(day))
	}
	return patternResponse{
		ID:            pattern.ID,
		SessionTypeID: pattern.SessionTypeID,
		Weekdays:      weekdays,
		Hour:          pattern.Hour,
		Minute:        pattern.Minute,
		Frequency:     pattern.Frequency,
	}
}

func toSlotResponse(result application.ClaimSlotResult) slotResponse {
	assignments := make([]assignmentResponse, 0, len(result.Assignments))
	for _, assignment := range result.Assignments {
		assignments = append(assignments, assignmentResponse{
			MemberID:    assignment.MemberID,
			DisplayName: assignment.DisplayName,
			RoleID:      assignment.RoleID,
			SlotIndex:   assignment.SlotIndex,
		})
	}
	return slotResponse{
		Occurrence:  toOccurrenceResponse(result.Occurrence),
		Assignments: assignments,
	}
}

// parseTimeOfDay parses "HH:MM".
func parseTimeOfDay(value string) (application.TimeOfDay, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return application.TimeOfDay{}, fmt.Errorf("invalid time %q", value)
	}
	return application.TimeOfDay{Hour: hour, Minute: minute}, nil
}
