package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/staff-scheduler/internal/application"
)

// Handler exposes the scheduling and accounting services over HTTP.
type Handler struct {
	schedule *application.ScheduleService
	edit     *application.EditService
	slots    *application.SlotService
	rollup   *application.RollupService
	catalog  *application.CatalogService
	activity *application.ActivityService
	resp     responder
}

// NewHandler wires the HTTP surface.
func NewHandler(
	schedule *application.ScheduleService,
	edit *application.EditService,
	slots *application.SlotService,
	rollup *application.RollupService,
	catalog *application.CatalogService,
	activity *application.ActivityService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		schedule: schedule,
		edit:     edit,
		slots:    slots,
		rollup:   rollup,
		catalog:  catalog,
		activity: activity,
		resp:     responder{logger: logger},
	}
}

// Register mounts every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/patterns", h.createPattern)
	mux.HandleFunc("POST /api/v1/occurrences", h.createOccurrence)
	mux.HandleFunc("PATCH /api/v1/occurrences/{id}", h.updateOccurrence)
	mux.HandleFunc("PATCH /api/v1/occurrences/{id}/lifecycle", h.setLifecycle)

	mux.HandleFunc("POST /api/v1/slots/claim", h.claimSlot)
	mux.HandleFunc("POST /api/v1/slots/release", h.releaseSlot)

	mux.HandleFunc("POST /api/v1/rollups", h.triggerRollup)
	mux.HandleFunc("GET /api/v1/members/{id}/quota-progress", h.quotaProgress)
	mux.HandleFunc("GET /api/v1/members/{id}/snapshots", h.listSnapshots)

	mux.HandleFunc("POST /api/v1/session-types", h.createSessionType)
	mux.HandleFunc("GET /api/v1/session-types", h.listSessionTypes)
	mux.HandleFunc("GET /api/v1/session-types/{id}", h.getSessionType)
	mux.HandleFunc("POST /api/v1/quotas", h.createQuota)
	mux.HandleFunc("GET /api/v1/quotas", h.listQuotas)

	mux.HandleFunc("POST /api/v1/activity/clock-in", h.clockIn)
	mux.HandleFunc("POST /api/v1/activity/clock-out", h.clockOut)
	mux.HandleFunc("POST /api/v1/activity/adjustments", h.createAdjustment)
	mux.HandleFunc("POST /api/v1/activity/events", h.recordAncillary)

	mux.HandleFunc("PUT /api/v1/members/{id}", h.upsertMember)
	mux.HandleFunc("GET /api/v1/members", h.listMembers)
}

func (h *Handler) identity(r *http.Request) (application.Principal, string, bool) {
	principal, ok := principalFromContext(r.Context())
	return principal, workspaceFromContext(r.Context()), ok
}

func (h *Handler) createPattern(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req createPatternRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	result, err := h.schedule.CreatePattern(r.Context(), application.CreatePatternParams{
		Principal:        principal,
		WorkspaceID:      workspaceID,
		SessionTypeID:    req.SessionTypeID,
		Name:             req.Name,
		Category:         req.Category,
		Weekdays:         req.Weekdays,
		Hour:             req.Hour,
		Minute:           req.Minute,
		Frequency:        req.Frequency,
		UTCOffsetMinutes: req.UTCOffsetMinutes,
		DurationMinutes:  req.DurationMinutes,
		Description:      req.Description,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusCreated, createPatternResponse{
		Pattern:     toPatternResponse(result.Pattern),
		Occurrences: toOccurrenceResponses(result.Occurrences),
	})
}

func (h *Handler) createOccurrence(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req createOccurrenceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	occurrence, err := h.schedule.CreateUnscheduled(r.Context(), application.CreateUnscheduledParams{
		Principal:        principal,
		WorkspaceID:      workspaceID,
		SessionTypeID:    req.SessionTypeID,
		Name:             req.Name,
		Category:         req.Category,
		Date:             req.Date,
		Hour:             req.Hour,
		Minute:           req.Minute,
		UTCOffsetMinutes: req.UTCOffsetMinutes,
		DurationMinutes:  req.DurationMinutes,
		Description:      req.Description,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusCreated, toOccurrenceResponse(occurrence))
}

func (h *Handler) updateOccurrence(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req updateOccurrenceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	changes := application.OccurrenceChanges{
		Date:            req.Changes.Date,
		DurationMinutes: req.Changes.DurationMinutes,
		Name:            req.Changes.Name,
		Description:     req.Changes.Description,
	}
	if req.Changes.Time != nil {
		timeOfDay, err := parseTimeOfDay(*req.Changes.Time)
		if err != nil {
			h.resp.writeError(w, http.StatusBadRequest, "bad_request", "time must be formatted as HH:MM")
			return
		}
		changes.Time = &timeOfDay
	}

	result, err := h.edit.UpdateOccurrences(r.Context(), application.UpdateOccurrencesParams{
		Principal:    principal,
		WorkspaceID:  workspaceID,
		OccurrenceID: r.PathValue("id"),
		Scope:        req.Scope,
		Changes:      changes,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, updateOccurrencesResponse{
		Updated: toOccurrenceResponses(result.Updated),
	})
}

func (h *Handler) setLifecycle(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req lifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	occurrence, err := h.edit.SetLifecycle(r.Context(), application.LifecycleParams{
		Principal:    principal,
		WorkspaceID:  workspaceID,
		OccurrenceID: r.PathValue("id"),
		Started:      req.Started,
		Ended:        req.Ended,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, toOccurrenceResponse(occurrence))
}

func (h *Handler) claimSlot(w http.ResponseWriter, r *http.Request) {
	h.slotAction(w, r, h.slots.Claim)
}

func (h *Handler) releaseSlot(w http.ResponseWriter, r *http.Request) {
	h.slotAction(w, r, h.slots.Release)
}

func (h *Handler) slotAction(w http.ResponseWriter, r *http.Request,
	action func(ctx context.Context, params application.ClaimSlotParams) (application.ClaimSlotResult, error)) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	result, err := action(r.Context(), application.ClaimSlotParams{
		Principal:   principal,
		WorkspaceID: workspaceID,
		PatternID:   req.PatternID,
		Date:        req.Date,
		RoleID:      req.RoleID,
		SlotIndex:   req.SlotIndex,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, toSlotResponse(result))
}

func (h *Handler) triggerRollup(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}

	result, err := h.rollup.Rollup(r.Context(), application.RollupParams{
		Principal:   principal,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, rollupResponse{
		CheckpointID:     result.Checkpoint.ID,
		PeriodStart:      result.Checkpoint.PeriodStart,
		PeriodEnd:        result.Checkpoint.PeriodEnd,
		SnapshotsWritten: result.SnapshotsWritten,
		MembersScanned:   result.MembersScanned,
	})
}

func (h *Handler) quotaProgress(w http.ResponseWriter, r *http.Request) {
	_, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}

	views, err := h.rollup.QuotaProgress(r.Context(), workspaceID, r.PathValue("id"))
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	out := make([]quotaProgressResponse, 0, len(views))
	for _, view := range views {
		out = append(out, quotaProgressResponse{
			QuotaID:      view.QuotaID,
			Name:         view.Name,
			Kind:         view.Kind,
			CurrentValue: view.CurrentValue,
			Threshold:    view.Threshold,
			Percentage:   view.Percentage,
		})
	}
	h.resp.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	_, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}

	snapshots, err := h.rollup.Snapshots(r.Context(), workspaceID, r.PathValue("id"))
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) createSessionType(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req createSessionTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	slots := make([]application.SlotDefinitionInput, 0, len(req.Slots))
	for _, slot := range req.Slots {
		slots = append(slots, application.SlotDefinitionInput{
			RoleID: slot.RoleID,
			Label:  slot.Label,
			Count:  slot.Count,
		})
	}
	sessionType, err := h.catalog.CreateSessionType(r.Context(), application.CreateSessionTypeParams{
		Principal:        principal,
		WorkspaceID:      workspaceID,
		Name:             req.Name,
		Category:         req.Category,
		AllowUnscheduled: req.AllowUnscheduled,
		HostingRoleIDs:   req.HostingRoleIDs,
		Slots:            slots,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusCreated, sessionType)
}

func (h *Handler) getSessionType(w http.ResponseWriter, r *http.Request) {
	_, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	sessionType, err := h.catalog.GetSessionType(r.Context(), workspaceID, r.PathValue("id"))
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, sessionType)
}

func (h *Handler) listSessionTypes(w http.ResponseWriter, r *http.Request) {
	_, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	sessionTypes, err := h.catalog.ListSessionTypes(r.Context(), workspaceID)
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, sessionTypes)
}

func (h *Handler) createQuota(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req createQuotaRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	quota, err := h.catalog.CreateQuota(r.Context(), application.CreateQuotaParams{
		Principal:       principal,
		WorkspaceID:     workspaceID,
		Name:            req.Name,
		Kind:            req.Kind,
		Threshold:       req.Threshold,
		SessionCategory: req.SessionCategory,
		RoleIDs:         req.RoleIDs,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusCreated, quota)
}

func (h *Handler) listQuotas(w http.ResponseWriter, r *http.Request) {
	_, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	quotas, err := h.catalog.ListQuotas(r.Context(), workspaceID)
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, quotas)
}

func (h *Handler) clockIn(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req clockInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	interval, err := h.activity.ClockIn(r.Context(), application.ClockInParams{
		Principal:   principal,
		WorkspaceID: workspaceID,
		UniverseID:  req.UniverseID,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusCreated, interval)
}

func (h *Handler) clockOut(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req clockOutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	interval, err := h.activity.ClockOut(r.Context(), application.ClockOutParams{
		Principal:    principal,
		WorkspaceID:  workspaceID,
		IdleSeconds:  req.IdleSeconds,
		MessageCount: req.MessageCount,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, interval)
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req adjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	adjustment, err := h.activity.AddAdjustment(r.Context(), application.AdjustmentParams{
		Principal:   principal,
		WorkspaceID: workspaceID,
		MemberID:    req.MemberID,
		Minutes:     req.Minutes,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusCreated, adjustment)
}

func (h *Handler) recordAncillary(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req ancillaryEventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	event, err := h.activity.RecordAncillary(r.Context(), application.AncillaryEventParams{
		Principal:   principal,
		WorkspaceID: workspaceID,
		Kind:        req.Kind,
		OccurredAt:  req.OccurredAt,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusCreated, event)
}

func (h *Handler) upsertMember(w http.ResponseWriter, r *http.Request) {
	principal, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	var req upsertMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		h.resp.writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	member, err := h.catalog.UpsertMember(r.Context(), application.UpsertMemberParams{
		Principal:   principal,
		WorkspaceID: workspaceID,
		MemberID:    r.PathValue("id"),
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, member)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	_, workspaceID, ok := h.identity(r)
	if !ok {
		h.resp.writeError(w, http.StatusUnauthorized, "unauthenticated", "no principal resolved")
		return
	}
	members, err := h.catalog.ListMembers(r.Context(), workspaceID)
	if err != nil {
		h.resp.handleServiceError(w, err)
		return
	}
	h.resp.writeJSON(w, http.StatusOK, members)
}
