package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/accounting"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/persistence"
)

// RollupService aggregates raw activity into immutable snapshots and resets
// the live accumulators. Quota progress reads evaluate the same metrics live
// against the current epoch.
type RollupService struct {
	sessionTypes persistence.SessionTypeRepository
	occurrences  persistence.OccurrenceRepository
	slots        persistence.SlotRepository
	activity     persistence.ActivityRepository
	quotas       persistence.QuotaRepository
	history      persistence.HistoryRepository
	members      persistence.MemberRepository
	cache        *progressCache
	env          Env
}

// NewRollupService wires the activity rollup engine. Progress reads are
// cached for cacheTTL; non-positive falls back to one minute.
func NewRollupService(
	sessionTypes persistence.SessionTypeRepository,
	occurrences persistence.OccurrenceRepository,
	slots persistence.SlotRepository,
	activity persistence.ActivityRepository,
	quotas persistence.QuotaRepository,
	history persistence.HistoryRepository,
	members persistence.MemberRepository,
	cacheTTL time.Duration,
	env Env,
) *RollupService {
	return &RollupService{
		sessionTypes: sessionTypes,
		occurrences:  occurrences,
		slots:        slots,
		activity:     activity,
		quotas:       quotas,
		history:      history,
		members:      members,
		cache:        newProgressCache(cacheTTL, env.Now),
		env:          env,
	}
}

// epochSources holds every raw row feeding one epoch's aggregation.
type epochSources struct {
	start       time.Time
	end         time.Time
	intervals   []persistence.ActivityInterval
	adjustments []persistence.ActivityAdjustment
	events      []persistence.AncillaryEvent
	sessions    []accounting.Session
	assignments []accounting.Assignment
}

// Rollup closes the current accounting epoch: it pins the epoch end once,
// aggregates every raw source into per-member snapshots, and commits
// snapshots, checkpoint and purges in a single transaction. Members with all
// zero metrics produce no snapshot row.
func (s *RollupService) Rollup(ctx context.Context, params RollupParams) (RollupResult, error) {
	logger := serviceLogger(ctx, s.env.Logger, "rollup", "rollup")

	if err := s.env.requireCapability(ctx, params.WorkspaceID, params.Principal.MemberID, access.CapabilityManageActivity); err != nil {
		return RollupResult{}, err
	}

	started := time.Now()
	epochEnd := s.env.clock().UTC()

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	sources, err := s.loadEpoch(storeCtx, params.WorkspaceID, epochEnd)
	if err != nil {
		return RollupResult{}, err
	}

	universe, err := s.memberUniverse(storeCtx, params.WorkspaceID, sources)
	if err != nil {
		return RollupResult{}, err
	}
	quotas, err := s.quotas.ListQuotas(storeCtx, params.WorkspaceID)
	if err != nil {
		return RollupResult{}, mapStorageError(err)
	}

	snapshots := make([]persistence.ActivitySnapshot, 0, len(universe))
	for _, memberID := range universe {
		totals := memberTotals(memberID, sources)
		if totals.IsZero() {
			continue
		}

		progress, err := s.quotaProgressFor(storeCtx, params.WorkspaceID, memberID, quotas, totals)
		if err != nil {
			return RollupResult{}, err
		}

		snapshots = append(snapshots, persistence.ActivitySnapshot{
			ID:               s.env.id(),
			WorkspaceID:      params.WorkspaceID,
			MemberID:         memberID,
			PeriodStart:      sources.start,
			PeriodEnd:        sources.end,
			Minutes:          totals.Minutes,
			IdleMinutes:      totals.IdleMinutes,
			Messages:         totals.Messages,
			SessionsHosted:   totals.SessionsHosted,
			SessionsAttended: totals.SessionsAttended,
			SessionsLogged:   totals.SessionsLogged,
			AncillaryVisits:  totals.AncillaryVisits,
			AncillaryPosts:   totals.AncillaryPosts,
			QuotaProgress:    progress,
			CreatedAt:        epochEnd,
		})
	}

	checkpoint := persistence.ResetCheckpoint{
		ID:          s.env.id(),
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		PeriodStart: sources.start,
		PeriodEnd:   sources.end,
		CreatedAt:   epochEnd,
	}
	commit := persistence.RollupCommit{
		WorkspaceID:   params.WorkspaceID,
		Checkpoint:    checkpoint,
		Snapshots:     snapshots,
		ElapsedBefore: epochEnd,
		EpochStart:    sources.start,
		EpochEnd:      sources.end,
	}
	if err := s.history.CommitRollup(storeCtx, commit); err != nil {
		mapped := mapStorageError(err)
		logger.ErrorContext(ctx, "rollup commit failed", "error", err, "error_kind", ErrorKind(mapped))
		return RollupResult{}, mapped
	}

	if s.env.Metrics != nil {
		s.env.Metrics.RollupDuration.Observe(time.Since(started).Seconds())
		s.env.Metrics.SnapshotsWritten.Add(float64(len(snapshots)))
	}
	s.cache.invalidateWorkspace(params.WorkspaceID)
	s.env.record(ctx, audit.Entry{
		WorkspaceID: params.WorkspaceID,
		ActorID:     params.Principal.MemberID,
		Action:      "activity.rollup",
		Subject:     checkpoint.ID,
		Metadata: map[string]any{
			"period_start": sources.start.Format(time.RFC3339),
			"period_end":   sources.end.Format(time.RFC3339),
			"snapshots":    len(snapshots),
			"members":      len(universe),
		},
	})
	logger.InfoContext(ctx, "rollup committed",
		"checkpoint_id", checkpoint.ID,
		"snapshots", len(snapshots),
		"members", len(universe),
	)

	return RollupResult{
		Checkpoint:       checkpoint,
		SnapshotsWritten: len(snapshots),
		MembersScanned:   len(universe),
	}, nil
}

// QuotaProgress evaluates the member's quotas against the current epoch's
// live accumulators. Results are cached briefly per (workspace, member).
func (s *RollupService) QuotaProgress(ctx context.Context, workspaceID, memberID string) ([]QuotaProgressView, error) {
	if views, ok := s.cache.get(workspaceID, memberID); ok {
		return views, nil
	}

	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	sources, err := s.loadEpoch(storeCtx, workspaceID, s.env.clock().UTC())
	if err != nil {
		return nil, err
	}
	quotas, err := s.quotas.ListQuotas(storeCtx, workspaceID)
	if err != nil {
		return nil, mapStorageError(err)
	}

	totals := memberTotals(memberID, sources)
	roles, err := s.memberRoles(storeCtx, workspaceID, memberID)
	if err != nil {
		return nil, err
	}

	views := make([]QuotaProgressView, 0, len(quotas))
	for _, quota := range quotas {
		if !rolesIntersect(roles, quota.RoleIDs) {
			continue
		}
		value := accounting.QuotaValue(quota.Kind, quota.SessionCategory, totals)
		views = append(views, QuotaProgressView{
			QuotaID:      quota.ID,
			Name:         quota.Name,
			Kind:         quota.Kind,
			CurrentValue: value,
			Threshold:    quota.Threshold,
			Percentage:   accounting.Progress(value, quota.Threshold),
		})
	}

	s.cache.put(workspaceID, memberID, views)
	return views, nil
}

// Snapshots lists the member's committed rollup history.
func (s *RollupService) Snapshots(ctx context.Context, workspaceID, memberID string) ([]persistence.ActivitySnapshot, error) {
	storeCtx, cancel := storageContext(ctx, s.env.StorageTimeout)
	defer cancel()

	snapshots, err := s.history.ListSnapshots(storeCtx, workspaceID, memberID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return snapshots, nil
}

// loadEpoch reads every raw source for the epoch ending at end. The epoch
// starts at the newest checkpoint's period end, or the beginning of time for
// a workspace never rolled up.
func (s *RollupService) loadEpoch(ctx context.Context, workspaceID string, end time.Time) (epochSources, error) {
	var start time.Time
	checkpoint, err := s.history.LatestCheckpoint(ctx, workspaceID)
	switch {
	case err == nil:
		start = checkpoint.PeriodEnd
	case errors.Is(err, persistence.ErrNotFound):
	default:
		return epochSources{}, mapStorageError(err)
	}

	sources := epochSources{start: start, end: end}

	if sources.intervals, err = s.activity.ListClosedIntervals(ctx, workspaceID, start, end); err != nil {
		return epochSources{}, mapStorageError(err)
	}
	if sources.adjustments, err = s.activity.ListAdjustments(ctx, workspaceID, start, end); err != nil {
		return epochSources{}, mapStorageError(err)
	}
	if sources.events, err = s.activity.ListAncillaryEvents(ctx, workspaceID, start, end); err != nil {
		return epochSources{}, mapStorageError(err)
	}

	occurrences, err := s.occurrences.ListOccurrencesBetween(ctx, workspaceID, start, end)
	if err != nil {
		return epochSources{}, mapStorageError(err)
	}
	ids := make([]string, 0, len(occurrences))
	for _, occurrence := range occurrences {
		host := ""
		if occurrence.HostID != nil {
			host = *occurrence.HostID
		}
		sources.sessions = append(sources.sessions, accounting.Session{
			ID:       occurrence.ID,
			Category: occurrence.Category,
			HostID:   host,
		})
		ids = append(ids, occurrence.ID)
	}

	labels, err := s.slotLabels(ctx, workspaceID)
	if err != nil {
		return epochSources{}, err
	}
	assignments, err := s.slots.ListAssignmentsForOccurrences(ctx, ids)
	if err != nil {
		return epochSources{}, mapStorageError(err)
	}
	for _, assignment := range assignments {
		sources.assignments = append(sources.assignments, accounting.Assignment{
			SessionID: assignment.OccurrenceID,
			MemberID:  assignment.MemberID,
			RoleID:    assignment.RoleID,
			Label:     labels[assignment.RoleID],
		})
	}

	return sources, nil
}

// slotLabels maps role ids to their configured slot labels across the
// workspace's session types.
func (s *RollupService) slotLabels(ctx context.Context, workspaceID string) (map[string]string, error) {
	sessionTypes, err := s.sessionTypes.ListSessionTypes(ctx, workspaceID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	labels := make(map[string]string)
	for _, sessionType := range sessionTypes {
		for _, slot := range sessionType.Slots {
			labels[slot.RoleID] = slot.Label
		}
	}
	return labels, nil
}

// memberUniverse is the directory union every member id observed in the raw
// sources, so activity from members missing a directory row is still
// accounted.
func (s *RollupService) memberUniverse(ctx context.Context, workspaceID string, sources epochSources) ([]string, error) {
	seen := make(map[string]struct{})
	var universe []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		universe = append(universe, id)
	}

	directory, err := s.members.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	for _, member := range directory {
		add(member.ID)
	}
	for _, interval := range sources.intervals {
		add(interval.MemberID)
	}
	for _, adjustment := range sources.adjustments {
		add(adjustment.MemberID)
	}
	for _, event := range sources.events {
		add(event.MemberID)
	}
	for _, assignment := range sources.assignments {
		add(assignment.MemberID)
	}
	for _, session := range sources.sessions {
		add(session.HostID)
	}
	return universe, nil
}

func (s *RollupService) quotaProgressFor(ctx context.Context, workspaceID, memberID string, quotas []persistence.Quota, totals accounting.Totals) (map[string]persistence.QuotaProgress, error) {
	if len(quotas) == 0 {
		return nil, nil
	}
	roles, err := s.memberRoles(ctx, workspaceID, memberID)
	if err != nil {
		return nil, err
	}

	var progress map[string]persistence.QuotaProgress
	for _, quota := range quotas {
		if !rolesIntersect(roles, quota.RoleIDs) {
			continue
		}
		value := accounting.QuotaValue(quota.Kind, quota.SessionCategory, totals)
		if progress == nil {
			progress = make(map[string]persistence.QuotaProgress)
		}
		progress[quota.ID] = persistence.QuotaProgress{
			CurrentValue: value,
			Threshold:    quota.Threshold,
			Percentage:   accounting.Progress(value, quota.Threshold),
		}
	}
	return progress, nil
}

func (s *RollupService) memberRoles(ctx context.Context, workspaceID, memberID string) ([]string, error) {
	if s.env.Checker == nil {
		return nil, nil
	}
	roles, err := s.env.Checker.RolesOf(ctx, workspaceID, memberID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return roles, nil
}

// memberTotals aggregates one member's share of the epoch sources.
func memberTotals(memberID string, sources epochSources) accounting.Totals {
	var intervals []accounting.Interval
	for _, interval := range sources.intervals {
		if interval.MemberID != memberID || interval.EndedAt == nil {
			continue
		}
		intervals = append(intervals, accounting.Interval{
			Start:       interval.StartedAt,
			End:         *interval.EndedAt,
			IdleSeconds: interval.IdleSeconds,
			Messages:    interval.MessageCount,
		})
	}
	var deltas []int
	for _, adjustment := range sources.adjustments {
		if adjustment.MemberID == memberID {
			deltas = append(deltas, adjustment.Minutes)
		}
	}

	var totals accounting.Totals
	totals.Minutes, totals.IdleMinutes, totals.Messages = accounting.SumMinutes(intervals, deltas)

	classification := accounting.Classify(memberID, sources.sessions, sources.assignments)
	totals.SessionsHosted = len(classification.HostedIDs)
	totals.SessionsAttended = len(classification.AttendedIDs)
	totals.SessionsLogged = len(classification.LoggedIDs)
	totals.HostedByCategory = classification.HostedByCategory
	totals.AttendedByCategory = classification.AttendedByCategory
	totals.LoggedByCategory = classification.LoggedByCategory

	for _, event := range sources.events {
		if event.MemberID != memberID {
			continue
		}
		switch event.Kind {
		case "visit":
			totals.AncillaryVisits++
		case "post":
			totals.AncillaryPosts++
		}
	}
	return totals
}

func rolesIntersect(held, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, h := range held {
		for _, w := range wanted {
			if h == w {
				return true
			}
		}
	}
	return false
}
