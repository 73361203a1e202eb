package testfixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/staff-scheduler/internal/persistence"
)

// Store is an in-memory implementation of every persistence repository,
// used by service tests in place of the SQLite backend. All methods are
// safe for concurrent use.
type Store struct {
	mu sync.Mutex

	sessionTypes map[string]persistence.SessionType
	patterns     map[string]persistence.RecurrencePattern
	occurrences  map[string]persistence.Occurrence
	assignments  map[string]persistence.SlotAssignment
	intervals    map[string]persistence.ActivityInterval
	adjustments  map[string]persistence.ActivityAdjustment
	events       map[string]persistence.AncillaryEvent
	quotas       map[string]persistence.Quota
	snapshots    map[string]persistence.ActivitySnapshot
	checkpoints  map[string]persistence.ResetCheckpoint
	members      map[string]persistence.Member
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessionTypes: make(map[string]persistence.SessionType),
		patterns:     make(map[string]persistence.RecurrencePattern),
		occurrences:  make(map[string]persistence.Occurrence),
		assignments:  make(map[string]persistence.SlotAssignment),
		intervals:    make(map[string]persistence.ActivityInterval),
		adjustments:  make(map[string]persistence.ActivityAdjustment),
		events:       make(map[string]persistence.AncillaryEvent),
		quotas:       make(map[string]persistence.Quota),
		snapshots:    make(map[string]persistence.ActivitySnapshot),
		checkpoints:  make(map[string]persistence.ResetCheckpoint),
		members:      make(map[string]persistence.Member),
	}
}

// CreateSessionType implements persistence.SessionTypeRepository.
func (s *Store) CreateSessionType(_ context.Context, sessionType persistence.SessionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessionTypes[sessionType.ID]; ok {
		return fmt.Errorf("session type %s: %w", sessionType.ID, persistence.ErrDuplicate)
	}
	s.sessionTypes[sessionType.ID] = sessionType
	return nil
}

// GetSessionType implements persistence.SessionTypeRepository.
func (s *Store) GetSessionType(_ context.Context, id string) (persistence.SessionType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionType, ok := s.sessionTypes[id]
	if !ok {
		return persistence.SessionType{}, fmt.Errorf("session type %s: %w", id, persistence.ErrNotFound)
	}
	return sessionType, nil
}

// ListSessionTypes implements persistence.SessionTypeRepository.
func (s *Store) ListSessionTypes(_ context.Context, workspaceID string) ([]persistence.SessionType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.SessionType
	for _, sessionType := range s.sessionTypes {
		if sessionType.WorkspaceID == workspaceID {
			out = append(out, sessionType)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreatePatternWithOccurrences implements persistence.PatternRepository.
func (s *Store) CreatePatternWithOccurrences(_ context.Context, pattern persistence.RecurrencePattern, occurrences []persistence.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[pattern.ID]; ok {
		return fmt.Errorf("pattern %s: %w", pattern.ID, persistence.ErrDuplicate)
	}
	for _, occurrence := range occurrences {
		if s.occurrenceByStartLocked(occurrence.SessionTypeID, occurrence.StartsAt) != nil {
			return fmt.Errorf("occurrence at %s: %w", occurrence.StartsAt, persistence.ErrDuplicate)
		}
	}
	s.patterns[pattern.ID] = pattern
	for _, occurrence := range occurrences {
		s.occurrences[occurrence.ID] = occurrence
	}
	return nil
}

// GetPattern implements persistence.PatternRepository.
func (s *Store) GetPattern(_ context.Context, id string) (persistence.RecurrencePattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pattern, ok := s.patterns[id]
	if !ok {
		return persistence.RecurrencePattern{}, fmt.Errorf("pattern %s: %w", id, persistence.ErrNotFound)
	}
	return pattern, nil
}

// CreateOccurrence implements persistence.OccurrenceRepository.
func (s *Store) CreateOccurrence(_ context.Context, occurrence persistence.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occurrenceByStartLocked(occurrence.SessionTypeID, occurrence.StartsAt) != nil {
		return fmt.Errorf("occurrence at %s: %w", occurrence.StartsAt, persistence.ErrDuplicate)
	}
	s.occurrences[occurrence.ID] = occurrence
	return nil
}

// GetOccurrence implements persistence.OccurrenceRepository.
func (s *Store) GetOccurrence(_ context.Context, id string) (persistence.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	occurrence, ok := s.occurrences[id]
	if !ok {
		return persistence.Occurrence{}, fmt.Errorf("occurrence %s: %w", id, persistence.ErrNotFound)
	}
	return occurrence, nil
}

// GetOccurrenceByStart implements persistence.OccurrenceRepository.
func (s *Store) GetOccurrenceByStart(_ context.Context, sessionTypeID string, startsAt time.Time) (persistence.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if found := s.occurrenceByStartLocked(sessionTypeID, startsAt); found != nil {
		return *found, nil
	}
	return persistence.Occurrence{}, fmt.Errorf("occurrence at %s: %w", startsAt, persistence.ErrNotFound)
}

// ListOccurrencesForPattern implements persistence.OccurrenceRepository.
func (s *Store) ListOccurrencesForPattern(_ context.Context, patternID string) ([]persistence.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Occurrence
	for _, occurrence := range s.occurrences {
		if occurrence.PatternID != nil && *occurrence.PatternID == patternID {
			out = append(out, occurrence)
		}
	}
	sortOccurrences(out)
	return out, nil
}

// ListOccurrencesBetween implements persistence.OccurrenceRepository.
func (s *Store) ListOccurrencesBetween(_ context.Context, workspaceID string, from, to time.Time) ([]persistence.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Occurrence
	for _, occurrence := range s.occurrences {
		sessionType, ok := s.sessionTypes[occurrence.SessionTypeID]
		if !ok || sessionType.WorkspaceID != workspaceID {
			continue
		}
		if occurrence.StartsAt.Before(from) || !occurrence.StartsAt.Before(to) {
			continue
		}
		out = append(out, occurrence)
	}
	sortOccurrences(out)
	return out, nil
}

// UpdateOccurrence implements persistence.OccurrenceRepository.
func (s *Store) UpdateOccurrence(_ context.Context, occurrence persistence.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOccurrenceLocked(occurrence)
}

// UpdateOccurrences implements persistence.OccurrenceRepository. All rows are
// checked before any is written so a failure leaves the store untouched.
func (s *Store) UpdateOccurrences(_ context.Context, occurrences []persistence.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, occurrence := range occurrences {
		if _, ok := s.occurrences[occurrence.ID]; !ok {
			return fmt.Errorf("occurrence %s: %w", occurrence.ID, persistence.ErrNotFound)
		}
	}
	for _, occurrence := range occurrences {
		if err := s.updateOccurrenceLocked(occurrence); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) updateOccurrenceLocked(occurrence persistence.Occurrence) error {
	if _, ok := s.occurrences[occurrence.ID]; !ok {
		return fmt.Errorf("occurrence %s: %w", occurrence.ID, persistence.ErrNotFound)
	}
	if found := s.occurrenceByStartLocked(occurrence.SessionTypeID, occurrence.StartsAt); found != nil && found.ID != occurrence.ID {
		return fmt.Errorf("occurrence at %s: %w", occurrence.StartsAt, persistence.ErrDuplicate)
	}
	s.occurrences[occurrence.ID] = occurrence
	return nil
}

// ClaimSlot implements persistence.SlotRepository.
func (s *Store) ClaimSlot(_ context.Context, occurrence persistence.Occurrence, assignment persistence.SlotAssignment, setHost bool) (persistence.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.occurrenceByStartLocked(occurrence.SessionTypeID, occurrence.StartsAt)
	if row == nil {
		s.occurrences[occurrence.ID] = occurrence
		stored := s.occurrences[occurrence.ID]
		row = &stored
	}
	assignment.OccurrenceID = row.ID

	for _, existing := range s.assignments {
		if existing.OccurrenceID != row.ID {
			continue
		}
		if existing.RoleID == assignment.RoleID && existing.SlotIndex == assignment.SlotIndex {
			if existing.MemberID != assignment.MemberID {
				return persistence.Occurrence{}, fmt.Errorf("slot held by %s: %w", existing.MemberID, persistence.ErrDuplicate)
			}
			return *row, nil
		}
	}

	// One assignment per (occurrence, member): moving to another position
	// replaces the previous claim.
	for id, existing := range s.assignments {
		if existing.OccurrenceID == row.ID && existing.MemberID == assignment.MemberID {
			delete(s.assignments, id)
		}
	}
	s.assignments[assignment.ID] = assignment

	if setHost {
		host := assignment.MemberID
		updated := *row
		updated.HostID = &host
		s.occurrences[updated.ID] = updated
		return updated, nil
	}
	return *row, nil
}

// ReleaseSlot implements persistence.SlotRepository.
func (s *Store) ReleaseSlot(_ context.Context, occurrenceID, roleID string, slotIndex int) (persistence.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	occurrence, ok := s.occurrences[occurrenceID]
	if !ok {
		return persistence.Occurrence{}, fmt.Errorf("occurrence %s: %w", occurrenceID, persistence.ErrNotFound)
	}
	for id, existing := range s.assignments {
		if existing.OccurrenceID != occurrenceID || existing.RoleID != roleID || existing.SlotIndex != slotIndex {
			continue
		}
		delete(s.assignments, id)
		if occurrence.HostID != nil && *occurrence.HostID == existing.MemberID {
			occurrence.HostID = nil
			s.occurrences[occurrenceID] = occurrence
		}
		return occurrence, nil
	}
	return persistence.Occurrence{}, fmt.Errorf("assignment %s/%d: %w", roleID, slotIndex, persistence.ErrNotFound)
}

// ListAssignmentsForOccurrences implements persistence.SlotRepository.
func (s *Store) ListAssignmentsForOccurrences(_ context.Context, occurrenceIDs []string) ([]persistence.SlotAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]struct{}, len(occurrenceIDs))
	for _, id := range occurrenceIDs {
		wanted[id] = struct{}{}
	}
	var out []persistence.SlotAssignment
	for _, assignment := range s.assignments {
		if _, ok := wanted[assignment.OccurrenceID]; ok {
			out = append(out, assignment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OpenInterval implements persistence.ActivityRepository.
func (s *Store) OpenInterval(_ context.Context, interval persistence.ActivityInterval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.intervals {
		if existing.WorkspaceID == interval.WorkspaceID && existing.MemberID == interval.MemberID && existing.EndedAt == nil {
			return fmt.Errorf("open interval for %s: %w", interval.MemberID, persistence.ErrDuplicate)
		}
	}
	s.intervals[interval.ID] = interval
	return nil
}

// CloseInterval implements persistence.ActivityRepository.
func (s *Store) CloseInterval(_ context.Context, workspaceID, memberID string, endedAt time.Time, idleSeconds, messageCount int) (persistence.ActivityInterval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.intervals {
		if existing.WorkspaceID != workspaceID || existing.MemberID != memberID || existing.EndedAt != nil {
			continue
		}
		existing.EndedAt = &endedAt
		existing.IdleSeconds = idleSeconds
		existing.MessageCount = messageCount
		s.intervals[id] = existing
		return existing, nil
	}
	return persistence.ActivityInterval{}, fmt.Errorf("open interval for %s: %w", memberID, persistence.ErrNotFound)
}

// CreateAdjustment implements persistence.ActivityRepository.
func (s *Store) CreateAdjustment(_ context.Context, adjustment persistence.ActivityAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments[adjustment.ID] = adjustment
	return nil
}

// RecordAncillaryEvent implements persistence.ActivityRepository.
func (s *Store) RecordAncillaryEvent(_ context.Context, event persistence.AncillaryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

// ListClosedIntervals implements persistence.ActivityRepository.
func (s *Store) ListClosedIntervals(_ context.Context, workspaceID string, from, to time.Time) ([]persistence.ActivityInterval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.ActivityInterval
	for _, interval := range s.intervals {
		if interval.WorkspaceID != workspaceID || interval.EndedAt == nil {
			continue
		}
		if interval.EndedAt.Before(from) || !interval.EndedAt.Before(to) {
			continue
		}
		out = append(out, interval)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// ListAdjustments implements persistence.ActivityRepository.
func (s *Store) ListAdjustments(_ context.Context, workspaceID string, from, to time.Time) ([]persistence.ActivityAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.ActivityAdjustment
	for _, adjustment := range s.adjustments {
		if adjustment.WorkspaceID != workspaceID {
			continue
		}
		if adjustment.CreatedAt.Before(from) || !adjustment.CreatedAt.Before(to) {
			continue
		}
		out = append(out, adjustment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListAncillaryEvents implements persistence.ActivityRepository.
func (s *Store) ListAncillaryEvents(_ context.Context, workspaceID string, from, to time.Time) ([]persistence.AncillaryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.AncillaryEvent
	for _, event := range s.events {
		if event.WorkspaceID != workspaceID {
			continue
		}
		if event.OccurredAt.Before(from) || !event.OccurredAt.Before(to) {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// CreateQuota implements persistence.QuotaRepository.
func (s *Store) CreateQuota(_ context.Context, quota persistence.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quotas[quota.ID]; ok {
		return fmt.Errorf("quota %s: %w", quota.ID, persistence.ErrDuplicate)
	}
	s.quotas[quota.ID] = quota
	return nil
}

// ListQuotas implements persistence.QuotaRepository.
func (s *Store) ListQuotas(_ context.Context, workspaceID string) ([]persistence.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Quota
	for _, quota := range s.quotas {
		if quota.WorkspaceID == workspaceID {
			out = append(out, quota)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LatestCheckpoint implements persistence.HistoryRepository.
func (s *Store) LatestCheckpoint(_ context.Context, workspaceID string) (persistence.ResetCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *persistence.ResetCheckpoint
	for _, checkpoint := range s.checkpoints {
		if checkpoint.WorkspaceID != workspaceID {
			continue
		}
		candidate := checkpoint
		if latest == nil || candidate.PeriodEnd.After(latest.PeriodEnd) {
			latest = &candidate
		}
	}
	if latest == nil {
		return persistence.ResetCheckpoint{}, fmt.Errorf("checkpoint for %s: %w", workspaceID, persistence.ErrNotFound)
	}
	return *latest, nil
}

// CommitRollup implements persistence.HistoryRepository: snapshots and
// checkpoint are written, elapsed occurrences with their assignments and the
// epoch's raw activity rows are purged, all under one lock.
func (s *Store) CommitRollup(_ context.Context, commit persistence.RollupCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snapshot := range commit.Snapshots {
		s.snapshots[snapshot.ID] = snapshot
	}
	s.checkpoints[commit.Checkpoint.ID] = commit.Checkpoint

	for id, occurrence := range s.occurrences {
		sessionType, ok := s.sessionTypes[occurrence.SessionTypeID]
		if !ok || sessionType.WorkspaceID != commit.WorkspaceID {
			continue
		}
		if !occurrence.StartsAt.Before(commit.ElapsedBefore) {
			continue
		}
		delete(s.occurrences, id)
		for assignmentID, assignment := range s.assignments {
			if assignment.OccurrenceID == id {
				delete(s.assignments, assignmentID)
			}
		}
	}

	for id, interval := range s.intervals {
		if interval.WorkspaceID != commit.WorkspaceID || interval.EndedAt == nil {
			continue
		}
		if !interval.EndedAt.Before(commit.EpochStart) && interval.EndedAt.Before(commit.EpochEnd) {
			delete(s.intervals, id)
		}
	}
	for id, adjustment := range s.adjustments {
		if adjustment.WorkspaceID != commit.WorkspaceID {
			continue
		}
		if !adjustment.CreatedAt.Before(commit.EpochStart) && adjustment.CreatedAt.Before(commit.EpochEnd) {
			delete(s.adjustments, id)
		}
	}
	for id, event := range s.events {
		if event.WorkspaceID != commit.WorkspaceID {
			continue
		}
		if !event.OccurredAt.Before(commit.EpochStart) && event.OccurredAt.Before(commit.EpochEnd) {
			delete(s.events, id)
		}
	}
	return nil
}

// ListSnapshots implements persistence.HistoryRepository.
func (s *Store) ListSnapshots(_ context.Context, workspaceID, memberID string) ([]persistence.ActivitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.ActivitySnapshot
	for _, snapshot := range s.snapshots {
		if snapshot.WorkspaceID == workspaceID && snapshot.MemberID == memberID {
			out = append(out, snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodEnd.Before(out[j].PeriodEnd) })
	return out, nil
}

// UpsertMember implements persistence.MemberRepository.
func (s *Store) UpsertMember(_ context.Context, member persistence.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[member.WorkspaceID+"|"+member.ID] = member
	return nil
}

// GetMember implements persistence.MemberRepository.
func (s *Store) GetMember(_ context.Context, workspaceID, id string) (persistence.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.members[workspaceID+"|"+id]
	if !ok {
		return persistence.Member{}, fmt.Errorf("member %s: %w", id, persistence.ErrNotFound)
	}
	return member, nil
}

// ListMembers implements persistence.MemberRepository.
func (s *Store) ListMembers(_ context.Context, workspaceID string) ([]persistence.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.Member
	for _, member := range s.members {
		if member.WorkspaceID == workspaceID {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) occurrenceByStartLocked(sessionTypeID string, startsAt time.Time) *persistence.Occurrence {
	for _, occurrence := range s.occurrences {
		if occurrence.SessionTypeID == sessionTypeID && occurrence.StartsAt.Equal(startsAt) {
			found := occurrence
			return &found
		}
	}
	return nil
}

func sortOccurrences(out []persistence.Occurrence) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
}
