package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/staff-scheduler/internal/persistence"
)

// ActivityRepository implements persistence.ActivityRepository using SQLite.
type ActivityRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewActivityRepository creates a new SQLite activity repository.
func NewActivityRepository(pool *ConnectionPool) *ActivityRepository {
	return &ActivityRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// OpenInterval starts a clock-in span. The partial unique index on open
// intervals turns a second clock-in into ErrDuplicate.
func (r *ActivityRepository) OpenInterval(ctx context.Context, interval persistence.ActivityInterval) error {
	if interval.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO activity_intervals (id, workspace_id, member_id, started_at, ended_at, idle_seconds, message_count, universe_id)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?)`,
		interval.ID,
		interval.WorkspaceID,
		interval.MemberID,
		formatTime(interval.StartedAt),
		interval.IdleSeconds,
		interval.MessageCount,
		nullableString(interval.UniverseID),
	)
	return r.mapper.MapError(err)
}

// CloseInterval ends the member's open interval, stamping the idle and
// message counters reported at clock-out.
func (r *ActivityRepository) CloseInterval(ctx context.Context, workspaceID, memberID string, endedAt time.Time, idleSeconds, messageCount int) (persistence.ActivityInterval, error) {
	var closed persistence.ActivityInterval

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `
			UPDATE activity_intervals
			SET ended_at = ?, idle_seconds = ?, message_count = ?
			WHERE workspace_id = ? AND member_id = ? AND ended_at IS NULL`,
			formatTime(endedAt), idleSeconds, messageCount, workspaceID, memberID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}

		row := r.helper.QueryRowTx(tx, `
			SELECT id, workspace_id, member_id, started_at, ended_at, idle_seconds, message_count, universe_id
			FROM activity_intervals
			WHERE workspace_id = ? AND member_id = ? AND ended_at = ?
			ORDER BY started_at DESC LIMIT 1`,
			workspaceID, memberID, formatTime(endedAt))
		closed, err = scanInterval(row)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
	if err != nil {
		return persistence.ActivityInterval{}, err
	}
	return closed, nil
}

// CreateAdjustment records one signed manual minute delta.
func (r *ActivityRepository) CreateAdjustment(ctx context.Context, adjustment persistence.ActivityAdjustment) error {
	if adjustment.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO activity_adjustments (id, workspace_id, member_id, actor_id, minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		adjustment.ID,
		adjustment.WorkspaceID,
		adjustment.MemberID,
		adjustment.ActorID,
		adjustment.Minutes,
		formatTime(adjustment.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// RecordAncillaryEvent records one raw visit or post counter row.
func (r *ActivityRepository) RecordAncillaryEvent(ctx context.Context, event persistence.AncillaryEvent) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO ancillary_events (id, workspace_id, member_id, kind, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.WorkspaceID,
		event.MemberID,
		event.Kind,
		formatTime(event.OccurredAt),
	)
	return r.mapper.MapError(err)
}

// ListClosedIntervals returns intervals with from <= EndedAt < to.
func (r *ActivityRepository) ListClosedIntervals(ctx context.Context, workspaceID string, from, to time.Time) ([]persistence.ActivityInterval, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, workspace_id, member_id, started_at, ended_at, idle_seconds, message_count, universe_id
		FROM activity_intervals
		WHERE workspace_id = ? AND ended_at IS NOT NULL AND ended_at >= ? AND ended_at < ?
		ORDER BY ended_at ASC, id ASC`,
		workspaceID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var intervals []persistence.ActivityInterval
	for rows.Next() {
		interval, err := scanInterval(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		intervals = append(intervals, interval)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return intervals, nil
}

// ListAdjustments returns adjustments with from <= CreatedAt < to.
func (r *ActivityRepository) ListAdjustments(ctx context.Context, workspaceID string, from, to time.Time) ([]persistence.ActivityAdjustment, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, workspace_id, member_id, actor_id, minutes, created_at
		FROM activity_adjustments
		WHERE workspace_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC`,
		workspaceID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var adjustments []persistence.ActivityAdjustment
	for rows.Next() {
		var adjustment persistence.ActivityAdjustment
		var createdAt string
		if err := rows.Scan(
			&adjustment.ID,
			&adjustment.WorkspaceID,
			&adjustment.MemberID,
			&adjustment.ActorID,
			&adjustment.Minutes,
			&createdAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if adjustment.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adjustment)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return adjustments, nil
}

// ListAncillaryEvents returns events with from <= OccurredAt < to.
func (r *ActivityRepository) ListAncillaryEvents(ctx context.Context, workspaceID string, from, to time.Time) ([]persistence.AncillaryEvent, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, workspace_id, member_id, kind, occurred_at
		FROM ancillary_events
		WHERE workspace_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at ASC, id ASC`,
		workspaceID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.AncillaryEvent
	for rows.Next() {
		var event persistence.AncillaryEvent
		var occurredAt string
		if err := rows.Scan(
			&event.ID,
			&event.WorkspaceID,
			&event.MemberID,
			&event.Kind,
			&occurredAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if event.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

func scanInterval(scanner rowScanner) (persistence.ActivityInterval, error) {
	var interval persistence.ActivityInterval
	var startedAt string
	var endedAt, universeID sql.NullString

	err := scanner.Scan(
		&interval.ID,
		&interval.WorkspaceID,
		&interval.MemberID,
		&startedAt,
		&endedAt,
		&interval.IdleSeconds,
		&interval.MessageCount,
		&universeID,
	)
	if err != nil {
		return persistence.ActivityInterval{}, err
	}

	if interval.StartedAt, err = parseTime(startedAt); err != nil {
		return persistence.ActivityInterval{}, err
	}
	if interval.EndedAt, err = timeFromNull(endedAt); err != nil {
		return persistence.ActivityInterval{}, err
	}
	interval.UniverseID = stringFromNull(universeID)
	return interval, nil
}
