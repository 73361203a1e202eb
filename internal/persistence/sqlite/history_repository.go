package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/staff-scheduler/internal/persistence"
)

// HistoryRepository implements persistence.HistoryRepository using SQLite.
type HistoryRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewHistoryRepository creates a new SQLite history repository.
func NewHistoryRepository(pool *ConnectionPool) *HistoryRepository {
	return &HistoryRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// LatestCheckpoint returns the newest checkpoint by period end, or
// ErrNotFound when the workspace has never been rolled up.
func (r *HistoryRepository) LatestCheckpoint(ctx context.Context, workspaceID string) (persistence.ResetCheckpoint, error) {
	var checkpoint persistence.ResetCheckpoint
	var periodStart, periodEnd, createdAt string
	err := r.helper.QueryRow(ctx, `
		SELECT id, workspace_id, actor_id, period_start, period_end, created_at
		FROM reset_checkpoints WHERE workspace_id = ?
		ORDER BY period_end DESC LIMIT 1`, workspaceID).Scan(
		&checkpoint.ID,
		&checkpoint.WorkspaceID,
		&checkpoint.ActorID,
		&periodStart,
		&periodEnd,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ResetCheckpoint{}, persistence.ErrNotFound
		}
		return persistence.ResetCheckpoint{}, r.mapper.MapError(err)
	}

	if checkpoint.PeriodStart, err = parseTime(periodStart); err != nil {
		return persistence.ResetCheckpoint{}, err
	}
	if checkpoint.PeriodEnd, err = parseTime(periodEnd); err != nil {
		return persistence.ResetCheckpoint{}, err
	}
	if checkpoint.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.ResetCheckpoint{}, err
	}
	return checkpoint, nil
}

// CommitRollup writes all snapshots and the checkpoint, then purges elapsed
// occurrences and the epoch's raw activity, in one transaction. A failure
// anywhere leaves the live accumulators untouched.
func (r *HistoryRepository) CommitRollup(ctx context.Context, commit persistence.RollupCommit) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, snapshot := range commit.Snapshots {
			progress, err := encodeQuotaProgress(snapshot.QuotaProgress)
			if err != nil {
				return err
			}
			if _, err := r.helper.ExecTx(tx, `
				INSERT INTO activity_snapshots (id, workspace_id, member_id, period_start, period_end,
					minutes, idle_minutes, messages, sessions_hosted, sessions_attended, sessions_logged,
					ancillary_visits, ancillary_posts, quota_progress, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				snapshot.ID,
				snapshot.WorkspaceID,
				snapshot.MemberID,
				formatTime(snapshot.PeriodStart),
				formatTime(snapshot.PeriodEnd),
				snapshot.Minutes,
				snapshot.IdleMinutes,
				snapshot.Messages,
				snapshot.SessionsHosted,
				snapshot.SessionsAttended,
				snapshot.SessionsLogged,
				snapshot.AncillaryVisits,
				snapshot.AncillaryPosts,
				progress,
				formatTime(snapshot.CreatedAt),
			); err != nil {
				return r.mapper.MapError(err)
			}
		}

		checkpoint := commit.Checkpoint
		if _, err := r.helper.ExecTx(tx, `
			INSERT INTO reset_checkpoints (id, workspace_id, actor_id, period_start, period_end, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			checkpoint.ID,
			checkpoint.WorkspaceID,
			checkpoint.ActorID,
			formatTime(checkpoint.PeriodStart),
			formatTime(checkpoint.PeriodEnd),
			formatTime(checkpoint.CreatedAt),
		); err != nil {
			return r.mapper.MapError(err)
		}

		// Slot assignments cascade with their occurrence rows.
		if _, err := r.helper.ExecTx(tx, `
			DELETE FROM occurrences
			WHERE session_type_id IN (SELECT id FROM session_types WHERE workspace_id = ?)
				AND starts_at < ?`,
			commit.WorkspaceID, formatTime(commit.ElapsedBefore)); err != nil {
			return r.mapper.MapError(err)
		}

		epochStart := formatTime(commit.EpochStart)
		epochEnd := formatTime(commit.EpochEnd)
		if _, err := r.helper.ExecTx(tx, `
			DELETE FROM activity_intervals
			WHERE workspace_id = ? AND ended_at IS NOT NULL AND ended_at >= ? AND ended_at < ?`,
			commit.WorkspaceID, epochStart, epochEnd); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := r.helper.ExecTx(tx, `
			DELETE FROM activity_adjustments
			WHERE workspace_id = ? AND created_at >= ? AND created_at < ?`,
			commit.WorkspaceID, epochStart, epochEnd); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := r.helper.ExecTx(tx, `
			DELETE FROM ancillary_events
			WHERE workspace_id = ? AND occurred_at >= ? AND occurred_at < ?`,
			commit.WorkspaceID, epochStart, epochEnd); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// ListSnapshots returns one member's snapshot history, newest period first.
func (r *HistoryRepository) ListSnapshots(ctx context.Context, workspaceID, memberID string) ([]persistence.ActivitySnapshot, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, workspace_id, member_id, period_start, period_end,
			minutes, idle_minutes, messages, sessions_hosted, sessions_attended, sessions_logged,
			ancillary_visits, ancillary_posts, quota_progress, created_at
		FROM activity_snapshots
		WHERE workspace_id = ? AND member_id = ?
		ORDER BY period_end DESC, id ASC`, workspaceID, memberID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var snapshots []persistence.ActivitySnapshot
	for rows.Next() {
		var snapshot persistence.ActivitySnapshot
		var periodStart, periodEnd, createdAt string
		var progress sql.NullString
		if err := rows.Scan(
			&snapshot.ID,
			&snapshot.WorkspaceID,
			&snapshot.MemberID,
			&periodStart,
			&periodEnd,
			&snapshot.Minutes,
			&snapshot.IdleMinutes,
			&snapshot.Messages,
			&snapshot.SessionsHosted,
			&snapshot.SessionsAttended,
			&snapshot.SessionsLogged,
			&snapshot.AncillaryVisits,
			&snapshot.AncillaryPosts,
			&progress,
			&createdAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if snapshot.PeriodStart, err = parseTime(periodStart); err != nil {
			return nil, err
		}
		if snapshot.PeriodEnd, err = parseTime(periodEnd); err != nil {
			return nil, err
		}
		if snapshot.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if snapshot.QuotaProgress, err = decodeQuotaProgress(progress); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return snapshots, nil
}

func encodeQuotaProgress(progress map[string]persistence.QuotaProgress) (any, error) {
	if len(progress) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(progress)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quota progress: %w", err)
	}
	return string(encoded), nil
}

func decodeQuotaProgress(value sql.NullString) (map[string]persistence.QuotaProgress, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	var progress map[string]persistence.QuotaProgress
	if err := json.Unmarshal([]byte(value.String), &progress); err != nil {
		return nil, fmt.Errorf("failed to decode quota progress: %w", err)
	}
	return progress, nil
}
