package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/example/staff-scheduler/internal/persistence"
)

// SlotRepository implements persistence.SlotRepository using SQLite.
type SlotRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSlotRepository creates a new SQLite slot repository.
func NewSlotRepository(pool *ConnectionPool) *SlotRepository {
	return &SlotRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// ClaimSlot upserts the assignment keyed by (occurrence, member), creating
// the occurrence row first when the instant has never been materialized. The
// whole sequence runs in one transaction so concurrent first-claims serialize
// on the (session type, instant) uniqueness constraint.
func (r *SlotRepository) ClaimSlot(ctx context.Context, occurrence persistence.Occurrence, assignment persistence.SlotAssignment, setHost bool) (persistence.Occurrence, error) {
	var claimed persistence.Occurrence

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		row := r.helper.QueryRowTx(tx,
			`SELECT `+occurrenceColumns+` FROM occurrences WHERE session_type_id = ? AND starts_at = ?`,
			occurrence.SessionTypeID, formatTime(occurrence.StartsAt))
		existing, err := scanOccurrence(row)
		switch {
		case err == nil:
			// Row already materialized by an earlier claim or expansion.
		case errors.Is(err, sql.ErrNoRows):
			if insertErr := insertOccurrenceTx(r.helper, tx, occurrence); insertErr != nil {
				return r.mapper.MapError(insertErr)
			}
			existing = occurrence
		default:
			return r.mapper.MapError(err)
		}

		var holder string
		err = r.helper.QueryRowTx(tx,
			`SELECT member_id FROM slot_assignments WHERE occurrence_id = ? AND role_id = ? AND slot_index = ?`,
			existing.ID, assignment.RoleID, assignment.SlotIndex).Scan(&holder)
		switch {
		case err == nil && holder == assignment.MemberID:
			claimed = existing
			return nil
		case err == nil:
			return persistence.ErrDuplicate
		case !errors.Is(err, sql.ErrNoRows):
			return r.mapper.MapError(err)
		}

		// A member holds at most one position per occurrence; claiming a new
		// position moves the existing assignment.
		if _, err := r.helper.ExecTx(tx,
			`DELETE FROM slot_assignments WHERE occurrence_id = ? AND member_id = ?`,
			existing.ID, assignment.MemberID); err != nil {
			return r.mapper.MapError(err)
		}

		if _, err := r.helper.ExecTx(tx, `
			INSERT INTO slot_assignments (id, occurrence_id, member_id, role_id, slot_index, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			assignment.ID,
			existing.ID,
			assignment.MemberID,
			assignment.RoleID,
			assignment.SlotIndex,
			formatTime(assignment.CreatedAt),
		); err != nil {
			return r.mapper.MapError(err)
		}

		if setHost {
			if _, err := r.helper.ExecTx(tx,
				`UPDATE occurrences SET host_id = ?, updated_at = ? WHERE id = ?`,
				assignment.MemberID, formatTime(occurrence.UpdatedAt), existing.ID); err != nil {
				return r.mapper.MapError(err)
			}
			host := assignment.MemberID
			existing.HostID = &host
			existing.UpdatedAt = occurrence.UpdatedAt
		}

		claimed = existing
		return nil
	})
	if err != nil {
		return persistence.Occurrence{}, err
	}
	return claimed, nil
}

// ReleaseSlot deletes the assignment at (occurrence, role, slot-index) and
// clears host attribution when the released member was the host. The
// occurrence row itself stays.
func (r *SlotRepository) ReleaseSlot(ctx context.Context, occurrenceID, roleID string, slotIndex int) (persistence.Occurrence, error) {
	var released persistence.Occurrence

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var memberID string
		err := r.helper.QueryRowTx(tx,
			`SELECT member_id FROM slot_assignments WHERE occurrence_id = ? AND role_id = ? AND slot_index = ?`,
			occurrenceID, roleID, slotIndex).Scan(&memberID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return r.mapper.MapError(err)
		}

		if _, err := r.helper.ExecTx(tx,
			`DELETE FROM slot_assignments WHERE occurrence_id = ? AND role_id = ? AND slot_index = ?`,
			occurrenceID, roleID, slotIndex); err != nil {
			return r.mapper.MapError(err)
		}

		if _, err := r.helper.ExecTx(tx,
			`UPDATE occurrences SET host_id = NULL WHERE id = ? AND host_id = ?`,
			occurrenceID, memberID); err != nil {
			return r.mapper.MapError(err)
		}

		row := r.helper.QueryRowTx(tx,
			`SELECT `+occurrenceColumns+` FROM occurrences WHERE id = ?`, occurrenceID)
		released, err = scanOccurrence(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return r.mapper.MapError(err)
		}
		return nil
	})
	if err != nil {
		return persistence.Occurrence{}, err
	}
	return released, nil
}

// ListAssignmentsForOccurrences returns the assignments for the given
// occurrence ids, ordered by occurrence, role and slot index.
func (r *SlotRepository) ListAssignmentsForOccurrences(ctx context.Context, occurrenceIDs []string) ([]persistence.SlotAssignment, error) {
	if len(occurrenceIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(occurrenceIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(occurrenceIDs))
	for _, id := range occurrenceIDs {
		args = append(args, id)
	}

	rows, err := r.helper.Query(ctx, `
		SELECT id, occurrence_id, member_id, role_id, slot_index, created_at
		FROM slot_assignments
		WHERE occurrence_id IN (`+placeholders+`)
		ORDER BY occurrence_id ASC, role_id ASC, slot_index ASC`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var assignments []persistence.SlotAssignment
	for rows.Next() {
		var assignment persistence.SlotAssignment
		var createdAt string
		if err := rows.Scan(
			&assignment.ID,
			&assignment.OccurrenceID,
			&assignment.MemberID,
			&assignment.RoleID,
			&assignment.SlotIndex,
			&createdAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if assignment.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return assignments, nil
}
