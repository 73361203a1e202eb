package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/staff-scheduler/internal/persistence"
)

// SessionTypeRepository implements persistence.SessionTypeRepository using SQLite.
type SessionTypeRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionTypeRepository creates a new SQLite session type repository.
func NewSessionTypeRepository(pool *ConnectionPool) *SessionTypeRepository {
	return &SessionTypeRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateSessionType writes the catalog row and its role bindings in one
// transaction.
func (r *SessionTypeRepository) CreateSessionType(ctx context.Context, sessionType persistence.SessionType) error {
	if sessionType.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO session_types (id, workspace_id, name, category, allow_unscheduled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionType.ID,
			sessionType.WorkspaceID,
			sessionType.Name,
			sessionType.Category,
			sessionType.AllowUnscheduled,
			formatTime(sessionType.CreatedAt),
			formatTime(sessionType.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		for _, roleID := range sessionType.HostingRoleIDs {
			if _, err := r.helper.ExecTx(tx,
				`INSERT INTO session_type_hosting_roles (session_type_id, role_id) VALUES (?, ?)`,
				sessionType.ID, roleID); err != nil {
				return r.mapper.MapError(err)
			}
		}
		for position, slot := range sessionType.Slots {
			if _, err := r.helper.ExecTx(tx, `
				INSERT INTO session_type_slots (session_type_id, role_id, label, slot_count, position)
				VALUES (?, ?, ?, ?, ?)`,
				sessionType.ID, slot.RoleID, slot.Label, slot.Count, position); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetSessionType retrieves one catalog entry by id.
func (r *SessionTypeRepository) GetSessionType(ctx context.Context, id string) (persistence.SessionType, error) {
	if id == "" {
		return persistence.SessionType{}, persistence.ErrNotFound
	}

	var sessionType persistence.SessionType
	var createdAt, updatedAt string
	err := r.helper.QueryRow(ctx, `
		SELECT id, workspace_id, name, category, allow_unscheduled, created_at, updated_at
		FROM session_types WHERE id = ?`, id).Scan(
		&sessionType.ID,
		&sessionType.WorkspaceID,
		&sessionType.Name,
		&sessionType.Category,
		&sessionType.AllowUnscheduled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.SessionType{}, persistence.ErrNotFound
		}
		return persistence.SessionType{}, r.mapper.MapError(err)
	}
	if sessionType.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.SessionType{}, err
	}
	if sessionType.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.SessionType{}, err
	}

	if err := r.loadBindings(ctx, &sessionType); err != nil {
		return persistence.SessionType{}, err
	}
	return sessionType, nil
}

// ListSessionTypes returns the workspace catalog ordered by name.
func (r *SessionTypeRepository) ListSessionTypes(ctx context.Context, workspaceID string) ([]persistence.SessionType, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, workspace_id, name, category, allow_unscheduled, created_at, updated_at
		FROM session_types WHERE workspace_id = ?
		ORDER BY name ASC, id ASC`, workspaceID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var sessionTypes []persistence.SessionType
	for rows.Next() {
		var sessionType persistence.SessionType
		var createdAt, updatedAt string
		if err := rows.Scan(
			&sessionType.ID,
			&sessionType.WorkspaceID,
			&sessionType.Name,
			&sessionType.Category,
			&sessionType.AllowUnscheduled,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if sessionType.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if sessionType.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		sessionTypes = append(sessionTypes, sessionType)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	for i := range sessionTypes {
		if err := r.loadBindings(ctx, &sessionTypes[i]); err != nil {
			return nil, err
		}
	}
	return sessionTypes, nil
}

func (r *SessionTypeRepository) loadBindings(ctx context.Context, sessionType *persistence.SessionType) error {
	roleRows, err := r.helper.Query(ctx,
		`SELECT role_id FROM session_type_hosting_roles WHERE session_type_id = ? ORDER BY role_id`,
		sessionType.ID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var roleID string
		if err := roleRows.Scan(&roleID); err != nil {
			return r.mapper.MapError(err)
		}
		sessionType.HostingRoleIDs = append(sessionType.HostingRoleIDs, roleID)
	}
	if err := roleRows.Err(); err != nil {
		return r.mapper.MapError(err)
	}

	slotRows, err := r.helper.Query(ctx, `
		SELECT role_id, label, slot_count FROM session_type_slots
		WHERE session_type_id = ? ORDER BY position`, sessionType.ID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var slot persistence.SlotDefinition
		if err := slotRows.Scan(&slot.RoleID, &slot.Label, &slot.Count); err != nil {
			return r.mapper.MapError(err)
		}
		sessionType.Slots = append(sessionType.Slots, slot)
	}
	return r.mapper.MapError(slotRows.Err())
}
