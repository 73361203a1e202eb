package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/staff-scheduler/internal/persistence"
)

// MemberRepository implements persistence.MemberRepository using SQLite.
type MemberRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewMemberRepository creates a new SQLite member repository.
func NewMemberRepository(pool *ConnectionPool) *MemberRepository {
	return &MemberRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// UpsertMember inserts the directory row or refreshes its display name.
func (r *MemberRepository) UpsertMember(ctx context.Context, member persistence.Member) error {
	if member.ID == "" || member.WorkspaceID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO members (id, workspace_id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, id)
		DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at`,
		member.ID,
		member.WorkspaceID,
		member.DisplayName,
		formatTime(member.CreatedAt),
		formatTime(member.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetMember retrieves one directory entry.
func (r *MemberRepository) GetMember(ctx context.Context, workspaceID, id string) (persistence.Member, error) {
	var member persistence.Member
	var createdAt, updatedAt string
	err := r.helper.QueryRow(ctx, `
		SELECT id, workspace_id, display_name, created_at, updated_at
		FROM members WHERE workspace_id = ? AND id = ?`, workspaceID, id).Scan(
		&member.ID,
		&member.WorkspaceID,
		&member.DisplayName,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Member{}, persistence.ErrNotFound
		}
		return persistence.Member{}, r.mapper.MapError(err)
	}
	if member.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Member{}, err
	}
	if member.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Member{}, err
	}
	return member, nil
}

// ListMembers returns the workspace directory ordered by member id.
func (r *MemberRepository) ListMembers(ctx context.Context, workspaceID string) ([]persistence.Member, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, workspace_id, display_name, created_at, updated_at
		FROM members WHERE workspace_id = ?
		ORDER BY id ASC`, workspaceID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var members []persistence.Member
	for rows.Next() {
		var member persistence.Member
		var createdAt, updatedAt string
		if err := rows.Scan(
			&member.ID,
			&member.WorkspaceID,
			&member.DisplayName,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if member.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if member.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return members, nil
}
