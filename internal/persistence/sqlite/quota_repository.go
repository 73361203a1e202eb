package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/staff-scheduler/internal/persistence"
)

// QuotaRepository implements persistence.QuotaRepository using SQLite.
type QuotaRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewQuotaRepository creates a new SQLite quota repository.
func NewQuotaRepository(pool *ConnectionPool) *QuotaRepository {
	return &QuotaRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateQuota writes the quota row and its role bindings in one transaction.
func (r *QuotaRepository) CreateQuota(ctx context.Context, quota persistence.Quota) error {
	if quota.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO quotas (id, workspace_id, name, kind, threshold, session_category, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			quota.ID,
			quota.WorkspaceID,
			quota.Name,
			quota.Kind,
			quota.Threshold,
			nullableString(quota.SessionCategory),
			formatTime(quota.CreatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		for _, roleID := range quota.RoleIDs {
			if _, err := r.helper.ExecTx(tx,
				`INSERT INTO quota_roles (quota_id, role_id) VALUES (?, ?)`,
				quota.ID, roleID); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// ListQuotas returns the workspace quota definitions ordered by name.
func (r *QuotaRepository) ListQuotas(ctx context.Context, workspaceID string) ([]persistence.Quota, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, workspace_id, name, kind, threshold, session_category, created_at
		FROM quotas WHERE workspace_id = ?
		ORDER BY name ASC, id ASC`, workspaceID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var quotas []persistence.Quota
	for rows.Next() {
		var quota persistence.Quota
		var sessionCategory sql.NullString
		var createdAt string
		if err := rows.Scan(
			&quota.ID,
			&quota.WorkspaceID,
			&quota.Name,
			&quota.Kind,
			&quota.Threshold,
			&sessionCategory,
			&createdAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		quota.SessionCategory = stringFromNull(sessionCategory)
		if quota.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		quotas = append(quotas, quota)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	for i := range quotas {
		if err := r.loadRoles(ctx, &quotas[i]); err != nil {
			return nil, err
		}
	}
	return quotas, nil
}

func (r *QuotaRepository) loadRoles(ctx context.Context, quota *persistence.Quota) error {
	rows, err := r.helper.Query(ctx,
		`SELECT role_id FROM quota_roles WHERE quota_id = ? ORDER BY role_id`, quota.ID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return r.mapper.MapError(err)
		}
		quota.RoleIDs = append(quota.RoleIDs, roleID)
	}
	return r.mapper.MapError(rows.Err())
}
