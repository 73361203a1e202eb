package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/staff-scheduler/internal/persistence"
)

// OccurrenceRepository implements persistence.OccurrenceRepository using SQLite.
type OccurrenceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewOccurrenceRepository creates a new SQLite occurrence repository.
func NewOccurrenceRepository(pool *ConnectionPool) *OccurrenceRepository {
	return &OccurrenceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const occurrenceColumns = `id, session_type_id, pattern_id, starts_at, duration_minutes,
	name, description, category, host_id, started, ended, created_at, updated_at`

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOccurrence(scanner rowScanner) (persistence.Occurrence, error) {
	var occurrence persistence.Occurrence
	var patternID, name, description, hostID sql.NullString
	var duration sql.NullInt64
	var startsAt, createdAt, updatedAt string

	err := scanner.Scan(
		&occurrence.ID,
		&occurrence.SessionTypeID,
		&patternID,
		&startsAt,
		&duration,
		&name,
		&description,
		&occurrence.Category,
		&hostID,
		&occurrence.Started,
		&occurrence.Ended,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Occurrence{}, err
	}

	occurrence.PatternID = stringFromNull(patternID)
	occurrence.Name = stringFromNull(name)
	occurrence.Description = stringFromNull(description)
	occurrence.HostID = stringFromNull(hostID)
	occurrence.DurationMinutes = intFromNull(duration)

	if occurrence.StartsAt, err = parseTime(startsAt); err != nil {
		return persistence.Occurrence{}, err
	}
	if occurrence.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Occurrence{}, err
	}
	if occurrence.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Occurrence{}, err
	}
	return occurrence, nil
}

func insertOccurrenceTx(helper *QueryHelper, tx *sql.Tx, occurrence persistence.Occurrence) error {
	_, err := helper.ExecTx(tx, `
		INSERT INTO occurrences (id, session_type_id, pattern_id, starts_at, duration_minutes,
			name, description, category, host_id, started, ended, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		occurrence.ID,
		occurrence.SessionTypeID,
		nullableString(occurrence.PatternID),
		formatTime(occurrence.StartsAt),
		nullableInt(occurrence.DurationMinutes),
		nullableString(occurrence.Name),
		nullableString(occurrence.Description),
		occurrence.Category,
		nullableString(occurrence.HostID),
		occurrence.Started,
		occurrence.Ended,
		formatTime(occurrence.CreatedAt),
		formatTime(occurrence.UpdatedAt),
	)
	return err
}

func updateOccurrenceTx(helper *QueryHelper, tx *sql.Tx, occurrence persistence.Occurrence) error {
	result, err := helper.ExecTx(tx, `
		UPDATE occurrences
		SET starts_at = ?, duration_minutes = ?, name = ?, description = ?,
			category = ?, host_id = ?, started = ?, ended = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(occurrence.StartsAt),
		nullableInt(occurrence.DurationMinutes),
		nullableString(occurrence.Name),
		nullableString(occurrence.Description),
		occurrence.Category,
		nullableString(occurrence.HostID),
		occurrence.Started,
		occurrence.Ended,
		formatTime(occurrence.UpdatedAt),
		occurrence.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// CreateOccurrence writes one ad-hoc or pre-expanded occurrence row.
func (r *OccurrenceRepository) CreateOccurrence(ctx context.Context, occurrence persistence.Occurrence) error {
	if occurrence.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := insertOccurrenceTx(r.helper, tx, occurrence); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// GetOccurrence retrieves one occurrence by id.
func (r *OccurrenceRepository) GetOccurrence(ctx context.Context, id string) (persistence.Occurrence, error) {
	if id == "" {
		return persistence.Occurrence{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE id = ?`, id)
	occurrence, err := scanOccurrence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Occurrence{}, persistence.ErrNotFound
		}
		return persistence.Occurrence{}, r.mapper.MapError(err)
	}
	return occurrence, nil
}

// GetOccurrenceByStart resolves the row keyed by the unique
// (session type, instant) pair.
func (r *OccurrenceRepository) GetOccurrenceByStart(ctx context.Context, sessionTypeID string, startsAt time.Time) (persistence.Occurrence, error) {
	row := r.helper.QueryRow(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE session_type_id = ? AND starts_at = ?`,
		sessionTypeID, formatTime(startsAt))
	occurrence, err := scanOccurrence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Occurrence{}, persistence.ErrNotFound
		}
		return persistence.Occurrence{}, r.mapper.MapError(err)
	}
	return occurrence, nil
}

// ListOccurrencesForPattern returns every occurrence expanded from one
// pattern, ordered by start.
func (r *OccurrenceRepository) ListOccurrencesForPattern(ctx context.Context, patternID string) ([]persistence.Occurrence, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE pattern_id = ? ORDER BY starts_at ASC, id ASC`,
		patternID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	return r.collect(rows)
}

// ListOccurrencesBetween returns workspace occurrences with
// from <= StartsAt < to.
func (r *OccurrenceRepository) ListOccurrencesBetween(ctx context.Context, workspaceID string, from, to time.Time) ([]persistence.Occurrence, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT o.id, o.session_type_id, o.pattern_id, o.starts_at, o.duration_minutes,
			o.name, o.description, o.category, o.host_id, o.started, o.ended, o.created_at, o.updated_at
		FROM occurrences o
		JOIN session_types st ON st.id = o.session_type_id
		WHERE st.workspace_id = ? AND o.starts_at >= ? AND o.starts_at < ?
		ORDER BY o.starts_at ASC, o.id ASC`,
		workspaceID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	return r.collect(rows)
}

// UpdateOccurrence rewrites the mutable fields of one occurrence.
func (r *OccurrenceRepository) UpdateOccurrence(ctx context.Context, occurrence persistence.Occurrence) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := updateOccurrenceTx(r.helper, tx, occurrence); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// UpdateOccurrences applies all updates in a single transaction. A missing
// row or a duplicate (session type, instant) pair rolls back the batch.
func (r *OccurrenceRepository) UpdateOccurrences(ctx context.Context, occurrences []persistence.Occurrence) error {
	if len(occurrences) == 0 {
		return nil
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, occurrence := range occurrences {
			if err := updateOccurrenceTx(r.helper, tx, occurrence); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

func (r *OccurrenceRepository) collect(rows *sql.Rows) ([]persistence.Occurrence, error) {
	defer rows.Close()

	var occurrences []persistence.Occurrence
	for rows.Next() {
		occurrence, err := scanOccurrence(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		occurrences = append(occurrences, occurrence)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return occurrences, nil
}
