package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/staff-scheduler/internal/persistence"
)

// PatternRepository implements persistence.PatternRepository using SQLite.
type PatternRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewPatternRepository creates a new SQLite pattern repository.
func NewPatternRepository(pool *ConnectionPool) *PatternRepository {
	return &PatternRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreatePatternWithOccurrences writes the pattern row and every generated
// occurrence row atomically. A duplicate (session type, instant) pair rolls
// back the whole batch.
func (r *PatternRepository) CreatePatternWithOccurrences(ctx context.Context, pattern persistence.RecurrencePattern, occurrences []persistence.Occurrence) error {
	if pattern.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO recurrence_patterns (id, session_type_id, weekdays, hour, minute, frequency, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			pattern.ID,
			pattern.SessionTypeID,
			encodeWeekdays(pattern.Weekdays),
			pattern.Hour,
			pattern.Minute,
			pattern.Frequency,
			formatTime(pattern.CreatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		for _, occurrence := range occurrences {
			if err := insertOccurrenceTx(r.helper, tx, occurrence); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetPattern retrieves one pattern by id.
func (r *PatternRepository) GetPattern(ctx context.Context, id string) (persistence.RecurrencePattern, error) {
	if id == "" {
		return persistence.RecurrencePattern{}, persistence.ErrNotFound
	}

	var pattern persistence.RecurrencePattern
	var weekdays, createdAt string
	err := r.helper.QueryRow(ctx, `
		SELECT id, session_type_id, weekdays, hour, minute, frequency, created_at
		FROM recurrence_patterns WHERE id = ?`, id).Scan(
		&pattern.ID,
		&pattern.SessionTypeID,
		&weekdays,
		&pattern.Hour,
		&pattern.Minute,
		&pattern.Frequency,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.RecurrencePattern{}, persistence.ErrNotFound
		}
		return persistence.RecurrencePattern{}, r.mapper.MapError(err)
	}

	if pattern.Weekdays, err = decodeWeekdays(weekdays); err != nil {
		return persistence.RecurrencePattern{}, err
	}
	if pattern.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.RecurrencePattern{}, err
	}
	return pattern, nil
}
