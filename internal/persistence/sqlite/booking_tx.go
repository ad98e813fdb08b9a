package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
)

// BookingStore implements persistence.BookingStore. Every transaction begins
// with BEGIN IMMEDIATE, so concurrent finalizations are serialized on the
// database write lock and the slot re-check inside one transaction cannot be
// invalidated by another.
type BookingStore struct {
	pool  *ConnectionPool
	retry *RetryHelper
}

// NewBookingStore creates a booking store retrying transactions that hit a busy database.
func NewBookingStore(pool *ConnectionPool, retry RetryConfig) *BookingStore {
	return &BookingStore{pool: pool, retry: NewRetryHelper(retry)}
}

// WithinBookingTx runs fn inside a single write transaction. Any error
// returned by fn rolls back every write made through the handle.
func (s *BookingStore) WithinBookingTx(ctx context.Context, fn func(tx persistence.BookingTx) error) error {
	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			return fn(&bookingTx{tx: tx, mapper: NewErrorMapper()})
		})
	})
}

type bookingTx struct {
	tx     *sql.Tx
	mapper *ErrorMapper
}

func (b *bookingTx) FindActiveSessionForUpdate(ctx context.Context, moduleID int64, date time.Time, hour, minute int) (persistence.SessionSummary, error) {
	return findActiveSession(ctx, b.tx, b.mapper, moduleID, date, hour, minute)
}

func (b *bookingTx) GetModule(ctx context.Context, id int64) (persistence.Module, error) {
	return getModule(ctx, b.tx, b.mapper, id)
}

// UpsertParticipant matches an existing roster entry by case-insensitive name
// and refreshes its contact fields, or inserts a new one.
func (b *bookingTx) UpsertParticipant(ctx context.Context, participant persistence.Participant) (int64, error) {
	var id int64
	err := b.tx.QueryRowContext(ctx, `
		SELECT id FROM participants
		WHERE group_id = ? AND lower(trim(name)) = lower(trim(?))
		ORDER BY id
		LIMIT 1`,
		participant.GroupID, participant.Name,
	).Scan(&id)
	switch {
	case err == nil:
		if _, err := b.tx.ExecContext(ctx, `
			UPDATE participants
			SET email = CASE WHEN ? <> '' THEN ? ELSE email END,
				position = CASE WHEN ? <> '' THEN ? ELSE position END
			WHERE id = ?`,
			participant.Email, participant.Email, participant.Position, participant.Position, id,
		); err != nil {
			return 0, b.mapper.MapError(err)
		}
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		return insertParticipant(ctx, b.tx, b.mapper, participant)
	default:
		return 0, b.mapper.MapError(err)
	}
}

func (b *bookingTx) ListParticipantIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := b.tx.QueryContext(ctx, `SELECT id FROM participants WHERE group_id = ? ORDER BY id`, groupID)
	if err != nil {
		return nil, b.mapper.MapError(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, b.mapper.MapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, b.mapper.MapError(err)
	}
	return ids, nil
}

// CreateSession inserts a session. A second non-canceled session on the same
// slot is rejected by the partial unique index and reported as persistence.ErrSlotTaken.
func (b *bookingTx) CreateSession(ctx context.Context, session persistence.Session) (int64, error) {
	created := stampCreated(session.CreatedAt)
	updated := session.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	status := session.Status
	if status == "" {
		status = persistence.SessionStatusConfirmed
	}

	result, err := b.tx.ExecContext(ctx, `
		INSERT INTO training_sessions (module_id, group_id, session_date, start_hour, start_minute, duration_minutes,
			status, location, additional_info, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ModuleID, session.GroupID, formatDate(session.Date), session.StartHour, session.StartMinute,
		session.DurationMinutes, status, session.Location, session.AdditionalInfo,
		formatTimestamp(created), formatTimestamp(updated),
	)
	if err != nil {
		mapped := b.mapper.MapError(err)
		if errors.Is(mapped, persistence.ErrDuplicate) {
			return 0, fmt.Errorf("%w: %v", persistence.ErrSlotTaken, err)
		}
		return 0, mapped
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}
	return id, nil
}

func (b *bookingTx) CreateAttendance(ctx context.Context, sessionID, participantID int64) (bool, error) {
	result, err := b.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO attendances (session_id, participant_id, created_at)
		VALUES (?, ?, ?)`,
		sessionID, participantID, formatTimestamp(time.Now()),
	)
	if err != nil {
		return false, b.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

func (b *bookingTx) SaveDocument(ctx context.Context, document persistence.Document) (int64, error) {
	return insertDocument(ctx, b.tx, b.mapper, document)
}

func (b *bookingTx) AssociateDocument(ctx context.Context, documentID, sessionID int64) error {
	return associateDocument(ctx, b.tx, b.mapper, documentID, sessionID)
}

// AssociateGlobalDocument runs under a savepoint so a failed link is undone
// without aborting the surrounding transaction.
func (b *bookingTx) AssociateGlobalDocument(ctx context.Context, documentID, sessionID int64) (err error) {
	if _, err := b.tx.ExecContext(ctx, `SAVEPOINT global_document`); err != nil {
		return b.mapper.MapError(err)
	}
	defer func() {
		if err != nil {
			if _, rbErr := b.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT global_document`); rbErr != nil {
				err = fmt.Errorf("%w (savepoint rollback failed: %v)", err, rbErr)
				return
			}
		}
		if _, relErr := b.tx.ExecContext(ctx, `RELEASE SAVEPOINT global_document`); relErr != nil && err == nil {
			err = b.mapper.MapError(relErr)
		}
	}()

	var isGlobal int
	if err := b.tx.QueryRowContext(ctx, `SELECT is_global FROM documents WHERE id = ?`, documentID).Scan(&isGlobal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %d: %w", documentID, persistence.ErrNotFound)
		}
		return b.mapper.MapError(err)
	}
	if isGlobal == 0 {
		return fmt.Errorf("%w: document %d is not a global document", persistence.ErrConstraintViolation, documentID)
	}
	return associateDocument(ctx, b.tx, b.mapper, documentID, sessionID)
}
