package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{pool: pool, mapper: NewErrorMapper()}
}

const activeSessionQuery = `
	SELECT s.id, s.module_id, s.group_id, g.name, s.session_date, s.start_hour, s.start_minute, s.status,
		(SELECT COUNT(*) FROM attendances a WHERE a.session_id = s.id),
		m.max_participants
	FROM training_sessions s
	JOIN formation_groups g ON g.id = s.group_id
	JOIN formation_modules m ON m.id = s.module_id
	WHERE s.module_id = ? AND s.session_date = ? AND s.start_hour = ? AND s.start_minute = ?
		AND s.status <> 'canceled'
	LIMIT 1`

func findActiveSession(ctx context.Context, q queryer, mapper *ErrorMapper, moduleID int64, date time.Time, hour, minute int) (persistence.SessionSummary, error) {
	var summary persistence.SessionSummary
	var sessionDate string
	err := q.QueryRowContext(ctx, activeSessionQuery, moduleID, formatDate(date), hour, minute).Scan(
		&summary.ID,
		&summary.ModuleID,
		&summary.GroupID,
		&summary.GroupName,
		&sessionDate,
		&summary.StartHour,
		&summary.StartMinute,
		&summary.Status,
		&summary.ParticipantCount,
		&summary.MaxParticipants,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.SessionSummary{}, persistence.ErrNotFound
		}
		return persistence.SessionSummary{}, mapper.MapError(err)
	}
	if summary.Date, err = parseDate(sessionDate); err != nil {
		return persistence.SessionSummary{}, err
	}
	return summary, nil
}

// FindActiveSession returns the non-canceled session holding the slot, or
// persistence.ErrNotFound when the slot is free.
func (r *SessionRepository) FindActiveSession(ctx context.Context, moduleID int64, date time.Time, hour, minute int) (persistence.SessionSummary, error) {
	return findActiveSession(ctx, r.pool.DB(), r.mapper, moduleID, date, hour, minute)
}

const sessionColumns = `id, module_id, group_id, session_date, start_hour, start_minute, duration_minutes, status, location, additional_info, created_at, updated_at`

func scanSession(scan func(dest ...any) error) (persistence.Session, error) {
	var s persistence.Session
	var date, createdAt, updatedAt string
	if err := scan(&s.ID, &s.ModuleID, &s.GroupID, &date, &s.StartHour, &s.StartMinute,
		&s.DurationMinutes, &s.Status, &s.Location, &s.AdditionalInfo, &createdAt, &updatedAt); err != nil {
		return persistence.Session{}, err
	}
	var err error
	if s.Date, err = parseDate(date); err != nil {
		return persistence.Session{}, err
	}
	if s.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Session{}, err
	}
	if s.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Session{}, err
	}
	return s, nil
}

// GetSession retrieves a session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id int64) (persistence.Session, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM training_sessions WHERE id = ?`, id)
	session, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Session{}, persistence.ErrNotFound
		}
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// ListSessions returns sessions matching the filter ordered by date and time.
func (r *SessionRepository) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	var conditions []string
	var args []any
	if filter.GroupID != nil {
		conditions = append(conditions, "group_id = ?")
		args = append(args, *filter.GroupID)
	}
	if filter.ModuleID != nil {
		conditions = append(conditions, "module_id = ?")
		args = append(args, *filter.ModuleID)
	}
	if filter.From != nil {
		conditions = append(conditions, "session_date >= ?")
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "session_date <= ?")
		args = append(args, formatDate(*filter.To))
	}

	query := `SELECT ` + sessionColumns + ` FROM training_sessions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY session_date, start_hour, start_minute, id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var sessions []persistence.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return sessions, nil
}

const attendanceQuery = `
	SELECT a.id, a.session_id, a.participant_id, p.name, a.present, a.feedback, a.recorded_by, a.created_at
	FROM attendances a
	JOIN participants p ON p.id = a.participant_id`

func scanAttendance(scan func(dest ...any) error) (persistence.Attendance, error) {
	var a persistence.Attendance
	var present int
	var createdAt string
	if err := scan(&a.ID, &a.SessionID, &a.ParticipantID, &a.ParticipantName, &present, &a.Feedback, &a.RecordedBy, &createdAt); err != nil {
		return persistence.Attendance{}, err
	}
	a.Present = present != 0
	var err error
	if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Attendance{}, err
	}
	return a, nil
}

// ListAttendances returns the attendance rows of a session.
func (r *SessionRepository) ListAttendances(ctx context.Context, sessionID int64) ([]persistence.Attendance, error) {
	rows, err := r.pool.DB().QueryContext(ctx, attendanceQuery+` WHERE a.session_id = ? ORDER BY a.id`, sessionID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var attendances []persistence.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		attendances = append(attendances, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return attendances, nil
}

// GetAttendance retrieves an attendance row by ID.
func (r *SessionRepository) GetAttendance(ctx context.Context, id int64) (persistence.Attendance, error) {
	row := r.pool.DB().QueryRowContext(ctx, attendanceQuery+` WHERE a.id = ?`, id)
	a, err := scanAttendance(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Attendance{}, persistence.ErrNotFound
		}
		return persistence.Attendance{}, r.mapper.MapError(err)
	}
	return a, nil
}

// UpdateAttendance records presence and feedback for an attendance row.
func (r *SessionRepository) UpdateAttendance(ctx context.Context, attendance persistence.Attendance) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE attendances SET present = ?, feedback = ?, recorded_by = ? WHERE id = ?`,
		boolToInt(attendance.Present), attendance.Feedback, attendance.RecordedBy, attendance.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// UpdateSessionStatus changes a session's status. Re-activating a canceled
// session whose slot was booked again fails with persistence.ErrSlotTaken.
func (r *SessionRepository) UpdateSessionStatus(ctx context.Context, id int64, status string) error {
	switch status {
	case persistence.SessionStatusConfirmed, persistence.SessionStatusCanceled, persistence.SessionStatusCompleted:
	default:
		return fmt.Errorf("%w: unknown session status %q", persistence.ErrConstraintViolation, status)
	}

	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE training_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTimestamp(time.Now()), id,
	)
	if err != nil {
		mapped := r.mapper.MapError(err)
		if errors.Is(mapped, persistence.ErrDuplicate) {
			return fmt.Errorf("%w: %v", persistence.ErrSlotTaken, err)
		}
		return mapped
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
