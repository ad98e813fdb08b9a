package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
)

// WaitlistRepository implements persistence.WaitlistRepository using SQLite.
type WaitlistRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewWaitlistRepository creates a new SQLite waitlist repository.
func NewWaitlistRepository(pool *ConnectionPool) *WaitlistRepository {
	return &WaitlistRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreateWaitlistEntry inserts an entry and returns it with its ID.
func (r *WaitlistRepository) CreateWaitlistEntry(ctx context.Context, entry persistence.WaitlistEntry) (persistence.WaitlistEntry, error) {
	entry.CreatedAt = stampCreated(entry.CreatedAt)
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}
	if entry.Status == "" {
		entry.Status = persistence.WaitlistStatusWaiting
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO waitlist_entries (session_id, contact_name, contact_email, contact_phone, notes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.ContactName, entry.ContactEmail, entry.ContactPhone, entry.Notes, entry.Status,
		formatTimestamp(entry.CreatedAt), formatTimestamp(entry.UpdatedAt),
	)
	if err != nil {
		return persistence.WaitlistEntry{}, r.mapper.MapError(err)
	}
	if entry.ID, err = result.LastInsertId(); err != nil {
		return persistence.WaitlistEntry{}, fmt.Errorf("failed to read waitlist entry id: %w", err)
	}
	return entry, nil
}

const waitlistColumns = `id, session_id, contact_name, contact_email, contact_phone, notes, status, created_at, updated_at`

func scanWaitlistEntry(scan func(dest ...any) error) (persistence.WaitlistEntry, error) {
	var e persistence.WaitlistEntry
	var createdAt, updatedAt string
	if err := scan(&e.ID, &e.SessionID, &e.ContactName, &e.ContactEmail, &e.ContactPhone,
		&e.Notes, &e.Status, &createdAt, &updatedAt); err != nil {
		return persistence.WaitlistEntry{}, err
	}
	var err error
	if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.WaitlistEntry{}, err
	}
	if e.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.WaitlistEntry{}, err
	}
	return e, nil
}

// GetWaitlistEntry retrieves an entry by ID.
func (r *WaitlistRepository) GetWaitlistEntry(ctx context.Context, id int64) (persistence.WaitlistEntry, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = ?`, id)
	entry, err := scanWaitlistEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.WaitlistEntry{}, persistence.ErrNotFound
		}
		return persistence.WaitlistEntry{}, r.mapper.MapError(err)
	}
	return entry, nil
}

// ListWaitlistEntries returns a session's entries in arrival order.
func (r *WaitlistRepository) ListWaitlistEntries(ctx context.Context, sessionID int64) ([]persistence.WaitlistEntry, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE session_id = ?
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}

// UpdateWaitlistStatus changes an entry's status.
func (r *WaitlistRepository) UpdateWaitlistStatus(ctx context.Context, id int64, status string, updatedAt time.Time) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE waitlist_entries SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTimestamp(stampCreated(updatedAt)), id,
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
