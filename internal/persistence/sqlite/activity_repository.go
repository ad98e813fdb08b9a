package sqlite

import (
	"context"
	"fmt"

	"github.com/kaizen2025/Formation/internal/persistence"
)

// ActivityRepository implements persistence.ActivityRepository using SQLite.
type ActivityRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewActivityRepository creates a new SQLite activity repository.
func NewActivityRepository(pool *ConnectionPool) *ActivityRepository {
	return &ActivityRepository{pool: pool, mapper: NewErrorMapper()}
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

// AppendActivity stores an audit record.
func (r *ActivityRepository) AppendActivity(ctx context.Context, entry persistence.ActivityLog) (persistence.ActivityLog, error) {
	entry.CreatedAt = stampCreated(entry.CreatedAt)
	entry.ActorJSON = orEmptyObject(entry.ActorJSON)
	entry.DetailsJSON = orEmptyObject(entry.DetailsJSON)

	result, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO activity_logs (action, actor, entity_type, entity_id, details, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Action, entry.ActorJSON, entry.EntityType, entry.EntityID, entry.DetailsJSON,
		entry.IPAddress, entry.UserAgent, formatTimestamp(entry.CreatedAt),
	)
	if err != nil {
		return persistence.ActivityLog{}, r.mapper.MapError(err)
	}
	if entry.ID, err = result.LastInsertId(); err != nil {
		return persistence.ActivityLog{}, fmt.Errorf("failed to read activity id: %w", err)
	}
	return entry, nil
}

// ListRecentActivity returns the newest records first.
func (r *ActivityRepository) ListRecentActivity(ctx context.Context, limit int) ([]persistence.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, action, actor, entity_type, entity_id, details, ip_address, user_agent, created_at
		FROM activity_logs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.ActivityLog
	for rows.Next() {
		var e persistence.ActivityLog
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorJSON, &e.EntityType, &e.EntityID,
			&e.DetailsJSON, &e.IPAddress, &e.UserAgent, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}
