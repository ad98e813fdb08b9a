package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
)

// CatalogRepository implements persistence.CatalogRepository using SQLite.
type CatalogRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewCatalogRepository creates a new SQLite catalog repository.
func NewCatalogRepository(pool *ConnectionPool) *CatalogRepository {
	return &CatalogRepository{pool: pool, mapper: NewErrorMapper()}
}

func stampCreated(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// CreateDepartment inserts a department and returns it with its ID.
func (r *CatalogRepository) CreateDepartment(ctx context.Context, department persistence.Department) (persistence.Department, error) {
	department.CreatedAt = stampCreated(department.CreatedAt)
	result, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO departments (code, name, description, created_at)
		VALUES (?, ?, ?, ?)`,
		department.Code, department.Name, department.Description, formatTimestamp(department.CreatedAt),
	)
	if err != nil {
		return persistence.Department{}, r.mapper.MapError(err)
	}
	if department.ID, err = result.LastInsertId(); err != nil {
		return persistence.Department{}, fmt.Errorf("failed to read department id: %w", err)
	}
	return department, nil
}

// ListDepartments returns every department ordered by name.
func (r *CatalogRepository) ListDepartments(ctx context.Context) ([]persistence.Department, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, code, name, description, created_at
		FROM departments
		ORDER BY name, id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var departments []persistence.Department
	for rows.Next() {
		var d persistence.Department
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.Description, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if d.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return departments, nil
}

// DeleteDepartment removes a department. Departments still referenced by a
// group are rejected with persistence.ErrForeignKeyViolation.
func (r *CatalogRepository) DeleteDepartment(ctx context.Context, id int64) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM departments WHERE id = ?`, id)
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

// CreateModule inserts a training module and returns it with its ID.
func (r *CatalogRepository) CreateModule(ctx context.Context, module persistence.Module) (persistence.Module, error) {
	module.CreatedAt = stampCreated(module.CreatedAt)
	result, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO formation_modules (code, name, description, duration_minutes, min_participants, max_participants, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		module.Code, module.Name, module.Description, module.DurationMinutes,
		module.MinParticipants, module.MaxParticipants, boolToInt(module.Active),
		formatTimestamp(module.CreatedAt),
	)
	if err != nil {
		return persistence.Module{}, r.mapper.MapError(err)
	}
	if module.ID, err = result.LastInsertId(); err != nil {
		return persistence.Module{}, fmt.Errorf("failed to read module id: %w", err)
	}
	return module, nil
}

const moduleColumns = `id, code, name, description, duration_minutes, min_participants, max_participants, active, created_at`

func scanModule(scan func(dest ...any) error) (persistence.Module, error) {
	var m persistence.Module
	var active int
	var createdAt string
	if err := scan(&m.ID, &m.Code, &m.Name, &m.Description, &m.DurationMinutes,
		&m.MinParticipants, &m.MaxParticipants, &active, &createdAt); err != nil {
		return persistence.Module{}, err
	}
	m.Active = active != 0
	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return persistence.Module{}, err
	}
	m.CreatedAt = ts
	return m, nil
}

func getModule(ctx context.Context, q queryer, mapper *ErrorMapper, id int64) (persistence.Module, error) {
	row := q.QueryRowContext(ctx, `SELECT `+moduleColumns+` FROM formation_modules WHERE id = ?`, id)
	module, err := scanModule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Module{}, persistence.ErrNotFound
		}
		return persistence.Module{}, mapper.MapError(err)
	}
	return module, nil
}

// GetModule retrieves a module by ID.
func (r *CatalogRepository) GetModule(ctx context.Context, id int64) (persistence.Module, error) {
	return getModule(ctx, r.pool.DB(), r.mapper, id)
}

// ListModules returns modules ordered by name, optionally only active ones.
func (r *CatalogRepository) ListModules(ctx context.Context, activeOnly bool) ([]persistence.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM formation_modules`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := r.pool.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var modules []persistence.Module
	for rows.Next() {
		module, err := scanModule(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		modules = append(modules, module)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return modules, nil
}

// CreateGroup inserts a group and returns it with its ID.
func (r *CatalogRepository) CreateGroup(ctx context.Context, group persistence.Group) (persistence.Group, error) {
	group.CreatedAt = stampCreated(group.CreatedAt)
	result, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO formation_groups (name, contact_name, contact_email, contact_phone, department_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		group.Name, group.ContactName, group.ContactEmail, group.ContactPhone,
		nullableInt64(group.DepartmentID), group.Notes, formatTimestamp(group.CreatedAt),
	)
	if err != nil {
		return persistence.Group{}, r.mapper.MapError(err)
	}
	if group.ID, err = result.LastInsertId(); err != nil {
		return persistence.Group{}, fmt.Errorf("failed to read group id: %w", err)
	}
	return group, nil
}

const groupColumns = `id, name, contact_name, contact_email, contact_phone, department_id, notes, created_at`

func scanGroup(scan func(dest ...any) error) (persistence.Group, error) {
	var g persistence.Group
	var department sql.NullInt64
	var createdAt string
	if err := scan(&g.ID, &g.Name, &g.ContactName, &g.ContactEmail, &g.ContactPhone,
		&department, &g.Notes, &createdAt); err != nil {
		return persistence.Group{}, err
	}
	if department.Valid {
		id := department.Int64
		g.DepartmentID = &id
	}
	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return persistence.Group{}, err
	}
	g.CreatedAt = ts
	return g, nil
}

// GetGroup retrieves a group by ID.
func (r *CatalogRepository) GetGroup(ctx context.Context, id int64) (persistence.Group, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+groupColumns+` FROM formation_groups WHERE id = ?`, id)
	group, err := scanGroup(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Group{}, persistence.ErrNotFound
		}
		return persistence.Group{}, r.mapper.MapError(err)
	}
	return group, nil
}

// ListGroups returns every group ordered by name.
func (r *CatalogRepository) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT `+groupColumns+` FROM formation_groups ORDER BY name, id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var groups []persistence.Group
	for rows.Next() {
		group, err := scanGroup(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return groups, nil
}

func insertParticipant(ctx context.Context, q queryer, mapper *ErrorMapper, participant persistence.Participant) (int64, error) {
	result, err := q.ExecContext(ctx, `
		INSERT INTO participants (group_id, name, email, position, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		participant.GroupID, participant.Name, participant.Email, participant.Position,
		formatTimestamp(stampCreated(participant.CreatedAt)),
	)
	if err != nil {
		return 0, mapper.MapError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read participant id: %w", err)
	}
	return id, nil
}

// CreateParticipant inserts a participant into a group's roster.
func (r *CatalogRepository) CreateParticipant(ctx context.Context, participant persistence.Participant) (persistence.Participant, error) {
	participant.CreatedAt = stampCreated(participant.CreatedAt)
	id, err := insertParticipant(ctx, r.pool.DB(), r.mapper, participant)
	if err != nil {
		return persistence.Participant{}, err
	}
	participant.ID = id
	return participant, nil
}

// ListParticipantsByGroup returns a group's roster ordered by name.
func (r *CatalogRepository) ListParticipantsByGroup(ctx context.Context, groupID int64) ([]persistence.Participant, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, group_id, name, email, position, created_at
		FROM participants
		WHERE group_id = ?
		ORDER BY name, id`, groupID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var participants []persistence.Participant
	for rows.Next() {
		var p persistence.Participant
		var createdAt string
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Name, &p.Email, &p.Position, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return participants, nil
}
