package persistence

import (
	"context"
	"time"
)

// CatalogRepository exposes the department, module, group and participant catalog.
type CatalogRepository interface {
	CreateDepartment(ctx context.Context, department Department) (Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	DeleteDepartment(ctx context.Context, id int64) error

	CreateModule(ctx context.Context, module Module) (Module, error)
	GetModule(ctx context.Context, id int64) (Module, error)
	ListModules(ctx context.Context, activeOnly bool) ([]Module, error)

	CreateGroup(ctx context.Context, group Group) (Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)

	CreateParticipant(ctx context.Context, participant Participant) (Participant, error)
	ListParticipantsByGroup(ctx context.Context, groupID int64) ([]Participant, error)
}

// SessionFilter narrows session queries.
type SessionFilter struct {
	GroupID  *int64
	ModuleID *int64
	From     *time.Time
	To       *time.Time
}

// SessionRepository exposes booked sessions and their attendance records.
type SessionRepository interface {
	FindActiveSession(ctx context.Context, moduleID int64, date time.Time, hour, minute int) (SessionSummary, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	ListAttendances(ctx context.Context, sessionID int64) ([]Attendance, error)
	GetAttendance(ctx context.Context, id int64) (Attendance, error)
	// UpdateAttendance writes the present, feedback and recorded_by columns.
	UpdateAttendance(ctx context.Context, attendance Attendance) error
	UpdateSessionStatus(ctx context.Context, id int64, status string) error
}

// DocumentRepository stores documents and their session associations.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, document Document) (Document, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListGlobalDocuments(ctx context.Context) ([]Document, error)
	ListSessionDocuments(ctx context.Context, sessionID int64) ([]Document, error)
}

// WaitlistRepository stores waitlist entries.
type WaitlistRepository interface {
	CreateWaitlistEntry(ctx context.Context, entry WaitlistEntry) (WaitlistEntry, error)
	GetWaitlistEntry(ctx context.Context, id int64) (WaitlistEntry, error)
	ListWaitlistEntries(ctx context.Context, sessionID int64) ([]WaitlistEntry, error)
	UpdateWaitlistStatus(ctx context.Context, id int64, status string, updatedAt time.Time) error
}

// ActivityRepository appends and reads audit records.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, entry ActivityLog) (ActivityLog, error)
	ListRecentActivity(ctx context.Context, limit int) ([]ActivityLog, error)
}

// BookingTx is the transactional handle shared by every step of a booking finalization.
type BookingTx interface {
	// FindActiveSessionForUpdate re-reads the slot while holding the write lock.
	FindActiveSessionForUpdate(ctx context.Context, moduleID int64, date time.Time, hour, minute int) (SessionSummary, error)
	GetModule(ctx context.Context, id int64) (Module, error)
	UpsertParticipant(ctx context.Context, participant Participant) (int64, error)
	ListParticipantIDs(ctx context.Context, groupID int64) ([]int64, error)
	CreateSession(ctx context.Context, session Session) (int64, error)
	// CreateAttendance reports false when the pair already existed.
	CreateAttendance(ctx context.Context, sessionID, participantID int64) (bool, error)
	SaveDocument(ctx context.Context, document Document) (int64, error)
	AssociateDocument(ctx context.Context, documentID, sessionID int64) error
	// AssociateGlobalDocument links a global document without aborting the transaction on failure.
	AssociateGlobalDocument(ctx context.Context, documentID, sessionID int64) error
}

// BookingStore opens the transaction scope used by finalization.
type BookingStore interface {
	WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error
}
