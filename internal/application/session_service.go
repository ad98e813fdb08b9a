package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/scheduler"
)

// SessionRepository reads booked sessions and records their follow-up.
type SessionRepository interface {
	GetSession(ctx context.Context, id int64) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	UpdateSessionStatus(ctx context.Context, id int64, status string) error
	ListAttendances(ctx context.Context, sessionID int64) ([]Attendance, error)
	GetAttendance(ctx context.Context, id int64) (Attendance, error)
	UpdateAttendance(ctx context.Context, attendance Attendance) error
	ListSessionDocuments(ctx context.Context, sessionID int64) ([]Document, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
}

// AttendanceInput updates an attendance record. Nil fields keep their value.
type AttendanceInput struct {
	Present    *bool   `json:"present,omitempty"`
	Feedback   *string `json:"feedback,omitempty" validate:"omitempty,max=2000"`
	RecordedBy string  `json:"recorded_by,omitempty" validate:"max=200"`
}

// SessionService lists booked sessions, changes their status and records attendance.
type SessionService struct {
	repo     SessionRepository
	activity *ActivityService
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionService constructs a session service.
func NewSessionService(repo SessionRepository, activity *ActivityService, now func() time.Time) *SessionService {
	return NewSessionServiceWithLogger(repo, activity, now, nil)
}

// NewSessionServiceWithLogger constructs a session service with a specified logger.
func NewSessionServiceWithLogger(repo SessionRepository, activity *ActivityService, now func() time.Time, logger *slog.Logger) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{repo: repo, activity: activity, now: now, logger: defaultLogger(logger)}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// List returns sessions matching filter in chronological order.
func (s *SessionService) List(ctx context.Context, filter SessionFilter) ([]Session, error) {
	if s == nil {
		return nil, fmt.Errorf("SessionService is nil")
	}
	if s.repo == nil {
		return []Session{}, nil
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		vErr := &ValidationError{}
		vErr.add("to", msgInvalidDate)
		return nil, vErr
	}
	sessions, err := s.repo.ListSessions(ctx, filter)
	if err != nil {
		return nil, transient("list sessions", err)
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// Get returns a session with its attendances and document metadata.
func (s *SessionService) Get(ctx context.Context, id int64) (SessionDetail, error) {
	if s == nil {
		return SessionDetail{}, fmt.Errorf("SessionService is nil")
	}
	if s.repo == nil {
		return SessionDetail{}, fmt.Errorf("session repository not configured")
	}
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return SessionDetail{}, mapCatalogRepoError("id", err)
	}
	attendances, err := s.repo.ListAttendances(ctx, id)
	if err != nil {
		return SessionDetail{}, transient("list attendances", err)
	}
	documents, err := s.repo.ListSessionDocuments(ctx, id)
	if err != nil {
		return SessionDetail{}, transient("list session documents", err)
	}
	for i := range documents {
		documents[i].Data = nil
	}
	if attendances == nil {
		attendances = []Attendance{}
	}
	if documents == nil {
		documents = []Document{}
	}
	return SessionDetail{Session: session, Attendances: attendances, Documents: documents}, nil
}

// UpdateStatus moves a session to status. Canceling frees the slot;
// re-confirming a canceled session whose slot was booked again fails with a
// ConflictError.
func (s *SessionService) UpdateStatus(ctx context.Context, id int64, status string) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	if s.repo == nil {
		err = fmt.Errorf("session repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "UpdateStatus", "session_id", id, "status", status)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update session status", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case SessionStatusConfirmed, SessionStatusCanceled, SessionStatusCompleted:
	default:
		vErr := &ValidationError{}
		vErr.add("status", msgInvalidStatus)
		err = vErr
		return
	}

	previous, getErr := s.repo.GetSession(ctx, id)
	if getErr != nil {
		err = mapCatalogRepoError("id", getErr)
		return
	}
	if previous.Status == status {
		session = previous
		return
	}

	if updateErr := s.repo.UpdateSessionStatus(ctx, id, status); updateErr != nil {
		if errors.Is(updateErr, persistence.ErrSlotTaken) {
			err = &ConflictError{Conflicts: []scheduler.Conflict{{Slot: previous.Slot, Type: scheduler.ConflictTypeBooked}}}
			return
		}
		err = mapCatalogRepoError("status", updateErr)
		return
	}
	session = previous
	session.Status = status
	session.UpdatedAt = s.now().UTC()

	s.activity.Record(ctx, ActivityEntry{
		Action:     ActionSessionStatusChanged,
		EntityType: "session",
		EntityID:   strconv.FormatInt(id, 10),
		Details: map[string]any{
			"from":      previous.Status,
			"to":        status,
			"module_id": previous.Slot.ModuleID,
			"date":      previous.Slot.DateString(),
			"time":      previous.Slot.TimeString(),
		},
	})
	logger.InfoContext(ctx, "session status changed", "from", previous.Status)
	return
}

// Cancel releases a session's slot.
func (s *SessionService) Cancel(ctx context.Context, id int64) (Session, error) {
	return s.UpdateStatus(ctx, id, SessionStatusCanceled)
}

// UpdateAttendance records presence and feedback for one participant.
func (s *SessionService) UpdateAttendance(ctx context.Context, id int64, input AttendanceInput) (attendance Attendance, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	if s.repo == nil {
		err = fmt.Errorf("session repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "UpdateAttendance", "attendance_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update attendance", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	input.RecordedBy = strings.TrimSpace(input.RecordedBy)
	if input.Feedback != nil {
		trimmed := strings.TrimSpace(*input.Feedback)
		input.Feedback = &trimmed
	}
	if vErr := validateStruct("", input); vErr.HasErrors() {
		err = vErr
		return
	}
	if input.Present == nil && input.Feedback == nil {
		vErr := &ValidationError{}
		vErr.add("present", msgRequired)
		err = vErr
		return
	}

	attendance, err = s.repo.GetAttendance(ctx, id)
	if err != nil {
		err = mapCatalogRepoError("id", err)
		return
	}
	if input.Present != nil {
		attendance.Present = *input.Present
	}
	if input.Feedback != nil {
		attendance.Feedback = *input.Feedback
	}
	if input.RecordedBy != "" {
		attendance.RecordedBy = input.RecordedBy
	}
	if err = s.repo.UpdateAttendance(ctx, attendance); err != nil {
		err = mapCatalogRepoError("id", err)
		return
	}

	s.activity.Record(ctx, ActivityEntry{
		Action:     ActionAttendanceRecorded,
		EntityType: "attendance",
		EntityID:   strconv.FormatInt(id, 10),
		Details: map[string]any{
			"session_id":  attendance.SessionID,
			"present":     attendance.Present,
			"recorded_by": attendance.RecordedBy,
		},
	})
	return
}

// Document returns a stored document with its payload after checking it
// against the recorded checksum.
func (s *SessionService) Document(ctx context.Context, id int64) (Document, error) {
	if s == nil {
		return Document{}, fmt.Errorf("SessionService is nil")
	}
	if s.repo == nil {
		return Document{}, fmt.Errorf("session repository not configured")
	}
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, mapCatalogRepoError("id", err)
	}
	if err := verifyDocument(doc); err != nil {
		s.loggerWith(ctx, "Document", "document_id", id).ErrorContext(ctx, "stored document is corrupted", "error", err)
		return Document{}, err
	}
	return doc, nil
}
