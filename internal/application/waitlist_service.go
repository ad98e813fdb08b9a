package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// WaitlistRepository stores waitlist entries and reads the sessions they target.
type WaitlistRepository interface {
	GetSession(ctx context.Context, id int64) (Session, error)
	CreateWaitlistEntry(ctx context.Context, entry WaitlistEntry) (WaitlistEntry, error)
	GetWaitlistEntry(ctx context.Context, id int64) (WaitlistEntry, error)
	ListWaitlistEntries(ctx context.Context, sessionID int64) ([]WaitlistEntry, error)
	UpdateWaitlistStatus(ctx context.Context, id int64, status string, updatedAt time.Time) error
}

// WaitlistInput describes a contact joining the waitlist of a taken session.
type WaitlistInput struct {
	SessionID    int64  `json:"session_id" validate:"required,gt=0"`
	ContactName  string `json:"contact_name" validate:"required,max=200"`
	ContactEmail string `json:"contact_email" validate:"required,email,max=254"`
	ContactPhone string `json:"contact_phone,omitempty" validate:"max=50"`
	Notes        string `json:"notes,omitempty" validate:"max=2000"`
}

// WaitlistService manages waitlists of taken sessions.
type WaitlistService struct {
	repo     WaitlistRepository
	activity *ActivityService
	now      func() time.Time
	logger   *slog.Logger
}

// NewWaitlistService constructs a waitlist service.
func NewWaitlistService(repo WaitlistRepository, activity *ActivityService, now func() time.Time) *WaitlistService {
	return NewWaitlistServiceWithLogger(repo, activity, now, nil)
}

// NewWaitlistServiceWithLogger constructs a waitlist service with a specified logger.
func NewWaitlistServiceWithLogger(repo WaitlistRepository, activity *ActivityService, now func() time.Time, logger *slog.Logger) *WaitlistService {
	if now == nil {
		now = time.Now
	}
	return &WaitlistService{repo: repo, activity: activity, now: now, logger: defaultLogger(logger)}
}

func (s *WaitlistService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "WaitlistService", operation, attrs...)
}

// Join adds a contact to the waitlist of a non-canceled session.
func (s *WaitlistService) Join(ctx context.Context, input WaitlistInput) (entry WaitlistEntry, err error) {
	if s == nil {
		err = fmt.Errorf("WaitlistService is nil")
		return
	}
	if s.repo == nil {
		err = fmt.Errorf("waitlist repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "Join", "session_id", input.SessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to join waitlist", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("entry_id", entry.ID).InfoContext(ctx, "waitlist entry created")
	}()

	input.ContactName = strings.TrimSpace(input.ContactName)
	input.ContactEmail = strings.TrimSpace(input.ContactEmail)
	input.ContactPhone = strings.TrimSpace(input.ContactPhone)
	input.Notes = strings.TrimSpace(input.Notes)
	if vErr := validateStruct("", input); vErr.HasErrors() {
		err = vErr
		return
	}

	session, getErr := s.repo.GetSession(ctx, input.SessionID)
	if getErr != nil {
		if isNotFound(getErr) {
			vErr := &ValidationError{}
			vErr.add("session_id", msgSessionUnavailable)
			err = vErr
			return
		}
		err = transient("load session", getErr)
		return
	}
	if session.Status == SessionStatusCanceled {
		vErr := &ValidationError{}
		vErr.add("session_id", msgSessionUnavailable)
		err = vErr
		return
	}

	now := s.now().UTC()
	entry, err = s.repo.CreateWaitlistEntry(ctx, WaitlistEntry{
		SessionID:    input.SessionID,
		ContactName:  input.ContactName,
		ContactEmail: input.ContactEmail,
		ContactPhone: input.ContactPhone,
		Notes:        input.Notes,
		Status:       WaitlistStatusWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		err = mapCatalogRepoError("session_id", err)
		return
	}

	s.activity.Record(ctx, ActivityEntry{
		Action:     ActionWaitlistAdded,
		EntityType: "session",
		EntityID:   strconv.FormatInt(entry.SessionID, 10),
		Details:    map[string]any{"entry_id": entry.ID, "contact_email": entry.ContactEmail},
	})
	return
}

// List returns the waitlist of a session in arrival order.
func (s *WaitlistService) List(ctx context.Context, sessionID int64) ([]WaitlistEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("WaitlistService is nil")
	}
	if s.repo == nil {
		return []WaitlistEntry{}, nil
	}
	entries, err := s.repo.ListWaitlistEntries(ctx, sessionID)
	if err != nil {
		return nil, transient("list waitlist", err)
	}
	if entries == nil {
		entries = []WaitlistEntry{}
	}
	return entries, nil
}

// UpdateStatus moves a waitlist entry to another status.
func (s *WaitlistService) UpdateStatus(ctx context.Context, id int64, status string) (entry WaitlistEntry, err error) {
	if s == nil {
		err = fmt.Errorf("WaitlistService is nil")
		return
	}
	if s.repo == nil {
		err = fmt.Errorf("waitlist repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "UpdateStatus", "entry_id", id, "status", status)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update waitlist entry", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case WaitlistStatusWaiting, WaitlistStatusContacted, WaitlistStatusPromoted, WaitlistStatusCanceled:
	default:
		vErr := &ValidationError{}
		vErr.add("status", msgInvalidStatus)
		err = vErr
		return
	}

	previous, getErr := s.repo.GetWaitlistEntry(ctx, id)
	if getErr != nil {
		err = mapCatalogRepoError("id", getErr)
		return
	}
	if previous.Status == status {
		entry = previous
		return
	}

	now := s.now().UTC()
	if err = s.repo.UpdateWaitlistStatus(ctx, id, status, now); err != nil {
		err = mapCatalogRepoError("status", err)
		return
	}
	entry = previous
	entry.Status = status
	entry.UpdatedAt = now

	s.activity.Record(ctx, ActivityEntry{
		Action:     ActionWaitlistStatusChanged,
		EntityType: "waitlist_entry",
		EntityID:   strconv.FormatInt(id, 10),
		Details:    map[string]any{"from": previous.Status, "to": status},
	})
	return
}
