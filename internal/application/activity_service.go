package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// ActivityRepository appends and reads audit records.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) (ActivityEntry, error)
	ListRecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error)
}

const defaultActivityLimit = 50

// ActivityService records the audit trail of bookings.
type ActivityService struct {
	repo   ActivityRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewActivityService constructs an activity service.
func NewActivityService(repo ActivityRepository, now func() time.Time) *ActivityService {
	return NewActivityServiceWithLogger(repo, now, nil)
}

// NewActivityServiceWithLogger constructs an activity service with a specified logger.
func NewActivityServiceWithLogger(repo ActivityRepository, now func() time.Time, logger *slog.Logger) *ActivityService {
	if now == nil {
		now = time.Now
	}
	return &ActivityService{repo: repo, now: now, logger: defaultLogger(logger)}
}

func (s *ActivityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ActivityService", operation, attrs...)
}

// Record appends entry, filling request metadata from ctx. Audit failures are
// logged and never surfaced to the caller.
func (s *ActivityService) Record(ctx context.Context, entry ActivityEntry) {
	if s == nil || s.repo == nil {
		return
	}
	meta := RequestMetaFromContext(ctx)
	if entry.IPAddress == "" {
		entry.IPAddress = meta.IPAddress
	}
	if entry.UserAgent == "" {
		entry.UserAgent = meta.UserAgent
	}
	if entry.Actor == nil && len(meta.Actor) > 0 {
		entry.Actor = meta.Actor
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	if _, err := s.repo.AppendActivity(ctx, entry); err != nil {
		s.loggerWith(ctx, "Record", "action", entry.Action).
			WarnContext(ctx, "failed to record activity", "error", err)
	}
}

// Recent returns the latest entries, newest first.
func (s *ActivityService) Recent(ctx context.Context, limit int) (entries []ActivityEntry, err error) {
	if s == nil {
		return nil, fmt.Errorf("ActivityService is nil")
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	logger := s.loggerWith(ctx, "Recent", "limit", limit)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list activity", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	entries, err = s.repo.ListRecentActivity(ctx, limit)
	if err != nil {
		err = transient("list activity", err)
		return nil, err
	}
	if entries == nil {
		entries = []ActivityEntry{}
	}
	return entries, nil
}

// HandleFinalized records one booking_finalized entry per created session.
func (s *ActivityService) HandleFinalized(ctx context.Context, event BookingFinalized) []FinalizeWarning {
	if s == nil {
		return nil
	}
	for i, sessionID := range event.SessionIDs {
		details := map[string]any{
			"draft_id":   event.DraftID,
			"group_id":   event.Group.ID,
			"group_name": event.Group.Name,
		}
		if i < len(event.Slots) {
			slot := event.Slots[i]
			details["module_id"] = slot.ModuleID
			details["date"] = slot.DateString()
			details["time"] = slot.TimeString()
		}
		if len(event.DocumentIDs) > 0 {
			details["document_ids"] = event.DocumentIDs
		}
		s.Record(ctx, ActivityEntry{
			Action:     ActionBookingFinalized,
			EntityType: "session",
			EntityID:   strconv.FormatInt(sessionID, 10),
			Details:    details,
			CreatedAt:  event.At,
		})
	}
	return nil
}
