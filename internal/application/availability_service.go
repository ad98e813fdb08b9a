package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/scheduler"
)

// SessionLookup finds the non-canceled session holding a slot. It returns an
// error matching ErrNotFound or persistence.ErrNotFound when the slot is free.
type SessionLookup interface {
	FindActiveSession(ctx context.Context, slot scheduler.Slot) (SessionSummary, error)
}

// AvailabilityResult reports whether a slot can be booked. Err is set when the
// check itself failed, in which case Available is false.
type AvailabilityResult struct {
	Slot      scheduler.Slot  `json:"slot"`
	Available bool            `json:"available"`
	Conflict  *SessionSummary `json:"conflict,omitempty"`
	// WaitlistOpen is set when the holding session still has room below the participant ceiling.
	WaitlistOpen bool  `json:"waitlist_open"`
	Err          error `json:"-"`
}

// AvailabilityService answers advisory slot availability questions. The
// authoritative check happens inside the finalize transaction.
type AvailabilityService struct {
	sessions       SessionLookup
	maxParticipant int
	logger         *slog.Logger
}

// NewAvailabilityService constructs an availability service.
func NewAvailabilityService(sessions SessionLookup, defaultMax int) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(sessions, defaultMax, nil)
}

// NewAvailabilityServiceWithLogger constructs an availability service with a specified logger.
func NewAvailabilityServiceWithLogger(sessions SessionLookup, defaultMax int, logger *slog.Logger) *AvailabilityService {
	if defaultMax <= 0 {
		defaultMax = DefaultParticipantBounds.Max
	}
	return &AvailabilityService{sessions: sessions, maxParticipant: defaultMax, logger: defaultLogger(logger)}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// CheckAvailability reports whether slot is free. It never returns an error
// directly: failures are carried in the result so callers can render a
// generic retry message.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, slot scheduler.Slot) AvailabilityResult {
	result := AvailabilityResult{Slot: slot}
	if s == nil {
		result.Err = fmt.Errorf("AvailabilityService is nil")
		return result
	}
	if err := slot.Validate(); err != nil {
		result.Err = slotValidationError("slot", err)
		return result
	}
	if s.sessions == nil {
		result.Available = true
		return result
	}

	summary, err := s.sessions.FindActiveSession(ctx, slot)
	switch {
	case err == nil:
		maxParticipants := summary.MaxParticipants
		if maxParticipants <= 0 {
			maxParticipants = s.maxParticipant
		}
		result.Conflict = &summary
		result.WaitlistOpen = summary.ParticipantCount < maxParticipants
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		result.Available = true
	default:
		result.Err = transient("check availability", err)
		s.loggerWith(ctx, "CheckAvailability", "slot", slot.Key()).
			ErrorContext(ctx, "availability check failed", "error", err, "error_kind", ErrorKind(result.Err))
	}
	return result
}

// CheckAll checks each slot in order and returns the results.
func (s *AvailabilityService) CheckAll(ctx context.Context, slots []scheduler.Slot) []AvailabilityResult {
	results := make([]AvailabilityResult, 0, len(slots))
	for _, slot := range slots {
		results = append(results, s.CheckAvailability(ctx, slot))
	}
	return results
}

func slotValidationError(field string, err error) *ValidationError {
	vErr := &ValidationError{}
	switch {
	case errors.Is(err, scheduler.ErrInvalidModule):
		vErr.add(field+".module_id", msgRequired)
	case errors.Is(err, scheduler.ErrInvalidDate):
		vErr.add(field+".date", msgInvalidDate)
	case errors.Is(err, scheduler.ErrInvalidTime):
		vErr.add(field+".time", msgInvalidTime)
	default:
		vErr.add(field, msgInvalidValue)
	}
	return vErr
}
