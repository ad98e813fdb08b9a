package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/kaizen2025/Formation/internal/scheduler"
)

// RequestMeta identifies the caller behind an operation for the activity log.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Actor     map[string]any
}

type requestMetaKey struct{}

// WithRequestMeta stores request metadata on ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns the metadata stored by WithRequestMeta, if any.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// BookingFinalized is emitted once the finalize transaction has committed.
type BookingFinalized struct {
	DraftID          string
	Group            GroupSnapshot
	Slots            []scheduler.Slot
	SessionIDs       []int64
	DocumentIDs      []int64
	SendConfirmation bool
	Request          RequestMeta
	At               time.Time
}

// PostCommitHandler reacts to a committed booking. Failures cannot undo the
// booking and are reported as warnings.
type PostCommitHandler interface {
	HandleFinalized(ctx context.Context, event BookingFinalized) []FinalizeWarning
}

// PostCommitFunc adapts a function to PostCommitHandler.
type PostCommitFunc func(ctx context.Context, event BookingFinalized) []FinalizeWarning

// HandleFinalized calls f.
func (f PostCommitFunc) HandleFinalized(ctx context.Context, event BookingFinalized) []FinalizeWarning {
	return f(ctx, event)
}

// ConfirmationDispatcher delivers the confirmation message of a session.
type ConfirmationDispatcher interface {
	SendSessionConfirmation(ctx context.Context, sessionID int64) error
}

// ConfirmationHandler sends confirmations for finalized sessions when requested.
type ConfirmationHandler struct {
	dispatcher ConfirmationDispatcher
	activity   *ActivityService
	logger     *slog.Logger
}

// NewConfirmationHandler constructs a confirmation handler. activity may be nil.
func NewConfirmationHandler(dispatcher ConfirmationDispatcher, activity *ActivityService, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{dispatcher: dispatcher, activity: activity, logger: defaultLogger(logger)}
}

// HandleFinalized sends one confirmation per session. A failed send is
// recorded and returned as a warning.
func (h *ConfirmationHandler) HandleFinalized(ctx context.Context, event BookingFinalized) []FinalizeWarning {
	if h == nil || h.dispatcher == nil || !event.SendConfirmation {
		return nil
	}
	logger := serviceLogger(ctx, h.logger, "ConfirmationHandler", "HandleFinalized", "draft_id", event.DraftID)

	var warnings []FinalizeWarning
	for _, sessionID := range event.SessionIDs {
		entry := ActivityEntry{
			EntityType: "session",
			EntityID:   strconv.FormatInt(sessionID, 10),
			Details:    map[string]any{"group_id": event.Group.ID},
		}
		if err := h.dispatcher.SendSessionConfirmation(ctx, sessionID); err != nil {
			nErr := &NotificationError{SessionID: sessionID, Err: err}
			logger.WarnContext(ctx, "failed to send confirmation", "session_id", sessionID, "error", err, "error_kind", ErrorKind(nErr))
			warnings = append(warnings, FinalizeWarning{Kind: WarningConfirmation, SessionID: sessionID, Detail: nErr.Error()})
			entry.Action = ActionConfirmationFailed
			entry.Details["error"] = err.Error()
		} else {
			entry.Action = ActionConfirmationSent
		}
		h.activity.Record(ctx, entry)
	}
	return warnings
}
