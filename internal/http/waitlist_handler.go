package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kaizen2025/Formation/internal/application"
)

// WaitlistManager manages waitlists of taken sessions.
type WaitlistManager interface {
	Join(ctx context.Context, input application.WaitlistInput) (application.WaitlistEntry, error)
	List(ctx context.Context, sessionID int64) ([]application.WaitlistEntry, error)
	UpdateStatus(ctx context.Context, id int64, status string) (application.WaitlistEntry, error)
}

type WaitlistHandler struct {
	service   WaitlistManager
	responder responder
	logger    *slog.Logger
}

func NewWaitlistHandler(service WaitlistManager, logger *slog.Logger) *WaitlistHandler {
	base := defaultLogger(logger)
	return &WaitlistHandler{
		service:   service,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *WaitlistHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "WaitlistHandler", operation, attrs...)
}

type waitlistStatusRequest struct {
	Status string `json:"status"`
}

// Join handles POST /waitlist.
func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var input application.WaitlistInput
	if err := decodeJSON(r, &input); err != nil {
		h.log(ctx, "Join").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	entry, err := h.service.Join(ctx, input)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.log(ctx, "Join", "session_id", entry.SessionID).InfoContext(ctx, "waitlist entry created", "entry_id", entry.ID)
	h.responder.writeJSON(ctx, w, http.StatusCreated, entry)
}

// List handles GET /waitlist?session_id=N.
func (h *WaitlistHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := parseID(r.URL.Query().Get("session_id"))
	if err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidID)
		return
	}
	entries, err := h.service.List(ctx, sessionID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, nonNil(entries))
}

// UpdateStatus handles PATCH /waitlist/{id}.
func (h *WaitlistHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, rawID string) {
	ctx := r.Context()
	id, err := parseID(rawID)
	if err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidID)
		return
	}
	var req waitlistStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(ctx, "UpdateStatus").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	entry, err := h.service.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, entry)
}
