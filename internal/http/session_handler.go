package http

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kaizen2025/Formation/internal/application"
	"github.com/kaizen2025/Formation/internal/scheduler"
)

// SessionManager exposes booked sessions and their follow-up.
type SessionManager interface {
	List(ctx context.Context, filter application.SessionFilter) ([]application.Session, error)
	Get(ctx context.Context, id int64) (application.SessionDetail, error)
	UpdateStatus(ctx context.Context, id int64, status string) (application.Session, error)
	UpdateAttendance(ctx context.Context, id int64, input application.AttendanceInput) (application.Attendance, error)
	Document(ctx context.Context, id int64) (application.Document, error)
}

type SessionHandler struct {
	service   SessionManager
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service SessionManager, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{
		service:   service,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

type sessionStatusRequest struct {
	Status string `json:"status"`
}

// List handles GET /sessions?group_id=&module_id=&from=&to=.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := sessionFilterFromQuery(r)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	sessions, err := h.service.List(ctx, filter)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, nonNil(sessions))
}

// Get handles GET /sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request, rawID string) {
	ctx := r.Context()
	id, err := parseID(rawID)
	if err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidID)
		return
	}
	detail, err := h.service.Get(ctx, id)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, detail)
}

// UpdateStatus handles PATCH /sessions/{id}.
func (h *SessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, rawID string) {
	ctx := r.Context()
	id, err := parseID(rawID)
	if err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidID)
		return
	}
	var req sessionStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(ctx, "UpdateStatus").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	session, err := h.service.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.log(ctx, "UpdateStatus", "session_id", id).InfoContext(ctx, "session status updated", "status", session.Status)
	h.responder.writeJSON(ctx, w, http.StatusOK, session)
}

// UpdateAttendance handles PATCH /attendances/{id}.
func (h *SessionHandler) UpdateAttendance(w http.ResponseWriter, r *http.Request, rawID string) {
	ctx := r.Context()
	id, err := parseID(rawID)
	if err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidID)
		return
	}
	var input application.AttendanceInput
	if err := decodeJSON(r, &input); err != nil {
		h.log(ctx, "UpdateAttendance").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	attendance, err := h.service.UpdateAttendance(ctx, id, input)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, attendance)
}

// Document handles GET /documents/{id} and streams the stored payload.
func (h *SessionHandler) Document(w http.ResponseWriter, r *http.Request, rawID string) {
	ctx := r.Context()
	id, err := parseID(rawID)
	if err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidID)
		return
	}
	doc, err := h.service.Document(ctx, id)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	if doc.Checksum != "" {
		w.Header().Set("ETag", strconv.Quote(doc.Checksum))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		h.log(ctx, "Document", "document_id", id).WarnContext(ctx, "failed to write document", "error", err)
	}
}

func sessionFilterFromQuery(r *http.Request) (application.SessionFilter, error) {
	query := r.URL.Query()
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	var filter application.SessionFilter

	parseOptionalID := func(field string) *int64 {
		raw := strings.TrimSpace(query.Get(field))
		if raw == "" {
			return nil
		}
		id, err := parseID(raw)
		if err != nil {
			vErr.FieldErrors[field] = "is invalid"
			return nil
		}
		return &id
	}
	parseOptionalDate := func(field string) *time.Time {
		raw := strings.TrimSpace(query.Get(field))
		if raw == "" {
			return nil
		}
		date, err := scheduler.ParseDate(raw)
		if err != nil {
			vErr.FieldErrors[field] = "date is invalid"
			return nil
		}
		return &date
	}

	filter.GroupID = parseOptionalID("group_id")
	filter.ModuleID = parseOptionalID("module_id")
	filter.From = parseOptionalDate("from")
	filter.To = parseOptionalDate("to")
	if vErr.HasErrors() {
		return application.SessionFilter{}, vErr
	}
	return filter, nil
}
