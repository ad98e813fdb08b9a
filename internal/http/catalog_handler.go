package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kaizen2025/Formation/internal/application"
)

// CatalogManager exposes the catalog used by the booking wizard.
type CatalogManager interface {
	CreateDepartment(ctx context.Context, input application.DepartmentInput) (application.Department, error)
	ListDepartments(ctx context.Context) ([]application.Department, error)
	DeleteDepartment(ctx context.Context, id int64) error
	CreateModule(ctx context.Context, input application.ModuleInput) (application.Module, error)
	ListModules(ctx context.Context, activeOnly bool) ([]application.Module, error)
	CreateGroup(ctx context.Context, input application.GroupInput) (application.Group, error)
	ListGroups(ctx context.Context) ([]application.Group, error)
	AddParticipant(ctx context.Context, groupID int64, input application.ParticipantInput) (application.Participant, error)
	ListParticipants(ctx context.Context, groupID int64) ([]application.Participant, error)
	AddGlobalDocument(ctx context.Context, input application.GlobalDocumentInput) (application.Document, error)
	ListGlobalDocuments(ctx context.Context) ([]application.Document, error)
}

// ActivityReader lists recent audit records.
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]application.ActivityEntry, error)
}

type CatalogHandler struct {
	catalog   CatalogManager
	activity  ActivityReader
	responder responder
	logger    *slog.Logger
	maxUpload int64
}

func NewCatalogHandler(catalog CatalogManager, activity ActivityReader, maxUpload int64, logger *slog.Logger) *CatalogHandler {
	base := defaultLogger(logger)
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &CatalogHandler{
		catalog:   catalog,
		activity:  activity,
		responder: newResponder(base),
		logger:    base,
		maxUpload: maxUpload,
	}
}

func (h *CatalogHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "CatalogHandler", operation, attrs...)
}

func (h *CatalogHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.catalog.ListDepartments(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, nonNil(departments))
}

func (h *CatalogHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var input application.DepartmentInput
	if err := decodeJSON(r, &input); err != nil {
		h.log(ctx, "CreateDepartment").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	department, err := h.catalog.CreateDepartment(ctx, input)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, department)
}

func (h *CatalogHandler) DeleteDepartment(w http.ResponseWriter, r *http.Request, rawID string) {
	ctx := r.Context()
	id, ok := h.parseID(w, r, rawID)
	if !ok {
		return
	}
	if err := h.catalog.DeleteDepartment(ctx, id); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

// ListModules handles GET /modules. Inactive modules are included with ?all=1.
func (h *CatalogHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if all, err := strconv.ParseBool(r.URL.Query().Get("all")); err == nil && all {
		activeOnly = false
	}
	modules, err := h.catalog.ListModules(r.Context(), activeOnly)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, nonNil(modules))
}

func (h *CatalogHandler) CreateModule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var input application.ModuleInput
	if err := decodeJSON(r, &input); err != nil {
		h.log(ctx, "CreateModule").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	module, err := h.catalog.CreateModule(ctx, input)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, module)
}

func (h *CatalogHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.catalog.ListGroups(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, nonNil(groups))
}

func (h *CatalogHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var input application.GroupInput
	if err := decodeJSON(r, &input); err != nil {
		h.log(ctx, "CreateGroup").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	group, err := h.catalog.CreateGroup(ctx, input)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, group)
}

func (h *CatalogHandler) ListParticipants(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	ctx := r.Context()
	groupID, ok := h.parseID(w, r, rawGroupID)
	if !ok {
		return
	}
	participants, err := h.catalog.ListParticipants(ctx, groupID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, nonNil(participants))
}

func (h *CatalogHandler) AddParticipant(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	ctx := r.Context()
	groupID, ok := h.parseID(w, r, rawGroupID)
	if !ok {
		return
	}
	var input application.ParticipantInput
	if err := decodeJSON(r, &input); err != nil {
		h.log(ctx, "AddParticipant").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	participant, err := h.catalog.AddParticipant(ctx, groupID, input)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, participant)
}

func (h *CatalogHandler) ListGlobalDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.catalog.ListGlobalDocuments(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, nonNil(documents))
}

// AddGlobalDocument handles POST /documents/global with a multipart "file"
// part and optional "description" and "uploaded_by" fields.
func (h *CatalogHandler) AddGlobalDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.log(ctx, "AddGlobalDocument")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.responder.writeError(ctx, w, http.StatusRequestEntityTooLarge, errUploadTooLarge)
			return
		}
		logger.WarnContext(ctx, "missing document file", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidMultipart)
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.WarnContext(ctx, "failed to read document", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidMultipart)
		return
	}

	document, err := h.catalog.AddGlobalDocument(ctx, application.GlobalDocumentInput{
		Filename:    header.Filename,
		Description: strings.TrimSpace(r.FormValue("description")),
		UploadedBy:  strings.TrimSpace(r.FormValue("uploaded_by")),
		Data:        data,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusCreated, document)
}

// RecentActivity handles GET /activity?limit=N.
func (h *CatalogHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.activity == nil {
		h.responder.writeJSON(ctx, w, http.StatusOK, []application.ActivityEntry{})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		limit = n
	}
	entries, err := h.activity.Recent(ctx, limit)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, nonNil(entries))
}

func (h *CatalogHandler) parseID(w http.ResponseWriter, r *http.Request, raw string) (int64, bool) {
	id, err := parseID(raw)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidID)
		return 0, false
	}
	return id, true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
