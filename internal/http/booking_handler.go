package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kaizen2025/Formation/internal/application"
	"github.com/kaizen2025/Formation/internal/scheduler"
)

// BookingWorkflow drives the booking wizard.
type BookingWorkflow interface {
	StartDraft(ctx context.Context, previousID string, groupID int64) (application.Draft, error)
	Resume(ctx context.Context, id string, step application.DraftStep) (application.Draft, error)
	SelectSlots(ctx context.Context, id string, slots []scheduler.Slot) (application.Draft, error)
	SetParticipants(ctx context.Context, id string, participants []application.ParticipantInput) (application.Draft, error)
	ParticipantBoundsFor(ctx context.Context, id string) (application.ParticipantBounds, error)
	SetDocuments(ctx context.Context, id string, input application.DocumentsInput) (application.Draft, error)
	Confirm(ctx context.Context, id string) (application.Draft, error)
	Finalize(ctx context.Context, id string, sendConfirmation bool) (application.FinalizeResult, error)
	Restart(ctx context.Context, id string) error
}

// AvailabilityChecker answers advisory availability questions.
type AvailabilityChecker interface {
	CheckAll(ctx context.Context, slots []scheduler.Slot) []application.AvailabilityResult
}

// BookingOptions tunes the booking handler.
type BookingOptions struct {
	// MaxUploadBytes caps the whole multipart body of the documents step.
	MaxUploadBytes int64
	CookieSecure   bool
	DraftTTL       time.Duration
}

const defaultMaxUploadBytes = 10 << 20

type BookingHandler struct {
	workflow     BookingWorkflow
	availability AvailabilityChecker
	responder    responder
	logger       *slog.Logger
	cookies      cookiePolicy
	maxBody      int64
}

func NewBookingHandler(workflow BookingWorkflow, availability AvailabilityChecker, opts BookingOptions, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	maxBody := opts.MaxUploadBytes
	if maxBody <= 0 {
		maxBody = defaultMaxUploadBytes
	}
	return &BookingHandler{
		workflow:     workflow,
		availability: availability,
		responder:    newResponder(base),
		logger:       base,
		cookies:      cookiePolicy{secure: opts.CookieSecure, maxAge: opts.DraftTTL},
		maxBody:      maxBody,
	}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

type slotDTO struct {
	ModuleID int64  `json:"module_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type availabilityDTO struct {
	Slot         slotDTO      `json:"slot"`
	Available    bool         `json:"available"`
	Conflict     *occupantDTO `json:"conflict,omitempty"`
	WaitlistOpen bool         `json:"waitlist_open"`
	Error        string       `json:"error,omitempty"`
}

type occupantDTO struct {
	SessionID        int64  `json:"session_id"`
	GroupName        string `json:"group_name"`
	ParticipantCount int    `json:"participant_count"`
}

type draftDTO struct {
	ID                string                         `json:"id"`
	Step              int                            `json:"step"`
	StepName          string                         `json:"step_name"`
	Group             application.GroupSnapshot      `json:"group"`
	Slots             []slotDTO                      `json:"slots"`
	Participants      []application.ParticipantInput `json:"participants"`
	Files             []fileDTO                      `json:"files"`
	GlobalDocumentIDs []int64                        `json:"global_document_ids"`
	AdditionalInfo    string                         `json:"additional_info,omitempty"`
	Bounds            *application.ParticipantBounds `json:"participant_bounds,omitempty"`
	UpdatedAt         time.Time                      `json:"updated_at"`
}

type fileDTO struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type startDraftRequest struct {
	GroupID int64 `json:"group_id"`
}

type slotsRequest struct {
	Slots []slotDTO `json:"slots"`
}

type participantsRequest struct {
	Participants []application.ParticipantInput `json:"participants"`
}

type finalizeRequest struct {
	SendConfirmation bool `json:"send_confirmation"`
}

// Availability handles GET /availability?module_id=5&date=2025-06-10&time=09:00.
// Several slots may be checked at once by repeating the slot parameter as
// module_id|date|time.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.log(ctx, "Availability")

	slots, err := slotsFromQuery(r)
	if err != nil {
		logger.WarnContext(ctx, "invalid availability query", "error", err)
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	results := h.availability.CheckAll(ctx, slots)
	out := make([]availabilityDTO, 0, len(results))
	for _, result := range results {
		dto := availabilityDTO{
			Slot:         toSlotDTO(result.Slot),
			Available:    result.Available,
			WaitlistOpen: result.WaitlistOpen,
		}
		if result.Conflict != nil {
			dto.Conflict = &occupantDTO{
				SessionID:        result.Conflict.ID,
				GroupName:        result.Conflict.GroupName,
				ParticipantCount: result.Conflict.ParticipantCount,
			}
		}
		if result.Err != nil {
			logger.WarnContext(ctx, "availability check failed", "slot", result.Slot.Key(), "error", result.Err)
			dto.Error = localizedStatusMessage(http.StatusServiceUnavailable)
			var vErr *application.ValidationError
			if errors.As(result.Err, &vErr) {
				dto.Error = localizedStatusMessage(http.StatusUnprocessableEntity)
			}
		}
		out = append(out, dto)
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, map[string]any{"results": out})
}

// StartDraft handles POST /drafts (step 1).
func (h *BookingHandler) StartDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.log(ctx, "StartDraft")

	var req startDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	draft, err := h.workflow.StartDraft(ctx, draftIDFromRequest(r), req.GroupID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	h.cookies.setDraft(w, draft.ID)
	logger.InfoContext(ctx, "draft started", "draft_id", draft.ID, "group_id", draft.Group.ID)
	h.responder.writeJSON(ctx, w, http.StatusCreated, toDraftDTO(draft, nil))
}

// Current handles GET /drafts/current?step=N. The step parameter names the
// wizard page about to be shown; access is refused until earlier steps are done.
func (h *BookingHandler) Current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireDraftID(w, r)
	if !ok {
		return
	}

	step := application.StepGroupSelected
	if raw := strings.TrimSpace(r.URL.Query().Get("step")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < int(application.StepGroupSelected) || n > int(application.StepReadyToFinalize) {
			h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidStep)
			return
		}
		step = application.DraftStep(n)
	}

	draft, err := h.workflow.Resume(ctx, id, step)
	if err != nil {
		h.respondDraftError(ctx, w, err)
		return
	}

	var bounds *application.ParticipantBounds
	if draft.Step >= application.StepSlotsSelected {
		if b, err := h.workflow.ParticipantBoundsFor(ctx, id); err == nil {
			bounds = &b
		} else {
			h.log(ctx, "Current", "draft_id", id).WarnContext(ctx, "participant bounds unavailable", "error", err)
		}
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toDraftDTO(draft, bounds))
}

// SelectSlots handles PUT /drafts/current/slots (step 2).
func (h *BookingHandler) SelectSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireDraftID(w, r)
	if !ok {
		return
	}

	var req slotsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(ctx, "SelectSlots").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	slots, err := slotsFromDTO(req.Slots)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	draft, err := h.workflow.SelectSlots(ctx, id, slots)
	if err != nil {
		h.respondDraftError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toDraftDTO(draft, nil))
}

// SetParticipants handles PUT /drafts/current/participants (step 3).
func (h *BookingHandler) SetParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireDraftID(w, r)
	if !ok {
		return
	}

	var req participantsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(ctx, "SetParticipants").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	draft, err := h.workflow.SetParticipants(ctx, id, req.Participants)
	if err != nil {
		h.respondDraftError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toDraftDTO(draft, nil))
}

// SetDocuments handles POST /drafts/current/documents (step 4). The body is a
// multipart form with any number of "files" parts, repeated
// "global_document_ids" values and an optional "additional_info" field.
func (h *BookingHandler) SetDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.log(ctx, "SetDocuments")
	id, ok := h.requireDraftID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(h.maxBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(ctx, "upload body too large", "limit", tooLarge.Limit)
			h.responder.writeError(ctx, w, http.StatusRequestEntityTooLarge, errUploadTooLarge)
			return
		}
		logger.WarnContext(ctx, "invalid multipart form", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidMultipart)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logger.WarnContext(ctx, "failed to remove multipart temp files", "error", err)
		}
	}()

	input, closeFiles, err := documentsInputFromForm(r.MultipartForm)
	defer closeFiles()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	draft, err := h.workflow.SetDocuments(ctx, id, input)
	if err != nil {
		h.respondDraftError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toDraftDTO(draft, nil))
}

// Confirm handles POST /drafts/current/confirm (step 5).
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireDraftID(w, r)
	if !ok {
		return
	}

	draft, err := h.workflow.Confirm(ctx, id)
	if err != nil {
		h.respondDraftError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toDraftDTO(draft, nil))
}

// Finalize handles POST /drafts/current/finalize. An empty body, sized or
// chunked, finalizes without sending confirmations.
func (h *BookingHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.requireDraftID(w, r)
	if !ok {
		return
	}

	var req finalizeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.log(ctx, "Finalize").WarnContext(ctx, "invalid request body", "error", err)
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.workflow.Finalize(ctx, id, req.SendConfirmation)
	if err != nil {
		h.respondDraftError(ctx, w, err)
		return
	}

	h.cookies.clearDraft(w)
	h.log(ctx, "Finalize", "draft_id", id).InfoContext(ctx, "booking finalized",
		"session_ids", result.SessionIDs, "warnings", len(result.Warnings))
	h.responder.writeJSON(ctx, w, http.StatusCreated, result)
}

// Restart handles DELETE /drafts/current.
func (h *BookingHandler) Restart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.workflow.Restart(ctx, draftIDFromRequest(r)); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.cookies.clearDraft(w)
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

func (h *BookingHandler) requireDraftID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := draftIDFromRequest(r)
	if id == "" {
		h.responder.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{
			ErrorCode: "DRAFT_NOT_FOUND",
			Message:   errMissingDraft.Error(),
		})
		return "", false
	}
	return id, true
}

// respondDraftError clears the draft cookie once the draft is gone so the
// client restarts cleanly at step 1.
func (h *BookingHandler) respondDraftError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, application.ErrDraftNotFound) || errors.Is(err, application.ErrDraftExpired) {
		h.cookies.clearDraft(w)
	}
	h.responder.handleServiceError(ctx, w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func slotsFromQuery(r *http.Request) ([]scheduler.Slot, error) {
	query := r.URL.Query()
	var dtos []slotDTO
	for _, raw := range query["slot"] {
		parts := strings.Split(raw, "|")
		if len(parts) != 3 {
			return nil, &application.ValidationError{FieldErrors: map[string]string{"slot": "is invalid"}}
		}
		moduleID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, &application.ValidationError{FieldErrors: map[string]string{"slot": "module does not exist"}}
		}
		dtos = append(dtos, slotDTO{ModuleID: moduleID, Date: parts[1], Time: parts[2]})
	}
	if query.Has("module_id") {
		moduleID, err := strconv.ParseInt(strings.TrimSpace(query.Get("module_id")), 10, 64)
		if err != nil {
			return nil, &application.ValidationError{FieldErrors: map[string]string{"module_id": "module does not exist"}}
		}
		dtos = append(dtos, slotDTO{ModuleID: moduleID, Date: query.Get("date"), Time: query.Get("time")})
	}
	if len(dtos) == 0 {
		return nil, &application.ValidationError{FieldErrors: map[string]string{"slots": "at least one slot is required"}}
	}
	return slotsFromDTO(dtos)
}

// slotsFromDTO parses wire slots. Field keys follow slots[i].field.
func slotsFromDTO(dtos []slotDTO) ([]scheduler.Slot, error) {
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	slots := make([]scheduler.Slot, 0, len(dtos))
	for i, dto := range dtos {
		prefix := fmt.Sprintf("slots[%d].", i)
		date, err := scheduler.ParseDate(dto.Date)
		if err != nil {
			vErr.FieldErrors[prefix+"date"] = "date is invalid"
		}
		hour, minute, err := parseClock(dto.Time)
		if err != nil {
			vErr.FieldErrors[prefix+"time"] = "time is invalid"
		}
		slots = append(slots, scheduler.Slot{ModuleID: dto.ModuleID, Date: date, Hour: hour, Minute: minute})
	}
	if vErr.HasErrors() {
		return nil, vErr
	}
	return slots, nil
}

// parseClock parses HH:MM.
func parseClock(value string) (int, int, error) {
	hourPart, minutePart, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, scheduler.ErrInvalidTime
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil {
		return 0, 0, scheduler.ErrInvalidTime
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || len(minutePart) != 2 {
		return 0, 0, scheduler.ErrInvalidTime
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, scheduler.ErrInvalidTime
	}
	return hour, minute, nil
}

func documentsInputFromForm(form *multipart.Form) (application.DocumentsInput, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	input := application.DocumentsInput{}
	if values := form.Value["additional_info"]; len(values) > 0 {
		input.AdditionalInfo = values[0]
	}
	for i, raw := range form.Value["global_document_ids"] {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			field := fmt.Sprintf("global_document_ids[%d]", i)
			return input, closeAll, &application.ValidationError{FieldErrors: map[string]string{field: "global document does not exist"}}
		}
		input.GlobalDocumentIDs = append(input.GlobalDocumentIDs, id)
	}
	for _, header := range form.File["files"] {
		f, err := header.Open()
		if err != nil {
			return input, closeAll, fmt.Errorf("open uploaded file %q: %w", header.Filename, err)
		}
		opened = append(opened, f)
		input.Files = append(input.Files, application.FileUpload{Filename: header.Filename, Content: f})
	}
	return input, closeAll, nil
}

func toSlotDTO(slot scheduler.Slot) slotDTO {
	return slotDTO{ModuleID: slot.ModuleID, Date: slot.DateString(), Time: slot.TimeString()}
}

func toDraftDTO(draft application.Draft, bounds *application.ParticipantBounds) draftDTO {
	dto := draftDTO{
		ID:                draft.ID,
		Step:              int(draft.Step),
		StepName:          draft.Step.String(),
		Group:             draft.Group,
		Slots:             make([]slotDTO, 0, len(draft.Slots)),
		Participants:      draft.Participants,
		Files:             make([]fileDTO, 0, len(draft.Files)),
		GlobalDocumentIDs: draft.GlobalDocumentIDs,
		AdditionalInfo:    draft.AdditionalInfo,
		Bounds:            bounds,
		UpdatedAt:         draft.UpdatedAt,
	}
	for _, slot := range draft.Slots {
		dto.Slots = append(dto.Slots, toSlotDTO(slot))
	}
	for _, f := range draft.Files {
		dto.Files = append(dto.Files, fileDTO{Filename: f.Filename, ContentType: f.ContentType, Size: f.Size})
	}
	if dto.Participants == nil {
		dto.Participants = []application.ParticipantInput{}
	}
	if dto.GlobalDocumentIDs == nil {
		dto.GlobalDocumentIDs = []int64{}
	}
	return dto
}
