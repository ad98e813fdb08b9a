package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/scheduler"
	"github.com/kaizen2025/Formation/internal/uploads"
)

// CatalogReader exposes the group and module lookups the wizard needs.
type CatalogReader interface {
	GetGroup(ctx context.Context, id int64) (Group, error)
	GetModule(ctx context.Context, id int64) (Module, error)
}

// GlobalDocumentLister lists documents attachable to any booking.
type GlobalDocumentLister interface {
	ListGlobalDocuments(ctx context.Context) ([]Document, error)
}

// FileValidator decides whether a sanitized filename may be uploaded.
type FileValidator interface {
	Allowed(filename string) bool
}

// Finalizer commits a confirmed draft.
type Finalizer interface {
	Finalize(ctx context.Context, draft Draft, sendConfirmation bool) (FinalizeResult, error)
}

// MaxSlotsPerDraft bounds the number of slots a single booking may hold.
const MaxSlotsPerDraft = 20

const maxAdditionalInfoLength = 2000

// BookingDeps groups the collaborators of the booking wizard.
type BookingDeps struct {
	Catalog      CatalogReader
	Documents    GlobalDocumentLister
	Availability *AvailabilityService
	Drafts       DraftStore
	Uploads      UploadStore
	Extensions   FileValidator
	Finalizer    Finalizer
	Activity     *ActivityService
	Bounds       ParticipantBounds
	IDGenerator  func() string
	Now          func() time.Time
	Logger       *slog.Logger
}

// BookingService drives a draft through the booking wizard and hands the
// confirmed draft to the finalizer.
type BookingService struct {
	catalog      CatalogReader
	documents    GlobalDocumentLister
	availability *AvailabilityService
	drafts       DraftStore
	uploads      UploadStore
	extensions   FileValidator
	finalizer    Finalizer
	activity     *ActivityService
	bounds       ParticipantBounds
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewBookingService wires dependencies for the booking wizard.
func NewBookingService(deps BookingDeps) *BookingService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return uuid.NewString() }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Bounds.Min <= 0 {
		deps.Bounds.Min = DefaultParticipantBounds.Min
	}
	if deps.Bounds.Max <= 0 {
		deps.Bounds.Max = DefaultParticipantBounds.Max
	}
	if deps.Drafts == nil {
		deps.Drafts = NewMemoryDraftStore(DefaultDraftTTL, 0, deps.Now)
	}
	return &BookingService{
		catalog:      deps.Catalog,
		documents:    deps.Documents,
		availability: deps.Availability,
		drafts:       deps.Drafts,
		uploads:      deps.Uploads,
		extensions:   deps.Extensions,
		finalizer:    deps.Finalizer,
		activity:     deps.Activity,
		bounds:       deps.Bounds,
		idGenerator:  deps.IDGenerator,
		now:          deps.Now,
		logger:       defaultLogger(deps.Logger),
		inflight:     make(map[string]struct{}),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// StartDraft selects a group and opens a fresh draft at step 1. Any previous
// draft identified by previousID is discarded together with its uploads.
func (s *BookingService) StartDraft(ctx context.Context, previousID string, groupID int64) (draft Draft, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "StartDraft", "group_id", groupID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to start draft", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "draft started", "draft_id", draft.ID)
	}()

	if groupID <= 0 {
		vErr := &ValidationError{}
		vErr.add("group_id", msgRequired)
		err = vErr
		return
	}
	if s.catalog == nil {
		err = fmt.Errorf("catalog not configured")
		return
	}
	group, getErr := s.catalog.GetGroup(ctx, groupID)
	if getErr != nil {
		if isNotFound(getErr) {
			vErr := &ValidationError{}
			vErr.add("group_id", msgUnknownGroup)
			err = vErr
			return
		}
		err = transient("load group", getErr)
		return
	}

	if previousID != "" {
		s.discardDraft(ctx, previousID)
	}

	draft = newDraft(s.idGenerator(), group, s.now())
	if saveErr := s.drafts.Save(ctx, draft); saveErr != nil {
		draft = Draft{}
		err = transient("save draft", saveErr)
		return
	}

	s.activity.Record(ctx, ActivityEntry{
		Action:     ActionDraftStarted,
		EntityType: "group",
		EntityID:   strconv.FormatInt(group.ID, 10),
		Details:    map[string]any{"draft_id": draft.ID, "group_name": group.Name},
	})
	return draft, nil
}

// GetDraft loads a draft without any step check.
func (s *BookingService) GetDraft(ctx context.Context, id string) (Draft, error) {
	if s == nil {
		return Draft{}, fmt.Errorf("BookingService is nil")
	}
	return s.load(ctx, id)
}

// Resume loads a draft for page step, rejecting access when an earlier step
// has not been completed.
func (s *BookingService) Resume(ctx context.Context, id string, step DraftStep) (Draft, error) {
	if s == nil {
		return Draft{}, fmt.Errorf("BookingService is nil")
	}
	draft, err := s.load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err := draft.Require(step); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// SelectSlots validates the requested slots against the catalog and current
// bookings. Every unavailable slot is reported and the draft is left untouched.
func (s *BookingService) SelectSlots(ctx context.Context, id string, slots []scheduler.Slot) (draft Draft, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "SelectSlots", "draft_id", id, "slot_count", len(slots))
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "slot selection rejected", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	current, err := s.load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err = current.Require(StepSlotsSelected); err != nil {
		return Draft{}, err
	}

	vErr := &ValidationError{}
	switch {
	case len(slots) == 0:
		vErr.add("slots", msgNoSlots)
	case len(slots) > MaxSlotsPerDraft:
		vErr.add("slots", msgTooManySlots)
	}
	if vErr.HasErrors() {
		return Draft{}, vErr
	}

	for i, slot := range slots {
		if slotErr := slot.Validate(); slotErr != nil {
			vErr.merge(slotValidationError(fmt.Sprintf("slots[%d]", i), slotErr))
		}
	}
	if vErr.HasErrors() {
		return Draft{}, vErr
	}

	if s.catalog == nil {
		return Draft{}, fmt.Errorf("catalog not configured")
	}
	modules := make(map[int64]Module)
	for i, slot := range slots {
		if _, ok := modules[slot.ModuleID]; ok {
			continue
		}
		module, modErr := s.catalog.GetModule(ctx, slot.ModuleID)
		switch {
		case modErr == nil:
			modules[slot.ModuleID] = module
			if !module.Active {
				vErr.add(fmt.Sprintf("slots[%d].module_id", i), msgInactiveModule)
			}
		case isNotFound(modErr):
			vErr.add(fmt.Sprintf("slots[%d].module_id", i), msgUnknownModule)
		default:
			return Draft{}, transient("load module", modErr)
		}
	}
	if vErr.HasErrors() {
		return Draft{}, vErr
	}

	var occupied []scheduler.Occupant
	checked := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if _, ok := checked[slot.Key()]; ok {
			continue
		}
		checked[slot.Key()] = struct{}{}

		result := s.availability.CheckAvailability(ctx, slot)
		if result.Err != nil {
			return Draft{}, result.Err
		}
		if !result.Available && result.Conflict != nil {
			occupied = append(occupied, scheduler.Occupant{
				Slot:      slot,
				SessionID: result.Conflict.ID,
				GroupName: result.Conflict.GroupName,
			})
		}
	}
	if conflicts := scheduler.DetectConflicts(occupied, slots); len(conflicts) > 0 {
		return Draft{}, &ConflictError{Conflicts: conflicts}
	}

	draft = current.withSlots(slots, s.now())
	if err = s.save(ctx, draft); err != nil {
		return Draft{}, err
	}
	logger.InfoContext(ctx, "slots selected", "step", draft.Step.String())
	return draft, nil
}

// SetParticipants validates the participant list against the effective bounds
// of the selected modules.
func (s *BookingService) SetParticipants(ctx context.Context, id string, participants []ParticipantInput) (draft Draft, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "SetParticipants", "draft_id", id, "participant_count", len(participants))
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "participants rejected", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	current, err := s.load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err = current.Require(StepParticipantsSet); err != nil {
		return Draft{}, err
	}

	vErr := &ValidationError{}
	cleaned := make([]ParticipantInput, 0, len(participants))
	seen := make(map[string]int, len(participants))
	for i, p := range participants {
		p = ParticipantInput{
			Name:     strings.TrimSpace(p.Name),
			Email:    strings.TrimSpace(p.Email),
			Position: strings.TrimSpace(p.Position),
		}
		vErr.merge(validateStruct(fmt.Sprintf("participants[%d].", i), p))
		if p.Name != "" {
			key := strings.ToLower(p.Name)
			if _, dup := seen[key]; dup {
				vErr.add(fmt.Sprintf("participants[%d].name", i), msgDuplicateParticipant)
			}
			seen[key] = i
		}
		cleaned = append(cleaned, p)
	}

	bounds, boundsErr := s.participantBounds(ctx, current)
	if boundsErr != nil {
		var inner *ValidationError
		if errors.As(boundsErr, &inner) {
			vErr.merge(inner)
		} else {
			return Draft{}, boundsErr
		}
	} else if len(cleaned) < bounds.Min || len(cleaned) > bounds.Max {
		vErr.add("participants", fmt.Sprintf("%s %d and %d", msgParticipantRange, bounds.Min, bounds.Max))
	}
	if vErr.HasErrors() {
		return Draft{}, vErr
	}

	draft = current.withParticipants(cleaned, s.now())
	if err = s.save(ctx, draft); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// ParticipantBoundsFor reports the participant window that applies to a draft.
func (s *BookingService) ParticipantBoundsFor(ctx context.Context, id string) (ParticipantBounds, error) {
	if s == nil {
		return ParticipantBounds{}, fmt.Errorf("BookingService is nil")
	}
	draft, err := s.load(ctx, id)
	if err != nil {
		return ParticipantBounds{}, err
	}
	return s.participantBounds(ctx, draft)
}

// participantBounds intersects the bounds of every selected module. A module
// without a bound inherits the service default.
func (s *BookingService) participantBounds(ctx context.Context, draft Draft) (ParticipantBounds, error) {
	bounds := ParticipantBounds{Min: 0, Max: int(^uint(0) >> 1)}
	moduleIDs := draft.ModuleIDs()
	if len(moduleIDs) == 0 || s.catalog == nil {
		return s.bounds, nil
	}
	for _, moduleID := range moduleIDs {
		module, err := s.catalog.GetModule(ctx, moduleID)
		if err != nil {
			if isNotFound(err) {
				vErr := &ValidationError{}
				vErr.add("slots", msgUnknownModule)
				return ParticipantBounds{}, vErr
			}
			return ParticipantBounds{}, transient("load module", err)
		}
		minimum, maximum := module.MinParticipants, module.MaxParticipants
		if minimum <= 0 {
			minimum = s.bounds.Min
		}
		if maximum <= 0 {
			maximum = s.bounds.Max
		}
		bounds.Min = max(bounds.Min, minimum)
		bounds.Max = min(bounds.Max, maximum)
	}
	if bounds.Min > bounds.Max {
		vErr := &ValidationError{}
		vErr.add("participants", msgBoundsIncompatible)
		return ParticipantBounds{}, vErr
	}
	return bounds, nil
}

// SetDocuments stores new uploads in the temporary store and records the
// global document selection. Files whose sanitized name is already attached
// are skipped unless the attached upload is gone, in which case it is replaced.
func (s *BookingService) SetDocuments(ctx context.Context, id string, input DocumentsInput) (draft Draft, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	logger := s.loggerWith(ctx, "SetDocuments", "draft_id", id, "file_count", len(input.Files))
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "documents rejected", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	current, err := s.load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err = current.Require(StepDocumentsSet); err != nil {
		return Draft{}, err
	}

	vErr := &ValidationError{}
	info := strings.TrimSpace(input.AdditionalInfo)
	if len(info) > maxAdditionalInfoLength {
		vErr.add("additional_info", msgTooLong)
	}

	globalIDs, globalErr := s.validateGlobalDocuments(ctx, input.GlobalDocumentIDs, vErr)
	if globalErr != nil {
		return Draft{}, globalErr
	}

	type pendingFile struct {
		index int
		name  string
		file  FileUpload
	}
	var pending []pendingFile
	batch := make(map[string]struct{}, len(input.Files))
	for i, file := range input.Files {
		field := fmt.Sprintf("files[%d]", i)
		name := uploads.SecureFilename(file.Filename)
		if name == "" || file.Content == nil {
			vErr.add(field, msgFilenameInvalid)
			continue
		}
		if s.extensions != nil && !s.extensions.Allowed(name) {
			vErr.add(field, msgExtensionNotAllowed)
			continue
		}
		key := strings.ToLower(name)
		if _, dup := batch[key]; dup {
			logger.InfoContext(ctx, "skipping duplicate upload", "filename", name)
			continue
		}
		if ref, attached := current.File(name); attached {
			if s.uploadAlive(ctx, ref) {
				logger.InfoContext(ctx, "skipping duplicate upload", "filename", name)
				continue
			}
			logger.WarnContext(ctx, "replacing missing upload", "filename", name, "handle", ref.Handle)
		}
		batch[key] = struct{}{}
		pending = append(pending, pendingFile{index: i, name: name, file: file})
	}
	if vErr.HasErrors() {
		return Draft{}, vErr
	}

	if len(pending) > 0 && s.uploads == nil {
		return Draft{}, fmt.Errorf("upload store not configured")
	}
	stored := make([]UploadedFileRef, 0, len(pending))
	for _, p := range pending {
		result, storeErr := s.uploads.Store(ctx, p.file.Content, p.name)
		if storeErr != nil {
			s.discardRefs(ctx, stored)
			if errors.Is(storeErr, uploads.ErrTooLarge) {
				vErr.add(fmt.Sprintf("files[%d]", p.index), msgFileTooLarge)
				return Draft{}, vErr
			}
			return Draft{}, transient("store upload", storeErr)
		}
		stored = append(stored, UploadedFileRef{
			Filename:    p.name,
			ContentType: result.ContentType,
			Size:        result.Size,
			Handle:      result.Handle,
		})
	}

	draft = current.withDocuments(stored, globalIDs, info, s.now())
	if err = s.save(ctx, draft); err != nil {
		s.discardRefs(ctx, stored)
		return Draft{}, err
	}
	logger.InfoContext(ctx, "documents set", "stored", len(stored), "global_documents", len(globalIDs))
	return draft, nil
}

func (s *BookingService) validateGlobalDocuments(ctx context.Context, ids []int64, vErr *ValidationError) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	known := make(map[int64]struct{})
	if s.documents != nil {
		docs, err := s.documents.ListGlobalDocuments(ctx)
		if err != nil {
			return nil, transient("list global documents", err)
		}
		for _, doc := range docs {
			known[doc.ID] = struct{}{}
		}
	}

	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for i, id := range ids {
		if _, ok := known[id]; !ok {
			vErr.add(fmt.Sprintf("global_document_ids[%d]", i), msgUnknownGlobalDocument)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Confirm marks the reviewed draft ready to finalize.
func (s *BookingService) Confirm(ctx context.Context, id string) (Draft, error) {
	if s == nil {
		return Draft{}, fmt.Errorf("BookingService is nil")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if err := current.Require(StepReadyToFinalize); err != nil {
		return Draft{}, err
	}
	draft := current.confirmed(s.now())
	if err := s.save(ctx, draft); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// Finalize commits a confirmed draft. A draft already being finalized is
// rejected with ErrFinalizeInProgress. On success the draft is removed; on
// failure it stays at the confirmation step.
func (s *BookingService) Finalize(ctx context.Context, id string, sendConfirmation bool) (result FinalizeResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.finalizer == nil {
		err = fmt.Errorf("finalizer not configured")
		return
	}
	logger := s.loggerWith(ctx, "Finalize", "draft_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "finalize rejected", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	draft, err := s.load(ctx, id)
	if err != nil {
		return FinalizeResult{}, err
	}
	if err = draft.Require(stepFinalize); err != nil {
		return FinalizeResult{}, err
	}

	if !s.acquire(id) {
		return FinalizeResult{}, ErrFinalizeInProgress
	}
	defer s.release(id)

	result, err = s.finalizer.Finalize(ctx, draft, sendConfirmation)
	if err != nil {
		var cErr *ConflictError
		if errors.As(err, &cErr) {
			first := cErr.First()
			s.activity.Record(ctx, ActivityEntry{
				Action:     ActionBookingConflict,
				EntityType: "group",
				EntityID:   strconv.FormatInt(draft.Group.ID, 10),
				Details: map[string]any{
					"draft_id":   draft.ID,
					"module_id":  first.Slot.ModuleID,
					"date":       first.Slot.DateString(),
					"time":       first.Slot.TimeString(),
					"session_id": first.SessionID,
				},
			})
		}
		return FinalizeResult{}, err
	}

	if delErr := s.drafts.Delete(ctx, id); delErr != nil {
		logger.WarnContext(ctx, "failed to delete finalized draft", "error", delErr)
	}
	return result, nil
}

// Restart abandons a draft and discards its uploads.
func (s *BookingService) Restart(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if id == "" {
		return nil
	}
	s.discardDraft(ctx, id)
	return nil
}

func (s *BookingService) discardDraft(ctx context.Context, id string) {
	logger := s.loggerWith(ctx, "discardDraft", "draft_id", id)
	draft, err := s.drafts.Load(ctx, id)
	if err == nil {
		s.discardRefs(ctx, draft.Files)
	}
	if err := s.drafts.Delete(ctx, id); err != nil {
		logger.WarnContext(ctx, "failed to delete draft", "error", err)
	}
}

func (s *BookingService) discardRefs(ctx context.Context, refs []UploadedFileRef) {
	if s.uploads == nil {
		return
	}
	for _, ref := range refs {
		if err := s.uploads.Discard(ctx, ref.Handle); err != nil {
			s.loggerWith(ctx, "discardRefs", "handle", ref.Handle).
				WarnContext(ctx, "failed to discard upload", "error", err)
		}
	}
}

func (s *BookingService) load(ctx context.Context, id string) (Draft, error) {
	if strings.TrimSpace(id) == "" {
		return Draft{}, ErrDraftNotFound
	}
	draft, err := s.drafts.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDraftNotFound) || errors.Is(err, ErrDraftExpired) {
			return Draft{}, err
		}
		return Draft{}, transient("load draft", err)
	}
	return draft, nil
}

// save stores draft and refreshes the age of its uploads.
func (s *BookingService) save(ctx context.Context, draft Draft) error {
	if err := s.drafts.Save(ctx, draft); err != nil {
		return transient("save draft", err)
	}
	if s.uploads == nil {
		return nil
	}
	for _, ref := range draft.Files {
		if err := s.uploads.Touch(ctx, ref.Handle); err != nil {
			s.loggerWith(ctx, "save", "draft_id", draft.ID, "handle", ref.Handle).
				WarnContext(ctx, "failed to refresh upload", "error", err)
		}
	}
	return nil
}

// uploadAlive reports whether ref still points at a stored file. Errors other
// than a missing file count as alive.
func (s *BookingService) uploadAlive(ctx context.Context, ref UploadedFileRef) bool {
	if s.uploads == nil {
		return true
	}
	err := s.uploads.Touch(ctx, ref.Handle)
	if err == nil {
		return true
	}
	if errors.Is(err, uploads.ErrNotFound) {
		return false
	}
	s.loggerWith(ctx, "uploadAlive", "handle", ref.Handle).WarnContext(ctx, "failed to refresh upload", "error", err)
	return true
}

func (s *BookingService) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *BookingService) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
