package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/scheduler"
	"github.com/kaizen2025/Formation/internal/uploads"
)

// BookingTx is the transactional handle shared by every finalize step.
type BookingTx interface {
	// FindActiveSessionForUpdate re-reads the slot under the transaction's write lock.
	FindActiveSessionForUpdate(ctx context.Context, slot scheduler.Slot) (SessionSummary, error)
	GetModule(ctx context.Context, id int64) (Module, error)
	UpsertParticipant(ctx context.Context, groupID int64, participant ParticipantInput) (int64, error)
	ListParticipantIDs(ctx context.Context, groupID int64) ([]int64, error)
	CreateSession(ctx context.Context, session NewSession) (int64, error)
	// CreateAttendance reports false when the pair already existed.
	CreateAttendance(ctx context.Context, sessionID, participantID int64) (bool, error)
	SaveDocument(ctx context.Context, document Document) (int64, error)
	AssociateDocument(ctx context.Context, documentID, sessionID int64) error
	// AssociateGlobalDocument must leave the transaction usable when it fails.
	AssociateGlobalDocument(ctx context.Context, documentID, sessionID int64) error
}

// BookingStore opens the single transaction scope of a finalization.
type BookingStore interface {
	WithinBookingTx(ctx context.Context, fn func(tx BookingTx) error) error
}

// UploadStore holds uploaded files between the documents step and finalize.
type UploadStore interface {
	Store(ctx context.Context, r io.Reader, originalName string) (uploads.Stored, error)
	Read(ctx context.Context, handle string) ([]byte, error)
	Touch(ctx context.Context, handle string) error
	Discard(ctx context.Context, handle string) error
}

// Warning kinds reported alongside a successful finalize.
const (
	WarningGlobalDocument = "global_document"
	WarningConfirmation   = "confirmation"
	WarningCleanup        = "cleanup"
)

// FinalizeWarning is a non-blocking problem that did not undo the booking.
type FinalizeWarning struct {
	Kind       string `json:"kind"`
	SessionID  int64  `json:"session_id,omitempty"`
	DocumentID int64  `json:"document_id,omitempty"`
	Detail     string `json:"detail"`
}

// FinalizeResult lists what a finalize created.
type FinalizeResult struct {
	SessionIDs  []int64           `json:"session_ids"`
	DocumentIDs []int64           `json:"document_ids,omitempty"`
	Attendances int               `json:"attendances"`
	Warnings    []FinalizeWarning `json:"warnings,omitempty"`
}

// FinalizationEngine converts a complete draft into sessions, attendances and
// documents inside one transaction, then runs post-commit handlers.
type FinalizationEngine struct {
	store    BookingStore
	uploads  UploadStore
	handlers []PostCommitHandler
	now      func() time.Time
	logger   *slog.Logger
}

// NewFinalizationEngine constructs an engine.
func NewFinalizationEngine(store BookingStore, uploadStore UploadStore, now func() time.Time, logger *slog.Logger, handlers ...PostCommitHandler) *FinalizationEngine {
	if now == nil {
		now = time.Now
	}
	return &FinalizationEngine{
		store:    store,
		uploads:  uploadStore,
		handlers: handlers,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

func (e *FinalizationEngine) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, e.logger, "FinalizationEngine", operation, attrs...)
}

// Finalize writes the draft. Either every session, attendance and document of
// the draft is committed or none is. Slots are re-checked under the write
// lock and the first taken slot aborts the whole booking with a ConflictError.
func (e *FinalizationEngine) Finalize(ctx context.Context, draft Draft, sendConfirmation bool) (result FinalizeResult, err error) {
	if e == nil {
		err = fmt.Errorf("FinalizationEngine is nil")
		return
	}
	if e.store == nil {
		err = fmt.Errorf("booking store not configured")
		return
	}

	logger := e.loggerWith(ctx, "Finalize",
		"draft_id", draft.ID,
		"group_id", draft.Group.ID,
		"slot_count", len(draft.Slots),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to finalize booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking finalized",
			"session_ids", result.SessionIDs,
			"document_count", len(result.DocumentIDs),
			"warning_count", len(result.Warnings),
		)
	}()

	if len(draft.Slots) == 0 {
		vErr := &ValidationError{}
		vErr.add("slots", msgNoSlots)
		err = vErr
		return
	}
	if conflicts := scheduler.DetectConflicts(nil, draft.Slots); len(conflicts) > 0 {
		err = &ConflictError{Conflicts: conflicts[:1]}
		return
	}

	var (
		consumed []string
		warnings []FinalizeWarning
	)
	now := e.now()

	err = e.store.WithinBookingTx(ctx, func(tx BookingTx) error {
		// Reset state captured by a retried attempt.
		result = FinalizeResult{}
		consumed = consumed[:0]
		warnings = warnings[:0]

		for _, slot := range draft.Slots {
			summary, findErr := tx.FindActiveSessionForUpdate(ctx, slot)
			if findErr == nil {
				return &ConflictError{Conflicts: []scheduler.Conflict{{
					Slot:      slot,
					Type:      scheduler.ConflictTypeBooked,
					SessionID: summary.ID,
					GroupName: summary.GroupName,
				}}}
			}
			if !errors.Is(findErr, persistence.ErrNotFound) && !errors.Is(findErr, ErrNotFound) {
				return fmt.Errorf("re-check slot %s: %w", slot, findErr)
			}
		}

		durations := make(map[int64]int)
		for _, moduleID := range draft.ModuleIDs() {
			module, modErr := tx.GetModule(ctx, moduleID)
			if modErr != nil {
				return fmt.Errorf("load module %d: %w", moduleID, modErr)
			}
			duration := module.DurationMinutes
			if duration <= 0 {
				duration = DefaultSessionDuration
			}
			durations[moduleID] = duration
		}

		for _, p := range draft.Participants {
			if _, upErr := tx.UpsertParticipant(ctx, draft.Group.ID, p); upErr != nil {
				return fmt.Errorf("save participant %q: %w", p.Name, upErr)
			}
		}
		participantIDs, listErr := tx.ListParticipantIDs(ctx, draft.Group.ID)
		if listErr != nil {
			return fmt.Errorf("list participants: %w", listErr)
		}

		for _, slot := range draft.Slots {
			sessionID, createErr := tx.CreateSession(ctx, NewSession{
				GroupID:         draft.Group.ID,
				Slot:            slot,
				DurationMinutes: durations[slot.ModuleID],
				AdditionalInfo:  draft.AdditionalInfo,
				CreatedAt:       now,
			})
			if createErr != nil {
				if errors.Is(createErr, persistence.ErrSlotTaken) {
					return &ConflictError{Conflicts: []scheduler.Conflict{{Slot: slot, Type: scheduler.ConflictTypeBooked}}}
				}
				return fmt.Errorf("create session for %s: %w", slot, createErr)
			}
			result.SessionIDs = append(result.SessionIDs, sessionID)

			for _, participantID := range participantIDs {
				created, attErr := tx.CreateAttendance(ctx, sessionID, participantID)
				if attErr != nil {
					return fmt.Errorf("create attendance for participant %d: %w", participantID, attErr)
				}
				if created {
					result.Attendances++
				}
			}
		}

		for _, file := range draft.Files {
			if e.uploads == nil {
				return fmt.Errorf("upload store not configured")
			}
			data, readErr := e.uploads.Read(ctx, file.Handle)
			if readErr != nil {
				return fmt.Errorf("read upload %q: %w", file.Filename, readErr)
			}
			documentID, saveErr := tx.SaveDocument(ctx, Document{
				Filename:   file.Filename,
				MimeType:   file.ContentType,
				Size:       int64(len(data)),
				Data:       data,
				Checksum:   documentChecksum(data),
				UploadedBy: draft.Group.Name,
				CreatedAt:  now,
			})
			if saveErr != nil {
				return fmt.Errorf("save document %q: %w", file.Filename, saveErr)
			}
			for _, sessionID := range result.SessionIDs {
				if assocErr := tx.AssociateDocument(ctx, documentID, sessionID); assocErr != nil {
					return fmt.Errorf("link document %d to session %d: %w", documentID, sessionID, assocErr)
				}
			}
			result.DocumentIDs = append(result.DocumentIDs, documentID)
			consumed = append(consumed, file.Handle)
		}

		for _, documentID := range draft.GlobalDocumentIDs {
			for _, sessionID := range result.SessionIDs {
				if assocErr := tx.AssociateGlobalDocument(ctx, documentID, sessionID); assocErr != nil {
					logger.WarnContext(ctx, "failed to link global document",
						"document_id", documentID, "session_id", sessionID, "error", assocErr)
					warnings = append(warnings, FinalizeWarning{
						Kind:       WarningGlobalDocument,
						SessionID:  sessionID,
						DocumentID: documentID,
						Detail:     assocErr.Error(),
					})
				}
			}
		}
		return nil
	})
	if err != nil {
		result = FinalizeResult{}
		var cErr *ConflictError
		var vErr *ValidationError
		if !errors.As(err, &cErr) && !errors.As(err, &vErr) {
			err = transient("finalize booking", err)
		}
		return
	}
	result.Warnings = append(result.Warnings, warnings...)

	for _, handle := range consumed {
		if discardErr := e.uploads.Discard(ctx, handle); discardErr != nil {
			logger.WarnContext(ctx, "failed to discard consumed upload", "handle", handle, "error", discardErr)
			result.Warnings = append(result.Warnings, FinalizeWarning{Kind: WarningCleanup, Detail: discardErr.Error()})
		}
	}

	event := BookingFinalized{
		DraftID:          draft.ID,
		Group:            draft.Group,
		Slots:            append([]scheduler.Slot(nil), draft.Slots...),
		SessionIDs:       append([]int64(nil), result.SessionIDs...),
		DocumentIDs:      append([]int64(nil), result.DocumentIDs...),
		SendConfirmation: sendConfirmation,
		Request:          RequestMetaFromContext(ctx),
		At:               now,
	}
	for _, handler := range e.handlers {
		if handler == nil {
			continue
		}
		result.Warnings = append(result.Warnings, handler.HandleFinalized(ctx, event)...)
	}
	return
}
