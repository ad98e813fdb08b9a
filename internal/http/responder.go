package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kaizen2025/Formation/internal/application"
	"github.com/kaizen2025/Formation/internal/scheduler"
)

var (
	errBadRequestBody   = errors.New("Le format de la requête est invalide.")
	errInvalidID        = errors.New("L'identifiant fourni est invalide.")
	errMissingDraft     = errors.New("Aucune réservation en cours. Veuillez recommencer à l'étape 1.")
	errInvalidStep      = errors.New("L'étape demandée est invalide.")
	errUploadTooLarge   = errors.New("Le fichier envoyé est trop volumineux.")
	errInvalidMultipart = errors.New("Le formulaire d'envoi de fichiers est invalide.")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr *application.ValidationError
		cErr *application.ConflictError
		sErr *application.StepError
		tErr *application.TransientError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   localizedStatusMessage(http.StatusUnprocessableEntity),
			Errors:    localizeValidationErrors(vErr),
		})
	case errors.As(err, &cErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "SLOT_CONFLICT",
			Message:   conflictMessage(cErr.First()),
			Conflicts: conflictsToDTO(cErr.Conflicts),
		})
	case errors.As(err, &sErr):
		redirect := int(sErr.Redirect)
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode:    "STEP_REQUIRED",
			Message:      "Veuillez d'abord compléter les étapes précédentes.",
			RedirectStep: &redirect,
		})
	case errors.Is(err, application.ErrDraftExpired):
		r.writeJSON(ctx, w, http.StatusGone, errorResponse{
			ErrorCode: "DRAFT_EXPIRED",
			Message:   "Votre réservation en cours a expiré. Veuillez recommencer.",
		})
	case errors.Is(err, application.ErrDraftNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "DRAFT_NOT_FOUND",
			Message:   errMissingDraft.Error(),
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: localizedStatusMessage(http.StatusNotFound)})
	case errors.Is(err, application.ErrFinalizeInProgress):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "FINALIZE_IN_PROGRESS",
			Message:   "La réservation est déjà en cours de validation.",
		})
	case errors.Is(err, application.ErrChecksumMismatch):
		r.loggerFor(ctx).ErrorContext(ctx, "stored document failed its integrity check", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			ErrorCode: "DOCUMENT_CORRUPTED",
			Message:   "Le document demandé est endommagé et ne peut pas être transmis.",
		})
	case errors.As(err, &tErr):
		r.loggerFor(ctx).ErrorContext(ctx, "transient failure", "error", err)
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "TEMPORARY_FAILURE",
			Message:   localizedStatusMessage(http.StatusServiceUnavailable),
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected failure", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: localizedStatusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "La requête est invalide."
	case http.StatusNotFound:
		return "La ressource demandée est introuvable."
	case http.StatusConflict:
		return "La requête est en conflit avec l'état actuel de la ressource."
	case http.StatusGone:
		return "La ressource demandée a expiré."
	case http.StatusRequestEntityTooLarge:
		return errUploadTooLarge.Error()
	case http.StatusUnprocessableEntity:
		return "Les informations saisies contiennent des erreurs."
	case http.StatusServiceUnavailable:
		return "Le service est momentanément indisponible. Veuillez réessayer."
	default:
		return "Une erreur interne est survenue."
	}
}

func conflictMessage(conflict scheduler.Conflict) string {
	when := conflict.Slot.DateString() + " à " + conflict.Slot.TimeString()
	switch {
	case conflict.Type == scheduler.ConflictTypeDuplicate:
		return "Le créneau du " + when + " est sélectionné plusieurs fois."
	case conflict.GroupName != "":
		return "Le créneau du " + when + " est déjà réservé par " + conflict.GroupName + "."
	default:
		return "Le créneau du " + when + " est déjà réservé."
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "is required":
		return "Ce champ est obligatoire."
	case "email is invalid":
		return "L'adresse e-mail est invalide."
	case "is too long":
		return "La valeur est trop longue."
	case "is invalid":
		return "La valeur est invalide."
	case "must be positive":
		return "La valeur doit être positive."
	case "group does not exist":
		return "Le groupe sélectionné n'existe pas."
	case "module does not exist":
		return "Le module sélectionné n'existe pas."
	case "module is not active":
		return "Le module sélectionné n'est plus proposé."
	case "date is invalid":
		return "La date est invalide."
	case "time is invalid":
		return "L'heure est invalide."
	case "at least one slot is required":
		return "Veuillez sélectionner au moins un créneau."
	case "too many slots selected":
		return "Trop de créneaux sélectionnés."
	case "selected modules have incompatible participant limits":
		return "Les modules sélectionnés ont des limites de participants incompatibles."
	case "participant is listed more than once":
		return "Ce participant figure plusieurs fois dans la liste."
	case "filename is invalid":
		return "Le nom du fichier est invalide."
	case "file type is not allowed":
		return "Ce type de fichier n'est pas autorisé."
	case "file is too large":
		return "Le fichier est trop volumineux."
	case "global document does not exist":
		return "Le document partagé sélectionné n'existe pas."
	case "department is still referenced by groups":
		return "Ce département est encore rattaché à des groupes."
	case "already exists":
		return "Cette valeur existe déjà."
	case "session is not open for a waitlist":
		return "Cette session n'accepte pas de liste d'attente."
	case "status is invalid":
		return "Le statut est invalide."
	case "an identical document already exists":
		return "Un document identique existe déjà."
	default:
		if rest, ok := strings.CutPrefix(message, "participant count must be between"); ok {
			bounds := strings.Fields(rest)
			if len(bounds) == 3 {
				return "Le nombre de participants doit être compris entre " + bounds[0] + " et " + bounds[2] + "."
			}
		}
		return message
	}
}

type conflictDTO struct {
	ModuleID  int64  `json:"module_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Type      string `json:"type"`
	SessionID int64  `json:"session_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
}

func conflictsToDTO(conflicts []scheduler.Conflict) []conflictDTO {
	out := make([]conflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictDTO{
			ModuleID:  c.Slot.ModuleID,
			Date:      c.Slot.DateString(),
			Time:      c.Slot.TimeString(),
			Type:      string(c.Type),
			SessionID: c.SessionID,
			GroupName: c.GroupName,
		})
	}
	return out
}

type errorResponse struct {
	ErrorCode    string            `json:"error_code,omitempty"`
	Message      string            `json:"message"`
	Errors       map[string]string `json:"errors,omitempty"`
	Conflicts    []conflictDTO     `json:"conflicts,omitempty"`
	RedirectStep *int              `json:"redirect_step,omitempty"`
}
