package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kaizen2025/Formation/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDraftNotFound):
		return "not_found"
	case errors.Is(err, ErrDraftExpired):
		return "draft_expired"
	case errors.Is(err, ErrFinalizeInProgress):
		return "in_progress"
	case errors.Is(err, ErrUploadTooLarge):
		return "validation"
	case errors.Is(err, ErrChecksumMismatch):
		return "integrity"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return "conflict"
	}
	var sErr *StepError
	if errors.As(err, &sErr) {
		return "step_required"
	}
	var tErr *TransientError
	if errors.As(err, &tErr) {
		return "transient"
	}
	var nErr *NotificationError
	if errors.As(err, &nErr) {
		return "notification"
	}

	return "unexpected"
}
