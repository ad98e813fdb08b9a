// Package notify delivers booking confirmations.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kaizen2025/Formation/internal/logging"
)

// LogDispatcher records confirmations in the structured log. It stands in for
// a mail relay, which is operated outside this service.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher constructs a dispatcher writing to logger.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// SendSessionConfirmation logs the confirmation of a session.
func (d *LogDispatcher) SendSessionConfirmation(ctx context.Context, sessionID int64) error {
	if d == nil {
		return fmt.Errorf("LogDispatcher is nil")
	}
	if sessionID <= 0 {
		return fmt.Errorf("invalid session id %d", sessionID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = d.logger
	}
	logger.InfoContext(ctx, "session confirmation sent", "component", "notify", "session_id", sessionID)
	return nil
}
