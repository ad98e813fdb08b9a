package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the janitor every quarter hour.
const DefaultSweepSchedule = "@every 15m"

const sweepTimeout = 4 * time.Minute

// Janitor sweeps orphaned uploads on a cron schedule.
type Janitor struct {
	store    *Store
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewJanitor validates schedule and returns a stopped janitor removing uploads
// idle for longer than maxAge.
func NewJanitor(store *Store, schedule string, maxAge time.Duration, logger *slog.Logger) (*Janitor, error) {
	if store == nil {
		return nil, fmt.Errorf("upload store is required")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("upload max age must be positive")
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "uploads_janitor"))

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger})))
	j := &Janitor{store: store, maxAge: maxAge, schedule: schedule, cron: c, logger: logger}
	if _, err := c.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins running sweeps in the background.
func (j *Janitor) Start() {
	j.logger.Info("upload janitor started", "schedule", j.schedule, "max_age", j.maxAge.String())
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep until ctx is done.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepNow runs one sweep synchronously.
func (j *Janitor) SweepNow(ctx context.Context) (int, error) {
	removed, err := j.store.Sweep(ctx, j.maxAge)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		j.logger.InfoContext(ctx, "orphaned uploads swept", "removed", removed, "max_age", j.maxAge.String())
	}
	return removed, nil
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := j.SweepNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.logger.ErrorContext(ctx, "upload sweep failed", "error", err)
	}
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
