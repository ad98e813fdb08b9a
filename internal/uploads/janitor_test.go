package uploads

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewJanitor(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t, 64, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		schedule string
		maxAge   time.Duration
		wantErr  bool
	}{
		{name: "default schedule", schedule: "", maxAge: time.Hour},
		{name: "descriptor", schedule: "@every 5m", maxAge: time.Hour},
		{name: "five field cron", schedule: "*/10 * * * *", maxAge: time.Hour},
		{name: "garbage schedule", schedule: "whenever", maxAge: time.Hour, wantErr: true},
		{name: "zero max age", schedule: "@hourly", maxAge: 0, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewJanitor(store, tt.schedule, tt.maxAge, logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewJanitor(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
			}
		})
	}

	if _, err := NewJanitor(nil, "", time.Hour, logger); err == nil {
		t.Fatalf("expected error without a store")
	}
}

func TestJanitor_SweepNowAndStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	store, dir := newTestStore(t, 64, func() time.Time { return now })

	stale, err := store.Store(ctx, strings.NewReader("stale"), "stale.pdf")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	past := now.Add(-3 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, stale.Handle), past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	janitor, err := NewJanitor(store, "@every 1h", 2*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewJanitor failed: %v", err)
	}
	janitor.Start()

	removed, err := janitor.SweepNow(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("expected one upload swept, got %d (%v)", removed, err)
	}
	if _, err := store.Read(ctx, stale.Handle); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stale upload to be gone, got %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := janitor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
