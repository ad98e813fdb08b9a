package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Catalog   persistence.CatalogRepository
	Sessions  persistence.SessionRepository
	Documents persistence.DocumentRepository
	Waitlist  persistence.WaitlistRepository
	Activity  persistence.ActivityRepository
	Bookings  persistence.BookingStore

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "booking.db")
	storage, err := sqlite.Open(sqlite.TestConfig(path), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Catalog:   storage,
		Sessions:  storage,
		Documents: storage,
		Waitlist:  storage,
		Activity:  storage,
		Bookings:  storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedModule stores a module fixture and returns it with its assigned ID.
func (h *SQLiteHarness) SeedModule(tb testing.TB, opts ...ModuleOption) persistence.Module {
	tb.Helper()
	module, err := h.Catalog.CreateModule(context.Background(), NewModuleFixture(opts...).Persistence())
	if err != nil {
		tb.Fatalf("failed to seed module: %v", err)
	}
	return module
}

// SeedGroup stores a group fixture and returns it with its assigned ID.
func (h *SQLiteHarness) SeedGroup(tb testing.TB, opts ...GroupOption) persistence.Group {
	tb.Helper()
	group, err := h.Catalog.CreateGroup(context.Background(), NewGroupFixture(opts...).Persistence())
	if err != nil {
		tb.Fatalf("failed to seed group: %v", err)
	}
	return group
}

// SeedSession books a session fixture inside a booking transaction and
// returns its ID.
func (h *SQLiteHarness) SeedSession(tb testing.TB, opts ...SessionOption) int64 {
	tb.Helper()
	fixture := NewSessionFixture(opts...).Persistence()
	var id int64
	err := h.Bookings.WithinBookingTx(context.Background(), func(tx persistence.BookingTx) error {
		var err error
		id, err = tx.CreateSession(context.Background(), fixture)
		return err
	})
	if err != nil {
		tb.Fatalf("failed to seed session: %v", err)
	}
	return id
}
