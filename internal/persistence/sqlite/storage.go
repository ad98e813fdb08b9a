package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage aggregates the SQLite repositories behind a single connection pool.
type Storage struct {
	*CatalogRepository
	*SessionRepository
	*DocumentRepository
	*WaitlistRepository
	*ActivityRepository
	*BookingStore

	pool   *ConnectionPool
	logger *slog.Logger
}

var (
	_ persistence.CatalogRepository  = (*Storage)(nil)
	_ persistence.SessionRepository  = (*Storage)(nil)
	_ persistence.DocumentRepository = (*Storage)(nil)
	_ persistence.WaitlistRepository = (*Storage)(nil)
	_ persistence.ActivityRepository = (*Storage)(nil)
	_ persistence.BookingStore       = (*Storage)(nil)
)

// Open connects to the database described by cfg. Call Migrate before use.
func Open(cfg Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{
		CatalogRepository:  NewCatalogRepository(pool),
		SessionRepository:  NewSessionRepository(pool),
		DocumentRepository: NewDocumentRepository(pool),
		WaitlistRepository: NewWaitlistRepository(pool),
		ActivityRepository: NewActivityRepository(pool),
		BookingStore:       NewBookingStore(pool, DefaultRetryConfig()),
		pool:               pool,
		logger:             logger.With(slog.String("component", "sqlite")),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationFiles,
		"migrations",
		s.logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
