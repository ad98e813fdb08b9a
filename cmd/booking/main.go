package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kaizen2025/Formation/internal/application"
	"github.com/kaizen2025/Formation/internal/config"
	httptransport "github.com/kaizen2025/Formation/internal/http"
	"github.com/kaizen2025/Formation/internal/notify"
	"github.com/kaizen2025/Formation/internal/persistence/redisstore"
	"github.com/kaizen2025/Formation/internal/persistence/sqlite"
	"github.com/kaizen2025/Formation/internal/uploads"
)

const maxMemoryDrafts = 10000

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	app, err := newApp(ctx, cfg, time.Now, uuid.NewString, logger)
	if err != nil {
		logger.Error("failed to initialise booking service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	app.janitor.Start()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
		if err := app.janitor.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop upload janitor", "error", err)
		}
	}()

	logger.Info("booking API listening", "addr", server.Addr, "draft_store", cfg.DraftStore)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// app holds the wired service and the resources it must release.
type app struct {
	handler      http.Handler
	booking      *application.BookingService
	catalog      *application.CatalogService
	sessions     *application.SessionService
	availability *application.AvailabilityService
	uploads      *uploads.Store
	janitor      *uploads.Janitor
	closers      []func() error
	logger       *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, now func() time.Time, newID func() string, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	storage, err := sqlite.Open(sqlite.DefaultConfig(cfg.SQLitePath), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, storage.Close)

	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	uploadStore, err := uploads.NewStoreWithClock(cfg.UploadDir, cfg.UploadMaxBytes, now, logger)
	if err != nil {
		return nil, fmt.Errorf("open upload store: %w", err)
	}
	a.uploads = uploadStore

	janitor, err := uploads.NewJanitor(uploadStore, cfg.UploadSweepSchedule, cfg.UploadMaxAge, logger)
	if err != nil {
		return nil, fmt.Errorf("schedule upload sweep: %w", err)
	}
	a.janitor = janitor

	drafts, err := openDraftStore(ctx, cfg, now, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := drafts.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	catalogRepo := newCatalogRepositoryAdapter(storage)
	documentRepo := newDocumentRepositoryAdapter(storage)
	extensions := uploads.NewExtensionPolicy(cfg.AllowedExtensions)

	activity := application.NewActivityServiceWithLogger(newActivityRepositoryAdapter(storage), now, logger)
	availability := application.NewAvailabilityServiceWithLogger(newSessionLookupAdapter(storage), cfg.MaxParticipants, logger)
	a.availability = availability
	engine := application.NewFinalizationEngine(
		newBookingStoreAdapter(storage),
		uploadStore,
		now,
		logger,
		activity,
		application.NewConfirmationHandler(notify.NewLogDispatcher(logger), activity, logger),
	)

	a.booking = application.NewBookingService(application.BookingDeps{
		Catalog:      catalogRepo,
		Documents:    documentRepo,
		Availability: availability,
		Drafts:       drafts,
		Uploads:      uploadStore,
		Extensions:   extensions,
		Finalizer:    engine,
		Activity:     activity,
		Bounds:       application.ParticipantBounds{Min: cfg.MinParticipants, Max: cfg.MaxParticipants},
		IDGenerator:  newID,
		Now:          now,
		Logger:       logger,
	})
	a.catalog = application.NewCatalogServiceWithLogger(catalogRepo, documentRepo, extensions, now, logger)
	waitlist := application.NewWaitlistServiceWithLogger(newWaitlistRepositoryAdapter(storage, storage), activity, now, logger)
	a.sessions = application.NewSessionServiceWithLogger(newSessionRepositoryAdapter(storage, storage), activity, now, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Booking: httptransport.NewBookingHandler(a.booking, availability, httptransport.BookingOptions{
			MaxUploadBytes: cfg.UploadMaxBytes * 4,
			CookieSecure:   cfg.CookieSecure,
			DraftTTL:       cfg.DraftTTL,
		}, logger),
		Catalog:  httptransport.NewCatalogHandler(a.catalog, activity, cfg.UploadMaxBytes, logger),
		Waitlist: httptransport.NewWaitlistHandler(waitlist, logger),
		Sessions: httptransport.NewSessionHandler(a.sessions, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequestMetadata(),
		},
	})
	a.handler = router
	return a, nil
}

func openDraftStore(ctx context.Context, cfg config.Config, now func() time.Time, logger *slog.Logger) (application.DraftStore, error) {
	switch cfg.DraftStore {
	case config.DraftStoreRedis:
		store, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.DraftTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open redis draft store: %w", err)
		}
		return store, nil
	default:
		return application.NewMemoryDraftStore(cfg.DraftTTL, maxMemoryDrafts, now), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}
