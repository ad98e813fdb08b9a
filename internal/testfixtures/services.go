package testfixtures

import (
	"time"

	"github.com/kaizen2025/Formation/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("draft"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("draft")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// NewDraftStore returns an in-memory draft store driven by the factory clock.
func (f *ServiceFactory) NewDraftStore(ttl time.Duration) *application.MemoryDraftStore {
	if ttl <= 0 {
		ttl = application.DefaultDraftTTL
	}
	return application.NewMemoryDraftStore(ttl, 0, f.Clock.NowFunc())
}

// NewBookingService builds a booking service from deps, filling identifiers,
// the clock and the draft store from the factory when they are unset.
func (f *ServiceFactory) NewBookingService(deps application.BookingDeps) *application.BookingService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = f.IDGenerator.NextFunc()
	}
	if deps.Now == nil {
		deps.Now = f.Clock.NowFunc()
	}
	if deps.Drafts == nil {
		deps.Drafts = f.NewDraftStore(application.DefaultDraftTTL)
	}
	return application.NewBookingService(deps)
}
