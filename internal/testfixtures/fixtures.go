package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kaizen2025/Formation/internal/application"
	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/scheduler"
)

var (
	moduleCounter      uint64
	groupCounter       uint64
	participantCounter uint64
	sessionCounter     uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate returns the calendar day sessions are booked on by default.
func ReferenceDate() time.Time {
	return time.Date(2024, time.February, 6, 0, 0, 0, 0, time.UTC)
}

// ----------------------------- Module fixtures -----------------------------

// ModuleFixture represents a deterministic training module.
type ModuleFixture struct {
	ID              int64
	Code            string
	Name            string
	Description     string
	DurationMinutes int
	MinParticipants int
	MaxParticipants int
	Active          bool
	CreatedAt       time.Time
}

// ModuleOption configures the generated module fixture.
type ModuleOption func(*ModuleFixture)

// NewModuleFixture returns an active module fixture with optional overrides.
// The ID is left at zero so storage can assign it.
func NewModuleFixture(opts ...ModuleOption) ModuleFixture {
	idx := atomic.AddUint64(&moduleCounter, 1)
	fixture := ModuleFixture{
		Code:            fmt.Sprintf("MOD-%03d", idx),
		Name:            fmt.Sprintf("Module %03d", idx),
		DurationMinutes: 90,
		MinParticipants: 8,
		MaxParticipants: 12,
		Active:          true,
		CreatedAt:       referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithModuleID sets the module ID.
func WithModuleID(id int64) ModuleOption {
	return func(f *ModuleFixture) {
		f.ID = id
	}
}

// WithModuleCode overrides the generated module code.
func WithModuleCode(code string) ModuleOption {
	return func(f *ModuleFixture) {
		f.Code = code
	}
}

// WithModuleDuration overrides the session duration in minutes.
func WithModuleDuration(minutes int) ModuleOption {
	return func(f *ModuleFixture) {
		f.DurationMinutes = minutes
	}
}

// WithModuleBounds overrides the participant bounds.
func WithModuleBounds(minimum, maximum int) ModuleOption {
	return func(f *ModuleFixture) {
		f.MinParticipants = minimum
		f.MaxParticipants = maximum
	}
}

// WithModuleInactive marks the module as withdrawn from the catalog.
func WithModuleInactive() ModuleOption {
	return func(f *ModuleFixture) {
		f.Active = false
	}
}

// Persistence converts the fixture into a persistence.Module.
func (f ModuleFixture) Persistence() persistence.Module {
	return persistence.Module{
		ID:              f.ID,
		Code:            f.Code,
		Name:            f.Name,
		Description:     f.Description,
		DurationMinutes: f.DurationMinutes,
		MinParticipants: f.MinParticipants,
		MaxParticipants: f.MaxParticipants,
		Active:          f.Active,
		CreatedAt:       f.CreatedAt,
	}
}

// Application converts the fixture into an application.Module.
func (f ModuleFixture) Application() application.Module {
	return application.Module{
		ID:              f.ID,
		Code:            f.Code,
		Name:            f.Name,
		Description:     f.Description,
		DurationMinutes: f.DurationMinutes,
		MinParticipants: f.MinParticipants,
		MaxParticipants: f.MaxParticipants,
		Active:          f.Active,
		CreatedAt:       f.CreatedAt,
	}
}

// ----------------------------- Group fixtures -----------------------------

// GroupFixture represents a deterministic booking group.
type GroupFixture struct {
	ID           int64
	Name         string
	ContactName  string
	ContactEmail string
	DepartmentID *int64
	CreatedAt    time.Time
}

// GroupOption configures the generated group fixture.
type GroupOption func(*GroupFixture)

// NewGroupFixture returns a group fixture with optional overrides.
func NewGroupFixture(opts ...GroupOption) GroupFixture {
	idx := atomic.AddUint64(&groupCounter, 1)
	fixture := GroupFixture{
		Name:         fmt.Sprintf("Equipe %03d", idx),
		ContactName:  fmt.Sprintf("Contact %03d", idx),
		ContactEmail: fmt.Sprintf("group-%03d@example.com", idx),
		CreatedAt:    referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithGroupID sets the group ID.
func WithGroupID(id int64) GroupOption {
	return func(f *GroupFixture) {
		f.ID = id
	}
}

// WithGroupName overrides the generated group name.
func WithGroupName(name string) GroupOption {
	return func(f *GroupFixture) {
		f.Name = name
	}
}

// WithGroupDepartment attaches the group to a department.
func WithGroupDepartment(id int64) GroupOption {
	return func(f *GroupFixture) {
		f.DepartmentID = &id
	}
}

// Persistence converts the fixture into a persistence.Group.
func (f GroupFixture) Persistence() persistence.Group {
	return persistence.Group{
		ID:           f.ID,
		Name:         f.Name,
		ContactName:  f.ContactName,
		ContactEmail: f.ContactEmail,
		DepartmentID: cloneID(f.DepartmentID),
		CreatedAt:    f.CreatedAt,
	}
}

// Application converts the fixture into an application.Group.
func (f GroupFixture) Application() application.Group {
	return application.Group{
		ID:           f.ID,
		Name:         f.Name,
		ContactName:  f.ContactName,
		ContactEmail: f.ContactEmail,
		DepartmentID: cloneID(f.DepartmentID),
		CreatedAt:    f.CreatedAt,
	}
}

// Snapshot returns the group as captured by a draft.
func (f GroupFixture) Snapshot() application.GroupSnapshot {
	return application.GroupSnapshot{ID: f.ID, Name: f.Name}
}

// -------------------------- Participant fixtures --------------------------

// ParticipantFixture represents a roster member.
type ParticipantFixture struct {
	ID        int64
	GroupID   int64
	Name      string
	Email     string
	Position  string
	CreatedAt time.Time
}

// ParticipantOption configures the generated participant fixture.
type ParticipantOption func(*ParticipantFixture)

// NewParticipantFixture returns a participant fixture with optional overrides.
func NewParticipantFixture(opts ...ParticipantOption) ParticipantFixture {
	idx := atomic.AddUint64(&participantCounter, 1)
	fixture := ParticipantFixture{
		Name:      fmt.Sprintf("Participant %03d", idx),
		Email:     fmt.Sprintf("participant-%03d@example.com", idx),
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithParticipantGroup sets the owning group.
func WithParticipantGroup(groupID int64) ParticipantOption {
	return func(f *ParticipantFixture) {
		f.GroupID = groupID
	}
}

// WithParticipantName overrides the generated name.
func WithParticipantName(name string) ParticipantOption {
	return func(f *ParticipantFixture) {
		f.Name = name
	}
}

// Persistence converts the fixture into a persistence.Participant.
func (f ParticipantFixture) Persistence() persistence.Participant {
	return persistence.Participant{
		ID:        f.ID,
		GroupID:   f.GroupID,
		Name:      f.Name,
		Email:     f.Email,
		Position:  f.Position,
		CreatedAt: f.CreatedAt,
	}
}

// Input converts the fixture into the wizard's participant payload.
func (f ParticipantFixture) Input() application.ParticipantInput {
	return application.ParticipantInput{Name: f.Name, Email: f.Email, Position: f.Position}
}

// ParticipantInputs returns n distinct participant payloads.
func ParticipantInputs(n int) []application.ParticipantInput {
	out := make([]application.ParticipantInput, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, NewParticipantFixture().Input())
	}
	return out
}

// ----------------------------- Session fixtures -----------------------------

// SessionFixture represents a booked session occupying a slot.
type SessionFixture struct {
	ID              int64
	ModuleID        int64
	GroupID         int64
	Date            time.Time
	StartHour       int
	StartMinute     int
	DurationMinutes int
	Status          string
	AdditionalInfo  string
	CreatedAt       time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a confirmed session on ReferenceDate. Each fixture
// starts one hour after the previous one so slots never collide by accident.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := SessionFixture{
		ModuleID:        1,
		GroupID:         1,
		Date:            ReferenceDate(),
		StartHour:       int(idx % 24),
		DurationMinutes: 60,
		Status:          persistence.SessionStatusConfirmed,
		CreatedAt:       created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionModule sets the booked module.
func WithSessionModule(moduleID int64) SessionOption {
	return func(f *SessionFixture) {
		f.ModuleID = moduleID
	}
}

// WithSessionGroup sets the booking group.
func WithSessionGroup(groupID int64) SessionOption {
	return func(f *SessionFixture) {
		f.GroupID = groupID
	}
}

// WithSessionSlot places the session on the given slot.
func WithSessionSlot(slot scheduler.Slot) SessionOption {
	return func(f *SessionFixture) {
		f.ModuleID = slot.ModuleID
		f.Date = slot.Date
		f.StartHour = slot.Hour
		f.StartMinute = slot.Minute
	}
}

// WithSessionDate overrides the session day.
func WithSessionDate(date time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.Date = date
	}
}

// WithSessionStart overrides the start time.
func WithSessionStart(hour, minute int) SessionOption {
	return func(f *SessionFixture) {
		f.StartHour = hour
		f.StartMinute = minute
	}
}

// WithSessionStatus overrides the session status.
func WithSessionStatus(status string) SessionOption {
	return func(f *SessionFixture) {
		f.Status = status
	}
}

// Slot returns the slot the session occupies.
func (f SessionFixture) Slot() scheduler.Slot {
	return scheduler.Slot{ModuleID: f.ModuleID, Date: f.Date, Hour: f.StartHour, Minute: f.StartMinute}
}

// Persistence converts the fixture into a persistence.Session.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:              f.ID,
		ModuleID:        f.ModuleID,
		GroupID:         f.GroupID,
		Date:            f.Date,
		StartHour:       f.StartHour,
		StartMinute:     f.StartMinute,
		DurationMinutes: f.DurationMinutes,
		Status:          f.Status,
		AdditionalInfo:  f.AdditionalInfo,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// NewSession converts the fixture into the payload finalization writes.
func (f SessionFixture) NewSession() application.NewSession {
	return application.NewSession{
		GroupID:         f.GroupID,
		Slot:            f.Slot(),
		DurationMinutes: f.DurationMinutes,
		AdditionalInfo:  f.AdditionalInfo,
		CreatedAt:       f.CreatedAt,
	}
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
