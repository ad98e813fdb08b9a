package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/scheduler"
	"github.com/kaizen2025/Formation/internal/uploads"
)

var testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func testSlot(moduleID int64, date string, hour, minute int) scheduler.Slot {
	slot, err := scheduler.NewSlot(moduleID, date, hour, minute)
	if err != nil {
		panic(err)
	}
	return slot
}

func participantsN(n int) []ParticipantInput {
	out := make([]ParticipantInput, n)
	for i := range out {
		out[i] = ParticipantInput{Name: fmt.Sprintf("Participant %d", i+1)}
	}
	return out
}

type catalogStub struct {
	groups  map[int64]Group
	modules map[int64]Module
	globals []Document
	err     error
}

func newCatalogStub() *catalogStub {
	return &catalogStub{
		groups: map[int64]Group{
			1: {ID: 1, Name: "Equipe Logistique", ContactName: "Claire", ContactEmail: "claire@example.com"},
			2: {ID: 2, Name: "Equipe Accueil"},
		},
		modules: map[int64]Module{
			5: {ID: 5, Code: "SEC-01", Name: "Sécurité", DurationMinutes: 90, Active: true},
			6: {ID: 6, Code: "ERG-01", Name: "Ergonomie", Active: true},
			7: {ID: 7, Code: "OLD-01", Name: "Ancien", Active: false},
		},
		globals: []Document{{ID: 100, Filename: "reglement.pdf", IsGlobal: true}},
	}
}

func (c *catalogStub) GetGroup(_ context.Context, id int64) (Group, error) {
	if c.err != nil {
		return Group{}, c.err
	}
	group, ok := c.groups[id]
	if !ok {
		return Group{}, persistence.ErrNotFound
	}
	return group, nil
}

func (c *catalogStub) GetModule(_ context.Context, id int64) (Module, error) {
	if c.err != nil {
		return Module{}, c.err
	}
	module, ok := c.modules[id]
	if !ok {
		return Module{}, persistence.ErrNotFound
	}
	return module, nil
}

func (c *catalogStub) ListGlobalDocuments(context.Context) ([]Document, error) {
	if c.err != nil {
		return nil, c.err
	}
	return append([]Document(nil), c.globals...), nil
}

type sessionLookupStub struct {
	mu       sync.Mutex
	occupied map[string]SessionSummary
	err      error
	calls    int
}

func (s *sessionLookupStub) FindActiveSession(_ context.Context, slot scheduler.Slot) (SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return SessionSummary{}, s.err
	}
	summary, ok := s.occupied[slot.Key()]
	if !ok {
		return SessionSummary{}, persistence.ErrNotFound
	}
	return summary, nil
}

type uploadStoreStub struct {
	mu        sync.Mutex
	maxBytes  int
	storeErr  error
	readErr   error
	next      int
	files     map[string][]byte
	discarded []string
	touched   []string
}

func newUploadStoreStub() *uploadStoreStub {
	return &uploadStoreStub{files: make(map[string][]byte)}
}

func (u *uploadStoreStub) Store(_ context.Context, r io.Reader, originalName string) (uploads.Stored, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return uploads.Stored{}, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.storeErr != nil {
		return uploads.Stored{}, u.storeErr
	}
	if u.maxBytes > 0 && len(data) > u.maxBytes {
		return uploads.Stored{}, uploads.ErrTooLarge
	}
	u.next++
	handle := fmt.Sprintf("handle-%d%s", u.next, strings.ToLower(filepath.Ext(originalName)))
	u.files[handle] = data
	return uploads.Stored{Handle: handle, Size: int64(len(data)), ContentType: "application/pdf"}, nil
}

func (u *uploadStoreStub) Read(_ context.Context, handle string) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.readErr != nil {
		return nil, u.readErr
	}
	data, ok := u.files[handle]
	if !ok {
		return nil, uploads.ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (u *uploadStoreStub) Touch(_ context.Context, handle string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.files[handle]; !ok {
		return uploads.ErrNotFound
	}
	u.touched = append(u.touched, handle)
	return nil
}

// lose drops a stored file as a sweep would.
func (u *uploadStoreStub) lose(handle string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.files, handle)
}

func (u *uploadStoreStub) Discard(_ context.Context, handle string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.files, handle)
	u.discarded = append(u.discarded, handle)
	return nil
}

func (u *uploadStoreStub) touchCount(handle string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, h := range u.touched {
		if h == handle {
			n++
		}
	}
	return n
}

func (u *uploadStoreStub) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.files)
}

type linkKey struct{ a, b int64 }

// bookingState is the committed content of memoryBookingStore. Transactions
// work on a clone that replaces the committed state only on success.
type bookingState struct {
	nextID      int64
	occupied    map[string]int64
	sessions    map[int64]NewSession
	roster      map[int64][]ParticipantInput
	attendances map[linkKey]bool
	documents   map[int64]Document
	links       map[linkKey]bool
}

func (s bookingState) clone() bookingState {
	out := s
	out.occupied = maps.Clone(s.occupied)
	out.sessions = maps.Clone(s.sessions)
	out.roster = make(map[int64][]ParticipantInput, len(s.roster))
	for k, v := range s.roster {
		out.roster[k] = append([]ParticipantInput(nil), v...)
	}
	out.attendances = maps.Clone(s.attendances)
	out.documents = maps.Clone(s.documents)
	out.links = maps.Clone(s.links)
	return out
}

type memoryBookingStore struct {
	mu        sync.Mutex
	state     bookingState
	modules   map[int64]Module
	globals   map[int64]bool
	failDocAt int
	groupName string
}

func newMemoryBookingStore(modules map[int64]Module) *memoryBookingStore {
	return &memoryBookingStore{
		state: bookingState{
			nextID:      1,
			occupied:    map[string]int64{},
			sessions:    map[int64]NewSession{},
			roster:      map[int64][]ParticipantInput{},
			attendances: map[linkKey]bool{},
			documents:   map[int64]Document{},
			links:       map[linkKey]bool{},
		},
		modules:   modules,
		globals:   map[int64]bool{100: true},
		groupName: "Equipe Logistique",
	}
}

func (m *memoryBookingStore) WithinBookingTx(_ context.Context, fn func(tx BookingTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryBookingTx{store: m, state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memoryBookingStore) snapshot() bookingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

type memoryBookingTx struct {
	store *memoryBookingStore
	state bookingState
	docs  int
}

func (t *memoryBookingTx) FindActiveSessionForUpdate(_ context.Context, slot scheduler.Slot) (SessionSummary, error) {
	id, ok := t.state.occupied[slot.Key()]
	if !ok {
		return SessionSummary{}, persistence.ErrNotFound
	}
	return SessionSummary{ID: id, Slot: slot, GroupName: t.store.groupName}, nil
}

func (t *memoryBookingTx) GetModule(_ context.Context, id int64) (Module, error) {
	module, ok := t.store.modules[id]
	if !ok {
		return Module{}, persistence.ErrNotFound
	}
	return module, nil
}

func (t *memoryBookingTx) UpsertParticipant(_ context.Context, groupID int64, p ParticipantInput) (int64, error) {
	roster := t.state.roster[groupID]
	for i, existing := range roster {
		if strings.EqualFold(existing.Name, p.Name) {
			return int64(i + 1), nil
		}
	}
	t.state.roster[groupID] = append(roster, p)
	return int64(len(roster) + 1), nil
}

func (t *memoryBookingTx) ListParticipantIDs(_ context.Context, groupID int64) ([]int64, error) {
	ids := make([]int64, len(t.state.roster[groupID]))
	for i := range ids {
		ids[i] = groupID*1000 + int64(i+1)
	}
	return ids, nil
}

func (t *memoryBookingTx) CreateSession(_ context.Context, session NewSession) (int64, error) {
	if _, taken := t.state.occupied[session.Slot.Key()]; taken {
		return 0, persistence.ErrSlotTaken
	}
	id := t.state.nextID
	t.state.nextID++
	t.state.sessions[id] = session
	t.state.occupied[session.Slot.Key()] = id
	return id, nil
}

func (t *memoryBookingTx) CreateAttendance(_ context.Context, sessionID, participantID int64) (bool, error) {
	key := linkKey{sessionID, participantID}
	if t.state.attendances[key] {
		return false, nil
	}
	t.state.attendances[key] = true
	return true, nil
}

func (t *memoryBookingTx) SaveDocument(_ context.Context, document Document) (int64, error) {
	t.docs++
	if t.store.failDocAt > 0 && t.docs == t.store.failDocAt {
		return 0, errors.New("disk I/O error")
	}
	id := t.state.nextID
	t.state.nextID++
	document.ID = id
	t.state.documents[id] = document
	return id, nil
}

func (t *memoryBookingTx) AssociateDocument(_ context.Context, documentID, sessionID int64) error {
	t.state.links[linkKey{documentID, sessionID}] = true
	return nil
}

func (t *memoryBookingTx) AssociateGlobalDocument(_ context.Context, documentID, sessionID int64) error {
	if !t.store.globals[documentID] {
		return persistence.ErrNotFound
	}
	t.state.links[linkKey{documentID, sessionID}] = true
	return nil
}

type activityRepoStub struct {
	mu      sync.Mutex
	entries []ActivityEntry
	err     error
}

func (a *activityRepoStub) AppendActivity(_ context.Context, entry ActivityEntry) (ActivityEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return ActivityEntry{}, a.err
	}
	entry.ID = int64(len(a.entries) + 1)
	a.entries = append(a.entries, entry)
	return entry, nil
}

func (a *activityRepoStub) ListRecentActivity(_ context.Context, limit int) ([]ActivityEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	var out []ActivityEntry
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.entries[i])
	}
	return out, nil
}

func (a *activityRepoStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type dispatcherStub struct {
	mu   sync.Mutex
	fail map[int64]error
	sent []int64
}

func (d *dispatcherStub) SendSessionConfirmation(_ context.Context, sessionID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[sessionID]; err != nil {
		return err
	}
	d.sent = append(d.sent, sessionID)
	return nil
}

type extensionStub map[string]bool

func (e extensionStub) Allowed(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	return e[strings.ToLower(filename[i+1:])]
}

// bookingHarness wires a BookingService over in-memory collaborators.
type bookingHarness struct {
	catalog  *catalogStub
	sessions *sessionLookupStub
	uploads  *uploadStoreStub
	store    *memoryBookingStore
	activity *activityRepoStub
	drafts   *MemoryDraftStore
	svc      *BookingService
}

func newBookingHarness() *bookingHarness {
	h := &bookingHarness{
		catalog:  newCatalogStub(),
		sessions: &sessionLookupStub{occupied: map[string]SessionSummary{}},
		uploads:  newUploadStoreStub(),
		activity: &activityRepoStub{},
		drafts:   NewMemoryDraftStore(time.Hour, 16, fixedNow),
	}
	h.store = newMemoryBookingStore(h.catalog.modules)
	activity := NewActivityService(h.activity, fixedNow)
	engine := NewFinalizationEngine(h.store, h.uploads, fixedNow, nil, activity)

	ids := 0
	h.svc = NewBookingService(BookingDeps{
		Catalog:      h.catalog,
		Documents:    h.catalog,
		Availability: NewAvailabilityService(h.sessions, 12),
		Drafts:       h.drafts,
		Uploads:      h.uploads,
		Extensions:   extensionStub{"pdf": true, "docx": true},
		Finalizer:    engine,
		Activity:     activity,
		Bounds:       ParticipantBounds{Min: 8, Max: 12},
		IDGenerator: func() string {
			ids++
			return fmt.Sprintf("draft-%d", ids)
		},
		Now: fixedNow,
	})
	return h
}
