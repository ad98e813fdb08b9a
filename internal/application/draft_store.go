package application

import (
	"context"
	"sync"
	"time"
)

// DraftStore persists drafts between requests. Load returns ErrDraftNotFound
// for unknown identifiers and ErrDraftExpired for drafts idle past their
// lifetime. Save refreshes the idle lifetime.
type DraftStore interface {
	Load(ctx context.Context, id string) (Draft, error)
	Save(ctx context.Context, draft Draft) error
	Delete(ctx context.Context, id string) error
}

// DefaultDraftTTL is the idle lifetime of a draft.
const DefaultDraftTTL = time.Hour

// MemoryDraftStore keeps drafts in process memory with idle expiry and a size bound.
type MemoryDraftStore struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]draftEntry
}

type draftEntry struct {
	draft     Draft
	expiresAt time.Time
}

// NewMemoryDraftStore builds an in-memory store. Non-positive values select
// DefaultDraftTTL and 1024 entries.
func NewMemoryDraftStore(ttl time.Duration, maxEntries int, now func() time.Time) *MemoryDraftStore {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryDraftStore{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]draftEntry),
	}
}

// Load returns a copy of the stored draft.
func (s *MemoryDraftStore) Load(_ context.Context, id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, id)
		return Draft{}, ErrDraftExpired
	}
	return entry.draft.Clone(), nil
}

// Save stores a copy of draft and restarts its idle lifetime.
func (s *MemoryDraftStore) Save(_ context.Context, draft Draft) error {
	if draft.ID == "" {
		return ErrDraftNotFound
	}
	entry := draftEntry{draft: draft.Clone(), expiresAt: s.now().Add(s.ttl)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[draft.ID]; !exists {
		s.cleanupLocked()
		if len(s.entries) >= s.maxEntries {
			s.evictOldestLocked()
		}
	}
	s.entries[draft.ID] = entry
	return nil
}

// Delete removes a draft. Deleting an unknown draft succeeds.
func (s *MemoryDraftStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Len reports the number of drafts held, expired ones included until cleanup.
func (s *MemoryDraftStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryDraftStore) cleanupLocked() {
	now := s.now()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

func (s *MemoryDraftStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range s.entries {
		if oldestID == "" || entry.expiresAt.Before(oldest) {
			oldestID = id
			oldest = entry.expiresAt
		}
	}
	if oldestID != "" {
		delete(s.entries, oldestID)
	}
}
