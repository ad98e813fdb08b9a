package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
)

type waitlistRepoStub struct {
	sessions map[int64]Session
	entries  map[int64]WaitlistEntry
	updated  []string
}

func newWaitlistRepoStub() *waitlistRepoStub {
	return &waitlistRepoStub{
		sessions: map[int64]Session{
			1: {ID: 1, Status: SessionStatusConfirmed},
			2: {ID: 2, Status: SessionStatusCanceled},
		},
		entries: map[int64]WaitlistEntry{},
	}
}

func (w *waitlistRepoStub) GetSession(_ context.Context, id int64) (Session, error) {
	session, ok := w.sessions[id]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (w *waitlistRepoStub) CreateWaitlistEntry(_ context.Context, entry WaitlistEntry) (WaitlistEntry, error) {
	entry.ID = int64(len(w.entries) + 1)
	w.entries[entry.ID] = entry
	return entry, nil
}

func (w *waitlistRepoStub) GetWaitlistEntry(_ context.Context, id int64) (WaitlistEntry, error) {
	entry, ok := w.entries[id]
	if !ok {
		return WaitlistEntry{}, persistence.ErrNotFound
	}
	return entry, nil
}

func (w *waitlistRepoStub) ListWaitlistEntries(_ context.Context, sessionID int64) ([]WaitlistEntry, error) {
	var out []WaitlistEntry
	for id := int64(1); id <= int64(len(w.entries)); id++ {
		if entry := w.entries[id]; entry.SessionID == sessionID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (w *waitlistRepoStub) UpdateWaitlistStatus(_ context.Context, id int64, status string, updatedAt time.Time) error {
	entry, ok := w.entries[id]
	if !ok {
		return persistence.ErrNotFound
	}
	entry.Status = status
	entry.UpdatedAt = updatedAt
	w.entries[id] = entry
	w.updated = append(w.updated, status)
	return nil
}

func TestWaitlistService_Join(t *testing.T) {
	valid := WaitlistInput{SessionID: 1, ContactName: "Marc", ContactEmail: "marc@example.com"}

	t.Run("adds a waiting entry", func(t *testing.T) {
		repo := newWaitlistRepoStub()
		activity := &activityRepoStub{}
		svc := NewWaitlistService(repo, NewActivityService(activity, fixedNow), fixedNow)

		entry, err := svc.Join(context.Background(), valid)
		if err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		if entry.Status != WaitlistStatusWaiting || entry.ID == 0 {
			t.Fatalf("unexpected entry %+v", entry)
		}
		if got := activity.actions(); len(got) != 1 || got[0] != ActionWaitlistAdded {
			t.Fatalf("expected waitlist_added activity, got %v", got)
		}
	})

	tests := []struct {
		name  string
		input WaitlistInput
		field string
	}{
		{name: "missing email", input: WaitlistInput{SessionID: 1, ContactName: "Marc"}, field: "contact_email"},
		{name: "canceled session", input: WaitlistInput{SessionID: 2, ContactName: "Marc", ContactEmail: "marc@example.com"}, field: "session_id"},
		{name: "unknown session", input: WaitlistInput{SessionID: 9, ContactName: "Marc", ContactEmail: "marc@example.com"}, field: "session_id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := NewWaitlistService(newWaitlistRepoStub(), nil, fixedNow)

			_, err := svc.Join(context.Background(), tt.input)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tt.field]; !ok {
				t.Fatalf("expected %s error, got %v", tt.field, vErr.FieldErrors)
			}
		})
	}
}

func TestWaitlistService_UpdateStatus(t *testing.T) {
	repo := newWaitlistRepoStub()
	svc := NewWaitlistService(repo, nil, fixedNow)
	ctx := context.Background()

	entry, err := svc.Join(ctx, WaitlistInput{SessionID: 1, ContactName: "Marc", ContactEmail: "marc@example.com"})
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, entry.ID, "archived"); err == nil {
		t.Fatalf("expected invalid status to be rejected")
	}

	updated, err := svc.UpdateStatus(ctx, entry.ID, " Contacted ")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != WaitlistStatusContacted {
		t.Fatalf("expected contacted, got %q", updated.Status)
	}

	if _, err := svc.UpdateStatus(ctx, entry.ID, WaitlistStatusContacted); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if len(repo.updated) != 1 {
		t.Fatalf("expected unchanged status to skip the write, got %v", repo.updated)
	}

	if _, err := svc.UpdateStatus(ctx, 99, WaitlistStatusPromoted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := svc.List(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one entry, got %v (%v)", list, err)
	}
}
