package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kaizen2025/Formation/internal/persistence"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	path := filepath.Join(t.TempDir(), "booking.db")
	storage, err := Open(TestConfig(path), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return storage
}

func seedCatalog(t *testing.T, storage *Storage) (persistence.Module, persistence.Group) {
	t.Helper()
	ctx := context.Background()

	module, err := storage.CreateModule(ctx, persistence.Module{
		Code:            "EXCEL-1",
		Name:            "Excel basics",
		DurationMinutes: 90,
		MaxParticipants: 10,
		Active:          true,
	})
	if err != nil {
		t.Fatalf("CreateModule failed: %v", err)
	}
	group, err := storage.CreateGroup(ctx, persistence.Group{Name: "Finance", ContactEmail: "finance@example.com"})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return module, group
}

var slotDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func TestConfig_DSN(t *testing.T) {
	t.Parallel()

	dsn := DefaultConfig("/tmp/booking.db").DSN()
	if !strings.HasPrefix(dsn, "/tmp/booking.db?") {
		t.Fatalf("unexpected DSN prefix: %s", dsn)
	}
	for _, want := range []string{"_txlock=immediate", "busy_timeout%285000%29", "foreign_keys%281%29", "journal_mode%28WAL%29"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected DSN to contain %q, got %s", want, dsn)
		}
	}

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
	if err := (Config{Path: "x.db", JournalMode: "bogus"}).Validate(); err == nil {
		t.Fatalf("expected invalid journal mode to be rejected")
	}
}

func TestCatalogRepository(t *testing.T) {
	t.Parallel()

	t.Run("stores and lists catalog entries", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := newTestStorage(t)

		department, err := storage.CreateDepartment(ctx, persistence.Department{Code: "FIN", Name: "Finance"})
		if err != nil {
			t.Fatalf("CreateDepartment failed: %v", err)
		}
		module, err := storage.CreateModule(ctx, persistence.Module{Code: "WORD", Name: "Word", DurationMinutes: 60, Active: true})
		if err != nil {
			t.Fatalf("CreateModule failed: %v", err)
		}
		if _, err := storage.CreateModule(ctx, persistence.Module{Code: "OLD", Name: "Archived", DurationMinutes: 60}); err != nil {
			t.Fatalf("CreateModule failed: %v", err)
		}
		group, err := storage.CreateGroup(ctx, persistence.Group{Name: "Accounts", DepartmentID: &department.ID})
		if err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if _, err := storage.CreateParticipant(ctx, persistence.Participant{GroupID: group.ID, Name: "Zoe"}); err != nil {
			t.Fatalf("CreateParticipant failed: %v", err)
		}
		if _, err := storage.CreateParticipant(ctx, persistence.Participant{GroupID: group.ID, Name: "Adam"}); err != nil {
			t.Fatalf("CreateParticipant failed: %v", err)
		}

		fetched, err := storage.GetModule(ctx, module.ID)
		if err != nil {
			t.Fatalf("GetModule failed: %v", err)
		}
		if fetched.Name != "Word" || !fetched.Active || fetched.DurationMinutes != 60 {
			t.Fatalf("unexpected module: %#v", fetched)
		}

		active, err := storage.ListModules(ctx, true)
		if err != nil {
			t.Fatalf("ListModules failed: %v", err)
		}
		if len(active) != 1 || active[0].Code != "WORD" {
			t.Fatalf("expected only the active module, got %#v", active)
		}

		gotGroup, err := storage.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if gotGroup.DepartmentID == nil || *gotGroup.DepartmentID != department.ID {
			t.Fatalf("expected department link, got %#v", gotGroup)
		}

		roster, err := storage.ListParticipantsByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListParticipantsByGroup failed: %v", err)
		}
		if len(roster) != 2 || roster[0].Name != "Adam" {
			t.Fatalf("unexpected roster: %#v", roster)
		}
	})

	t.Run("maps constraint failures", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := newTestStorage(t)

		department, err := storage.CreateDepartment(ctx, persistence.Department{Code: "HR", Name: "People"})
		if err != nil {
			t.Fatalf("CreateDepartment failed: %v", err)
		}
		if _, err := storage.CreateGroup(ctx, persistence.Group{Name: "Recruiting", DepartmentID: &department.ID}); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		if err := storage.DeleteDepartment(ctx, department.ID); !errors.Is(err, persistence.ErrForeignKeyViolation) {
			t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
		}
		if _, err := storage.CreateDepartment(ctx, persistence.Department{Code: "HR", Name: "Duplicate"}); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		if _, err := storage.CreateGroup(ctx, persistence.Group{Name: "Recruiting", DepartmentID: &department.ID}); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected duplicate group name to be rejected, got %v", err)
		}
		if _, err := storage.GetModule(ctx, 999); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := storage.DeleteDepartment(ctx, 999); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBookingStore(t *testing.T) {
	t.Parallel()

	t.Run("commits sessions with attendances and documents", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := newTestStorage(t)
		module, group := seedCatalog(t, storage)

		var sessionID int64
		err := storage.WithinBookingTx(ctx, func(tx persistence.BookingTx) error {
			if _, err := tx.FindActiveSessionForUpdate(ctx, module.ID, slotDate, 9, 0); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected free slot, got %v", err)
			}
			first, err := tx.UpsertParticipant(ctx, persistence.Participant{GroupID: group.ID, Name: "Alice"})
			if err != nil {
				return err
			}
			again, err := tx.UpsertParticipant(ctx, persistence.Participant{GroupID: group.ID, Name: " alice ", Email: "alice@example.com"})
			if err != nil {
				return err
			}
			if first != again {
				t.Fatalf("expected upsert to match existing participant, got %d and %d", first, again)
			}
			if _, err := tx.UpsertParticipant(ctx, persistence.Participant{GroupID: group.ID, Name: "Bob"}); err != nil {
				return err
			}

			sessionID, err = tx.CreateSession(ctx, persistence.Session{
				ModuleID: module.ID, GroupID: group.ID, Date: slotDate, StartHour: 9, DurationMinutes: 90,
			})
			if err != nil {
				return err
			}
			ids, err := tx.ListParticipantIDs(ctx, group.ID)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, err := tx.CreateAttendance(ctx, sessionID, id); err != nil {
					return err
				}
			}
			created, err := tx.CreateAttendance(ctx, sessionID, ids[0])
			if err != nil {
				return err
			}
			if created {
				t.Fatalf("expected duplicate attendance to be ignored")
			}

			docID, err := tx.SaveDocument(ctx, persistence.Document{Filename: "agenda.pdf", MimeType: "application/pdf", Size: 3, Data: []byte("pdf")})
			if err != nil {
				return err
			}
			return tx.AssociateDocument(ctx, docID, sessionID)
		})
		if err != nil {
			t.Fatalf("WithinBookingTx failed: %v", err)
		}

		summary, err := storage.FindActiveSession(ctx, module.ID, slotDate, 9, 0)
		if err != nil {
			t.Fatalf("FindActiveSession failed: %v", err)
		}
		if summary.ID != sessionID || summary.GroupName != "Finance" || summary.ParticipantCount != 2 || summary.MaxParticipants != 10 {
			t.Fatalf("unexpected summary: %#v", summary)
		}

		roster, err := storage.ListParticipantsByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListParticipantsByGroup failed: %v", err)
		}
		if len(roster) != 2 || roster[0].Email != "alice@example.com" {
			t.Fatalf("unexpected roster after upsert: %#v", roster)
		}

		documents, err := storage.ListSessionDocuments(ctx, sessionID)
		if err != nil {
			t.Fatalf("ListSessionDocuments failed: %v", err)
		}
		if len(documents) != 1 || string(documents[0].Data) != "pdf" {
			t.Fatalf("unexpected documents: %#v", documents)
		}
	})

	t.Run("rolls back every write on error", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := newTestStorage(t)
		module, group := seedCatalog(t, storage)

		boom := errors.New("boom")
		err := storage.WithinBookingTx(ctx, func(tx persistence.BookingTx) error {
			if _, err := tx.UpsertParticipant(ctx, persistence.Participant{GroupID: group.ID, Name: "Carol"}); err != nil {
				return err
			}
			if _, err := tx.CreateSession(ctx, persistence.Session{
				ModuleID: module.ID, GroupID: group.ID, Date: slotDate, StartHour: 14, DurationMinutes: 60,
			}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if _, err := storage.FindActiveSession(ctx, module.ID, slotDate, 14, 0); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected session to be rolled back, got %v", err)
		}
		roster, err := storage.ListParticipantsByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListParticipantsByGroup failed: %v", err)
		}
		if len(roster) != 0 {
			t.Fatalf("expected participants to be rolled back, got %#v", roster)
		}
	})

	t.Run("rejects a second active session on the same slot", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := newTestStorage(t)
		module, group := seedCatalog(t, storage)

		book := func() (int64, error) {
			var id int64
			err := storage.WithinBookingTx(ctx, func(tx persistence.BookingTx) error {
				var err error
				id, err = tx.CreateSession(ctx, persistence.Session{
					ModuleID: module.ID, GroupID: group.ID, Date: slotDate, StartHour: 10, StartMinute: 30, DurationMinutes: 60,
				})
				return err
			})
			return id, err
		}

		first, err := book()
		if err != nil {
			t.Fatalf("first booking failed: %v", err)
		}
		if _, err := book(); !errors.Is(err, persistence.ErrSlotTaken) {
			t.Fatalf("expected ErrSlotTaken, got %v", err)
		}

		if err := storage.UpdateSessionStatus(ctx, first, persistence.SessionStatusCanceled); err != nil {
			t.Fatalf("UpdateSessionStatus failed: %v", err)
		}
		second, err := book()
		if err != nil {
			t.Fatalf("expected canceled slot to be bookable, got %v", err)
		}
		if err := storage.UpdateSessionStatus(ctx, first, persistence.SessionStatusConfirmed); !errors.Is(err, persistence.ErrSlotTaken) {
			t.Fatalf("expected reactivation to be rejected, got %v", err)
		}

		sessions, err := storage.ListSessions(ctx, persistence.SessionFilter{GroupID: &group.ID})
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(sessions) != 2 || sessions[1].ID != second {
			t.Fatalf("unexpected sessions: %#v", sessions)
		}
	})

	t.Run("serializes concurrent bookings of the same slot", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := newTestStorage(t)
		module, group := seedCatalog(t, storage)

		errTaken := errors.New("taken")
		const workers = 4
		results := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = storage.WithinBookingTx(ctx, func(tx persistence.BookingTx) error {
					if _, err := tx.FindActiveSessionForUpdate(ctx, module.ID, slotDate, 8, 0); err == nil {
						return errTaken
					} else if !errors.Is(err, persistence.ErrNotFound) {
						return err
					}
					_, err := tx.CreateSession(ctx, persistence.Session{
						ModuleID: module.ID, GroupID: group.ID, Date: slotDate, StartHour: 8, DurationMinutes: 60,
					})
					return err
				})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, errTaken), errors.Is(err, persistence.ErrSlotTaken):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("expected exactly one booking to succeed, got %d", succeeded)
		}
	})

	t.Run("global document failures do not abort the transaction", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := newTestStorage(t)
		module, group := seedCatalog(t, storage)

		global, err := storage.CreateDocument(ctx, persistence.Document{Filename: "rules.pdf", MimeType: "application/pdf", Data: []byte("r"), Size: 1, IsGlobal: true})
		if err != nil {
			t.Fatalf("CreateDocument failed: %v", err)
		}
		private, err := storage.CreateDocument(ctx, persistence.Document{Filename: "notes.pdf", MimeType: "application/pdf", Data: []byte("n"), Size: 1})
		if err != nil {
			t.Fatalf("CreateDocument failed: %v", err)
		}

		var sessionID int64
		err = storage.WithinBookingTx(ctx, func(tx persistence.BookingTx) error {
			var err error
			sessionID, err = tx.CreateSession(ctx, persistence.Session{
				ModuleID: module.ID, GroupID: group.ID, Date: slotDate, StartHour: 16, DurationMinutes: 60,
			})
			if err != nil {
				return err
			}
			if err := tx.AssociateGlobalDocument(ctx, 999, sessionID); !errors.Is(err, persistence.ErrNotFound) {
				t.Errorf("expected ErrNotFound for missing document, got %v", err)
			}
			if err := tx.AssociateGlobalDocument(ctx, private.ID, sessionID); !errors.Is(err, persistence.ErrConstraintViolation) {
				t.Errorf("expected ErrConstraintViolation for private document, got %v", err)
			}
			return tx.AssociateGlobalDocument(ctx, global.ID, sessionID)
		})
		if err != nil {
			t.Fatalf("WithinBookingTx failed: %v", err)
		}

		documents, err := storage.ListSessionDocuments(ctx, sessionID)
		if err != nil {
			t.Fatalf("ListSessionDocuments failed: %v", err)
		}
		if len(documents) != 1 || documents[0].ID != global.ID {
			t.Fatalf("expected only the global document to be linked, got %#v", documents)
		}

		globals, err := storage.ListGlobalDocuments(ctx)
		if err != nil {
			t.Fatalf("ListGlobalDocuments failed: %v", err)
		}
		if len(globals) != 1 {
			t.Fatalf("expected one global document, got %d", len(globals))
		}
	})
}

func TestWaitlistAndActivityRepositories(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := newTestStorage(t)
	module, group := seedCatalog(t, storage)

	var sessionID int64
	if err := storage.WithinBookingTx(ctx, func(tx persistence.BookingTx) error {
		var err error
		sessionID, err = tx.CreateSession(ctx, persistence.Session{
			ModuleID: module.ID, GroupID: group.ID, Date: slotDate, StartHour: 11, DurationMinutes: 60,
		})
		return err
	}); err != nil {
		t.Fatalf("failed to book session: %v", err)
	}

	entry, err := storage.CreateWaitlistEntry(ctx, persistence.WaitlistEntry{
		SessionID: sessionID, ContactName: "Dana", ContactEmail: "dana@example.com",
	})
	if err != nil {
		t.Fatalf("CreateWaitlistEntry failed: %v", err)
	}
	if entry.Status != persistence.WaitlistStatusWaiting {
		t.Fatalf("expected waiting status, got %q", entry.Status)
	}
	if err := storage.UpdateWaitlistStatus(ctx, entry.ID, persistence.WaitlistStatusContacted, time.Now()); err != nil {
		t.Fatalf("UpdateWaitlistStatus failed: %v", err)
	}
	if err := storage.UpdateWaitlistStatus(ctx, entry.ID, "bogus", time.Now()); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
	entries, err := storage.ListWaitlistEntries(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListWaitlistEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != persistence.WaitlistStatusContacted {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	for _, action := range []string{"draft_started", "booking_finalized"} {
		if _, err := storage.AppendActivity(ctx, persistence.ActivityLog{Action: action, EntityType: "session"}); err != nil {
			t.Fatalf("AppendActivity failed: %v", err)
		}
	}
	recent, err := storage.ListRecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentActivity failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Action != "booking_finalized" || recent[0].DetailsJSON != "{}" {
		t.Fatalf("unexpected activity: %#v", recent)
	}
}
