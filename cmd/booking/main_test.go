package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kaizen2025/Formation/internal/application"
	"github.com/kaizen2025/Formation/internal/config"
	"github.com/kaizen2025/Formation/internal/scheduler"
	"github.com/kaizen2025/Formation/internal/testfixtures"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	return newTestAppWithFactory(t, testfixtures.NewServiceFactory())
}

// newTestAppWithFactory wires the app on the factory's clock and draft IDs.
func newTestAppWithFactory(t *testing.T, factory *testfixtures.ServiceFactory) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		SQLitePath:        filepath.Join(dir, "booking.db"),
		DraftTTL:          time.Hour,
		DraftStore:        config.DraftStoreMemory,
		UploadDir:         filepath.Join(dir, "uploads"),
		UploadMaxBytes:    1 << 20,
		UploadMaxAge:      2 * time.Hour,
		AllowedExtensions: config.DefaultAllowedExtensions,
		MinParticipants:   8,
		MaxParticipants:   12,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), cfg, factory.Clock.NowFunc(), factory.IDGenerator.NextFunc(), logger)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

type bookingFixture struct {
	module application.Module
	slot   scheduler.Slot
}

func seedModule(t *testing.T, a *app) bookingFixture {
	t.Helper()
	module, err := a.catalog.CreateModule(context.Background(), application.ModuleInput{
		Code:            "SEC-01",
		Name:            "Sécurité incendie",
		DurationMinutes: 90,
		MinParticipants: 2,
		MaxParticipants: 4,
	})
	if err != nil {
		t.Fatalf("CreateModule failed: %v", err)
	}
	slot, err := scheduler.NewSlot(module.ID, "2025-06-10", 9, 0)
	if err != nil {
		t.Fatalf("NewSlot failed: %v", err)
	}
	return bookingFixture{module: module, slot: slot}
}

func seedGroup(t *testing.T, a *app, name string) application.Group {
	t.Helper()
	group, err := a.catalog.CreateGroup(context.Background(), application.GroupInput{Name: name, ContactEmail: "contact@example.com"})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return group
}

func participants(names ...string) []application.ParticipantInput {
	out := make([]application.ParticipantInput, 0, len(names))
	for _, name := range names {
		out = append(out, application.ParticipantInput{Name: name})
	}
	return out
}

// confirmedDraft walks a draft through every wizard step.
func confirmedDraft(t *testing.T, a *app, groupID int64, slot scheduler.Slot, files ...string) application.Draft {
	t.Helper()
	ctx := context.Background()

	draft, err := a.booking.StartDraft(ctx, "", groupID)
	if err != nil {
		t.Fatalf("StartDraft failed: %v", err)
	}
	if _, err := a.booking.SelectSlots(ctx, draft.ID, []scheduler.Slot{slot}); err != nil {
		t.Fatalf("SelectSlots failed: %v", err)
	}
	if _, err := a.booking.SetParticipants(ctx, draft.ID, participants("Alice", "Bruno", "Chloé")); err != nil {
		t.Fatalf("SetParticipants failed: %v", err)
	}
	input := application.DocumentsInput{AdditionalInfo: "Salle B"}
	for _, name := range files {
		input.Files = append(input.Files, application.FileUpload{Filename: name, Content: strings.NewReader("%PDF-1.4\n%" + name)})
	}
	if _, err := a.booking.SetDocuments(ctx, draft.ID, input); err != nil {
		t.Fatalf("SetDocuments failed: %v", err)
	}
	confirmed, err := a.booking.Confirm(ctx, draft.ID)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	return confirmed
}

func TestApp_BookingFlow(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	fx := seedModule(t, a)
	group := seedGroup(t, a, "Equipe Accueil")

	draft := confirmedDraft(t, a, group.ID, fx.slot, "programme.pdf")
	result, err := a.booking.Finalize(ctx, draft.ID, true)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if len(result.SessionIDs) != 1 || len(result.DocumentIDs) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Attendances != 3 {
		t.Fatalf("expected three attendances, got %d", result.Attendances)
	}

	if _, err := a.booking.GetDraft(ctx, draft.ID); !errors.Is(err, application.ErrDraftNotFound) {
		t.Fatalf("expected finalized draft to be removed, got %v", err)
	}

	roster, err := a.catalog.ListParticipants(ctx, group.ID)
	if err != nil || len(roster) != 3 {
		t.Fatalf("expected roster of three, got %v (%v)", roster, err)
	}

	other := seedGroup(t, a, "Equipe Logistique")
	next, err := a.booking.StartDraft(ctx, "", other.ID)
	if err != nil {
		t.Fatalf("StartDraft failed: %v", err)
	}
	_, err = a.booking.SelectSlots(ctx, next.ID, []scheduler.Slot{fx.slot})
	var cErr *application.ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if got := cErr.First().GroupName; got != "Equipe Accueil" {
		t.Fatalf("expected conflict to name the holding group, got %q", got)
	}
}

func TestApp_ConcurrentFinalizeSameSlot(t *testing.T) {
	a := newTestApp(t)
	fx := seedModule(t, a)

	const drafts = 4
	ids := make([]string, 0, drafts)
	for i := 0; i < drafts; i++ {
		group := seedGroup(t, a, fmt.Sprintf("Equipe %d", i+1))
		ids = append(ids, confirmedDraft(t, a, group.ID, fx.slot).ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := a.booking.Finalize(context.Background(), id, false)
			mu.Lock()
			defer mu.Unlock()
			var cErr *application.ConflictError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &cErr):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if successes != 1 || conflicts != drafts-1 {
		t.Fatalf("expected one winner, got %d successes and %d conflicts", successes, conflicts)
	}
}

func TestApp_ParticipantBounds(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	fx := seedModule(t, a)
	group := seedGroup(t, a, "Equipe Accueil")

	draft, err := a.booking.StartDraft(ctx, "", group.ID)
	if err != nil {
		t.Fatalf("StartDraft failed: %v", err)
	}
	if _, err := a.booking.SelectSlots(ctx, draft.ID, []scheduler.Slot{fx.slot}); err != nil {
		t.Fatalf("SelectSlots failed: %v", err)
	}

	bounds, err := a.booking.ParticipantBoundsFor(ctx, draft.ID)
	if err != nil || bounds.Min != 2 || bounds.Max != 4 {
		t.Fatalf("expected module bounds 2..4, got %+v (%v)", bounds, err)
	}

	_, err = a.booking.SetParticipants(ctx, draft.ID, participants("A", "B", "C", "D", "E"))
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["participants"]; !ok {
		t.Fatalf("expected participants error, got %v", vErr.FieldErrors)
	}
}

func TestApp_StepGating(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	group := seedGroup(t, a, "Equipe Accueil")

	draft, err := a.booking.StartDraft(ctx, "", group.ID)
	if err != nil {
		t.Fatalf("StartDraft failed: %v", err)
	}

	_, err = a.booking.SetParticipants(ctx, draft.ID, participants("Alice", "Bruno"))
	var sErr *application.StepError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected StepError, got %v", err)
	}

	if _, err := a.booking.Finalize(ctx, draft.ID, false); !errors.As(err, &sErr) {
		t.Fatalf("expected StepError on finalize, got %v", err)
	}
}

func TestApp_HTTPStartDraft(t *testing.T) {
	a := newTestApp(t)
	group := seedGroup(t, a, "Equipe Accueil")
	server := httptest.NewServer(a.handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from healthz, got %d", resp.StatusCode)
	}

	body := bytes.NewBufferString(fmt.Sprintf(`{"group_id":%d}`, group.ID))
	resp, err = http.Post(server.URL+"/drafts", "application/json", body)
	if err != nil {
		t.Fatalf("POST /drafts failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	var payload struct {
		ID   string `json:"id"`
		Step int    `json:"step"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.ID == "" || payload.Step != int(application.StepGroupSelected) {
		t.Fatalf("unexpected draft payload %+v", payload)
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "booking_draft" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != payload.ID {
		t.Fatalf("expected draft cookie carrying %q, got %+v", payload.ID, cookie)
	}
}

func TestApp_DraftIdentifiersAndExpiry(t *testing.T) {
	factory := testfixtures.NewServiceFactory()
	a := newTestAppWithFactory(t, factory)
	ctx := context.Background()
	group := seedGroup(t, a, "Equipe Accueil")

	first, err := a.booking.StartDraft(ctx, "", group.ID)
	if err != nil {
		t.Fatalf("StartDraft failed: %v", err)
	}
	second, err := a.booking.StartDraft(ctx, first.ID, group.ID)
	if err != nil {
		t.Fatalf("StartDraft failed: %v", err)
	}
	if issued := factory.IDGenerator.Issued(); len(issued) != 2 || issued[0] != first.ID || issued[1] != second.ID {
		t.Fatalf("expected drafts to use generated ids, got %v", issued)
	}
	if _, err := a.booking.GetDraft(ctx, first.ID); !errors.Is(err, application.ErrDraftNotFound) {
		t.Fatalf("expected replaced draft to be gone, got %v", err)
	}

	factory.Clock.Expire(time.Hour)
	if _, err := a.booking.GetDraft(ctx, second.ID); !errors.Is(err, application.ErrDraftExpired) {
		t.Fatalf("expected idle draft to expire, got %v", err)
	}

	factory.IDGenerator.Reset()
	third, err := a.booking.StartDraft(ctx, "", group.ID)
	if err != nil {
		t.Fatalf("StartDraft failed: %v", err)
	}
	if third.ID != first.ID {
		t.Fatalf("expected restarted sequence to reuse %q, got %q", first.ID, third.ID)
	}
}

func TestApp_UploadsOutliveActiveDraft(t *testing.T) {
	factory := testfixtures.NewServiceFactory()
	a := newTestAppWithFactory(t, factory)
	ctx := context.Background()
	fx := seedModule(t, a)
	group := seedGroup(t, a, "Equipe Accueil")

	draft := confirmedDraft(t, a, group.ID, fx.slot, "programme.pdf")
	orphan, err := a.uploads.Store(ctx, strings.NewReader("%PDF-1.4 orphan"), "orphan.pdf")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	for _, step := range []time.Duration{50 * time.Minute, 50 * time.Minute} {
		factory.Clock.Advance(step)
		if _, err := a.booking.Confirm(ctx, draft.ID); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
	}
	factory.Clock.Advance(30 * time.Minute)

	removed, err := a.janitor.SweepNow(ctx)
	if err != nil {
		t.Fatalf("SweepNow failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the orphan to be swept, removed %d", removed)
	}
	if _, err := a.uploads.Read(ctx, orphan.Handle); err == nil {
		t.Fatalf("expected orphan upload to be gone")
	}

	result, err := a.booking.Finalize(ctx, draft.ID, false)
	if err != nil {
		t.Fatalf("Finalize failed after sweep: %v", err)
	}
	if len(result.DocumentIDs) != 1 {
		t.Fatalf("expected the draft's document to be stored, got %+v", result)
	}
}

func TestApp_CancelFreesSlot(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	fx := seedModule(t, a)
	first := seedGroup(t, a, "Equipe Accueil")

	result, err := a.booking.Finalize(ctx, confirmedDraft(t, a, first.ID, fx.slot, "programme.pdf").ID, false)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	sessionID := result.SessionIDs[0]

	detail, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(detail.Attendances) != 3 || detail.Attendances[0].ParticipantName == "" || len(detail.Documents) != 1 {
		t.Fatalf("unexpected session detail %+v", detail)
	}
	doc, err := a.sessions.Document(ctx, detail.Documents[0].ID)
	if err != nil || !strings.HasPrefix(string(doc.Data), "%PDF-1.4") {
		t.Fatalf("expected stored document to verify, got %q (%v)", doc.Data, err)
	}

	if got := a.availability.CheckAvailability(ctx, fx.slot); got.Available {
		t.Fatalf("expected booked slot to be unavailable")
	}
	if _, err := a.sessions.Cancel(ctx, sessionID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got := a.availability.CheckAvailability(ctx, fx.slot); !got.Available || got.Err != nil {
		t.Fatalf("expected canceled slot to be available, got %+v", got)
	}

	second := seedGroup(t, a, "Equipe Logistique")
	rebooked, err := a.booking.Finalize(ctx, confirmedDraft(t, a, second.ID, fx.slot).ID, false)
	if err != nil {
		t.Fatalf("expected freed slot to be bookable, got %v", err)
	}

	_, err = a.sessions.UpdateStatus(ctx, sessionID, application.SessionStatusConfirmed)
	var cErr *application.ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected reconfirming a retaken slot to conflict, got %v", err)
	}

	group := second.ID
	sessions, err := a.sessions.List(ctx, application.SessionFilter{GroupID: &group})
	if err != nil || len(sessions) != 1 || sessions[0].ID != rebooked.SessionIDs[0] {
		t.Fatalf("expected the rebooked session for the second group, got %+v (%v)", sessions, err)
	}
}

func TestApp_HTTPSessionRoutes(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	fx := seedModule(t, a)
	group := seedGroup(t, a, "Equipe Accueil")
	result, err := a.booking.Finalize(ctx, confirmedDraft(t, a, group.ID, fx.slot).ID, false)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	server := httptest.NewServer(a.handler)
	defer server.Close()

	req, err := http.NewRequest(http.MethodPatch, fmt.Sprintf("%s/sessions/%d", server.URL, result.SessionIDs[0]), strings.NewReader(`{"status":"canceled"}`))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH /sessions failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("%s/sessions?group_id=%d", server.URL, group.ID))
	if err != nil {
		t.Fatalf("GET /sessions failed: %v", err)
	}
	defer resp.Body.Close()
	var sessions []application.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != application.SessionStatusCanceled {
		t.Fatalf("expected one canceled session, got %+v", sessions)
	}
}
