package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kaizen2025/Formation/internal/application"
	"github.com/kaizen2025/Formation/internal/scheduler"
)

type workflowStub struct {
	draft  application.Draft
	err    error
	result application.FinalizeResult

	gotID        string
	gotPrevious  string
	gotStep      application.DraftStep
	gotSlots     []scheduler.Slot
	gotDocuments []string
	gotInfo      string
	gotConfirm   bool
	restarted    string
}

func (s *workflowStub) StartDraft(_ context.Context, previousID string, groupID int64) (application.Draft, error) {
	s.gotPrevious = previousID
	if s.err != nil {
		return application.Draft{}, s.err
	}
	d := s.draft
	d.Group.ID = groupID
	return d, nil
}

func (s *workflowStub) Resume(_ context.Context, id string, step application.DraftStep) (application.Draft, error) {
	s.gotID, s.gotStep = id, step
	return s.draft, s.err
}

func (s *workflowStub) SelectSlots(_ context.Context, id string, slots []scheduler.Slot) (application.Draft, error) {
	s.gotID, s.gotSlots = id, slots
	return s.draft, s.err
}

func (s *workflowStub) SetParticipants(_ context.Context, id string, _ []application.ParticipantInput) (application.Draft, error) {
	s.gotID = id
	return s.draft, s.err
}

func (s *workflowStub) ParticipantBoundsFor(context.Context, string) (application.ParticipantBounds, error) {
	return application.ParticipantBounds{Min: 8, Max: 12}, nil
}

func (s *workflowStub) SetDocuments(_ context.Context, id string, input application.DocumentsInput) (application.Draft, error) {
	s.gotID = id
	s.gotInfo = input.AdditionalInfo
	for _, f := range input.Files {
		data, _ := io.ReadAll(f.Content)
		s.gotDocuments = append(s.gotDocuments, f.Filename+"="+string(data))
	}
	return s.draft, s.err
}

func (s *workflowStub) Confirm(_ context.Context, id string) (application.Draft, error) {
	s.gotID = id
	return s.draft, s.err
}

func (s *workflowStub) Finalize(_ context.Context, id string, sendConfirmation bool) (application.FinalizeResult, error) {
	s.gotID, s.gotConfirm = id, sendConfirmation
	return s.result, s.err
}

func (s *workflowStub) Restart(_ context.Context, id string) error {
	s.restarted = id
	return s.err
}

type availabilityStub struct {
	results []application.AvailabilityResult
	got     []scheduler.Slot
}

func (a *availabilityStub) CheckAll(_ context.Context, slots []scheduler.Slot) []application.AvailabilityResult {
	a.got = slots
	return a.results
}

func newTestRouter(workflow *workflowStub, availability *availabilityStub) http.Handler {
	return NewRouter(RouterConfig{
		Booking: NewBookingHandler(workflow, availability, BookingOptions{MaxUploadBytes: 1 << 20}, nil),
	})
}

func withDraftCookie(req *http.Request, id string) *http.Request {
	req.AddCookie(&http.Cookie{Name: DraftCookieName, Value: id})
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func draftCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == DraftCookieName {
			return c
		}
	}
	return nil
}

func TestBookingHandler_StartDraft(t *testing.T) {
	t.Parallel()

	workflow := &workflowStub{draft: application.Draft{ID: "draft-1", Step: application.StepGroupSelected}}
	router := newTestRouter(workflow, nil)

	req := withDraftCookie(httptest.NewRequest(http.MethodPost, "/drafts", strings.NewReader(`{"group_id":3}`)), "old-draft")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if workflow.gotPrevious != "old-draft" {
		t.Fatalf("expected previous draft to be passed, got %q", workflow.gotPrevious)
	}
	cookie := draftCookie(rec)
	if cookie == nil || cookie.Value != "draft-1" || !cookie.HttpOnly {
		t.Fatalf("expected draft cookie, got %+v", cookie)
	}
	var body draftDTO
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Group.ID != 3 || body.StepName != "group_selected" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestBookingHandler_ErrorMapping(t *testing.T) {
	t.Parallel()

	slot := scheduler.Slot{ModuleID: 5, Date: mustDate(t, "2025-06-10"), Hour: 9}
	tests := []struct {
		name          string
		err           error
		status        int
		code          string
		clearsCookie  bool
		checkResponse func(t *testing.T, body errorResponse)
	}{
		{
			name:   "validation",
			err:    &application.ValidationError{FieldErrors: map[string]string{"participants": "participant count must be between 8 and 12"}},
			status: http.StatusUnprocessableEntity,
			code:   "VALIDATION_FAILED",
			checkResponse: func(t *testing.T, body errorResponse) {
				if got := body.Errors["participants"]; got != "Le nombre de participants doit être compris entre 8 et 12." {
					t.Fatalf("unexpected translation %q", got)
				}
			},
		},
		{
			name:   "conflict",
			err:    &application.ConflictError{Conflicts: []scheduler.Conflict{{Slot: slot, Type: scheduler.ConflictTypeBooked, SessionID: 4, GroupName: "Equipe Accueil"}}},
			status: http.StatusConflict,
			code:   "SLOT_CONFLICT",
			checkResponse: func(t *testing.T, body errorResponse) {
				if !strings.Contains(body.Message, "Equipe Accueil") || len(body.Conflicts) != 1 {
					t.Fatalf("expected conflict naming the group, got %+v", body)
				}
				if c := body.Conflicts[0]; c.Date != "2025-06-10" || c.Time != "09:00" || c.SessionID != 4 {
					t.Fatalf("unexpected conflict %+v", c)
				}
			},
		},
		{
			name:   "step gating",
			err:    &application.StepError{Requested: application.StepDocumentsSet, Current: application.StepGroupSelected, Redirect: application.StepSlotsSelected},
			status: http.StatusConflict,
			code:   "STEP_REQUIRED",
			checkResponse: func(t *testing.T, body errorResponse) {
				if body.RedirectStep == nil || *body.RedirectStep != 2 {
					t.Fatalf("expected redirect to step 2, got %+v", body.RedirectStep)
				}
			},
		},
		{name: "expired", err: application.ErrDraftExpired, status: http.StatusGone, code: "DRAFT_EXPIRED", clearsCookie: true},
		{name: "missing", err: application.ErrDraftNotFound, status: http.StatusNotFound, code: "DRAFT_NOT_FOUND", clearsCookie: true},
		{name: "in progress", err: application.ErrFinalizeInProgress, status: http.StatusConflict, code: "FINALIZE_IN_PROGRESS"},
		{name: "transient", err: &application.TransientError{Op: "finalize booking", Err: errors.New("database is locked")}, status: http.StatusServiceUnavailable, code: "TEMPORARY_FAILURE"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router := newTestRouter(&workflowStub{err: tt.err}, nil)

			req := withDraftCookie(httptest.NewRequest(http.MethodPost, "/drafts/current/finalize", nil), "draft-1")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			cookie := draftCookie(rec)
			if tt.clearsCookie != (cookie != nil && cookie.MaxAge < 0) {
				t.Fatalf("unexpected cookie handling %+v", cookie)
			}
			body := decodeError(t, rec)
			if body.ErrorCode != tt.code || body.Message == "" {
				t.Fatalf("unexpected body %+v", body)
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, body)
			}
		})
	}
}

func TestBookingHandler_RequiresDraft(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&workflowStub{}, nil)

	for _, path := range []string{"/drafts/current", "/drafts/current/confirm"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "confirm") {
			method = http.MethodPost
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 without draft, got %d", path, rec.Code)
		}
	}
}

func TestBookingHandler_Current(t *testing.T) {
	t.Parallel()

	workflow := &workflowStub{draft: application.Draft{ID: "draft-1", Step: application.StepSlotsSelected}}
	router := newTestRouter(workflow, nil)

	req := httptest.NewRequest(http.MethodGet, "/drafts/current?step=3", nil)
	req.Header.Set("X-Booking-Draft", "draft-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if workflow.gotID != "draft-1" || workflow.gotStep != application.StepParticipantsSet {
		t.Fatalf("expected resume of step 3 for draft-1, got %q %d", workflow.gotID, workflow.gotStep)
	}
	var body draftDTO
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Bounds == nil || body.Bounds.Min != 8 || body.Bounds.Max != 12 {
		t.Fatalf("expected participant bounds, got %+v", body.Bounds)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, withDraftCookie(httptest.NewRequest(http.MethodGet, "/drafts/current?step=9", nil), "draft-1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown step, got %d", rec.Code)
	}
}

func TestBookingHandler_SelectSlots(t *testing.T) {
	t.Parallel()

	t.Run("parses slots", func(t *testing.T) {
		t.Parallel()
		workflow := &workflowStub{draft: application.Draft{ID: "draft-1", Step: application.StepSlotsSelected}}
		router := newTestRouter(workflow, nil)

		body := `{"slots":[{"module_id":5,"date":"2025-06-10","time":"09:00"},{"module_id":5,"date":"2025-06-10","time":"14:30"}]}`
		req := withDraftCookie(httptest.NewRequest(http.MethodPut, "/drafts/current/slots", strings.NewReader(body)), "draft-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(workflow.gotSlots) != 2 || workflow.gotSlots[1].Hour != 14 || workflow.gotSlots[1].Minute != 30 {
			t.Fatalf("unexpected slots %+v", workflow.gotSlots)
		}
	})

	t.Run("rejects malformed slots", func(t *testing.T) {
		t.Parallel()
		workflow := &workflowStub{}
		router := newTestRouter(workflow, nil)

		body := `{"slots":[{"module_id":5,"date":"10/06/2025","time":"25:00"}]}`
		req := withDraftCookie(httptest.NewRequest(http.MethodPut, "/drafts/current/slots", strings.NewReader(body)), "draft-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		errs := decodeError(t, rec).Errors
		if errs["slots[0].date"] != "La date est invalide." || errs["slots[0].time"] != "L'heure est invalide." {
			t.Fatalf("unexpected errors %v", errs)
		}
		if workflow.gotSlots != nil {
			t.Fatalf("workflow should not be called")
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(&workflowStub{}, nil)
		req := withDraftCookie(httptest.NewRequest(http.MethodPut, "/drafts/current/slots", strings.NewReader(`{"slot":[]}`)), "draft-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestBookingHandler_SetDocuments(t *testing.T) {
	t.Parallel()

	workflow := &workflowStub{draft: application.Draft{ID: "draft-1", Step: application.StepDocumentsSet}}
	router := newTestRouter(workflow, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "programme.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4"))
	_ = mw.WriteField("global_document_ids", "7")
	_ = mw.WriteField("additional_info", "Salle au rez-de-chaussée")
	_ = mw.Close()

	req := withDraftCookie(httptest.NewRequest(http.MethodPost, "/drafts/current/documents", &buf), "draft-1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(workflow.gotDocuments) != 1 || workflow.gotDocuments[0] != "programme.pdf=%PDF-1.4" {
		t.Fatalf("unexpected documents %v", workflow.gotDocuments)
	}
	if workflow.gotInfo != "Salle au rez-de-chaussée" {
		t.Fatalf("unexpected additional info %q", workflow.gotInfo)
	}

	rec = httptest.NewRecorder()
	req = withDraftCookie(httptest.NewRequest(http.MethodPost, "/drafts/current/documents", strings.NewReader("plain")), "draft-1")
	req.Header.Set("Content-Type", "text/plain")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non multipart body, got %d", rec.Code)
	}
}

func TestBookingHandler_Finalize(t *testing.T) {
	t.Parallel()

	workflow := &workflowStub{result: application.FinalizeResult{SessionIDs: []int64{11, 12}, Attendances: 18}}
	router := newTestRouter(workflow, nil)

	req := withDraftCookie(httptest.NewRequest(http.MethodPost, "/drafts/current/finalize", strings.NewReader(`{"send_confirmation":true}`)), "draft-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !workflow.gotConfirm || workflow.gotID != "draft-1" {
		t.Fatalf("expected confirmation flag for draft-1, got %v %q", workflow.gotConfirm, workflow.gotID)
	}
	if cookie := draftCookie(rec); cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("expected draft cookie to be cleared, got %+v", cookie)
	}
	var result application.FinalizeResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.SessionIDs) != 2 || result.Attendances != 18 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestBookingHandler_FinalizeEmptyBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		length int64
		status int
	}{
		{name: "sized empty", body: "", length: 0, status: http.StatusCreated},
		{name: "chunked empty", body: "", length: -1, status: http.StatusCreated},
		{name: "chunked whitespace", body: " \n", length: -1, status: http.StatusCreated},
		{name: "chunked malformed", body: "{", length: -1, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			workflow := &workflowStub{result: application.FinalizeResult{SessionIDs: []int64{11}}}
			router := newTestRouter(workflow, nil)

			req := withDraftCookie(httptest.NewRequest(http.MethodPost, "/drafts/current/finalize", strings.NewReader(tt.body)), "draft-1")
			req.ContentLength = tt.length
			if tt.length < 0 {
				req.TransferEncoding = []string{"chunked"}
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status == http.StatusCreated && (workflow.gotID != "draft-1" || workflow.gotConfirm) {
				t.Fatalf("expected finalize without confirmation, got %q %v", workflow.gotID, workflow.gotConfirm)
			}
		})
	}
}

func TestBookingHandler_Restart(t *testing.T) {
	t.Parallel()

	workflow := &workflowStub{}
	router := newTestRouter(workflow, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withDraftCookie(httptest.NewRequest(http.MethodDelete, "/drafts/current", nil), "draft-1"))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if workflow.restarted != "draft-1" {
		t.Fatalf("expected draft-1 to be restarted, got %q", workflow.restarted)
	}
}

func TestBookingHandler_Availability(t *testing.T) {
	t.Parallel()

	slot := scheduler.Slot{ModuleID: 5, Date: mustDate(t, "2025-06-10"), Hour: 9}
	availability := &availabilityStub{results: []application.AvailabilityResult{{
		Slot:         slot,
		Conflict:     &application.SessionSummary{ID: 3, GroupName: "Equipe Accueil", ParticipantCount: 9},
		WaitlistOpen: true,
	}}}
	router := newTestRouter(&workflowStub{}, availability)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/availability?module_id=5&date=2025-06-10&time=09:00", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(availability.got) != 1 || availability.got[0] != slot {
		t.Fatalf("unexpected slots checked %+v", availability.got)
	}
	var body struct {
		Results []availabilityDTO `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].Available || body.Results[0].Conflict.GroupName != "Equipe Accueil" || !body.Results[0].WaitlistOpen {
		t.Fatalf("unexpected results %+v", body.Results)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/availability", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without slots, got %d", rec.Code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&workflowStub{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drafts/current/slots", nil))

	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPut {
		t.Fatalf("expected 405 allowing PUT, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}
}

type waitlistStub struct {
	err   error
	input application.WaitlistInput
}

func (w *waitlistStub) Join(_ context.Context, input application.WaitlistInput) (application.WaitlistEntry, error) {
	w.input = input
	if w.err != nil {
		return application.WaitlistEntry{}, w.err
	}
	return application.WaitlistEntry{ID: 1, SessionID: input.SessionID, Status: application.WaitlistStatusWaiting}, nil
}

func (w *waitlistStub) List(context.Context, int64) ([]application.WaitlistEntry, error) {
	return nil, w.err
}

func (w *waitlistStub) UpdateStatus(_ context.Context, id int64, status string) (application.WaitlistEntry, error) {
	return application.WaitlistEntry{ID: id, Status: status}, w.err
}

func TestWaitlistHandler(t *testing.T) {
	t.Parallel()

	t.Run("join", func(t *testing.T) {
		t.Parallel()
		stub := &waitlistStub{}
		router := NewRouter(RouterConfig{Waitlist: NewWaitlistHandler(stub, nil)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/waitlist", strings.NewReader(`{"session_id":4,"contact_name":"Marc","contact_email":"marc@example.com"}`)))
		if rec.Code != http.StatusCreated || stub.input.SessionID != 4 {
			t.Fatalf("expected 201 for session 4, got %d %+v", rec.Code, stub.input)
		}
	})

	t.Run("translates validation errors", func(t *testing.T) {
		t.Parallel()
		stub := &waitlistStub{err: &application.ValidationError{FieldErrors: map[string]string{"session_id": "session is not open for a waitlist"}}}
		router := NewRouter(RouterConfig{Waitlist: NewWaitlistHandler(stub, nil)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/waitlist", strings.NewReader(`{"session_id":4}`)))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		if got := decodeError(t, rec).Errors["session_id"]; got != "Cette session n'accepte pas de liste d'attente." {
			t.Fatalf("unexpected message %q", got)
		}
	})

	t.Run("list requires session id", func(t *testing.T) {
		t.Parallel()
		router := NewRouter(RouterConfig{Waitlist: NewWaitlistHandler(&waitlistStub{}, nil)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/waitlist", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/waitlist?session_id=4", nil))
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Fatalf("expected empty list, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("update status", func(t *testing.T) {
		t.Parallel()
		router := NewRouter(RouterConfig{Waitlist: NewWaitlistHandler(&waitlistStub{}, nil)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/waitlist/9", strings.NewReader(`{"status":"contacted"}`)))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/waitlist/abc", strings.NewReader(`{"status":"contacted"}`)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for invalid id, got %d", rec.Code)
		}
	})
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := scheduler.ParseDate(value)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", value, err)
	}
	return d
}
