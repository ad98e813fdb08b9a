package application

import (
	"io"
	"time"

	"github.com/kaizen2025/Formation/internal/scheduler"
)

// Department represents an organisational unit owning training groups.
type Department struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Module represents a training module of the catalog. Zero participant bounds
// fall back to the service-wide defaults.
type Module struct {
	ID              int64     `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	MinParticipants int       `json:"min_participants"`
	MaxParticipants int       `json:"max_participants"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Group represents a team booking training sessions.
type Group struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	DepartmentID *int64    `json:"department_id,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Participant is a member of a group's roster.
type Participant struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"group_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Position  string    `json:"position,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary describes the non-canceled session holding a slot.
type SessionSummary struct {
	ID               int64          `json:"id"`
	GroupID          int64          `json:"group_id"`
	GroupName        string         `json:"group_name"`
	Slot             scheduler.Slot `json:"slot"`
	Status           string         `json:"status"`
	ParticipantCount int            `json:"participant_count"`
	MaxParticipants  int            `json:"max_participants"`
}

// Session status values.
const (
	SessionStatusConfirmed = "confirmed"
	SessionStatusCanceled  = "canceled"
	SessionStatusCompleted = "completed"
)

// Session is a booked training session.
type Session struct {
	ID              int64          `json:"id"`
	GroupID         int64          `json:"group_id"`
	Slot            scheduler.Slot `json:"slot"`
	DurationMinutes int            `json:"duration_minutes"`
	Status          string         `json:"status"`
	Location        string         `json:"location,omitempty"`
	AdditionalInfo  string         `json:"additional_info,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// SessionFilter narrows session listings. Nil fields match everything.
type SessionFilter struct {
	GroupID  *int64
	ModuleID *int64
	From     *time.Time
	To       *time.Time
}

// Attendance records one participant's presence at a session.
type Attendance struct {
	ID              int64     `json:"id"`
	SessionID       int64     `json:"session_id"`
	ParticipantID   int64     `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	Present         bool      `json:"present"`
	Feedback        string    `json:"feedback,omitempty"`
	RecordedBy      string    `json:"recorded_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SessionDetail is a session with its roster and linked documents.
type SessionDetail struct {
	Session
	Attendances []Attendance `json:"attendances"`
	Documents   []Document   `json:"documents"`
}

// NewSession carries the values written when a session is created.
type NewSession struct {
	GroupID         int64
	Slot            scheduler.Slot
	DurationMinutes int
	AdditionalInfo  string
	CreatedAt       time.Time
}

// Document is a stored document. Data is only populated when the payload is needed.
type Document struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"-"`
	Checksum    string    `json:"checksum,omitempty"`
	Description string    `json:"description,omitempty"`
	IsGlobal    bool      `json:"is_global"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Waitlist status values.
const (
	WaitlistStatusWaiting   = "waiting"
	WaitlistStatusContacted = "contacted"
	WaitlistStatusPromoted  = "promoted"
	WaitlistStatusCanceled  = "canceled"
)

// WaitlistEntry is a contact waiting on a taken session.
type WaitlistEntry struct {
	ID           int64     `json:"id"`
	SessionID    int64     `json:"session_id"`
	ContactName  string    `json:"contact_name"`
	ContactEmail string    `json:"contact_email"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Activity action names.
const (
	ActionDraftStarted          = "draft_started"
	ActionBookingFinalized      = "booking_finalized"
	ActionBookingConflict       = "booking_conflict"
	ActionConfirmationSent      = "confirmation_email_sent"
	ActionConfirmationFailed    = "confirmation_email_failed"
	ActionWaitlistAdded         = "waitlist_added"
	ActionWaitlistStatusChanged = "waitlist_status_changed"
	ActionSessionStatusChanged  = "session_status_changed"
	ActionAttendanceRecorded    = "attendance_recorded"
)

// ActivityEntry is an append-only audit record.
type ActivityEntry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	Actor      map[string]any `json:"actor,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// GroupSnapshot is the group information copied into a draft at step 1.
type GroupSnapshot struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

// ParticipantInput describes a participant entered in the wizard.
type ParticipantInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Position string `json:"position,omitempty" validate:"max=200"`
}

// UploadedFileRef points at a file held by the temporary upload store.
type UploadedFileRef struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Handle      string `json:"handle"`
}

// FileUpload is one file submitted at the documents step.
type FileUpload struct {
	Filename string
	Content  io.Reader
}

// DocumentsInput is the payload of the documents step.
type DocumentsInput struct {
	Files             []FileUpload
	GlobalDocumentIDs []int64
	AdditionalInfo    string
}

// ParticipantBounds is the inclusive range of participants a booking accepts.
type ParticipantBounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefaultParticipantBounds are used when neither configuration nor module sets a bound.
var DefaultParticipantBounds = ParticipantBounds{Min: 8, Max: 12}

// DefaultSessionDuration applies when a module has no duration configured.
const DefaultSessionDuration = 60
