package persistence

import "time"

// Department represents an organisational unit that owns training groups.
type Department struct {
	ID          int64
	Code        string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Module represents a training module of the catalog.
type Module struct {
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

// Group represents a team booking training sessions.
type Group struct {
	ID           int64
	Name         string
	ContactName  string
	ContactEmail string
	ContactPhone string
	DepartmentID *int64
	Notes        string
	CreatedAt    time.Time
}

// Participant represents a member of a group's roster.
type Participant struct {
	ID        int64
	GroupID   int64
	Name      string
	Email     string
	Position  string
	CreatedAt time.Time
}

// Session status values.
const (
	SessionStatusConfirmed = "confirmed"
	SessionStatusCanceled  = "canceled"
	SessionStatusCompleted = "completed"
)

// Session represents a booked training session.
type Session struct {
	ID              int64
	ModuleID        int64
	GroupID         int64
	Date            time.Time
	StartHour       int
	StartMinute     int
	DurationMinutes int
	Status          string
	Location        string
	AdditionalInfo  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SessionSummary describes the session holding a slot for availability reporting.
type SessionSummary struct {
	ID               int64
	ModuleID         int64
	GroupID          int64
	GroupName        string
	Date             time.Time
	StartHour        int
	StartMinute      int
	Status           string
	ParticipantCount int
	MaxParticipants  int
}

// Attendance links a participant to a session.
type Attendance struct {
	ID              int64
	SessionID       int64
	ParticipantID   int64
	ParticipantName string
	Present       bool
	Feedback      string
	RecordedBy    string
	CreatedAt     time.Time
}

// Document represents a stored document with an inline payload.
type Document struct {
	ID          int64
	Filename    string
	MimeType    string
	Size        int64
	Data        []byte
	Checksum    string
	Description string
	IsGlobal    bool
	UploadedBy  string
	CreatedAt   time.Time
}

// Waitlist status values.
const (
	WaitlistStatusWaiting   = "waiting"
	WaitlistStatusContacted = "contacted"
	WaitlistStatusPromoted  = "promoted"
	WaitlistStatusCanceled  = "canceled"
)

// WaitlistEntry represents a contact waiting on a taken session.
type WaitlistEntry struct {
	ID           int64
	SessionID    int64
	ContactName  string
	ContactEmail string
	ContactPhone string
	Notes        string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActivityLog is an append-only audit record. ActorJSON and DetailsJSON hold
// encoded JSON documents.
type ActivityLog struct {
	ID          int64
	Action      string
	ActorJSON   string
	EntityType  string
	EntityID    string
	DetailsJSON string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
}
