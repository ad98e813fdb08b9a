package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for slot dates on the wire and in storage.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidModule is returned when a slot does not reference a module.
	ErrInvalidModule = errors.New("scheduler: module is required")
	// ErrInvalidDate is returned when a slot date is missing or malformed.
	ErrInvalidDate = errors.New("scheduler: invalid date")
	// ErrInvalidTime is returned when hour or minute do not describe a time of day.
	ErrInvalidTime = errors.New("scheduler: invalid time of day")
)

// Slot identifies one candidate training session time for a module.
type Slot struct {
	ModuleID int64     `json:"module_id"`
	Date     time.Time `json:"date"`
	Hour     int       `json:"hour"`
	Minute   int       `json:"minute"`
}

// NewSlot parses the calendar date and builds a validated slot.
func NewSlot(moduleID int64, date string, hour, minute int) (Slot, error) {
	parsed, err := ParseDate(date)
	if err != nil {
		return Slot{}, err
	}
	slot := Slot{ModuleID: moduleID, Date: parsed, Hour: hour, Minute: minute}
	if err := slot.Validate(); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// ParseDate parses a YYYY-MM-DD calendar date into a UTC midnight instant.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidDate
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return parsed, nil
}

// Validate checks that the slot references a module and a valid time of day.
func (s Slot) Validate() error {
	if s.ModuleID <= 0 {
		return ErrInvalidModule
	}
	if s.Date.IsZero() {
		return ErrInvalidDate
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return ErrInvalidTime
	}
	return nil
}

// DateString formats the slot date using DateLayout.
func (s Slot) DateString() string {
	return s.Date.Format(DateLayout)
}

// TimeString formats the start time as HH:MM.
func (s Slot) TimeString() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// Start returns the instant the session begins, in the date's location.
func (s Slot) Start() time.Time {
	y, m, d := s.Date.Date()
	return time.Date(y, m, d, s.Hour, s.Minute, 0, 0, s.Date.Location())
}

// Key returns a stable identity for the slot tuple.
func (s Slot) Key() string {
	return fmt.Sprintf("%d|%s|%02d|%02d", s.ModuleID, s.DateString(), s.Hour, s.Minute)
}

// String renders the slot for messages and logs.
func (s Slot) String() string {
	return fmt.Sprintf("module %d on %s at %s", s.ModuleID, s.DateString(), s.TimeString())
}

// Occupant describes a non-canceled session holding a slot.
type Occupant struct {
	Slot      Slot
	SessionID int64
	GroupName string
}

// ConflictType describes why a candidate slot cannot be booked.
type ConflictType string

const (
	// ConflictTypeBooked indicates another session already holds the slot.
	ConflictTypeBooked ConflictType = "booked"
	// ConflictTypeDuplicate indicates the slot is requested twice in the same submission.
	ConflictTypeDuplicate ConflictType = "duplicate"
)

// Conflict details a rejected candidate slot that callers can present to users.
type Conflict struct {
	Slot      Slot
	Type      ConflictType
	SessionID int64
	GroupName string
}

// DetectConflicts reports candidates that collide with an occupied slot or
// repeat an earlier candidate. Results follow candidate order.
func DetectConflicts(occupied []Occupant, candidates []Slot) []Conflict {
	if len(candidates) == 0 {
		return nil
	}

	taken := make(map[string]Occupant, len(occupied))
	for _, occ := range occupied {
		taken[occ.Slot.Key()] = occ
	}

	seen := make(map[string]struct{}, len(candidates))
	var conflicts []Conflict
	for _, candidate := range candidates {
		key := candidate.Key()
		if _, dup := seen[key]; dup {
			conflicts = append(conflicts, Conflict{Slot: candidate, Type: ConflictTypeDuplicate})
			continue
		}
		seen[key] = struct{}{}

		if occ, ok := taken[key]; ok {
			conflicts = append(conflicts, Conflict{
				Slot:      candidate,
				Type:      ConflictTypeBooked,
				SessionID: occ.SessionID,
				GroupName: occ.GroupName,
			})
		}
	}
	return conflicts
}
