package application

import (
	"strings"
	"time"

	"github.com/kaizen2025/Formation/internal/scheduler"
)

// DraftStep marks how far a booking draft has progressed through the wizard.
type DraftStep int

const (
	StepEmpty DraftStep = iota
	StepGroupSelected
	StepSlotsSelected
	StepParticipantsSet
	StepDocumentsSet
	StepReadyToFinalize
)

// stepFinalize is the pseudo step reached by finalizing.
const stepFinalize = StepReadyToFinalize + 1

// String returns the step's wire name.
func (s DraftStep) String() string {
	switch s {
	case StepEmpty:
		return "empty"
	case StepGroupSelected:
		return "group_selected"
	case StepSlotsSelected:
		return "slots_selected"
	case StepParticipantsSet:
		return "participants_set"
	case StepDocumentsSet:
		return "documents_set"
	case StepReadyToFinalize:
		return "ready_to_finalize"
	default:
		return "finalize"
	}
}

// Draft accumulates wizard selections until the booking is finalized.
type Draft struct {
	ID                string             `json:"id"`
	Step              DraftStep          `json:"step"`
	Group             GroupSnapshot      `json:"group"`
	Slots             []scheduler.Slot   `json:"slots,omitempty"`
	Participants      []ParticipantInput `json:"participants,omitempty"`
	Files             []UploadedFileRef  `json:"files,omitempty"`
	GlobalDocumentIDs []int64            `json:"global_document_ids,omitempty"`
	AdditionalInfo    string             `json:"additional_info,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Require checks that page step may be accessed: every step before it must
// have been completed. The error names the earliest unmet step.
func (d Draft) Require(step DraftStep) error {
	if step <= StepGroupSelected {
		return nil
	}
	if d.Step >= step-1 {
		return nil
	}
	return &StepError{Requested: step, Current: d.Step, Redirect: d.Step + 1}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (d Draft) Clone() Draft {
	out := d
	out.Slots = append([]scheduler.Slot(nil), d.Slots...)
	out.Participants = append([]ParticipantInput(nil), d.Participants...)
	out.Files = append([]UploadedFileRef(nil), d.Files...)
	out.GlobalDocumentIDs = append([]int64(nil), d.GlobalDocumentIDs...)
	return out
}

// HasFile reports whether a file with the same name is already attached.
func (d Draft) HasFile(filename string) bool {
	_, ok := d.File(filename)
	return ok
}

// File returns the attached file named filename, compared case-insensitively.
func (d Draft) File(filename string) (UploadedFileRef, bool) {
	for _, f := range d.Files {
		if strings.EqualFold(f.Filename, filename) {
			return f, true
		}
	}
	return UploadedFileRef{}, false
}

// ModuleIDs lists the distinct modules of the selected slots in selection order.
func (d Draft) ModuleIDs() []int64 {
	seen := make(map[int64]struct{}, len(d.Slots))
	var ids []int64
	for _, slot := range d.Slots {
		if _, ok := seen[slot.ModuleID]; ok {
			continue
		}
		seen[slot.ModuleID] = struct{}{}
		ids = append(ids, slot.ModuleID)
	}
	return ids
}

// newDraft starts a draft for group at step 1.
func newDraft(id string, group Group, now time.Time) Draft {
	return Draft{
		ID:   id,
		Step: StepGroupSelected,
		Group: GroupSnapshot{
			ID:           group.ID,
			Name:         group.Name,
			ContactName:  group.ContactName,
			ContactEmail: group.ContactEmail,
			ContactPhone: group.ContactPhone,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// withSlots stores validated slots and moves the marker to step 2. Resubmitting
// an earlier step rewinds the marker but keeps later selections.
func (d Draft) withSlots(slots []scheduler.Slot, now time.Time) Draft {
	out := d.Clone()
	out.Slots = append([]scheduler.Slot(nil), slots...)
	out.Step = StepSlotsSelected
	out.UpdatedAt = now
	return out
}

func (d Draft) withParticipants(participants []ParticipantInput, now time.Time) Draft {
	out := d.Clone()
	out.Participants = append([]ParticipantInput(nil), participants...)
	out.Step = StepParticipantsSet
	out.UpdatedAt = now
	return out
}

// withDocuments appends files. An attached file sharing a name with one of
// them is replaced.
func (d Draft) withDocuments(files []UploadedFileRef, globalIDs []int64, info string, now time.Time) Draft {
	out := d.Clone()
	kept := out.Files[:0]
	for _, existing := range out.Files {
		replaced := false
		for _, f := range files {
			if strings.EqualFold(existing.Filename, f.Filename) {
				replaced = true
				break
			}
		}
		if !replaced {
			kept = append(kept, existing)
		}
	}
	out.Files = append(kept, files...)
	out.GlobalDocumentIDs = append([]int64(nil), globalIDs...)
	out.AdditionalInfo = info
	out.Step = StepDocumentsSet
	out.UpdatedAt = now
	return out
}

func (d Draft) confirmed(now time.Time) Draft {
	out := d.Clone()
	out.Step = StepReadyToFinalize
	out.UpdatedAt = now
	return out
}
