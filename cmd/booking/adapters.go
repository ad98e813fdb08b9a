package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaizen2025/Formation/internal/application"
	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/scheduler"
)

type catalogRepositoryAdapter struct {
	repo persistence.CatalogRepository
}

func newCatalogRepositoryAdapter(repo persistence.CatalogRepository) *catalogRepositoryAdapter {
	return &catalogRepositoryAdapter{repo: repo}
}

func (a *catalogRepositoryAdapter) CreateDepartment(ctx context.Context, department application.Department) (application.Department, error) {
	created, err := a.repo.CreateDepartment(ctx, persistence.Department{
		Code:        department.Code,
		Name:        department.Name,
		Description: department.Description,
		CreatedAt:   department.CreatedAt,
	})
	if err != nil {
		return application.Department{}, err
	}
	return toApplicationDepartment(created), nil
}

func (a *catalogRepositoryAdapter) ListDepartments(ctx context.Context) ([]application.Department, error) {
	models, err := a.repo.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.Department, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationDepartment(model))
	}
	return out, nil
}

func (a *catalogRepositoryAdapter) DeleteDepartment(ctx context.Context, id int64) error {
	return a.repo.DeleteDepartment(ctx, id)
}

func (a *catalogRepositoryAdapter) CreateModule(ctx context.Context, module application.Module) (application.Module, error) {
	created, err := a.repo.CreateModule(ctx, toPersistenceModule(module))
	if err != nil {
		return application.Module{}, err
	}
	return toApplicationModule(created), nil
}

func (a *catalogRepositoryAdapter) GetModule(ctx context.Context, id int64) (application.Module, error) {
	model, err := a.repo.GetModule(ctx, id)
	if err != nil {
		return application.Module{}, err
	}
	return toApplicationModule(model), nil
}

func (a *catalogRepositoryAdapter) ListModules(ctx context.Context, activeOnly bool) ([]application.Module, error) {
	models, err := a.repo.ListModules(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]application.Module, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationModule(model))
	}
	return out, nil
}

func (a *catalogRepositoryAdapter) CreateGroup(ctx context.Context, group application.Group) (application.Group, error) {
	created, err := a.repo.CreateGroup(ctx, toPersistenceGroup(group))
	if err != nil {
		return application.Group{}, err
	}
	return toApplicationGroup(created), nil
}

func (a *catalogRepositoryAdapter) GetGroup(ctx context.Context, id int64) (application.Group, error) {
	model, err := a.repo.GetGroup(ctx, id)
	if err != nil {
		return application.Group{}, err
	}
	return toApplicationGroup(model), nil
}

func (a *catalogRepositoryAdapter) ListGroups(ctx context.Context) ([]application.Group, error) {
	models, err := a.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.Group, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationGroup(model))
	}
	return out, nil
}

func (a *catalogRepositoryAdapter) CreateParticipant(ctx context.Context, participant application.Participant) (application.Participant, error) {
	created, err := a.repo.CreateParticipant(ctx, persistence.Participant{
		GroupID:   participant.GroupID,
		Name:      participant.Name,
		Email:     participant.Email,
		Position:  participant.Position,
		CreatedAt: participant.CreatedAt,
	})
	if err != nil {
		return application.Participant{}, err
	}
	return toApplicationParticipant(created), nil
}

func (a *catalogRepositoryAdapter) ListParticipantsByGroup(ctx context.Context, groupID int64) ([]application.Participant, error) {
	models, err := a.repo.ListParticipantsByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]application.Participant, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationParticipant(model))
	}
	return out, nil
}

type documentRepositoryAdapter struct {
	repo persistence.DocumentRepository
}

func newDocumentRepositoryAdapter(repo persistence.DocumentRepository) *documentRepositoryAdapter {
	return &documentRepositoryAdapter{repo: repo}
}

func (a *documentRepositoryAdapter) CreateDocument(ctx context.Context, document application.Document) (application.Document, error) {
	created, err := a.repo.CreateDocument(ctx, toPersistenceDocument(document))
	if err != nil {
		return application.Document{}, err
	}
	return toApplicationDocument(created), nil
}

func (a *documentRepositoryAdapter) ListGlobalDocuments(ctx context.Context) ([]application.Document, error) {
	models, err := a.repo.ListGlobalDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.Document, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationDocument(model))
	}
	return out, nil
}

type sessionLookupAdapter struct {
	repo persistence.SessionRepository
}

func newSessionLookupAdapter(repo persistence.SessionRepository) *sessionLookupAdapter {
	return &sessionLookupAdapter{repo: repo}
}

func (a *sessionLookupAdapter) FindActiveSession(ctx context.Context, slot scheduler.Slot) (application.SessionSummary, error) {
	summary, err := a.repo.FindActiveSession(ctx, slot.ModuleID, slot.Date, slot.Hour, slot.Minute)
	if err != nil {
		return application.SessionSummary{}, err
	}
	return toApplicationSummary(summary), nil
}

type waitlistRepositoryAdapter struct {
	sessions persistence.SessionRepository
	entries  persistence.WaitlistRepository
}

func newWaitlistRepositoryAdapter(sessions persistence.SessionRepository, entries persistence.WaitlistRepository) *waitlistRepositoryAdapter {
	return &waitlistRepositoryAdapter{sessions: sessions, entries: entries}
}

func (a *waitlistRepositoryAdapter) GetSession(ctx context.Context, id int64) (application.Session, error) {
	model, err := a.sessions.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(model), nil
}

func (a *waitlistRepositoryAdapter) CreateWaitlistEntry(ctx context.Context, entry application.WaitlistEntry) (application.WaitlistEntry, error) {
	created, err := a.entries.CreateWaitlistEntry(ctx, persistence.WaitlistEntry{
		SessionID:    entry.SessionID,
		ContactName:  entry.ContactName,
		ContactEmail: entry.ContactEmail,
		ContactPhone: entry.ContactPhone,
		Notes:        entry.Notes,
		Status:       entry.Status,
		CreatedAt:    entry.CreatedAt,
		UpdatedAt:    entry.UpdatedAt,
	})
	if err != nil {
		return application.WaitlistEntry{}, err
	}
	return toApplicationWaitlistEntry(created), nil
}

func (a *waitlistRepositoryAdapter) GetWaitlistEntry(ctx context.Context, id int64) (application.WaitlistEntry, error) {
	model, err := a.entries.GetWaitlistEntry(ctx, id)
	if err != nil {
		return application.WaitlistEntry{}, err
	}
	return toApplicationWaitlistEntry(model), nil
}

func (a *waitlistRepositoryAdapter) ListWaitlistEntries(ctx context.Context, sessionID int64) ([]application.WaitlistEntry, error) {
	models, err := a.entries.ListWaitlistEntries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]application.WaitlistEntry, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationWaitlistEntry(model))
	}
	return out, nil
}

func (a *waitlistRepositoryAdapter) UpdateWaitlistStatus(ctx context.Context, id int64, status string, updatedAt time.Time) error {
	return a.entries.UpdateWaitlistStatus(ctx, id, status, updatedAt)
}

type sessionRepositoryAdapter struct {
	sessions  persistence.SessionRepository
	documents persistence.DocumentRepository
}

func newSessionRepositoryAdapter(sessions persistence.SessionRepository, documents persistence.DocumentRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{sessions: sessions, documents: documents}
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, id int64) (application.Session, error) {
	model, err := a.sessions.GetSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(model), nil
}

func (a *sessionRepositoryAdapter) ListSessions(ctx context.Context, filter application.SessionFilter) ([]application.Session, error) {
	models, err := a.sessions.ListSessions(ctx, persistence.SessionFilter{
		GroupID:  filter.GroupID,
		ModuleID: filter.ModuleID,
		From:     filter.From,
		To:       filter.To,
	})
	if err != nil {
		return nil, err
	}
	out := make([]application.Session, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationSession(model))
	}
	return out, nil
}

func (a *sessionRepositoryAdapter) UpdateSessionStatus(ctx context.Context, id int64, status string) error {
	return a.sessions.UpdateSessionStatus(ctx, id, status)
}

func (a *sessionRepositoryAdapter) ListAttendances(ctx context.Context, sessionID int64) ([]application.Attendance, error) {
	models, err := a.sessions.ListAttendances(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]application.Attendance, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationAttendance(model))
	}
	return out, nil
}

func (a *sessionRepositoryAdapter) GetAttendance(ctx context.Context, id int64) (application.Attendance, error) {
	model, err := a.sessions.GetAttendance(ctx, id)
	if err != nil {
		return application.Attendance{}, err
	}
	return toApplicationAttendance(model), nil
}

func (a *sessionRepositoryAdapter) UpdateAttendance(ctx context.Context, attendance application.Attendance) error {
	return a.sessions.UpdateAttendance(ctx, persistence.Attendance{
		ID:         attendance.ID,
		Present:    attendance.Present,
		Feedback:   attendance.Feedback,
		RecordedBy: attendance.RecordedBy,
	})
}

func (a *sessionRepositoryAdapter) ListSessionDocuments(ctx context.Context, sessionID int64) ([]application.Document, error) {
	models, err := a.documents.ListSessionDocuments(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]application.Document, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationDocument(model))
	}
	return out, nil
}

func (a *sessionRepositoryAdapter) GetDocument(ctx context.Context, id int64) (application.Document, error) {
	model, err := a.documents.GetDocument(ctx, id)
	if err != nil {
		return application.Document{}, err
	}
	return toApplicationDocument(model), nil
}

type activityRepositoryAdapter struct {
	repo persistence.ActivityRepository
}

func newActivityRepositoryAdapter(repo persistence.ActivityRepository) *activityRepositoryAdapter {
	return &activityRepositoryAdapter{repo: repo}
}

func (a *activityRepositoryAdapter) AppendActivity(ctx context.Context, entry application.ActivityEntry) (application.ActivityEntry, error) {
	actor, err := encodeJSONObject(entry.Actor)
	if err != nil {
		return application.ActivityEntry{}, fmt.Errorf("encode actor: %w", err)
	}
	details, err := encodeJSONObject(entry.Details)
	if err != nil {
		return application.ActivityEntry{}, fmt.Errorf("encode details: %w", err)
	}
	created, err := a.repo.AppendActivity(ctx, persistence.ActivityLog{
		Action:      entry.Action,
		ActorJSON:   actor,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		DetailsJSON: details,
		IPAddress:   entry.IPAddress,
		UserAgent:   entry.UserAgent,
		CreatedAt:   entry.CreatedAt,
	})
	if err != nil {
		return application.ActivityEntry{}, err
	}
	entry.ID = created.ID
	entry.CreatedAt = created.CreatedAt
	return entry, nil
}

func (a *activityRepositoryAdapter) ListRecentActivity(ctx context.Context, limit int) ([]application.ActivityEntry, error) {
	models, err := a.repo.ListRecentActivity(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]application.ActivityEntry, 0, len(models))
	for _, model := range models {
		out = append(out, application.ActivityEntry{
			ID:         model.ID,
			Action:     model.Action,
			Actor:      decodeJSONObject(model.ActorJSON),
			EntityType: model.EntityType,
			EntityID:   model.EntityID,
			Details:    decodeJSONObject(model.DetailsJSON),
			IPAddress:  model.IPAddress,
			UserAgent:  model.UserAgent,
			CreatedAt:  model.CreatedAt,
		})
	}
	return out, nil
}

type bookingStoreAdapter struct {
	store persistence.BookingStore
}

func newBookingStoreAdapter(store persistence.BookingStore) *bookingStoreAdapter {
	return &bookingStoreAdapter{store: store}
}

func (a *bookingStoreAdapter) WithinBookingTx(ctx context.Context, fn func(tx application.BookingTx) error) error {
	return a.store.WithinBookingTx(ctx, func(tx persistence.BookingTx) error {
		return fn(bookingTxAdapter{tx: tx})
	})
}

type bookingTxAdapter struct {
	tx persistence.BookingTx
}

func (a bookingTxAdapter) FindActiveSessionForUpdate(ctx context.Context, slot scheduler.Slot) (application.SessionSummary, error) {
	summary, err := a.tx.FindActiveSessionForUpdate(ctx, slot.ModuleID, slot.Date, slot.Hour, slot.Minute)
	if err != nil {
		return application.SessionSummary{}, err
	}
	return toApplicationSummary(summary), nil
}

func (a bookingTxAdapter) GetModule(ctx context.Context, id int64) (application.Module, error) {
	model, err := a.tx.GetModule(ctx, id)
	if err != nil {
		return application.Module{}, err
	}
	return toApplicationModule(model), nil
}

func (a bookingTxAdapter) UpsertParticipant(ctx context.Context, groupID int64, participant application.ParticipantInput) (int64, error) {
	return a.tx.UpsertParticipant(ctx, persistence.Participant{
		GroupID:  groupID,
		Name:     participant.Name,
		Email:    participant.Email,
		Position: participant.Position,
	})
}

func (a bookingTxAdapter) ListParticipantIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return a.tx.ListParticipantIDs(ctx, groupID)
}

func (a bookingTxAdapter) CreateSession(ctx context.Context, session application.NewSession) (int64, error) {
	return a.tx.CreateSession(ctx, persistence.Session{
		ModuleID:        session.Slot.ModuleID,
		GroupID:         session.GroupID,
		Date:            session.Slot.Date,
		StartHour:       session.Slot.Hour,
		StartMinute:     session.Slot.Minute,
		DurationMinutes: session.DurationMinutes,
		Status:          persistence.SessionStatusConfirmed,
		AdditionalInfo:  session.AdditionalInfo,
		CreatedAt:       session.CreatedAt,
	})
}

func (a bookingTxAdapter) CreateAttendance(ctx context.Context, sessionID, participantID int64) (bool, error) {
	return a.tx.CreateAttendance(ctx, sessionID, participantID)
}

func (a bookingTxAdapter) SaveDocument(ctx context.Context, document application.Document) (int64, error) {
	return a.tx.SaveDocument(ctx, toPersistenceDocument(document))
}

func (a bookingTxAdapter) AssociateDocument(ctx context.Context, documentID, sessionID int64) error {
	return a.tx.AssociateDocument(ctx, documentID, sessionID)
}

func (a bookingTxAdapter) AssociateGlobalDocument(ctx context.Context, documentID, sessionID int64) error {
	return a.tx.AssociateGlobalDocument(ctx, documentID, sessionID)
}

func slotOf(moduleID int64, date time.Time, hour, minute int) scheduler.Slot {
	return scheduler.Slot{ModuleID: moduleID, Date: date, Hour: hour, Minute: minute}
}

func toApplicationDepartment(model persistence.Department) application.Department {
	return application.Department{
		ID:          model.ID,
		Code:        model.Code,
		Name:        model.Name,
		Description: model.Description,
		CreatedAt:   model.CreatedAt,
	}
}

func toApplicationModule(model persistence.Module) application.Module {
	return application.Module{
		ID:              model.ID,
		Code:            model.Code,
		Name:            model.Name,
		Description:     model.Description,
		DurationMinutes: model.DurationMinutes,
		MinParticipants: model.MinParticipants,
		MaxParticipants: model.MaxParticipants,
		Active:          model.Active,
		CreatedAt:       model.CreatedAt,
	}
}

func toPersistenceModule(module application.Module) persistence.Module {
	return persistence.Module{
		ID:              module.ID,
		Code:            module.Code,
		Name:            module.Name,
		Description:     module.Description,
		DurationMinutes: module.DurationMinutes,
		MinParticipants: module.MinParticipants,
		MaxParticipants: module.MaxParticipants,
		Active:          module.Active,
		CreatedAt:       module.CreatedAt,
	}
}

func toApplicationGroup(model persistence.Group) application.Group {
	return application.Group{
		ID:           model.ID,
		Name:         model.Name,
		ContactName:  model.ContactName,
		ContactEmail: model.ContactEmail,
		ContactPhone: model.ContactPhone,
		DepartmentID: cloneInt64(model.DepartmentID),
		Notes:        model.Notes,
		CreatedAt:    model.CreatedAt,
	}
}

func toPersistenceGroup(group application.Group) persistence.Group {
	return persistence.Group{
		ID:           group.ID,
		Name:         group.Name,
		ContactName:  group.ContactName,
		ContactEmail: group.ContactEmail,
		ContactPhone: group.ContactPhone,
		DepartmentID: cloneInt64(group.DepartmentID),
		Notes:        group.Notes,
		CreatedAt:    group.CreatedAt,
	}
}

func toApplicationParticipant(model persistence.Participant) application.Participant {
	return application.Participant{
		ID:        model.ID,
		GroupID:   model.GroupID,
		Name:      model.Name,
		Email:     model.Email,
		Position:  model.Position,
		CreatedAt: model.CreatedAt,
	}
}

func toApplicationSummary(model persistence.SessionSummary) application.SessionSummary {
	return application.SessionSummary{
		ID:               model.ID,
		GroupID:          model.GroupID,
		GroupName:        model.GroupName,
		Slot:             slotOf(model.ModuleID, model.Date, model.StartHour, model.StartMinute),
		Status:           model.Status,
		ParticipantCount: model.ParticipantCount,
		MaxParticipants:  model.MaxParticipants,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:              model.ID,
		GroupID:         model.GroupID,
		Slot:            slotOf(model.ModuleID, model.Date, model.StartHour, model.StartMinute),
		DurationMinutes: model.DurationMinutes,
		Status:          model.Status,
		Location:        model.Location,
		AdditionalInfo:  model.AdditionalInfo,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func toApplicationAttendance(model persistence.Attendance) application.Attendance {
	return application.Attendance{
		ID:              model.ID,
		SessionID:       model.SessionID,
		ParticipantID:   model.ParticipantID,
		ParticipantName: model.ParticipantName,
		Present:         model.Present,
		Feedback:        model.Feedback,
		RecordedBy:      model.RecordedBy,
		CreatedAt:       model.CreatedAt,
	}
}

func toApplicationDocument(model persistence.Document) application.Document {
	return application.Document{
		ID:          model.ID,
		Filename:    model.Filename,
		MimeType:    model.MimeType,
		Size:        model.Size,
		Data:        model.Data,
		Checksum:    model.Checksum,
		Description: model.Description,
		IsGlobal:    model.IsGlobal,
		UploadedBy:  model.UploadedBy,
		CreatedAt:   model.CreatedAt,
	}
}

func toPersistenceDocument(document application.Document) persistence.Document {
	return persistence.Document{
		ID:          document.ID,
		Filename:    document.Filename,
		MimeType:    document.MimeType,
		Size:        document.Size,
		Data:        document.Data,
		Checksum:    document.Checksum,
		Description: document.Description,
		IsGlobal:    document.IsGlobal,
		UploadedBy:  document.UploadedBy,
		CreatedAt:   document.CreatedAt,
	}
}

func toApplicationWaitlistEntry(model persistence.WaitlistEntry) application.WaitlistEntry {
	return application.WaitlistEntry{
		ID:           model.ID,
		SessionID:    model.SessionID,
		ContactName:  model.ContactName,
		ContactEmail: model.ContactEmail,
		ContactPhone: model.ContactPhone,
		Notes:        model.Notes,
		Status:       model.Status,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

func encodeJSONObject(value map[string]any) (string, error) {
	if len(value) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeJSONObject(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func cloneInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
