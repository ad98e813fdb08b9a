package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kaizen2025/Formation/internal/persistence"
	"github.com/kaizen2025/Formation/internal/uploads"
)

// CatalogRepository captures the catalog persistence used by the service.
type CatalogRepository interface {
	CreateDepartment(ctx context.Context, department Department) (Department, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	DeleteDepartment(ctx context.Context, id int64) error

	CreateModule(ctx context.Context, module Module) (Module, error)
	GetModule(ctx context.Context, id int64) (Module, error)
	ListModules(ctx context.Context, activeOnly bool) ([]Module, error)

	CreateGroup(ctx context.Context, group Group) (Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)

	CreateParticipant(ctx context.Context, participant Participant) (Participant, error)
	ListParticipantsByGroup(ctx context.Context, groupID int64) ([]Participant, error)
}

// DocumentRepository stores global documents.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, document Document) (Document, error)
	ListGlobalDocuments(ctx context.Context) ([]Document, error)
}

// DepartmentInput describes a department to create.
type DepartmentInput struct {
	Code        string `json:"code" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=1000"`
}

// ModuleInput describes a training module to create. A nil Active creates an active module.
type ModuleInput struct {
	Code            string `json:"code" validate:"required,max=50"`
	Name            string `json:"name" validate:"required,max=200"`
	Description     string `json:"description,omitempty" validate:"max=2000"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0,lte=1440"`
	MinParticipants int    `json:"min_participants" validate:"gte=0"`
	MaxParticipants int    `json:"max_participants" validate:"gte=0"`
	Active          *bool  `json:"active,omitempty"`
}

// GroupInput describes a group to create.
type GroupInput struct {
	Name         string `json:"name" validate:"required,max=200"`
	ContactName  string `json:"contact_name,omitempty" validate:"max=200"`
	ContactEmail string `json:"contact_email,omitempty" validate:"omitempty,email,max=254"`
	ContactPhone string `json:"contact_phone,omitempty" validate:"max=50"`
	DepartmentID *int64 `json:"department_id,omitempty" validate:"omitempty,gt=0"`
	Notes        string `json:"notes,omitempty" validate:"max=2000"`
}

// GlobalDocumentInput describes a document attachable to any booking.
type GlobalDocumentInput struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	Data        []byte `json:"-"`
	UploadedBy  string `json:"uploaded_by,omitempty" validate:"max=200"`
}

// CatalogService manages departments, modules, groups, rosters and global documents.
type CatalogService struct {
	catalog    CatalogRepository
	documents  DocumentRepository
	extensions FileValidator
	now        func() time.Time
	logger     *slog.Logger
}

// NewCatalogService constructs a catalog service.
func NewCatalogService(catalog CatalogRepository, documents DocumentRepository, extensions FileValidator, now func() time.Time) *CatalogService {
	return NewCatalogServiceWithLogger(catalog, documents, extensions, now, nil)
}

// NewCatalogServiceWithLogger constructs a catalog service with a specified logger.
func NewCatalogServiceWithLogger(catalog CatalogRepository, documents DocumentRepository, extensions FileValidator, now func() time.Time, logger *slog.Logger) *CatalogService {
	if now == nil {
		now = time.Now
	}
	return &CatalogService{catalog: catalog, documents: documents, extensions: extensions, now: now, logger: defaultLogger(logger)}
}

func (s *CatalogService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CatalogService", operation, attrs...)
}

// CreateDepartment validates and persists a department.
func (s *CatalogService) CreateDepartment(ctx context.Context, input DepartmentInput) (department Department, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}
	if s.catalog == nil {
		err = fmt.Errorf("catalog repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "CreateDepartment")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create department", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("department_id", department.ID).InfoContext(ctx, "department created")
	}()

	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if vErr := validateStruct("", input); vErr.HasErrors() {
		err = vErr
		return
	}

	department, err = s.catalog.CreateDepartment(ctx, Department{
		Code:        input.Code,
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		err = mapCatalogRepoError("code", err)
	}
	return
}

// ListDepartments returns every department.
func (s *CatalogService) ListDepartments(ctx context.Context) ([]Department, error) {
	if s == nil {
		return nil, fmt.Errorf("CatalogService is nil")
	}
	if s.catalog == nil {
		return []Department{}, nil
	}
	departments, err := s.catalog.ListDepartments(ctx)
	if err != nil {
		return nil, transient("list departments", err)
	}
	return departments, nil
}

// DeleteDepartment removes a department. A department still referenced by a
// group cannot be removed.
func (s *CatalogService) DeleteDepartment(ctx context.Context, id int64) (err error) {
	if s == nil {
		return fmt.Errorf("CatalogService is nil")
	}
	if s.catalog == nil {
		return fmt.Errorf("catalog repository not configured")
	}
	logger := s.loggerWith(ctx, "DeleteDepartment", "department_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete department", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "department deleted")
	}()

	err = s.catalog.DeleteDepartment(ctx, id)
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("department_id", msgDepartmentInUse)
		return vErr
	}
	return mapCatalogRepoError("department_id", err)
}

// CreateModule validates and persists a training module.
func (s *CatalogService) CreateModule(ctx context.Context, input ModuleInput) (module Module, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}
	if s.catalog == nil {
		err = fmt.Errorf("catalog repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "CreateModule")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create module", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("module_id", module.ID).InfoContext(ctx, "module created")
	}()

	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	vErr := validateStruct("", input)
	if input.MinParticipants > 0 && input.MaxParticipants > 0 && input.MinParticipants > input.MaxParticipants {
		vErr.add("max_participants", msgInvalidValue)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}
	duration := input.DurationMinutes
	if duration == 0 {
		duration = DefaultSessionDuration
	}

	module, err = s.catalog.CreateModule(ctx, Module{
		Code:            input.Code,
		Name:            input.Name,
		Description:     strings.TrimSpace(input.Description),
		DurationMinutes: duration,
		MinParticipants: input.MinParticipants,
		MaxParticipants: input.MaxParticipants,
		Active:          active,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		err = mapCatalogRepoError("code", err)
	}
	return
}

// GetModule returns a module by identifier.
func (s *CatalogService) GetModule(ctx context.Context, id int64) (Module, error) {
	if s == nil {
		return Module{}, fmt.Errorf("CatalogService is nil")
	}
	if s.catalog == nil {
		return Module{}, ErrNotFound
	}
	module, err := s.catalog.GetModule(ctx, id)
	if err != nil {
		return Module{}, mapCatalogRepoError("module_id", err)
	}
	return module, nil
}

// ListModules returns the catalog, optionally restricted to active modules.
func (s *CatalogService) ListModules(ctx context.Context, activeOnly bool) ([]Module, error) {
	if s == nil {
		return nil, fmt.Errorf("CatalogService is nil")
	}
	if s.catalog == nil {
		return []Module{}, nil
	}
	modules, err := s.catalog.ListModules(ctx, activeOnly)
	if err != nil {
		return nil, transient("list modules", err)
	}
	return modules, nil
}

// CreateGroup validates and persists a group.
func (s *CatalogService) CreateGroup(ctx context.Context, input GroupInput) (group Group, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}
	if s.catalog == nil {
		err = fmt.Errorf("catalog repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "CreateGroup")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create group", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("group_id", group.ID).InfoContext(ctx, "group created")
	}()

	input.Name = strings.TrimSpace(input.Name)
	input.ContactEmail = strings.TrimSpace(input.ContactEmail)
	if vErr := validateStruct("", input); vErr.HasErrors() {
		err = vErr
		return
	}

	group, err = s.catalog.CreateGroup(ctx, Group{
		Name:         input.Name,
		ContactName:  strings.TrimSpace(input.ContactName),
		ContactEmail: input.ContactEmail,
		ContactPhone: strings.TrimSpace(input.ContactPhone),
		DepartmentID: input.DepartmentID,
		Notes:        strings.TrimSpace(input.Notes),
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, persistence.ErrForeignKeyViolation) {
			vErr := &ValidationError{}
			vErr.add("department_id", msgInvalidValue)
			err = vErr
			return
		}
		err = mapCatalogRepoError("name", err)
	}
	return
}

// GetGroup returns a group by identifier.
func (s *CatalogService) GetGroup(ctx context.Context, id int64) (Group, error) {
	if s == nil {
		return Group{}, fmt.Errorf("CatalogService is nil")
	}
	if s.catalog == nil {
		return Group{}, ErrNotFound
	}
	group, err := s.catalog.GetGroup(ctx, id)
	if err != nil {
		return Group{}, mapCatalogRepoError("group_id", err)
	}
	return group, nil
}

// ListGroups returns every group.
func (s *CatalogService) ListGroups(ctx context.Context) ([]Group, error) {
	if s == nil {
		return nil, fmt.Errorf("CatalogService is nil")
	}
	if s.catalog == nil {
		return []Group{}, nil
	}
	groups, err := s.catalog.ListGroups(ctx)
	if err != nil {
		return nil, transient("list groups", err)
	}
	return groups, nil
}

// AddParticipant adds a member to a group's roster.
func (s *CatalogService) AddParticipant(ctx context.Context, groupID int64, input ParticipantInput) (participant Participant, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}
	if s.catalog == nil {
		err = fmt.Errorf("catalog repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "AddParticipant", "group_id", groupID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add participant", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.Position = strings.TrimSpace(input.Position)
	if vErr := validateStruct("", input); vErr.HasErrors() {
		err = vErr
		return
	}

	participant, err = s.catalog.CreateParticipant(ctx, Participant{
		GroupID:   groupID,
		Name:      input.Name,
		Email:     input.Email,
		Position:  input.Position,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, persistence.ErrForeignKeyViolation) {
			vErr := &ValidationError{}
			vErr.add("group_id", msgUnknownGroup)
			err = vErr
			return
		}
		err = mapCatalogRepoError("name", err)
	}
	return
}

// ListParticipants returns a group's roster.
func (s *CatalogService) ListParticipants(ctx context.Context, groupID int64) ([]Participant, error) {
	if s == nil {
		return nil, fmt.Errorf("CatalogService is nil")
	}
	if s.catalog == nil {
		return []Participant{}, nil
	}
	participants, err := s.catalog.ListParticipantsByGroup(ctx, groupID)
	if err != nil {
		return nil, transient("list participants", err)
	}
	return participants, nil
}

// AddGlobalDocument stores a document that any booking may attach.
func (s *CatalogService) AddGlobalDocument(ctx context.Context, input GlobalDocumentInput) (document Document, err error) {
	if s == nil {
		err = fmt.Errorf("CatalogService is nil")
		return
	}
	if s.documents == nil {
		err = fmt.Errorf("document repository not configured")
		return
	}
	logger := s.loggerWith(ctx, "AddGlobalDocument", "size", len(input.Data))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add global document", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("document_id", document.ID).InfoContext(ctx, "global document added")
	}()

	input.Filename = uploads.SecureFilename(input.Filename)
	vErr := validateStruct("", input)
	switch {
	case input.Filename == "":
		vErr.add("filename", msgFilenameInvalid)
	case s.extensions != nil && !s.extensions.Allowed(input.Filename):
		vErr.add("filename", msgExtensionNotAllowed)
	}
	if len(input.Data) == 0 {
		vErr.add("data", msgRequired)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	checksum := documentChecksum(input.Data)
	existing, listErr := s.documents.ListGlobalDocuments(ctx)
	if listErr != nil {
		err = transient("list global documents", listErr)
		return
	}
	for _, doc := range existing {
		if doc.Checksum == checksum {
			vErr.add("data", msgDuplicateDocument)
			err = vErr
			return
		}
	}

	document, err = s.documents.CreateDocument(ctx, Document{
		Filename:    input.Filename,
		MimeType:    mimetype.Detect(input.Data).String(),
		Size:        int64(len(input.Data)),
		Data:        input.Data,
		Checksum:    checksum,
		Description: strings.TrimSpace(input.Description),
		IsGlobal:    true,
		UploadedBy:  strings.TrimSpace(input.UploadedBy),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		err = mapCatalogRepoError("filename", err)
		return
	}
	document.Data = nil
	return
}

// ListGlobalDocuments returns every global document without payloads.
func (s *CatalogService) ListGlobalDocuments(ctx context.Context) ([]Document, error) {
	if s == nil {
		return nil, fmt.Errorf("CatalogService is nil")
	}
	if s.documents == nil {
		return []Document{}, nil
	}
	docs, err := s.documents.ListGlobalDocuments(ctx)
	if err != nil {
		return nil, transient("list global documents", err)
	}
	return docs, nil
}

func mapCatalogRepoError(field string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		vErr := &ValidationError{}
		vErr.add(field, msgAlreadyExists)
		return vErr
	}
	if errors.Is(err, persistence.ErrConstraintViolation) || errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add(field, msgInvalidValue)
		return vErr
	}
	return transient("catalog", err)
}
