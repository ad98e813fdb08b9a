package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kaizen2025/Formation/internal/persistence"
)

// DocumentRepository implements persistence.DocumentRepository using SQLite.
type DocumentRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewDocumentRepository creates a new SQLite document repository.
func NewDocumentRepository(pool *ConnectionPool) *DocumentRepository {
	return &DocumentRepository{pool: pool, mapper: NewErrorMapper()}
}

func insertDocument(ctx context.Context, q queryer, mapper *ErrorMapper, document persistence.Document) (int64, error) {
	data := document.Data
	if data == nil {
		data = []byte{}
	}
	result, err := q.ExecContext(ctx, `
		INSERT INTO documents (filename, mime_type, size_bytes, data, checksum, description, is_global, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		document.Filename, document.MimeType, document.Size, data, document.Checksum,
		document.Description, boolToInt(document.IsGlobal), document.UploadedBy,
		formatTimestamp(stampCreated(document.CreatedAt)),
	)
	if err != nil {
		return 0, mapper.MapError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read document id: %w", err)
	}
	return id, nil
}

func associateDocument(ctx context.Context, q queryer, mapper *ErrorMapper, documentID, sessionID int64) error {
	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_documents (session_id, document_id) VALUES (?, ?)`,
		sessionID, documentID,
	); err != nil {
		return mapper.MapError(err)
	}
	return nil
}

// CreateDocument stores a document and returns it with its ID.
func (r *DocumentRepository) CreateDocument(ctx context.Context, document persistence.Document) (persistence.Document, error) {
	document.CreatedAt = stampCreated(document.CreatedAt)
	id, err := insertDocument(ctx, r.pool.DB(), r.mapper, document)
	if err != nil {
		return persistence.Document{}, err
	}
	document.ID = id
	return document, nil
}

const documentColumns = `d.id, d.filename, d.mime_type, d.size_bytes, d.data, d.checksum, d.description, d.is_global, d.uploaded_by, d.created_at`

func scanDocument(scan func(dest ...any) error) (persistence.Document, error) {
	var d persistence.Document
	var isGlobal int
	var createdAt string
	if err := scan(&d.ID, &d.Filename, &d.MimeType, &d.Size, &d.Data, &d.Checksum,
		&d.Description, &isGlobal, &d.UploadedBy, &createdAt); err != nil {
		return persistence.Document{}, err
	}
	d.IsGlobal = isGlobal != 0
	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return persistence.Document{}, err
	}
	d.CreatedAt = ts
	return d, nil
}

// GetDocument retrieves a document including its payload.
func (r *DocumentRepository) GetDocument(ctx context.Context, id int64) (persistence.Document, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id = ?`, id)
	document, err := scanDocument(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Document{}, persistence.ErrNotFound
		}
		return persistence.Document{}, r.mapper.MapError(err)
	}
	return document, nil
}

func (r *DocumentRepository) listDocuments(ctx context.Context, query string, args ...any) ([]persistence.Document, error) {
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var documents []persistence.Document
	for rows.Next() {
		document, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		documents = append(documents, document)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return documents, nil
}

// ListGlobalDocuments returns documents flagged as shared by every session.
func (r *DocumentRepository) ListGlobalDocuments(ctx context.Context) ([]persistence.Document, error) {
	return r.listDocuments(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.is_global = 1 ORDER BY d.filename, d.id`)
}

// ListSessionDocuments returns the documents linked to a session.
func (r *DocumentRepository) ListSessionDocuments(ctx context.Context, sessionID int64) ([]persistence.Document, error) {
	return r.listDocuments(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		JOIN session_documents sd ON sd.document_id = d.id
		WHERE sd.session_id = ?
		ORDER BY d.id`, sessionID)
}
