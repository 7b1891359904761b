package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	loadSql "github.com/JasonAskew/knowledge/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	UpsertDocument(doc *model.Document) error
	UpdateDocumentStatus(id string, status model.DocumentStatus, chunkCount int) error
	SelectDocument(id string) (*model.Document, error)
	SelectAllDocuments() ([]*model.Document, error)
	DeleteDocumentCascade(id string) (int, error)
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It initializes the database connection and loads document-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		log.Panicf("error initializing documents table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

const documentColumns = `d.id, d.title, d.total_pages, d.chunk_count, d.status, d.division, d.category, d.product, d.metadata, d.created_at, d.updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }, doc *model.Document) error {
	return row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.TotalPages,
		&doc.ChunkCount,
		&doc.Status,
		&doc.Division,
		&doc.Category,
		&doc.Product,
		&doc.Metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
}

// UpsertDocument inserts a document or resets an existing one to pending.
func (h *DocumentsDBHandler) UpsertDocument(doc *model.Document) error {
	row := h.db.Instance.QueryRow(
		`SELECT `+documentColumns+` FROM upsert_document($1, $2, $3, $4, $5, $6, $7) d`,
		doc.ID,
		doc.Title,
		doc.TotalPages,
		doc.Division,
		doc.Category,
		doc.Product,
		doc.Metadata,
	)

	err := scanDocument(row, doc)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// UpdateDocumentStatus transitions a document through its lifecycle and
// records the final chunk count.
func (h *DocumentsDBHandler) UpdateDocumentStatus(id string, status model.DocumentStatus, chunkCount int) error {
	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT `+documentColumns+` FROM update_document_status($1, $2, $3) d`,
		id,
		string(status),
		chunkCount,
	)

	err := scanDocument(row, doc)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by its ID.
func (h *DocumentsDBHandler) SelectDocument(id string) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT `+documentColumns+` FROM select_document($1) d`,
		id,
	)

	err := scanDocument(row, doc)
	if err == sql.ErrNoRows {
		return nil, helper.NewError("select document", fmt.Errorf("document %s not found", id))
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return doc, nil
}

// SelectAllDocuments retrieves all documents ordered by ID.
func (h *DocumentsDBHandler) SelectAllDocuments() ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT ` + documentColumns + ` FROM select_all_documents() d`,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		if err := scanDocument(rows, doc); err != nil {
			return nil, helper.NewError("scan", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// DeleteDocumentCascade removes a document together with its chunks and
// entity links, leaving previously shared entities with decremented
// occurrence counts. Returns the number of chunks removed.
func (h *DocumentsDBHandler) DeleteDocumentCascade(id string) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRow(
		`SELECT delete_document_cascade($1)`,
		id,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("delete document cascade", err)
	}

	return deleted, nil
}
