package model

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus tracks a document through the ingestion lifecycle.
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusIngested  DocumentStatus = "ingested"
	DocumentStatusValidated DocumentStatus = "validated"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// Document represents a source document node in the graph.
// The ID is the source filename and is unique across the store.
type Document struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	TotalPages int            `json:"total_pages"`
	ChunkCount int            `json:"chunk_count"`
	Status     DocumentStatus `json:"status"`
	// Hierarchical classification overlay, independent of communities
	Division  string    `json:"division,omitempty"`
	Category  string    `json:"category,omitempty"`
	Product   string    `json:"product,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Page is one page of extracted document text, 1-indexed and contiguous.
type Page struct {
	PageNum      int    `json:"page_num"`
	Text         string `json:"text"`
	OCRExtracted bool   `json:"ocr_extracted,omitempty"`
}

// NewDocument creates a pending document keyed by its filename.
func NewDocument(filename string) *Document {
	title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if title == "" {
		title = filename
	}
	return &Document{
		ID:     filepath.Base(filename),
		Title:  title,
		Status: DocumentStatusPending,
	}
}
