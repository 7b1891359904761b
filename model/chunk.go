package model

import (
	"fmt"
	"time"
)

// ChunkType classifies chunk content, assigned with priority
// table > definition > example > content.
type ChunkType string

const (
	ChunkTypeContent    ChunkType = "content"
	ChunkTypeDefinition ChunkType = "definition"
	ChunkTypeExample    ChunkType = "example"
	ChunkTypeTable      ChunkType = "table"
)

// Chunk represents a bounded span of document text, the unit of retrieval.
// The ID is derived from the document ID and chunk index.
type Chunk struct {
	ID              string    `json:"id"`
	DocumentID      string    `json:"document_id"`
	Text            string    `json:"text"`
	PageNum         int       `json:"page_num"`
	ChunkIndex      int       `json:"chunk_index"`
	TokenCount      int       `json:"token_count"`
	Embedding       []float32 `json:"embedding,omitempty"`
	ChunkType       ChunkType `json:"chunk_type"`
	SemanticDensity float64   `json:"semantic_density"`
	HasDefinitions  bool      `json:"has_definitions"`
	HasExamples     bool      `json:"has_examples"`
	Keywords        []string  `json:"keywords,omitempty"`
	Metadata        Metadata  `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	// Result fields, populated by retrieval
	Similarity float64 `json:"similarity,omitempty"`
}

// ChunkID builds the canonical chunk ID from document ID and index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_c%04d", documentID, index)
}
