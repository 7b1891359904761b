package model

import (
	"time"

	"github.com/google/uuid"
)

// Export schema revision. Bump when node or relationship properties change.
const ExportSchemaRevision = 3

// ExportVector serializes an embedding with its dimension so a restore can
// verify it against the store's configured dimension.
type ExportVector struct {
	Type      string    `json:"_type"`
	Dimension int       `json:"dimension"`
	Values    []float32 `json:"values"`
}

// NewExportVector wraps an embedding for export.
func NewExportVector(values []float32) ExportVector {
	return ExportVector{Type: "vector", Dimension: len(values), Values: values}
}

// ExportNode is one graph node in the export document.
type ExportNode struct {
	ID         string                 `json:"id"`
	Labels     []string               `json:"labels"`
	Properties map[string]interface{} `json:"properties"`
}

// ExportRelationship is one graph edge in the export document.
type ExportRelationship struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	StartID    string                 `json:"start_id"`
	EndID      string                 `json:"end_id"`
	Properties map[string]interface{} `json:"properties"`
}

// ExportMetadata identifies an export document.
type ExportMetadata struct {
	ExportID        uuid.UUID `json:"export_id"`
	Version         string    `json:"version"`
	ExportTimestamp time.Time `json:"export_timestamp"`
	SchemaRevision  int       `json:"schema_revision"`
}

// GraphExport is the full export document. A restored graph must answer a
// fixed query set identically to the source.
type GraphExport struct {
	Metadata      ExportMetadata         `json:"metadata"`
	Nodes         []ExportNode           `json:"nodes"`
	Relationships []ExportRelationship   `json:"relationships"`
	Statistics    map[string]interface{} `json:"statistics"`
}
