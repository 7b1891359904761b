package model

// Candidate is a retriever hit with a per-retriever normalized score.
type Candidate struct {
	ChunkID   string  `json:"chunk_id"`
	Score     float64 `json:"score"`
	SourceTag string  `json:"source_tag"`
	Chunk     *Chunk  `json:"chunk,omitempty"`
	// Rerank fields
	CrossEncoderScore float64  `json:"cross_encoder_score,omitempty"`
	FinalScore        float64  `json:"final_score,omitempty"`
	SourceTags        []string `json:"source_tags,omitempty"`
}

// Citation is one cited result returned to the caller. No answer text is
// synthesized; the chunk text itself is the evidence.
type Citation struct {
	DocumentID   string   `json:"document_id"`
	DocumentName string   `json:"document_name"`
	PageNum      int      `json:"page_num"`
	ChunkID      string   `json:"chunk_id"`
	Text         string   `json:"text"`
	FinalScore   float64  `json:"final_score"`
	SourceTags   []string `json:"source_tags"`
	// Hierarchy is "division > category > product > document" when the
	// document carries the hierarchical overlay.
	Hierarchy string `json:"hierarchy,omitempty"`
}

// SearchResponse is the full search endpoint output.
type SearchResponse struct {
	Citations                 []Citation `json:"citations"`
	TotalCandidatesConsidered int        `json:"total_candidates_considered"`
	ElapsedMs                 int64      `json:"elapsed_ms"`
	StrategyActuallyUsed      string     `json:"strategy_actually_used"`
}

// IngestResult is the ingest endpoint output for one document.
type IngestResult struct {
	DocumentID  string         `json:"document_id"`
	Status      DocumentStatus `json:"status"`
	ChunkCount  int            `json:"chunk_count"`
	EntityCount int            `json:"entity_count"`
	Errors      []ErrorRecord  `json:"errors"`
}

// SchemaSummary describes the store: counts by label, relationship types,
// constraints and indexes.
type SchemaSummary struct {
	NodeCounts        map[string]int64 `json:"node_counts"`
	RelationshipTypes map[string]int64 `json:"relationship_types"`
	Constraints       []string         `json:"constraints"`
	Indexes           []string         `json:"indexes"`
}
