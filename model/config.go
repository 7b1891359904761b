package model

import (
	"runtime"
	"time"
)

// RerankWeights are the fusion weights applied on top of the cross-encoder.
type RerankWeights struct {
	CrossEncoder float64 `json:"cross_encoder"`
	Retriever    float64 `json:"retriever"`
	Keyword      float64 `json:"keyword"`
	QueryType    float64 `json:"query_type"`
}

// PhaseTimeouts are the per-phase ingestion wall-clock caps.
type PhaseTimeouts struct {
	Extract  time.Duration `json:"extract"`
	Embed    time.Duration `json:"embed"`
	Entities time.Duration `json:"entities"`
	Write    time.Duration `json:"write"`
}

// ValidationConfig holds the completeness thresholds checked after write.
type ValidationConfig struct {
	MinChunkPageRatio float64 `json:"min_chunk_page_ratio"`
	MinCharsPerPage   float64 `json:"min_chars_per_page"`
}

// Config is the single configuration value for the engine.
type Config struct {
	Workers                 int              `json:"workers"`
	ChunkTargetTokens       int              `json:"chunk_target_tokens"`
	ChunkOverlapTokens      int              `json:"chunk_overlap_tokens"`
	ChunkMaxTokens          int              `json:"chunk_max_tokens"`
	EmbeddingDim            int              `json:"embedding_dim"`
	CooccurrenceMinStrength int              `json:"cooccurrence_min_strength"`
	LouvainResolution       float64          `json:"louvain_resolution"`
	CommunityDwell          time.Duration    `json:"community_dwell"`
	RerankWeights           RerankWeights    `json:"rerank_weights"`
	QueryDeadline           time.Duration    `json:"query_deadline"`
	IngestPhaseTimeouts     PhaseTimeouts    `json:"ingest_phase_timeouts"`
	Validation              ValidationConfig `json:"validation"`
	MaxRetries              int              `json:"max_retries"`
	ErrorLogPath            string           `json:"error_log_path"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return Config{
		Workers:                 workers,
		ChunkTargetTokens:       512,
		ChunkOverlapTokens:      128,
		ChunkMaxTokens:          1024,
		EmbeddingDim:            384,
		CooccurrenceMinStrength: 2,
		LouvainResolution:       1.0,
		CommunityDwell:          60 * time.Second,
		RerankWeights: RerankWeights{
			CrossEncoder: 0.5,
			Retriever:    0.3,
			Keyword:      0.1,
			QueryType:    0.1,
		},
		QueryDeadline: 10 * time.Second,
		IngestPhaseTimeouts: PhaseTimeouts{
			Extract:  600 * time.Second,
			Embed:    300 * time.Second,
			Entities: 120 * time.Second,
			Write:    60 * time.Second,
		},
		Validation: ValidationConfig{
			MinChunkPageRatio: 0.2,
			MinCharsPerPage:   50,
		},
		MaxRetries:   3,
		ErrorLogPath: "data/ingestion_errors.jsonl",
	}
}

// Strategy names a retrieval strategy.
type Strategy string

const (
	StrategyKeyword   Strategy = "keyword"
	StrategyVector    Strategy = "vector"
	StrategyEntity    Strategy = "entity"
	StrategyHybrid    Strategy = "hybrid"
	StrategyCommunity Strategy = "community"
)

// SearchFilters are pushed down to the store and ANDed with retriever
// predicates. They address the hierarchical overlay, not communities.
type SearchFilters struct {
	Division string `json:"division,omitempty"`
	Category string `json:"category,omitempty"`
	Product  string `json:"product,omitempty"`
}

// SearchOptions configures one search call.
type SearchOptions struct {
	Strategy  Strategy       `json:"strategy"`
	TopK      int            `json:"top_k"`
	UseVector bool           `json:"use_vector"`
	UseRerank bool           `json:"use_rerank"`
	Filters   *SearchFilters `json:"filters,omitempty"`
}

// DefaultSearchOptions returns hybrid search with reranking, top 5.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Strategy:  StrategyHybrid,
		TopK:      5,
		UseVector: true,
		UseRerank: true,
	}
}

const (
	// MaxTopK caps the number of results a caller may request.
	MaxTopK = 50
)
