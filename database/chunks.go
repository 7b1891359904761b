package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	loadSql "github.com/JasonAskew/knowledge/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(chunk *model.Chunk) error
	SelectChunk(id string) (*model.Chunk, error)
	SelectChunksByDocument(documentID string) ([]*model.Chunk, error)
	KeywordSearchChunks(ctx context.Context, keywords []string, limit int, filters *model.SearchFilters) ([]*model.Chunk, error)
	VectorSearchChunks(ctx context.Context, embedding []float32, limit int, filters *model.SearchFilters) ([]*model.Chunk, error)
	ExpandContext(ctx context.Context, chunkID string, hops int) ([]*model.Chunk, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

const chunkColumns = `c.id, c.document_id, c.content, c.page_num, c.chunk_index, c.token_count, c.embedding, c.chunk_type, c.semantic_density, c.has_definitions, c.has_examples, c.keywords, c.metadata, c.created_at`

func scanChunk(row interface{ Scan(...interface{}) error }, chunk *model.Chunk, extra ...interface{}) error {
	var embedding pgvector.Vector
	dest := []interface{}{
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.Text,
		&chunk.PageNum,
		&chunk.ChunkIndex,
		&chunk.TokenCount,
		&embedding,
		&chunk.ChunkType,
		&chunk.SemanticDensity,
		&chunk.HasDefinitions,
		&chunk.HasExamples,
		pq.Array(&chunk.Keywords),
		&chunk.Metadata,
		&chunk.CreatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return err
	}
	chunk.Embedding = embedding.Slice()
	return nil
}

// InsertChunk inserts or replaces a chunk. Replacement on re-ingest keys
// on the chunk ID so repeated ingestion never duplicates.
func (h *ChunksDBHandler) InsertChunk(chunk *model.Chunk) error {
	row := h.db.Instance.QueryRow(
		`SELECT `+chunkColumns+` FROM insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) c`,
		chunk.ID,
		chunk.DocumentID,
		chunk.Text,
		chunk.PageNum,
		chunk.ChunkIndex,
		chunk.TokenCount,
		pgvector.NewVector(chunk.Embedding),
		string(chunk.ChunkType),
		chunk.SemanticDensity,
		chunk.HasDefinitions,
		chunk.HasExamples,
		pq.Array(chunk.Keywords),
		chunk.Metadata,
	)

	err := scanChunk(row, chunk)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectChunk retrieves a chunk by its ID.
func (h *ChunksDBHandler) SelectChunk(id string) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	row := h.db.Instance.QueryRow(
		`SELECT `+chunkColumns+` FROM select_chunk($1) c`,
		id,
	)

	err := scanChunk(row, chunk)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks of a document in chunk_index order.
func (h *ChunksDBHandler) SelectChunksByDocument(documentID string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT `+chunkColumns+` FROM select_chunks_by_document($1) c`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk); err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func filterArgs(filters *model.SearchFilters) (string, string, string) {
	if filters == nil {
		return "", "", ""
	}
	return filters.Division, filters.Category, filters.Product
}

// KeywordSearchChunks runs full-text search over the extracted keywords.
// The returned chunks carry their keyword match ratio in Similarity.
func (h *ChunksDBHandler) KeywordSearchChunks(ctx context.Context, keywords []string, limit int, filters *model.SearchFilters) ([]*model.Chunk, error) {
	division, category, product := filterArgs(filters)
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT `+chunkColumnsOf("(r.chunk)")+`, r.score FROM keyword_search_chunks($1, $2, $3, $4, $5) r`,
		pq.Array(keywords),
		limit,
		division,
		category,
		product,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows)
}

// VectorSearchChunks runs approximate nearest neighbor search over chunk
// embeddings. The returned chunks carry cosine similarity in Similarity.
func (h *ChunksDBHandler) VectorSearchChunks(ctx context.Context, embedding []float32, limit int, filters *model.SearchFilters) ([]*model.Chunk, error) {
	division, category, product := filterArgs(filters)
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT `+chunkColumnsOf("(r.chunk)")+`, r.similarity FROM vector_search_chunks($1, $2, $3, $4, $5) r`,
		pgvector.NewVector(embedding),
		limit,
		division,
		category,
		product,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows)
}

// ExpandContext returns the neighboring chunks up to hops positions away
// in the document's chunk chain.
func (h *ChunksDBHandler) ExpandContext(ctx context.Context, chunkID string, hops int) ([]*model.Chunk, error) {
	if hops > 2 {
		hops = 2
	}
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM expand_context($1, $2) c`,
		chunkID,
		hops,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk); err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// chunkColumnsOf rewrites the chunk column list for a composite row alias.
func chunkColumnsOf(alias string) string {
	cols := []string{"id", "document_id", "content", "page_num", "chunk_index", "token_count", "embedding", "chunk_type", "semantic_density", "has_definitions", "has_examples", "keywords", "metadata", "created_at"}
	out := ""
	for i, col := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + col
	}
	return out
}

func scanScoredChunks(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		if err := scanChunk(rows, chunk, &chunk.Similarity); err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
