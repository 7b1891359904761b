package database

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	loadSql "github.com/JasonAskew/knowledge/sql"
)

// RelationsDBHandlerFunctions defines the interface for relation database operations.
type RelationsDBHandlerFunctions interface {
	LinkContainsEntity(chunkID string, entityID int64, confidence float64) error
	RebuildRelatedTo(ctx context.Context, minStrength int) (int, error)
	SelectEntityRelations() ([]*model.EntityRelation, error)
	SelectChunkEntities(chunkID string) ([]*model.ChunkEntity, error)
	ChunksForEntities(ctx context.Context, entityIDs []int64, limit int, filters *model.SearchFilters) ([]*model.Chunk, error)
	ChunksInCommunities(ctx context.Context, communityIDs []int64, limit int) ([]*model.Chunk, error)
	ChunksForBridges(ctx context.Context, communityIDs []int64, limit int) ([]*model.Chunk, error)
}

// RelationsDBHandler handles CONTAINS_ENTITY and RELATED_TO edges
type RelationsDBHandler struct {
	db *helper.Database
}

// NewRelationsDBHandler creates a new relations database handler.
// It initializes the database connection and loads relation-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRelationsDBHandler(db *helper.Database, force bool) (*RelationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	relationsDbHandler := &RelationsDBHandler{
		db: db,
	}

	err := loadSql.LoadRelationsSql(relationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load relations sql", err)
	}

	err = relationsDbHandler.CreateTables()
	if err != nil {
		return nil, helper.NewError("create tables", err)
	}

	db.Logger.Info("Initialized RelationsDBHandler")

	return relationsDbHandler, nil
}

// CreateTables creates the 'chunk_entities' and 'entity_relations' tables.
// If the tables already exist, it does not create them again.
func (h *RelationsDBHandler) CreateTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_relations();`)
	if err != nil {
		log.Panicf("error initializing relation tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created relation tables")

	return nil
}

// LinkContainsEntity links a chunk to an entity with the given confidence.
// Re-linking keeps the highest confidence seen.
func (h *RelationsDBHandler) LinkContainsEntity(chunkID string, entityID int64, confidence float64) error {
	_, err := h.db.Instance.Exec(
		`SELECT link_contains_entity($1, $2, $3)`,
		chunkID,
		entityID,
		confidence,
	)
	if err != nil {
		return helper.NewError("link contains entity", err)
	}

	return nil
}

// RebuildRelatedTo recomputes every RELATED_TO edge from the current
// chunk-entity links, dropping pairs below minStrength. Returns the
// number of edges written.
func (h *RelationsDBHandler) RebuildRelatedTo(ctx context.Context, minStrength int) (int, error) {
	var edges int
	err := h.db.Instance.QueryRowContext(ctx,
		`SELECT rebuild_related_to($1)`,
		minStrength,
	).Scan(&edges)
	if err != nil {
		return 0, helper.NewError("rebuild related_to", err)
	}

	h.db.Logger.Info("Rebuilt RELATED_TO edges", slog.Int("edges", edges))

	return edges, nil
}

// SelectEntityRelations retrieves all RELATED_TO edges.
func (h *RelationsDBHandler) SelectEntityRelations() ([]*model.EntityRelation, error) {
	rows, err := h.db.Instance.Query(
		`SELECT r.entity_a, r.entity_b, r.strength FROM select_entity_relations() r`,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var relations []*model.EntityRelation
	for rows.Next() {
		relation := &model.EntityRelation{}
		if err := rows.Scan(&relation.EntityA, &relation.EntityB, &relation.Strength); err != nil {
			return nil, helper.NewError("scan", err)
		}
		relations = append(relations, relation)
	}

	return relations, rows.Err()
}

// SelectChunkEntities retrieves the entity links of one chunk.
func (h *RelationsDBHandler) SelectChunkEntities(chunkID string) ([]*model.ChunkEntity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT r.chunk_id, r.entity_id, r.confidence FROM select_chunk_entities($1) r`,
		chunkID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var links []*model.ChunkEntity
	for rows.Next() {
		link := &model.ChunkEntity{}
		if err := rows.Scan(&link.ChunkID, &link.EntityID, &link.Confidence); err != nil {
			return nil, helper.NewError("scan", err)
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// ChunksForEntities retrieves chunks containing any of the given
// entities, scored by summed link confidence (in Similarity).
func (h *RelationsDBHandler) ChunksForEntities(ctx context.Context, entityIDs []int64, limit int, filters *model.SearchFilters) ([]*model.Chunk, error) {
	division, category, product := filterArgs(filters)
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT `+chunkColumnsOf("(r.chunk)")+`, r.confidence_sum FROM chunks_for_entities($1, $2, $3, $4, $5) r`,
		pq.Array(entityIDs),
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

// ChunksInCommunities retrieves chunks whose entities lie in the given
// communities. Phase one of community-aware retrieval.
func (h *RelationsDBHandler) ChunksInCommunities(ctx context.Context, communityIDs []int64, limit int) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT `+chunkColumnsOf("(r.chunk)")+`, r.confidence_sum FROM chunks_in_communities($1, $2) r`,
		pq.Array(communityIDs),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows)
}

// ChunksForBridges retrieves chunks linked to bridge entities connecting
// the given communities. Phase two of community-aware retrieval.
func (h *RelationsDBHandler) ChunksForBridges(ctx context.Context, communityIDs []int64, limit int) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT `+chunkColumnsOf("(r.chunk)")+`, r.confidence_sum FROM chunks_for_bridges($1, $2) r`,
		pq.Array(communityIDs),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows)
}
