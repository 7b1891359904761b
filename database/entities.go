package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	loadSql "github.com/JasonAskew/knowledge/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	UpsertEntity(entity *model.Entity) error
	SelectEntityByKey(normalized string, entityType model.EntityType) (*model.Entity, error)
	SelectEntitiesByKeys(normalized []string, entityTypes []model.EntityType) ([]*model.Entity, error)
	UpdateEntityCommunity(entity *model.Entity) error
	SelectAllEntities() ([]*model.Entity, error)
}

// EntitiesDBHandler handles entity-related database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

const entityColumns = `e.id, e.text, e.normalized, e.entity_type, e.occurrences, e.first_seen, e.community_id, e.degree_centrality, e.betweenness_centrality, e.is_bridge, e.connected_communities, e.metadata`

func scanEntity(row interface{ Scan(...interface{}) error }, entity *model.Entity) error {
	return row.Scan(
		&entity.ID,
		&entity.Text,
		&entity.Normalized,
		&entity.Type,
		&entity.Occurrences,
		&entity.FirstSeen,
		&entity.CommunityID,
		&entity.DegreeCentrality,
		&entity.BetweennessCentrality,
		&entity.IsBridge,
		&entity.ConnectedCommunities,
		&entity.Metadata,
	)
}

// UpsertEntity inserts an entity keyed on (normalized, entity_type),
// incrementing its occurrence count when it already exists. Idempotent
// under concurrent writers.
func (h *EntitiesDBHandler) UpsertEntity(entity *model.Entity) error {
	row := h.db.Instance.QueryRow(
		`SELECT `+entityColumns+` FROM upsert_entity($1, $2, $3) e`,
		entity.Text,
		entity.Normalized,
		string(entity.Type),
	)

	err := scanEntity(row, entity)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEntityByKey retrieves an entity by its natural key.
func (h *EntitiesDBHandler) SelectEntityByKey(normalized string, entityType model.EntityType) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(
		`SELECT `+entityColumns+` FROM select_entity_by_key($1, $2) e`,
		normalized,
		string(entityType),
	)

	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesByKeys retrieves all entities matching any of the
// normalized forms and any of the types. Used for query entity lookup.
func (h *EntitiesDBHandler) SelectEntitiesByKeys(normalized []string, entityTypes []model.EntityType) ([]*model.Entity, error) {
	types := make([]string, len(entityTypes))
	for i, t := range entityTypes {
		types[i] = string(t)
	}

	rows, err := h.db.Instance.Query(
		`SELECT `+entityColumns+` FROM select_entities_by_keys($1, $2) e`,
		pq.Array(normalized),
		pq.Array(types),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		if err := scanEntity(rows, entity); err != nil {
			return nil, helper.NewError("scan", err)
		}
		entities = append(entities, entity)
	}

	return entities, rows.Err()
}

// UpdateEntityCommunity writes the community assignment and centrality
// metrics computed by the community builder.
func (h *EntitiesDBHandler) UpdateEntityCommunity(entity *model.Entity) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_entity_community($1, $2, $3, $4, $5, $6)`,
		entity.ID,
		entity.CommunityID,
		entity.DegreeCentrality,
		entity.BetweennessCentrality,
		entity.IsBridge,
		entity.ConnectedCommunities,
	)
	if err != nil {
		return helper.NewError("update entity community", err)
	}

	return nil
}

// SelectAllEntities retrieves all entities ordered by ID.
func (h *EntitiesDBHandler) SelectAllEntities() ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT ` + entityColumns + ` FROM select_all_entities() e`,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		if err := scanEntity(rows, entity); err != nil {
			return nil, helper.NewError("scan", err)
		}
		entities = append(entities, entity)
	}

	return entities, rows.Err()
}
