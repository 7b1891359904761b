package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed init.sql
var initSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed entities.sql
var entitiesSQL string

//go:embed relations.sql
var relationsSQL string

// Function lists for verification
var DocumentsFunctions = []string{
	"init_documents",
	"upsert_document",
	"update_document_status",
	"select_document",
	"select_all_documents",
	"delete_document_cascade",
}

var ChunksFunctions = []string{
	"init_chunks",
	"insert_chunk",
	"select_chunk",
	"select_chunks_by_document",
	"keyword_search_chunks",
	"vector_search_chunks",
	"expand_context",
}

var EntitiesFunctions = []string{
	"init_entities",
	"upsert_entity",
	"select_entity_by_key",
	"select_entities_by_keys",
	"update_entity_community",
	"select_all_entities",
}

var RelationsFunctions = []string{
	"init_relations",
	"link_contains_entity",
	"rebuild_related_to",
	"select_entity_relations",
	"select_chunk_entities",
	"chunks_for_entities",
	"chunks_in_communities",
	"chunks_for_bridges",
}

// Init initializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}
	return nil
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	return loadFunctions(db, documentsSQL, DocumentsFunctions, force, "documents")
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	return loadFunctions(db, chunksSQL, ChunksFunctions, force, "chunks")
}

// LoadEntitiesSql loads entity-related SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	return loadFunctions(db, entitiesSQL, EntitiesFunctions, force, "entities")
}

// LoadRelationsSql loads relation-related SQL functions
func LoadRelationsSql(db *sql.DB, force bool) error {
	return loadFunctions(db, relationsSQL, RelationsFunctions, force, "relations")
}

func loadFunctions(db *sql.DB, script string, functions []string, force bool, name string) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}
	return nil
}

// checkFunctions reports whether all named functions already exist.
func checkFunctions(db *sql.DB, functions []string) (bool, error) {
	for _, fn := range functions {
		var exists bool
		err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = $1)`,
			fn,
		).Scan(&exists)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}
