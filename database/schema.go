package database

import (
	"context"
	"fmt"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// SchemaSummary reports node counts by label, relationship counts by
// type, and the constraints and indexes backing the graph invariants.
func (s *Store) SchemaSummary(ctx context.Context) (*model.SchemaSummary, error) {
	summary := &model.SchemaSummary{
		NodeCounts:        make(map[string]int64),
		RelationshipTypes: make(map[string]int64),
	}

	nodeTables := map[string]string{
		"Document": "documents",
		"Chunk":    "chunks",
		"Entity":   "entities",
	}
	for label, table := range nodeTables {
		var count int64
		err := s.DB.Instance.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count)
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("count %s", table), err)
		}
		summary.NodeCounts[label] = count
	}

	// HAS_CHUNK and NEXT_CHUNK are both intrinsic to the chunks table:
	// one ownership edge per chunk, one chain edge per non-first chunk.
	var chunkCount, docCount int64
	chunkCount = summary.NodeCounts["Chunk"]
	err := s.DB.Instance.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT document_id) FROM chunks`,
	).Scan(&docCount)
	if err != nil {
		return nil, helper.NewError("count chunked documents", err)
	}
	summary.RelationshipTypes["HAS_CHUNK"] = chunkCount
	nextChunks := chunkCount - docCount
	if nextChunks < 0 {
		nextChunks = 0
	}
	summary.RelationshipTypes["NEXT_CHUNK"] = nextChunks

	var containsCount int64
	err = s.DB.Instance.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_entities`).Scan(&containsCount)
	if err != nil {
		return nil, helper.NewError("count chunk_entities", err)
	}
	summary.RelationshipTypes["CONTAINS_ENTITY"] = containsCount

	var relatedCount int64
	err = s.DB.Instance.QueryRowContext(ctx, `SELECT COUNT(*) FROM entity_relations`).Scan(&relatedCount)
	if err != nil {
		return nil, helper.NewError("count entity_relations", err)
	}
	summary.RelationshipTypes["RELATED_TO"] = relatedCount

	rows, err := s.DB.Instance.QueryContext(ctx, `
		SELECT conname FROM pg_constraint c
		JOIN pg_class t ON t.oid = c.conrelid
		WHERE t.relname IN ('documents', 'chunks', 'entities', 'chunk_entities', 'entity_relations')
		ORDER BY conname`)
	if err != nil {
		return nil, helper.NewError("query constraints", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, helper.NewError("scan", err)
		}
		summary.Constraints = append(summary.Constraints, name)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("query constraints", err)
	}

	idxRows, err := s.DB.Instance.QueryContext(ctx, `
		SELECT indexname FROM pg_indexes
		WHERE tablename IN ('documents', 'chunks', 'entities', 'chunk_entities', 'entity_relations')
		ORDER BY indexname`)
	if err != nil {
		return nil, helper.NewError("query indexes", err)
	}
	defer idxRows.Close()
	for idxRows.Next() {
		var name string
		if err := idxRows.Scan(&name); err != nil {
			return nil, helper.NewError("scan", err)
		}
		summary.Indexes = append(summary.Indexes, name)
	}

	return summary, idxRows.Err()
}

// RawReadQuery executes an arbitrary read-only SQL query and returns the
// result rows as maps. Exposed behind a separate capability from search.
func (s *Store) RawReadQuery(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := s.DB.Instance.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, helper.NewError("raw read query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, helper.NewError("read columns", err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, helper.NewError("scan", err)
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		results = append(results, record)
	}

	return results, rows.Err()
}

// RawWriteQuery executes an arbitrary SQL statement and returns the
// number of affected rows. Exposed behind a separate capability from
// both search and read queries.
func (s *Store) RawWriteQuery(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := s.DB.Instance.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, helper.NewError("raw write query", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, helper.NewError("rows affected", err)
	}

	return affected, nil
}
