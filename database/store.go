package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// Store aggregates the per-table handlers and owns the operations that
// span tables: the atomic per-document graph write and the community
// rebuild advisory lock.
type Store struct {
	DB        *helper.Database
	Documents *DocumentsDBHandler
	Chunks    *ChunksDBHandler
	Entities  *EntitiesDBHandler
	Relations *RelationsDBHandler
}

// NewStore creates all handlers in dependency order (documents first,
// then chunks, then entities and relations).
// force=false to not reload SQL functions if they already exist.
func NewStore(db *helper.Database, embeddingDim int, force bool) (*Store, error) {
	documents, err := NewDocumentsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := NewChunksDBHandler(db, embeddingDim, force)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	entities, err := NewEntitiesDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	relations, err := NewRelationsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("create relations handler", err)
	}

	return &Store{
		DB:        db,
		Documents: documents,
		Chunks:    chunks,
		Entities:  entities,
		Relations: relations,
	}, nil
}

// ChunkEntities maps a chunk ID to the entities extracted from it.
type ChunkEntities map[string][]model.ExtractedEntity

// WriteDocumentGraph writes a document, its chunks in chunk_index order,
// and all entity links in a single transaction. Any prior state for the
// same document ID is replaced inside the same transaction, so repeated
// ingestion of the same bytes converges on the same graph. On success the
// document is in status ingested; on error nothing is written.
// Returns the number of distinct entities linked.
func (s *Store) WriteDocumentGraph(ctx context.Context, doc *model.Document, chunks []*model.Chunk, entities ChunkEntities) (int, error) {
	tx, err := s.DB.Instance.BeginTx(ctx, nil)
	if err != nil {
		return 0, helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	// Drop any previous ingest of this document so re-ingest upserts
	// instead of accumulating.
	if _, err := tx.ExecContext(ctx, `SELECT delete_document_cascade($1)`, doc.ID); err != nil {
		return 0, helper.NewError("clear previous document state", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM upsert_document($1, $2, $3, $4, $5, $6, $7) d`,
		doc.ID, doc.Title, doc.TotalPages, doc.Division, doc.Category, doc.Product, doc.Metadata,
	)
	if err := scanDocument(row, doc); err != nil {
		return 0, helper.NewError("write document", err)
	}

	linked := make(map[int64]struct{})
	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx,
			`SELECT insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			chunk.ID, chunk.DocumentID, chunk.Text, chunk.PageNum, chunk.ChunkIndex,
			chunk.TokenCount, pgvector.NewVector(chunk.Embedding), string(chunk.ChunkType),
			chunk.SemanticDensity, chunk.HasDefinitions, chunk.HasExamples,
			pq.Array(chunk.Keywords), chunk.Metadata,
		); err != nil {
			return 0, helper.NewError(fmt.Sprintf("write chunk %d", chunk.ChunkIndex), err)
		}

		for _, extracted := range entities[chunk.ID] {
			var entityID int64
			err := tx.QueryRowContext(ctx,
				`SELECT e.id FROM upsert_entity($1, $2, $3) e`,
				extracted.Surface, extracted.Normalized, string(extracted.Type),
			).Scan(&entityID)
			if err != nil {
				return 0, helper.NewError("upsert entity", err)
			}

			if _, err := tx.ExecContext(ctx,
				`SELECT link_contains_entity($1, $2, $3)`,
				chunk.ID, entityID, extracted.Confidence,
			); err != nil {
				return 0, helper.NewError("link contains entity", err)
			}

			linked[entityID] = struct{}{}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`SELECT update_document_status($1, $2, $3)`,
		doc.ID, string(model.DocumentStatusIngested), len(chunks),
	); err != nil {
		return 0, helper.NewError("mark document ingested", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, helper.NewError("commit document write", err)
	}

	doc.Status = model.DocumentStatusIngested
	doc.ChunkCount = len(chunks)

	return len(linked), nil
}

// communityLockKey is the advisory lock key for the community rebuild.
// The builder must not run concurrently with ingestion writers.
const communityLockKey = "community_rebuild"

// AcquireCommunityLock takes the process-wide community rebuild advisory
// lock. Returns a release function, or an error when the lock is held by
// another session.
func (s *Store) AcquireCommunityLock(ctx context.Context) (func() error, error) {
	conn, err := s.DB.Instance.Conn(ctx)
	if err != nil {
		return nil, helper.NewError("acquire connection", err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock(hashtext($1))`,
		communityLockKey,
	).Scan(&acquired)
	if err != nil {
		conn.Close()
		return nil, helper.NewError("acquire advisory lock", err)
	}
	if !acquired {
		conn.Close()
		return nil, helper.NewError("acquire advisory lock", fmt.Errorf("community rebuild already running"))
	}

	release := func() error {
		defer conn.Close()
		_, err := conn.ExecContext(context.Background(),
			`SELECT pg_advisory_unlock(hashtext($1))`,
			communityLockKey,
		)
		return err
	}

	return release, nil
}

// LastWriteAt returns the most recent document update timestamp, used by
// the community builder to detect ingestion quiescence. The zero time is
// returned for an empty store.
func (s *Store) LastWriteAt(ctx context.Context) (time.Time, error) {
	var ts sql.NullTime
	err := s.DB.Instance.QueryRowContext(ctx,
		`SELECT MAX(updated_at) FROM documents`,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, helper.NewError("query last write", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}
