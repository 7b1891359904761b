// Package knowledge builds a property graph from PDF corpora and
// answers natural-language questions over it with multi-strategy
// retrieval and cross-encoder reranking.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/JasonAskew/knowledge/core/community"
	"github.com/JasonAskew/knowledge/core/extract"
	"github.com/JasonAskew/knowledge/core/graph"
	"github.com/JasonAskew/knowledge/core/ingest"
	"github.com/JasonAskew/knowledge/core/pipeline"
	"github.com/JasonAskew/knowledge/core/query"
	"github.com/JasonAskew/knowledge/core/retrieval"
	"github.com/JasonAskew/knowledge/database"
	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	loadSql "github.com/JasonAskew/knowledge/sql"
)

// Knowledge is the engine facade: ingestion, retrieval, community
// detection, schema and export in one handle. Model runtimes are
// lazy-initialized on first use to keep startup fast.
type Knowledge struct {
	DB     *helper.Database
	Store  *database.Store
	Config model.Config

	log      *slog.Logger
	errorLog *ingest.ErrorLog
	builder  *community.Builder

	// Write queries are off unless explicitly enabled.
	allowWrites bool

	modelOnce sync.Once
	modelErr  error

	// Injected before first use, or built by default model setup.
	embedder pipeline.Embedder
	ner      pipeline.NERModel
	reranker retrieval.Reranker
	ocr      extract.PageSource

	pipeline     *pipeline.Pipeline
	orchestrator *ingest.Orchestrator
	retriever    *retrieval.Engine
}

// New creates the engine, connecting to the store and loading the
// schema. Models are not loaded yet; they initialize on first ingest
// or search, or eagerly via Start.
func New(dbConfig *helper.DatabaseConfiguration, config model.Config) (*Knowledge, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	db := helper.NewDatabase("knowledge", dbConfig, logger)
	if err := loadSql.Init(db.Instance); err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	store, err := database.NewStore(db, config.EmbeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create store", err)
	}

	return &Knowledge{
		DB:       db,
		Store:    store,
		Config:   config,
		log:      logger,
		errorLog: ingest.NewErrorLog(config.ErrorLogPath),
		builder:  community.NewBuilder(store, config, logger),
	}, nil
}

// SetModels injects model implementations, overriding the default local
// runtimes. Must be called before the first ingest or search.
func (k *Knowledge) SetModels(embedder pipeline.Embedder, ner pipeline.NERModel, reranker retrieval.Reranker) {
	k.embedder = embedder
	k.ner = ner
	k.reranker = reranker
}

// SetOCRFallback sets the page source used when native PDF text
// extraction comes back empty.
func (k *Knowledge) SetOCRFallback(ocr extract.PageSource) {
	k.ocr = ocr
}

// EnableWriteQueries permits WriteQuery on this handle.
func (k *Knowledge) EnableWriteQueries() {
	k.allowWrites = true
}

// Start eagerly initializes the model runtimes and the ingestion and
// retrieval stacks. Cancelling ctx aborts the model warm-up.
func (k *Knowledge) Start(ctx context.Context) error {
	return k.initModels(ctx)
}

func (k *Knowledge) initModels(ctx context.Context) error {
	k.modelOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			k.modelErr = helper.NewError("initialize models", err)
			return
		}

		if k.embedder == nil {
			embedder, err := pipeline.NewHugotEmbedder(k.Config.EmbeddingDim)
			if err != nil {
				k.modelErr = helper.NewError("initialize embedder", err)
				return
			}
			k.embedder = embedder
		}
		if err := ctx.Err(); err != nil {
			k.modelErr = helper.NewError("initialize models", err)
			return
		}

		if k.ner == nil {
			ner, err := pipeline.NewHugotNER()
			if err != nil {
				// Pattern extraction still works without NER.
				k.log.Warn("NER model unavailable, continuing with pattern extraction only", "error", err)
			} else {
				k.ner = ner
			}
		}
		if err := ctx.Err(); err != nil {
			k.modelErr = helper.NewError("initialize models", err)
			return
		}

		if k.reranker == nil {
			reranker, err := retrieval.NewHugotReranker()
			if err != nil {
				k.log.Warn("Reranker model unavailable, search degrades to retrieval order", "error", err)
			} else {
				k.reranker = reranker
			}
		}

		k.pipeline = pipeline.NewPipeline(
			pipeline.NewChunker(&k.Config),
			k.embedder,
			pipeline.NewEntityExtractor(k.ner),
		)

		extractor := extract.NewExtractor(k.ocr)
		k.orchestrator = ingest.NewOrchestrator(k.Store, extractor, k.pipeline, k.errorLog, k.Config, k.log)

		planner := query.NewPlanner(pipeline.NewEntityExtractor(k.ner))
		k.retriever = retrieval.NewEngine(k.Store, planner, k.embedder, k.reranker, k.Config.RerankWeights, k.log)
	})
	return k.modelErr
}

// Ingest processes one document end to end: extract, chunk, embed,
// extract entities, write, validate. Failures are classified, retried
// when retryable, and recorded in the error log.
func (k *Knowledge) Ingest(ctx context.Context, input ingest.Input) (model.IngestResult, error) {
	if err := k.initModels(ctx); err != nil {
		return model.IngestResult{}, err
	}
	return k.orchestrator.Ingest(ctx, input), nil
}

// IngestAll processes documents on a bounded worker pool, returning
// per-document results in input order.
func (k *Knowledge) IngestAll(ctx context.Context, inputs []ingest.Input) ([]model.IngestResult, error) {
	if err := k.initModels(ctx); err != nil {
		return nil, err
	}
	return k.orchestrator.IngestAll(ctx, inputs), nil
}

// IngestStats returns the cumulative ingestion counters. Zero before
// the first ingest.
func (k *Knowledge) IngestStats() ingest.Stats {
	if k.orchestrator == nil {
		return ingest.Stats{}
	}
	return k.orchestrator.Stats()
}

// Search answers one query with ranked citations. The configured query
// deadline is applied when the caller's context carries none.
func (k *Knowledge) Search(ctx context.Context, queryText string, opts model.SearchOptions) (*model.SearchResponse, error) {
	if err := k.initModels(ctx); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && k.Config.QueryDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.Config.QueryDeadline)
		defer cancel()
	}

	return k.retriever.Search(ctx, queryText, opts)
}

// RebuildCommunities recomputes RELATED_TO edges, detects communities
// and writes centrality metrics. With wait set it first waits for
// ingestion to go quiet.
func (k *Knowledge) RebuildCommunities(ctx context.Context, wait bool) (*community.Result, error) {
	return k.builder.Rebuild(ctx, wait)
}

// Schema summarizes the store: node counts, relationship counts,
// constraints and indexes.
func (k *Knowledge) Schema(ctx context.Context) (*model.SchemaSummary, error) {
	return k.Store.SchemaSummary(ctx)
}

// Export serializes the whole graph into the portable JSON layout.
func (k *Knowledge) Export(ctx context.Context) (*model.GraphExport, error) {
	return k.Store.Export(ctx)
}

// Import restores a graph export into the store.
func (k *Knowledge) Import(ctx context.Context, export *model.GraphExport) error {
	return k.Store.Import(ctx, export, k.Config.EmbeddingDim)
}

// EntityVisit is one entity reached by RelatedEntities.
type EntityVisit struct {
	Entity   *model.Entity
	Distance int
}

// RelatedEntities walks the RELATED_TO graph outward from an entity,
// returning the entities reached within maxHops ordered by distance.
func (k *Knowledge) RelatedEntities(ctx context.Context, normalized string, entityType model.EntityType, maxHops int) ([]EntityVisit, error) {
	source, err := k.Store.Entities.SelectEntityByKey(normalized, entityType)
	if err != nil {
		return nil, helper.NewError("select source entity", err)
	}

	relations, err := k.Store.Relations.SelectEntityRelations()
	if err != nil {
		return nil, helper.NewError("select entity relations", err)
	}

	entities, err := k.Store.Entities.SelectAllEntities()
	if err != nil {
		return nil, helper.NewError("select entities", err)
	}
	byID := make(map[int64]*model.Entity, len(entities))
	for _, entity := range entities {
		byID[entity.ID] = entity
	}

	var visits []EntityVisit
	for _, visit := range graph.BFS(relations, source.ID, maxHops) {
		if entity, ok := byID[visit.EntityID]; ok {
			visits = append(visits, EntityVisit{Entity: entity, Distance: visit.Distance})
		}
	}
	return visits, nil
}

// ReadQuery runs a read-only SQL query against the store and returns
// generic rows. Statements that are not plain reads are rejected, and
// the query runs inside a READ ONLY transaction so data-modifying CTEs
// cannot slip past the prefix check.
func (k *Knowledge) ReadQuery(ctx context.Context, statement string, args ...interface{}) ([]map[string]interface{}, error) {
	if !isReadStatement(statement) {
		return nil, helper.NewError("read query", fmt.Errorf("only SELECT and WITH statements are allowed"))
	}

	tx, err := k.DB.Instance.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, helper.NewError("begin read-only transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, helper.NewError("read query", err)
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
			return nil, helper.NewError("scan row", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
			} else {
				row[column] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// WriteQuery runs a mutating SQL statement. Disabled unless the handle
// has write queries enabled.
func (k *Knowledge) WriteQuery(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	if !k.allowWrites {
		return 0, helper.NewError("write query", fmt.Errorf("write queries are not enabled on this handle"))
	}

	result, err := k.DB.Instance.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, helper.NewError("write query", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, helper.NewError("count affected rows", err)
	}
	return affected, nil
}

// ChangeIndexType switches the vector index between HNSW and IVFFlat.
func (k *Knowledge) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return k.Store.Chunks.ChangeIndexType(ctx, indexType, params)
}

// Close releases models, the error log and the database connection.
func (k *Knowledge) Close() error {
	if k.pipeline != nil {
		if err := k.pipeline.Close(); err != nil {
			k.log.Warn("Closing pipeline failed", "error", err)
		}
	}
	if k.reranker != nil {
		if err := k.reranker.Close(); err != nil {
			k.log.Warn("Closing reranker failed", "error", err)
		}
	}
	if k.errorLog != nil {
		if err := k.errorLog.Close(); err != nil {
			k.log.Warn("Closing error log failed", "error", err)
		}
	}
	if k.DB != nil && k.DB.Instance != nil {
		return k.DB.Instance.Close()
	}
	return nil
}

func isReadStatement(statement string) bool {
	head := strings.ToUpper(strings.TrimSpace(statement))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}
