package ingest

import (
	"context"
	"crypto/md5"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/JasonAskew/knowledge/core/extract"
	"github.com/JasonAskew/knowledge/core/pipeline"
	"github.com/JasonAskew/knowledge/database"
	"github.com/JasonAskew/knowledge/model"
	"golang.org/x/sync/errgroup"
)

// Input is one document handed to the orchestrator.
type Input struct {
	Filename string
	Data     []byte
	Division string
	Category string
	Product  string
}

// Stats are cumulative counters since the orchestrator was created.
type Stats struct {
	DocumentsProcessed int64 `json:"documents_processed"`
	DocumentsFailed    int64 `json:"documents_failed"`
	ChunksWritten      int64 `json:"chunks_written"`
	EntitiesLinked     int64 `json:"entities_linked"`
	DuplicatesRemoved  int64 `json:"duplicates_removed"`
}

// Orchestrator runs the per-document ingestion DAG: extract, chunk,
// embed and extract entities in parallel, write, validate. Documents
// are independent; one failure never poisons the pool.
type Orchestrator struct {
	store     *database.Store
	extractor *extract.Extractor
	pipeline  *pipeline.Pipeline
	validator *Validator
	errorLog  *ErrorLog
	config    model.Config
	logger    *slog.Logger

	documentsProcessed atomic.Int64
	documentsFailed    atomic.Int64
	chunksWritten      atomic.Int64
	entitiesLinked     atomic.Int64
	duplicatesRemoved  atomic.Int64
}

func NewOrchestrator(store *database.Store, extractor *extract.Extractor, pl *pipeline.Pipeline, errorLog *ErrorLog, config model.Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		pipeline:  pl,
		validator: NewValidator(config.Validation),
		errorLog:  errorLog,
		config:    config,
		logger:    logger,
	}
}

// IngestAll processes documents concurrently on a bounded worker pool.
// Results come back in input order.
func (o *Orchestrator) IngestAll(ctx context.Context, inputs []Input) []model.IngestResult {
	results := make([]model.IngestResult, len(inputs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.Workers)
	for i, input := range inputs {
		i, input := i, input
		group.Go(func() error {
			results[i] = o.Ingest(groupCtx, input)
			return nil
		})
	}
	// Workers only report per-document results, never errors.
	_ = group.Wait()
	return results
}

// Ingest processes one document, retrying retryable failures with
// exponential backoff. After final failure the document is rolled back
// and the failure recorded.
func (o *Orchestrator) Ingest(ctx context.Context, input Input) model.IngestResult {
	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			o.logger.Info("Retrying document ingestion",
				slog.String("document", input.Filename),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return o.fail(input.Filename, ctx.Err())
			}
		}

		result, err := o.ingestOnce(ctx, input)
		if err == nil {
			return result
		}
		lastErr = err
		if !model.KindOf(err).Retryable() {
			break
		}
	}
	return o.fail(input.Filename, lastErr)
}

// ingestOnce runs the DAG a single time. Each phase gets its own
// deadline; any error leaves the store clean via cascade delete.
func (o *Orchestrator) ingestOnce(ctx context.Context, input Input) (model.IngestResult, error) {
	doc := model.NewDocument(input.Filename)
	doc.Division = input.Division
	doc.Category = input.Category
	doc.Product = input.Product

	extractCtx, cancelExtract := context.WithTimeout(ctx, o.config.IngestPhaseTimeouts.Extract)
	pages, err := o.extractor.Extract(extractCtx, input.Data, input.Filename)
	cancelExtract()
	if err != nil {
		return model.IngestResult{}, classify(err, doc.ID, "extract")
	}
	doc.TotalPages = len(pages)

	chunks, duplicates := dedupeChunks(o.pipeline.Chunk(doc.ID, pages))
	o.duplicatesRemoved.Add(int64(duplicates))

	var entities map[string][]model.ExtractedEntity
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		embedCtx, cancel := context.WithTimeout(groupCtx, o.config.IngestPhaseTimeouts.Embed)
		defer cancel()
		if err := o.pipeline.Embed(embedCtx, chunks); err != nil {
			return classify(err, doc.ID, "embed")
		}
		return nil
	})
	group.Go(func() error {
		entityCtx, cancel := context.WithTimeout(groupCtx, o.config.IngestPhaseTimeouts.Entities)
		defer cancel()
		extracted, err := o.pipeline.ExtractEntities(entityCtx, chunks)
		if err != nil {
			return classify(err, doc.ID, "entities")
		}
		entities = extracted
		return nil
	})
	if err := group.Wait(); err != nil {
		o.rollback(doc.ID)
		return model.IngestResult{}, err
	}

	writeCtx, cancelWrite := context.WithTimeout(ctx, o.config.IngestPhaseTimeouts.Write)
	entityCount, err := o.store.WriteDocumentGraph(writeCtx, doc, chunks, entities)
	cancelWrite()
	if err != nil {
		o.rollback(doc.ID)
		return model.IngestResult{}, classify(err, doc.ID, "write")
	}

	if err := o.validator.Validate(doc, chunks); err != nil {
		o.rollback(doc.ID)
		return model.IngestResult{}, err
	}

	if err := o.store.Documents.UpdateDocumentStatus(doc.ID, model.DocumentStatusValidated, len(chunks)); err != nil {
		o.rollback(doc.ID)
		return model.IngestResult{}, classify(err, doc.ID, "validate")
	}

	o.documentsProcessed.Add(1)
	o.chunksWritten.Add(int64(len(chunks)))
	o.entitiesLinked.Add(int64(entityCount))

	o.logger.Info("Ingested document",
		slog.String("document", doc.ID),
		slog.Int("pages", doc.TotalPages),
		slog.Int("chunks", len(chunks)),
		slog.Int("entities", entityCount))

	return model.IngestResult{
		DocumentID:  doc.ID,
		Status:      model.DocumentStatusValidated,
		ChunkCount:  len(chunks),
		EntityCount: entityCount,
	}, nil
}

// rollback restores a state indistinguishable from the document never
// having been ingested.
func (o *Orchestrator) rollback(documentID string) {
	if _, err := o.store.Documents.DeleteDocumentCascade(documentID); err != nil {
		o.logger.Error("Rollback failed",
			slog.String("document", documentID),
			slog.String("error", err.Error()))
	}
}

// fail records the final failure and builds the failed result. Empty
// documents never wrote anything, everything else is rolled back.
func (o *Orchestrator) fail(documentID string, err error) model.IngestResult {
	kind := model.KindOf(err)
	phase := "ingest"
	var ingestErr *model.IngestError
	if errors.As(err, &ingestErr) {
		phase = ingestErr.Phase
	}
	if kind == "" {
		kind = model.ErrorKindStoreUnavailable
	}
	if kind != model.ErrorKindEmptyDocument {
		o.rollback(documentID)
	}

	record := model.ErrorRecord{
		DocumentID: documentID,
		Phase:      phase,
		ErrorKind:  kind,
		Message:    err.Error(),
		Timestamp:  time.Now().UTC(),
		Retryable:  kind.Retryable(),
	}
	if logErr := o.errorLog.Record(record); logErr != nil {
		o.logger.Error("Failed to record ingestion error", slog.String("error", logErr.Error()))
	}
	o.logger.Error("Document ingestion failed",
		slog.String("document", documentID),
		slog.String("phase", phase),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()))

	o.documentsFailed.Add(1)

	return model.IngestResult{
		DocumentID: documentID,
		Status:     model.DocumentStatusFailed,
		Errors:     []model.ErrorRecord{record},
	}
}

// Stats returns a snapshot of the cumulative ingestion counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		DocumentsProcessed: o.documentsProcessed.Load(),
		DocumentsFailed:    o.documentsFailed.Load(),
		ChunksWritten:      o.chunksWritten.Load(),
		EntitiesLinked:     o.entitiesLinked.Load(),
		DuplicatesRemoved:  o.duplicatesRemoved.Load(),
	}
}

// dedupeChunks drops chunks whose text already appeared earlier in the
// same document, keeping first occurrences. Survivors are reindexed to
// a dense 0..n-1 sequence, with chunk IDs regenerated to match, so
// index-window context expansion never crosses a gap.
func dedupeChunks(chunks []*model.Chunk) ([]*model.Chunk, int) {
	seen := make(map[[16]byte]bool, len(chunks))
	kept := chunks[:0]
	for _, chunk := range chunks {
		hash := md5.Sum([]byte(chunk.Text))
		if seen[hash] {
			continue
		}
		seen[hash] = true
		chunk.ChunkIndex = len(kept)
		chunk.ID = model.ChunkID(chunk.DocumentID, chunk.ChunkIndex)
		kept = append(kept, chunk)
	}
	return kept, len(chunks) - len(kept)
}

// classify wraps unclassified errors with the kind implied by the
// phase. Deadline expiry always maps to a timeout.
func classify(err error, documentID, phase string) error {
	if model.KindOf(err) != "" {
		return err
	}
	kind := model.ErrorKindStoreUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = model.ErrorKindTimeoutExceeded
	}
	return model.NewIngestError(kind, documentID, phase, err)
}
