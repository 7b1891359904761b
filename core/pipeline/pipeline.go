package pipeline

import (
	"context"

	"github.com/JasonAskew/knowledge/model"
)

// Pipeline bundles the per-document processing stages. The ingestion
// orchestrator drives the stages as a DAG; chunking is sequential,
// embedding and entity extraction run against the same chunk slice.
type Pipeline struct {
	Chunker  *Chunker
	Embedder Embedder
	Entities *EntityExtractor
}

// NewPipeline wires the processing stages together.
func NewPipeline(chunker *Chunker, embedder Embedder, entities *EntityExtractor) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
		Entities: entities,
	}
}

// Chunk produces the document's chunk sequence from its pages.
func (p *Pipeline) Chunk(documentID string, pages []model.Page) []*model.Chunk {
	return p.Chunker.ChunkPages(documentID, pages)
}

// Embed fills in chunk embeddings, batched across the document's
// chunks only.
func (p *Pipeline) Embed(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := p.Embedder.Encode(ctx, texts)
	if err != nil {
		return err
	}
	for i, chunk := range chunks {
		chunk.Embedding = embeddings[i]
	}
	return nil
}

// ExtractEntities runs entity extraction per chunk and returns the
// hits keyed by chunk id.
func (p *Pipeline) ExtractEntities(ctx context.Context, chunks []*model.Chunk) (map[string][]model.ExtractedEntity, error) {
	entities := make(map[string][]model.ExtractedEntity, len(chunks))
	for _, chunk := range chunks {
		hits, err := p.Entities.Extract(ctx, chunk.Text)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			entities[chunk.ID] = hits
		}
	}
	return entities, nil
}

// Close releases the model runtimes.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.Embedder != nil {
		if err := p.Embedder.Close(); err != nil {
			firstErr = err
		}
	}
	if p.Entities != nil {
		if err := p.Entities.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
