package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/JasonAskew/knowledge/core/query"
	"github.com/JasonAskew/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedReranker struct {
	scores []float64
	err    error
}

func (f *fixedReranker) Score(ctx context.Context, queryText string, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.scores[:len(texts)], nil
}

func (f *fixedReranker) Close() error { return nil }

func rerankEngine(reranker Reranker) *Engine {
	return &Engine{
		reranker: reranker,
		weights:  model.DefaultConfig().RerankWeights,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func rerankCandidate(id string, score, density float64, page int, chunkType model.ChunkType, keywords []string) model.Candidate {
	return model.Candidate{
		ChunkID: id,
		Score:   score,
		Chunk: &model.Chunk{
			ID:              id,
			Text:            "text for " + id,
			PageNum:         page,
			SemanticDensity: density,
			ChunkType:       chunkType,
			Keywords:        keywords,
		},
	}
}

func TestRerank(t *testing.T) {
	t.Run("Final score fuses all four signals", func(t *testing.T) {
		engine := rerankEngine(&fixedReranker{scores: []float64{0.9, 0.1}})
		plan := &query.Plan{
			Query:    "what is a swap",
			Class:    query.ClassDefinition,
			Keywords: []string{"swap", "rate"},
		}
		candidates := []model.Candidate{
			rerankCandidate("a", 0.2, 0.5, 1, model.ChunkTypeDefinition, []string{"swap", "rate"}),
			rerankCandidate("b", 0.8, 0.5, 2, model.ChunkTypeContent, nil),
		}

		reranked := engine.rerank(context.Background(), plan, candidates)
		require.Len(t, reranked, 2, "rerank must keep all candidates")

		// a: 0.5*0.9 + 0.3*0.2 + 0.1*1.0 (keyword) + 0.1*1.0 (type) = 0.71
		// b: 0.5*0.1 + 0.3*0.8 + 0 + 0 = 0.29
		assert.Equal(t, "a", reranked[0].ChunkID, "cross-encoder signal should dominate")
		assert.InDelta(t, 0.71, reranked[0].FinalScore, 1e-9, "fused score for a")
		assert.InDelta(t, 0.29, reranked[1].FinalScore, 1e-9, "fused score for b")
	})

	t.Run("Ties break on density then page number", func(t *testing.T) {
		engine := rerankEngine(&fixedReranker{scores: []float64{0.5, 0.5, 0.5}})
		plan := &query.Plan{Query: "q", Class: query.ClassGeneral}
		candidates := []model.Candidate{
			rerankCandidate("late", 0.4, 0.6, 9, model.ChunkTypeContent, nil),
			rerankCandidate("dense", 0.4, 0.9, 9, model.ChunkTypeContent, nil),
			rerankCandidate("early", 0.4, 0.6, 2, model.ChunkTypeContent, nil),
		}

		reranked := engine.rerank(context.Background(), plan, candidates)
		require.Len(t, reranked, 3, "rerank must keep all candidates")
		assert.Equal(t, "dense", reranked[0].ChunkID, "higher density wins ties")
		assert.Equal(t, "early", reranked[1].ChunkID, "lower page breaks remaining tie")
		assert.Equal(t, "late", reranked[2].ChunkID, "later page ranks last")
	})

	t.Run("Scoring failure degrades to retrieval order", func(t *testing.T) {
		engine := rerankEngine(&fixedReranker{err: fmt.Errorf("model offline")})
		plan := &query.Plan{Query: "q", Class: query.ClassGeneral}
		candidates := []model.Candidate{
			rerankCandidate("first", 0.9, 0.5, 1, model.ChunkTypeContent, nil),
			rerankCandidate("second", 0.4, 0.5, 2, model.ChunkTypeContent, nil),
		}

		reranked := engine.rerank(context.Background(), plan, candidates)
		require.Len(t, reranked, 2, "degraded rerank must never drop candidates")
		assert.Equal(t, "first", reranked[0].ChunkID, "pre-rerank order preserved")
		assert.Equal(t, 0.9, reranked[0].FinalScore, "final score falls back to retriever score")
	})

	t.Run("Expired deadline degrades to retrieval order", func(t *testing.T) {
		engine := rerankEngine(&fixedReranker{scores: []float64{1.0}})
		plan := &query.Plan{Query: "q", Class: query.ClassGeneral}
		candidates := []model.Candidate{
			rerankCandidate("only", 0.7, 0.5, 1, model.ChunkTypeContent, nil),
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		reranked := engine.rerank(ctx, plan, candidates)
		require.NotEmpty(t, reranked, "non-empty candidates must never rerank to empty")
		assert.Equal(t, 0.7, reranked[0].FinalScore, "final score falls back to retriever score")
	})
}

func TestJaccard(t *testing.T) {
	t.Run("Overlap over union", func(t *testing.T) {
		score := jaccard(map[string]bool{"a": true, "b": true, "c": true}, []string{"b", "c", "d"})
		assert.InDelta(t, 0.5, score, 1e-9, "two of four distinct keywords overlap")
	})

	t.Run("Empty sets score zero", func(t *testing.T) {
		assert.Zero(t, jaccard(nil, []string{"a"}), "empty query keywords")
		assert.Zero(t, jaccard(map[string]bool{"a": true}, nil), "empty chunk keywords")
	})
}
