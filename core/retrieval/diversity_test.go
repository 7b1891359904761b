package retrieval

import (
	"testing"

	"github.com/JasonAskew/knowledge/core/query"
	"github.com/JasonAskew/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diversityCandidate(documentID string, index int, score float64) model.Candidate {
	chunkID := model.ChunkID(documentID, index)
	return model.Candidate{
		ChunkID:    chunkID,
		Score:      score,
		FinalScore: score,
		Chunk: &model.Chunk{
			ID:         chunkID,
			DocumentID: documentID,
			ChunkIndex: index,
		},
	}
}

func comparisonPlan(products ...string) *query.Plan {
	plan := &query.Plan{}
	for _, product := range products {
		plan.Entities = append(plan.Entities, model.ExtractedEntity{
			Normalized: product,
			Type:       model.EntityTypeProduct,
		})
	}
	return plan
}

func TestDiversify(t *testing.T) {
	t.Run("Promotes a second document for comparison queries", func(t *testing.T) {
		candidates := []model.Candidate{
			diversityCandidate("fx_forward.pdf", 0, 0.9),
			diversityCandidate("fx_forward.pdf", 1, 0.8),
			diversityCandidate("fx_forward.pdf", 2, 0.7),
			diversityCandidate("fx_option.pdf", 0, 0.6),
		}

		result := diversify(comparisonPlan("fx forward", "fx option"), candidates, 3)

		require.Len(t, result, 4, "Diversification must not drop candidates")
		assert.Equal(t, "fx_forward.pdf", result[0].Chunk.DocumentID, "The top candidate keeps its rank")
		assert.Equal(t, "fx_option.pdf", result[2].Chunk.DocumentID, "The second document takes the window's last slot")
		assert.Equal(t, "fx_forward.pdf_c0002", result[3].ChunkID, "The displaced candidate moves just below the window")
	})

	t.Run("Single product queries pass through", func(t *testing.T) {
		candidates := []model.Candidate{
			diversityCandidate("fx_forward.pdf", 0, 0.9),
			diversityCandidate("fx_forward.pdf", 1, 0.8),
			diversityCandidate("fx_option.pdf", 0, 0.6),
		}

		result := diversify(comparisonPlan("fx forward"), candidates, 2)

		assert.Equal(t, candidates, result, "A single-product plan must not reorder")
	})

	t.Run("Window already spanning documents passes through", func(t *testing.T) {
		candidates := []model.Candidate{
			diversityCandidate("fx_forward.pdf", 0, 0.9),
			diversityCandidate("fx_option.pdf", 0, 0.8),
			diversityCandidate("fx_forward.pdf", 1, 0.7),
		}

		result := diversify(comparisonPlan("fx forward", "fx option"), candidates, 2)

		assert.Equal(t, candidates, result, "A mixed window must not reorder")
	})

	t.Run("No alternative document leaves the order unchanged", func(t *testing.T) {
		candidates := []model.Candidate{
			diversityCandidate("fx_forward.pdf", 0, 0.9),
			diversityCandidate("fx_forward.pdf", 1, 0.8),
			diversityCandidate("fx_forward.pdf", 2, 0.7),
		}

		result := diversify(comparisonPlan("fx forward", "fx option"), candidates, 2)

		assert.Equal(t, candidates, result, "A single-document corpus cannot be diversified")
	})
}
