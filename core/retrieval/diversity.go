package retrieval

import (
	"github.com/JasonAskew/knowledge/core/query"
	"github.com/JasonAskew/knowledge/model"
)

// diversify guards comparison-style queries against a single document
// monopolizing the result window. When the plan names two or more
// distinct products and every candidate inside the window comes from
// one document, the best-ranked chunk from another document replaces
// the window's last slot. Single-product queries pass through
// untouched.
func diversify(plan *query.Plan, candidates []model.Candidate, topK int) []model.Candidate {
	if countProducts(plan) < 2 || len(candidates) <= topK {
		return candidates
	}

	window := candidates[:topK]
	windowDocs := make(map[string]bool)
	for _, candidate := range window {
		if candidate.Chunk != nil {
			windowDocs[candidate.Chunk.DocumentID] = true
		}
	}
	if len(windowDocs) != 1 {
		return candidates
	}

	for i := topK; i < len(candidates); i++ {
		candidate := candidates[i]
		if candidate.Chunk == nil || windowDocs[candidate.Chunk.DocumentID] {
			continue
		}
		reordered := make([]model.Candidate, 0, len(candidates))
		reordered = append(reordered, candidates[:topK-1]...)
		reordered = append(reordered, candidate)
		reordered = append(reordered, window[topK-1])
		reordered = append(reordered, candidates[topK:i]...)
		reordered = append(reordered, candidates[i+1:]...)
		return reordered
	}
	return candidates
}

func countProducts(plan *query.Plan) int {
	products := make(map[string]bool)
	for _, entity := range plan.Entities {
		if entity.Type == model.EntityTypeProduct {
			products[entity.Normalized] = true
		}
	}
	return len(products)
}
