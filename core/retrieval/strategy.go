package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/JasonAskew/knowledge/core/query"
	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

const (
	// candidateMultiplier sizes the per-retriever candidate pool
	// relative to top_k.
	candidateMultiplier = 2
	// communityFloor is the normalized score below which phase-one
	// community candidates do not count toward top_k coverage.
	communityFloor = 0.3
	// phraseAdjacencyBonus rewards chunks carrying two query keywords
	// as an adjacent phrase.
	phraseAdjacencyBonus = 0.05
)

// Pre-rerank fusion weights for the hybrid retriever.
const (
	fusionVector  = 0.5
	fusionEntity  = 0.3
	fusionKeyword = 0.2
)

// retrieveKeyword runs full-text search over the plan keywords plus
// product expansion terms. Score is the keyword match ratio plus a
// small phrase adjacency bonus, clipped to [0, 1].
func (e *Engine) retrieveKeyword(ctx context.Context, plan *query.Plan, opts model.SearchOptions) ([]model.Candidate, error) {
	keywords := append(append([]string{}, plan.Keywords...), plan.Expansion...)
	if len(keywords) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks, err := e.store.Chunks.KeywordSearchChunks(ctx, keywords, opts.TopK*candidateMultiplier, opts.Filters)
	if err != nil {
		return nil, helper.NewError("keyword search", err)
	}

	candidates := make([]model.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		score := chunk.Similarity + phraseBonus(chunk.Text, plan.Keywords)
		candidates = append(candidates, model.Candidate{
			ChunkID:   chunk.ID,
			Score:     clip01(score),
			SourceTag: string(model.StrategyKeyword),
			Chunk:     chunk,
		})
	}
	return candidates, ctx.Err()
}

// retrieveVector embeds the raw query and runs approximate nearest
// neighbor search. Score is cosine similarity clipped to [0, 1].
func (e *Engine) retrieveVector(ctx context.Context, plan *query.Plan, opts model.SearchOptions) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings, err := e.embedder.Encode(ctx, []string{plan.Query})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks, err := e.store.Chunks.VectorSearchChunks(ctx, embeddings[0], opts.TopK*candidateMultiplier, opts.Filters)
	if err != nil {
		return nil, helper.NewError("vector search", err)
	}

	candidates := make([]model.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		candidates = append(candidates, model.Candidate{
			ChunkID:   chunk.ID,
			Score:     clip01(chunk.Similarity),
			SourceTag: string(model.StrategyVector),
			Chunk:     chunk,
		})
	}
	return candidates, ctx.Err()
}

// retrieveEntity resolves the plan's PRODUCT and TERM entities against
// the graph and fetches their containing chunks, scored by summed link
// confidence normalized over the result set. Returns no candidates when
// the query carries no known entities.
func (e *Engine) retrieveEntity(ctx context.Context, plan *query.Plan, opts model.SearchOptions) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entities, err := e.queryEntities(plan)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(entities))
	for i, entity := range entities {
		ids[i] = entity.ID
	}

	chunks, err := e.store.Relations.ChunksForEntities(ctx, ids, opts.TopK*candidateMultiplier, opts.Filters)
	if err != nil {
		return nil, helper.NewError("entity search", err)
	}

	return normalizedCandidates(chunks, string(model.StrategyEntity)), ctx.Err()
}

// retrieveCommunity is the two-phase community-aware retriever. Phase
// one searches chunks whose entities lie in the query entities'
// communities; when fewer than top_k candidates clear the floor, phase
// two expands through bridge entities connecting those communities.
func (e *Engine) retrieveCommunity(ctx context.Context, plan *query.Plan, opts model.SearchOptions) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entities, err := e.queryEntities(plan)
	if err != nil {
		return nil, err
	}

	var communityIDs []int64
	seen := make(map[int64]bool)
	for _, entity := range entities {
		if entity.CommunityID != nil && !seen[*entity.CommunityID] {
			seen[*entity.CommunityID] = true
			communityIDs = append(communityIDs, *entity.CommunityID)
		}
	}
	if len(communityIDs) == 0 {
		return nil, nil
	}

	chunks, err := e.store.Relations.ChunksInCommunities(ctx, communityIDs, opts.TopK*candidateMultiplier)
	if err != nil {
		return nil, helper.NewError("community search", err)
	}
	candidates := normalizedCandidates(chunks, string(model.StrategyCommunity))

	covered := 0
	for _, candidate := range candidates {
		if candidate.Score >= communityFloor {
			covered++
		}
	}
	if covered >= opts.TopK {
		return candidates, nil
	}
	if err := ctx.Err(); err != nil {
		return candidates, err
	}

	bridgeChunks, err := e.store.Relations.ChunksForBridges(ctx, communityIDs, opts.TopK*candidateMultiplier)
	if err != nil {
		return candidates, helper.NewError("bridge search", err)
	}

	return mergeCandidates(candidates, normalizedCandidates(bridgeChunks, string(model.StrategyCommunity))), ctx.Err()
}

// retrieveHybrid fans out to the keyword, vector and entity retrievers
// concurrently and fuses their candidate sets with fixed weights. A
// failed sub-retriever degrades the fusion to the others; the call only
// errors when every sub-retriever came back empty-handed with an error.
func (e *Engine) retrieveHybrid(ctx context.Context, plan *query.Plan, opts model.SearchOptions) ([]model.Candidate, error) {
	type tagged struct {
		name       string
		weight     float64
		candidates []model.Candidate
		err        error
	}

	var group errgroup.Group
	results := make([]tagged, 3)

	group.Go(func() error {
		candidates, err := e.retrieveKeyword(ctx, plan, opts)
		results[0] = tagged{string(model.StrategyKeyword), fusionKeyword, candidates, err}
		return nil
	})
	if opts.UseVector {
		group.Go(func() error {
			candidates, err := e.retrieveVector(ctx, plan, opts)
			results[1] = tagged{string(model.StrategyVector), fusionVector, candidates, err}
			return nil
		})
	}
	group.Go(func() error {
		candidates, err := e.retrieveEntity(ctx, plan, opts)
		results[2] = tagged{string(model.StrategyEntity), fusionEntity, candidates, err}
		return nil
	})
	_ = group.Wait()

	var firstErr error
	launched, failed := 0, 0
	for _, result := range results {
		if result.name == "" {
			continue
		}
		launched++
		if result.err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = result.err
		}
		if len(result.candidates) == 0 {
			failed++
		}
		e.logger.Warn("Hybrid sub-retriever degraded",
			slog.String("retriever", result.name),
			slog.String("error", result.err.Error()),
		)
	}
	if failed == launched {
		return nil, firstErr
	}

	fused := make(map[string]*model.Candidate)
	var order []string
	for _, result := range results {
		for _, candidate := range result.candidates {
			existing, ok := fused[candidate.ChunkID]
			if !ok {
				existing = &model.Candidate{
					ChunkID:   candidate.ChunkID,
					SourceTag: string(model.StrategyHybrid),
					Chunk:     candidate.Chunk,
				}
				fused[candidate.ChunkID] = existing
				order = append(order, candidate.ChunkID)
			}
			existing.Score += result.weight * candidate.Score
			existing.SourceTags = append(existing.SourceTags, candidate.SourceTag)
		}
	}

	candidates := make([]model.Candidate, 0, len(fused))
	for _, chunkID := range order {
		candidates = append(candidates, *fused[chunkID])
	}
	return candidates, nil
}

// queryEntities resolves the plan's extracted entities to stored entity
// nodes by their natural keys.
func (e *Engine) queryEntities(plan *query.Plan) ([]*model.Entity, error) {
	if len(plan.Entities) == 0 {
		return nil, nil
	}

	var keys []string
	var types []model.EntityType
	seen := make(map[string]bool)
	for _, extracted := range plan.Entities {
		if seen[extracted.Normalized] {
			continue
		}
		seen[extracted.Normalized] = true
		keys = append(keys, extracted.Normalized)
		types = append(types, extracted.Type)
	}

	entities, err := e.store.Entities.SelectEntitiesByKeys(keys, types)
	if err != nil {
		return nil, helper.NewError("select query entities", err)
	}
	return entities, nil
}

// normalizedCandidates converts scored chunks into candidates with
// scores normalized by the maximum score in the set.
func normalizedCandidates(chunks []*model.Chunk, tag string) []model.Candidate {
	max := 0.0
	for _, chunk := range chunks {
		if chunk.Similarity > max {
			max = chunk.Similarity
		}
	}

	candidates := make([]model.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		score := 0.0
		if max > 0 {
			score = chunk.Similarity / max
		}
		candidates = append(candidates, model.Candidate{
			ChunkID:   chunk.ID,
			Score:     score,
			SourceTag: tag,
			Chunk:     chunk,
		})
	}
	return candidates
}

// mergeCandidates unions two candidate sets, keeping the higher score
// per chunk.
func mergeCandidates(first, second []model.Candidate) []model.Candidate {
	merged := make([]model.Candidate, 0, len(first)+len(second))
	index := make(map[string]int)
	for _, candidate := range first {
		index[candidate.ChunkID] = len(merged)
		merged = append(merged, candidate)
	}
	for _, candidate := range second {
		if i, ok := index[candidate.ChunkID]; ok {
			if candidate.Score > merged[i].Score {
				merged[i].Score = candidate.Score
			}
			continue
		}
		index[candidate.ChunkID] = len(merged)
		merged = append(merged, candidate)
	}
	return merged
}

// phraseBonus rewards adjacent keyword pairs appearing verbatim in the
// chunk text.
func phraseBonus(text string, keywords []string) float64 {
	if len(keywords) < 2 {
		return 0
	}
	lower := strings.ToLower(text)
	for i := 0; i+1 < len(keywords); i++ {
		if strings.Contains(lower, keywords[i]+" "+keywords[i+1]) {
			return phraseAdjacencyBonus
		}
	}
	return 0
}

// sortByScore orders candidates by the given score descending with
// deterministic tie-breaks: higher semantic density, then lower page
// number, then chunk ID.
func sortByScore(candidates []model.Candidate, score func(model.Candidate) float64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if score(a) != score(b) {
			return score(a) > score(b)
		}
		if a.Chunk != nil && b.Chunk != nil {
			if a.Chunk.SemanticDensity != b.Chunk.SemanticDensity {
				return a.Chunk.SemanticDensity > b.Chunk.SemanticDensity
			}
			if a.Chunk.PageNum != b.Chunk.PageNum {
				return a.Chunk.PageNum < b.Chunk.PageNum
			}
		}
		return a.ChunkID < b.ChunkID
	})
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
