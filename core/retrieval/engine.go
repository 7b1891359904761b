// Package retrieval answers queries over the ingested graph with
// multiple retrieval strategies and cross-encoder reranking.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/JasonAskew/knowledge/core/pipeline"
	"github.com/JasonAskew/knowledge/core/query"
	"github.com/JasonAskew/knowledge/database"
	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// strategyDeadline is reported when the query deadline expired and the
// response carries whatever candidates were fetched before it did.
const strategyDeadline = "deadline"

// Engine runs search requests end to end: plan, retrieve, rerank, cite.
type Engine struct {
	store    *database.Store
	planner  *query.Planner
	embedder pipeline.Embedder
	reranker Reranker
	weights  model.RerankWeights
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine. reranker may be nil, in which
// case results keep their pre-rerank order.
func NewEngine(store *database.Store, planner *query.Planner, embedder pipeline.Embedder, reranker Reranker, weights model.RerankWeights, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		planner:  planner,
		embedder: embedder,
		reranker: reranker,
		weights:  weights,
		logger:   logger,
	}
}

// Search runs one query and returns ranked citations. The requested
// strategy degrades to hybrid when it cannot run (no query entities for
// entity or community retrieval, vector disabled); the strategy that
// actually produced the candidates is reported in the response. When
// the deadline expires mid-flight the response carries the candidates
// fetched so far in retrieval order, never an error.
func (e *Engine) Search(ctx context.Context, queryText string, opts model.SearchOptions) (*model.SearchResponse, error) {
	start := time.Now()

	if opts.Strategy == "" {
		opts.Strategy = model.StrategyHybrid
	}
	if opts.TopK <= 0 {
		opts.TopK = model.DefaultSearchOptions().TopK
	}
	if opts.TopK > model.MaxTopK {
		opts.TopK = model.MaxTopK
	}

	if ctx.Err() != nil {
		return e.deadlineResponse(nil, 0, start)
	}

	plan, err := e.planner.Plan(ctx, queryText)
	if err != nil {
		if ctx.Err() != nil {
			return e.deadlineResponse(nil, 0, start)
		}
		return nil, helper.NewError("plan query", err)
	}

	candidates, used, err := e.retrieve(ctx, plan, opts)
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	considered := len(candidates)

	sortByScore(candidates, func(c model.Candidate) float64 { return c.Score })
	if len(candidates) > opts.TopK*candidateMultiplier {
		candidates = candidates[:opts.TopK*candidateMultiplier]
	}

	if ctx.Err() != nil {
		if len(candidates) > opts.TopK {
			candidates = candidates[:opts.TopK]
		}
		return e.deadlineResponse(candidates, considered, start)
	}

	if opts.UseRerank && e.reranker != nil && len(candidates) > 0 {
		candidates = e.rerank(ctx, plan, candidates)
	} else {
		for i := range candidates {
			candidates[i].FinalScore = candidates[i].Score
		}
	}

	candidates = diversify(plan, candidates, opts.TopK)
	if len(candidates) > opts.TopK {
		candidates = candidates[:opts.TopK]
	}

	citations, err := e.assembleCitations(candidates)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Search completed",
		slog.String("strategy", used),
		slog.String("class", string(plan.Class)),
		slog.Int("candidates", considered),
		slog.Int("citations", len(citations)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &model.SearchResponse{
		Citations:                 citations,
		TotalCandidatesConsidered: considered,
		ElapsedMs:                 time.Since(start).Milliseconds(),
		StrategyActuallyUsed:      used,
	}, nil
}

// deadlineResponse builds the partial response for an expired query.
// Candidates keep their pre-rerank order; an empty candidate set yields
// an empty citation list, not an error.
func (e *Engine) deadlineResponse(candidates []model.Candidate, considered int, start time.Time) (*model.SearchResponse, error) {
	for i := range candidates {
		candidates[i].FinalScore = candidates[i].Score
	}

	citations, err := e.assembleCitations(candidates)
	if err != nil {
		e.logger.Warn("Citation assembly after deadline expiry failed", slog.String("error", err.Error()))
		citations = nil
	}
	if citations == nil {
		citations = []model.Citation{}
	}

	e.logger.Warn("Search deadline exceeded, returning partial results",
		slog.Int("candidates", considered),
		slog.Int("citations", len(citations)),
	)

	return &model.SearchResponse{
		Citations:                 citations,
		TotalCandidatesConsidered: considered,
		ElapsedMs:                 time.Since(start).Milliseconds(),
		StrategyActuallyUsed:      strategyDeadline,
	}, nil
}

// retrieve dispatches to the requested strategy, falling back to hybrid
// when the strategy has nothing to work with. Candidates fetched before
// an error are returned alongside it.
func (e *Engine) retrieve(ctx context.Context, plan *query.Plan, opts model.SearchOptions) ([]model.Candidate, string, error) {
	switch opts.Strategy {
	case model.StrategyKeyword:
		candidates, err := e.retrieveKeyword(ctx, plan, opts)
		return candidates, string(model.StrategyKeyword), err

	case model.StrategyVector:
		if !opts.UseVector {
			candidates, err := e.retrieveKeyword(ctx, plan, opts)
			return candidates, string(model.StrategyKeyword), err
		}
		candidates, err := e.retrieveVector(ctx, plan, opts)
		return candidates, string(model.StrategyVector), err

	case model.StrategyEntity:
		candidates, err := e.retrieveEntity(ctx, plan, opts)
		if err != nil {
			return candidates, string(model.StrategyEntity), err
		}
		if len(candidates) > 0 {
			return candidates, string(model.StrategyEntity), nil
		}

	case model.StrategyCommunity:
		candidates, err := e.retrieveCommunity(ctx, plan, opts)
		if err != nil {
			return candidates, string(model.StrategyCommunity), err
		}
		if len(candidates) > 0 {
			return candidates, string(model.StrategyCommunity), nil
		}
	}

	candidates, err := e.retrieveHybrid(ctx, plan, opts)
	return candidates, string(model.StrategyHybrid), err
}
