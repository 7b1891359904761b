package community

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JasonAskew/knowledge/database"
	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// Builder recomputes the co-occurrence overlay as a batch job. It must
// not run concurrently with ingestion writers; the store's advisory
// lock enforces that across processes.
type Builder struct {
	store  *database.Store
	config model.Config
	logger *slog.Logger
}

func NewBuilder(store *database.Store, config model.Config, logger *slog.Logger) *Builder {
	return &Builder{store: store, config: config, logger: logger}
}

// Result summarizes one rebuild run.
type Result struct {
	Edges       int           `json:"edges"`
	Entities    int           `json:"entities"`
	Communities int           `json:"communities"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Rebuild regenerates RELATED_TO edges, detects communities, and writes
// the per-entity metrics. When wait is true the builder first waits for
// ingestion quiescence (no writes for the configured dwell).
func (b *Builder) Rebuild(ctx context.Context, wait bool) (*Result, error) {
	start := time.Now()

	if wait {
		if err := b.awaitQuiescence(ctx); err != nil {
			return nil, err
		}
	}

	release, err := b.store.AcquireCommunityLock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(); err != nil {
			b.logger.Error("Failed to release community lock", slog.String("error", err.Error()))
		}
	}()

	edges, err := b.store.Relations.RebuildRelatedTo(ctx, b.config.CooccurrenceMinStrength)
	if err != nil {
		return nil, err
	}

	relations, err := b.store.Relations.SelectEntityRelations()
	if err != nil {
		return nil, err
	}
	graph := NewGraph()
	for _, relation := range relations {
		graph.AddEdge(relation.EntityA, relation.EntityB, float64(relation.Strength))
	}

	assignment := Louvain(graph, b.config.LouvainResolution)
	metrics := ComputeMetrics(graph, assignment)

	communities := make(map[int64]bool)
	updated := 0
	entities, err := b.store.Entities.SelectAllEntities()
	if err != nil {
		return nil, err
	}
	for _, entity := range entities {
		m, ok := metrics[entity.ID]
		if !ok {
			// Entities without RELATED_TO edges stay outside any community.
			if entity.CommunityID == nil && !entity.IsBridge {
				continue
			}
			entity.CommunityID = nil
			entity.DegreeCentrality = 0
			entity.BetweennessCentrality = 0
			entity.IsBridge = false
			entity.ConnectedCommunities = 0
		} else {
			communityID := m.CommunityID
			entity.CommunityID = &communityID
			entity.DegreeCentrality = m.DegreeCentrality
			entity.BetweennessCentrality = m.BetweennessCentrality
			entity.IsBridge = m.IsBridge
			entity.ConnectedCommunities = m.ConnectedCommunities
			communities[communityID] = true
		}
		if err := b.store.Entities.UpdateEntityCommunity(entity); err != nil {
			return nil, err
		}
		updated++
	}

	result := &Result{
		Edges:       edges,
		Entities:    updated,
		Communities: len(communities),
		Elapsed:     time.Since(start),
	}
	b.logger.Info("Rebuilt communities",
		slog.Int("edges", result.Edges),
		slog.Int("entities", result.Entities),
		slog.Int("communities", result.Communities),
		slog.Duration("elapsed", result.Elapsed))
	return result, nil
}

// awaitQuiescence blocks until no document write has happened for the
// configured dwell.
func (b *Builder) awaitQuiescence(ctx context.Context) error {
	for {
		lastWrite, err := b.store.LastWriteAt(ctx)
		if err != nil {
			return err
		}
		idle := time.Since(lastWrite)
		if lastWrite.IsZero() || idle >= b.config.CommunityDwell {
			return nil
		}

		select {
		case <-time.After(b.config.CommunityDwell - idle):
		case <-ctx.Done():
			return helper.NewError("awaiting ingestion quiescence", fmt.Errorf("cancelled: %w", ctx.Err()))
		}
	}
}
