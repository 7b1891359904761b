// Package graph provides traversal over the RELATED_TO entity graph,
// used for related-entity exploration around a query entity.
package graph

import (
	"sort"

	"github.com/JasonAskew/knowledge/model"
)

// Visit is one entity reached during traversal, with its hop distance
// from the source and the path taken.
type Visit struct {
	EntityID int64
	Distance int
	Path     []int64
}

// adjacency builds an undirected neighbor map from RELATED_TO edges,
// neighbors sorted ascending for deterministic traversal order.
func adjacency(relations []*model.EntityRelation) map[int64][]int64 {
	adj := make(map[int64][]int64)
	for _, relation := range relations {
		adj[relation.EntityA] = append(adj[relation.EntityA], relation.EntityB)
		adj[relation.EntityB] = append(adj[relation.EntityB], relation.EntityA)
	}
	for id := range adj {
		sort.Slice(adj[id], func(i, j int) bool { return adj[id][i] < adj[id][j] })
	}
	return adj
}

// BFS walks the entity graph breadth-first from sourceID up to maxHops.
// The source itself is the first visit at distance zero. Entities are
// visited once, at their shortest distance.
func BFS(relations []*model.EntityRelation, sourceID int64, maxHops int) []Visit {
	adj := adjacency(relations)

	visited := map[int64]bool{sourceID: true}
	queue := []Visit{{EntityID: sourceID, Distance: 0, Path: []int64{sourceID}}}
	var visits []Visit

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visits = append(visits, current)

		if current.Distance >= maxHops {
			continue
		}

		for _, neighbor := range adj[current.EntityID] {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true

			path := make([]int64, len(current.Path), len(current.Path)+1)
			copy(path, current.Path)
			queue = append(queue, Visit{
				EntityID: neighbor,
				Distance: current.Distance + 1,
				Path:     append(path, neighbor),
			})
		}
	}

	return visits
}

// Neighbors returns the entities one hop from sourceID.
func Neighbors(relations []*model.EntityRelation, sourceID int64) []int64 {
	var neighbors []int64
	for _, visit := range BFS(relations, sourceID, 1) {
		if visit.Distance == 1 {
			neighbors = append(neighbors, visit.EntityID)
		}
	}
	return neighbors
}
