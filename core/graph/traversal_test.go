package graph

import (
	"testing"

	"github.com/JasonAskew/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds 1-2-3-4 plus a side edge 2-5.
func chain() []*model.EntityRelation {
	return []*model.EntityRelation{
		{EntityA: 1, EntityB: 2, Strength: 3},
		{EntityA: 2, EntityB: 3, Strength: 2},
		{EntityA: 3, EntityB: 4, Strength: 2},
		{EntityA: 2, EntityB: 5, Strength: 4},
	}
}

func TestBFS(t *testing.T) {
	t.Run("Visits entities at shortest distance", func(t *testing.T) {
		visits := BFS(chain(), 1, 3)
		require.Len(t, visits, 5, "all connected entities within three hops")

		distances := make(map[int64]int)
		for _, visit := range visits {
			distances[visit.EntityID] = visit.Distance
		}
		assert.Equal(t, 0, distances[1], "source at distance zero")
		assert.Equal(t, 1, distances[2], "direct neighbor at distance one")
		assert.Equal(t, 2, distances[3], "two hops through entity 2")
		assert.Equal(t, 2, distances[5], "side branch at distance two")
		assert.Equal(t, 3, distances[4], "chain end at distance three")
	})

	t.Run("Max hops bounds the traversal", func(t *testing.T) {
		visits := BFS(chain(), 1, 1)
		require.Len(t, visits, 2, "only source and direct neighbor within one hop")
		assert.Equal(t, int64(2), visits[1].EntityID, "neighbor reached")
	})

	t.Run("Paths trace back to the source", func(t *testing.T) {
		visits := BFS(chain(), 1, 3)
		for _, visit := range visits {
			require.NotEmpty(t, visit.Path, "every visit carries a path")
			assert.Equal(t, int64(1), visit.Path[0], "path starts at the source")
			assert.Equal(t, visit.EntityID, visit.Path[len(visit.Path)-1], "path ends at the visit")
			assert.Len(t, visit.Path, visit.Distance+1, "path length matches distance")
		}
	})

	t.Run("Deterministic visit order", func(t *testing.T) {
		first := BFS(chain(), 2, 2)
		second := BFS(chain(), 2, 2)
		require.Equal(t, len(first), len(second), "same visit count")
		for i := range first {
			assert.Equal(t, first[i].EntityID, second[i].EntityID, "visit order must be stable")
		}
	})

	t.Run("Isolated source yields only itself", func(t *testing.T) {
		visits := BFS(chain(), 99, 2)
		require.Len(t, visits, 1, "unknown entity has no neighbors")
		assert.Equal(t, int64(99), visits[0].EntityID, "source still visited")
	})
}

func TestNeighbors(t *testing.T) {
	t.Run("Returns one-hop neighbors sorted", func(t *testing.T) {
		neighbors := Neighbors(chain(), 2)
		assert.Equal(t, []int64{1, 3, 5}, neighbors, "all direct neighbors in id order")
	})

	t.Run("Leaf entity has a single neighbor", func(t *testing.T) {
		assert.Equal(t, []int64{3}, Neighbors(chain(), 4), "chain end connects only backward")
	})
}
