package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoClusters builds two dense triangles joined by a single weak edge.
func twoClusters() *Graph {
	g := NewGraph()
	g.AddEdge(1, 2, 5)
	g.AddEdge(2, 3, 5)
	g.AddEdge(1, 3, 5)
	g.AddEdge(10, 11, 5)
	g.AddEdge(11, 12, 5)
	g.AddEdge(10, 12, 5)
	g.AddEdge(3, 10, 1)
	return g
}

func TestLouvainTwoClusters(t *testing.T) {
	assignment := Louvain(twoClusters(), 1.0)

	t.Run("triangles form separate communities", func(t *testing.T) {
		assert.Equal(t, assignment[1], assignment[2], "First triangle should share a community")
		assert.Equal(t, assignment[2], assignment[3], "First triangle should share a community")
		assert.Equal(t, assignment[10], assignment[11], "Second triangle should share a community")
		assert.Equal(t, assignment[11], assignment[12], "Second triangle should share a community")
		assert.NotEqual(t, assignment[1], assignment[10], "Weakly joined triangles should separate")
	})

	t.Run("every node is assigned", func(t *testing.T) {
		assert.Len(t, assignment, 7, "All nodes should be assigned")
	})
}

func TestLouvainDeterminism(t *testing.T) {
	t.Run("repeated runs produce identical partitions", func(t *testing.T) {
		first := Louvain(twoClusters(), 1.0)
		second := Louvain(twoClusters(), 1.0)
		assert.Equal(t, first, second, "Same input should give the same assignment")
	})

	t.Run("edge insertion order does not matter", func(t *testing.T) {
		reordered := NewGraph()
		reordered.AddEdge(3, 10, 1)
		reordered.AddEdge(10, 12, 5)
		reordered.AddEdge(11, 12, 5)
		reordered.AddEdge(10, 11, 5)
		reordered.AddEdge(1, 3, 5)
		reordered.AddEdge(2, 3, 5)
		reordered.AddEdge(1, 2, 5)

		assert.Equal(t, Louvain(twoClusters(), 1.0), Louvain(reordered, 1.0),
			"Insertion order should not change the partition")
	})
}

func TestLouvainEdgeCases(t *testing.T) {
	t.Run("empty graph yields empty assignment", func(t *testing.T) {
		assignment := Louvain(NewGraph(), 1.0)
		assert.Empty(t, assignment, "No nodes, no communities")
	})

	t.Run("single edge joins both nodes", func(t *testing.T) {
		g := NewGraph()
		g.AddEdge(1, 2, 3)
		assignment := Louvain(g, 1.0)
		require.Len(t, assignment, 2, "Both nodes should be assigned")
		assert.Equal(t, assignment[1], assignment[2], "Connected pair should merge")
	})

	t.Run("higher resolution splits more aggressively", func(t *testing.T) {
		low := Louvain(twoClusters(), 0.5)
		communities := make(map[int64]bool)
		for _, community := range low {
			communities[community] = true
		}
		assert.LessOrEqual(t, len(communities), 2, "Low resolution should not over-split")
	})
}
