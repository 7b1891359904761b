// Package community builds the entity co-occurrence overlay: RELATED_TO
// edges, Louvain communities, and per-entity centrality metrics.
package community

import "sort"

// Graph is an undirected weighted graph over entity ids. Collapsed
// supergraph levels carry intra-community weight as self loops.
type Graph struct {
	adj         map[int64]map[int64]float64
	loops       map[int64]float64
	totalWeight float64
}

func NewGraph() *Graph {
	return &Graph{
		adj:   make(map[int64]map[int64]float64),
		loops: make(map[int64]float64),
	}
}

func (g *Graph) addLoop(node int64, weight float64) {
	if g.adj[node] == nil {
		g.adj[node] = make(map[int64]float64)
	}
	g.loops[node] += weight
	g.totalWeight += weight
}

// AddEdge adds an undirected edge; parallel edges accumulate weight.
// Self loops are ignored.
func (g *Graph) AddEdge(a, b int64, weight float64) {
	if a == b || weight <= 0 {
		return
	}
	if g.adj[a] == nil {
		g.adj[a] = make(map[int64]float64)
	}
	if g.adj[b] == nil {
		g.adj[b] = make(map[int64]float64)
	}
	g.adj[a][b] += weight
	g.adj[b][a] += weight
	g.totalWeight += weight
}

// Nodes returns all node ids in ascending order.
func (g *Graph) Nodes() []int64 {
	nodes := make([]int64, 0, len(g.adj))
	for node := range g.adj {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

// Neighbors returns the neighbor ids of a node in ascending order.
func (g *Graph) Neighbors(node int64) []int64 {
	neighbors := make([]int64, 0, len(g.adj[node]))
	for neighbor := range g.adj[node] {
		neighbors = append(neighbors, neighbor)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
	return neighbors
}

// Degree returns the weighted degree of a node. Self loops count twice,
// matching the modularity convention.
func (g *Graph) Degree(node int64) float64 {
	total := 2 * g.loops[node]
	for _, weight := range g.adj[node] {
		total += weight
	}
	return total
}

// Louvain runs modularity optimization with the given resolution and
// returns the community assignment per node. Nodes are visited in
// ascending id order and ties break toward the smaller community label,
// so identical input always produces identical partitions.
func Louvain(g *Graph, resolution float64) map[int64]int64 {
	if resolution <= 0 {
		resolution = 1.0
	}

	// Each node starts in its own community labeled by its own id.
	assignment := make(map[int64]int64, len(g.adj))
	for node := range g.adj {
		assignment[node] = node
	}
	if g.totalWeight == 0 {
		return assignment
	}

	current := g
	// Mapping from current-level nodes to original nodes.
	members := make(map[int64][]int64, len(g.adj))
	for node := range g.adj {
		members[node] = []int64{node}
	}

	for {
		level := localMove(current, resolution)
		if !level.improved {
			break
		}

		// Relabel each community by its smallest member for stability,
		// then collapse into the next level's supergraph.
		newMembers := make(map[int64][]int64)
		for node, community := range level.assignment {
			label := level.labels[community]
			newMembers[label] = append(newMembers[label], members[node]...)
		}
		if len(newMembers) == len(members) {
			break
		}

		next := NewGraph()
		for node, neighbors := range current.adj {
			from := level.labels[level.assignment[node]]
			if loop := current.loops[node]; loop > 0 {
				next.addLoop(from, loop)
			}
			for neighbor, weight := range neighbors {
				if node >= neighbor {
					continue
				}
				to := level.labels[level.assignment[neighbor]]
				if from == to {
					next.addLoop(from, weight)
				} else {
					next.AddEdge(from, to, weight)
				}
			}
		}
		for label := range newMembers {
			if next.adj[label] == nil {
				next.adj[label] = make(map[int64]float64)
			}
		}

		current = next
		members = newMembers
	}

	for community, nodes := range members {
		for _, node := range nodes {
			assignment[node] = community
		}
	}
	return assignment
}

type moveResult struct {
	assignment map[int64]int64
	labels     map[int64]int64
	improved   bool
}

// localMove is the first Louvain phase: greedily move nodes into the
// neighboring community with the best modularity gain until no move
// improves.
func localMove(g *Graph, resolution float64) moveResult {
	nodes := g.Nodes()
	assignment := make(map[int64]int64, len(nodes))
	communityTotal := make(map[int64]float64, len(nodes))
	for _, node := range nodes {
		assignment[node] = node
		communityTotal[node] = g.Degree(node)
	}

	m2 := 2 * g.totalWeight
	improved := false
	for changed := true; changed; {
		changed = false
		for _, node := range nodes {
			degree := g.Degree(node)
			home := assignment[node]

			// Weight from node to each neighboring community.
			linkWeight := make(map[int64]float64)
			for neighbor, weight := range g.adj[node] {
				linkWeight[assignment[neighbor]] += weight
			}

			communityTotal[home] -= degree

			bestCommunity := home
			bestGain := linkWeight[home] - resolution*communityTotal[home]*degree/m2
			candidates := make([]int64, 0, len(linkWeight))
			for community := range linkWeight {
				candidates = append(candidates, community)
			}
			sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
			for _, community := range candidates {
				if community == home {
					continue
				}
				gain := linkWeight[community] - resolution*communityTotal[community]*degree/m2
				if gain > bestGain+1e-12 {
					bestGain = gain
					bestCommunity = community
				}
			}

			communityTotal[bestCommunity] += degree
			if bestCommunity != home {
				assignment[node] = bestCommunity
				changed = true
				improved = true
			}
		}
	}

	// Label each community by its smallest member node id.
	labels := make(map[int64]int64)
	for _, node := range nodes {
		community := assignment[node]
		if label, ok := labels[community]; !ok || node < label {
			labels[community] = node
		}
	}

	return moveResult{assignment: assignment, labels: labels, improved: improved}
}
