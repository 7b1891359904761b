package community

// betweennessSampleThreshold is the node count above which betweenness
// switches from exact to sampled computation.
const betweennessSampleThreshold = 5000

// betweennessSampleSize is the number of source nodes used when sampling.
const betweennessSampleSize = 256

// Metrics holds the per-entity overlay values written back to the store.
type Metrics struct {
	CommunityID           int64
	DegreeCentrality      float64
	BetweennessCentrality float64
	IsBridge              bool
	ConnectedCommunities  int
}

// ComputeMetrics derives the per-entity metrics from the graph and a
// community assignment.
func ComputeMetrics(g *Graph, assignment map[int64]int64) map[int64]Metrics {
	metrics := make(map[int64]Metrics, len(assignment))

	communitySize := make(map[int64]int)
	for _, community := range assignment {
		communitySize[community]++
	}

	betweenness := approximateBetweenness(g)

	for _, node := range g.Nodes() {
		community := assignment[node]

		// Degree within the node's own community, normalized by the
		// community's maximum possible degree.
		intraDegree := 0
		neighborCommunities := make(map[int64]bool)
		for _, neighbor := range g.Neighbors(node) {
			neighborCommunity := assignment[neighbor]
			neighborCommunities[neighborCommunity] = true
			if neighborCommunity == community {
				intraDegree++
			}
		}

		degreeCentrality := 0.0
		if size := communitySize[community]; size > 1 {
			degreeCentrality = float64(intraDegree) / float64(size-1)
		}

		metrics[node] = Metrics{
			CommunityID:           community,
			DegreeCentrality:      degreeCentrality,
			BetweennessCentrality: betweenness[node],
			IsBridge:              len(neighborCommunities) >= 2,
			ConnectedCommunities:  len(neighborCommunities),
		}
	}
	return metrics
}

// approximateBetweenness runs Brandes' algorithm over unweighted
// shortest paths. Above the sampling threshold only a deterministic
// subset of sources is expanded and the result is rescaled.
func approximateBetweenness(g *Graph) map[int64]float64 {
	nodes := g.Nodes()
	n := len(nodes)
	betweenness := make(map[int64]float64, n)
	if n < 3 {
		return betweenness
	}

	sources := nodes
	scale := 1.0
	if n > betweennessSampleThreshold {
		step := n / betweennessSampleSize
		if step < 1 {
			step = 1
		}
		sources = make([]int64, 0, betweennessSampleSize+1)
		for i := 0; i < n; i += step {
			sources = append(sources, nodes[i])
		}
		scale = float64(n) / float64(len(sources))
	}

	for _, source := range sources {
		accumulateBrandes(g, source, betweenness)
	}

	// Undirected graphs double-count pairs; fold in the sampling scale
	// and normalize to [0, 1].
	norm := scale / (float64(n-1) * float64(n-2))
	for node := range betweenness {
		betweenness[node] *= norm
	}
	return betweenness
}

// accumulateBrandes adds the single-source dependency contributions of
// source to the betweenness accumulator.
func accumulateBrandes(g *Graph, source int64, betweenness map[int64]float64) {
	var stack []int64
	predecessors := make(map[int64][]int64)
	pathCount := map[int64]float64{source: 1}
	distance := map[int64]int{source: 0}

	queue := []int64{source}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		stack = append(stack, node)

		for _, neighbor := range g.Neighbors(node) {
			if _, seen := distance[neighbor]; !seen {
				distance[neighbor] = distance[node] + 1
				queue = append(queue, neighbor)
			}
			if distance[neighbor] == distance[node]+1 {
				pathCount[neighbor] += pathCount[node]
				predecessors[neighbor] = append(predecessors[neighbor], node)
			}
		}
	}

	dependency := make(map[int64]float64)
	for i := len(stack) - 1; i >= 0; i-- {
		node := stack[i]
		for _, predecessor := range predecessors[node] {
			dependency[predecessor] += pathCount[predecessor] / pathCount[node] * (1 + dependency[node])
		}
		if node != source {
			betweenness[node] += dependency[node]
		}
	}
}
