package graph

import (
	"context"
	"math"

	"mnemosyne/internal/model"
)

// PersonalizedPageRank implements spec §4.4's exact algorithm: a restart
// distribution concentrated equally on seed nodes, row-normalized
// weight×confidence transition weights, L1-convergence, with the
// dangling-node mass redistributed through the restart vector each
// iteration so scores always sum to 1.0 over the reachable subgraph.
func (g *MemoryGraph) PersonalizedPageRank(_ context.Context, seeds []string, alpha float64, maxIter int, tol float64) (PPRResult, error) {
	if len(seeds) == 0 {
		return PPRResult{Scores: map[string]float64{}, Converged: true}, nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	uniqueSeeds := dedupe(seeds)

	if allIsolated(g.edges, uniqueSeeds) {
		uniform := 1.0 / float64(len(uniqueSeeds))
		scores := make(map[string]float64, len(uniqueSeeds))
		for _, s := range uniqueSeeds {
			scores[s] = uniform
		}
		return PPRResult{Scores: scores, Converged: true, Iters: 0}, nil
	}

	nodes := reachableFrom(g.edges, uniqueSeeds)
	idx := make(map[string]int, len(nodes))
	for i, n := range nodes {
		idx[n] = i
	}

	// normalized[i] = list of (j, weight) with weights summing to 1, row-normalized.
	normalized := make([][]weightedEdge, len(nodes))
	for i, n := range nodes {
		var total float64
		var raw []weightedEdge
		for _, e := range g.edges[n] {
			j, ok := idx[e.To]
			if !ok {
				continue
			}
			w := e.Weight * e.Confidence
			if w <= 0 {
				continue
			}
			raw = append(raw, weightedEdge{j: j, w: w})
			total += w
		}
		if total > 0 {
			for k := range raw {
				raw[k].w /= total
			}
		}
		normalized[i] = raw
	}

	seedVec := make([]float64, len(nodes))
	seedMass := 1.0 / float64(len(uniqueSeeds))
	for _, s := range uniqueSeeds {
		if i, ok := idx[s]; ok {
			seedVec[i] = seedMass
		}
	}

	r := append([]float64(nil), seedVec...)
	if maxIter <= 0 {
		maxIter = 100
	}
	if tol <= 0 {
		tol = 1e-6
	}

	converged := false
	iters := 0
	for iter := 0; iter < maxIter; iter++ {
		next := make([]float64, len(nodes))
		var leaked float64
		for i, mass := range r {
			if mass == 0 {
				continue
			}
			edges := normalized[i]
			if len(edges) == 0 {
				leaked += mass
				continue
			}
			for _, we := range edges {
				next[we.j] += mass * we.w
			}
		}
		var diff float64
		for i := range next {
			next[i] = alpha*(next[i]+leaked*seedVec[i]) + (1-alpha)*seedVec[i]
			diff += math.Abs(next[i] - r[i])
		}
		r = next
		iters++
		if diff < tol {
			converged = true
			break
		}
	}

	scores := make(map[string]float64, len(nodes))
	for i, n := range nodes {
		scores[n] = r[i]
	}
	return PPRResult{Scores: scores, Converged: converged, Iters: iters}, nil
}

type weightedEdge struct {
	j int
	w float64
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func allIsolated(edges map[string]map[string]model.Edge, seeds []string) bool {
	for _, s := range seeds {
		if len(edges[s]) > 0 {
			return false
		}
	}
	return true
}

// reachableFrom performs an unbounded forward BFS from seeds to compute
// the node universe over which PPR mass can ever become nonzero.
func reachableFrom(edges map[string]map[string]model.Edge, seeds []string) []string {
	visited := make(map[string]bool, len(seeds))
	order := make([]string, 0, len(seeds))
	queue := append([]string{}, seeds...)
	for _, s := range seeds {
		visited[s] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, e := range edges[cur] {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return order
}
