package graph

import (
	"sort"

	"mnemosyne/internal/model"
)

func allowedType(t model.EdgeType, allowed []model.EdgeType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// bfs performs breadth-first traversal from start up to maxDepth hops,
// visited-set discipline preventing cycles from causing
// non-termination, returning each reachable node with its shortest
// distance and one shortest path (spec §4.4 "Multi-hop expansion").
func bfs(edges map[string]map[string]model.Edge, start string, maxDepth int, edgeTypes []model.EdgeType) []NeighborResult {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	type frontierNode struct {
		id   string
		path []string
	}
	visited := map[string]bool{start: true}
	queue := []frontierNode{{id: start, path: []string{start}}}
	var out []NeighborResult

	for depth := 1; depth <= maxDepth && len(queue) > 0; depth++ {
		var next []frontierNode
		for _, fn := range queue {
			for _, e := range edges[fn.id] {
				if !allowedType(e.Type, edgeTypes) {
					continue
				}
				if visited[e.To] {
					continue
				}
				visited[e.To] = true
				path := append(append([]string{}, fn.path...), e.To)
				out = append(out, NeighborResult{NodeID: e.To, Distance: depth, Path: path})
				next = append(next, frontierNode{id: e.To, path: path})
			}
		}
		queue = next
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}
