package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mnemosyne/internal/model"
)

// snapshotDoc is the on-disk shape of a MemoryGraph: adjacency lists
// plus the entity table, per spec §4.4 "Persistence: adjacency lists +
// entity table, snapshotted atomically".
type snapshotDoc struct {
	Entities map[string]model.Entity   `json:"entities"`
	Chunks   map[string]model.Metadata `json:"chunks"`
	Edges    []model.Edge              `json:"edges"`
}

// Snapshot writes the graph to path atomically: serialize to a
// temporary file in the same directory, then rename over the target
// (spec: "snapshotted atomically (write-to-temp-then-rename); no WAL
// (graph is rebuildable from chunks in emergencies)").
func (g *MemoryGraph) Snapshot(path string) error {
	g.mu.RLock()
	doc := snapshotDoc{
		Entities: make(map[string]model.Entity, len(g.entities)),
		Chunks:   make(map[string]model.Metadata, len(g.chunks)),
	}
	for k, v := range g.entities {
		doc.Entities[k] = v
	}
	for k, v := range g.chunks {
		doc.Chunks[k] = v
	}
	for _, byDest := range g.edges {
		for _, e := range byDest {
			doc.Edges = append(doc.Edges, e)
		}
	}
	g.mu.RUnlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("graph: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".graph-snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("graph: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("graph: write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("graph: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("graph: rename temp snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a graph previously written by Snapshot. A missing
// file is not an error: the graph rebuilds from chunks in that case.
func LoadSnapshot(path string) (*MemoryGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMemoryGraph(), nil
		}
		return nil, fmt.Errorf("graph: read snapshot: %w", err)
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: unmarshal snapshot: %w", err)
	}
	g := NewMemoryGraph()
	for id, e := range doc.Entities {
		g.entities[id] = e
	}
	for id, md := range doc.Chunks {
		g.chunks[id] = md
		g.mentions[id] = make(map[string]bool)
	}
	ctx := context.Background()
	for _, e := range doc.Edges {
		if err := g.AddEdge(ctx, e.From, e.To, e.Type, e.Weight, e.Confidence); err != nil {
			return nil, err
		}
	}
	return g, nil
}
