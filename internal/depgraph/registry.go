package depgraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// EdgeSource supplies the persisted rows a table graph is rebuilt from.
// core.Store satisfies it.
type EdgeSource interface {
	ListColumns(ctx context.Context, tableID string) ([]*core.Column, error)
	ListTableEdges(ctx context.Context, tableID string) ([]core.DependencyEdge, error)
}

// Registry caches one Graph per table, built lazily from persisted
// edges. It is the only shared mutable state in the engine: definition
// paths mutate under the write lock, propagation snapshots under the
// read lock and works on a clone.
type Registry struct {
	mu     sync.RWMutex
	source EdgeSource
	graphs map[string]*Graph
}

// NewRegistry creates a registry backed by the given edge source.
func NewRegistry(source EdgeSource) *Registry {
	return &Registry{
		source: source,
		graphs: make(map[string]*Graph),
	}
}

// Snapshot returns an independent copy of a table's graph, loading it
// from the store on first use. The copy is safe to read without holding
// any lock.
func (r *Registry) Snapshot(ctx context.Context, tableID string) (*Graph, error) {
	r.mu.RLock()
	g, ok := r.graphs[tableID]
	if ok {
		snap := g.Clone()
		r.mu.RUnlock()
		return snap, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.lockedGet(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// Update runs fn against a table's live graph under the write lock,
// loading the graph first if needed. fn typically checks for cycles,
// persists, then mutates the graph; returning an error leaves whatever
// state fn produced, so fn must mutate only after its persist succeeds.
func (r *Registry) Update(ctx context.Context, tableID string, fn func(*Graph) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := r.lockedGet(ctx, tableID)
	if err != nil {
		return err
	}
	return fn(g)
}

// Invalidate drops a table's cached graph. The next access rebuilds it
// from persisted edges. Used after structural changes the registry did
// not see, such as column deletion.
func (r *Registry) Invalidate(tableID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.graphs, tableID)
}

// lockedGet returns the live graph for a table, loading it if absent.
// Callers must hold the write lock.
func (r *Registry) lockedGet(ctx context.Context, tableID string) (*Graph, error) {
	if g, ok := r.graphs[tableID]; ok {
		return g, nil
	}
	g, err := r.load(ctx, tableID)
	if err != nil {
		return nil, err
	}
	r.graphs[tableID] = g
	return g, nil
}

// load rebuilds a table's graph from its persisted columns and edges.
// Column-level edges carry no row; override edges group by (column, row).
// Loading does not cycle-check: a writer in another process can have
// raced a cycle into the persisted edges, and the graph must still
// materialize so propagation can order what it can and mark the rest.
func (r *Registry) load(ctx context.Context, tableID string) (*Graph, error) {
	columns, err := r.source.ListColumns(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("loading columns for table %s: %w", tableID, err)
	}
	edges, err := r.source.ListTableEdges(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("loading edges for table %s: %w", tableID, err)
	}

	g := NewGraph()
	for _, col := range columns {
		g.AddColumn(col.ID)
	}

	formulaRefs := make(map[string][]string)
	overrideRefs := make(map[string]map[string][]string)
	for _, e := range edges {
		if e.RowID == "" {
			formulaRefs[e.DependentID] = append(formulaRefs[e.DependentID], e.SourceID)
			continue
		}
		rows, ok := overrideRefs[e.DependentID]
		if !ok {
			rows = make(map[string][]string)
			overrideRefs[e.DependentID] = rows
		}
		rows[e.RowID] = append(rows[e.RowID], e.SourceID)
	}

	for dep, refs := range formulaRefs {
		g.loadFormula(dep, refs)
	}
	for dep, rows := range overrideRefs {
		for row, refs := range rows {
			g.loadOverride(dep, row, refs)
		}
	}
	g.rebuild()

	return g, nil
}
