// Package depgraph maintains the per-table column dependency graphs that
// drive formula propagation. It supports cycle-safe formula registration,
// reachability queries, and deterministic topological ordering.
package depgraph

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors returned by graph mutations.
var (
	// ErrUnknownColumn is returned when a formula references a column
	// that is not part of the graph.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrCycle is returned when a formula would make the graph cyclic.
	ErrCycle = errors.New("dependency cycle")
)

// Graph is the column dependency graph for one table. Edges point from a
// source column to the computed columns that reference it; column-level
// formula references and per-cell override references union into the same
// adjacency. The graph is never cyclic, even transiently: mutations that
// would create a cycle are rejected before any state changes.
//
// Graph is not safe for concurrent use; the Registry serializes access.
type Graph struct {
	columns      map[string]bool
	formulaRefs  map[string][]string            // dependent -> column formula refs
	overrideRefs map[string]map[string][]string // dependent -> row -> override refs
	dependents   map[string][]string            // source -> dependents, sorted
	sources      map[string][]string            // dependent -> sources, sorted
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		columns:      make(map[string]bool),
		formulaRefs:  make(map[string][]string),
		overrideRefs: make(map[string]map[string][]string),
		dependents:   make(map[string][]string),
		sources:      make(map[string][]string),
	}
}

// AddColumn registers a column as a graph node. Adding an existing column
// is a no-op; literal columns participate as sources only.
func (g *Graph) AddColumn(id string) {
	if !g.columns[id] {
		g.columns[id] = true
	}
}

// RemoveColumn drops a column, its formula, and its overrides. References
// from other formulas to the removed column simply stop producing edges;
// evaluating those formulas yields a reference error, which is the
// caller's concern, not the graph's.
func (g *Graph) RemoveColumn(id string) {
	delete(g.columns, id)
	delete(g.formulaRefs, id)
	delete(g.overrideRefs, id)
	g.rebuild()
}

// HasColumn reports whether a column is part of the graph.
func (g *Graph) HasColumn(id string) bool {
	return g.columns[id]
}

// Columns returns all column IDs in sorted order.
func (g *Graph) Columns() []string {
	ids := make([]string, 0, len(g.columns))
	for id := range g.columns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EdgeCount returns the number of distinct (source, dependent) pairs.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, deps := range g.dependents {
		count += len(deps)
	}
	return count
}

// AddOrReplaceFormula installs the column-level formula references for a
// column, replacing any previous set. Every referenced column must exist,
// and the resulting edge set must stay acyclic; on failure the graph is
// left unchanged.
func (g *Graph) AddOrReplaceFormula(columnID string, refs []string) error {
	if err := g.checkRefs(columnID, refs); err != nil {
		return err
	}
	g.formulaRefs[columnID] = dedup(refs)
	g.rebuild()
	return nil
}

// RemoveFormula drops a column's formula references along with all of its
// per-cell override references. Used when a computed column is deleted or
// converted back to a literal column.
func (g *Graph) RemoveFormula(columnID string) {
	delete(g.formulaRefs, columnID)
	delete(g.overrideRefs, columnID)
	g.rebuild()
}

// SetOverride installs the references of one cell's override formula.
// Override references make the column a dependent of the referenced
// sources just like a column-level formula would; the same cycle rules
// apply.
func (g *Graph) SetOverride(columnID, rowID string, refs []string) error {
	if err := g.checkRefs(columnID, refs); err != nil {
		return err
	}
	rows, ok := g.overrideRefs[columnID]
	if !ok {
		rows = make(map[string][]string)
		g.overrideRefs[columnID] = rows
	}
	rows[rowID] = dedup(refs)
	g.rebuild()
	return nil
}

// ClearOverride removes one cell's override references.
func (g *Graph) ClearOverride(columnID, rowID string) {
	rows, ok := g.overrideRefs[columnID]
	if !ok {
		return
	}
	delete(rows, rowID)
	if len(rows) == 0 {
		delete(g.overrideRefs, columnID)
	}
	g.rebuild()
}

// checkRefs validates a prospective reference set for a column: every ref
// must be a known column and none may close a cycle.
func (g *Graph) checkRefs(columnID string, refs []string) error {
	if !g.columns[columnID] {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, columnID)
	}
	for _, ref := range refs {
		if !g.columns[ref] {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, ref)
		}
	}
	if g.WouldCreateCycle(columnID, refs) {
		return fmt.Errorf("%w: column %q", ErrCycle, columnID)
	}
	return nil
}

// WouldCreateCycle reports whether installing edges ref -> columnID for
// the given references would make the graph cyclic. A cycle arises
// exactly when a referenced column is the column itself or is already a
// transitive dependent of it; edges being replaced all point into
// columnID and can never lie on such a path, so the current adjacency is
// the right one to search.
func (g *Graph) WouldCreateCycle(columnID string, refs []string) bool {
	for _, ref := range refs {
		if ref == columnID {
			return true
		}
		if g.reaches(columnID, ref) {
			return true
		}
	}
	return false
}

// reaches reports whether to is a transitive dependent of from.
func (g *Graph) reaches(from, to string) bool {
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range g.dependents[id] {
			if dep == to {
				return true
			}
			if !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// DependentsOf returns the direct dependents of a column in sorted order.
func (g *Graph) DependentsOf(columnID string) []string {
	deps := g.dependents[columnID]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// SourcesOf returns the direct sources of a column in sorted order,
// unioned across its column formula and all of its overrides.
func (g *Graph) SourcesOf(columnID string) []string {
	srcs := g.sources[columnID]
	out := make([]string, len(srcs))
	copy(out, srcs)
	return out
}

// Ancestors returns every column the given column transitively depends
// on, sorted.
func (g *Graph) Ancestors(columnID string) []string {
	seen := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		for _, src := range g.sources[id] {
			if !seen[src] {
				seen[src] = true
				walk(src)
			}
		}
	}
	walk(columnID)

	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// AffectedBy returns the given columns plus all of their transitive
// dependents, sorted. Unknown columns are skipped.
func (g *Graph) AffectedBy(columnIDs []string) []string {
	affected := make(map[string]bool)
	var mark func(id string)
	mark = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, dep := range g.dependents[id] {
			mark(dep)
		}
	}
	for _, id := range columnIDs {
		if g.columns[id] {
			mark(id)
		}
	}

	result := make([]string, 0, len(affected))
	for id := range affected {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// TopologicalOrder orders the given columns so that sources come before
// dependents, considering only edges between subset members. The order is
// deterministic: ties break by column ID. Columns that cannot be ordered
// because they sit on a cycle (possible if a concurrent edit raced past
// the definition-time check) are returned separately in sorted order; the
// ordered remainder is still usable.
func (g *Graph) TopologicalOrder(subset []string) (order []string, cyclic []string) {
	inSubset := make(map[string]bool, len(subset))
	for _, id := range subset {
		if g.columns[id] {
			inSubset[id] = true
		}
	}

	indegree := make(map[string]int, len(inSubset))
	for id := range inSubset {
		n := 0
		for _, src := range g.sources[id] {
			if inSubset[src] {
				n++
			}
		}
		indegree[id] = n
	}

	var ready []string
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	order = make([]string, 0, len(inSubset))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dep := range g.dependents[id] {
			if !inSubset[dep] {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) < len(inSubset) {
		ordered := make(map[string]bool, len(order))
		for _, id := range order {
			ordered[id] = true
		}
		for id := range inSubset {
			if !ordered[id] {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
	}

	return order, cyclic
}

// loadFormula installs column-level references without cycle validation
// and without rebuilding. Only the registry's load path uses it: edges
// persisted by a racing writer in another process can form a cycle, and
// the graph must still materialize so propagation can order what it can
// and mark the rest. Callers must rebuild when done loading.
func (g *Graph) loadFormula(columnID string, refs []string) {
	g.formulaRefs[columnID] = dedup(refs)
}

// loadOverride is the load-path counterpart of SetOverride.
func (g *Graph) loadOverride(columnID, rowID string, refs []string) {
	rows, ok := g.overrideRefs[columnID]
	if !ok {
		rows = make(map[string][]string)
		g.overrideRefs[columnID] = rows
	}
	rows[rowID] = dedup(refs)
}

// Clone returns an independent copy of the graph. Propagation runs work
// against a clone so the registry's read lock is released before any
// storage access.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	for id := range g.columns {
		c.columns[id] = true
	}
	for id, refs := range g.formulaRefs {
		c.formulaRefs[id] = append([]string(nil), refs...)
	}
	for id, rows := range g.overrideRefs {
		cr := make(map[string][]string, len(rows))
		for row, refs := range rows {
			cr[row] = append([]string(nil), refs...)
		}
		c.overrideRefs[id] = cr
	}
	c.rebuild()
	return c
}

// rebuild derives the adjacency maps from the reference sets. References
// to columns no longer in the graph produce no edges.
func (g *Graph) rebuild() {
	g.dependents = make(map[string][]string)
	g.sources = make(map[string][]string)

	addEdge := func(src, dep string) {
		if !g.columns[src] || !g.columns[dep] {
			return
		}
		if !contains(g.dependents[src], dep) {
			g.dependents[src] = append(g.dependents[src], dep)
		}
		if !contains(g.sources[dep], src) {
			g.sources[dep] = append(g.sources[dep], src)
		}
	}

	for dep, refs := range g.formulaRefs {
		for _, src := range refs {
			addEdge(src, dep)
		}
	}
	for dep, rows := range g.overrideRefs {
		for _, refs := range rows {
			for _, src := range refs {
				addEdge(src, dep)
			}
		}
	}

	// Sort adjacency for deterministic iteration
	for id := range g.dependents {
		sort.Strings(g.dependents[id])
	}
	for id := range g.sources {
		sort.Strings(g.sources[id])
	}
}

// dedup returns a copy of refs with duplicates removed, preserving order.
func dedup(refs []string) []string {
	seen := make(map[string]bool, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// contains checks if a slice contains a string.
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
