package engine

import (
	"sort"

	"github.com/scrapegoat/backend/internal/tree"
)

// ResultSet is the set of nodes selected by one execution, keyed by node ID.
// Insertion order is remembered so Nodes is stable for a given run, but
// callers must not rely on it.
type ResultSet struct {
	byID  map[string]*tree.Node
	order []*tree.Node
}

func newResultSet() *ResultSet {
	return &ResultSet{byID: make(map[string]*tree.Node)}
}

// add inserts n unless a node with the same ID is already present.
func (r *ResultSet) add(n *tree.Node) {
	if _, ok := r.byID[n.ID]; ok {
		return
	}
	r.byID[n.ID] = n
	r.order = append(r.order, n)
}

// Len returns the number of distinct nodes.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Contains reports whether n is in the set.
func (r *ResultSet) Contains(n *tree.Node) bool {
	if r == nil || n == nil {
		return false
	}
	_, ok := r.byID[n.ID]
	return ok
}

// Nodes returns the members of the set.
func (r *ResultSet) Nodes() []*tree.Node {
	if r == nil {
		return nil
	}
	return append([]*tree.Node(nil), r.order...)
}

// Projections returns the annotated projection of every member.
func (r *ResultSet) Projections() []map[string]any {
	if r == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, n.ProjectAnnotated())
	}
	return out
}

// SortedNodes returns the members ordered by node ID, for deterministic
// serialization.
func (r *ResultSet) SortedNodes() []*tree.Node {
	nodes := r.Nodes()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}
