package graph

import "strings"

// Path is an alternating node-edge-node sequence produced by the pattern
// matcher. Paths are values, not stored entities: len(Nodes) == len(Edges)+1
// and every edge is incident to its surrounding nodes.
type Path struct {
	Nodes []*Node
	Edges []*Edge
}

// Length returns the number of edges in the path.
func (p *Path) Length() int {
	return len(p.Edges)
}

// Start returns the first node, or nil for an empty path.
func (p *Path) Start() *Node {
	if len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[0]
}

// End returns the last node, or nil for an empty path.
func (p *Path) End() *Node {
	if len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[len(p.Nodes)-1]
}

// Contains reports whether the node ID appears anywhere on the path.
func (p *Path) Contains(id NodeID) bool {
	for _, n := range p.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// Key returns the canonical string identity of the path:
// "id0,id1,...|src-label-tgt,src-label-tgt,...". Two traversals that visit
// the same nodes over the same edges produce the same key, which is what
// path deduplication compares.
func (p *Path) Key() string {
	var b strings.Builder
	for i, n := range p.Nodes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(n.ID))
	}
	b.WriteByte('|')
	for i, e := range p.Edges {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(e.Source))
		b.WriteByte('-')
		b.WriteString(e.Label)
		b.WriteByte('-')
		b.WriteString(string(e.Target))
	}
	return b.String()
}

// Extend returns a new path with one more hop appended. The receiver is not
// modified; the backing slices are copied so sibling extensions cannot
// clobber each other.
func (p *Path) Extend(edge *Edge, node *Node) *Path {
	nodes := make([]*Node, len(p.Nodes), len(p.Nodes)+1)
	copy(nodes, p.Nodes)
	edges := make([]*Edge, len(p.Edges), len(p.Edges)+1)
	copy(edges, p.Edges)
	return &Path{
		Nodes: append(nodes, node),
		Edges: append(edges, edge),
	}
}
