// Package graph provides the in-memory property graph that rules execute
// against.
//
// The graph is a directed labeled property multigraph. Nodes carry a stable
// string ID, one primary label, and a property bag. Edges are identified by
// their (source, target, label) triple; adding an edge with an existing
// triple replaces it. The graph is the single source of truth for identity:
// patterns and bindings reference nodes by ID, never by owning them.
//
// Example:
//
//	g := graph.New()
//	alice, _ := g.AddNode("person-1", "Person", map[string]any{"name": "Alice"})
//	bob, _ := g.AddNode("person-2", "Person", map[string]any{"name": "Bob"})
//	g.AddEdge(alice.ID, bob.ID, "KNOWS", nil)
package graph

import (
	"errors"
	"sync"
)

var (
	// ErrDuplicateNode is returned when adding a node whose ID already exists.
	ErrDuplicateNode = errors.New("node already exists")

	// ErrUnknownNode is returned when an edge endpoint does not exist.
	ErrUnknownNode = errors.New("node not found")

	// ErrInvalidID is returned when a node ID is empty.
	ErrInvalidID = errors.New("invalid node id")
)

// Graph is an in-memory directed labeled property multigraph.
//
// The rule engine is single-threaded, but the graph still carries a mutex so
// that incidental concurrent readers (inspection, printing) stay safe.
type Graph struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	edges map[edgeKey]*Edge

	// Insertion order for stable iteration within one mutation epoch
	nodeOrder []NodeID
	edgeOrder []edgeKey

	// Adjacency indexes
	outgoing map[NodeID]map[edgeKey]struct{}
	incoming map[NodeID]map[edgeKey]struct{}

	// epoch increments on every mutation; consumers use it to invalidate
	// derived caches in bulk
	epoch uint64
}

type edgeKey struct {
	source NodeID
	target NodeID
	label  string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[NodeID]*Node),
		edges:    make(map[edgeKey]*Edge),
		outgoing: make(map[NodeID]map[edgeKey]struct{}),
		incoming: make(map[NodeID]map[edgeKey]struct{}),
	}
}

// AddNode creates a node with the given ID, primary label, and properties.
// Returns ErrDuplicateNode if the ID is already taken.
func (g *Graph) AddNode(id NodeID, label string, properties map[string]any) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		return nil, ErrDuplicateNode
	}

	node := &Node{
		ID:         id,
		Label:      label,
		Properties: copyProperties(properties),
	}
	g.nodes[id] = node
	g.nodeOrder = append(g.nodeOrder, id)
	g.epoch++
	return node, nil
}

// GetNode retrieves a node by ID.
func (g *Graph) GetNode(id NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	return node, ok
}

// AddEdge creates an edge between two existing nodes. Returns ErrUnknownNode
// if either endpoint is missing. An edge with the same (source, target,
// label) triple already present is replaced, properties included.
func (g *Graph) AddEdge(source, target NodeID, label string, properties map[string]any) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[source]; !ok {
		return nil, ErrUnknownNode
	}
	if _, ok := g.nodes[target]; !ok {
		return nil, ErrUnknownNode
	}

	key := edgeKey{source: source, target: target, label: label}
	edge := &Edge{
		Source:     source,
		Target:     target,
		Label:      label,
		Properties: copyProperties(properties),
	}

	if _, exists := g.edges[key]; !exists {
		g.edgeOrder = append(g.edgeOrder, key)
		if g.outgoing[source] == nil {
			g.outgoing[source] = make(map[edgeKey]struct{})
		}
		g.outgoing[source][key] = struct{}{}
		if g.incoming[target] == nil {
			g.incoming[target] = make(map[edgeKey]struct{})
		}
		g.incoming[target][key] = struct{}{}
	}
	g.edges[key] = edge
	g.epoch++
	return edge, nil
}

// GetEdge retrieves an edge by its identifying triple.
func (g *Graph) GetEdge(source, target NodeID, label string) (*Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edge, ok := g.edges[edgeKey{source: source, target: target, label: label}]
	return edge, ok
}

// RemoveNode removes a node and all its incident edges. No-op if the node
// does not exist.
func (g *Graph) RemoveNode(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; !exists {
		return
	}

	for key := range g.outgoing[id] {
		g.removeEdgeLocked(key)
	}
	for key := range g.incoming[id] {
		g.removeEdgeLocked(key)
	}
	delete(g.outgoing, id)
	delete(g.incoming, id)

	delete(g.nodes, id)
	g.nodeOrder = removeOrdered(g.nodeOrder, id)
	g.epoch++
}

// RemoveEdge removes the edge identified by the triple. No-op if absent.
func (g *Graph) RemoveEdge(source, target NodeID, label string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := edgeKey{source: source, target: target, label: label}
	if _, exists := g.edges[key]; !exists {
		return
	}
	g.removeEdgeLocked(key)
	g.epoch++
}

// removeEdgeLocked removes an edge and its index entries. Caller holds mu.
func (g *Graph) removeEdgeLocked(key edgeKey) {
	if _, exists := g.edges[key]; !exists {
		return
	}
	delete(g.edges, key)
	if out := g.outgoing[key.source]; out != nil {
		delete(out, key)
	}
	if in := g.incoming[key.target]; in != nil {
		delete(in, key)
	}
	g.edgeOrder = removeOrderedKey(g.edgeOrder, key)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make([]*Edge, 0, len(g.edgeOrder))
	for _, key := range g.edgeOrder {
		edges = append(edges, g.edges[key])
	}
	return edges
}

// FindNodes returns all nodes satisfying the predicate, in insertion order.
func (g *Graph) FindNodes(pred func(*Node) bool) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*Node
	for _, id := range g.nodeOrder {
		if node := g.nodes[id]; pred(node) {
			result = append(result, node)
		}
	}
	return result
}

// FindEdges returns all edges satisfying the predicate, in insertion order.
func (g *Graph) FindEdges(pred func(*Edge) bool) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*Edge
	for _, key := range g.edgeOrder {
		if edge := g.edges[key]; pred(edge) {
			result = append(result, edge)
		}
	}
	return result
}

// EdgesFor returns the edges incident to a node, filtered by direction:
// Outgoing (source=id), Incoming (target=id), or Both.
func (g *Graph) EdgesFor(id NodeID, direction Direction) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*Edge
	if direction == Outgoing || direction == Both {
		for _, key := range g.edgeOrder {
			if key.source == id {
				result = append(result, g.edges[key])
			}
		}
	}
	if direction == Incoming || direction == Both {
		for _, key := range g.edgeOrder {
			if key.target == id {
				// A self-loop already appeared in the outgoing half
				if direction == Both && key.source == id {
					continue
				}
				result = append(result, g.edges[key])
			}
		}
	}
	return result
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Epoch returns the current mutation epoch. It changes on every mutation,
// including Touch; caches compare epochs instead of tracking fine-grained
// membership changes.
func (g *Graph) Epoch() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.epoch
}

// Touch bumps the mutation epoch. Actions that write a property bag in
// place call this so derived caches observe the change.
func (g *Graph) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
}

func copyProperties(props map[string]any) map[string]any {
	copied := make(map[string]any, len(props))
	for k, v := range props {
		copied[k] = v
	}
	return copied
}

func removeOrdered(order []NodeID, id NodeID) []NodeID {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

func removeOrderedKey(order []edgeKey, key edgeKey) []edgeKey {
	for i, v := range order {
		if v == key {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
