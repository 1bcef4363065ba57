package rules

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/graphrule/pkg/graph"
)

// Matcher enumerates nodes, relationships, and paths satisfying a pattern.
//
// Label and relationship-type indexes are built lazily on first use and
// invalidated in bulk whenever the graph's mutation epoch moves. The
// indexes are advisory: correctness never depends on their freshness, only
// lookup speed does.
type Matcher struct {
	g    *graph.Graph
	opts Options

	indexEpoch uint64
	indexBuilt bool
	labelIndex map[string][]graph.NodeID
	typeIndex  map[string][]*graph.Edge

	log *logrus.Entry
}

// NewMatcher creates a matcher over the graph.
func NewMatcher(g *graph.Graph, opts Options) *Matcher {
	return &Matcher{
		g:    g,
		opts: opts.normalize(),
		log:  logrus.WithField("component", "matcher"),
	}
}

// ClearCache drops the label and type indexes. The next query rebuilds
// them; repeating a query after ClearCache yields the same result set.
func (m *Matcher) ClearCache() {
	m.indexBuilt = false
	m.labelIndex = nil
	m.typeIndex = nil
}

// ensureIndexes rebuilds both indexes when missing or stale.
func (m *Matcher) ensureIndexes() {
	epoch := m.g.Epoch()
	if m.indexBuilt && m.indexEpoch == epoch {
		return
	}

	m.labelIndex = make(map[string][]graph.NodeID)
	for _, node := range m.g.Nodes() {
		for _, label := range node.Labels() {
			key := m.normalize(label)
			m.labelIndex[key] = append(m.labelIndex[key], node.ID)
		}
	}

	m.typeIndex = make(map[string][]*graph.Edge)
	for _, edge := range m.g.Edges() {
		key := m.normalize(edge.Label)
		m.typeIndex[key] = append(m.typeIndex[key], edge)
	}

	m.indexEpoch = epoch
	m.indexBuilt = true
}

func (m *Matcher) normalize(label string) string {
	if m.opts.CaseSensitiveLabels {
		return label
	}
	return strings.ToLower(label)
}

// MatchesNodePattern reports whether the node satisfies the pattern's
// labels and property constraints. The reserved property key "id" compares
// against the node's identifier rather than a stored property.
func (m *Matcher) MatchesNodePattern(node *graph.Node, np NodePattern) bool {
	for _, label := range np.Labels {
		if !node.HasLabel(label, m.opts.CaseSensitiveLabels) {
			return false
		}
	}
	for key, want := range np.Properties {
		if key == "id" {
			id, ok := want.(string)
			if !ok {
				if nid, isID := want.(graph.NodeID); isID {
					id = string(nid)
				} else {
					return false
				}
			}
			if string(node.ID) != id {
				return false
			}
			continue
		}
		got, ok := node.Properties[key]
		if !ok {
			return false
		}
		if want == nil {
			if got != nil {
				return false
			}
			continue
		}
		if got == nil || !valuesEqual(got, want, m.opts.CoerceNumerics) {
			return false
		}
	}
	return true
}

// MatchesRelPattern reports whether the edge satisfies the pattern's type
// and property constraints. Direction is checked relative to an anchor
// node, not here.
func (m *Matcher) MatchesRelPattern(edge *graph.Edge, rp RelPattern) bool {
	if rp.Type != "" {
		if m.opts.CaseSensitiveLabels {
			if edge.Label != rp.Type {
				return false
			}
		} else if !strings.EqualFold(edge.Label, rp.Type) {
			return false
		}
	}
	for key, want := range rp.Properties {
		got, ok := edge.Properties[key]
		if !ok {
			return false
		}
		if want == nil {
			if got != nil {
				return false
			}
			continue
		}
		if got == nil || !valuesEqual(got, want, m.opts.CoerceNumerics) {
			return false
		}
	}
	return true
}

// FindMatchingNodes returns every node satisfying the pattern. An "id"
// constraint restricts the search to that single node; label constraints
// consult the label index; a bare pattern scans.
func (m *Matcher) FindMatchingNodes(np NodePattern) []*graph.Node {
	if idValue, ok := np.Properties["id"]; ok {
		id, _ := idValue.(string)
		if nid, isID := idValue.(graph.NodeID); isID {
			id = string(nid)
		}
		node, found := m.g.GetNode(graph.NodeID(id))
		if !found || !m.MatchesNodePattern(node, np) {
			return nil
		}
		return []*graph.Node{node}
	}

	if len(np.Labels) > 0 {
		m.ensureIndexes()
		var result []*graph.Node
		for _, id := range m.labelIndex[m.normalize(np.Labels[0])] {
			node, ok := m.g.GetNode(id)
			if ok && m.MatchesNodePattern(node, np) {
				result = append(result, node)
			}
		}
		return result
	}

	return m.g.FindNodes(func(n *graph.Node) bool {
		return m.MatchesNodePattern(n, np)
	})
}

// FindMatchingRels returns edges satisfying the pattern. With an anchor
// node the pattern's direction selects which incident edges qualify; an
// Incoming direction flips the pattern before the directional check.
func (m *Matcher) FindMatchingRels(rp RelPattern, sourceID *graph.NodeID) []*graph.Edge {
	if sourceID == nil {
		m.ensureIndexes()
		var candidates []*graph.Edge
		if rp.Type != "" {
			candidates = m.typeIndex[m.normalize(rp.Type)]
		} else {
			candidates = m.g.Edges()
		}
		var result []*graph.Edge
		for _, edge := range candidates {
			if m.MatchesRelPattern(edge, rp) {
				result = append(result, edge)
			}
		}
		return result
	}

	// An Incoming direction flips the pattern relative to the anchor:
	// EdgesFor selects edges whose target is the anchor, which is exactly
	// the flipped orientation.
	var result []*graph.Edge
	for _, edge := range m.g.EdgesFor(*sourceID, rp.Direction) {
		if m.MatchesRelPattern(edge, rp) {
			result = append(result, edge)
		}
	}
	return result
}

// pathState is one BFS frontier entry: the current node, the path so far,
// which segment is being traversed, how many hops have been taken inside
// it, and the set of node IDs already on the path. segHops records the hop
// count of every completed segment so a finished path can be sliced back
// into its pattern segments for variable binding.
type pathState struct {
	node    *graph.Node
	path    *graph.Path
	segIdx  int
	hops    int
	visited map[graph.NodeID]bool
	segHops []int
}

// matchedPath pairs an enumerated path with the per-segment hop counts
// that produced it.
type matchedPath struct {
	path    *graph.Path
	segHops []int
}

// FindMatchingPaths enumerates all paths from nodes matching the start
// pattern through the segment list, breadth-first.
//
// On each candidate edge three transitions apply independently:
//
//   - complete: final segment, hops >= min, neighbor matches the target
//     node pattern -> emit the path
//   - extend: variable-length segment, hops < max, no cycle -> continue the
//     same segment
//   - advance: hops >= min, neighbor matches, more segments remain, no
//     cycle -> move to the next segment
//
// Results are deduplicated by canonical path key and returned in first-seen
// BFS order.
func (m *Matcher) FindMatchingPaths(pp *PathPattern) []*graph.Path {
	matched := m.findPaths(pp)
	paths := make([]*graph.Path, 0, len(matched))
	for _, mp := range matched {
		paths = append(paths, mp.path)
	}
	return paths
}

// findPaths is FindMatchingPaths with the per-segment hop counts the
// engine needs to bind pattern variables.
func (m *Matcher) findPaths(pp *PathPattern) []matchedPath {
	startNodes := m.FindMatchingNodes(pp.Start)

	if len(pp.Segments) == 0 {
		paths := make([]matchedPath, 0, len(startNodes))
		for _, node := range startNodes {
			paths = append(paths, matchedPath{path: &graph.Path{Nodes: []*graph.Node{node}}})
		}
		return paths
	}

	var results []matchedPath
	truncated := false

	for _, start := range startNodes {
		if truncated {
			break
		}
		queue := []pathState{{
			node:    start,
			path:    &graph.Path{Nodes: []*graph.Node{start}},
			visited: map[graph.NodeID]bool{start.ID: true},
		}}

		for len(queue) > 0 {
			state := queue[0]
			queue = queue[1:]

			seg := pp.Segments[state.segIdx]
			minHops, maxHops := seg.Rel.HopRange(m.opts.MaxPathDepth)
			isFinal := state.segIdx == len(pp.Segments)-1

			// A *0.. segment may be satisfied without consuming an edge
			if minHops == 0 && state.hops == 0 && m.MatchesNodePattern(state.node, seg.Node) {
				if isFinal {
					results = append(results, matchedPath{
						path:    state.path,
						segHops: segHopsWith(state.segHops, 0),
					})
					if len(results) >= m.opts.MaxPathResults {
						m.log.WithFields(logrus.Fields{
							"max_path_results": m.opts.MaxPathResults,
						}).Warn("path enumeration truncated")
						truncated = true
						break
					}
				} else {
					queue = append(queue, pathState{
						node:    state.node,
						path:    state.path,
						segIdx:  state.segIdx + 1,
						hops:    0,
						visited: state.visited,
						segHops: segHopsWith(state.segHops, 0),
					})
				}
			}

			for _, edge := range m.g.EdgesFor(state.node.ID, seg.Rel.Direction) {
				if !m.MatchesRelPattern(edge, seg.Rel) {
					continue
				}
				if state.path.Length()+1 > m.opts.MaxPathDepth {
					continue
				}

				neighborID := otherEndpoint(edge, state.node.ID, seg.Rel.Direction)
				neighbor, ok := m.g.GetNode(neighborID)
				if !ok {
					continue
				}

				hops := state.hops + 1
				next := state.path.Extend(edge, neighbor)

				if isFinal && hops >= minHops && m.MatchesNodePattern(neighbor, seg.Node) {
					results = append(results, matchedPath{
						path:    next,
						segHops: segHopsWith(state.segHops, hops),
					})
					if len(results) >= m.opts.MaxPathResults {
						m.log.WithFields(logrus.Fields{
							"max_path_results": m.opts.MaxPathResults,
						}).Warn("path enumeration truncated")
						truncated = true
						queue = nil
						break
					}
				}

				cycle := state.visited[neighborID]

				if seg.Rel.IsVariable() && hops < maxHops && !cycle {
					queue = append(queue, pathState{
						node:    neighbor,
						path:    next,
						segIdx:  state.segIdx,
						hops:    hops,
						visited: visitedWith(state.visited, neighborID),
						segHops: state.segHops,
					})
				}

				if hops >= minHops && !isFinal && !cycle && m.MatchesNodePattern(neighbor, seg.Node) {
					queue = append(queue, pathState{
						node:    neighbor,
						path:    next,
						segIdx:  state.segIdx + 1,
						hops:    0,
						visited: visitedWith(state.visited, neighborID),
						segHops: segHopsWith(state.segHops, hops),
					})
				}
			}
		}
	}

	return dedupeMatchedPaths(results)
}

// EnrichPattern clones the pattern and pins every node pattern whose
// variable is already bound by adding an "id" property constraint. A
// variable bound to something other than a node yields an unsatisfiable
// constraint, silently dropping the tuple rather than raising an error.
func (m *Matcher) EnrichPattern(pp *PathPattern, b *Bindings) *PathPattern {
	clone := pp.Clone()
	pin := func(np *NodePattern) {
		if np.Variable == "" {
			return
		}
		value, ok := b.Get(np.Variable)
		if !ok {
			return
		}
		if node, isNode := value.(*graph.Node); isNode {
			np.Properties["id"] = string(node.ID)
		} else {
			// Empty IDs are rejected at AddNode, so this can never match.
			np.Properties["id"] = ""
		}
	}

	pin(&clone.Start)
	for i := range clone.Segments {
		pin(&clone.Segments[i].Node)
	}
	return clone
}

// otherEndpoint resolves which node an edge leads to from the anchor,
// honoring the traversal direction.
func otherEndpoint(edge *graph.Edge, from graph.NodeID, direction graph.Direction) graph.NodeID {
	switch direction {
	case graph.Outgoing:
		return edge.Target
	case graph.Incoming:
		return edge.Source
	default:
		if edge.Source == from {
			return edge.Target
		}
		return edge.Source
	}
}

func visitedWith(visited map[graph.NodeID]bool, id graph.NodeID) map[graph.NodeID]bool {
	next := make(map[graph.NodeID]bool, len(visited)+1)
	for k := range visited {
		next[k] = true
	}
	next[id] = true
	return next
}

// segHopsWith appends a completed segment's hop count without aliasing the
// parent state's slice.
func segHopsWith(segHops []int, hops int) []int {
	next := make([]int, len(segHops), len(segHops)+1)
	copy(next, segHops)
	return append(next, hops)
}

// dedupeMatchedPaths collapses paths that reach the same node/edge
// sequence via different interleavings of extend and advance, keeping
// first-seen order.
func dedupeMatchedPaths(paths []matchedPath) []matchedPath {
	seen := make(map[string]bool, len(paths))
	result := make([]matchedPath, 0, len(paths))
	for _, p := range paths {
		key := p.path.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, p)
	}
	return result
}
