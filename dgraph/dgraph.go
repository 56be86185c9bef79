// Package dgraph implements the mutable directed graph that the scheduler
// and the resource manager both build on: vertex/edge mutation in amortised
// O(1), cycle rejection on insertion, and a cached topological sort.
//
// Vertex ids are dense, non-negative integers assigned on insertion and
// reused (via a free list) after removal, so callers must treat them as
// opaque and must not keep one around across a Remove of that slot.
package dgraph

import "sort"

// VertexID identifies a vertex. It is only meaningful relative to the Graph
// that produced it.
type VertexID int

// halfEdge is one direction of a stored edge. back is the index of the
// counterpart half-edge in the opposite adjacency list, which is what makes
// RemoveEdge and RemoveVertex amortised O(1) instead of a linear scan of
// both endpoints.
type halfEdge struct {
	other VertexID
	back  int
}

// Graph is a directed graph with cached topological order. It is not safe
// for concurrent mutation: the scheduler's contract is that graph mutation
// only happens during a caller-designated graph-update phase, never from
// inside a running pass.
type Graph struct {
	out      map[VertexID][]halfEdge
	in       map[VertexID][]halfEdge
	indegree map[VertexID]int // sentinel -1 marks a removed (dead) id
	free     []VertexID
	nextID   VertexID

	dirty     bool
	topoCache []VertexID

	// Logf is an optional logger, following the rest of the kernel's
	// convention of a nil-safe logging field rather than a required
	// logger interface.
	Logf func(format string, v ...interface{})
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		out:      make(map[VertexID][]halfEdge),
		in:       make(map[VertexID][]halfEdge),
		indegree: make(map[VertexID]int),
	}
}

func (g *Graph) logf(format string, v ...interface{}) {
	if g.Logf != nil {
		g.Logf(format, v...)
	}
}

// Alive reports whether v currently identifies a live vertex.
func (g *Graph) Alive(v VertexID) bool {
	d, ok := g.indegree[v]
	return ok && d >= 0
}

// AddVertex inserts a new vertex, reusing a freed id if one is available, and
// returns its id.
func (g *Graph) AddVertex() VertexID {
	var id VertexID
	if n := len(g.free); n > 0 {
		id = g.free[n-1]
		g.free = g.free[:n-1]
	} else {
		id = g.nextID
		g.nextID++
	}
	g.out[id] = nil
	g.in[id] = nil
	g.indegree[id] = 0
	g.dirty = true
	return id
}

// removeHalfEdge deletes primary[v][idx], swap-removing with the last entry,
// and fixes up the counterpart back-pointer of whatever entry got moved.
func removeHalfEdge(primary, counter map[VertexID][]halfEdge, v VertexID, idx int) {
	l := primary[v]
	last := len(l) - 1
	if idx < 0 || idx > last {
		return // dead reference, nothing to do
	}
	if idx != last {
		moved := l[last]
		l[idx] = moved
		counter[moved.other][moved.back].back = idx
	}
	primary[v] = l[:last]
}

// RemoveVertex removes v and every edge touching it. It is a no-op if v is
// not alive.
func (g *Graph) RemoveVertex(v VertexID) {
	if !g.Alive(v) {
		return
	}
	for _, he := range g.out[v] {
		w, idx := he.other, he.back
		removeHalfEdge(g.in, g.out, w, idx)
		g.indegree[w]--
	}
	for _, he := range g.in[v] {
		u, idx := he.other, he.back
		removeHalfEdge(g.out, g.in, u, idx)
	}
	delete(g.out, v)
	delete(g.in, v)
	g.indegree[v] = -1
	g.free = append(g.free, v)
	g.dirty = true
}

// AddEdge adds the ordering constraint u -> v ("u runs before v"). It
// returns false, leaving the graph unchanged, when u or v is dead, when
// u == v, or when v already reaches u (which would close a cycle). Adding
// an edge that already exists is an idempotent no-op that returns true.
func (g *Graph) AddEdge(u, v VertexID) bool {
	if u == v {
		return false
	}
	if !g.Alive(u) || !g.Alive(v) {
		return false
	}
	for _, he := range g.out[u] {
		if he.other == v {
			return true // duplicate, idempotent
		}
	}
	if g.Reachable(v, u) {
		return false // would close a cycle
	}

	backIn := len(g.in[v])
	g.out[u] = append(g.out[u], halfEdge{other: v, back: backIn})
	backOut := len(g.out[u]) - 1
	g.in[v] = append(g.in[v], halfEdge{other: u, back: backOut})
	g.indegree[v]++
	g.dirty = true
	return true
}

// RemoveEdge removes the edge u -> v if present, returning whether it was
// found.
func (g *Graph) RemoveEdge(u, v VertexID) bool {
	if !g.Alive(u) || !g.Alive(v) {
		return false
	}
	idx := -1
	for i, he := range g.out[u] {
		if he.other == v {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	back := g.out[u][idx].back
	removeHalfEdge(g.out, g.in, u, idx)
	removeHalfEdge(g.in, g.out, v, back)
	g.indegree[v]--
	g.dirty = true
	return true
}

// HasCycle reports whether the graph currently contains a cycle, via Kahn's
// algorithm over a scratch copy of the in-degree counts.
func (g *Graph) HasCycle() bool {
	remaining := make(map[VertexID]int, len(g.indegree))
	var queue []VertexID
	aliveCount := 0
	for v, d := range g.indegree {
		if d < 0 {
			continue
		}
		aliveCount++
		remaining[v] = d
		if d == 0 {
			queue = append(queue, v)
		}
	}
	drained := 0
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		drained++
		for _, he := range g.out[v] {
			w := he.other
			remaining[w]--
			if remaining[w] == 0 {
				queue = append(queue, w)
			}
		}
	}
	return drained < aliveCount
}

// Reachable reports whether dst is reachable from src by following edges
// forward. A vertex is trivially reachable from itself.
func (g *Graph) Reachable(src, dst VertexID) bool {
	if !g.Alive(src) || !g.Alive(dst) {
		return false
	}
	if src == dst {
		return true
	}
	visited := map[VertexID]bool{src: true}
	stack := []VertexID{src}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, he := range g.out[v] {
			w := he.other
			if w == dst {
				return true
			}
			if !visited[w] {
				visited[w] = true
				stack = append(stack, w)
			}
		}
	}
	return false
}

func insertSorted(s []VertexID, v VertexID) []VertexID {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// rebuildTopoSort runs Kahn's algorithm, always resolving ties in the
// ready-set by ascending vertex id. This determinism is load-bearing: level
// assignment and bucket partitioning both depend on a stable order.
func (g *Graph) rebuildTopoSort() []VertexID {
	remaining := make(map[VertexID]int, len(g.indegree))
	var aliveSorted []VertexID
	for v, d := range g.indegree {
		if d < 0 {
			continue
		}
		remaining[v] = d
		aliveSorted = append(aliveSorted, v)
	}
	sort.Slice(aliveSorted, func(i, j int) bool { return aliveSorted[i] < aliveSorted[j] })

	var available []VertexID
	for _, v := range aliveSorted {
		if remaining[v] == 0 {
			available = append(available, v)
		}
	}

	order := make([]VertexID, 0, len(aliveSorted))
	for len(available) > 0 {
		v := available[0]
		available = available[1:]
		order = append(order, v)

		neighbors := make([]VertexID, 0, len(g.out[v]))
		for _, he := range g.out[v] {
			neighbors = append(neighbors, he.other)
		}
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		for _, w := range neighbors {
			remaining[w]--
			if remaining[w] == 0 {
				available = insertSorted(available, w)
			}
		}
	}
	return order
}

// TopoSort returns a topological ordering of the alive vertices, rebuilding
// it only if the graph has been mutated since the last call.
func (g *Graph) TopoSort() []VertexID {
	if g.dirty || g.topoCache == nil {
		g.topoCache = g.rebuildTopoSort()
		g.dirty = false
	}
	out := make([]VertexID, len(g.topoCache))
	copy(out, g.topoCache)
	return out
}

// Vertices returns the alive vertex ids in ascending order.
func (g *Graph) Vertices() []VertexID {
	out := make([]VertexID, 0, len(g.indegree))
	for v, d := range g.indegree {
		if d >= 0 {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InDegree returns the in-degree of v, or -1 if v is not alive.
func (g *Graph) InDegree(v VertexID) int {
	d, ok := g.indegree[v]
	if !ok {
		return -1
	}
	return d
}

// Edge is a directed ordering constraint From -> To.
type Edge struct {
	From VertexID
	To   VertexID
}

// Edges returns every alive edge in the graph, ordered by (From, To).
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, v := range g.Vertices() {
		tos := make([]VertexID, 0, len(g.out[v]))
		for _, he := range g.out[v] {
			tos = append(tos, he.other)
		}
		sort.Slice(tos, func(i, j int) bool { return tos[i] < tos[j] })
		for _, to := range tos {
			edges = append(edges, Edge{From: v, To: to})
		}
	}
	return edges
}

// OutNeighbors returns the vertices that v points to, in ascending order.
func (g *Graph) OutNeighbors(v VertexID) []VertexID {
	out := make([]VertexID, 0, len(g.out[v]))
	for _, he := range g.out[v] {
		out = append(out, he.other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InNeighbors returns the vertices that point to v, in ascending order.
func (g *Graph) InNeighbors(v VertexID) []VertexID {
	out := make([]VertexID, 0, len(g.in[v]))
	for _, he := range g.in[v] {
		out = append(out, he.other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy of g, including its internal id
// bookkeeping. The scheduler uses this to build a scratch working copy of
// the dependency graph for each recompute_schedule without disturbing the
// live one.
func (g *Graph) Clone() *Graph {
	ng := &Graph{
		out:      make(map[VertexID][]halfEdge, len(g.out)),
		in:       make(map[VertexID][]halfEdge, len(g.in)),
		indegree: make(map[VertexID]int, len(g.indegree)),
		free:     append([]VertexID(nil), g.free...),
		nextID:   g.nextID,
		dirty:    true, // force a fresh topo sort on first use of the clone
	}
	for v, l := range g.out {
		ng.out[v] = append([]halfEdge(nil), l...)
	}
	for v, l := range g.in {
		ng.in[v] = append([]halfEdge(nil), l...)
	}
	for v, d := range g.indegree {
		ng.indegree[v] = d
	}
	return ng
}

// MergeEdgesInto incorporates every alive edge of other into g by calling
// AddEdge for each one. Edges that would introduce a cycle in g are silently
// skipped — the caller is responsible for noticing any such gap, per the
// kernel's "skip and let the caller diff" policy for conflicting orderings.
func (g *Graph) MergeEdgesInto(other *Graph) {
	for _, e := range other.Edges() {
		g.AddEdge(e.From, e.To)
	}
}
