package dgraph

import "testing"

func TestEmptyGraph(t *testing.T) {
	g := NewGraph()
	if got := g.TopoSort(); len(got) != 0 {
		t.Errorf("expected empty topo sort, got: %v", got)
	}
	if g.HasCycle() {
		t.Errorf("empty graph should not have a cycle")
	}
}

func TestLinearChain(t *testing.T) {
	g := NewGraph()
	v := make([]VertexID, 4)
	for i := range v {
		v[i] = g.AddVertex()
	}
	if !g.AddEdge(v[0], v[1]) || !g.AddEdge(v[1], v[2]) || !g.AddEdge(v[2], v[3]) {
		t.Fatalf("AddEdge should have succeeded on an acyclic chain")
	}

	order := g.TopoSort()
	if len(order) != 4 {
		t.Fatalf("expected 4 vertices, got %d", len(order))
	}
	for i, want := range v {
		if order[i] != want {
			t.Errorf("topo_sort[%d] = %v, want %v", i, order[i], want)
		}
	}

	g.RemoveVertex(v[2])
	alive := g.Vertices()
	if len(alive) != 3 {
		t.Fatalf("expected 3 alive vertices after removal, got %d", len(alive))
	}
	edges := g.Edges()
	if len(edges) != 1 || edges[0] != (Edge{From: v[0], To: v[1]}) {
		t.Errorf("expected only {0->1} to remain, got %v", edges)
	}
}

func TestSelfLoopRejected(t *testing.T) {
	g := NewGraph()
	v := g.AddVertex()
	if g.AddEdge(v, v) {
		t.Errorf("self loop should be rejected")
	}
}

func TestCycleRejected(t *testing.T) {
	g := NewGraph()
	a, b, c := g.AddVertex(), g.AddVertex(), g.AddVertex()
	g.AddEdge(a, b)
	g.AddEdge(b, c)

	edgesBefore := g.Edges()
	if g.AddEdge(c, a) {
		t.Fatalf("adding c->a should have been rejected as a cycle")
	}
	edgesAfter := g.Edges()
	if len(edgesBefore) != len(edgesAfter) {
		t.Errorf("graph state changed after a rejected AddEdge")
	}
	if g.HasCycle() {
		t.Errorf("graph should remain acyclic after a rejected edge")
	}
}

func TestAddRemoveEdgeRoundTrip(t *testing.T) {
	g := NewGraph()
	a, b := g.AddVertex(), g.AddVertex()
	verticesBefore := len(g.Vertices())

	if !g.AddEdge(a, b) {
		t.Fatalf("AddEdge should have succeeded")
	}
	if !g.RemoveEdge(a, b) {
		t.Fatalf("RemoveEdge should have found the edge")
	}
	if len(g.Edges()) != 0 {
		t.Errorf("expected no edges after round trip, got %v", g.Edges())
	}
	if len(g.Vertices()) != verticesBefore {
		t.Errorf("vertex count changed across an edge round trip")
	}
}

func TestDuplicateEdgeIsIdempotent(t *testing.T) {
	g := NewGraph()
	a, b := g.AddVertex(), g.AddVertex()
	if !g.AddEdge(a, b) || !g.AddEdge(a, b) {
		t.Fatalf("duplicate AddEdge should return true both times")
	}
	if len(g.Edges()) != 1 {
		t.Errorf("expected exactly one edge after a duplicate add, got %v", g.Edges())
	}
}

func TestRemoveVertexLeavesNoDanglingHalfEdges(t *testing.T) {
	g := NewGraph()
	hub := g.AddVertex()
	var spokes []VertexID
	for i := 0; i < 5; i++ {
		s := g.AddVertex()
		spokes = append(spokes, s)
		g.AddEdge(hub, s)
	}
	g.RemoveVertex(hub)
	for _, s := range spokes {
		if g.InDegree(s) != 0 {
			t.Errorf("spoke %v should have in-degree 0 after hub removal, got %d", s, g.InDegree(s))
		}
	}
	if len(g.Edges()) != 0 {
		t.Errorf("expected no edges left, got %v", g.Edges())
	}
}

func TestTopoSortCachedUntilMutation(t *testing.T) {
	g := NewGraph()
	a, b := g.AddVertex(), g.AddVertex()
	g.AddEdge(a, b)

	first := g.TopoSort()
	second := g.TopoSort()
	if len(first) != len(second) {
		t.Fatalf("two consecutive TopoSort calls disagreed on length")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("two consecutive TopoSort calls disagreed at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestAscendingTieBreak(t *testing.T) {
	g := NewGraph()
	// Five independent vertices: no edges, so the only tie-break signal
	// is ascending id.
	ids := make([]VertexID, 5)
	for i := range ids {
		ids[i] = g.AddVertex()
	}
	order := g.TopoSort()
	for i, want := range ids {
		if order[i] != want {
			t.Errorf("expected ascending tie-break order[%d] = %v, got %v", i, want, order[i])
		}
	}
}

func TestVertexIDReuseAfterRemoval(t *testing.T) {
	g := NewGraph()
	a := g.AddVertex()
	g.RemoveVertex(a)
	b := g.AddVertex()
	if b != a {
		t.Errorf("expected freed id %v to be reused, got %v", a, b)
	}
}

func TestMergeEdgesIntoSkipsCycles(t *testing.T) {
	// Fused-conflict scenario: an explicit C->A dependency plus a
	// resource-derived A->C edge must not corrupt the explicit graph;
	// the conflicting edge is dropped and topo_sort still succeeds.
	dep := NewGraph()
	a, _, c := dep.AddVertex(), dep.AddVertex(), dep.AddVertex()
	dep.AddEdge(c, a)

	resourceGraph := NewGraph()
	// same vertex ids, representing the same systems
	resourceGraph.AddVertex()
	resourceGraph.AddVertex()
	resourceGraph.AddVertex()
	resourceGraph.AddEdge(a, c)

	dep.MergeEdgesInto(resourceGraph)

	order := dep.TopoSort()
	pos := map[VertexID]int{}
	for i, v := range order {
		pos[v] = i
	}
	if pos[c] >= pos[a] {
		t.Errorf("explicit dependency c->a was not honoured after merge: order=%v", order)
	}
}

func TestReachable(t *testing.T) {
	g := NewGraph()
	a, b, c, d := g.AddVertex(), g.AddVertex(), g.AddVertex(), g.AddVertex()
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	if !g.Reachable(a, c) {
		t.Errorf("expected a to reach c")
	}
	if g.Reachable(c, a) {
		t.Errorf("did not expect c to reach a")
	}
	if g.Reachable(a, d) {
		t.Errorf("did not expect a to reach isolated d")
	}
}
