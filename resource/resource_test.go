package resource

import (
	"testing"

	"github.com/kernelsched/kernel/dgraph"
)

func TestWriterBeforeReader(t *testing.T) {
	// Seed scenario 2: A=0 writes R0, B=1 and C=2 read R0.
	m := NewManager()
	r0 := m.AddResource("payload")

	const a, b, c = SystemID(0), SystemID(1), SystemID(2)
	m.Touch(a)
	m.Touch(b)
	m.Touch(c)
	m.AddWriteRequest(a, r0)
	m.AddReadRequest(b, r0)
	m.AddReadRequest(c, r0)

	g := m.RebuildGlobalGraph()

	if !g.Reachable(dgraph.VertexID(a), dgraph.VertexID(b)) {
		t.Errorf("expected edge-reachability a->b")
	}
	if !g.Reachable(dgraph.VertexID(a), dgraph.VertexID(c)) {
		t.Errorf("expected edge-reachability a->c")
	}
	if g.Reachable(dgraph.VertexID(b), dgraph.VertexID(c)) || g.Reachable(dgraph.VertexID(c), dgraph.VertexID(b)) {
		t.Errorf("readers must not be connected to each other")
	}
}

func TestTwoWritersAscendingOrder(t *testing.T) {
	// Seed scenario 3: A=0, B=1 both write R0; ascending-id rule means
	// A->B is the only writer edge emitted; no B->A edge exists.
	m := NewManager()
	r0 := m.AddResource("payload")

	const a, b = SystemID(0), SystemID(1)
	m.Touch(a)
	m.Touch(b)
	m.AddWriteRequest(a, r0)
	m.AddWriteRequest(b, r0)

	g := m.RebuildGlobalGraph()
	if !g.Reachable(dgraph.VertexID(a), dgraph.VertexID(b)) {
		t.Errorf("expected a->b to survive")
	}
	if g.HasCycle() {
		t.Errorf("graph must remain acyclic")
	}
	order := g.TopoSort()
	if len(order) != 2 || order[0] != dgraph.VertexID(a) || order[1] != dgraph.VertexID(b) {
		t.Errorf("expected topo order [a, b], got %v", order)
	}
}

func TestReadWriteConflictPanics(t *testing.T) {
	m := NewManager()
	r0 := m.AddResource("payload")
	const a = SystemID(0)
	m.AddReadRequest(a, r0)

	defer func() {
		if recover() == nil {
			t.Errorf("expected a panic when the same system writes after reading")
		}
	}()
	m.AddWriteRequest(a, r0)
}

func TestPurgeSystemRemovesRequests(t *testing.T) {
	m := NewManager()
	r0 := m.AddResource("payload")
	const a, b = SystemID(0), SystemID(1)
	m.AddWriteRequest(a, r0)
	m.AddReadRequest(b, r0)
	m.RebuildGlobalGraph()

	m.PurgeSystem(a)
	g := m.RebuildGlobalGraph()
	if g.Reachable(dgraph.VertexID(a), dgraph.VertexID(b)) {
		t.Errorf("expected no edge from a after purge")
	}
}

func TestRebuildGlobalGraphIdempotent(t *testing.T) {
	m := NewManager()
	r0 := m.AddResource("payload")
	m.AddWriteRequest(SystemID(0), r0)
	m.AddReadRequest(SystemID(1), r0)

	first := m.RebuildGlobalGraph()
	second := m.RebuildGlobalGraph()
	if first != second {
		t.Errorf("expected the cached graph to be returned unchanged when nothing is dirty")
	}
}
