// Package resource implements the resource manager: it tracks per-system
// read/write declarations against a set of named, typed resources and
// derives the ordering edges ("writer before every reader, writers totally
// ordered among themselves") that guarantee race-freedom between systems
// that touch the same datum.
package resource

import (
	"fmt"
	"sort"

	"github.com/kernelsched/kernel/dgraph"
)

// ID identifies a registered resource.
type ID int

// SystemID identifies a system, using the same numbering space as the
// scheduler's system ids (the scheduler is responsible for keeping them in
// sync; this package only ever receives ids, it never allocates them).
type SystemID int

// ConflictError is the fatal precondition violation raised when a system
// declares itself both a reader and a writer of the same resource — a
// programming error in the caller, not a runtime condition to recover from.
type ConflictError struct {
	System   SystemID
	Resource ID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource: system %d is already a %s of resource %d", e.System, "reader-or-writer", e.Resource)
}

type entry struct {
	payload interface{}
	readers map[SystemID]bool
	writers map[SystemID]bool
	dirty   bool
}

// Manager holds every registered resource and the derived conflict graph.
type Manager struct {
	resources   []*entry
	maxSystemID SystemID
	haveSystem  bool // whether maxSystemID has ever been set
	dirty       bool // disjunction of every per-resource dirty bit

	cached *dgraph.Graph

	// Logf is an optional logger, nil-safe like the rest of the kernel.
	Logf func(format string, v ...interface{})
}

// NewManager returns an empty resource manager.
func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) logf(format string, v ...interface{}) {
	if m.Logf != nil {
		m.Logf(format, v...)
	}
}

// AddResource registers a new resource holding the given opaque payload and
// returns its id.
func (m *Manager) AddResource(payload interface{}) ID {
	m.resources = append(m.resources, &entry{
		payload: payload,
		readers: make(map[SystemID]bool),
		writers: make(map[SystemID]bool),
		dirty:   true,
	})
	m.dirty = true
	return ID(len(m.resources) - 1)
}

// Resource returns the payload registered for id, or nil if id is out of
// range.
func (m *Manager) Resource(id ID) interface{} {
	if int(id) < 0 || int(id) >= len(m.resources) {
		return nil
	}
	return m.resources[id].payload
}

// Touch records that systemID exists without declaring any access, so that
// the conflict graph is sized correctly even for systems that never read or
// write a resource. The scheduler calls this from AddSystem.
func (m *Manager) Touch(systemID SystemID) {
	m.bumpWatermark(systemID)
}

func (m *Manager) bumpWatermark(systemID SystemID) {
	if !m.haveSystem || systemID > m.maxSystemID {
		m.maxSystemID = systemID
		m.haveSystem = true
		m.dirty = true
	}
}

func (m *Manager) resourceAt(id ID) (*entry, error) {
	if int(id) < 0 || int(id) >= len(m.resources) {
		return nil, fmt.Errorf("resource: no such resource %d", id)
	}
	return m.resources[id], nil
}

// AddReadRequest declares that systemID reads resourceID. It panics with a
// *ConflictError if systemID is already a writer of the same resource — per
// spec this is a caller programming error, not a recoverable condition.
func (m *Manager) AddReadRequest(systemID SystemID, resourceID ID) {
	e, err := m.resourceAt(resourceID)
	if err != nil {
		return // dead resource reference: silently ignored, like a dead vertex
	}
	if e.writers[systemID] {
		panic(&ConflictError{System: systemID, Resource: resourceID})
	}
	if !e.readers[systemID] {
		e.readers[systemID] = true
		e.dirty = true
		m.dirty = true
	}
	m.bumpWatermark(systemID)
}

// AddWriteRequest declares that systemID writes resourceID. It panics with a
// *ConflictError if systemID is already a reader of the same resource.
func (m *Manager) AddWriteRequest(systemID SystemID, resourceID ID) {
	e, err := m.resourceAt(resourceID)
	if err != nil {
		return
	}
	if e.readers[systemID] {
		panic(&ConflictError{System: systemID, Resource: resourceID})
	}
	if !e.writers[systemID] {
		e.writers[systemID] = true
		e.dirty = true
		m.dirty = true
	}
	m.bumpWatermark(systemID)
}

// PurgeSystem removes every read/write request made by systemID, across
// every resource. The scheduler calls this when a system is removed.
func (m *Manager) PurgeSystem(systemID SystemID) {
	for _, e := range m.resources {
		if e.readers[systemID] {
			delete(e.readers, systemID)
			e.dirty = true
			m.dirty = true
		}
		if e.writers[systemID] {
			delete(e.writers, systemID)
			e.dirty = true
			m.dirty = true
		}
	}
}

// sortedSystemIDs returns the keys of a SystemID set in ascending order.
func sortedSystemIDs(set map[SystemID]bool) []SystemID {
	out := make([]SystemID, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// rebuildResourceGraph builds the conflict graph for one resource, sized to
// fit g (which must already contain every system vertex). Writers are
// totally ordered among themselves — every writer before every other writer
// — and every writer runs before every reader. Readers are never connected
// to each other. The writer set is processed in ascending system-id order and
// each pair of writers gets only the w < w' edge, so writers run in
// ascending id order.
func rebuildResourceGraph(g *dgraph.Graph, e *entry) {
	writers := sortedSystemIDs(e.writers)
	readers := sortedSystemIDs(e.readers)

	for i, w := range writers {
		for _, w2 := range writers[i+1:] {
			g.AddEdge(dgraph.VertexID(w), dgraph.VertexID(w2))
		}
	}
	for _, w := range writers {
		for _, r := range readers {
			g.AddEdge(dgraph.VertexID(w), dgraph.VertexID(r))
		}
	}
	e.dirty = false
}

// RebuildGlobalGraph rebuilds and caches the global conflict graph if the
// manager or any resource is dirty, and returns it. It is idempotent when no
// intervening read/write requests are made.
func (m *Manager) RebuildGlobalGraph() *dgraph.Graph {
	if !m.dirty && m.cached != nil {
		return m.cached
	}

	size := 0
	if m.haveSystem {
		size = int(m.maxSystemID) + 1
	}
	g := dgraph.NewGraph()
	for i := 0; i < size; i++ {
		g.AddVertex()
	}

	for _, e := range m.resources {
		rebuildResourceGraph(g, e)
	}

	m.cached = g
	m.dirty = false // cleared unconditionally on success, across every path
	m.logf("resource: rebuilt global conflict graph (%d systems, %d resources)", size, len(m.resources))
	return g
}
