// Package scheduler implements the plugin scheduler: it owns a set of
// system nodes, an explicit-dependency graph over them, and a resource
// manager, fuses the two into one ordering graph on demand, and dispatches
// systems level by level with per-node error containment.
package scheduler

import (
	"fmt"
	"sort"

	"github.com/kernelsched/kernel/dgraph"
	"github.com/kernelsched/kernel/resource"
	"github.com/kernelsched/kernel/scheduler/metrics"
)

// Level is one step of the execution schedule: every system in Parallel may
// run concurrently with each other, and must all finish before MainThread
// runs serially on the calling goroutine.
type Level struct {
	Parallel   []SystemID
	MainThread []SystemID
}

// Scheduler composes systems into a runnable pipeline and drives it.
type Scheduler struct {
	nodes   map[SystemID]*node
	keyToID map[string]SystemID

	depGraph  *dgraph.Graph
	resources *resource.Manager

	dirty     bool
	topoOrder []SystemID
	levels    []Level
	levelOf   map[SystemID]int

	// WorkerPoolSize bounds how many parallel-bucket systems run
	// concurrently within a level. <= 0 means unbounded. New leaves it at
	// the zero value, so the default is unbounded; use WithWorkerPoolSize
	// to set a bound.
	WorkerPoolSize int

	// Logf is an optional logger, nil-safe like the rest of the kernel.
	Logf func(format string, v ...interface{})

	// Metrics is an optional prometheus-backed counter set; nil-safe.
	Metrics *metrics.Metrics
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithWorkerPoolSize overrides the default worker pool size.
func WithWorkerPoolSize(n int) Option {
	return func(s *Scheduler) { s.WorkerPoolSize = n }
}

// WithLogf attaches a logger.
func WithLogf(logf func(string, ...interface{})) Option {
	return func(s *Scheduler) { s.Logf = logf }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.Metrics = m }
}

// New returns an empty, ready-to-use Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		nodes:     make(map[SystemID]*node),
		keyToID:   make(map[string]SystemID),
		depGraph:  dgraph.NewGraph(),
		resources: resource.NewManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) logf(format string, v ...interface{}) {
	if s.Logf != nil {
		s.Logf(format, v...)
	}
}

// Resources exposes the resource manager so callers can register resources
// and declare read/write intent against the systems they've added.
func (s *Scheduler) Resources() *resource.Manager {
	return s.resources
}

// DependencyGraph exposes the underlying dependency graph, e.g. so a caller
// can export it with dgraph.WriteGraphviz.
func (s *Scheduler) DependencyGraph() *dgraph.Graph {
	return s.depGraph
}

// NodeOption configures a node at AddSystem time.
type NodeOption func(*node)

// WithKey overrides the default type-derived dependency key.
func WithKey(key string) NodeOption {
	return func(n *node) { n.key = key }
}

// WithMainThreadOnly pins the node to the main thread bucket of its level.
func WithMainThreadOnly(v bool) NodeOption {
	return func(n *node) { n.mainThreadOnly = v }
}

// WithRetryPolicy attaches a retry budget/rate-limit that bounds calls the
// caller makes to Scheduler.Retry; it never triggers a retry on its own.
func WithRetryPolicy(p RetryPolicy) NodeOption {
	return func(n *node) { n.retry = &p }
}

// AddSystem registers sys and returns its id. If a node with the same
// dependency key is already registered, its existing id is returned instead
// (dedup) and no new node is created.
func (s *Scheduler) AddSystem(sys System, opts ...NodeOption) SystemID {
	key := defaultDependencyKey(sys)
	n := &node{
		sys:     sys,
		key:     key,
		enabled: true,
		status:  StatusOff,
		deps:    make(map[string]SystemID),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.retry != nil {
		n.limiter = rateLimiterFor(n.retry)
		n.retryLeft = n.retry.Retry
	}

	if existing, ok := s.keyToID[n.key]; ok {
		return existing
	}

	id := SystemID(s.depGraph.AddVertex())
	n.id = id
	s.nodes[id] = n
	s.keyToID[n.key] = id
	s.resources.Touch(resource.SystemID(id))
	s.dirty = true
	if s.Metrics != nil {
		s.Metrics.SetSystemsTotal(len(s.nodes))
	}
	return id
}

// RemoveSystem removes a node, its dependency-graph vertex, and purges any
// resource read/write requests it made.
func (s *Scheduler) RemoveSystem(id SystemID) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	s.depGraph.RemoveVertex(dgraph.VertexID(id))
	s.resources.PurgeSystem(resource.SystemID(id))
	delete(s.keyToID, n.key)
	delete(s.nodes, id)
	s.dirty = true
	if s.Metrics != nil {
		s.Metrics.SetSystemsTotal(len(s.nodes))
	}
}

// Lookup returns the id registered under key, if any.
func (s *Scheduler) Lookup(key string) (SystemID, bool) {
	id, ok := s.keyToID[key]
	return id, ok
}

// AddDependency records that from must run before to. It forwards to the
// dependency graph and returns whatever AddEdge returns; on success it also
// records the producer in the consumer's dependency-key map.
func (s *Scheduler) AddDependency(from, to SystemID) bool {
	if !s.depGraph.AddEdge(dgraph.VertexID(from), dgraph.VertexID(to)) {
		return false
	}
	if producer, ok := s.nodes[from]; ok {
		if consumer, ok := s.nodes[to]; ok {
			consumer.deps[producer.key] = from
		}
	}
	s.dirty = true
	return true
}

// RemoveDependency removes the from->to edge, if present, and the
// corresponding entry from the consumer's dependency-key map.
func (s *Scheduler) RemoveDependency(from, to SystemID) {
	if !s.depGraph.RemoveEdge(dgraph.VertexID(from), dgraph.VertexID(to)) {
		return
	}
	if producer, ok := s.nodes[from]; ok {
		if consumer, ok := s.nodes[to]; ok {
			for k, v := range consumer.deps {
				if v == from {
					delete(consumer.deps, k)
				}
			}
			_ = producer
		}
	}
	s.dirty = true
}

// Dependencies returns the immutable key->handle map a node can use to look
// up its dependencies at pass time, per the "no owning back-reference"
// design: the caller gets a snapshot, not a pointer into the scheduler.
func (s *Scheduler) Dependencies(id SystemID) map[string]interface{} {
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	out := make(map[string]interface{}, len(n.deps))
	for key, producerID := range n.deps {
		if producer, ok := s.nodes[producerID]; ok {
			out[key] = producer.sys.ObjectHandle()
		}
	}
	return out
}

// Status returns the current status and last error of a node.
func (s *Scheduler) Status(id SystemID) (Status, error) {
	n, ok := s.nodes[id]
	if !ok {
		return StatusOff, fmt.Errorf("scheduler: no such system %d", id)
	}
	return n.status, n.lastErr
}

// SetEnabled toggles whether a node participates in passes.
func (s *Scheduler) SetEnabled(id SystemID, enabled bool) {
	if n, ok := s.nodes[id]; ok {
		n.enabled = enabled
		s.dirty = true
	}
}

// SetDeprecated marks a node DEPRECATED, which causes the scheduler to skip
// it in every subsequent pass.
func (s *Scheduler) SetDeprecated(id SystemID) {
	if n, ok := s.nodes[id]; ok {
		n.status = StatusDeprecated
		s.dirty = true
	}
}

// SetMainThreadOnly reassigns a node's bucket, moving it to the main-thread
// bucket of its level (or back to parallel) on the next recompute.
func (s *Scheduler) SetMainThreadOnly(id SystemID, mainThreadOnly bool) {
	if n, ok := s.nodes[id]; ok {
		n.mainThreadOnly = mainThreadOnly
		s.dirty = true
	}
}

// SetRetryPolicy attaches or replaces the retry budget/rate-limit enforced
// against future Scheduler.Retry calls for this node.
func (s *Scheduler) SetRetryPolicy(id SystemID, p RetryPolicy) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	n.retry = &p
	n.limiter = rateLimiterFor(&p)
	n.retryLeft = p.Retry
}

// Merge fuses other's nodes and edges into s. Systems whose dependency key
// already exists in s are deduplicated onto the existing id; new ones are
// added. Every alive edge in other's dependency graph is then translated
// through that mapping and re-added via AddDependency.
func (s *Scheduler) Merge(other *Scheduler) {
	ids := make([]SystemID, 0, len(other.nodes))
	for id := range other.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	mapping := make(map[SystemID]SystemID, len(ids))
	for _, id := range ids {
		n := other.nodes[id]
		if existing, ok := s.keyToID[n.key]; ok {
			mapping[id] = existing
			continue
		}
		newID := s.AddSystem(n.sys,
			WithKey(n.key),
			WithMainThreadOnly(n.mainThreadOnly),
		)
		mapping[id] = newID
	}

	for _, e := range other.depGraph.Edges() {
		from, okFrom := mapping[SystemID(e.From)]
		to, okTo := mapping[SystemID(e.To)]
		if okFrom && okTo {
			s.AddDependency(from, to)
		}
	}
	s.dirty = true
}
