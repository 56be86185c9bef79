package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kernelsched/kernel/errwrap"
	"github.com/kernelsched/kernel/semaphore"
)

// PassKind distinguishes the three lifecycle passes a Scheduler can drive.
type PassKind int

const (
	PassAwake PassKind = iota
	PassUpdate
	PassShutdown
)

func (k PassKind) String() string {
	switch k {
	case PassAwake:
		return "awake"
	case PassUpdate:
		return "update"
	case PassShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// NodeResult records the outcome of running one system's op during a pass.
type NodeResult struct {
	System SystemID
	Level  int
	Err    error
	Status Status
}

// PassReport summarises one full pass across every level.
type PassReport struct {
	ID      uuid.UUID
	Kind    PassKind
	Results []NodeResult
}

// Failed returns the subset of results that errored.
func (r PassReport) Failed() []NodeResult {
	var out []NodeResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err folds every failed node's error into one aggregate via
// errwrap.Append, or returns nil if every node in the pass succeeded. Pass
// containment itself is unaffected by this: each node's failure is still
// recorded independently in Results/NodeResult before this aggregate is
// built.
func (r PassReport) Err() error {
	var result error
	for _, res := range r.Failed() {
		result = errwrap.Append(result, fmt.Errorf("system %d: %w", res.System, res.Err))
	}
	return result
}

func rateLimiterFor(p *RetryPolicy) *rate.Limiter {
	if p.Limit <= 0 {
		return nil
	}
	burst := p.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(p.Limit, burst)
}

// runOp invokes op, converting any panic raised inside it into an error so
// that one misbehaving system can never take down a whole pass.
func runOp(op func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: system panicked: %v", r)
		}
	}()
	return op()
}

func opFor(sys System, kind PassKind) func() error {
	switch kind {
	case PassAwake:
		return sys.Awake
	case PassUpdate:
		return sys.Update
	case PassShutdown:
		return sys.Shutdown
	default:
		return func() error { return fmt.Errorf("scheduler: unknown pass kind %d", kind) }
	}
}

// runPass drives one lifecycle pass. Awake and Shutdown walk the cached
// topological order one node at a time on the calling goroutine — two
// independent systems never run concurrently during these passes, even
// when they share a level. Update is the only pass that dispatches a
// level's Parallel bucket across goroutines (bounded by WorkerPoolSize)
// before running its MainThread bucket serially. A node's failure is
// contained to that node: its status flips to ERR and the rest of the
// pass still runs.
func (s *Scheduler) runPass(ctx context.Context, kind PassKind) PassReport {
	s.recompute()
	report := PassReport{ID: uuid.New(), Kind: kind}

	if kind == PassUpdate {
		report.Results = s.runParallelPass(ctx, kind)
	} else {
		report.Results = s.runSequentialPass(ctx, kind)
	}

	if s.Metrics != nil {
		s.Metrics.ObservePass(kind.String(), len(report.Failed()))
	}
	return report
}

// runSequentialPass walks the cached topological order one node at a time,
// used for Awake and Shutdown per spec: these two passes must never run
// two systems concurrently, unlike Update.
func (s *Scheduler) runSequentialPass(ctx context.Context, kind PassKind) []NodeResult {
	var results []NodeResult
	for _, id := range s.topoOrder {
		n, ok := s.nodes[id]
		if !ok || !n.enabled || n.status == StatusDeprecated {
			continue
		}
		results = append(results, s.runNode(ctx, id, s.levelOf[id], kind))
	}
	return results
}

// runParallelPass dispatches each level's Parallel bucket across goroutines
// bounded by WorkerPoolSize, then runs its MainThread bucket serially,
// before moving to the next level. Only Update uses this path.
func (s *Scheduler) runParallelPass(ctx context.Context, kind PassKind) []NodeResult {
	var results []NodeResult

	sem := semaphore.New(s.WorkerPoolSize)
	defer sem.Close()

	for levelIdx, lv := range s.levels {
		ch := make(chan NodeResult, len(lv.Parallel))
		for _, id := range lv.Parallel {
			id := id
			go func() {
				if err := sem.P(); err != nil {
					ch <- NodeResult{System: id, Level: levelIdx, Err: err}
					return
				}
				defer sem.V()
				ch <- s.runNode(ctx, id, levelIdx, kind)
			}()
		}
		for range lv.Parallel {
			results = append(results, <-ch)
		}

		for _, id := range lv.MainThread {
			results = append(results, s.runNode(ctx, id, levelIdx, kind))
		}
	}
	return results
}

func (s *Scheduler) runNode(ctx context.Context, id SystemID, levelIdx int, kind PassKind) NodeResult {
	n, ok := s.nodes[id]
	if !ok {
		return NodeResult{System: id, Level: levelIdx, Err: fmt.Errorf("scheduler: no such system %d", id)}
	}

	if dr, ok := n.sys.(DependencyReceiver); ok {
		dr.ResolveDependencies(s.Dependencies(id))
	}

	err := runOp(opFor(n.sys, kind))
	if err != nil {
		n.status = StatusErr
		n.lastErr = err
		s.logf("scheduler: system %d failed %s pass: %v", id, kind, err)
	} else {
		n.lastErr = nil
		if kind == PassShutdown {
			n.status = StatusOff
		} else {
			n.status = StatusOK
		}
	}
	return NodeResult{System: id, Level: levelIdx, Err: err, Status: n.status}
}

// Retry re-invokes Awake on a node that ended a previous pass in ERR
// status. The scheduler never retries a failed node on its own — this is
// the only path back to OK, and the caller must call it explicitly. If the
// node carries a RetryPolicy, Retry enforces its remaining-attempt budget
// and rate limit; a nil policy imposes no limit beyond the caller's own
// judgment.
func (s *Scheduler) Retry(ctx context.Context, id SystemID) error {
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("scheduler: no such system %d", id)
	}
	if n.status != StatusErr {
		return fmt.Errorf("scheduler: system %d is not in ERR status", id)
	}
	if n.retry != nil {
		if n.retry.Retry == 0 {
			return fmt.Errorf("scheduler: system %d has retrying disabled", id)
		}
		if n.retry.Retry > 0 {
			if n.retryLeft <= 0 {
				return fmt.Errorf("scheduler: system %d has exhausted its retry budget", id)
			}
			n.retryLeft--
		}
		if n.limiter != nil && !n.limiter.Allow() {
			return fmt.Errorf("scheduler: system %d retry rate-limited", id)
		}
	}
	s.runNode(ctx, id, s.levelOf[id], PassAwake)
	return nil
}

// RunAwakePass runs Awake across every system, one at a time, in
// topological order.
func (s *Scheduler) RunAwakePass(ctx context.Context) PassReport {
	return s.runPass(ctx, PassAwake)
}

// RunUpdatePass runs Update across every system; callers typically invoke
// this once per frame. Independent systems in the same level run
// concurrently.
func (s *Scheduler) RunUpdatePass(ctx context.Context) PassReport {
	return s.runPass(ctx, PassUpdate)
}

// RunShutdownPass runs Shutdown across every system, one at a time, in the
// same topological order Awake used: producers still shut down before the
// consumers that merely read their state.
func (s *Scheduler) RunShutdownPass(ctx context.Context) PassReport {
	return s.runPass(ctx, PassShutdown)
}
