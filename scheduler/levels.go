package scheduler

// recompute rebuilds the topological order and the level/bucket schedule
// from the explicit dependency graph fused with the resource manager's
// conflict graph. It is a no-op when nothing has changed since the last
// call. Ground rule, mirrored from the graph package this composes: build
// on a throwaway clone so a rejected (cyclic) conflict edge never corrupts
// the live dependency graph.
func (s *Scheduler) recompute() {
	if !s.dirty {
		return
	}

	working := s.depGraph.Clone()
	working.MergeEdgesInto(s.resources.RebuildGlobalGraph())

	order := working.TopoSort()

	level := make(map[SystemID]int, len(order))
	maxLevel := -1
	for _, v := range order {
		id := SystemID(v)
		best := 0
		for _, pred := range working.InNeighbors(v) {
			if l, ok := level[SystemID(pred)]; ok && l+1 > best {
				best = l + 1
			}
		}
		level[id] = best
		if best > maxLevel {
			maxLevel = best
		}
	}

	levels := make([]Level, maxLevel+1)
	for _, v := range order {
		id := SystemID(v)
		n, ok := s.nodes[id]
		if !ok || !n.enabled || n.status == StatusDeprecated {
			continue
		}
		lv := level[id]
		if n.mainThreadOnly {
			levels[lv].MainThread = append(levels[lv].MainThread, id)
		} else {
			levels[lv].Parallel = append(levels[lv].Parallel, id)
		}
	}

	s.topoOrder = make([]SystemID, len(order))
	for i, v := range order {
		s.topoOrder[i] = SystemID(v)
	}
	s.levels = levels
	s.levelOf = level
	s.dirty = false
	s.logf("scheduler: recomputed schedule, %d levels over %d systems", len(levels), len(s.nodes))
}

// Levels returns the current level/bucket schedule, recomputing it first if
// the scheduler has been mutated since the last call.
func (s *Scheduler) Levels() []Level {
	s.recompute()
	out := make([]Level, len(s.levels))
	for i, lv := range s.levels {
		out[i] = Level{
			Parallel:   append([]SystemID(nil), lv.Parallel...),
			MainThread: append([]SystemID(nil), lv.MainThread...),
		}
	}
	return out
}
