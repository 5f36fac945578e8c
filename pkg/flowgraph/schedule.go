package flowgraph

import (
	"fmt"
	"slices"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/checkpoint"
)

// topology is the state-independent shape of a compiled graph.
type topology struct {
	order    []string
	index    map[string]int
	edges    []edge
	outbound map[string][]int
	inbound  map[string][]int
}

// edge is one compiled transition. Conditional edges are taken only when
// their router selects them.
type edge struct {
	from        string
	to          string
	conditional bool
}

// edgeIndex returns the index of the edge from → to, or -1.
func (t *topology) edgeIndex(from, to string) int {
	for _, idx := range t.outbound[from] {
		if t.edges[idx].to == to {
			return idx
		}
	}
	return -1
}

type edgeStatus uint8

const (
	edgePending edgeStatus = iota
	edgeTaken
	edgeUntaken
)

type nodeStatus uint8

const (
	nodeWaiting nodeStatus = iota
	nodeScheduled
	nodeCompleted
	nodeSkipped
)

// schedule tracks the barrier state of one run.
//
// A waiting node becomes ready once every inbound edge is resolved and at
// least one was taken. If every inbound edge resolved untaken the node is
// skipped and its own outbound edges resolve untaken, which can in turn
// settle nodes further downstream.
type schedule struct {
	topo       *topology
	edges      []edgeStatus
	nodes      []nodeStatus
	reachedEnd bool
}

func newSchedule(topo *topology) *schedule {
	return &schedule{
		topo:  topo,
		edges: make([]edgeStatus, len(topo.edges)),
		nodes: make([]nodeStatus, len(topo.order)),
	}
}

// start schedules the entry node and returns the first frontier.
func (s *schedule) start(entry string) []string {
	s.nodes[s.topo.index[entry]] = nodeScheduled
	return []string{entry}
}

// complete records that a dispatched node produced its update.
func (s *schedule) complete(id string) {
	s.nodes[s.topo.index[id]] = nodeCompleted
}

// resolve settles a pending edge. Already settled edges are left alone.
func (s *schedule) resolve(idx int, taken bool) {
	if s.edges[idx] != edgePending {
		return
	}
	if !taken {
		s.edges[idx] = edgeUntaken
		return
	}
	s.edges[idx] = edgeTaken
	if s.topo.edges[idx].to == END {
		s.reachedEnd = true
	}
}

// advance settles every waiting node it can and returns the next frontier
// and the nodes skipped along the way, both in declaration order.
func (s *schedule) advance() (ready, skipped []string) {
	for changed := true; changed; {
		changed = false
		for i, id := range s.topo.order {
			if s.nodes[i] != nodeWaiting {
				continue
			}
			in := s.topo.inbound[id]
			if len(in) == 0 {
				continue
			}

			resolved, taken := true, false
			for _, idx := range in {
				switch s.edges[idx] {
				case edgePending:
					resolved = false
				case edgeTaken:
					taken = true
				}
			}
			if !resolved {
				continue
			}

			if taken {
				s.nodes[i] = nodeScheduled
				ready = append(ready, id)
				continue
			}

			s.nodes[i] = nodeSkipped
			skipped = append(skipped, id)
			for _, idx := range s.topo.outbound[id] {
				s.resolve(idx, false)
			}
			changed = true
		}
	}

	byIndex := func(a, b string) int { return s.topo.index[a] - s.topo.index[b] }
	slices.SortFunc(ready, byIndex)
	slices.SortFunc(skipped, byIndex)
	return ready, skipped
}

// snapshot captures the schedule for a checkpoint.
func (s *schedule) snapshot(cp *checkpoint.Checkpoint) {
	for i, id := range s.topo.order {
		switch s.nodes[i] {
		case nodeCompleted:
			cp.Completed = append(cp.Completed, id)
		case nodeSkipped:
			cp.Skipped = append(cp.Skipped, id)
		}
	}
	for i, st := range s.edges {
		e := checkpoint.Edge{From: s.topo.edges[i].from, To: s.topo.edges[i].to}
		switch st {
		case edgeTaken:
			cp.Taken = append(cp.Taken, e)
		case edgeUntaken:
			cp.Untaken = append(cp.Untaken, e)
		}
	}
	cp.ReachedEnd = s.reachedEnd
}

// restore rebuilds a schedule from a checkpoint and returns the frontier
// that was pending when it was saved.
func (s *schedule) restore(cp *checkpoint.Checkpoint) ([]string, error) {
	setNodes := func(ids []string, st nodeStatus) error {
		for _, id := range ids {
			i, ok := s.topo.index[id]
			if !ok {
				return fmt.Errorf("%w: unknown node %s", ErrInvalidCheckpoint, id)
			}
			s.nodes[i] = st
		}
		return nil
	}
	setEdges := func(edges []checkpoint.Edge, st edgeStatus) error {
		for _, e := range edges {
			idx := s.topo.edgeIndex(e.From, e.To)
			if idx < 0 {
				return fmt.Errorf("%w: unknown edge %s -> %s", ErrInvalidCheckpoint, e.From, e.To)
			}
			s.edges[idx] = st
		}
		return nil
	}

	if err := setNodes(cp.Completed, nodeCompleted); err != nil {
		return nil, err
	}
	if err := setNodes(cp.Skipped, nodeSkipped); err != nil {
		return nil, err
	}
	if err := setNodes(cp.Frontier, nodeScheduled); err != nil {
		return nil, err
	}
	if err := setEdges(cp.Taken, edgeTaken); err != nil {
		return nil, err
	}
	if err := setEdges(cp.Untaken, edgeUntaken); err != nil {
		return nil, err
	}
	s.reachedEnd = cp.ReachedEnd

	return slices.Clone(cp.Frontier), nil
}
