package flowgraph

import (
	"maps"
	"slices"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is thread-safe and can be used concurrently for multiple
// Run() calls. The graph structure cannot be modified after compilation.
//
// Use the introspection methods (NodeIDs, Successors, etc.) to examine
// the graph structure for debugging or visualization.
type CompiledGraph[S any] struct {
	topology

	nodes      map[string]NodeFunc[S]
	routers    map[string]conditionalEdge[S]
	routeEdges map[string]map[string]int // from -> route target -> edge index
	entryPoint string
	reducer    Reducer[S]
	onFailure  FailureFunc[S]
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in declaration order.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	return slices.Clone(cg.order)
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successors returns every possible destination of a node, including
// route targets and END. Returns nil for END or unknown nodes.
func (cg *CompiledGraph[S]) Successors(id string) []string {
	out := cg.outbound[id]
	if len(out) == 0 {
		return nil
	}
	ids := make([]string, len(out))
	for i, idx := range out {
		ids[i] = cg.edges[idx].to
	}
	return ids
}

// Predecessors returns the node IDs that have edges to the given node.
// Returns nil for the entry node or unknown nodes.
func (cg *CompiledGraph[S]) Predecessors(id string) []string {
	in := cg.inbound[id]
	if len(in) == 0 {
		return nil
	}
	ids := make([]string, len(in))
	for i, idx := range in {
		ids[i] = cg.edges[idx].from
	}
	return ids
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	_, ok := cg.routers[id]
	return ok
}

// Routes returns a copy of the label → destination table of a conditional
// node, or nil if the node has no conditional edge.
func (cg *CompiledGraph[S]) Routes(id string) map[string]string {
	ce, ok := cg.routers[id]
	if !ok {
		return nil
	}
	return maps.Clone(ce.routes)
}

// IsJoinNode returns true if the node has more than one incoming edge and
// therefore waits on a barrier.
func (cg *CompiledGraph[S]) IsJoinNode(id string) bool {
	return len(cg.inbound[id]) > 1
}

// IsForkNode returns true if the node has more than one unconditional
// outgoing edge and therefore fans out.
func (cg *CompiledGraph[S]) IsForkNode(id string) bool {
	n := 0
	for _, idx := range cg.outbound[id] {
		if !cg.edges[idx].conditional {
			n++
		}
	}
	return n > 1
}

// getNode returns the node function for the given ID.
// Used internally by the executor.
func (cg *CompiledGraph[S]) getNode(id string) (NodeFunc[S], bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}
