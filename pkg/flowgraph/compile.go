package flowgraph

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks (in order):
//  1. Entry point must be set and reference an existing node
//  2. A reducer must be set
//  3. All edge sources and targets must reference existing nodes (or END)
//  4. Conditional edges must declare at least one route, non-empty labels,
//     existing targets, and at most one router per node
//  5. The graph must be acyclic
//  6. Every node must be reachable from the entry point
//  7. Every node must have an outgoing edge, so END is reachable from it
//
// Checks 5-7 only run once every reference resolves.
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	if g.reducer == nil {
		errs = append(errs, ErrNoReducer)
	}

	refErrs := g.validateReferences()
	errs = append(errs, refErrs...)

	if len(errs) == 0 {
		if err := g.ensureAcyclic(); err != nil {
			errs = append(errs, err)
		} else {
			errs = append(errs, g.validateReachability()...)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.buildCompiledGraph(), nil
}

// validateReferences checks that every edge and route resolves.
func (g *Graph[S]) validateReferences() []error {
	var errs []error

	for _, from := range g.edgeOrder {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range g.edges[from] {
			if to != END {
				if _, exists := g.nodes[to]; !exists {
					errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
				}
			}
		}
	}

	for _, from := range slices.Sorted(maps.Keys(g.routers)) {
		ce := g.routers[from]
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		if len(ce.routes) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoRoutes, from))
			continue
		}
		for _, label := range slices.Sorted(maps.Keys(ce.routes)) {
			if label == "" {
				errs = append(errs, fmt.Errorf("%w: %s", ErrEmptyRouteLabel, from))
			}
			to := ce.routes[label]
			if to != END {
				if _, exists := g.nodes[to]; !exists {
					errs = append(errs, fmt.Errorf("%w: route %q from '%s' targets '%s'", ErrNodeNotFound, label, from, to))
				}
			}
		}
	}

	for _, from := range g.duplicates {
		errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateRouter, from))
	}

	return errs
}

// successorsOf returns every possible destination of a node: unconditional
// targets in insertion order followed by route targets in label order.
func (g *Graph[S]) successorsOf(id string) []string {
	out := slices.Clone(g.edges[id])
	if ce, ok := g.routers[id]; ok {
		for _, label := range slices.Sorted(maps.Keys(ce.routes)) {
			out = append(out, ce.routes[label])
		}
	}
	return out
}

// ensureAcyclic verifies that the graph does not contain directed cycles.
func (g *Graph[S]) ensureAcyclic() error {
	const (
		stateUnvisited = iota
		stateVisiting
		stateVisited
	)
	states := make(map[string]int, len(g.nodes))
	stack := make([]string, 0, len(g.nodes))

	var visit func(string) error
	visit = func(node string) error {
		states[node] = stateVisiting
		stack = append(stack, node)

		for _, next := range g.successorsOf(node) {
			if next == END {
				continue
			}
			switch states[next] {
			case stateVisiting:
				start := slices.Index(stack, next)
				cycle := append(slices.Clone(stack[start:]), next)
				return &CycleError{Path: cycle}
			case stateUnvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		states[node] = stateVisited
		return nil
	}

	for _, id := range g.order {
		if states[id] == stateUnvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateReachability reports nodes unreachable from the entry point and
// nodes with no outgoing edge.
func (g *Graph[S]) validateReachability() []error {
	var errs []error

	reachable := g.findReachableNodes()
	for _, id := range g.order {
		if !reachable[id] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnreachableNode, id))
		}
	}

	for _, id := range g.order {
		if len(g.successorsOf(id)) == 0 {
			errs = append(errs, fmt.Errorf("%w: node '%s' has no outgoing edge", ErrNoPathToEnd, id))
		}
	}

	return errs
}

// findReachableNodes returns the set of nodes reachable from the entry point.
// Route targets count as reachable since any declared label may be chosen.
func (g *Graph[S]) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)

	if g.entryPoint == "" {
		return reachable
	}

	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range g.successorsOf(current) {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph[S]) buildCompiledGraph() *CompiledGraph[S] {
	cg := &CompiledGraph[S]{
		topology: topology{
			order:    slices.Clone(g.order),
			index:    make(map[string]int, len(g.order)),
			outbound: make(map[string][]int, len(g.order)),
			inbound:  make(map[string][]int, len(g.order)),
		},
		nodes:      maps.Clone(g.nodes),
		routers:    make(map[string]conditionalEdge[S], len(g.routers)),
		routeEdges: make(map[string]map[string]int, len(g.routers)),
		entryPoint: g.entryPoint,
		reducer:    g.reducer,
		onFailure:  g.onFailure,
	}

	for i, id := range cg.order {
		cg.index[id] = i
	}

	addEdge := func(from, to string, conditional bool) int {
		idx := len(cg.edges)
		cg.edges = append(cg.edges, edge{from: from, to: to, conditional: conditional})
		cg.outbound[from] = append(cg.outbound[from], idx)
		if to != END {
			cg.inbound[to] = append(cg.inbound[to], idx)
		}
		return idx
	}

	// Edges are laid out in node declaration order so every derived
	// ordering is deterministic.
	for _, from := range cg.order {
		seen := make(map[string]int)
		for _, to := range g.edges[from] {
			if _, dup := seen[to]; dup {
				continue
			}
			seen[to] = addEdge(from, to, false)
		}

		ce, ok := g.routers[from]
		if !ok {
			continue
		}
		cg.routers[from] = conditionalEdge[S]{router: ce.router, routes: maps.Clone(ce.routes)}
		targets := make(map[string]int)
		for _, label := range slices.Sorted(maps.Keys(ce.routes)) {
			to := ce.routes[label]
			if idx, exists := seen[to]; exists {
				targets[to] = idx
				continue
			}
			idx := addEdge(from, to, true)
			seen[to] = idx
			targets[to] = idx
		}
		cg.routeEdges[from] = targets
	}

	return cg
}
