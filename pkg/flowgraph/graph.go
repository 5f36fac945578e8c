package flowgraph

import (
	"fmt"
	"maps"
	"strings"
	"sync"
)

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// AddConditionalEdge, SetEntry, and SetReducer calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Node declaration order is significant: the executor merges the updates of
// a frontier in that order, whatever order the nodes finish in.
//
// Example:
//
//	schema := reduce.MustSchema(...)
//	graph := flowgraph.NewGraph[MyState]().
//	    AddNode("fetch", fetchNode).
//	    AddNode("left", leftNode).
//	    AddNode("right", rightNode).
//	    AddNode("join", joinNode).
//	    AddEdge("fetch", "left").
//	    AddEdge("fetch", "right").
//	    AddEdge("left", "join").
//	    AddEdge("right", "join").
//	    AddEdge("join", flowgraph.END).
//	    SetEntry("fetch").
//	    SetReducer(schema.Reduce)
//
//	compiled, err := graph.Compile()
type Graph[S any] struct {
	mu         sync.RWMutex
	nodes      map[string]NodeFunc[S]
	order      []string
	edges      map[string][]string
	edgeOrder  []string
	routers    map[string]conditionalEdge[S]
	duplicates []string
	entryPoint string
	reducer    Reducer[S]
	onFailure  FailureFunc[S]
}

// conditionalEdge is a router plus its declared label → destination table.
type conditionalEdge[S any] struct {
	router RouterFunc[S]
	routes map[string]string
}

// NewGraph creates a new graph builder for state type S.
// The type parameter S defines the state that flows through the graph.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:   make(map[string]NodeFunc[S]),
		edges:   make(map[string][]string),
		routers: make(map[string]conditionalEdge[S]),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	validateNodeID(id)

	if fn == nil {
		panic("flowgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("flowgraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	g.order = append(g.order, id)
	return g
}

func validateNodeID(id string) {
	if id == "" {
		panic("flowgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("flowgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("flowgraph: node ID cannot contain whitespace")
	}
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or flowgraph.END. Unconditional edges are
// always taken, so a node with several of them fans out.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, seen := g.edges[from]; !seen {
		g.edgeOrder = append(g.edgeOrder, from)
	}
	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge attaches a router to a node.
// routes maps every label the router may return to its destination, a node
// ID or flowgraph.END. After the node completes, exactly one destination is
// taken and the other route targets are skipped unless something else
// reaches them.
// Returns the graph for method chaining.
//
// A node may have at most one conditional edge; a second call is reported
// by Compile as ErrDuplicateRouter. Panics if router is nil.
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S], routes map[string]string) *Graph[S] {
	if router == nil {
		panic("flowgraph: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.routers[from]; exists {
		g.duplicates = append(g.duplicates, from)
		return g
	}
	g.routers[from] = conditionalEdge[S]{router: router, routes: maps.Clone(routes)}
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
//
// Entry point validation happens at Compile() time.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}

// SetReducer sets the function that merges node updates into the state.
// This must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph[S]) SetReducer(r Reducer[S]) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reducer = r
	return g
}

// OnNodeFailure sets the handler that turns a node error or panic into a
// degraded update. Without a handler a failed node contributes the zero
// value of S.
// Returns the graph for method chaining.
func (g *Graph[S]) OnNodeFailure(fn FailureFunc[S]) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.onFailure = fn
	return g
}
