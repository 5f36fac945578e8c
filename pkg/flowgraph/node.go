package flowgraph

// END is the terminal node identifier.
// Use this as an edge target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and a read-only snapshot of the
// current state, and return a partial update holding only the fields the
// node owns. The executor merges the update with the graph's Reducer.
//
// The state parameter is passed by value but may share maps and slices with
// other nodes of the same frontier. Nodes must not mutate those in place.
//
// A returned error or a panic does not abort the run. The executor contains
// it and substitutes the update produced by the graph's FailureFunc.
//
// Example:
//
//	func summarize(ctx flowgraph.Context, s State) (State, error) {
//	    return State{Summary: strings.ToUpper(s.Input)}, nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (S, error)

// RouterFunc selects the outgoing route of a conditional node.
// It runs against the merged state after the node's frontier completes and
// returns one of the labels declared with AddConditionalEdge.
//
// Returning an empty string or an undeclared label aborts the run with a
// *RouterError.
//
// Example:
//
//	func route(ctx flowgraph.Context, s State) string {
//	    if s.Kind == "greeting" {
//	        return "greeting"
//	    }
//	    return "financial"
//	}
type RouterFunc[S any] func(ctx Context, state S) string

// FailureFunc produces the degraded update for a node that returned an
// error or panicked. err is a *NodeError or *PanicError.
//
// The returned update is merged like any other node output, so it should
// carry a failure record and safe defaults for the fields the node owns.
type FailureFunc[S any] func(ctx Context, nodeID string, err error) S

// Reducer merges updates into the previous state.
// updates holds the outputs of one frontier in node declaration order and
// must be treated as concurrent siblings. A non-nil error aborts the run.
//
// reduce.Schema.Reduce satisfies this signature.
type Reducer[S any] func(prev S, updates ...S) (S, error)
