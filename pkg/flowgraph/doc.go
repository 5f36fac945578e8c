/*
Package flowgraph provides graph-based orchestration for multi-stage workflows.

# Overview

flowgraph builds and executes directed acyclic graphs where nodes perform
work and edges define flow. One unit of work enters at the entry node, fans
out to nodes that run concurrently, fans back in at join nodes, and follows
conditional routes chosen against the accumulated state. A node failure is
contained: the failed node contributes a degraded update and the run still
reaches END.

Key properties:
  - Type-safe generics for state management
  - Compile-time validation of graph structure
  - Deterministic merges independent of completion order
  - Per-frontier checkpointing for crash recovery
  - OpenTelemetry integration for observability

# Basic Usage

Declare how each state field merges, then build, compile, and run:

	type State struct {
	    Input  string
	    Output string
	    Log    []string
	}

	var schema = reduce.MustSchema(
	    reduce.Scalar("Input", func(s *State) *string { return &s.Input }),
	    reduce.Scalar("Output", func(s *State) *string { return &s.Output }),
	    reduce.List("Log", func(s *State) *[]string { return &s.Log }),
	)

	func process(ctx flowgraph.Context, s State) (State, error) {
	    return State{Output: "Processed: " + s.Input, Log: []string{"process"}}, nil
	}

	graph := flowgraph.NewGraph[State]().
	    AddNode("process", process).
	    AddEdge("process", flowgraph.END).
	    SetEntry("process").
	    SetReducer(schema.Reduce)

	compiled, err := graph.Compile()
	if err != nil {
	    log.Fatal(err)
	}

	ctx := flowgraph.NewContext(context.Background())
	result, err := compiled.Run(ctx, State{Input: "hello"})

Nodes return partial updates holding only the fields they own. The reducer
folds them into the state.

# Fan-out and Fan-in

A node with several unconditional edges fans out. Its targets form the next
frontier and run concurrently on the same state snapshot. A node with
several incoming edges waits until every predecessor has completed or been
skipped. Updates of one frontier are merged in node declaration order.

# Conditional Routing

A conditional edge maps router labels to destinations:

	graph.AddConditionalEdge("intake", func(ctx flowgraph.Context, s State) string {
	    return s.Kind
	}, map[string]string{
	    "greeting":  "greet",
	    "financial": "analyze",
	})

The router runs after the node's frontier has merged. Targets of the labels
not chosen are skipped, and the skip propagates to nodes reachable only
through them. A label missing from the table aborts the run with a
*RouterError wrapping ErrUndeclaredRoute.

# Failure Containment

A node error or panic never aborts the run:

	graph.OnNodeFailure(func(ctx flowgraph.Context, nodeID string, err error) State {
	    return State{Log: []string{nodeID + " failed"}}
	})

The handler's update replaces the failed node's output. The fatal paths are
structural: an undeclared router label, a merge failure such as two
concurrent writes to one overwrite field (*reduce.ConflictError inside a
*MergeError), and cancellation between frontiers.

# Checkpointing

Enable crash recovery with checkpointing:

	store, err := checkpoint.NewSQLiteStore("./checkpoints.db")
	defer store.Close()

	result, err := compiled.Run(ctx, state,
	    flowgraph.WithCheckpointing(store),
	    flowgraph.WithRunID("run-123"))

	// Resume after crash
	result, err = compiled.Resume(ctx, store, "run-123")

A checkpoint is saved after every frontier. Resume restores the merged
state and barrier bookkeeping and dispatches the pending frontier.

# Observability

Enable logging, metrics, and tracing:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	result, err := compiled.Run(ctx, state,
	    flowgraph.WithObservabilityLogger(logger),
	    flowgraph.WithMetrics(true),
	    flowgraph.WithTracing(true))

Logs include structured fields: run_id, node_id, step, frontier, duration_ms.
OpenTelemetry metrics: flowgraph.node.executions, flowgraph.node.degraded,
flowgraph.frontier.width, etc.
OpenTelemetry tracing: flowgraph.run > flowgraph.frontier > flowgraph.node.{id} spans.

# Thread Safety

  - Graph[S] is NOT safe for concurrent use during construction
  - CompiledGraph[S] IS safe for concurrent use (immutable)
  - Context IS safe for concurrent use
  - checkpoint.Store implementations are safe for concurrent use

# Subpackages

  - reduce: Merge policies and per-field state schemas
  - checkpoint: Checkpoint storage (memory, SQLite)
  - llm: Completion client interface and implementations
  - observability: Logging, metrics, and tracing helpers
  - errors: Failure categories and typed collaborator errors
  - config: Layered configuration
  - registry: Named lookup tables
*/
package flowgraph
