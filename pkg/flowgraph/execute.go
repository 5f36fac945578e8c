package flowgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/observability"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/reduce"
)

// Run executes the graph with the given initial state.
// Returns the final state and any error encountered.
//
// Execution proceeds in frontiers. Every node of a frontier runs
// concurrently on the same state snapshot; their updates are merged in node
// declaration order; routers of conditional nodes then choose their routes
// against the merged state; and the next frontier is every node whose
// inbound edges have all resolved with at least one taken.
//
// Node errors and panics are not fatal. They are replaced by the graph's
// FailureFunc update and the run continues. The fatal paths are an
// undeclared router label (*RouterError), a merge failure such as
// conflicting scalar writes (*MergeError), and context cancellation between
// frontiers (*CancellationError). On a fatal error the returned state is
// the state at the failure point and must not be treated as a result.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background())
//	result, err := compiled.Run(ctx, initialState)
//	if err != nil {
//	    // result is diagnostic only
//	}
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (S, error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	// A store on the Context applies when no run option sets one. Its run ID
	// keys the checkpoints unless WithRunID overrides it.
	if cfg.checkpointStore == nil && ctx.Checkpointer() != nil {
		cfg.checkpointStore = ctx.Checkpointer()
		if cfg.runID == "" {
			cfg.runID = ctx.RunID()
		}
	}

	// Validate checkpointing configuration
	if cfg.checkpointStore != nil && cfg.runID == "" {
		return state, ErrRunIDRequired
	}

	sched := newSchedule(&cg.topology)
	frontier := sched.start(cg.entryPoint)

	return cg.execute(ctx, state, sched, frontier, 0, &cfg)
}

// execute drives the schedule from the given frontier with run-level
// observability. Shared by Run and Resume.
func (cg *CompiledGraph[S]) execute(ctx Context, state S, sched *schedule, frontier []string, step int, cfg *runConfig) (result S, runErr error) {
	if cfg.logger == nil {
		cfg.logger = ctx.Logger()
	}

	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	startTime := time.Now()
	observability.LogRunStart(cfg.logger, runID)

	tracingCtx, runSpan := cfg.spans.StartRunSpan(ctx, cfg.graphName, runID)
	defer func() {
		cfg.spans.EndSpanWithError(runSpan, runErr)
	}()

	var nodeCount int
	result, nodeCount, runErr = cg.loop(ctx, tracingCtx, runID, state, sched, frontier, step, cfg)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())

	cfg.metrics.RecordGraphRun(tracingCtx, runErr == nil, duration)

	if runErr != nil {
		observability.LogRunError(cfg.logger, runID, runErr, durationMs, failedAt(runErr))
	} else {
		observability.LogRunComplete(cfg.logger, runID, durationMs, nodeCount)
	}

	return result, runErr
}

// failedAt names where a fatal error happened, for the run error log.
func failedAt(err error) string {
	var routerErr *RouterError
	var mergeErr *MergeError
	var cancelErr *CancellationError
	var cpErr *CheckpointError
	switch {
	case errors.As(err, &routerErr):
		return routerErr.FromNode
	case errors.As(err, &mergeErr):
		return fmt.Sprint(mergeErr.Frontier)
	case errors.As(err, &cancelErr):
		return fmt.Sprint(cancelErr.Frontier)
	case errors.As(err, &cpErr):
		return fmt.Sprintf("step %d", cpErr.Step)
	}
	return ""
}

// loop runs frontiers until none is ready.
// Returns the final state, the number of nodes executed, and any fatal error.
func (cg *CompiledGraph[S]) loop(ctx Context, tracingCtx context.Context, runID string, state S, sched *schedule, frontier []string, step int, cfg *runConfig) (S, int, error) {
	nodeCount := 0

	for len(frontier) > 0 {
		select {
		case <-ctx.Done():
			return state, nodeCount, &CancellationError{
				Frontier: frontier,
				State:    state,
				Cause:    ctx.Err(),
			}
		default:
		}

		step++
		observability.LogFrontier(cfg.logger, step, frontier)
		cfg.metrics.RecordFrontier(tracingCtx, len(frontier))

		frontierCtx, span := cfg.spans.StartFrontierSpan(tracingCtx, step, frontier)
		results := cg.dispatch(ctx, frontierCtx, runID, frontier, state, cfg)
		nodeCount += len(frontier)

		merged, next, err := cg.settle(ctx, frontierCtx, runID, step, state, sched, frontier, results, cfg)
		cfg.spans.EndSpanWithError(span, err)
		if err != nil {
			return merged, nodeCount, err
		}

		state = merged
		frontier = next

		if cfg.checkpointStore != nil {
			if err := cg.saveCheckpoint(tracingCtx, cfg, runID, step, state, sched, frontier); err != nil {
				return state, nodeCount, err
			}
		}
	}

	if !sched.reachedEnd {
		return state, nodeCount, ErrEndNotReached
	}
	return state, nodeCount, nil
}

// settle merges a finished frontier, routes its conditional nodes, and
// returns the merged state and the next frontier.
func (cg *CompiledGraph[S]) settle(ctx Context, tracingCtx context.Context, runID string, step int, state S, sched *schedule, frontier []string, results []nodeResult[S], cfg *runConfig) (S, []string, error) {
	updates := make([]S, len(results))
	for i, r := range results {
		updates[i] = r.update
	}

	merged, err := cg.reducer(state, updates...)
	if err != nil {
		var conflict *reduce.ConflictError
		if errors.As(err, &conflict) && conflict.First < len(frontier) && conflict.Second < len(frontier) {
			conflict.Sources = [2]string{frontier[conflict.First], frontier[conflict.Second]}
		}
		return state, nil, &MergeError{Frontier: frontier, Err: err}
	}
	observability.LogMerge(cfg.logger, step, frontier)

	for _, id := range frontier {
		sched.complete(id)
		for _, idx := range cg.outbound[id] {
			if !cg.edges[idx].conditional {
				sched.resolve(idx, true)
			}
		}
		if err := cg.route(ctx, tracingCtx, runID, id, merged, sched, cfg); err != nil {
			return merged, nil, err
		}
	}

	next, skipped := sched.advance()
	if len(skipped) > 0 {
		observability.LogSkipped(cfg.logger, skipped)
	}
	return merged, next, nil
}

// route evaluates a conditional node's router against the merged state and
// settles its route edges. Nodes without a router are left untouched.
func (cg *CompiledGraph[S]) route(ctx Context, tracingCtx context.Context, runID, nodeID string, state S, sched *schedule, cfg *runConfig) error {
	ce, ok := cg.routers[nodeID]
	if !ok {
		return nil
	}

	label, err := callRouter(withNode(ctx, tracingCtx, runID, nodeID), ce.router, state)
	if err != nil {
		return &RouterError{FromNode: nodeID, Err: err}
	}
	if label == "" {
		return &RouterError{FromNode: nodeID, Returned: label, Err: ErrInvalidRouterResult}
	}
	target, declared := ce.routes[label]
	if !declared {
		return &RouterError{FromNode: nodeID, Returned: label, Err: ErrUndeclaredRoute}
	}

	chosen := cg.routeEdges[nodeID][target]
	for _, idx := range cg.outbound[nodeID] {
		if cg.edges[idx].conditional {
			sched.resolve(idx, idx == chosen)
		}
	}

	observability.LogRoute(cfg.logger, nodeID, label, target)
	cfg.spans.AddSpanEvent(tracingCtx, "flowgraph.route",
		observability.RouteAttributes(nodeID, label, target)...)
	return nil
}

// callRouter invokes a router, converting a panic into an error.
func callRouter[S any](ctx Context, router RouterFunc[S], state S) (label string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				NodeID: ctx.NodeID(),
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()
	return router(ctx, state), nil
}

// saveCheckpoint persists the schedule and state after a frontier.
// Failures are logged and ignored unless WithCheckpointFailureFatal is set.
func (cg *CompiledGraph[S]) saveCheckpoint(ctx context.Context, cfg *runConfig, runID string, step int, state S, sched *schedule, frontier []string) error {
	fail := func(op string, err error) error {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{Step: step, Op: op, Err: err}
		}
		observability.LogCheckpointError(cfg.logger, step, op, err)
		return nil
	}

	stateBytes, err := json.Marshal(state)
	if err != nil {
		return fail("serialize", fmt.Errorf("%w: %v", ErrSerializeState, err))
	}

	cp := checkpoint.New(runID, step, stateBytes, frontier)
	sched.snapshot(cp)

	data, err := cp.Marshal()
	if err != nil {
		return fail("marshal", err)
	}

	if err := cfg.checkpointStore.Save(runID, step, data); err != nil {
		return fail("save", err)
	}

	observability.LogCheckpoint(cfg.logger, step, len(data))
	cfg.metrics.RecordCheckpoint(ctx, step, int64(len(data)))
	return nil
}
