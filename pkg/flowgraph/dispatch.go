package flowgraph

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/observability"
)

// nodeResult is the outcome of one dispatched node.
type nodeResult[S any] struct {
	update   S
	err      error // contained *NodeError or *PanicError; nil on success
	duration time.Duration
}

// dispatch runs every frontier node concurrently against the same state
// snapshot and waits for all of them. Results are indexed like frontier.
//
// Node failures never cancel siblings: each failure is replaced by the
// graph's degraded update before dispatch returns.
func (cg *CompiledGraph[S]) dispatch(ctx Context, tracingCtx context.Context, runID string, frontier []string, state S, cfg *runConfig) []nodeResult[S] {
	results := make([]nodeResult[S], len(frontier))

	var g errgroup.Group
	if cfg.maxConcurrency > 0 {
		g.SetLimit(cfg.maxConcurrency)
	}
	for i, id := range frontier {
		g.Go(func() error {
			results[i] = cg.runNode(ctx, tracingCtx, runID, id, state, cfg)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runNode executes one node with observability and failure containment.
func (cg *CompiledGraph[S]) runNode(ctx Context, tracingCtx context.Context, runID, nodeID string, state S, cfg *runConfig) nodeResult[S] {
	observability.LogNodeStart(cfg.logger, nodeID)

	spanCtx, span := cfg.spans.StartNodeSpan(tracingCtx, nodeID)
	nodeCtx := withNode(ctx, spanCtx, runID, nodeID)

	start := time.Now()
	update, err := cg.executeNode(nodeCtx, nodeID, state)
	duration := time.Since(start)

	cfg.metrics.RecordNodeExecution(spanCtx, nodeID, duration, err)
	cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		stampDuration(err, duration)
		observability.LogNodeDegraded(cfg.logger, nodeID, err)
		update = cg.degrade(nodeCtx, nodeID, err, cfg)
	} else {
		observability.LogNodeComplete(cfg.logger, nodeID, float64(duration.Milliseconds()))
	}

	return nodeResult[S]{update: update, err: err, duration: duration}
}

// stampDuration records the node's run time on the error handed to the
// failure handler.
func stampDuration(err error, d time.Duration) {
	switch e := err.(type) {
	case *NodeError:
		e.Duration = d
	case *PanicError:
		e.Duration = d
	}
}

// executeNode executes a single node with panic recovery.
// Returns the node's update and any error (including wrapped panics).
func (cg *CompiledGraph[S]) executeNode(ctx Context, nodeID string, state S) (result S, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		// This shouldn't happen if compilation was successful
		return result, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("node not found: %s", nodeID),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			var zero S
			result = zero
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	result, err = fn(ctx, state)
	if err != nil {
		var zero S
		return zero, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return result, nil
}

// degrade builds the replacement update for a failed node.
// A panicking failure handler yields the zero update.
func (cg *CompiledGraph[S]) degrade(ctx Context, nodeID string, cause error, cfg *runConfig) (update S) {
	if cg.onFailure == nil {
		return update
	}

	defer func() {
		if r := recover(); r != nil {
			var zero S
			update = zero
			observability.LogNodeDegraded(cfg.logger, nodeID, &PanicError{
				NodeID: nodeID,
				Value:  fmt.Sprintf("failure handler: %v", r),
				Stack:  string(debug.Stack()),
			})
		}
	}()

	return cg.onFailure(ctx, nodeID, cause)
}
