// Package flowgraph provides a graph-based workflow orchestration engine.
package flowgraph

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPathToEnd indicates a node has no outgoing edge, so END cannot be
	// reached from it.
	ErrNoPathToEnd = errors.New("no path to END")

	// ErrNoReducer indicates SetReducer() was not called before Compile().
	ErrNoReducer = errors.New("reducer not set")

	// ErrCycle indicates the graph contains a cycle.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrUnreachableNode indicates a node cannot be reached from the entry point.
	ErrUnreachableNode = errors.New("node unreachable from entry")

	// ErrNoRoutes indicates a conditional edge declared no routes.
	ErrNoRoutes = errors.New("conditional edge has no routes")

	// ErrEmptyRouteLabel indicates a conditional edge declared an empty label.
	ErrEmptyRouteLabel = errors.New("conditional edge has empty route label")

	// ErrDuplicateRouter indicates a node has more than one conditional edge.
	ErrDuplicateRouter = errors.New("node has more than one conditional edge")
)

// Sentinel errors for execution.
var (
	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRouterResult indicates a router function returned an empty string.
	ErrInvalidRouterResult = errors.New("router returned empty string")

	// ErrUndeclaredRoute indicates a router returned a label its conditional
	// edge did not declare.
	ErrUndeclaredRoute = errors.New("router returned undeclared label")

	// ErrEndNotReached indicates the schedule drained without reaching END.
	// A compiled graph cannot produce this; it guards the executor itself.
	ErrEndNotReached = errors.New("execution stopped before reaching END")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrRunIDRequired indicates checkpointing was enabled without a run ID.
	ErrRunIDRequired = errors.New("run ID required for checkpointing")

	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrNoCheckpoints indicates no checkpoints exist for the run.
	ErrNoCheckpoints = errors.New("no checkpoints found for run")

	// ErrInvalidCheckpoint indicates a checkpoint names nodes or edges the
	// graph does not have.
	ErrInvalidCheckpoint = errors.New("checkpoint does not match graph")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// Step is the frontier step being checkpointed.
	Step int
	// Op is the operation that failed ("save", "marshal", "serialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at step %d: %v", e.Op, e.Step, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
// It provides information about which node failed and what operation was attempted.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Err is the underlying error from the node.
	Err error
	// Duration is how long the node ran before failing.
	Duration time.Duration
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
	// Duration is how long the node ran before panicking.
	Duration time.Duration
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// NodeDuration reports how long a failed node ran, as stamped by the
// executor on the *NodeError or *PanicError passed to a FailureFunc.
// Returns zero for any other error.
func NodeDuration(err error) time.Duration {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Duration
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return panicErr.Duration
	}
	return 0
}

// CancellationError captures the state when execution was cancelled.
// Cancellation is only observed between frontiers.
type CancellationError struct {
	// Frontier lists the nodes that were about to be dispatched.
	Frontier []string
	// State is the state at cancellation (can type-assert to the actual type).
	State any
	// Cause is the underlying cancellation cause (context.Canceled or context.DeadlineExceeded).
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before [%s]: %v", strings.Join(e.Frontier, ", "), e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouterError wraps errors from conditional edge routing.
// It provides context about which router failed and what it returned.
type RouterError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Returned is the value the router returned.
	Returned string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// MergeError wraps a Reducer failure with the frontier being merged.
// Use errors.As with *reduce.ConflictError to inspect write conflicts.
type MergeError struct {
	// Frontier lists the nodes whose updates were merged, in merge order.
	Frontier []string
	// Err is the error returned by the reducer.
	Err error
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	return fmt.Sprintf("merge [%s]: %v", strings.Join(e.Frontier, ", "), e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MergeError) Unwrap() error {
	return e.Err
}

// CycleError reports a cycle found at compile time.
type CycleError struct {
	// Path is the cycle, starting and ending at the same node.
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrCycle for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}
