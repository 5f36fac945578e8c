package flowgraph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/reduce"
)

// TestRun_LinearFlow tests basic linear execution.
func TestRun_LinearFlow(t *testing.T) {
	graph := NewGraph[Counter]().
		AddNode("inc1", increment).
		AddNode("inc2", increment).
		AddNode("inc3", increment).
		AddEdge("inc1", "inc2").
		AddEdge("inc2", "inc3").
		AddEdge("inc3", END).
		SetEntry("inc1").
		SetReducer(counterSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), Counter{Value: 0})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Value)
}

// TestRun_PartialUpdateKeepsOtherFields tests that fields a node does not
// write survive the merge.
func TestRun_PartialUpdateKeepsOtherFields(t *testing.T) {
	graph := NewGraph[State]().
		AddNode("respond", func(ctx Context, s State) (State, error) {
			return State{Output: "echo: " + s.Input}, nil
		}).
		AddEdge("respond", END).
		SetEntry("respond").
		SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{Input: "hi", Trace: []string{"seed"}})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Input)
	assert.Equal(t, "echo: hi", result.Output)
	assert.Equal(t, []string{"seed"}, result.Trace)
}

// TestRun_FanOutSeesSameSnapshot tests that siblings start from the state
// merged before their frontier, not from each other's updates.
func TestRun_FanOutSeesSameSnapshot(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]string{}
	observe := func(name string) NodeFunc[State] {
		return func(ctx Context, s State) (State, error) {
			mu.Lock()
			seen[name] = s.Trace
			mu.Unlock()
			return State{Trace: []string{name}}, nil
		}
	}

	compiled, err := diamond(observe("left"), observe("right")).Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)

	assert.Equal(t, []string{"start"}, seen["left"])
	assert.Equal(t, []string{"start"}, seen["right"])
	assert.Equal(t, []string{"start", "left", "right", "join"}, result.Trace)
}

// TestRun_MergeOrderIndependentOfCompletion forces the later-declared
// sibling to finish first.
func TestRun_MergeOrderIndependentOfCompletion(t *testing.T) {
	for range 10 {
		rightDone := make(chan struct{})

		left := func(ctx Context, s State) (State, error) {
			<-rightDone
			return State{Trace: []string{"left"}, Notes: map[string]string{"by": "left"}}, nil
		}
		right := func(ctx Context, s State) (State, error) {
			defer close(rightDone)
			return State{Trace: []string{"right"}, Notes: map[string]string{"by": "right"}}, nil
		}

		compiled, err := diamond(left, right).Compile()
		require.NoError(t, err)

		result, err := compiled.Run(testCtx(), State{})
		require.NoError(t, err)
		assert.Equal(t, []string{"start", "left", "right", "join"}, result.Trace)
		assert.Equal(t, "left", result.Notes["by"], "earlier sibling wins a map key")
	}
}

// TestRun_FrontierOrderFollowsDeclaration tests that edge insertion order
// does not affect merge order.
func TestRun_FrontierOrderFollowsDeclaration(t *testing.T) {
	graph := NewGraph[State]().
		AddNode("start", traceNode("start")).
		AddNode("x", traceNode("x")).
		AddNode("y", traceNode("y")).
		AddNode("z", traceNode("z")).
		AddEdge("start", "z").
		AddEdge("start", "y").
		AddEdge("start", "x").
		AddEdge("x", END).
		AddEdge("y", END).
		AddEdge("z", END).
		SetEntry("start").
		SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "x", "y", "z"}, result.Trace)
}

// TestRun_BarrierWaitsForLongerBranch tests that a join runs once, after
// every predecessor, even when branches have different lengths.
func TestRun_BarrierWaitsForLongerBranch(t *testing.T) {
	var joinRuns atomic.Int32
	var joinInput []string

	graph := NewGraph[State]().
		AddNode("start", traceNode("start")).
		AddNode("a", func(ctx Context, s State) (State, error) {
			time.Sleep(20 * time.Millisecond)
			return State{Trace: []string{"a"}}, nil
		}).
		AddNode("a2", traceNode("a2")).
		AddNode("b", traceNode("b")).
		AddNode("join", func(ctx Context, s State) (State, error) {
			joinRuns.Add(1)
			joinInput = s.Trace
			return State{Trace: []string{"join"}}, nil
		}).
		AddEdge("start", "a").
		AddEdge("start", "b").
		AddEdge("a", "a2").
		AddEdge("a2", "join").
		AddEdge("b", "join").
		AddEdge("join", END).
		SetEntry("start").
		SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), joinRuns.Load())
	assert.Equal(t, []string{"start", "a", "b", "a2"}, joinInput)
	assert.Equal(t, []string{"start", "a", "b", "a2", "join"}, result.Trace)
}

// TestRun_ThreeSiblingsAppend tests three concurrent appends to one list.
func TestRun_ThreeSiblingsAppend(t *testing.T) {
	graph := NewGraph[State]().
		AddNode("start", traceNode("start")).
		AddNode("p", traceNode("p")).
		AddNode("q", traceNode("q")).
		AddNode("r", traceNode("r")).
		AddNode("join", traceNode("join")).
		AddEdge("start", "p").
		AddEdge("start", "q").
		AddEdge("start", "r").
		AddEdge("p", "join").
		AddEdge("q", "join").
		AddEdge("r", "join").
		AddEdge("join", END).
		SetEntry("start").
		SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "p", "q", "r", "join"}, result.Trace)
}

// routedGraph builds intake -> {greet | analyze -> deep} -> respond.
func routedGraph(router RouterFunc[State]) *Graph[State] {
	return NewGraph[State]().
		AddNode("intake", func(ctx Context, s State) (State, error) {
			route := "greeting"
			if s.Input != "hello" {
				route = "financial"
			}
			return State{Route: route, Trace: []string{"intake"}}, nil
		}).
		AddNode("greet", traceNode("greet")).
		AddNode("analyze", traceNode("analyze")).
		AddNode("deep", traceNode("deep")).
		AddNode("respond", traceNode("respond")).
		AddConditionalEdge("intake", router, map[string]string{
			"greeting":  "greet",
			"financial": "analyze",
		}).
		AddEdge("greet", "respond").
		AddEdge("analyze", "deep").
		AddEdge("deep", "respond").
		AddEdge("respond", END).
		SetEntry("intake").
		SetReducer(stateSchema.Reduce)
}

func routeField(ctx Context, s State) string { return s.Route }

// TestRun_ConditionalRouting tests that the router sees the merged state and
// that the untaken branch is skipped all the way to the join.
func TestRun_ConditionalRouting(t *testing.T) {
	compiled, err := routedGraph(routeField).Compile()
	require.NoError(t, err)

	t.Run("greeting", func(t *testing.T) {
		result, err := compiled.Run(testCtx(), State{Input: "hello"})
		require.NoError(t, err)
		assert.Equal(t, []string{"intake", "greet", "respond"}, result.Trace)
	})

	t.Run("financial", func(t *testing.T) {
		result, err := compiled.Run(testCtx(), State{Input: "can I afford a car"})
		require.NoError(t, err)
		assert.Equal(t, []string{"intake", "analyze", "deep", "respond"}, result.Trace)
	})
}

// TestRun_RouteToEnd tests a route that finishes the run directly.
func TestRun_RouteToEnd(t *testing.T) {
	graph := NewGraph[State]().
		AddNode("check", traceNode("check")).
		AddNode("work", traceNode("work")).
		AddConditionalEdge("check", alwaysRoute("skip"), map[string]string{
			"skip": END,
			"work": "work",
		}).
		AddEdge("work", END).
		SetEntry("check").
		SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"check"}, result.Trace)
}

// TestRun_RouterErrors tests the fatal router outcomes.
func TestRun_RouterErrors(t *testing.T) {
	tests := []struct {
		name     string
		router   RouterFunc[State]
		want     error
		returned string
	}{
		{"undeclared label", alwaysRoute("smalltalk"), ErrUndeclaredRoute, "smalltalk"},
		{"empty label", alwaysRoute(""), ErrInvalidRouterResult, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := routedGraph(tt.router).Compile()
			require.NoError(t, err)

			result, err := compiled.Run(testCtx(), State{Input: "hello"})
			require.ErrorIs(t, err, tt.want)

			var routerErr *RouterError
			require.True(t, errors.As(err, &routerErr))
			assert.Equal(t, "intake", routerErr.FromNode)
			assert.Equal(t, tt.returned, routerErr.Returned)
			assert.Equal(t, []string{"intake"}, result.Trace, "state at the failure point")
		})
	}

	t.Run("router panic", func(t *testing.T) {
		compiled, err := routedGraph(func(Context, State) string { panic("boom") }).Compile()
		require.NoError(t, err)

		_, err = compiled.Run(testCtx(), State{Input: "hello"})
		var routerErr *RouterError
		require.True(t, errors.As(err, &routerErr))

		var panicErr *PanicError
		require.True(t, errors.As(err, &panicErr))
		assert.Equal(t, "intake", panicErr.NodeID)
		assert.Equal(t, "boom", panicErr.Value)
	})
}

// TestRun_NodeFailureContained tests that errors and panics are replaced by
// the failure handler's update and the run still reaches END.
func TestRun_NodeFailureContained(t *testing.T) {
	tests := []struct {
		name string
		node NodeFunc[State]
	}{
		{"error", failNode(errors.New("upstream unavailable"))},
		{"panic", panicNode("nil map")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := diamond(traceNode("left"), tt.node).
				OnNodeFailure(traceFailure).
				Compile()
			require.NoError(t, err)

			result, err := compiled.Run(testCtx(), State{})
			require.NoError(t, err)
			assert.Equal(t, []string{"start", "left", "failed:right", "join"}, result.Trace)
		})
	}
}

// TestRun_FailureHandlerReceivesCause tests the error passed to the handler.
func TestRun_FailureHandlerReceivesCause(t *testing.T) {
	cause := errors.New("timeout")
	var got error
	var gotNode string

	graph := NewGraph[State]().
		AddNode("fetch", failNode(cause)).
		AddEdge("fetch", END).
		SetEntry("fetch").
		SetReducer(stateSchema.Reduce).
		OnNodeFailure(func(ctx Context, nodeID string, err error) State {
			got, gotNode = err, nodeID
			assert.Equal(t, "fetch", ctx.NodeID())
			return State{Output: "fallback"}
		})

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Output)
	assert.Equal(t, "fetch", gotNode)
	assert.ErrorIs(t, got, cause)

	var nodeErr *NodeError
	require.True(t, errors.As(got, &nodeErr))
	assert.Equal(t, "execute", nodeErr.Op)
}

// TestRun_FailureHandlerSeesDuration tests that errors and panics reach the
// handler stamped with the node's run time.
func TestRun_FailureHandlerSeesDuration(t *testing.T) {
	slow := func(fail func() error) NodeFunc[State] {
		return func(ctx Context, s State) (State, error) {
			time.Sleep(15 * time.Millisecond)
			return State{}, fail()
		}
	}

	var mu sync.Mutex
	durations := map[string]time.Duration{}
	graph := NewGraph[State]().
		AddNode("start", traceNode("start")).
		AddNode("left", slow(func() error { return errors.New("left failed") })).
		AddNode("right", slow(func() error { panic("right failed") })).
		AddNode("join", traceNode("join")).
		AddEdge("start", "left").
		AddEdge("start", "right").
		AddEdge("left", "join").
		AddEdge("right", "join").
		AddEdge("join", END).
		SetEntry("start").
		SetReducer(stateSchema.Reduce).
		OnNodeFailure(func(ctx Context, nodeID string, err error) State {
			mu.Lock()
			durations[nodeID] = NodeDuration(err)
			mu.Unlock()
			return State{}
		})

	compiled, err := graph.Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), State{})
	require.NoError(t, err)

	require.Len(t, durations, 2)
	assert.GreaterOrEqual(t, durations["left"], 15*time.Millisecond)
	assert.GreaterOrEqual(t, durations["right"], 15*time.Millisecond)
}

// TestRun_FailureWithoutHandler tests that a failed node contributes
// nothing when no handler is set.
func TestRun_FailureWithoutHandler(t *testing.T) {
	compiled, err := diamond(traceNode("left"), panicNode("boom")).Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "left", "join"}, result.Trace)
}

// TestRun_FailureHandlerPanics tests that a panicking handler degrades to
// the zero update.
func TestRun_FailureHandlerPanics(t *testing.T) {
	compiled, err := diamond(traceNode("left"), failNode(errors.New("x"))).
		OnNodeFailure(func(Context, string, error) State { panic("handler") }).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "left", "join"}, result.Trace)
}

// TestRun_FailedNodeUpdateDiscarded tests that a node's partial update is
// dropped when it also returns an error.
func TestRun_FailedNodeUpdateDiscarded(t *testing.T) {
	graph := NewGraph[State]().
		AddNode("a", func(ctx Context, s State) (State, error) {
			return State{Output: "half done"}, errors.New("failed late")
		}).
		AddEdge("a", END).
		SetEntry("a").
		SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Empty(t, result.Output)
}

// TestRun_ConflictingSiblingWrites tests that two siblings writing one
// overwrite field abort the run.
func TestRun_ConflictingSiblingWrites(t *testing.T) {
	write := func(v string) NodeFunc[State] {
		return func(ctx Context, s State) (State, error) {
			return State{Output: v}, nil
		}
	}

	compiled, err := diamond(write("from left"), write("from right")).Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.Error(t, err)

	var mergeErr *MergeError
	require.True(t, errors.As(err, &mergeErr))
	assert.Equal(t, []string{"left", "right"}, mergeErr.Frontier)

	var conflict *reduce.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "Output", conflict.Field)
	assert.Equal(t, [2]string{"left", "right"}, conflict.Sources)

	assert.Equal(t, []string{"start"}, result.Trace, "state before the failed merge")
}

// TestRun_SequentialOverwrite tests that a later frontier overwrites a
// scalar written earlier.
func TestRun_SequentialOverwrite(t *testing.T) {
	graph := NewGraph[State]().
		AddNode("draft", func(ctx Context, s State) (State, error) {
			return State{Output: "draft"}, nil
		}).
		AddNode("final", func(ctx Context, s State) (State, error) {
			return State{Output: "final"}, nil
		}).
		AddEdge("draft", "final").
		AddEdge("final", END).
		SetEntry("draft").
		SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, "final", result.Output)
}

// TestRun_ReducerError tests that any reducer error is fatal.
func TestRun_ReducerError(t *testing.T) {
	boom := errors.New("reducer broke")
	graph := NewGraph[Counter]().
		AddNode("a", increment).
		AddEdge("a", END).
		SetEntry("a").
		SetReducer(func(prev Counter, updates ...Counter) (Counter, error) {
			return prev, boom
		})

	compiled, err := graph.Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), Counter{})
	assert.ErrorIs(t, err, boom)

	var mergeErr *MergeError
	assert.True(t, errors.As(err, &mergeErr))
}

// TestRun_Cancellation tests that cancellation stops the run between
// frontiers.
func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var secondRan atomic.Bool
	graph := NewGraph[State]().
		AddNode("first", func(c Context, s State) (State, error) {
			cancel()
			return State{Trace: []string{"first"}}, nil
		}).
		AddNode("second", func(c Context, s State) (State, error) {
			secondRan.Store(true)
			return State{}, nil
		}).
		AddEdge("first", "second").
		AddEdge("second", END).
		SetEntry("first").
		SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(NewContext(ctx), State{})
	require.ErrorIs(t, err, context.Canceled)

	var cancelErr *CancellationError
	require.True(t, errors.As(err, &cancelErr))
	assert.Equal(t, []string{"second"}, cancelErr.Frontier)
	assert.Equal(t, []string{"first"}, cancelErr.State.(State).Trace)
	assert.Equal(t, []string{"first"}, result.Trace)
	assert.False(t, secondRan.Load())
}

// TestRun_AlreadyCancelled tests that no node runs on a dead context.
func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	compiled, err := diamond(traceNode("left"), traceNode("right")).Compile()
	require.NoError(t, err)

	_, err = compiled.Run(NewContext(ctx), State{})
	var cancelErr *CancellationError
	require.True(t, errors.As(err, &cancelErr))
	assert.Equal(t, []string{"start"}, cancelErr.Frontier)
}

// TestRun_NilContext tests nil context handling.
func TestRun_NilContext(t *testing.T) {
	compiled, err := diamond(traceNode("left"), traceNode("right")).Compile()
	require.NoError(t, err)

	_, err = compiled.Run(nil, State{})
	assert.ErrorIs(t, err, ErrNilContext)
}

// TestRun_MaxConcurrency tests that siblings respect the concurrency bound.
func TestRun_MaxConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	work := func(name string) NodeFunc[State] {
		return func(ctx Context, s State) (State, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return State{Trace: []string{name}}, nil
		}
	}

	graph := NewGraph[State]().AddNode("start", traceNode("start"))
	for _, id := range []string{"w1", "w2", "w3", "w4"} {
		graph.AddNode(id, work(id)).AddEdge("start", id).AddEdge(id, END)
	}
	graph.SetEntry("start").SetReducer(stateSchema.Reduce)

	compiled, err := graph.Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), State{}, WithMaxConcurrency(2))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, []string{"start", "w1", "w2", "w3", "w4"}, result.Trace)
}

// TestRun_NodeContext tests the context each node receives.
func TestRun_NodeContext(t *testing.T) {
	var mu sync.Mutex
	got := map[string]string{}
	record := func(name string) NodeFunc[State] {
		return func(ctx Context, s State) (State, error) {
			mu.Lock()
			got[name] = ctx.NodeID() + "/" + ctx.RunID()
			mu.Unlock()
			assert.NotNil(t, ctx.Logger())
			return State{}, nil
		}
	}

	compiled, err := diamond(record("left"), record("right")).Compile()
	require.NoError(t, err)

	ctx := NewContext(context.Background(), WithContextRunID("ctx-run"))
	_, err = compiled.Run(ctx, State{})
	require.NoError(t, err)
	assert.Equal(t, "left/ctx-run", got["left"])
	assert.Equal(t, "right/ctx-run", got["right"])

	_, err = compiled.Run(ctx, State{}, WithRunID("opt-run"))
	require.NoError(t, err)
	assert.Equal(t, "left/opt-run", got["left"], "run option wins over context run ID")
}

// TestRun_ConcurrentRuns tests that one compiled graph serves many runs.
func TestRun_ConcurrentRuns(t *testing.T) {
	compiled, err := routedGraph(routeField).Compile()
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	results := make([]State, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			input := "hello"
			if i%2 == 1 {
				input = "budget"
			}
			results[i], errs[i] = compiled.Run(testCtx(), State{Input: input})
		}()
	}
	wg.Wait()

	for i := range 20 {
		require.NoError(t, errs[i])
		if i%2 == 0 {
			assert.Equal(t, []string{"intake", "greet", "respond"}, results[i].Trace)
		} else {
			assert.Equal(t, []string{"intake", "analyze", "deep", "respond"}, results[i].Trace)
		}
	}
}
