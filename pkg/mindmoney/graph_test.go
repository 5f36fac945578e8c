package mindmoney

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/mindflow/pkg/flowgraph"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/llm"
)

func TestBuildGraph_Topology(t *testing.T) {
	g, err := BuildGraph(Deps{LLM: llm.NewMockClient("")}, DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, NodeIntake, g.EntryPoint())
	assert.True(t, g.IsConditional(NodeIntake))
	assert.Equal(t, map[string]string{
		"greeting":  NodeGreeting,
		"financial": NodeContext,
	}, g.Routes(NodeIntake))

	assert.True(t, g.IsForkNode(NodeContext))
	assert.Equal(t, []string{NodeWealthArchitect, NodeMarketResearch}, g.Successors(NodeContext))
	assert.True(t, g.IsJoinNode(NodeCareManager))
	assert.ElementsMatch(t, []string{NodeWealthArchitect, NodeMarketResearch}, g.Predecessors(NodeCareManager))
	assert.Equal(t, []string{flowgraph.END}, g.Successors(NodeGreeting))
	assert.Equal(t, []string{flowgraph.END}, g.Successors(NodeActionGenerator))
}

func TestBuildGraph_RequiresLLM(t *testing.T) {
	_, err := BuildGraph(Deps{}, DefaultSettings())
	assert.ErrorIs(t, err, ErrNoLLM)
}

func TestSchema_ConcurrentBranchesDoNotConflict(t *testing.T) {
	prev := State{Input: "x", Trace: []TraceEntry{{Node: NodeContext}}}
	merged, err := Schema.Reduce(prev,
		State{FinancialProfile: map[string]any{"entities": []any{}}, Trace: []TraceEntry{{Node: NodeWealthArchitect}}},
		State{Research: "- hit", Trace: []TraceEntry{{Node: NodeMarketResearch}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "x", merged.Input)
	assert.Equal(t, "- hit", merged.Research)
	assert.Equal(t, []string{NodeContext, NodeWealthArchitect, NodeMarketResearch}, merged.Visited())
}

func TestSchema_ConcurrentResponsesConflict(t *testing.T) {
	_, err := Schema.Reduce(State{}, State{Response: "a"}, State{Response: "b"})
	assert.Error(t, err)
}
