package mindmoney

import (
	"errors"
	"log/slog"

	"github.com/randalmurphal/mindflow/pkg/flowgraph"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/llm"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/store"
)

// ErrNoLLM is returned when Deps has no completion client.
var ErrNoLLM = errors.New("mindmoney: completion client is required")

// Deps are the collaborators injected into the workflow.
// Search and Store may be nil; the nodes then degrade to their defaults.
type Deps struct {
	LLM    llm.Client
	Search Searcher
	Store  store.Store

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Checkpoints enables per-frontier checkpoints keyed by turn ID.
	Checkpoints checkpoint.Store
}

// BuildGraph compiles the MindMoney graph.
func BuildGraph(deps Deps, settings Settings) (*flowgraph.CompiledGraph[State], error) {
	if deps.LLM == nil {
		return nil, ErrNoLLM
	}
	a := &agents{llm: deps.LLM, search: deps.Search, store: deps.Store, settings: settings}

	return flowgraph.NewGraph[State]().
		AddNode(NodeIntake, a.intake).
		AddNode(NodeGreeting, a.greeting).
		AddNode(NodeContext, a.sessionContext).
		AddNode(NodeWealthArchitect, a.wealthArchitect).
		AddNode(NodeMarketResearch, a.marketResearch).
		AddNode(NodeCareManager, a.careManager).
		AddNode(NodeActionGenerator, a.actionGenerator).
		AddConditionalEdge(NodeIntake, routeIntake, map[string]string{
			string(RouteGreeting):  NodeGreeting,
			string(RouteFinancial): NodeContext,
		}).
		AddEdge(NodeGreeting, flowgraph.END).
		AddEdge(NodeContext, NodeWealthArchitect).
		AddEdge(NodeContext, NodeMarketResearch).
		AddEdge(NodeWealthArchitect, NodeCareManager).
		AddEdge(NodeMarketResearch, NodeCareManager).
		AddEdge(NodeCareManager, NodeActionGenerator).
		AddEdge(NodeActionGenerator, flowgraph.END).
		SetEntry(NodeIntake).
		SetReducer(Schema.Reduce).
		OnNodeFailure(a.onFailure).
		Compile()
}
