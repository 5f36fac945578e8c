// Package mindmoney is the MindMoney coaching workflow built on flowgraph.
//
// A turn flows through these nodes:
//
//	intake ──route──► greeting ───────────────────────────────► END
//	   │ (financial)
//	   └──► context ──► wealth_architect ──┐
//	               └──► market_research ───┴─► care_manager ─► action_generator ─► END
//
// intake classifies the message and records the user's emotional state.
// Greetings get a short reply. Financial messages load the session's prior
// context, then extract a financial profile and search for current
// resources concurrently. care_manager waits for both, writes the reply,
// and action_generator turns it into a structured plan.
//
// Nodes never abort a turn. Any node error is replaced by a failed trace
// entry and safe defaults, so the caller always gets a response. Only a
// classification outside the declared labels is fatal.
//
// Workflow wraps the compiled graph with history loading and persistence:
//
//	wf, err := mindmoney.NewWorkflow(mindmoney.Deps{
//	    LLM:    client,
//	    Search: search.New(apiKey),
//	    Store:  store.NewBestEffort(db, logger),
//	}, settings)
//	result, err := wf.Run(ctx, mindmoney.Request{Message: "I owe $5000"})
package mindmoney
