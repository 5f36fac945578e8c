package flowgraph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/checkpoint"
)

// resumeConfig holds options that only apply to Resume.
type resumeConfig[S any] struct {
	stateOverride func(S) S
	validateState func(S) error
	runOptions    []RunOption
}

// ResumeOption configures Resume behavior.
type ResumeOption[S any] func(*resumeConfig[S])

// WithStateOverride modifies the checkpointed state before execution continues.
func WithStateOverride[S any](fn func(S) S) ResumeOption[S] {
	return func(c *resumeConfig[S]) {
		c.stateOverride = fn
	}
}

// WithStateValidation rejects a checkpointed state before execution continues.
func WithStateValidation[S any](fn func(S) error) ResumeOption[S] {
	return func(c *resumeConfig[S]) {
		c.validateState = fn
	}
}

// WithResumeRunOptions applies run options (observability, concurrency)
// to the resumed execution. Checkpointing always continues into the same
// store under the same run ID.
func WithResumeRunOptions[S any](opts ...RunOption) ResumeOption[S] {
	return func(c *resumeConfig[S]) {
		c.runOptions = append(c.runOptions, opts...)
	}
}

// Resume continues execution from the latest checkpoint of a run.
// Completed nodes are not re-run; the pending frontier is dispatched with
// the checkpointed state and barrier bookkeeping.
//
// A checkpoint taken after the final frontier resumes to an immediate
// return of its state.
//
// Example:
//
//	// Previous run crashed after the fan-out frontier
//	// Resume continues at the join with the merged state
//	result, err := compiled.Resume(ctx, store, "run-123")
func (cg *CompiledGraph[S]) Resume(ctx Context, store checkpoint.Store, runID string, opts ...ResumeOption[S]) (S, error) {
	var zero S
	if ctx == nil {
		return zero, ErrNilContext
	}

	infos, err := store.List(runID)
	if err != nil {
		return zero, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(infos) == 0 {
		return zero, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}

	return cg.ResumeFrom(ctx, store, runID, infos[len(infos)-1].Step, opts...)
}

// ResumeFrom continues execution from the checkpoint saved after a
// specific step. Checkpoints the run saved after that step are deleted
// before execution continues, so a replay that takes a shorter route does
// not leave the old run's later state behind for Resume to load.
func (cg *CompiledGraph[S]) ResumeFrom(ctx Context, store checkpoint.Store, runID string, step int, opts ...ResumeOption[S]) (S, error) {
	var zero S
	if ctx == nil {
		return zero, ErrNilContext
	}

	cfg := resumeConfig[S]{}
	for _, opt := range opts {
		opt(&cfg)
	}

	data, err := store.Load(runID, step)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return zero, fmt.Errorf("%w: %s at step %d", ErrNoCheckpoints, runID, step)
		}
		return zero, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if cp.Version != checkpoint.Version {
		return zero, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if cfg.stateOverride != nil {
		state = cfg.stateOverride(state)
	}

	if cfg.validateState != nil {
		if err := cfg.validateState(state); err != nil {
			return state, fmt.Errorf("state validation failed: %w", err)
		}
	}

	sched := newSchedule(&cg.topology)
	frontier, err := sched.restore(cp)
	if err != nil {
		return zero, err
	}

	if err := truncateAfter(store, runID, step); err != nil {
		return zero, err
	}

	runCfg := defaultRunConfig()
	for _, opt := range cfg.runOptions {
		opt(&runCfg)
	}
	runCfg.checkpointStore = store
	runCfg.runID = runID

	return cg.execute(ctx, state, sched, frontier, cp.Step, &runCfg)
}

// truncateAfter deletes every checkpoint of runID saved after step.
func truncateAfter(store checkpoint.Store, runID string, step int) error {
	infos, err := store.List(runID)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	for _, info := range infos {
		if info.Step <= step {
			continue
		}
		if err := store.Delete(runID, info.Step); err != nil {
			return &CheckpointError{Step: info.Step, Op: "delete", Err: err}
		}
	}
	return nil
}
