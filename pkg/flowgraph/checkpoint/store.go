// Package checkpoint provides persistent checkpoint storage for crash recovery.
package checkpoint

import (
	"errors"
	"time"
)

// Store persists checkpoints for crash recovery.
// Checkpoints are keyed by run and frontier step.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the checkpoint for a run at a step.
	// Overwrites if a checkpoint for (runID, step) already exists.
	Save(runID string, step int, data []byte) error

	// Load retrieves a checkpoint.
	// Returns ErrNotFound if checkpoint doesn't exist.
	Load(runID string, step int) ([]byte, error)

	// List returns all checkpoints for a run, ordered by step.
	// Returns empty slice (not error) if run has no checkpoints.
	List(runID string) ([]Info, error)

	// Delete removes a specific checkpoint.
	// Returns nil if checkpoint doesn't exist.
	Delete(runID string, step int) error

	// DeleteRun removes all checkpoints for a run.
	// Returns nil if run has no checkpoints.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading full state.
type Info struct {
	RunID     string
	Step      int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)

// Latest returns the checkpoint with the highest step for a run.
// Returns ErrNotFound if the run has no checkpoints.
func Latest(store Store, runID string) (*Checkpoint, error) {
	infos, err := store.List(runID)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, ErrNotFound
	}
	data, err := store.Load(runID, infos[len(infos)-1].Step)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
