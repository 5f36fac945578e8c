package checkpoint

import (
	"encoding/json"
	"slices"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 2

// Edge identifies a graph edge by its endpoints.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Checkpoint is the persisted snapshot of execution after one frontier.
// It contains all information needed to resume execution.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`

	// Merged state after the step
	State json.RawMessage `json:"state"`

	// Schedule
	Completed  []string `json:"completed,omitempty"`
	Skipped    []string `json:"skipped,omitempty"`
	Taken      []Edge   `json:"taken,omitempty"`
	Untaken    []Edge   `json:"untaken,omitempty"`
	ReachedEnd bool     `json:"reached_end"`
	Frontier   []string `json:"frontier,omitempty"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a new checkpoint with the given parameters.
// State must already be JSON-serialized. frontier is the set of nodes
// ready to run next; it is empty once the run has finished.
func New(runID string, step int, state []byte, frontier []string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		Step:      step,
		Timestamp: time.Now().UTC(),
		State:     state,
		Frontier:  slices.Clone(frontier),
	}
}

// Done reports whether the checkpoint was taken after the last frontier.
func (c *Checkpoint) Done() bool {
	return len(c.Frontier) == 0
}
