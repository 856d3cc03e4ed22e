package nodegraph

import (
	"encoding/json"
	"sort"
	"time"
)

// Status is the outcome of a node within a run.
type Status string

const (
	// StatusSucceeded means the node executed and produced all outputs.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the node's computation failed.
	StatusFailed Status = "failed"
	// StatusCancelled means the node stopped because the run was cancelled.
	// It counts as a failure for downstream propagation.
	StatusCancelled Status = "cancelled"
	// StatusSkipped means the node never ran because an upstream node failed
	// or the run was cancelled first.
	StatusSkipped Status = "skipped"
)

// NodeResult is the immutable outcome of one node execution.
type NodeResult struct {
	NodeID   string
	Status   Status
	Err      error
	Duration time.Duration
	// Attempts counts compute attempts, including retries.
	Attempts int

	outputs map[string]Value
}

func succeededResult(nodeID string, outputs Outputs, attempts int, d time.Duration) NodeResult {
	cp := make(map[string]Value, len(outputs))
	for k, v := range outputs {
		cp[k] = v
	}
	return NodeResult{NodeID: nodeID, Status: StatusSucceeded, Duration: d, Attempts: attempts, outputs: cp}
}

func failedResult(nodeID string, err error, attempts int, d time.Duration) NodeResult {
	return NodeResult{NodeID: nodeID, Status: StatusFailed, Err: err, Duration: d, Attempts: attempts}
}

func cancelledResult(nodeID string, err error, attempts int, d time.Duration) NodeResult {
	return NodeResult{NodeID: nodeID, Status: StatusCancelled, Err: err, Duration: d, Attempts: attempts}
}

// NewResult builds a successful result for custom Node implementations.
func NewResult(nodeID string, outputs Outputs, d time.Duration) NodeResult {
	return succeededResult(nodeID, outputs, 1, d)
}

// NewFailedResult builds a failed result for custom Node implementations.
// Errors matching ErrCancelled produce a cancelled result.
func NewFailedResult(nodeID string, err error, d time.Duration) NodeResult {
	if isCancelledErr(err) {
		return cancelledResult(nodeID, err, 1, d)
	}
	return failedResult(nodeID, err, 1, d)
}

// Success reports whether the node succeeded.
func (r NodeResult) Success() bool { return r.Status == StatusSucceeded }

// ErrorMessage returns the error text, or "" on success.
func (r NodeResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Output returns a produced value by output port name.
// Present only on success.
func (r NodeResult) Output(name string) (Value, bool) {
	v, ok := r.outputs[name]
	return v, ok
}

// Outputs returns a copy of all produced values.
func (r NodeResult) Outputs() map[string]Value {
	cp := make(map[string]Value, len(r.outputs))
	for k, v := range r.outputs {
		cp[k] = v
	}
	return cp
}

// nodeResultJSON is the wire form of NodeResult.
type nodeResultJSON struct {
	NodeID     string           `json:"node_id"`
	Status     Status           `json:"status"`
	Error      string           `json:"error,omitempty"`
	DurationMs float64          `json:"duration_ms"`
	Attempts   int              `json:"attempts"`
	Outputs    map[string]Value `json:"outputs,omitempty"`
}

// MarshalJSON implements json.Marshaler. Errors are flattened to text.
func (r NodeResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeResultJSON{
		NodeID:     r.NodeID,
		Status:     r.Status,
		Error:      r.ErrorMessage(),
		DurationMs: durationMs(r.Duration),
		Attempts:   r.Attempts,
		Outputs:    r.outputs,
	})
}

// ExecutionReport is the aggregate outcome of one graph run.
// It is read-only once returned by Graph.Run.
type ExecutionReport struct {
	RunID     string
	GraphName string

	// Success is true iff every node succeeded: nothing failed, was
	// cancelled or was skipped.
	Success bool

	// Results holds one entry per node that executed (succeeded, failed or
	// cancelled). Skipped nodes have no entry.
	Results map[string]NodeResult

	// Skipped lists, sorted, the nodes that never ran.
	Skipped []string

	// Layers is the dependency layering used for the run.
	Layers [][]string

	StartedAt time.Time
	Duration  time.Duration
}

// StatusOf returns a node's status, or "" if the node was not part of the run.
func (r *ExecutionReport) StatusOf(nodeID string) Status {
	if res, ok := r.Results[nodeID]; ok {
		return res.Status
	}
	for _, id := range r.Skipped {
		if id == nodeID {
			return StatusSkipped
		}
	}
	return ""
}

// Result returns the result of an executed node.
func (r *ExecutionReport) Result(nodeID string) (NodeResult, bool) {
	res, ok := r.Results[nodeID]
	return res, ok
}

// Succeeded returns the sorted IDs of nodes that succeeded.
func (r *ExecutionReport) Succeeded() []string {
	return r.withStatus(StatusSucceeded)
}

// Failed returns the sorted IDs of nodes that failed or were cancelled.
func (r *ExecutionReport) Failed() []string {
	return r.withStatus(StatusFailed, StatusCancelled)
}

// Cancelled returns the sorted IDs of nodes that stopped due to cancellation.
func (r *ExecutionReport) Cancelled() []string {
	return r.withStatus(StatusCancelled)
}

func (r *ExecutionReport) withStatus(statuses ...Status) []string {
	var ids []string
	for id, res := range r.Results {
		for _, s := range statuses {
			if res.Status == s {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// reportJSON is the wire form of ExecutionReport.
type reportJSON struct {
	RunID      string                `json:"run_id"`
	GraphName  string                `json:"graph_name"`
	Success    bool                  `json:"success"`
	Results    map[string]NodeResult `json:"results"`
	Skipped    []string              `json:"skipped"`
	Layers     [][]string            `json:"layers"`
	StartedAt  time.Time             `json:"started_at"`
	DurationMs float64               `json:"duration_ms"`
}

// MarshalJSON implements json.Marshaler.
func (r *ExecutionReport) MarshalJSON() ([]byte, error) {
	skipped := r.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	return json.Marshal(reportJSON{
		RunID:      r.RunID,
		GraphName:  r.GraphName,
		Success:    r.Success,
		Results:    r.Results,
		Skipped:    skipped,
		Layers:     r.Layers,
		StartedAt:  r.StartedAt,
		DurationMs: durationMs(r.Duration),
	})
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
