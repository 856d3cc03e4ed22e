package nodegraph

// Observer receives node lifecycle events during a run.
//
// Nodes within a layer execute concurrently, so implementations must be
// safe for concurrent use. Callbacks run on the scheduler's goroutines and
// should return quickly.
type Observer interface {
	OnNodeStart(runID, nodeID string)
	OnNodeFinish(runID string, result NodeResult)
	OnNodeSkipped(runID, nodeID, reason string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Start   func(runID, nodeID string)
	Finish  func(runID string, result NodeResult)
	Skipped func(runID, nodeID, reason string)
}

var _ Observer = ObserverFuncs{}

func (o ObserverFuncs) OnNodeStart(runID, nodeID string) {
	if o.Start != nil {
		o.Start(runID, nodeID)
	}
}

func (o ObserverFuncs) OnNodeFinish(runID string, result NodeResult) {
	if o.Finish != nil {
		o.Finish(runID, result)
	}
}

func (o ObserverFuncs) OnNodeSkipped(runID, nodeID, reason string) {
	if o.Skipped != nil {
		o.Skipped(runID, nodeID, reason)
	}
}
