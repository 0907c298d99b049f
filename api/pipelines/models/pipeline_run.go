package models

import (
	"time"

	"github.com/equinor/radix-common/utils/slice"
)

// RunStatus Overall status of a pipeline run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal No further transitions are possible
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// PipelineRun One execution of the pipeline, triggered by a change event
// swagger:model PipelineRun
type PipelineRun struct {
	// ID of the run, lexically sortable by creation time
	//
	// required: true
	// example: 01HZX3Q4V6N8W3J5YQ2T9K7M1P
	ID string `json:"id"`

	// ServiceName the run releases
	//
	// required: true
	// example: streamlit-app
	ServiceName string `json:"serviceName"`

	// Revision that triggered the run
	//
	// required: true
	// example: abc123
	Revision string `json:"revision"`

	// Branch the change event was received for
	//
	// example: main
	Branch string `json:"branch"`

	// TriggeredBy identity of the caller sending the change event
	TriggeredBy string `json:"triggeredBy"`

	// Status of the run
	//
	// required: true
	// enum: pending,running,succeeded,failed,cancelled
	Status RunStatus `json:"status"`

	// Stages instantiated so far, in execution order
	Stages []StageExecution `json:"stages"`

	Created time.Time  `json:"created"`
	Started *time.Time `json:"started,omitempty"`
	Ended   *time.Time `json:"ended,omitempty"`

	// CancelRequestedBy identity cancelling the run
	CancelRequestedBy string `json:"cancelRequestedBy,omitempty"`
}

// IsTerminal The run has succeeded, failed or been cancelled
func (r *PipelineRun) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Stage Finds an instantiated stage execution by id
func (r *PipelineRun) Stage(stageID string) (*StageExecution, bool) {
	idx := slice.FindIndex(r.Stages, func(s StageExecution) bool { return s.ID == stageID })
	if idx < 0 {
		return nil, false
	}
	return &r.Stages[idx], true
}

// StageByName Finds an instantiated stage execution by stage name
func (r *PipelineRun) StageByName(name string) (*StageExecution, bool) {
	idx := slice.FindIndex(r.Stages, func(s StageExecution) bool { return s.Name == name })
	if idx < 0 {
		return nil, false
	}
	return &r.Stages[idx], true
}

// DeepCopy Returns a copy sharing no mutable state with r
func (r *PipelineRun) DeepCopy() *PipelineRun {
	if r == nil {
		return nil
	}
	out := *r
	out.Started = copyTime(r.Started)
	out.Ended = copyTime(r.Ended)
	out.Stages = slice.Map(r.Stages, func(s StageExecution) StageExecution { return s.deepCopy() })
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
