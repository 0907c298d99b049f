package models

import (
	"time"

	"github.com/equinor/radix-release-api/api/artifacts"
)

// StageKind What a stage does
type StageKind string

const (
	StageSource   StageKind = "source"
	StageBuild    StageKind = "build"
	StageApproval StageKind = "approval"
	StageDeploy   StageKind = "deploy"
)

// StageStatus Status of one stage execution
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageWaiting   StageStatus = "waiting"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageCancelled StageStatus = "cancelled"
)

func (s StageStatus) IsTerminal() bool {
	return s == StageSucceeded || s == StageFailed || s == StageCancelled
}

// StageDefinition A declared stage of the pipeline topology
type StageDefinition struct {
	Name string
	Kind StageKind
}

// DefaultTopology source, build, approval, deploy; executed strictly in this order
func DefaultTopology() []StageDefinition {
	return []StageDefinition{
		{Name: "source", Kind: StageSource},
		{Name: "build", Kind: StageBuild},
		{Name: "approval", Kind: StageApproval},
		{Name: "deploy", Kind: StageDeploy},
	}
}

// StageExecution One stage's attempt within a run
// swagger:model StageExecution
type StageExecution struct {
	// ID of the stage execution
	//
	// required: true
	ID string `json:"id"`

	// Name of the declared stage
	//
	// required: true
	// example: build
	Name string `json:"name"`

	// Kind of stage
	//
	// enum: source,build,approval,deploy
	Kind StageKind `json:"kind"`

	// Status of the stage execution
	//
	// enum: pending,running,waiting,succeeded,failed,cancelled
	Status StageStatus `json:"status"`

	// Inputs artifacts produced by the previous stage
	Inputs []artifacts.Ref `json:"inputs"`

	// Outputs artifacts written by this stage
	Outputs []artifacts.Ref `json:"outputs"`

	Started *time.Time `json:"started,omitempty"`
	Ended   *time.Time `json:"ended,omitempty"`

	// Error cause of a failed stage
	Error string `json:"error,omitempty"`

	// ErrorType taxonomy of the failure
	//
	// example: ValidationError
	ErrorType string `json:"errorType,omitempty"`

	// Decision on an approval stage
	Decision *ApprovalDecision `json:"decision,omitempty"`
}

// ApprovalDecision Outcome of a deployment gate, accepted once
// swagger:model ApprovalDecision
type ApprovalDecision struct {
	Approved  bool      `json:"approved"`
	Comment   string    `json:"comment,omitempty"`
	DecidedBy string    `json:"decidedBy"`
	DecidedAt time.Time `json:"decidedAt"`
}

func (s StageExecution) deepCopy() StageExecution {
	out := s
	out.Inputs = copyRefs(s.Inputs)
	out.Outputs = copyRefs(s.Outputs)
	out.Started = copyTime(s.Started)
	out.Ended = copyTime(s.Ended)
	if s.Decision != nil {
		decision := *s.Decision
		out.Decision = &decision
	}
	return out
}

// copyRefs keeps an empty list empty so it still serializes as []
func copyRefs(refs []artifacts.Ref) []artifacts.Ref {
	if refs == nil {
		return nil
	}
	out := make([]artifacts.Ref, len(refs))
	copy(out, refs)
	return out
}
