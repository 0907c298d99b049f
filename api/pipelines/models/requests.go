package models

// TriggerRequest A source change reported for a service
// swagger:model TriggerRequest
type TriggerRequest struct {
	// Revision of the source, usually a commit sha
	//
	// required: true
	// example: abc123
	Revision string `json:"revision"`

	// Ref the revision was pushed to
	//
	// required: true
	// example: refs/heads/main
	Ref string `json:"ref"`
}

// TriggerIgnored Response for change events on branches the service does not track
// swagger:model TriggerIgnored
type TriggerIgnored struct {
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason"`
}

// Decision values accepted by an approval gate
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// DecisionRequest Decision on a waiting approval gate
// swagger:model DecisionRequest
type DecisionRequest struct {
	// Decision approve or reject
	//
	// required: true
	// enum: approve,reject
	Decision string `json:"decision"`

	// Comment recorded with the decision
	Comment string `json:"comment,omitempty"`
}
