package pipelines

import (
	"errors"
	"fmt"

	"github.com/equinor/radix-release-api/api/artifacts"
	"github.com/equinor/radix-release-api/api/builder"
	"github.com/equinor/radix-release-api/api/deployer"
	"github.com/equinor/radix-release-api/api/pipelines/models"
	"github.com/equinor/radix-release-api/api/pipelines/repository"
	"github.com/equinor/radix-release-api/api/utils"
	"github.com/equinor/radix-release-api/api/utils/transient"
)

var (
	ErrRunNotFound      = repository.ErrRunNotFound
	ErrStageNotFound    = errors.New("stage not found")
	ErrServiceNotFound  = errors.New("service not found")
	ErrRunNotActive     = errors.New("pipeline run is not active")
	ErrGateNotWaiting   = errors.New("approval gate is not waiting for a decision")
	ErrBranchNotTracked = errors.New("ref does not match the tracked branch")
	ErrRunAlreadyActive = errors.New("a pipeline run is already active for the service")
	ErrArtifactExists   = artifacts.ErrArtifactExists
	ErrArtifactNotFound = artifacts.ErrArtifactNotFound
)

type (
	// BuildError Image build or publish failed; fatal to the run
	BuildError = builder.BuildError
	// RolloutError Deployment partially applied; reported, not corrected
	RolloutError = deployer.RolloutError
	// TransientInfrastructureError Registry or control plane unavailable; a new trigger may succeed
	TransientInfrastructureError = transient.Error
)

// Names of the failure taxonomy recorded on failed stages
const (
	ValidationErrorType              = "ValidationError"
	BuildErrorType                   = "BuildError"
	ApprovalConflictErrorType        = "ApprovalConflictError"
	RolloutErrorType                 = "RolloutError"
	TransientInfrastructureErrorType = "TransientInfrastructureError"
	ApprovalRejectedType             = "ApprovalRejected"
	ApprovalTimeoutType              = "ApprovalTimeout"
	InternalErrorType                = "InternalError"
)

// ValidationError Input or manifest that can never succeed as given
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ApprovalConflictError A decision arrived for a gate that has already been resolved. The original decision stands.
type ApprovalConflictError struct {
	RunID    string
	StageID  string
	Status   models.StageStatus
	Existing *models.ApprovalDecision
}

func (e *ApprovalConflictError) Error() string {
	if e.Existing != nil {
		verdict := "rejected"
		if e.Existing.Approved {
			verdict = "approved"
		}
		return fmt.Sprintf("approval %s of run %s was already %s by %s", e.StageID, e.RunID, verdict, e.Existing.DecidedBy)
	}
	return fmt.Sprintf("approval %s of run %s is already %s", e.StageID, e.RunID, e.Status)
}

// ErrorType Classifies err into the failure taxonomy
func ErrorType(err error) string {
	var (
		validationErr       *ValidationError
		deployValidationErr *deployer.ValidationError
		buildErr            *BuildError
		rolloutErr          *RolloutError
		approvalConflictErr *ApprovalConflictError
		transientErr        *TransientInfrastructureError
	)
	switch {
	case errors.As(err, &transientErr):
		return TransientInfrastructureErrorType
	case errors.As(err, &validationErr), errors.As(err, &deployValidationErr):
		return ValidationErrorType
	case errors.As(err, &buildErr):
		return BuildErrorType
	case errors.As(err, &rolloutErr):
		return RolloutErrorType
	case errors.As(err, &approvalConflictErr):
		return ApprovalConflictErrorType
	default:
		return InternalErrorType
	}
}

// ApiError Maps engine errors to API errors with a matching HTTP status
func ApiError(err error) error {
	var (
		validationErr       *ValidationError
		approvalConflictErr *ApprovalConflictError
	)
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, ErrStageNotFound), errors.Is(err, ErrServiceNotFound), errors.Is(err, ErrArtifactNotFound):
		return utils.TypeMissingError(err.Error(), err)
	case errors.As(err, &validationErr):
		return utils.CoverAllError(err, utils.User)
	case errors.As(err, &approvalConflictErr),
		errors.Is(err, ErrRunNotActive),
		errors.Is(err, ErrGateNotWaiting),
		errors.Is(err, ErrRunAlreadyActive),
		errors.Is(err, ErrArtifactExists):
		return utils.ConflictError(err.Error(), err)
	default:
		return utils.UnexpectedError("pipeline operation failed", err)
	}
}
