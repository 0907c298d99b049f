package pipelines

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/equinor/radix-common/utils/slice"
	"github.com/equinor/radix-release-api/api/pipelines/models"
	"github.com/rs/zerolog/log"
)

// PendingApproval A gate waiting for a decision
type PendingApproval struct {
	RunID       string                 `json:"runId"`
	ServiceName string                 `json:"serviceName"`
	Revision    string                 `json:"revision"`
	Stage       *models.StageExecution `json:"stage"`
}

// Decide Resolves a waiting gate. A gate accepts exactly one decision; later decisions fail with
// ApprovalConflictError and leave the gate as it is.
func (e *Engine) Decide(ctx context.Context, runID, stageID string, decision models.ApprovalDecision) (*models.PipelineRun, error) {
	unlock := e.locks.Lock("run/" + runID)
	run, err := e.repo.Get(ctx, runID)
	if err != nil {
		unlock()
		return nil, err
	}
	stage, ok := run.Stage(stageID)
	if !ok {
		unlock()
		return nil, fmt.Errorf("%s: %w", stageID, ErrStageNotFound)
	}
	if stage.Kind != models.StageApproval {
		unlock()
		return nil, &ValidationError{Reason: fmt.Sprintf("stage %s is a %s stage, not an approval gate", stage.Name, stage.Kind)}
	}
	if stage.Decision != nil || (stage.Status.IsTerminal() && stage.Status != models.StageCancelled) {
		unlock()
		return nil, &ApprovalConflictError{RunID: runID, StageID: stageID, Status: stage.Status, Existing: stage.Decision}
	}
	if run.IsTerminal() {
		unlock()
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, ErrRunNotActive)
	}
	if stage.Status != models.StageWaiting {
		unlock()
		return nil, fmt.Errorf("stage %s is %s: %w", stage.Name, stage.Status, ErrGateNotWaiting)
	}

	now := e.clock.Now()
	if strings.TrimSpace(decision.DecidedBy) == "" {
		decision.DecidedBy = "anonymous"
	}
	decision.DecidedAt = now
	stage.Decision = &decision
	logger := e.runLogger(ctx, run).With().Str("stage", stage.Name).Str("decidedBy", decision.DecidedBy).Logger()

	var work stageWork
	if decision.Approved {
		e.endStage(run, stage, models.StageSucceeded, now)
		stage.Outputs = nonNil(stage.Inputs)
		logger.Info().Msg("Deployment approved")
		work = e.startNext(logger.WithContext(ctx), run, stage)
	} else {
		cause := fmt.Sprintf("rejected by %s", decision.DecidedBy)
		if decision.Comment != "" {
			cause += ": " + decision.Comment
		}
		e.failStage(run, stage, errors.New(cause), ApprovalRejectedType, now)
		logger.Info().Msg("Deployment rejected")
	}

	err = e.repo.Save(ctx, run)
	out := run.DeepCopy()
	unlock()
	if err != nil {
		return nil, err
	}
	e.dispatch(work)
	return out, nil
}

// PendingApprovals Returns the gates of a service waiting for a decision, newest run first
func (e *Engine) PendingApprovals(ctx context.Context, serviceName string) ([]PendingApproval, error) {
	if _, ok := e.services.Get(serviceName); !ok {
		return nil, fmt.Errorf("%s: %w", serviceName, ErrServiceNotFound)
	}
	runs, err := e.repo.ListActive(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	pending := make([]PendingApproval, 0)
	for _, run := range runs {
		for _, stage := range waitingGates(run) {
			pending = append(pending, PendingApproval{
				RunID:       run.ID,
				ServiceName: run.ServiceName,
				Revision:    run.Revision,
				Stage:       stage,
			})
		}
	}
	return pending, nil
}

// ExpireApprovals Fails gates that have waited longer than the approval timeout. Returns the number of expired gates.
func (e *Engine) ExpireApprovals(ctx context.Context) (int, error) {
	if e.approvalTimeout <= 0 {
		return 0, nil
	}
	runs, err := e.repo.ListActive(ctx, "")
	if err != nil {
		return 0, err
	}
	var expired int
	var errs []error
	for _, run := range runs {
		for _, gate := range waitingGates(run) {
			if gate.Started == nil || e.clock.Since(*gate.Started) < e.approvalTimeout {
				continue
			}
			ok, err := e.expireGate(ctx, run.ID, gate.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				expired++
			}
		}
	}
	return expired, errors.Join(errs...)
}

// expireGate Re-reads the run under its lock, the gate may have been decided since it was listed
func (e *Engine) expireGate(ctx context.Context, runID, stageID string) (bool, error) {
	unlock := e.locks.Lock("run/" + runID)
	defer unlock()

	run, err := e.repo.Get(ctx, runID)
	if err != nil {
		return false, err
	}
	stage, ok := run.Stage(stageID)
	if !ok || stage.Status != models.StageWaiting || run.IsTerminal() {
		return false, nil
	}
	now := e.clock.Now()
	e.failStage(run, stage, fmt.Errorf("approval timed out after %s", e.approvalTimeout), ApprovalTimeoutType, now)
	if err = e.repo.Save(ctx, run); err != nil {
		return false, err
	}
	log.Ctx(ctx).Warn().Str("runId", run.ID).Str("serviceName", run.ServiceName).Msg("Approval timed out")
	return true, nil
}

func waitingGates(run *models.PipelineRun) []*models.StageExecution {
	gates := slice.FindAll(run.Stages, func(stage models.StageExecution) bool {
		return stage.Kind == models.StageApproval && stage.Status == models.StageWaiting
	})
	return slice.Map(gates, func(stage models.StageExecution) *models.StageExecution {
		return &stage
	})
}
