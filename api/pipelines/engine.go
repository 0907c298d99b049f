package pipelines

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/equinor/radix-common/utils/slice"
	"github.com/equinor/radix-release-api/api/artifacts"
	"github.com/equinor/radix-release-api/api/metrics"
	"github.com/equinor/radix-release-api/api/pipelines/models"
	"github.com/equinor/radix-release-api/api/pipelines/repository"
	"github.com/equinor/radix-release-api/internal/config"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"
)

// ChangeEvent A source change for a service
type ChangeEvent struct {
	ServiceName string
	Revision    string
	// Ref the change was pushed to, refs/heads/<branch> or <branch>
	Ref         string
	TriggeredBy string
}

// StageResult Completion of a stage execution
type StageResult struct {
	RunID   string
	StageID string
	// Status succeeded or failed
	Status  models.StageStatus
	Outputs []artifacts.Ref
	Err     error
}

// Executor Performs the work of one stage kind. run and stage are copies.
type Executor interface {
	Execute(ctx context.Context, run *models.PipelineRun, stage *models.StageExecution) ([]artifacts.Ref, error)
}

// ServiceLookup Resolves service definitions by name
type ServiceLookup interface {
	Get(serviceName string) (config.ServiceDefinition, bool)
}

type Option func(e *Engine)

// WithApprovalTimeout Fail gates waiting longer than timeout. Zero waits forever.
func WithApprovalTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.approvalTimeout = timeout
	}
}

func WithClock(clk clock.PassiveClock) Option {
	return func(e *Engine) {
		e.clock = clk
	}
}

func WithDispatcher(dispatcher Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = dispatcher
	}
}

// Engine Sequences the stages of each run. A run's state changes only under its own lock; stage work runs outside it
// and reports back through Advance.
type Engine struct {
	services        ServiceLookup
	repo            repository.RunRepository
	executors       map[models.StageKind]Executor
	topology        []models.StageDefinition
	dispatcher      Dispatcher
	clock           clock.PassiveClock
	approvalTimeout time.Duration
	locks           *keyedMutex
}

func NewEngine(services ServiceLookup, repo repository.RunRepository, executors map[models.StageKind]Executor, opts ...Option) *Engine {
	e := &Engine{
		services:   services,
		repo:       repo,
		executors:  executors,
		topology:   models.DefaultTopology(),
		dispatcher: NewGoroutineDispatcher(),
		clock:      clock.RealClock{},
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stageWork Stage execution to dispatch once the run lock is released
type stageWork func()

// Trigger Starts a run for a change event on the tracked branch of the service
func (e *Engine) Trigger(ctx context.Context, event ChangeEvent) (*models.PipelineRun, error) {
	service, ok := e.services.Get(event.ServiceName)
	if !ok {
		return nil, fmt.Errorf("%s: %w", event.ServiceName, ErrServiceNotFound)
	}
	if !branchMatches(service.Branch, event.Ref) {
		return nil, fmt.Errorf("%s, tracking %s: %w", event.Ref, service.Branch, ErrBranchNotTracked)
	}
	if strings.TrimSpace(event.Revision) == "" {
		return nil, &ValidationError{Reason: "revision is required"}
	}

	unlockService := e.locks.Lock("service/" + service.Name)
	active, err := e.repo.ListActive(ctx, service.Name)
	if err != nil {
		unlockService()
		return nil, err
	}
	if len(active) > 0 {
		unlockService()
		return nil, fmt.Errorf("run %s: %w", active[0].ID, ErrRunAlreadyActive)
	}

	now := e.clock.Now()
	run := &models.PipelineRun{
		ID:          ulid.Make().String(),
		ServiceName: service.Name,
		Revision:    event.Revision,
		Branch:      service.Branch,
		TriggeredBy: event.TriggeredBy,
		Status:      models.RunPending,
		Stages:      []models.StageExecution{},
		Created:     now,
	}
	logger := e.runLogger(ctx, run)

	// The run is persisted once, with its first stage, so a failed save leaves no run behind to block the service.
	unlockRun := e.locks.Lock("run/" + run.ID)
	work := e.startStage(logger.WithContext(ctx), run, 0, nil)
	err = e.repo.Save(ctx, run)
	unlockService()
	if err != nil {
		unlockRun()
		return nil, err
	}
	result := run.DeepCopy()
	unlockRun()

	metrics.AddRunTriggered(service.Name)
	logger.Info().Str("revision", run.Revision).Str("triggeredBy", run.TriggeredBy).Msg("Pipeline run triggered")
	e.dispatch(work)
	return result, nil
}

// Advance Applies a stage completion. A completion for a stage that is no longer running, e.g. a replay or a
// completion arriving after cancellation, changes nothing.
func (e *Engine) Advance(ctx context.Context, result StageResult) (*models.PipelineRun, error) {
	if result.Status != models.StageSucceeded && result.Status != models.StageFailed {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid stage result status %q", result.Status)}
	}

	unlock := e.locks.Lock("run/" + result.RunID)
	run, err := e.repo.Get(ctx, result.RunID)
	if err != nil {
		unlock()
		return nil, err
	}
	stage, ok := run.Stage(result.StageID)
	if !ok {
		unlock()
		return nil, fmt.Errorf("%s: %w", result.StageID, ErrStageNotFound)
	}
	logger := e.runLogger(ctx, run).With().Str("stage", stage.Name).Logger()
	if stage.Status != models.StageRunning {
		unlock()
		logger.Debug().Msgf("Ignoring %s completion for stage in status %s", result.Status, stage.Status)
		return run, nil
	}

	var work stageWork
	now := e.clock.Now()
	if result.Status == models.StageSucceeded {
		e.endStage(run, stage, models.StageSucceeded, now)
		stage.Outputs = nonNil(result.Outputs)
		logger.Info().Msgf("Stage %s succeeded", stage.Name)
		work = e.startNext(logger.WithContext(ctx), run, stage)
	} else {
		e.failStage(run, stage, result.Err, ErrorType(result.Err), now)
		logger.Warn().Err(result.Err).Msgf("Stage %s failed", stage.Name)
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

// Cancel Ends an active run. Stages not yet succeeded become cancelled; stage work in flight is not interrupted
// and its completion is ignored.
func (e *Engine) Cancel(ctx context.Context, runID, cancelledBy string) (*models.PipelineRun, error) {
	unlock := e.locks.Lock("run/" + runID)
	defer unlock()

	run, err := e.repo.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.IsTerminal() {
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, ErrRunNotActive)
	}

	now := e.clock.Now()
	for i := range run.Stages {
		stage := &run.Stages[i]
		if stage.Status == models.StageSucceeded {
			continue
		}
		e.endStage(run, stage, models.StageCancelled, now)
	}
	run.Status = models.RunCancelled
	run.Ended = &now
	run.CancelRequestedBy = cancelledBy
	if err = e.repo.Save(ctx, run); err != nil {
		return nil, err
	}
	e.runLogger(ctx, run).Info().Str("cancelledBy", cancelledBy).Msg("Pipeline run cancelled")
	return run, nil
}

// GetRun Returns a run by id
func (e *Engine) GetRun(ctx context.Context, runID string) (*models.PipelineRun, error) {
	return e.repo.Get(ctx, runID)
}

// ListRuns Returns the runs of a service, newest first
func (e *Engine) ListRuns(ctx context.Context, serviceName string) ([]*models.PipelineRun, error) {
	if _, ok := e.services.Get(serviceName); !ok {
		return nil, fmt.Errorf("%s: %w", serviceName, ErrServiceNotFound)
	}
	runs, err := e.repo.List(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*models.PipelineRun{}
	}
	return runs, nil
}

// startStage Instantiates the stage at topology index idx as the run's current stage
func (e *Engine) startStage(ctx context.Context, run *models.PipelineRun, idx int, inputs []artifacts.Ref) stageWork {
	def := e.topology[idx]
	now := e.clock.Now()
	run.Stages = append(run.Stages, models.StageExecution{
		ID:      uuid.NewString(),
		Name:    def.Name,
		Kind:    def.Kind,
		Status:  models.StagePending,
		Inputs:  nonNil(inputs),
		Outputs: []artifacts.Ref{},
		Started: &now,
	})
	stage := &run.Stages[len(run.Stages)-1]
	if run.Status == models.RunPending {
		run.Status = models.RunRunning
		run.Started = &now
	}

	if def.Kind == models.StageApproval {
		stage.Status = models.StageWaiting
		log.Ctx(ctx).Info().Msgf("Stage %s waiting for approval", stage.Name)
		return nil
	}
	stage.Status = models.StageRunning
	log.Ctx(ctx).Info().Msgf("Stage %s running", stage.Name)

	runCopy, stageCopy := run.DeepCopy(), *stage
	return func() {
		e.dispatcher.Dispatch(ctx, func(ctx context.Context) {
			e.execute(ctx, runCopy, &stageCopy)
		})
	}
}

// startNext Starts the stage following completed, or completes the run when completed was the last stage
func (e *Engine) startNext(ctx context.Context, run *models.PipelineRun, completed *models.StageExecution) stageWork {
	idx := slice.FindIndex(e.topology, func(def models.StageDefinition) bool { return def.Name == completed.Name })
	if idx < 0 || idx == len(e.topology)-1 {
		now := e.clock.Now()
		run.Status = models.RunSucceeded
		run.Ended = &now
		log.Ctx(ctx).Info().Msg("Pipeline run succeeded")
		return nil
	}
	return e.startStage(ctx, run, idx+1, completed.Outputs)
}

func (e *Engine) execute(ctx context.Context, run *models.PipelineRun, stage *models.StageExecution) {
	result := StageResult{RunID: run.ID, StageID: stage.ID, Status: models.StageSucceeded}
	executor, ok := e.executors[stage.Kind]
	if !ok {
		result.Status, result.Err = models.StageFailed, fmt.Errorf("no executor for stage kind %s", stage.Kind)
	} else {
		outputs, err := executor.Execute(ctx, run, stage)
		if err != nil {
			result.Status, result.Err = models.StageFailed, err
		}
		result.Outputs = outputs
	}
	if _, err := e.Advance(ctx, result); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("runId", run.ID).Str("stage", stage.Name).Msg("Failed to record stage completion")
	}
}

func (e *Engine) endStage(run *models.PipelineRun, stage *models.StageExecution, status models.StageStatus, now time.Time) {
	stage.Status = status
	stage.Ended = &now
	if stage.Started != nil {
		metrics.AddStageCompleted(run.ServiceName, stage.Name, string(status), now.Sub(*stage.Started))
	}
}

func (e *Engine) failStage(run *models.PipelineRun, stage *models.StageExecution, cause error, errorType string, now time.Time) {
	if cause == nil {
		cause = errors.New("stage failed without a cause")
	}
	e.endStage(run, stage, models.StageFailed, now)
	stage.Error = cause.Error()
	stage.ErrorType = errorType
	run.Status = models.RunFailed
	run.Ended = &now
}

func (e *Engine) dispatch(work stageWork) {
	if work != nil {
		work()
	}
}

func (e *Engine) runLogger(ctx context.Context, run *models.PipelineRun) *zerolog.Logger {
	logger := log.Ctx(ctx).With().Str("runId", run.ID).Str("serviceName", run.ServiceName).Logger()
	return &logger
}

// branchMatches Accepts refs/heads/<branch> or the bare branch name
func branchMatches(branch, ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == branch || ref == "refs/heads/"+branch
}

func nonNil(refs []artifacts.Ref) []artifacts.Ref {
	if refs == nil {
		return []artifacts.Ref{}
	}
	return refs
}
