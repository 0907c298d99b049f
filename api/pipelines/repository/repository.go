package repository

import (
	"context"
	"errors"

	"github.com/equinor/radix-release-api/api/pipelines/models"
)

// ErrRunNotFound No run exists with the id
var ErrRunNotFound = errors.New("pipeline run not found")

// RunRepository Durable storage of pipeline runs. Implementations return copies; callers own what they get.
type RunRepository interface {
	// Save inserts or replaces the run
	Save(ctx context.Context, run *models.PipelineRun) error
	// Get returns ErrRunNotFound when the id is unknown
	Get(ctx context.Context, runID string) (*models.PipelineRun, error)
	// List returns the runs of a service, newest first
	List(ctx context.Context, serviceName string) ([]*models.PipelineRun, error)
	// ListActive returns every non-terminal run, optionally limited to one service
	ListActive(ctx context.Context, serviceName string) ([]*models.PipelineRun, error)
}
