package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/equinor/radix-release-api/api/pipelines/models"
)

type memoryRepository struct {
	mu   sync.RWMutex
	runs map[string]*models.PipelineRun
}

// NewMemoryRepository Runs kept for the lifetime of the process
func NewMemoryRepository() RunRepository {
	return &memoryRepository{runs: make(map[string]*models.PipelineRun)}
}

func (m *memoryRepository) Save(_ context.Context, run *models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run.DeepCopy()
	return nil
}

func (m *memoryRepository) Get(_ context.Context, runID string) (*models.PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return run.DeepCopy(), nil
}

func (m *memoryRepository) List(_ context.Context, serviceName string) ([]*models.PipelineRun, error) {
	return m.filter(func(run *models.PipelineRun) bool { return run.ServiceName == serviceName }), nil
}

func (m *memoryRepository) ListActive(_ context.Context, serviceName string) ([]*models.PipelineRun, error) {
	return m.filter(func(run *models.PipelineRun) bool {
		return !run.IsTerminal() && (serviceName == "" || run.ServiceName == serviceName)
	}), nil
}

func (m *memoryRepository) filter(predicate func(run *models.PipelineRun) bool) []*models.PipelineRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*models.PipelineRun
	for _, run := range m.runs {
		if predicate(run) {
			result = append(result, run.DeepCopy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Created.Equal(result[j].Created) {
			return result[i].ID > result[j].ID
		}
		return result[i].Created.After(result[j].Created)
	})
	return result
}
