package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/equinor/radix-release-api/api/artifacts"
	"github.com/equinor/radix-release-api/api/pipelines/models"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(serviceName string, created time.Time, status models.RunStatus) *models.PipelineRun {
	return &models.PipelineRun{
		ID:          ulid.MustNew(ulid.Timestamp(created), nil).String(),
		ServiceName: serviceName,
		Revision:    "abc123",
		Branch:      "main",
		Status:      status,
		Created:     created,
		Stages: []models.StageExecution{{
			ID:      "stage-1",
			Name:    "source",
			Kind:    models.StageSource,
			Status:  models.StageSucceeded,
			Outputs: []artifacts.Ref{{Key: "run/source/source.json", Name: "source.json"}},
		}},
	}
}

func testRepository(t *testing.T, repo RunRepository) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	older := newRun("streamlit-app", base, models.RunSucceeded)
	newer := newRun("streamlit-app", base.Add(time.Minute), models.RunRunning)
	other := newRun("other-app", base.Add(2*time.Minute), models.RunPending)
	for _, run := range []*models.PipelineRun{older, newer, other} {
		require.NoError(t, repo.Save(ctx, run))
	}

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := repo.Get(ctx, newer.ID)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)
		assert.Equal(t, "source.json", got.Stages[0].Outputs[0].Name)
		got.Stages[0].Status = models.StageFailed
		again, err := repo.Get(ctx, newer.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StageSucceeded, again.Stages[0].Status)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := repo.Get(ctx, "unknown")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("list newest first per service", func(t *testing.T) {
		runs, err := repo.List(ctx, "streamlit-app")
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, newer.ID, runs[0].ID)
		assert.Equal(t, older.ID, runs[1].ID)
	})

	t.Run("list active", func(t *testing.T) {
		runs, err := repo.ListActive(ctx, "streamlit-app")
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, newer.ID, runs[0].ID)

		all, err := repo.ListActive(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("save replaces", func(t *testing.T) {
		newer.Status = models.RunCancelled
		require.NoError(t, repo.Save(ctx, newer))
		runs, err := repo.ListActive(ctx, "streamlit-app")
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func Test_MemoryRepository(t *testing.T) {
	testRepository(t, NewMemoryRepository())
}

func Test_PostgresRepository(t *testing.T) {
	databaseUrl := os.Getenv("TEST_DATABASE_URL")
	if databaseUrl == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := OpenPostgres(context.Background(), databaseUrl)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	_, err = db.Exec(`DELETE FROM pipeline_runs`)
	require.NoError(t, err, fmt.Sprintf("clean %s", databaseUrl))

	testRepository(t, NewPostgresRepository(db))
}
