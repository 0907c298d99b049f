package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/equinor/radix-release-api/api/pipelines/models"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	service_name TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	document     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS pipeline_runs_service_created ON pipeline_runs (service_name, created_at DESC);
CREATE INDEX IF NOT EXISTS pipeline_runs_active ON pipeline_runs (status) WHERE status IN ('pending', 'running');
`

const pingTimeout = 2 * time.Second

type postgresRepository struct {
	db *sql.DB
}

// OpenPostgres Connects through the pgx driver and creates the schema when missing
func OpenPostgres(ctx context.Context, databaseUrl string) (*sql.DB, error) {
	if databaseUrl == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", databaseUrl)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// NewPostgresRepository Runs stored as JSONB documents, one row per run
func NewPostgresRepository(db *sql.DB) RunRepository {
	return &postgresRepository{db: db}
}

func (p *postgresRepository) Save(ctx context.Context, run *models.PipelineRun) error {
	document, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, service_name, status, created_at, updated_at, document)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at, document = EXCLUDED.document`,
		run.ID, run.ServiceName, string(run.Status), run.Created, document)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (p *postgresRepository) Get(ctx context.Context, runID string) (*models.PipelineRun, error) {
	var document []byte
	err := p.db.QueryRowContext(ctx, `SELECT document FROM pipeline_runs WHERE id = $1`, runID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return unmarshalRun(document)
}

func (p *postgresRepository) List(ctx context.Context, serviceName string) ([]*models.PipelineRun, error) {
	return p.query(ctx, `
		SELECT document FROM pipeline_runs
		WHERE service_name = $1
		ORDER BY created_at DESC, id DESC`, serviceName)
}

func (p *postgresRepository) ListActive(ctx context.Context, serviceName string) ([]*models.PipelineRun, error) {
	return p.query(ctx, `
		SELECT document FROM pipeline_runs
		WHERE status IN ('pending', 'running') AND ($1 = '' OR service_name = $1)
		ORDER BY created_at DESC, id DESC`, serviceName)
}

func (p *postgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.PipelineRun, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.PipelineRun
	for rows.Next() {
		var document []byte
		if err = rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run, err := unmarshalRun(document)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func unmarshalRun(document []byte) (*models.PipelineRun, error) {
	var run models.PipelineRun
	if err := json.Unmarshal(document, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}
