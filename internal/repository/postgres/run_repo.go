package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"folio/internal/domain"
	"folio/internal/port"
)

type runRepo struct {
	db *sqlx.DB
}

// NewRunRepo creates a new PostgreSQL-backed RunRepository.
func NewRunRepo(db *sqlx.DB) port.RunRepository {
	return &runRepo{db: db}
}

func (r *runRepo) Create(ctx context.Context, run *domain.ConversionRun) error {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = domain.RunStatusQueued
	}

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO conversion_runs (
			id, file_name, source_key, pages, status, attempts, created_at, updated_at
		) VALUES (
			:id, :file_name, :source_key, :pages, :status, :attempts, :created_at, :updated_at
		)`, run)
	if err != nil {
		return fmt.Errorf("runRepo.Create: %w", err)
	}
	return nil
}

func (r *runRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConversionRun, error) {
	var run domain.ConversionRun
	err := r.db.GetContext(ctx, &run, "SELECT * FROM conversion_runs WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("runRepo.GetByID: %w", err)
	}
	return &run, nil
}

func (r *runRepo) List(ctx context.Context, offset, limit int) ([]domain.ConversionRun, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM conversion_runs"); err != nil {
		return nil, 0, fmt.Errorf("runRepo.List count: %w", err)
	}

	var runs []domain.ConversionRun
	err := r.db.SelectContext(ctx, &runs,
		`SELECT * FROM conversion_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("runRepo.List: %w", err)
	}
	return runs, total, nil
}

// ClaimQueued moves the oldest queued runs to processing in one statement.
// SKIP LOCKED lets several workers poll the same table without claiming a
// run twice.
func (r *runRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.ConversionRun, error) {
	var runs []domain.ConversionRun
	err := r.db.SelectContext(ctx, &runs,
		`UPDATE conversion_runs SET
			status = $1, attempts = attempts + 1, updated_at = NOW()
		 WHERE id IN (
			SELECT id FROM conversion_runs
			WHERE status = $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING *`,
		domain.RunStatusProcessing, domain.RunStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("runRepo.ClaimQueued: %w", err)
	}
	return runs, nil
}

func (r *runRepo) Complete(ctx context.Context, id uuid.UUID, outputKey, tablesKey string, pageCount int, performance json.RawMessage) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE conversion_runs SET
			status = $1, output_key = $2, tables_key = $3, page_count = $4,
			performance = $5, error = '', updated_at = $6, completed_at = $6
		 WHERE id = $7`,
		domain.RunStatusCompleted, outputKey, tablesKey, pageCount, performance, now, id)
	if err != nil {
		return fmt.Errorf("runRepo.Complete: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Fail records reason on the run and either puts it back on the queue or
// marks it failed.
func (r *runRepo) Fail(ctx context.Context, id uuid.UUID, reason string, requeue bool) error {
	status := domain.RunStatusFailed
	if requeue {
		status = domain.RunStatusQueued
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE conversion_runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		status, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("runRepo.Fail: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
