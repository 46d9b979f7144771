package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/qkbintel/registry/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type runRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository wires a repository for ingestion run records.
func NewRunRepository(pool *pgxpool.Pool) RunRepository {
	return &runRepository{pool: pool}
}

func (r *runRepository) Create(ctx context.Context, run domain.ScrapeRun) error {
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO scrape_runs (id, status, started_at, errors) VALUES ($1, $2, $3, $4)`,
		run.ID,
		string(run.Status),
		run.StartedAt,
		errorsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}
	return nil
}

func (r *runRepository) Update(ctx context.Context, run domain.ScrapeRun) error {
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`UPDATE scrape_runs
		 SET status = $2, completed_at = $3, processed = $4, created = $5,
		     updated = $6, failed = $7, unparsed_fragments = $8, errors = $9
		 WHERE id = $1`,
		run.ID,
		string(run.Status),
		run.CompletedAt,
		run.Processed,
		run.Created,
		run.Updated,
		run.Failed,
		run.UnparsedFragments,
		errorsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update run record: %w", err)
	}
	return nil
}

func (r *runRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ScrapeRun, error) {
	row := r.pool.QueryRow(ctx, runSelect+` WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScrapeRun{}, ErrNotFound
		}
		return domain.ScrapeRun{}, err
	}
	return run, nil
}

func (r *runRepository) ListRecent(ctx context.Context, limit int) ([]domain.ScrapeRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, runSelect+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.ScrapeRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

const runSelect = `SELECT id, status, started_at, completed_at, processed, created, updated,
	failed, unparsed_fragments, errors
	FROM scrape_runs`

func scanRun(row rowScanner) (domain.ScrapeRun, error) {
	var (
		run        domain.ScrapeRun
		status     string
		errorsJSON []byte
	)
	err := row.Scan(
		&run.ID,
		&status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Processed,
		&run.Created,
		&run.Updated,
		&run.Failed,
		&run.UnparsedFragments,
		&errorsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScrapeRun{}, err
		}
		return domain.ScrapeRun{}, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
		return domain.ScrapeRun{}, fmt.Errorf("failed to decode run errors: %w", err)
	}
	return run, nil
}
