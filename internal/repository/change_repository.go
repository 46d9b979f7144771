package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qkbintel/registry/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type changeRepository struct {
	pool *pgxpool.Pool
}

// NewChangeRepository wires a read-side repository over the ownership change
// ledger. Writes happen inside the reconciler's transaction, never here.
func NewChangeRepository(pool *pgxpool.Pool) ChangeRepository {
	return &changeRepository{pool: pool}
}

func (r *changeRepository) ListByCompany(ctx context.Context, nipt string, limit int) ([]domain.OwnershipChange, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(
		ctx,
		changeSelect+` WHERE company_nipt = $1 ORDER BY observed_at DESC LIMIT $2`,
		nipt,
		limit,
	)
}

func (r *changeRepository) ListRecent(ctx context.Context, limit int) ([]domain.OwnershipChange, error) {
	if limit <= 0 {
		limit = 200
	}
	return r.list(ctx, changeSelect+` ORDER BY observed_at DESC LIMIT $1`, limit)
}

func (r *changeRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.OwnershipChange, error) {
	return r.list(
		ctx,
		changeSelect+` WHERE observed_at >= $1 AND observed_at <= $2 ORDER BY observed_at ASC`,
		from,
		to,
	)
}

const changeSelect = `SELECT id, company_nipt, observed_at, description, old_stakes, new_stakes,
	old_representatives, new_representatives, source, created_at
	FROM ownership_changes`

func (r *changeRepository) list(ctx context.Context, sql string, args ...any) ([]domain.OwnershipChange, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ownership changes: %w", err)
	}
	defer rows.Close()

	changes := []domain.OwnershipChange{}
	for rows.Next() {
		var (
			change    domain.OwnershipChange
			oldStakes []byte
			newStakes []byte
			oldReps   []byte
			newReps   []byte
		)
		if err := rows.Scan(
			&change.ID,
			&change.CompanyNIPT,
			&change.ObservedAt,
			&change.Description,
			&oldStakes,
			&newStakes,
			&oldReps,
			&newReps,
			&change.Source,
			&change.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ownership change: %w", err)
		}

		if err := json.Unmarshal(oldStakes, &change.OldStakes); err != nil {
			return nil, fmt.Errorf("failed to decode old stakes: %w", err)
		}
		if err := json.Unmarshal(newStakes, &change.NewStakes); err != nil {
			return nil, fmt.Errorf("failed to decode new stakes: %w", err)
		}
		if err := json.Unmarshal(oldReps, &change.OldReps); err != nil {
			return nil, fmt.Errorf("failed to decode old representatives: %w", err)
		}
		if err := json.Unmarshal(newReps, &change.NewReps); err != nil {
			return nil, fmt.Errorf("failed to decode new representatives: %w", err)
		}

		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ownership changes: %w", err)
	}
	return changes, nil
}
