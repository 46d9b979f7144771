package repository

import (
	"context"
	"errors"
	"time"

	"github.com/qkbintel/registry/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// CompanyTx is the transactional view the reconciler works against. All
// methods observe and mutate the same transaction; either every mutation in
// one reconciliation commits or none does.
type CompanyTx interface {
	GetCompany(ctx context.Context, nipt string) (domain.Company, error)
	ListShareholders(ctx context.Context, nipt string) ([]domain.Shareholder, error)
	ListRepresentatives(ctx context.Context, nipt string) ([]domain.Representative, error)

	// CompanyExists and FindNIPTByName support parent linking. Holder names
	// resolve by exact identifier or exact-name match only, never fuzzy.
	CompanyExists(ctx context.Context, nipt string) (bool, error)
	FindNIPTByName(ctx context.Context, name string) (string, error)

	UpsertCompany(ctx context.Context, company domain.Company) error
	ReplaceShareholders(ctx context.Context, nipt string, shareholders []domain.Shareholder) error
	ReplaceRepresentatives(ctx context.Context, nipt string, reps []domain.Representative) error
	InsertOwnershipChange(ctx context.Context, change domain.OwnershipChange) error
}

// CompanyStore provides read access to stored companies plus the per-NIPT
// transactional entry point used by the reconciler. WithCompanyTx serializes
// concurrent calls for the same identifier.
type CompanyStore interface {
	WithCompanyTx(ctx context.Context, nipt string, fn func(CompanyTx) error) error

	GetCompany(ctx context.Context, nipt string) (domain.Company, error)
	ListShareholders(ctx context.Context, nipt string) ([]domain.Shareholder, error)
	ListRepresentatives(ctx context.Context, nipt string) ([]domain.Representative, error)
	ListCompanies(ctx context.Context, limit int, offset int) ([]domain.Company, error)
}

// ChangeRepository reads the append-only ownership change ledger. Writes go
// through CompanyTx so they share the reconciler's transaction.
type ChangeRepository interface {
	ListByCompany(ctx context.Context, nipt string, limit int) ([]domain.OwnershipChange, error)
	ListRecent(ctx context.Context, limit int) ([]domain.OwnershipChange, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.OwnershipChange, error)
}

// RunRepository persists ingestion run records.
type RunRepository interface {
	Create(ctx context.Context, run domain.ScrapeRun) error
	Update(ctx context.Context, run domain.ScrapeRun) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.ScrapeRun, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ScrapeRun, error)
}
