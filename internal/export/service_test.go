package export

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qkbintel/registry/internal/domain"
	"github.com/qkbintel/registry/internal/repository"
)

type stubChangeRepo struct {
	changes []domain.OwnershipChange
}

func (r *stubChangeRepo) ListByCompany(ctx context.Context, nipt string, limit int) ([]domain.OwnershipChange, error) {
	return r.changes, nil
}

func (r *stubChangeRepo) ListRecent(ctx context.Context, limit int) ([]domain.OwnershipChange, error) {
	return r.changes, nil
}

func (r *stubChangeRepo) ListBetween(ctx context.Context, from, to time.Time) ([]domain.OwnershipChange, error) {
	return r.changes, nil
}

func TestChangesWorkbookRendersLedgerRows(t *testing.T) {
	pct51 := 51.0
	pct70 := 70.0
	changes := &stubChangeRepo{changes: []domain.OwnershipChange{
		{
			ID:          uuid.New(),
			CompanyNIPT: "J61827501H",
			ObservedAt:  time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
			Description: "ownership percentages changed",
			OldStakes:   []domain.StakeSnapshot{{Name: "Artan Hoxha", Kind: domain.HolderIndividual, Pct: &pct51}},
			NewStakes:   []domain.StakeSnapshot{{Name: "Artan Hoxha", Kind: domain.HolderIndividual, Pct: &pct70}},
			Source:      "qkb_scrape",
		},
	}}

	svc := NewService(repository.NewMemoryCompanyStore(), changes)
	f, err := svc.ChangesWorkbook(context.Background(), 100)
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Ownership Changes")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if rows[1][0] != "J61827501H" {
		t.Errorf("expected NIPT in first column, got %q", rows[1][0])
	}
	if rows[1][3] != "Artan Hoxha (individual, 51.00%)" {
		t.Errorf("unexpected old stakes cell: %q", rows[1][3])
	}
	if rows[1][4] != "Artan Hoxha (individual, 70.00%)" {
		t.Errorf("unexpected new stakes cell: %q", rows[1][4])
	}
}

func TestCompaniesWorkbookListsStoredCompanies(t *testing.T) {
	store := repository.NewMemoryCompanyStore()
	ctx := context.Background()
	err := store.WithCompanyTx(ctx, "J61827501H", func(tx repository.CompanyTx) error {
		return tx.UpsertCompany(ctx, domain.Company{
			NIPT:        "J61827501H",
			Name:        "ALPHA SHPK",
			LegalForm:   domain.LegalFormShpk,
			Status:      domain.StatusActive,
			LastScraped: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
		})
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}

	svc := NewService(store, &stubChangeRepo{})
	f, err := svc.CompaniesWorkbook(ctx)
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Companies")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if rows[1][0] != "J61827501H" || rows[1][1] != "ALPHA SHPK" {
		t.Errorf("unexpected company row: %v", rows[1])
	}
}
