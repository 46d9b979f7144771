package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/qkbintel/registry/internal/domain"
	"github.com/qkbintel/registry/internal/repository"
)

const companiesPageSize = 500

// Service builds xlsx workbooks from stored registry data. Exports are
// synchronous; the datasets stay small enough that streaming a workbook per
// request is fine.
type Service struct {
	store   repository.CompanyStore
	changes repository.ChangeRepository
}

func NewService(store repository.CompanyStore, changes repository.ChangeRepository) *Service {
	return &Service{store: store, changes: changes}
}

// ChangesWorkbook renders the most recent ownership changes, one row per
// ledger entry with the before and after sets flattened to text.
func (s *Service) ChangesWorkbook(ctx context.Context, limit int) (*excelize.File, error) {
	changes, err := s.changes.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load changes: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Ownership Changes"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"NIPT", "Observed At", "Description", "Previous Shareholders", "New Shareholders", "Previous Representatives", "New Representatives", "Source"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, change := range changes {
		row := []any{
			change.CompanyNIPT,
			change.ObservedAt.Format(time.RFC3339),
			change.Description,
			formatStakes(change.OldStakes),
			formatStakes(change.NewStakes),
			formatReps(change.OldReps),
			formatReps(change.NewReps),
			change.Source,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f, nil
}

// CompaniesWorkbook renders the current company table, paging through the
// store so the whole dataset never has to sit in one query result.
func (s *Service) CompaniesWorkbook(ctx context.Context) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Companies"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"NIPT", "Name", "Legal Form", "Status", "Registration Date", "Capital", "City", "Address", "Last Scraped"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	rowIdx := 2
	for offset := 0; ; offset += companiesPageSize {
		companies, err := s.store.ListCompanies(ctx, companiesPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("load companies at offset %d: %w", offset, err)
		}
		if len(companies) == 0 {
			break
		}
		for _, company := range companies {
			row := []any{
				company.NIPT,
				company.Name,
				string(company.LegalForm),
				string(company.Status),
				formatDate(company.RegistrationDate),
				formatFloat(company.Capital),
				company.City,
				company.Address,
				company.LastScraped.Format(time.RFC3339),
			}
			cell := fmt.Sprintf("A%d", rowIdx)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return nil, fmt.Errorf("write row %d: %w", rowIdx, err)
			}
			rowIdx++
		}
		if len(companies) < companiesPageSize {
			break
		}
	}
	return f, nil
}

func formatStakes(stakes []domain.StakeSnapshot) string {
	parts := make([]string, 0, len(stakes))
	for _, stake := range stakes {
		part := fmt.Sprintf("%s (%s", stake.Name, stake.Kind)
		if stake.Pct != nil {
			part += fmt.Sprintf(", %.2f%%", *stake.Pct)
		}
		part += ")"
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

func formatReps(reps []domain.RepresentativeSnapshot) string {
	parts := make([]string, 0, len(reps))
	for _, rep := range reps {
		parts = append(parts, fmt.Sprintf("%s (%s)", rep.Name, rep.Role))
	}
	return strings.Join(parts, "; ")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
