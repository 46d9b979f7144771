package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qkbintel/registry/internal/db"
	"github.com/qkbintel/registry/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so the same queries
// serve pooled reads and the reconciler's transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresCompanyStore struct {
	conn *db.Connection
}

// NewCompanyStore wires a PostgreSQL-backed company store.
func NewCompanyStore(conn *db.Connection) CompanyStore {
	return &postgresCompanyStore{conn: conn}
}

func (s *postgresCompanyStore) WithCompanyTx(ctx context.Context, nipt string, fn func(CompanyTx) error) error {
	return s.conn.WithCompanyTx(ctx, nipt, func(tx pgx.Tx) error {
		return fn(&companyTx{q: tx})
	})
}

func (s *postgresCompanyStore) GetCompany(ctx context.Context, nipt string) (domain.Company, error) {
	return getCompany(ctx, s.conn.Pool, nipt)
}

func (s *postgresCompanyStore) ListShareholders(ctx context.Context, nipt string) ([]domain.Shareholder, error) {
	return listShareholders(ctx, s.conn.Pool, nipt)
}

func (s *postgresCompanyStore) ListRepresentatives(ctx context.Context, nipt string) ([]domain.Representative, error) {
	return listRepresentatives(ctx, s.conn.Pool, nipt)
}

func (s *postgresCompanyStore) ListCompanies(ctx context.Context, limit int, offset int) ([]domain.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.conn.Pool.Query(
		ctx,
		companySelectColumns+` FROM companies ORDER BY name LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []domain.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, company)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", err)
	}
	return companies, nil
}

// companyTx implements CompanyTx over one open pgx transaction.
type companyTx struct {
	q querier
}

func (t *companyTx) GetCompany(ctx context.Context, nipt string) (domain.Company, error) {
	return getCompany(ctx, t.q, nipt)
}

func (t *companyTx) ListShareholders(ctx context.Context, nipt string) ([]domain.Shareholder, error) {
	return listShareholders(ctx, t.q, nipt)
}

func (t *companyTx) ListRepresentatives(ctx context.Context, nipt string) ([]domain.Representative, error) {
	return listRepresentatives(ctx, t.q, nipt)
}

func (t *companyTx) CompanyExists(ctx context.Context, nipt string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE nipt = $1)`, nipt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check company existence: %w", err)
	}
	return exists, nil
}

func (t *companyTx) FindNIPTByName(ctx context.Context, name string) (string, error) {
	var nipt string
	err := t.q.QueryRow(ctx, `SELECT nipt FROM companies WHERE name = $1 LIMIT 1`, name).Scan(&nipt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to find company by name: %w", err)
	}
	return nipt, nil
}

// UpsertCompany inserts or updates the company's scalar fields. Empty or null
// incoming values never overwrite previously stored data.
func (t *companyTx) UpsertCompany(ctx context.Context, company domain.Company) error {
	_, err := t.q.Exec(
		ctx,
		`INSERT INTO companies
		   (nipt, name, name_latin, legal_form, status, activity_description,
		    registration_date, capital, city, address, raw_document, source_url,
		    last_scraped, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		 ON CONFLICT (nipt) DO UPDATE SET
		   name                 = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE companies.name END,
		   name_latin           = CASE WHEN EXCLUDED.name_latin <> '' THEN EXCLUDED.name_latin ELSE companies.name_latin END,
		   legal_form           = EXCLUDED.legal_form,
		   status               = EXCLUDED.status,
		   activity_description = CASE WHEN EXCLUDED.activity_description <> '' THEN EXCLUDED.activity_description ELSE companies.activity_description END,
		   registration_date    = COALESCE(EXCLUDED.registration_date, companies.registration_date),
		   capital              = COALESCE(EXCLUDED.capital, companies.capital),
		   city                 = CASE WHEN EXCLUDED.city <> '' THEN EXCLUDED.city ELSE companies.city END,
		   address              = CASE WHEN EXCLUDED.address <> '' THEN EXCLUDED.address ELSE companies.address END,
		   raw_document         = CASE WHEN EXCLUDED.raw_document <> '' THEN EXCLUDED.raw_document ELSE companies.raw_document END,
		   source_url           = CASE WHEN EXCLUDED.source_url <> '' THEN EXCLUDED.source_url ELSE companies.source_url END,
		   last_scraped         = EXCLUDED.last_scraped,
		   updated_at           = now()`,
		company.NIPT,
		company.Name,
		company.NameLatin,
		string(company.LegalForm),
		string(company.Status),
		company.ActivityDesc,
		company.RegistrationDate,
		company.Capital,
		company.City,
		company.Address,
		company.RawDocument,
		company.SourceURL,
		company.LastScraped,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
	}
	return nil
}

func (t *companyTx) ReplaceShareholders(ctx context.Context, nipt string, shareholders []domain.Shareholder) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM shareholders WHERE company_nipt = $1`, nipt); err != nil {
		return fmt.Errorf("failed to clear shareholders: %w", err)
	}
	for _, sh := range shareholders {
		_, err := t.q.Exec(
			ctx,
			`INSERT INTO shareholders (company_nipt, kind, name, ownership_pct, parent_nipt)
			 VALUES ($1, $2, $3, $4, $5)`,
			nipt,
			string(sh.Kind),
			sh.Name,
			sh.OwnershipPct,
			sh.ParentNIPT,
		)
		if err != nil {
			return fmt.Errorf("failed to insert shareholder: %w", err)
		}
	}
	return nil
}

func (t *companyTx) ReplaceRepresentatives(ctx context.Context, nipt string, reps []domain.Representative) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM representatives WHERE company_nipt = $1`, nipt); err != nil {
		return fmt.Errorf("failed to clear representatives: %w", err)
	}
	for _, rep := range reps {
		_, err := t.q.Exec(
			ctx,
			`INSERT INTO representatives (company_nipt, name, role) VALUES ($1, $2, $3)`,
			nipt,
			rep.Name,
			rep.Role,
		)
		if err != nil {
			return fmt.Errorf("failed to insert representative: %w", err)
		}
	}
	return nil
}

func (t *companyTx) InsertOwnershipChange(ctx context.Context, change domain.OwnershipChange) error {
	oldStakes, err := json.Marshal(change.OldStakes)
	if err != nil {
		return fmt.Errorf("failed to marshal old stakes: %w", err)
	}
	newStakes, err := json.Marshal(change.NewStakes)
	if err != nil {
		return fmt.Errorf("failed to marshal new stakes: %w", err)
	}
	oldReps, err := json.Marshal(change.OldReps)
	if err != nil {
		return fmt.Errorf("failed to marshal old representatives: %w", err)
	}
	newReps, err := json.Marshal(change.NewReps)
	if err != nil {
		return fmt.Errorf("failed to marshal new representatives: %w", err)
	}

	_, err = t.q.Exec(
		ctx,
		`INSERT INTO ownership_changes
		   (id, company_nipt, observed_at, description, old_stakes, new_stakes,
		    old_representatives, new_representatives, source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		change.ID,
		change.CompanyNIPT,
		change.ObservedAt,
		change.Description,
		oldStakes,
		newStakes,
		oldReps,
		newReps,
		change.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ownership change: %w", err)
	}
	return nil
}

const companySelectColumns = `SELECT nipt, name, name_latin, legal_form, status, activity_description,
	registration_date, capital, city, address, raw_document, source_url,
	last_scraped, created_at, updated_at`

func getCompany(ctx context.Context, q querier, nipt string) (domain.Company, error) {
	row := q.QueryRow(ctx, companySelectColumns+` FROM companies WHERE nipt = $1`, nipt)
	company, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Company{}, ErrNotFound
		}
		return domain.Company{}, err
	}
	return company, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (domain.Company, error) {
	var (
		company     domain.Company
		legalForm   string
		status      string
		regDate     *time.Time
		lastScraped *time.Time
	)
	err := row.Scan(
		&company.NIPT,
		&company.Name,
		&company.NameLatin,
		&legalForm,
		&status,
		&company.ActivityDesc,
		&regDate,
		&company.Capital,
		&company.City,
		&company.Address,
		&company.RawDocument,
		&company.SourceURL,
		&lastScraped,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Company{}, err
		}
		return domain.Company{}, fmt.Errorf("failed to scan company: %w", err)
	}

	company.LegalForm = domain.LegalForm(legalForm)
	company.Status = domain.CompanyStatus(status)
	company.RegistrationDate = regDate
	if lastScraped != nil {
		company.LastScraped = *lastScraped
	}
	return company, nil
}

func listShareholders(ctx context.Context, q querier, nipt string) ([]domain.Shareholder, error) {
	rows, err := q.Query(
		ctx,
		`SELECT company_nipt, kind, name, ownership_pct, parent_nipt, created_at
		 FROM shareholders
		 WHERE company_nipt = $1
		 ORDER BY id`,
		nipt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shareholders: %w", err)
	}
	defer rows.Close()

	var shareholders []domain.Shareholder
	for rows.Next() {
		var (
			sh   domain.Shareholder
			kind string
		)
		if err := rows.Scan(&sh.CompanyNIPT, &kind, &sh.Name, &sh.OwnershipPct, &sh.ParentNIPT, &sh.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shareholder: %w", err)
		}
		sh.Kind = domain.HolderKind(kind)
		shareholders = append(shareholders, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shareholders: %w", err)
	}
	return shareholders, nil
}

func listRepresentatives(ctx context.Context, q querier, nipt string) ([]domain.Representative, error) {
	rows, err := q.Query(
		ctx,
		`SELECT company_nipt, name, role, created_at
		 FROM representatives
		 WHERE company_nipt = $1
		 ORDER BY id`,
		nipt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list representatives: %w", err)
	}
	defer rows.Close()

	var reps []domain.Representative
	for rows.Next() {
		var rep domain.Representative
		if err := rows.Scan(&rep.CompanyNIPT, &rep.Name, &rep.Role, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan representative: %w", err)
		}
		reps = append(reps, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate representatives: %w", err)
	}
	return reps, nil
}
