package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/qkbintel/registry/internal/domain"
)

// MemoryCompanyStore is an in-memory CompanyStore with the same transactional
// contract as the PostgreSQL store: mutations inside WithCompanyTx become
// visible only when the callback succeeds. Used in tests and useful for
// running the pipeline without a database.
type MemoryCompanyStore struct {
	mu sync.Mutex

	companies       map[string]domain.Company
	shareholders    map[string][]domain.Shareholder
	representatives map[string][]domain.Representative
	changes         []domain.OwnershipChange

	// FailNext, when set, makes the named mutation fail once. Supports
	// atomicity tests that interrupt a merge mid-way.
	FailNext string
}

// NewMemoryCompanyStore builds an empty in-memory store.
func NewMemoryCompanyStore() *MemoryCompanyStore {
	return &MemoryCompanyStore{
		companies:       make(map[string]domain.Company),
		shareholders:    make(map[string][]domain.Shareholder),
		representatives: make(map[string][]domain.Representative),
	}
}

// WithCompanyTx runs fn against a staged copy of the store and commits the
// staged state only on success. The store-wide mutex serializes transactions,
// which subsumes the per-identifier serialization requirement.
func (s *MemoryCompanyStore) WithCompanyTx(ctx context.Context, nipt string, fn func(CompanyTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, staged: s.cloneLocked()}
	if err := fn(tx); err != nil {
		return err
	}

	s.companies = tx.staged.companies
	s.shareholders = tx.staged.shareholders
	s.representatives = tx.staged.representatives
	s.changes = tx.staged.changes
	return nil
}

func (s *MemoryCompanyStore) GetCompany(ctx context.Context, nipt string) (domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	company, ok := s.companies[nipt]
	if !ok {
		return domain.Company{}, ErrNotFound
	}
	return company, nil
}

func (s *MemoryCompanyStore) ListShareholders(ctx context.Context, nipt string) ([]domain.Shareholder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Shareholder(nil), s.shareholders[nipt]...), nil
}

func (s *MemoryCompanyStore) ListRepresentatives(ctx context.Context, nipt string) ([]domain.Representative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Representative(nil), s.representatives[nipt]...), nil
}

func (s *MemoryCompanyStore) ListCompanies(ctx context.Context, limit int, offset int) ([]domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nipts := make([]string, 0, len(s.companies))
	for nipt := range s.companies {
		nipts = append(nipts, nipt)
	}
	sort.Strings(nipts)

	var companies []domain.Company
	for i, nipt := range nipts {
		if i < offset {
			continue
		}
		if limit > 0 && len(companies) >= limit {
			break
		}
		companies = append(companies, s.companies[nipt])
	}
	return companies, nil
}

// Changes returns a copy of the recorded change ledger, newest last.
func (s *MemoryCompanyStore) Changes() []domain.OwnershipChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OwnershipChange(nil), s.changes...)
}

type storeState struct {
	companies       map[string]domain.Company
	shareholders    map[string][]domain.Shareholder
	representatives map[string][]domain.Representative
	changes         []domain.OwnershipChange
}

func (s *MemoryCompanyStore) cloneLocked() storeState {
	state := storeState{
		companies:       make(map[string]domain.Company, len(s.companies)),
		shareholders:    make(map[string][]domain.Shareholder, len(s.shareholders)),
		representatives: make(map[string][]domain.Representative, len(s.representatives)),
		changes:         append([]domain.OwnershipChange(nil), s.changes...),
	}
	for nipt, company := range s.companies {
		state.companies[nipt] = company
	}
	for nipt, shs := range s.shareholders {
		state.shareholders[nipt] = append([]domain.Shareholder(nil), shs...)
	}
	for nipt, reps := range s.representatives {
		state.representatives[nipt] = append([]domain.Representative(nil), reps...)
	}
	return state
}

type memoryTx struct {
	store  *MemoryCompanyStore
	staged storeState
}

func (t *memoryTx) failInjected(method string) error {
	if t.store.FailNext == method {
		t.store.FailNext = ""
		return fmt.Errorf("injected failure in %s", method)
	}
	return nil
}

func (t *memoryTx) GetCompany(ctx context.Context, nipt string) (domain.Company, error) {
	company, ok := t.staged.companies[nipt]
	if !ok {
		return domain.Company{}, ErrNotFound
	}
	return company, nil
}

func (t *memoryTx) ListShareholders(ctx context.Context, nipt string) ([]domain.Shareholder, error) {
	return append([]domain.Shareholder(nil), t.staged.shareholders[nipt]...), nil
}

func (t *memoryTx) ListRepresentatives(ctx context.Context, nipt string) ([]domain.Representative, error) {
	return append([]domain.Representative(nil), t.staged.representatives[nipt]...), nil
}

func (t *memoryTx) CompanyExists(ctx context.Context, nipt string) (bool, error) {
	_, ok := t.staged.companies[nipt]
	return ok, nil
}

func (t *memoryTx) FindNIPTByName(ctx context.Context, name string) (string, error) {
	for nipt, company := range t.staged.companies {
		if company.Name == name {
			return nipt, nil
		}
	}
	return "", ErrNotFound
}

func (t *memoryTx) UpsertCompany(ctx context.Context, company domain.Company) error {
	if err := t.failInjected("UpsertCompany"); err != nil {
		return err
	}
	if existing, ok := t.staged.companies[company.NIPT]; ok {
		// Preserve stored values that the new parse does not provide.
		if company.Name == "" {
			company.Name = existing.Name
		}
		if company.NameLatin == "" {
			company.NameLatin = existing.NameLatin
		}
		if company.ActivityDesc == "" {
			company.ActivityDesc = existing.ActivityDesc
		}
		if company.RegistrationDate == nil {
			company.RegistrationDate = existing.RegistrationDate
		}
		if company.Capital == nil {
			company.Capital = existing.Capital
		}
		if company.City == "" {
			company.City = existing.City
		}
		if company.Address == "" {
			company.Address = existing.Address
		}
		if company.RawDocument == "" {
			company.RawDocument = existing.RawDocument
		}
		if company.SourceURL == "" {
			company.SourceURL = existing.SourceURL
		}
		company.CreatedAt = existing.CreatedAt
	}
	t.staged.companies[company.NIPT] = company
	return nil
}

func (t *memoryTx) ReplaceShareholders(ctx context.Context, nipt string, shareholders []domain.Shareholder) error {
	if err := t.failInjected("ReplaceShareholders"); err != nil {
		return err
	}
	t.staged.shareholders[nipt] = append([]domain.Shareholder(nil), shareholders...)
	return nil
}

func (t *memoryTx) ReplaceRepresentatives(ctx context.Context, nipt string, reps []domain.Representative) error {
	if err := t.failInjected("ReplaceRepresentatives"); err != nil {
		return err
	}
	t.staged.representatives[nipt] = append([]domain.Representative(nil), reps...)
	return nil
}

func (t *memoryTx) InsertOwnershipChange(ctx context.Context, change domain.OwnershipChange) error {
	if err := t.failInjected("InsertOwnershipChange"); err != nil {
		return err
	}
	t.staged.changes = append(t.staged.changes, change)
	return nil
}
