package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qkbintel/registry/internal/domain"
	"github.com/qkbintel/registry/internal/repository"
	"github.com/qkbintel/registry/internal/scraper"
)

// ChangeSource tags ledger entries produced by the scrape pipeline.
const ChangeSource = "qkb_scrape"

// Result summarizes one merge: whether the company row was created or
// updated, whether an ownership change was appended to the ledger, and the
// owner-text fragments the parser could not interpret.
type Result struct {
	Created        bool
	ChangeRecorded bool
	Unparsed       []string
}

// Reconciler merges freshly extracted detail records into stored state. Each
// merge runs as a single transaction: the prior ownership set is compared
// against the parsed one, a change record is appended when they differ, and
// the stored shareholder and representative sets are replaced wholesale.
type Reconciler struct {
	store repository.CompanyStore
	now   func() time.Time
}

func New(store repository.CompanyStore) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Merge parses the record's free-text blocks and reconciles the outcome with
// stored state. Either every effect of the merge is committed or none is; a
// failure mid-merge leaves both the current-state tables and the ledger
// untouched.
func (r *Reconciler) Merge(ctx context.Context, record *scraper.DetailRecord) (Result, error) {
	parsed := scraper.ParseOwnerBlock(record.OwnerText)
	if len(parsed.Shareholders) == 0 && len(record.ListedShareholders) > 0 {
		parsed = scraper.ParseShareholderList(record.ListedShareholders)
	}
	repCandidates := scraper.ParseRepresentatives(record.AdminText, record.BoardText)

	result := Result{Unparsed: parsed.Unparsed}
	observedAt := r.now()

	err := r.store.WithCompanyTx(ctx, record.NIPT, func(tx repository.CompanyTx) error {
		existing, err := tx.GetCompany(ctx, record.NIPT)
		created := false
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("load company %s: %w", record.NIPT, err)
			}
			created = true
		}

		var oldShareholders []domain.Shareholder
		var oldReps []domain.Representative
		if !created {
			if oldShareholders, err = tx.ListShareholders(ctx, record.NIPT); err != nil {
				return fmt.Errorf("load shareholders %s: %w", record.NIPT, err)
			}
			if oldReps, err = tx.ListRepresentatives(ctx, record.NIPT); err != nil {
				return fmt.Errorf("load representatives %s: %w", record.NIPT, err)
			}
		}

		newShareholders, err := r.buildShareholders(ctx, tx, record.NIPT, parsed.Shareholders, observedAt)
		if err != nil {
			return err
		}
		newReps := buildRepresentatives(record.NIPT, repCandidates, observedAt)

		// An empty parse against a populated set keeps the stored rows:
		// a degraded source page (placeholder owner text, blank admin
		// cell) is not a record of every holder leaving.
		if !created {
			if len(newShareholders) == 0 && len(oldShareholders) > 0 {
				newShareholders = oldShareholders
			}
			if len(newReps) == 0 && len(oldReps) > 0 {
				newReps = oldReps
			}
		}

		oldStakes := domain.SnapshotStakes(oldShareholders)
		newStakes := domain.SnapshotStakes(newShareholders)
		oldRepSnaps := domain.SnapshotRepresentatives(oldReps)
		newRepSnaps := domain.SnapshotRepresentatives(newReps)

		// First observation establishes a baseline without a ledger entry.
		if !created && (!domain.EqualStakeSets(oldStakes, newStakes) ||
			!domain.EqualRepresentativeSets(oldRepSnaps, newRepSnaps)) {
			change := domain.OwnershipChange{
				ID:          uuid.New(),
				CompanyNIPT: record.NIPT,
				ObservedAt:  observedAt,
				Description: changeDescription(oldStakes, newStakes, oldRepSnaps, newRepSnaps),
				OldStakes:   oldStakes,
				NewStakes:   newStakes,
				OldReps:     oldRepSnaps,
				NewReps:     newRepSnaps,
				Source:      ChangeSource,
				CreatedAt:   observedAt,
			}
			if err := tx.InsertOwnershipChange(ctx, change); err != nil {
				return fmt.Errorf("append ownership change %s: %w", record.NIPT, err)
			}
			result.ChangeRecorded = true
		}

		if err := tx.UpsertCompany(ctx, buildCompany(record, existing, created, observedAt)); err != nil {
			return fmt.Errorf("upsert company %s: %w", record.NIPT, err)
		}
		if err := tx.ReplaceShareholders(ctx, record.NIPT, newShareholders); err != nil {
			return fmt.Errorf("replace shareholders %s: %w", record.NIPT, err)
		}
		if err := tx.ReplaceRepresentatives(ctx, record.NIPT, newReps); err != nil {
			return fmt.Errorf("replace representatives %s: %w", record.NIPT, err)
		}

		result.Created = created
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// buildShareholders converts parsed candidates into rows, deduplicating by
// structural identity and linking corporate parents only on an exact match
// against already stored companies. No fuzzy matching: a near-miss name stays
// unlinked rather than linking the wrong company.
func (r *Reconciler) buildShareholders(ctx context.Context, tx repository.CompanyTx, nipt string, candidates []scraper.Candidate, observedAt time.Time) ([]domain.Shareholder, error) {
	seen := make(map[string]struct{}, len(candidates))
	rows := make([]domain.Shareholder, 0, len(candidates))
	for _, cand := range candidates {
		key := snapshotKey(domain.StakeSnapshot{Name: cand.Name, Kind: cand.Kind, Pct: cand.Pct})
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		row := domain.Shareholder{
			CompanyNIPT:  nipt,
			Kind:         cand.Kind,
			Name:         cand.Name,
			OwnershipPct: cand.Pct,
			CreatedAt:    observedAt,
		}
		if cand.Kind == domain.HolderCompany {
			parent, err := r.linkParent(ctx, tx, cand)
			if err != nil {
				return nil, err
			}
			row.ParentNIPT = parent
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *Reconciler) linkParent(ctx context.Context, tx repository.CompanyTx, cand scraper.Candidate) (string, error) {
	if cand.ParentNIPT != "" {
		exists, err := tx.CompanyExists(ctx, cand.ParentNIPT)
		if err != nil {
			return "", fmt.Errorf("check parent %s: %w", cand.ParentNIPT, err)
		}
		if exists {
			return cand.ParentNIPT, nil
		}
		return "", nil
	}
	nipt, err := tx.FindNIPTByName(ctx, cand.Name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("find parent by name %q: %w", cand.Name, err)
	}
	return nipt, nil
}

func buildRepresentatives(nipt string, candidates []scraper.RepCandidate, observedAt time.Time) []domain.Representative {
	seen := make(map[string]struct{}, len(candidates))
	rows := make([]domain.Representative, 0, len(candidates))
	for _, cand := range candidates {
		key := cand.Name + "|" + cand.Role
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, domain.Representative{
			CompanyNIPT: nipt,
			Name:        cand.Name,
			Role:        cand.Role,
			CreatedAt:   observedAt,
		})
	}
	return rows
}

func buildCompany(record *scraper.DetailRecord, existing domain.Company, created bool, observedAt time.Time) domain.Company {
	company := domain.Company{
		NIPT:             record.NIPT,
		Name:             record.Name,
		LegalForm:        record.LegalForm,
		Status:           record.Status,
		ActivityDesc:     record.ActivityDesc,
		RegistrationDate: record.RegistrationDate,
		Capital:          record.Capital,
		City:             record.City,
		Address:          record.Address,
		RawDocument:      record.RawHTML,
		SourceURL:        record.SourceURL,
		LastScraped:      observedAt,
		UpdatedAt:        observedAt,
	}
	if created {
		company.CreatedAt = observedAt
	} else {
		company.CreatedAt = existing.CreatedAt
	}
	return company
}

func snapshotKey(s domain.StakeSnapshot) string {
	key := s.Name + "|" + string(s.Kind)
	if s.Pct != nil {
		key += "|" + fmt.Sprintf("%g", *s.Pct)
	}
	return key
}

// changeDescription renders a short human-readable summary of what moved,
// listing holders and representatives that entered or left the sets.
func changeDescription(oldStakes, newStakes []domain.StakeSnapshot, oldReps, newReps []domain.RepresentativeSnapshot) string {
	var parts []string

	addedHolders, removedHolders := diffNames(stakeNames(oldStakes), stakeNames(newStakes))
	if len(addedHolders) > 0 {
		parts = append(parts, "shareholders added: "+strings.Join(addedHolders, ", "))
	}
	if len(removedHolders) > 0 {
		parts = append(parts, "shareholders removed: "+strings.Join(removedHolders, ", "))
	}
	if len(addedHolders) == 0 && len(removedHolders) == 0 && !domain.EqualStakeSets(oldStakes, newStakes) {
		parts = append(parts, "ownership percentages changed")
	}

	addedReps, removedReps := diffNames(repNames(oldReps), repNames(newReps))
	if len(addedReps) > 0 {
		parts = append(parts, "representatives added: "+strings.Join(addedReps, ", "))
	}
	if len(removedReps) > 0 {
		parts = append(parts, "representatives removed: "+strings.Join(removedReps, ", "))
	}

	if len(parts) == 0 {
		parts = append(parts, "ownership structure changed")
	}
	return strings.Join(parts, "; ")
}

func stakeNames(stakes []domain.StakeSnapshot) map[string]struct{} {
	names := make(map[string]struct{}, len(stakes))
	for _, s := range stakes {
		names[s.Name] = struct{}{}
	}
	return names
}

func repNames(reps []domain.RepresentativeSnapshot) map[string]struct{} {
	names := make(map[string]struct{}, len(reps))
	for _, r := range reps {
		names[r.Name] = struct{}{}
	}
	return names
}

func diffNames(old, current map[string]struct{}) (added, removed []string) {
	for name := range current {
		if _, ok := old[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range old {
		if _, ok := current[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
