package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/qkbintel/registry/internal/config"
	"github.com/qkbintel/registry/internal/domain"
	"github.com/qkbintel/registry/internal/reconcile"
	"github.com/qkbintel/registry/internal/repository"
	"github.com/qkbintel/registry/internal/scraper"
)

var (
	// ErrInvalidNIPT rejects identifiers that do not match the registry
	// number format before any network traffic happens.
	ErrInvalidNIPT = errors.New("invalid NIPT")

	// ErrUnavailable means the source could not be reached and no stored
	// copy of the company exists to fall back on.
	ErrUnavailable = errors.New("company unavailable")
)

// Item errors stored on a run record are capped so a badly broken run does
// not grow the record without bound. The failure counter keeps the true total.
const maxRecordedErrors = 200

const progressInterval = 50

// Fetcher is the source-side dependency of the coordinator. *scraper.Client
// implements it; tests substitute a stub.
type Fetcher interface {
	CollectNIPTs(ctx context.Context, categories []string) ([]string, error)
	FetchDetail(ctx context.Context, nipt string) (string, string, error)
	Delay() time.Duration
}

// Merger reconciles one extracted record with stored state.
type Merger interface {
	Merge(ctx context.Context, record *scraper.DetailRecord) (reconcile.Result, error)
}

// RunOptions narrows a bulk run. Zero values mean "use configured defaults"
// for concurrency and "no cap" for the limit.
type RunOptions struct {
	Categories  []string
	Limit       int
	Concurrency int
}

// Service coordinates ingestion runs: identifier collection, bounded-parallel
// fetching, and per-item reconciliation with failure isolation.
type Service struct {
	fetcher Fetcher
	merger  Merger
	store   repository.CompanyStore
	changes repository.ChangeRepository
	runs    repository.RunRepository
	cfg     config.Scraper
}

func NewService(fetcher Fetcher, merger Merger, store repository.CompanyStore, changes repository.ChangeRepository, runs repository.RunRepository, cfg config.Scraper) *Service {
	return &Service{
		fetcher: fetcher,
		merger:  merger,
		store:   store,
		changes: changes,
		runs:    runs,
		cfg:     cfg,
	}
}

// RunBulk executes one ingestion pass over the listing categories. A run
// record is created up front, updated as the run progresses, and finalized
// when the run ends for any reason. Individual item failures are recorded and
// skipped; only identifier collection failing entirely fails the run.
func (s *Service) RunBulk(ctx context.Context, opts RunOptions) (domain.ScrapeRun, error) {
	run := domain.NewScrapeRun()
	if err := s.runs.Create(ctx, run); err != nil {
		return run, fmt.Errorf("create run record: %w", err)
	}
	return s.execute(ctx, run, opts)
}

// StartRun creates the run record and executes the pass in the background,
// returning the record immediately so callers can poll it.
func (s *Service) StartRun(ctx context.Context, opts RunOptions) (domain.ScrapeRun, error) {
	run := domain.NewScrapeRun()
	if err := s.runs.Create(ctx, run); err != nil {
		return run, fmt.Errorf("create run record: %w", err)
	}
	go func() {
		if _, err := s.execute(context.Background(), run, opts); err != nil {
			log.Printf("[INGEST] run %s: %v", run.ID, err)
		}
	}()
	return run, nil
}

func (s *Service) execute(ctx context.Context, run domain.ScrapeRun, opts RunOptions) (domain.ScrapeRun, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	nipts, err := s.fetcher.CollectNIPTs(ctx, opts.Categories)
	if err != nil {
		run.Status = domain.RunFailed
		run.Errors = append(run.Errors, domain.ItemError{Stage: "collect", Message: err.Error()})
		s.finalize(&run)
		return run, fmt.Errorf("collect identifiers: %w", err)
	}
	if opts.Limit > 0 && len(nipts) > opts.Limit {
		nipts = nipts[:opts.Limit]
	}
	log.Printf("[INGEST] run %s: %d identifiers to process", run.ID, len(nipts))

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, nipt := range nipts {
		nipt := nipt
		g.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			result, unparsed, itemErr := s.processOne(groupCtx, nipt)

			mu.Lock()
			run.Processed++
			run.UnparsedFragments += unparsed
			if itemErr != nil {
				run.Failed++
				if len(run.Errors) < maxRecordedErrors {
					run.Errors = append(run.Errors, *itemErr)
				}
			} else if result.Created {
				run.Created++
			} else {
				run.Updated++
			}
			processed := run.Processed
			snapshot := run
			mu.Unlock()

			if processed%progressInterval == 0 {
				log.Printf("[INGEST] run %s: %d/%d processed (%d created, %d updated, %d failed)",
					run.ID, processed, len(nipts), snapshot.Created, snapshot.Updated, snapshot.Failed)
				if err := s.runs.Update(context.WithoutCancel(groupCtx), snapshot); err != nil {
					log.Printf("[INGEST] run %s: progress update failed: %v", run.ID, err)
				}
			}

			// Politeness pause before this worker takes its next item.
			sleepCtx(groupCtx, s.fetcher.Delay())
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		run.Status = domain.RunFailed
		run.Errors = append(run.Errors, domain.ItemError{Stage: "run", Message: err.Error()})
	} else {
		run.Status = domain.RunCompleted
	}
	s.finalize(&run)
	log.Printf("[INGEST] run %s finished: status=%s processed=%d created=%d updated=%d failed=%d unparsed=%d",
		run.ID, run.Status, run.Processed, run.Created, run.Updated, run.Failed, run.UnparsedFragments)
	return run, nil
}

// processOne fetches, extracts and merges a single identifier. A failure at
// any stage is returned as an item error so the caller can record it without
// aborting the run.
func (s *Service) processOne(ctx context.Context, nipt string) (reconcile.Result, int, *domain.ItemError) {
	if s.cfg.PerItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PerItemTimeout)
		defer cancel()
	}

	html, sourceURL, err := s.fetcher.FetchDetail(ctx, nipt)
	if err != nil {
		return reconcile.Result{}, 0, &domain.ItemError{NIPT: nipt, Stage: "fetch", Message: err.Error()}
	}

	record, err := scraper.Extract(nipt, sourceURL, html)
	if err != nil {
		return reconcile.Result{}, 0, &domain.ItemError{NIPT: nipt, Stage: "extract", Message: err.Error()}
	}

	result, err := s.merger.Merge(ctx, &record)
	if err != nil {
		return reconcile.Result{}, 0, &domain.ItemError{NIPT: nipt, Stage: "store", Message: err.Error()}
	}
	if result.ChangeRecorded {
		log.Printf("[INGEST] ownership change detected for %s", nipt)
	}
	return result, len(result.Unparsed), nil
}

// EnsureFresh serves a single company, refreshing it from the source first.
// When the source is unreachable the stored copy is served instead; only a
// company that is both unreachable and unknown yields ErrUnavailable.
func (s *Service) EnsureFresh(ctx context.Context, rawNIPT string) (domain.Company, error) {
	nipt := domain.NormalizeNIPT(rawNIPT)
	if !domain.ValidNIPT(nipt) {
		return domain.Company{}, fmt.Errorf("%w: %q", ErrInvalidNIPT, rawNIPT)
	}

	html, sourceURL, err := s.fetcher.FetchDetail(ctx, nipt)
	if err != nil {
		return s.fallbackStored(ctx, nipt, err)
	}

	record, err := scraper.Extract(nipt, sourceURL, html)
	if err != nil {
		// A structurally unreadable page is treated like an unreachable
		// one: serve what we have.
		return s.fallbackStored(ctx, nipt, err)
	}

	if _, err := s.merger.Merge(ctx, &record); err != nil {
		return domain.Company{}, fmt.Errorf("merge %s: %w", nipt, err)
	}
	return s.store.GetCompany(ctx, nipt)
}

func (s *Service) fallbackStored(ctx context.Context, nipt string, cause error) (domain.Company, error) {
	company, err := s.store.GetCompany(ctx, nipt)
	if err == nil {
		log.Printf("[INGEST] serving stored copy of %s, refresh failed: %v", nipt, cause)
		return company, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Company{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, nipt, cause)
	}
	return domain.Company{}, err
}

// ChangedIdentifiers lists the distinct identifiers that had ownership
// changes recorded during the given run's time window.
func (s *Service) ChangedIdentifiers(ctx context.Context, runID uuid.UUID) ([]string, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	to := time.Now()
	if run.CompletedAt != nil {
		to = *run.CompletedAt
	}

	changes, err := s.changes.ListBetween(ctx, run.StartedAt, to)
	if err != nil {
		return nil, fmt.Errorf("list changes for run %s: %w", runID, err)
	}

	seen := make(map[string]struct{}, len(changes))
	nipts := make([]string, 0, len(changes))
	for _, change := range changes {
		if _, ok := seen[change.CompanyNIPT]; ok {
			continue
		}
		seen[change.CompanyNIPT] = struct{}{}
		nipts = append(nipts, change.CompanyNIPT)
	}
	sort.Strings(nipts)
	return nipts, nil
}

// finalize stamps the completion time and persists the terminal run state.
// Uses a fresh context so a cancelled run still records its outcome.
func (s *Service) finalize(run *domain.ScrapeRun) {
	now := time.Now()
	run.CompletedAt = &now

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.runs.Update(ctx, *run); err != nil {
		log.Printf("[INGEST] run %s: failed to persist final state: %v", run.ID, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
