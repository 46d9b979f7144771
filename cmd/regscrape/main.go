package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qkbintel/registry/internal/config"
	"github.com/qkbintel/registry/internal/db"
	"github.com/qkbintel/registry/internal/ingest"
	"github.com/qkbintel/registry/internal/reconcile"
	"github.com/qkbintel/registry/internal/repository"
	"github.com/qkbintel/registry/internal/scraper"
)

var (
	configPath  string
	categories  []string
	limit       int
	concurrency int
	delay       time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "regscrape",
		Short: "Company registry scraper and change tracker",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a bulk ingestion pass over the registry listings",
		RunE:  runBulk,
	}
	runCmd.Flags().StringSliceVar(&categories, "categories", nil, "listing categories to scan (default: all)")
	runCmd.Flags().IntVar(&limit, "limit", 0, "cap the number of companies processed")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of parallel fetch workers")
	runCmd.Flags().DurationVar(&delay, "delay", 0, "pause between requests per worker")

	fetchCmd := &cobra.Command{
		Use:   "fetch <nipt>",
		Short: "Fetch and store a single company by its NIPT",
		Args:  cobra.ExactArgs(1),
		RunE:  fetchOne,
	}

	root.AddCommand(runCmd, fetchCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildService(ctx context.Context) (*ingest.Service, *db.Connection, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if delay > 0 {
		cfg.Scraper.RequestDelay = delay
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	companyStore := repository.NewCompanyStore(conn)
	changeRepo := repository.NewChangeRepository(conn.Pool)
	runRepo := repository.NewRunRepository(conn.Pool)

	service := ingest.NewService(
		scraper.NewClient(cfg.Scraper),
		reconcile.New(companyStore),
		companyStore,
		changeRepo,
		runRepo,
		cfg.Scraper,
	)
	return service, conn, nil
}

func runBulk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, conn, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	run, err := service.RunBulk(ctx, ingest.RunOptions{
		Categories:  categories,
		Limit:       limit,
		Concurrency: concurrency,
	})
	if err != nil {
		return err
	}

	log.Printf("run %s: processed=%d created=%d updated=%d failed=%d unparsed=%d",
		run.ID, run.Processed, run.Created, run.Updated, run.Failed, run.UnparsedFragments)

	changed, err := service.ChangedIdentifiers(ctx, run.ID)
	if err != nil {
		return err
	}
	for _, nipt := range changed {
		fmt.Println(nipt)
	}
	return nil
}

func fetchOne(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	service, conn, err := buildService(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	company, err := service.EnsureFresh(ctx, args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(company)
}
