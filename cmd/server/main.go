package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/qkbintel/registry/internal/config"
	"github.com/qkbintel/registry/internal/db"
	"github.com/qkbintel/registry/internal/export"
	"github.com/qkbintel/registry/internal/ingest"
	"github.com/qkbintel/registry/internal/middleware"
	"github.com/qkbintel/registry/internal/reconcile"
	"github.com/qkbintel/registry/internal/repository"
	"github.com/qkbintel/registry/internal/scraper"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	companyStore := repository.NewCompanyStore(conn)
	changeRepo := repository.NewChangeRepository(conn.Pool)
	runRepo := repository.NewRunRepository(conn.Pool)

	// Create services
	client := scraper.NewClient(cfg.Scraper)
	reconciler := reconcile.New(companyStore)
	ingestService := ingest.NewService(client, reconciler, companyStore, changeRepo, runRepo, cfg.Scraper)
	exportService := export.NewService(companyStore, changeRepo)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	// Exact export paths win over the /api/ subtree.
	exportHandler := export.NewHTTPHandler(exportService)
	mux.Handle("/api/changes/export", exportHandler)
	mux.Handle("/api/companies/export", exportHandler)
	mux.Handle("/api/", ingest.NewHTTPHandler(ingestService, companyStore, changeRepo, runRepo))

	handler := corsHandler.Handler(middleware.LoggingMiddleware(mux))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting registry API on %s", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
