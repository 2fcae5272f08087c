// Package server boots the lending engine: database, registry, feed loader
// and the HTTP API, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"shelflend/internal/config"
	"shelflend/internal/core/domain/models"
	"shelflend/internal/database"
	"shelflend/internal/database/bunstore"
	"shelflend/internal/drm"
	"shelflend/internal/feeds"
	"shelflend/internal/infrastructure/resilience"
	httpserver "shelflend/internal/interface/http"
	"shelflend/internal/registry"
	syncusecase "shelflend/internal/usecase/sync"
)

type Server struct {
	cfg        *config.Config
	connector  drm.Connector // nil when the build carries no DRM support
	httpServer *http.Server
	dbConn     *sql.DB
}

func New(cfg *config.Config, connector drm.Connector) *Server {
	return &Server{
		cfg:       cfg,
		connector: connector,
	}
}

// Run blocks until a shutdown signal arrives.
func (s *Server) Run() error {
	ctx := context.Background()
	account := s.cfg.Account()

	var err error
	s.dbConn, err = sql.Open(sqliteshim.ShimName, s.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database at %s: %w", s.cfg.DatabasePath, err)
	}
	defer func() {
		if closeErr := s.dbConn.Close(); closeErr != nil {
			log.Printf("[Warning] Failed to close database: %v", closeErr)
		}
	}()

	repo, err := bunstore.NewBunStore(s.dbConn, sqlitedialect.New())
	if err != nil {
		return fmt.Errorf("failed to initialize book store: %w", err)
	}

	reg := registry.New()
	if err := hydrateRegistry(ctx, repo, reg, account.ID); err != nil {
		return err
	}

	breaker := resilience.NewBreaker(s.cfg.BreakerThreshold, s.cfg.BreakerReset)
	loader := feeds.NewHTTPLoader(s.cfg.FeedTimeout, s.cfg.LogLevel, breaker)

	if s.cfg.SyncOnStart {
		go func() {
			log.Println("[System] Running initial loans sync...")
			result := syncusecase.NewTask(account, repo, reg, loader, s.cfg.SyncConcurrency).Call(ctx)
			if !result.Succeeded() {
				log.Printf("[Warning] Initial sync failed: %s", result.LastErrorCode)
				return
			}
			log.Printf("[System] Initial sync complete: %d synced, %d removed.", result.Value.Synced, result.Value.Removed)
		}()
	}

	apiServer := httpserver.NewServer(account, repo, reg, loader, s.connector, s.cfg.DRMTimeout, s.cfg.SyncConcurrency)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.APIPort),
		Handler: apiServer.RegisterRoutes(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("[System] Starting REST API server on :%d", s.cfg.APIPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Error] HTTP server failed: %v", err)
		}
	}()

	<-stop
	log.Println("[System] Shutdown signal received. Draining connections...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Error] HTTP shutdown error: %v", err)
	}

	log.Println("[System] Server stopped gracefully.")
	return nil
}

// hydrateRegistry seeds the registry from the persisted book records so the
// API serves the last known state before the first sync completes.
func hydrateRegistry(ctx context.Context, repo database.BookRepository, reg *registry.Registry, accountID string) error {
	records, err := repo.List(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load persisted books: %w", err)
	}
	for _, rec := range records {
		reg.Update(rec.Book(), models.StatusFromAvailability(rec.Availability()))
	}
	log.Printf("[System] Restored %d books from the local database.", len(records))
	return nil
}
