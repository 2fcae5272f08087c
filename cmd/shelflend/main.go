package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"shelflend/internal/config"
	"shelflend/internal/core/domain/models"
	"shelflend/internal/database/bunstore"
	"shelflend/internal/feeds"
	"shelflend/internal/infrastructure/resilience"
	"shelflend/internal/infrastructure/server"
	"shelflend/internal/registry"
	"shelflend/internal/taskrec"
	"shelflend/internal/usecase/revoke"
	syncusecase "shelflend/internal/usecase/sync"
)

func main() {
	root := &cobra.Command{
		Use:           "shelflend",
		Short:         "Library lending engine: sync, borrow and revoke OPDS loans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), syncCmd(), revokeCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("[Error] %v", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log.Println("[System] Starting shelflend lending engine...")
			return server.New(cfg, nil).Run()
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local database with the account's loans feed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newTaskEnv()
			if err != nil {
				return err
			}
			defer env.close()

			task := syncusecase.NewTask(env.account, env.repo, env.registry, env.loader, env.cfg.SyncConcurrency)
			result := task.Call(cmd.Context())
			printSteps(result.Steps)
			if !result.Succeeded() {
				return fmt.Errorf("sync failed: %s", result.LastErrorCode)
			}
			fmt.Printf("synced %d, skipped %d, removed %d\n", result.Value.Synced, result.Value.Skipped, result.Value.Removed)
			return nil
		},
	}
}

func revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <book-id>",
		Short: "Revoke a single loan or hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newTaskEnv()
			if err != nil {
				return err
			}
			defer env.close()

			task := revoke.NewTask(env.account, models.BookID(args[0]), env.repo, env.registry, env.loader, nil, env.cfg.DRMTimeout)
			result := task.Call(cmd.Context())
			printSteps(result.Steps)
			if !result.Succeeded() {
				return fmt.Errorf("revocation failed: %s", result.LastErrorCode)
			}
			fmt.Printf("revoked %s\n", result.Value)
			return nil
		},
	}
}

// taskEnv is the shared wiring for one-shot commands: they open the database
// directly instead of going through a running server.
type taskEnv struct {
	cfg      *config.Config
	account  *models.Account
	repo     *bunstore.BunStore
	registry *registry.Registry
	loader   feeds.Loader
	db       *sql.DB
}

func newTaskEnv() (*taskEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(sqliteshim.ShimName, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", cfg.DatabasePath, err)
	}
	repo, err := bunstore.NewBunStore(db, sqlitedialect.New())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	breaker := resilience.NewBreaker(cfg.BreakerThreshold, cfg.BreakerReset)
	return &taskEnv{
		cfg:      cfg,
		account:  cfg.Account(),
		repo:     repo,
		registry: registry.New(),
		loader:   feeds.NewHTTPLoader(cfg.FeedTimeout, cfg.LogLevel, breaker),
		db:       db,
	}, nil
}

func (e *taskEnv) close() {
	if err := e.db.Close(); err != nil {
		log.Printf("[Warning] Failed to close database: %v", err)
	}
}

func printSteps(steps []taskrec.Step) {
	for _, step := range steps {
		switch res := step.Resolution.(type) {
		case taskrec.Succeeded:
			fmt.Fprintf(os.Stdout, "  ok   %s: %s\n", step.Description, res.Message)
		case taskrec.Failed:
			fmt.Fprintf(os.Stdout, "  FAIL %s: %s [%s]\n", step.Description, res.Message, res.ErrorCode)
		default:
			fmt.Fprintf(os.Stdout, "  ...  %s\n", step.Description)
		}
	}
}
