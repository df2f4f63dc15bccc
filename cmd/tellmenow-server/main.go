// Package main provides the HTTP server for TellMeNow.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/tellmenow/internal/config"
	"github.com/raphaelgruber/tellmenow/internal/db"
	"github.com/raphaelgruber/tellmenow/internal/llm"
	"github.com/raphaelgruber/tellmenow/internal/metrics"
	"github.com/raphaelgruber/tellmenow/internal/pgstore"
	"github.com/raphaelgruber/tellmenow/internal/server"
	"github.com/raphaelgruber/tellmenow/internal/service"
	"github.com/raphaelgruber/tellmenow/internal/skillgen"
	"github.com/raphaelgruber/tellmenow/internal/skills"
	"github.com/raphaelgruber/tellmenow/internal/store"
	"github.com/raphaelgruber/tellmenow/internal/tools"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("tellmenow-server starting",
		"version", server.Version,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *wipeDB || os.Getenv("TELLMENOW_WIPE_DB") == "true"); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, wipe bool) error {
	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := openStore(setupCtx, cfg, logger, wipe)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing store")
		if err := st.Close(context.Background()); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	mc := metrics.NewCollector()

	model, err := llm.NewModel(setupCtx, cfg, mc)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	logger.Info("llm initialized", "model", model.Model())

	registry, err := skills.NewRegistry(st)
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}
	toolbox := tools.Default(cfg)
	logger.Info("tools registered", "tools", toolbox.Names())

	coord := service.NewCoordinator(service.CoordinatorConfig{
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		StaleAfter:   cfg.StaleAfter,
	}, mc)
	pipeline := service.NewPipeline(st, registry, toolbox, model, cfg.MaxToolTurns, mc)

	srv := server.New(server.Deps{
		Jobs:    service.NewJobService(st, coord, pipeline),
		Skills:  service.NewSkillService(st, coord, skillgen.New(model), mc),
		Catalog: registry,
		Metrics: mc,
	}, cfg.CORSOrigin, logger)

	err = srv.Run(ctx, ":"+cfg.Port)

	// Detached pipelines keep writing to the store; let them finish first.
	logger.Info("waiting for running pipelines")
	coord.Wait()
	return err
}

// wiper is implemented by the database-backed stores.
type wiper interface {
	WipeData(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, wipe bool) (store.Store, error) {
	var st store.Store
	switch cfg.StoreBackend {
	case config.StoreSurreal:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		st = client
	case config.StorePostgres:
		pg, err := pgstore.New(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pg.InitSchema(ctx); err != nil {
			_ = pg.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		st = pg
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		st = store.NewMemory()
	}

	if wipe {
		if w, ok := st.(wiper); ok {
			if err := w.WipeData(ctx); err != nil {
				_ = st.Close(ctx)
				return nil, fmt.Errorf("wipe database: %w", err)
			}
		}
	}
	return st, nil
}
