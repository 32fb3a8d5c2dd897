// Package serve implements the serve command: it wires the store, the
// scheduling engine, the retention sweeper and the HTTP API together and
// runs them until interrupted.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/webcron/internal/api"
	"github.com/jonesrussell/webcron/internal/config"
	"github.com/jonesrussell/webcron/internal/database"
	"github.com/jonesrussell/webcron/internal/executor"
	"github.com/jonesrussell/webcron/internal/logger"
	"github.com/jonesrussell/webcron/internal/schedule"
	"github.com/jonesrussell/webcron/internal/scheduler"
)

// Command returns the serve command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Logger.Level,
		Development: cfg.Logger.Development,
		Encoding:    cfg.Logger.Encoding,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log.Info("Starting webcron",
		"db_type", cfg.Database.Type,
		"timezone", cfg.Timezone,
		"port", cfg.Port)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	jobs := database.NewJobRepository(db)
	logs := database.NewLogRepository(db)
	tags := database.NewTagRepository(db)

	parser := schedule.NewParser(cfg.Location())
	invoker := executor.NewInvoker(log.WithComponent("invoker"))
	writer := scheduler.NewLogWriter(log.WithComponent("logwriter"), logs)

	engine := scheduler.New(log.WithComponent("scheduler"), jobs, writer, invoker, parser)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	sweeper := scheduler.NewSweeper(log.WithComponent("sweeper"), logs, scheduler.SweeperConfig{
		RetentionDays: cfg.Retention.Days,
		Enabled:       cfg.Retention.CleanupEnabled,
		Location:      cfg.Location(),
	})
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	server := api.NewServer(
		log.WithComponent("api"),
		jobs, logs, tags, engine, sweeper, parser,
		cfg.Addr(),
	)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			log.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	}

	// Stop accepting fires first, then close the HTTP surface.
	if err := engine.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), api.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
		return err
	}

	log.Info("Shutdown complete")
	return nil
}
