package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/database/migrations"
	"github.com/formwright/formwright/internal/devsync"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long:  `Starts formwright's HTTP API, applying any pending migrations first.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		log.Warn().Err(err).Msg("loading config failed, using defaults")
		cfg = config.Default()
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(cmd.Context(), db.DB); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	srv := server.New(cfg, db)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Dev.Enabled && cfg.Dev.WatchConfig && cfg.Dev.FormsDir != "" {
		syncer := devsync.NewFormSyncer(forms.NewStore(db))
		go func() {
			if err := devsync.Run(ctx, cfg.Dev.FormsDir, syncer); err != nil {
				log.Error().Err(err).Msg("form definition watcher stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
