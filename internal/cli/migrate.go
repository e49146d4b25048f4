package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/database/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
	Long: `Apply or inspect the embedded schema migrations that create
Formwright's internal tables (users, forms, responses, webhooks, ...).`,
}

var migrateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending migrations",
	RunE:  runMigrateApply,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations",
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateApplyCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func openMigrateDB() (*database.DB, error) {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		log.Warn().Err(err).Msg("no config file found, using defaults")
		cfg = config.Default()
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func runMigrateApply(cmd *cobra.Command, args []string) error {
	db, err := openMigrateDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Run(cmd.Context(), db.DB); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	fmt.Println("Migrations applied.")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	db, err := openMigrateDB()
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrations.GetApplied(cmd.Context(), db.DB)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	if len(applied) == 0 {
		fmt.Println("No migrations have been applied yet.")
		return nil
	}

	fmt.Println("Applied migrations:")
	for _, m := range applied {
		fmt.Printf("  - %s (applied %s)\n", m.ID, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
