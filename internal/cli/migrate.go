package cli

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/demandcast/internal/infra/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the sales database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run:   migrateRunner(postgres.MigrateUp),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	Run:   migrateRunner(postgres.MigrateDown),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every migration",
	Run:   migrateRunner(postgres.MigrateStatus),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func migrateRunner(fn func(ctx context.Context, db *sql.DB) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Database.URL == "" {
			slog.Error("No database configured, set database.url or DATABASE_URL")
			os.Exit(1)
		}

		ctx := context.Background()
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = db.Close()
		}()

		if err := fn(ctx, db.DB.DB); err != nil {
			slog.Error("Migration failed", "command", cmd.Name(), "error", err)
			os.Exit(1)
		}
		slog.Info("Migration finished", "command", cmd.Name())
	}
}
