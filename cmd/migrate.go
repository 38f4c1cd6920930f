package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database/postgres"
	"github.com/kozaktomas/facewatch/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending PostgreSQL migrations and list every migration with its state.
The serve command also migrates on startup; this command is for deployments
that run schema changes as a separate step.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("status", false, "Only list migrations, do not apply")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	statusOnly := mustGetBool(cmd, "status")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	logger := logging.New(os.Stderr, cfg.Log)
	ctx := context.Background()

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if !statusOnly {
		n, err := pool.Migrate(ctx, logger)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Printf("Applied %d migration(s)\n", n)
	}

	migrations, err := pool.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	printMigrations(os.Stdout, migrations)
	return nil
}

// printMigrations writes one line per migration with its state.
func printMigrations(w io.Writer, migrations []postgres.Migration) {
	pending := 0
	for _, m := range migrations {
		if m.Applied {
			fmt.Fprintf(w, "  %-32s applied %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
			continue
		}
		pending++
		fmt.Fprintf(w, "  %-32s pending\n", m.Version)
	}
	fmt.Fprintf(w, "Migrations: %d, pending: %d\n", len(migrations), pending)
}
