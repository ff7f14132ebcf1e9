package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"moneytransfer/internal/config"
	"moneytransfer/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var (
	migrationsDir string
	databaseURL   string
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the money transfer database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long: `Apply every migration file in --dir that is not yet recorded in
schema_migrations. Each file runs in its own transaction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(ctx context.Context, database *sqlx.DB) error {
			applied, err := db.Migrate(ctx, database, migrationsDir)
			for _, name := range applied {
				fmt.Printf("applied %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("schema is up to date")
			}
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations have been applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd.Context(), func(ctx context.Context, database *sqlx.DB) error {
			statuses, err := db.Status(ctx, database, migrationsDir)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "MIGRATION\tAPPLIED")
			for _, status := range statuses {
				_, _ = fmt.Fprintf(w, "%s\t%t\n", status.Filename, status.Applied)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "Directory holding *.sql migration files")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db", "", "Database URL (defaults to DATABASE_URL)")
	rootCmd.AddCommand(upCmd, statusCmd)
}

func withDatabase(ctx context.Context, fn func(context.Context, *sqlx.DB) error) error {
	url := databaseURL
	if url == "" {
		url = config.Load().DatabaseURL
	}
	database, err := db.Connect(url)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer database.Close()
	return fn(ctx, database)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
