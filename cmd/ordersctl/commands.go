package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dejobratic/orderflow/internal/database"
	orderspostgres "github.com/dejobratic/orderflow/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/sweeper"
	"github.com/dejobratic/orderflow/internal/telemetry"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect database migrations",
		Long: `Apply pending database migrations.

Examples:
  ordersctl migrate
  ordersctl migrate --down 1
  ordersctl migrate --status`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			databaseURL, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("path")
			down, _ := cmd.Flags().GetInt("down")
			status, _ := cmd.Flags().GetBool("status")

			out := cmd.OutOrStdout()
			switch {
			case status:
				version, dirty, err := database.MigrationVersion(databaseURL, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "schema version %d (dirty: %t)\n", version, dirty)
			case down > 0:
				if err := database.RollbackMigrations(databaseURL, path, down); err != nil {
					return err
				}
				fmt.Fprintf(out, "rolled back %d migration(s)\n", down)
			default:
				if err := database.RunMigrations(databaseURL, path); err != nil {
					return err
				}
				fmt.Fprintln(out, "migrations applied")
			}
			return nil
		},
	}

	cmd.Flags().String("path", "migrations", "Directory holding the migration files")
	cmd.Flags().Int("down", 0, "Number of migrations to roll back")
	cmd.Flags().Bool("status", false, "Print the applied schema version and exit")

	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cancel orders left unpaid past the abandonment window",
		Long: `Run one abandonment sweep against the database.

Orders still pending or awaiting manual confirmation that were created
before now minus the window are cancelled with the system actor. The
command prints the sweep report as JSON.

Examples:
  ordersctl sweep
  ordersctl sweep --window 45m --batch-size 50`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, _ := cmd.Flags().GetDuration("window")
			batch, _ := cmd.Flags().GetInt("batch-size")

			return withService(cmd, func(ctx context.Context, repo *orderspostgres.Repository, service *ordersapp.Service, logger *slog.Logger) error {
				s := sweeper.New(repo, service, sweeper.Config{Window: window, BatchSize: batch}, nil, logger, nil)
				report, err := s.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().Duration("window", sweeper.DefaultWindow, "Abandonment window")
	cmd.Flags().Int("batch-size", sweeper.DefaultBatchSize, "Orders cancelled per batch")

	return cmd
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print order counts and value per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, func(ctx context.Context, _ *orderspostgres.Repository, service *ordersapp.Service, _ *slog.Logger) error {
				summary, err := service.Summary(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

// withService opens the pool and builds a service without a payment
// gateway; creating online orders is not available from the CLI.
func withService(cmd *cobra.Command, fn func(ctx context.Context, repo *orderspostgres.Repository, service *ordersapp.Service, logger *slog.Logger) error) error {
	databaseURL, err := databaseURL(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPool(ctx, databaseURL, database.WithMaxConns(4))
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := orderspostgres.NewRepository(pool)
	service := ordersapp.NewService(ordersapp.Dependencies{Repo: repo, Logger: logger})
	return fn(ctx, repo, service, logger)
}

func databaseURL(cmd *cobra.Command) (string, error) {
	value, _ := cmd.Flags().GetString("database-url")
	if value == "" {
		return "", errors.New("--database-url or DATABASE_URL is required")
	}
	return value, nil
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	value, _ := cmd.Flags().GetString("log-level")
	level, err := telemetry.ParseLevel(value)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
