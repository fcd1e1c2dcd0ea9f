package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/reena96/picstormai-sub001/pkg/config"
	"github.com/reena96/picstormai-sub001/pkg/migrate"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the photo service database schema",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		cfg.Logging.SetupLogging()
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"),
		"Path to YAML configuration file")

	rootCmd.AddCommand(newUpCmd())
	rootCmd.AddCommand(newDownCmd())
	rootCmd.AddCommand(newStatusCmd())
}

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *migrate.Migrator) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				log.Info().Int("applied", applied).Msg("Migrations completed successfully")
				return nil
			})
		},
	}
}

func newDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *migrate.Migrator) error {
				if err := m.Down(ctx); err != nil {
					return fmt.Errorf("failed to roll back migration: %w", err)
				}
				log.Info().Msg("Rollback completed successfully")
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *migrate.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied " + s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%03d  %-30s %s\n", s.Version, s.Name, state)
				}
				return nil
			})
		},
	}
}

func withMigrator(ctx context.Context, fn func(context.Context, *migrate.Migrator) error) error {
	m, err := migrate.NewMigrator(ctx, &cfg.Database, migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	return fn(ctx, m)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Migration command failed")
		os.Exit(1)
	}
}
