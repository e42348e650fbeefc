// Command morningcast is the Morningcast operations CLI.
//
// Usage:
//
//	morningcast run
//	morningcast migrate up
//	morningcast migrate status
//	morningcast migrate down
//	morningcast migrate down --to 1
//	morningcast users import --file ./data/user.json
//	morningcast compose --code 800 --name Ada
//	morningcast schedule check
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/morningcast/internal/app"
	"github.com/albapepper/morningcast/internal/config"
	"github.com/albapepper/morningcast/internal/db"
	"github.com/albapepper/morningcast/internal/notifications"
	"github.com/albapepper/morningcast/internal/users"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "morningcast",
		Short:        "Morningcast notification CLI",
		SilenceUsage: true,
	}

	root.AddCommand(runCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(usersCmd())
	root.AddCommand(composeCmd())
	root.AddCommand(scheduleCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withConfig loads configuration, builds the logger and runs fn under a
// signal-aware context.
func withConfig(fn func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return fn(ctx, cfg, logger)
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Evaluate every user once and send due morning notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
				svc, err := app.New(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer svc.Close()

				result, err := svc.Pipeline.Run(ctx)
				if err != nil {
					return fmt.Errorf("morning run: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrator(func(ctx context.Context, m db.Migrator) error { return m.Up(ctx) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrator(func(ctx context.Context, m db.Migrator) error { return m.Status(ctx) })
		},
	})

	var target int64
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations to a target version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrator(func(ctx context.Context, m db.Migrator) error { return m.Down(ctx, target) })
		},
	}
	down.Flags().Int64Var(&target, "to", db.DownLatest, "Version to roll back to (0 removes every migration; default rolls back the latest only)")
	cmd.AddCommand(down)
	return cmd
}

func runMigrator(fn func(ctx context.Context, m db.Migrator) error) error {
	return withConfig(func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		m, err := db.NewMigrator(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		return fn(ctx, m)
	})
}

// --------------------------------------------------------------------------
// users command
// --------------------------------------------------------------------------

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user directory",
	}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a legacy user.json document into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
				if cfg.DatabaseURL == "" {
					return fmt.Errorf("DATABASE_URL is required")
				}
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()

				list, err := users.ReadDocument(f)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}

				pool, err := app.OpenDB(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer pool.Close()

				n, err := users.NewPostgresStore(pool.Pool).Import(ctx, list)
				if err != nil {
					return err
				}
				logger.Info("Users imported", "file", file, "read", len(list), "written", n)
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "./data/user.json", "Path to the user.json document")
	cmd.AddCommand(importCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the configured user directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
				store, _, closeStore, err := app.OpenUsers(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer closeStore()

				list, err := store.ListUsers(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, u := range list {
					fmt.Fprintf(out, "%d\t%s\t%s\teligible=%t\n", u.ID, u.Username, u.Location, u.Eligible())
				}
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// compose command
// --------------------------------------------------------------------------

func composeCmd() *cobra.Command {
	var (
		code int
		name string
	)
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Print the notification a condition code produces",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := notifications.Compose(code, name)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(msg)
		},
	}
	cmd.Flags().IntVar(&code, "code", 800, "OpenWeather condition code")
	cmd.Flags().StringVar(&name, "name", "there", "Username to greet")
	return cmd
}

// --------------------------------------------------------------------------
// schedule command
// --------------------------------------------------------------------------

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect the notification schedule",
	}

	var spec string
	check := &cobra.Command{
		Use:   "check",
		Short: "Report which UTC offsets a schedule reaches inside the morning window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if spec == "" {
				spec = os.Getenv("NOTIFY_SCHEDULE")
			}
			if spec == "" {
				spec = notifications.DefaultSchedule
			}
			a, err := notifications.CheckAlignment(spec)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "schedule %q: %d firings per day\n", a.Spec, a.FiringsPerDay)
			for _, g := range a.Gaps() {
				fmt.Fprintf(out, "gap  %s\n", notifications.FormatOffset(g))
			}
			return nil
		},
	}
	check.Flags().StringVar(&spec, "spec", "", "Cron spec (defaults to NOTIFY_SCHEDULE)")
	cmd.AddCommand(check)
	return cmd
}
