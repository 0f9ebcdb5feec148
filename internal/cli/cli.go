package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/app"
	"github.com/Additional-Code/fulfillment/internal/migration"
	"github.com/Additional-Code/fulfillment/internal/seeder"
	"github.com/Additional-Code/fulfillment/internal/worker/schedule"
)

const defaultShutdownTimeout = 10 * time.Second

// NewRootCommand builds the root fulfillment CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fulfillment",
		Short:         "Order fulfillment service toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Duration("shutdown-timeout", defaultShutdownTimeout, "Grace period for stopping the application")

	root.AddCommand(
		newStartCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newWorkerCmd(),
		newCheckCmd(),
	)
	return root
}

// Execute runs the fulfillment CLI until it finishes or receives SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func shutdownTimeout(cmd *cobra.Command) time.Duration {
	d, err := cmd.Flags().GetDuration("shutdown-timeout")
	if err != nil || d <= 0 {
		return defaultShutdownTimeout
	}
	return d
}

// serve runs a long-lived application until the command context ends.
func serve(cmd *cobra.Command, opts fx.Option) error {
	application := fx.New(opts)
	if err := application.Start(cmd.Context()); err != nil {
		return err
	}
	<-cmd.Context().Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cmd))
	defer cancel()
	return application.Stop(stopCtx)
}

// runOnce starts a quiet application, runs fn and stops it again.
func runOnce(cmd *cobra.Command, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(cmd.Context()); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cmd))
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(cmd.Context())
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP and gRPC service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, app.HTTP)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Consume status change events and run scheduled checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, app.Worker)
		},
	})
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(context.Context, *migration.Migrator) error) error {
		var mig *migration.Migrator
		return runOnce(cmd, fx.Options(app.Infra, migration.Module, fx.Populate(&mig)), func(ctx context.Context) error {
			return fn(ctx, mig)
		})
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(ctx context.Context, mig *migration.Migrator) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			return withMigrator(cmd, func(ctx context.Context, mig *migration.Migrator) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(ctx context.Context, mig *migration.Migrator) error {
				version, err := mig.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return nil
			})
		},
	}

	cmd.AddCommand(upCmd, downCmd, statusCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo orders ready for allocation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var seed *seeder.Seeder
			opts := fx.Options(app.Core, seeder.Module, fx.Populate(&seed))
			return runOnce(cmd, opts, func(ctx context.Context) error {
				orders, err := seed.Orders(ctx)
				if err != nil {
					return err
				}
				for _, o := range orders {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", o.ID, o.OrderNumber, o.Status)
				}
				return nil
			})
		},
	}
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run consistency checks on demand",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "allocations",
		Short: "Validate every allocated order against its reservations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var job *schedule.AllocationCheck
			opts := fx.Options(app.Core, fx.Provide(schedule.NewAllocationCheck), fx.Populate(&job))
			return runOnce(cmd, opts, func(ctx context.Context) error {
				report, err := job.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked %d orders: %d short, %d failed\n",
					report.Checked, report.Short, report.Failures)
				if report.Short > 0 {
					return fmt.Errorf("%d allocated orders are short of stock", report.Short)
				}
				return nil
			})
		},
	})
	return cmd
}
