package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/aiorch/config"
	"github.com/BaSui01/aiorch/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

type migrateFlags struct {
	dbType string
	dbURL  string
}

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	var f migrateFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the result journal schema",
		Long: `Manage the result journal schema (postgres, mysql).

SQLite journals are created by auto-migration on startup and are not managed here.
The database comes from the config file unless --db-type and --db-url are both set.`,
	}
	cmd.PersistentFlags().StringVar(&f.dbType, "db-type", "", "database type: postgres, mysql (default: from config)")
	cmd.PersistentFlags().StringVar(&f.dbURL, "db-url", "", "database connection URL (default: from config)")

	// withCLI 打开迁移器并在命令结束后关闭
	withCLI := func(run func(cmd *cobra.Command, cli *migration.CLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, err := openMigrator(f, load)
			if err != nil {
				return err
			}
			defer m.Close()

			cli := migration.NewCLI(m)
			cli.SetOutput(cmd.OutOrStdout())
			return run(cmd, cli, args)
		}
	}

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
			return cli.RunDown(cmd.Context(), all)
		}),
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunUp(cmd.Context())
			}),
		},
		down,
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply (n > 0) or roll back (n < 0) n migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return cli.RunSteps(cmd.Context(), n)
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the recorded version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				v, err := strconv.ParseInt(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return cli.RunForce(cmd.Context(), int(v))
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current migration version",
			Args:  cobra.NoArgs,
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunVersion(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show every migration and whether it is applied",
			Args:  cobra.NoArgs,
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, _ []string) error {
				return cli.RunStatus(cmd.Context())
			}),
		},
	)
	return cmd
}

// openMigrator 优先使用命令行给出的连接，否则读取配置
func openMigrator(f migrateFlags, load func() (*config.Config, error)) (*migration.DefaultMigrator, error) {
	if f.dbType != "" && f.dbURL != "" {
		return newMigrator(migration.NewMigratorFromURL(f.dbType, f.dbURL))
	}

	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if f.dbType != "" {
		cfg.Database.Driver = f.dbType
	}
	return newMigrator(migration.NewMigratorFromDatabaseConfig(cfg.Database))
}

func newMigrator(m *migration.DefaultMigrator, err error) (*migration.DefaultMigrator, error) {
	if errors.Is(err, migration.ErrAutoMigrated) {
		return nil, fmt.Errorf("%w: the journal table is created when serve starts", err)
	}
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
