package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/workforcehub/workforcehub/cmd/workforcehub/cli"
	"github.com/workforcehub/workforcehub/internal/platform/db"
	"github.com/workforcehub/workforcehub/internal/platformroles"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/rbac/pgstore"
	"github.com/workforcehub/workforcehub/internal/shared"
	"github.com/workforcehub/workforcehub/jobs"
)

// exitError carries a non-zero process exit code out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func exitWith(code int) error {
	if code == cli.ExitAllowed {
		return nil
	}
	return exitError{code: code}
}

var (
	checkCompany string
	checkAll     bool
	checkJSON    bool
	catalogJSON  bool
	grantRole    string
	jobsJSON     bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the role fact schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		pool, err := rt.connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.WithTx(cmd.Context(), pool, func(tx pgx.Tx) error {
			return pgstore.Migrate(cmd.Context(), tx)
		}); err != nil {
			return err
		}
		rt.logger.Info("schema migrated")
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the permission catalog and role table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return exitWith(cli.CatalogCommand(cli.CatalogOptions{
			JSONOutput: catalogJSON,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		}))
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <principal> <permission>...",
	Short: "Evaluate permissions for a principal against the live role store",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		pool, err := rt.connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()
		loader := rbac.NewLoader(pgstore.NewFacts(pool), rt.logger, rt.cfg.RBACLookupTimeout)
		return exitWith(cli.NewAccessCLI(loader).CheckCommand(cmd.Context(), cli.CheckOptions{
			Principal:   args[0],
			CompanyID:   checkCompany,
			Permissions: args[1:],
			RequireAll:  checkAll,
			JSONOutput:  checkJSON,
			Stdout:      cmd.OutOrStdout(),
			Stderr:      cmd.ErrOrStderr(),
		}))
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant-platform-role <principal>",
	Short: "Assign a platform role as the system principal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		pool, err := rt.connect(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()
		loader := rbac.NewLoader(pgstore.NewFacts(pool), rt.logger, rt.cfg.RBACLookupTimeout)
		service := platformroles.NewService(pgstore.NewPlatformAssignments(pool), loader, shared.NewAuditLogger(pool), rt.logger)
		return exitWith(cli.GrantCommand(cmd.Context(), service, cli.GrantOptions{
			Principal: args[0],
			Role:      grantRole,
			Stdout:    cmd.OutOrStdout(),
			Stderr:    cmd.ErrOrStderr(),
		}))
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Trigger and inspect background jobs",
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger [task]",
	Short: "Enqueue a background job",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := jobs.TaskMembershipInviteExpiry
		if len(args) == 1 {
			name = args[0]
		}
		return withJobsCLI(func(c *cli.JobsCLI) int {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return c.TriggerCommand(ctx, name, jobsOptions(cmd))
		})
	},
}

var jobsInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show queue depth and scheduled jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withJobsCLI(func(c *cli.JobsCLI) int {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return c.InspectCommand(ctx, jobsOptions(cmd))
		})
	},
}

func jobsOptions(cmd *cobra.Command) cli.JobsOptions {
	return cli.JobsOptions{JSONOutput: jobsJSON, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
}

func withJobsCLI(run func(*cli.JobsCLI) int) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	c := cli.NewJobsCLI(rt.cfg.RedisAddr)
	defer func() {
		if err := c.Close(); err != nil {
			rt.logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	return exitWith(run(c))
}

func init() { //nolint: gochecknoinits
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "print the catalog document as JSON")

	checkCmd.Flags().StringVar(&checkCompany, "company", "", "company the check is evaluated in")
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "require every permission instead of any one")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the decision as JSON")

	grantCmd.Flags().StringVar(&grantRole, "role", string(rbac.RoleAdmin), "platform role to assign")

	jobsCmd.PersistentFlags().BoolVar(&jobsJSON, "json", false, "print results as JSON")
	jobsCmd.AddCommand(jobsTriggerCmd, jobsInspectCmd)

	rootCmd.AddCommand(migrateCmd, catalogCmd, checkCmd, grantCmd, jobsCmd)
}
