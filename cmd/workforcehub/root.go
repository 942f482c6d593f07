package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/workforcehub/workforcehub/internal/app"
	"github.com/workforcehub/workforcehub/internal/platform/db"
	"github.com/workforcehub/workforcehub/internal/rbac"
)

var rootCmd = &cobra.Command{
	Use:   "workforcehub",
	Short: "Workforce Hub access-control service",
	Long: `Workforce Hub serves the permission catalog, membership administration and
platform role administration behind role-based access control.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// cmdEnv holds what every command needs after configuration is loaded.
type cmdEnv struct {
	cfg    *app.Config
	logger *slog.Logger
}

func loadRuntime() (*cmdEnv, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := rbac.ValidateRoleCatalog(); err != nil {
		return nil, fmt.Errorf("role catalog: %w", err)
	}
	return &cmdEnv{cfg: cfg, logger: app.NewLogger(cfg)}, nil
}

func (rt *cmdEnv) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.New(ctx, rt.cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	return pool, nil
}
