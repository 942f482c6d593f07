package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/workforcehub/workforcehub/internal/app"
	"github.com/workforcehub/workforcehub/internal/audit"
	audithttp "github.com/workforcehub/workforcehub/internal/audit/http"
	"github.com/workforcehub/workforcehub/internal/auth"
	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/membership"
	"github.com/workforcehub/workforcehub/internal/observability"
	"github.com/workforcehub/workforcehub/internal/platform/cache"
	"github.com/workforcehub/workforcehub/internal/platformroles"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/rbac/pgstore"
	"github.com/workforcehub/workforcehub/internal/shared"
	"github.com/workforcehub/workforcehub/jobs"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	cfg, logger := rt.cfg, rt.logger

	dbpool, err := rt.connect(ctx)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer dbpool.Close()

	if cfg.PGAutoMigrate {
		if err := pgstore.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			return err
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "workforcehub_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	resolver := identity.Chain{identity.SessionResolver{}}
	var tokens *identity.Tokens
	if cfg.TokensEnabled() {
		tokens = identity.NewTokens(cfg.TokenSecret)
		resolver = append(resolver, tokens)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	loader := rbac.NewLoader(pgstore.NewFacts(dbpool), logger, cfg.RBACLookupTimeout)
	guard := rbac.Guard{Resolver: resolver, Roles: loader, Logger: logger, Observer: metrics}

	authService := auth.NewService(auth.NewRepository(dbpool), auditLogger)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, tokens, cfg.TokenTTL)

	membershipService := membership.NewService(pgstore.NewTenantRoles(dbpool), auditLogger, logger, cfg.InviteTTL)
	membershipHandler := membership.NewHandler(logger, membershipService, resolver, guard)

	platformService := platformroles.NewService(pgstore.NewPlatformAssignments(dbpool), loader, auditLogger, logger)
	platformHandler := platformroles.NewHandler(logger, platformService, resolver, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		Guard:                guard,
		AuthHandler:          authHandler,
		PermissionsHandler:   rbac.NewPermissionsHandler(logger, loader, resolver, nil),
		MembershipHandler:    membershipHandler,
		PlatformRolesHandler: platformHandler,
		AuditHandler:         audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), guard),
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("bearer_tokens", tokens != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
