package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/application"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/config"
	httptransport "github.com/example/staff-scheduler/internal/http"
	"github.com/example/staff-scheduler/internal/logging"
	"github.com/example/staff-scheduler/internal/obs"
	"github.com/example/staff-scheduler/internal/persistence/sqlite"
	"github.com/example/staff-scheduler/internal/ratelimit"
)

func main() {
	_ = gotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:           "staffsched",
		Short:         "Recurring session scheduling and activity accounting engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newMigrateCommand(&configPath))
	root.AddCommand(newRollupCommand(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger := logging.New(cfg.App.Env)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := sqlite.NewConnectionPool(cfg.SQLite.DSN)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer func() {
				if cerr := pool.Close(); cerr != nil {
					logger.Error("failed to close storage", "error", cerr)
				}
			}()

			if err := sqlite.Migrate(ctx, pool.DB()); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}

			var registry *prometheus.Registry
			var metrics *obs.Metrics
			if cfg.Metrics.Enabled {
				registry = prometheus.NewRegistry()
				registry.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				metrics = obs.NewMetrics(registry)
			}

			sink, closeSink, err := newAuditSink(cfg, logger)
			if err != nil {
				return err
			}
			defer closeSink()

			guard := ratelimit.NewMemoryGuard(guardRules(cfg), nil)
			if metrics != nil {
				guard.OnLimit(func(operation string) {
					metrics.RateLimited.WithLabelValues(operation).Inc()
				})
			}

			env := application.Env{
				Checker:        newChecker(cfg),
				Guard:          guard,
				Audit:          sink,
				Metrics:        metrics,
				Logger:         logger,
				StorageTimeout: cfg.Storage.Timeout,
			}

			sessionTypes := sqlite.NewSessionTypeRepository(pool)
			patterns := sqlite.NewPatternRepository(pool)
			occurrences := sqlite.NewOccurrenceRepository(pool)
			slots := sqlite.NewSlotRepository(pool)
			activity := sqlite.NewActivityRepository(pool)
			quotas := sqlite.NewQuotaRepository(pool)
			history := sqlite.NewHistoryRepository(pool)
			members := sqlite.NewMemberRepository(pool)

			handler := httptransport.NewHandler(
				application.NewScheduleService(sessionTypes, patterns, occurrences, env),
				application.NewEditService(sessionTypes, occurrences, env),
				application.NewSlotService(sessionTypes, patterns, occurrences, slots, members, env),
				application.NewRollupService(sessionTypes, occurrences, slots, activity, quotas, history, members, time.Minute, env),
				application.NewCatalogService(sessionTypes, quotas, members, env),
				application.NewActivityService(activity, env),
				logger,
			)

			routerCfg := httptransport.RouterConfig{
				Handler: handler,
				Middleware: []httptransport.Middleware{
					httptransport.RequestLogger(logger),
					httptransport.RequirePrincipal(logger),
				},
			}
			if registry != nil {
				routerCfg.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
			}

			server := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           httptransport.NewRouter(routerCfg),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("failed to shutdown server", "error", err)
				}
			}()

			logger.Info("scheduler API listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger := logging.New(cfg.App.Env)

			pool, err := sqlite.NewConnectionPool(cfg.SQLite.DSN)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer pool.Close()

			if err := sqlite.Migrate(cmd.Context(), pool.DB()); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("migrations applied", "dsn", cfg.SQLite.DSN)
			return nil
		},
	}
}

func newRollupCommand(configPath *string) *cobra.Command {
	var workspaceID, actorID string

	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Trigger one activity rollup for a workspace and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger := logging.New(cfg.App.Env)

			pool, err := sqlite.NewConnectionPool(cfg.SQLite.DSN)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer pool.Close()

			sink, closeSink, err := newAuditSink(cfg, logger)
			if err != nil {
				return err
			}
			defer closeSink()

			env := application.Env{
				Checker:        newChecker(cfg),
				Audit:          sink,
				Logger:         logger,
				StorageTimeout: cfg.Storage.Timeout,
			}

			service := application.NewRollupService(
				sqlite.NewSessionTypeRepository(pool),
				sqlite.NewOccurrenceRepository(pool),
				sqlite.NewSlotRepository(pool),
				sqlite.NewActivityRepository(pool),
				sqlite.NewQuotaRepository(pool),
				sqlite.NewHistoryRepository(pool),
				sqlite.NewMemberRepository(pool),
				time.Minute,
				env,
			)

			result, err := service.Rollup(cmd.Context(), application.RollupParams{
				Principal:   application.Principal{MemberID: actorID},
				WorkspaceID: workspaceID,
			})
			if err != nil {
				return fmt.Errorf("rollup: %w", err)
			}
			logger.Info("rollup committed",
				"workspace_id", workspaceID,
				"checkpoint_id", result.Checkpoint.ID,
				"snapshots", result.SnapshotsWritten,
				"members", result.MembersScanned,
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace to roll up")
	cmd.Flags().StringVar(&actorID, "actor", "", "member id the rollup is attributed to")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newChecker(cfg config.Config) *access.StaticChecker {
	checker := access.NewStaticChecker()
	for _, entry := range cfg.Grants {
		checker.SetGrant(entry.WorkspaceID, entry.MemberID, access.Grant{
			Capabilities: entry.Capabilities,
			Roles:        entry.Roles,
		})
	}
	return checker
}

func guardRules(cfg config.Config) map[string]ratelimit.Rule {
	rules := ratelimit.DefaultRules()
	for operation, rule := range cfg.RateLimits {
		rules[operation] = ratelimit.Rule{Limit: rule.Limit, Window: rule.Window}
	}
	return rules
}

func newAuditSink(cfg config.Config, logger *slog.Logger) (audit.Sink, func(), error) {
	if cfg.Audit.AMQPURL == "" {
		return audit.NewLogSink(logger), func() {}, nil
	}
	sink, err := audit.NewAMQPSink(cfg.Audit.AMQPURL, cfg.Audit.Exchange, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect audit broker: %w", err)
	}
	return sink, func() {
		if cerr := sink.Close(); cerr != nil {
			logger.Error("failed to close audit sink", "error", cerr)
		}
	}, nil
}
