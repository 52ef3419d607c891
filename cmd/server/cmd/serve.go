package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api"
	"github.com/Togather-Foundation/rsvp/internal/api/handlers"
	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/broker"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/Togather-Foundation/rsvp/internal/jobs"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/notify"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/Togather-Foundation/rsvp/internal/telemetry"
	"github.com/Togather-Foundation/rsvp/internal/uploads"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	dbMetricsInterval = 15 * time.Second
	startupTimeout    = 10 * time.Second
)

type serveFlags struct {
	host string
	port int
}

func newServeCommand(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RSVP HTTP server",
		Long: `Start the RSVP HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Bootstrap an admin account if ADMIN_EMAIL and ADMIN_PASSWORD are set
- Start the notification job workers unless JOBS_ENABLED=false
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if flags.host != "" {
				cfg.Server.Host = flags.host
			}
			if flags.port != 0 {
				cfg.Server.Port = flags.port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "server port (default: 5000)")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting RSVP server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(stopCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	pool, err := postgres.Open(startCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool, cfg.Database.QueryTimeout)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email service: %w", err)
	}

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	usersService := users.NewService(repo.Users(), tokens, auth.NewPasswordHasher(), logger)
	bootstrapAdmin(startCtx, usersService, cfg, logger)

	photos, err := uploads.NewStore(cfg.Uploads, logger)
	if err != nil {
		return fmt.Errorf("uploads: %w", err)
	}

	auditLogger := audit.NewLogger(logger)
	eventsService := events.NewService(repo.Events(), photos, auditLogger, logger)

	var (
		riverClient *river.Client[pgx.Tx]
		direct      *notify.Direct
		targets     []notify.Named
	)
	if cfg.Jobs.Enabled {
		if err := postgres.MigrateRiver(startCtx, pool); err != nil {
			return err
		}
		riverClient, err = jobs.NewClient(pool, jobs.ClientOptions{
			Workers:     jobs.NewWorkers(mailer),
			Logger:      config.NewSlogLogger(logger, cfg.Logging),
			Hooks:       []rivertype.Hook{metrics.NewRiverMetricsHook()},
			MaxWorkers:  cfg.Jobs.MaxWorkers,
			MaxAttempts: cfg.Jobs.NotificationMaxAttempts,
			Exhausted:   recordExhaustedJob,
		})
		if err != nil {
			return fmt.Errorf("river client: %w", err)
		}
		targets = append(targets, notify.Named{Name: "email", Notifier: jobs.NewQueueNotifier(riverClient)})
	} else {
		logger.Warn().Msg("job queue disabled; sending registration emails inline")
		direct = notify.NewDirect(mailer, cfg.Email.SendTimeout, logger)
		defer direct.Wait()
		targets = append(targets, notify.Named{Name: "email", Notifier: direct})
	}

	if cfg.Broker.URL != "" {
		publisher, err := broker.Dial(cfg.Broker.URL, cfg.Broker.Exchange, logger)
		if err != nil {
			logger.Error().Err(err).Msg("rabbitmq unavailable; registration events will not be published")
		} else {
			defer func() { _ = publisher.Close() }()
			detached := notify.NewDetached("broker", publisher, cfg.Broker.PublishTimeout, logger,
				notify.WithFailureHook(recordNotifyFailure))
			defer detached.Wait()
			targets = append(targets, notify.Named{Name: "broker", Notifier: detached})
		}
	}

	registrationsService := registrations.NewService(repo.Registrations(), repo.Events(), logger,
		registrations.WithNotifier(notify.NewFanout(logger, targets...)),
		registrations.WithAuditLogger(auditLogger),
		registrations.WithNotifyErrorHook(recordNotifyFailure),
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer limiter.Stop()

	handler := api.NewRouter(api.Deps{
		Config:        cfg,
		Logger:        logger,
		Tokens:        tokens,
		Users:         usersService,
		Events:        eventsService,
		Registrations: registrationsService,
		Photos:        photos,
		Health:        handlers.NewHealthChecker(pool, riverClient, Version, GitCommit),
		RateLimiter:   limiter,
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       30 * time.Second, // multipart uploads
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	collector := metrics.NewDBCollector(pool)
	defer collector.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		collector.Start(gctx, dbMetricsInterval)
		return nil
	})

	if riverClient != nil {
		if err := riverClient.Start(gctx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("notification workers started")
	}

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		return shutdown(server, riverClient, logger)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func bootstrapAdmin(ctx context.Context, service *users.Service, cfg config.Config, logger zerolog.Logger) {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Email == "" || bootstrap.Password == "" {
		logger.Debug().Msg("admin bootstrap env vars not set; skipping")
		return
	}

	created, err := service.BootstrapAdmin(ctx, bootstrap.Name, bootstrap.Email, bootstrap.Password)
	if err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
		return
	}
	if !created {
		return
	}

	event := logger.Info()
	if !cfg.IsProduction() {
		event = event.Str("email", bootstrap.Email)
	}
	event.Msg("bootstrapped admin user")
}

// shutdown drains HTTP first so no new jobs are enqueued, then stops the workers.
func shutdown(server *http.Server, riverClient *river.Client[pgx.Tx], logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
		errs = append(errs, err)
	}
	if riverClient != nil {
		if err := riverClient.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func recordNotifyFailure(kind string) {
	metrics.NotificationFailures.WithLabelValues(kind).Inc()
}

// recordExhaustedJob counts notifications that used their last attempt.
func recordExhaustedJob(_ context.Context, kind string, _ error) {
	recordNotifyFailure(kind)
}
