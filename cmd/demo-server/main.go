// Package main runs a small HTTP service wired to the exception notifier.
//
// It exists to exercise the notifier end to end: GET /boom panics inside a
// handler and is reported by the Recoverer middleware, GET /fail reports a
// handled error explicitly. With DISPATCH_MODE=queue incidents go to SQS
// for cmd/notifier-worker; otherwise they are delivered in process.
//
// Without TRACKER_API_KEY and TRACKER_WORKSPACE the notifier is inactive and
// both routes still answer 500 without reporting anything.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"tasknotifier/internal/collector"
	"tasknotifier/internal/config"
	"tasknotifier/internal/core"
	"tasknotifier/internal/external"
	ncore "tasknotifier/internal/notifications/core"
	"tasknotifier/internal/notifier"
	"tasknotifier/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("demo server starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"port", cfg.Server.Port,
		"dispatch_mode", string(cfg.Dispatch.Mode),
	)

	n, err := buildNotifier(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("building notifier: %w", err)
	}

	srv, err := newServer(cfg, n, logger)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildNotifier loads AWS clients only for the features that need them:
// the incident queue, the archive mirror and CloudWatch metrics.
func buildNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*notifier.Notifier, error) {
	typedLogger := &slogAdapter{logger: logger}
	deps := notifier.Deps{Logger: typedLogger}

	if !cfg.Tracker.Active() {
		return notifier.New(cfg, deps)
	}

	queueMode := cfg.Dispatch.Mode == types.DispatchQueue
	var regOpts []external.RegistryOption
	if queueMode || cfg.AWS.ArchiveBucket != "" || cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS SDK config: %w", err)
		}
		if queueMode {
			client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			deps.Publisher = ncore.NewIncidentPublisher(client, cfg.Dispatch.IncidentQueueURL, typedLogger)
		}
		if cfg.AWS.ArchiveBucket != "" {
			regOpts = append(regOpts, external.WithS3Client(s3.NewFromConfig(awsCfg, func(o *s3.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
					o.UsePathStyle = true
				}
			})))
		}
		if cfg.Observability.EnableMetrics {
			deps.Metrics = ncore.NewCloudWatchDispatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, typedLogger)
		}
	}

	if !queueMode {
		registry, err := external.NewClientRegistry(cfg, logger, regOpts...)
		if err != nil {
			return nil, err
		}
		deps.Tracker = registry.Tracker
		deps.Archives = registry.Archives
	}
	return notifier.New(cfg, deps)
}

// newServer builds the chassis with the demo routes mounted.
func newServer(cfg *config.Config, n core.Notifier, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, n, logger)
	if err != nil {
		return nil, err
	}

	archiveDir := cfg.Archive.TempDir
	if archiveDir == "" {
		archiveDir = os.TempDir()
	}
	srv.HealthProbes = []core.HealthProbe{core.ArchiveDirProbe{Dir: archiveDir}}
	srv.RouteRegistrars = []core.RouteRegistrar{demoRoutes(n)}
	srv.MountRoutes()
	return srv, nil
}

func demoRoutes(n core.Notifier) core.RouteRegistrar {
	return func(r chi.Router) {
		r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
			panic(fmt.Sprintf("boom requested by %s", r.RemoteAddr))
		})

		r.Get("/fail", func(w http.ResponseWriter, r *http.Request) {
			err := collector.WithStack(errors.New("demo failure"))
			n.Notify(err, notifier.Options{
				Options: collector.Options{
					Request: r,
					Data:    map[string]any{"route": "/fail"},
				},
			})
			core.Error(w, r, err)
		})
	}
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Drains incidents raised by the last requests.
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// slogAdapter wraps *slog.Logger to implement types.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}
