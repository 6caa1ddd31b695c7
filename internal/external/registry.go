package external

import (
	"log/slog"
	"net/http"

	"tasknotifier/internal/config"
)

// ClientRegistry holds the external clients the notifier talks to.
type ClientRegistry struct {
	Tracker TaskTracker

	// Archives is nil when no mirror bucket is configured.
	Archives ArchiveStore
}

// RegistryOption is a functional option for configuring a ClientRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	s3         S3Putter
	httpClient *http.Client
	baseOpts   []BaseClientOption
}

// WithS3Client provides the S3 client used by the archive mirror. Without
// it the mirror stays off even when a bucket is configured.
func WithS3Client(client S3Putter) RegistryOption {
	return func(rc *registryConfig) { rc.s3 = client }
}

// WithHTTPClient replaces the tracker HTTP client.
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(rc *registryConfig) { rc.httpClient = client }
}

// WithBaseClientOptions passes options through to the tracker BaseClient.
func WithBaseClientOptions(opts ...BaseClientOption) RegistryOption {
	return func(rc *registryConfig) { rc.baseOpts = append(rc.baseOpts, opts...) }
}

// NewClientRegistry builds the tracker client and the optional archive
// mirror. TRACKER_USE_STUB or APP_ENV=local selects the in-memory tracker,
// so a local run never files real tasks.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &registryConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	reg := &ClientRegistry{}

	if cfg.Tracker.UseStub || cfg.Environment == "local" {
		logger.Info("initializing tracker client in STUB mode",
			"use_stub", cfg.Tracker.UseStub,
			"environment", cfg.Environment,
		)
		reg.Tracker = NewStubTaskTracker(logger.With("mode", "stub"))
	} else {
		httpClient := rc.httpClient
		if httpClient == nil {
			httpClient = NewHTTPClient(TransportConfig{
				ConnectTimeout:    cfg.Tracker.ConnectTimeout,
				InactivityTimeout: cfg.Tracker.InactivityTimeout,
				MaxRedirects:      cfg.Tracker.MaxRedirects,
			})
		}
		policy := DefaultRetryPolicy()
		policy.MaxRetries = cfg.Tracker.MaxRetries

		base := NewBaseClient(httpClient, BreakerSettings{Name: "tracker"}, policy, cfg.Tracker.UserAgent, rc.baseOpts...)
		reg.Tracker = NewAsanaClient(base, AsanaClientConfig{
			APIKey:  cfg.Tracker.APIKey,
			BaseURL: cfg.Tracker.BaseURL,
			Logger:  logger.With("client", "tracker"),
		})
	}

	if cfg.AWS.ArchiveBucket != "" && rc.s3 != nil {
		reg.Archives = NewS3ArchiveStore(rc.s3, cfg.AWS.ArchiveBucket, cfg.AWS.ArchivePrefix, logger.With("client", "s3"))
	}

	return reg, nil
}
