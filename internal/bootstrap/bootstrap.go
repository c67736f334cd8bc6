// Package bootstrap provides dependency initialization for the generation API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/storyforge/mediagen/internal/artifact"
	"github.com/storyforge/mediagen/internal/asset"
	"github.com/storyforge/mediagen/internal/backend"
	"github.com/storyforge/mediagen/internal/config"
	"github.com/storyforge/mediagen/internal/generate"
	"github.com/storyforge/mediagen/internal/provider"
	"github.com/storyforge/mediagen/internal/retry"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service *generate.Service
	Store   provider.Store
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store := provider.NewMemoryStore()
	if cfg.ProvidersFile != "" {
		if err := provider.LoadFile(cfg.ProvidersFile, store); err != nil {
			return nil, fmt.Errorf("load provider seed file: %w", err)
		}
		logger.Info("provider configurations loaded",
			slog.String("path", cfg.ProvidersFile),
			slog.Int("count", len(store.List())),
		)
	}

	artifactStore, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	pipeline := artifact.NewPipeline(artifactStore, cfg.StorageAccessDomain, logger)

	retrier := retry.NewExecutor(logger,
		retry.WithMaxRetries(cfg.MaxRetries),
		retry.WithBaseDelay(cfg.RetryBase()),
	)

	// The pipeline doubles as the publisher for inline references, so
	// URL-form backends can receive references the caller sent inline.
	normalizer := asset.NewNormalizer(logger, asset.WithPublisher(pipeline))

	svc := generate.NewService(store, backend.NewDefaultRegistry(backend.WithLogger(logger)), logger,
		generate.WithPipeline(pipeline),
		generate.WithNormalizer(normalizer),
		generate.WithRetry(retrier),
		generate.WithBatchInterval(cfg.BatchInterval()),
	)

	return &Dependencies{
		Service: svc,
		Store:   store,
	}, nil
}

// initStorage creates the configured artifact store. A nil store disables
// persistence: generated artifacts keep their backend locations.
func initStorage(cfg *config.Config, logger *slog.Logger) (artifact.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageForm:
		formStore, err := artifact.NewFormStore(cfg.StorageEndpoint)
		if err != nil {
			return nil, fmt.Errorf("create form storage: %w", err)
		}
		logger.Info("form storage configured",
			slog.String("endpoint", cfg.StorageEndpoint),
			slog.String("access_domain", cfg.StorageAccessDomain),
		)
		return formStore, nil

	case config.StorageS3:
		s3Store, err := artifact.NewS3Store(artifact.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil

	default:
		logger.Info("artifact persistence disabled")
		return nil, nil
	}
}
