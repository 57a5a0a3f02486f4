// Package bootstrap provides dependency initialization for the phile service.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/n-1x/phile/internal/config"
	"github.com/n-1x/phile/internal/session"
	"github.com/n-1x/phile/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Registry *session.Registry
	UAFilter *regexp.Regexp
}

// NewDependencies creates and initializes all dependencies for the
// application, then runs recovery so the session table is populated
// before the transport starts accepting requests.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := storage.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("storage_dir", store.Root()),
	)

	manifest := session.NewManifest(filepath.Join(store.Root(), "sessions.json"))

	opts := []session.Option{
		session.WithRetention(cfg.RetentionWindow),
		session.WithInactivityTimeout(cfg.InactivityTimeout),
		session.WithIDLength(cfg.IDLength),
	}

	if cfg.S3Enabled() {
		archiver, err := storage.NewS3Archiver(store, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 archiver: %w", err)
		}
		opts = append(opts, session.WithArchiver(archiver))
		logger.Info("S3 archiver configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
	}

	registry := session.NewRegistry(store, manifest, logger, opts...)

	if err := registry.Recover(ctx); err != nil {
		return nil, fmt.Errorf("recover sessions: %w", err)
	}

	var uaFilter *regexp.Regexp
	if cfg.UAFilter != "" {
		uaFilter, err = regexp.Compile(cfg.UAFilter)
		if err != nil {
			return nil, fmt.Errorf("compile UA filter: %w", err)
		}
	}

	return &Dependencies{
		Registry: registry,
		UAFilter: uaFilter,
	}, nil
}
