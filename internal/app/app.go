// Package app assembles the store, file storage and services from config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bannerdesk/banner-service/config"
	"github.com/bannerdesk/banner-service/internal/alerts"
	"github.com/bannerdesk/banner-service/internal/auth"
	"github.com/bannerdesk/banner-service/internal/catalog"
	"github.com/bannerdesk/banner-service/internal/comments"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/handlers"
	"github.com/bannerdesk/banner-service/internal/importer"
	"github.com/bannerdesk/banner-service/internal/metrics"
	"github.com/bannerdesk/banner-service/internal/notifications"
	"github.com/bannerdesk/banner-service/internal/policy"
	"github.com/bannerdesk/banner-service/internal/session"
	"github.com/bannerdesk/banner-service/internal/storage"
	"github.com/bannerdesk/banner-service/internal/workflow"
)

// App holds the wired services.
type App struct {
	Store         database.Store
	Files         storage.Storage
	Sessions      session.RevocationStore
	Auth          *auth.Service
	Catalog       *catalog.Service
	Images        *workflow.Service
	Comments      *comments.Service
	Alerts        *alerts.Aggregator
	Importer      *importer.Importer
	Notifications *notifications.Service
	Logger        *zerolog.Logger
}

// Open connects the configured backends and builds every service.
func Open(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	files, err := storage.Open(ctx, cfg.Storage.Options())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Database, files, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := session.Open(cfg.Auth.RedisURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	a := &App{Store: store, Files: files, Sessions: sessions, Logger: logger}
	if err := a.build(cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// OpenStore returns the store selected by cfg.Driver. Postgres schemas are
// migrated on open.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, files storage.Storage, logger *zerolog.Logger) (database.Store, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Pool())
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		applied, err := database.ApplyMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		for _, name := range applied {
			logger.Info().Str("migration", name).Msg("Applied migration")
		}
		logger.Info().Msg("Database connected")
		return database.NewPostgresStore(pool), nil

	case "memory", "":
		var opts []database.MemoryOption
		if cfg.SnapshotKey != "" {
			opts = append(opts, database.WithSnapshot(files, cfg.SnapshotKey))
		}
		store, err := database.NewMemoryStore(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		logger.Info().Str("snapshot", cfg.SnapshotKey).Msg("Memory store ready")
		return store, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func (a *App) build(cfg *config.Config) error {
	loc, err := cfg.Alerts.Location()
	if err != nil {
		return fmt.Errorf("alerts timezone: %w", err)
	}

	rec := metrics.NewRecorder()
	a.Notifications = notifications.NewService(a.Store, a.Logger)
	a.Images = workflow.NewService(a.Store, rec, a.Logger,
		workflow.WithFiles(a.Files),
		workflow.WithNotifier(a.Notifications),
	)
	a.Catalog = catalog.NewService(a.Store, rec, a.Logger)
	a.Comments = comments.NewService(a.Store, policy.ChatPolicy{BusinessUsersCanChat: cfg.Policy.BusinessUsersCanChat}, rec, a.Logger)
	a.Alerts = alerts.NewAggregator(a.Store, cfg.Alerts.Thresholds(), loc, rec)
	a.Importer = importer.New(a.Store, a.Images, a.Files, cfg.Import, rec, a.Logger)

	// The CLI runs without a signing secret; only login needs one.
	if cfg.Auth.JWTSecret != "" {
		tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL)
		if err != nil {
			return err
		}
		a.Auth = auth.NewService(a.Store, tokens, a.Sessions, a.Logger)
	}
	return nil
}

// Handlers returns the HTTP handlers over the app's services.
func (a *App) Handlers() (*handlers.Handler, error) {
	if a.Auth == nil {
		return nil, errors.New("auth.jwt_secret is required to serve the API")
	}
	return handlers.New(handlers.Deps{
		Store:         a.Store,
		Auth:          a.Auth,
		Catalog:       a.Catalog,
		Images:        a.Images,
		Comments:      a.Comments,
		Alerts:        a.Alerts,
		Importer:      a.Importer,
		Notifications: a.Notifications,
		Logger:        a.Logger,
	}), nil
}

// Accounts returns the auth service for account management. Without a
// signing secret the returned service can create and list users but not
// issue tokens.
func (a *App) Accounts() *auth.Service {
	if a.Auth != nil {
		return a.Auth
	}
	return auth.NewService(a.Store, nil, a.Sessions, a.Logger)
}

// Close releases the store and session connections.
func (a *App) Close() error {
	var errs []error
	if a.Sessions != nil {
		errs = append(errs, a.Sessions.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
