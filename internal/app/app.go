package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/samber/lo"

	"github.com/Hori98/Audion-sub008/internal/config"
	"github.com/Hori98/Audion-sub008/internal/delivery"
	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/feedcache"
	"github.com/Hori98/Audion-sub008/internal/infrastructure/analytics"
	"github.com/Hori98/Audion-sub008/internal/infrastructure/audio"
	"github.com/Hori98/Audion-sub008/internal/infrastructure/notify"
	"github.com/Hori98/Audion-sub008/internal/infrastructure/rss"
	"github.com/Hori98/Audion-sub008/internal/infrastructure/storage"
	"github.com/Hori98/Audion-sub008/internal/logging"
	"github.com/Hori98/Audion-sub008/internal/registry"
)

// Application wires configs to the content pipeline and its lifecycle.
// Everything is explicitly constructed and passed so collaborators can be
// replaced with test doubles.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	Registry     *registry.Registry
	Cache        *feedcache.Engine
	Orchestrator *delivery.Orchestrator
}

// New builds a runnable application instance.
func New(cfg config.Config, db *sql.DB, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	repo := storage.NewPostgresRepository(db)

	curated := lo.Map(cfg.CuratedSources, func(src config.CuratedSource, _ int) domain.Source {
		return domain.Source{ID: src.ID, Name: src.Name, URL: src.URL}
	})

	fetcher := rss.NewFetcher(nil)

	// Registry and cache depend on each other: the registry invalidates the
	// cache on mutation, the cache reads active sources from the registry.
	reg := registry.New(curated, repo, baseLogger.With("component", "registry"))
	cache := feedcache.NewEngine(fetcher, reg, cfg.Cache.TTL, cfg.Cache.SourceTimeout,
		baseLogger.With("component", "feedcache"))
	reg.SetCacheInvalidator(cache)

	orchestrator := delivery.New(delivery.Deps{
		Schedules:       repo,
		Attempts:        repo,
		Articles:        cache,
		Audio:           audio.NewClient(cfg.Audio.Endpoint, audio.StaticToken(cfg.Audio.APIKey)),
		Notifier:        notify.NewNotifier(cfg.Notifications.Endpoint, cfg.Notifications.APIKey),
		Analytics:       analytics.NewClient(cfg.Analytics.Endpoint),
		Logger:          baseLogger.With("component", "delivery"),
		Tick:            cfg.Delivery.Tick,
		DeliveryTimeout: cfg.Delivery.Timeout,
	})

	return &Application{
		cfg:          cfg,
		logger:       baseLogger,
		Registry:     reg,
		Cache:        cache,
		Orchestrator: orchestrator,
	}
}

// Run warms the curated cache and drives the schedule loop until the context
// is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if _, srcErrs, err := a.Cache.Articles(ctx, domain.ScopeCurated); err != nil {
		a.logger.Warn("curated cache warmup failed", "error", err)
	} else if len(srcErrs) > 0 {
		a.logger.Warn("curated cache warmup saw source errors", "failed", len(srcErrs))
	}

	return a.Orchestrator.Start(ctx)
}
