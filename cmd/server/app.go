package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-content/internal/content"
	"github.com/p-n-ai/pai-content/internal/curriculum"
	"github.com/p-n-ai/pai-content/internal/platform/cache"
	"github.com/p-n-ai/pai-content/internal/platform/config"
	"github.com/p-n-ai/pai-content/internal/platform/database"
	"github.com/p-n-ai/pai-content/internal/platform/docstore"
	"github.com/p-n-ai/pai-content/internal/stats"
	"github.com/p-n-ai/pai-content/internal/tasks"
	"github.com/p-n-ai/pai-content/internal/validation"
)

// app holds the wired engine and the resources it owns.
type app struct {
	svc     *content.Service
	catalog *curriculum.Catalog
	pool    *tasks.Pool
	checks  map[string]healthCheck
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, collab tasks.Collaborators) (*app, error) {
	a := &app{checks: map[string]healthCheck{}}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	catalog, err := curriculum.NewCatalog(cfg.CurriculumPath)
	if err != nil {
		return nil, err
	}
	a.catalog = catalog

	store, events, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	statsCache := stats.Cache(stats.NewMemoryCache())
	usage := content.UsageCounter(content.NewMemoryUsageCounter())
	if cfg.Cache.Driver == config.CacheRedis {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		a.closers = append(a.closers, func() { c.Close() })
		a.checks["cache"] = c.HealthCheck
		statsCache = stats.NewRedisCache(c)
		usage = content.NewRedisUsageCounter(c.Client)
	}

	slideValidator, err := validation.NewSlideContentValidator()
	if err != nil {
		return nil, err
	}

	a.pool = tasks.NewPool(tasks.PoolConfig{
		Workers:   cfg.Tasks.Workers,
		QueueSize: cfg.Tasks.QueueSize,
	})

	a.svc = content.NewService(content.ServiceConfig{
		Store:      store,
		Topics:     catalog,
		Cache:      statsCache,
		StatsTTL:   cfg.Cache.StatsTTL,
		Usage:      usage,
		Events:     events,
		Tasks:      a.pool,
		Validators: map[content.ContentType]validation.Validator{content.TypeSlide: slideValidator},
	})

	a.pool.RegisterCollaborators(collab)
	a.pool.Start(ctx)
	a.closers = append(a.closers, a.pool.Stop)

	ok = true
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config) (content.Store, content.EventLogger, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.checks["database"] = db.HealthCheck
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return nil, nil, fmt.Errorf("migrating database: %w", err)
			}
			slog.Info("database schema applied")
		}
		store, err := content.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, nil, err
		}
		return store, content.NewPostgresEventLogger(db.Pool), nil

	case config.StoreMongo:
		ds, err := docstore.New(ctx, cfg.Mongo.URL, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ds.Close(closeCtx)
		})
		a.checks["mongo"] = ds.HealthCheck
		if err := ds.EnsureIndexes(ctx, content.MongoCollection, content.MongoIndexes()); err != nil {
			return nil, nil, err
		}
		if err := ds.EnsureIndexes(ctx, content.MongoEventCollection, content.MongoEventIndexes()); err != nil {
			return nil, nil, err
		}
		store, err := content.NewMongoStore(ds.Client, ds.DB)
		if err != nil {
			return nil, nil, err
		}
		return store, content.NewMongoEventLogger(ds.DB), nil

	default:
		slog.Warn("using in-memory content store, data is lost on restart")
		return content.NewMemoryStore(), content.NewMemoryEventLogger(), nil
	}
}

// sweepIntegrity checks every catalog topic once and logs the ones whose
// sequence would not pass a pre-publish check.
func (a *app) sweepIntegrity(ctx context.Context) {
	var bad int
	for _, topic := range a.catalog.AllTopics() {
		if ctx.Err() != nil {
			return
		}
		report, err := a.svc.ValidateSequenceIntegrity(ctx, topic.ID)
		if err != nil {
			slog.Warn("integrity sweep failed", "topic_id", topic.ID, "error", err)
			continue
		}
		if !report.OK {
			bad++
			slog.Warn("topic sequence has violations", "topic_id", topic.ID, "violations", report.Violations)
		}
	}
	slog.Info("integrity sweep finished", "topics", len(a.catalog.AllTopics()), "with_violations", bad)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
