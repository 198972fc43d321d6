package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/executor"
	searchhandler "github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app is the assembled service: the index, its persistor, the optional
// backends and the HTTP handler that fronts them.
type app struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	engine    *indexer.Engine
	persistor *indexer.Persistor
	checker   *health.Checker
	handler   http.Handler

	redis    *pkgredis.Client
	postgres *postgres.Client
	producer *kafka.Producer
	feed     *events.Feed
}

// connectRetry is used for the optional backends at startup.
var connectRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// newApp wires every component and loads the snapshot. Optional backends
// that cannot be reached are logged and left out; the index works without
// them.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		checker:  health.NewChecker(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	var notifier events.Notifier = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		a.producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
		a.feed = events.NewFeed(a.producer, 10000)
		a.feed.Start(context.Background())
		notifier = a.feed
		slog.Info("change feed enabled",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topics.DocumentEvents,
		)
	}

	retry := connectRetry
	retry.Metrics = a.metrics

	var docCatalog indexer.Catalog
	var docReader ingesthandler.DocumentCatalog
	if cfg.Postgres.Enabled {
		err := resilience.Retry(ctx, "postgres connect", retry, func() error {
			client, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			a.postgres = client
			return nil
		})
		if err != nil {
			slog.Warn("postgres unavailable, document catalog disabled", "error", err)
		} else {
			store := catalog.NewStore(a.postgres, catalog.WithStoreMetrics(a.metrics))
			if err := store.EnsureSchema(ctx); err != nil {
				a.close(context.Background())
				return nil, err
			}
			docCatalog = store
			docReader = store
			slog.Info("document catalog enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		}
	}

	idx := index.NewMemoryIndex(cfg.Indexer.RankParams())
	a.engine = indexer.NewEngine(idx, indexer.Options{
		DirectoryWorkers: cfg.Indexer.DirectoryWorkers,
		MaxResults:       cfg.Search.MaxResults,
		Catalog:          docCatalog,
		Notifier:         notifier,
		Metrics:          a.metrics,
	})
	a.persistor = indexer.NewPersistor(idx, cfg.Indexer.SnapshotPath, cfg.Indexer.PersistInterval,
		indexer.WithPersistMetrics(a.metrics),
		indexer.WithPersistNotifier(notifier),
	)

	loaded, err := a.persistor.Load()
	if err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("restoring index from %s: %w", cfg.Indexer.SnapshotPath, err)
	}
	a.engine.RefreshGauges()
	if loaded {
		if err := a.engine.SyncCatalog(ctx); err != nil {
			slog.Warn("catalog reconciliation failed", "error", err)
		}
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		err := resilience.Retry(ctx, "redis connect", retry, func() error {
			client, err := pkgredis.NewClient(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			a.redis = client
			return nil
		})
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			queryCache = cache.New(a.redis, cfg.Redis.CacheTTL, a.engine.Generation)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	a.registerChecks()

	search := searchhandler.New(executor.New(a.engine), a.engine, queryCache, a.metrics,
		cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	ingest := ingesthandler.New(a.engine, docReader)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", search.Search)
	mux.HandleFunc("POST /api/v1/search", search.SearchPost)
	mux.HandleFunc("GET /api/v1/stats", search.Stats)
	mux.HandleFunc("GET /api/v1/terms/{term}", search.Term)
	mux.HandleFunc("GET /api/v1/cache/stats", search.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", search.CacheInvalidate)
	mux.HandleFunc("POST /api/v1/index", ingest.Index)
	mux.HandleFunc("POST /api/v1/index-directory", ingest.IndexDirectory)
	mux.HandleFunc("GET /api/v1/documents", ingest.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{key}", ingest.GetDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{key}", ingest.Remove)
	mux.HandleFunc("GET /health/live", a.checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", a.checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(a.metrics)(chain)
	chain = middleware.RequestID(chain)
	a.handler = chain

	return a, nil
}

func (a *app) registerChecks() {
	a.checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := a.engine.Stats()
		return health.Up(fmt.Sprintf("%d documents, %d terms", stats.Documents, stats.Terms))
	})
	if a.cfg.Redis.Enabled {
		a.checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if a.redis == nil {
				return health.Degraded("not connected")
			}
			if err := a.redis.Ping(ctx); err != nil {
				return health.Degraded(err.Error())
			}
			return health.Up("")
		})
	}
	if a.cfg.Postgres.Enabled {
		a.checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if a.postgres == nil {
				return health.Degraded("not connected")
			}
			if err := a.postgres.Ping(ctx); err != nil {
				return health.Degraded(err.Error())
			}
			return health.Up("")
		})
	}
}

// start begins periodic persistence.
func (a *app) start() {
	a.persistor.Start()
}

// close stops the persistor, which writes a final snapshot, then drains the
// change feed and releases backend connections.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.persistor != nil {
		if err := a.persistor.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping persistor: %w", err))
		}
	}
	if a.feed != nil {
		err := resilience.WithTimeout(ctx, 5*time.Second, "change feed drain", func(context.Context) error {
			a.feed.Close()
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing kafka producer: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if a.postgres != nil {
		if err := a.postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}
