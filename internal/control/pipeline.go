package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/tabellenwerk/standings/internal/core/config"
	"github.com/tabellenwerk/standings/internal/infra/blob"
	redisclient "github.com/tabellenwerk/standings/internal/infra/redis"
	"github.com/tabellenwerk/standings/internal/infra/storage"
	"github.com/tabellenwerk/standings/internal/infra/storage/memory"
	"github.com/tabellenwerk/standings/internal/infra/storage/postgres"
	"github.com/tabellenwerk/standings/internal/standings/cache"
	"github.com/tabellenwerk/standings/internal/standings/engine"
	"github.com/tabellenwerk/standings/internal/standings/fallback"
	"github.com/tabellenwerk/standings/internal/standings/faults"
	"github.com/tabellenwerk/standings/internal/standings/health"
	"github.com/tabellenwerk/standings/internal/standings/queue"
	"github.com/tabellenwerk/standings/internal/standings/snapshot"
)

// Pipeline is the main application struct that wires storage, cache,
// engine, snapshots and the job queue, and manages their lifecycle.
type Pipeline struct {
	cfg          *config.AppConfig
	engine       *engine.Engine
	manager      *queue.Manager
	snapshots    *snapshot.Service
	tableCache   *cache.Cache
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewPipeline creates a Pipeline with all dependencies initialized.
// Without a database URL it runs fully in memory; without Redis the
// cache degrades to pass-through.
func NewPipeline(cfg *config.AppConfig, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Storage
	var (
		matchRepo     storage.MatchRepository
		standingsRepo storage.StandingsRepository
		jobRepo       storage.JobRepository
		txm           storage.TransactionManager
		db            *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		matchRepo = postgres.NewMatchRepo(db)
		standingsRepo = postgres.NewStandingsRepo(db)
		jobRepo = postgres.NewJobRepo(db)
		txm = postgres.NewTxManager(db)
		log.Info("using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		matchRepo = memory.NewMatchRepo(store)
		standingsRepo = memory.NewStandingsRepo(store)
		jobRepo = memory.NewJobRepo(store)
		txm = memory.NewTxManager(store)
		log.Info("using memory storage")
	}

	// 2. Cache (optional)
	var redisClient *redisclient.Client
	var backend cache.Backend
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("failed to connect to Redis, cache disabled", "error", err)
		} else {
			backend = redisClient
		}
	}
	tableCache := cache.New(backend, cfg.Cache.Config, log)

	// 3. Snapshot blob store
	var store blob.Store
	switch cfg.Snapshots.Backend {
	case "s3":
		s3, err := blob.NewS3Store(context.Background(), cfg.Snapshots.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 snapshot store: %w", err)
		}
		store = s3
	default:
		fs, err := blob.NewFSStore(cfg.Snapshots.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to init snapshot store: %w", err)
		}
		store = fs
	}

	// 4. Core components
	eng := engine.New(matchRepo, standingsRepo, txm, tableCache, log)
	snapshots := snapshot.NewService(standingsRepo, txm, store, cfg.Snapshots.Config, log)
	fb := fallback.NewStrategy(snapshots, nil, log)
	breaker := faults.NewCircuitBreaker(faults.DefaultBreakerConfig)
	manager := queue.NewManager(cfg.Queue, eng, breaker, fb, jobRepo, log)

	// 5. Health and admin surface
	var dbPinger, cachePinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		cachePinger = redisClient
	}
	monitor := health.NewMonitor(dbPinger, cachePinger, manager, breaker, log)
	healthServer := health.NewServer(monitor, manager, snapshots, cfg.Server.Port)

	return &Pipeline{
		cfg:          cfg,
		engine:       eng,
		manager:      manager,
		snapshots:    snapshots,
		tableCache:   tableCache,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Start launches the HTTP server, queue loops, DB metrics collection and
// cache warm-up. It returns immediately; ctx cancellation stops the
// background work.
func (p *Pipeline) Start(ctx context.Context) error {
	go func() {
		if err := p.healthServer.Start(); err != nil && ctx.Err() == nil {
			p.log.Error("http server failed", "error", err)
		}
	}()

	if p.db != nil {
		p.db.StartMetricsCollector(ctx)
	}

	p.manager.Start(ctx)
	go p.snapshots.CleanupLoop(ctx, 6*time.Hour)

	if len(p.cfg.Cache.WarmTargets) > 0 {
		go p.tableCache.Warm(ctx, p.cfg.Cache.WarmTargets, p.engine.CalculateTable)
	}

	p.log.Info("pipeline started", "port", p.cfg.Server.Port)
	return nil
}

// Stop drains in-flight jobs and shuts the HTTP server down, bounded by
// ctx.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.log.Info("stopping pipeline")

	if err := p.manager.Stop(ctx); err != nil {
		p.log.Warn("queue drain interrupted", "error", err)
	}
	if p.redisClient != nil {
		if err := p.redisClient.Close(); err != nil {
			p.log.Warn("failed to close Redis", "error", err)
		}
	}
	return p.healthServer.Stop(ctx)
}

// Manager exposes the queue manager for embedding callers.
func (p *Pipeline) Manager() *queue.Manager { return p.manager }

// Snapshots exposes the snapshot service for embedding callers.
func (p *Pipeline) Snapshots() *snapshot.Service { return p.snapshots }
