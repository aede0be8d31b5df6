package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/config"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/internal/repositories"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/database"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/events"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/graph"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/kafka"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/locks"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/reconcile"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/routes/health"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store/memory"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// app holds the process-wide dependencies. Each open* method registers a
// closer, so a partially built app still shuts down cleanly.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db     *sqlx.DB
	store  *store.Store
	memory *memory.Memory
	locker locks.Locker
	sinks  []events.Sink
	health *health.Checker

	closers []func(ctx context.Context) error
}

type engineOptions struct {
	memory bool
}

// withApp loads config, builds the logger and tracer provider, then calls fn.
func withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	a := &app{
		cfg:    cfg,
		logger: zapadapter.NewZapEctoLogger(zapLogger, nil),
		health: health.NewChecker(version, cfg.HealthCheckTimeout),
	}
	defer a.close(context.WithoutCancel(ctx))

	shutdown, err := tracing.Setup(ctx, cfg.Tracing())
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	a.onClose(shutdown)

	return fn(a)
}

// withEngine builds the store, locker and sinks and hands a ready engine to fn.
func withEngine(ctx context.Context, opts engineOptions, fn func(*app, *reconcile.Engine) error) error {
	return withApp(ctx, func(a *app) error {
		if err := a.openStore(ctx, opts.memory); err != nil {
			return err
		}
		if err := a.openLocker(ctx); err != nil {
			return err
		}
		if err := a.openSinks(ctx); err != nil {
			return err
		}
		engine, err := a.engine()
		if err != nil {
			return err
		}
		return fn(a, engine)
	})
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close(ctx context.Context) {
	for _, fn := range slices.Backward(a.closers) {
		if err := fn(ctx); err != nil {
			a.logger.WithError(err).Warn("Failed to release dependency")
		}
	}
	a.closers = nil
}

// openDB connects to postgres without building the store
func (a *app) openDB(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	db, err := database.Connect(ctx, a.cfg.Database(), a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.onClose(func(context.Context) error { return db.Close() })
	a.health.AddCheck("postgres", db.PingContext)
	return nil
}

func (a *app) openStore(ctx context.Context, inMemory bool) error {
	if a.store != nil {
		return nil
	}
	if inMemory {
		a.memory = memory.New()
		a.store = a.memory.Store()
		a.logger.Info("Using in-memory store")
		return nil
	}
	if err := a.openDB(ctx); err != nil {
		return err
	}
	a.store = repositories.NewStore(database.NewDatabaseInstance(a.db, a.logger), a.logger)
	return nil
}

// openLocker uses Redis when enabled so several processes can share a store
func (a *app) openLocker(ctx context.Context) error {
	if a.locker != nil {
		return nil
	}
	if !a.cfg.RedisEnabled {
		a.locker = locks.NewLocal(a.cfg.LockWait)
		return nil
	}
	rdb, err := locks.NewRedisClient(ctx, a.cfg.Redis(), a.logger)
	if err != nil {
		return err
	}
	a.onClose(func(context.Context) error { return rdb.Close() })
	a.health.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	a.locker = locks.NewRedis(rdb, a.logger, a.cfg.RedisKeyPrefix, a.cfg.RedisLockTTL, a.cfg.LockWait)
	return nil
}

func (a *app) openSinks(ctx context.Context) error {
	if a.sinks != nil {
		return nil
	}
	var sinks []events.Sink

	if a.cfg.GraphEnabled {
		client, err := graph.NewClient(a.cfg.Graph(), a.logger)
		if err != nil {
			return err
		}
		if err := client.VerifyConnectivity(ctx); err != nil {
			_ = client.Close(ctx)
			return fmt.Errorf("graph database unreachable: %w", err)
		}
		a.onClose(client.Close)
		a.health.AddCheck("graph", client.VerifyConnectivity)
		sinks = append(sinks, graph.NewProjector(client, a.logger))
	}

	if a.cfg.KafkaEventsEnabled {
		producer := kafka.NewProducer(a.cfg.Producer(), a.logger)
		a.onClose(func(context.Context) error { return producer.Close() })
		sinks = append(sinks, events.NewEmitter(producer, a.logger))
	}

	a.sinks = append([]events.Sink{}, sinks...)
	return nil
}

func (a *app) engine() (*reconcile.Engine, error) {
	opts := []reconcile.Option{reconcile.WithLocker(a.locker)}
	switch len(a.sinks) {
	case 0:
	case 1:
		opts = append(opts, reconcile.WithSink(a.sinks[0]))
	default:
		opts = append(opts, reconcile.WithSink(events.Fanout(a.sinks)))
	}
	return reconcile.NewEngine(a.logger, a.store, a.cfg.Reconcile(), opts...)
}
