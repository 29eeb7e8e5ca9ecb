package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/taskgate/internal/config"
	"github.com/phrazzld/taskgate/internal/events"
	"github.com/phrazzld/taskgate/internal/platform/metrics"
	"github.com/phrazzld/taskgate/internal/platform/postgres"
	"github.com/phrazzld/taskgate/internal/platform/redisstore"
	"github.com/phrazzld/taskgate/internal/platform/sqlite"
	"github.com/phrazzld/taskgate/internal/redact"
	"github.com/phrazzld/taskgate/internal/store"
	"github.com/phrazzld/taskgate/internal/task"
	"github.com/phrazzld/taskgate/internal/work/httpwork"
)

// httpManager is the manager type the demo consumer drives.
type httpManager = task.Manager[httpwork.Progress, httpwork.Response]

// application holds the shared dependencies of the run command and releases
// them on cleanup.
type application struct {
	config *config.Config
	logger *slog.Logger

	loop    *task.Loop
	pool    *task.WorkerPool
	emitter *events.InMemoryEventEmitter

	registry  *prometheus.Registry
	snapshots store.SnapshotStore
	http      *httpwork.Client

	closers []func() error
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		loop:     task.NewLoop(logger),
		emitter:  events.NewInMemoryEventEmitter(logger),
		registry: prometheus.NewRegistry(),
		http:     httpwork.NewClient(cfg.HTTP, logger),
	}

	app.registry.MustRegister(collectors.NewGoCollector())
	app.emitter.RegisterHandler(metrics.NewCollector(app.registry))
	app.emitter.RegisterHandler(events.HandlerFunc(func(ctx context.Context, event *events.LifecycleEvent) error {
		logger.Debug("lifecycle event",
			"kind", event.Kind,
			"task_id", event.TaskID,
			"run_id", event.RunID,
			"error", event.Error)
		return nil
	}))

	snapshots, closeStore, err := openSnapshotStore(ctx, cfg.Snapshot, logger)
	if err != nil {
		return nil, err
	}
	app.snapshots = snapshots
	app.closers = append(app.closers, closeStore)

	queue := task.NewJobQueue(cfg.Tasks.QueueSize, logger)
	app.pool = task.NewWorkerPool(queue, task.WorkerPoolConfig{WorkerCount: cfg.Tasks.WorkerCount}, logger)
	app.pool.SetErrorHandler(func(err error) {
		logger.Error("worker job failed", "error", err)
	})
	app.pool.Start()

	logger.Info("application initialized",
		"worker_count", cfg.Tasks.WorkerCount,
		"queue_size", cfg.Tasks.QueueSize,
		"snapshot_backend", cfg.Snapshot.Backend,
		"snapshot_target", snapshotTarget(cfg.Snapshot))
	return app, nil
}

// snapshotTarget describes where snapshots go, with credentials masked.
func snapshotTarget(cfg config.SnapshotConfig) string {
	switch cfg.Backend {
	case "redis":
		return redact.URL(cfg.RedisAddr)
	case "postgres":
		return redact.URL(cfg.DatabaseURL)
	case "sqlite":
		return cfg.SQLitePath
	default:
		return "in-process"
	}
}

// newManager creates an inactive manager on the application's loop and pool.
func (app *application) newManager() *httpManager {
	m := task.NewManager[httpwork.Progress, httpwork.Response](
		app.loop,
		app.pool,
		task.ManagerConfig{InterruptOnCancel: app.config.Tasks.InterruptOnCancel},
		app.logger,
	)
	m.SetEmitter(app.emitter)
	return m
}

// cleanup stops the workers, closes the loop and releases the snapshot
// backend. Queued jobs still run, with a cancelled context.
func (app *application) cleanup() {
	app.pool.Stop()
	app.loop.Close()
	for _, closeFn := range app.closers {
		if err := closeFn(); err != nil {
			app.logger.Error("failed to release resource", "error", err)
		}
	}
}

// openSnapshotStore connects the configured backend. The returned func
// releases its connection.
func openSnapshotStore(
	ctx context.Context,
	cfg config.SnapshotConfig,
	logger *slog.Logger,
) (store.SnapshotStore, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemorySnapshotStore(), func() error { return nil }, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", redact.URL(cfg.RedisAddr), err)
		}
		return redisstore.NewSnapshotStore(client, cfg.TTL, logger), client.Close, nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewSnapshotStore(db, logger), db.Close, nil

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewSnapshotStore(db, logger), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}
