package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/LiveTrack/config"
	"github.com/BearBump/LiveTrack/internal/broker/kafka"
	"github.com/BearBump/LiveTrack/internal/cache/rediscache"
	"github.com/BearBump/LiveTrack/internal/services/poller"
	"github.com/BearBump/LiveTrack/internal/storage/memtracking"
	"github.com/BearBump/LiveTrack/internal/storage/pgtracking"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type workerFactories struct {
	newStorage func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	// nil producer: results are stored but not published
	newProducer func(cfg *config.Config) (poller.Producer, func())
	// nil store: stationary detection is off
	newSnapshotStore func(cfg *config.Config, ttl time.Duration) (poller.SnapshotStore, func())
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (poller.Repository, func(), error) {
			if cfg.LiveTrack.StorageDriver == "memory" {
				slog.Warn("worker runs on in-memory storage, it sees only its own records")
				st := memtracking.New()
				return st, st.Close, nil
			}
			st, err := pgtracking.New(cfg.Database.PostgresDSN())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) (poller.Producer, func()) {
			if cfg.Kafka.Host == "" {
				return nil, func() {}
			}
			p := kafka.NewProducer(cfg.Kafka.Brokers())
			return p, func() { _ = p.Close() }
		},
		newSnapshotStore: func(cfg *config.Config, ttl time.Duration) (poller.SnapshotStore, func()) {
			if cfg.Redis.Host == "" {
				return nil, func() {}
			}
			c := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
			return rediscache.NewSnapshotStore(c, ttl), func() { _ = c.Close() }
		},
	}
}

func plannerConfig(cfg *config.Config) poller.PlannerConfig {
	return poller.PlannerConfig{
		StationaryWindow:       time.Duration(cfg.LiveTrack.WorkerStationaryWindowSeconds) * time.Second,
		StationaryRadiusMeters: cfg.LiveTrack.WorkerStationaryRadiusMeters,
	}
}

// workerOrigin never equals an api instance id, even when both read the same config:
// an api instance drops events that carry its own origin.
func workerOrigin(configured string) string {
	if configured == "" {
		return "worker-" + uuid.NewString()
	}
	if strings.HasPrefix(configured, "worker-") {
		return configured
	}
	return "worker-" + configured
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts) error {
	topic := cfg.Kafka.TrackingEventsTopicName
	if topic == "" {
		topic = "tracking.events"
	}
	instanceID := workerOrigin(cfg.LiveTrack.InstanceID)

	pollInterval := time.Duration(cfg.LiveTrack.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	batchSize := cfg.LiveTrack.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.LiveTrack.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer, closeProducer := f.newProducer(cfg)
	defer closeProducer()
	if producer == nil {
		slog.Warn("kafka is not configured, worker results are not published")
	}

	planner := poller.NewPlanner(plannerConfig(cfg))
	// якорь должен пережить окно с запасом, иначе флаг не выставится никогда
	snapshots, closeSnapshots := f.newSnapshotStore(cfg, 4*planner.Config().StationaryWindow)
	defer closeSnapshots()
	if snapshots == nil {
		slog.Warn("redis is not configured, stationary detection is off")
	}

	p := poller.New(repo, producer, snapshots, topic, instanceID).
		WithSettings(pollInterval, batchSize, concurrency).
		WithPlanner(planner.Config())

	slog.Info("track-worker started",
		"instance_id", instanceID,
		"topic", topic,
		"poll_interval", pollInterval.String(),
		"batch_size", batchSize,
		"concurrency", concurrency,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	if httpOpts.swaggerPath != "" {
		httpOpts.poller = p
		httpOpts.cfg = cfg
		if httpOpts.httpAddr == "" {
			httpOpts.httpAddr = cfg.LiveTrack.WorkerHTTPAddr
		}
		g.Go(func() error {
			return runWorkerHTTPServer(gctx, httpOpts)
		})
	} else {
		slog.Warn("worker swaggerPath is empty, ops HTTP server is off")
	}
	return g.Wait()
}
