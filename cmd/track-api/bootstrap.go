package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/LiveTrack/config"
	"github.com/BearBump/LiveTrack/internal/api/gateway"
	"github.com/BearBump/LiveTrack/internal/auth"
	"github.com/BearBump/LiveTrack/internal/broker/kafka"
	"github.com/BearBump/LiveTrack/internal/cache"
	"github.com/BearBump/LiveTrack/internal/cache/rediscache"
	"github.com/BearBump/LiveTrack/internal/integrations/orders"
	"github.com/BearBump/LiveTrack/internal/integrations/orders/fake"
	"github.com/BearBump/LiveTrack/internal/integrations/orders/orderhttp"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/BearBump/LiveTrack/internal/services/trackings"
	"github.com/BearBump/LiveTrack/internal/storage/memtracking"
	"github.com/BearBump/LiveTrack/internal/storage/pgtracking"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type trackAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   trackAPIOpts
	deps   trackAPIDeps

	closers []func()
}

func mustBootstrapTrackAPI() *trackAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	lt := cfg.LiveTrack

	httpAddr := lt.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := lt.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "track-api"
	}
	topic := cfg.Kafka.TrackingEventsTopicName
	if topic == "" {
		topic = "tracking.events"
	}
	cacheTTL := time.Duration(lt.CurrentStateTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	// у каждого инстанса свой id, иначе он отбросит чужие события как свои
	instanceID := resolveInstanceID(lt.InstanceID, os.Hostname)

	app := &trackAPIApp{}
	pingers := map[string]pinger{}

	var repo trackings.Repository
	switch lt.StorageDriver {
	case "memory":
		slog.Warn("using in-memory tracking storage, records are lost on restart")
		repo = memtracking.New()
	default:
		st := mustOpenPostgresWithRetry(cfg.Database.PostgresDSN(), 60*time.Second)
		app.closers = append(app.closers, st.Close)
		pingers["postgres"] = st
		repo = st
	}

	var (
		svcOpts = trackings.Options{CacheTTL: cacheTTL, Topic: topic, InstanceID: instanceID}
		limiter gateway.RateLimiter
	)
	if cfg.Redis.Host != "" {
		rc := rediscache.New(cfg.Redis.Addr())
		app.closers = append(app.closers, func() { _ = rc.Close() })
		pingers["redis"] = rc
		svcOpts.Cache = rc
		limiter = rediscache.NewRateLimiterFromClient(rc.Client())
	} else {
		slog.Warn("redis is not configured, current-state cache and socket rate limits are off")
	}

	var orderClient orders.Client
	if lt.OrdersBaseURL != "" {
		orderClient = orderhttp.New(lt.OrdersBaseURL, lt.OrdersAPIKey)
	} else {
		slog.Warn("orders_base_url is empty, using in-memory order fixtures")
		orderClient = fake.New()
	}

	var consumer kafkaConsumer
	if cfg.Kafka.Host != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers())
		c := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:    cfg.Kafka.Brokers(),
			Topic:      topic,
			GroupID:    consumerGroup,
			InstanceID: instanceID,
			FromLatest: true,
		})
		app.closers = append(app.closers, func() { _ = producer.Close() }, func() { _ = c.Close() })
		svcOpts.Producer = producer
		consumer = c
	} else {
		slog.Warn("kafka is not configured, events stay on this instance")
	}
	svcOpts.Cache = currentStateCache(svcOpts.Cache, consumer != nil)

	if lt.JWTSecret == "" {
		slog.Warn("jwt_secret is empty, every caller is anonymous")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rtMetrics, err := realtime.NewMetrics(promReg)
	if err != nil {
		panic(err)
	}
	wsMetrics, err := gateway.NewMetrics(promReg)
	if err != nil {
		panic(err)
	}

	broadcaster := realtime.NewBroadcaster(realtime.NewRegistry(rtMetrics), rtMetrics)
	svc := trackings.New(repo, orderClient, broadcaster, svcOpts)
	gw := gateway.New(broadcaster, gateway.Options{
		AllowGuest:              lt.AllowGuestTracking,
		SendBuffer:              lt.WSSendBuffer,
		WriteTimeout:            time.Duration(lt.WSWriteTimeoutSeconds) * time.Second,
		PongWait:                time.Duration(lt.WSPongWaitSeconds) * time.Second,
		Limiter:                 limiter,
		LocationRelaysPerMinute: int64(lt.DriverLocationRateLimitPerMinute),
		Metrics:                 wsMetrics,
	})

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = trackAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         topic,
		consumerGroup: consumerGroup,
	}
	app.deps = trackAPIDeps{
		svc:           svc,
		broadcaster:   broadcaster,
		gateway:       gw,
		authenticator: auth.New(lt.JWTSecret),
		gatherer:      promReg,
		consumer:      consumer,
		pingers:       pingers,
	}
	slog.Info("track-api configured",
		"instance_id", instanceID,
		"storage", storageName(lt.StorageDriver),
		"topic", topic,
		"guest_tracking", lt.AllowGuestTracking,
	)
	return app
}

// resolveInstanceID also names this instance's kafka consumer group, so it must survive
// restarts: a new id leaves the old group behind on the broker.
func resolveInstanceID(configured string, hostname func() (string, error)) string {
	if configured != "" {
		return configured
	}
	if h, err := hostname(); err == nil && h != "" {
		return h
	}
	id := uuid.NewString()
	slog.Warn("instance_id is empty and hostname is unknown, using a random id", "instance_id", id)
	return id
}

// currentStateCache turns the read cache off when worker writes cannot invalidate it:
// without the events topic nothing tells this instance that a cached record is stale.
func currentStateCache(c cache.BytesCache, relayed bool) cache.BytesCache {
	if c == nil || relayed {
		return c
	}
	slog.Warn("kafka is not configured, current-state cache is off")
	return nil
}

func storageName(driver string) string {
	if driver == "" {
		return "postgres"
	}
	return driver
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgtracking.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgtracking.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

// Close releases resources in reverse order of creation.
func (a *trackAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *trackAPIApp) Run() error {
	return runTrackAPI(a.ctx, a.opts, a.deps)
}
