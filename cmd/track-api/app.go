package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/BearBump/LiveTrack/internal/api/gateway"
	trackingsapi "github.com/BearBump/LiveTrack/internal/api/trackings_api"
	"github.com/BearBump/LiveTrack/internal/auth"
	"github.com/BearBump/LiveTrack/internal/broker/messages"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/BearBump/LiveTrack/internal/services/trackings"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
)

type trackAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	consumerRetry time.Duration

	onListen func(httpAddr string)
}

type trackAPIDeps struct {
	svc           *trackings.Service
	broadcaster   *realtime.Broadcaster
	gateway       *gateway.Gateway
	authenticator *auth.Authenticator
	gatherer      prometheus.Gatherer

	// nil when kafka is not configured
	consumer kafkaConsumer
	pingers  map[string]pinger
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

func runTrackAPI(ctx context.Context, opts trackAPIOpts, deps trackAPIDeps) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{
		Handler:           newRouter(opts, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// запросы завершены, дожидаемся публикаций, потом закрываем сокеты с дозаписью очередей
		if deps.broadcaster != nil {
			if cerr := deps.broadcaster.Close(shutdownCtx); cerr != nil {
				slog.Warn("broadcaster drain timed out", "error", cerr)
			}
		}
		// hijacked websocket connections are not covered by Shutdown
		deps.gateway.Close()
		return err
	})
	if deps.consumer != nil {
		g.Go(func() error {
			consumeEvents(gctx, opts, deps.consumer, deps.svc)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// consumeEvents relays events from other instances and the worker until ctx is done.
// A broken broker connection is retried, a broken message is skipped.
func consumeEvents(ctx context.Context, opts trackAPIOpts, consumer kafkaConsumer, svc *trackings.Service) {
	retry := opts.consumerRetry
	if retry <= 0 {
		retry = 2 * time.Second
	}
	slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
	for {
		err := consumer.Consume(ctx, func(_, value []byte) error {
			ev, err := messages.Decode(value)
			if err != nil {
				slog.Warn("skipping tracking event", "error", err)
				return nil
			}
			return svc.ApplyRemoteEvent(ctx, ev)
		})
		if ctx.Err() != nil {
			return
		}
		slog.Warn("kafka consumer stopped, restarting", "error", err, "retry_in", retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

func newRouter(opts trackAPIOpts, deps trackAPIDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", readyzHandler(deps.pingers))
	r.Handle("/metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Group(func(r chi.Router) {
		r.Use(deps.authenticator.Middleware)
		r.Mount("/api/tracking", trackingsapi.New(deps.svc).Routes())
		r.Handle("/ws", deps.gateway)
	})
	return r
}

func readyzHandler(pingers map[string]pinger) http.HandlerFunc {
	names := make([]string, 0, len(pingers))
	for name := range pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(names))
		for _, name := range names {
			if err := pingers[name].Ping(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", name, "error", err)
				checks[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"ready": status == http.StatusOK, "checks": checks})
	}
}
