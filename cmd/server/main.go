// Command server runs the global identity matching service: the matching
// decision engine, the cross-tenant pedigree builder, and their HTTP surface.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	identitystore "github.com/breederhq/identity/internal/identity/store"
	"github.com/breederhq/identity/internal/matching"
	matchhandler "github.com/breederhq/identity/internal/matching/handler"
	matchmetrics "github.com/breederhq/identity/internal/matching/metrics"
	"github.com/breederhq/identity/internal/pedigree"
	pedigreecache "github.com/breederhq/identity/internal/pedigree/cache"
	pedigreehandler "github.com/breederhq/identity/internal/pedigree/handler"
	pedigreemetrics "github.com/breederhq/identity/internal/pedigree/metrics"
	"github.com/breederhq/identity/internal/platform/config"
	"github.com/breederhq/identity/internal/platform/httpserver"
	"github.com/breederhq/identity/internal/platform/logger"
	platformmetrics "github.com/breederhq/identity/internal/platform/metrics"
	"github.com/breederhq/identity/internal/platform/middleware"
	platformredis "github.com/breederhq/identity/internal/platform/redis"
	"github.com/breederhq/identity/pkg/platform/audit"
	auditkafka "github.com/breederhq/identity/pkg/platform/audit/publishers/kafka"
)

// graphStore is what both services need from the identity graph.
type graphStore interface {
	matching.Store
	pedigree.Store
}

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var graph graphStore
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		graph = identitystore.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		graph = identitystore.NewMemory()
	}

	rdb, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var sink audit.Sink
	var kafkaSink *auditkafka.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err = auditkafka.New(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	} else {
		log.Warn("KAFKA_BROKERS not set, audit events stay in memory")
		sink = audit.NewMemorySink()
	}
	publisher := audit.NewPublisher(sink, audit.WithLogger(log))

	matcher, err := matching.New(graph,
		matching.WithLogger(log),
		matching.WithMetrics(matchmetrics.New()),
		matching.WithAuditPublisher(publisher),
	)
	if err != nil {
		log.Error("construct matching service", "error", err)
		os.Exit(1)
	}

	pedigreeOpts := []pedigree.Option{
		pedigree.WithLogger(log),
		pedigree.WithMetrics(pedigreemetrics.New()),
	}
	if rdb != nil {
		pedigreeOpts = append(pedigreeOpts, pedigree.WithCache(
			pedigreecache.NewRedis(rdb.Client, cfg.PedigreeCacheTTL)))
	}
	trees, err := pedigree.New(graph, pedigreeOpts...)
	if err != nil {
		log.Error("construct pedigree service", "error", err)
		os.Exit(1)
	}

	httpMetrics := platformmetrics.NewHTTP()

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(httpMetrics.Middleware)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if rdb != nil {
			if err := rdb.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Tenant(log))
		matchhandler.New(matcher, log).Register(r)
		pedigreehandler.New(trees, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting identity service", "addr", cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		log.Error("audit drain failed", "error", err)
	}
}
