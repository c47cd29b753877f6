package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/segmentio/kafka-go"

	"github.com/example/delivery-coordinator/internal/config"
	"github.com/example/delivery-coordinator/internal/dispatch"
	"github.com/example/delivery-coordinator/internal/hub"
	httpapi "github.com/example/delivery-coordinator/internal/http"
	"github.com/example/delivery-coordinator/internal/ingest"
	"github.com/example/delivery-coordinator/internal/lifecycle"
	"github.com/example/delivery-coordinator/internal/locations"
	"github.com/example/delivery-coordinator/internal/logging"
	"github.com/example/delivery-coordinator/internal/match"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/observability"
	"github.com/example/delivery-coordinator/internal/presence"
	"github.com/example/delivery-coordinator/internal/session"
	"github.com/example/delivery-coordinator/internal/store"
	"github.com/example/delivery-coordinator/internal/stream"
)

// watchable stores expose the change-feed hooks the hub rides on.
type watchable interface {
	WatchJobs(store.JobWatcher)
	WatchSamples(store.SampleWatcher)
}

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	var st store.Store
	if cfg.PGDSN != "" {
		ps, err := store.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "err", err)
			os.Exit(1)
		}
		st = ps
	} else {
		st = store.NewMemoryStore()
	}

	var idx presence.Index
	if cfg.RedisAddr != "" {
		idx = presence.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		idx = presence.NewMemoryIndex()
	}

	h := hub.New()
	h.OnDrop(func(string) { observability.HubDropped.Inc() })

	// The store's change feed drives realtime fan-out: per-key commit
	// order is preserved because watchers run inside the commit path.
	if w, ok := st.(watchable); ok {
		w.WatchJobs(func(job models.Job) {
			kind := hub.KindJobTransition
			if job.Status == models.StatusAvailable {
				kind = hub.KindJobCreated
			}
			h.Publish(hub.JobTopic(job.ID), kind, job)
			h.Publish(hub.UserTopic(job.RequesterID), kind, job)
			if job.CourierID != "" {
				h.Publish(hub.UserTopic(job.CourierID), kind, job)
			}
		})
		w.WatchSamples(func(s models.LocationSample) {
			h.Publish(hub.CourierTopic(s.CourierID), hub.KindLocationUpdate, s)
		})
	}

	wsreg := dispatch.NewWSRegistry()
	var transport dispatch.Transport = wsreg
	if cfg.PushEndpoint != "" {
		transport = dispatch.Fallback{wsreg, dispatch.NewHTTPPush(cfg.PushEndpoint, cfg.PushKey)}
	}

	matcher := match.NewService(idx, transport, st, logger, cfg.MatchRadiusKm, cfg.SampleFreshness)
	announcer := dispatch.Fanout{matcher, dispatch.NewStatusNotifier(transport, logger)}
	lc := lifecycle.NewService(st, announcer, logger)
	applier := locations.NewApplier(st, idx, matcher, logger)

	var samples httpapi.SampleSink
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		samples = httpapi.SampleSinkFunc(producer.PublishSample)
		// The consumer process owns the store write; following the topic in
		// a separate group keeps this process's presence view and re-matching
		// alive for websocket-connected couriers.
		follower := locations.NewFollower(idx, matcher, cfg.SampleFreshness, logger)
		go followIngest(ctx, cfg, follower, logger)
	} else {
		samples = httpapi.SampleSinkFunc(applier.Apply)
	}

	sessions := session.NewManager(idx, func(string) session.Streamer { return stream.Remote{} },
		logger, cfg.InitTimeout, cfg.InitCooldown)

	api := httpapi.NewServer(httpapi.Deps{
		Lifecycle: lc,
		Sessions:  sessions,
		Hub:       h,
		Samples:   samples,
		WSReg:     wsreg,
		Notify:    transport,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("delivery-coordinator listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}

// followIngest reads the location topic in an API-process group and feeds
// observed samples to the follower. Read errors back off like the consumer.
func followIngest(ctx context.Context, cfg config.ServerConfig, f *locations.Follower, logger *slog.Logger) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup + "-api",
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer r.Close()

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("ingest follow read error", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		var sample models.LocationSample
		if err := json.Unmarshal(m.Value, &sample); err != nil || sample.CourierID == "" {
			continue
		}
		f.Observe(ctx, sample)
	}
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open failed", "err", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_jobs.sql"))
	if err != nil {
		logger.Error("migration read failed", "err", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec failed", "err", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_jobs.sql")
}
