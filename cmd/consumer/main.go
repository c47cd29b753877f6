package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/delivery-coordinator/internal/config"
	"github.com/example/delivery-coordinator/internal/dispatch"
	"github.com/example/delivery-coordinator/internal/locations"
	"github.com/example/delivery-coordinator/internal/logging"
	"github.com/example/delivery-coordinator/internal/match"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/presence"
	"github.com/example/delivery-coordinator/internal/store"
)

var (
	msgsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total courier location messages consumed",
	})
	msgsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	applyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_apply_errors_total",
		Help: "Total samples that failed to apply after retries",
	})
)

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		os.Stderr.WriteString("config load failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

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

	// Without a push provider the consumer still maintains the sample store
	// and presence index; proximity notifications then fall to the API
	// process via the websocket registry.
	var rematcher locations.Rematcher
	if cfg.PushEndpoint != "" {
		push := dispatch.NewHTTPPush(cfg.PushEndpoint, cfg.PushKey)
		rematcher = match.NewService(idx, push, st, logger, cfg.MatchRadiusKm, cfg.SampleFreshness)
	}
	applier := locations.NewApplier(st, idx, rematcher, logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() { _ = r.Close() }()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var sample models.LocationSample
		if err := json.Unmarshal(m.Value, &sample); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "err", err)
			continue
		}
		if sample.CourierID == "" || sample.CapturedAt.IsZero() {
			msgsInvalid.Inc()
			continue
		}

		if err := applyWithRetry(ctx, applier, sample, 3, 200*time.Millisecond); err != nil {
			applyErrors.Inc()
			logger.Warn("sample apply failed", "courier_id", sample.CourierID, "err", err)
		}
	}
}

// sampleApplier is the subset of the applier the loop needs, kept small for
// tests.
type sampleApplier interface {
	Apply(ctx context.Context, sample models.LocationSample) error
}

// applyWithRetry retries transient store failures with doubling delay. A
// stale sample is not an error and never retries.
func applyWithRetry(ctx context.Context, a sampleApplier, sample models.LocationSample, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = a.Apply(ctx, sample); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
