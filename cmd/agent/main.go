// Command agent simulates a courier device for local runs: it publishes
// permission state and profile to the coordinator, then streams synthetic
// GPS samples to the ingest topic (or straight to the API when no broker is
// configured).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/delivery-coordinator/internal/config"
	"github.com/example/delivery-coordinator/internal/ingest"
	"github.com/example/delivery-coordinator/internal/logging"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/stream"
)

func main() {
	var (
		courierID string
		serverURL string
		lat, lng  float64
		permState string
	)
	flag.StringVar(&courierID, "courier", "courier-sim-1", "courier ID to simulate")
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "coordinator base URL")
	flag.Float64Var(&lat, "lat", -23.5505, "starting latitude")
	flag.Float64Var(&lng, "lng", -46.6333, "starting longitude")
	flag.StringVar(&permState, "permission", "granted", "device permission state to report")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		os.Stderr.WriteString("config load failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := initSession(ctx, serverURL, courierID, permState); err != nil {
		logger.Error("session init failed", "err", err)
		os.Exit(1)
	}
	if err := setAvailable(ctx, serverURL, courierID, true); err != nil {
		logger.Error("availability toggle failed", "err", err)
		os.Exit(1)
	}
	logger.Info("courier online", "courier_id", courierID)

	var publisher stream.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	} else {
		publisher = &httpPublisher{base: serverURL}
	}

	tracker := stream.NewTracker(&wanderingSource{lat: lat, lng: lng}, publisher, cfg.StreamInterval, logger)
	if err := tracker.Start(ctx, courierID); err != nil {
		logger.Error("tracker start failed", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	tracker.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = setAvailable(shutdownCtx, serverURL, courierID, false)
	logger.Info("courier offline", "courier_id", courierID)
}

// wanderingSource produces a random walk around the starting point, about a
// city block per step.
type wanderingSource struct {
	mu       sync.Mutex
	lat, lng float64
}

func (w *wanderingSource) Position(ctx context.Context) (models.LocationSample, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lat += (rand.Float64() - 0.5) * 0.002
	w.lng += (rand.Float64() - 0.5) * 0.002
	return models.LocationSample{
		Lat:        w.lat,
		Lng:        w.lng,
		AccuracyM:  5 + rand.Float64()*20,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// httpPublisher posts samples to the coordinator's internal ingest endpoint
// for broker-less local runs.
type httpPublisher struct {
	base   string
	client http.Client
}

func (p *httpPublisher) PublishSample(ctx context.Context, sample models.LocationSample) error {
	return postJSON(ctx, &p.client, p.base+"/internal/courier/locations", sample)
}

func initSession(ctx context.Context, base, courierID, permState string) error {
	body := map[string]any{
		"profile": map[string]any{
			"id":                   courierID,
			"role":                 "courier",
			"vehicle_type":         "moto",
			"onboarding_completed": true,
		},
		"permission_state": permState,
		"max_attempts":     3,
		"base_delay_ms":    500,
	}
	return postJSON(ctx, http.DefaultClient, fmt.Sprintf("%s/api/v1/couriers/%s/session", base, courierID), body)
}

func setAvailable(ctx context.Context, base, courierID string, available bool) error {
	body := map[string]any{"available": available}
	return postJSON(ctx, http.DefaultClient, fmt.Sprintf("%s/api/v1/couriers/%s/availability", base, courierID), body)
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return nil
}
