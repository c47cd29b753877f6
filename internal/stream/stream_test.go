package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/delivery-coordinator/internal/models"
)

type fixedSource struct{ sample models.LocationSample }

func (f fixedSource) Position(ctx context.Context) (models.LocationSample, error) {
	return f.sample, nil
}

type capturePublisher struct {
	mu      sync.Mutex
	samples []models.LocationSample
}

func (c *capturePublisher) PublishSample(ctx context.Context, sample models.LocationSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample)
	return nil
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTrackerPublishesOnInterval(t *testing.T) {
	pub := &capturePublisher{}
	tr := NewTracker(fixedSource{sample: models.LocationSample{Lat: 1, Lng: 2}}, pub, 10*time.Millisecond, testLogger())

	if err := tr.Start(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	deadline := time.After(2 * time.Second)
	for pub.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 samples, got %d", pub.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, s := range pub.samples {
		if s.CourierID != "c1" {
			t.Fatalf("sample missing courier ID: %+v", s)
		}
		if s.CapturedAt.IsZero() {
			t.Fatalf("sample missing captured_at: %+v", s)
		}
	}
}

func TestTrackerStartIsIdempotent(t *testing.T) {
	pub := &capturePublisher{}
	tr := NewTracker(fixedSource{}, pub, 10*time.Millisecond, testLogger())
	ctx := context.Background()

	if err := tr.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Start(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	tr.Stop()
}

func TestTrackerStopHaltsPublication(t *testing.T) {
	pub := &capturePublisher{}
	tr := NewTracker(fixedSource{}, pub, 5*time.Millisecond, testLogger())

	if err := tr.Start(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	tr.Stop()

	n := pub.count()
	time.Sleep(30 * time.Millisecond)
	if pub.count() != n {
		t.Fatalf("tracker published after Stop: %d -> %d", n, pub.count())
	}

	// stopping again is a no-op
	tr.Stop()
}
