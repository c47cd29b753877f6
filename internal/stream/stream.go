package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/delivery-coordinator/internal/models"
)

// Source produces the current device position.
type Source interface {
	Position(ctx context.Context) (models.LocationSample, error)
}

// Publisher receives captured samples; satisfied by the Kafka producer.
type Publisher interface {
	PublishSample(ctx context.Context, sample models.LocationSample) error
}

// Tracker is a courier's live location stream: while running it polls the
// source on a fixed interval and publishes each sample. Stop (or owner
// teardown via Stop) aborts the stream with no side effect beyond ceasing
// publication.
type Tracker struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTracker(source Source, publisher Publisher, interval time.Duration, logger *slog.Logger) *Tracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Tracker{source: source, publisher: publisher, interval: interval, logger: logger}
}

// Start launches the stream. Starting an already-running tracker is a
// no-op.
func (t *Tracker) Start(ctx context.Context, courierID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, courierID, t.done)
	return nil
}

// Stop aborts the stream and waits for the loop to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Tracker) run(ctx context.Context, courierID string, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := t.source.Position(ctx)
			if err != nil {
				t.logger.Warn("position read failed", "courier_id", courierID, "err", err)
				continue
			}
			sample.CourierID = courierID
			if sample.CapturedAt.IsZero() {
				sample.CapturedAt = time.Now().UTC()
			}
			if err := t.publisher.PublishSample(ctx, sample); err != nil {
				t.logger.Warn("sample publish failed", "courier_id", courierID, "err", err)
			}
		}
	}
}
