package locations

import (
	"context"
	"log/slog"

	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/observability"
	"github.com/example/delivery-coordinator/internal/presence"
)

// Samples is the store slice the applier writes through.
type Samples interface {
	UpsertSample(ctx context.Context, sample models.LocationSample) (bool, error)
}

// Rematcher re-evaluates open jobs for a courier whose position changed.
type Rematcher interface {
	CourierChanged(ctx context.Context, courierID string, loc models.Coord)
}

// Applier is the single write path for location samples, shared by the
// Kafka consumer and brokerless runs. It applies the last-write-wins
// upsert, refreshes the presence index, and triggers event-driven
// re-matching. Realtime fan-out rides on the store's sample watcher.
type Applier struct {
	samples   Samples
	presence  presence.Index
	rematcher Rematcher
	logger    *slog.Logger
}

func NewApplier(samples Samples, idx presence.Index, rematcher Rematcher, logger *slog.Logger) *Applier {
	return &Applier{samples: samples, presence: idx, rematcher: rematcher, logger: logger}
}

// Apply processes one incoming sample. Stale samples are silently
// discarded; they protect against out-of-order delivery over mobile
// networks and are not an error.
func (a *Applier) Apply(ctx context.Context, sample models.LocationSample) error {
	accepted, err := a.samples.UpsertSample(ctx, sample)
	if err != nil {
		return err
	}
	if !accepted {
		observability.SamplesStale.Inc()
		return nil
	}
	observability.SamplesAccepted.Inc()

	if err := a.presence.Update(ctx, sample); err != nil {
		a.logger.Warn("presence update failed", "courier_id", sample.CourierID, "err", err)
	}
	if a.rematcher != nil {
		a.rematcher.CourierChanged(ctx, sample.CourierID, models.Coord{Lat: sample.Lat, Lng: sample.Lng})
	}
	return nil
}
