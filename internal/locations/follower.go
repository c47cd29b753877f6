package locations

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/presence"
)

// Follower observes samples from the ingest topic without owning the store
// write. In brokered deployments the consumer persists samples; the API
// process follows the same topic in its own group so its presence view and
// event-driven re-matching stay alive for websocket-connected couriers.
// Duplicate observation is harmless: the matcher notifies each (job,
// courier) pair at most once.
type Follower struct {
	presence  presence.Index
	rematcher Rematcher
	freshness time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewFollower(idx presence.Index, rematcher Rematcher, freshness time.Duration, logger *slog.Logger) *Follower {
	return &Follower{
		presence:  idx,
		rematcher: rematcher,
		freshness: freshness,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Observe refreshes presence and re-evaluates open jobs for the courier.
// Samples older than the freshness window are ignored; replaying a backlog
// must not notify couriers about positions they have long left.
func (f *Follower) Observe(ctx context.Context, sample models.LocationSample) {
	if f.freshness > 0 && f.now().Sub(sample.CapturedAt) > f.freshness {
		return
	}
	if err := f.presence.Update(ctx, sample); err != nil {
		f.logger.Warn("presence update failed", "courier_id", sample.CourierID, "err", err)
	}
	if f.rematcher != nil {
		f.rematcher.CourierChanged(ctx, sample.CourierID, models.Coord{Lat: sample.Lat, Lng: sample.Lng})
	}
}
