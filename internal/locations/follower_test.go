package locations

import (
	"context"
	"testing"
	"time"

	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/presence"
)

func TestFollowerObserveRefreshesPresenceAndRematches(t *testing.T) {
	idx := presence.NewMemoryIndex()
	rm := &countingRematcher{}
	f := NewFollower(idx, rm, 2*time.Minute, testLogger())
	ctx := context.Background()

	f.Observe(ctx, models.LocationSample{CourierID: "c1", Lat: -23.55, Lng: -46.63, CapturedAt: time.Now().UTC()})
	if rm.calls != 1 {
		t.Fatalf("expected 1 rematch, got %d", rm.calls)
	}

	if err := idx.SetAvailable(ctx, "c1", true); err != nil {
		t.Fatal(err)
	}
	cands, err := idx.Candidates(ctx, models.Coord{Lat: -23.55, Lng: -46.63}, 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].CourierID != "c1" {
		t.Fatalf("presence not refreshed: %+v", cands)
	}
}

func TestFollowerIgnoresBacklogOlderThanFreshness(t *testing.T) {
	idx := presence.NewMemoryIndex()
	rm := &countingRematcher{}
	f := NewFollower(idx, rm, 2*time.Minute, testLogger())

	old := time.Now().UTC().Add(-10 * time.Minute)
	f.Observe(context.Background(), models.LocationSample{CourierID: "c1", Lat: 1, Lng: 1, CapturedAt: old})

	if rm.calls != 0 {
		t.Fatalf("backlog sample must not trigger rematch, got %d calls", rm.calls)
	}
}

func TestFollowerWithoutRematcher(t *testing.T) {
	f := NewFollower(presence.NewMemoryIndex(), nil, time.Minute, testLogger())
	f.Observe(context.Background(), models.LocationSample{CourierID: "c1", CapturedAt: time.Now().UTC()})
}
