package locations

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/presence"
	"github.com/example/delivery-coordinator/internal/store"
)

type countingRematcher struct{ calls int }

func (c *countingRematcher) CourierChanged(ctx context.Context, courierID string, loc models.Coord) {
	c.calls++
}

type failingSamples struct{}

func (failingSamples) UpsertSample(ctx context.Context, sample models.LocationSample) (bool, error) {
	return false, errors.New("store down")
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestApplyAcceptedSampleUpdatesPresenceAndRematches(t *testing.T) {
	st := store.NewMemoryStore()
	idx := presence.NewMemoryIndex()
	rm := &countingRematcher{}
	a := NewApplier(st, idx, rm, testLogger())
	ctx := context.Background()

	sample := models.LocationSample{CourierID: "c1", Lat: -23.55, Lng: -46.63, CapturedAt: time.Now().UTC()}
	if err := a.Apply(ctx, sample); err != nil {
		t.Fatal(err)
	}
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
		t.Fatalf("presence index not updated: %+v", cands)
	}
}

func TestApplyStaleSampleIsSilentlyDropped(t *testing.T) {
	st := store.NewMemoryStore()
	idx := presence.NewMemoryIndex()
	rm := &countingRematcher{}
	a := NewApplier(st, idx, rm, testLogger())
	ctx := context.Background()
	base := time.Now().UTC()

	if err := a.Apply(ctx, models.LocationSample{CourierID: "c1", Lat: 1, Lng: 1, CapturedAt: base}); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(ctx, models.LocationSample{CourierID: "c1", Lat: 9, Lng: 9, CapturedAt: base.Add(-time.Minute)}); err != nil {
		t.Fatalf("stale sample is not an error: %v", err)
	}
	if rm.calls != 1 {
		t.Fatalf("stale sample must not trigger rematch, got %d calls", rm.calls)
	}

	got, err := st.GetSample(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Lat != 1 {
		t.Fatalf("stale sample overwrote the store: %+v", got)
	}
}

func TestApplyStoreErrorPropagates(t *testing.T) {
	a := NewApplier(failingSamples{}, presence.NewMemoryIndex(), nil, testLogger())
	err := a.Apply(context.Background(), models.LocationSample{CourierID: "c1", CapturedAt: time.Now()})
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestApplyWithoutRematcher(t *testing.T) {
	a := NewApplier(store.NewMemoryStore(), presence.NewMemoryIndex(), nil, testLogger())
	if err := a.Apply(context.Background(), models.LocationSample{CourierID: "c1", CapturedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
}
