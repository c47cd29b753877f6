package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/models"
)

func TestDistanceZero(t *testing.T) {
	d, err := DistanceKm(models.Coord{Lat: -23.56, Lng: -46.65}, models.Coord{Lat: -23.56, Lng: -46.65})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := models.Coord{Lat: -23.5505, Lng: -46.6333}
	b := models.Coord{Lat: -23.5489, Lng: -46.6388}
	d1, err := DistanceKm(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d2, _ := DistanceKm(b, a)
	if math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("asymmetric distance: %f vs %f", d1, d2)
	}
	if d1 <= 0 {
		t.Fatalf("expected positive distance, got %f", d1)
	}
}

func TestDistanceInvalidCoordinate(t *testing.T) {
	bad := []models.Coord{
		{Lat: 91, Lng: 0},
		{Lat: -91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: 0, Lng: -181},
		{Lat: math.NaN(), Lng: 0},
	}
	for _, c := range bad {
		if _, err := DistanceKm(c, models.Coord{}); !errors.Is(err, apperr.ErrInvalidCoordinate) {
			t.Fatalf("coord %+v: expected ErrInvalidCoordinate, got %v", c, err)
		}
		if _, err := DistanceKm(models.Coord{}, c); !errors.Is(err, apperr.ErrInvalidCoordinate) {
			t.Fatalf("coord %+v as b: expected ErrInvalidCoordinate, got %v", c, err)
		}
	}
}

func TestEstimatePriceShortDocumentRun(t *testing.T) {
	// Two points roughly 16 meters apart in central São Paulo.
	a := models.Coord{Lat: -23.5505, Lng: -46.6333}
	b := models.Coord{Lat: -23.5506, Lng: -46.6334}
	d, err := DistanceKm(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	price := EstimatePrice(d, models.CategoryDocuments)
	if price < 8.0 || price > 8.1 {
		t.Fatalf("expected price just above the 8.00 base, got %f (d=%f km)", price, d)
	}
}

func TestEstimatePriceUnknownCategoryFallsBack(t *testing.T) {
	got := EstimatePrice(2, models.Category("mudanca"))
	want := 10.0 + 2*2.5
	if got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestEstimateEtaMonotonic(t *testing.T) {
	if EstimateEtaMinutes(0) != 5 {
		t.Fatalf("zero distance should be the base ETA, got %d", EstimateEtaMinutes(0))
	}
	prev := 0
	for _, d := range []float64{0, 0.5, 1, 5, 10, 25, 100} {
		eta := EstimateEtaMinutes(d)
		if eta < prev {
			t.Fatalf("ETA decreased at %f km: %d < %d", d, eta, prev)
		}
		prev = eta
	}
}
