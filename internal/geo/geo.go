package geo

import (
	"math"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/models"
)

const earthRadiusKm = 6371.0

// Pricing defaults. BasePrice is keyed by the closed category set with a
// fallback for unknown categories.
const (
	defaultBasePrice = 10.0
	perKmRate        = 2.5

	etaBaseMinutes = 5.0
	avgSpeedKmh    = 25.0
)

var basePrice = map[models.Category]float64{
	models.CategoryDocuments: 8.0,
	models.CategoryFood:      9.5,
	models.CategoryPackages:  12.0,
	models.CategoryPharmacy:  8.5,
}

// DistanceKm returns the haversine great-circle distance between a and b in
// kilometers. Symmetric, zero for identical coordinates, never negative.
// Out-of-range inputs fail with apperr.ErrInvalidCoordinate.
func DistanceKm(a, b models.Coord) (float64, error) {
	if err := validate(a); err != nil {
		return 0, err
	}
	if err := validate(b); err != nil {
		return 0, err
	}
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c, nil
}

// EstimatePrice returns basePrice[category] + distanceKm * perKmRate.
// Unknown categories fall back to the default base price.
func EstimatePrice(distanceKm float64, category models.Category) float64 {
	base, ok := basePrice[category]
	if !ok {
		base = defaultBasePrice
	}
	return base + distanceKm*perKmRate
}

// EstimateEtaMinutes returns ceil(base + distance/speed * 60). Monotonically
// non-decreasing in distance.
func EstimateEtaMinutes(distanceKm float64) int {
	return int(math.Ceil(etaBaseMinutes + distanceKm/avgSpeedKmh*60))
}

func validate(c models.Coord) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) ||
		c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return apperr.ErrInvalidCoordinate
	}
	return nil
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
