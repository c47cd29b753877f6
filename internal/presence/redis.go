package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/delivery-coordinator/internal/models"
)

// RedisIndex implements Index on Redis GEO commands, with availability and
// sample freshness kept in a per-courier hash.
type RedisIndex struct {
	client *redis.Client
	geoKey string
}

func NewRedisIndex(addr, password, geoKey string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, geoKey: geoKey}
}

func (r *RedisIndex) SetAvailable(ctx context.Context, courierID string, available bool) error {
	return r.client.HSet(ctx, metaKey(courierID), "available", strconv.FormatBool(available)).Err()
}

func (r *RedisIndex) Update(ctx context.Context, sample models.LocationSample) error {
	if err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Longitude: sample.Lng,
		Latitude:  sample.Lat,
		Name:      sample.CourierID,
	}).Err(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(sample.CourierID), map[string]interface{}{
		"captured_at": sample.CapturedAt.UTC().Format(time.RFC3339Nano),
	}).Err()
}

func (r *RedisIndex) Candidates(ctx context.Context, origin models.Coord, radiusKm float64, freshness time.Duration) ([]Candidate, error) {
	res, err := r.client.GeoRadius(ctx, r.geoKey, origin.Lng, origin.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-freshness)
	out := make([]Candidate, 0, len(res))
	for _, g := range res {
		meta, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		if meta["available"] != "true" {
			continue
		}
		captured, err := time.Parse(time.RFC3339Nano, meta["captured_at"])
		if err != nil || captured.Before(cutoff) {
			continue
		}
		out = append(out, Candidate{
			CourierID:  g.Name,
			Loc:        models.Coord{Lat: g.Latitude, Lng: g.Longitude},
			CapturedAt: captured,
		})
	}
	return out, nil
}

func (r *RedisIndex) Close() error { return r.client.Close() }

func metaKey(id string) string { return "courier:meta:" + id }
