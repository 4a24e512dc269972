// README: Courier position mirror backed by Redis GEO, grouped by vehicle class.
package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"platera/internal/types"
)

const courierGeoKeyPrefix = "presence:couriers:%s"

type GeoStore struct {
	redis *redis.Client
}

func NewGeoStore(redis *redis.Client) *GeoStore {
	return &GeoStore{redis: redis}
}

func (s *GeoStore) SetPosition(ctx context.Context, courierID types.ID, class types.VehicleClass, p types.Point) error {
	return s.redis.GeoAdd(ctx, geoKey(class), &redis.GeoLocation{
		Name:      string(courierID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *GeoStore) Remove(ctx context.Context, courierID types.ID, class types.VehicleClass) error {
	return s.redis.ZRem(ctx, geoKey(class), string(courierID)).Err()
}

// NearbyCouriers returns courier ids of a class within radiusKm of p,
// closest first.
func (s *GeoStore) NearbyCouriers(ctx context.Context, class types.VehicleClass, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, geoKey(class), &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

func geoKey(class types.VehicleClass) string {
	return fmt.Sprintf(courierGeoKeyPrefix, string(class))
}
