// README: Delivery fee quotes from Google Distance Matrix plus per-vehicle rates.
package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"googlemaps.github.io/maps"

	"platera/internal/config"
	"platera/internal/money"
	"platera/internal/types"
)

type Service struct {
	client *maps.Client
	cfg    config.QuoteConfig
}

func NewService(cfg config.QuoteConfig) (*Service, error) {
	client, err := maps.NewClient(maps.WithAPIKey(cfg.MapsAPIKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &Service{client: client, cfg: cfg}, nil
}

const lookupTimeout = 10 * time.Second

// DeliveryQuote resolves road distance between origin and destination and
// prices it with the vehicle's base fare and per-km rate. The order layer
// takes the fee verbatim and never recomputes it.
func (s *Service) DeliveryQuote(ctx context.Context, origin, dest types.Point, vehicle types.VehicleClass) (decimal.Decimal, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	mode := maps.TravelModeDriving
	if vehicle == types.VehicleBicycle {
		mode = maps.TravelModeBicycling
	}
	resp, err := s.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{coord(origin)},
		Destinations: []string{coord(dest)},
		Mode:         mode,
	})
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("distance lookup: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return decimal.Zero, 0, fmt.Errorf("distance lookup: empty response")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return decimal.Zero, 0, fmt.Errorf("distance lookup: %s", el.Status)
	}
	km := float64(el.Distance.Meters) / 1000.0

	fee := Price(km, s.cfg.BaseFare[string(vehicle)], s.cfg.PerKm[string(vehicle)])
	return fee, km, nil
}

// Price is the pure half of the quote: base + perKm * km, rounded once.
func Price(km float64, base, perKm decimal.Decimal) decimal.Decimal {
	return money.Round2(base.Add(perKm.Mul(decimal.NewFromFloat(km))))
}

func coord(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
