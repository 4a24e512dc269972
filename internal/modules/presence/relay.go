// README: Location relay: binding-checked forwarding of courier pings.
package presence

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"platera/internal/types"
)

var (
	ErrNotBound     = errors.New("courier has no active delivery")
	ErrWrongBinding = errors.New("ping does not match the active delivery")
)

type LocationPing struct {
	OrderID    types.ID
	CustomerID types.ID
	Position   types.Point
}

// LocationRelay accepts a ping only from the courier bound to the order in
// the active-delivery map, with a matching order/customer pair. Mismatches
// are rejected with an error the transport must surface, never dropped.
type LocationRelay struct {
	active   *ActiveDeliveries
	registry *Registry
	geo      *GeoStore
	log      *zap.Logger
}

func NewLocationRelay(active *ActiveDeliveries, registry *Registry, geo *GeoStore, log *zap.Logger) *LocationRelay {
	return &LocationRelay{active: active, registry: registry, geo: geo, log: log}
}

func (r *LocationRelay) HandlePing(ctx context.Context, courierID types.ID, class types.VehicleClass, ping LocationPing) error {
	b, ok := r.active.Get(courierID)
	if !ok {
		return ErrNotBound
	}
	if b.OrderID != ping.OrderID || b.CustomerID != ping.CustomerID {
		return ErrWrongBinding
	}

	if r.geo != nil {
		if err := r.geo.SetPosition(ctx, courierID, class, ping.Position); err != nil {
			r.log.Warn("geo mirror failed", zap.String("courier", string(courierID)), zap.Error(err))
		}
	}
	if err := r.registry.SendToUser(b.CustomerID, "courier_location", map[string]any{
		"order_id": string(ping.OrderID),
		"lat":      ping.Position.Lat,
		"lng":      ping.Position.Lng,
	}); err != nil {
		// Customer offline; position is still mirrored for when they return.
		r.log.Debug("customer not live for location", zap.String("order", string(ping.OrderID)))
	}
	return nil
}
