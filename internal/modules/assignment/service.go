// README: Assignment coordinator: exactly one courier per order, one order per courier.
package assignment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"platera/internal/modules/order"
	"platera/internal/modules/presence"
	"platera/internal/types"
)

var (
	ErrCourierActive   = errors.New("courier already has an active order")
	ErrAlreadyClaimed  = errors.New("order already claimed")
	ErrNotReady        = errors.New("order is not ready for pickup")
	ErrNotDeliverable  = errors.New("order has no delivery leg")
	ErrVehicleMismatch = errors.New("courier vehicle class does not match")
	ErrConflict        = errors.New("claim conflict")
)

// CourierLocator serves courier positions from the GEO mirror. A nil
// locator disables proximity targeting; offers then go class-wide.
type CourierLocator interface {
	NearbyCouriers(ctx context.Context, class types.VehicleClass, p types.Point, radiusKm float64) ([]types.ID, error)
}

type Service struct {
	store    *Store
	registry *presence.Registry
	active   *presence.ActiveDeliveries
	locator  CourierLocator
	log      *zap.Logger
}

func NewService(store *Store, registry *presence.Registry, active *presence.ActiveDeliveries, locator CourierLocator, log *zap.Logger) *Service {
	return &Service{store: store, registry: registry, active: active, locator: locator, log: log}
}

type ClaimCommand struct {
	OrderID      types.ID
	CourierID    types.ID
	VehicleClass types.VehicleClass
}

type ClaimResult struct {
	PickupCode string
	// Set when the claim is rejected with ErrCourierActive.
	Conflicting *ActiveOrder
}

const claimRetries = 2

// Claim binds exactly one courier to the order. Side effects after commit
// (customer notify, active-delivery binding) are best-effort.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) (ClaimResult, error) {
	pickupCode := order.NewVerificationCode()

	var (
		claimed claimedOrder
		active  *ActiveOrder
		err     error
	)
	for attempt := 0; attempt < claimRetries; attempt++ {
		claimed, active, err = s.store.Claim(ctx, cmd.OrderID, cmd.CourierID, cmd.VehicleClass, pickupCode)
		if err == nil || !isSerializationFailure(err) {
			break
		}
	}
	if isSerializationFailure(err) {
		return ClaimResult{}, ErrConflict
	}
	if err != nil {
		return ClaimResult{Conflicting: active}, err
	}

	s.active.Bind(cmd.CourierID, presence.Binding{
		OrderID:    cmd.OrderID,
		CustomerID: claimed.customerID,
	})
	if sendErr := s.registry.SendToUser(claimed.customerID, "courier_assigned", map[string]any{
		"order_code": claimed.code,
	}); sendErr != nil {
		s.log.Debug("customer not live for claim notify",
			zap.String("order", string(cmd.OrderID)), zap.Error(sendErr))
	}
	return ClaimResult{PickupCode: pickupCode}, nil
}

const offerRadiusKm = 5

// OfferOrder fans a just-cooked delivery order out to idle couriers of the
// matching vehicle class. Couriers near the restaurant go first, per the
// GEO mirror; a cold or failing mirror falls back to the class-wide
// broadcast. This is an offer, not a claim; the claim race is resolved by
// Claim above.
func (s *Service) OfferOrder(ctx context.Context, o *order.Order) int {
	if o.Fulfillment != order.FulfillmentDelivery {
		return 0
	}
	if s.registry.LiveUsers(types.RoleCourier) == 0 {
		return 0
	}
	payload := map[string]any{
		"order_id":        string(o.ID),
		"order_code":      o.Code,
		"restaurant_name": o.RestaurantName,
		"delivery_fee":    o.DeliveryFee.StringFixed(2),
	}
	if s.locator != nil {
		ids, err := s.locator.NearbyCouriers(ctx, o.VehicleClass, o.RestaurantLoc, offerRadiusKm)
		if err != nil {
			s.log.Warn("courier geo lookup failed", zap.String("order", o.Code), zap.Error(err))
		}
		sent := 0
		for _, id := range ids {
			if s.active.IsBusy(id) {
				continue
			}
			if s.registry.SendToUser(id, "order_ready", payload) == nil {
				sent++
			}
		}
		if sent > 0 {
			return sent
		}
	}
	return s.registry.BroadcastVehicle(o.VehicleClass, "order_ready", payload, s.active.IsBusy)
}

// Release drops the courier's active-delivery binding once the order
// reaches a terminal state.
func (s *Service) Release(courierID types.ID) {
	s.active.Unbind(courierID)
}
