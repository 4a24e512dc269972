// README: Construction-time order computation (pure; menu data passed in).
package order

import (
	"github.com/shopspring/decimal"

	"platera/internal/config"
	"platera/internal/modules/menu"
	"platera/internal/money"
	"platera/internal/types"
)

const (
	maxItems    = 5
	maxQuantity = 1000
)

type ItemInput struct {
	FoodID   types.ID
	Quantity int
}

type CreateCommand struct {
	CustomerID     types.ID
	CustomerPhone  string
	Items          []ItemInput
	Fulfillment    FulfillmentType
	VehicleClass   types.VehicleClass // delivery only
	Destination    *types.Point       // delivery only
	Tip            decimal.Decimal
	DeliveryFee    decimal.Decimal // pre-computed by the quote collaborator
	IsGift         bool
	RecipientPhone string
}

// Compute builds the priced order from resolved menu data. All money rules
// live here; persistence and lookups stay in the service.
func Compute(cmd CreateCommand, foods map[types.ID]menu.Food, rest menu.Restaurant, rates config.RatesConfig) (*Order, error) {
	if len(cmd.Items) == 0 || len(cmd.Items) > maxItems {
		return nil, ErrBadRequest
	}
	if !ValidFulfillment(cmd.Fulfillment) {
		return nil, ErrBadRequest
	}
	if cmd.Tip.IsNegative() {
		return nil, ErrBadRequest
	}
	if cmd.IsGift && cmd.RecipientPhone == "" {
		return nil, ErrBadRequest
	}

	if cmd.Fulfillment == FulfillmentDelivery {
		if !types.ValidVehicleClass(cmd.VehicleClass) || cmd.Destination == nil {
			return nil, ErrBadRequest
		}
		if cmd.DeliveryFee.IsNegative() {
			return nil, ErrBadRequest
		}
	} else if cmd.VehicleClass != "" || cmd.Destination != nil {
		return nil, ErrBadRequest
	}

	items := make([]LineItem, 0, len(cmd.Items))
	lines := make([]decimal.Decimal, 0, len(cmd.Items))
	var restaurantID types.ID
	for _, in := range cmd.Items {
		if in.Quantity < 1 || in.Quantity > maxQuantity {
			return nil, ErrBadRequest
		}
		f, ok := foods[in.FoodID]
		if !ok {
			return nil, ErrNotFound
		}
		if restaurantID == "" {
			restaurantID = f.RestaurantID
		} else if f.RestaurantID != restaurantID {
			return nil, ErrInconsistentRestaurant
		}
		items = append(items, LineItem{
			FoodID:    f.ID,
			Name:      f.Name,
			Quantity:  in.Quantity,
			UnitPrice: f.Price,
		})
		lines = append(lines, money.LineTotal(f.Price, in.Quantity))
	}

	subtotal := money.Subtotal(lines)
	vat := money.VAT(subtotal, rates.GovVAT)

	var deliveryFee, serviceFee decimal.Decimal
	switch cmd.Fulfillment {
	case FulfillmentDelivery:
		deliveryFee = money.Round2(cmd.DeliveryFee)
	case FulfillmentTakeaway:
		serviceFee = rates.ServiceFeeTakeaway
	case FulfillmentDineIn:
		serviceFee = rates.ServiceFeeDineIn
	}
	fee := deliveryFee.Add(serviceFee)
	tip := money.Round2(cmd.Tip)
	total := money.Total(subtotal, vat, tip, fee)

	o := &Order{
		CustomerID:     cmd.CustomerID,
		CustomerPhone:  cmd.CustomerPhone,
		IsGift:         cmd.IsGift,
		RecipientPhone: cmd.RecipientPhone,
		RestaurantID:   restaurantID,
		RestaurantName: rest.Name,
		RestaurantLoc:  rest.Location,
		Items:          items,
		Fulfillment:    cmd.Fulfillment,
		Subtotal:       subtotal,
		VATAmount:      vat,
		DeliveryFee:    deliveryFee,
		ServiceFee:     serviceFee,
		Tip:            tip,
		Total:          total,
		Status:         StatusPending,
		Payment:        Payment{Amount: total, Status: PaymentUnpaid},
	}
	if cmd.Fulfillment == FulfillmentDelivery {
		o.VehicleClass = cmd.VehicleClass
		dest := *cmd.Destination
		o.Destination = &dest
	}
	return o, nil
}
