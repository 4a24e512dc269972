// README: Order aggregate, status state machine, and payment sub-record.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"platera/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPreparing  Status = "preparing"
	StatusCooked     Status = "cooked"
	StatusDelivering Status = "delivering"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type FulfillmentType string

const (
	FulfillmentDelivery FulfillmentType = "delivery"
	FulfillmentTakeaway FulfillmentType = "takeaway"
	FulfillmentDineIn   FulfillmentType = "dinein"
)

func ValidFulfillment(t FulfillmentType) bool {
	switch t {
	case FulfillmentDelivery, FulfillmentTakeaway, FulfillmentDineIn:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type LineItem struct {
	FoodID    types.ID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Payment is the embedded payment sub-record. RawPayload keeps the opaque
// gateway blob for reconciliation.
type Payment struct {
	Amount     decimal.Decimal
	Status     PaymentStatus
	GatewayRef string
	RawPayload []byte
}

type Order struct {
	ID             types.ID
	Code           string
	CustomerID     types.ID
	CustomerPhone  string
	IsGift         bool
	RecipientPhone string
	RestaurantID   types.ID
	// Snapshots taken at creation time; immutable afterwards.
	RestaurantName string
	RestaurantLoc  types.Point
	CourierID      *types.ID
	Items          []LineItem
	Fulfillment    FulfillmentType
	VehicleClass   types.VehicleClass // delivery only
	Destination    *types.Point       // delivery only
	Subtotal       decimal.Decimal
	VATAmount      decimal.Decimal
	DeliveryFee    decimal.Decimal
	ServiceFee     decimal.Decimal
	Tip            decimal.Decimal
	Total          decimal.Decimal
	Status         Status
	StatusVersion  int
	PickupCode     string
	HandoffCode    string
	Payment        Payment
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow as code. The
// pending→cooked and cooked→completed shortcuts exist for takeaway/dine-in
// orders, which have no courier leg; the service layer gates delivery
// orders to the full path.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusPreparing, StatusCooked, StatusCancelled},
	StatusPreparing:  {StatusCooked, StatusCancelled},
	StatusCooked:     {StatusDelivering, StatusCancelled, StatusCompleted},
	StatusDelivering: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}
