// README: Order service: creation, state transitions, pickup/handoff verification.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platera/internal/config"
	"platera/internal/modules/menu"
	"platera/internal/types"
)

var (
	ErrBadRequest             = errors.New("bad request")
	ErrNotFound               = errors.New("order not found")
	ErrInconsistentRestaurant = errors.New("items span multiple restaurants")
	ErrInvalidState           = errors.New("invalid state transition")
	ErrConflict               = errors.New("order state conflict")
	ErrCourierRequired        = errors.New("delivery order requires the courier leg")
	ErrNotCourier             = errors.New("caller is not the assigned courier")
	ErrCodeMismatch           = errors.New("verification code mismatch")
	ErrNotPaid                = errors.New("order is not paid")
)

// Lookup resolves menu data at creation time.
type Lookup interface {
	GetFoods(ctx context.Context, ids []types.ID) (map[types.ID]menu.Food, error)
	GetRestaurant(ctx context.Context, id types.ID) (menu.Restaurant, error)
}

// Settler records the settlement ledger entries once an order completes.
type Settler interface {
	SettleCompleted(ctx context.Context, o *Order) error
}

// Quoter is the external distance-pricing collaborator; the computed fee
// is taken verbatim.
type Quoter interface {
	DeliveryQuote(ctx context.Context, origin, dest types.Point, vehicle types.VehicleClass) (decimal.Decimal, float64, error)
}

type Service struct {
	store  *Store
	menu   Lookup
	rates  config.RatesConfig
	quoter Quoter
	settle Settler
	log    *zap.Logger
}

func NewService(store *Store, lookup Lookup, rates config.RatesConfig, quoter Quoter, settle Settler, log *zap.Logger) *Service {
	return &Service{store: store, menu: lookup, rates: rates, quoter: quoter, settle: settle, log: log}
}

const codeRetries = 3

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.CustomerID == "" {
		return nil, ErrBadRequest
	}
	ids := make([]types.ID, len(cmd.Items))
	for i, it := range cmd.Items {
		ids[i] = it.FoodID
	}
	if len(ids) == 0 || len(ids) > maxItems {
		return nil, ErrBadRequest
	}
	foods, err := s.menu.GetFoods(ctx, ids)
	if err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// All items share one restaurant; Compute verifies, we just need the id
	// for the snapshot lookup.
	rest, err := s.menu.GetRestaurant(ctx, foods[ids[0]].RestaurantID)
	if err != nil {
		return nil, err
	}

	if cmd.Fulfillment == FulfillmentDelivery && s.quoter != nil && cmd.Destination != nil {
		fee, _, err := s.quoter.DeliveryQuote(ctx, rest.Location, *cmd.Destination, cmd.VehicleClass)
		if err != nil {
			return nil, err
		}
		cmd.DeliveryFee = fee
	}

	o, err := Compute(cmd, foods, rest, s.rates)
	if err != nil {
		return nil, err
	}
	o.ID = newID()
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now

	// Retry on order-code collision; the unique index is the arbiter.
	for i := 0; i < codeRetries; i++ {
		o.Code = NewOrderCode(now)
		err = s.store.Create(ctx, o)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: "",
		ToStatus:   StatusPending,
		ActorType:  "customer",
		ActorID:    &o.CustomerID,
		CreatedAt:  now,
	})
	return o, nil
}

// Get loads one order. Unpaid orders are hidden unless includeUnpaid is
// set; only the payment-confirmation path sets it.
func (s *Service) Get(ctx context.Context, id types.ID, includeUnpaid bool) (*Order, error) {
	return s.store.Get(ctx, id, includeUnpaid)
}

func (s *Service) GetByCode(ctx context.Context, code string, includeUnpaid bool) (*Order, error) {
	return s.store.GetByCode(ctx, code, includeUnpaid)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID types.ID) ([]*Order, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

type TransitionCommand struct {
	OrderID   types.ID
	To        Status
	ActorType string
	ActorID   types.ID
}

// Transition applies a manager/customer driven status change after
// validating the transition table and the delivery-leg guard.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID, false)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, cmd.To) {
		return nil, transitionError(o.Status, cmd.To)
	}
	// The pending→cooked and cooked→completed shortcuts belong to
	// takeaway/dine-in flows only; delivery orders take the full path
	// through preparing and the courier leg.
	if o.Fulfillment == FulfillmentDelivery &&
		((o.Status == StatusPending && cmd.To == StatusCooked) ||
			(o.Status == StatusCooked && cmd.To == StatusCompleted)) {
		return nil, ErrCourierRequired
	}

	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, cmd.To, o.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	actorID := cmd.ActorID
	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   cmd.To,
		ActorType:  cmd.ActorType,
		ActorID:    &actorID,
		CreatedAt:  time.Now(),
	})
	o.Status = cmd.To
	o.StatusVersion++
	return o, nil
}

type VerifyPickupCommand struct {
	OrderID   types.ID
	CourierID types.ID
	Code      string
}

// VerifyPickup moves a claimed delivery order cooked→delivering once the
// courier proves possession with the pickup code.
func (s *Service) VerifyPickup(ctx context.Context, cmd VerifyPickupCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID, false)
	if err != nil {
		return nil, err
	}
	if o.CourierID == nil || *o.CourierID != cmd.CourierID {
		return nil, ErrNotCourier
	}
	if o.PickupCode == "" || o.PickupCode != cmd.Code {
		return nil, ErrCodeMismatch
	}
	if !CanTransition(o.Status, StatusDelivering) {
		return nil, transitionError(o.Status, StatusDelivering)
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, StatusDelivering, o.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   StatusDelivering,
		ActorType:  "courier",
		ActorID:    o.CourierID,
		CreatedAt:  time.Now(),
	})
	o.Status = StatusDelivering
	o.StatusVersion++
	return o, nil
}

type VerifyHandoffCommand struct {
	OrderID   types.ID
	Code      string
	ActorType string
	ActorID   types.ID
}

// VerifyHandoff completes an order once the handoff code matches. Delivery
// orders complete from delivering; takeaway/dine-in complete straight from
// cooked (no courier leg). Settlement entries are recorded after the
// transition commits.
func (s *Service) VerifyHandoff(ctx context.Context, cmd VerifyHandoffCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID, false)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status != PaymentPaid {
		return nil, ErrNotPaid
	}
	if o.HandoffCode == "" || o.HandoffCode != cmd.Code {
		return nil, ErrCodeMismatch
	}
	if o.Fulfillment == FulfillmentDelivery && o.Status != StatusDelivering {
		return nil, transitionError(o.Status, StatusCompleted)
	}
	if !CanTransition(o.Status, StatusCompleted) {
		return nil, transitionError(o.Status, StatusCompleted)
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, StatusCompleted, o.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	actorID := cmd.ActorID
	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   StatusCompleted,
		ActorType:  cmd.ActorType,
		ActorID:    &actorID,
		CreatedAt:  time.Now(),
	})
	o.Status = StatusCompleted
	o.StatusVersion++

	if s.settle != nil {
		if err := s.settle.SettleCompleted(ctx, o); err != nil {
			// The completion already committed; settlement failure is a
			// data-integrity problem to surface, not to roll back.
			s.log.Error("settlement failed", zap.String("order", string(o.ID)), zap.Error(err))
			return o, err
		}
	}
	return o, nil
}

// TransitionError carries current vs requested state so the client can
// reconcile its view.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return "invalid transition from " + string(e.From) + " to " + string(e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidState }

func transitionError(from, to Status) error {
	return &TransitionError{From: from, To: to}
}
