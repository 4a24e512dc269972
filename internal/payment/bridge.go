// README: Webhook bridge: gateway confirmations → ledger entries and order transitions.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"platera/internal/modules/ledger"
	"platera/internal/modules/order"
	"platera/internal/modules/presence"
	"platera/internal/money"
	"platera/internal/types"
)

var (
	ErrPaymentNotVerified = errors.New("gateway did not confirm payment")
	ErrAmountMismatch     = errors.New("gateway amount does not match order total")
)

// Orders is the slice of the order layer the bridge needs.
type Orders interface {
	GetByCode(ctx context.Context, code string, includeUnpaid bool) (*order.Order, error)
	MarkPaid(ctx context.Context, code, gatewayRef string, payload []byte, handoffCode string) (bool, error)
}

// Ledger is the slice of the balance engine the bridge needs.
type Ledger interface {
	RecordDeposit(ctx context.Context, owner ledger.Owner, gross decimal.Decimal, note string, settled bool) (ledger.Entry, error)
	FinalizeWithdraw(ctx context.Context, entryID string, success bool, gatewayRef string, payload []byte) error
}

// Notifier is satisfied by the presence registry.
type Notifier interface {
	SendToUser(userID types.ID, event string, data any) error
}

// Texter is satisfied by the SMS client; failures are swallowed here.
type Texter interface {
	Send(ctx context.Context, phone, text string) error
}

type Bridge struct {
	orders  Orders
	ledger  Ledger
	gateway Gateway
	notify  Notifier
	sms     Texter
	active  *presence.ActiveDeliveries
	redis   *redis.Client
	log     *zap.Logger
}

func NewBridge(orders Orders, led Ledger, gateway Gateway, notify Notifier, sms Texter, active *presence.ActiveDeliveries, rdb *redis.Client, log *zap.Logger) *Bridge {
	return &Bridge{
		orders: orders, ledger: led, gateway: gateway,
		notify: notify, sms: sms, active: active, redis: rdb, log: log,
	}
}

const webhookKeyTTL = 7 * 24 * time.Hour

// ConfirmPayment handles a verified-signature payment webhook. Replays are
// no-ops: the already-paid short-circuit plus the row-level unpaid guard in
// MarkPaid make the second call idempotent. The Redis marker absorbs later
// duplicate deliveries without another gateway round trip; it is written
// only after the paid flip commits, so a transient failure leaves the
// gateway's retry a full pass through the flow.
func (b *Bridge) ConfirmPayment(ctx context.Context, gatewayRef, orderCode string, raw []byte) error {
	o, err := b.orders.GetByCode(ctx, orderCode, true)
	if err != nil {
		return err
	}
	if o.Payment.Status == order.PaymentPaid {
		return nil
	}
	key := "webhook:pay:" + gatewayRef
	if b.redis != nil {
		if seen, err := b.redis.Exists(ctx, key).Result(); err == nil && seen > 0 {
			return nil
		}
	}

	// The gateway, not the webhook body, is the source of truth.
	res, err := b.gateway.Verify(ctx, gatewayRef)
	if err != nil {
		return err
	}
	if !res.Success {
		return ErrPaymentNotVerified
	}
	amount, err := decimal.NewFromString(res.Amount)
	if err != nil || !amount.Equal(o.Total) {
		return ErrAmountMismatch
	}

	handoffCode := order.NewVerificationCode()
	updated, err := b.orders.MarkPaid(ctx, orderCode, gatewayRef, raw, handoffCode)
	if err != nil {
		return err
	}
	if !updated {
		return nil // lost the race to a concurrent replay; already paid
	}
	if b.redis != nil {
		if err := b.redis.Set(ctx, key, "1", webhookKeyTTL).Err(); err != nil {
			// MarkPaid's unpaid guard still catches replays; the marker is
			// only the cheap fast path.
			b.log.Warn("webhook marker write failed", zap.String("order", o.Code), zap.Error(err))
		}
	}

	phone := o.CustomerPhone
	if o.IsGift && o.RecipientPhone != "" {
		phone = o.RecipientPhone
	}
	if phone != "" {
		if err := b.sms.Send(ctx, phone, "Your order "+o.Code+" is confirmed. Handoff code: "+handoffCode); err != nil {
			b.log.Warn("handoff sms failed", zap.String("order", o.Code), zap.Error(err))
		}
	}
	// Manager sessions register under their restaurant's identity.
	if err := b.notify.SendToUser(o.RestaurantID, "order_paid", map[string]any{
		"order_code": o.Code,
		"total":      o.Total.StringFixed(2),
	}); err != nil {
		b.log.Debug("manager not live for paid notify", zap.String("order", o.Code))
	}
	return nil
}

// SettleCompleted records the settlement deposits once an order completes:
// the restaurant earns the food subtotal, the courier the delivery fee.
// Both enter as settled (paid) since the handoff is already verified.
func (b *Bridge) SettleCompleted(ctx context.Context, o *order.Order) error {
	_, err := b.ledger.RecordDeposit(ctx,
		ledger.Owner{Kind: money.OwnerRestaurant, ID: o.RestaurantID},
		o.Subtotal, "order "+o.Code, true,
	)
	if err != nil {
		return err
	}
	if o.Fulfillment == order.FulfillmentDelivery && o.CourierID != nil {
		_, err = b.ledger.RecordDeposit(ctx,
			ledger.Owner{Kind: money.OwnerCourier, ID: *o.CourierID},
			o.DeliveryFee, "order "+o.Code, true,
		)
		if err != nil {
			return err
		}
		if b.active != nil {
			b.active.Unbind(*o.CourierID)
		}
	}
	return nil
}

// RequestPayout initiates the provider transfer for a processing
// withdrawal. The call is made exactly once; retrying would risk a double
// payout. A transport failure is ambiguous (the provider may have accepted
// the request before the connection died), so the entry stays processing
// with the funds held until the payout webhook settles it.
func (b *Bridge) RequestPayout(ctx context.Context, e ledger.Entry) error {
	_, err := b.gateway.Payout(ctx, PayoutRequest{
		AccountName:   e.Bank.Name,
		AccountNumber: e.Bank.Account,
		BankCode:      e.Bank.Code,
		Amount:        e.NetAmount.StringFixed(2),
		Reference:     string(e.ID),
	})
	if err != nil {
		b.log.Error("payout request failed", zap.String("entry", string(e.ID)), zap.Error(err))
		return err
	}
	return nil
}

// FinalizePayout settles a withdrawal from the payout webhook.
func (b *Bridge) FinalizePayout(ctx context.Context, entryID string, success bool, gatewayRef string, raw []byte) error {
	return b.ledger.FinalizeWithdraw(ctx, entryID, success, gatewayRef, raw)
}
