// README: Order store backed by PostgreSQL (optimistic status CAS, paid-visibility flag).
package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"platera/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func newID() types.ID {
	return types.ID(uuid.NewString())
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) Create(ctx context.Context, o *Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var destLat, destLng *float64
	if o.Destination != nil {
		destLat, destLng = &o.Destination.Lat, &o.Destination.Lng
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, code, customer_id, customer_phone, is_gift, recipient_phone,
			restaurant_id, restaurant_name, restaurant_lat, restaurant_lng,
			fulfillment_type, vehicle_class, dest_lat, dest_lng,
			subtotal, vat_amount, delivery_fee, service_fee, tip, total,
			status, status_version,
			payment_amount, payment_status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20,
			$21, $22,
			$23, $24,
			$25, $26
		)`,
		string(o.ID), o.Code, string(o.CustomerID), nullString(o.CustomerPhone), o.IsGift, nullString(o.RecipientPhone),
		string(o.RestaurantID), o.RestaurantName, o.RestaurantLoc.Lat, o.RestaurantLoc.Lng,
		string(o.Fulfillment), nullString(string(o.VehicleClass)), destLat, destLng,
		o.Subtotal.StringFixed(2), o.VATAmount.StringFixed(2), o.DeliveryFee.StringFixed(2),
		o.ServiceFee.StringFixed(2), o.Tip.StringFixed(2), o.Total.StringFixed(2),
		string(o.Status), o.StatusVersion,
		o.Payment.Amount.StringFixed(2), string(o.Payment.Status),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	for i, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, pos, food_id, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(o.ID), i, string(it.FoodID), it.Name, it.Quantity, it.UnitPrice.StringFixed(2),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const orderColumns = `
	id, code, customer_id, customer_phone, is_gift, recipient_phone,
	restaurant_id, restaurant_name, restaurant_lat, restaurant_lng,
	courier_id, fulfillment_type, vehicle_class, dest_lat, dest_lng,
	subtotal, vat_amount, delivery_fee, service_fee, tip, total,
	status, status_version, pickup_code, handoff_code,
	payment_amount, payment_status, gateway_ref, gateway_payload,
	created_at, updated_at`

func (s *Store) Get(ctx context.Context, id types.ID, includeUnpaid bool) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND ($2 OR payment_status = 'paid')`,
		string(id), includeUnpaid,
	)
	return s.scanOne(ctx, row)
}

func (s *Store) GetByCode(ctx context.Context, code string, includeUnpaid bool) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE code = $1 AND ($2 OR payment_status = 'paid')`,
		code, includeUnpaid,
	)
	return s.scanOne(ctx, row)
}

func (s *Store) ListByCustomer(ctx context.Context, customerID types.ID) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1 AND payment_status = 'paid'
		ORDER BY created_at DESC`,
		string(customerID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := s.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scanOne(ctx context.Context, row pgx.Row) (*Order, error) {
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var customerPhone, recipientPhone, courierID, vehicleClass, pickupCode, handoffCode, gatewayRef *string
	var destLat, destLng *float64
	var subtotal, vat, deliveryFee, serviceFee, tip, total, payAmount string

	err := row.Scan(
		&o.ID, &o.Code, &o.CustomerID, &customerPhone, &o.IsGift, &recipientPhone,
		&o.RestaurantID, &o.RestaurantName, &o.RestaurantLoc.Lat, &o.RestaurantLoc.Lng,
		&courierID, &o.Fulfillment, &vehicleClass, &destLat, &destLng,
		&subtotal, &vat, &deliveryFee, &serviceFee, &tip, &total,
		&o.Status, &o.StatusVersion, &pickupCode, &handoffCode,
		&payAmount, &o.Payment.Status, &gatewayRef, &o.Payment.RawPayload,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerPhone != nil {
		o.CustomerPhone = *customerPhone
	}
	if recipientPhone != nil {
		o.RecipientPhone = *recipientPhone
	}
	if courierID != nil {
		id := types.ID(*courierID)
		o.CourierID = &id
	}
	if vehicleClass != nil {
		o.VehicleClass = types.VehicleClass(*vehicleClass)
	}
	if destLat != nil && destLng != nil {
		o.Destination = &types.Point{Lat: *destLat, Lng: *destLng}
	}
	if pickupCode != nil {
		o.PickupCode = *pickupCode
	}
	if handoffCode != nil {
		o.HandoffCode = *handoffCode
	}
	if gatewayRef != nil {
		o.Payment.GatewayRef = *gatewayRef
	}
	for _, pair := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{subtotal, &o.Subtotal}, {vat, &o.VATAmount}, {deliveryFee, &o.DeliveryFee},
		{serviceFee, &o.ServiceFee}, {tip, &o.Tip}, {total, &o.Total}, {payAmount, &o.Payment.Amount},
	} {
		d, err := decimal.NewFromString(pair.raw)
		if err != nil {
			return nil, err
		}
		*pair.dst = d
	}
	return &o, nil
}

func (s *Store) loadItems(ctx context.Context, o *Order) error {
	rows, err := s.db.Query(ctx, `
		SELECT food_id, name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY pos`, string(o.ID),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it LineItem
		var price string
		if err := rows.Scan(&it.FoodID, &it.Name, &it.Quantity, &price); err != nil {
			return err
		}
		it.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// UpdateStatus performs the optimistic compare-and-swap on (status,
// status_version); a false return means another writer got there first.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaid flips the payment sub-record to paid and sets the handoff code.
// The unpaid guard makes webhook replays a no-op at the row level.
func (s *Store) MarkPaid(ctx context.Context, code, gatewayRef string, payload []byte, handoffCode string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'paid',
		    gateway_ref = $1,
		    gateway_payload = $2,
		    handoff_code = $3,
		    updated_at = NOW()
		WHERE code = $4 AND payment_status = 'unpaid'`,
		gatewayRef, payload, handoffCode, code,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ActiveDeliveries returns courier → (order, customer) for orders with a
// courier attached that are still mid-flight. Used to rebuild the presence
// layer's in-memory map on process start.
func (s *Store) ActiveDeliveries(ctx context.Context) (map[types.ID][2]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT courier_id, id, customer_id
		FROM orders
		WHERE courier_id IS NOT NULL
		  AND status IN ('cooked','delivering')`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID][2]types.ID)
	for rows.Next() {
		var courier, id, customer string
		if err := rows.Scan(&courier, &id, &customer); err != nil {
			return nil, err
		}
		out[types.ID(courier)] = [2]types.ID{types.ID(id), types.ID(customer)}
	}
	return out, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	var actor *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actor = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_state_events (order_id, from_status, to_status, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID), string(e.FromStatus), string(e.ToStatus), e.ActorType, actor, e.CreatedAt,
	)
	return err
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
