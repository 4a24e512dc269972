// README: Courier-claim transaction: serializable read-check-write across two rows.
package assignment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"platera/internal/modules/order"
	"platera/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ActiveOrder describes the courier's conflicting order when a claim is
// rejected because the courier is already booked.
type ActiveOrder struct {
	OrderID types.ID
	Status  order.Status
}

type claimedOrder struct {
	customerID types.ID
	code       string
}

// Claim runs the whole claim protocol in one serializable transaction:
// the courier's "already active" check and the order's "still claimable"
// check read different rows and must stay consistent with each other, so
// the optimistic per-row CAS used elsewhere is not enough here.
func (s *Store) Claim(ctx context.Context, orderID, courierID types.ID, vehicle types.VehicleClass, pickupCode string) (claimedOrder, *ActiveOrder, error) {
	var none claimedOrder
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return none, nil, err
	}
	defer tx.Rollback(ctx)

	// Step 1: does this courier already hold a non-terminal order?
	var activeID, activeStatus string
	err = tx.QueryRow(ctx, `
		SELECT id, status FROM orders
		WHERE courier_id = $1 AND status NOT IN ('completed','cancelled')
		LIMIT 1`, string(courierID),
	).Scan(&activeID, &activeStatus)
	if err == nil {
		return none, &ActiveOrder{OrderID: types.ID(activeID), Status: order.Status(activeStatus)}, ErrCourierActive
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return none, nil, err
	}

	// Step 2: load the target order within the transaction.
	var (
		claimedBy    *string
		status       string
		fulfillment  string
		orderVehicle *string
		customerID   string
		code         string
	)
	err = tx.QueryRow(ctx, `
		SELECT courier_id, status, fulfillment_type, vehicle_class, customer_id, code
		FROM orders
		WHERE id = $1
		FOR UPDATE`, string(orderID),
	).Scan(&claimedBy, &status, &fulfillment, &orderVehicle, &customerID, &code)
	if errors.Is(err, pgx.ErrNoRows) {
		return none, nil, order.ErrNotFound
	}
	if err != nil {
		return none, nil, err
	}

	switch {
	case claimedBy != nil:
		return none, nil, ErrAlreadyClaimed
	case order.Status(status) != order.StatusCooked:
		return none, nil, ErrNotReady
	case order.FulfillmentType(fulfillment) != order.FulfillmentDelivery:
		return none, nil, ErrNotDeliverable
	case orderVehicle == nil || types.VehicleClass(*orderVehicle) != vehicle:
		return none, nil, ErrVehicleMismatch
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET courier_id = $1,
		    pickup_code = $2,
		    status_version = status_version + 1,
		    updated_at = NOW()
		WHERE id = $3`,
		string(courierID), pickupCode, string(orderID),
	)
	if err != nil {
		return none, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return none, nil, err
	}
	return claimedOrder{customerID: types.ID(customerID), code: code}, nil, nil
}

// isSerializationFailure reports SQLSTATE 40001, which the caller retries.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
