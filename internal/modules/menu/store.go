// README: Menu store backed by PostgreSQL (batch food lookup, restaurant snapshot).
package menu

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"platera/internal/types"
)

var ErrNotFound = errors.New("menu item not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// GetFoods resolves a batch of food ids in one query. Returns ErrNotFound
// if any id is unknown.
func (s *Store) GetFoods(ctx context.Context, ids []types.ID) (map[types.ID]Food, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, restaurant_id, name, price
		FROM foods
		WHERE id = ANY($1)`, raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]Food, len(ids))
	for rows.Next() {
		var f Food
		var price string
		if err := rows.Scan(&f.ID, &f.RestaurantID, &f.Name, &price); err != nil {
			return nil, err
		}
		f.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		out[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, ErrNotFound
		}
	}
	return out, nil
}

func (s *Store) GetRestaurant(ctx context.Context, id types.ID) (Restaurant, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, lat, lng
		FROM restaurants
		WHERE id = $1`, string(id),
	)
	var r Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Location.Lat, &r.Location.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return Restaurant{}, ErrNotFound
	}
	if err != nil {
		return Restaurant{}, err
	}
	return r, nil
}
