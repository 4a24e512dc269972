// README: Menu lookup models (food and restaurant snapshots).
package menu

import (
	"github.com/shopspring/decimal"

	"platera/internal/types"
)

type Food struct {
	ID           types.ID
	RestaurantID types.ID
	Name         string
	Price        decimal.Decimal
}

type Restaurant struct {
	ID       types.ID
	Name     string
	Location types.Point
}
