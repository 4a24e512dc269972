// README: In-memory courier → active delivery map, rebuilt from the DB on boot.
package presence

import (
	"context"
	"sync"

	"platera/internal/types"
)

type Binding struct {
	OrderID    types.ID
	CustomerID types.ID
}

// Source supplies the persisted active deliveries for the restart rebuild.
// The order store implements it.
type Source interface {
	ActiveDeliveries(ctx context.Context) (map[types.ID][2]types.ID, error)
}

type ActiveDeliveries struct {
	mu        sync.RWMutex
	byCourier map[types.ID]Binding
}

func NewActiveDeliveries() *ActiveDeliveries {
	return &ActiveDeliveries{byCourier: make(map[types.ID]Binding)}
}

func (a *ActiveDeliveries) Bind(courierID types.ID, b Binding) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byCourier[courierID] = b
}

func (a *ActiveDeliveries) Unbind(courierID types.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byCourier, courierID)
}

func (a *ActiveDeliveries) Get(courierID types.ID) (Binding, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.byCourier[courierID]
	return b, ok
}

func (a *ActiveDeliveries) IsBusy(courierID types.ID) bool {
	_, ok := a.Get(courierID)
	return ok
}

// Rebuild replaces the map with the persisted state: orders in
// cooked/delivering with a courier attached. Survives process restarts
// and courier reconnects.
func (a *ActiveDeliveries) Rebuild(ctx context.Context, src Source) error {
	rows, err := src.ActiveDeliveries(ctx)
	if err != nil {
		return err
	}
	fresh := make(map[types.ID]Binding, len(rows))
	for courier, pair := range rows {
		fresh[courier] = Binding{OrderID: pair[0], CustomerID: pair[1]}
	}
	a.mu.Lock()
	a.byCourier = fresh
	a.mu.Unlock()
	return nil
}
