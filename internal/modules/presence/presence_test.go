// README: Presence tests: registry indexes, active-delivery rebuild, location relay.
package presence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"platera/internal/types"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []string
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func courierMember(id types.ID, class types.VehicleClass) Member {
	return Member{UserID: id, Role: types.RoleCourier, VehicleClass: class}
}

func TestRegistrySendToUser(t *testing.T) {
	r := NewRegistry()
	c1 := &fakeConn{id: "conn1"}
	c2 := &fakeConn{id: "conn2"}

	if err := r.SendToUser("u1", "ping", nil); !errors.Is(err, ErrNoLiveConnection) {
		t.Fatalf("offline send: err = %v, want ErrNoLiveConnection", err)
	}

	// Two devices for one user both receive.
	r.Add(c1, Member{UserID: "u1", Role: types.RoleCustomer})
	r.Add(c2, Member{UserID: "u1", Role: types.RoleCustomer})
	if err := r.SendToUser("u1", "ping", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(c1.got()) != 1 || len(c2.got()) != 1 {
		t.Fatalf("both connections should receive: %v / %v", c1.got(), c2.got())
	}

	// Dropping one device keeps the user reachable.
	r.Remove("conn1")
	if err := r.SendToUser("u1", "ping", nil); err != nil {
		t.Fatalf("send after partial remove: %v", err)
	}
	if len(c2.got()) != 2 {
		t.Fatalf("remaining connection should receive: %v", c2.got())
	}

	r.Remove("conn2")
	if err := r.SendToUser("u1", "ping", nil); !errors.Is(err, ErrNoLiveConnection) {
		t.Fatalf("after full remove: err = %v, want ErrNoLiveConnection", err)
	}
}

func TestRegistryRemoveLeavesNoDanglingSets(t *testing.T) {
	r := NewRegistry()
	c := &fakeConn{id: "conn1"}
	r.Add(c, courierMember("k1", types.VehicleCar))
	r.Remove("conn1")

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.conns) != 0 || len(r.roles) != 0 || len(r.vehicles) != 0 || len(r.members) != 0 {
		t.Fatalf("indexes not empty after last remove: conns=%d roles=%d vehicles=%d members=%d",
			len(r.conns), len(r.roles), len(r.vehicles), len(r.members))
	}
}

func TestBroadcastVehicleSkipsBusy(t *testing.T) {
	r := NewRegistry()
	idle := &fakeConn{id: "conn_idle"}
	busy := &fakeConn{id: "conn_busy"}
	car := &fakeConn{id: "conn_car"}
	r.Add(idle, courierMember("k_idle", types.VehicleMotorcycle))
	r.Add(busy, courierMember("k_busy", types.VehicleMotorcycle))
	r.Add(car, courierMember("k_car", types.VehicleCar))

	active := NewActiveDeliveries()
	active.Bind("k_busy", Binding{OrderID: "o1", CustomerID: "c1"})

	n := r.BroadcastVehicle(types.VehicleMotorcycle, "order_ready", nil, active.IsBusy)
	if n != 1 {
		t.Fatalf("reached %d couriers, want 1", n)
	}
	if len(idle.got()) != 1 {
		t.Errorf("idle courier should receive the offer")
	}
	if len(busy.got()) != 0 {
		t.Errorf("busy courier must be skipped")
	}
	if len(car.got()) != 0 {
		t.Errorf("other vehicle class must not receive")
	}
}

type fakeSource struct {
	rows map[types.ID][2]types.ID
	err  error
}

func (f *fakeSource) ActiveDeliveries(context.Context) (map[types.ID][2]types.ID, error) {
	return f.rows, f.err
}

func TestActiveDeliveriesRebuild(t *testing.T) {
	active := NewActiveDeliveries()
	active.Bind("k_stale", Binding{OrderID: "o_old", CustomerID: "c_old"})

	src := &fakeSource{rows: map[types.ID][2]types.ID{
		"k1": {"o1", "c1"},
		"k2": {"o2", "c2"},
	}}
	if err := active.Rebuild(context.Background(), src); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// The rebuild replaces, never merges: stale bindings are gone.
	if active.IsBusy("k_stale") {
		t.Error("stale binding survived rebuild")
	}
	b, ok := active.Get("k1")
	if !ok || b.OrderID != "o1" || b.CustomerID != "c1" {
		t.Errorf("k1 binding = %+v, ok=%v", b, ok)
	}
	if !active.IsBusy("k2") {
		t.Error("k2 should be busy after rebuild")
	}

	// A failed rebuild keeps the previous map intact.
	if err := active.Rebuild(context.Background(), &fakeSource{err: errors.New("db down")}); err == nil {
		t.Fatal("expected rebuild error")
	}
	if !active.IsBusy("k1") {
		t.Error("bindings must survive a failed rebuild")
	}
}

func TestLocationRelayBindingGuard(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	active := NewActiveDeliveries()
	relay := NewLocationRelay(active, registry, nil, zap.NewNop())

	customer := &fakeConn{id: "conn_cust"}
	registry.Add(customer, Member{UserID: "c1", Role: types.RoleCustomer})

	ping := LocationPing{OrderID: "o1", CustomerID: "c1", Position: types.Point{Lat: 25.0, Lng: 121.5}}

	if err := relay.HandlePing(ctx, "k1", types.VehicleCar, ping); !errors.Is(err, ErrNotBound) {
		t.Fatalf("unbound: err = %v, want ErrNotBound", err)
	}

	active.Bind("k1", Binding{OrderID: "o_other", CustomerID: "c1"})
	if err := relay.HandlePing(ctx, "k1", types.VehicleCar, ping); !errors.Is(err, ErrWrongBinding) {
		t.Fatalf("wrong order: err = %v, want ErrWrongBinding", err)
	}

	active.Bind("k1", Binding{OrderID: "o1", CustomerID: "c1"})
	if err := relay.HandlePing(ctx, "k1", types.VehicleCar, ping); err != nil {
		t.Fatalf("bound ping: %v", err)
	}
	events := customer.got()
	if len(events) != 1 || events[0] != "courier_location" {
		t.Fatalf("customer events = %v, want one courier_location", events)
	}

	// An offline customer does not fail the ping; the courier keeps sending.
	registry.Remove("conn_cust")
	if err := relay.HandlePing(ctx, "k1", types.VehicleCar, ping); err != nil {
		t.Fatalf("ping with offline customer: %v", err)
	}
}
