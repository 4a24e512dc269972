// README: Live-connection registry: per-user, per-role, per-vehicle-class indexes.
package presence

import (
	"errors"
	"sync"

	"platera/internal/types"
)

var ErrNoLiveConnection = errors.New("no live connection for user")

// Conn is the transport-agnostic live connection contract. The websocket
// adapter implements it; tests use in-memory fakes.
type Conn interface {
	ID() string
	Emit(event string, data any) error
	Close() error
}

// Member describes the identity bound to a connection at connect time.
type Member struct {
	UserID       types.ID
	Role         types.Role
	VehicleClass types.VehicleClass // couriers only
}

// Registry holds every live connection. One instance per process,
// injected into the transport layer; no package-level state.
type Registry struct {
	mu sync.RWMutex
	// user → connection id → connection; a user may hold several.
	conns map[types.ID]map[string]Conn
	roles map[types.Role]map[types.ID]struct{}
	// couriers grouped by vehicle class for the order-ready broadcast.
	vehicles map[types.VehicleClass]map[types.ID]struct{}
	members  map[string]Member
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[types.ID]map[string]Conn),
		roles:    make(map[types.Role]map[types.ID]struct{}),
		vehicles: make(map[types.VehicleClass]map[types.ID]struct{}),
		members:  make(map[string]Member),
	}
}

func (r *Registry) Add(c Conn, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[m.UserID] == nil {
		r.conns[m.UserID] = make(map[string]Conn)
	}
	r.conns[m.UserID][c.ID()] = c
	r.members[c.ID()] = m

	if r.roles[m.Role] == nil {
		r.roles[m.Role] = make(map[types.ID]struct{})
	}
	r.roles[m.Role][m.UserID] = struct{}{}

	if m.Role == types.RoleCourier && m.VehicleClass != "" {
		if r.vehicles[m.VehicleClass] == nil {
			r.vehicles[m.VehicleClass] = make(map[types.ID]struct{})
		}
		r.vehicles[m.VehicleClass][m.UserID] = struct{}{}
	}
}

// Remove detaches one connection from every index it was added to. When
// the user's last connection goes, the user entry goes with it — no
// dangling empty sets.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[connID]
	if !ok {
		return
	}
	delete(r.members, connID)

	set := r.conns[m.UserID]
	delete(set, connID)
	if len(set) > 0 {
		return // other live connections keep the user registered
	}
	delete(r.conns, m.UserID)

	if roleSet := r.roles[m.Role]; roleSet != nil {
		delete(roleSet, m.UserID)
		if len(roleSet) == 0 {
			delete(r.roles, m.Role)
		}
	}
	if vehSet := r.vehicles[m.VehicleClass]; vehSet != nil {
		delete(vehSet, m.UserID)
		if len(vehSet) == 0 {
			delete(r.vehicles, m.VehicleClass)
		}
	}
}

// SendToUser delivers an event to every live connection of the identity.
// Reports ErrNoLiveConnection if none are live so the caller can fall back
// to a persisted-notification path.
func (r *Registry) SendToUser(userID types.ID, event string, data any) error {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns[userID]))
	for _, c := range r.conns[userID] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return ErrNoLiveConnection
	}
	for _, c := range targets {
		_ = c.Emit(event, data)
	}
	return nil
}

// BroadcastVehicle sends an event to every live courier of the given
// vehicle class, skipping those for which skip returns true (busy
// couriers mid-delivery). Returns the number of users reached.
func (r *Registry) BroadcastVehicle(class types.VehicleClass, event string, data any, skip func(types.ID) bool) int {
	r.mu.RLock()
	targets := make(map[types.ID][]Conn)
	for userID := range r.vehicles[class] {
		if skip != nil && skip(userID) {
			continue
		}
		for _, c := range r.conns[userID] {
			targets[userID] = append(targets[userID], c)
		}
	}
	r.mu.RUnlock()

	for _, conns := range targets {
		for _, c := range conns {
			_ = c.Emit(event, data)
		}
	}
	return len(targets)
}

// LiveUsers returns how many distinct identities of a role are connected.
func (r *Registry) LiveUsers(role types.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roles[role])
}
