// README: Common value objects shared across modules.
package types

type ID string

type Point struct {
	Lat float64
	Lng float64
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleCourier  Role = "courier"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleCourier, RoleManager, RoleAdmin:
		return true
	}
	return false
}

type VehicleClass string

const (
	VehicleCar        VehicleClass = "car"
	VehicleMotorcycle VehicleClass = "motorcycle"
	VehicleBicycle    VehicleClass = "bicycle"
)

func ValidVehicleClass(v VehicleClass) bool {
	switch v {
	case VehicleCar, VehicleMotorcycle, VehicleBicycle:
		return true
	}
	return false
}
