package domain

// Role is what the authentication layer says the current actor is.
type Role string

const (
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Actor identifies who requested a change. Authentication happens elsewhere;
// the core only sees the resolved role and restaurant.
type Actor struct {
	ID           string
	Role         Role
	RestaurantID string
}

// SystemActor is used for changes driven by payment gateway events.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// String is the value written to the status log.
func (a Actor) String() string {
	if a.ID == "" || a.ID == string(a.Role) {
		return string(a.Role)
	}
	return string(a.Role) + ":" + a.ID
}

// CanAccess reports whether the actor may act on orders of restaurantID.
// Staff without a restaurant can act on none.
func (a Actor) CanAccess(restaurantID string) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleStaff:
		return a.RestaurantID != "" && a.RestaurantID == restaurantID
	default:
		return false
	}
}

// MayTransition restricts the system actor to payment confirmation.
func (a Actor) MayTransition(from, to Status) bool {
	if a.Role == RoleSystem {
		return from == StatusAwaitingPayment && to == StatusNew
	}
	return true
}
