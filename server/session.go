package server

// Role is the user type the backend reports at login.
type Role string

const (
	RoleCustomer    Role = "Customer"
	RoleCourier     Role = "Courier"
	RoleDistributor Role = "Distributor"
)

// Session is the gateway-held state for one authenticated connection.
// Delivery is only ever non-nil for couriers; other roles carry no
// delivery state at all.
type Session struct {
	Username   string
	APIKey     string
	Role       Role
	StudentNum string
	Delivery   *Delivery
}

// Delivery tracks a courier's in-flight delivery so an abandoned one can
// be returned to a safe backend state. OnDelivery implies OrderID is set.
type Delivery struct {
	OnDelivery bool
	OrderID    any
	DroneID    any
	Lat        float64
	Lng        float64
	Battery    float64
	Altitude   float64
}

// IsCourier reports whether the session belongs to a courier.
func (s *Session) IsCourier() bool {
	return s.Role == RoleCourier
}

// delivery returns the courier's delivery block, creating it on first use.
// Only call on courier sessions.
func (s *Session) delivery() *Delivery {
	if s.Delivery == nil {
		s.Delivery = &Delivery{}
	}
	return s.Delivery
}

// onDelivery reports whether the session denotes an in-flight delivery.
func (s *Session) onDelivery() bool {
	return s.IsCourier() && s.Delivery != nil && s.Delivery.OnDelivery
}
