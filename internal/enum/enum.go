package enum

// ── Order status state machine (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "pending"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusPicked    = "picked"
	OrderStatusCancelled = "cancelled"
)

// IsOrderStatus reports whether s is a valid order status value.
func IsOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady,
		OrderStatusPicked, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminalStatus reports whether an order in status s can never change again.
func IsTerminalStatus(s string) bool {
	return s == OrderStatusPicked || s == OrderStatusCancelled
}

// ── Roles (CHECK constrained in DB) ──

const (
	RoleStudent = "student"
	RoleStaff   = "staff"
	RoleManager = "manager"
)

// IsRole reports whether s is a valid user role.
func IsRole(s string) bool {
	switch s {
	case RoleStudent, RoleStaff, RoleManager:
		return true
	}
	return false
}

// IsStaffRole reports whether s is a role with fulfillment rights over any order.
func IsStaffRole(s string) bool {
	return s == RoleStaff || s == RoleManager
}
