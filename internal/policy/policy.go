// Package policy decides whether an actor may perform an operation on an
// order. It is deliberately pure: everything the decision needs arrives as
// parameters, never from request context.
package policy

import (
	"github.com/campus-eats/api/internal/enum"
	"github.com/google/uuid"
)

// Operation is a mutating or reading order operation subject to access control.
type Operation string

const (
	OpCreate  Operation = "create"
	OpUpdate  Operation = "update"
	OpCancel  Operation = "cancel"
	OpAdvance Operation = "advance_status"
	OpView    Operation = "view"
)

// Order is the minimal view of an order the policy needs.
type Order struct {
	OwnerID uuid.UUID
	Status  string
}

// CanAct reports whether an actor with the given role and ID may perform op
// on the order.
//
// Students act only on their own orders: update requires the order to still
// be pending, cancel requires a non-terminal order, view is always allowed on
// own orders. Staff and managers may advance or cancel any non-terminal order
// and view everything; the two roles carry identical rights.
func CanAct(role string, actorID uuid.UUID, ord Order, op Operation) bool {
	switch op {
	case OpCreate:
		return role == enum.RoleStudent
	case OpView:
		if enum.IsStaffRole(role) {
			return true
		}
		return role == enum.RoleStudent && actorID == ord.OwnerID
	case OpUpdate:
		return role == enum.RoleStudent &&
			actorID == ord.OwnerID &&
			ord.Status == enum.OrderStatusPending
	case OpCancel:
		if enum.IsTerminalStatus(ord.Status) {
			return false
		}
		if enum.IsStaffRole(role) {
			return true
		}
		return role == enum.RoleStudent &&
			actorID == ord.OwnerID &&
			ord.Status == enum.OrderStatusPending
	case OpAdvance:
		return enum.IsStaffRole(role) && !enum.IsTerminalStatus(ord.Status)
	}
	return false
}
