// Package permission holds the static capability table for cashier roles and
// the lookup helpers the service layer gates every operation through.
package permission

import (
	"errors"
	"fmt"

	"warungpos/internal/domain"
)

type Permission string

const (
	ProcessTransaction     Permission = "process_transaction"
	ApplyItemDiscount      Permission = "apply_item_discount"
	OverridePrice          Permission = "override_price"
	VoidTransaction        Permission = "void_transaction"
	ProcessRefund          Permission = "process_refund"
	ManageShift            Permission = "manage_shift"
	ManageInventory        Permission = "manage_inventory"
	ProductFavorites       Permission = "product_favorites"
	AccessCustomerData     Permission = "access_customer_data"
	CustomerCredit         Permission = "customer_credit"
	ViewTransactionHistory Permission = "view_transaction_history"
	TransactionNotes       Permission = "transaction_notes"
	ManageBranches         Permission = "manage_branches"
	ApproveTransfer        Permission = "approve_transfer"
	ViewReports            Permission = "view_reports"
)

const (
	RoleJunior     = "junior"
	RoleSenior     = "senior"
	RoleSupervisor = "supervisor"
	RoleManager    = "manager"
)

var ErrDenied = errors.New("permission denied")

// roleTable maps each cashier role to its full permission set. Roles are
// strictly cumulative: every set is a superset of the one below it.
var roleTable = map[string][]Permission{
	RoleJunior: {
		ProcessTransaction,
		AccessCustomerData,
		ViewTransactionHistory,
		TransactionNotes,
	},
	RoleSenior: {
		ProcessTransaction,
		AccessCustomerData,
		ViewTransactionHistory,
		TransactionNotes,
		ApplyItemDiscount,
		ProductFavorites,
	},
	RoleSupervisor: {
		ProcessTransaction,
		AccessCustomerData,
		ViewTransactionHistory,
		TransactionNotes,
		ApplyItemDiscount,
		ProductFavorites,
		OverridePrice,
		VoidTransaction,
		ProcessRefund,
		ManageShift,
		ViewReports,
	},
	RoleManager: {
		ProcessTransaction,
		AccessCustomerData,
		ViewTransactionHistory,
		TransactionNotes,
		ApplyItemDiscount,
		ProductFavorites,
		OverridePrice,
		VoidTransaction,
		ProcessRefund,
		ManageShift,
		ViewReports,
		ManageInventory,
		CustomerCredit,
		ManageBranches,
		ApproveTransfer,
	},
}

// All enumerates every known permission.
var All = []Permission{
	ProcessTransaction,
	ApplyItemDiscount,
	OverridePrice,
	VoidTransaction,
	ProcessRefund,
	ManageShift,
	ManageInventory,
	ProductFavorites,
	AccessCustomerData,
	CustomerCredit,
	ViewTransactionHistory,
	TransactionNotes,
	ManageBranches,
	ApproveTransfer,
	ViewReports,
}

// Valid reports whether perm is a known permission.
func Valid(perm Permission) bool {
	for _, known := range All {
		if known == perm {
			return true
		}
	}
	return false
}

// ValidRole reports whether name is a known cashier role.
func ValidRole(name string) bool {
	_, ok := roleTable[name]
	return ok
}

// RolePermissions returns a copy of the permission set for a cashier role,
// nil for unknown roles.
func RolePermissions(role string) []Permission {
	perms, ok := roleTable[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// Allowed reports whether the actor holds the permission. Admins hold every
// permission. Explicit per-user grants are consulted before the role table,
// so a junior can be granted void_transaction without a promotion. An
// unauthenticated (zero) actor holds nothing.
func Allowed(actor domain.Actor, perm Permission) bool {
	if actor.Username == "" {
		return false
	}
	if actor.Role == "admin" {
		return true
	}
	for _, p := range actor.Permissions {
		if Permission(p) == perm {
			return true
		}
	}
	for _, p := range roleTable[actor.CashierRole] {
		if p == perm {
			return true
		}
	}
	return false
}

// Require returns an ErrDenied-wrapped error naming the missing permission,
// or nil when the actor holds it.
func Require(actor domain.Actor, perm Permission) error {
	if Allowed(actor, perm) {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", ErrDenied, actor.Username, perm)
}
