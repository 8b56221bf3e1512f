package models

// UserRole is a closed set; never compare against raw strings in handlers,
// consult the capability table below instead.
type UserRole string

const (
	RoleAdmin         UserRole = "ADMIN"
	RoleBranchManager UserRole = "BRANCH_MANAGER"
	RoleCounter       UserRole = "COUNTER"
	RoleWaiter        UserRole = "WAITER"
	RoleKitchen       UserRole = "KITCHEN"
)

// Capabilities describes what a role is allowed to do. Looked up once per
// operation via RoleCapabilities.
type Capabilities struct {
	// CanSettleInvoice: may mark an invoice fully PAID. Waiters collect cash
	// at the table but the invoice stays PARTIAL until a counter confirms.
	CanSettleInvoice bool
	CanCreateInvoice bool
	// CanManageBranches: branch and staff administration, chain-wide reads.
	CanManageBranches bool
	CanManageCatalog  bool
	// CanEditStockHistory: posting manual stock add/reduce and correcting a
	// past ledger entry (which replays every later entry).
	CanEditStockHistory bool
	CanRefundPayments   bool
	CanCancelInvoice    bool
}

var roleCapabilities = map[UserRole]Capabilities{
	RoleAdmin: {
		CanSettleInvoice:    true,
		CanCreateInvoice:    true,
		CanManageBranches:   true,
		CanManageCatalog:    true,
		CanEditStockHistory: true,
		CanRefundPayments:   true,
		CanCancelInvoice:    true,
	},
	RoleBranchManager: {
		CanSettleInvoice:    true,
		CanCreateInvoice:    true,
		CanManageCatalog:    true,
		CanEditStockHistory: true,
		CanCancelInvoice:    true,
	},
	RoleCounter: {
		CanSettleInvoice: true,
		CanCreateInvoice: true,
	},
	RoleWaiter: {
		CanCreateInvoice: true,
	},
	RoleKitchen: {},
}

// RoleCapabilities returns the capability set for a role. Unknown roles get
// the empty set.
func RoleCapabilities(role UserRole) Capabilities {
	return roleCapabilities[role]
}

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}
