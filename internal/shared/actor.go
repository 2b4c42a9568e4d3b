package shared

// Role enumerates the actor roles recognised by the back office.
type Role string

const (
	// RoleAdmin may operate on every branch.
	RoleAdmin Role = "admin"
	// RoleBranchManager is scoped to a single branch with full edit rights.
	RoleBranchManager Role = "branch_manager"
	// RoleUser is scoped to a single branch with limited edit rights.
	RoleUser Role = "user"
)

// ValidRole reports whether the role is one of the known values.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleBranchManager, RoleUser:
		return true
	}
	return false
}

// Actor is the authenticated caller identity supplied by the upstream
// identity provider. Authentication itself happens outside this service;
// the gateway forwards a validated actor and we trust it.
type Actor struct {
	ID       int64
	Role     Role
	BranchID int64
}

// CanAccessBranch reports whether the actor may operate on the branch.
// Admins have no branch affinity; everyone else is pinned to theirs.
func (a Actor) CanAccessBranch(branchID int64) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return a.BranchID != 0 && a.BranchID == branchID
}

// CanEdit reports whether the actor may post mutating operations.
func (a Actor) CanEdit() bool {
	return a.Role == RoleAdmin || a.Role == RoleBranchManager
}
