// Package model contains the struct definitions shared across packages.
package model

// Role is the role a principal acts under.
type Role string

const (
	RoleWorker          Role = "worker"
	RoleSiteManager     Role = "site_manager"
	RoleCustomerManager Role = "customer_manager"
	RoleAdmin           Role = "admin"
	RoleSystemAdmin     Role = "system_admin"
)

// Roles lists every known role in a stable order.
var Roles = []Role{RoleWorker, RoleSiteManager, RoleCustomerManager, RoleAdmin, RoleSystemAdmin}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// IsAdmin reports whether r may perform administrator mutations.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSystemAdmin
}

// Principal is the authenticated actor of a request. It is built by the
// authentication layer and never persisted here.
type Principal struct {
	ID             string `json:"id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organizationId,omitempty"`
	// IsRestricted confines the principal to RestrictedOrgID and its
	// explicit site assignments regardless of role.
	IsRestricted    bool   `json:"isRestricted"`
	RestrictedOrgID string `json:"restrictedOrgId,omitempty"`
}

// SiteAssignment relates a principal to one site.
type SiteAssignment struct {
	PrincipalID string `json:"principalId"`
	SiteID      string `json:"siteId"`
	OrgID       string `json:"orgId"`
}
