package model

import "time"

// DocumentRequirement is a named compliance document type. Archiving sets
// Active to false; rows are never deleted so history stays valid.
type DocumentRequirement struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	FileKinds    []string  `json:"fileKinds"`
	MaxSizeBytes int64     `json:"maxSizeBytes"`
	SortOrder    int       `json:"sortOrder"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RoleMapping marks a requirement as applicable to a role.
type RoleMapping struct {
	RequirementID string `json:"requirementId"`
	Role          Role   `json:"role"`
	IsRequired    bool   `json:"isRequired"`
}

// SiteOverride replaces the role-derived values for principals of one site.
type SiteOverride struct {
	RequirementID string `json:"requirementId"`
	SiteID        string `json:"siteId"`
	IsRequired    bool   `json:"isRequired"`
	DueDays       *int   `json:"dueDays,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// RegistryData is everything the requirement registry needs to resolve
// applicability, loaded in one read.
type RegistryData struct {
	Requirements  []DocumentRequirement
	RoleMappings  []RoleMapping
	SiteOverrides []SiteOverride
}

// ResolvedRequirement is a requirement with its applicability resolved for a
// (role, site) pair.
type ResolvedRequirement struct {
	DocumentRequirement
	IsRequired bool   `json:"isRequired"`
	DueDays    *int   `json:"dueDays,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// AcceptsKind reports whether the given mime type or extension is accepted.
// An empty FileKinds list accepts everything.
func (r DocumentRequirement) AcceptsKind(kind string) bool {
	if len(r.FileKinds) == 0 {
		return true
	}
	for _, k := range r.FileKinds {
		if k == kind {
			return true
		}
	}
	return false
}
