// Package registry holds the document requirement catalogue and resolves
// which requirements apply to a role at a site.
package registry

import (
	"sort"
	"time"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

// Snapshot is an immutable view of the registry. Readers hold one snapshot
// for the whole request, so an administrator's edit is either fully visible
// or not at all.
type Snapshot struct {
	requirements map[string]model.DocumentRequirement
	roles        map[model.Role][]model.RoleMapping
	overrides    map[string]model.SiteOverride // requirementID + "\x00" + siteID
	LoadedAt     time.Time
}

// NewSnapshot indexes data. data is not retained.
func NewSnapshot(data model.RegistryData, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		requirements: make(map[string]model.DocumentRequirement, len(data.Requirements)),
		roles:        make(map[model.Role][]model.RoleMapping),
		overrides:    make(map[string]model.SiteOverride, len(data.SiteOverrides)),
		LoadedAt:     loadedAt,
	}
	for _, r := range data.Requirements {
		r.FileKinds = append([]string(nil), r.FileKinds...)
		s.requirements[r.ID] = r
	}
	for _, m := range data.RoleMappings {
		s.roles[m.Role] = append(s.roles[m.Role], m)
	}
	for _, o := range data.SiteOverrides {
		s.overrides[overrideKey(o.RequirementID, o.SiteID)] = o
	}
	return s
}

func overrideKey(requirementID, siteID string) string {
	return requirementID + "\x00" + siteID
}

// Requirement returns the requirement with id, active or archived.
func (s *Snapshot) Requirement(id string) (model.DocumentRequirement, bool) {
	r, ok := s.requirements[id]
	return r, ok
}

// Resolve lists the active requirements mapped to role. A site override for
// siteID replaces the role-derived IsRequired and DueDays. Results are
// ordered by sort order, then code.
func (s *Snapshot) Resolve(role model.Role, siteID string) []model.ResolvedRequirement {
	mappings := s.roles[role]
	out := make([]model.ResolvedRequirement, 0, len(mappings))
	for _, m := range mappings {
		req, ok := s.requirements[m.RequirementID]
		if !ok || !req.Active {
			continue
		}
		resolved := model.ResolvedRequirement{DocumentRequirement: req, IsRequired: m.IsRequired}
		if siteID != "" {
			if o, ok := s.overrides[overrideKey(req.ID, siteID)]; ok {
				resolved.IsRequired = o.IsRequired
				resolved.DueDays = o.DueDays
				resolved.Notes = o.Notes
			}
		}
		out = append(out, resolved)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out
}
