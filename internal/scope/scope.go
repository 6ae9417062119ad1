// Package scope decides which sites and records a principal may see.
package scope

import (
	"context"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// EffectiveSet is the set of sites a principal may query against. All is the
// explicit wildcard; it is never expanded into a site list.
type EffectiveSet struct {
	All   bool
	Sites []string
	// Degraded is set when the assignment lookup failed and the set was
	// closed to empty.
	Degraded bool
}

// Contains reports whether site is in the set.
func (s EffectiveSet) Contains(site string) bool {
	if s.All {
		return true
	}
	return slices.Contains(s.Sites, site)
}

// AllowNull reports whether organization-wide records (no site) are visible:
// true when at least one site is accessible or there is no site constraint.
func (s EffectiveSet) AllowNull() bool {
	return s.All || len(s.Sites) > 0
}

// Empty reports whether nothing at all is accessible.
func (s EffectiveSet) Empty() bool {
	return !s.All && len(s.Sites) == 0
}

// Resolver computes effective site sets from site assignments.
type Resolver struct {
	dir store.Directory
	log *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(dir store.Directory, log *zap.Logger) *Resolver {
	return &Resolver{dir: dir, log: log}
}

// Resolve returns p's effective site set. Assignments are looked up on every
// call. A failed lookup yields an empty, degraded set, never the wildcard.
func (r *Resolver) Resolve(ctx context.Context, p model.Principal) EffectiveSet {
	if !p.IsRestricted && p.Role.IsAdmin() {
		return EffectiveSet{All: true}
	}
	assignments, err := r.dir.SiteAssignments(ctx, p.ID)
	if err != nil {
		r.log.Warn("site assignment lookup failed, closing scope",
			zap.String("principal_id", p.ID), zap.Error(err))
		return EffectiveSet{Degraded: true}
	}
	seen := make(map[string]struct{}, len(assignments))
	sites := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if p.IsRestricted && p.RestrictedOrgID != "" && a.OrgID != p.RestrictedOrgID {
			continue
		}
		if _, dup := seen[a.SiteID]; dup || a.SiteID == "" {
			continue
		}
		seen[a.SiteID] = struct{}{}
		sites = append(sites, a.SiteID)
	}
	sort.Strings(sites)
	return EffectiveSet{Sites: sites}
}

// OrgConstraint returns the organization p's records must belong to, or ""
// when p is not bound to one.
func OrgConstraint(p model.Principal) string {
	if p.IsRestricted {
		return p.RestrictedOrgID
	}
	if p.Role.IsAdmin() {
		return ""
	}
	return p.OrganizationID
}
