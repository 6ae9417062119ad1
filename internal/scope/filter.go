package scope

import (
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// Scoped is any record that carries a (nullable) site and an organization.
type Scoped interface {
	ScopeSite() *string
	ScopeOrg() string
}

// MatchSite is the "site IS NULL OR site IN set" predicate. The null branch
// depends on allowNull alone: an empty set with allowNull still admits
// organization-wide records, and without it admits nothing.
func MatchSite(site *string, set EffectiveSet, allowNull bool) bool {
	if site == nil {
		return allowNull
	}
	return set.Contains(*site)
}

// Filter is a resolved visibility rule for one request.
type Filter struct {
	Set   EffectiveSet
	OrgID string
	// SiteID narrows results to one site when set.
	SiteID string
}

// For builds the filter for p. siteID is an optional explicit site filter.
func For(p model.Principal, set EffectiveSet, siteID string) Filter {
	return Filter{Set: set, OrgID: OrgConstraint(p), SiteID: siteID}
}

// Blocked reports whether the filter can match no record at all, letting
// callers skip queries entirely.
func (f Filter) Blocked() bool {
	if f.SiteID != "" {
		return !f.Set.Contains(f.SiteID)
	}
	return f.Set.Empty()
}

// Allows reports whether r is visible under f.
func (f Filter) Allows(r Scoped) bool {
	if f.OrgID != "" && r.ScopeOrg() != f.OrgID {
		return false
	}
	site := r.ScopeSite()
	if f.SiteID != "" {
		if !f.Set.Contains(f.SiteID) {
			return false
		}
		return site != nil && *site == f.SiteID
	}
	return MatchSite(site, f.Set, f.Set.AllowNull())
}

// Apply copies the filter's predicate into a storage query so sources can
// push it down.
func (f Filter) Apply(q *store.DocumentQuery) {
	q.OrgID = f.OrgID
	if f.SiteID != "" {
		q.AllSites = false
		q.Sites = []string{f.SiteID}
		q.AllowNull = false
		return
	}
	q.AllSites = f.Set.All
	q.Sites = append([]string(nil), f.Set.Sites...)
	q.AllowNull = f.Set.AllowNull()
}

// View returns the records of rs visible under f, preserving order.
func View[T Scoped](f Filter, rs []T) []T {
	out := make([]T, 0, len(rs))
	if f.Blocked() {
		return out
	}
	for _, r := range rs {
		if f.Allows(r) {
			out = append(out, r)
		}
	}
	return out
}
