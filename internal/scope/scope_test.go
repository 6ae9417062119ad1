package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

type fakeDirectory struct {
	assignments map[string][]model.SiteAssignment
	err         error
	calls       int
}

func (f *fakeDirectory) GetPrincipal(ctx context.Context, id string) (model.Principal, error) {
	return model.Principal{ID: id}, nil
}

func (f *fakeDirectory) SiteAssignments(ctx context.Context, principalID string) ([]model.SiteAssignment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.assignments[principalID], nil
}

// metricRecord stands in for any site-scoped dashboard row.
type metricRecord struct {
	Name   string
	SiteID *string
	OrgID  string
}

func (m metricRecord) ScopeSite() *string { return m.SiteID }
func (m metricRecord) ScopeOrg() string   { return m.OrgID }

func ptr(s string) *string { return &s }

func restrictedFixture() (*Resolver, model.Principal, []metricRecord) {
	dir := &fakeDirectory{assignments: map[string][]model.SiteAssignment{
		"u1": {
			{PrincipalID: "u1", SiteID: "site-1", OrgID: "org-1"},
			{PrincipalID: "u1", SiteID: "site-9", OrgID: "org-2"},
		},
	}}
	p := model.Principal{ID: "u1", Role: model.RoleSiteManager, IsRestricted: true, RestrictedOrgID: "org-1"}
	records := []metricRecord{
		{Name: "daily_report_completion", SiteID: ptr("site-1"), OrgID: "org-1"},
		{Name: "daily_report_completion", SiteID: ptr("site-2"), OrgID: "org-1"},
		{Name: "daily_report_completion", SiteID: nil, OrgID: "org-1"},
		{Name: "daily_report_completion", SiteID: ptr("site-3"), OrgID: "org-2"},
	}
	return NewResolver(dir, zap.NewNop()), p, records
}

func TestRestrictedPrincipalSeesAssignedSiteAndOrgWide(t *testing.T) {
	r, p, records := restrictedFixture()
	set := r.Resolve(context.Background(), p)
	require.Equal(t, []string{"site-1"}, set.Sites)

	got := View(For(p, set, ""), records)
	require.Len(t, got, 2)
	assert.Equal(t, "site-1", *got[0].SiteID)
	assert.Nil(t, got[1].SiteID)
}

func TestExplicitSiteOutsideScopeIsEmpty(t *testing.T) {
	r, p, records := restrictedFixture()
	set := r.Resolve(context.Background(), p)

	got := View(For(p, set, "site-2"), records)
	assert.Empty(t, got)
}

func TestExplicitSiteInsideScopeExcludesOrgWide(t *testing.T) {
	r, p, records := restrictedFixture()
	set := r.Resolve(context.Background(), p)

	got := View(For(p, set, "site-1"), records)
	require.Len(t, got, 1)
	assert.Equal(t, "site-1", *got[0].SiteID)
}

func TestAdminGetsWildcardWithoutLookup(t *testing.T) {
	dir := &fakeDirectory{}
	r := NewResolver(dir, zap.NewNop())
	set := r.Resolve(context.Background(), model.Principal{ID: "a", Role: model.RoleAdmin})
	assert.True(t, set.All)
	assert.Nil(t, set.Sites)
	assert.Zero(t, dir.calls)
}

func TestRestrictedAdminIsNotWildcard(t *testing.T) {
	dir := &fakeDirectory{assignments: map[string][]model.SiteAssignment{
		"a": {{SiteID: "site-1", OrgID: "org-1"}},
	}}
	r := NewResolver(dir, zap.NewNop())
	set := r.Resolve(context.Background(), model.Principal{ID: "a", Role: model.RoleSystemAdmin, IsRestricted: true, RestrictedOrgID: "org-1"})
	assert.False(t, set.All)
	assert.Equal(t, []string{"site-1"}, set.Sites)
}

func TestLookupFailureFailsClosed(t *testing.T) {
	r := NewResolver(&fakeDirectory{err: errors.New("connection reset")}, zap.NewNop())
	set := r.Resolve(context.Background(), model.Principal{ID: "w", Role: model.RoleWorker, OrganizationID: "org-1"})
	assert.True(t, set.Degraded)
	assert.True(t, set.Empty())
	assert.False(t, set.AllowNull())

	records := []metricRecord{{SiteID: nil, OrgID: "org-1"}, {SiteID: ptr("site-1"), OrgID: "org-1"}}
	assert.Empty(t, View(For(model.Principal{Role: model.RoleWorker, OrganizationID: "org-1"}, set, ""), records))
}

func TestMatchSiteNullBranchIsIndependent(t *testing.T) {
	empty := EffectiveSet{}
	tests := []struct {
		name      string
		site      *string
		set       EffectiveSet
		allowNull bool
		want      bool
	}{
		{"null with allowNull on empty set", nil, empty, true, true},
		{"null without allowNull on empty set", nil, empty, false, false},
		{"site on empty set", ptr("s1"), empty, true, false},
		{"site in set", ptr("s1"), EffectiveSet{Sites: []string{"s1"}}, false, true},
		{"site not in set", ptr("s2"), EffectiveSet{Sites: []string{"s1"}}, true, false},
		{"wildcard", ptr("any"), EffectiveSet{All: true}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchSite(tt.site, tt.set, tt.allowNull))
		})
	}
}

func TestScopedViewProperty(t *testing.T) {
	// For every restricted principal the view is exactly the records in the
	// effective set plus org-wide ones when the set is non-empty.
	sites := [][]string{nil, {"s1"}, {"s1", "s2"}}
	records := []metricRecord{
		{SiteID: ptr("s1"), OrgID: "o"},
		{SiteID: ptr("s2"), OrgID: "o"},
		{SiteID: ptr("s3"), OrgID: "o"},
		{SiteID: nil, OrgID: "o"},
	}
	for _, s := range sites {
		set := EffectiveSet{Sites: s}
		p := model.Principal{ID: "p", Role: model.RoleWorker, IsRestricted: true, RestrictedOrgID: "o"}
		got := View(For(p, set, ""), records)
		want := 0
		for _, r := range records {
			if r.SiteID == nil {
				if len(s) > 0 {
					want++
				}
				continue
			}
			if set.Contains(*r.SiteID) {
				want++
			}
		}
		assert.Len(t, got, want, "sites=%v", s)
	}
}
