package aggregate

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/scope"
	"github.com/dharsanguruparan/SiteVault/internal/signing"
	"github.com/dharsanguruparan/SiteVault/internal/storage"
	"github.com/dharsanguruparan/SiteVault/internal/store"
	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

var (
	t0    = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	admin = model.Principal{ID: "admin", Role: model.RoleAdmin}
	// restricted is bound to org-1 and assigned to site-1 only.
	restricted = model.Principal{ID: "r1", Role: model.RoleCustomerManager, OrganizationID: "org-9", IsRestricted: true, RestrictedOrgID: "org-1"}
)

type fixture struct {
	mem     *storage.MemoryStore
	objects *storage.MemoryObjects
	metrics *telemetry.Metrics
	sources []Source
	log     *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storage.NewMemoryStore()
	mem.AssignSite(model.SiteAssignment{PrincipalID: restricted.ID, SiteID: "site-1", OrgID: "org-1"})
	mem.AssignSite(model.SiteAssignment{PrincipalID: restricted.ID, SiteID: "site-3", OrgID: "org-2"})

	mem.PutRow("documents", store.Row{"id": "cur-1", "site_id": "site-1", "org_id": "org-1", "category": "blueprint",
		"name": "Ground floor", "file_path": "docs/ground.pdf", "created_at": t0})
	mem.PutRow("documents", store.Row{"id": "cur-2", "site_id": nil, "org_id": "org-1", "category": "photo",
		"name": "Crane", "file_path": "reports/x/after/crane.jpg", "mime_type": "image/jpeg", "created_at": t0.Add(-time.Hour)})
	mem.PutRow("documents", store.Row{"id": "cur-3", "site_id": "site-2", "org_id": "org-1", "category": "contract",
		"name": "Other site", "created_at": t0.Add(time.Hour)})
	mem.PutRow("legacy_documents", store.Row{"id": "leg-1", "site_id": "site-1", "org_id": "org-1", "doc_kind": "drawing",
		"title": "Old plan", "file_path": "legacy/plan.pdf", "uploader_name": "J. Doe", "registered_at": t0})
	mem.PutRow("legacy_documents", store.Row{"id": "leg-2", "site_id": "site-1", "org_id": "org-1", "doc_kind": "fax",
		"title": "Fax", "registered_at": t0.Add(-2 * time.Hour)})
	mem.PutRow("site_blueprints", store.Row{"id": "bp-1", "site_id": "site-1", "org_id": "org-1", "title": "Master",
		"drawing_url": "https://cdn.test/master.pdf", "is_primary": true, "created_at": t0})

	objects := storage.NewMemoryObjects("http://files.test", signing.NewSigner([]byte("k")))
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	return &fixture{
		mem:     mem,
		objects: objects,
		metrics: metrics,
		sources: []Source{
			NewCurrentSource(mem, objects, 0),
			NewLegacySource(mem, objects, 0),
			NewBlueprintSource(mem, objects, 0),
		},
		log: zap.NewNop(),
	}
}

func (f *fixture) pipeline(timeout time.Duration) *Pipeline {
	return NewPipeline(scope.NewResolver(f.mem, f.log), f.sources, timeout, f.metrics, f.log)
}

func ids(rs []model.DocumentRecord) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestMergeOrdersByTimeThenSourcePriority(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline(0).List(context.Background(), admin, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cur-3", "cur-1", "leg-1", "bp-1", "cur-2", "leg-2"}, ids(res.Documents))
	assert.False(t, res.Partial())
}

func TestMergeIgnoresSourceOrder(t *testing.T) {
	f := newFixture(t)
	want, err := f.pipeline(0).List(context.Background(), admin, "", nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]Source(nil), f.sources...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		p := NewPipeline(scope.NewResolver(f.mem, f.log), shuffled, 0, f.metrics, f.log)
		got, err := p.List(context.Background(), admin, "", nil)
		require.NoError(t, err)
		assert.Equal(t, ids(want.Documents), ids(got.Documents))
	}
}

func TestRestrictedPrincipalSeesOwnSiteAndOrgWide(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline(0).List(context.Background(), restricted, "", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cur-1", "cur-2", "leg-1", "leg-2", "bp-1"}, ids(res.Documents))
}

func TestExplicitSiteOutsideScopeIsEmpty(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline(0).List(context.Background(), restricted, "site-2", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Equal(t, 0, res.Statistics.Total)
}

func TestExplicitSiteExcludesOrgWide(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline(0).List(context.Background(), restricted, "site-1", nil)
	require.NoError(t, err)
	assert.NotContains(t, ids(res.Documents), "cur-2")
	assert.Contains(t, ids(res.Documents), "cur-1")
}

func TestTypeFilterTranslatesVocabularies(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline(0).List(context.Background(), admin, "", []string{TypeBlueprint})
	require.NoError(t, err)
	assert.Equal(t, []string{"cur-1", "leg-1", "bp-1"}, ids(res.Documents))
	assert.Equal(t, 3, res.Statistics.Total)
	assert.Equal(t, map[string]int{TypeBlueprint: 3}, res.Statistics.ByType)
	for _, r := range res.Documents {
		assert.Equal(t, "Blueprint", r.Label)
		assert.Equal(t, "map", r.Icon)
	}
}

func TestSourcesWithoutTheTypeAreNotQueried(t *testing.T) {
	f := newFixture(t)
	f.mem.Inject(storage.QueryOp("site_blueprints"), errors.New("must not be called"))
	res, err := f.pipeline(0).List(context.Background(), admin, "", []string{TypePhoto})
	require.NoError(t, err)
	assert.Equal(t, []string{"cur-2"}, ids(res.Documents))
	assert.False(t, res.Partial())
}

func TestUnknownTypeFilterIsValidationError(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(0).List(context.Background(), admin, "", []string{"spreadsheet"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestNormalizationAndPresentation(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline(0).List(context.Background(), admin, "", nil)
	require.NoError(t, err)
	byID := map[string]model.DocumentRecord{}
	for _, r := range res.Documents {
		byID[r.ID] = r
	}

	fax := byID["leg-2"]
	assert.Equal(t, "fax", fax.Category)
	assert.Equal(t, "Document", fax.Label)
	assert.Equal(t, "file", fax.Icon)

	plan := byID["leg-1"]
	assert.Equal(t, model.SourceLegacy, plan.Source)
	assert.Equal(t, "http://files.test/legacy/plan.pdf", plan.FileURL)
	assert.Equal(t, "application/pdf", plan.MimeType)
	assert.Equal(t, "J. Doe", plan.UploadedBy)

	bp := byID["bp-1"]
	assert.True(t, bp.IsPrimary)
	assert.Equal(t, "https://cdn.test/master.pdf", bp.FileURL)

	crane := byID["cur-2"]
	assert.Nil(t, crane.SiteID)
	assert.Equal(t, "http://files.test/reports/x/after/crane_thumb.jpg", crane.ThumbnailURL)
}

func TestStatisticsSumSharedTypesAcrossSources(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline(0).List(context.Background(), admin, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Statistics.Total)
	assert.Equal(t, 3, res.Statistics.ByType[TypeBlueprint])
	assert.Equal(t, 1, res.Statistics.ByType["fax"])
}

func TestFailedSourceContributesNothing(t *testing.T) {
	f := newFixture(t)
	f.mem.Inject(storage.QueryOp("legacy_documents"), errors.New(`relation "legacy_documents" does not exist`))
	res, err := f.pipeline(0).List(context.Background(), admin, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []model.Source{model.SourceLegacy}, res.FailedSources)
	assert.NotContains(t, ids(res.Documents), "leg-1")
	assert.Len(t, res.Documents, 4)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(1), snap[telemetry.SourceFailures])
	assert.Equal(t, int64(1), snap[telemetry.PartialAggregations])
}

func TestSlowSourceTimesOut(t *testing.T) {
	f := newFixture(t)
	f.mem.Delay(storage.QueryOp("documents"), time.Second)
	res, err := f.pipeline(20*time.Millisecond).List(context.Background(), admin, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []model.Source{model.SourceCurrent}, res.FailedSources)
	assert.Equal(t, []string{"leg-1", "bp-1", "leg-2"}, ids(res.Documents))
}

func TestAllSourcesFailing(t *testing.T) {
	f := newFixture(t)
	for _, table := range []string{"documents", "legacy_documents", "site_blueprints"} {
		f.mem.Inject(storage.QueryOp(table), errors.New("database is down"))
	}
	_, err := f.pipeline(0).List(context.Background(), admin, "", nil)
	assert.True(t, errors.Is(err, apperr.ErrAggregateUnavailable))
}

func TestFailedScopeLookupReturnsNothing(t *testing.T) {
	f := newFixture(t)
	f.mem.Inject(storage.OpSiteAssignments, errors.New("timeout"))
	res, err := f.pipeline(0).List(context.Background(), restricted, "", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
}

func TestRowsWithoutIDAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.mem.PutRow("documents", store.Row{"site_id": "site-1", "org_id": "org-1", "category": "photo", "created_at": t0})
	res, err := f.pipeline(0).List(context.Background(), admin, "", []string{TypePhoto})
	require.NoError(t, err)
	assert.Equal(t, []string{"cur-2"}, ids(res.Documents))
}
