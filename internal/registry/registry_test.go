package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/storage"
)

var admin = model.Principal{ID: "admin-1", Role: model.RoleAdmin}

type countingStore struct {
	*storage.MemoryStore
	loads int
}

func (c *countingStore) LoadRegistry(ctx context.Context) (model.RegistryData, error) {
	c.loads++
	return c.MemoryStore.LoadRegistry(ctx)
}

type spyBus struct{ published int }

func (b *spyBus) Publish(ctx context.Context) error {
	b.published++
	return nil
}

func intPtr(n int) *int { return &n }

func newService(t *testing.T) (*Service, *countingStore, *spyBus) {
	t.Helper()
	st := &countingStore{MemoryStore: storage.NewMemoryStore()}
	bus := &spyBus{}
	return New(st, NewCache(time.Hour), bus, zap.NewNop()), st, bus
}

func mustCreate(t *testing.T, svc *Service, in RequirementInput) model.DocumentRequirement {
	t.Helper()
	req, err := svc.Create(context.Background(), admin, in)
	require.NoError(t, err)
	return req
}

func TestResolveAppliesSiteOverride(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, RequirementInput{
		Code: "safety_training", Name: "Safety training", SortOrder: 2,
		RoleMappings:  []model.RoleMapping{{Role: model.RoleWorker, IsRequired: false}},
		SiteOverrides: []model.SiteOverride{{SiteID: "site-9", IsRequired: true, DueDays: intPtr(14), Notes: "tunnel works"}},
	})
	mustCreate(t, svc, RequirementInput{
		Code: "id_card", Name: "ID card", SortOrder: 1,
		RoleMappings: []model.RoleMapping{{Role: model.RoleWorker, IsRequired: true}},
	})

	plain, err := svc.ListActive(ctx, model.RoleWorker, "")
	require.NoError(t, err)
	require.Len(t, plain, 2)
	assert.Equal(t, "id_card", plain[0].Code)
	assert.Equal(t, "safety_training", plain[1].Code)
	assert.False(t, plain[1].IsRequired)
	assert.Nil(t, plain[1].DueDays)

	atSite, err := svc.ListActive(ctx, model.RoleWorker, "site-9")
	require.NoError(t, err)
	require.Len(t, atSite, 2)
	assert.True(t, atSite[1].IsRequired)
	require.NotNil(t, atSite[1].DueDays)
	assert.Equal(t, 14, *atSite[1].DueDays)
	assert.Equal(t, "tunnel works", atSite[1].Notes)
}

func TestResolveOrdersByCodeWithinSortOrder(t *testing.T) {
	svc, _, _ := newService(t)
	for _, code := range []string{"zeta", "alpha", "mid"} {
		mustCreate(t, svc, RequirementInput{Code: code, Name: code,
			RoleMappings: []model.RoleMapping{{Role: model.RoleSiteManager, IsRequired: true}}})
	}
	got, err := svc.ListActive(context.Background(), model.RoleSiteManager, "")
	require.NoError(t, err)
	var codes []string
	for _, r := range got {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, codes)
}

func TestUnmappedRoleGetsNothing(t *testing.T) {
	svc, _, _ := newService(t)
	mustCreate(t, svc, RequirementInput{Code: "a", Name: "A",
		RoleMappings:  []model.RoleMapping{{Role: model.RoleWorker, IsRequired: true}},
		SiteOverrides: []model.SiteOverride{{SiteID: "s", IsRequired: true}}})
	got, err := svc.ListActive(context.Background(), model.RoleCustomerManager, "s")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnknownRoleIsValidationError(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.ListActive(context.Background(), model.Role("intern"), "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestArchiveHidesRequirementAndFreesCode(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	req := mustCreate(t, svc, RequirementInput{Code: "visa", Name: "Visa",
		RoleMappings: []model.RoleMapping{{Role: model.RoleWorker, IsRequired: true}}})

	require.NoError(t, svc.Archive(ctx, admin, req.ID))
	got, err := svc.ListActive(ctx, model.RoleWorker, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = svc.RequirementByCode(ctx, "visa")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = svc.Create(ctx, admin, RequirementInput{Code: "visa", Name: "Visa v2"})
	assert.NoError(t, err, "archived codes may be reused")
}

func TestDuplicateActiveCodeRejected(t *testing.T) {
	svc, _, _ := newService(t)
	mustCreate(t, svc, RequirementInput{Code: "visa", Name: "Visa"})
	_, err := svc.Create(context.Background(), admin, RequirementInput{Code: "visa", Name: "Other"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestInvalidInputRejected(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	tests := map[string]RequirementInput{
		"missing code":   {Name: "x"},
		"bad code":       {Code: "Has Spaces", Name: "x"},
		"negative size":  {Code: "ok", Name: "x", MaxSizeBytes: -1},
		"unknown role":   {Code: "ok", Name: "x", RoleMappings: []model.RoleMapping{{Role: "intern"}}},
		"duplicate role": {Code: "ok", Name: "x", RoleMappings: []model.RoleMapping{{Role: model.RoleWorker}, {Role: model.RoleWorker}}},
		"negative due":   {Code: "ok", Name: "x", SiteOverrides: []model.SiteOverride{{SiteID: "s", DueDays: intPtr(-1)}}},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, admin, in)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	mgr := model.Principal{ID: "m", Role: model.RoleSiteManager}
	_, err := svc.Create(ctx, mgr, RequirementInput{Code: "x", Name: "x"})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	assert.True(t, errors.Is(svc.Archive(ctx, mgr, "any"), apperr.ErrForbidden))
}

func TestFailedUpdateRollsBack(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	req := mustCreate(t, svc, RequirementInput{Code: "first_aid", Name: "First aid",
		RoleMappings: []model.RoleMapping{{Role: model.RoleWorker, IsRequired: true}}})

	newCode, blank := "first_aid_v2", "   "
	mappings := []model.RoleMapping{{Role: model.RoleAdmin, IsRequired: true}}
	_, err := svc.Update(ctx, admin, req.ID, RequirementPatch{Code: &newCode, Name: &blank, RoleMappings: &mappings})
	require.True(t, errors.Is(err, apperr.ErrValidation))

	got, err := svc.RequirementByCode(ctx, "first_aid")
	require.NoError(t, err)
	assert.Equal(t, "First aid", got.Name)
	list, err := svc.ListActive(ctx, model.RoleWorker, "")
	require.NoError(t, err)
	assert.Len(t, list, 1, "role mappings are unchanged")
}

func TestUpdateUnknownRequirement(t *testing.T) {
	svc, _, _ := newService(t)
	name := "x"
	_, err := svc.Update(context.Background(), admin, "missing", RequirementPatch{Name: &name})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestMutationInvalidatesCacheAndBroadcasts(t *testing.T) {
	svc, st, bus := newService(t)
	ctx := context.Background()
	req := mustCreate(t, svc, RequirementInput{Code: "a", Name: "A",
		RoleMappings: []model.RoleMapping{{Role: model.RoleWorker, IsRequired: true}}})

	_, err := svc.ListActive(ctx, model.RoleWorker, "")
	require.NoError(t, err)
	_, err = svc.ListActive(ctx, model.RoleWorker, "")
	require.NoError(t, err)
	assert.Equal(t, 1, st.loads, "second read is served from cache")

	require.NoError(t, svc.SetSiteOverrides(ctx, admin, req.ID, []model.SiteOverride{{SiteID: "s1", IsRequired: false}}))
	got, err := svc.ListActive(ctx, model.RoleWorker, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.loads)
	assert.False(t, got[0].IsRequired)
	assert.Equal(t, 2, bus.published)
}

func TestCacheDiscardsLoadRacingInvalidate(t *testing.T) {
	c := NewCache(time.Hour)
	ctx := context.Background()
	loads := 0
	load := func(context.Context) (*Snapshot, error) {
		loads++
		if loads == 1 {
			c.Invalidate()
		}
		return NewSnapshot(model.RegistryData{}, time.Now()), nil
	}
	_, err := c.Get(ctx, load)
	require.NoError(t, err)
	_, err = c.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads, "a load started before Invalidate must not be cached")
	_, err = c.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	loads := 0
	load := func(context.Context) (*Snapshot, error) {
		loads++
		return NewSnapshot(model.RegistryData{}, now), nil
	}
	_, _ = c.Get(context.Background(), load)
	now = now.Add(59 * time.Second)
	_, _ = c.Get(context.Background(), load)
	assert.Equal(t, 1, loads)
	now = now.Add(2 * time.Second)
	_, _ = c.Get(context.Background(), load)
	assert.Equal(t, 2, loads)
}

func TestLoadFailurePropagates(t *testing.T) {
	svc, st, _ := newService(t)
	st.Inject(storage.OpLoadRegistry, errors.New("connection refused"))
	_, err := svc.ListActive(context.Background(), model.RoleWorker, "")
	assert.Error(t, err)
}

func TestLostListenerDisablesCache(t *testing.T) {
	c := NewCache(time.Hour)
	ctx := context.Background()
	loads := 0
	load := func(context.Context) (*Snapshot, error) {
		loads++
		return NewSnapshot(model.RegistryData{}, time.Now()), nil
	}
	_, err := c.Get(ctx, load)
	require.NoError(t, err)

	ListenOrDisable(ctx, c, func(context.Context, *Cache) error {
		return errors.New("subscribe sitevault:registry:invalidate: connection refused")
	}, zap.NewNop())

	_, err = c.Get(ctx, load)
	require.NoError(t, err)
	_, err = c.Get(ctx, load)
	require.NoError(t, err)
	assert.Equal(t, 3, loads, "every read loads fresh once invalidations are lost")
}

func TestListenerStoppedByShutdownKeepsCache(t *testing.T) {
	c := NewCache(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	loads := 0
	load := func(context.Context) (*Snapshot, error) {
		loads++
		return NewSnapshot(model.RegistryData{}, time.Now()), nil
	}
	_, _ = c.Get(context.Background(), load)

	ListenOrDisable(ctx, c, func(ctx context.Context, _ *Cache) error {
		cancel()
		return nil
	}, zap.NewNop())

	_, _ = c.Get(context.Background(), load)
	assert.Equal(t, 1, loads)
}
