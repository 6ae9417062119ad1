package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
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
	admin   = model.Principal{ID: "admin", Role: model.RoleAdmin}
	manager = model.Principal{ID: "mgr", Role: model.RoleSiteManager, OrganizationID: "org-1"}
)

type spyRenderer struct {
	mu    sync.Mutex
	paths []string
}

func (s *spyRenderer) RenderVariants(ctx context.Context, attachmentID, originalPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, originalPath)
	return nil
}

type fixture struct {
	mgr      *Manager
	mem      *storage.MemoryStore
	objects  *storage.MemoryObjects
	metrics  *telemetry.Metrics
	renderer *spyRenderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storage.NewMemoryStore()
	site := "site-1"
	mem.PutParent(model.ParentRef{ID: "report-1", SiteID: &site, OrgID: "org-1"})
	other := "site-2"
	mem.PutParent(model.ParentRef{ID: "report-2", SiteID: &other, OrgID: "org-1"})
	mem.AssignSite(model.SiteAssignment{PrincipalID: manager.ID, SiteID: site, OrgID: "org-1"})

	objects := storage.NewMemoryObjects("http://files.test", signing.NewSigner([]byte("k")))
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	r := &spyRenderer{}
	log := zap.NewNop()
	m := NewManager(mem, objects, scope.NewResolver(mem, log), Options{Renderer: r, Metrics: metrics, MaxBytes: 1 << 20}, log)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var n atomic.Int64
	m.now = func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Second) }
	return &fixture{mgr: m, mem: mem, objects: objects, metrics: metrics, renderer: r}
}

func (f *fixture) add(t *testing.T, category, name string) model.Attachment {
	t.Helper()
	att, err := f.mgr.Add(context.Background(), manager, AddInput{
		ParentID: "report-1", Category: category, FileName: name,
		ContentType: "image/jpeg", Size: 3, Body: bytes.NewReader([]byte("img")),
	})
	require.NoError(t, err)
	return att
}

func ordinals(t *testing.T, f *fixture, category string) map[string]int {
	t.Helper()
	atts, err := f.mem.ListAttachments(context.Background(), "report-1", category)
	require.NoError(t, err)
	out := make(map[string]int, len(atts))
	for _, a := range atts {
		out[a.FileName] = a.Ordinal
	}
	return out
}

func TestAddAppendsDenseOrdinals(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "before", "a.jpg")
	b := f.add(t, "before", "b.jpg")
	c := f.add(t, "after", "c.jpg")
	assert.Equal(t, 0, a.Ordinal)
	assert.Equal(t, 1, b.Ordinal)
	assert.Equal(t, 0, c.Ordinal)
	assert.True(t, f.objects.Exists(a.Path))
	assert.Equal(t, "http://files.test/"+a.Path, a.URL)
	assert.Len(t, f.renderer.paths, 3)
}

func TestAddRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := AddInput{ParentID: "report-1", Category: "before", FileName: "a.jpg", ContentType: "image/jpeg", Size: 3, Body: bytes.NewReader(nil)}

	bad := base
	bad.Category = "during"
	_, err := f.mgr.Add(ctx, manager, bad)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	bad = base
	bad.ContentType = "application/pdf"
	_, err = f.mgr.Add(ctx, manager, bad)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	bad = base
	bad.Size = 2 << 20
	_, err = f.mgr.Add(ctx, manager, bad)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Empty(t, f.objects.Paths())
}

func TestParentOutsideScopeIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Add(context.Background(), manager, AddInput{
		ParentID: "report-2", Category: "before", FileName: "a.jpg", ContentType: "image/png", Size: 1, Body: bytes.NewReader([]byte("x")),
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.mgr.List(context.Background(), manager, "missing", "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestMoveBeforeToAfter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b0 := f.add(t, "before", "b0.jpg")
	b1 := f.add(t, "before", "b1.jpg")
	f.add(t, "before", "b2.jpg")
	f.add(t, "after", "a0.jpg")
	f.add(t, "after", "a1.jpg")
	require.NoError(t, f.objects.Upload(ctx, DeriveVariants(b1.Path).Thumbnail, bytes.NewReader([]byte("t")), 1, "image/jpeg"))

	after := "after"
	moved, err := f.mgr.Update(ctx, manager, b1.ID, UpdateInput{Category: &after})
	require.NoError(t, err)
	assert.Equal(t, "after", moved.Category)
	assert.Equal(t, 2, moved.Ordinal)
	assert.Equal(t, SubstituteCategory(b1.Path, "report-1", "before", "after"), moved.Path)
	assert.True(t, f.objects.Exists(moved.Path))
	assert.False(t, f.objects.Exists(b1.Path))
	assert.True(t, f.objects.Exists(DeriveVariants(moved.Path).Thumbnail))

	assert.Equal(t, map[string]int{"b0.jpg": 0, "b2.jpg": 1}, ordinals(t, f, "before"))
	assert.Equal(t, map[string]int{"a0.jpg": 0, "a1.jpg": 1, "b1.jpg": 2}, ordinals(t, f, "after"))

	got, err := f.mem.GetAttachment(ctx, b0.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Ordinal)
}

func TestMoveStorageFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.add(t, "before", "a.jpg")
	f.objects.FailMoves(errors.New("bucket unavailable"))

	after := "after"
	_, err := f.mgr.Update(ctx, manager, a.ID, UpdateInput{Category: &after})
	require.True(t, errors.Is(err, apperr.ErrStorage))

	got, err := f.mem.GetAttachment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.Zero(t, f.metrics.Snapshot()[telemetry.OrphanedMoves])
}

func TestMoveRecordFailureIsCountedAsOrphan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.add(t, "before", "a.jpg")
	f.mem.Inject(storage.OpUpdateAttachment, errors.New("connection reset"))

	after := "after"
	_, err := f.mgr.Update(ctx, manager, a.ID, UpdateInput{Category: &after})
	require.Error(t, err)
	assert.Equal(t, int64(1), f.metrics.Snapshot()[telemetry.OrphanedMoves])

	newPath := SubstituteCategory(a.Path, "report-1", "before", "after")
	assert.True(t, f.objects.Exists(newPath), "object stays at its new path")
	got, err := f.mem.GetAttachment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Category, "record keeps stale metadata")
}

func TestUpdateDescription(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "before", "a.jpg")
	desc := "  north wall  "
	got, err := f.mgr.Update(context.Background(), manager, a.ID, UpdateInput{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "north wall", got.Description)
	assert.Equal(t, "before", got.Category)
}

func TestDeleteRemovesVariantsAndResequences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "before", "a.jpg")
	b := f.add(t, "before", "b.jpg")
	f.add(t, "before", "c.jpg")
	v := DeriveVariants(b.Path)
	require.NoError(t, f.objects.Upload(ctx, v.Display, bytes.NewReader([]byte("d")), 1, "image/jpeg"))

	require.NoError(t, f.mgr.Delete(ctx, manager, b.ID))
	for _, p := range v.Paths() {
		assert.False(t, f.objects.Exists(p))
	}
	assert.Equal(t, map[string]int{"a.jpg": 0, "c.jpg": 1}, ordinals(t, f, "before"))

	err := f.mgr.Delete(ctx, manager, b.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteSurvivesCleanupFailure(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "before", "a.jpg")
	f.objects.FailRemoves(errors.New("denied"))
	require.NoError(t, f.mgr.Delete(context.Background(), admin, a.ID))
	assert.Equal(t, int64(1), f.metrics.Snapshot()[telemetry.StorageCleanupErrors])
}

// pausingStore blocks the first GetAttachment after arm until resume is
// closed, leaving a window between a request's read and its lock.
type pausingStore struct {
	store.AttachmentStore
	armed   atomic.Bool
	reached chan struct{}
	resume  chan struct{}
}

func newPausingStore(inner store.AttachmentStore) *pausingStore {
	p := &pausingStore{AttachmentStore: inner, reached: make(chan struct{}), resume: make(chan struct{})}
	p.armed.Store(true)
	return p
}

func (p *pausingStore) GetAttachment(ctx context.Context, id string) (model.Attachment, error) {
	att, err := p.AttachmentStore.GetAttachment(ctx, id)
	if p.armed.CompareAndSwap(true, false) {
		close(p.reached)
		<-p.resume
	}
	return att, err
}

// driftingStore reports a different category on every read.
type driftingStore struct {
	store.AttachmentStore
	reads atomic.Int64
}

func (d *driftingStore) GetAttachment(ctx context.Context, id string) (model.Attachment, error) {
	att, err := d.AttachmentStore.GetAttachment(ctx, id)
	if d.reads.Add(1)%2 == 0 {
		att.Category = "after"
	} else {
		att.Category = "before"
	}
	return att, err
}

func (d *driftingStore) WithCategoryLocks(ctx context.Context, parentID string, categories []string, fn func(store.AttachmentStore) error) error {
	return d.AttachmentStore.WithCategoryLocks(ctx, parentID, categories, func(store.AttachmentStore) error {
		return fn(d)
	})
}

func (f *fixture) managerOn(st store.AttachmentStore) *Manager {
	log := zap.NewNop()
	m := NewManager(st, f.objects, scope.NewResolver(f.mem, log), Options{Metrics: f.metrics, MaxBytes: 1 << 20}, log)
	m.now = f.mgr.now
	return m
}

func TestDeleteFollowsConcurrentMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "before", "b0.jpg")
	x := f.add(t, "before", "x.jpg")
	f.add(t, "before", "b2.jpg")
	f.add(t, "after", "a0.jpg")
	f.add(t, "after", "a1.jpg")
	f.add(t, "after", "a2.jpg")

	paused := newPausingStore(f.mem)
	done := make(chan error, 1)
	go func() { done <- f.managerOn(paused).Delete(ctx, manager, x.ID) }()
	<-paused.reached

	after := "after"
	moved, err := f.mgr.Update(ctx, manager, x.ID, UpdateInput{Category: &after})
	require.NoError(t, err)
	assert.Equal(t, 3, moved.Ordinal)
	f.add(t, "after", "a4.jpg")

	close(paused.resume)
	require.NoError(t, <-done)

	assert.Equal(t, map[string]int{"b0.jpg": 0, "b2.jpg": 1}, ordinals(t, f, "before"))
	assert.Equal(t, map[string]int{"a0.jpg": 0, "a1.jpg": 1, "a2.jpg": 2, "a4.jpg": 3}, ordinals(t, f, "after"))
	assert.False(t, f.objects.Exists(moved.Path))
}

func TestDescriptionUpdateKeepsConcurrentMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "after", "a0.jpg")
	x := f.add(t, "before", "x.jpg")

	paused := newPausingStore(f.mem)
	done := make(chan error, 1)
	desc := "east facade"
	go func() {
		_, err := f.managerOn(paused).Update(ctx, manager, x.ID, UpdateInput{Description: &desc})
		done <- err
	}()
	<-paused.reached

	after := "after"
	moved, err := f.mgr.Update(ctx, manager, x.ID, UpdateInput{Category: &after})
	require.NoError(t, err)

	close(paused.resume)
	require.NoError(t, <-done)

	got, err := f.mem.GetAttachment(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Category)
	assert.Equal(t, moved.Path, got.Path)
	assert.Equal(t, 1, got.Ordinal)
	assert.Equal(t, "east facade", got.Description)
}

func TestAttachmentThatKeepsMovingIsAConflict(t *testing.T) {
	f := newFixture(t)
	x := f.add(t, "before", "x.jpg")

	err := f.managerOn(&driftingStore{AttachmentStore: f.mem}).Delete(context.Background(), manager, x.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	_, err = f.mem.GetAttachment(context.Background(), x.ID)
	assert.NoError(t, err)
}

func TestResequenceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ord := range []int{4, 9, 9, 17} {
		require.NoError(t, f.mem.InsertAttachment(ctx, model.Attachment{
			ID: fmt.Sprintf("att-%d", i), ParentID: "report-1", Category: "after", Ordinal: ord,
			FileName: fmt.Sprintf("%d.jpg", i), CreatedAt: created.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, f.mgr.Resequence(ctx, "report-1", "after"))
	once := ordinals(t, f, "after")
	assert.Equal(t, map[string]int{"0.jpg": 0, "1.jpg": 1, "2.jpg": 2, "3.jpg": 3}, once)

	require.NoError(t, f.mgr.Resequence(ctx, "report-1", "after"))
	assert.Equal(t, once, ordinals(t, f, "after"))
}

func TestConcurrentAddsGetDistinctOrdinals(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.mgr.Add(context.Background(), manager, AddInput{
				ParentID: "report-1", Category: "before", FileName: fmt.Sprintf("%d.jpg", i),
				ContentType: "image/jpeg", Size: 1, Body: bytes.NewReader([]byte("x")),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	seen := map[int]bool{}
	for _, ord := range ordinals(t, f, "before") {
		seen[ord] = true
	}
	for i := 0; i < 8; i++ {
		assert.True(t, seen[i], "ordinal %d missing", i)
	}
}

func TestListReturnsVariantURLs(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "after", "a.jpg")
	items, err := f.mgr.List(context.Background(), manager, "report-1", "after")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "http://files.test/"+DeriveVariants(a.Path).Thumbnail, items[0].ThumbnailURL)
}
