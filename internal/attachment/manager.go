package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/scope"
	"github.com/dharsanguruparan/SiteVault/internal/store"
	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

// DefaultCategories are used when Options.Categories is empty.
var DefaultCategories = []string{"before", "after"}

// Renderer produces the display and thumbnail variants of a stored original.
type Renderer interface {
	RenderVariants(ctx context.Context, attachmentID, originalPath string) error
}

// Options configures a Manager.
type Options struct {
	Categories []string
	MaxBytes   int64
	Renderer   Renderer
	Metrics    *telemetry.Metrics
}

// AddInput describes an uploaded photo.
type AddInput struct {
	ParentID    string `validate:"required"`
	Category    string `validate:"required,category"`
	FileName    string `validate:"required,max=255"`
	ContentType string `validate:"required"`
	Size        int64  `validate:"gt=0"`
	Description string `validate:"max=1000"`
	Body        io.Reader
}

// UpdateInput changes the description, the category, or both.
type UpdateInput struct {
	Category    *string `json:"category" validate:"omitempty,category"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

// Item is an attachment with the URLs of its variants.
type Item struct {
	model.Attachment
	DisplayURL   string `json:"displayUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Manager implements attachment operations on top of the tabular and
// object stores.
type Manager struct {
	store      store.AttachmentStore
	objects    store.ObjectStore
	resolver   *scope.Resolver
	categories []string
	maxBytes   int64
	renderer   Renderer
	metrics    *telemetry.Metrics
	validate   *validator.Validate
	log        *zap.Logger
	now        func() time.Time
}

// NewManager constructs a Manager.
func NewManager(st store.AttachmentStore, objects store.ObjectStore, resolver *scope.Resolver, opts Options, log *zap.Logger) *Manager {
	cats := opts.Categories
	if len(cats) == 0 {
		cats = DefaultCategories
	}
	m := &Manager{
		store:      st,
		objects:    objects,
		resolver:   resolver,
		categories: append([]string(nil), cats...),
		maxBytes:   opts.MaxBytes,
		renderer:   opts.Renderer,
		metrics:    opts.Metrics,
		validate:   validator.New(),
		log:        log,
		now:        time.Now,
	}
	_ = m.validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return slices.Contains(m.categories, fl.Field().String())
	})
	return m
}

// Categories returns the configured category values.
func (m *Manager) Categories() []string {
	return append([]string(nil), m.categories...)
}

// List returns the attachments of parentID, optionally limited to category,
// in ordinal order.
func (m *Manager) List(ctx context.Context, actor model.Principal, parentID, category string) ([]Item, error) {
	if category != "" && !slices.Contains(m.categories, category) {
		return nil, apperr.Validation("unknown category " + category)
	}
	if _, err := m.parent(ctx, actor, parentID); err != nil {
		return nil, err
	}
	atts, err := m.store.ListAttachments(ctx, parentID, category)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	out := make([]Item, 0, len(atts))
	for _, a := range atts {
		out = append(out, m.item(a))
	}
	return out, nil
}

// Add uploads a photo and appends it to the end of its category.
func (m *Manager) Add(ctx context.Context, actor model.Principal, in AddInput) (model.Attachment, error) {
	if err := m.check(in); err != nil {
		return model.Attachment{}, err
	}
	if !strings.HasPrefix(in.ContentType, "image/") {
		return model.Attachment{}, apperr.Validation("attachments must be images")
	}
	if m.maxBytes > 0 && in.Size > m.maxBytes {
		return model.Attachment{}, apperr.Validation(fmt.Sprintf("file exceeds %d bytes", m.maxBytes))
	}
	if _, err := m.parent(ctx, actor, in.ParentID); err != nil {
		return model.Attachment{}, err
	}

	now := m.now().UTC()
	att := model.Attachment{
		ID:          uuid.NewString(),
		ParentID:    in.ParentID,
		Category:    in.Category,
		Path:        NewPath(in.ParentID, in.Category, in.FileName),
		FileName:    path.Base(in.FileName),
		Size:        in.Size,
		MimeType:    in.ContentType,
		Description: strings.TrimSpace(in.Description),
		UploadedBy:  actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.objects.Upload(ctx, att.Path, in.Body, in.Size, in.ContentType); err != nil {
		return model.Attachment{}, apperr.Storage("upload attachment", err)
	}
	att.URL = m.objects.PublicURL(att.Path)

	err := m.withCategoryLocks(ctx, att.ParentID, []string{att.Category}, func(st store.AttachmentStore) error {
		next, err := nextOrdinal(ctx, st, att.ParentID, att.Category)
		if err != nil {
			return err
		}
		att.Ordinal = next
		return st.InsertAttachment(ctx, att)
	})
	if err != nil {
		m.cleanup(ctx, att.ID, []string{att.Path})
		return model.Attachment{}, fmt.Errorf("insert attachment: %w", err)
	}

	if m.renderer != nil {
		if err := m.renderer.RenderVariants(ctx, att.ID, att.Path); err != nil {
			m.log.Warn("variant rendering not scheduled", zap.String("attachment_id", att.ID), zap.Error(err))
		}
	}
	return att, nil
}

// Update changes an attachment's description and/or moves it to another
// category.
func (m *Manager) Update(ctx context.Context, actor model.Principal, id string, in UpdateInput) (model.Attachment, error) {
	if err := m.check(in); err != nil {
		return model.Attachment{}, err
	}
	att, err := m.visible(ctx, actor, id)
	if err != nil {
		return model.Attachment{}, err
	}
	var also []string
	if in.Category != nil {
		also = append(also, *in.Category)
	}
	var (
		out model.Attachment
		mv  *move
	)
	err = m.withAttachmentLock(ctx, att, also, func(st store.AttachmentStore, cur model.Attachment) error {
		if in.Description != nil {
			cur.Description = strings.TrimSpace(*in.Description)
			cur.UpdatedAt = m.now().UTC()
		}
		if in.Category != nil && *in.Category != cur.Category {
			mv = newMove(cur, *in.Category)
			moved, err := m.runMove(ctx, st, mv)
			out = moved
			return err
		}
		if in.Description != nil {
			if err := st.UpdateAttachment(ctx, cur); err != nil {
				return fmt.Errorf("update attachment: %w", err)
			}
		}
		cur.URL = m.objects.PublicURL(cur.Path)
		out = cur
		return nil
	})
	if err != nil {
		return model.Attachment{}, m.settle(ctx, mv, err)
	}
	return out, nil
}

// Delete removes an attachment, its stored variants, and the gap it leaves
// in its category.
func (m *Manager) Delete(ctx context.Context, actor model.Principal, id string) error {
	att, err := m.visible(ctx, actor, id)
	if err != nil {
		return err
	}
	return m.withAttachmentLock(ctx, att, nil, func(st store.AttachmentStore, cur model.Attachment) error {
		m.cleanup(ctx, cur.ID, DeriveVariants(cur.Path).Paths())
		if err := st.DeleteAttachment(ctx, cur.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("attachment")
			}
			return fmt.Errorf("delete attachment: %w", err)
		}
		return resequence(ctx, st, cur.ParentID, cur.Category)
	})
}

// Resequence rewrites the ordinals of (parentID, category) to 0..n-1 in
// their current relative order. Running it twice changes nothing the second
// time.
func (m *Manager) Resequence(ctx context.Context, parentID, category string) error {
	return m.withCategoryLocks(ctx, parentID, []string{category}, func(st store.AttachmentStore) error {
		return resequence(ctx, st, parentID, category)
	})
}

func resequence(ctx context.Context, st store.AttachmentStore, parentID, category string) error {
	atts, err := st.ListAttachments(ctx, parentID, category)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	changes := make(map[string]int)
	for i, a := range atts {
		if a.Ordinal != i {
			changes[a.ID] = i
		}
	}
	if len(changes) == 0 {
		return nil
	}
	if err := st.SetOrdinals(ctx, changes); err != nil {
		return fmt.Errorf("set ordinals: %w", err)
	}
	return nil
}

func nextOrdinal(ctx context.Context, st store.AttachmentStore, parentID, category string) (int, error) {
	atts, err := st.ListAttachments(ctx, parentID, category)
	if err != nil {
		return 0, fmt.Errorf("list attachments: %w", err)
	}
	next := 0
	for _, a := range atts {
		if a.Ordinal >= next {
			next = a.Ordinal + 1
		}
	}
	return next, nil
}

// withCategoryLocks runs fn holding the lock of every category of parentID.
// Locks are taken in sorted order so two moves in opposite directions
// cannot deadlock.
func (m *Manager) withCategoryLocks(ctx context.Context, parentID string, categories []string, fn func(store.AttachmentStore) error) error {
	return m.store.WithCategoryLocks(ctx, parentID, sortedUnique(categories...), fn)
}

// relockAttempts bounds how often withAttachmentLock follows an attachment
// that changed category before its lock was taken.
const relockAttempts = 3

// withAttachmentLock runs fn on the current record of att while holding the
// locks of its category and of also. The record is re-read under the lock;
// if another request moved it meanwhile, the locks are dropped and taken
// again for the category it now lives in.
func (m *Manager) withAttachmentLock(ctx context.Context, att model.Attachment, also []string, fn func(store.AttachmentStore, model.Attachment) error) error {
	for range relockAttempts {
		category := att.Category
		stale := false
		err := m.withCategoryLocks(ctx, att.ParentID, append([]string{category}, also...), func(st store.AttachmentStore) error {
			cur, err := st.GetAttachment(ctx, att.ID)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("attachment")
			}
			if err != nil {
				return fmt.Errorf("get attachment: %w", err)
			}
			if cur.Category != category {
				att, stale = cur, true
				return nil
			}
			return fn(st, cur)
		})
		if err != nil || !stale {
			return err
		}
		m.log.Debug("attachment changed category before lock, retrying",
			zap.String("attachment_id", att.ID), zap.String("from", category), zap.String("to", att.Category))
	}
	return apperr.Conflict("attachment is being moved by another request")
}

func (m *Manager) item(a model.Attachment) Item {
	v := DeriveVariants(a.Path)
	a.URL = m.objects.PublicURL(v.Original)
	return Item{
		Attachment:   a,
		DisplayURL:   m.objects.PublicURL(v.Display),
		ThumbnailURL: m.objects.PublicURL(v.Thumbnail),
	}
}

// cleanup removes paths best-effort.
func (m *Manager) cleanup(ctx context.Context, attachmentID string, paths []string) {
	if err := m.objects.Remove(ctx, paths); err != nil {
		m.metrics.Inc(ctx, telemetry.StorageCleanupErrors, attribute.Int("paths", len(paths)))
		m.log.Warn("attachment object cleanup failed",
			zap.String("attachment_id", attachmentID),
			zap.Strings("paths", paths),
			zap.Error(err))
	}
}

// parent loads parentID if actor may see it.
func (m *Manager) parent(ctx context.Context, actor model.Principal, parentID string) (model.ParentRef, error) {
	p, err := m.store.GetParent(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return p, apperr.NotFound("parent record")
	}
	if err != nil {
		return p, fmt.Errorf("get parent: %w", err)
	}
	f := scope.For(actor, m.resolver.Resolve(ctx, actor), "")
	if f.Blocked() || !f.Allows(p) {
		return model.ParentRef{}, apperr.NotFound("parent record")
	}
	return p, nil
}

// visible loads attachment id if actor may see its parent. Attachments
// outside scope are reported exactly like missing ones.
func (m *Manager) visible(ctx context.Context, actor model.Principal, id string) (model.Attachment, error) {
	att, err := m.store.GetAttachment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return att, apperr.NotFound("attachment")
	}
	if err != nil {
		return att, fmt.Errorf("get attachment: %w", err)
	}
	if _, err := m.parent(ctx, actor, att.ParentID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Attachment{}, apperr.NotFound("attachment")
		}
		return model.Attachment{}, err
	}
	return att, nil
}

func (m *Manager) check(v any) error {
	if err := m.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "category" {
				return apperr.Validation(fmt.Sprintf("category must be one of %s", strings.Join(m.categories, ", ")))
			}
			return apperr.Validation(fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return apperr.Validation(err.Error())
	}
	return nil
}

func sortedUnique(values ...string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return slices.Compact(out)
}
