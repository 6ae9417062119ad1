package storage

import (
	"context"
	"slices"
	"sort"

	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// PutParent registers a parent record attachments can belong to.
func (m *MemoryStore) PutParent(p model.ParentRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents[p.ID] = p
}

// GetParent implements store.AttachmentStore.
func (m *MemoryStore) GetParent(ctx context.Context, parentID string) (model.ParentRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parents[parentID]
	if !ok {
		return model.ParentRef{}, store.ErrNotFound
	}
	return p, nil
}

// GetAttachment implements store.AttachmentStore.
func (m *MemoryStore) GetAttachment(ctx context.Context, id string) (model.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attachments[id]
	if !ok {
		return model.Attachment{}, store.ErrNotFound
	}
	return a, nil
}

// ListAttachments implements store.AttachmentStore.
func (m *MemoryStore) ListAttachments(ctx context.Context, parentID, category string) ([]model.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Attachment
	for _, a := range m.attachments {
		if a.ParentID == parentID && (category == "" || a.Category == category) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertAttachment implements store.AttachmentStore.
func (m *MemoryStore) InsertAttachment(ctx context.Context, att model.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[att.ID] = att
	return nil
}

// UpdateAttachment implements store.AttachmentStore.
func (m *MemoryStore) UpdateAttachment(ctx context.Context, att model.Attachment) error {
	if err := m.fault(ctx, OpUpdateAttachment); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attachments[att.ID]; !ok {
		return store.ErrNotFound
	}
	m.attachments[att.ID] = att
	return nil
}

// DeleteAttachment implements store.AttachmentStore.
func (m *MemoryStore) DeleteAttachment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attachments[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.attachments, id)
	return nil
}

// SetOrdinals implements store.AttachmentStore.
func (m *MemoryStore) SetOrdinals(ctx context.Context, ordinals map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range ordinals {
		if _, ok := m.attachments[id]; !ok {
			return store.ErrNotFound
		}
	}
	for id, ord := range ordinals {
		a := m.attachments[id]
		a.Ordinal = ord
		m.attachments[id] = a
	}
	return nil
}

// WithCategoryLocks implements store.AttachmentStore with in-process locks
// taken in sorted key order.
func (m *MemoryStore) WithCategoryLocks(ctx context.Context, parentID string, categories []string, fn func(store.AttachmentStore) error) error {
	keys := make([]string, 0, len(categories))
	for _, c := range categories {
		keys = append(keys, parentID+"/"+c)
	}
	sort.Strings(keys)
	for _, k := range slices.Compact(keys) {
		defer m.locks.lock(k)()
	}
	return fn(m)
}
