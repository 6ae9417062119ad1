package storage

import (
	"context"

	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// LoadRegistry implements store.RequirementStore.
func (m *MemoryStore) LoadRegistry(ctx context.Context) (model.RegistryData, error) {
	if err := m.fault(ctx, OpLoadRegistry); err != nil {
		return model.RegistryData{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var data model.RegistryData
	for _, r := range m.requirements {
		data.Requirements = append(data.Requirements, cloneRequirement(r))
	}
	for _, ms := range m.roleMappings {
		data.RoleMappings = append(data.RoleMappings, ms...)
	}
	for _, os := range m.overrides {
		data.SiteOverrides = append(data.SiteOverrides, os...)
	}
	return data, nil
}

// GetRequirement implements store.RequirementStore.
func (m *MemoryStore) GetRequirement(ctx context.Context, id string) (model.DocumentRequirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requirements[id]
	if !ok {
		return model.DocumentRequirement{}, store.ErrNotFound
	}
	return cloneRequirement(r), nil
}

// RequirementByCode implements store.RequirementStore.
func (m *MemoryStore) RequirementByCode(ctx context.Context, code string) (model.DocumentRequirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.requirements {
		if r.Active && r.Code == code {
			return cloneRequirement(r), nil
		}
	}
	return model.DocumentRequirement{}, store.ErrNotFound
}

// InRequirementTx runs fn against a private copy of the catalogue and swaps
// it in only when fn succeeds.
func (m *MemoryStore) InRequirementTx(ctx context.Context, fn func(store.RequirementTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memRequirementTx{
		requirements: make(map[string]model.DocumentRequirement, len(m.requirements)),
		roleMappings: make(map[string][]model.RoleMapping, len(m.roleMappings)),
		overrides:    make(map[string][]model.SiteOverride, len(m.overrides)),
	}
	for k, v := range m.requirements {
		tx.requirements[k] = cloneRequirement(v)
	}
	for k, v := range m.roleMappings {
		tx.roleMappings[k] = append([]model.RoleMapping(nil), v...)
	}
	for k, v := range m.overrides {
		tx.overrides[k] = append([]model.SiteOverride(nil), v...)
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.requirements = tx.requirements
	m.roleMappings = tx.roleMappings
	m.overrides = tx.overrides
	return nil
}

type memRequirementTx struct {
	requirements map[string]model.DocumentRequirement
	roleMappings map[string][]model.RoleMapping
	overrides    map[string][]model.SiteOverride
}

func (t *memRequirementTx) GetRequirement(ctx context.Context, id string) (model.DocumentRequirement, error) {
	r, ok := t.requirements[id]
	if !ok {
		return model.DocumentRequirement{}, store.ErrNotFound
	}
	return cloneRequirement(r), nil
}

func (t *memRequirementTx) ActiveCodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	for _, r := range t.requirements {
		if r.Active && r.Code == code && r.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memRequirementTx) InsertRequirement(ctx context.Context, req model.DocumentRequirement) error {
	t.requirements[req.ID] = cloneRequirement(req)
	return nil
}

func (t *memRequirementTx) UpdateRequirement(ctx context.Context, req model.DocumentRequirement) error {
	if _, ok := t.requirements[req.ID]; !ok {
		return store.ErrNotFound
	}
	t.requirements[req.ID] = cloneRequirement(req)
	return nil
}

func (t *memRequirementTx) ReplaceRoleMappings(ctx context.Context, requirementID string, mappings []model.RoleMapping) error {
	t.roleMappings[requirementID] = append([]model.RoleMapping(nil), mappings...)
	return nil
}

func (t *memRequirementTx) ReplaceSiteOverrides(ctx context.Context, requirementID string, overrides []model.SiteOverride) error {
	t.overrides[requirementID] = append([]model.SiteOverride(nil), overrides...)
	return nil
}

func cloneRequirement(r model.DocumentRequirement) model.DocumentRequirement {
	r.FileKinds = append([]string(nil), r.FileKinds...)
	return r
}
