package storage

import (
	"context"
	"sort"

	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// PutSubmission stores sub as-is, including non-canonical statuses.
func (m *MemoryStore) PutSubmission(sub model.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[sub.ID] = sub
}

// CurrentSubmissions implements store.SubmissionStore.
func (m *MemoryStore) CurrentSubmissions(ctx context.Context, principalID string) ([]model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := make(map[string]model.Submission)
	for _, s := range m.submissions {
		if s.PrincipalID != principalID {
			continue
		}
		if cur, ok := latest[s.RequirementID]; !ok || newer(s, cur) {
			latest[s.RequirementID] = s
		}
	}
	out := make([]model.Submission, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequirementID < out[j].RequirementID })
	return out, nil
}

// CurrentSubmission implements store.SubmissionStore.
func (m *MemoryStore) CurrentSubmission(ctx context.Context, principalID, requirementID string) (model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		cur   model.Submission
		found bool
	)
	for _, s := range m.submissions {
		if s.PrincipalID == principalID && s.RequirementID == requirementID && (!found || newer(s, cur)) {
			cur, found = s, true
		}
	}
	if !found {
		return model.Submission{}, store.ErrNotFound
	}
	return cur, nil
}

func newer(a, b model.Submission) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// GetSubmission implements store.SubmissionStore.
func (m *MemoryStore) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return model.Submission{}, store.ErrNotFound
	}
	return s, nil
}

// InsertSubmission implements store.SubmissionStore.
func (m *MemoryStore) InsertSubmission(ctx context.Context, sub model.Submission) error {
	if err := m.fault(ctx, OpInsertSubmission); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[sub.ID] = sub
	return nil
}

// UpdateSubmission implements store.SubmissionStore.
func (m *MemoryStore) UpdateSubmission(ctx context.Context, sub model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[sub.ID]; !ok {
		return store.ErrNotFound
	}
	m.submissions[sub.ID] = sub
	return nil
}

// UpsertStatuses implements store.SubmissionStore.
func (m *MemoryStore) UpsertStatuses(ctx context.Context, fixes []model.StatusFix) error {
	if err := m.fault(ctx, OpUpsertStatuses); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range fixes {
		s, ok := m.submissions[f.SubmissionID]
		if !ok || s.Status.Canonical() {
			continue
		}
		s.Status = f.Status
		m.submissions[f.SubmissionID] = s
	}
	return nil
}

// SetPageCount implements store.SubmissionStore.
func (m *MemoryStore) SetPageCount(ctx context.Context, id string, pages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.PageCount = pages
	m.submissions[id] = s
	return nil
}
