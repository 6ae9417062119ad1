// Package storage contains in-memory implementations of the tabular and
// object storage collaborators, used for local development and tests.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/scope"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// Operation names accepted by Inject.
const (
	OpSiteAssignments  = "site_assignments"
	OpLoadRegistry     = "load_registry"
	OpUpsertStatuses   = "upsert_statuses"
	OpUpdateAttachment = "update_attachment"
	OpInsertSubmission = "insert_submission"
)

// QueryOp is the Inject operation name for queries against table.
func QueryOp(table string) string { return "query:" + table }

// MemoryStore keeps every collection in maps guarded by one RWMutex.
type MemoryStore struct {
	mu           sync.RWMutex
	principals   map[string]model.Principal
	assignments  map[string][]model.SiteAssignment
	requirements map[string]model.DocumentRequirement
	roleMappings map[string][]model.RoleMapping
	overrides    map[string][]model.SiteOverride
	submissions  map[string]model.Submission
	tables       map[string][]store.Row
	parents      map[string]model.ParentRef
	attachments  map[string]model.Attachment

	faults map[string]error
	delays map[string]time.Duration
	locks  keyedMutex
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals:   make(map[string]model.Principal),
		assignments:  make(map[string][]model.SiteAssignment),
		requirements: make(map[string]model.DocumentRequirement),
		roleMappings: make(map[string][]model.RoleMapping),
		overrides:    make(map[string][]model.SiteOverride),
		submissions:  make(map[string]model.Submission),
		tables:       make(map[string][]store.Row),
		parents:      make(map[string]model.ParentRef),
		attachments:  make(map[string]model.Attachment),
		faults:       make(map[string]error),
		delays:       make(map[string]time.Duration),
	}
}

// Inject makes op fail with err until cleared with a nil err.
func (m *MemoryStore) Inject(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// Delay makes op wait d (or until its context ends) before running.
func (m *MemoryStore) Delay(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

func (m *MemoryStore) fault(ctx context.Context, op string) error {
	m.mu.RLock()
	err, d := m.faults[op], m.delays[op]
	m.mu.RUnlock()
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

// PutPrincipal stores a principal as the authentication layer would.
func (m *MemoryStore) PutPrincipal(p model.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.principals[p.ID] = p
}

// AssignSite records a site assignment.
func (m *MemoryStore) AssignSite(a model.SiteAssignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.PrincipalID] = append(m.assignments[a.PrincipalID], a)
}

// GetPrincipal implements store.Directory.
func (m *MemoryStore) GetPrincipal(ctx context.Context, id string) (model.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.principals[id]
	if !ok {
		return model.Principal{}, store.ErrNotFound
	}
	return p, nil
}

// SiteAssignments implements store.Directory.
func (m *MemoryStore) SiteAssignments(ctx context.Context, principalID string) ([]model.SiteAssignment, error) {
	if err := m.fault(ctx, OpSiteAssignments); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.SiteAssignment(nil), m.assignments[principalID]...), nil
}

// PutRow appends a raw row to a document table.
func (m *MemoryStore) PutRow(table string, row store.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], row)
}

// QueryDocuments implements store.DocumentQuerier with the same predicate
// the SQL implementation pushes down.
func (m *MemoryStore) QueryDocuments(ctx context.Context, q store.DocumentQuery) ([]store.Row, error) {
	if err := m.fault(ctx, QueryOp(q.Table)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.tables[q.Table]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", q.Table)
	}
	set := scope.EffectiveSet{All: q.AllSites, Sites: q.Sites}
	var out []store.Row
	for _, row := range rows {
		if q.OrgID != "" && q.OrgColumn != "" && stringValue(row[q.OrgColumn]) != q.OrgID {
			continue
		}
		if q.SiteColumn != "" && !scope.MatchSite(nullableString(row[q.SiteColumn]), set, q.AllowNull) {
			continue
		}
		if len(q.Categories) > 0 && !containsString(q.Categories, stringValue(row[q.CategoryColumn])) {
			continue
		}
		cp := make(store.Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}
	if q.CreatedColumn != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return timeValue(out[i][q.CreatedColumn]).After(timeValue(out[j][q.CreatedColumn]))
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t != nil {
			return *t
		}
	}
	return ""
}

func nullableString(v any) *string {
	switch t := v.(type) {
	case string:
		return &t
	case *string:
		return t
	}
	return nil
}

func timeValue(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}
