// Package store declares the storage collaborators the core depends on. The
// PostgreSQL implementation lives in internal/repository, the in-memory one
// in internal/storage.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Directory reads principals and their site assignments. Both are owned by
// the authentication layer; this subsystem only reads them.
type Directory interface {
	GetPrincipal(ctx context.Context, id string) (model.Principal, error)
	SiteAssignments(ctx context.Context, principalID string) ([]model.SiteAssignment, error)
}

// RequirementStore persists the requirement catalogue.
type RequirementStore interface {
	LoadRegistry(ctx context.Context) (model.RegistryData, error)
	GetRequirement(ctx context.Context, id string) (model.DocumentRequirement, error)
	// RequirementByCode returns the active requirement with code.
	RequirementByCode(ctx context.Context, code string) (model.DocumentRequirement, error)
	// InRequirementTx runs fn in one transaction; any error rolls back every
	// write fn made.
	InRequirementTx(ctx context.Context, fn func(RequirementTx) error) error
}

// RequirementTx is the write side of RequirementStore, valid only inside
// InRequirementTx.
type RequirementTx interface {
	GetRequirement(ctx context.Context, id string) (model.DocumentRequirement, error)
	ActiveCodeExists(ctx context.Context, code, excludeID string) (bool, error)
	InsertRequirement(ctx context.Context, req model.DocumentRequirement) error
	UpdateRequirement(ctx context.Context, req model.DocumentRequirement) error
	ReplaceRoleMappings(ctx context.Context, requirementID string, mappings []model.RoleMapping) error
	ReplaceSiteOverrides(ctx context.Context, requirementID string, overrides []model.SiteOverride) error
}

// SubmissionStore persists compliance submissions. Status values are
// returned exactly as stored, canonical or not.
type SubmissionStore interface {
	// CurrentSubmissions returns the most recently created submission per
	// requirement for the principal.
	CurrentSubmissions(ctx context.Context, principalID string) ([]model.Submission, error)
	CurrentSubmission(ctx context.Context, principalID, requirementID string) (model.Submission, error)
	GetSubmission(ctx context.Context, id string) (model.Submission, error)
	InsertSubmission(ctx context.Context, sub model.Submission) error
	UpdateSubmission(ctx context.Context, sub model.Submission) error
	// UpsertStatuses rewrites statuses in one batch. Rows already holding a
	// canonical value are left alone.
	UpsertStatuses(ctx context.Context, fixes []model.StatusFix) error
	SetPageCount(ctx context.Context, id string, pages int) error
}

// Row is one raw record from an aggregation source, keyed by column name.
type Row map[string]any

// DocumentQuery is a scope-filtered range query against one document table.
// Table and column names come from source definitions, never from input.
type DocumentQuery struct {
	Table          string
	IDColumn       string
	SiteColumn     string
	OrgColumn      string
	CategoryColumn string
	CreatedColumn  string

	// AllSites disables the site predicate entirely.
	AllSites bool
	Sites    []string
	// AllowNull admits rows whose site column is NULL.
	AllowNull bool
	// OrgID, when set, limits rows to one organization.
	OrgID string
	// Categories, when non-empty, limits rows to these native categories.
	Categories []string
	Limit      int
}

// DocumentQuerier runs range queries for the aggregation sources.
type DocumentQuerier interface {
	QueryDocuments(ctx context.Context, q DocumentQuery) ([]Row, error)
}

// AttachmentStore persists ordered attachments keyed by parent.
type AttachmentStore interface {
	GetParent(ctx context.Context, parentID string) (model.ParentRef, error)
	GetAttachment(ctx context.Context, id string) (model.Attachment, error)
	// ListAttachments orders by ordinal, then creation time, then id. An
	// empty category lists every category.
	ListAttachments(ctx context.Context, parentID, category string) ([]model.Attachment, error)
	InsertAttachment(ctx context.Context, att model.Attachment) error
	UpdateAttachment(ctx context.Context, att model.Attachment) error
	DeleteAttachment(ctx context.Context, id string) error
	// SetOrdinals writes every ordinal in one transaction.
	SetOrdinals(ctx context.Context, ordinals map[string]int) error
	// WithCategoryLocks runs fn holding the ordinal lock of every listed
	// category of parentID. Everything fn reads or writes must go through
	// the store it is given, which shares the lock holder's connection.
	WithCategoryLocks(ctx context.Context, parentID string, categories []string, fn func(AttachmentStore) error) error
}

// ObjectStore is the object storage collaborator.
type ObjectStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, path string) ([]byte, error)
	Move(ctx context.Context, oldPath, newPath string) error
	Remove(ctx context.Context, paths []string) error
	PublicURL(path string) string
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
