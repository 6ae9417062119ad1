package model

import "time"

// Attachment is an ordered photo belonging to a parent record. Within a
// (parent, category) pair ordinals form the dense sequence 0..n-1.
type Attachment struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parentId"`
	Category    string    `json:"category"`
	Ordinal     int       `json:"ordinal"`
	Path        string    `json:"-"`
	URL         string    `json:"url"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mimeType,omitempty"`
	Description string    `json:"description,omitempty"`
	UploadedBy  string    `json:"uploadedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VariantSet holds the three storage paths derived from an attachment path.
type VariantSet struct {
	Original  string `json:"original"`
	Display   string `json:"display"`
	Thumbnail string `json:"thumbnail"`
}

// Paths returns every variant path, original first.
func (v VariantSet) Paths() []string {
	return []string{v.Original, v.Display, v.Thumbnail}
}

// ParentRef locates the parent record of attachments for scope checks.
type ParentRef struct {
	ID     string  `json:"id"`
	SiteID *string `json:"siteId,omitempty"`
	OrgID  string  `json:"orgId,omitempty"`
}

// ScopeSite implements scope.Scoped.
func (p ParentRef) ScopeSite() *string { return p.SiteID }

// ScopeOrg implements scope.Scoped.
func (p ParentRef) ScopeOrg() string { return p.OrgID }
