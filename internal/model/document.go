package model

import "time"

// Source tags which backing store a DocumentRecord came from.
type Source string

const (
	SourceCurrent       Source = "current"
	SourceLegacy        Source = "legacy"
	SourceSiteBlueprint Source = "site-blueprint"
)

// Priority orders sources when creation timestamps tie; lower sorts first.
func (s Source) Priority() int {
	switch s {
	case SourceCurrent:
		return 0
	case SourceLegacy:
		return 1
	case SourceSiteBlueprint:
		return 2
	}
	return 3
}

// DocumentRecord is the normalized projection produced by the aggregation
// pipeline. It is built per request and never stored.
type DocumentRecord struct {
	ID           string    `json:"id"`
	Source       Source    `json:"source"`
	Category     string    `json:"category"`
	Label        string    `json:"label"`
	Icon         string    `json:"icon"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	FileURL      string    `json:"fileUrl,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Size         int64     `json:"size,omitempty"`
	MimeType     string    `json:"mimeType,omitempty"`
	UploadedBy   string    `json:"uploadedBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	IsPrimary    bool      `json:"isPrimary"`
	SiteID       *string   `json:"siteId,omitempty"`
	OrgID        string    `json:"orgId,omitempty"`
}

// ScopeSite implements scope.Scoped.
func (d DocumentRecord) ScopeSite() *string { return d.SiteID }

// ScopeOrg implements scope.Scoped.
func (d DocumentRecord) ScopeOrg() string { return d.OrgID }
