package aggregate

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/dharsanguruparan/SiteVault/internal/attachment"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/scope"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// Source is one backing store of documents. The pipeline knows sources only
// through this interface.
type Source interface {
	Name() model.Source
	// Fetch returns raw rows visible under f. categories, when non-nil,
	// lists the native categories to keep.
	Fetch(ctx context.Context, f scope.Filter, categories []string) ([]store.Row, error)
	Normalize(row store.Row) (model.DocumentRecord, error)
}

// URLResolver turns a stored object path into a URL.
type URLResolver interface {
	PublicURL(path string) string
}

var errMissingID = errors.New("row has no id")

// tableSource reads one table through a DocumentQuerier.
type tableSource struct {
	name      model.Source
	query     store.DocumentQuery
	db        store.DocumentQuerier
	normalize func(store.Row) (model.DocumentRecord, error)
}

func (s *tableSource) Name() model.Source { return s.name }

func (s *tableSource) Fetch(ctx context.Context, f scope.Filter, categories []string) ([]store.Row, error) {
	q := s.query
	f.Apply(&q)
	if q.CategoryColumn != "" {
		q.Categories = categories
	}
	return s.db.QueryDocuments(ctx, q)
}

func (s *tableSource) Normalize(row store.Row) (model.DocumentRecord, error) {
	if str(row, s.query.IDColumn) == "" {
		return model.DocumentRecord{}, errMissingID
	}
	rec, err := s.normalize(row)
	if err != nil {
		return rec, err
	}
	rec.Source = s.name
	p := present(rec.Category)
	rec.Label, rec.Icon = p.Label, p.Icon
	return rec, nil
}

// NewCurrentSource reads the current-schema documents table.
func NewCurrentSource(db store.DocumentQuerier, urls URLResolver, limit int) Source {
	return &tableSource{
		name: model.SourceCurrent,
		query: store.DocumentQuery{
			Table: "documents", IDColumn: "id", SiteColumn: "site_id", OrgColumn: "org_id",
			CategoryColumn: "category", CreatedColumn: "created_at", Limit: limit,
		},
		db: db,
		normalize: func(row store.Row) (model.DocumentRecord, error) {
			filePath := str(row, "file_path")
			rec := model.DocumentRecord{
				ID:          str(row, "id"),
				Category:    logicalType(model.SourceCurrent, str(row, "category")),
				Name:        str(row, "name"),
				Description: str(row, "description"),
				FileURL:     resolve(urls, filePath),
				Size:        int64Of(row, "file_size"),
				MimeType:    str(row, "mime_type"),
				UploadedBy:  str(row, "uploaded_by"),
				CreatedAt:   timeOf(row, "created_at"),
				IsPrimary:   boolOf(row, "is_primary"),
				SiteID:      nullStr(row, "site_id"),
				OrgID:       str(row, "org_id"),
			}
			if rec.MimeType == "" {
				rec.MimeType = mimeOf(filePath)
			}
			if strings.HasPrefix(rec.MimeType, "image/") && filePath != "" && !isAbsolute(filePath) {
				rec.ThumbnailURL = resolve(urls, attachment.DeriveVariants(filePath).Thumbnail)
			}
			return rec, nil
		},
	}
}

// NewLegacySource reads documents kept in the pre-migration table, which
// uses its own column names and category vocabulary.
func NewLegacySource(db store.DocumentQuerier, urls URLResolver, limit int) Source {
	return &tableSource{
		name: model.SourceLegacy,
		query: store.DocumentQuery{
			Table: "legacy_documents", IDColumn: "id", SiteColumn: "site_id", OrgColumn: "org_id",
			CategoryColumn: "doc_kind", CreatedColumn: "registered_at", Limit: limit,
		},
		db: db,
		normalize: func(row store.Row) (model.DocumentRecord, error) {
			filePath := str(row, "file_path")
			return model.DocumentRecord{
				ID:          str(row, "id"),
				Category:    logicalType(model.SourceLegacy, str(row, "doc_kind")),
				Name:        str(row, "title"),
				Description: str(row, "notes"),
				FileURL:     resolve(urls, filePath),
				Size:        int64Of(row, "file_bytes"),
				MimeType:    mimeOf(filePath),
				UploadedBy:  str(row, "uploader_name"),
				CreatedAt:   timeOf(row, "registered_at"),
				SiteID:      nullStr(row, "site_id"),
				OrgID:       str(row, "org_id"),
			}, nil
		},
	}
}

// NewBlueprintSource reads per-site drawings. Every row is a blueprint, so
// the table has no category column.
func NewBlueprintSource(db store.DocumentQuerier, urls URLResolver, limit int) Source {
	return &tableSource{
		name: model.SourceSiteBlueprint,
		query: store.DocumentQuery{
			Table: "site_blueprints", IDColumn: "id", SiteColumn: "site_id", OrgColumn: "org_id",
			CreatedColumn: "created_at", Limit: limit,
		},
		db: db,
		normalize: func(row store.Row) (model.DocumentRecord, error) {
			drawing := str(row, "drawing_url")
			return model.DocumentRecord{
				ID:        str(row, "id"),
				Category:  TypeBlueprint,
				Name:      str(row, "title"),
				FileURL:   resolve(urls, drawing),
				MimeType:  mimeOf(drawing),
				CreatedAt: timeOf(row, "created_at"),
				IsPrimary: boolOf(row, "is_primary"),
				SiteID:    nullStr(row, "site_id"),
				OrgID:     str(row, "org_id"),
			}, nil
		},
	}
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func resolve(urls URLResolver, ref string) string {
	if ref == "" || isAbsolute(ref) || urls == nil {
		return ref
	}
	return urls.PublicURL(ref)
}

func mimeOf(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		ref = ref[:i]
	}
	t := mime.TypeByExtension(strings.ToLower(path.Ext(ref)))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return t
}
