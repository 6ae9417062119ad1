// Package attachment manages ordered photo attachments and their derived
// size variants.
package attachment

import (
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

const (
	rootPrefix      = "reports"
	displaySuffix   = "_display"
	thumbnailSuffix = "_thumb"
)

// NewPath returns a fresh storage path for a file uploaded under
// (parentID, category). Only the extension of fileName is kept.
func NewPath(parentID, category, fileName string) string {
	return path.Join(rootPrefix, parentID, category, uuid.NewString()+strings.ToLower(path.Ext(fileName)))
}

// DeriveVariants computes all three variant paths from any one of them.
// It does no I/O.
func DeriveVariants(p string) model.VariantSet {
	dir, file := path.Split(p)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	switch {
	case strings.HasSuffix(stem, displaySuffix):
		stem = strings.TrimSuffix(stem, displaySuffix)
	case strings.HasSuffix(stem, thumbnailSuffix):
		stem = strings.TrimSuffix(stem, thumbnailSuffix)
	}
	return model.VariantSet{
		Original:  dir + stem + ext,
		Display:   dir + stem + displaySuffix + ext,
		Thumbnail: dir + stem + thumbnailSuffix + ext,
	}
}

// SubstituteCategory rewrites the category segment of p from one category
// to another. Paths without a recognizable segment get a fresh path under
// parentID built from the original file name.
func SubstituteCategory(p, parentID, from, to string) string {
	segs := strings.Split(p, "/")
	for i := len(segs) - 2; i >= 0; i-- {
		if segs[i] == from {
			segs[i] = to
			return strings.Join(segs, "/")
		}
	}
	return path.Join(rootPrefix, parentID, to, path.Base(DeriveVariants(p).Original))
}
