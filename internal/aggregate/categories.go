package aggregate

import (
	"slices"
	"strings"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

// Logical document types callers filter and count by.
const (
	TypeBlueprint     = "blueprint"
	TypeSafety        = "safety"
	TypeCertification = "certification"
	TypeContract      = "contract"
	TypePhoto         = "photo"
	TypeReport        = "report"
	TypeOther         = "other"
)

// nativeCategories maps each logical type to the category values a source
// stores for it. A source missing a type never holds documents of it.
var nativeCategories = map[model.Source]map[string][]string{
	model.SourceCurrent: {
		TypeBlueprint:     {"blueprint"},
		TypeSafety:        {"safety"},
		TypeCertification: {"certification", "license"},
		TypeContract:      {"contract"},
		TypePhoto:         {"photo"},
		TypeReport:        {"report"},
		TypeOther:         {"other"},
	},
	model.SourceLegacy: {
		TypeBlueprint:     {"drawing", "plan"},
		TypeSafety:        {"safety_doc", "risk_assessment"},
		TypeCertification: {"certification", "cert"},
		TypeContract:      {"agreement"},
		TypePhoto:         {"picture"},
		TypeReport:        {"daily_log"},
		TypeOther:         {"misc"},
	},
	model.SourceSiteBlueprint: {
		TypeBlueprint: {"blueprint"},
	},
}

type presentation struct {
	Label string
	Icon  string
}

var presentations = map[string]presentation{
	TypeBlueprint:     {"Blueprint", "map"},
	TypeSafety:        {"Safety document", "shield"},
	TypeCertification: {"Certification", "award"},
	TypeContract:      {"Contract", "file-signature"},
	TypePhoto:         {"Photo", "image"},
	TypeReport:        {"Report", "clipboard"},
	TypeOther:         {"Document", "file"},
}

var genericPresentation = presentation{Label: "Document", Icon: "file"}

// KnownType reports whether t is a logical document type.
func KnownType(t string) bool {
	_, ok := presentations[t]
	return ok
}

// translate returns source's native categories for the logical types. The
// second result is false when the source holds none of them.
func translate(source model.Source, types []string) ([]string, bool) {
	var out []string
	for _, t := range types {
		out = append(out, nativeCategories[source][t]...)
	}
	slices.Sort(out)
	out = slices.Compact(out)
	return out, len(out) > 0
}

// logicalType maps a native category back to its logical type. Values no
// table knows are kept lowercased so they still count under their own name.
func logicalType(source model.Source, native string) string {
	native = strings.ToLower(strings.TrimSpace(native))
	for t, natives := range nativeCategories[source] {
		if slices.Contains(natives, native) {
			return t
		}
	}
	if native == "" {
		return TypeOther
	}
	return native
}

func present(t string) presentation {
	if p, ok := presentations[t]; ok {
		return p
	}
	return genericPresentation
}
