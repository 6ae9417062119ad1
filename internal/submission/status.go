// Package submission tracks the review lifecycle of compliance documents.
package submission

import (
	"strings"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

// legacyStatus maps every status spelling found in older rows to its
// canonical value. It is the only place raw status strings are interpreted.
var legacyStatus = map[string]model.SubmissionStatus{
	"not_submitted":  model.StatusNotSubmitted,
	"none":           model.StatusNotSubmitted,
	"missing":        model.StatusNotSubmitted,
	"not_uploaded":   model.StatusNotSubmitted,
	"pending_upload": model.StatusNotSubmitted,
	"empty":          model.StatusNotSubmitted,

	"submitted":    model.StatusSubmitted,
	"pending":      model.StatusSubmitted,
	"uploaded":     model.StatusSubmitted,
	"under_review": model.StatusSubmitted,
	"in_review":    model.StatusSubmitted,
	"reviewing":    model.StatusSubmitted,
	"waiting":      model.StatusSubmitted,

	"approved":  model.StatusApproved,
	"approve":   model.StatusApproved,
	"accepted":  model.StatusApproved,
	"verified":  model.StatusApproved,
	"complete":  model.StatusApproved,
	"completed": model.StatusApproved,
	"valid":     model.StatusApproved,

	"rejected": model.StatusRejected,
	"reject":   model.StatusRejected,
	"denied":   model.StatusRejected,
	"declined": model.StatusRejected,
	"returned": model.StatusRejected,
	"invalid":  model.StatusRejected,
}

// Normalize returns the canonical status of sub and whether the stored value
// differed. Canonical values pass through untouched, so normalizing twice
// never reports a change the second time. Unrecognised values fall back on
// whether a document is attached.
func Normalize(sub model.Submission) (model.SubmissionStatus, bool) {
	if sub.Status.Canonical() {
		return sub.Status, false
	}
	key := strings.ToLower(strings.TrimSpace(string(sub.Status)))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if st, ok := legacyStatus[key]; ok {
		return st, true
	}
	if sub.DocumentRef != "" || sub.FileRef != "" {
		return model.StatusSubmitted, true
	}
	return model.StatusNotSubmitted, true
}
