package submission

import (
	"strings"
	"time"

	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/model"
)

// Decision is an administrator's review outcome.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// applySubmit attaches refs to sub. Any non-empty reference yields
// submitted; none at all clears the submission back to not_submitted.
// Review fields from a previous decision are always cleared.
func applySubmit(sub model.Submission, documentRef, fileRef string, now time.Time) model.Submission {
	sub.DocumentRef = strings.TrimSpace(documentRef)
	sub.FileRef = strings.TrimSpace(fileRef)
	sub.ApprovedAt = nil
	sub.RejectedAt = nil
	sub.RejectionReason = ""
	sub.ReviewedBy = ""
	sub.UpdatedAt = now
	if sub.DocumentRef == "" && sub.FileRef == "" {
		sub.Status = model.StatusNotSubmitted
		sub.SubmittedAt = nil
		sub.FileName, sub.FileSize, sub.MimeType, sub.PageCount = "", 0, "", 0
		return sub
	}
	sub.Status = model.StatusSubmitted
	sub.SubmittedAt = &now
	return sub
}

// applyReview moves a submitted document to approved or rejected. sub is
// returned unchanged with the error when the transition is refused.
func applyReview(sub model.Submission, reviewer model.Principal, d Decision, reason string, now time.Time) (model.Submission, error) {
	if !reviewer.Role.IsAdmin() {
		return sub, apperr.Forbidden("only administrators may review submissions")
	}
	if sub.Status != model.StatusSubmitted {
		return sub, apperr.Validation("only submitted documents can be reviewed, status is " + string(sub.Status))
	}
	out := sub
	switch d {
	case DecisionApprove:
		out.Status = model.StatusApproved
		out.ApprovedAt = &now
		out.RejectedAt = nil
		out.RejectionReason = ""
	case DecisionReject:
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return sub, apperr.Validation("a rejection reason is required")
		}
		out.Status = model.StatusRejected
		out.RejectedAt = &now
		out.ApprovedAt = nil
		out.RejectionReason = reason
	default:
		return sub, apperr.Validation("decision must be approve or reject")
	}
	out.ReviewedBy = reviewer.ID
	out.UpdatedAt = now
	return out, nil
}
