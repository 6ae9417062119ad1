package model

import "time"

// SubmissionStatus describes where a compliance document is in review.
type SubmissionStatus string

const (
	StatusNotSubmitted SubmissionStatus = "not_submitted"
	StatusSubmitted    SubmissionStatus = "submitted"
	StatusApproved     SubmissionStatus = "approved"
	StatusRejected     SubmissionStatus = "rejected"
)

// Canonical reports whether s is one of the four persisted status values.
func (s SubmissionStatus) Canonical() bool {
	switch s {
	case StatusNotSubmitted, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Submission is one attempt by a principal to satisfy a requirement. Only the
// most recently created row per (principal, requirement) is authoritative.
type Submission struct {
	ID              string           `json:"id"`
	PrincipalID     string           `json:"principalId"`
	RequirementID   string           `json:"requirementId"`
	DocumentRef     string           `json:"documentRef,omitempty"`
	FileRef         string           `json:"fileRef,omitempty"`
	FileName        string           `json:"fileName,omitempty"`
	FileSize        int64            `json:"fileSize,omitempty"`
	MimeType        string           `json:"mimeType,omitempty"`
	PageCount       int              `json:"pageCount,omitempty"`
	Status          SubmissionStatus `json:"status"`
	SubmittedAt     *time.Time       `json:"submittedAt,omitempty"`
	ApprovedAt      *time.Time       `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time       `json:"rejectedAt,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	ReviewedBy      string           `json:"reviewedBy,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// StatusFix rewrites a stored non-canonical status to its canonical value.
type StatusFix struct {
	SubmissionID string           `json:"submissionId"`
	Status       SubmissionStatus `json:"status"`
}
