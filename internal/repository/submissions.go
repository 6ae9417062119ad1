package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

const submissionColumns = `id, principal_id, requirement_id, document_ref, file_ref, file_name, file_size, mime_type,
	page_count, status, submitted_at, approved_at, rejected_at, rejection_reason, reviewed_by, created_at, updated_at`

func scanSubmission(row pgx.Row) (model.Submission, error) {
	var s model.Submission
	err := row.Scan(&s.ID, &s.PrincipalID, &s.RequirementID, &s.DocumentRef, &s.FileRef, &s.FileName, &s.FileSize,
		&s.MimeType, &s.PageCount, &s.Status, &s.SubmittedAt, &s.ApprovedAt, &s.RejectedAt, &s.RejectionReason,
		&s.ReviewedBy, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// CurrentSubmissions returns the newest submission per requirement.
func (r *Repository) CurrentSubmissions(ctx context.Context, principalID string) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (requirement_id) `+submissionColumns+`
		FROM document_submissions WHERE principal_id=$1
		ORDER BY requirement_id, created_at DESC, id DESC
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Submission, error) {
		return scanSubmission(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}
	return subs, nil
}

// CurrentSubmission returns the newest submission for one requirement.
func (r *Repository) CurrentSubmission(ctx context.Context, principalID, requirementID string) (model.Submission, error) {
	sub, err := scanSubmission(r.pool.QueryRow(ctx, `
		SELECT `+submissionColumns+` FROM document_submissions
		WHERE principal_id=$1 AND requirement_id=$2
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, principalID, requirementID))
	if err != nil {
		return model.Submission{}, notFound("submission", err)
	}
	return sub, nil
}

// GetSubmission returns a submission by id.
func (r *Repository) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	sub, err := scanSubmission(r.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM document_submissions WHERE id=$1`, id))
	if err != nil {
		return model.Submission{}, notFound("submission", err)
	}
	return sub, nil
}

// InsertSubmission stores a new submission row.
func (r *Repository) InsertSubmission(ctx context.Context, s model.Submission) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO document_submissions (`+submissionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, s.ID, s.PrincipalID, s.RequirementID, s.DocumentRef, s.FileRef, s.FileName, s.FileSize, s.MimeType,
		s.PageCount, s.Status, s.SubmittedAt, s.ApprovedAt, s.RejectedAt, s.RejectionReason, s.ReviewedBy,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// UpdateSubmission rewrites every mutable column of a submission.
func (r *Repository) UpdateSubmission(ctx context.Context, s model.Submission) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE document_submissions
		SET document_ref=$1, file_ref=$2, file_name=$3, file_size=$4, mime_type=$5, page_count=$6, status=$7,
			submitted_at=$8, approved_at=$9, rejected_at=$10, rejection_reason=$11, reviewed_by=$12, updated_at=$13
		WHERE id=$14
	`, s.DocumentRef, s.FileRef, s.FileName, s.FileSize, s.MimeType, s.PageCount, s.Status,
		s.SubmittedAt, s.ApprovedAt, s.RejectedAt, s.RejectionReason, s.ReviewedBy, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return affected("submission", tag.RowsAffected())
}

// UpsertStatuses writes canonical statuses in one batch. The status guard
// makes a repeated backfill a no-op.
func (r *Repository) UpsertStatuses(ctx context.Context, fixes []model.StatusFix) error {
	if len(fixes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range fixes {
		batch.Queue(`
			UPDATE document_submissions SET status=$1, updated_at=now()
			WHERE id=$2 AND status NOT IN ('not_submitted','submitted','approved','rejected')
		`, string(f.Status), f.SubmissionID)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range fixes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("backfill status: %w", err)
		}
	}
	return results.Close()
}

// SetPageCount records the page count of a submitted PDF.
func (r *Repository) SetPageCount(ctx context.Context, id string, pages int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE document_submissions SET page_count=$1 WHERE id=$2`, pages, id)
	if err != nil {
		return fmt.Errorf("update page count: %w", err)
	}
	return affected("submission", tag.RowsAffected())
}
