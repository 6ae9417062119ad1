package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

const attachmentColumns = `id, parent_id, category, ordinal, file_path, file_name, file_size, mime_type,
	description, uploaded_by, created_at, updated_at`

func scanAttachment(row pgx.Row) (model.Attachment, error) {
	var a model.Attachment
	err := row.Scan(&a.ID, &a.ParentID, &a.Category, &a.Ordinal, &a.Path, &a.FileName, &a.Size, &a.MimeType,
		&a.Description, &a.UploadedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetParent returns the scope of a report record.
func (r *Repository) GetParent(ctx context.Context, parentID string) (model.ParentRef, error) {
	var p model.ParentRef
	err := r.db.QueryRow(ctx, `SELECT id, site_id, org_id FROM report_parents WHERE id=$1`, parentID).
		Scan(&p.ID, &p.SiteID, &p.OrgID)
	if err != nil {
		return model.ParentRef{}, notFound("parent", err)
	}
	return p, nil
}

// GetAttachment returns an attachment by id.
func (r *Repository) GetAttachment(ctx context.Context, id string) (model.Attachment, error) {
	a, err := scanAttachment(r.db.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM report_attachments WHERE id=$1`, id))
	if err != nil {
		return model.Attachment{}, notFound("attachment", err)
	}
	return a, nil
}

// ListAttachments lists attachments of parentID in display order.
func (r *Repository) ListAttachments(ctx context.Context, parentID, category string) ([]model.Attachment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+attachmentColumns+` FROM report_attachments
		WHERE parent_id=$1 AND ($2 = '' OR category=$2)
		ORDER BY category, ordinal, created_at, id
	`, parentID, category)
	if err != nil {
		return nil, fmt.Errorf("select attachments: %w", err)
	}
	atts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Attachment, error) {
		return scanAttachment(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan attachments: %w", err)
	}
	return atts, nil
}

// InsertAttachment stores a new attachment.
func (r *Repository) InsertAttachment(ctx context.Context, a model.Attachment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO report_attachments (`+attachmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, a.ID, a.ParentID, a.Category, a.Ordinal, a.Path, a.FileName, a.Size, a.MimeType,
		a.Description, a.UploadedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// UpdateAttachment writes category, path, ordinal and description together.
func (r *Repository) UpdateAttachment(ctx context.Context, a model.Attachment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE report_attachments
		SET category=$1, ordinal=$2, file_path=$3, description=$4, updated_at=$5
		WHERE id=$6
	`, a.Category, a.Ordinal, a.Path, a.Description, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update attachment: %w", err)
	}
	return affected("attachment", tag.RowsAffected())
}

// DeleteAttachment removes an attachment row.
func (r *Repository) DeleteAttachment(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM report_attachments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return affected("attachment", tag.RowsAffected())
}

// SetOrdinals rewrites ordinals in one transaction.
func (r *Repository) SetOrdinals(ctx context.Context, ordinals map[string]int) error {
	if len(ordinals) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for id, ord := range ordinals {
			batch.Queue(`UPDATE report_attachments SET ordinal=$1 WHERE id=$2`, ord, id)
		}
		results := tx.SendBatch(ctx, batch)
		for range ordinals {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return fmt.Errorf("set ordinal: %w", err)
			}
			if err := affected("attachment", tag.RowsAffected()); err != nil {
				results.Close()
				return err
			}
		}
		return results.Close()
	})
}

// WithCategoryLocks runs fn inside one transaction holding a transaction
// advisory lock per (parent, category), so every API process serializes
// ordinal changes for the pair. fn's store runs on that transaction and
// needs no other pool connection; the locks end at commit or rollback.
func (r *Repository) WithCategoryLocks(ctx context.Context, parentID string, categories []string, fn func(store.AttachmentStore) error) error {
	keys := make([]string, 0, len(categories))
	for _, c := range categories {
		keys = append(keys, "attachments:"+parentID+"/"+c)
	}
	sort.Strings(keys)
	keys = slices.Compact(keys)
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, key := range keys {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		}
		return fn(&Repository{pool: r.pool, db: tx})
	})
}
