package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/store"
)

const requirementColumns = `id, code, name, description, file_kinds, max_size_bytes, sort_order, active, created_at, updated_at`

// rowQuerier is satisfied by both the pool and a transaction.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanRequirement(row pgx.Row) (model.DocumentRequirement, error) {
	var req model.DocumentRequirement
	err := row.Scan(&req.ID, &req.Code, &req.Name, &req.Description, &req.FileKinds,
		&req.MaxSizeBytes, &req.SortOrder, &req.Active, &req.CreatedAt, &req.UpdatedAt)
	return req, err
}

// LoadRegistry reads the whole catalogue inside one read-only snapshot so
// requirements and mappings are mutually consistent.
func (r *Repository) LoadRegistry(ctx context.Context) (model.RegistryData, error) {
	var data model.RegistryData
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+requirementColumns+` FROM document_requirements`)
		if err != nil {
			return fmt.Errorf("select requirements: %w", err)
		}
		data.Requirements, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DocumentRequirement, error) {
			return scanRequirement(row)
		})
		if err != nil {
			return fmt.Errorf("scan requirements: %w", err)
		}

		rows, err = tx.Query(ctx, `SELECT requirement_id, role, is_required FROM requirement_roles`)
		if err != nil {
			return fmt.Errorf("select role mappings: %w", err)
		}
		data.RoleMappings, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RoleMapping, error) {
			var m model.RoleMapping
			err := row.Scan(&m.RequirementID, &m.Role, &m.IsRequired)
			return m, err
		})
		if err != nil {
			return fmt.Errorf("scan role mappings: %w", err)
		}

		rows, err = tx.Query(ctx, `SELECT requirement_id, site_id, is_required, due_days, notes FROM requirement_site_overrides`)
		if err != nil {
			return fmt.Errorf("select site overrides: %w", err)
		}
		data.SiteOverrides, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.SiteOverride, error) {
			var o model.SiteOverride
			err := row.Scan(&o.RequirementID, &o.SiteID, &o.IsRequired, &o.DueDays, &o.Notes)
			return o, err
		})
		if err != nil {
			return fmt.Errorf("scan site overrides: %w", err)
		}
		return nil
	})
	return data, err
}

// GetRequirement returns a requirement by id, active or not.
func (r *Repository) GetRequirement(ctx context.Context, id string) (model.DocumentRequirement, error) {
	return getRequirement(ctx, r.pool, id)
}

func getRequirement(ctx context.Context, q rowQuerier, id string) (model.DocumentRequirement, error) {
	req, err := scanRequirement(q.QueryRow(ctx, `SELECT `+requirementColumns+` FROM document_requirements WHERE id=$1`, id))
	if err != nil {
		return model.DocumentRequirement{}, notFound("requirement", err)
	}
	return req, nil
}

// RequirementByCode returns the active requirement with code.
func (r *Repository) RequirementByCode(ctx context.Context, code string) (model.DocumentRequirement, error) {
	req, err := scanRequirement(r.pool.QueryRow(ctx,
		`SELECT `+requirementColumns+` FROM document_requirements WHERE code=$1 AND active`, code))
	if err != nil {
		return model.DocumentRequirement{}, notFound("requirement", err)
	}
	return req, nil
}

// InRequirementTx runs fn in one transaction.
func (r *Repository) InRequirementTx(ctx context.Context, fn func(store.RequirementTx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(requirementTx{tx: tx})
	})
}

type requirementTx struct {
	tx pgx.Tx
}

func (t requirementTx) GetRequirement(ctx context.Context, id string) (model.DocumentRequirement, error) {
	req, err := scanRequirement(t.tx.QueryRow(ctx,
		`SELECT `+requirementColumns+` FROM document_requirements WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return model.DocumentRequirement{}, notFound("requirement", err)
	}
	return req, nil
}

func (t requirementTx) ActiveCodeExists(ctx context.Context, code, excludeID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM document_requirements WHERE code=$1 AND active AND id<>$2)
	`, code, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check requirement code: %w", err)
	}
	return exists, nil
}

func (t requirementTx) InsertRequirement(ctx context.Context, req model.DocumentRequirement) error {
	kinds := req.FileKinds
	if kinds == nil {
		kinds = []string{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO document_requirements (`+requirementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, req.ID, req.Code, req.Name, req.Description, kinds, req.MaxSizeBytes, req.SortOrder, req.Active, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert requirement: %w", err)
	}
	return nil
}

func (t requirementTx) UpdateRequirement(ctx context.Context, req model.DocumentRequirement) error {
	kinds := req.FileKinds
	if kinds == nil {
		kinds = []string{}
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE document_requirements
		SET code=$1, name=$2, description=$3, file_kinds=$4, max_size_bytes=$5, sort_order=$6, active=$7, updated_at=$8
		WHERE id=$9
	`, req.Code, req.Name, req.Description, kinds, req.MaxSizeBytes, req.SortOrder, req.Active, req.UpdatedAt, req.ID)
	if err != nil {
		return fmt.Errorf("update requirement: %w", err)
	}
	return affected("requirement", tag.RowsAffected())
}

func (t requirementTx) ReplaceRoleMappings(ctx context.Context, requirementID string, mappings []model.RoleMapping) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM requirement_roles WHERE requirement_id=$1`, requirementID); err != nil {
		return fmt.Errorf("delete role mappings: %w", err)
	}
	if len(mappings) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, []any{requirementID, string(m.Role), m.IsRequired})
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"requirement_roles"},
		[]string{"requirement_id", "role", "is_required"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("insert role mappings: %w", err)
	}
	return nil
}

func (t requirementTx) ReplaceSiteOverrides(ctx context.Context, requirementID string, overrides []model.SiteOverride) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM requirement_site_overrides WHERE requirement_id=$1`, requirementID); err != nil {
		return fmt.Errorf("delete site overrides: %w", err)
	}
	if len(overrides) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(overrides))
	for _, o := range overrides {
		rows = append(rows, []any{requirementID, o.SiteID, o.IsRequired, o.DueDays, o.Notes})
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"requirement_site_overrides"},
		[]string{"requirement_id", "site_id", "is_required", "due_days", "notes"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("insert site overrides: %w", err)
	}
	return nil
}
