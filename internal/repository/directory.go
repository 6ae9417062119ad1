package repository

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/SiteVault/internal/model"
)

// GetPrincipal returns a principal by id.
func (r *Repository) GetPrincipal(ctx context.Context, id string) (model.Principal, error) {
	var (
		p          model.Principal
		org        *string
		restricted *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, role, organization_id, is_restricted, restricted_org_id
		FROM principals WHERE id=$1
	`, id).Scan(&p.ID, &p.Role, &org, &p.IsRestricted, &restricted)
	if err != nil {
		return model.Principal{}, notFound("principal", err)
	}
	if org != nil {
		p.OrganizationID = *org
	}
	if restricted != nil {
		p.RestrictedOrgID = *restricted
	}
	return p, nil
}

// SiteAssignments lists the sites assigned to principalID.
func (r *Repository) SiteAssignments(ctx context.Context, principalID string) ([]model.SiteAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT principal_id, site_id, org_id FROM site_assignments
		WHERE principal_id=$1 ORDER BY site_id
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("select site assignments: %w", err)
	}
	defer rows.Close()
	var out []model.SiteAssignment
	for rows.Next() {
		var a model.SiteAssignment
		if err := rows.Scan(&a.PrincipalID, &a.SiteID, &a.OrgID); err != nil {
			return nil, fmt.Errorf("scan site assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PutPrincipal inserts or replaces a principal. Used by operator tooling to
// seed local stacks.
func (r *Repository) PutPrincipal(ctx context.Context, p model.Principal) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO principals (id, role, organization_id, is_restricted, restricted_org_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE SET role=EXCLUDED.role, organization_id=EXCLUDED.organization_id,
			is_restricted=EXCLUDED.is_restricted, restricted_org_id=EXCLUDED.restricted_org_id
	`, p.ID, p.Role, p.OrganizationID, p.IsRestricted, p.RestrictedOrgID)
	if err != nil {
		return fmt.Errorf("upsert principal: %w", err)
	}
	return nil
}

// AssignSite records a site assignment.
func (r *Repository) AssignSite(ctx context.Context, a model.SiteAssignment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO site_assignments (principal_id, site_id, org_id) VALUES ($1, $2, $3)
		ON CONFLICT (principal_id, site_id) DO UPDATE SET org_id=EXCLUDED.org_id
	`, a.PrincipalID, a.SiteID, a.OrgID)
	if err != nil {
		return fmt.Errorf("upsert site assignment: %w", err)
	}
	return nil
}
