package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/SiteVault/internal/store"
)

// QueryDocuments runs a scope-filtered range query. Identifiers come from
// source definitions and are still quoted; values are always bound.
func (r *Repository) QueryDocuments(ctx context.Context, q store.DocumentQuery) ([]store.Row, error) {
	sql, args := buildDocumentQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", q.Table, err)
	}
	out := make([]store.Row, len(maps))
	for i, m := range maps {
		out[i] = store.Row(m)
	}
	return out, nil
}

func buildDocumentQuery(q store.DocumentQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	ident := func(name string) string { return pgx.Identifier{name}.Sanitize() }

	if q.OrgID != "" && q.OrgColumn != "" {
		where = append(where, ident(q.OrgColumn)+" = "+bind(q.OrgID))
	}
	if q.SiteColumn != "" && !q.AllSites {
		site := ident(q.SiteColumn)
		switch {
		case len(q.Sites) > 0 && q.AllowNull:
			where = append(where, "("+site+" = ANY("+bind(q.Sites)+") OR "+site+" IS NULL)")
		case len(q.Sites) > 0:
			where = append(where, site+" = ANY("+bind(q.Sites)+")")
		case q.AllowNull:
			where = append(where, site+" IS NULL")
		default:
			where = append(where, "FALSE")
		}
	}
	if len(q.Categories) > 0 && q.CategoryColumn != "" {
		where = append(where, ident(q.CategoryColumn)+" = ANY("+bind(q.Categories)+")")
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(ident(q.Table))
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if q.CreatedColumn != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(ident(q.CreatedColumn))
		b.WriteString(" DESC")
		if q.IDColumn != "" {
			b.WriteString(", ")
			b.WriteString(ident(q.IDColumn))
		}
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(bind(q.Limit))
	}
	return b.String(), args
}
