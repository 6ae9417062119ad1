package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dharsanguruparan/SiteVault/internal/store"
)

func TestBuildDocumentQuery(t *testing.T) {
	base := store.DocumentQuery{
		Table: "legacy_documents", IDColumn: "id", SiteColumn: "site_id", OrgColumn: "org_id",
		CategoryColumn: "doc_kind", CreatedColumn: "registered_at",
	}
	tests := []struct {
		name     string
		mutate   func(q *store.DocumentQuery)
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "wildcard",
			mutate:  func(q *store.DocumentQuery) { q.AllSites = true },
			wantSQL: `SELECT * FROM "legacy_documents" ORDER BY "registered_at" DESC, "id"`,
		},
		{
			name: "sites with org-wide rows",
			mutate: func(q *store.DocumentQuery) {
				q.OrgID, q.Sites, q.AllowNull = "org-1", []string{"site-1"}, true
			},
			wantSQL:  `SELECT * FROM "legacy_documents" WHERE "org_id" = $1 AND ("site_id" = ANY($2) OR "site_id" IS NULL) ORDER BY "registered_at" DESC, "id"`,
			wantArgs: []any{"org-1", []string{"site-1"}},
		},
		{
			name:    "org-wide only",
			mutate:  func(q *store.DocumentQuery) { q.AllowNull = true },
			wantSQL: `SELECT * FROM "legacy_documents" WHERE "site_id" IS NULL ORDER BY "registered_at" DESC, "id"`,
		},
		{
			name:    "nothing visible",
			mutate:  func(q *store.DocumentQuery) {},
			wantSQL: `SELECT * FROM "legacy_documents" WHERE FALSE ORDER BY "registered_at" DESC, "id"`,
		},
		{
			name: "categories and limit",
			mutate: func(q *store.DocumentQuery) {
				q.AllSites, q.Categories, q.Limit = true, []string{"drawing", "plan"}, 50
			},
			wantSQL:  `SELECT * FROM "legacy_documents" WHERE "doc_kind" = ANY($1) ORDER BY "registered_at" DESC, "id" LIMIT $2`,
			wantArgs: []any{[]string{"drawing", "plan"}, 50},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := base
			tt.mutate(&q)
			sql, args := buildDocumentQuery(q)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildDocumentQueryQuotesIdentifiers(t *testing.T) {
	sql, _ := buildDocumentQuery(store.DocumentQuery{Table: `docs"; DROP TABLE x; --`, AllSites: true})
	assert.Equal(t, `SELECT * FROM "docs""; DROP TABLE x; --"`, sql)
}
