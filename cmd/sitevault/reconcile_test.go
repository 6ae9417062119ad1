package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

func TestReconcilePrintsCounters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/debug/counters", r.URL.Path)
		assert.Equal(t, "operator", r.Header.Get("X-Principal-Id"))
		assert.Equal(t, "system_admin", r.Header.Get("X-Principal-Role"))
		w.Write([]byte(`{"attachment.move.orphaned":2,"aggregate.partial":0}`))
	}))
	defer srv.Close()

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"reconcile", "--api", srv.URL + "/"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), telemetry.OrphanedMoves)
	assert.Contains(t, out.String(), "2 attachment move(s) need reconciliation")
}

func TestReconcileReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	_, err := fetchCounters(cmd, srv.URL+"/debug/counters", "operator", "admin")
	assert.ErrorContains(t, err, "502")
}
