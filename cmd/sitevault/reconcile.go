package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

func newReconcileCmd() *cobra.Command {
	var apiURL, principalID, role string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report failure counters that need operator follow-up",
		Long: `reconcile reads the counters of a running API. A non-zero orphaned move count means an
attachment object was moved but its record still points at the old path; search the API log for
"attachment orphaned after move" to find the paths.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			counters, err := fetchCounters(cmd, strings.TrimRight(apiURL, "/")+"/debug/counters", principalID, role)
			if err != nil {
				return err
			}
			return printCounters(cmd.OutOrStdout(), counters)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Base URL of the SiteVault API")
	cmd.Flags().StringVar(&principalID, "principal", "operator", "Principal id sent in X-Principal-Id")
	cmd.Flags().StringVar(&role, "role", string(model.RoleSystemAdmin), "Administrator role sent in X-Principal-Role")
	return cmd
}

func fetchCounters(cmd *cobra.Command, url, principalID, role string) (map[string]int64, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Principal-Id", principalID)
	req.Header.Set("X-Principal-Role", role)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch counters: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch counters: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var counters map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&counters); err != nil {
		return nil, fmt.Errorf("decode counters: %w", err)
	}
	return counters, nil
}

func printCounters(w io.Writer, counters map[string]int64) error {
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNTER\tVALUE")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, counters[name])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n := counters[telemetry.OrphanedMoves]; n > 0 {
		fmt.Fprintf(w, "\n%d attachment move(s) need reconciliation\n", n)
	}
	return nil
}
