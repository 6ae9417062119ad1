package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sitevault: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitevault",
		Short: "SiteVault operator CLI",
		Long: `SiteVault CLI applies the database schema, seeds principals, inspects the requirement
registry, reports reconciliation counters and drives the local development stack.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newMigrateCmd(),
		newPrincipalsCmd(),
		newRequirementsCmd(),
		newAttachmentsCmd(),
		newReconcileCmd(),
		newStackCmd(),
	)
	return cmd
}
