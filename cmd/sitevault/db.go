package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/attachment"
	"github.com/dharsanguruparan/SiteVault/internal/config"
	"github.com/dharsanguruparan/SiteVault/internal/database"
	"github.com/dharsanguruparan/SiteVault/internal/logging"
	"github.com/dharsanguruparan/SiteVault/internal/model"
	"github.com/dharsanguruparan/SiteVault/internal/registry"
	"github.com/dharsanguruparan/SiteVault/internal/repository"
	"github.com/dharsanguruparan/SiteVault/internal/s3storage"
	"github.com/dharsanguruparan/SiteVault/internal/scope"
)

// withRepository connects to the configured database for the duration of fn.
func withRepository(ctx context.Context, fn func(*repository.Repository, *config.Config, *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StorageBackend != config.BackendPostgres {
		return fmt.Errorf("set %sSTORAGE_BACKEND=postgres and %sDATABASE_URL", config.Prefix, config.Prefix)
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()
	pool, err := database.Connect(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(repository.New(pool), cfg, log)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("%sDATABASE_URL is not set", config.Prefix)
			}
			pool, err := database.Connect(ctx, cfg.DatabaseURL, 2)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func newPrincipalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principals",
		Short: "Seed principals and site assignments",
	}

	var p model.Principal
	var role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create or replace a principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Role = model.Role(role)
			if p.ID == "" || !p.Role.Valid() {
				return fmt.Errorf("--id and a valid --role are required")
			}
			p.IsRestricted = p.RestrictedOrgID != ""
			return withRepository(cmd.Context(), func(repo *repository.Repository, _ *config.Config, _ *zap.Logger) error {
				return repo.PutPrincipal(cmd.Context(), p)
			})
		},
	}
	add.Flags().StringVar(&p.ID, "id", "", "Principal id")
	add.Flags().StringVar(&role, "role", "", "Role (worker, site_manager, customer_manager, admin, system_admin)")
	add.Flags().StringVar(&p.OrganizationID, "org", "", "Organization id")
	add.Flags().StringVar(&p.RestrictedOrgID, "restricted-org", "", "Bind the principal to this organization in restricted mode")

	var a model.SiteAssignment
	assign := &cobra.Command{
		Use:   "assign",
		Short: "Assign a principal to a site",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.PrincipalID == "" || a.SiteID == "" || a.OrgID == "" {
				return fmt.Errorf("--id, --site and --org are required")
			}
			return withRepository(cmd.Context(), func(repo *repository.Repository, _ *config.Config, _ *zap.Logger) error {
				return repo.AssignSite(cmd.Context(), a)
			})
		},
	}
	assign.Flags().StringVar(&a.PrincipalID, "id", "", "Principal id")
	assign.Flags().StringVar(&a.SiteID, "site", "", "Site id")
	assign.Flags().StringVar(&a.OrgID, "org", "", "Organization owning the site")

	cmd.AddCommand(add, assign)
	return cmd
}

func newRequirementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requirements",
		Short: "Inspect the requirement registry",
	}
	var role, site string
	list := &cobra.Command{
		Use:   "list",
		Short: "List active requirements as resolved for a role and site",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.Role(role).Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			return withRepository(cmd.Context(), func(repo *repository.Repository, _ *config.Config, log *zap.Logger) error {
				reqs, err := registry.New(repo, nil, nil, log).ListActive(cmd.Context(), model.Role(role), site)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tNAME\tREQUIRED\tDUE DAYS")
				for _, r := range reqs {
					due := "-"
					if r.DueDays != nil {
						due = fmt.Sprint(*r.DueDays)
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", r.Code, r.Name, r.IsRequired, due)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&role, "role", string(model.RoleWorker), "Role to resolve for")
	list.Flags().StringVar(&site, "site", "", "Site whose overrides apply")
	cmd.AddCommand(list)
	return cmd
}

func newAttachmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attachments",
		Short: "Repair attachment ordering",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resequence <parent-id> <category>",
		Short: "Rewrite the ordinals of one category to 0..n-1",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd.Context(), func(repo *repository.Repository, cfg *config.Config, log *zap.Logger) error {
				objects, err := s3storage.New(cfg)
				if err != nil {
					return err
				}
				mgr := attachment.NewManager(repo, objects, scope.NewResolver(repo, log),
					attachment.Options{Categories: cfg.AttachmentCategories}, log)
				if err := mgr.Resequence(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "resequenced %s/%s\n", args[0], args[1])
				return nil
			})
		},
	})
	return cmd
}
