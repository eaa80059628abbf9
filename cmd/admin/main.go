// Command admin manages administrator flags and expired credentials.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"egaku/internal/bootstrap"
	"egaku/internal/config"
	"egaku/internal/repository"
	"egaku/internal/service"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Egaku administration utilities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newSetAdminCommand("promote", "Grant admin rights to a user", true),
		newSetAdminCommand("demote", "Revoke admin rights from a user", false),
		newListAdminsCommand(),
		newCleanupCommand(),
	)
	return cmd
}

// withRuntime runs fn against an initialized runtime and closes it afterwards.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *bootstrap.Runtime, cfg *config.Config) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()
	return fn(ctx, rt, cfg)
}

func newSetAdminCommand(use, short string, admin bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime, _ *config.Config) error {
				users := repository.NewUserRepository(rt.DB)
				u, err := users.GetByID(ctx, uint(id))
				if err != nil {
					return err
				}
				if u.Admin == admin {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (ID: %d) already has admin=%t\n", u.Account, u.ID, admin)
					return nil
				}
				if err := users.SetAdmin(ctx, u.ID, admin); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (ID: %d) now has admin=%t\n", u.Account, u.ID, admin)
				return nil
			})
		},
	}
}

func newListAdminsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-admins",
		Short: "List every administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime, _ *config.Config) error {
				admins, err := repository.NewUserRepository(rt.DB).ListAdmins(ctx)
				if err != nil {
					return err
				}
				if len(admins) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No admins found")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tACCOUNT\tEMAIL")
				for _, a := range admins {
					fmt.Fprintf(w, "%d\t%s\t%s\n", a.ID, a.Account, a.Email)
				}
				return w.Flush()
			})
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired session tokens and verification codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime, cfg *config.Config) error {
				users := repository.NewUserRepository(rt.DB)
				codes := service.NewVerificationService(users, repository.NewVerificationRepository(rt.DB), nil, cfg.CodeTTL)
				auth := service.NewAuthService(users, repository.NewTokenRepository(rt.DB), codes, cfg.TokenTTL)
				tokens, purged, err := auth.CleanupExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d tokens and %d verification codes\n", tokens, purged)
				return nil
			})
		},
	}
}
