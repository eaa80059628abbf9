// Command seed fills a development database with demo users and submissions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"egaku/internal/bootstrap"
	"egaku/internal/config"
	"egaku/internal/seed"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := seed.DefaultOptions()
	var clean bool

	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Populate the database with generated demo content",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.IsProduction() {
				return errors.New("refusing to seed a production database")
			}

			rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{Migrate: !opts.DryRun})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			s := seed.NewSeeder(rt.DB, opts)
			if clean {
				if err := s.ClearAll(ctx); err != nil {
					return fmt.Errorf("cleanup failed: %w", err)
				}
			}
			res, err := s.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "users=%d articles=%d videos=%d follows=%d comments=%d collections=%d\n",
				len(res.Users), len(res.Articles), len(res.Videos), res.Follows, res.Comments, res.Collections)
			fmt.Fprintf(out, "every seeded account uses the password %q\n", seed.DefaultPassword)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.NumUsers, "users", opts.NumUsers, "Number of users to create")
	f.IntVar(&opts.NumArticles, "articles", opts.NumArticles, "Number of articles to create")
	f.IntVar(&opts.NumVideos, "videos", opts.NumVideos, "Number of videos to create")
	f.Float64Var(&opts.ApprovedRatio, "approved", opts.ApprovedRatio, "Share of submissions created approved")
	f.IntVar(&opts.MaxDays, "max-days", opts.MaxDays, "Spread submit times over this many days")
	f.Int64Var(&opts.Seed, "seed", 0, "Random seed; 0 picks one from the clock")
	f.BoolVar(&opts.DryRun, "dry-run", false, "Generate without writing")
	f.BoolVar(&clean, "clean", true, "Delete existing content before seeding")
	return cmd
}
