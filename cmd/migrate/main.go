// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"fmt"
	"os"

	"egaku/internal/config"
	"egaku/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply, roll back and inspect schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newUpCommand(), newDownCommand(), newStatusCommand())
	return cmd
}

// connect loads config and opens the database without touching Redis.
func connect() (*gorm.DB, string, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, "", fmt.Errorf("connect database: %w", err)
	}
	return db, cfg.DBDriver, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, driver, err := connect()
			if err != nil {
				return err
			}
			applied, err := database.MigrateUp(commandContext(cmd), db, driver)
			if err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %05d\n", v)
			}
			return nil
		},
	}
}

func newDownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, driver, err := connect()
			if err != nil {
				return err
			}
			v, err := database.MigrateDown(commandContext(cmd), db, driver)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %05d\n", v)
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, driver, err := connect()
			if err != nil {
				return err
			}
			states, err := database.MigrationStatus(commandContext(cmd), db, driver)
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			for _, s := range states {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%05d  %s\n", s.Version, state)
			}
			return nil
		},
	}
}
