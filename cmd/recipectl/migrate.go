package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"recipelens/pkg/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the SQL schema migrations",
	}

	withMigrator := func(fn func(*database.Migrator) error) error {
		mg, err := database.NewMigrator(a.cfg.DB.DSN)
		if err != nil {
			return err
		}
		return errors.Join(fn(mg), mg.Close())
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *database.Migrator) error {
				if err := mg.Up(); err != nil {
					return err
				}
				return printVersion(cmd, mg)
			})
		},
	}

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert every migration (drops all recipe tables)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop the recipe tables without --yes")
			}
			return withMigrator(func(mg *database.Migrator) error {
				if err := mg.Down(); err != nil {
					return err
				}
				return printVersion(cmd, mg)
			})
		},
	}
	down.Flags().BoolVar(&yes, "yes", false, "Confirm dropping all data")

	steps := &cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations, or revert them when N is negative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return fmt.Errorf("N must be a non-zero integer, got %q", args[0])
			}
			return withMigrator(func(mg *database.Migrator) error {
				if err := mg.Steps(n); err != nil {
					return err
				}
				return printVersion(cmd, mg)
			})
		},
	}

	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *database.Migrator) error { return printVersion(cmd, mg) })
		},
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Run the ORM auto-migration and load the sample recipes into an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.DB
			cfg.AutoMigrate = true
			cfg.Seed = false
			store, err := database.Setup(cmd.Context(), cfg, a.log)
			if err != nil {
				return err
			}
			defer database.Close(store)
			n, err := database.SeedIfEmpty(cmd.Context(), store, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d recipes\n", n)
			return nil
		},
	}

	cmd.AddCommand(up, down, steps, ver, seed)
	return cmd
}

func printVersion(cmd *cobra.Command, mg *database.Migrator) error {
	v, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", v)
	return nil
}
