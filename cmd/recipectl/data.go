package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"recipelens/models"
	"recipelens/pkg/database"
	"recipelens/pkg/recipeio"
)

func newImportCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load recipes from an .xlsx, .parquet or .yaml file into the database",
		Example: `  recipectl import recipes.xlsx
  recipectl import --dry-run dump.parquet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipes, err := recipeio.ReadFile(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d recipes read from %s (dry run)\n", len(recipes), args[0])
				return nil
			}
			if a.cfg.DB.DSN == "" {
				return fmt.Errorf("db.dsn is not set")
			}
			cfg := a.cfg.DB
			cfg.Seed = false
			store, err := database.Setup(cmd.Context(), cfg, a.log)
			if err != nil {
				return err
			}
			defer database.Close(store)
			if err := store.Insert(cmd.Context(), recipes); err != nil {
				return err
			}
			a.log.Info("recipes imported", "file", args[0], "count", len(recipes))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d recipes\n", len(recipes))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse the file without writing to the database")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write every stored recipe to an .xlsx or .parquet file",
		Long: `Writes every stored recipe to FILE. Without a configured database the
built-in sample recipes are exported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := database.OpenStore(cmd.Context(), a.cfg.DB, a.log)
			if err != nil {
				return err
			}
			defer closeStore()

			recipes, err := collect(cmd.Context(), store.Scan)
			if err != nil {
				return err
			}
			if err := recipeio.WriteFile(args[0], recipes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d recipes to %s\n", len(recipes), args[0])
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report table sizes and corpus coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DB.DSN == "" {
				return fmt.Errorf("db.dsn is not set")
			}
			db, err := database.OpenSQL(a.cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			rep, err := database.BuildReport(cmd.Context(), db)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			return printReport(cmd, rep)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, rep *database.Report) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS")
	for _, t := range rep.Tables {
		fmt.Fprintf(tw, "%s\t%d\n", t.Table, t.Rows)
	}
	fmt.Fprintln(tw, "\nCUISINE\tRECIPES")
	for _, c := range rep.Cuisines {
		name := c.Cuisine
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(tw, "%s\t%d\n", name, c.Recipes)
	}
	fmt.Fprintln(tw, "\nSOURCE\tRECIPES")
	for _, s := range rep.Sources {
		fmt.Fprintf(tw, "%s\t%d\n", s.Source, s.Recipes)
	}
	fmt.Fprintln(tw, "\nNUTRITION GAPS\tRECIPES")
	fmt.Fprintf(tw, "no nutrition\t%d\n", rep.Nulls.WithoutNutrition)
	fmt.Fprintf(tw, "no calories\t%d\n", rep.Nulls.WithoutCalories)
	fmt.Fprintf(tw, "no sodium\t%d\n", rep.Nulls.WithoutSodium)
	return tw.Flush()
}

// collect gathers everything a Scan yields.
func collect(ctx context.Context, scan func(context.Context, func(*models.Recipe) error) error) ([]models.Recipe, error) {
	var out []models.Recipe
	err := scan(ctx, func(r *models.Recipe) error {
		out = append(out, *r)
		return nil
	})
	return out, err
}
