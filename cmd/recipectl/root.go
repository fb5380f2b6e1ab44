package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"recipelens/pkg/config"
	"recipelens/pkg/ingredient"
	"recipelens/pkg/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg *config.Config
	log *slog.Logger

	logLevel string
	dsn      string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "recipectl",
		Short: "Operate a recipelens deployment",
		Long: `recipectl manages the recipe database behind the recipelens API and runs
the recognition pipeline from the command line.

Configuration comes from the same RECIPELENS_* environment variables (and
.env file) the server reads.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if a.dsn != "" {
				cfg.DB.DSN = a.dsn
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			a.cfg = cfg
			// logs go to stderr so command output stays machine readable
			a.log = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			slog.SetDefault(a.log)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.dsn, "dsn", "", "Override the database DSN")

	cmd.AddCommand(
		newMigrateCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newStatusCmd(a),
		newScanCmd(a),
		newWatchCmd(a),
		newTokenCmd(a),
		newHashKeyCmd(),
	)
	return cmd
}

func (a *app) catalog() (*ingredient.Catalog, error) {
	if a.cfg.Ingredient.CatalogPath == "" {
		return ingredient.DefaultCatalog()
	}
	return ingredient.LoadCatalog(a.cfg.Ingredient.CatalogPath)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
