package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/easycrawl/catalog-service/internal/database"
	"github.com/easycrawl/catalog-service/internal/rawimport"
	"github.com/easycrawl/catalog-service/internal/sheet"
)

var (
	importConfigCode  string
	importWebsiteCode string
	importBatchSize   int
)

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Create or update the catalog tables",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsDB: "db"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(cmd.Context(), database.Pool()); err != nil {
			return err
		}
		logger.Info().Msg("Schema applied")
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:     "schema",
	Short:   "Print the DDL applied by migrate",
	Example: "  catalog schema | psql \"$DATABASE_URL\"",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), database.Schema())
		return err
	},
}

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage product categories",
}

var categoryAddCmd = &cobra.Command{
	Use:         "add <code> <name>",
	Short:       "Create a category or rename an existing one",
	Example:     "  catalog category add smartphones \"Mobile phones\"",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{needsDB: "db"},
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := database.UpsertCategory(cmd.Context(), database.Pool(), args[0], args[1])
		if err != nil {
			return err
		}
		logger.Info().Int64("id", id).Str("code", args[0]).Msg("Category saved")
		return nil
	},
}

var importRawCmd = &cobra.Command{
	Use:   "import-raw <file>",
	Short: "Load scraped items from a CSV or XLSX sheet",
	Long: `Load scraped items from a sheet into the raw item queue. The sheet needs a
title column; price, old_price, discount, source_url, config_code and
website_code are optional and fall back to the flags.`,
	Example:     "  catalog import-raw phones.csv --config-code smartphones/samsung --website-code shopa",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsDB: "app"},
	RunE:        runImportRaw,
}

func init() {
	rootCmd.AddCommand(migrateCmd, schemaCmd, categoryCmd, importRawCmd)
	categoryCmd.AddCommand(categoryAddCmd)

	importRawCmd.Flags().StringVar(&importConfigCode, "config-code", "", "scraper config code for rows without one")
	importRawCmd.Flags().StringVar(&importWebsiteCode, "website-code", "", "website code for rows without one")
	importRawCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "rows inserted per statement (default 500)")
}

func runImportRaw(cmd *cobra.Command, args []string) error {
	format, err := sheet.FormatFromFilename(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	res, err := catalogApp.Importer.Import(cmd.Context(), data, format, rawimport.Options{
		ConfigCode:  importConfigCode,
		WebsiteCode: importWebsiteCode,
		BatchSize:   importBatchSize,
	})
	if err != nil {
		return err
	}
	for _, re := range res.Errors {
		logger.Warn().Int("row", re.Row).Msg(re.Message)
	}
	logger.Info().Int("rows", res.Rows).Int("inserted", res.Inserted).Int("rejected", len(res.Errors)).Msg("Raw items imported")
	return nil
}
