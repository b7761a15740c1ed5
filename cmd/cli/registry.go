package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/easycrawl/catalog-service/internal/database"
	"github.com/easycrawl/catalog-service/internal/registry"
	"github.com/easycrawl/catalog-service/internal/sheet"
)

var showDisabled bool

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and maintain the brand and vocabulary registry",
}

var registryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert registry entries from a CSV or XLSX sheet",
	Long: `Upsert registry entries from a sheet with the columns type, key, value
and enabled. Rows are unique on (type, key); existing rows are updated.
Every running service is told to reload its registry snapshot.`,
	Example:     "  catalog registry import brands.xlsx",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsDB: "app"},
	RunE:        runRegistryImport,
}

var registryRefreshCmd = &cobra.Command{
	Use:         "refresh",
	Short:       "Tell every running service to reload its registry snapshot",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsDB: "app"},
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := catalogApp.Writer.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info().Int64("version", snap.Version()).Interface("counts", snap.Counts()).Msg("Registry refreshed")
		return nil
	},
}

var registryShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "List registry entries",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsDB: "db"},
	RunE:        runRegistryShow,
}

func init() {
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryImportCmd, registryRefreshCmd, registryShowCmd)

	registryShowCmd.Flags().BoolVar(&showDisabled, "all", false, "include disabled entries such as unreviewed brand candidates")
}

func runRegistryImport(cmd *cobra.Command, args []string) error {
	format, err := sheet.FormatFromFilename(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	entries, rowErrs, err := registry.ParseEntries(data, format)
	if err != nil {
		return err
	}
	for _, re := range rowErrs {
		logger.Warn().Int("row", re.Row).Msg(re.Message)
	}

	written, err := catalogApp.Writer.Import(cmd.Context(), entries)
	if err != nil {
		return err
	}
	logger.Info().
		Str("file", filepath.Base(args[0])).
		Int("written", written).
		Int("rejected", len(rowErrs)).
		Int64("version", catalogApp.Cache.Snapshot().Version()).
		Msg("Registry imported")
	return nil
}

func runRegistryShow(cmd *cobra.Command, args []string) error {
	store := database.NewRegistryStore(database.Pool())

	var (
		entries []registry.Entry
		err     error
	)
	if showDisabled {
		entries, err = store.ListAll(cmd.Context())
	} else {
		entries, err = store.LoadEnabled(cmd.Context())
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tKEY\tVALUE\tENABLED")
	fmt.Fprintln(w, "----\t---\t-----\t-------")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", e.Type, e.Key, e.Value, e.Enabled)
	}
	w.Flush()
	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}
