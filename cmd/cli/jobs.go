package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/easycrawl/catalog-service/internal/jobs"
)

var jobHelp = map[jobs.Type]struct {
	short   string
	example string
	aliases []string
}{
	jobs.TypeMatch: {
		short:   "Match unprocessed raw items to products",
		example: "  catalog match\n  catalog match smartphones",
	},
	jobs.TypeRetryUnmappable: {
		short:   "Retry raw items that previously could not be matched",
		example: "  catalog retry",
		aliases: []string{"retry"},
	},
	jobs.TypeConsistency: {
		short:   "Re-extract brands and merge similar products",
		example: "  catalog consistency\n  catalog consistency brands,categories\n  catalog consistency all",
	},
	jobs.TypeCleanup: {
		short:   "Rebuild names, merge duplicates and infer categories",
		example: "  catalog cleanup\n  catalog cleanup names,duplicates",
	},
	jobs.TypeMineBrands: {
		short:   "Propose brand candidates from unmappable titles",
		example: "  catalog mine-brands\n  catalog mine-brands 5",
	},
	jobs.TypeRefreshRegistry: {
		short:   "Reload the registry snapshot",
		example: "  catalog refresh-registry",
	},
}

func init() {
	for _, t := range jobs.Types {
		help := jobHelp[t]
		jobType := t
		rootCmd.AddCommand(&cobra.Command{
			Use:         string(jobType) + " [parameters]",
			Aliases:     help.aliases,
			Short:       help.short,
			Example:     help.example,
			Args:        cobra.MaximumNArgs(1),
			Annotations: map[string]string{needsDB: "app"},
			RunE: func(cmd *cobra.Command, args []string) error {
				var params string
				if len(args) == 1 {
					params = args[0]
				}
				res, err := catalogApp.Runner.Run(cmd.Context(), jobType, params)
				if res != nil {
					if perr := printResult(res); perr != nil {
						return perr
					}
				}
				return err
			},
		})
	}
}

func printResult(res *jobs.Result) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("Run %s (%s) finished in %s\n", res.RunID, res.Type, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	fmt.Println(res.Summary)

	if len(res.Counts) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COUNT\tVALUE")
		fmt.Fprintln(w, "-----\t-----")
		for _, k := range sortedKeys(res.Counts) {
			fmt.Fprintf(w, "%s\t%d\n", k, res.Counts[k])
		}
		w.Flush()
	}

	if len(res.Errors) > 0 {
		fmt.Printf("\n%d errors:\n", len(res.Errors))
		keys := make([]string, 0, len(res.Errors))
		for k := range res.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, res.Errors[k])
		}
	}
	if res.Error != "" {
		fmt.Println(strings.Repeat("-", 40))
		fmt.Println("Run failed:", res.Error)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
