package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/easycrawl/catalog-service/config"
	"github.com/easycrawl/catalog-service/internal/app"
	"github.com/easycrawl/catalog-service/internal/database"
)

// needsDB marks commands that connect to the database before running
const needsDB = "needs-db"

var (
	cfgFile    string
	jsonOutput bool
	cfg        *config.Config
	logger     zerolog.Logger
	catalogApp *app.App
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Catalog CLI - product matching and consistency tool",
	Long: `A CLI tool for the product catalog. It matches scraped raw items to
canonical products, repairs and merges existing products, and maintains the
brand and vocabulary registry that drives title extraction.`,
	PersistentPreRunE: persistentPreRun,
	PersistentPostRun: persistentPostRun,
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// persistentPreRun loads the configuration and connects the commands that need a database
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// console output unless json logs were asked for
	logCfg := cfg.Logging
	if logCfg.Format != "json" {
		logCfg.Format = "console"
	}
	logger = logCfg.NewLogger(os.Stderr)

	if cmd.Annotations[needsDB] == "" {
		return nil
	}
	return initDatabase(cmd.Context(), cmd.Annotations[needsDB] == "app")
}

func persistentPostRun(cmd *cobra.Command, args []string) {
	if catalogApp != nil {
		catalogApp.Close()
	}
	database.Close()
}

// initDatabase connects the pool and, when withApp is set, wires the engines
func initDatabase(ctx context.Context, withApp bool) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if err := database.Connect(ctx, cfg.Database.PoolConfig()); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Debug().Msg("Database connected")

	if !withApp {
		return nil
	}
	a, err := app.New(ctx, cfg, database.Pool(), logger)
	if err != nil {
		return err
	}
	catalogApp = a
	return nil
}

func main() {
	// cancelled on SIGINT or SIGTERM so batch jobs stop at the next item
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
