package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NordicHPC/sonar/api"
	"github.com/NordicHPC/sonar/internal/aggregate"
	"github.com/NordicHPC/sonar/internal/config"
	"github.com/NordicHPC/sonar/internal/db"
	"github.com/NordicHPC/sonar/internal/mapping"
	"github.com/NordicHPC/sonar/internal/report"
	"github.com/NordicHPC/sonar/internal/snapshot"
)

var (
	// Export flags
	outputFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "sonar",
		Short:         "Application usage reports from process-utilization snapshots",
		Long:          `Classify process snapshots collected across compute nodes into applications and report CPU load and reserved cores per application and user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("input-dir", ".", "Directory with snapshot files")
	flags.String("input-suffix", ".tsv", "Snapshot file suffix")
	flags.String("input-delimiter", "\t", "Snapshot column delimiter")
	flags.String("string-map-file", "", "Exact process-to-app mapping file")
	flags.String("regex-map-file", "", "Pattern process-to-app mapping file")
	flags.String("default-category", "UNKNOWN", "Label for processes matching no rule")
	flags.Float64("cutoff", 0.5, "Percentage cutoff for report rows")
	flags.Int("retention-days", 0, "Only bucket daily load this many days back (0 = unlimited)")

	for key, flag := range map[string]string{
		"input_dir":         "input-dir",
		"input_suffix":      "input-suffix",
		"input_delimiter":   "input-delimiter",
		"string_map_file":   "string-map-file",
		"regex_map_file":    "regex-map-file",
		"default_category":  "default-category",
		"percentage_cutoff": "cutoff",
		"retention_days":    "retention-days",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			log.Fatalf("Failed to bind flag %s: %v", flag, err)
		}
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the ranked usage summary",
		RunE:  runReport,
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the calendar rollup as a delimited table",
		RunE:  runExport,
	}
	exportCmd.Flags().String("granularity", "daily", "Bucket width: daily, weekly, or monthly")
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default stdout)")
	if err := viper.BindPFlag("granularity", exportCmd.Flags().Lookup("granularity")); err != nil {
		log.Fatalf("Failed to bind flag granularity: %v", err)
	}

	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Persist the run's usage totals and daily load to Postgres",
		RunE:  runStore,
	}
	storeCmd.Flags().String("database-url", "", "Postgres connection URL")
	if err := viper.BindPFlag("database_url", storeCmd.Flags().Lookup("database-url")); err != nil {
		log.Fatalf("Failed to bind flag database-url: %v", err)
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run's reports over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().String("address", ":8080", "Listen address")
	if err := viper.BindPFlag("server_address", serveCmd.Flags().Lookup("address")); err != nil {
		log.Fatalf("Failed to bind flag address: %v", err)
	}

	rootCmd.AddCommand(reportCmd, exportCmd, storeCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

// runPipeline loads the rule set, reads the snapshot directory, and
// aggregates one run.
func runPipeline(cfg *config.Config) (*aggregate.Accumulator, error) {
	rules := mapping.LoadRuleSet(cfg.StringMapFile, cfg.RegexMapFile)
	classifier := mapping.NewClassifier(rules, cfg.DefaultCategory)

	records, err := snapshot.ReadDir(cfg.InputDir, cfg.InputSuffix, cfg.Delimiter())
	if err != nil {
		return nil, err
	}

	return aggregate.Aggregate(records, classifier, aggregate.Options{
		RetentionDays: cfg.RetentionDays,
	}), nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	acc, err := runPipeline(cfg)
	if err != nil {
		return err
	}

	return report.WriteSummary(os.Stdout, report.Summarize(acc, cfg.PercentageCutoff))
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Reject a bad granularity before reading any input.
	granularity, err := report.ParseGranularity(cfg.Granularity)
	if err != nil {
		return err
	}

	acc, err := runPipeline(cfg)
	if err != nil {
		return err
	}

	out := os.Stdout
	if outputFile != "" && outputFile != "-" {
		out, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file %s: %w", outputFile, err)
		}
		defer out.Close()
	}

	return report.WriteRollup(out, report.Rollup(acc, granularity, cfg.DefaultCategory), cfg.Delimiter())
}

func runStore(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	acc, err := runPipeline(cfg)
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return db.NewRepository(pool).StoreRun(acc)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	acc, err := runPipeline(cfg)
	if err != nil {
		return err
	}

	router := api.SetupRouter(acc, cfg)
	return router.Run(cfg.ServerAddress)
}
