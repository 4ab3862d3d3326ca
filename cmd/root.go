// Package cmd implements the cload command-line interface.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dlawson/cload/internal/cli"
	"github.com/dlawson/cload/internal/config"
	"github.com/dlawson/cload/internal/etl"
	"github.com/dlawson/cload/internal/logging"
)

var (
	flagSource    string
	flagDB        string
	flagForce     bool
	flagSources   string
	flagDryRun    bool
	flagVerbose   bool
	flagBatchSize int
)

var rootCmd = &cobra.Command{
	Use:   "cload",
	Short: "Load Claude Code session artifacts into SQLite",
	Long: "cload ingests the local Claude Code session store (conversations, todos,\n" +
		"file snapshots, shell captures, history, plans) into one relational\n" +
		"database, incrementally and idempotently.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runETL,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagSource, "source", "s", "", "Source directory (default ~/.claude)")
	rootCmd.PersistentFlags().StringVarP(&flagDB, "db", "d", "", "Database path (default ~/.local/share/claude/conversations.db)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().BoolVar(&flagForce, "force", false, "Re-process all files (ignore incremental state)")
	rootCmd.Flags().StringVar(&flagSources, "sources", "", "Comma-separated subset of sources to extract")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Count records without inserting into the database")
	rootCmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "Rows per insert transaction")
}

// resolveConfig merges flags over the TOML config over built-in defaults.
func resolveConfig() (etl.Config, error) {
	fileCfg, err := config.Load()
	if err != nil {
		return etl.Config{}, err
	}

	cfg := etl.Config{
		Source:    fileCfg.General.SourceDir,
		DB:        fileCfg.General.DBPath,
		Sources:   fileCfg.General.Sources,
		BatchSize: fileCfg.General.BatchSize,
		Force:     flagForce,
		DryRun:    flagDryRun,
	}

	if flagSource != "" {
		cfg.Source = flagSource
	}
	if flagDB != "" {
		cfg.DB = flagDB
	}
	if flagSources != "" {
		cfg.Sources = nil
		for _, name := range strings.Split(flagSources, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Sources = append(cfg.Sources, name)
			}
		}
	}
	if flagBatchSize > 0 {
		cfg.BatchSize = flagBatchSize
	}

	return cfg, nil
}

func runETL(cmd *cobra.Command, args []string) error {
	logging.Setup(flagVerbose)

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	summary, err := etl.Run(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	fmt.Println(renderSummary(summary))

	// Data-quality errors are reported, not fatal; a source that could
	// not run at all is an infrastructure failure.
	if summary.Failed() {
		return fmt.Errorf("one or more sources failed")
	}
	return nil
}

func renderSummary(summary *etl.Summary) string {
	table := cli.Table{
		Title:   "ETL Summary",
		Headers: []string{"Source", "Files", "Records", "Skipped", "Errors", "Duration", "Status"},
	}

	for _, r := range summary.Results {
		table.Rows = append(table.Rows, []string{
			r.Name,
			cli.FormatNumber(int64(r.Stats.FilesProcessed)),
			cli.FormatNumber(r.Stats.RecordsInserted),
			cli.FormatNumber(int64(r.Stats.RecordsSkipped)),
			cli.FormatNumber(int64(r.Stats.Errors)),
			cli.FormatDuration(r.Duration),
			cli.RenderStatus(r.Status),
		})
	}

	totals := summary.Totals()
	table.Rows = append(table.Rows, []string{
		"total",
		cli.FormatNumber(int64(totals.FilesProcessed)),
		cli.FormatNumber(totals.RecordsInserted),
		cli.FormatNumber(int64(totals.RecordsSkipped)),
		cli.FormatNumber(int64(totals.Errors)),
		"",
		"",
	})

	out := cli.RenderTable(table)
	if summary.DryRun {
		out += "\n  (dry run - no data committed)\n"
	}
	return out
}
