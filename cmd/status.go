package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlawson/cload/internal/cli"
	"github.com/dlawson/cload/internal/config"
	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/logging"
)

var flagStatusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent ETL runs",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&flagStatusLimit, "limit", "n", 20, "Number of runs to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logging.Setup(flagVerbose)

	dbPath := flagDB
	if dbPath == "" {
		fileCfg, err := config.Load()
		if err != nil {
			return err
		}
		dbPath = fileCfg.General.DBPath
	}

	manager, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	rows, err := manager.Query(cmd.Context(), `
		SELECT run_timestamp, source, files_processed, records_inserted,
		       errors_count, duration_seconds, status
		FROM etl_runs
		ORDER BY id DESC
		LIMIT ?`, flagStatusLimit)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	table := cli.Table{
		Title:   "Recent ETL Runs",
		Headers: []string{"When", "Source", "Files", "Records", "Errors", "Duration", "Status"},
	}

	for rows.Next() {
		var (
			stamp, source, status string
			files, records, errs  int64
			durationSecs          float64
		)
		if err := rows.Scan(&stamp, &source, &files, &records, &errs, &durationSecs, &status); err != nil {
			return err
		}

		when := stamp
		if t, err := time.Parse(time.RFC3339, stamp); err == nil {
			when = t.Local().Format("2006-01-02 15:04")
		}

		table.Rows = append(table.Rows, []string{
			when, source,
			cli.FormatNumber(files),
			cli.FormatNumber(records),
			cli.FormatNumber(errs),
			cli.FormatDuration(time.Duration(durationSecs * float64(time.Second))),
			cli.RenderStatus(status),
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(table.Rows) == 0 {
		fmt.Println("No ETL runs recorded yet.")
		return nil
	}

	fmt.Println(cli.RenderTable(table))
	return nil
}
