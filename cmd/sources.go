package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlawson/cload/internal/cli"
	"github.com/dlawson/cload/internal/config"
	"github.com/dlawson/cload/internal/db"
	"github.com/dlawson/cload/internal/extract"
	"github.com/dlawson/cload/internal/logging"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List known sources and their tracked-file counts",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
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

	counts := make(map[string]int64)
	rows, err := manager.Query(cmd.Context(),
		"SELECT source, COUNT(*) FROM etl_file_state GROUP BY source")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return err
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return err
	}

	table := cli.Table{
		Title:   "Sources",
		Headers: []string{"Source", "Tracked Files"},
	}
	for _, name := range extract.SourceNames() {
		table.Rows = append(table.Rows, []string{name, cli.FormatNumber(counts[name])})
	}

	fmt.Println(cli.RenderTable(table))
	return nil
}
