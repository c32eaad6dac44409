package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run an ad-hoc read query against the warehouse",
	Long: `Executes a single SQL statement against the configured warehouse and
prints the result as tab-separated lines under a header row. Intended for exploring
materialized models, not for running transforms.

Examples:
  flux query 'SELECT * FROM "silver"."orders" LIMIT 10'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wh, err := openWarehouse(rootCtx, true)
		if err != nil {
			return err
		}
		defer func() { _ = wh.Close() }()

		rows, err := wh.Execute(rootCtx, args[0])
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		printRows(rows.Columns, rows.Data)
		return nil
	},
}

func printRows(columns []string, data [][]any) {
	if len(columns) == 0 {
		return
	}
	fmt.Println(strings.Join(columns, "\t"))
	for _, row := range data {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	fmt.Printf("(%d rows)\n", len(data))
}
