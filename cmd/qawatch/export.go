package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qawatch/qawatch/internal/export"
)

var (
	exportFormat  string
	exportChannel string
	exportSince   string
	exportUntil   string
	exportLimit   int
	exportOutput  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored question/answer pairs",
	Long: `Export linked question/answer pairs as CSV or JSON.

Examples:
  qawatch export --format csv > pairs.csv
  qawatch export --format json --channel C123 --since 2026-08-01
  qawatch export --output pairs.csv --limit 500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := export.Options{
			Format:    export.Format(exportFormat),
			ChannelID: exportChannel,
			Limit:     exportLimit,
		}

		var err error
		if opts.Since, err = parseTimeFlag(exportSince); err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		if opts.Until, err = parseTimeFlag(exportUntil); err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}

		var out io.Writer = os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		n, err := export.Write(context.Background(), store, out, opts)
		if err != nil {
			return err
		}
		if exportOutput != "" {
			fmt.Printf("Exported %d pair(s) to %s\n", n, exportOutput)
		}
		return nil
	},
}

// parseTimeFlag accepts RFC3339 or a bare date
func parseTimeFlag(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD (got %q)", v)
	}
	return t, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv or json")
	exportCmd.Flags().StringVar(&exportChannel, "channel", "", "Only pairs from this channel")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Only pairs at or after this time (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportUntil, "until", "", "Only pairs before this time (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum pairs to export (0 = default)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
