package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/qawatch/qawatch/internal/export"
)

var (
	faqChannel   string
	faqSince     string
	faqUntil     string
	faqLimit     int
	faqMinAnswer int
	faqOutput    string
)

var faqCmd = &cobra.Command{
	Use:   "faq",
	Short: "Generate a markdown FAQ from stored pairs",
	Long: `Render linked question/answer pairs as a markdown FAQ document,
grouped by topic with a table of contents.

Examples:
  qawatch faq > FAQ.md
  qawatch faq --channel C123 --output faq.md
  qawatch faq --since 2026-08-01 --min-answer-length 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := export.FAQOptions{
			ChannelID:       faqChannel,
			Limit:           faqLimit,
			MinAnswerLength: faqMinAnswer,
		}

		var err error
		if opts.Since, err = parseTimeFlag(faqSince); err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		if opts.Until, err = parseTimeFlag(faqUntil); err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}

		var out io.Writer = os.Stdout
		if faqOutput != "" {
			f, err := os.Create(faqOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		n, err := export.WriteFAQ(context.Background(), store, out, opts)
		if err != nil {
			return err
		}
		if faqOutput != "" {
			fmt.Printf("Wrote FAQ with %d pair(s) to %s\n", n, faqOutput)
		}
		return nil
	},
}

func init() {
	faqCmd.Flags().StringVar(&faqChannel, "channel", "", "Only pairs from this channel")
	faqCmd.Flags().StringVar(&faqSince, "since", "", "Only pairs at or after this time (RFC3339 or YYYY-MM-DD)")
	faqCmd.Flags().StringVar(&faqUntil, "until", "", "Only pairs before this time (RFC3339 or YYYY-MM-DD)")
	faqCmd.Flags().IntVar(&faqLimit, "limit", 0, "Maximum pairs to consider (0 = default)")
	faqCmd.Flags().IntVar(&faqMinAnswer, "min-answer-length", 0, "Skip answers shorter than this many characters (0 = default)")
	faqCmd.Flags().StringVarP(&faqOutput, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(faqCmd)
}
