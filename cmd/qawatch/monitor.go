package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qawatch/qawatch/internal/classifier"
	"github.com/qawatch/qawatch/internal/engine"
	"github.com/qawatch/qawatch/internal/monitor"
	"github.com/qawatch/qawatch/internal/slackfeed"
)

var monitorFeedPath string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow a live event feed and link questions to answers",
	Long: `Follow a message event feed and run every message through the
classification and linking pipeline.

Each channel is processed by its own worker, strictly in delivery
order. New messages wait briefly before classification so quick edits
settle first. Stop with Ctrl+C; the message being processed finishes
before shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cls, err := classifier.New(&classifier.Config{Model: cfg.Model})
		if err != nil {
			return fmt.Errorf("failed to create classifier: %w", err)
		}

		eng := engine.New(cls, store, cfg)
		feed := slackfeed.NewFileFeed(monitorFeedPath)
		mon := monitor.New(eng, feed, cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nShutting down, finishing in-flight messages...")
			cancel()
		}()

		stats, err := mon.Run(ctx)
		printStats(stats)
		return err
	},
}

func printStats(stats monitor.Stats) {
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Println()
	fmt.Printf("%s Processed %s messages: %s questions, %s answers, %d ignored\n",
		green("✓"),
		cyan(fmt.Sprintf("%d", stats.Processed)),
		cyan(fmt.Sprintf("%d", stats.Questions)),
		cyan(fmt.Sprintf("%d", stats.Answers)),
		stats.Ignored)
	fmt.Printf("  %s\n", gray(fmt.Sprintf("%d already processed, %d rejected, %d degraded, %d errors",
		stats.Skipped, stats.Rejected, stats.Degraded, stats.Errors)))
}

func init() {
	monitorCmd.Flags().StringVar(&monitorFeedPath, "feed", "", "Path to the JSONL event feed (required)")
	_ = monitorCmd.MarkFlagRequired("feed")
	rootCmd.AddCommand(monitorCmd)
}
