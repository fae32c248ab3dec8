package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qawatch/qawatch/internal/classifier"
	"github.com/qawatch/qawatch/internal/engine"
	"github.com/qawatch/qawatch/internal/monitor"
	"github.com/qawatch/qawatch/internal/slackfeed"
)

var backfillFeedPath string

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay channel history through the linking pipeline",
	Long: `Replay stored channel history through the same classification and
linking pipeline the realtime monitor uses.

Messages are replayed per channel in chronological order, capped by
max_messages_per_channel. Replay is idempotent: messages already
decided are skipped, so running backfill twice over the same history
changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cls, err := classifier.New(&classifier.Config{Model: cfg.Model})
		if err != nil {
			return fmt.Errorf("failed to create classifier: %w", err)
		}

		eng := engine.New(cls, store, cfg)
		history := slackfeed.NewFileFeed(backfillFeedPath)
		bf := monitor.NewBackfill(eng, history, cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nStopping backfill...")
			cancel()
		}()

		stats, err := bf.Run(ctx)
		printStats(stats)
		return err
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFeedPath, "feed", "", "Path to the JSONL history file (required)")
	_ = backfillCmd.MarkFlagRequired("feed")
	rootCmd.AddCommand(backfillCmd)
}
