package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored question/answer statistics",
	Long:  `Display counts of stored questions, answers, pairs, and processed messages.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		stats, err := store.GetStatistics(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get statistics: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== qawatch Status ==="))

		fmt.Printf("%s\n", yellow("Questions:"))
		fmt.Printf("  Total:    %d\n", stats.Questions)
		fmt.Printf("  Open:     %s\n", green(fmt.Sprintf("%d", stats.OpenQuestions)))
		fmt.Printf("  Answered: %d\n", stats.AnsweredQuestions)
		fmt.Printf("  Expired:  %s\n", gray(fmt.Sprintf("%d", stats.ExpiredQuestions)))
		fmt.Println()

		fmt.Printf("%s\n", yellow("Answers & Pairs:"))
		fmt.Printf("  Answers:  %d\n", stats.Answers)
		fmt.Printf("  Pairs:    %d\n", stats.Pairs)
		fmt.Println()

		fmt.Printf("%s\n", yellow("Processing:"))
		fmt.Printf("  Messages decided: %d\n", stats.ProcessedMessages)
		fmt.Printf("  Channels seen:    %d\n", stats.Channels)
		fmt.Println()

		if stats.Pairs > 0 {
			fmt.Printf("%s\n", gray("Run 'qawatch export' to export pairs"))
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
