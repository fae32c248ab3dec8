package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qawatch/qawatch/internal/config"
	"github.com/qawatch/qawatch/internal/storage"
)

// Shared command state, initialized by the root PersistentPreRunE
var (
	dbPath     string
	configPath string
	cfg        config.Config
	store      storage.Storage
)

var rootCmd = &cobra.Command{
	Use:   "qawatch",
	Short: "Detect and link questions and answers in chat channels",
	Long: `qawatch watches chat message events, classifies each message as a
question or an answer using an LLM, links answers to the open questions
they resolve, and stores the resulting knowledge pairs in SQLite.

Processing is idempotent: replaying the same events never duplicates
questions, answers, or pairs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		s, err := storage.NewStorage(cmd.Context(), &storage.Config{Path: dbPath})
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", dbPath, err)
		}
		store = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close database: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "qawatch.db", "Path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "qawatch.yaml", "Path to the config file (skipped if absent)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
