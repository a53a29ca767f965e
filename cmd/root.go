package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "opportunity-cli",
	Short: "Community-sourced opportunity discovery pipeline",
	Long:  "Fetches community discussion posts, extracts pain points, generates product ideas, and scores them through a tool-augmented Claude pipeline behind a durable job queue.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
