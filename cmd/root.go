package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "refcheck",
	Short: "Reference extraction and hallucination checking for scholarly papers",
	Long:  "Extracts the bibliography from a paper, looks every reference up in the public scholarly databases, and flags citations that appear hallucinated or retracted.",
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
