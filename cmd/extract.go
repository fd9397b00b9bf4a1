package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/internal/pipeline"
)

var (
	extractOverrides    string
	extractSegmentsOnly bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <path>",
	Short: "Extract references from a paper without checking them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := extractOverrides
		if overrides == "" {
			overrides = cfg.Check.Overrides
		}
		patterns, err := loadPatterns(overrides)
		if err != nil {
			return err
		}

		ex, err := pipeline.New(patterns, nil).ExtractFile(args[0])
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if extractSegmentsOnly {
			return enc.Encode(struct {
				Source   string                  `json:"source"`
				Section  model.ReferencesSection `json:"section"`
				Strategy model.StrategyName      `json:"strategy"`
				Segments []model.CitationSegment `json:"segments"`
			}{ex.Source, ex.Section, ex.Strategy, ex.Segments})
		}
		return enc.Encode(ex)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractOverrides, "overrides", "", "extraction overrides YAML file")
	extractCmd.Flags().BoolVar(&extractSegmentsOnly, "segments-only", false, "stop after segmentation, omitting parsed fields")
	rootCmd.AddCommand(extractCmd)
}
