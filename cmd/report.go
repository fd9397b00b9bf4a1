package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/refcheck/refcheck/internal/report"
)

var (
	reportConvertFormat string
	reportConvertOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Work with saved run reports",
}

var reportConvertCmd = &cobra.Command{
	Use:   "convert <run.json>",
	Short: "Re-render a saved JSON run in another format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := report.Load(args[0])
		if err != nil {
			return err
		}

		format, err := resolveFormat(reportConvertFormat)
		if err != nil {
			return err
		}
		if format == report.FormatXLSX && reportConvertOutput == "" {
			return eris.New("report: xlsx output needs --output")
		}

		if reportConvertOutput == "" {
			return report.Write(os.Stdout, run, format)
		}
		return report.Save(reportConvertOutput, run, format)
	},
}

func init() {
	reportConvertCmd.Flags().StringVarP(&reportConvertFormat, "format", "f", "", "target format: json, csv, markdown, or xlsx (default from config)")
	reportConvertCmd.Flags().StringVarP(&reportConvertOutput, "output", "o", "", "destination file (default stdout)")
	reportCmd.AddCommand(reportConvertCmd)
	rootCmd.AddCommand(reportCmd)
}
