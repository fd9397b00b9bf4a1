package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/report"
	"github.com/refcheck/refcheck/internal/validate"
	anthropicpkg "github.com/refcheck/refcheck/pkg/anthropic"
)

var (
	checkOutput     string
	checkFormat     string
	checkMaxConc    int
	checkDbTimeout  time.Duration
	checkDisableDBs []string
	checkOverrides  string
	checkNoCache    bool
	checkAnnotate   bool
)

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Check a paper's references against the scholarly databases",
	Long:  "Reads each PDF or plain-text paper, extracts its bibliography, validates every reference, and writes a report per input.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyCheckFlags()
		if err := cfg.Validate("check"); err != nil {
			return err
		}
		if checkAnnotate {
			if err := cfg.Validate("annotate"); err != nil {
				return err
			}
		}

		format, err := resolveFormat(checkFormat)
		if err != nil {
			return err
		}
		if format == report.FormatXLSX && checkOutput == "" {
			return eris.New("check: xlsx reports need --output")
		}

		env, err := initCheckEnv(ctx, validate.ZapSink{})
		if err != nil {
			return err
		}
		defer env.Close()

		var annotator *report.Annotator
		if checkAnnotate {
			annotator = report.NewAnnotator(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		}

		failed := 0
		for _, path := range args {
			if err := checkOne(ctx, env, annotator, path, len(args), format); err != nil {
				zap.L().Error("check: input failed", zap.String("path", path), zap.Error(err))
				failed++
			}
			if ctx.Err() != nil {
				break
			}
		}
		if failed == len(args) {
			return eris.Errorf("check: all %d inputs failed", len(args))
		}
		return nil
	},
}

// checkOne runs the pipeline for one input and writes its report.
func checkOne(ctx context.Context, env *checkEnv, annotator *report.Annotator, path string, inputs int, format report.Format) error {
	run, err := env.Pipeline.RunFile(ctx, path)
	if err != nil {
		return err
	}

	if annotator != nil {
		if _, err := annotator.Annotate(ctx, run.Results); err != nil {
			zap.L().Warn("check: annotation incomplete", zap.Error(err))
		}
	}

	if env.History != nil {
		if err := env.History.SaveRun(ctx, run); err != nil {
			zap.L().Warn("check: run not recorded", zap.Error(err))
		}
	}

	dest := outputPathFor(path, checkOutput, inputs, format)
	if dest == "" {
		return report.Write(os.Stdout, run, format)
	}
	if inputs > 1 {
		if err := os.MkdirAll(checkOutput, 0o755); err != nil {
			return eris.Wrap(err, "check: create output dir")
		}
	}
	if err := report.Save(dest, run, format); err != nil {
		return err
	}
	zap.L().Info("check: report written", zap.String("path", dest))
	return nil
}

// applyCheckFlags folds explicit flags over the loaded config.
func applyCheckFlags() {
	if checkMaxConc > 0 {
		cfg.Check.MaxConcurrentRefs = checkMaxConc
	}
	if checkDbTimeout > 0 {
		cfg.Check.DbTimeoutSecs = int(checkDbTimeout.Seconds())
	}
	if len(checkDisableDBs) > 0 {
		cfg.Check.DisabledDBs = append(cfg.Check.DisabledDBs, checkDisableDBs...)
	}
	if checkOverrides != "" {
		cfg.Check.Overrides = checkOverrides
	}
	if checkNoCache {
		cfg.Cache.Disabled = true
	}
}

// resolveFormat picks the report format from the flag, falling back to the
// configured default.
func resolveFormat(flag string) (report.Format, error) {
	s := flag
	if s == "" {
		s = cfg.Report.Format
	}
	return report.ParseFormat(s)
}

// outputPathFor maps an input to its report destination. Empty means stdout.
// With several inputs --output names a directory and each report is named
// after its input.
func outputPathFor(input, output string, inputs int, format report.Format) string {
	if output == "" {
		return ""
	}
	if inputs == 1 {
		return output
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(output, stem+"."+extFor(format))
}

// extFor returns the conventional file extension for a report format.
func extFor(format report.Format) string {
	switch format {
	case report.FormatJSON:
		return "json"
	case report.FormatCSV:
		return "csv"
	case report.FormatXLSX:
		return "xlsx"
	default:
		return "md"
	}
}

func init() {
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "", "report destination (file, or directory with several inputs; default stdout)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "", "report format: json, csv, markdown, or xlsx (default from config)")
	checkCmd.Flags().IntVar(&checkMaxConc, "max-concurrent", 0, "references checked in parallel (default from config)")
	checkCmd.Flags().DurationVar(&checkDbTimeout, "db-timeout", 0, "per-database lookup timeout (default from config)")
	checkCmd.Flags().StringSliceVar(&checkDisableDBs, "disable-db", nil, "database to skip, repeatable (crossref, openalex, semanticscholar, arxiv, dblp, europepmc, pubmed, dblp-offline)")
	checkCmd.Flags().StringVar(&checkOverrides, "overrides", "", "extraction overrides YAML file")
	checkCmd.Flags().BoolVar(&checkNoCache, "no-cache", false, "bypass the query cache")
	checkCmd.Flags().BoolVar(&checkAnnotate, "annotate", false, "draft reviewer notes for flagged references (needs an Anthropic API key)")
	rootCmd.AddCommand(checkCmd)
}
