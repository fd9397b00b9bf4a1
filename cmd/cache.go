package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/refcheck/refcheck/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the query cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		qc, err := openCache()
		if err != nil {
			return err
		}
		defer qc.Close() //nolint:errcheck

		stats, err := qc.Stats(cmd.Context())
		if err != nil {
			return err
		}
		formatCacheStats(os.Stdout, cfg.Cache.Path, stats)
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		qc, err := openCache()
		if err != nil {
			return err
		}
		defer qc.Close() //nolint:errcheck

		n, err := qc.Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired entries.\n", n)
		return nil
	},
}

// openCache opens the configured cache file even when checks run uncached,
// so stats and purge work regardless of cache.disabled.
func openCache() (*cache.QueryCache, error) {
	return cache.Open(cfg.Cache.Path, cache.Options{
		PositiveTTL: time.Duration(cfg.Cache.PositiveTTLHours) * time.Hour,
		NegativeTTL: time.Duration(cfg.Cache.NegativeTTLHours) * time.Hour,
	})
}

// formatCacheStats writes a tabular cache summary to w.
func formatCacheStats(out io.Writer, path string, s cache.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Cache:\t%s\n", path)
	_, _ = fmt.Fprintf(w, "Entries:\t%d\n", s.Entries)
	_, _ = fmt.Fprintf(w, "  Found:\t%d\n", s.Found)
	_, _ = fmt.Fprintf(w, "  Not found:\t%d\n", s.NotFound)
	_, _ = fmt.Fprintf(w, "  Expired:\t%d\n", s.Expired)
	_ = w.Flush()
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
