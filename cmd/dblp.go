package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/dblpstore"
	"github.com/refcheck/refcheck/internal/fetcher"
)

// dblpStaleAfter is the snapshot age past which status flags the store.
// DBLP publishes fresh dumps monthly.
const dblpStaleAfter = 90 * 24 * time.Hour

var (
	dblpSnapshotURL string
	dblpForce       bool
)

var dblpCmd = &cobra.Command{
	Use:   "dblp",
	Short: "Manage the offline DBLP title store",
}

var dblpBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Download the DBLP snapshot and build the offline store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		url := dblpSnapshotURL
		if url == "" {
			url = cfg.DBLP.SnapshotURL
		}
		path := cfg.DBLP.StorePath

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return eris.Wrap(err, "dblp: create store dir")
		}
		st, err := dblpstore.Open(path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := fetcher.ForURL(url, fetcher.Options{Timeout: 30 * time.Minute, MaxRetries: 3})
		if err != nil {
			return err
		}

		zap.L().Info("dblp: downloading snapshot", zap.String("url", url))
		body, etag, err := downloadSnapshot(ctx, f, st, url)
		if err != nil {
			return eris.Wrap(err, "dblp: download snapshot")
		}
		if body == nil {
			fmt.Println("Snapshot unchanged since the last build; use --force to rebuild anyway.")
			return nil
		}
		defer body.Close() //nolint:errcheck

		src, err := fetcher.MaybeGzip(body)
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		var lastLogged uint64
		err = st.Build(ctx, src, func(done, total uint64) {
			if total == 0 && done-lastLogged >= 500_000 {
				lastLogged = done
				zap.L().Info("dblp: building store", zap.Uint64("records", done))
			}
		})
		if err != nil {
			return err
		}
		if etag != "" {
			if err := st.SetETag(ctx, etag); err != nil {
				zap.L().Warn("dblp: etag not recorded", zap.Error(err))
			}
		}

		info, err := st.Info(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Built %s with %d records.\n", path, info.Records)
		return nil
	},
}

// downloadSnapshot fetches the snapshot, skipping the transfer when the
// server still serves the entity the store was built from. A nil body with a
// nil error means unchanged. FTP sources carry no entity tag and always
// download in full.
func downloadSnapshot(ctx context.Context, f fetcher.Fetcher, st *dblpstore.Store, url string) (io.ReadCloser, string, error) {
	hf, ok := f.(*fetcher.HTTPFetcher)
	if !ok {
		body, err := f.Download(ctx, url)
		return body, "", err
	}

	prev := ""
	if !dblpForce {
		tag, err := st.ETag(ctx)
		if err != nil {
			zap.L().Warn("dblp: stored etag unreadable", zap.Error(err))
		} else {
			prev = tag
		}
	}

	body, tag, changed, err := hf.DownloadIfChanged(ctx, url, prev)
	if err != nil {
		return nil, "", err
	}
	if !changed {
		return nil, "", nil
	}
	return body, tag, nil
}

var dblpStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show offline store freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.DBLP.StorePath
		if _, err := os.Stat(path); err != nil {
			fmt.Printf("No offline store at %s. Run `refcheck dblp build` to create one.\n", path)
			return nil
		}

		st, err := dblpstore.Open(path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		info, err := st.Info(cmd.Context())
		if err != nil {
			return err
		}
		formatDBLPStatus(os.Stdout, path, info)
		return nil
	},
}

// formatDBLPStatus writes a tabular freshness summary to w.
func formatDBLPStatus(out io.Writer, path string, info dblpstore.Info) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Store:\t%s\n", path)
	if info.BuiltAt.IsZero() {
		_, _ = fmt.Fprintf(w, "Built:\tnever\n")
		_ = w.Flush()
		return
	}
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", info.Records)
	_, _ = fmt.Fprintf(w, "Built:\t%s\n", info.BuiltAt.Format("2006-01-02 15:04"))
	age := info.Staleness().Round(time.Hour)
	_, _ = fmt.Fprintf(w, "Age:\t%s\n", age)
	if info.Staleness() > dblpStaleAfter {
		_, _ = fmt.Fprintf(w, "Note:\tsnapshot is stale, consider `refcheck dblp build`\n")
	}
	_ = w.Flush()
}

func init() {
	dblpBuildCmd.Flags().StringVar(&dblpSnapshotURL, "url", "", "snapshot URL (default from config; http, https, or ftp)")
	dblpBuildCmd.Flags().BoolVar(&dblpForce, "force", false, "rebuild even when the snapshot is unchanged")
	dblpCmd.AddCommand(dblpBuildCmd)
	dblpCmd.AddCommand(dblpStatusCmd)
	rootCmd.AddCommand(dblpCmd)
}
