package refdb

import (
	"context"
	"strconv"
	"time"

	"github.com/refcheck/refcheck/internal/dblpstore"
	"github.com/refcheck/refcheck/internal/match"
	"github.com/refcheck/refcheck/internal/model"
)

// OfflineDBLPAdapter resolves references against the local DBLP snapshot.
// No network, no rate limit; results carry the snapshot age so reports can
// flag answers from an old build.
type OfflineDBLPAdapter struct {
	store *dblpstore.Store
}

// NewOfflineDBLPAdapter wraps a snapshot store.
func NewOfflineDBLPAdapter(store *dblpstore.Store) *OfflineDBLPAdapter {
	return &OfflineDBLPAdapter{store: store}
}

// Name implements Adapter.
func (a *OfflineDBLPAdapter) Name() string { return model.DbDBLPOffline }

// Query implements Adapter.
func (a *OfflineDBLPAdapter) Query(ctx context.Context, ref model.Reference) (model.DbResult, error) {
	start := time.Now()
	res := model.DbResult{DbName: model.DbDBLPOffline}

	info, err := a.store.Info(ctx)
	if err != nil {
		return res, err
	}
	res.Staleness = info.Staleness()

	if ref.Title == "" {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	m, err := a.store.Query(ctx, ref.Title)
	if err != nil {
		return res, err
	}
	if m == nil {
		res.Status = model.DbNotFound
		res.Elapsed = time.Since(start)
		return res, nil
	}

	res.Status = model.DbFound
	res.Matched = &model.MatchedRecord{
		Title:        m.Record.Title,
		Authors:      m.Record.Authors,
		URL:          m.Record.URL,
		Year:         yearString(m.Record.Year),
		AuthorsMatch: match.AuthorsMatch(ref.Authors, m.Record.Authors),
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func yearString(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}
