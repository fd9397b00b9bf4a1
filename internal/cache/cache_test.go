package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refcheck/refcheck/internal/model"
)

func newTestCache(t *testing.T, opts Options) *QueryCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return c
}

func foundResult(db string) model.DbResult {
	return model.DbResult{
		DbName: db,
		Status: model.DbFound,
		Matched: &model.MatchedRecord{
			Title:        "Attention Is All You Need",
			Authors:      []string{"Ashish Vaswani"},
			URL:          "https://example.org/paper",
			AuthorsMatch: true,
		},
	}
}

func TestGetMissOnEmptyCache(t *testing.T) {
	c := newTestCache(t, Options{})

	res, err := c.Get(context.Background(), "Some Title", model.DbCrossref)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, int64(1), c.Misses())
	assert.Equal(t, int64(0), c.Hits())
}

func TestPutThenGet(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Attention Is All You Need", model.DbCrossref, foundResult(model.DbCrossref)))

	res, err := c.Get(ctx, "Attention Is All You Need", model.DbCrossref)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, model.DbFound, res.Status)
	assert.True(t, res.FromCache)
	require.NotNil(t, res.Matched)
	assert.Equal(t, "Attention Is All You Need", res.Matched.Title)
	assert.Equal(t, int64(1), c.Hits())
}

func TestNormalizedKeyHit(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Résumé Génération: A Survey", model.DbOpenAlex, foundResult(model.DbOpenAlex)))

	// Diacritics and punctuation variants share the key.
	res, err := c.Get(ctx, "resume generation a survey", model.DbOpenAlex)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestKeyIncludesDbName(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Shared Title Here", model.DbCrossref, foundResult(model.DbCrossref)))

	res, err := c.Get(ctx, "Shared Title Here", model.DbArxiv)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestOnlySettledOutcomesStored(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	for _, status := range []model.DbStatus{model.DbTimeout, model.DbError, model.DbSkipped} {
		require.NoError(t, c.Put(ctx, "Flaky Lookup", model.DbCrossref, model.DbResult{
			DbName: model.DbCrossref,
			Status: status,
		}))
		res, err := c.Get(ctx, "Flaky Lookup", model.DbCrossref)
		require.NoError(t, err)
		assert.Nil(t, res, "status %s must not be cached", status)
	}
}

func TestNegativeTTLExpiry(t *testing.T) {
	c := newTestCache(t, Options{NegativeTTL: -time.Second})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Never Indexed Paper", model.DbDBLP, model.DbResult{
		DbName: model.DbDBLP,
		Status: model.DbNotFound,
	}))

	res, err := c.Get(ctx, "Never Indexed Paper", model.DbDBLP)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, int64(1), c.Misses())
}

func TestPositiveTTLExpiry(t *testing.T) {
	c := newTestCache(t, Options{PositiveTTL: -time.Second})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Old Entry", model.DbCrossref, foundResult(model.DbCrossref)))

	res, err := c.Get(ctx, "Old Entry", model.DbCrossref)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestPurge(t *testing.T) {
	c := newTestCache(t, Options{NegativeTTL: -time.Second})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Expired One", model.DbDBLP, model.DbResult{Status: model.DbNotFound, DbName: model.DbDBLP}))
	require.NoError(t, c.Put(ctx, "Fresh One", model.DbDBLP, foundResult(model.DbDBLP)))

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.Found)
	assert.Equal(t, int64(0), stats.Expired)
}

func TestStats(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Found Paper", model.DbCrossref, foundResult(model.DbCrossref)))
	require.NoError(t, c.Put(ctx, "Missing Paper", model.DbCrossref, model.DbResult{Status: model.DbNotFound, DbName: model.DbCrossref}))

	_, err := c.Get(ctx, "Found Paper", model.DbCrossref)
	require.NoError(t, err)
	_, err = c.Get(ctx, "Unknown Paper", model.DbCrossref)
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, int64(1), stats.Found)
	assert.Equal(t, int64(1), stats.NotFound)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestReplaceRefreshesEntry(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Now You See Me", model.DbDBLP, model.DbResult{Status: model.DbNotFound, DbName: model.DbDBLP}))
	require.NoError(t, c.Put(ctx, "Now You See Me", model.DbDBLP, foundResult(model.DbDBLP)))

	res, err := c.Get(ctx, "Now You See Me", model.DbDBLP)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, model.DbFound, res.Status)
}

func TestNilCacheIsNoOp(t *testing.T) {
	var c *QueryCache
	ctx := context.Background()

	res, err := c.Get(ctx, "Anything", model.DbCrossref)
	require.NoError(t, err)
	assert.Nil(t, res)

	require.NoError(t, c.Put(ctx, "Anything", model.DbCrossref, foundResult(model.DbCrossref)))

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)

	require.NoError(t, c.Close())
	assert.Zero(t, c.Hits())
	assert.Zero(t, c.Misses())
}
