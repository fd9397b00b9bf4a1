package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/refcheck/refcheck/internal/model"
)

func TestNewRegistry_DefaultRates(t *testing.T) {
	r := NewRegistry(Options{})

	assert.InDelta(t, 1.0, float64(r.Get(model.DbCrossref).Rate()), 0.001)
	assert.InDelta(t, 1.0/3.0, float64(r.Get(model.DbArxiv).Rate()), 0.001)
	assert.InDelta(t, 1.0, float64(r.Get(model.DbDBLP).Rate()), 0.001)
	assert.InDelta(t, 10.0, float64(r.Get(model.DbSemanticScholar).Rate()), 0.001)
	assert.InDelta(t, 2.0, float64(r.Get(model.DbEuropePMC).Rate()), 0.001)
	assert.InDelta(t, 3.0, float64(r.Get(model.DbPubMed).Rate()), 0.001)
}

func TestNewRegistry_PolitePoolAndKeyedRates(t *testing.T) {
	r := NewRegistry(Options{CrossrefMailto: true, S2APIKey: true})

	assert.InDelta(t, 3.0, float64(r.Get(model.DbCrossref).Rate()), 0.001)
	assert.InDelta(t, 1.0, float64(r.Get(model.DbSemanticScholar).Rate()), 0.001)
}

func TestNewRegistry_UnpacedDatabases(t *testing.T) {
	r := NewRegistry(Options{})

	assert.Nil(t, r.Get(model.DbOpenAlex))
	assert.Nil(t, r.Get(model.DbDBLPOffline))

	// Unpaced databases never block and tolerate 429 reports.
	require.NoError(t, r.Wait(context.Background(), model.DbOpenAlex))
	r.OnRateLimited(model.DbOpenAlex)
}

func TestLimiter_NilSafe(t *testing.T) {
	var l *Limiter

	require.NoError(t, l.Wait(context.Background()))
	l.OnRateLimited()
	assert.Equal(t, rate.Inf, l.Rate())
}

func TestLimiter_OnRateLimitedDoublesInterval(t *testing.T) {
	l := PerSecond("crossref", 8)

	l.OnRateLimited()
	assert.InDelta(t, 4.0, float64(l.Rate()), 0.001)

	l.OnRateLimited()
	assert.InDelta(t, 2.0, float64(l.Rate()), 0.001)
}

func TestLimiter_SlowdownCapped(t *testing.T) {
	l := PerSecond("crossref", 16)

	for i := 0; i < 10; i++ {
		l.OnRateLimited()
	}
	assert.InDelta(t, 1.0, float64(l.Rate()), 0.001, "slowdown should cap at 16x")
}

func TestLimiter_RecoversAfterCooldown(t *testing.T) {
	l := PerSecond("dblp", 4)
	l.cooldown = 10 * time.Millisecond

	l.OnRateLimited()
	require.InDelta(t, 2.0, float64(l.Rate()), 0.001)

	time.Sleep(25 * time.Millisecond)
	l.maybeRecover()
	assert.InDelta(t, 4.0, float64(l.Rate()), 0.001)
}

func TestLimiter_NoRecoveryBeforeCooldown(t *testing.T) {
	l := PerSecond("dblp", 4)
	l.cooldown = time.Hour

	l.OnRateLimited()
	l.maybeRecover()
	assert.InDelta(t, 2.0, float64(l.Rate()), 0.001)
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := NewLimiter("arxiv", time.Hour)

	// The bucket starts full, so the first acquire is immediate.
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.Error(t, err)
}
