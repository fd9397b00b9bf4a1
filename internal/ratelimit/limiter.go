// Package ratelimit paces outbound queries to the bibliographic databases.
// Each database gets its own limiter seeded with that service's published
// rate; a 429 response doubles the interval between requests (up to a cap),
// and the base rate is restored after a quiet period with no further 429s.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/refcheck/refcheck/internal/model"
)

const (
	// maxSlowdown caps how far repeated 429s can stretch the request
	// interval relative to the base rate.
	maxSlowdown = 16

	// defaultCooldown is how long a limiter must go without a 429 before
	// the base rate is restored.
	defaultCooldown = 60 * time.Second
)

// Limiter paces requests to a single database.
type Limiter struct {
	db string

	mu       sync.Mutex
	limiter  *rate.Limiter
	base     rate.Limit
	slowdown int
	last429  time.Time
	cooldown time.Duration
}

// NewLimiter creates a limiter that admits one request per period.
func NewLimiter(db string, period time.Duration) *Limiter {
	base := rate.Every(period)
	return &Limiter{
		db:       db,
		limiter:  rate.NewLimiter(base, 1),
		base:     base,
		slowdown: 1,
		cooldown: defaultCooldown,
	}
}

// PerSecond creates a limiter that admits n requests per second.
func PerSecond(db string, n int) *Limiter {
	base := rate.Limit(n)
	return &Limiter{
		db:       db,
		limiter:  rate.NewLimiter(base, 1),
		base:     base,
		slowdown: 1,
		cooldown: defaultCooldown,
	}
}

// Wait blocks until the limiter admits one request or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.maybeRecover()
	return l.limiter.Wait(ctx)
}

// OnRateLimited records a 429 from the database and doubles the interval
// between requests, up to maxSlowdown times the base interval.
func (l *Limiter) OnRateLimited() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last429 = time.Now()
	if l.slowdown < maxSlowdown {
		l.slowdown *= 2
	}
	slowed := l.base / rate.Limit(l.slowdown)
	l.limiter.SetLimit(slowed)
	zap.L().Warn("database rate limited, slowing down",
		zap.String("db", l.db),
		zap.Int("slowdown", l.slowdown),
		zap.Float64("requests_per_sec", float64(slowed)))
}

// maybeRecover restores the base rate once cooldown has elapsed since the
// last 429.
func (l *Limiter) maybeRecover() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slowdown == 1 {
		return
	}
	if time.Since(l.last429) < l.cooldown {
		return
	}
	l.slowdown = 1
	l.limiter.SetLimit(l.base)
	zap.L().Info("database rate restored",
		zap.String("db", l.db),
		zap.Float64("requests_per_sec", float64(l.base)))
}

// Rate returns the currently admitted rate in requests per second.
func (l *Limiter) Rate() rate.Limit {
	if l == nil {
		return rate.Inf
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiter.Limit()
}

// Options selects the faster rates some services grant to identified
// clients.
type Options struct {
	// CrossrefMailto is true when requests carry a mailto contact, which
	// admits us to CrossRef's polite pool.
	CrossrefMailto bool

	// S2APIKey is true when a Semantic Scholar API key is configured. Keyed
	// clients get a dedicated 1 rps allocation; anonymous clients share a
	// larger pool.
	S2APIKey bool
}

// Registry holds one limiter per rate-limited database. Databases without an
// entry are unpaced: OpenAlex tolerates far more traffic than this tool
// generates, and offline stores are local.
type Registry struct {
	limiters map[string]*Limiter
}

// NewRegistry builds limiters at each database's published rate.
func NewRegistry(opts Options) *Registry {
	r := &Registry{limiters: make(map[string]*Limiter)}

	crossref := 1
	if opts.CrossrefMailto {
		crossref = 3
	}
	r.add(PerSecond(model.DbCrossref, crossref))

	// arXiv asks for no more than one request every three seconds.
	r.add(NewLimiter(model.DbArxiv, 3*time.Second))

	r.add(PerSecond(model.DbDBLP, 1))

	s2 := 10
	if opts.S2APIKey {
		s2 = 1
	}
	r.add(PerSecond(model.DbSemanticScholar, s2))

	r.add(PerSecond(model.DbEuropePMC, 2))
	r.add(PerSecond(model.DbPubMed, 3))
	return r
}

func (r *Registry) add(l *Limiter) {
	r.limiters[l.db] = l
}

// Get returns the limiter for db, or nil when db is unpaced. The returned
// limiter is safe to use even when nil.
func (r *Registry) Get(db string) *Limiter {
	return r.limiters[db]
}

// Wait acquires a slot for db, returning immediately when db is unpaced.
func (r *Registry) Wait(ctx context.Context, db string) error {
	return r.limiters[db].Wait(ctx)
}

// OnRateLimited reports a 429 from db.
func (r *Registry) OnRateLimited(db string) {
	r.limiters[db].OnRateLimited()
}
