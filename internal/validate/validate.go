// Package validate runs extracted references against the bibliographic
// databases and aggregates per-database outcomes into one verdict per
// reference. References are checked concurrently under a bounded worker
// pool; each lookup runs under its own timeout with pacing, retries, and
// caching. Cancellation never aborts a run: unfinished references are
// returned as StatusCancelled and settled ones keep their verdicts.
package validate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/refcheck/refcheck/internal/cache"
	"github.com/refcheck/refcheck/internal/model"
	"github.com/refcheck/refcheck/internal/ratelimit"
	"github.com/refcheck/refcheck/internal/refdb"
	"github.com/refcheck/refcheck/internal/resilience"
)

// Config bounds a validation run.
type Config struct {
	// MaxConcurrentRefs is how many references are validated at once.
	// Each reference fans out to every enabled database, so the outbound
	// request ceiling is MaxConcurrentRefs times the adapter count.
	MaxConcurrentRefs int

	// DbTimeout bounds each database lookup on the first pass.
	DbTimeout time.Duration

	// DbTimeoutShort bounds lookups on the retry pass. A database that
	// needed the full first-pass window and still failed gets one quicker
	// second chance, not another full one.
	DbTimeoutShort time.Duration

	// Retry controls per-lookup retries inside the timeout window.
	Retry resilience.RetryConfig
}

// DefaultConfig returns the standard run bounds.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRefs: 4,
		DbTimeout:         10 * time.Second,
		DbTimeoutShort:    5 * time.Second,
		Retry:             resilience.DefaultRetryConfig(),
	}
}

// Checker validates references against a fixed set of database adapters.
// Safe for concurrent use once constructed.
type Checker struct {
	cfg      Config
	registry *refdb.Registry
	limits   *ratelimit.Registry
	cache    *cache.QueryCache
	sink     Sink
}

// New builds a Checker. A nil cache disables caching, a nil sink disables
// progress reporting; zero config fields fall back to defaults.
func New(cfg Config, registry *refdb.Registry, limits *ratelimit.Registry, qc *cache.QueryCache, sink Sink) *Checker {
	def := DefaultConfig()
	if cfg.MaxConcurrentRefs <= 0 {
		cfg.MaxConcurrentRefs = def.MaxConcurrentRefs
	}
	if cfg.DbTimeout <= 0 {
		cfg.DbTimeout = def.DbTimeout
	}
	if cfg.DbTimeoutShort <= 0 {
		cfg.DbTimeoutShort = def.DbTimeoutShort
	}
	if limits == nil {
		limits = ratelimit.NewRegistry(ratelimit.Options{})
	}
	return &Checker{
		cfg:      cfg,
		registry: registry,
		limits:   limits,
		cache:    qc,
		sink:     sink,
	}
}

// WithSink returns a Checker identical to c except that progress events go
// to s. The receiver is unchanged; limiter and cache state stay shared, so
// per-request sinks do not reset pacing.
func (c *Checker) WithSink(s Sink) *Checker {
	clone := *c
	clone.sink = s
	return &clone
}

// Check validates every reference and returns exactly one result per input,
// in input order. Cancellation is reported through StatusCancelled on the
// affected results, never as a returned error.
func (c *Checker) Check(ctx context.Context, refs []model.Reference) ([]model.ValidationResult, model.CheckStats, error) {
	if c.registry == nil || c.registry.Len() == 0 {
		return nil, model.CheckStats{}, eris.New("validate: no databases enabled")
	}
	if len(refs) == 0 {
		return nil, model.CheckStats{}, nil
	}

	zap.L().Info("validate: starting run",
		zap.Int("references", len(refs)),
		zap.Strings("databases", c.registry.Names()),
		zap.Int("max_concurrent", c.cfg.MaxConcurrentRefs))

	results := make([]model.ValidationResult, len(refs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentRefs)
	for i, ref := range refs {
		g.Go(func() error {
			results[i] = c.checkOne(gCtx, i, len(refs), ref)
			return nil
		})
	}
	_ = g.Wait()

	stats := model.Summarize(results)
	zap.L().Info("validate: run complete",
		zap.Int("total", stats.Total),
		zap.Int("verified", stats.Verified),
		zap.Int("retracted", stats.Retracted),
		zap.Int("likely_hallucinated", stats.LikelyHallucinated),
		zap.Int("unverified", stats.Unverified),
		zap.Int("cancelled", stats.Cancelled),
		zap.Int("skipped", stats.Skipped))
	return results, stats, nil
}

// checkOne validates a single reference end to end. It never fails; errors
// and cancellation are encoded in the result status.
func (c *Checker) checkOne(ctx context.Context, idx, total int, ref model.Reference) model.ValidationResult {
	if ctx.Err() != nil {
		return model.ValidationResult{Reference: ref, Status: model.StatusCancelled}
	}

	if !ref.Queryable() {
		res := model.ValidationResult{Reference: ref, Status: model.StatusUnverified, Skipped: true}
		c.emit(model.ProgressEvent{
			Kind:     model.EventCompleted,
			RefIndex: idx,
			Total:    total,
			RefTitle: ref.ShortTitle(),
			Status:   res.Status,
			Message:  "no usable title or identifier, lookup skipped",
		})
		return res
	}

	c.emit(model.ProgressEvent{
		Kind:     model.EventStarted,
		RefIndex: idx,
		Total:    total,
		RefTitle: ref.ShortTitle(),
	})

	adapters := c.registry.Adapters()
	dbResults := c.queryAll(ctx, idx, total, ref, adapters, c.cfg.DbTimeout)
	if ctx.Err() != nil {
		res := model.ValidationResult{Reference: ref, Status: model.StatusCancelled, DbResults: dbResults}
		c.emit(model.ProgressEvent{
			Kind:     model.EventCompleted,
			RefIndex: idx,
			Total:    total,
			RefTitle: ref.ShortTitle(),
			Status:   res.Status,
		})
		return res
	}

	res := aggregate(ref, dbResults)

	// A first pass that lands on Unverified because databases failed gets
	// one more chance under the short timeout before the verdict stands.
	if res.Status == model.StatusUnverified && len(res.FailedDBs) > 0 {
		c.emit(model.ProgressEvent{
			Kind:     model.EventRetryPass,
			RefIndex: idx,
			Total:    total,
			RefTitle: ref.ShortTitle(),
			Message:  fmt.Sprintf("retrying %s", strings.Join(res.FailedDBs, ", ")),
		})
		dbResults = c.retryFailed(ctx, idx, total, ref, adapters, dbResults)
		res = aggregate(ref, dbResults)
	}

	if len(res.FailedDBs) > 0 {
		c.emit(model.ProgressEvent{
			Kind:     model.EventWarning,
			RefIndex: idx,
			Total:    total,
			RefTitle: ref.ShortTitle(),
			Message: fmt.Sprintf("%d of %d databases unavailable: %s",
				len(res.FailedDBs), len(adapters), strings.Join(res.FailedDBs, ", ")),
		})
	}

	c.emit(model.ProgressEvent{
		Kind:     model.EventCompleted,
		RefIndex: idx,
		Total:    total,
		RefTitle: ref.ShortTitle(),
		Status:   res.Status,
	})
	return res
}

// queryAll fans out to every adapter at once. The returned slice is in
// registry order regardless of completion order; DbResult events fire as
// lookups finish.
func (c *Checker) queryAll(ctx context.Context, idx, total int, ref model.Reference, adapters []refdb.Adapter, timeout time.Duration) []model.DbResult {
	results := make([]model.DbResult, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		i, a := i, a // per-iteration copies for the goroutine below (go.mod targets 1.21 loop semantics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.queryOne(ctx, ref, a, timeout)
			c.emit(model.ProgressEvent{
				Kind:     model.EventDbResult,
				RefIndex: idx,
				Total:    total,
				RefTitle: ref.ShortTitle(),
				DbName:   results[i].DbName,
				DbStatus: results[i].Status,
				Elapsed:  results[i].Elapsed,
			})
		}()
	}
	wg.Wait()
	return results
}

// queryOne runs a single adapter lookup under the per-database timeout with
// caching, pacing, and retries. It always returns a usable DbResult.
func (c *Checker) queryOne(ctx context.Context, ref model.Reference, a refdb.Adapter, timeout time.Duration) model.DbResult {
	db := a.Name()
	if ctx.Err() != nil {
		return model.DbResult{DbName: db, Status: model.DbSkipped}
	}

	if hit, err := c.cache.Get(ctx, ref.Title, db); err != nil {
		zap.L().Debug("validate: cache read failed", zap.String("db", db), zap.Error(err))
	} else if hit != nil {
		return *hit
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retry := c.cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(db, "lookup")
	}

	start := time.Now()
	res, err := resilience.DoVal(qctx, retry, func(ctx context.Context) (model.DbResult, error) {
		if err := c.limits.Wait(ctx, db); err != nil {
			return model.DbResult{}, err
		}
		r, err := a.Query(ctx, ref)
		if err != nil {
			var te *resilience.TransientError
			if errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests {
				c.limits.OnRateLimited(db)
			}
			return model.DbResult{}, err
		}
		return r, nil
	})
	elapsed := time.Since(start)

	if err != nil {
		res = model.DbResult{DbName: db, Elapsed: elapsed}
		switch {
		case errors.Is(err, context.Canceled):
			res.Status = model.DbSkipped
		case isTimeout(err):
			res.Status = model.DbTimeout
			res.Error = err.Error()
		default:
			res.Status = model.DbError
			res.Error = err.Error()
		}
		zap.L().Debug("validate: database lookup failed",
			zap.String("status", string(res.Status)),
			zap.Duration("elapsed", elapsed),
			zap.Error(&model.AdapterError{Db: db, Err: err}))
		return res
	}

	res.DbName = db
	res.Elapsed = elapsed
	if err := c.cache.Put(ctx, ref.Title, db, res); err != nil {
		zap.L().Debug("validate: cache write failed", zap.String("db", db), zap.Error(err))
	}
	return res
}

// retryFailed re-queries the adapters that timed out or errored, replacing
// their results in place. Adapters that settled keep their first-pass result.
func (c *Checker) retryFailed(ctx context.Context, idx, total int, ref model.Reference, adapters []refdb.Adapter, dbResults []model.DbResult) []model.DbResult {
	slot := make(map[string]int, len(dbResults))
	var failed []refdb.Adapter
	for i, dr := range dbResults {
		slot[dr.DbName] = i
		if dr.Status == model.DbTimeout || dr.Status == model.DbError {
			failed = append(failed, adapters[i])
		}
	}

	for _, dr := range c.queryAll(ctx, idx, total, ref, failed, c.cfg.DbTimeoutShort) {
		if i, ok := slot[dr.DbName]; ok {
			dbResults[i] = dr
		}
	}
	return dbResults
}

// emit stamps and publishes one progress event.
func (c *Checker) emit(ev model.ProgressEvent) {
	if c.sink == nil {
		return
	}
	ev.Timestamp = time.Now()
	c.sink.Publish(ev)
}

// isTimeout reports whether a lookup failure was a deadline rather than a
// service-side error.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
