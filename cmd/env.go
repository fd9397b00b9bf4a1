package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/cache"
	"github.com/refcheck/refcheck/internal/dblpstore"
	"github.com/refcheck/refcheck/internal/extract"
	"github.com/refcheck/refcheck/internal/history"
	"github.com/refcheck/refcheck/internal/pipeline"
	"github.com/refcheck/refcheck/internal/ratelimit"
	"github.com/refcheck/refcheck/internal/refdb"
	"github.com/refcheck/refcheck/internal/resilience"
	"github.com/refcheck/refcheck/internal/validate"
	"github.com/refcheck/refcheck/pkg/arxiv"
	"github.com/refcheck/refcheck/pkg/crossref"
	"github.com/refcheck/refcheck/pkg/dblp"
	"github.com/refcheck/refcheck/pkg/europepmc"
	"github.com/refcheck/refcheck/pkg/openalex"
	"github.com/refcheck/refcheck/pkg/pubmed"
	"github.com/refcheck/refcheck/pkg/semanticscholar"
)

// checkEnv holds the wired database stack for the check and serve commands.
type checkEnv struct {
	Pipeline *pipeline.Pipeline
	Cache    *cache.QueryCache // nil when caching is disabled
	Offline  *dblpstore.Store  // nil when no offline store is built
	History  *history.Store    // nil when history is not configured
}

// Close releases resources held by the environment.
func (e *checkEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Offline != nil {
		_ = e.Offline.Close()
	}
	if e.History != nil {
		e.History.Close()
	}
}

// loadPatterns compiles extraction patterns, applying the overrides file at
// path when one is given.
func loadPatterns(path string) (*extract.Patterns, error) {
	if path == "" {
		return extract.DefaultPatterns(), nil
	}
	o, err := extract.LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	return extract.CompileOverrides(o)
}

// initCheckEnv wires API clients, adapters, rate limits, the query cache,
// and the optional offline store and history into a pipeline. Callers should
// defer env.Close().
func initCheckEnv(ctx context.Context, sink validate.Sink) (*checkEnv, error) {
	patterns, err := loadPatterns(cfg.Check.Overrides)
	if err != nil {
		return nil, err
	}

	adapters := []refdb.Adapter{
		refdb.NewCrossrefAdapter(crossref.NewClient(crossref.WithMailto(cfg.Crossref.Mailto))),
		refdb.NewOpenAlexAdapter(openalex.NewClient(openalex.WithMailto(cfg.OpenAlex.Mailto))),
		refdb.NewSemanticScholarAdapter(semanticscholar.NewClient(cfg.SemanticScholar.APIKey)),
		refdb.NewArxivAdapter(arxiv.NewClient()),
		refdb.NewDBLPAdapter(dblp.NewClient()),
		refdb.NewEuropePMCAdapter(europepmc.NewClient()),
		refdb.NewPubMedAdapter(pubmed.NewClient(cfg.PubMed.APIKey)),
	}

	// The offline DBLP adapter joins only when a store has been built.
	var offline *dblpstore.Store
	if _, statErr := os.Stat(cfg.DBLP.StorePath); statErr == nil {
		offline, err = dblpstore.Open(cfg.DBLP.StorePath)
		if err != nil {
			zap.L().Warn("offline dblp store unusable, skipping",
				zap.String("path", cfg.DBLP.StorePath), zap.Error(err))
		} else {
			adapters = append(adapters, refdb.NewOfflineDBLPAdapter(offline))
		}
	} else {
		zap.L().Debug("offline dblp store not built, skipping",
			zap.String("path", cfg.DBLP.StorePath))
	}

	registry := refdb.NewRegistry(adapters, cfg.Check.DisabledDBs)
	if registry.Len() == 0 {
		if offline != nil {
			_ = offline.Close()
		}
		return nil, eris.New("check: every database is disabled")
	}

	limits := ratelimit.NewRegistry(ratelimit.Options{
		CrossrefMailto: cfg.Crossref.Mailto != "",
		S2APIKey:       cfg.SemanticScholar.APIKey != "",
	})

	var qc *cache.QueryCache
	if !cfg.Cache.Disabled {
		if mkErr := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); mkErr != nil {
			zap.L().Warn("cache dir unavailable, running uncached", zap.Error(mkErr))
		} else {
			qc, err = cache.Open(cfg.Cache.Path, cache.Options{
				PositiveTTL: time.Duration(cfg.Cache.PositiveTTLHours) * time.Hour,
				NegativeTTL: time.Duration(cfg.Cache.NegativeTTLHours) * time.Hour,
			})
			if err != nil {
				zap.L().Warn("cache unusable, running uncached",
					zap.String("path", cfg.Cache.Path), zap.Error(err))
				qc = nil
			}
		}
	}

	vcfg := validate.Config{
		MaxConcurrentRefs: cfg.Check.MaxConcurrentRefs,
		DbTimeout:         time.Duration(cfg.Check.DbTimeoutSecs) * time.Second,
		DbTimeoutShort:    time.Duration(cfg.Check.RetryTimeoutSecs) * time.Second,
		Retry:             resilience.DefaultRetryConfig(),
	}
	checker := validate.New(vcfg, registry, limits, qc, sink)

	// History is best effort here; the runs command requires it outright.
	var hist *history.Store
	if cfg.History.DSN != "" {
		hist, err = history.Open(ctx, cfg.History.DSN)
		if err != nil {
			zap.L().Warn("history store unavailable, runs will not be recorded", zap.Error(err))
			hist = nil
		} else if err := hist.Migrate(ctx); err != nil {
			zap.L().Warn("history migration failed, runs will not be recorded", zap.Error(err))
			hist.Close()
			hist = nil
		}
	}

	zap.L().Info("check environment ready",
		zap.Strings("databases", registry.Names()),
		zap.Bool("cache", qc != nil),
		zap.Bool("offline_dblp", offline != nil),
		zap.Bool("history", hist != nil))

	return &checkEnv{
		Pipeline: pipeline.New(patterns, checker),
		Cache:    qc,
		Offline:  offline,
		History:  hist,
	}, nil
}
