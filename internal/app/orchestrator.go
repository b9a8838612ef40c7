package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"offers-harvester/internal/config"
	"offers-harvester/internal/harvest"
	"offers-harvester/internal/normalize"
	"offers-harvester/internal/observability"
	"offers-harvester/internal/offer"
	"offers-harvester/internal/storage"
	"offers-harvester/internal/token"
)

// CredentialSource is satisfied by *token.Acquirer.
type CredentialSource interface {
	Acquire(ctx context.Context) (token.Credential, error)
}

type Orchestrator struct {
	cfg        *config.Config
	logger     *observability.Logger
	metrics    *observability.Metrics
	tokens     CredentialSource
	fetcher    harvest.PageFetcher
	writer     storage.Writer
	normalizer *normalize.Normalizer
}

func NewOrchestrator(
	cfg *config.Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
	tokens CredentialSource,
	f harvest.PageFetcher,
	w storage.Writer,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tokens:     tokens,
		fetcher:    f,
		writer:     w,
		normalizer: normalize.NewNormalizer(cfg.Normalize),
	}
}

// Select returns the runs named in names, or every configured run when
// names is empty.
func (o *Orchestrator) Select(names []string) ([]config.RunConfig, error) {
	if len(names) == 0 {
		return o.cfg.Runs, nil
	}
	runs := make([]config.RunConfig, 0, len(names))
	for _, name := range names {
		r, ok := o.cfg.Run(name)
		if !ok {
			return nil, fmt.Errorf("unknown run: %s", name)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// Run executes runs one after another, or concurrently when parallel_runs is
// set. A failed run does not stop the others; all failures are joined.
func (o *Orchestrator) Run(ctx context.Context, runs []config.RunConfig) ([]*harvest.Result, error) {
	start := time.Now()
	results := make([]*harvest.Result, len(runs))
	errs := make([]error, len(runs))

	o.logger.Info("Starting harvest runs",
		"runs", len(runs),
		"parallel", o.cfg.ParallelRuns,
	)

	if o.cfg.ParallelRuns {
		var wg sync.WaitGroup
		for i, r := range runs {
			wg.Add(1)
			go func(i int, r config.RunConfig) {
				defer wg.Done()
				results[i], errs[i] = o.runOne(ctx, r)
			}(i, r)
		}
		wg.Wait()
	} else {
		for i, r := range runs {
			results[i], errs[i] = o.runOne(ctx, r)
		}
	}

	err := errors.Join(errs...)
	if path := o.cfg.Observability.MetricsPath; path != "" {
		if mErr := o.metrics.WriteTextfile(path); mErr != nil {
			o.logger.Warn("Failed to write metrics", "path", path, "error", mErr.Error())
		}
	}

	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	o.logger.Info("Harvest runs finished",
		"runs", len(runs),
		"failed", failed,
		"elapsed", observability.Elapsed(start),
	)
	return results, err
}

// runOne acquires a fresh credential and drives one controller with it.
func (o *Orchestrator) runOne(ctx context.Context, r config.RunConfig) (*harvest.Result, error) {
	// run_id tells interleaved records apart when runs are parallel
	log := o.logger.With("run_id", uuid.NewString())

	cred, err := o.tokens.Acquire(ctx)
	if err != nil {
		log.Error("Token acquisition failed", "run", r.Name, "error", err.Error())
		return &harvest.Result{Dataset: r.Dataset, State: harvest.StateFailed}, fmt.Errorf("run %s: %w", r.Name, err)
	}
	log.Info("Token acquired", "run", r.Name, "token", cred.Redacted())

	tr := offer.NewTransformer(
		offer.Policy{OfferType: r.OfferType, Threshold: r.Threshold, Currency: o.cfg.Site.Currency},
		offer.Links{
			ProductURLBase:   o.cfg.Site.ProductURLBase,
			MediaBaseURL:     o.cfg.Site.MediaBaseURL,
			PlaceholderImage: o.cfg.Site.PlaceholderImage,
		},
		o.normalizer,
	)

	res, err := harvest.NewController(r, o.fetcher, tr, o.writer, log, o.metrics).Run(ctx, cred)
	if err != nil {
		return res, fmt.Errorf("run %s: %w", r.Name, err)
	}
	return res, nil
}
