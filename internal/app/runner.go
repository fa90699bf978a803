package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomasvtx/jsonfetch/internal/config"
	"github.com/tomasvtx/jsonfetch/internal/logger"
	"github.com/tomasvtx/jsonfetch/internal/storage"
	"github.com/tomasvtx/jsonfetch/pkg/fetch"
	"github.com/tomasvtx/jsonfetch/pkg/httpclient"
	"github.com/tomasvtx/jsonfetch/pkg/targets"
)

// Runner executes one fetch pass over a target manifest: every target is
// fetched as raw JSON, the outcome is logged and journaled, and failures are
// aggregated into the pass result.
type Runner struct {
	cfg         *config.Config
	manifest    *targets.Manifest
	client      httpclient.Client
	store       storage.Store
	concurrency int
}

// NewRunner builds a runner from config: it loads the target manifest, opens
// the history store, and creates the shared HTTP client reused by every
// fetch in the pass.
func NewRunner(cfg *config.Config) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	manifest, err := targets.Load(cfg.TargetsFile)
	if err != nil {
		return nil, fmt.Errorf("load targets manifest: %w", err)
	}

	store, err := storage.NewStore(cfg.HistoryType, cfg.BBoltPath, storage.Options{
		RecordTTL:       cfg.HistoryTTL,
		CleanupInterval: cfg.HistoryCleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init history store: %w", err)
	}

	concurrency := cfg.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Runner{
		cfg:         cfg,
		manifest:    manifest,
		client:      httpclient.NewRestyClient(cfg.HTTPTimeout),
		store:       store,
		concurrency: concurrency,
	}, nil
}

// Run fetches every manifest target once. Target failures are joined into
// the returned error after the whole pass completes; a failed target never
// stops the others.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.manifest == nil {
		return fmt.Errorf("runner is not initialized")
	}

	tgts := r.manifest.All()
	logger.InfoObj("fetch pass starting", "pass_meta", map[string]any{
		"targets":     len(tgts),
		"concurrency": r.concurrency,
	})

	// Limit in-flight fetches; each call is still fully independent.
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var errs []error

	for _, tgt := range tgts {
		if ctx.Err() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(tgt targets.Target) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := r.fetchTarget(ctx, tgt); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(tgt)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// fetchTarget performs one fetch, journals the outcome, and reports a failed
// target as an error for pass aggregation.
func (r *Runner) fetchTarget(ctx context.Context, tgt targets.Target) error {
	if err := waitRequestDelay(ctx, tgt.RequestDelay()); err != nil {
		return err
	}

	res := fetch.JSONWithHeaders[json.RawMessage](ctx, r.client, tgt.URL, targets.Headers(tgt))

	rec := storage.FetchRecord{
		TargetID:  tgt.ID,
		URL:       tgt.URL,
		OK:        res.OK,
		Error:     res.Error,
		FetchedAt: time.Now(),
	}
	if err := r.store.Record(rec); err != nil {
		logger.ErrorObj("journal fetch outcome failed", "journal_error", map[string]any{
			"target_id": tgt.ID,
			"error":     err.Error(),
		})
	}

	if !res.OK {
		logger.WarnObj("target fetch failed", "target_result", map[string]any{
			"target_id": tgt.ID,
			"url":       tgt.URL,
			"error":     res.Error,
		})
		return fmt.Errorf("fetch target %s: %s", tgt.ID, res.Error)
	}

	bodyBytes := 0
	if res.Data != nil {
		bodyBytes = len(*res.Data)
	}
	logger.InfoObj("target fetch completed", "target_result", map[string]any{
		"target_id":  tgt.ID,
		"url":        tgt.URL,
		"body_bytes": bodyBytes,
	})
	return nil
}

// waitRequestDelay pauses for the target's politeness delay, aborting early
// when the context is cancelled.
func waitRequestDelay(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns the n most recent journaled outcomes, newest first.
func (r *Runner) History(n int) ([]storage.FetchRecord, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	return r.store.Recent(n)
}

// Close releases the history store.
func (r *Runner) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}
