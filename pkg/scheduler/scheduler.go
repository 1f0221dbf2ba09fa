// Package scheduler runs the per-frequency monitoring batch: select due
// sources, fetch/normalize/diff/alert each one through a bounded worker
// pool, and aggregate the outcome into a JobResult. Grounded on
// core/pkg/compliance/regwatch.Swarm's pollAll/pollAgent - a semaphore
// plus sync.WaitGroup fan-out over independent units of work - adapted
// from a continuous ticker loop to a single bounded batch invoked by
// RunDaily/RunWeekly.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lighthouse-labs/policywatch/pkg/alert"
	"github.com/lighthouse-labs/policywatch/pkg/fetch"
	"github.com/lighthouse-labs/policywatch/pkg/metrics"
	"github.com/lighthouse-labs/policywatch/pkg/normalize"
	"github.com/lighthouse-labs/policywatch/pkg/registry"
	"github.com/lighthouse-labs/policywatch/pkg/source"
	"github.com/lighthouse-labs/policywatch/pkg/store"
)

// JobResult aggregates one RunDaily/RunWeekly invocation across every
// source it processed.
type JobResult struct {
	SourcesProcessed int
	SourcesSucceeded int
	SourcesFailed    int
	ChangesDetected  int
	AlertsSent       int
	Errors           []error
	StartedAt        time.Time
	CompletedAt      time.Time
}

// Scheduler wires the store, fetch client, registry, alert engine, and
// metrics provider into the per-source pipeline and runs it across a
// batch of due sources with bounded concurrency.
type Scheduler struct {
	Store          *store.Store
	Client         *fetch.Client
	Registry       *registry.Registry
	Alerts         *alert.Engine
	Metrics        *metrics.Provider
	Logger         *slog.Logger
	MaxConcurrency int
	SourceDeadline time.Duration
}

// New builds a Scheduler. maxConcurrency and sourceDeadline fall back
// to 8 workers / 120s when given as zero.
func New(st *store.Store, client *fetch.Client, reg *registry.Registry, alerts *alert.Engine, mp *metrics.Provider, logger *slog.Logger, maxConcurrency int, sourceDeadline time.Duration) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	if sourceDeadline <= 0 {
		sourceDeadline = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Store:          st,
		Client:         client,
		Registry:       reg,
		Alerts:         alerts,
		Metrics:        mp,
		Logger:         logger,
		MaxConcurrency: maxConcurrency,
		SourceDeadline: sourceDeadline,
	}
}

// RunDaily processes every active source whose check_frequency is
// "daily".
func (s *Scheduler) RunDaily(ctx context.Context) (JobResult, error) {
	return s.run(ctx, source.FrequencyDaily)
}

// RunWeekly processes every active source whose check_frequency is
// "weekly".
func (s *Scheduler) RunWeekly(ctx context.Context) (JobResult, error) {
	return s.run(ctx, source.FrequencyWeekly)
}

func (s *Scheduler) run(ctx context.Context, freq source.Frequency) (JobResult, error) {
	result := JobResult{StartedAt: time.Now()}

	sources, err := s.Store.DueSources(ctx, freq)
	if err != nil {
		return result, fmt.Errorf("select due sources: %w", err)
	}

	result.SourcesProcessed = len(sources)
	if len(sources) == 0 {
		result.CompletedAt = time.Now()
		return result, nil
	}

	sem := make(chan struct{}, s.MaxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, src := range sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := s.processSource(ctx, src)

			mu.Lock()
			defer mu.Unlock()
			if outcome.err != nil {
				result.SourcesFailed++
				result.Errors = append(result.Errors, outcome.err)
			} else {
				result.SourcesSucceeded++
			}
			if outcome.changed {
				result.ChangesDetected++
			}
			result.AlertsSent += outcome.alertsSent
		}(src)
	}

	wg.Wait()
	result.CompletedAt = time.Now()
	return result, nil
}

type sourceOutcome struct {
	err        error
	changed    bool
	alertsSent int
}

// processSource runs the fetch -> normalize -> version/change write ->
// alert dispatch pipeline for a single source, strictly sequentially -
// there is no concurrency within one source's own processing, only
// across sources. Panics inside are recovered and reported as a
// failure so one bad source never takes down the batch.
func (s *Scheduler) processSource(ctx context.Context, src source.Source) (outcome sourceOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = sourceOutcome{err: fmt.Errorf("source %d panicked: %v", src.ID, r)}
			s.Logger.Error("panic processing source", "source_id", src.ID, "panic", r)
		}
	}()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.SourceDeadline)
	defer cancel()

	defer func() {
		if s.Metrics != nil {
			s.Metrics.RecordSource(ctx, src.ID, outcome.err == nil)
			s.Metrics.RecordDuration(ctx, src.ID, time.Since(start))
		}
	}()

	result, err := s.Registry.Fetch(ctx, s.Client, src)
	if err != nil {
		s.recordFetchFailure(ctx, src, err.Error())
		return sourceOutcome{err: fmt.Errorf("fetch source %d: %w", src.ID, err)}
	}
	if !result.Success {
		s.recordFetchFailure(ctx, src, result.ErrorMessage)
		return sourceOutcome{err: fmt.Errorf("fetch source %d: %s: %s", src.ID, result.ErrorType, result.ErrorMessage)}
	}

	normalized := normalize.Text(result.RawText)
	hash := normalize.Hash(normalized)

	prev, err := s.Store.LatestVersion(ctx, src.ID)
	if err != nil {
		s.recordFetchFailure(ctx, src, err.Error())
		return sourceOutcome{err: fmt.Errorf("load latest version for source %d: %w", src.ID, err)}
	}

	var diffText string
	if prev != nil && prev.ContentHash != hash {
		diffText, err = store.UnifiedDiff(prev.RawText, normalized)
		if err != nil {
			s.recordFetchFailure(ctx, src, err.Error())
			return sourceOutcome{err: fmt.Errorf("diff source %d: %w", src.ID, err)}
		}
	}

	newVersion := source.PolicyVersion{
		SourceID:      src.ID,
		ContentHash:   hash,
		RawText:       normalized,
		FetchedAt:     result.FetchedAt,
		NormalizedAt:  time.Now(),
		ContentLength: len(normalized),
		FetchDuration: time.Since(start),
	}

	_, changeID, err := s.Store.RecordObservation(ctx, src.ID, newVersion, prev, diffText)
	if err != nil {
		return sourceOutcome{err: fmt.Errorf("record observation for source %d: %w", src.ID, err)}
	}

	changed := changeID != 0
	if !changed {
		return sourceOutcome{changed: false}
	}

	if s.Metrics != nil {
		s.Metrics.RecordChange(ctx, src.ID)
	}

	if s.Alerts == nil {
		return sourceOutcome{changed: true}
	}

	change := source.PolicyChange{
		ID:       changeID,
		SourceID: src.ID,
		OldHash:  "",
		NewHash:  hash,
		DiffText: diffText,
	}
	if prev != nil {
		change.OldHash = prev.ContentHash
	}

	alertResult, err := s.Alerts.Dispatch(ctx, src, change)
	if err != nil {
		s.Logger.Error("alert dispatch failed", "source_id", src.ID, "change_id", changeID, "error", err)
		return sourceOutcome{changed: true, err: fmt.Errorf("dispatch alerts for source %d: %w", src.ID, err)}
	}

	if s.Metrics != nil {
		s.Metrics.RecordAlerts(ctx, src.ID, alertResult.Sent)
	}

	return sourceOutcome{changed: true, alertsSent: alertResult.Sent}
}

func (s *Scheduler) recordFetchFailure(ctx context.Context, src source.Source, msg string) {
	if err := s.Store.RecordFetchFailure(ctx, src.ID, msg); err != nil {
		s.Logger.Error("failed to record fetch failure", "source_id", src.ID, "error", err)
	}
}
