// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

// Package batch runs per-item work over large candidate sets in fixed-size
// batches with bounded concurrency. A failing item is dropped from the
// output rather than failing the whole run.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/openlearnhq/feedrank/internal/cache"
	"github.com/openlearnhq/feedrank/internal/metrics"
)

// Priority selects the pacing applied to a run.
type Priority int

const (
	// PriorityNormal runs batches as fast as the concurrency cap allows.
	PriorityNormal Priority = iota
	// PriorityLow paces batch starts through the shared rate limiter, for
	// background refresh work that must not crowd out interactive requests.
	PriorityLow
)

// Options configures a Processor.
type Options struct {
	// Size is the number of items per batch.
	Size int

	// PressureShrink scales Size down when memory pressure is medium or
	// higher (for example 0.6 turns batches of 20 into batches of 12).
	PressureShrink float64

	// Concurrency caps the number of batches in flight.
	Concurrency int

	// LowPriorityRate paces low-priority batch starts, in batches per second.
	LowPriorityRate float64
}

// DefaultOptions returns the standard processor configuration.
func DefaultOptions() Options {
	return Options{
		Size:            20,
		PressureShrink:  0.6,
		Concurrency:     5,
		LowPriorityRate: 4,
	}
}

// Processor executes batched work. Safe for concurrent use.
type Processor struct {
	opts    Options
	sampler cache.PressureSampler
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu      sync.Mutex
	avgSecs float64
	runs    int64
}

// NewProcessor creates a processor. sampler may be nil, in which case batch
// size never shrinks.
func NewProcessor(opts Options, sampler cache.PressureSampler, logger zerolog.Logger) *Processor {
	if opts.Size <= 0 {
		opts.Size = DefaultOptions().Size
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	if opts.PressureShrink <= 0 || opts.PressureShrink > 1 {
		opts.PressureShrink = DefaultOptions().PressureShrink
	}
	if opts.LowPriorityRate <= 0 {
		opts.LowPriorityRate = DefaultOptions().LowPriorityRate
	}

	return &Processor{
		opts:    opts,
		sampler: sampler,
		limiter: rate.NewLimiter(rate.Limit(opts.LowPriorityRate), 1),
		logger:  logger.With().Str("component", "batch").Logger(),
	}
}

// AverageDuration returns the rolling average batch duration across all runs.
func (p *Processor) AverageDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.avgSecs * float64(time.Second))
}

// batchSize returns the effective batch size for the current memory pressure.
func (p *Processor) batchSize() int {
	size := p.opts.Size
	if p.sampler == nil {
		return size
	}

	level, err := p.sampler.Sample()
	if err != nil {
		return size
	}
	if level >= cache.PressureMedium {
		size = int(float64(size) * p.opts.PressureShrink)
		if size < 1 {
			size = 1
		}
	}
	return size
}

// recordBatch folds one batch duration into the rolling average.
func (p *Processor) recordBatch(d time.Duration) {
	metrics.BatchDuration.Observe(d.Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs++
	p.avgSecs += (d.Seconds() - p.avgSecs) / float64(p.runs)
}

// Process runs fn over every item, at most Concurrency batches at a time,
// and returns the successful outputs in input order. Items whose fn returns
// an error are dropped. Only a canceled context aborts the whole run.
func Process[I, O any](ctx context.Context, p *Processor, items []I, priority Priority, fn func(context.Context, I) (O, error)) ([]O, error) {
	if len(items) == 0 {
		return nil, nil
	}

	size := p.batchSize()
	batches := chunk(items, size)
	results := make([][]O, len(batches))

	sem := semaphore.NewWeighted(int64(p.opts.Concurrency))
	var wg sync.WaitGroup

	for i, b := range batches {
		if priority == PriorityLow {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}

		wg.Add(1)
		go func(idx int, batch []I) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = runBatch(ctx, p, batch, fn)
		}(i, b)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]O, 0, len(items))
	for _, r := range results {
		out = append(out, r...)
	}

	p.logger.Debug().
		Int("items", len(items)).
		Int("batch_size", size).
		Int("batches", len(batches)).
		Int("kept", len(out)).
		Msg("batch run complete")

	return out, nil
}

// runBatch processes one batch sequentially, dropping failed items.
func runBatch[I, O any](ctx context.Context, p *Processor, batch []I, fn func(context.Context, I) (O, error)) []O {
	start := time.Now()
	out := make([]O, 0, len(batch))

	for _, item := range batch {
		if ctx.Err() != nil {
			break
		}

		result, err := fn(ctx, item)
		if err != nil {
			metrics.BatchItemsProcessed.WithLabelValues("dropped").Inc()
			p.logger.Warn().Err(err).Msg("item dropped from batch")
			continue
		}
		metrics.BatchItemsProcessed.WithLabelValues("ok").Inc()
		out = append(out, result)
	}

	p.recordBatch(time.Since(start))
	return out
}

// chunk splits items into slices of at most size elements.
func chunk[I any](items []I, size int) [][]I {
	batches := make([][]I, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
