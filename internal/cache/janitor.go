// Feedrank - Personalized Feed Ranking and Caching Engine
// Copyright 2026 OpenLearn HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlearnhq/feedrank

package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Janitor drives background eviction on two independent timers: a light
// pressure check and a forced full sweep that runs regardless of measured
// pressure. It implements suture.Service and stops when its context is
// canceled, so the cache carries no hidden global timers.
type Janitor struct {
	cache   *TieredCache
	sampler PressureSampler

	checkInterval time.Duration
	sweepInterval time.Duration
	logger        zerolog.Logger
}

// NewJanitor creates a janitor for the given cache.
func NewJanitor(c *TieredCache, sampler PressureSampler, checkInterval, sweepInterval time.Duration, logger zerolog.Logger) *Janitor {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &Janitor{
		cache:         c,
		sampler:       sampler,
		checkInterval: checkInterval,
		sweepInterval: sweepInterval,
		logger:        logger.With().Str("component", "cache-janitor").Logger(),
	}
}

// Serve runs the eviction timers until ctx is canceled.
func (j *Janitor) Serve(ctx context.Context) error {
	check := time.NewTicker(j.checkInterval)
	defer check.Stop()
	sweep := time.NewTicker(j.sweepInterval)
	defer sweep.Stop()

	j.logger.Info().
		Dur("check_interval", j.checkInterval).
		Dur("sweep_interval", j.sweepInterval).
		Msg("cache janitor started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-check.C:
			j.check()
		case <-sweep.C:
			removed := j.cache.Sweep()
			j.cache.Evict(PressureHigh)
			j.logger.Debug().Int("expired", removed).Msg("forced sweep complete")
		}
	}
}

// check samples memory pressure and applies the eviction cascade.
func (j *Janitor) check() {
	level, err := j.sampler.Sample()
	if err != nil {
		j.logger.Warn().Err(err).Msg("pressure sample failed")
		return
	}
	if level > PressureNone {
		j.cache.Evict(level)
	}
}

// String identifies the service in supervisor logs.
func (j *Janitor) String() string {
	return "cache-janitor"
}
